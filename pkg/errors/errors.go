// Package errors defines the sentinel errors shared by the engine, the
// index file codec and the service, and maps them to HTTP statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrLengthMismatch = errors.New("documents and ids must have the same length")
	ErrInvalidParams  = errors.New("invalid ranking parameters")
	ErrFormat         = errors.New("invalid index file")
	ErrIO             = errors.New("index file i/o failed")
	ErrUnavailable    = errors.New("service unavailable")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTimeout        = errors.New("operation timed out")
)

// AppError pairs a sentinel with a client-facing message and status.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Formatf wraps ErrFormat with a description of what was wrong with the file.
func Formatf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// IO wraps a filesystem error so callers can test for ErrIO while keeping
// the underlying *fs.PathError reachable.
func IO(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrInvalidParams) ||
		errors.Is(err, ErrInvalidInput)
}

// HTTPStatusCode maps err to the status the service answers with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
