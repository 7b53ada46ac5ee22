package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

// WithTimeout runs fn with a context bounded by timeout and waits for it to
// return, so fn's outcome is never lost. fn must honour ctx. When it fails
// after the deadline the error wraps apperrors.ErrTimeout and fn's error.
// A non-positive timeout runs fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	cause := fmt.Errorf("%s: %w after %v", name, apperrors.ErrTimeout, timeout)
	bounded, cancel := context.WithTimeoutCause(ctx, timeout, cause)
	defer cancel()

	err := fn(bounded)
	if err == nil {
		return nil
	}
	if errors.Is(context.Cause(bounded), apperrors.ErrTimeout) {
		return fmt.Errorf("%w: %w", cause, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: cancelled: %w", name, err)
	}
	return err
}
