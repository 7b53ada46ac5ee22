// Package tracing records per-request timing trees. A root span is opened
// per search request and the analysis, cache and ranking stages hang off
// it as children. Finished trees are written to slog.
package tracing

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed stage of a request.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    map[string]any
}

// Start opens a root span. traceID is usually the request ID.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChild opens a span under the span in ctx. Without a parent it
// returns a detached span that is never logged.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// End fixes the span duration. Calling it again has no effect.
func (s *Span) End() {
	s.mu.Lock()
	if s.Duration == 0 {
		s.Duration = max(time.Since(s.Start), time.Nanosecond)
	}
	s.mu.Unlock()
}

// SetAttr attaches a key/value to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
	s.mu.Unlock()
}

// Children returns a copy of the direct children in start order.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.children)
}

// Attr returns the attribute stored under key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Log writes the tree rooted at s to logger at level, one record per span,
// parents before children.
func (s *Span) Log(ctx context.Context, logger *slog.Logger, level slog.Level) {
	if !logger.Enabled(ctx, level) {
		return
	}
	s.log(ctx, logger, level, 0)
}

func (s *Span) log(ctx context.Context, logger *slog.Logger, level slog.Level, depth int) {
	s.mu.Lock()
	args := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"depth", depth,
		"duration_us", s.Duration.Microseconds(),
	}
	keys := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, k, s.attrs[k])
	}
	children := slices.Clone(s.children)
	s.mu.Unlock()

	logger.Log(ctx, level, "span", args...)
	for _, c := range children {
		c.log(ctx, logger, level, depth+1)
	}
}
