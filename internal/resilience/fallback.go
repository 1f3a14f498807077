package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend in a [FallbackGroup] produced a
// result. The error also wraps one [BackendError] per backend attempted.
var ErrAllFailed = errors.New("all providers failed")

// BackendError is the outcome of one failed or skipped backend attempt.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string { return e.Backend + ": " + e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

// FallbackConfig configures the breaker created for each backend of a
// [FallbackGroup]. The breaker Name is overwritten with the backend name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type backend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries a preferred backend and then its fallbacks, in
// registration order, skipping any whose breaker is open.
//
// Register every backend before sharing the group between goroutines.
type FallbackGroup[T any] struct {
	cfg      FallbackConfig
	backends []backend[T]
}

// NewFallbackGroup creates a [FallbackGroup] whose first backend is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend with its own breaker.
func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.backends = append(fg.backends, backend[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// Names returns the backend names in failover order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, 0, len(fg.backends))
	for _, b := range fg.backends {
		out = append(out, b.name)
	}
	return out
}

// States reports each backend's breaker state by name.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.backends))
	for _, b := range fg.backends {
		out[b.name] = b.breaker.State()
	}
	return out
}

// Execute is [ExecuteWithResult] for calls that return only an error.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(name string, v T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(name string, v T) (struct{}, error) {
		return struct{}{}, fn(name, v)
	})
	return err
}

// ExecuteWithResult calls fn on each backend of fg in turn and returns the
// first success.
//
// Once ctx is done no further backend is tried and ctx.Err() is returned as
// is, so a closing session never reads as a provider outage. When every
// backend fails or is skipped, the error wraps [ErrAllFailed] and one
// [BackendError] per backend.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(name string, v T) (R, error)) (R, error) {
	var (
		zero     R
		attempts []error
	)
	for _, b := range fg.backends {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var out R
		err := b.breaker.Execute(func() (err error) {
			out, err = fn(b.name, b.value)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case ctx.Err() != nil:
			return zero, ctx.Err()
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("speech backend skipped", "provider", b.name, "reason", "circuit open")
		default:
			slog.Warn("speech backend failed, trying next", "provider", b.name, "err", err)
		}
		attempts = append(attempts, &BackendError{Backend: b.name, Err: err})
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(attempts...))
}
