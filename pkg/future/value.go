package future

import (
	"context"
	"errors"
	"sync"
)

// Value is a lazily resolved value of type T. The first Resolve runs the
// fetch; every later call returns the cached outcome without touching the
// source again. Concurrent Resolve calls serialize on the first resolution
// and all observe the same outcome.
//
// A fetch aborted by the calling context does not count as a resolution:
// the caller gets its context error and the value stays unresolved for
// other callers.
type Value[T any] struct {
	fetch func(context.Context) (T, error)

	mu        sync.Mutex
	resolved  bool
	resolving chan struct{} // non-nil while a fetch is in flight
	val       T
	err       error
}

// NewValue wraps fetch in a resolve-once gate.
func NewValue[T any](fetch func(context.Context) (T, error)) *Value[T] {
	return &Value[T]{fetch: fetch}
}

// Resolved reports whether the cache slot is filled, without blocking.
func (v *Value[T]) Resolved() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolved
}

// Resolve returns the cached outcome, fetching it first if needed.
func (v *Value[T]) Resolve(ctx context.Context) (T, error) {
	for {
		v.mu.Lock()
		if v.resolved {
			val, err := v.val, v.err
			v.mu.Unlock()
			return val, err
		}
		if v.resolving == nil {
			ch := make(chan struct{})
			v.resolving = ch
			v.mu.Unlock()
			return v.runFetch(ctx, ch)
		}
		ch := v.resolving
		v.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ch:
			// winner finished or backed out; re-check
		}
	}
}

func (v *Value[T]) runFetch(ctx context.Context, ch chan struct{}) (T, error) {
	val, err := v.fetch(ctx)

	v.mu.Lock()
	defer func() {
		v.resolving = nil
		close(ch)
		v.mu.Unlock()
	}()

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		// The caller went away, not the source; leave the slot empty.
		var zero T
		return zero, err
	}
	v.val, v.err, v.resolved = val, err, true
	return val, err
}
