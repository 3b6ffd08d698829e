package fanout

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter caps leaf I/O across every fan-out in the process. Nested fan-outs
// share one Limiter, so real concurrent requests never exceed its size.
// Only leaf operations acquire it; fan-out tasks waiting on children hold nothing.
type Limiter struct {
	sem  *semaphore.Weighted
	size int64
}

// NewLimiter returns a Limiter admitting n concurrent operations (minimum 1).
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), size: int64(n)}
}

// Size returns the configured capacity.
func (l *Limiter) Size() int {
	return int(l.size)
}

// Do runs fn while holding one permit.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if l == nil {
		return fn()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn()
}

// Call runs fn while holding one permit and returns its value.
func Call[R any](ctx context.Context, l *Limiter, fn func() (R, error)) (R, error) {
	var out R
	err := l.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
