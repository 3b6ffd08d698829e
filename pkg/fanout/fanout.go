// Package fanout runs the same operation over many independent items under a
// concurrency cap. One item's failure never cancels or blocks the others.
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Failure records why a single item did not complete.
type Failure struct {
	Key string
	Err error
}

// Report summarises one fan-out batch.
type Report struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []Failure
}

// Merge folds other into r.
func (r *Report) Merge(other Report) {
	r.Total += other.Total
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Failures = append(r.Failures, other.Failures...)
}

// SuccessRatio is Succeeded/Total, or 1 for an empty batch.
func (r Report) SuccessRatio() float64 {
	if r.Total == 0 {
		return 1
	}
	return float64(r.Succeeded) / float64(r.Total)
}

// Meets reports whether the batch reached minRatio. A ratio <= 0 always passes.
func (r Report) Meets(minRatio float64) bool {
	if minRatio <= 0 {
		return true
	}
	return r.SuccessRatio() >= minRatio
}

// Outcome is the result of one Map task, stored at the item's own index.
type Outcome[R any] struct {
	Value R
	Err   error
}

// Options tunes logging of a batch.
type Options struct {
	Logger *slog.Logger
	Name   string
}

// Map runs work over items with at most limit tasks in flight and returns one
// Outcome per item, in input order. Each task writes only its own slot.
func Map[T, R any](ctx context.Context, items []T, limit int, key func(T) string, work func(context.Context, T) (R, error), opts Options) ([]Outcome[R], Report) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 1
	}

	outcomes := make([]Outcome[R], len(items))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = run(ctx, item, work)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Total: len(items)}
	for i, o := range outcomes {
		if o.Err == nil {
			report.Succeeded++
			continue
		}
		k := fmt.Sprintf("#%d", i)
		if key != nil {
			k = key(items[i])
		}
		report.Failed++
		report.Failures = append(report.Failures, Failure{Key: k, Err: o.Err})
		logger.Warn("Item failed", "batch", opts.Name, "item", k, "error", o.Err)
	}
	return outcomes, report
}

// ForEach is Map for work that produces no value.
func ForEach[T any](ctx context.Context, items []T, limit int, key func(T) string, work func(context.Context, T) error, opts Options) Report {
	_, report := Map(ctx, items, limit, key, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, work(ctx, item)
	}, opts)
	return report
}

func run[T, R any](ctx context.Context, item T, work func(context.Context, T) (R, error)) (out Outcome[R]) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome[R]{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := work(ctx, item)
	return Outcome[R]{Value: v, Err: err}
}
