package download

import (
	"context"

	"golang.org/x/sync/errgroup"

	"bottle/internal/jobs"
)

// RunPipeline runs work over items with at most concurrency in flight.
// Progress is published to cell on top of base, one item at a time, by a
// single aggregator. The returned errors line up with items. A failing item
// never cancels the others.
func RunPipeline[T any](ctx context.Context, cell *jobs.Cell, concurrency int, base jobs.State, items []T, work func(ctx context.Context, item T) error) []error {
	errs := make([]error, len(items))
	cell.Store(base)
	if len(items) == 0 {
		return errs
	}
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make(chan error, len(items))
	done := make(chan struct{})
	go func() {
		defer close(done)
		state := base
		for err := range outcomes {
			if err != nil {
				state.Failure++
			} else {
				state.Success++
			}
			cell.Store(state)
		}
	}()

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, item := range items {
		g.Go(func() error {
			err := work(ctx, item)
			errs[i] = err
			outcomes <- err
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	<-done
	return errs
}
