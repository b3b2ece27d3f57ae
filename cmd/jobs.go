package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"bottle/internal/app"
	"bottle/internal/jobs"
	"bottle/internal/store"
)

const pollInterval = 500 * time.Millisecond

// progress is one rendered sample of a job view.
type progress struct {
	phase jobs.Phase
	line  string
	err   *string
}

func phaseString(p jobs.Phase) string {
	switch p {
	case jobs.PhaseSuccess:
		return color.GreenString(string(p))
	case jobs.PhasePartialSuccess:
		return color.YellowString(string(p))
	case jobs.PhaseFailed:
		return color.RedString(string(p))
	}
	return color.CyanString(string(p))
}

// runForeground starts the registry workers, runs trigger and prints poll
// samples until the job is terminal.
func runForeground(ctx context.Context, a *app.App, out io.Writer, trigger func(ctx context.Context) error, poll func() progress) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.JobService.Start(runCtx)
	defer func() {
		cancel()
		a.JobService.Wait()
	}()

	if err := trigger(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	last := ""
	for {
		p := poll()
		if p.line != last {
			fmt.Fprintf(out, "[%s] %s\n", phaseString(p.phase), p.line)
			last = p.line
		}
		if p.phase.Terminal() {
			if p.phase == jobs.PhaseFailed {
				msg := "job failed"
				if p.err != nil {
					msg = *p.err
				}
				return errors.New(msg)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var queueOnly bool

// enqueue hands the trigger to the worker process through redis instead of
// running the job here.
func enqueue(ctx context.Context, a *app.App, out io.Writer, what string, send func(ctx context.Context, c store.JobClient) error) error {
	if a.JobClient == nil {
		return errors.New("--queue needs redis.address")
	}
	if err := send(ctx, a.JobClient); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", what, err)
	}
	fmt.Fprintf(out, "Queued %s.\n", what)
	return nil
}
