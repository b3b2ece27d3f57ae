package feedsync

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"bottle/internal/jobs"
	"bottle/internal/models"
	"bottle/internal/source"
	"bottle/internal/store"
)

// Source is the per-feed collaborator the engine drives.
type Source interface {
	BeforeUpdate(ctx context.Context) error
	FetchContext(ctx context.Context) (source.FetchContext, error)
	Fetch(ctx context.Context, fc source.FetchContext) (*source.Page, source.FetchContext, error)
	Save(ctx context.Context, page *source.Page, fc source.FetchContext) (models.SaveResult, error)
	AfterUpdate(ctx context.Context, results []models.SaveResult) error
}

// Loader builds the Source of a feed.
type Loader func(ctx context.Context, id models.FeedID) (Source, error)

// StoreLoader loads feeds from st and binds them to the community clients.
func StoreLoader(st store.FeedStore, clients source.Clients) Loader {
	return func(ctx context.Context, id models.FeedID) (Source, error) {
		feed, err := st.GetFeed(ctx, id)
		if err != nil {
			return nil, err
		}
		return source.New(feed, st, clients)
	}
}

// Engine runs incremental feed syncs.
type Engine struct {
	load   Loader
	policy jobs.Policy
	delay  time.Duration
}

func NewEngine(load Loader, policy jobs.Policy, delay time.Duration) *Engine {
	return &Engine{load: load, policy: policy, delay: delay}
}

type fetched struct {
	page *source.Page
	next source.FetchContext
}

// Run syncs one feed, publishing progress to cell. It is the registry runner
// for feed sync jobs.
func (e *Engine) Run(ctx context.Context, id models.FeedID, cell *jobs.Cell) error {
	logger := log.WithField("feed", id.String())

	src, err := e.load(ctx, id)
	if err != nil {
		return fmt.Errorf("load feed %s: %w", id, err)
	}
	if err := src.BeforeUpdate(ctx); err != nil {
		return fmt.Errorf("prepare feed %s: %w", id, err)
	}
	fc, err := src.FetchContext(ctx)
	if err != nil {
		return fmt.Errorf("resolve fetch context of %s: %w", id, err)
	}
	logger.Debugf("Starting %s sync at cursor %q", fc.Direction, fc.Cursor)

	total := 0
	cell.Store(jobs.Syncing(total))

	var results []models.SaveResult
	for cycle := 1; ; cycle++ {
		current := fc
		f, err := jobs.Call(ctx, e.policy, func(ctx context.Context) (fetched, error) {
			page, next, err := src.Fetch(ctx, current)
			return fetched{page: page, next: next}, err
		})
		if err != nil {
			return fmt.Errorf("fetch cycle %d: %w", cycle, err)
		}

		// A save may be half applied when it fails, so it only gets the timeout.
		result, err := jobs.Call(ctx, e.policy.Once(), func(ctx context.Context) (models.SaveResult, error) {
			return src.Save(ctx, f.page, f.next)
		})
		if err != nil {
			return fmt.Errorf("save cycle %d: %w", cycle, err)
		}

		fc = f.next
		results = append(results, result)
		total += len(result.PostIDs)
		cell.Store(jobs.Syncing(total))
		logger.WithFields(log.Fields{
			"cycle":       cycle,
			"new":         len(result.PostIDs),
			"should_stop": result.ShouldStop,
			"reached_end": result.ReachedEnd,
		}).Debug("Sync cycle done")

		if result.ShouldStop {
			break
		}
		if err := sleep(ctx, e.delay); err != nil {
			return err
		}
	}

	if err := src.AfterUpdate(ctx, results); err != nil {
		return fmt.Errorf("finalize feed %s: %w", id, err)
	}
	cell.Store(jobs.Synced(total))
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
