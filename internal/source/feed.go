package source

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"bottle/internal/models"
	"bottle/internal/store"
)

// Feed binds one persisted feed to its community client and the store.
type Feed struct {
	model   *models.Feed
	params  Params
	store   store.FeedStore
	clients Clients
}

// New decodes the feed params and returns the collaborator for the feed.
func New(feed *models.Feed, st store.FeedStore, clients Clients) (*Feed, error) {
	params, err := DecodeParams(feed.Community, feed.Params)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed.Key(), err)
	}
	return &Feed{model: feed, params: params, store: st, clients: clients}, nil
}

func (f *Feed) ID() models.FeedID { return f.model.Key() }

func (f *Feed) Params() Params { return f.params }

// BeforeUpdate drops memberships an interrupted run left without a sort
// index so they are fetched again.
func (f *Feed) BeforeUpdate(ctx context.Context) error {
	orphans, err := f.store.DeleteUnsortedMemberships(ctx, f.model.ID)
	if err != nil {
		return err
	}
	if len(orphans) > 0 {
		log.WithField("feed", f.ID().String()).Warnf("Removed %d unsorted memberships from an interrupted run", len(orphans))
	}
	return nil
}

// FetchContext resolves where this run starts.
func (f *Feed) FetchContext(ctx context.Context) (FetchContext, error) {
	fc := FetchContext{Direction: Backward, Page: 1}
	if !f.params.Directional() {
		return fc, nil
	}
	top, bottom, err := f.store.Cursors(ctx, f.model.ID)
	if err != nil {
		return fc, err
	}
	if f.model.ReachedEnd {
		fc.Direction = Forward
		if top != nil {
			fc.Cursor = top.Value
		}
		return fc, nil
	}
	if bottom != nil {
		fc.Cursor = bottom.Value
	}
	return fc, nil
}

// Fetch loads the page at fc and returns the context of the next page.
func (f *Feed) Fetch(ctx context.Context, fc FetchContext) (*Page, FetchContext, error) {
	req := PageRequest{Direction: fc.Direction, Cursor: fc.Cursor, Page: fc.Page}

	var (
		page *Page
		err  error
	)
	switch p := f.params.(type) {
	case PixivParams:
		if f.clients.Pixiv == nil {
			return nil, fc, f.missingClient()
		}
		page, err = f.clients.Pixiv.Illusts(ctx, p, req)
	case TwitterParams:
		if f.clients.Twitter == nil {
			return nil, fc, f.missingClient()
		}
		page, err = f.clients.Twitter.Tweets(ctx, p, req)
	case YandereParams:
		if f.clients.Yandere == nil {
			return nil, fc, f.missingClient()
		}
		page, err = f.clients.Yandere.Posts(ctx, p, req)
	case PandaParams:
		if f.clients.Panda == nil {
			return nil, fc, f.missingClient()
		}
		page, err = f.clients.Panda.Galleries(ctx, p, req)
	default:
		return nil, fc, fmt.Errorf("unsupported params %T", f.params)
	}
	if err != nil {
		return nil, fc, err
	}
	if page == nil {
		page = &Page{}
	}

	next := fc
	next.Page++
	next.TotalFetched += len(page.Posts)
	cursor := page.Bottom
	if fc.Direction == Forward {
		cursor = page.Top
	}
	if cursor != nil {
		next.Cursor = cursor.Value
	}
	return page, next, nil
}

func (f *Feed) missingClient() error {
	return fmt.Errorf("%w: %s %s", models.ErrAuthentication, errNoClient, f.model.Community)
}

// Save stores the new posts of page. fc is the context returned by the Fetch
// that produced page.
func (f *Feed) Save(ctx context.Context, page *Page, fc FetchContext) (models.SaveResult, error) {
	var result models.SaveResult

	if !page.HasMore && fc.Direction == Backward {
		result.ReachedEnd = true
		if !f.model.ReachedEnd {
			if err := f.store.MarkReachedEnd(ctx, f.model.ID); err != nil {
				return result, err
			}
		}
	}
	if len(page.Posts) == 0 {
		result.ShouldStop = true
		return result, nil
	}

	ids := make([]string, 0, len(page.Posts))
	for _, p := range page.Posts {
		ids = append(ids, p.PostID)
	}
	existing, err := f.store.ExistingMemberships(ctx, f.model.ID, ids)
	if err != nil {
		return result, err
	}

	var (
		fresh    []models.Post
		freshIDs []string
		stale    []string
		seen     = make(map[string]bool, len(page.Posts))
	)
	for _, p := range page.Posts {
		if seen[p.PostID] {
			continue
		}
		seen[p.PostID] = true
		switch {
		case existing[p.PostID] && p.Deleted:
			stale = append(stale, p.PostID)
		case existing[p.PostID], p.Deleted:
		default:
			fresh = append(fresh, p)
			freshIDs = append(freshIDs, p.PostID)
		}
	}
	if len(stale) > 0 {
		if err := f.store.MarkStale(ctx, f.model.ID, stale); err != nil {
			return result, err
		}
	}
	if len(existing) == len(seen) {
		result.ShouldStop = true
		return result, nil
	}

	history := &models.FeedHistory{Top: page.Top, Bottom: page.Bottom, PostIDs: freshIDs}
	if err := f.store.SavePage(ctx, f.model, fresh, history); err != nil {
		return result, err
	}
	result.PostIDs = freshIDs

	if f.limitReached(fc) {
		result.ShouldStop = true
		return result, nil
	}
	result.ShouldStop = len(existing) > 0 || !page.HasMore
	return result, nil
}

func (f *Feed) limitReached(fc FetchContext) bool {
	limit := f.model.FirstFetchLimit
	return limit != nil && !f.model.ReachedEnd && fc.TotalFetched >= *limit
}

// AfterUpdate assigns sort indices to every post saved during the run, in
// fetch order.
func (f *Feed) AfterUpdate(ctx context.Context, results []models.SaveResult) error {
	var ids []string
	seen := make(map[string]bool)
	for _, r := range results {
		for _, id := range r.PostIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return f.store.AssignSortIndices(ctx, f.model.ID, ids)
}
