package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bottle/internal/models"
	"bottle/internal/source"
	"bottle/internal/store"
)

type FeedService struct {
	feeds store.FeedStore
}

func NewFeedService(feeds store.FeedStore) *FeedService {
	return &FeedService{feeds: feeds}
}

// AddFeedParams is the input of AddFeed. Params is the community specific
// JSON object.
type AddFeedParams struct {
	Community       models.Community `json:"community"`
	Name            string           `json:"name"`
	Params          json.RawMessage  `json:"params"`
	Watching        bool             `json:"watching"`
	FirstFetchLimit *int             `json:"first_fetch_limit"`
}

func (fs *FeedService) AddFeed(ctx context.Context, p AddFeedParams) (*models.Feed, error) {
	community, err := models.ParseCommunity(string(p.Community))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: feed name cannot be empty", models.ErrInvalidInput)
	}
	if p.FirstFetchLimit != nil && *p.FirstFetchLimit <= 0 {
		return nil, fmt.Errorf("%w: first_fetch_limit must be positive", models.ErrInvalidInput)
	}

	params, err := source.DecodeParams(community, p.Params)
	if err != nil {
		return nil, err
	}
	// Store the normalized form.
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	feed := &models.Feed{
		Community:       community,
		Name:            name,
		Params:          raw,
		Watching:        p.Watching,
		FirstFetchLimit: p.FirstFetchLimit,
	}
	if err := fs.feeds.CreateFeed(ctx, feed); err != nil {
		return nil, fmt.Errorf("could not create feed: %w", err)
	}
	return feed, nil
}

func (fs *FeedService) GetFeed(ctx context.Context, id models.FeedID) (*models.Feed, error) {
	return fs.feeds.GetFeed(ctx, id)
}

func (fs *FeedService) ListFeeds(ctx context.Context, community models.Community) ([]*models.Feed, error) {
	return fs.feeds.ListFeeds(ctx, community)
}

// ListWorks pages through a feed newest first.
func (fs *FeedService) ListWorks(ctx context.Context, id models.FeedID, limit, offset int) ([]*models.Work, error) {
	feed, err := fs.feeds.GetFeed(ctx, id)
	if err != nil {
		return nil, err
	}
	return fs.feeds.ListFeedWorks(ctx, feed.ID, limit, offset)
}

func (fs *FeedService) History(ctx context.Context, id models.FeedID, limit int) ([]*models.FeedHistory, error) {
	feed, err := fs.feeds.GetFeed(ctx, id)
	if err != nil {
		return nil, err
	}
	return fs.feeds.ListHistory(ctx, feed.ID, limit)
}
