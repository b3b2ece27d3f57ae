package source

import (
	"context"

	"bottle/internal/models"
)

// Direction of a fetch relative to the feed's known history.
type Direction string

const (
	// Backward walks from newer to older items.
	Backward Direction = "backward"
	// Forward walks past the newest known item.
	Forward Direction = "forward"
)

// FetchContext is the position of a sync run. Only the community clients
// interpret Cursor and Page.
type FetchContext struct {
	Direction    Direction `json:"direction"`
	Cursor       string    `json:"cursor,omitempty"`
	Page         int       `json:"page"`
	TotalFetched int       `json:"total_fetched"`
}

// PageRequest is what a client needs to fetch the next page.
type PageRequest struct {
	Direction Direction
	Cursor    string
	Page      int
}

// Page is one upstream response. Top and Bottom are the cursors toward newer
// and older items.
type Page struct {
	Posts   []models.Post
	Top     *models.Cursor
	Bottom  *models.Cursor
	HasMore bool
}

type PixivClient interface {
	Illusts(ctx context.Context, params PixivParams, req PageRequest) (*Page, error)
}

type TwitterClient interface {
	Tweets(ctx context.Context, params TwitterParams, req PageRequest) (*Page, error)
}

type YandereClient interface {
	Posts(ctx context.Context, params YandereParams, req PageRequest) (*Page, error)
}

type PandaClient interface {
	Galleries(ctx context.Context, params PandaParams, req PageRequest) (*Page, error)
}

// Clients groups the community clients. A nil client makes feeds of that
// community fail with an authentication error.
type Clients struct {
	Pixiv   PixivClient
	Twitter TwitterClient
	Yandere YandereClient
	Panda   PandaClient
}
