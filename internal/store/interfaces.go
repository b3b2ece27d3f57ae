package store

import (
	"context"

	"bottle/internal/models"
)

// FeedStore persists feeds, their history rows and their memberships.
type FeedStore interface {
	CreateFeed(ctx context.Context, feed *models.Feed) error
	GetFeed(ctx context.Context, id models.FeedID) (*models.Feed, error)
	// ListFeeds returns every feed of the community, or all feeds when
	// community is empty.
	ListFeeds(ctx context.Context, community models.Community) ([]*models.Feed, error)
	MarkReachedEnd(ctx context.Context, feedID int64) error

	// Cursors returns the newest top cursor and the oldest bottom cursor
	// recorded for the feed. Either may be nil.
	Cursors(ctx context.Context, feedID int64) (top, bottom *models.Cursor, err error)
	ListHistory(ctx context.Context, feedID int64, limit int) ([]*models.FeedHistory, error)

	// DeleteUnsortedMemberships removes memberships left without a sort
	// index by an interrupted run and returns their post ids.
	DeleteUnsortedMemberships(ctx context.Context, feedID int64) ([]string, error)
	ExistingMemberships(ctx context.Context, feedID int64, postIDs []string) (map[string]bool, error)
	// SavePage stores posts, their images and memberships, and appends the
	// history row, all in one transaction.
	SavePage(ctx context.Context, feed *models.Feed, posts []models.Post, history *models.FeedHistory) error
	MarkStale(ctx context.Context, feedID int64, postIDs []string) error
	// AssignSortIndices gives postIDs contiguous indices above the current
	// maximum, the first id receiving the highest one.
	AssignSortIndices(ctx context.Context, feedID int64, postIDs []string) error
	ListFeedWorks(ctx context.Context, feedID int64, limit, offset int) ([]*models.Work, error)
}

// LibraryStore persists works and their images.
type LibraryStore interface {
	ListPendingImages(ctx context.Context) ([]models.PendingImage, error)
	GetWork(ctx context.Context, workID int64) (*models.Work, error)
	ListWorkImages(ctx context.Context, workID int64) ([]*models.Image, error)
	AddRemoteImage(ctx context.Context, workID int64, filename, url string, pageIndex int) (int64, error)
	UpdateImageFromLocal(ctx context.Context, imageID int64, local *models.LocalImage) error
	UpdateWorkFromLocal(ctx context.Context, workID int64, local *models.LocalImage) error
}

// GalleryStore persists panda galleries and their previews.
type GalleryStore interface {
	GetGallery(ctx context.Context, gid int64) (*models.Gallery, error)
	ListGalleryIDs(ctx context.Context) ([]int64, error)
	ListGalleryMedia(ctx context.Context, gid int64) ([]*models.GalleryMedia, error)
	UpdateGallery(ctx context.Context, gid int64, detail models.GalleryDetail) error
	SavePreviews(ctx context.Context, gid int64, previews []models.GalleryMedia) error
	RemovePreviews(ctx context.Context, gid int64) error
	SaveMediaInfo(ctx context.Context, gid int64, index int, imageURL, filename string) error
}

// JobStore records registry job runs.
type JobStore interface {
	RecordJobStart(ctx context.Context, run *models.JobRun) error
	RecordJobFinish(ctx context.Context, run *models.JobRun) error
	ListJobRuns(ctx context.Context, kind string, limit int) ([]*models.JobRun, error)
}

// JobClient hands triggers to the asynq queue so other processes can start
// jobs in the process that owns the registries.
type JobClient interface {
	EnqueueFeedSync(ctx context.Context, id models.FeedID) error
	EnqueueImageDownload(ctx context.Context) error
	EnqueueGalleryDownload(ctx context.Context, gid int64) error
	Close() error
}

// PrimaryStore is the full relational store.
type PrimaryStore interface {
	FeedStore
	LibraryStore
	GalleryStore
	JobStore
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close()
}
