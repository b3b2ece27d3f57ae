package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"bottle/internal/models"
)

// Task types handled by the worker. Each one only triggers the matching
// registry job in the process that runs the worker.
const (
	TypeFeedSync        = "feed:sync"
	TypeImageDownload   = "download:images"
	TypeGalleryDownload = "gallery:download"
)

// Queue is the default asynq queue for triggers.
const Queue = "bottle"

type FeedSyncPayload struct {
	Feed string `json:"feed"` // <id>@<community>
}

type GalleryDownloadPayload struct {
	GalleryID int64 `json:"gid"`
}

func NewFeedSyncTask(id models.FeedID) (*asynq.Task, error) {
	payload, err := json.Marshal(FeedSyncPayload{Feed: id.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFeedSync, payload), nil
}

func NewImageDownloadTask() *asynq.Task {
	return asynq.NewTask(TypeImageDownload, nil)
}

func NewGalleryDownloadTask(gid int64) (*asynq.Task, error) {
	payload, err := json.Marshal(GalleryDownloadPayload{GalleryID: gid})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGalleryDownload, payload), nil
}

// ParseFeedSync decodes a feed sync payload back into its feed key.
func ParseFeedSync(t *asynq.Task) (models.FeedID, error) {
	var p FeedSyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return models.FeedID{}, fmt.Errorf("%w: feed sync payload: %v", models.ErrInvalidInput, err)
	}
	return models.ParseFeedID(p.Feed)
}

func ParseGalleryDownload(t *asynq.Task) (int64, error) {
	var p GalleryDownloadPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return 0, fmt.Errorf("%w: gallery payload: %v", models.ErrInvalidInput, err)
	}
	if p.GalleryID <= 0 {
		return 0, fmt.Errorf("%w: gallery id %d", models.ErrInvalidInput, p.GalleryID)
	}
	return p.GalleryID, nil
}
