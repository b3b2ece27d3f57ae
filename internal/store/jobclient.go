package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"bottle/internal/models"
	"bottle/internal/tasks"
)

var _ JobClient = (*AsynqJobClient)(nil)

// AsynqJobClient enqueues job triggers on Redis. Triggers are deduplicated
// for a short window so a burst of requests becomes one task.
type AsynqJobClient struct {
	client *asynq.Client
	queue  string
	unique time.Duration
}

func NewAsynqJobClient(opt asynq.RedisClientOpt, queue string) *AsynqJobClient {
	if queue == "" {
		queue = tasks.Queue
	}
	return &AsynqJobClient{
		client: asynq.NewClient(opt),
		queue:  queue,
		unique: time.Minute,
	}
}

func (jc *AsynqJobClient) Close() error {
	return jc.client.Close()
}

func (jc *AsynqJobClient) enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := jc.client.EnqueueContext(ctx, task, asynq.Queue(jc.queue), asynq.Unique(jc.unique), asynq.MaxRetry(3))
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			log.WithField("type", task.Type()).Debug("Trigger already queued")
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	log.WithFields(log.Fields{"type": task.Type(), "task_id": info.ID, "queue": info.Queue}).Debug("Trigger enqueued")
	return nil
}

func (jc *AsynqJobClient) EnqueueFeedSync(ctx context.Context, id models.FeedID) error {
	task, err := tasks.NewFeedSyncTask(id)
	if err != nil {
		return err
	}
	return jc.enqueue(ctx, task)
}

func (jc *AsynqJobClient) EnqueueImageDownload(ctx context.Context) error {
	return jc.enqueue(ctx, tasks.NewImageDownloadTask())
}

func (jc *AsynqJobClient) EnqueueGalleryDownload(ctx context.Context, gid int64) error {
	task, err := tasks.NewGalleryDownloadTask(gid)
	if err != nil {
		return err
	}
	return jc.enqueue(ctx, task)
}
