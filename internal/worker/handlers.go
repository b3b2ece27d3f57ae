package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"bottle/internal/models"
	"bottle/internal/tasks"
)

// Triggerer starts registry jobs. services.JobService implements it.
type Triggerer interface {
	TriggerFeedSync(ctx context.Context, id models.FeedID) (bool, error)
	TriggerImageDownload(ctx context.Context) bool
	TriggerGalleryDownload(ctx context.Context, gid int64) (bool, error)
}

// RegisterHandlers wires every trigger task type onto mux.
func RegisterHandlers(mux *asynq.ServeMux, t Triggerer) {
	mux.HandleFunc(tasks.TypeFeedSync, HandleFeedSync(t))
	mux.HandleFunc(tasks.TypeImageDownload, HandleImageDownload(t))
	mux.HandleFunc(tasks.TypeGalleryDownload, HandleGalleryDownload(t))
	log.Infof("Registered handlers for %s, %s, %s", tasks.TypeFeedSync, tasks.TypeImageDownload, tasks.TypeGalleryDownload)
}

func HandleFeedSync(t Triggerer) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		id, err := tasks.ParseFeedSync(task)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		accepted, err := t.TriggerFeedSync(ctx, id)
		if err != nil {
			return permanent(err)
		}
		log.WithFields(log.Fields{"feed": id.String(), "accepted": accepted}).Info("Feed sync task handled")
		return nil
	}
}

func HandleImageDownload(t Triggerer) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		accepted := t.TriggerImageDownload(ctx)
		log.WithField("accepted", accepted).Info("Image download task handled")
		return nil
	}
}

func HandleGalleryDownload(t Triggerer) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		gid, err := tasks.ParseGalleryDownload(task)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		accepted, err := t.TriggerGalleryDownload(ctx, gid)
		if errors.Is(err, models.ErrAlreadyExists) {
			log.WithField("gid", gid).Info("Gallery already downloaded")
			return nil
		}
		if err != nil {
			return permanent(err)
		}
		log.WithFields(log.Fields{"gid": gid, "accepted": accepted}).Info("Gallery download task handled")
		return nil
	}
}

// permanent marks input errors as not worth retrying.
func permanent(err error) error {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidInput) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
