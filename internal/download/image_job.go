package download

import (
	"context"
	"fmt"
	"path"

	log "github.com/sirupsen/logrus"

	"bottle/internal/jobs"
	"bottle/internal/models"
	"bottle/internal/store"
)

// ImageKey identifies the image download job. There is only ever one.
type ImageKey string

const ImageJobKey ImageKey = "images"

// ImageJob downloads every image row that has a remote URL but no file.
type ImageJob struct {
	store       store.LibraryStore
	fetcher     Fetcher
	policy      jobs.Policy
	concurrency int
	overwrite   bool
}

func NewImageJob(st store.LibraryStore, fetcher Fetcher, policy jobs.Policy, concurrency int, overwrite bool) *ImageJob {
	return &ImageJob{store: st, fetcher: fetcher, policy: policy, concurrency: concurrency, overwrite: overwrite}
}

// Tasks lists the pending downloads. Files land in <community>/<user id>.
func (j *ImageJob) Tasks(ctx context.Context) ([]Task, error) {
	pending, err := j.store.ListPendingImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending images: %w", err)
	}
	tasks := make([]Task, 0, len(pending))
	for _, p := range pending {
		user := p.UserID
		if user == "" {
			user = "unknown"
		}
		tasks = append(tasks, Task{
			URL:      p.URL,
			Subdir:   path.Join(string(p.Community), user),
			Filename: p.Filename,
			RecordID: p.ImageID,
		})
	}
	return tasks, nil
}

// Run is the registry runner of the image download job.
func (j *ImageJob) Run(ctx context.Context, _ ImageKey, cell *jobs.Cell) error {
	tasks, err := j.Tasks(ctx)
	if err != nil {
		return err
	}
	cell.Store(j.RunTasks(ctx, cell, tasks))
	return nil
}

// RunTasks downloads tasks and writes each result back to its image row.
// It returns the terminal state without storing it.
func (j *ImageJob) RunTasks(ctx context.Context, cell *jobs.Cell, tasks []Task) jobs.State {
	log.WithField("count", len(tasks)).Info("Downloading images")

	errs := RunPipeline(ctx, cell, j.concurrency, jobs.Running(len(tasks), 0, 0), tasks, func(ctx context.Context, t Task) error {
		local, err := jobs.Call(ctx, j.policy, func(ctx context.Context) (*models.LocalImage, error) {
			return j.fetcher.Download(ctx, t, j.overwrite)
		})
		if err != nil {
			return err
		}
		return j.store.UpdateImageFromLocal(ctx, t.RecordID, local)
	})

	var failures []jobs.Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		log.WithField("url", tasks[i].URL).Warnf("Image download failed: %v", err)
		failures = append(failures, jobs.Failure{URL: tasks[i].URL, Error: err.Error()})
	}
	return jobs.Finish(len(tasks), failures)
}
