package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"bottle/internal/download"
	"bottle/internal/gallery"
	"bottle/internal/jobs"
	"bottle/internal/models"
	"bottle/internal/store"
)

// JobService is the one place jobs are triggered and observed. The API, the
// asynq handlers and the CLI all go through it.
type JobService struct {
	feeds     *jobs.Registry[models.FeedID]
	images    *jobs.Registry[download.ImageKey]
	galleries *jobs.Registry[int64]

	feedStore store.FeedStore
	library   gallery.Store

	mu     sync.RWMutex
	titles map[int64]string
}

func NewJobService(
	feeds *jobs.Registry[models.FeedID],
	images *jobs.Registry[download.ImageKey],
	galleries *jobs.Registry[int64],
	feedStore store.FeedStore,
	library gallery.Store,
) *JobService {
	return &JobService{
		feeds:     feeds,
		images:    images,
		galleries: galleries,
		feedStore: feedStore,
		library:   library,
		titles:    make(map[int64]string),
	}
}

// Start launches the registry workers. They stop picking up new jobs when
// ctx is done.
func (s *JobService) Start(ctx context.Context) {
	s.feeds.Start(ctx)
	s.images.Start(ctx)
	s.galleries.Start(ctx)
}

// Wait blocks until every registry worker has exited.
func (s *JobService) Wait() {
	s.feeds.Wait()
	s.images.Wait()
	s.galleries.Wait()
}

// TriggerFeedSync queues a sync of an existing feed. accepted is false when
// a sync of that feed is already queued or running.
func (s *JobService) TriggerFeedSync(ctx context.Context, id models.FeedID) (bool, error) {
	if _, err := s.feedStore.GetFeed(ctx, id); err != nil {
		if store.IsNotFound(err) {
			return false, fmt.Errorf("feed %s: %w", id, models.ErrNotFound)
		}
		return false, err
	}
	accepted := s.feeds.Enqueue(id)
	log.WithFields(log.Fields{"feed": id.String(), "accepted": accepted}).Info("Feed sync triggered")
	return accepted, nil
}

func (s *JobService) TriggerImageDownload(ctx context.Context) bool {
	accepted := s.images.Enqueue(download.ImageJobKey)
	log.WithField("accepted", accepted).Info("Image download triggered")
	return accepted
}

// TriggerGalleryDownload queues a gallery. It fails with ErrNotFound for an
// unknown gallery and ErrAlreadyExists when every image is stored.
func (s *JobService) TriggerGalleryDownload(ctx context.Context, gid int64) (bool, error) {
	task, err := gallery.GetGalleryTask(ctx, s.library, gid)
	if err != nil {
		return false, err
	}
	s.setTitle(gid, task.Title)
	accepted := s.galleries.Enqueue(gid)
	log.WithFields(log.Fields{"gid": gid, "accepted": accepted}).Info("Gallery download triggered")
	return accepted, nil
}

// TriggerAllGalleries queues every incomplete gallery and returns how many
// were accepted.
func (s *JobService) TriggerAllGalleries(ctx context.Context) (int, error) {
	tasks, err := gallery.AllGalleryTasks(ctx, s.library)
	if err != nil {
		return 0, err
	}
	accepted := 0
	for _, task := range tasks {
		s.setTitle(task.GalleryID, task.Title)
		if s.galleries.Enqueue(task.GalleryID) {
			accepted++
		}
	}
	return accepted, nil
}

func (s *JobService) FeedState(id models.FeedID) FeedJobView {
	return RenderFeed(id, poll(s.feeds, id))
}

func (s *JobService) ImageDownloadState() ImageJobView {
	return RenderImages(poll(s.images, download.ImageJobKey))
}

func (s *JobService) GalleryState(gid int64) GalleryJobView {
	return RenderGallery(gid, s.title(gid), poll(s.galleries, gid))
}

// poll treats a key that was never triggered as ready.
func poll[K comparable](r *jobs.Registry[K], key K) jobs.State {
	st, ok := r.Poll(key)
	if !ok {
		return jobs.Ready()
	}
	return st
}

// AllStates renders every job the registries know, in key order.
func (s *JobService) AllStates() JobsOverview {
	feedStates := s.feeds.Snapshot()
	feedIDs := make([]models.FeedID, 0, len(feedStates))
	for id := range feedStates {
		feedIDs = append(feedIDs, id)
	}
	sort.Slice(feedIDs, func(i, j int) bool {
		if feedIDs[i].Community != feedIDs[j].Community {
			return feedIDs[i].Community < feedIDs[j].Community
		}
		return feedIDs[i].FeedID < feedIDs[j].FeedID
	})

	overview := JobsOverview{
		FeedJobs:         make([]FeedJobView, 0, len(feedIDs)),
		ImageDownloadJob: s.ImageDownloadState(),
	}
	for _, id := range feedIDs {
		overview.FeedJobs = append(overview.FeedJobs, RenderFeed(id, feedStates[id]))
	}

	galleryStates := s.galleries.Snapshot()
	gids := make([]int64, 0, len(galleryStates))
	for gid := range galleryStates {
		gids = append(gids, gid)
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })
	overview.GalleryJobs = make([]GalleryJobView, 0, len(gids))
	for _, gid := range gids {
		overview.GalleryJobs = append(overview.GalleryJobs, RenderGallery(gid, s.title(gid), galleryStates[gid]))
	}
	return overview
}

func (s *JobService) setTitle(gid int64, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles[gid] = title
}

func (s *JobService) title(gid int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.titles[gid]
}
