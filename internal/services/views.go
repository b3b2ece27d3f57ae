package services

import (
	"bottle/internal/jobs"
	"bottle/internal/models"
)

// FeedJobView is the rendered state of a feed sync.
type FeedJobView struct {
	Community models.Community `json:"community"`
	FeedID    int64            `json:"feed_id"`
	Fetched   int              `json:"fetched"`
	State     jobs.Phase       `json:"state"`
	Error     *string          `json:"error"`
}

// ImageJobView is the rendered state of the image download job.
type ImageJobView struct {
	State    jobs.Phase     `json:"state"`
	Total    int            `json:"total"`
	Success  int            `json:"success"`
	Failure  int            `json:"failure"`
	Failures []jobs.Failure `json:"failures"`
	Error    *string        `json:"error"`
}

// GalleryJobView is the rendered state of a gallery download.
type GalleryJobView struct {
	GalleryID       int64          `json:"gid"`
	Title           string         `json:"title"`
	State           jobs.Phase     `json:"state"`
	MetadataFetched bool           `json:"metadata_fetched"`
	TotalPages      int            `json:"total_pages"`
	SuccessPages    int            `json:"success_pages"`
	TotalImages     int            `json:"total_images"`
	SuccessImages   int            `json:"success_images"`
	FailureImages   int            `json:"failure_images"`
	Failures        []jobs.Failure `json:"failures"`
	Error           *string        `json:"error"`
}

// JobsOverview lists every known job.
type JobsOverview struct {
	FeedJobs         []FeedJobView    `json:"feed_jobs"`
	ImageDownloadJob ImageJobView     `json:"image_download_job"`
	GalleryJobs      []GalleryJobView `json:"gallery_jobs"`
}

// publicPhase hides the metadata step, which is a kind of running.
func publicPhase(p jobs.Phase) jobs.Phase {
	if p == jobs.PhaseFetchingMetadata {
		return jobs.PhaseRunning
	}
	return p
}

func errorOf(s jobs.State) *string {
	if s.Phase != jobs.PhaseFailed {
		return nil
	}
	msg := s.Err
	return &msg
}

func RenderFeed(id models.FeedID, s jobs.State) FeedJobView {
	return FeedJobView{
		Community: id.Community,
		FeedID:    id.FeedID,
		Fetched:   s.Fetched,
		State:     publicPhase(s.Phase),
		Error:     errorOf(s),
	}
}

func RenderImages(s jobs.State) ImageJobView {
	v := ImageJobView{State: publicPhase(s.Phase), Error: errorOf(s)}
	switch s.Phase {
	case jobs.PhaseRunning, jobs.PhaseSuccess, jobs.PhasePartialSuccess:
		v.Total, v.Success, v.Failure = s.Total, s.Success, s.Failure
		v.Failures = s.Failures
	}
	return v
}

func RenderGallery(gid int64, title string, s jobs.State) GalleryJobView {
	v := GalleryJobView{GalleryID: gid, Title: title, State: publicPhase(s.Phase), Error: errorOf(s)}
	switch s.Phase {
	case jobs.PhaseFetchingMetadata:
		v.TotalPages, v.SuccessPages = s.Total, s.Success
	case jobs.PhaseRunning, jobs.PhaseSuccess, jobs.PhasePartialSuccess:
		v.MetadataFetched = true
		v.TotalImages, v.SuccessImages, v.FailureImages = s.Total, s.Success, s.Failure
		v.Failures = s.Failures
	}
	return v
}
