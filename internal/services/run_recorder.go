package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"bottle/internal/jobs"
	"bottle/internal/models"
	"bottle/internal/store"
)

// RunRecorder writes every registry run to the job_runs table. Recording
// failures are logged and never affect the job.
type RunRecorder struct {
	store store.JobStore
	now   func() time.Time
}

var _ jobs.Observer = (*RunRecorder)(nil)

func NewRunRecorder(st store.JobStore) *RunRecorder {
	return &RunRecorder{store: st, now: func() time.Time { return time.Now().UTC() }}
}

func (r *RunRecorder) JobStarted(ctx context.Context, kind, key string) func(jobs.State, time.Duration) {
	run := &models.JobRun{
		ID:        uuid.New(),
		Kind:      kind,
		JobKey:    key,
		State:     string(jobs.PhaseRunning),
		StartedAt: r.now(),
	}
	if err := r.store.RecordJobStart(ctx, run); err != nil {
		log.WithFields(log.Fields{"kind": kind, "key": key}).Warnf("Failed to record job start: %v", err)
		return func(jobs.State, time.Duration) {}
	}

	return func(final jobs.State, _ time.Duration) {
		finished := r.now()
		run.State = string(final.Phase)
		run.Total, run.Success, run.Failure = final.Total, final.Success, final.Failure
		if final.Fetched > 0 {
			run.Total, run.Success = final.Fetched, final.Fetched
		}
		if final.Err != "" {
			msg := final.Err
			run.Error = &msg
		}
		run.FinishedAt = &finished
		if err := r.store.RecordJobFinish(ctx, run); err != nil {
			log.WithFields(log.Fields{"kind": kind, "key": key}).Warnf("Failed to record job finish: %v", err)
		}
	}
}

func (r *RunRecorder) ListRuns(ctx context.Context, kind string, limit int) ([]*models.JobRun, error) {
	return r.store.ListJobRuns(ctx, kind, limit)
}
