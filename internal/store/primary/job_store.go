package primary

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"bottle/internal/models"
	"bottle/internal/store"
)

// --- Job Store Implementation ---

var _ store.JobStore = (*StoreImpl)(nil)

// RecordJobStart inserts a job_runs row for a run that just left the queue.
func (s *StoreImpl) RecordJobStart(ctx context.Context, run *models.JobRun) error {
	query := `
		INSERT INTO job_runs (id, kind, job_key, state, total, success, failure, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.exec(ctx, query, run.ID, run.Kind, run.JobKey, run.State, run.Total, run.Success, run.Failure, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to record job start for %s: %w", run.ID, err)
	}
	log.Debugf("Recorded start of %s job %s (%s)", run.Kind, run.JobKey, run.ID)
	return nil
}

// RecordJobFinish stores the terminal state of a run.
func (s *StoreImpl) RecordJobFinish(ctx context.Context, run *models.JobRun) error {
	query := `
		UPDATE job_runs
		SET state = $1, total = $2, success = $3, failure = $4, error = $5, finished_at = $6
		WHERE id = $7`
	n, err := s.db.exec(ctx, query, run.State, run.Total, run.Success, run.Failure, run.Error, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to record job finish for %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("job run %s: %w", run.ID, store.ErrNotFound)
	}
	return nil
}

// ListJobRuns returns the most recent runs first, optionally filtered by kind.
func (s *StoreImpl) ListJobRuns(ctx context.Context, kind string, limit int) ([]*models.JobRun, error) {
	const columns = `id, kind, job_key, state, total, success, failure, error, started_at, finished_at`
	var (
		rs  rows
		err error
	)
	if kind == "" {
		rs, err = s.db.query(ctx, `SELECT `+columns+` FROM job_runs ORDER BY started_at DESC LIMIT $1`, limit)
	} else {
		rs, err = s.db.query(ctx, `SELECT `+columns+` FROM job_runs WHERE kind = $1 ORDER BY started_at DESC LIMIT $2`, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rs.Close()

	var runs []*models.JobRun
	for rs.Next() {
		var r models.JobRun
		err := rs.Scan(&r.ID, &r.Kind, &r.JobKey, &r.State, &r.Total, &r.Success, &r.Failure, &r.Error, &r.StartedAt, &r.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rs.Err()
}
