package worker

import (
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"bottle/internal/config"
	"bottle/internal/models"
	"bottle/internal/tasks"
)

// Entry is one periodic trigger.
type Entry struct {
	Cron string
	Task *asynq.Task
}

// ScheduleEntries turns the schedule config section into periodic triggers.
func ScheduleEntries(cfg *config.Config) ([]Entry, error) {
	var entries []Entry
	for i, s := range cfg.Schedule.Feeds {
		for _, key := range s.Feeds {
			id, err := models.ParseFeedID(key)
			if err != nil {
				return nil, fmt.Errorf("schedule.feeds[%d]: %w", i, err)
			}
			task, err := tasks.NewFeedSyncTask(id)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Cron: s.Cron, Task: task})
		}
	}
	if cfg.Schedule.Images != "" {
		entries = append(entries, Entry{Cron: cfg.Schedule.Images, Task: tasks.NewImageDownloadTask()})
	}
	return entries, nil
}

// NewScheduler registers entries on an asynq scheduler. It returns nil when
// there is nothing to schedule.
func NewScheduler(opt asynq.RedisClientOpt, entries []Entry, queue string) (*asynq.Scheduler, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.WithError(err).Warn("Scheduled trigger was not enqueued")
			}
		},
	})
	for _, e := range entries {
		id, err := scheduler.Register(e.Cron, e.Task, asynq.Queue(queue))
		if err != nil {
			return nil, fmt.Errorf("register %s on %q: %w", e.Task.Type(), e.Cron, err)
		}
		log.WithFields(log.Fields{"entry": id, "type": e.Task.Type(), "cron": e.Cron}).Info("Scheduled trigger")
	}
	return scheduler, nil
}
