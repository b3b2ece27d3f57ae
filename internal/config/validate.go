package config

import (
	"errors"
	"fmt"
	"strings"

	"bottle/internal/models"
)

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Storage.BucketURL == "" {
		return errors.New("storage.bucket_url is required")
	}

	if c.Download.Concurrency <= 0 {
		return errors.New("download.concurrency must be a positive integer")
	}

	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be a positive integer")
	}
	if c.Retry.Interval < 0 {
		return errors.New("retry.interval cannot be negative")
	}
	if c.Retry.Timeout <= 0 {
		return errors.New("retry.timeout must be positive")
	}
	if c.Sync.Delay < 0 {
		return errors.New("sync.delay cannot be negative")
	}
	if c.Gallery.MaxDrift <= 0 {
		return errors.New("gallery.max_drift must be a positive integer")
	}
	if c.Gallery.Delay < 0 {
		return errors.New("gallery.delay cannot be negative")
	}

	// Worker and schedules only matter with Redis.
	if c.Redis.Address != "" {
		if c.Worker.Concurrency <= 0 {
			return errors.New("worker.concurrency must be a positive integer")
		}
		if len(c.Worker.Queues) == 0 {
			return errors.New("worker.queues must define at least one queue")
		}
		for name, priority := range c.Worker.Queues {
			if name == "" {
				return errors.New("worker.queues contains an empty queue name")
			}
			if priority <= 0 {
				return fmt.Errorf("worker.queues priority for queue '%s' must be positive", name)
			}
		}
	}
	for i, s := range c.Schedule.Feeds {
		if strings.TrimSpace(s.Cron) == "" {
			return fmt.Errorf("schedule.feeds[%d].cron is required", i)
		}
		if len(s.Feeds) == 0 {
			return fmt.Errorf("schedule.feeds[%d] lists no feeds", i)
		}
		for _, f := range s.Feeds {
			if _, err := models.ParseFeedID(f); err != nil {
				return fmt.Errorf("schedule.feeds[%d]: %w", i, err)
			}
		}
	}
	if (len(c.Schedule.Feeds) > 0 || c.Schedule.Images != "") && c.Redis.Address == "" {
		return errors.New("schedules need redis.address")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
