package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bottle/internal/app"
	"bottle/internal/tasks"
	"bottle/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job registries and the trigger queue consumer",
	Long: `Starts the job registries headless, consumes trigger tasks from Redis and
enqueues the configured schedules.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		if appInstance.Config.Redis.Address == "" {
			return errors.New("worker needs redis.address")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		appInstance.JobService.Start(ctx)
		stopQueue, err := startQueue(appInstance)
		if err != nil {
			cancel()
			appInstance.JobService.Wait()
			return err
		}

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
		<-shutdown

		log.Info("Shutdown signal received. Initiating graceful shutdown...")
		stopQueue()
		cancel()
		appInstance.JobService.Wait()
		log.Info("Worker shutdown complete.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// startQueue runs the asynq consumer and, when schedules are configured, the
// periodic scheduler. The returned func stops both.
func startQueue(appInstance *app.App) (func(), error) {
	cfg := appInstance.Config
	redisOpts := appInstance.RedisOpt()

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      cfg.Worker.Queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.WithFields(log.Fields{
					"type":    task.Type(),
					"payload": string(task.Payload()),
				}).Errorf("Trigger task failed: %v", err)
			}),
			Logger: log.StandardLogger(),
		},
	)

	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, appInstance.JobService)

	log.Infof("Starting trigger consumer (Concurrency: %d, Queues: %v)...", cfg.Worker.Concurrency, cfg.Worker.Queues)
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start asynq server: %w", err)
	}

	entries, err := worker.ScheduleEntries(cfg)
	if err != nil {
		srv.Shutdown()
		return nil, err
	}
	scheduler, err := worker.NewScheduler(redisOpts, entries, tasks.Queue)
	if err != nil {
		srv.Shutdown()
		return nil, err
	}
	if scheduler != nil {
		if err := scheduler.Start(); err != nil {
			srv.Shutdown()
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	return func() {
		if scheduler != nil {
			scheduler.Shutdown()
		}
		srv.Stop()
		srv.Shutdown()
	}, nil
}
