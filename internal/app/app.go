package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"bottle/internal/config"
	"bottle/internal/download"
	"bottle/internal/feedsync"
	"bottle/internal/gallery"
	"bottle/internal/jobs"
	"bottle/internal/metrics"
	"bottle/internal/models"
	"bottle/internal/services"
	"bottle/internal/source"
	"bottle/internal/source/yandere"
	"bottle/internal/store"
	"bottle/internal/store/primary"
	"bottle/internal/tasks"
)

type App struct {
	Config *config.Config

	Store      *primary.StoreImpl
	Bucket     *blob.Bucket
	HTTPClient *http.Client
	// JobClient is nil unless redis.address is set.
	JobClient store.JobClient

	Metrics  *metrics.JobMetrics
	Recorder *services.RunRecorder

	// --- Jobs ---
	Policy       jobs.Policy
	Engine       *feedsync.Engine
	ImageJob     *download.ImageJob
	Orchestrator *gallery.Orchestrator

	FeedJobs    *jobs.Registry[models.FeedID]
	ImageJobs   *jobs.Registry[download.ImageKey]
	GalleryJobs *jobs.Registry[int64]

	// --- Services ---
	FeedService *services.FeedService
	JobService  *services.JobService
}

// Option overrides collaborators NewApp would otherwise build from config.
type Option func(*options)

type options struct {
	clients       source.Clients
	galleryClient gallery.Client
}

// WithClients replaces the community clients. Nil fields stay unconfigured.
func WithClients(c source.Clients) Option {
	return func(o *options) { o.clients = c }
}

func WithGalleryClient(c gallery.Client) Option {
	return func(o *options) { o.galleryClient = c }
}

func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{Config: cfg}

	if err := app.initPrimaryStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initBucket(ctx); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initHTTPClient(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	app.initJobClient()

	o := options{
		clients: source.Clients{
			Yandere: yandere.NewClient(cfg.Communities.Yandere.BaseURL, app.HTTPClient, cfg.Download.UserAgent),
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	app.initJobs(o)

	log.Info("Application initialization complete.")
	return app, nil
}

// --- Private Helper Methods ---

func (a *App) initPrimaryStore(ctx context.Context) error {
	ps, err := primary.NewPrimaryStore(ctx, a.Config.Database.DSN)
	if err != nil {
		return fmt.Errorf("init primary store: %w", err)
	}
	a.Store = ps
	if a.Config.Database.AutoMigrate {
		if err := ps.Migrate(ctx); err != nil {
			ps.Close()
			a.Store = nil
			return fmt.Errorf("migrate primary store: %w", err)
		}
	}
	log.Infof("Primary store ready (%s)", ps.Backend())
	return nil
}

func (a *App) initBucket(ctx context.Context) error {
	bucket, err := blob.OpenBucket(ctx, a.Config.Storage.BucketURL)
	if err != nil {
		return fmt.Errorf("open bucket %q: %w", a.Config.Storage.BucketURL, err)
	}
	a.Bucket = bucket
	return nil
}

func (a *App) initHTTPClient() error {
	client, err := download.NewHTTPClient(a.Config.Retry.Timeout)
	if err != nil {
		return fmt.Errorf("init http client: %w", err)
	}
	a.HTTPClient = client
	return nil
}

func (a *App) initJobClient() {
	if a.Config.Redis.Address == "" {
		log.Debug("redis.address not set, job client disabled")
		return
	}
	a.JobClient = store.NewAsynqJobClient(a.RedisOpt(), tasks.Queue)
}

func (a *App) initJobs(o options) {
	cfg := a.Config
	a.Policy = jobs.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Interval:    cfg.Retry.Interval,
		Timeout:     cfg.Retry.Timeout,
	}

	a.Metrics = metrics.NewJobMetrics()
	a.Recorder = services.NewRunRecorder(a.Store)
	observer := jobs.MultiObserver(a.Recorder, a.Metrics)

	fetcher := download.NewDownloader(a.Bucket, a.HTTPClient, cfg.Download.UserAgent)
	a.Engine = feedsync.NewEngine(feedsync.StoreLoader(a.Store, o.clients), a.Policy, cfg.Sync.Delay)
	a.ImageJob = download.NewImageJob(a.Store, fetcher, a.Policy, cfg.Download.Concurrency, cfg.Download.Overwrite)
	a.Orchestrator = gallery.NewOrchestrator(a.Store, o.galleryClient, fetcher, a.Policy, gallery.Options{
		Concurrency: cfg.Download.Concurrency,
		Overwrite:   cfg.Download.Overwrite,
		Delay:       cfg.Gallery.Delay,
		MaxDrift:    cfg.Gallery.MaxDrift,
	})

	// Feeds of one community sync one at a time; communities run in parallel.
	a.FeedJobs = jobs.NewRegistry(models.JobKindFeedSync,
		func(id models.FeedID) string { return string(id.Community) },
		a.Engine.Run, observer)
	a.ImageJobs = jobs.NewRegistry(models.JobKindImageDownload, nil, a.ImageJob.Run, observer)
	a.GalleryJobs = jobs.NewRegistry(models.JobKindGalleryDownload, nil, a.Orchestrator.Run, observer)

	a.FeedService = services.NewFeedService(a.Store)
	a.JobService = services.NewJobService(a.FeedJobs, a.ImageJobs, a.GalleryJobs, a.Store, a.Store)
}

// RedisOpt is the asynq connection built from the redis section.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// Ping checks the store and the bucket.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Store.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := a.Bucket.IsAccessible(ctx); err != nil {
		return fmt.Errorf("bucket check failed: %w", err)
	}
	return nil
}

func (a *App) cleanupPartialInit() {
	log.Warn("Cleaning up partially initialized application...")
	a.Close()
}

// Close releases every resource the app opened. Registry workers must have
// been stopped by the caller.
func (a *App) Close() {
	if a.JobClient != nil {
		if err := a.JobClient.Close(); err != nil {
			log.Warnf("Failed to close job client: %v", err)
		}
		a.JobClient = nil
	}
	if a.Bucket != nil {
		if err := a.Bucket.Close(); err != nil {
			log.Warnf("Failed to close bucket: %v", err)
		}
		a.Bucket = nil
	}
	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}
	if a.Store != nil {
		a.Store.Close()
		a.Store = nil
	}
}
