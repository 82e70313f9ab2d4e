package cmd

import (
	"context"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/kbryner/webfrontier/internal/api"
	"github.com/kbryner/webfrontier/internal/blob"
	"github.com/kbryner/webfrontier/internal/config"
	"github.com/kbryner/webfrontier/internal/dedup"
	"github.com/kbryner/webfrontier/internal/events"
	"github.com/kbryner/webfrontier/internal/events/sinks"
	"github.com/kbryner/webfrontier/internal/fetch"
	"github.com/kbryner/webfrontier/internal/frontier"
	"github.com/kbryner/webfrontier/internal/pipeline"
	"github.com/kbryner/webfrontier/internal/politeness"
	"github.com/kbryner/webfrontier/internal/score"
	"github.com/kbryner/webfrontier/internal/store/memory"
	"github.com/kbryner/webfrontier/internal/store/postgres"
	"github.com/kbryner/webfrontier/internal/worker"
)

// application holds the wired service graph shared by the serve and crawl
// commands.
type application struct {
	cfg       config.Config
	logger    *zap.Logger
	store     frontier.Store
	hub       *events.Hub
	frontier  *frontier.Frontier
	guard     *politeness.Guard
	scheduler *worker.Scheduler
	server    *api.Server
}

// buildApp assembles the crawler from configuration: store, dedup filter,
// politeness, scoring, events, frontier, fetcher, worker pool, and API.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*application, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	filter := dedup.New(dedup.Config{
		Capacity:          cfg.Dedup.Capacity,
		FalsePositiveRate: cfg.Dedup.FalsePositiveRate,
	})
	guard := politeness.NewGuard(cfg.PolitenessDelay(), cfg.Frontier.DomainRPS)
	robots := politeness.NewRobotsCache(cfg.Crawler.UserAgent, logger)

	hub, err := buildHub(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	fr, err := frontier.New(frontier.Options{
		Dedup:           filter,
		Robots:          robots,
		Guard:           guard,
		Scorer:          score.NewPrioritizer(),
		Store:           store,
		Events:          hub,
		Logger:          logger,
		AllowedDomains:  cfg.Frontier.AllowedDomains,
		ExcludedDomains: cfg.Frontier.ExcludedDomains,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build frontier: %w", err)
	}
	if err := fr.RestoreFilter(ctx); err != nil {
		logger.Warn("restore dedup filter failed, starting empty", zap.Error(err))
	}

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.RequestTimeout(),
		Headers:   cfg.Crawler.CustomHeaders,
		MaxConns:  cfg.Crawler.MaxConcurrentRequests,
	})

	scheduler := worker.New(worker.Config{
		MaxConcurrent: int64(cfg.Crawler.WorkerCount),
		BatchSize:     cfg.Frontier.BatchSize,
		Retry: fetch.RetryPolicy{
			MaxRetries:      cfg.Crawler.MaxRetries,
			PolitenessDelay: cfg.PolitenessDelay(),
		},
		FollowLinks: true,
	}, worker.Options{
		Frontier: fr,
		Fetcher:  fetcher,
		Guard:    guard,
		Pipeline: pipeline.New(logger),
		Blobs:    blobs,
		Logger:   logger,
	})

	return &application{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		hub:       hub,
		frontier:  fr,
		guard:     guard,
		scheduler: scheduler,
		server:    api.NewServer(cfg, logger, fr),
	}, nil
}

func buildStore(ctx context.Context, cfg config.Config) (frontier.Store, error) {
	switch cfg.DB.Provider {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("build postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
}

func buildHub(ctx context.Context, cfg config.Config, logger *zap.Logger) (*events.Hub, error) {
	hubSinks := []events.Sink{
		sinks.NewLogSink(logger),
		sinks.NewPrometheusSink(),
	}
	if cfg.PubSub.Enabled {
		ps, err := sinks.NewPubSubSink(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("build pubsub sink: %w", err)
		}
		hubSinks = append(hubSinks, ps)
	}
	return events.NewHub(events.Config{Logger: logger}, hubSinks...), nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch cfg.Blob.Provider {
	case "", "local":
		store, err := blob.NewLocal(cfg.Blob.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("build local blob store: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs client: %w", err)
		}
		store, err := blob.NewGCS(client, cfg.Blob.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("build gcs blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob provider %q", cfg.Blob.Provider)
	}
}

// checkpointLoop snapshots the dedup filter on the configured interval until
// ctx is canceled.
func (a *application) checkpointLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.Dedup.SnapshotIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.frontier.CheckpointFilter(ctx); err != nil {
				a.logger.Warn("periodic filter checkpoint failed", zap.Error(err))
			}
		}
	}
}

// close flushes the dedup filter, drains the event hub, and releases the
// store. Called once after the serving loops have stopped.
func (a *application) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.frontier.CheckpointFilter(ctx); err != nil {
		a.logger.Warn("final filter checkpoint failed", zap.Error(err))
	}
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("event hub close failed", zap.Error(err))
	}
	a.store.Close()
}
