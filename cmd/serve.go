package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawler service",
		Long: `Starts the management HTTP API and the crawl scheduler. URLs are
accepted over the API, admitted through the frontier, and fetched by the
worker pool until the process receives SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	errCh := make(chan error, 2)
	go func() {
		errCh <- app.server.ListenAndServe()
	}()
	go func() {
		errCh <- app.scheduler.Run(ctx)
	}()
	go app.checkpointLoop(ctx)

	logger.Info("crawler service started",
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Crawler.WorkerCount),
		zap.Int("max_concurrent", cfg.Crawler.MaxConcurrentRequests),
		zap.String("db_provider", cfg.DB.Provider),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown failed", zap.Error(err))
	}
	logger.Info("crawler service stopped")
	return nil
}
