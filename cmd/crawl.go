package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kbryner/webfrontier/internal/frontier"
)

func newCrawlCmd() *cobra.Command {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "crawl [urls...]",
		Short: "Run a one-shot crawl from seed URLs",
		Long: `Seeds the frontier from the given URLs (or a file with one URL per
line), crawls until the frontier drains, and exits. Discovered links are
followed subject to the configured domain allow and exclude lists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, seedFile)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "file containing seed URLs, one per line")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string, seedFile string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	seeds, err := collectSeeds(args, seedFile)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return errors.New("no seed URLs: pass them as arguments or via --seed-file")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	accepted := 0
	for _, seed := range seeds {
		ok, err := app.frontier.Add(ctx, seed, frontier.AddOptions{})
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed, err)
		}
		if ok {
			accepted++
		}
	}
	logger.Info("frontier seeded",
		zap.Int("seeds", len(seeds)),
		zap.Int("accepted", accepted),
	)
	if accepted == 0 {
		return nil
	}

	crawlCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go app.watchDrain(crawlCtx, cancel)
	go app.checkpointLoop(crawlCtx)

	if err := app.scheduler.Run(crawlCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run scheduler: %w", err)
	}

	snap := app.frontier.Stats()
	logger.Info("crawl finished",
		zap.Int64("discovered", snap.Discovered),
		zap.Int64("completed", snap.Completed),
		zap.Int64("failed", snap.Failed),
	)
	return nil
}

// watchDrain cancels the crawl once every admitted URL has reached a terminal
// outcome. Two consecutive drained observations are required so links
// discovered by in-flight fetches get a chance to enqueue.
func (a *application) watchDrain(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	drained := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.frontier.Stats()
			if snap.QueueSize == 0 && snap.Completed+snap.Failed >= snap.Discovered {
				drained++
				if drained >= 2 {
					cancel()
					return
				}
			} else {
				drained = 0
			}
		}
	}
}

func collectSeeds(args []string, seedFile string) ([]string, error) {
	seeds := append([]string(nil), args...)
	if seedFile == "" {
		return seeds, nil
	}
	f, err := os.Open(seedFile)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return seeds, nil
}
