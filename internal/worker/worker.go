// Package worker implements the scheduling loop that drains the frontier
// through a bounded pool of fetch tasks.
package worker

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kbryner/webfrontier/internal/blob"
	"github.com/kbryner/webfrontier/internal/events"
	"github.com/kbryner/webfrontier/internal/fetch"
	"github.com/kbryner/webfrontier/internal/frontier"
	"github.com/kbryner/webfrontier/internal/metrics"
	"github.com/kbryner/webfrontier/internal/pipeline"
	"github.com/kbryner/webfrontier/internal/politeness"
)

// Frontier is the scheduler's view of the frontier: pop eligible work,
// report completions, and feed discovered links back in.
type Frontier interface {
	NextBatch(ctx context.Context, maxSize int) []frontier.Candidate
	MarkComplete(ctx context.Context, c frontier.Candidate, success bool, stats *frontier.CrawlStats) error
	Add(ctx context.Context, rawURL string, opts frontier.AddOptions) (bool, error)
}

// Config bounds the scheduler.
type Config struct {
	// MaxConcurrent is the global ceiling on in-flight fetches.
	MaxConcurrent int64
	// BatchSize bounds each frontier pop.
	BatchSize int
	// IdleBackoff is the wait before re-polling an empty frontier.
	IdleBackoff time.Duration
	// GracePeriod bounds the shutdown wait for in-flight tasks.
	GracePeriod time.Duration
	// Retry bounds per-URL retry attempts.
	Retry fetch.RetryPolicy
	// FollowLinks feeds links discovered in fetched pages back into the
	// frontier.
	FollowLinks bool
}

// Scheduler owns all frontier pops. Workers never dequeue directly; the
// single loop preserves priority order and politeness invariants, and a
// weighted semaphore enforces the concurrency ceiling with
// first-completed-wins admission.
type Scheduler struct {
	cfg      Config
	frontier Frontier
	fetcher  fetch.Fetcher
	guard    *politeness.Guard
	pipeline *pipeline.Pipeline
	blobs    blob.Store
	logger   *zap.Logger

	sem *semaphore.Weighted
}

// Options wires the scheduler's collaborators. Guard, Pipeline, and Blobs
// are optional.
type Options struct {
	Frontier Frontier
	Fetcher  fetch.Fetcher
	Guard    *politeness.Guard
	Pipeline *pipeline.Pipeline
	Blobs    blob.Store
	Logger   *zap.Logger
}

// New builds a Scheduler.
func New(cfg Config, opts Options) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = time.Second
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		frontier: opts.Frontier,
		fetcher:  opts.Fetcher,
		guard:    opts.Guard,
		pipeline: opts.Pipeline,
		blobs:    opts.Blobs,
		logger:   logger,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Run drives the scheduling loop until ctx is canceled, then stops issuing
// dispatches, cancels in-flight tasks cooperatively, and waits up to the
// grace period for them to finish. Per-URL failures never abort the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()

	var wg sync.WaitGroup

	for ctx.Err() == nil {
		batch := s.frontier.NextBatch(ctx, s.cfg.BatchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.IdleBackoff):
			}
			continue
		}
		for _, c := range batch {
			// Saturation: wait for a completion before dispatching more.
			if err := s.sem.Acquire(ctx, 1); err != nil {
				s.logger.Debug("dispatch aborted during shutdown", zap.String("url", c.URL))
				break
			}
			wg.Add(1)
			go func(c frontier.Candidate) {
				defer wg.Done()
				defer s.sem.Release(1)
				metrics.IncActiveWorkers()
				defer metrics.DecActiveWorkers()
				s.process(taskCtx, c)
			}(c)
		}
	}

	cancelTasks()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.GracePeriod):
		s.logger.Warn("abandoning in-flight fetches after grace period")
	}
	return ctx.Err()
}

// process runs one candidate to a terminal outcome. Retry is owned here, by
// the in-flight task; the URL is never returned to the shared queue.
func (s *Scheduler) process(ctx context.Context, c frontier.Candidate) {
	attempts := 0
	for {
		if s.guard != nil {
			if err := s.guard.Wait(ctx, c.Domain); err != nil {
				s.logger.Debug("abandoning fetch during shutdown", zap.String("url", c.URL))
				return
			}
		}
		resp, err := s.fetcher.Fetch(ctx, fetch.Request{URL: c.URL})
		attempts++

		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.completeSuccess(ctx, c, resp, attempts-1)
			return
		}
		if ctx.Err() != nil {
			// Shutdown mid-fetch: abandoned, not a terminal outcome.
			s.logger.Debug("abandoning fetch during shutdown", zap.String("url", c.URL))
			return
		}
		if s.cfg.Retry.ShouldRetry(attempts, resp.StatusCode, err) {
			delay := s.cfg.Retry.Delay(attempts)
			s.logger.Debug("retrying fetch",
				zap.String("url", c.URL),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", delay),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		s.completeFailure(ctx, c, resp, err, attempts-1)
		return
	}
}

func (s *Scheduler) completeSuccess(ctx context.Context, c frontier.Candidate, resp fetch.Response, retries int) {
	rec := &pipeline.Record{URL: c.URL, Body: resp.Body}
	if s.pipeline != nil {
		if err := s.pipeline.Run(ctx, rec); err != nil {
			s.logger.Warn("pipeline failed", zap.String("url", c.URL), zap.Error(err))
		}
	}
	s.storePage(ctx, c, resp)
	if s.cfg.FollowLinks {
		s.followLinks(ctx, rec)
	}

	stats := &frontier.CrawlStats{
		StatusCode:    resp.StatusCode,
		Duration:      resp.Duration,
		ContentLength: int64(len(resp.Body)),
		QualityScore:  rec.QualityScore,
		Retries:       retries,
		Outcome:       events.OutcomeSuccess,
	}
	if err := s.frontier.MarkComplete(ctx, c, true, stats); err != nil {
		s.logger.Error("mark complete failed", zap.String("url", c.URL), zap.Error(err))
	}
}

func (s *Scheduler) completeFailure(ctx context.Context, c frontier.Candidate, resp fetch.Response, fetchErr error, retries int) {
	stats := &frontier.CrawlStats{
		StatusCode: resp.StatusCode,
		Duration:   resp.Duration,
		Retries:    retries,
		Outcome:    fetch.Classify(resp.StatusCode, fetchErr),
	}
	s.logger.Info("fetch failed",
		zap.String("url", c.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("retries", retries),
		zap.String("outcome", string(stats.Outcome)),
		zap.Error(fetchErr),
	)
	if err := s.frontier.MarkComplete(ctx, c, false, stats); err != nil {
		s.logger.Error("mark complete failed", zap.String("url", c.URL), zap.Error(err))
	}
}

func (s *Scheduler) storePage(ctx context.Context, c frontier.Candidate, resp fetch.Response) {
	if s.blobs == nil || len(resp.Body) == 0 {
		return
	}
	contentType := "text/html"
	if resp.Headers != nil {
		if ct := resp.Headers.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	}
	name := blob.ObjectName(c.URL, time.Now())
	if _, err := s.blobs.PutObject(ctx, name, contentType, bytes.NewReader(resp.Body)); err != nil {
		s.logger.Warn("store page failed", zap.String("url", c.URL), zap.Error(err))
	}
}

func (s *Scheduler) followLinks(ctx context.Context, rec *pipeline.Record) {
	for _, link := range rec.Links {
		relevance := rec.LinkScores[link]
		opts := frontier.AddOptions{}
		if relevance > 0 {
			opts.ContentRelevance = &relevance
		}
		if _, err := s.frontier.Add(ctx, link, opts); err != nil {
			s.logger.Warn("enqueue discovered link failed", zap.String("url", link), zap.Error(err))
			return
		}
	}
}
