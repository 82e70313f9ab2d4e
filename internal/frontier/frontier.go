package frontier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kbryner/webfrontier/internal/dedup"
	"github.com/kbryner/webfrontier/internal/events"
	"github.com/kbryner/webfrontier/internal/metrics"
	"github.com/kbryner/webfrontier/internal/politeness"
	"github.com/kbryner/webfrontier/internal/score"
)

// Options wires the frontier's collaborators. Zero-value fields get safe
// defaults where one exists; Store is required.
type Options struct {
	Dedup  *dedup.Filter
	Robots RobotsChecker
	Guard  *politeness.Guard
	Scorer *score.Prioritizer
	Store  Store
	Events Emitter
	Logger *zap.Logger

	// AllowedDomains restricts discovery to the listed domains when
	// non-empty. ExcludedDomains always rejects. Matching is by exact host
	// or parent-domain suffix, case-insensitive.
	AllowedDomains  []string
	ExcludedDomains []string
}

// AddOptions carries the optional discovery-time signals for one URL.
type AddOptions struct {
	// Priority, when positive, overrides the computed final score.
	Priority float64
	// ContentRelevance is an externally supplied relevance signal in [0, n).
	ContentRelevance *float64
}

type attemptState struct {
	dispatched int64
	reported   int64
}

// Frontier coordinates deduplication, robots policy, politeness, scoring,
// the priority queue, and completion accounting. All mutations of queue and
// counter state happen under one mutex so concurrent producers and the
// scheduler never dispatch a URL twice.
type Frontier struct {
	dedup  *dedup.Filter
	robots RobotsChecker
	guard  *politeness.Guard
	scorer *score.Prioritizer
	store  Store
	events Emitter
	logger *zap.Logger

	allowed  []string
	excluded []string

	mu         sync.Mutex
	queue      *queue
	attempts   map[string]*attemptState
	discovered int64
	completed  int64
	failed     int64
}

// New builds a Frontier from the given options.
func New(opts Options) (*Frontier, error) {
	if opts.Store == nil {
		return nil, errors.New("frontier: store is required")
	}
	if opts.Dedup == nil {
		opts.Dedup = dedup.New(dedup.Config{})
	}
	if opts.Robots == nil {
		opts.Robots = politeness.AllowAll{}
	}
	if opts.Guard == nil {
		opts.Guard = politeness.NewGuard(time.Second, 0)
	}
	if opts.Scorer == nil {
		opts.Scorer = score.NewPrioritizer()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Frontier{
		dedup:    opts.Dedup,
		robots:   opts.Robots,
		guard:    opts.Guard,
		scorer:   opts.Scorer,
		store:    opts.Store,
		events:   opts.Events,
		logger:   opts.Logger,
		allowed:  lowerAll(opts.AllowedDomains),
		excluded: lowerAll(opts.ExcludedDomains),
		queue:    newQueue(),
		attempts: make(map[string]*attemptState),
	}, nil
}

// Add offers a URL to the frontier. It returns (false, nil) for malformed,
// disallowed, duplicate, and robots-rejected URLs: rejection is a normal
// outcome, not a failure. A non-nil error means the backing store is
// unavailable and the URL's admission is unknown.
func (f *Frontier) Add(ctx context.Context, rawURL string, opts AddOptions) (bool, error) {
	normalized, parsed, err := Normalize(rawURL)
	if err != nil {
		f.logger.Debug("rejecting malformed url", zap.String("url", rawURL), zap.Error(err))
		return false, nil
	}
	domain := parsed.Hostname()
	if !f.domainPermitted(domain) {
		return false, nil
	}

	fp := Fingerprint(normalized)
	if f.dedup.MightContain(fp) {
		return false, nil
	}
	if !f.robots.Allowed(ctx, normalized) {
		f.logger.Debug("rejecting robots-disallowed url", zap.String("url", normalized))
		return false, nil
	}
	// The filter is the admission gate: exactly one of any set of racing
	// adds for the same fingerprint wins.
	if !f.dedup.AddIfNew(fp) {
		return false, nil
	}

	domainStats, err := f.domainStats(ctx, domain)
	if err != nil {
		return false, err
	}
	// The dedup gate means this URL has never been crawled, so no
	// LastCrawled is passed and it scores maximal freshness.
	breakdown := f.scorer.Score(normalized, score.Input{
		DomainStats:      domainStats.Signal(),
		ContentRelevance: opts.ContentRelevance,
	})
	priority := breakdown.Final
	if opts.Priority > 0 {
		priority = opts.Priority
		breakdown.Final = opts.Priority
	}

	rec := &URLRecord{
		URL:         normalized,
		Fingerprint: fp,
		Domain:      domain,
		Path:        parsed.Path,
		Scores:      breakdown,
		Status:      StatusQueued,
		EnqueuedAt:  time.Now(),
	}
	if err := f.store.SaveURL(ctx, rec); err != nil {
		return false, fmt.Errorf("persist url record: %w", err)
	}

	f.mu.Lock()
	f.queue.Upsert(fp, normalized, domain, priority)
	f.discovered++
	size := f.queue.Len()
	depth := f.queue.DomainDepth(domain)
	f.mu.Unlock()

	metrics.ObserveDiscovered()
	metrics.SetFrontierSize(size)
	metrics.SetDomainQueueSize(domain, depth)
	f.emit(events.Event{
		Stage:  events.StageDiscovered,
		URL:    normalized,
		Domain: domain,
		At:     time.Now(),
	})
	return true, nil
}

// NextBatch pops up to maxSize of the highest-scoring URLs whose domains are
// politeness-eligible right now. Ineligible entries are skipped and re-queued
// untouched rather than blocking the batch. Each returned candidate carries a
// fresh attempt token and its domain's last-dispatch stamp is already
// recorded; popped entries never reappear in a later batch.
func (f *Frontier) NextBatch(ctx context.Context, maxSize int) []Candidate {
	if maxSize <= 0 {
		return nil
	}

	f.mu.Lock()
	batch := make([]Candidate, 0, maxSize)
	var skipped []*queueEntry
	for len(batch) < maxSize {
		e, ok := f.queue.PopMax()
		if !ok {
			break
		}
		if !f.guard.ClaimIfEligible(e.domain) {
			skipped = append(skipped, e)
			continue
		}
		st := f.attempts[e.fingerprint]
		if st == nil {
			st = &attemptState{}
			f.attempts[e.fingerprint] = st
		}
		st.dispatched++
		batch = append(batch, Candidate{
			URL:         e.url,
			Fingerprint: e.fingerprint,
			Domain:      e.domain,
			Score:       e.score,
			Attempt:     st.dispatched,
		})
	}
	for _, e := range skipped {
		f.queue.Upsert(e.fingerprint, e.url, e.domain, e.score)
	}
	size := f.queue.Len()
	f.mu.Unlock()

	metrics.SetFrontierSize(size)
	for _, c := range batch {
		f.markDispatched(ctx, c)
	}
	return batch
}

func (f *Frontier) markDispatched(ctx context.Context, c Candidate) {
	rec, err := f.store.GetURL(ctx, c.Fingerprint)
	if err != nil {
		f.logger.Warn("load url record for dispatch", zap.String("url", c.URL), zap.Error(err))
		return
	}
	rec.Status = StatusDispatched
	if err := f.store.SaveURL(ctx, rec); err != nil {
		f.logger.Warn("persist dispatch status", zap.String("url", c.URL), zap.Error(err))
	}
}

// MarkComplete records the terminal outcome of a dispatched candidate. It is
// idempotent per (url, attempt): duplicate reports for the same attempt do
// not double-count domain statistics. Store failures are surfaced.
func (f *Frontier) MarkComplete(ctx context.Context, c Candidate, success bool, stats *CrawlStats) error {
	f.mu.Lock()
	st := f.attempts[c.Fingerprint]
	if st == nil || c.Attempt <= st.reported {
		f.mu.Unlock()
		return nil
	}
	st.reported = c.Attempt
	if st.reported >= st.dispatched {
		// Fully reported. The dedup gate prevents re-dispatch, and an
		// unknown fingerprint above is treated as already reported, so
		// dropping the entry keeps idempotency while bounding the map.
		delete(f.attempts, c.Fingerprint)
	}
	if success {
		f.completed++
	} else {
		f.failed++
	}
	f.mu.Unlock()

	now := time.Now()
	if err := f.updateRecord(ctx, c, success, stats, now); err != nil {
		return err
	}
	if err := f.updateDomain(ctx, c.Domain, success, stats, now); err != nil {
		return err
	}

	outcome := events.OutcomeSuccess
	stage := events.StageFetchDone
	if stats != nil && stats.Outcome != "" {
		outcome = stats.Outcome
	}
	if !success {
		stage = events.StageFetchFailed
		if outcome == events.OutcomeSuccess {
			outcome = events.OutcomeWorkerError
		}
		metrics.ObserveCrawlFailure(string(outcome))
	} else if stats != nil {
		metrics.ObserveCrawlSuccess(int(stats.ContentLength), stats.Duration)
	}
	ev := events.Event{
		Stage:   stage,
		URL:     c.URL,
		Domain:  c.Domain,
		Outcome: outcome,
		At:      now,
	}
	if stats != nil {
		ev.StatusCode = stats.StatusCode
		ev.Bytes = stats.ContentLength
		ev.Duration = stats.Duration
	}
	f.emit(ev)
	return nil
}

func (f *Frontier) updateRecord(ctx context.Context, c Candidate, success bool, stats *CrawlStats, now time.Time) error {
	rec, err := f.store.GetURL(ctx, c.Fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			rec = &URLRecord{
				URL:         c.URL,
				Fingerprint: c.Fingerprint,
				Domain:      c.Domain,
				EnqueuedAt:  now,
			}
		} else {
			return fmt.Errorf("load url record: %w", err)
		}
	}
	rec.LastCrawled = &now
	rec.Status = StatusCompleted
	if !success {
		rec.Status = StatusFailed
	}
	if stats != nil {
		rec.Retries = stats.Retries
	}
	if err := f.store.SaveURL(ctx, rec); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}
	return nil
}

func (f *Frontier) updateDomain(ctx context.Context, domain string, success bool, stats *CrawlStats, now time.Time) error {
	ds, err := f.domainStats(ctx, domain)
	if err != nil {
		return err
	}
	if ds == nil {
		ds = &DomainStats{Domain: domain}
	}
	ds.TotalCount++
	if success {
		ds.SuccessCount++
	} else {
		ds.FailureCount++
	}
	ds.LastCrawled = now

	var crawlSeconds float64
	var contentLength int64
	var quality float64
	if stats != nil {
		crawlSeconds = stats.Duration.Seconds()
		contentLength = stats.ContentLength
		quality = stats.QualityScore
		ds.AvgCrawlTime = rollAverage(ds.AvgCrawlTime, crawlSeconds, ds.TotalCount)
		if success {
			ds.AvgContentLength = rollAverage(ds.AvgContentLength, float64(contentLength), ds.SuccessCount)
		}
	}
	ds.Score = score.DomainScore(quality, crawlSeconds, contentLength)
	f.scorer.SetDomainScore(domain, ds.Score)

	if err := f.store.SaveDomain(ctx, ds); err != nil {
		return fmt.Errorf("persist domain stats: %w", err)
	}
	return nil
}

// Stats returns a point-in-time snapshot of frontier counters and depth.
func (f *Frontier) Stats() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		QueueSize:    f.queue.Len(),
		DomainDepths: f.queue.DomainDepths(),
		Discovered:   f.discovered,
		Completed:    f.completed,
		Failed:       f.failed,
		SeenURLs:     f.dedup.ApproxCount(),
	}
}

// DomainStats returns the stored aggregate stats for a domain, or ErrNotFound.
func (f *Frontier) DomainStats(ctx context.Context, domain string) (*DomainStats, error) {
	ds, err := f.store.GetDomain(ctx, strings.ToLower(domain))
	if err != nil {
		return nil, fmt.Errorf("load domain stats: %w", err)
	}
	return ds, nil
}

// CheckpointFilter snapshots the dedup filter into the store so a restart
// does not re-crawl already-seen URLs.
func (f *Frontier) CheckpointFilter(ctx context.Context) error {
	var buf bytes.Buffer
	if _, err := f.dedup.WriteTo(&buf); err != nil {
		return err
	}
	if err := f.store.SaveFilterSnapshot(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("persist filter snapshot: %w", err)
	}
	return nil
}

// RestoreFilter loads the most recent dedup filter snapshot, if any.
func (f *Frontier) RestoreFilter(ctx context.Context) error {
	data, err := f.store.LoadFilterSnapshot(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load filter snapshot: %w", err)
	}
	return f.dedup.Load(bytes.NewReader(data))
}

func (f *Frontier) domainStats(ctx context.Context, domain string) (*DomainStats, error) {
	ds, err := f.store.GetDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load domain stats: %w", err)
	}
	return ds, nil
}

func (f *Frontier) domainPermitted(domain string) bool {
	for _, d := range f.excluded {
		if domainMatches(domain, d) {
			return false
		}
	}
	if len(f.allowed) == 0 {
		return true
	}
	for _, d := range f.allowed {
		if domainMatches(domain, d) {
			return true
		}
	}
	return false
}

func (f *Frontier) emit(e events.Event) {
	if f.events == nil {
		return
	}
	f.events.Emit(e)
}

func domainMatches(host, rule string) bool {
	return host == rule || strings.HasSuffix(host, "."+rule)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// rollAverage folds a new sample into a running mean with n total samples.
func rollAverage(avg, sample float64, n int64) float64 {
	if n <= 0 {
		return sample
	}
	return avg + (sample-avg)/float64(n)
}
