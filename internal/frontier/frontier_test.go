package frontier_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kbryner/webfrontier/internal/dedup"
	"github.com/kbryner/webfrontier/internal/events"
	"github.com/kbryner/webfrontier/internal/frontier"
	"github.com/kbryner/webfrontier/internal/politeness"
	"github.com/kbryner/webfrontier/internal/store/memory"
)

type denyRobots struct{}

func (denyRobots) Allowed(context.Context, string) bool { return false }

type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureEmitter) Emit(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEmitter) byStage(stage events.Stage) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.events {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

func testFilter() *dedup.Filter {
	return dedup.New(dedup.Config{Capacity: 10_000, FalsePositiveRate: 0.001})
}

func newTestFrontier(t *testing.T, opts frontier.Options) (*frontier.Frontier, *memory.Store) {
	t.Helper()
	st := memory.New()
	if opts.Store == nil {
		opts.Store = st
	} else {
		st, _ = opts.Store.(*memory.Store)
	}
	if opts.Dedup == nil {
		opts.Dedup = testFilter()
	}
	f, err := frontier.New(opts)
	if err != nil {
		t.Fatalf("new frontier: %v", err)
	}
	return f, st
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, st := newTestFrontier(t, frontier.Options{})

	accepted, err := f.Add(ctx, "http://a.test/article/1", frontier.AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !accepted {
		t.Fatal("expected first add to be accepted")
	}

	again, err := f.Add(ctx, "http://a.test/article/1", frontier.AddOptions{})
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if again {
		t.Fatal("expected duplicate add to be rejected")
	}
	if got := f.Stats().QueueSize; got != 1 {
		t.Fatalf("expected exactly one queued entry, got %d", got)
	}

	// Article path pattern boosts the base component.
	normalized, _, err := frontier.Normalize("http://a.test/article/1")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	rec, err := st.GetURL(ctx, frontier.Fingerprint(normalized))
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if math.Abs(rec.Scores.Base-1.5) > 1e-9 {
		t.Fatalf("expected base score 1.5 for article path, got %f", rec.Scores.Base)
	}
	if rec.Status != frontier.StatusQueued {
		t.Fatalf("expected queued status, got %s", rec.Status)
	}
}

func TestAddRejectsMalformedURLs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _ := newTestFrontier(t, frontier.Options{})

	for _, raw := range []string{"://bad", "ftp://a.test/file", "/relative/only", ""} {
		accepted, err := f.Add(ctx, raw, frontier.AddOptions{})
		if err != nil {
			t.Fatalf("add %q returned error: %v", raw, err)
		}
		if accepted {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestAddHonorsDomainLists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _ := newTestFrontier(t, frontier.Options{
		AllowedDomains:  []string{"a.test"},
		ExcludedDomains: []string{"internal.a.test"},
	})

	if ok, _ := f.Add(ctx, "http://a.test/page", frontier.AddOptions{}); !ok {
		t.Fatal("allowed domain rejected")
	}
	if ok, _ := f.Add(ctx, "http://sub.a.test/page", frontier.AddOptions{}); !ok {
		t.Fatal("subdomain of allowed domain rejected")
	}
	if ok, _ := f.Add(ctx, "http://b.test/page", frontier.AddOptions{}); ok {
		t.Fatal("off-list domain accepted")
	}
	if ok, _ := f.Add(ctx, "http://internal.a.test/page", frontier.AddOptions{}); ok {
		t.Fatal("excluded domain accepted")
	}
}

func TestAddRejectsRobotsDisallowed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _ := newTestFrontier(t, frontier.Options{Robots: denyRobots{}})

	accepted, err := f.Add(ctx, "http://a.test/blocked", frontier.AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if accepted {
		t.Fatal("robots-disallowed URL must be rejected without error")
	}
}

func TestNextBatchNeverDispatchesTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	// Zero politeness delay so eligibility never hides a duplicate.
	f, _ := newTestFrontier(t, frontier.Options{
		Guard: politeness.NewGuard(0, 0),
	})

	urls := []string{
		"http://a.test/1", "http://b.test/1", "http://c.test/1",
		"http://d.test/1", "http://e.test/1",
	}
	for _, u := range urls {
		if ok, err := f.Add(ctx, u, frontier.AddOptions{}); err != nil || !ok {
			t.Fatalf("add %s: ok=%v err=%v", u, ok, err)
		}
	}

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		for _, c := range f.NextBatch(ctx, 2) {
			if seen[c.URL] {
				t.Fatalf("url %s dispatched twice", c.URL)
			}
			seen[c.URL] = true
		}
	}
	if len(seen) != len(urls) {
		t.Fatalf("expected %d dispatches, got %d", len(urls), len(seen))
	}
	if batch := f.NextBatch(ctx, 5); len(batch) != 0 {
		t.Fatalf("drained frontier returned %d candidates", len(batch))
	}
}

func TestNextBatchReturnsHighestScoresFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _ := newTestFrontier(t, frontier.Options{
		Guard: politeness.NewGuard(0, 0),
	})

	adds := []struct {
		url      string
		priority float64
	}{
		{"http://a.test/low", 1.0},
		{"http://b.test/high", 3.0},
		{"http://c.test/mid", 2.0},
	}
	for _, a := range adds {
		if ok, err := f.Add(ctx, a.url, frontier.AddOptions{Priority: a.priority}); err != nil || !ok {
			t.Fatalf("add %s: ok=%v err=%v", a.url, ok, err)
		}
	}

	batch := f.NextBatch(ctx, 3)
	if len(batch) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(batch))
	}
	if batch[0].Domain != "b.test" || batch[1].Domain != "c.test" || batch[2].Domain != "a.test" {
		t.Fatalf("unexpected dispatch order: %v, %v, %v",
			batch[0].Domain, batch[1].Domain, batch[2].Domain)
	}
}

func TestNextBatchSkipsPolitenessIneligibleDomains(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	guard := politeness.NewGuard(time.Minute, 0)
	f, _ := newTestFrontier(t, frontier.Options{Guard: guard})

	domains := []string{"a.test", "b.test", "c.test", "d.test", "e.test"}
	for _, d := range domains {
		if ok, err := f.Add(ctx, "http://"+d+"/page", frontier.AddOptions{}); err != nil || !ok {
			t.Fatalf("add %s: ok=%v err=%v", d, ok, err)
		}
	}
	// Three domains were hit moments ago; only two are eligible now.
	for _, d := range []string{"a.test", "b.test", "c.test"} {
		guard.MarkDispatched(d)
	}

	batch := f.NextBatch(ctx, 5)
	if len(batch) != 2 {
		t.Fatalf("expected exactly 2 eligible candidates, got %d", len(batch))
	}
	for _, c := range batch {
		if c.Domain != "d.test" && c.Domain != "e.test" {
			t.Fatalf("dispatched ineligible domain %s", c.Domain)
		}
	}
	// Skipped entries stay queued for a later batch.
	if got := f.Stats().QueueSize; got != 3 {
		t.Fatalf("expected 3 entries re-queued, got %d", got)
	}
}

func TestMarkCompleteIsIdempotentPerAttempt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	emitter := &captureEmitter{}
	f, st := newTestFrontier(t, frontier.Options{
		Guard:  politeness.NewGuard(0, 0),
		Events: emitter,
	})

	if ok, err := f.Add(ctx, "http://a.test/article/1", frontier.AddOptions{}); err != nil || !ok {
		t.Fatalf("add: ok=%v err=%v", ok, err)
	}
	batch := f.NextBatch(ctx, 1)
	if len(batch) != 1 {
		t.Fatalf("expected one candidate, got %d", len(batch))
	}

	stats := &frontier.CrawlStats{
		StatusCode:    200,
		Duration:      500 * time.Millisecond,
		ContentLength: 6000,
		QualityScore:  0.5,
		Outcome:       events.OutcomeSuccess,
	}
	if err := f.MarkComplete(ctx, batch[0], true, stats); err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	// Duplicate report for the same attempt must be a no-op.
	if err := f.MarkComplete(ctx, batch[0], true, stats); err != nil {
		t.Fatalf("duplicate mark complete: %v", err)
	}

	ds, err := st.GetDomain(ctx, "a.test")
	if err != nil {
		t.Fatalf("get domain: %v", err)
	}
	if ds.TotalCount != 1 || ds.SuccessCount != 1 {
		t.Fatalf("duplicate report double-counted: %+v", ds)
	}
	if got := f.Stats().Completed; got != 1 {
		t.Fatalf("expected 1 completion, got %d", got)
	}
	if done := emitter.byStage(events.StageFetchDone); len(done) != 1 {
		t.Fatalf("expected 1 completion event, got %d", len(done))
	}
}

func TestMarkCompleteRecomputesDomainScore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, st := newTestFrontier(t, frontier.Options{
		Guard: politeness.NewGuard(0, 0),
	})

	if ok, err := f.Add(ctx, "http://a.test/page", frontier.AddOptions{}); err != nil || !ok {
		t.Fatalf("add: ok=%v err=%v", ok, err)
	}
	batch := f.NextBatch(ctx, 1)
	if len(batch) != 1 {
		t.Fatalf("expected one candidate, got %d", len(batch))
	}

	// quality 0.5, 0.5s crawl, rich content: 1.5 * 1.0 * 1.2 = 1.8
	err := f.MarkComplete(ctx, batch[0], true, &frontier.CrawlStats{
		StatusCode:    200,
		Duration:      500 * time.Millisecond,
		ContentLength: 6000,
		QualityScore:  0.5,
		Outcome:       events.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("mark complete: %v", err)
	}

	ds, err := st.GetDomain(ctx, "a.test")
	if err != nil {
		t.Fatalf("get domain: %v", err)
	}
	if math.Abs(ds.Score-1.8) > 1e-9 {
		t.Fatalf("expected domain score 1.8, got %f", ds.Score)
	}
	if ds.Score > 2.0 {
		t.Fatalf("domain score exceeds cap: %f", ds.Score)
	}
}

func TestMarkCompleteFailureClassification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	emitter := &captureEmitter{}
	f, st := newTestFrontier(t, frontier.Options{
		Guard:  politeness.NewGuard(0, 0),
		Events: emitter,
	})

	if ok, err := f.Add(ctx, "http://a.test/page", frontier.AddOptions{}); err != nil || !ok {
		t.Fatalf("add: ok=%v err=%v", ok, err)
	}
	batch := f.NextBatch(ctx, 1)
	if len(batch) != 1 {
		t.Fatalf("expected one candidate, got %d", len(batch))
	}

	err := f.MarkComplete(ctx, batch[0], false, &frontier.CrawlStats{
		StatusCode: 429,
		Duration:   time.Second,
		Retries:    3,
		Outcome:    events.OutcomeTimeout,
	})
	if err != nil {
		t.Fatalf("mark complete: %v", err)
	}

	if got := f.Stats().Failed; got != 1 {
		t.Fatalf("expected 1 failure, got %d", got)
	}
	failed := emitter.byStage(events.StageFetchFailed)
	if len(failed) != 1 || failed[0].Outcome != events.OutcomeTimeout {
		t.Fatalf("unexpected failure events: %+v", failed)
	}
	normalized, _, _ := frontier.Normalize("http://a.test/page")
	rec, err := st.GetURL(ctx, frontier.Fingerprint(normalized))
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != frontier.StatusFailed || rec.Retries != 3 {
		t.Fatalf("unexpected record after failure: %+v", rec)
	}
}

func TestFilterCheckpointSurvivesRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.New()
	f1, _ := newTestFrontier(t, frontier.Options{Store: st})

	if ok, err := f1.Add(ctx, "http://a.test/once", frontier.AddOptions{}); err != nil || !ok {
		t.Fatalf("add: ok=%v err=%v", ok, err)
	}
	if err := f1.CheckpointFilter(ctx); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	// Fresh process: new filter, same store.
	f2, _ := newTestFrontier(t, frontier.Options{Store: st, Dedup: testFilter()})
	if err := f2.RestoreFilter(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if ok, err := f2.Add(ctx, "http://a.test/once", frontier.AddOptions{}); err != nil {
		t.Fatalf("re-add: %v", err)
	} else if ok {
		t.Fatal("restored filter must reject already-seen URL")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "http://EXAMPLE.com/Path", "http://example.com/Path"},
		{"strips fragment", "http://a.test/page#section", "http://a.test/page"},
		{"strips default http port", "http://a.test:80/page", "http://a.test/page"},
		{"strips default https port", "https://a.test:443/page", "https://a.test/page"},
		{"keeps explicit port", "http://a.test:8080/page", "http://a.test:8080/page"},
		{"adds root path", "http://a.test", "http://a.test/"},
		{"keeps query", "http://a.test/p?q=1", "http://a.test/p?q=1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := frontier.Normalize(tc.in)
			if err != nil {
				t.Fatalf("normalize %q: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("normalize %q = %q; want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestAddScoresNewURLWithFullFreshness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, st := newTestFrontier(t, frontier.Options{})

	// A domain crawled minutes ago must not dampen the freshness of a URL
	// the frontier has never seen.
	err := st.SaveDomain(ctx, &frontier.DomainStats{
		Domain:       "a.test",
		SuccessCount: 5,
		TotalCount:   5,
		LastCrawled:  time.Now().Add(-10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("seed domain stats: %v", err)
	}

	accepted, err := f.Add(ctx, "http://a.test/article/new-page", frontier.AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !accepted {
		t.Fatal("expected add to be accepted")
	}

	normalized, _, err := frontier.Normalize("http://a.test/article/new-page")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	rec, err := st.GetURL(ctx, frontier.Fingerprint(normalized))
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Scores.Freshness != 1.0 {
		t.Fatalf("never-crawled URL got freshness %f, want 1.0", rec.Scores.Freshness)
	}
}

func TestStatsReportsSeenURLs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _ := newTestFrontier(t, frontier.Options{})

	for _, u := range []string{"http://a.test/1", "http://a.test/2", "http://b.test/1"} {
		if _, err := f.Add(ctx, u, frontier.AddOptions{}); err != nil {
			t.Fatalf("add %s: %v", u, err)
		}
	}
	// Duplicates do not grow the filter.
	if _, err := f.Add(ctx, "http://a.test/1", frontier.AddOptions{}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	if got := f.Stats().SeenURLs; got != 3 {
		t.Fatalf("expected 3 seen urls, got %d", got)
	}
}
