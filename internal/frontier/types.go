// Package frontier implements the crawl frontier: the priority queue of
// discovered URLs together with deduplication, robots enforcement, politeness
// scheduling, and completion accounting.
package frontier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kbryner/webfrontier/internal/events"
	"github.com/kbryner/webfrontier/internal/score"
)

// ErrNotFound is returned by Store implementations when a record does not
// exist.
var ErrNotFound = errors.New("record not found")

// URLStatus is the lifecycle state of a URL record.
type URLStatus string

const (
	StatusDiscovered URLStatus = "discovered"
	StatusQueued     URLStatus = "queued"
	StatusDispatched URLStatus = "dispatched"
	StatusCompleted  URLStatus = "completed"
	StatusFailed     URLStatus = "failed"
)

// URLRecord is the per-URL metadata tracked by the frontier. The fingerprint
// is the identity used for deduplication and store keys.
type URLRecord struct {
	URL         string
	Fingerprint string
	Domain      string
	Path        string
	Scores      score.Breakdown
	Status      URLStatus
	EnqueuedAt  time.Time
	LastCrawled *time.Time
	Retries     int
}

// DomainStats aggregates historical crawl performance for one domain.
// Written only on completion reports; read by the scorer before dispatch.
type DomainStats struct {
	Domain           string
	SuccessCount     int64
	FailureCount     int64
	TotalCount       int64
	AvgCrawlTime     float64 // seconds
	AvgContentLength float64 // bytes, successful fetches only
	Score            float64
	LastCrawled      time.Time
}

// Signal converts the stats into the scorer's input form.
func (d *DomainStats) Signal() *score.DomainSignal {
	if d == nil {
		return nil
	}
	return &score.DomainSignal{
		SuccessCount:     d.SuccessCount,
		TotalCount:       d.TotalCount,
		AvgCrawlTime:     d.AvgCrawlTime,
		AvgContentLength: d.AvgContentLength,
	}
}

// Candidate is a URL handed to a fetch worker. Attempt is the dispatch token
// that makes completion reporting idempotent per (url, attempt).
type Candidate struct {
	URL         string
	Fingerprint string
	Domain      string
	Score       float64
	Attempt     int64
}

// CrawlStats carries the measurable outcome of a finished fetch attempt.
type CrawlStats struct {
	StatusCode    int
	Duration      time.Duration
	ContentLength int64
	QualityScore  float64
	Retries       int
	Outcome       events.Outcome
}

// Snapshot is a point-in-time view of frontier state. It is not required to
// be transactionally consistent with concurrent mutations.
type Snapshot struct {
	QueueSize    int
	DomainDepths map[string]int
	Discovered   int64
	Completed    int64
	Failed       int64
	// SeenURLs is the approximate number of fingerprints admitted into the
	// dedup filter over the frontier's lifetime, including restored ones.
	SeenURLs uint64
}

// Store persists URL records, domain stats, and the dedup filter snapshot.
// Implementations must return errors wrapping ErrNotFound for missing keys;
// any other error is treated as a dependency failure and surfaced to callers.
type Store interface {
	SaveURL(ctx context.Context, rec *URLRecord) error
	GetURL(ctx context.Context, fingerprint string) (*URLRecord, error)
	SaveDomain(ctx context.Context, stats *DomainStats) error
	GetDomain(ctx context.Context, domain string) (*DomainStats, error)
	SaveFilterSnapshot(ctx context.Context, data []byte) error
	LoadFilterSnapshot(ctx context.Context) ([]byte, error)
	Close()
}

// RobotsChecker answers whether a URL may be fetched under its host's
// robots.txt policy.
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Emitter receives frontier lifecycle events.
type Emitter interface {
	Emit(e events.Event)
}

// Normalize canonicalizes a URL for fingerprinting: lowercased scheme and
// host, default ports stripped, fragment dropped, empty path rewritten to "/".
// Only absolute http/https URLs are accepted.
func Normalize(rawURL string) (string, *url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", nil, errors.New("missing host")
	}
	u.Host = strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), u, nil
}

// Fingerprint returns the stable hex digest of a normalized URL.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
