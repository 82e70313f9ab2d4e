// Package postgres provides a Postgres-backed frontier.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kbryner/webfrontier/internal/frontier"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists frontier state in Postgres.
type Store struct {
	pool db
}

// New creates a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveURL upserts a URL record keyed by fingerprint.
func (s *Store) SaveURL(ctx context.Context, rec *frontier.URLRecord) error {
	const query = `
INSERT INTO urls (
	fingerprint, url, domain, path,
	base_score, freshness_score, relevance_score, popularity_score, final_score,
	status, enqueued_at, last_crawled, retries
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
) ON CONFLICT (fingerprint) DO UPDATE SET
	status = EXCLUDED.status,
	last_crawled = EXCLUDED.last_crawled,
	retries = EXCLUDED.retries,
	final_score = EXCLUDED.final_score`

	_, err := s.pool.Exec(ctx, query,
		rec.Fingerprint, rec.URL, rec.Domain, rec.Path,
		rec.Scores.Base, rec.Scores.Freshness, rec.Scores.Relevance,
		rec.Scores.Popularity, rec.Scores.Final,
		string(rec.Status), rec.EnqueuedAt, rec.LastCrawled, rec.Retries,
	)
	if err != nil {
		return fmt.Errorf("upsert url: %w", err)
	}
	return nil
}

// GetURL loads a URL record or an error wrapping frontier.ErrNotFound.
func (s *Store) GetURL(ctx context.Context, fingerprint string) (*frontier.URLRecord, error) {
	const query = `
SELECT fingerprint, url, domain, path,
	base_score, freshness_score, relevance_score, popularity_score, final_score,
	status, enqueued_at, last_crawled, retries
FROM urls WHERE fingerprint = $1`

	var (
		rec    frontier.URLRecord
		status string
	)
	err := s.pool.QueryRow(ctx, query, fingerprint).Scan(
		&rec.Fingerprint, &rec.URL, &rec.Domain, &rec.Path,
		&rec.Scores.Base, &rec.Scores.Freshness, &rec.Scores.Relevance,
		&rec.Scores.Popularity, &rec.Scores.Final,
		&status, &rec.EnqueuedAt, &rec.LastCrawled, &rec.Retries,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("url %s: %w", fingerprint, frontier.ErrNotFound)
		}
		return nil, fmt.Errorf("select url: %w", err)
	}
	rec.Status = frontier.URLStatus(status)
	return &rec, nil
}

// SaveDomain upserts aggregate stats keyed by domain.
func (s *Store) SaveDomain(ctx context.Context, stats *frontier.DomainStats) error {
	const query = `
INSERT INTO domains (
	domain, success_count, failure_count, total_count,
	avg_crawl_time, avg_content_length, score, last_crawled
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (domain) DO UPDATE SET
	success_count = EXCLUDED.success_count,
	failure_count = EXCLUDED.failure_count,
	total_count = EXCLUDED.total_count,
	avg_crawl_time = EXCLUDED.avg_crawl_time,
	avg_content_length = EXCLUDED.avg_content_length,
	score = EXCLUDED.score,
	last_crawled = EXCLUDED.last_crawled`

	_, err := s.pool.Exec(ctx, query,
		stats.Domain, stats.SuccessCount, stats.FailureCount, stats.TotalCount,
		stats.AvgCrawlTime, stats.AvgContentLength, stats.Score, stats.LastCrawled,
	)
	if err != nil {
		return fmt.Errorf("upsert domain: %w", err)
	}
	return nil
}

// GetDomain loads domain stats or an error wrapping frontier.ErrNotFound.
func (s *Store) GetDomain(ctx context.Context, domain string) (*frontier.DomainStats, error) {
	const query = `
SELECT domain, success_count, failure_count, total_count,
	avg_crawl_time, avg_content_length, score, last_crawled
FROM domains WHERE domain = $1`

	var stats frontier.DomainStats
	err := s.pool.QueryRow(ctx, query, domain).Scan(
		&stats.Domain, &stats.SuccessCount, &stats.FailureCount, &stats.TotalCount,
		&stats.AvgCrawlTime, &stats.AvgContentLength, &stats.Score, &stats.LastCrawled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("domain %s: %w", domain, frontier.ErrNotFound)
		}
		return nil, fmt.Errorf("select domain: %w", err)
	}
	return &stats, nil
}

// SaveFilterSnapshot stores the dedup filter bitset. A single row holds the
// latest snapshot.
func (s *Store) SaveFilterSnapshot(ctx context.Context, data []byte) error {
	const query = `
INSERT INTO dedup_snapshots (id, data, updated_at)
VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.pool.Exec(ctx, query, data); err != nil {
		return fmt.Errorf("upsert filter snapshot: %w", err)
	}
	return nil
}

// LoadFilterSnapshot returns the stored bitset or frontier.ErrNotFound.
func (s *Store) LoadFilterSnapshot(ctx context.Context) ([]byte, error) {
	const query = `SELECT data FROM dedup_snapshots WHERE id = 1`

	var data []byte
	if err := s.pool.QueryRow(ctx, query).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("filter snapshot: %w", frontier.ErrNotFound)
		}
		return nil, fmt.Errorf("select filter snapshot: %w", err)
	}
	return data, nil
}
