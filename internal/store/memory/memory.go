// Package memory provides an in-process frontier.Store for development and
// tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kbryner/webfrontier/internal/frontier"
)

// Store keeps URL records, domain stats, and the filter snapshot in maps.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	urls    map[string]frontier.URLRecord
	domains map[string]frontier.DomainStats
	filter  []byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		urls:    make(map[string]frontier.URLRecord),
		domains: make(map[string]frontier.DomainStats),
	}
}

// SaveURL upserts the record keyed by fingerprint.
func (s *Store) SaveURL(_ context.Context, rec *frontier.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[rec.Fingerprint] = *rec
	return nil
}

// GetURL returns a copy of the record or an error wrapping ErrNotFound.
func (s *Store) GetURL(_ context.Context, fingerprint string) (*frontier.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.urls[fingerprint]
	if !ok {
		return nil, fmt.Errorf("url %s: %w", fingerprint, frontier.ErrNotFound)
	}
	return &rec, nil
}

// SaveDomain upserts the stats keyed by lowercased domain.
func (s *Store) SaveDomain(_ context.Context, stats *frontier.DomainStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[strings.ToLower(stats.Domain)] = *stats
	return nil
}

// GetDomain returns a copy of the stats or an error wrapping ErrNotFound.
func (s *Store) GetDomain(_ context.Context, domain string) (*frontier.DomainStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.domains[strings.ToLower(domain)]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", domain, frontier.ErrNotFound)
	}
	return &stats, nil
}

// SaveFilterSnapshot stores the dedup filter bitset.
func (s *Store) SaveFilterSnapshot(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = append([]byte(nil), data...)
	return nil
}

// LoadFilterSnapshot returns the last saved bitset or ErrNotFound.
func (s *Store) LoadFilterSnapshot(context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.filter == nil {
		return nil, fmt.Errorf("filter snapshot: %w", frontier.ErrNotFound)
	}
	return append([]byte(nil), s.filter...), nil
}

// Close implements frontier.Store; it performs no action.
func (s *Store) Close() {}
