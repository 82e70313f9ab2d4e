// Package dedup implements the probabilistic seen-URL filter guarding the frontier.
package dedup

import (
	"fmt"
	"io"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Config sizes the bloom filter backing the Filter.
type Config struct {
	// Capacity is the expected number of distinct fingerprints.
	Capacity uint
	// FalsePositiveRate is the target false-positive probability at capacity.
	FalsePositiveRate float64
}

const (
	defaultCapacity          = 10_000_000
	defaultFalsePositiveRate = 0.001
)

// Filter is a thread-safe set-membership test over URL fingerprints.
// Membership is a one-way gate: there is no removal, and once the configured
// capacity is exceeded the false-positive rate degrades rather than erroring.
type Filter struct {
	mu    sync.Mutex
	bloom *bloom.BloomFilter
	added uint64
}

// New constructs a Filter for the configured capacity and error rate.
func New(cfg Config) *Filter {
	if cfg.Capacity == 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
		cfg.FalsePositiveRate = defaultFalsePositiveRate
	}
	return &Filter{
		bloom: bloom.NewWithEstimates(cfg.Capacity, cfg.FalsePositiveRate),
	}
}

// MightContain reports whether the fingerprint may have been added before.
// False positives are possible; false negatives are not.
func (f *Filter) MightContain(fingerprint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bloom.TestString(fingerprint)
}

// Add records the fingerprint.
func (f *Filter) Add(fingerprint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bloom.AddString(fingerprint)
	f.added++
}

// AddIfNew atomically tests and records the fingerprint, returning true when
// it was not present before. Concurrent discovery sources rely on this being
// a single critical section.
func (f *Filter) AddIfNew(fingerprint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bloom.TestString(fingerprint) {
		return false
	}
	f.bloom.AddString(fingerprint)
	f.added++
	return true
}

// ApproxCount returns the number of Add operations performed. It overcounts
// re-added fingerprints and is intended for observability only.
func (f *Filter) ApproxCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.added
}

// WriteTo serializes the filter's bitset so it can be checkpointed alongside
// the frontier store and survive restarts.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.bloom.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("write bloom filter: %w", err)
	}
	return n, nil
}

// Load restores a previously serialized filter, replacing current contents.
func (f *Filter) Load(r io.Reader) error {
	restored := &bloom.BloomFilter{}
	if _, err := restored.ReadFrom(r); err != nil {
		return fmt.Errorf("read bloom filter: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bloom = restored
	return nil
}
