package politeness

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Guard tracks per-domain last-dispatch timestamps and answers whether a
// domain may be hit again. Timestamps are recorded at dispatch time, not at
// completion time, so slow fetches cannot admit a burst of concurrent
// requests to the same domain.
type Guard struct {
	mu         sync.Mutex
	lastAccess map[string]time.Time
	delay      time.Duration

	limiters    map[string]*rate.Limiter
	domainRate  rate.Limit
	domainBurst int

	now func() time.Time
}

// NewGuard builds a Guard enforcing the given minimum spacing between
// dispatches to the same domain. domainRPS > 0 additionally layers a
// token-bucket cap per domain for workers that call Wait.
func NewGuard(delay time.Duration, domainRPS float64) *Guard {
	r := rate.Limit(domainRPS)
	if domainRPS <= 0 {
		r = rate.Inf
	}
	return &Guard{
		lastAccess:  make(map[string]time.Time),
		delay:       delay,
		limiters:    make(map[string]*rate.Limiter),
		domainRate:  r,
		domainBurst: 1,
		now:         time.Now,
	}
}

// EligibleNow reports whether enough time has elapsed since the last
// dispatch to domain. It does not mutate state.
func (g *Guard) EligibleNow(domain string) bool {
	key := strings.ToLower(domain)
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastAccess[key]
	if !ok {
		return true
	}
	return g.now().Sub(last) >= g.delay
}

// MarkDispatched records a dispatch to domain at the current time.
func (g *Guard) MarkDispatched(domain string) {
	key := strings.ToLower(domain)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastAccess[key] = g.now()
}

// ClaimIfEligible atomically checks eligibility and records the dispatch.
// Concurrent schedulers racing on the same domain see exactly one winner
// inside the politeness window.
func (g *Guard) ClaimIfEligible(domain string) bool {
	key := strings.ToLower(domain)
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.lastAccess[key]; ok && now.Sub(last) < g.delay {
		return false
	}
	g.lastAccess[key] = now
	return true
}

// Wait blocks until the domain's token bucket admits another request,
// respecting the context. A no-op when no per-domain RPS cap is configured.
func (g *Guard) Wait(ctx context.Context, domain string) error {
	key := strings.ToLower(domain)
	g.mu.Lock()
	limiter, exists := g.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(g.domainRate, g.domainBurst)
		g.limiters[key] = limiter
	}
	g.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Delay returns the configured politeness interval.
func (g *Guard) Delay() time.Duration {
	return g.delay
}
