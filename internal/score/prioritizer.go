// Package score computes crawl priority scores for candidate URLs.
package score

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Breakdown carries the individual components behind a final priority score.
type Breakdown struct {
	Base       float64
	Freshness  float64
	Relevance  float64
	Popularity float64
	Final      float64
}

// DomainSignal summarizes historical per-domain crawl performance fed into
// the relevance and popularity components.
type DomainSignal struct {
	SuccessCount     int64
	TotalCount       int64
	AvgCrawlTime     float64 // seconds
	AvgContentLength float64 // bytes
}

// Input bundles the optional per-URL signals for a scoring call.
type Input struct {
	DomainStats      *DomainSignal
	LastCrawled      *time.Time
	ContentRelevance *float64
}

type pathPattern struct {
	re     *regexp.Regexp
	weight float64
}

// Final score component weights.
const (
	baseWeight       = 0.3
	freshnessWeight  = 0.2
	relevanceWeight  = 0.3
	popularityWeight = 0.2

	richContentBytes = 5000
	maxDomainScore   = 2.0
)

// Prioritizer ranks URLs by combining static path heuristics, freshness,
// relevance signals, and historical domain performance. It is safe for
// concurrent use.
type Prioritizer struct {
	mu             sync.RWMutex
	domainScores   map[string]float64
	keywordWeights map[string]float64
	pathPatterns   []pathPattern

	now func() time.Time
}

// NewPrioritizer builds a Prioritizer with the default path-pattern table.
// Patterns are evaluated in order; the first match wins.
func NewPrioritizer() *Prioritizer {
	return &Prioritizer{
		domainScores:   make(map[string]float64),
		keywordWeights: make(map[string]float64),
		pathPatterns: []pathPattern{
			{regexp.MustCompile(`/article/`), 1.5},
			{regexp.MustCompile(`/blog/`), 1.3},
			{regexp.MustCompile(`/news/`), 1.4},
			{regexp.MustCompile(`/product/`), 1.2},
			{regexp.MustCompile(`/category/`), 0.8},
			{regexp.MustCompile(`/tag/`), 0.6},
			{regexp.MustCompile(`/page/\d+`), 0.5},
		},
		now: time.Now,
	}
}

// Score computes the full component breakdown for a URL.
func (p *Prioritizer) Score(rawURL string, in Input) Breakdown {
	var domain, path string
	if u, err := url.Parse(rawURL); err == nil {
		domain = u.Host
		path = u.Path
	}

	base := p.baseScore(domain, path)
	freshness := p.freshnessScore(in.LastCrawled)
	relevance := p.relevanceScore(rawURL, in.ContentRelevance, in.DomainStats)
	popularity := p.popularityScore(in.DomainStats)

	final := base*baseWeight +
		freshness*freshnessWeight +
		relevance*relevanceWeight +
		popularity*popularityWeight

	return Breakdown{
		Base:       clampScore(base),
		Freshness:  clampScore(freshness),
		Relevance:  clampScore(relevance),
		Popularity: clampScore(popularity),
		Final:      clampScore(final),
	}
}

func (p *Prioritizer) baseScore(domain, path string) float64 {
	score := 1.0

	p.mu.RLock()
	if ds, ok := p.domainScores[domain]; ok {
		score *= ds
	}
	patterns := p.pathPatterns
	p.mu.RUnlock()

	for _, pat := range patterns {
		if pat.re.MatchString(path) {
			score *= pat.weight
			break
		}
	}

	depth := 0
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			depth++
		}
	}
	if depth > 3 {
		score *= 1.0 / math.Log2(float64(depth))
	}

	return score
}

func (p *Prioritizer) freshnessScore(lastCrawled *time.Time) float64 {
	if lastCrawled == nil {
		return 1.0 // new URLs get maximum freshness
	}
	age := p.now().Sub(*lastCrawled)
	switch {
	case age < time.Hour:
		return 0.2 // recently crawled
	case age < 24*time.Hour:
		return 0.4
	case age < 7*24*time.Hour:
		return 0.6
	case age < 30*24*time.Hour:
		return 0.8
	default:
		return 1.0 // old content needs refresh
	}
}

func (p *Prioritizer) relevanceScore(rawURL string, contentRelevance *float64, stats *DomainSignal) float64 {
	score := 1.0

	if contentRelevance != nil {
		score *= *contentRelevance
	}

	urlLower := strings.ToLower(rawURL)
	p.mu.RLock()
	for keyword, weight := range p.keywordWeights {
		if strings.Contains(urlLower, keyword) {
			score *= weight
		}
	}
	p.mu.RUnlock()

	if stats != nil && stats.AvgContentLength > richContentBytes {
		score *= 1.2
	}

	return score
}

func (p *Prioritizer) popularityScore(stats *DomainSignal) float64 {
	score := 1.0
	if stats == nil {
		return score
	}

	if stats.TotalCount > 0 {
		successRatio := float64(stats.SuccessCount) / float64(stats.TotalCount)
		score *= 0.5 + successRatio
	}

	if stats.AvgCrawlTime > 0 {
		timeFactor := math.Min(1.0, 1.0/math.Log2(1.0+stats.AvgCrawlTime))
		score *= timeFactor
	}

	return score
}

// DomainScore computes the aggregate reputation for a domain from the stats
// of a completed crawl. The result is capped at 2.0 regardless of input
// magnitude.
func DomainScore(qualityScore, crawlTime float64, contentLength int64) float64 {
	score := 1.0

	score *= 1.0 + qualityScore

	if crawlTime > 0 {
		score *= math.Min(1.0, 1.0/crawlTime)
	}

	if contentLength > richContentBytes {
		score *= 1.2
	}

	return math.Min(clampScore(score), maxDomainScore)
}

// SetDomainScore records the aggregate reputation for a domain.
func (p *Prioritizer) SetDomainScore(domain string, score float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domainScores[domain] = clampScore(score)
}

// SetKeywordWeight records the relevance multiplier for a URL keyword.
func (p *Prioritizer) SetKeywordWeight(keyword string, weight float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keywordWeights[strings.ToLower(keyword)] = weight
}

// AddPathPattern appends a pattern to the ordered path-weight table.
func (p *Prioritizer) AddPathPattern(pattern string, weight float64) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pathPatterns = append(p.pathPatterns, pathPattern{re: re, weight: weight})
	return nil
}

// clampScore keeps scores finite and non-negative; multiplicative factors can
// otherwise diverge on hostile inputs.
func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if math.IsInf(s, 1) {
		return math.MaxFloat64
	}
	return s
}
