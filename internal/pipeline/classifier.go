package pipeline

import (
	"context"
	"regexp"
	"strings"
)

const maxQualityScore = 2.0

var contentPatterns = []struct {
	contentType string
	re          *regexp.Regexp
}{
	{"article", regexp.MustCompile(`(?i)article|post|story|news`)},
	{"product", regexp.MustCompile(`(?i)product|price|\$|€|£`)},
	{"landing", regexp.MustCompile(`(?i)welcome|homepage|main`)},
	{"listing", regexp.MustCompile(`(?i)category|archive|list|index`)},
}

// Classifier assigns a coarse content type and a quality score in (0, 2.0].
// The quality score feeds the domain aggregate recompute on completion.
type Classifier struct{}

// Name implements Stage.
func (*Classifier) Name() string { return "content-classifier" }

// Transform implements Stage.
func (*Classifier) Transform(_ context.Context, rec *Record) error {
	contentType := "unknown"
	maxMatches := 0
	for _, p := range contentPatterns {
		n := len(p.re.FindAllString(rec.Text, -1))
		if n > maxMatches {
			maxMatches = n
			contentType = p.contentType
		}
	}

	rec.ContentType = contentType
	rec.QualityScore = qualityScore(rec)
	rec.WordCount = len(strings.Fields(rec.Text))
	return nil
}

func qualityScore(rec *Record) float64 {
	s := 1.0
	switch {
	case len(rec.Text) > 1000:
		s *= 1.2
	case len(rec.Text) < 100:
		s *= 0.8
	}
	if rec.HasH1 {
		s *= 1.1
	}
	if rec.Description != "" && len(rec.Keywords) > 0 {
		s *= 1.1
	}
	if s > maxQualityScore {
		return maxQualityScore
	}
	return s
}
