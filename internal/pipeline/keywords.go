package pipeline

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

const (
	minKeywordLength = 3
	maxKeywords      = 20
	titleBoost       = 1.5
)

var wordRE = regexp.MustCompile(`\w+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
}

// KeywordExtractor scores words by frequency relative to the most frequent
// word, boosting words that also appear in the title, and keeps the top 20.
type KeywordExtractor struct{}

// Name implements Stage.
func (*KeywordExtractor) Name() string { return "keyword-extractor" }

// Transform implements Stage.
func (*KeywordExtractor) Transform(_ context.Context, rec *Record) error {
	content := strings.ToLower(rec.Text)
	title := strings.ToLower(rec.Title)

	freq := make(map[string]int)
	for _, word := range wordRE.FindAllString(content, -1) {
		if len(word) < minKeywordLength || stopwords[word] {
			continue
		}
		freq[word]++
	}
	if len(freq) == 0 {
		rec.Keywords = nil
		rec.KeywordScores = map[string]float64{}
		return nil
	}

	maxFreq := 1
	for _, n := range freq {
		if n > maxFreq {
			maxFreq = n
		}
	}

	type scored struct {
		word  string
		score float64
	}
	ranked := make([]scored, 0, len(freq))
	for word, n := range freq {
		s := float64(n) / float64(maxFreq)
		if strings.Contains(title, word) {
			s *= titleBoost
		}
		ranked = append(ranked, scored{word, s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].word < ranked[j].word
	})
	if len(ranked) > maxKeywords {
		ranked = ranked[:maxKeywords]
	}

	rec.Keywords = make([]string, 0, len(ranked))
	rec.KeywordScores = make(map[string]float64, len(ranked))
	for _, kw := range ranked {
		rec.Keywords = append(rec.Keywords, kw.word)
		rec.KeywordScores[kw.word] = kw.score
	}
	return nil
}
