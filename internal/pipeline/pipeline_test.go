package pipeline

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Crawler News Update</title>
  <meta name="description" content="News about crawlers">
  <style>body { color: red; }</style>
  <script>var hidden = "donotleak";</script>
</head>
<body>
  <h1>Crawler News</h1>
  <p>crawler crawler crawler news story for the archive</p>
  <a href="/local/page">internal</a>
  <a href="https://other.test/external">external</a>
  <a href="mailto:someone@example.com">mail</a>
</body>
</html>`

func runSample(t *testing.T) *Record {
	t.Helper()
	rec := &Record{
		URL:  "https://a.test/news/today",
		Body: []byte(sampleHTML),
	}
	if err := New(zap.NewNop()).Run(context.Background(), rec); err != nil {
		t.Fatalf("pipeline run: %v", err)
	}
	return rec
}

func TestCleanerStripsScriptsAndExtracts(t *testing.T) {
	t.Parallel()

	rec := runSample(t)
	if rec.Title != "Crawler News Update" {
		t.Fatalf("unexpected title %q", rec.Title)
	}
	if rec.Description != "News about crawlers" {
		t.Fatalf("unexpected description %q", rec.Description)
	}
	if strings.Contains(rec.Text, "donotleak") || strings.Contains(rec.Text, "color: red") {
		t.Fatalf("script/style content leaked into text: %q", rec.Text)
	}
	if !rec.HasH1 {
		t.Fatal("expected h1 detection")
	}
	if rec.ContentLength != len(rec.Text) {
		t.Fatalf("content length %d does not match text length %d", rec.ContentLength, len(rec.Text))
	}
}

func TestCleanerResolvesLinks(t *testing.T) {
	t.Parallel()

	rec := runSample(t)
	want := map[string]bool{
		"https://a.test/local/page":  true,
		"https://other.test/external": true,
	}
	if len(rec.Links) != len(want) {
		t.Fatalf("unexpected links: %v", rec.Links)
	}
	for _, l := range rec.Links {
		if !want[l] {
			t.Fatalf("unexpected link %q", l)
		}
	}
}

func TestKeywordExtraction(t *testing.T) {
	t.Parallel()

	rec := runSample(t)
	if len(rec.Keywords) == 0 {
		t.Fatal("expected keywords")
	}
	// "crawler" is the most frequent word and appears in the title.
	if rec.Keywords[0] != "crawler" {
		t.Fatalf("expected crawler as top keyword, got %q", rec.Keywords[0])
	}
	if rec.KeywordScores["crawler"] != 1.5 {
		t.Fatalf("expected title-boosted score 1.5, got %f", rec.KeywordScores["crawler"])
	}
	for _, kw := range rec.Keywords {
		if stopwords[kw] || len(kw) < minKeywordLength {
			t.Fatalf("stopword or short word leaked into keywords: %q", kw)
		}
	}
}

func TestLinkAnalysis(t *testing.T) {
	t.Parallel()

	rec := runSample(t)
	if len(rec.InternalLinks) != 1 || rec.InternalLinks[0] != "https://a.test/local/page" {
		t.Fatalf("unexpected internal links: %v", rec.InternalLinks)
	}
	if len(rec.ExternalLinks) != 1 || rec.ExternalLinks[0] != "https://other.test/external" {
		t.Fatalf("unexpected external links: %v", rec.ExternalLinks)
	}
	if rec.LinkScores["https://a.test/local/page"] <= rec.LinkScores["https://other.test/external"] {
		t.Fatal("internal links must outscore external links")
	}
}

func TestClassifier(t *testing.T) {
	t.Parallel()

	rec := runSample(t)
	if rec.ContentType == "unknown" {
		t.Fatalf("expected classified content type, got %q", rec.ContentType)
	}
	if rec.QualityScore <= 0 || rec.QualityScore > maxQualityScore {
		t.Fatalf("quality score out of bounds: %f", rec.QualityScore)
	}
	if rec.WordCount == 0 {
		t.Fatal("expected non-zero word count")
	}
}

func TestPipelineEmptyBody(t *testing.T) {
	t.Parallel()

	rec := &Record{URL: "https://a.test/empty"}
	if err := New(zap.NewNop()).Run(context.Background(), rec); err != nil {
		t.Fatalf("pipeline on empty body: %v", err)
	}
	if len(rec.Keywords) != 0 {
		t.Fatalf("expected no keywords for empty body, got %v", rec.Keywords)
	}
}
