package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Cleaner parses the raw HTML, strips script and style content, and extracts
// the title, description, visible text, and outbound links.
type Cleaner struct{}

// Name implements Stage.
func (*Cleaner) Name() string { return "content-cleaner" }

// Transform implements Stage.
func (*Cleaner) Transform(_ context.Context, rec *Record) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rec.Body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	rec.Title = strings.TrimSpace(doc.Find("title").First().Text())
	rec.Description, _ = doc.Find(`meta[name="description"]`).Attr("content")
	rec.HasH1 = doc.Find("h1").Length() > 0

	text := whitespaceRE.ReplaceAllString(doc.Text(), " ")
	rec.Text = strings.TrimSpace(text)
	rec.ContentLength = len(rec.Text)

	base, err := url.Parse(rec.URL)
	if err != nil {
		base = nil
	}
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved := resolveLink(base, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		rec.Links = append(rec.Links, resolved)
	})
	return nil
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}
