package pipeline

import (
	"context"
	"net/url"
	"strings"
)

const (
	internalLinkWeight = 1.2
	externalLinkWeight = 1.0
	topOfPageBoost     = 1.2
	topOfPageWindow    = 1000
)

// LinkAnalyzer splits outbound links into internal and external sets and
// scores each one, favoring same-domain links and links mentioned near the
// top of the page.
type LinkAnalyzer struct{}

// Name implements Stage.
func (*LinkAnalyzer) Name() string { return "link-analyzer" }

// Transform implements Stage.
func (*LinkAnalyzer) Transform(_ context.Context, rec *Record) error {
	var pageHost string
	if u, err := url.Parse(rec.URL); err == nil {
		pageHost = u.Host
	}

	head := rec.Text
	if len(head) > topOfPageWindow {
		head = head[:topOfPageWindow]
	}

	rec.LinkScores = make(map[string]float64, len(rec.Links))
	for _, link := range rec.Links {
		var linkHost string
		if u, err := url.Parse(link); err == nil {
			linkHost = u.Host
		}
		internal := linkHost == pageHost

		s := externalLinkWeight
		if internal {
			s = internalLinkWeight
		}
		if strings.Contains(head, link) {
			s *= topOfPageBoost
		}

		if internal {
			rec.InternalLinks = append(rec.InternalLinks, link)
		} else {
			rec.ExternalLinks = append(rec.ExternalLinks, link)
		}
		rec.LinkScores[link] = s
	}
	return nil
}
