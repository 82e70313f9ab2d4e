package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObservers(t *testing.T) {
	ObserveCrawlSuccess(2048, 150*time.Millisecond)
	if val := testutil.ToFloat64(pagesCrawledTotal); val < 1 {
		t.Errorf("expected pagesCrawledTotal >= 1, got %f", val)
	}

	ObserveCrawlFailure("timeout")
	if val := testutil.ToFloat64(pagesFailedTotal.WithLabelValues("timeout")); val < 1 {
		t.Errorf("expected timeout failure counter >= 1, got %f", val)
	}

	SetFrontierSize(42)
	if val := testutil.ToFloat64(frontierSize); val != 42 {
		t.Errorf("expected frontier size 42, got %f", val)
	}

	SetDomainQueueSize("Example.com", 7)
	if val := testutil.ToFloat64(domainQueueSize.WithLabelValues("example.com")); val != 7 {
		t.Errorf("expected domain queue size 7, got %f", val)
	}
}
