// Package fetch implements the workers' HTTP layer on top of gocolly.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Request describes a single page fetch.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the outcome of a fetch. StatusCode may be set even when Fetch
// returns an error, for non-2xx responses.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher executes page fetches. Implementations must honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are applied to every request in addition to per-request ones.
	Headers map[string]string
	// MaxConns caps pooled connections in the shared transport (default 100).
	MaxConns int
}

// Client implements Fetcher using a Colly collector cloned per request.
type Client struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a Client with a pooled transport.
func New(cfg Config) *Client {
	c := colly.NewCollector(colly.Async(false))
	// Robots rules are enforced at frontier admission, not per fetch.
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport(cfg.MaxConns)
	c.WithTransport(transport)

	return &Client{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Non-2xx responses return both the
// response (with its status code) and an error.
func (c *Client) Fetch(ctx context.Context, req Request) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	start := time.Now()

	collector := c.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(c.transport)

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range c.cfg.Headers {
			r.Headers.Set(key, value)
		}
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.URL = req.URL
			result.StatusCode = r.StatusCode
			result.Duration = time.Since(start)
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return result, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return result, fmt.Errorf("fetch %s: %w", req.URL, fetchErr)
		}
		if err != nil {
			return result, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
		result.Duration = time.Since(start)
		return result, nil
	}
}

func newHTTPTransport(maxConns int) *http.Transport {
	if maxConns <= 0 {
		maxConns = 100
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
	}
}
