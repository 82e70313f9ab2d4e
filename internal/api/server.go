// Package api exposes the crawler's management HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kbryner/webfrontier/internal/config"
	"github.com/kbryner/webfrontier/internal/frontier"
	"github.com/kbryner/webfrontier/internal/metrics"
)

// FrontierService is the slice of the frontier the API depends on.
type FrontierService interface {
	Add(ctx context.Context, rawURL string, opts frontier.AddOptions) (bool, error)
	Stats() frontier.Snapshot
	DomainStats(ctx context.Context, domain string) (*frontier.DomainStats, error)
}

// Server wraps the HTTP management API.
type Server struct {
	cfg      config.Config
	logger   *zap.Logger
	frontier FrontierService
	router   chi.Router
	http     *http.Server
}

// NewServer builds the router and handlers.
func NewServer(cfg config.Config, logger *zap.Logger, fs FrontierService) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		frontier: fs,
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the configured router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("management api listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.Auth.Enabled {
			r.Use(s.apiKeyMiddleware)
		}
		r.Post("/crawl", s.handleCrawl)
		r.Get("/stats", s.handleStats)
		r.Get("/domains/{domain}/stats", s.handleDomainStats)
	})

	return r
}

type crawlRequest struct {
	URLs     []string `json:"urls"`
	Priority *float64 `json:"priority,omitempty"`
}

type crawlResult struct {
	URL      string `json:"url"`
	Accepted bool   `json:"accepted"`
}

type crawlResponse struct {
	Results  []crawlResult `json:"results"`
	Accepted int           `json:"accepted_count"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls must not be empty")
		return
	}

	opts := frontier.AddOptions{}
	if req.Priority != nil {
		opts.Priority = *req.Priority
	}
	resp := crawlResponse{Results: make([]crawlResult, 0, len(req.URLs))}
	for _, u := range req.URLs {
		accepted, err := s.frontier.Add(r.Context(), u, opts)
		if err != nil {
			s.logger.Error("enqueue failed", zap.String("url", u), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "enqueue failed")
			return
		}
		if accepted {
			resp.Accepted++
		}
		resp.Results = append(resp.Results, crawlResult{URL: u, Accepted: accepted})
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type statsResponse struct {
	QueueSize    int            `json:"queue_size"`
	DomainDepths map[string]int `json:"domain_depths"`
	Discovered   int64          `json:"discovered"`
	Completed    int64          `json:"completed"`
	Failed       int64          `json:"failed"`
	SeenURLs     uint64         `json:"seen_urls"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.frontier.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		QueueSize:    snap.QueueSize,
		DomainDepths: snap.DomainDepths,
		Discovered:   snap.Discovered,
		Completed:    snap.Completed,
		Failed:       snap.Failed,
		SeenURLs:     snap.SeenURLs,
	})
}

type domainStatsResponse struct {
	Domain           string    `json:"domain"`
	SuccessCount     int64     `json:"success_count"`
	FailureCount     int64     `json:"failure_count"`
	TotalCount       int64     `json:"total_count"`
	AvgCrawlTime     float64   `json:"avg_crawl_time_seconds"`
	AvgContentLength float64   `json:"avg_content_length"`
	Score            float64   `json:"score"`
	LastCrawled      time.Time `json:"last_crawled"`
}

func (s *Server) handleDomainStats(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	stats, err := s.frontier.DomainStats(r.Context(), domain)
	if err != nil {
		if errors.Is(err, frontier.ErrNotFound) {
			writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		s.logger.Error("load domain stats failed", zap.String("domain", domain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load domain stats failed")
		return
	}
	writeJSON(w, http.StatusOK, domainStatsResponse{
		Domain:           stats.Domain,
		SuccessCount:     stats.SuccessCount,
		FailureCount:     stats.FailureCount,
		TotalCount:       stats.TotalCount,
		AvgCrawlTime:     stats.AvgCrawlTime,
		AvgContentLength: stats.AvgContentLength,
		Score:            stats.Score,
		LastCrawled:      stats.LastCrawled,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.frontier == nil {
		writeError(w, http.StatusServiceUnavailable, "frontier not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
