package sinks

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kbryner/webfrontier/internal/events"
)

var eventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "crawler_events_total",
		Help: "Total number of crawl lifecycle events by stage and outcome.",
	},
	[]string{"stage", "outcome"},
)

// PrometheusSink counts events by stage and outcome. The per-fetch latency
// and size histograms are observed at the source; this sink only tracks
// stream volume.
type PrometheusSink struct{}

// NewPrometheusSink returns a sink backed by the package-level collector.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

// Consume increments the event counter for each batch entry.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, e := range batch {
		eventsTotal.WithLabelValues(string(e.Stage), string(e.Outcome)).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
