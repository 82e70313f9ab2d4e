// Package sinks provides Sink implementations for the event hub.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/kbryner/webfrontier/internal/events"
)

// LogSink emits structured logs for the event stream. Useful during
// development or audits where a durable destination is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, e := range batch {
		s.logger.Info("crawl event",
			zap.String("stage", string(e.Stage)),
			zap.String("url", e.URL),
			zap.String("domain", e.Domain),
			zap.String("outcome", string(e.Outcome)),
			zap.Int("status_code", e.StatusCode),
			zap.Int64("bytes", e.Bytes),
			zap.Duration("dur", e.Duration),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
