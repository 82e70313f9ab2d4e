// Package events defines the completion event stream emitted by the frontier
// and the hub that fans it out to downstream sinks.
package events

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes which lifecycle milestone an Event represents.
type Stage string

const (
	StageDiscovered  Stage = "DISCOVERED"
	StageFetchDone   Stage = "FETCH_DONE"
	StageFetchFailed Stage = "FETCH_FAILED"
)

// Outcome classifies a finished fetch attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeHTTPError   Outcome = "http-error"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeRobotsError Outcome = "robots-error"
	OutcomeWorkerError Outcome = "worker-error"
)

// Event captures a single frontier milestone for one URL.
type Event struct {
	// Stage denotes which milestone occurred.
	Stage Stage `json:"stage"`
	// URL is the normalized page URL; it must not contain credentials.
	URL string `json:"url"`
	// Domain scopes the event to a host label.
	Domain string `json:"domain"`
	// Outcome classifies terminal events; empty for discovery.
	Outcome Outcome `json:"outcome,omitempty"`
	// StatusCode is the final HTTP status, when one was received.
	StatusCode int `json:"status_code,omitempty"`
	// Bytes carries the response body size.
	Bytes int64 `json:"bytes,omitempty"`
	// Duration captures fetch latency.
	Duration time.Duration `json:"duration,omitempty"`
	// At is the UTC timestamp recorded by the emitter.
	At time.Time `json:"at"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.URL == "" {
		return errors.New("url is required")
	}
	if e.At.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageDiscovered:
	case StageFetchDone, StageFetchFailed:
		if e.Outcome == "" {
			return errors.New("terminal event requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Duration < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
