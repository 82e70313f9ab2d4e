package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kbryner/webfrontier/internal/events"
)

// Classify maps a fetch result onto the outcome taxonomy. Timeouts win over
// status codes so a slow 503 is still reported as a timeout.
func Classify(statusCode int, err error) events.Outcome {
	if isTimeout(err) {
		return events.OutcomeTimeout
	}
	if statusCode >= 100 && (statusCode < 200 || statusCode >= 300) {
		return events.OutcomeHTTPError
	}
	if err != nil {
		return events.OutcomeWorkerError
	}
	return events.OutcomeSuccess
}

// Retryable reports whether the failure is transient: a timeout, HTTP 429, or
// HTTP 503. Everything else is terminal.
func Retryable(statusCode int, err error) bool {
	if isTimeout(err) {
		return true
	}
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
