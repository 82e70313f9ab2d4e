package fetch

import (
	"math"
	"time"
)

// maxBackoff caps the exponential retry delay.
const maxBackoff = 300 * time.Second

// RetryPolicy bounds retries of transient failures. Retry counters are
// explicit loop state owned by the in-flight worker task; a failed URL is
// never returned to the shared queue for retry.
type RetryPolicy struct {
	MaxRetries      int
	PolitenessDelay time.Duration
}

// Delay returns the backoff before retry number retryCount (0-based):
// 2^retryCount times the politeness delay, capped at 300s.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	base := p.PolitenessDelay
	if base <= 0 {
		base = time.Second
	}
	backoff := time.Duration(float64(base) * math.Pow(2, float64(retryCount)))
	if backoff <= 0 || backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

// ShouldRetry reports whether another attempt is allowed after retryCount
// failed attempts with the given result.
func (p RetryPolicy) ShouldRetry(retryCount, statusCode int, err error) bool {
	if retryCount >= p.MaxRetries {
		return false
	}
	return Retryable(statusCode, err)
}
