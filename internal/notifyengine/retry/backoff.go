// Package retry implements the backoff schedule and failure classification
// that decide whether a failed dispatch attempt is retried or becomes
// terminal.
package retry

import (
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// delays is the fixed backoff sequence, indexed by retry-count-1, clamped
// to the last entry for any retry count beyond its length.
var delays = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
	1800 * time.Second,
	3600 * time.Second,
}

// Backoff returns the delay to apply before the nth retry (n >= 1).
func Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	idx := retryCount - 1
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

// MaxLifetime is how long after creation a notification auto-expires if it
// never reaches a terminal state.
const MaxLifetime = 24 * time.Hour

// Decision is the outcome of classifying a failed attempt: either schedule
// a retry or mark the notification terminally failed.
type Decision struct {
	Retry       bool
	NextRetryAt time.Time
}

// Classify decides whether a notification should be retried given its
// failure kind, current retry count, max retries, and time since creation.
func Classify(kind model.FailureKind, retryCount, maxRetries int, createdAt, now time.Time) Decision {
	if !kind.Retryable() {
		return Decision{Retry: false}
	}
	if retryCount >= maxRetries {
		return Decision{Retry: false}
	}
	if now.Sub(createdAt) >= MaxLifetime {
		return Decision{Retry: false}
	}
	nextCount := retryCount + 1
	return Decision{Retry: true, NextRetryAt: now.Add(Backoff(nextCount))}
}

// ClassifyHTTPStatus maps a provider HTTP response code to a FailureKind,
// used by channel adapters that speak HTTP (email/webhook/push HTTP APIs).
func ClassifyHTTPStatus(status int) model.FailureKind {
	switch {
	case status == 401:
		return model.FailureAuthenticationFailed
	case status == 403:
		return model.FailureRecipientBlocked
	case status == 404:
		return model.FailureInvalidRecipient
	case status == 429:
		return model.FailureRateLimited
	case status >= 500:
		return model.FailureServiceUnavailable
	case status >= 400:
		return model.FailureContentRejected
	default:
		return model.FailureUnknown
	}
}
