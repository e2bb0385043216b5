package retry

import (
	"testing"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func TestBackoffClampsToLastEntry(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 60 * time.Second},
		{1, 60 * time.Second},
		{2, 300 * time.Second},
		{5, 3600 * time.Second},
		{50, 3600 * time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(tc.retryCount); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.retryCount, got, tc.want)
		}
	}
}

func TestClassifyNonRetryableKindNeverRetries(t *testing.T) {
	now := time.Now()
	d := Classify(model.FailureInvalidRecipient, 0, 5, now, now)
	if d.Retry {
		t.Error("expected non-retryable failure kind to never retry")
	}
}

func TestClassifyStopsAtMaxRetries(t *testing.T) {
	now := time.Now()
	d := Classify(model.FailureServiceUnavailable, 3, 3, now, now)
	if d.Retry {
		t.Error("expected retry count at max to stop retrying")
	}
}

func TestClassifyStopsAfterMaxLifetime(t *testing.T) {
	createdAt := time.Now().Add(-25 * time.Hour)
	d := Classify(model.FailureServiceUnavailable, 0, 5, createdAt, time.Now())
	if d.Retry {
		t.Error("expected notification older than MaxLifetime to stop retrying")
	}
}

func TestClassifyRetriesWithinBudget(t *testing.T) {
	now := time.Now()
	d := Classify(model.FailureServiceUnavailable, 1, 5, now, now)
	if !d.Retry {
		t.Fatal("expected retry within budget and lifetime")
	}
	wantNext := now.Add(Backoff(2))
	if !d.NextRetryAt.Equal(wantNext) {
		t.Errorf("NextRetryAt = %v, want %v", d.NextRetryAt, wantNext)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   model.FailureKind
	}{
		{401, model.FailureAuthenticationFailed},
		{403, model.FailureRecipientBlocked},
		{404, model.FailureInvalidRecipient},
		{429, model.FailureRateLimited},
		{500, model.FailureServiceUnavailable},
		{503, model.FailureServiceUnavailable},
		{422, model.FailureContentRejected},
		{200, model.FailureUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyHTTPStatus(tc.status); got != tc.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
