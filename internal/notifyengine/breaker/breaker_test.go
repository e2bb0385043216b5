package breaker

import (
	"testing"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, OpenDuration: time.Minute})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != model.BreakerClosed {
			t.Fatalf("breaker opened early after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != model.BreakerOpen {
		t.Fatalf("expected breaker open at threshold, got %v", b.State())
	}
	if b.Allow() {
		t.Error("expected Allow() false while open and before recovery timeout")
	}
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond})
	b.RecordFailure()
	if b.State() != model.BreakerOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected Allow() true after recovery timeout elapses")
	}
	if b.State() != model.BreakerHalfOpen {
		t.Fatalf("expected half-open after timeout, got %v", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond})
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Allow() // transitions to half-open
	b.RecordFailure()
	if b.State() != model.BreakerOpen {
		t.Fatalf("expected half-open failure to reopen, got %v", b.State())
	}
}

func TestBreakerSuccessClosesFromAnyState(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenDuration: time.Minute})
	b.RecordFailure()
	if b.State() != model.BreakerOpen {
		t.Fatal("expected open")
	}
	b.RecordSuccess()
	if b.State() != model.BreakerClosed {
		t.Fatalf("expected success to close breaker, got %v", b.State())
	}
}

func TestRegistryCreatesPerChannelBreakers(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 2, OpenDuration: time.Minute})
	email := r.For(model.ChannelEmail)
	sms := r.For(model.ChannelSMS)

	email.RecordFailure()
	email.RecordFailure()
	if email.State() != model.BreakerOpen {
		t.Fatal("expected email breaker open")
	}
	if sms.State() != model.BreakerClosed {
		t.Fatal("expected sms breaker unaffected by email failures")
	}
}

func TestRegistryReconfigureAppliesToExistingBreakers(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 5, OpenDuration: time.Minute})
	b := r.For(model.ChannelEmail)

	r.Reconfigure(Config{FailureThreshold: 1, OpenDuration: time.Minute})
	b.RecordFailure()
	if b.State() != model.BreakerOpen {
		t.Fatalf("expected reconfigured threshold to take effect on existing breaker, got %v", b.State())
	}
}
