package ratelimit

import (
	"context"
	"testing"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func TestBucketAcquireDrainsAndRefills(t *testing.T) {
	b := NewBucket(1000, 2) // high rate so refill within the test isn't the bottleneck
	if !b.Acquire() {
		t.Fatal("expected first acquire on a full bucket to succeed")
	}
	if !b.Acquire() {
		t.Fatal("expected second acquire to succeed (burst=2)")
	}
	if b.Acquire() {
		t.Fatal("expected third acquire to fail once burst is exhausted")
	}
}

func TestRegistryUnconfiguredChannelAllowsUnlimited(t *testing.T) {
	r := NewRegistry(nil)
	if !r.Acquire(context.Background(), model.ChannelEmail) {
		t.Error("expected an unconfigured channel to have no limit")
	}
}

func TestRegistryConfiguredChannelEnforcesBurst(t *testing.T) {
	r := NewRegistry(nil)
	r.Configure(model.ChannelSMS, 0, 1) // zero refill rate, burst of 1

	if !r.Acquire(context.Background(), model.ChannelSMS) {
		t.Fatal("expected first acquire to succeed")
	}
	if r.Acquire(context.Background(), model.ChannelSMS) {
		t.Fatal("expected second acquire to fail with a zero refill rate and burst of 1")
	}
}
