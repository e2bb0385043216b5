package store

import (
	"context"
	"testing"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func sampleRecord(id string) *model.DeliveryRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.DeliveryRecord{
		NotificationID: id,
		UserID:         "user-1",
		Channel:        model.ChannelEmail,
		State:          model.StateSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestDeliveryRecordStoreUpsertCreatesThenUpdates(t *testing.T) {
	s := NewDeliveryRecordStore(openTestDB(t))
	r := sampleRecord("n-1")
	if err := s.Upsert(context.Background(), r); err != nil {
		t.Fatalf("Upsert (create): %v", err)
	}

	got, err := s.Get(context.Background(), "n-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != model.StateSent {
		t.Errorf("State = %s, want sent", got.State)
	}

	r.State = model.StateDelivered
	delivered := time.Now().UTC().Truncate(time.Second)
	r.DeliveredAt = &delivered
	if err := s.Upsert(context.Background(), r); err != nil {
		t.Fatalf("Upsert (update): %v", err)
	}

	got, err = s.Get(context.Background(), "n-1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.State != model.StateDelivered {
		t.Errorf("State after update = %s, want delivered", got.State)
	}
	if got.DeliveredAt == nil {
		t.Error("DeliveredAt not persisted on update")
	}
}

func TestDeliveryRecordStoreGetMissingReturnsNotFound(t *testing.T) {
	s := NewDeliveryRecordStore(openTestDB(t))
	_, err := s.Get(context.Background(), "missing")
	if err != apierr.ErrNotFound {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestDeliveryRecordStoreAppendAndListAttempts(t *testing.T) {
	s := NewDeliveryRecordStore(openTestDB(t))
	r := sampleRecord("n-2")
	if err := s.Upsert(context.Background(), r); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	a1 := &model.Attempt{
		ID: "a-1", NotificationID: "n-2", Channel: model.ChannelEmail,
		AttemptNumber: 1, StartedAt: now, FinishedAt: now.Add(time.Second),
		Success: false, FailureKind: model.FailureTimeout, ErrorMessage: "timed out",
	}
	a2 := &model.Attempt{
		ID: "a-2", NotificationID: "n-2", Channel: model.ChannelEmail,
		AttemptNumber: 2, StartedAt: now.Add(time.Minute), FinishedAt: now.Add(time.Minute + time.Second),
		Success: true,
	}
	if err := s.AppendAttempt(context.Background(), a1); err != nil {
		t.Fatalf("AppendAttempt a1: %v", err)
	}
	if err := s.AppendAttempt(context.Background(), a2); err != nil {
		t.Fatalf("AppendAttempt a2: %v", err)
	}

	attempts, err := s.ListAttempts(context.Background(), "n-2")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("ListAttempts = %d, want 2", len(attempts))
	}
	if attempts[0].ID != "a-1" || attempts[1].ID != "a-2" {
		t.Errorf("attempts not in append order: %+v", attempts)
	}
	if attempts[0].FailureKind != model.FailureTimeout {
		t.Errorf("attempts[0].FailureKind = %s, want timeout", attempts[0].FailureKind)
	}

	full, err := s.Get(context.Background(), "n-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(full.Attempts) != 2 {
		t.Errorf("Get did not populate Attempts: %+v", full.Attempts)
	}
}

func TestDeliveryRecordStoreSetNextRetryAndDueForRetry(t *testing.T) {
	s := NewDeliveryRecordStore(openTestDB(t))
	r := sampleRecord("n-3")
	if err := s.Upsert(context.Background(), r); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	past := time.Now().Add(-time.Minute)
	if err := s.SetNextRetry(context.Background(), "n-3", past); err != nil {
		t.Fatalf("SetNextRetry: %v", err)
	}

	due, err := s.DueForRetry(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DueForRetry: %v", err)
	}
	if len(due) != 1 || due[0].NotificationID != "n-3" {
		t.Errorf("DueForRetry = %v, want only n-3", due)
	}
}

func TestDeliveryRecordStoreCleanupOldOnlyRemovesTerminalStates(t *testing.T) {
	s := NewDeliveryRecordStore(openTestDB(t))
	old := time.Now().Add(-30 * 24 * time.Hour)

	terminal := sampleRecord("n-terminal")
	terminal.State = model.StateDelivered
	terminal.UpdatedAt = old
	active := sampleRecord("n-active")
	active.State = model.StateSent
	active.UpdatedAt = old

	if err := s.Upsert(context.Background(), terminal); err != nil {
		t.Fatalf("Upsert terminal: %v", err)
	}
	if err := s.Upsert(context.Background(), active); err != nil {
		t.Fatalf("Upsert active: %v", err)
	}

	n, err := s.CleanupOld(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupOld removed %d rows, want 1", n)
	}

	if _, err := s.Get(context.Background(), "n-terminal"); err != apierr.ErrNotFound {
		t.Errorf("terminal record survived cleanup: err=%v", err)
	}
	if _, err := s.Get(context.Background(), "n-active"); err != nil {
		t.Errorf("active record was wrongly cleaned up: err=%v", err)
	}
}
