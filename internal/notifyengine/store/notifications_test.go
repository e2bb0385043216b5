package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleNotification(id string) *model.Notification {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Notification{
		ID:               id,
		UserID:           "user-1",
		Type:             "order.shipped",
		Channel:          model.ChannelEmail,
		FallbackChannels: []model.Channel{model.ChannelSMS, model.ChannelPush},
		Priority:         model.PriorityNormal,
		TemplateID:       "tmpl-1",
		Variables:        map[string]interface{}{"order_id": "o-1"},
		Recipient:        "user@example.com",
		Subject:          "Your order shipped",
		Body:             "Order o-1 is on its way.",
		State:            model.StatePending,
		MaxRetries:       3,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestNotificationStoreCreateAndGet(t *testing.T) {
	s := NewNotificationStore(openTestDB(t))
	n := sampleNotification("n-1")
	if err := s.Create(context.Background(), n); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(context.Background(), "n-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != n.UserID || got.Recipient != n.Recipient {
		t.Errorf("Get returned %+v, want match for %+v", got, n)
	}
	if len(got.FallbackChannels) != 2 || got.FallbackChannels[0] != model.ChannelSMS {
		t.Errorf("FallbackChannels round-trip = %v", got.FallbackChannels)
	}
	if got.Variables["order_id"] != "o-1" {
		t.Errorf("Variables round-trip = %v", got.Variables)
	}
}

func TestNotificationStoreGetMissingReturnsNotFound(t *testing.T) {
	s := NewNotificationStore(openTestDB(t))
	_, err := s.Get(context.Background(), "missing")
	if err != apierr.ErrNotFound {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestNotificationStoreTryLeaseIsExclusive(t *testing.T) {
	s := NewNotificationStore(openTestDB(t))
	n := sampleNotification("n-2")
	n.State = model.StateQueued
	if err := s.Create(context.Background(), n); err != nil {
		t.Fatalf("Create: %v", err)
	}

	won, err := s.TryLease(context.Background(), "n-2")
	if err != nil {
		t.Fatalf("TryLease: %v", err)
	}
	if !won {
		t.Fatal("expected first TryLease to win")
	}

	won, err = s.TryLease(context.Background(), "n-2")
	if err != nil {
		t.Fatalf("TryLease (second): %v", err)
	}
	if won {
		t.Error("expected second TryLease on an already-Sending notification to lose")
	}
}

func TestNotificationStoreUpdateState(t *testing.T) {
	s := NewNotificationStore(openTestDB(t))
	n := sampleNotification("n-3")
	if err := s.Create(context.Background(), n); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.UpdateState(context.Background(), "n-3", model.StateFailedRetryable, 1); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	got, err := s.Get(context.Background(), "n-3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != model.StateFailedRetryable || got.RetryCount != 1 {
		t.Errorf("got state=%s retryCount=%d, want failed_retryable/1", got.State, got.RetryCount)
	}
}

func TestNotificationStoreReroute(t *testing.T) {
	s := NewNotificationStore(openTestDB(t))
	n := sampleNotification("n-4")
	n.State = model.StateFailedFinal
	n.RetryCount = 2
	if err := s.Create(context.Background(), n); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Reroute(context.Background(), "n-4", model.ChannelSMS, []model.Channel{model.ChannelPush}); err != nil {
		t.Fatalf("Reroute: %v", err)
	}

	got, err := s.Get(context.Background(), "n-4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Channel != model.ChannelSMS {
		t.Errorf("Channel = %s, want sms", got.Channel)
	}
	if len(got.FallbackChannels) != 1 || got.FallbackChannels[0] != model.ChannelPush {
		t.Errorf("FallbackChannels = %v, want [push]", got.FallbackChannels)
	}
	if got.State != model.StateQueued || got.RetryCount != 0 {
		t.Errorf("state=%s retryCount=%d, want queued/0", got.State, got.RetryCount)
	}
}

func TestNotificationStoreListScheduled(t *testing.T) {
	s := NewNotificationStore(openTestDB(t))
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := sampleNotification("n-due")
	due.NotBefore = &past
	notDue := sampleNotification("n-not-due")
	notDue.NotBefore = &future

	if err := s.Create(context.Background(), due); err != nil {
		t.Fatalf("Create due: %v", err)
	}
	if err := s.Create(context.Background(), notDue); err != nil {
		t.Fatalf("Create notDue: %v", err)
	}

	got, err := s.ListScheduled(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ListScheduled: %v", err)
	}
	if len(got) != 1 || got[0].ID != "n-due" {
		t.Errorf("ListScheduled = %v, want only n-due", got)
	}
}

func TestNotificationStoreListByUserFiltersAndLimits(t *testing.T) {
	s := NewNotificationStore(openTestDB(t))
	for i := 0; i < 3; i++ {
		n := sampleNotification("n-" + string(rune('a'+i)))
		if i == 2 {
			n.Channel = model.ChannelSMS
		}
		if err := s.Create(context.Background(), n); err != nil {
			t.Fatalf("Create: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	all, err := s.ListByUser(context.Background(), "user-1", "", "", 10)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListByUser = %d rows, want 3", len(all))
	}

	filtered, err := s.ListByUser(context.Background(), "user-1", "sms", "", 10)
	if err != nil {
		t.Fatalf("ListByUser(sms): %v", err)
	}
	if len(filtered) != 1 {
		t.Errorf("ListByUser(sms) = %d rows, want 1", len(filtered))
	}

	limited, err := s.ListByUser(context.Background(), "user-1", "", "", 1)
	if err != nil {
		t.Fatalf("ListByUser(limit 1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListByUser(limit 1) = %d rows, want 1", len(limited))
	}
}

func TestNotificationStoreListExpiringExcludesTerminalStates(t *testing.T) {
	s := NewNotificationStore(openTestDB(t))
	old := time.Now().Add(-48 * time.Hour)

	stale := sampleNotification("n-stale")
	stale.CreatedAt = old
	delivered := sampleNotification("n-delivered")
	delivered.CreatedAt = old
	delivered.State = model.StateDelivered

	if err := s.Create(context.Background(), stale); err != nil {
		t.Fatalf("Create stale: %v", err)
	}
	if err := s.Create(context.Background(), delivered); err != nil {
		t.Fatalf("Create delivered: %v", err)
	}

	got, err := s.ListExpiring(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListExpiring: %v", err)
	}
	if len(got) != 1 || got[0].ID != "n-stale" {
		t.Errorf("ListExpiring = %v, want only n-stale", got)
	}
}
