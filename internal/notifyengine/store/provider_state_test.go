package store

import (
	"context"
	"testing"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func TestProviderStateStoreLoadMissingReturnsNil(t *testing.T) {
	s := NewProviderStateStore(openTestDB(t))
	got, err := s.Load(context.Background(), model.ChannelEmail)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("Load(missing) = %+v, want nil", got)
	}
}

func TestProviderStateStoreSaveThenLoad(t *testing.T) {
	s := NewProviderStateStore(openTestDB(t))
	opened := time.Now().UTC().Truncate(time.Second)
	st := &model.ProviderState{
		Channel:          model.ChannelSMS,
		Breaker:          model.BreakerOpen,
		ConsecutiveFails: 5,
		OpenedAt:         &opened,
	}
	if err := s.Save(context.Background(), st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(context.Background(), model.ChannelSMS)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil after Save")
	}
	if got.Breaker != model.BreakerOpen || got.ConsecutiveFails != 5 {
		t.Errorf("Load = %+v, want breaker=open consecutiveFails=5", got)
	}
	if got.OpenedAt == nil {
		t.Error("OpenedAt not persisted")
	}
}

func TestProviderStateStoreSaveIsUpsert(t *testing.T) {
	s := NewProviderStateStore(openTestDB(t))
	st := &model.ProviderState{Channel: model.ChannelPush, Breaker: model.BreakerClosed}
	if err := s.Save(context.Background(), st); err != nil {
		t.Fatalf("Save (initial): %v", err)
	}

	st.Breaker = model.BreakerHalfOpen
	st.ConsecutiveFails = 2
	if err := s.Save(context.Background(), st); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	got, err := s.Load(context.Background(), model.ChannelPush)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Breaker != model.BreakerHalfOpen || got.ConsecutiveFails != 2 {
		t.Errorf("Load after update = %+v, want half_open/2", got)
	}
}
