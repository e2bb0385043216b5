package store

import (
	"context"
	"testing"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/template"
)

func TestCachedPreferenceStoreCachesAcrossCalls(t *testing.T) {
	db := openTestDB(t)
	inner := NewPreferenceStore(db)
	p := samplePreference()
	if err := inner.Put(context.Background(), p); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c := NewCachedPreferenceStore(inner, time.Minute)
	got, err := c.Get(context.Background(), "user-1", "order.shipped")
	if err != nil {
		t.Fatalf("Get (miss): %v", err)
	}
	if !got.Enabled {
		t.Fatal("expected Enabled true on first load")
	}

	// Mutate the underlying row directly so a cache hit would observe the stale value.
	if _, err := db.Exec(`UPDATE user_preferences SET enabled = 0 WHERE user_id = ? AND type = ?`, "user-1", "order.shipped"); err != nil {
		t.Fatalf("direct update: %v", err)
	}

	cached, err := c.Get(context.Background(), "user-1", "order.shipped")
	if err != nil {
		t.Fatalf("Get (hit): %v", err)
	}
	if !cached.Enabled {
		t.Error("expected cached Get to still report Enabled true, cache was bypassed")
	}
}

func TestCachedPreferenceStorePutInvalidatesCache(t *testing.T) {
	db := openTestDB(t)
	inner := NewPreferenceStore(db)
	c := NewCachedPreferenceStore(inner, time.Minute)

	p := samplePreference()
	if err := c.Put(context.Background(), p); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := c.Get(context.Background(), "user-1", "order.shipped"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	p.Enabled = false
	if err := c.Put(context.Background(), p); err != nil {
		t.Fatalf("Put (update): %v", err)
	}

	got, err := c.Get(context.Background(), "user-1", "order.shipped")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.Enabled {
		t.Error("expected Put to invalidate the cache entry so Get observes the new value")
	}
}

func TestCachedTemplateStoreActivateInvalidatesCache(t *testing.T) {
	db := openTestDB(t)
	inner := NewTemplateStore(db)
	c := NewCachedTemplateStore(inner, time.Minute)

	v1 := sampleTemplate("tmpl-c1", 1)
	if err := c.Set(context.Background(), v1, template.Schema{}, true); err != nil {
		t.Fatalf("Set v1: %v", err)
	}
	v2 := sampleTemplate("tmpl-c2", 2)
	if err := c.Set(context.Background(), v2, template.Schema{}, false); err != nil {
		t.Fatalf("Set v2: %v", err)
	}

	active, _, err := c.GetActive(context.Background(), "order.shipped", model.ChannelEmail)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.ID != "tmpl-c1" {
		t.Fatalf("GetActive = %s, want tmpl-c1", active.ID)
	}

	if err := c.Activate(context.Background(), "tmpl-c2"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	active, _, err = c.GetActive(context.Background(), "order.shipped", model.ChannelEmail)
	if err != nil {
		t.Fatalf("GetActive after activate: %v", err)
	}
	if active.ID != "tmpl-c2" {
		t.Errorf("GetActive after Activate = %s, want tmpl-c2 (stale cache not invalidated)", active.ID)
	}
}
