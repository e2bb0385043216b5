package store

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/template"
)

// CachedPreferenceStore wraps a PreferenceStore with an in-process
// read-through cache, invalidated on every write: preferences and
// templates are read far more often than they change, so a per-process
// cache entry is worth invalidating eagerly rather than polling for
// staleness.
type CachedPreferenceStore struct {
	inner *PreferenceStore
	cache *gocache.Cache
}

// NewCachedPreferenceStore wraps inner with a cache of the given TTL.
func NewCachedPreferenceStore(inner *PreferenceStore, ttl time.Duration) *CachedPreferenceStore {
	return &CachedPreferenceStore{inner: inner, cache: gocache.New(ttl, 2*ttl)}
}

func prefCacheKey(userID, notifType string) string {
	return userID + "|" + notifType
}

// Get returns the cached preference if present, else loads and caches it.
func (c *CachedPreferenceStore) Get(ctx context.Context, userID, notifType string) (*model.UserPreference, error) {
	key := prefCacheKey(userID, notifType)
	if v, ok := c.cache.Get(key); ok {
		p, _ := v.(*model.UserPreference)
		return p, nil
	}
	p, err := c.inner.Get(ctx, userID, notifType)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, p, gocache.DefaultExpiration)
	return p, nil
}

// Put writes through to the store and invalidates the cache entry.
func (c *CachedPreferenceStore) Put(ctx context.Context, p *model.UserPreference) error {
	if err := c.inner.Put(ctx, p); err != nil {
		return err
	}
	c.cache.Delete(prefCacheKey(p.UserID, p.Type))
	return nil
}

// ListBatchable delegates uncached, since sweeper reads scan the whole table.
func (c *CachedPreferenceStore) ListBatchable(ctx context.Context, window model.BatchWindow) ([]*model.UserPreference, error) {
	return c.inner.ListBatchable(ctx, window)
}

// CachedTemplateStore wraps a TemplateStore's active-template lookups,
// the hot path hit by every render, in the same read-through cache style.
type CachedTemplateStore struct {
	inner *TemplateStore
	cache *gocache.Cache
}

// NewCachedTemplateStore wraps inner with a cache of the given TTL.
func NewCachedTemplateStore(inner *TemplateStore, ttl time.Duration) *CachedTemplateStore {
	return &CachedTemplateStore{inner: inner, cache: gocache.New(ttl, 2*ttl)}
}

type cachedTemplateEntry struct {
	tmpl   *model.Template
	schema template.Schema
}

func templateCacheKey(notifType string, channel model.Channel) string {
	return fmt.Sprintf("%s|%s", notifType, channel)
}

// GetActive returns the cached active template, else loads and caches it.
func (c *CachedTemplateStore) GetActive(ctx context.Context, notifType string, channel model.Channel) (*model.Template, template.Schema, error) {
	key := templateCacheKey(notifType, channel)
	if v, ok := c.cache.Get(key); ok {
		e := v.(cachedTemplateEntry)
		return e.tmpl, e.schema, nil
	}
	t, schema, err := c.inner.GetActive(ctx, notifType, channel)
	if err != nil {
		return nil, nil, err
	}
	c.cache.Set(key, cachedTemplateEntry{tmpl: t, schema: schema}, gocache.DefaultExpiration)
	return t, schema, nil
}

// Set writes through and invalidates the active-template cache entry for
// (type, channel) since activation may have changed.
func (c *CachedTemplateStore) Set(ctx context.Context, t *model.Template, schema template.Schema, activate bool) error {
	if err := c.inner.Set(ctx, t, schema, activate); err != nil {
		return err
	}
	c.cache.Delete(templateCacheKey(t.Type, t.Channel))
	return nil
}

// Activate writes through and invalidates the cache entry.
func (c *CachedTemplateStore) Activate(ctx context.Context, id string) error {
	t, _, err := c.inner.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.inner.Activate(ctx, id); err != nil {
		return err
	}
	c.cache.Delete(templateCacheKey(t.Type, t.Channel))
	return nil
}

// List delegates uncached.
func (c *CachedTemplateStore) List(ctx context.Context) ([]*model.Template, error) {
	return c.inner.List(ctx)
}
