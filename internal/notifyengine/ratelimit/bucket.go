// Package ratelimit implements the per-channel token bucket gating dispatch
// rate, with an optional Redis-backed shared bucket for multi-process
// deployments, grounded on redis wrapper
// (src/services/cache.go) and its graceful-degrade-to-local-only posture.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// Bucket is a single in-process token bucket, refilled linearly.
type Bucket struct {
	mu            sync.Mutex
	ratePerSecond float64
	burst         float64
	tokens        float64
	lastRefill    time.Time
}

// NewBucket creates a Bucket starting full.
func NewBucket(ratePerSecond float64, burst int) *Bucket {
	return &Bucket{
		ratePerSecond: ratePerSecond,
		burst:         float64(burst),
		tokens:        float64(burst),
		lastRefill:    time.Now(),
	}
}

func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.ratePerSecond
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}

// Acquire is a non-blocking attempt to take one token. It returns false
// without blocking when the bucket is empty.
func (b *Bucket) Acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Registry holds one Bucket per channel, optionally mirrored into Redis so
// a cluster of workers shares the same rate budget.
type Registry struct {
	mu      sync.Mutex
	buckets map[model.Channel]*Bucket
	redis   *redis.Client
}

// NewRegistry creates a Registry. redisClient may be nil, in which case
// rate limiting is purely local to this process.
func NewRegistry(redisClient *redis.Client) *Registry {
	return &Registry{buckets: make(map[model.Channel]*Bucket), redis: redisClient}
}

// Configure installs or replaces the bucket parameters for a channel.
func (r *Registry) Configure(ch model.Channel, ratePerSecond float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[ch] = NewBucket(ratePerSecond, burst)
}

// Acquire attempts to take one token for ch. When a shared Redis backend is
// configured, it additionally increments a shared counter keyed by the
// current wall-clock second and refuses once that counter passes the
// channel's burst size, so worker processes together take at most burst
// tokens per second; the local bucket still shapes burstiness within this
// process.
func (r *Registry) Acquire(ctx context.Context, ch model.Channel) bool {
	r.mu.Lock()
	bucket, ok := r.buckets[ch]
	r.mu.Unlock()
	if !ok {
		return true
	}
	if !bucket.Acquire() {
		return false
	}
	if r.redis == nil {
		return true
	}

	key := "notifyengine:ratelimit:" + string(ch) + ":" + time.Now().Format("2006-01-02T15:04:05")
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		// Redis unavailable: degrade to local-only limiting rather than
		// block dispatch on an optional dependency.
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, key, 2*time.Second)
	}
	bucket.mu.Lock()
	cap := bucket.burst
	bucket.mu.Unlock()
	return float64(count) <= cap
}
