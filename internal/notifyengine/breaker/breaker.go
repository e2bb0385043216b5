// Package breaker implements the per-provider circuit breaker gating
// channel dispatch, grounded on the failure-count/state transition style of
// ChannelManager.RecordSuccess/RecordFailure
// (src/services/channel_manager.go), generalized into a standalone
// Closed/Open/HalfOpen state machine.
package breaker

import (
	"sync"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// Config tunes a single breaker's thresholds.
type Config struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

// Breaker is a per-provider circuit breaker.
type Breaker struct {
	mu               sync.Mutex
	cfg              Config
	state            model.BreakerState
	consecutiveFails int
	openedAt         time.Time
}

// New creates a Breaker starting Closed.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: model.BreakerClosed}
}

// Allow reports whether a dispatch attempt may proceed right now. If the
// breaker is Open but the recovery timeout has elapsed, it transitions to
// HalfOpen and allows exactly one probing call through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case model.BreakerClosed:
		return true
	case model.BreakerHalfOpen:
		// The single probe is already in flight; hold further calls until
		// its outcome closes or re-opens the breaker.
		return false
	case model.BreakerOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = model.BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker from any state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = model.BreakerClosed
	b.consecutiveFails = 0
}

// RecordFailure increments the failure count. From Closed it opens the
// breaker once the configured threshold is reached; from HalfOpen a single
// failure re-opens it immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case model.BreakerHalfOpen:
		b.open()
	case model.BreakerClosed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.open()
		}
	case model.BreakerOpen:
		// already open, nothing to do
	}
}

func (b *Breaker) open() {
	b.state = model.BreakerOpen
	b.openedAt = time.Now()
	b.consecutiveFails = b.cfg.FailureThreshold
}

// State returns the current breaker state for observability.
func (b *Breaker) State() model.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry holds one Breaker per channel.
type Registry struct {
	mu       sync.Mutex
	breakers map[model.Channel]*Breaker
	cfg      Config
}

// NewRegistry creates a Registry applying cfg to every breaker it lazily
// creates.
func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[model.Channel]*Breaker), cfg: cfg}
}

// For returns the breaker for ch, creating it on first use.
func (r *Registry) For(ch model.Channel) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[ch]
	if !ok {
		b = New(r.cfg)
		r.breakers[ch] = b
	}
	return b
}

// Reconfigure applies cfg to the registry's default and to every breaker
// already created, so an operator's config hot-reload takes effect without
// a restart. It never touches a breaker's current state, only its
// thresholds.
func (r *Registry) Reconfigure(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	for _, b := range r.breakers {
		b.mu.Lock()
		b.cfg = cfg
		b.mu.Unlock()
	}
}
