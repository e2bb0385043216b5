// Package worker implements the pool that drains the priority queue and
// drives each notification through preference evaluation, rendering,
// rate-limiting, circuit-breaking, dispatch, and outcome recording in a
// single ordered pipeline. It is grounded on the DeliverySystem worker
// loop (src/services/delivery_system.go), which pulls one job at a time
// from an in-process queue and records outcomes through a similar
// load/check/dispatch/record shape.
package worker

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/breaker"
	"github.com/apimgr/notifyengine/internal/notifyengine/channel"
	"github.com/apimgr/notifyengine/internal/notifyengine/metrics"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/preference"
	"github.com/apimgr/notifyengine/internal/notifyengine/queue"
	"github.com/apimgr/notifyengine/internal/notifyengine/ratelimit"
	"github.com/apimgr/notifyengine/internal/notifyengine/retry"
	"github.com/apimgr/notifyengine/internal/notifyengine/store"
	"github.com/apimgr/notifyengine/internal/notifyengine/template"
)

// RecipientResolver looks up the delivery address for a notification's
// target channel. This is the seam to the external user-directory service
// the engine depends on but does not own; n.Recipient carries whatever
// address the caller supplied at admission time, for resolvers that don't
// need a directory lookup at all.
type RecipientResolver interface {
	Resolve(ctx context.Context, n *model.Notification) (channel.RecipientInfo, error)
}

// PreferenceStore is the subset of store.CachedPreferenceStore the pool needs.
type PreferenceStore interface {
	Get(ctx context.Context, userID, notifType string) (*model.UserPreference, error)
}

// TemplateStore is the subset of store.CachedTemplateStore the pool needs.
type TemplateStore interface {
	GetActive(ctx context.Context, notifType string, ch model.Channel) (*model.Template, template.Schema, error)
}

// Deps bundles every collaborator a Pool dispatches through.
type Deps struct {
	Queue        *queue.Queue
	Notifications *store.NotificationStore
	Delivery     *store.DeliveryRecordStore
	Preferences  PreferenceStore
	Templates    TemplateStore
	Batches      *preference.BatchStore
	Channels     *channel.Registry
	RateLimits   *ratelimit.Registry
	Breakers     *breaker.Registry
	Recipients   RecipientResolver
	Metrics      *metrics.Aggregator
	MaxRetries   int
	DialTimeout  time.Duration
}

// Pool runs N goroutines pulling from Deps.Queue until Stop is called.
type Pool struct {
	deps Deps
	n    int

	wg   sync.WaitGroup
	stop chan struct{}
}

// New creates a Pool of n workers.
func New(deps Deps, n int) *Pool {
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = 3
	}
	if deps.DialTimeout <= 0 {
		deps.DialTimeout = 30 * time.Second
	}
	return &Pool{deps: deps, n: n, stop: make(chan struct{})}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.loop(i)
	}
}

// Stop signals every worker to exit and waits for them to drain.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		notificationID, ok := p.deps.Queue.Dequeue()
		if !ok {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.deps.DialTimeout)
		p.process(ctx, notificationID)
		cancel()
	}
}

// process runs the full dispatch pipeline for one notification. Every error
// path updates the store and emits metrics rather than propagating, since
// there is nothing upstream left to report to once a notification has
// been dequeued.
func (p *Pool) process(ctx context.Context, notificationID string) {
	n, err := p.deps.Notifications.Get(ctx, notificationID)
	if err != nil {
		log.Printf("⚠️  worker: failed to load %s: %v", notificationID, err)
		return
	}

	// Step 1: duplicate-delivery guard.
	if n.State != model.StatePending && n.State != model.StateQueued {
		return
	}

	// Step 2: preference check.
	pref, err := p.deps.Preferences.Get(ctx, n.UserID, n.Type)
	if err != nil && err != apierr.ErrNotFound {
		log.Printf("⚠️  worker: failed to load preferences for %s: %v", n.UserID, err)
		return
	}
	if err == apierr.ErrNotFound {
		pref = nil
	}

	decision := preference.Evaluate(pref, n.Type, n.Channel, n.Priority, time.Now())
	if decision.Defer {
		p.deps.Batches.Append(n.UserID, n.Type, string(n.Channel), n.ID, n.Subject)
		p.deps.Notifications.UpdateState(ctx, n.ID, model.StateSent, n.RetryCount)
		return
	}
	if !decision.Send {
		p.deps.Notifications.UpdateState(ctx, n.ID, model.StateCancelled, n.RetryCount)
		metrics.NotificationsBlocked.WithLabelValues(n.Type, decision.Reason).Inc()
		return
	}

	// Step 3: render.
	subject, body, renderErr := p.render(ctx, n)
	if renderErr != nil {
		p.failFinal(ctx, n, model.FailureInvalidTemplate, renderErr.Error())
		return
	}
	n.Subject, n.Body = subject, body

	// Step 4: resolve recipient.
	recipient, err := p.deps.Recipients.Resolve(ctx, n)
	if err != nil {
		p.failFinal(ctx, n, model.FailureInvalidRecipient, err.Error())
		return
	}

	// Step 5: Queued -> Sending CAS lease.
	leased, err := p.deps.Notifications.TryLease(ctx, n.ID)
	if err != nil {
		log.Printf("⚠️  worker: failed to lease %s: %v", n.ID, err)
		return
	}
	if !leased {
		// Another worker already owns this notification.
		return
	}
	p.upsertRecord(ctx, n, model.StateSending, "")

	// Step 6: rate-limit gate.
	if !p.deps.RateLimits.Acquire(ctx, n.Channel) {
		metrics.RateLimited.WithLabelValues(string(n.Channel)).Inc()
		jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
		retryAt := time.Now().Add(300*time.Millisecond + jitter)
		p.requeueRetryable(ctx, n, retryAt, false)
		return
	}

	// Step 7: circuit breaker check.
	br := p.deps.Breakers.For(n.Channel)
	metrics.BreakerState.WithLabelValues(string(n.Channel)).Set(metrics.BreakerStateValue(string(br.State())))
	if !br.Allow() {
		p.retryOrFail(ctx, n, model.FailureServiceUnavailable, "circuit breaker open", 0)
		return
	}

	// Step 8: dispatch.
	adapter, err := p.deps.Channels.Get(n.Channel)
	if err != nil {
		p.failFinal(ctx, n, model.FailureUnknown, err.Error())
		return
	}

	started := time.Now()
	outcome, dispatchErr := adapter.Send(ctx, n, recipient)
	durationMs := time.Since(started).Milliseconds()

	attempt := &model.Attempt{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		Channel:        n.Channel,
		AttemptNumber:  n.RetryCount + 1,
		StartedAt:      started,
		FinishedAt:     time.Now(),
	}

	// Step 9: outcome recording.
	if dispatchErr != nil || !outcome.Success {
		br.RecordFailure()
		kind := outcome.ClassifiedFailure
		if kind == "" {
			kind = model.FailureUnknown
		}
		msg := outcome.ErrorMessage
		if dispatchErr != nil {
			msg = dispatchErr.Error()
		}
		attempt.Success = false
		attempt.FailureKind = kind
		attempt.ErrorMessage = msg
		p.deps.Delivery.AppendAttempt(ctx, attempt)

		metrics.NotificationsFailed.WithLabelValues(string(n.Channel), n.Type, string(kind)).Inc()
		p.deps.Metrics.Emit(notifmetrics(n.Channel, 0, 0, 0, 1, 0))

		p.retryOrFail(ctx, n, kind, msg, durationMs)
		return
	}

	br.RecordSuccess()
	attempt.Success = true
	attempt.ProviderRef = outcome.ProviderDeliveryID
	p.deps.Delivery.AppendAttempt(ctx, attempt)

	// In-app delivery is synchronous: Sent -> Delivered immediately after
	// store+publish, no provider ack step.
	state := model.StateSent
	if n.Channel == model.ChannelInApp {
		state = model.StateDelivered
	}
	p.deps.Notifications.UpdateState(ctx, n.ID, state, n.RetryCount)
	p.upsertRecord(ctx, n, state, "")

	metrics.NotificationsSent.WithLabelValues(string(n.Channel), n.Type).Inc()
	if state == model.StateDelivered {
		metrics.NotificationsDelivered.WithLabelValues(string(n.Channel), n.Type).Inc()
	}
	metrics.DeliveryTimeMs.WithLabelValues(string(n.Channel)).Observe(float64(durationMs))
	p.deps.Metrics.Emit(notifmetrics(n.Channel, 1, boolToInt64(state == model.StateDelivered), 0, 0, durationMs))
}

func (p *Pool) render(ctx context.Context, n *model.Notification) (string, string, error) {
	if n.TemplateID == "" && n.Body != "" {
		return n.Subject, n.Body, nil
	}

	tmpl, schema, err := p.deps.Templates.GetActive(ctx, n.Type, n.Channel)
	if err != nil {
		return "", "", fmt.Errorf("failed to load active template for %s/%s: %w", n.Type, n.Channel, err)
	}

	def := template.Definition{
		Name:    tmpl.ID,
		Channel: tmpl.Channel,
		Subject: tmpl.Subject,
		Body:    tmpl.Body,
		Schema:  schema,
	}
	return template.Render(def, n.Variables)
}

// retryOrFail applies classification: retryable-and-within-budget
// requeues with backoff, otherwise the notification becomes Failed-Final.
func (p *Pool) retryOrFail(ctx context.Context, n *model.Notification, kind model.FailureKind, msg string, _ int64) {
	decision := retry.Classify(kind, n.RetryCount, p.deps.MaxRetries, n.CreatedAt, time.Now())
	if !decision.Retry {
		p.failFinal(ctx, n, kind, msg)
		return
	}
	p.requeueRetryable(ctx, n, decision.NextRetryAt, true)
}

// requeueRetryable moves a notification to Failed-Retryable then Queued,
// scheduling the sweeper pickup at retryAt. When countsAgainstBudget is
// true, retry-count is incremented; the short rate-limit backoff path does
// not consume retry budget.
func (p *Pool) requeueRetryable(ctx context.Context, n *model.Notification, retryAt time.Time, countsAgainstBudget bool) {
	retryCount := n.RetryCount
	if countsAgainstBudget {
		retryCount++
	}
	p.deps.Notifications.UpdateState(ctx, n.ID, model.StateQueued, retryCount)
	p.upsertRecord(ctx, n, model.StateFailedRetryable, "")
	if err := p.deps.Delivery.SetNextRetry(ctx, n.ID, retryAt); err != nil {
		log.Printf("⚠️  worker: failed to schedule retry for %s: %v", n.ID, err)
	}
}

// failFinal marks a notification Failed-Final, unless it still has an
// untried fallback channel queued up, per the routing-system fallback
// rule: it is rerouted to the first remaining entry in FallbackChannels,
// so each fallback channel gets a delivery leg in turn before the
// notification is given up on entirely.
func (p *Pool) failFinal(ctx context.Context, n *model.Notification, kind model.FailureKind, msg string) {
	if len(n.FallbackChannels) > 0 {
		next := n.FallbackChannels[0]
		remaining := n.FallbackChannels[1:]
		if err := p.deps.Notifications.Reroute(ctx, n.ID, next, remaining); err != nil {
			log.Printf("⚠️  worker: failed to reroute %s to fallback channel %s: %v", n.ID, next, err)
		} else {
			p.deps.Queue.Enqueue(n.ID, n.Priority)
			return
		}
	}
	p.deps.Notifications.UpdateState(ctx, n.ID, model.StateFailedFinal, n.RetryCount)
	p.upsertRecord(ctx, n, model.StateFailedFinal, msg)
	metrics.NotificationsFailed.WithLabelValues(string(n.Channel), n.Type, string(kind)).Inc()
}

func (p *Pool) upsertRecord(ctx context.Context, n *model.Notification, state model.State, lastError string) {
	now := time.Now()
	r := &model.DeliveryRecord{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Channel:        n.Channel,
		State:          state,
		LastError:      lastError,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      now,
	}
	switch state {
	case model.StateSent:
		r.SentAt = &now
	case model.StateDelivered:
		r.DeliveredAt = &now
	case model.StateFailedFinal, model.StateFailedRetryable:
		r.FailedAt = &now
	}
	if err := p.deps.Delivery.Upsert(ctx, r); err != nil {
		log.Printf("⚠️  worker: failed to upsert delivery record for %s: %v", n.ID, err)
	}
}

func notifmetrics(ch model.Channel, sent, delivered, read, failed, latencyMs int64) metrics.Event {
	return metrics.Event{Channel: ch, Sent: sent, Delivered: delivered, Read: read, Failed: failed, LatencyMs: latencyMs}
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
