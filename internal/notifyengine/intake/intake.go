// Package intake validates and admits incoming notification requests:
// schema/length checks up front, then either a straight enqueue into the
// live priority queue or a parked entry in the scheduled set when the
// caller asked for future delivery.
package intake

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/queue"
	"github.com/apimgr/notifyengine/internal/notifyengine/store"
)

// Request is the caller-supplied payload for one notification.
type Request struct {
	UserID           string
	Type             string
	Channel          model.Channel
	FallbackChannels []model.Channel
	Priority         model.Priority
	TemplateID       string
	Variables        map[string]interface{}
	Recipient        string
	Subject          string
	Body             string
	ScheduledAt      *time.Time
	ExpiresAt        *time.Time
	MaxRetries       int
}

// limits are the per-channel subject/body length bounds the admission
// layer enforces before a notification ever reaches a worker.
type limits struct {
	subject int
	body    int
}

var channelLimits = map[model.Channel]limits{
	model.ChannelEmail:   {subject: 200, body: 50000},
	model.ChannelSMS:     {subject: 0, body: 1600},
	model.ChannelPush:    {subject: 50, body: 200},
	model.ChannelInApp:   {subject: 100, body: 1000},
	model.ChannelWebhook: {subject: 200, body: 50000},
}

// Admitter validates and admits notifications into storage and the queue.
type Admitter struct {
	Notifications *store.NotificationStore
	Queue         *queue.Queue
	Scheduled     *queue.ScheduledSet
	DefaultMaxRetries int
}

// New builds an Admitter.
func New(notifications *store.NotificationStore, q *queue.Queue, scheduled *queue.ScheduledSet, defaultMaxRetries int) *Admitter {
	return &Admitter{Notifications: notifications, Queue: q, Scheduled: scheduled, DefaultMaxRetries: defaultMaxRetries}
}

// Admit validates req, persists a Pending notification, and either queues
// it immediately or parks it in the scheduled set, returning the new
// notification's ID.
func (a *Admitter) Admit(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	now := time.Now()
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = a.DefaultMaxRetries
	}

	n := &model.Notification{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		Type:             req.Type,
		Channel:          req.Channel,
		FallbackChannels: req.FallbackChannels,
		Priority:         req.Priority,
		TemplateID:       req.TemplateID,
		Variables:        req.Variables,
		Recipient:        req.Recipient,
		Subject:          req.Subject,
		Body:             req.Body,
		State:            model.StatePending,
		MaxRetries:       maxRetries,
		NotBefore:        req.ScheduledAt,
		ExpiresAt:        req.ExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := a.Notifications.Create(ctx, n); err != nil {
		return "", fmt.Errorf("failed to admit notification: %w", err)
	}

	if req.ScheduledAt != nil && req.ScheduledAt.After(now) {
		if err := a.Notifications.UpdateState(ctx, n.ID, model.StateQueued, 0); err != nil {
			return "", fmt.Errorf("failed to mark scheduled notification queued: %w", err)
		}
		a.Scheduled.Add(n.ID, n.Priority, *req.ScheduledAt)
		return n.ID, nil
	}

	if err := a.Notifications.UpdateState(ctx, n.ID, model.StateQueued, 0); err != nil {
		return "", fmt.Errorf("failed to mark notification queued: %w", err)
	}
	a.Queue.Enqueue(n.ID, n.Priority)
	return n.ID, nil
}

func validate(req Request) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", apierr.ErrInvalidRequest)
	}
	if req.Type == "" {
		return fmt.Errorf("%w: type is required", apierr.ErrInvalidRequest)
	}
	lim, ok := channelLimits[req.Channel]
	if !ok {
		return fmt.Errorf("%w: unknown channel %q", apierr.ErrInvalidRequest, req.Channel)
	}
	if req.TemplateID == "" && req.Body == "" {
		return fmt.Errorf("%w: either template_id or body is required", apierr.ErrInvalidRequest)
	}
	if lim.subject > 0 && utf8.RuneCountInString(req.Subject) > lim.subject {
		return fmt.Errorf("%w: subject exceeds %d characters for channel %q", apierr.ErrInvalidRequest, lim.subject, req.Channel)
	}
	if lim.body > 0 && utf8.RuneCountInString(req.Body) > lim.body {
		return fmt.Errorf("%w: body exceeds %d characters for channel %q", apierr.ErrInvalidRequest, lim.body, req.Channel)
	}
	if req.ScheduledAt != nil && req.ExpiresAt != nil && !req.ExpiresAt.After(*req.ScheduledAt) {
		return fmt.Errorf("%w: expires_at must be after scheduled_at", apierr.ErrInvalidRequest)
	}
	return nil
}
