package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/live"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/store"
)

// inboxPayload is what in_app_inbox rows and live pushes carry, the shape
// a client's notification drawer renders directly.
type inboxPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// InAppAdapter writes to the per-user inbox and best-effort pushes over a
// live WebSocket connection. It has no external provider, so it has no
// provider failure mode of its own.
type InAppAdapter struct {
	inbox *store.InboxStore
	hub   *live.Hub
}

// NewInAppAdapter wires inbox persistence and the live-push hub. hub may
// be nil, in which case delivery is inbox-only.
func NewInAppAdapter(inbox *store.InboxStore, hub *live.Hub) *InAppAdapter {
	return &InAppAdapter{inbox: inbox, hub: hub}
}

// Type implements Adapter.
func (a *InAppAdapter) Type() model.Channel { return model.ChannelInApp }

// ValidateConfig accepts any config; in-app has no operator-facing settings.
func (a *InAppAdapter) ValidateConfig(config map[string]string) error { return nil }

// Send appends the notification to the recipient's inbox and, if they have
// a live connection, pushes it immediately.
func (a *InAppAdapter) Send(ctx context.Context, n *model.Notification, recipient RecipientInfo) (DispatchOutcome, error) {
	payload := inboxPayload{ID: n.ID, Type: n.Type, Subject: n.Subject, Body: n.Body, CreatedAt: time.Now()}
	raw, err := json.Marshal(payload)
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("failed to marshal inbox payload: %w", err)
	}

	if err := a.inbox.Append(ctx, n.UserID, n.ID, string(raw)); err != nil {
		return DispatchOutcome{Success: false, ClassifiedFailure: model.FailureUnknown, ErrorMessage: err.Error()}, nil
	}

	if a.hub != nil {
		a.hub.Publish(n.UserID, payload)
	}

	return DispatchOutcome{Success: true, ProviderResponse: "stored"}, nil
}

// PollStatus is not supported; in-app delivery is synchronous with Send.
func (a *InAppAdapter) PollStatus(ctx context.Context, providerDeliveryID string) (ProviderStatus, error) {
	return ProviderStatus{}, fmt.Errorf("in_app: %w: status polling not supported", apierr.ErrInvalidRequest)
}
