package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/retry"
)

// Push payload length bounds.
const (
	pushMaxTitleRunes = 50
	pushMaxBodyRunes  = 200
)

// PushConfig is the resolved configuration for PushAdapter.
type PushConfig struct {
	APIURL    string
	ServerKey string
}

// PushAdapter sends mobile push notifications through an FCM-shaped HTTP
// API, grounded on the HTTP-backed channel adapter shape in
// src/server/service/email_channel.go.
type PushAdapter struct {
	cfg    PushConfig
	client *http.Client
}

// NewPushAdapter wraps cfg with a bounded HTTP client.
func NewPushAdapter(cfg PushConfig) *PushAdapter {
	return &PushAdapter{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

// Type implements Adapter.
func (a *PushAdapter) Type() model.Channel { return model.ChannelPush }

// ValidateConfig requires a server key.
func (a *PushAdapter) ValidateConfig(config map[string]string) error {
	if config["server_key"] == "" {
		return fmt.Errorf("%w: server_key is required", apierr.ErrInvalidRequest)
	}
	return nil
}

type pushRequest struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send posts one push notification to the configured provider endpoint.
func (a *PushAdapter) Send(ctx context.Context, n *model.Notification, recipient RecipientInfo) (DispatchOutcome, error) {
	if recipient.DeviceToken == "" {
		return DispatchOutcome{Success: false, ClassifiedFailure: model.FailureInvalidRecipient, ErrorMessage: "recipient has no device token"}, nil
	}

	title := truncateRunes(n.Subject, pushMaxTitleRunes)
	body := truncateRunes(n.Body, pushMaxBodyRunes)

	payload, err := json.Marshal(pushRequest{To: recipient.DeviceToken, Title: title, Body: body})
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("failed to marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+a.cfg.ServerKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return DispatchOutcome{Success: false, ClassifiedFailure: model.FailureNetworkError, ErrorMessage: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DispatchOutcome{
			Success:           false,
			ClassifiedFailure: retry.ClassifyHTTPStatus(resp.StatusCode),
			ErrorMessage:      fmt.Sprintf("push provider returned status %d", resp.StatusCode),
		}, nil
	}

	return DispatchOutcome{Success: true, ProviderResponse: fmt.Sprintf("status %d", resp.StatusCode)}, nil
}

// PollStatus is not supported by the generic push contract assumed here.
func (a *PushAdapter) PollStatus(ctx context.Context, providerDeliveryID string) (ProviderStatus, error) {
	return ProviderStatus{}, fmt.Errorf("push: %w: status polling not supported", apierr.ErrInvalidRequest)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
