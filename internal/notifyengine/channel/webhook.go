package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/retry"
)

// WebhookConfig is the resolved configuration for WebhookAdapter.
type WebhookConfig struct {
	DefaultTimeout time.Duration
}

// WebhookAdapter POSTs rendered JSON to a subscriber URL; any non-2xx
// response is a retryable failure, classified by status code where that
// code maps to a retryable kind and as Unknown otherwise.
type WebhookAdapter struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookAdapter wraps cfg with an HTTP client bounded by DefaultTimeout.
func NewWebhookAdapter(cfg WebhookConfig) *WebhookAdapter {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	return &WebhookAdapter{cfg: cfg, client: &http.Client{Timeout: cfg.DefaultTimeout}}
}

// Type implements Adapter.
func (a *WebhookAdapter) Type() model.Channel { return model.ChannelWebhook }

// ValidateConfig checks default_timeout_seconds, when present, is numeric.
func (a *WebhookAdapter) ValidateConfig(config map[string]string) error {
	if v, ok := config["default_timeout_seconds"]; ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("%w: default_timeout_seconds must be numeric", apierr.ErrInvalidRequest)
		}
	}
	return nil
}

type webhookEnvelope struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Subject   string                 `json:"subject"`
	Body      string                 `json:"body"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	SentAt    time.Time              `json:"sent_at"`
}

// Send POSTs the rendered notification to the recipient's webhook URL.
func (a *WebhookAdapter) Send(ctx context.Context, n *model.Notification, recipient RecipientInfo) (DispatchOutcome, error) {
	if recipient.WebhookURL == "" {
		return DispatchOutcome{Success: false, ClassifiedFailure: model.FailureInvalidRecipient, ErrorMessage: "recipient has no webhook url"}, nil
	}

	payload, err := json.Marshal(webhookEnvelope{
		ID:        n.ID,
		Type:      n.Type,
		Subject:   n.Subject,
		Body:      n.Body,
		Variables: n.Variables,
		SentAt:    time.Now(),
	})
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notification-ID", n.ID)

	resp, err := a.client.Do(req)
	if err != nil {
		return DispatchOutcome{Success: false, ClassifiedFailure: model.FailureNetworkError, ErrorMessage: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := retry.ClassifyHTTPStatus(resp.StatusCode)
		if !kind.Retryable() {
			kind = model.FailureUnknown
		}
		return DispatchOutcome{
			Success:           false,
			ClassifiedFailure: kind,
			ErrorMessage:      fmt.Sprintf("webhook endpoint returned status %d", resp.StatusCode),
		}, nil
	}

	return DispatchOutcome{Success: true, ProviderResponse: fmt.Sprintf("status %d", resp.StatusCode)}, nil
}

// PollStatus is not supported; webhook delivery is fire-and-forget.
func (a *WebhookAdapter) PollStatus(ctx context.Context, providerDeliveryID string) (ProviderStatus, error) {
	return ProviderStatus{}, fmt.Errorf("webhook: %w: status polling not supported", apierr.ErrInvalidRequest)
}
