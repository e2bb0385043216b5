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

// smsMaxBodyRunes is the concatenated-segment cap this adapter enforces on
// SMS bodies: 10 standard 160-char segments.
const smsMaxBodyRunes = 1600

// SMSConfig is the resolved configuration for SMSAdapter.
type SMSConfig struct {
	APIURL   string
	APIKey   string
	SenderID string
}

// SMSAdapter sends notifications through a carrier/aggregator HTTP API,
// grounded on the HTTP-backed adapter shape in
// src/server/service/email_channel.go, generalized to a plain HTTP POST
// since no SMS-specific adapter exists in the retrieved sources.
type SMSAdapter struct {
	cfg    SMSConfig
	client *http.Client
}

// NewSMSAdapter wraps cfg with a bounded HTTP client.
func NewSMSAdapter(cfg SMSConfig) *SMSAdapter {
	return &SMSAdapter{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

// Type implements Adapter.
func (a *SMSAdapter) Type() model.Channel { return model.ChannelSMS }

// ValidateConfig requires an API key.
func (a *SMSAdapter) ValidateConfig(config map[string]string) error {
	if config["api_key"] == "" {
		return fmt.Errorf("%w: api_key is required", apierr.ErrInvalidRequest)
	}
	return nil
}

type smsRequest struct {
	To       string `json:"to"`
	Body     string `json:"body"`
	SenderID string `json:"sender_id,omitempty"`
}

// Send posts one SMS to the configured aggregator API.
func (a *SMSAdapter) Send(ctx context.Context, n *model.Notification, recipient RecipientInfo) (DispatchOutcome, error) {
	if recipient.Phone == "" {
		return DispatchOutcome{Success: false, ClassifiedFailure: model.FailureInvalidRecipient, ErrorMessage: "recipient has no phone number"}, nil
	}

	body := truncateRunes(n.Body, smsMaxBodyRunes)

	payload, err := json.Marshal(smsRequest{To: recipient.Phone, Body: body, SenderID: a.cfg.SenderID})
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("failed to marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return DispatchOutcome{Success: false, ClassifiedFailure: model.FailureNetworkError, ErrorMessage: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DispatchOutcome{
			Success:           false,
			ClassifiedFailure: retry.ClassifyHTTPStatus(resp.StatusCode),
			ErrorMessage:      fmt.Sprintf("sms provider returned status %d", resp.StatusCode),
		}, nil
	}

	return DispatchOutcome{Success: true, ProviderResponse: fmt.Sprintf("status %d", resp.StatusCode)}, nil
}

// PollStatus is not supported by the generic aggregator contract assumed here.
func (a *SMSAdapter) PollStatus(ctx context.Context, providerDeliveryID string) (ProviderStatus, error) {
	return ProviderStatus{}, fmt.Errorf("sms: %w: status polling not supported", apierr.ErrInvalidRequest)
}
