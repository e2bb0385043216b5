// Package channel defines the adapter contract and registry for delivery
// channels, grounded on the NotificationChannel interface and
// ChannelManager (src/services/channel_manager.go), generalized from a
// 30+-entry provider catalog down to the five adapter kinds this engine
// needs, each still driven by the same ConfigField-described settings
// style.
package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// RecipientInfo carries the resolved contact address for a dispatch, the
// shape of data the external user directory returns.
type RecipientInfo struct {
	Email       string
	Phone       string
	DeviceToken string
	SessionID   string
	WebhookURL  string
	Raw         string // generic recipient value when no typed field applies
}

// DispatchOutcome is the result of one adapter Send call.
type DispatchOutcome struct {
	Success             bool
	ProviderResponse    string
	ErrorMessage        string
	ProviderDeliveryID  string
	ClassifiedFailure   model.FailureKind
}

// ProviderStatus is the result of an optional PollStatus call.
type ProviderStatus struct {
	State model.State
}

// Adapter is the uniform dispatch contract every channel implements.
type Adapter interface {
	Type() model.Channel
	Send(ctx context.Context, n *model.Notification, recipient RecipientInfo) (DispatchOutcome, error)
	ValidateConfig(config map[string]string) error
	// PollStatus is optional; adapters without provider-side status
	// polling return apierr-wrapped "not supported".
	PollStatus(ctx context.Context, providerDeliveryID string) (ProviderStatus, error)
}

// ConfigField describes one operator-facing adapter setting, mirroring the
// ConfigField (src/services/channel_manager.go) used to render
// admin setup forms.
type ConfigField struct {
	Key         string
	Label       string
	Required    bool
	Default     string
	Placeholder string
}

// Definition documents one channel's operator-facing configuration schema.
type Definition struct {
	Channel      model.Channel
	Name         string
	Description  string
	ConfigFields []ConfigField
}

// Registry holds the enabled adapter for each channel.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.Channel]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.Channel]Adapter)}
}

// Register installs an adapter, replacing any previous one for the same
// channel.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// Get returns the adapter for ch, or an error if none is registered.
func (r *Registry) Get(ch model.Channel) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("channel: no adapter registered for %s", ch)
	}
	return a, nil
}

// Channels lists every registered channel.
func (r *Registry) Channels() []model.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	return out
}

// Catalog lists the required adapter definitions, used to drive
// operator-facing setup regardless of which are currently enabled.
var Catalog = []Definition{
	{
		Channel:     model.ChannelEmail,
		Name:        "Email",
		Description: "SMTP-delivered email notifications.",
		ConfigFields: []ConfigField{
			{Key: "smtp_host", Label: "SMTP Host", Required: true},
			{Key: "smtp_port", Label: "SMTP Port", Required: true, Default: "587"},
			{Key: "from_address", Label: "From Address", Required: true},
		},
	},
	{
		Channel:     model.ChannelSMS,
		Name:        "SMS",
		Description: "SMS delivery via a carrier or aggregator API.",
		ConfigFields: []ConfigField{
			{Key: "api_key", Label: "API Key", Required: true},
			{Key: "sender_id", Label: "Sender ID", Required: false},
		},
	},
	{
		Channel:     model.ChannelPush,
		Name:        "Push",
		Description: "Mobile push notification delivery.",
		ConfigFields: []ConfigField{
			{Key: "server_key", Label: "Server Key", Required: true},
		},
	},
	{
		Channel:     model.ChannelInApp,
		Name:        "In-App",
		Description: "Per-user inbox plus live-channel publish, no external provider.",
	},
	{
		Channel:     model.ChannelWebhook,
		Name:        "Webhook",
		Description: "HTTP POST of rendered JSON to a subscriber URL.",
		ConfigFields: []ConfigField{
			{Key: "default_timeout_seconds", Label: "Timeout (seconds)", Required: false, Default: "30"},
		},
	},
}
