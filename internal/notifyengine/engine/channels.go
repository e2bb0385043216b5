package engine

import (
	"log"
	"strconv"

	"github.com/apimgr/notifyengine/internal/notifyengine/channel"
	"github.com/apimgr/notifyengine/internal/notifyengine/config"
	"github.com/apimgr/notifyengine/internal/notifyengine/live"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/store"
)

// modelChannel narrows an operator-facing channel key from server.yml into
// the model.Channel type the rest of the engine works with.
func modelChannel(key string) model.Channel {
	return model.Channel(key)
}

// buildChannelRegistry installs one adapter per enabled channel in
// cfg.Channels, using each channel's Options map as its operator-facing
// configuration, mirroring ChannelManager construction
// (src/services/channel_manager.go's per-channel config load).
func buildChannelRegistry(cfg *config.Config, inbox *store.InboxStore, hub *live.Hub) *channel.Registry {
	registry := channel.NewRegistry()

	for key, chCfg := range cfg.Channels {
		if !chCfg.Enabled {
			continue
		}
		opts := chCfg.Options

		switch modelChannel(key) {
		case model.ChannelEmail:
			port, _ := strconv.Atoi(opts["smtp_port"])
			registry.Register(channel.NewEmailAdapter(channel.SMTPConfig{
				Host:     opts["smtp_host"],
				Port:     port,
				Username: opts["smtp_username"],
				Password: opts["smtp_password"],
				From:     opts["from_address"],
				FromName: opts["from_name"],
				TLS:      opts["tls"] == "true",
			}))
		case model.ChannelSMS:
			registry.Register(channel.NewSMSAdapter(channel.SMSConfig{
				APIURL:   opts["api_url"],
				APIKey:   opts["api_key"],
				SenderID: opts["sender_id"],
			}))
		case model.ChannelPush:
			registry.Register(channel.NewPushAdapter(channel.PushConfig{
				APIURL:    opts["api_url"],
				ServerKey: opts["server_key"],
			}))
		case model.ChannelInApp:
			registry.Register(channel.NewInAppAdapter(inbox, hub))
		case model.ChannelWebhook:
			registry.Register(channel.NewWebhookAdapter(channel.WebhookConfig{}))
		default:
			log.Printf("⚠️  engine: unknown channel %q in configuration, skipping", key)
		}
	}

	// In-app delivery has no operator secrets; keep it registered even
	// when server.yml omits it entirely, since the inbox/live-push path
	// works out of the box.
	if _, err := registry.Get(model.ChannelInApp); err != nil {
		registry.Register(channel.NewInAppAdapter(inbox, hub))
	}

	return registry
}
