package worker

import (
	"context"

	"github.com/apimgr/notifyengine/internal/notifyengine/channel"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// DirectResolver satisfies RecipientResolver by trusting the address the
// caller supplied directly on the notification at admission time (n.
// Recipient), rather than looking one up in an external user directory.
// It is the engine's default when no directory integration is wired in,
// and the one cmd/notifyengine uses out of the box.
type DirectResolver struct{}

// Resolve implements RecipientResolver.
func (DirectResolver) Resolve(ctx context.Context, n *model.Notification) (channel.RecipientInfo, error) {
	switch n.Channel {
	case model.ChannelEmail:
		return channel.RecipientInfo{Email: n.Recipient, Raw: n.Recipient}, nil
	case model.ChannelSMS:
		return channel.RecipientInfo{Phone: n.Recipient, Raw: n.Recipient}, nil
	case model.ChannelPush:
		return channel.RecipientInfo{DeviceToken: n.Recipient, Raw: n.Recipient}, nil
	case model.ChannelWebhook:
		return channel.RecipientInfo{WebhookURL: n.Recipient, Raw: n.Recipient}, nil
	default:
		return channel.RecipientInfo{Raw: n.Recipient}, nil
	}
}
