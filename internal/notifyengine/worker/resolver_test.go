package worker

import (
	"context"
	"testing"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func TestDirectResolverResolvesByChannel(t *testing.T) {
	r := DirectResolver{}

	email, err := r.Resolve(context.Background(), &model.Notification{Channel: model.ChannelEmail, Recipient: "a@b.com"})
	if err != nil {
		t.Fatalf("Resolve email: %v", err)
	}
	if email.Email != "a@b.com" {
		t.Errorf("Email = %q", email.Email)
	}

	sms, err := r.Resolve(context.Background(), &model.Notification{Channel: model.ChannelSMS, Recipient: "+15551234567"})
	if err != nil {
		t.Fatalf("Resolve sms: %v", err)
	}
	if sms.Phone != "+15551234567" {
		t.Errorf("Phone = %q", sms.Phone)
	}

	push, err := r.Resolve(context.Background(), &model.Notification{Channel: model.ChannelPush, Recipient: "device-token"})
	if err != nil {
		t.Fatalf("Resolve push: %v", err)
	}
	if push.DeviceToken != "device-token" {
		t.Errorf("DeviceToken = %q", push.DeviceToken)
	}

	webhook, err := r.Resolve(context.Background(), &model.Notification{Channel: model.ChannelWebhook, Recipient: "https://example.com/hook"})
	if err != nil {
		t.Fatalf("Resolve webhook: %v", err)
	}
	if webhook.WebhookURL != "https://example.com/hook" {
		t.Errorf("WebhookURL = %q", webhook.WebhookURL)
	}

	inApp, err := r.Resolve(context.Background(), &model.Notification{Channel: model.ChannelInApp, Recipient: "user-1"})
	if err != nil {
		t.Fatalf("Resolve inapp: %v", err)
	}
	if inApp.Raw != "user-1" {
		t.Errorf("Raw = %q", inApp.Raw)
	}
}
