package channel

import (
	"context"
	"testing"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

type fakeAdapter struct {
	ch model.Channel
}

func (f fakeAdapter) Type() model.Channel { return f.ch }
func (f fakeAdapter) Send(ctx context.Context, n *model.Notification, recipient RecipientInfo) (DispatchOutcome, error) {
	return DispatchOutcome{Success: true}, nil
}
func (f fakeAdapter) ValidateConfig(config map[string]string) error { return nil }
func (f fakeAdapter) PollStatus(ctx context.Context, providerDeliveryID string) (ProviderStatus, error) {
	return ProviderStatus{}, nil
}

func TestRegistryGetReturnsErrorForUnregisteredChannel(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(model.ChannelSMS); err == nil {
		t.Fatal("expected error for unregistered channel")
	}
}

func TestRegistryRegisterThenGet(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeAdapter{ch: model.ChannelEmail})

	a, err := r.Get(model.ChannelEmail)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Type() != model.ChannelEmail {
		t.Errorf("Type() = %v", a.Type())
	}
}

func TestRegistryRegisterReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeAdapter{ch: model.ChannelEmail})
	r.Register(fakeAdapter{ch: model.ChannelEmail})

	if len(r.Channels()) != 1 {
		t.Fatalf("expected one channel after re-registering, got %d", len(r.Channels()))
	}
}

func TestRegistryChannelsListsEveryRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeAdapter{ch: model.ChannelEmail})
	r.Register(fakeAdapter{ch: model.ChannelSMS})

	chs := r.Channels()
	if len(chs) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(chs))
	}
}

func TestCatalogCoversAllFiveChannelKinds(t *testing.T) {
	want := map[model.Channel]bool{
		model.ChannelEmail:   false,
		model.ChannelSMS:     false,
		model.ChannelPush:    false,
		model.ChannelInApp:   false,
		model.ChannelWebhook: false,
	}
	for _, def := range Catalog {
		want[def.Channel] = true
	}
	for ch, found := range want {
		if !found {
			t.Errorf("Catalog missing definition for %v", ch)
		}
	}
}
