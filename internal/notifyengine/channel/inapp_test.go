package channel

import (
	"context"
	"testing"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/store"
)

func TestInAppAdapterSendAppendsToInboxWithoutHub(t *testing.T) {
	db, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	inbox := store.NewInboxStore(db)
	a := NewInAppAdapter(inbox, nil)

	n := &model.Notification{ID: "n1", UserID: "user-1", Type: "order.shipped", Subject: "Shipped", Body: "Your order shipped"}
	outcome, err := a.Send(context.Background(), n, RecipientInfo{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}

	entries, err := inbox.List(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 inbox entry, got %d", len(entries))
	}
}

func TestInAppAdapterTypeIsInApp(t *testing.T) {
	a := NewInAppAdapter(nil, nil)
	if a.Type() != model.ChannelInApp {
		t.Errorf("Type() = %v", a.Type())
	}
}

func TestInAppAdapterPollStatusNotSupported(t *testing.T) {
	a := NewInAppAdapter(nil, nil)
	if _, err := a.PollStatus(context.Background(), "ref"); err == nil {
		t.Fatal("expected not-supported error")
	}
}
