package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"testing"

	"github.com/pquerna/otp/hotp"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func hotpCode(secret string, counter uint64) (string, error) {
	return hotp.GenerateCode(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(secret)), counter)
}

func TestParsePriorityDefaultsToNormal(t *testing.T) {
	cases := map[string]model.Priority{
		"low":       model.PriorityLow,
		"high":      model.PriorityHigh,
		"urgent":    model.PriorityUrgent,
		"critical":  model.PriorityCritical,
		"":          model.PriorityNormal,
		"unknown":   model.PriorityNormal,
	}
	for in, want := range cases {
		if got := parsePriority(in); got != want {
			t.Errorf("parsePriority(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestToIntakeRequestMapsFallbackChannels(t *testing.T) {
	req := createNotificationRequest{
		UserID:           "u1",
		Type:             "account",
		Channel:          "email",
		FallbackChannels: []string{"sms", "push"},
		Priority:         "high",
		Body:             "hi",
	}
	ir := req.toIntakeRequest()
	if ir.Channel != model.ChannelEmail {
		t.Errorf("Channel = %v", ir.Channel)
	}
	if len(ir.FallbackChannels) != 2 || ir.FallbackChannels[0] != model.ChannelSMS || ir.FallbackChannels[1] != model.ChannelPush {
		t.Errorf("FallbackChannels = %v", ir.FallbackChannels)
	}
	if ir.Priority != model.PriorityHigh {
		t.Errorf("Priority = %v", ir.Priority)
	}
}

func TestProviderStatusToState(t *testing.T) {
	cases := map[string]model.State{
		"delivered": model.StateDelivered,
		"opened":    model.StateRead,
		"clicked":   model.StateRead,
		"read":      model.StateRead,
		"bounced":   model.StateFailedFinal,
		"failed":    model.StateFailedFinal,
		"pending":   "",
	}
	for in, want := range cases {
		if got := providerStatusToState(in); got != want {
			t.Errorf("providerStatusToState(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestVerifySignatureAcceptsMatchingHMAC(t *testing.T) {
	secret := "shh"
	body := []byte(`{"hello":"world"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !verifySignature(secret, body, sig) {
		t.Error("expected matching HMAC signature to verify")
	}
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	secret := "shh"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("original"))
	sig := hex.EncodeToString(mac.Sum(nil))

	if verifySignature(secret, []byte("tampered"), sig) {
		t.Error("expected tampered body to fail signature verification")
	}
}

func TestVerifyReplayCounterRejectsNonIncreasingCounter(t *testing.T) {
	secret := "replay-secret-unique-1"
	code1, err := hotpCode(secret, 1)
	if err != nil {
		t.Fatalf("hotpCode: %v", err)
	}
	if !verifyReplayCounter(secret, "1", code1) {
		t.Fatal("expected first use of counter 1 to verify")
	}
	if verifyReplayCounter(secret, "1", code1) {
		t.Fatal("expected replayed counter 1 to be rejected")
	}
}

func TestVerifyReplayCounterRejectsMalformedCounter(t *testing.T) {
	if verifyReplayCounter("secret", "not-a-number", "123456") {
		t.Fatal("expected malformed counter to fail verification")
	}
}
