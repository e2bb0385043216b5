package preference

import (
	"testing"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

func TestEvaluateUrgentBypassesEverything(t *testing.T) {
	pref := &model.UserPreference{Enabled: false}
	d := Evaluate(pref, "account", model.ChannelEmail, model.PriorityCritical, time.Now())
	if !d.Send {
		t.Error("expected critical priority to always send")
	}
}

func TestEvaluateNilPreferenceDefaultsToSendForOrdinaryType(t *testing.T) {
	d := Evaluate(nil, "account", model.ChannelEmail, model.PriorityNormal, time.Now())
	if !d.Send {
		t.Error("expected nil preference to default to sending for a non-Marketing type")
	}
}

func TestEvaluateNilPreferenceCancelsMarketingByDefault(t *testing.T) {
	d := Evaluate(nil, "Marketing", model.ChannelEmail, model.PriorityNormal, time.Now())
	if d.Send {
		t.Error("expected Marketing with no preference record to be blocked by default")
	}
	if d.Reason != "disabled by default" {
		t.Errorf("Reason = %q, want %q", d.Reason, "disabled by default")
	}
}

func TestEvaluateNilPreferenceBatchesSystemEmailByDefault(t *testing.T) {
	d := Evaluate(nil, "System", model.ChannelEmail, model.PriorityNormal, time.Now())
	if d.Send || !d.Defer {
		t.Errorf("expected System email with no preference record to batch by default, got %+v", d)
	}
}

func TestEvaluateDisabledBlocksSend(t *testing.T) {
	pref := &model.UserPreference{Enabled: false}
	d := Evaluate(pref, "account", model.ChannelEmail, model.PriorityNormal, time.Now())
	if d.Send {
		t.Error("expected disabled preference to block send")
	}
	if d.Reason != "disabled by user" {
		t.Errorf("Reason = %q, want %q", d.Reason, "disabled by user")
	}
}

func TestEvaluateQuietHoursSuppressesNormalPriority(t *testing.T) {
	pref := &model.UserPreference{
		Enabled: true,
		QuietHours: model.QuietHours{
			Enabled: true, Timezone: "UTC",
			StartHour: 22, EndHour: 7,
		},
	}
	// 23:00 UTC falls inside the 22:00-07:00 wraparound window.
	now := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	d := Evaluate(pref, "account", model.ChannelEmail, model.PriorityNormal, now)
	if d.Send {
		t.Error("expected quiet hours to suppress normal-priority send")
	}
}

func TestEvaluateQuietHoursSkippedForHighPriority(t *testing.T) {
	pref := &model.UserPreference{
		Enabled: true,
		QuietHours: model.QuietHours{
			Enabled: true, Timezone: "UTC",
			StartHour: 22, EndHour: 7,
		},
	}
	now := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	d := Evaluate(pref, "account", model.ChannelEmail, model.PriorityHigh, now)
	if !d.Send {
		t.Error("expected high priority to bypass quiet hours")
	}
}

func TestEvaluateOutsideQuietHoursSends(t *testing.T) {
	pref := &model.UserPreference{
		Enabled: true,
		QuietHours: model.QuietHours{
			Enabled: true, Timezone: "UTC",
			StartHour: 22, EndHour: 7,
		},
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := Evaluate(pref, "account", model.ChannelEmail, model.PriorityNormal, now)
	if !d.Send {
		t.Error("expected send outside quiet hours window")
	}
}

func TestEvaluateBatchedDefersRatherThanSends(t *testing.T) {
	pref := &model.UserPreference{Enabled: true, Batch: model.BatchDaily}
	d := Evaluate(pref, "account", model.ChannelEmail, model.PriorityNormal, time.Now())
	if d.Send || !d.Defer {
		t.Errorf("expected batched preference to defer, got %+v", d)
	}
}

func TestDefaultMarketingDisabled(t *testing.T) {
	p := Default("u1", "Marketing", model.ChannelEmail)
	if p.Enabled {
		t.Error("expected Marketing default preference to be disabled")
	}
}

func TestDefaultSystemEmailBatchesDaily(t *testing.T) {
	p := Default("u1", "System", model.ChannelEmail)
	if p.Batch != model.BatchDaily {
		t.Errorf("expected System email default to batch daily, got %v", p.Batch)
	}
}
