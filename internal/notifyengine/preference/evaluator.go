// Package preference implements the per-(user, type, channel) delivery
// preference evaluator: quiet hours, frequency, and batching, grounded on
// the ShouldSendEmail/ShouldSendEmailToAdmin decision style in
// src/server/service/notification_service.go, generalized from a
// single-channel boolean gate into the full rule chain below.
package preference

import (
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// Decision is the outcome of evaluating preferences for one notification.
type Decision struct {
	Send   bool
	Defer  bool // true: append to batch instead of sending or blocking
	Reason string
}

// Evaluate applies the ordered rule chain below. pref may be nil, meaning
// no preference record exists for (userID, notifType); Rule 2 then falls
// back to the built-in per-type default instead of allowing unconditionally.
func Evaluate(pref *model.UserPreference, notifType string, channel model.Channel, priority model.Priority, now time.Time) Decision {
	// Rule 1: urgent/critical always bypasses every filter.
	if priority == model.PriorityUrgent || priority == model.PriorityCritical {
		return Decision{Send: true}
	}

	// Rule 2: no preference record exists. Fall back to the built-in
	// default for notifType (Marketing disabled, System email batched
	// Daily) and evaluate the rest of the chain against it, rather than
	// allowing unconditionally.
	usingDefault := pref == nil
	if usingDefault {
		d := Default("", notifType, channel)
		pref = &d
	}

	// Rule 3: explicit disable.
	if !pref.Enabled {
		reason := "disabled by user"
		if usingDefault {
			reason = "disabled by default"
		}
		return Decision{Send: false, Reason: reason}
	}

	// Rule 4: frequency disabled.
	if pref.Batch == model.BatchWindow("disabled") {
		return Decision{Send: false, Reason: "frequency disabled"}
	}
	if pref.Batch == "" {
		pref.Batch = model.BatchNone
	}

	// Rule 5: quiet hours, with midnight wraparound, skipped for High+.
	if pref.QuietHours.Enabled && priority < model.PriorityHigh {
		if inQuietHours(pref.QuietHours, now) {
			return Decision{Send: false, Reason: "quiet hours"}
		}
	}

	// Rule 6: batching defers to the daily/weekly sweeper.
	if pref.Batch == model.BatchDaily || pref.Batch == model.BatchWeekly {
		return Decision{Send: false, Defer: true, Reason: "batched"}
	}

	// Rule 7: default allow.
	return Decision{Send: true}
}

// inQuietHours reports whether now, expressed in the preference's declared
// timezone, falls inside [start, end), wrapping across midnight when
// end <= start.
func inQuietHours(q model.QuietHours, now time.Time) bool {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minuteOfDay := local.Hour()*60 + local.Minute()
	start := q.StartHour*60 + q.StartMin
	end := q.EndHour*60 + q.EndMin

	if start == end {
		// Zero-width window: never suppresses.
		return false
	}
	if start < end {
		return minuteOfDay >= start && minuteOfDay < end
	}
	// Wraps midnight, e.g. 22:00 - 07:00.
	return minuteOfDay >= start || minuteOfDay < end
}

// Default returns the built-in preference for a notification type:
// everything enabled immediately except Marketing (disabled) and System
// email, which batches Daily.
func Default(userID, notifType string, channel model.Channel) model.UserPreference {
	p := model.UserPreference{
		UserID:   userID,
		Type:     notifType,
		Enabled:  true,
		Channels: []model.Channel{channel},
		Batch:    model.BatchNone,
	}
	switch notifType {
	case "Marketing":
		p.Enabled = false
	case "System":
		if channel == model.ChannelEmail {
			p.Batch = model.BatchDaily
		}
	}
	return p
}
