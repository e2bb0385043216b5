// Package model defines the core data types shared across the notification
// delivery engine: notifications, delivery records, attempts, templates,
// preferences and provider state.
package model

import (
	"time"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelInApp   Channel = "in_app"
	ChannelWebhook Channel = "webhook"
)

// Priority is the admission priority of a notification, higher sorts first.
type Priority int

const (
	PriorityLow       Priority = 0
	PriorityNormal    Priority = 1
	PriorityHigh      Priority = 2
	PriorityUrgent    Priority = 3
	PriorityCritical  Priority = 4
)

// State is the lifecycle state of a notification per its state machine.
type State string

const (
	StatePending        State = "pending"
	StateQueued         State = "queued"
	StateSending        State = "sending"
	StateSent           State = "sent"
	StateDelivered      State = "delivered"
	StateRead           State = "read"
	StateFailedRetryable State = "failed_retryable"
	StateFailedFinal    State = "failed_final"
	StateCancelled      State = "cancelled"
	StateExpired        State = "expired"
)

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateDelivered, StateRead, StateFailedFinal, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// FailureKind classifies why a dispatch attempt failed, driving retry policy.
type FailureKind string

const (
	FailureNetworkError       FailureKind = "network_error"
	FailureServiceUnavailable FailureKind = "service_unavailable"
	FailureRateLimited        FailureKind = "rate_limited"
	FailureTimeout            FailureKind = "timeout"
	FailureQuotaExceeded      FailureKind = "quota_exceeded"
	FailureAuthenticationFailed FailureKind = "authentication_failed"
	FailureRecipientBlocked   FailureKind = "recipient_blocked"
	FailureInvalidRecipient   FailureKind = "invalid_recipient"
	FailureContentRejected    FailureKind = "content_rejected"
	FailureInvalidTemplate    FailureKind = "invalid_template"
	FailureUnknown            FailureKind = "unknown"
)

// Retryable reports whether a failure of this kind should be retried.
func (f FailureKind) Retryable() bool {
	switch f {
	case FailureInvalidRecipient, FailureContentRejected, FailureInvalidTemplate, FailureRecipientBlocked:
		return false
	default:
		return true
	}
}

// Notification is the unit of admission into the engine.
type Notification struct {
	ID               string
	UserID           string
	Type             string
	Channel          Channel
	FallbackChannels []Channel
	Priority         Priority
	TemplateID       string
	Variables        map[string]interface{}
	Recipient        string
	Subject          string
	Body             string
	State            State
	RetryCount       int
	MaxRetries       int
	NotBefore        *time.Time
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Attempt records one dispatch attempt against a channel adapter.
type Attempt struct {
	ID             string
	NotificationID string
	Channel        Channel
	AttemptNumber  int
	StartedAt      time.Time
	FinishedAt     time.Time
	Success        bool
	FailureKind    FailureKind
	ErrorMessage   string
	ProviderRef    string
}

// DeliveryRecord is the durable, queryable projection of a notification's
// lifecycle, one row per notification.
type DeliveryRecord struct {
	NotificationID string
	UserID         string
	Channel        Channel
	State          State
	Attempts       []Attempt
	SentAt         *time.Time
	DeliveredAt    *time.Time
	ReadAt         *time.Time
	FailedAt       *time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Template is a named, versioned, per-channel rendering definition.
type Template struct {
	ID        string
	Type      string
	Channel   Channel
	Version   int
	Active    bool
	Subject   string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuietHours is a per-user do-not-disturb window in the user's own timezone.
type QuietHours struct {
	Enabled   bool
	Timezone  string
	StartHour int
	StartMin  int
	EndHour   int
	EndMin    int
}

// BatchWindow describes how a user wants low-priority notifications of a
// given type bundled instead of delivered immediately.
type BatchWindow string

const (
	BatchNone   BatchWindow = "none"
	BatchDaily  BatchWindow = "daily"
	BatchWeekly BatchWindow = "weekly"
)

// UserPreference is a per-user, per-type delivery preference.
type UserPreference struct {
	UserID          string
	Type            string
	Enabled         bool
	Channels        []Channel
	QuietHours      QuietHours
	Batch           BatchWindow
	UpdatedAt       time.Time
}

// BreakerState is the state of a per-provider circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ProviderState is the durable circuit breaker and rate-limit bookkeeping
// for one channel provider.
type ProviderState struct {
	Channel          Channel
	Breaker          BreakerState
	ConsecutiveFails int
	OpenedAt         *time.Time
	LastProbeAt      *time.Time
	UpdatedAt        time.Time
}

// MetricPoint is one tiered rollup bucket for a channel at a given tier.
type MetricPoint struct {
	Channel    Channel
	Tier       string // "minute", "hour", "day"
	BucketTime time.Time
	Sent       int64
	Delivered  int64
	Read       int64
	Failed     int64
	LatencySumMs int64
	LatencyCount int64
}
