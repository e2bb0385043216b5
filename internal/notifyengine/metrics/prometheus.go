package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus exposition follows the promauto package-level vector style
// (src/server/metrics/metrics.go) rather than a per-request registry, so
// every worker and scheduler task records through the same global
// vectors.
var (
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyengine_notifications_sent_total",
		Help: "Total notifications dispatched to a channel adapter.",
	}, []string{"channel", "type"})

	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyengine_notifications_delivered_total",
		Help: "Total notifications confirmed delivered.",
	}, []string{"channel", "type"})

	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyengine_notifications_failed_total",
		Help: "Total notifications that reached a failed terminal state.",
	}, []string{"channel", "type", "failure_kind"})

	NotificationsBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyengine_notifications_blocked_total",
		Help: "Total notifications blocked by the preference evaluator.",
	}, []string{"type", "reason"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyengine_rate_limited_total",
		Help: "Total dispatch attempts deferred by the per-channel rate limiter.",
	}, []string{"channel"})

	DeliveryTimeMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifyengine_delivery_time_ms",
		Help:    "Time in milliseconds from dispatch start to adapter outcome.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"channel"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notifyengine_queue_depth",
		Help: "Current number of notifications waiting in a priority tier.",
	}, []string{"priority"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notifyengine_breaker_state",
		Help: "Circuit breaker state per channel: 0=closed, 1=half_open, 2=open.",
	}, []string{"channel"})
)

var initOnce sync.Once

// Init registers a build-info gauge carrying version, commit, and build
// date as labels.
func Init(version, commit, buildDate string) {
	initOnce.Do(func() {
		buildInfo := promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notifyengine_build_info",
			Help: "Build metadata, value is always 1.",
		}, []string{"version", "commit", "build_date"})
		buildInfo.WithLabelValues(version, commit, buildDate).Set(1)
	})
}

// BreakerStateValue maps a breaker state name to the gauge encoding used
// by the BreakerState metric.
func BreakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
