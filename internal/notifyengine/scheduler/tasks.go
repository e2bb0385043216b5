package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apimgr/notifyengine/internal/notifyengine/metrics"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/preference"
	"github.com/apimgr/notifyengine/internal/notifyengine/queue"
	"github.com/apimgr/notifyengine/internal/notifyengine/retry"
	"github.com/apimgr/notifyengine/internal/notifyengine/store"
)

// Deps bundles every collaborator the background sweeps touch.
type Deps struct {
	Queue         *queue.Queue
	Scheduled     *queue.ScheduledSet
	Notifications *store.NotificationStore
	Delivery      *store.DeliveryRecordStore
	Inbox         *store.InboxStore
	Batches       *preference.BatchStore
	Metrics       *metrics.Aggregator
	RecordTTL     time.Duration
	MaxRetries    int
}

// Register installs every sweep task named in tasks (a schedule map keyed
// by task name, e.g. config.SchedulerConfig.Tasks) onto sch, skipping any
// name it does not recognize so operators can trim unused sweeps from
// server.yml.
func Register(sch *Scheduler, tasks map[string]string, deps Deps) error {
	all := map[string]func() error{
		"scheduled_sweep":     deps.ScheduledSweep,
		"retry_sweep":         deps.RetrySweep,
		"daily_batch":         func() error { return deps.BatchSweep(model.BatchDaily) },
		"weekly_batch":        func() error { return deps.BatchSweep(model.BatchWeekly) },
		"metrics_flush":       deps.MetricsFlush,
		"metrics_rollup_hour": deps.MetricsRollupHour,
		"metrics_rollup_day":  deps.MetricsRollupDay,
		"metrics_prune":       deps.MetricsPrune,
		"expire_sweep":        deps.ExpireSweep,
		"inbox_cleanup":       deps.InboxCleanup,
		"delivery_cleanup":    deps.DeliveryCleanup,
	}

	for name, schedule := range tasks {
		fn, ok := all[name]
		if !ok {
			continue
		}
		if err := sch.AddTask(name, schedule, fn); err != nil {
			return fmt.Errorf("failed to register task %q: %w", name, err)
		}
	}
	return nil
}

// ScheduledSweep moves notifications whose NotBefore has arrived from the
// scheduled set into the live priority queue.
func (d Deps) ScheduledSweep() error {
	due := d.Scheduled.Due(time.Now())
	for _, e := range due {
		d.Queue.Enqueue(e.NotificationID, e.Priority)
	}
	return nil
}

// RetrySweep promotes delivery records whose next_retry_at has elapsed
// back into the priority queue.
func (d Deps) RetrySweep() error {
	ctx := context.Background()
	due, err := d.Delivery.DueForRetry(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("retry sweep: %w", err)
	}
	for _, r := range due {
		n, err := d.Notifications.Get(ctx, r.NotificationID)
		if err != nil {
			continue
		}
		if n.State.Terminal() {
			continue
		}
		d.Queue.Enqueue(n.ID, n.Priority)
	}
	return nil
}

// BatchSweep drains every pending batch bucket for window and synthesizes
// one digest notification per (user, type, channel) group.
func (d Deps) BatchSweep(window model.BatchWindow) error {
	ctx := context.Background()
	groups := d.Batches.DrainAll()

	for key, summaries := range groups {
		userID, notifType, channel, ok := splitBatchKey(key)
		if !ok || len(summaries) == 0 {
			continue
		}

		now := time.Now()
		n := &model.Notification{
			ID:         uuid.NewString(),
			UserID:     userID,
			Type:       notifType,
			Channel:    model.Channel(channel),
			Priority:   model.PriorityNormal,
			Subject:    fmt.Sprintf("%d new notifications", len(summaries)),
			Body:       preference.SynthesizeBody(summaries),
			State:      model.StatePending,
			MaxRetries: d.MaxRetries,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := d.Notifications.Create(ctx, n); err != nil {
			return fmt.Errorf("batch sweep: failed to create digest for %s: %w", key, err)
		}
		if err := d.Notifications.UpdateState(ctx, n.ID, model.StateQueued, 0); err != nil {
			return fmt.Errorf("batch sweep: failed to queue digest for %s: %w", key, err)
		}
		d.Queue.Enqueue(n.ID, n.Priority)
	}
	return nil
}

func splitBatchKey(key string) (userID, notifType, channel string, ok bool) {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// MetricsFlush drains the in-process metrics buffer into the minute tier.
func (d Deps) MetricsFlush() error {
	return d.Metrics.Flush(context.Background())
}

// MetricsRollupHour aggregates the prior hour's minute buckets.
func (d Deps) MetricsRollupHour() error {
	hourStart := time.Now().Add(-time.Hour).Truncate(time.Hour)
	return d.Metrics.RollupHour(context.Background(), hourStart)
}

// MetricsRollupDay aggregates the prior day's hour buckets.
func (d Deps) MetricsRollupDay() error {
	dayStart := time.Now().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	return d.Metrics.RollupDay(context.Background(), dayStart)
}

// MetricsPrune deletes rollup rows past each tier's retention window.
func (d Deps) MetricsPrune() error {
	ctx := context.Background()
	if _, err := d.Metrics.Prune(ctx, "minute", time.Now().Add(-24*time.Hour)); err != nil {
		return err
	}
	if _, err := d.Metrics.Prune(ctx, "hour", time.Now().Add(-30*24*time.Hour)); err != nil {
		return err
	}
	if _, err := d.Metrics.Prune(ctx, "day", time.Now().AddDate(-1, 0, 0)); err != nil {
		return err
	}
	return nil
}

// ExpireSweep marks non-terminal notifications older than retry.MaxLifetime
// as Expired.
func (d Deps) ExpireSweep() error {
	ctx := context.Background()
	cutoff := time.Now().Add(-retry.MaxLifetime)
	expiring, err := d.Notifications.ListExpiring(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire sweep: %w", err)
	}
	for _, n := range expiring {
		if err := d.Notifications.UpdateState(ctx, n.ID, model.StateExpired, n.RetryCount); err != nil {
			return fmt.Errorf("expire sweep: failed to expire %s: %w", n.ID, err)
		}
	}
	return nil
}

// InboxCleanup removes expired in-app inbox entries.
func (d Deps) InboxCleanup() error {
	_, err := d.Inbox.CleanupExpired(context.Background())
	return err
}

// DeliveryCleanup removes terminal delivery records past RecordTTL,
// defaulting to 7 days DeliveryRecord TTL.
func (d Deps) DeliveryCleanup() error {
	ttl := d.RecordTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	_, err := d.Delivery.CleanupOld(context.Background(), time.Now().Add(-ttl))
	return err
}
