// Package metrics implements the tiered time-series rollup aggregator
// (minute/hour/day) and its derived quantities, grounded on the
// MetricsSummary/GetTimePeriodMetrics style
// (src/server/service/notification_metrics.go), generalized from a fixed
// set of weather-notification counters into channel/type-labelled
// delivery counters.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// Event is one raw measurement emitted by a worker, buffered in-process
// before the flush thread batches it into the minute tier.
type Event struct {
	Channel    model.Channel
	Sent       int64
	Delivered  int64
	Read       int64
	Failed     int64
	LatencyMs  int64 // 0 when this event carries no latency sample
}

// Aggregator buffers events and flushes them into tiered rollups each time
// Flush is called (the scheduler's metrics_flush task).
type Aggregator struct {
	mu     sync.Mutex
	buffer []Event
	db     *sql.DB
}

// New creates an Aggregator backed by db for persisted rollups.
func New(db *sql.DB) *Aggregator {
	return &Aggregator{db: db}
}

// Emit buffers one event for the next flush.
func (a *Aggregator) Emit(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = append(a.buffer, e)
}

// Flush writes the buffered events into the minute tier in one batched
// transaction, all stamped with the minute bucket of the flush time.
func (a *Aggregator) Flush(ctx context.Context) error {
	a.mu.Lock()
	events := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin metrics flush transaction: %w", err)
	}
	defer tx.Rollback()

	bucket := time.Now().Truncate(time.Minute)
	for _, e := range events {
		if err := upsertBucket(ctx, tx, e.Channel, "minute", bucket, e); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func upsertBucket(ctx context.Context, tx *sql.Tx, channel model.Channel, tier string, bucket time.Time, e Event) error {
	latencyCount := int64(0)
	if e.LatencyMs > 0 {
		latencyCount = 1
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO metric_points (channel, tier, bucket_time, sent, delivered, read, failed, latency_sum_ms, latency_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(channel), tier, bucket, e.Sent, e.Delivered, e.Read, e.Failed, e.LatencyMs, latencyCount)
	if err != nil {
		return fmt.Errorf("failed to write metric bucket: %w", err)
	}
	return nil
}

// RollupHour aggregates the prior hour's minute buckets into a single hour
// bucket.
func (a *Aggregator) RollupHour(ctx context.Context, hourStart time.Time) error {
	return a.rollupTier(ctx, "minute", "hour", hourStart, hourStart.Add(time.Hour))
}

// RollupDay aggregates a day's hour buckets into a single day bucket.
func (a *Aggregator) RollupDay(ctx context.Context, dayStart time.Time) error {
	return a.rollupTier(ctx, "hour", "day", dayStart, dayStart.Add(24*time.Hour))
}

func (a *Aggregator) rollupTier(ctx context.Context, fromTier, toTier string, start, end time.Time) error {
	rows, err := a.db.QueryContext(ctx, `
		SELECT channel, SUM(sent), SUM(delivered), SUM(read), SUM(failed), SUM(latency_sum_ms), SUM(latency_count)
		FROM metric_points WHERE tier = ? AND bucket_time >= ? AND bucket_time < ?
		GROUP BY channel
	`, fromTier, start, end)
	if err != nil {
		return fmt.Errorf("failed to aggregate %s tier: %w", fromTier, err)
	}
	defer rows.Close()

	type agg struct {
		channel                                      string
		sent, delivered, read, failed, latSum, latCt int64
	}
	var aggs []agg
	for rows.Next() {
		var x agg
		if err := rows.Scan(&x.channel, &x.sent, &x.delivered, &x.read, &x.failed, &x.latSum, &x.latCt); err != nil {
			return fmt.Errorf("failed to scan rollup row: %w", err)
		}
		aggs = append(aggs, x)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range aggs {
		_, err := a.db.ExecContext(ctx, `
			INSERT INTO metric_points (channel, tier, bucket_time, sent, delivered, read, failed, latency_sum_ms, latency_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, x.channel, toTier, start, x.sent, x.delivered, x.read, x.failed, x.latSum, x.latCt)
		if err != nil {
			return fmt.Errorf("failed to write %s rollup: %w", toTier, err)
		}
	}
	return nil
}

// Prune deletes rollup rows past their tier's retention window.
func (a *Aggregator) Prune(ctx context.Context, tier string, olderThan time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM metric_points WHERE tier = ? AND bucket_time < ?`, tier, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s tier: %w", tier, err)
	}
	return res.RowsAffected()
}

// tierForRange picks the coarsest bucket that fully contains [start, end):
// intervals up to 24h use the minute tier, up to 30d use the hour tier,
// anything longer uses the day tier.
func tierForRange(start, end time.Time) string {
	d := end.Sub(start)
	switch {
	case d <= 24*time.Hour:
		return "minute"
	case d <= 30*24*time.Hour:
		return "hour"
	default:
		return "day"
	}
}

// Summary is the derived-quantities rollup for a channel over a range.
type Summary struct {
	Channel           model.Channel
	Sent              int64
	Delivered         int64
	Read              int64
	Failed            int64
	DeliveryRate      float64
	ReadRate          float64
	FailureRate       float64
	AvgDeliveryTimeMs float64
	ChannelScore      float64
}

// Query computes a Summary for channel over [start, end), choosing the
// coarsest tier that fully contains the range. A range that crosses a tier
// boundary is read from the tier it fully fits, so callers get one clean
// scan rather than a merge across tiers.
func (a *Aggregator) Query(ctx context.Context, channel model.Channel, start, end time.Time) (*Summary, error) {
	tier := tierForRange(start, end)

	row := a.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(sent),0), COALESCE(SUM(delivered),0), COALESCE(SUM(read),0),
		       COALESCE(SUM(failed),0), COALESCE(SUM(latency_sum_ms),0), COALESCE(SUM(latency_count),0)
		FROM metric_points
		WHERE channel = ? AND tier = ? AND bucket_time >= ? AND bucket_time < ?
	`, string(channel), tier, start, end)

	var sent, delivered, read, failed, latSum, latCt int64
	if err := row.Scan(&sent, &delivered, &read, &failed, &latSum, &latCt); err != nil {
		return nil, fmt.Errorf("failed to query metrics for %s: %w", channel, err)
	}

	s := &Summary{Channel: channel, Sent: sent, Delivered: delivered, Read: read, Failed: failed}
	if sent > 0 {
		s.DeliveryRate = float64(delivered) / float64(sent) * 100
		s.FailureRate = float64(failed) / float64(sent) * 100
	}
	if delivered > 0 {
		s.ReadRate = float64(read) / float64(delivered) * 100
	}
	if latCt > 0 {
		s.AvgDeliveryTimeMs = float64(latSum) / float64(latCt)
	}
	s.ChannelScore = ChannelScore(s.DeliveryRate, s.ReadRate, s.AvgDeliveryTimeMs)
	return s, nil
}

// Percentile returns the p-th percentile of a sorted-ascending duration
// sample set, clamped to the last index.
func Percentile(samplesMs []int64, p float64) int64 {
	if len(samplesMs) == 0 {
		return 0
	}
	sorted := append([]int64(nil), samplesMs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p / 100 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// EngagementScore scores a read event by how long after delivery it
// happened, t in minutes. The boundary at exactly t=1 and t=10 is closed on
// the lower (earlier) branch, so t<=1 and t<=10 use the formula for the
// preceding bucket rather than the next one.
func EngagementScore(t float64) float64 {
	switch {
	case t <= 1:
		return 100
	case t <= 10:
		v := 100 - (t-1)*5.5
		if v < 50 {
			return 50
		}
		return v
	default:
		v := 50 - (t-10)*2
		if v < 10 {
			return 10
		}
		return v
	}
}

// ChannelScore blends delivery rate, read rate, and average delivery
// latency into one score.
func ChannelScore(deliveryRate, readRate, avgDeliveryTimeMs float64) float64 {
	latencyTerm := 100 - avgDeliveryTimeMs/1000
	if latencyTerm < 0 {
		latencyTerm = 0
	}
	return 0.5*deliveryRate + 0.3*readRate + 0.2*latencyTerm
}
