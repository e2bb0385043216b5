package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// DeliveryRecordStore persists DeliveryRecord rows and their Attempts,
// grounded on the notification_history write pattern in
// src/services/delivery_system.go's recordHistory, generalized into a
// dedicated record+attempts schema.
type DeliveryRecordStore struct {
	db *sql.DB
}

// NewDeliveryRecordStore wraps db.
func NewDeliveryRecordStore(db *sql.DB) *DeliveryRecordStore {
	return &DeliveryRecordStore{db: db}
}

// Upsert creates or updates the DeliveryRecord row for a notification. It
// does not touch next_retry_at; SetNextRetry owns that column.
func (s *DeliveryRecordStore) Upsert(ctx context.Context, r *model.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_records
			(notification_id, user_id, channel, state, sent_at, delivered_at, read_at, failed_at,
			 last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(notification_id) DO UPDATE SET
			state = excluded.state,
			sent_at = excluded.sent_at,
			delivered_at = excluded.delivered_at,
			read_at = excluded.read_at,
			failed_at = excluded.failed_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`,
		r.NotificationID, r.UserID, string(r.Channel), string(r.State),
		nullTime(r.SentAt), nullTime(r.DeliveredAt), nullTime(r.ReadAt), nullTime(r.FailedAt),
		r.LastError, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert delivery record %s: %w", r.NotificationID, err)
	}
	return nil
}

// SetNextRetry sets the record back to Queued with a future next_retry_at.
func (s *DeliveryRecordStore) SetNextRetry(ctx context.Context, notificationID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE delivery_records SET next_retry_at = ?, updated_at = ? WHERE notification_id = ?
	`, at, time.Now(), notificationID)
	if err != nil {
		return fmt.Errorf("failed to set next retry for %s: %w", notificationID, err)
	}
	return nil
}

// DueForRetry returns delivery records whose next_retry_at has elapsed,
// scanned by the scheduler's retry_sweep task.
func (s *DeliveryRecordStore) DueForRetry(ctx context.Context, now time.Time) ([]*model.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notification_id, user_id, channel, state, sent_at, delivered_at, read_at, failed_at,
		       last_error, created_at, updated_at
		FROM delivery_records
		WHERE next_retry_at IS NOT NULL AND next_retry_at <= ?
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due retries: %w", err)
	}
	defer rows.Close()
	return scanDeliveryRecords(rows)
}

// Get loads one delivery record with its attempts.
func (s *DeliveryRecordStore) Get(ctx context.Context, notificationID string) (*model.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT notification_id, user_id, channel, state, sent_at, delivered_at, read_at, failed_at,
		       last_error, created_at, updated_at
		FROM delivery_records WHERE notification_id = ?
	`, notificationID)

	r, err := scanDeliveryRecord(row)
	if err == sql.ErrNoRows {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery record %s: %w", notificationID, err)
	}

	attempts, err := s.ListAttempts(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	r.Attempts = attempts
	return r, nil
}

// AppendAttempt appends an immutable Attempt row.
func (s *DeliveryRecordStore) AppendAttempt(ctx context.Context, a *model.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts
			(id, notification_id, channel, attempt_number, started_at, finished_at, success,
			 failure_kind, error_message, provider_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.NotificationID, string(a.Channel), a.AttemptNumber, a.StartedAt, a.FinishedAt,
		a.Success, string(a.FailureKind), a.ErrorMessage, a.ProviderRef,
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt for %s: %w", a.NotificationID, err)
	}
	return nil
}

// ListAttempts returns every attempt for a notification in append order.
func (s *DeliveryRecordStore) ListAttempts(ctx context.Context, notificationID string) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notification_id, channel, attempt_number, started_at, finished_at, success,
		       failure_kind, error_message, provider_ref
		FROM attempts WHERE notification_id = ? ORDER BY started_at ASC
	`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for %s: %w", notificationID, err)
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var channel, failureKind string
		if err := rows.Scan(&a.ID, &a.NotificationID, &channel, &a.AttemptNumber, &a.StartedAt,
			&a.FinishedAt, &a.Success, &failureKind, &a.ErrorMessage, &a.ProviderRef); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Channel = model.Channel(channel)
		a.FailureKind = model.FailureKind(failureKind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CleanupOld deletes terminal delivery records past their TTL, grounded on
// DeliverySystem.CleanupOld.
func (s *DeliveryRecordStore) CleanupOld(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM delivery_records
		WHERE updated_at < ? AND state IN (?, ?, ?, ?, ?)
	`, olderThan, string(model.StateDelivered), string(model.StateRead),
		string(model.StateFailedFinal), string(model.StateCancelled), string(model.StateExpired))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old delivery records: %w", err)
	}
	return res.RowsAffected()
}

func scanDeliveryRecords(rows *sql.Rows) ([]*model.DeliveryRecord, error) {
	var out []*model.DeliveryRecord
	for rows.Next() {
		r, err := scanDeliveryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanDeliveryRecord(row rowScanner) (*model.DeliveryRecord, error) {
	var r model.DeliveryRecord
	var channel, state string
	var sentAt, deliveredAt, readAt, failedAt sql.NullTime

	err := row.Scan(&r.NotificationID, &r.UserID, &channel, &state, &sentAt, &deliveredAt,
		&readAt, &failedAt, &r.LastError, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Channel = model.Channel(channel)
	r.State = model.State(state)
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		r.DeliveredAt = &deliveredAt.Time
	}
	if readAt.Valid {
		r.ReadAt = &readAt.Time
	}
	if failedAt.Valid {
		r.FailedAt = &failedAt.Time
	}
	return &r, nil
}
