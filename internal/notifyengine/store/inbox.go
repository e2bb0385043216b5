package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InboxStore persists the per-user in-app notification inbox, capped at
// 100 entries per user with a 7 day TTL.
type InboxStore struct {
	db *sql.DB
}

// NewInboxStore wraps db.
func NewInboxStore(db *sql.DB) *InboxStore {
	return &InboxStore{db: db}
}

const inboxCap = 100
const inboxTTL = 7 * 24 * time.Hour

// Append writes payload to userID's inbox and trims it back to the cap.
func (s *InboxStore) Append(ctx context.Context, userID, notificationID, payload string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO in_app_inbox (user_id, notification_id, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, notificationID, payload, now, now.Add(inboxTTL))
	if err != nil {
		return fmt.Errorf("failed to append in-app inbox entry for %s: %w", userID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM in_app_inbox WHERE user_id = ? AND id NOT IN (
			SELECT id FROM in_app_inbox WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
		)
	`, userID, userID, inboxCap)
	if err != nil {
		return fmt.Errorf("failed to trim in-app inbox for %s: %w", userID, err)
	}
	return nil
}

// List returns userID's inbox entries, newest first.
func (s *InboxStore) List(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM in_app_inbox
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT ?
	`, userID, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-app inbox for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan inbox row: %w", err)
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

// CleanupExpired deletes inbox entries past their TTL.
func (s *InboxStore) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM in_app_inbox WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired inbox entries: %w", err)
	}
	return res.RowsAffected()
}
