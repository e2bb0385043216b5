package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// NotificationStore persists Notification rows and enforces the
// Queued->Sending CAS lease: a worker must win the state transition
// before it may attempt dispatch.
type NotificationStore struct {
	db *sql.DB
}

// NewNotificationStore wraps db.
func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create inserts a new Notification in status Pending.
func (s *NotificationStore) Create(ctx context.Context, n *model.Notification) error {
	vars, err := json.Marshal(n.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}
	fallback := channelsToCSV(n.FallbackChannels)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications
			(id, user_id, type, channel, fallback_channels, priority, template_id, variables,
			 recipient, subject, body, state, retry_count, max_retries, not_before, expires_at,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID, n.UserID, n.Type, string(n.Channel), fallback, int(n.Priority), n.TemplateID, string(vars),
		n.Recipient, n.Subject, n.Body, string(n.State), n.RetryCount, n.MaxRetries,
		nullTime(n.NotBefore), nullTime(n.ExpiresAt), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Get loads a notification by id.
func (s *NotificationStore) Get(ctx context.Context, id string) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, channel, fallback_channels, priority, template_id, variables,
		       recipient, subject, body, state, retry_count, max_retries, not_before, expires_at,
		       created_at, updated_at
		FROM notifications WHERE id = ?
	`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification %s: %w", id, err)
	}
	return n, nil
}

// TryLease performs the CAS-style handoff from Queued to Sending. A worker
// that loses the CAS (rows affected == 0) must abandon the notification to
// whichever worker won.
func (s *NotificationStore) TryLease(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET state = ?, updated_at = ?
		WHERE id = ? AND state IN (?, ?)
	`, string(model.StateSending), time.Now(), id, string(model.StatePending), string(model.StateQueued))
	if err != nil {
		return false, fmt.Errorf("failed to lease notification %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lease result: %w", err)
	}
	return n > 0, nil
}

// UpdateState transitions a notification to a new state, bumping retry
// bookkeeping as needed.
func (s *NotificationStore) UpdateState(ctx context.Context, id string, state model.State, retryCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET state = ?, retry_count = ?, updated_at = ? WHERE id = ?
	`, string(state), retryCount, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update notification %s state: %w", id, err)
	}
	return nil
}

// Reroute switches a notification onto a fallback channel after its
// primary channel dispatch reached Failed-Final, per the routing-system
// fallback rule: the remaining fallback list drops the channel just tried,
// retry_count resets since this is a fresh delivery leg, and state returns
// to Queued for immediate redispatch.
func (s *NotificationStore) Reroute(ctx context.Context, id string, newChannel model.Channel, remainingFallback []model.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET channel = ?, fallback_channels = ?, state = ?, retry_count = 0, updated_at = ?
		WHERE id = ?
	`, string(newChannel), channelsToCSV(remainingFallback), string(model.StateQueued), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reroute notification %s to %s: %w", id, newChannel, err)
	}
	return nil
}

// ListScheduled returns Pending notifications whose not_before has arrived,
// used by the scheduled-set rehydration sweep on process restart.
func (s *NotificationStore) ListScheduled(ctx context.Context, before time.Time) ([]*model.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, channel, fallback_channels, priority, template_id, variables,
		       recipient, subject, body, state, retry_count, max_retries, not_before, expires_at,
		       created_at, updated_at
		FROM notifications WHERE state = ? AND not_before IS NOT NULL AND not_before <= ?
	`, string(model.StatePending), before)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ListByUser returns notifications for userID, optionally filtered by
// channel/status, newest first, capped at limit.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, channel, status string, limit int) ([]*model.Notification, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, user_id, type, channel, fallback_channels, priority, template_id, variables,
		       recipient, subject, body, state, retry_count, max_retries, not_before, expires_at,
		       created_at, updated_at
		FROM notifications WHERE user_id = ?
	`)
	args := []interface{}{userID}
	if channel != "" {
		query.WriteString(" AND channel = ?")
		args = append(args, channel)
	}
	if status != "" {
		query.WriteString(" AND state = ?")
		args = append(args, status)
	}
	query.WriteString(" ORDER BY created_at DESC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for user %s: %w", userID, err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ListExpiring returns non-terminal notifications older than maxLifetime,
// used by the auto-Expired sweep.
func (s *NotificationStore) ListExpiring(ctx context.Context, cutoff time.Time) ([]*model.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, channel, fallback_channels, priority, template_id, variables,
		       recipient, subject, body, state, retry_count, max_retries, not_before, expires_at,
		       created_at, updated_at
		FROM notifications
		WHERE created_at <= ?
		  AND state NOT IN (?, ?, ?, ?, ?)
	`, cutoff,
		string(model.StateDelivered), string(model.StateRead), string(model.StateFailedFinal),
		string(model.StateCancelled), string(model.StateExpired))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func scanNotifications(rows *sql.Rows) ([]*model.Notification, error) {
	var out []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	var n model.Notification
	var channel, fallback, variables string
	var priority int
	var notBefore, expiresAt sql.NullTime

	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &channel, &fallback, &priority, &n.TemplateID, &variables,
		&n.Recipient, &n.Subject, &n.Body, &n.State, &n.RetryCount, &n.MaxRetries,
		&notBefore, &expiresAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Channel = model.Channel(channel)
	n.Priority = model.Priority(priority)
	n.FallbackChannels = channelsFromCSV(fallback)
	if variables != "" {
		_ = json.Unmarshal([]byte(variables), &n.Variables)
	}
	if notBefore.Valid {
		n.NotBefore = &notBefore.Time
	}
	if expiresAt.Valid {
		n.ExpiresAt = &expiresAt.Time
	}
	return &n, nil
}

func channelsToCSV(chs []model.Channel) string {
	strs := make([]string, len(chs))
	for i, c := range chs {
		strs[i] = string(c)
	}
	return strings.Join(strs, ",")
}

func channelsFromCSV(s string) []model.Channel {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.Channel, len(parts))
	for i, p := range parts {
		out[i] = model.Channel(p)
	}
	return out
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
