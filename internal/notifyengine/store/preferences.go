package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// PreferenceStore persists per-(user, type) preference rows, unique on
// (user_id, type).
type PreferenceStore struct {
	db *sql.DB
}

// NewPreferenceStore wraps db.
func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get loads the preference for (userID, notifType), returning
// apierr.ErrNotFound if none exists so the caller can fall back to
// preference.Default.
func (s *PreferenceStore) Get(ctx context.Context, userID, notifType string) (*model.UserPreference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, type, enabled, channels, quiet_enabled, quiet_timezone,
		       quiet_start_hour, quiet_start_min, quiet_end_hour, quiet_end_min, batch, updated_at
		FROM user_preferences WHERE user_id = ? AND type = ?
	`, userID, notifType)

	var p model.UserPreference
	var channels, batch string
	err := row.Scan(&p.UserID, &p.Type, &p.Enabled, &channels, &p.QuietHours.Enabled,
		&p.QuietHours.Timezone, &p.QuietHours.StartHour, &p.QuietHours.StartMin,
		&p.QuietHours.EndHour, &p.QuietHours.EndMin, &batch, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preference for %s/%s: %w", userID, notifType, err)
	}
	p.Channels = channelsFromCSV(channels)
	p.Batch = model.BatchWindow(batch)
	return &p, nil
}

// Put creates or replaces the preference row, so a Get immediately after
// always observes the write.
func (s *PreferenceStore) Put(ctx context.Context, p *model.UserPreference) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences
			(user_id, type, enabled, channels, quiet_enabled, quiet_timezone,
			 quiet_start_hour, quiet_start_min, quiet_end_hour, quiet_end_min, batch, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, type) DO UPDATE SET
			enabled = excluded.enabled,
			channels = excluded.channels,
			quiet_enabled = excluded.quiet_enabled,
			quiet_timezone = excluded.quiet_timezone,
			quiet_start_hour = excluded.quiet_start_hour,
			quiet_start_min = excluded.quiet_start_min,
			quiet_end_hour = excluded.quiet_end_hour,
			quiet_end_min = excluded.quiet_end_min,
			batch = excluded.batch,
			updated_at = excluded.updated_at
	`,
		p.UserID, p.Type, p.Enabled, channelsToCSV(p.Channels), p.QuietHours.Enabled,
		p.QuietHours.Timezone, p.QuietHours.StartHour, p.QuietHours.StartMin,
		p.QuietHours.EndHour, p.QuietHours.EndMin, string(p.Batch), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preference for %s/%s: %w", p.UserID, p.Type, err)
	}
	return nil
}

// ListBatchable returns every preference row configured for the given
// batch window, used by the daily/weekly sweeper to know which
// (user, type) pairs to synthesize a digest for.
func (s *PreferenceStore) ListBatchable(ctx context.Context, window model.BatchWindow) ([]*model.UserPreference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, type, enabled, channels, quiet_enabled, quiet_timezone,
		       quiet_start_hour, quiet_start_min, quiet_end_hour, quiet_end_min, batch, updated_at
		FROM user_preferences WHERE batch = ?
	`, string(window))
	if err != nil {
		return nil, fmt.Errorf("failed to list batchable preferences: %w", err)
	}
	defer rows.Close()

	var out []*model.UserPreference
	for rows.Next() {
		var p model.UserPreference
		var channels, batch string
		if err := rows.Scan(&p.UserID, &p.Type, &p.Enabled, &channels, &p.QuietHours.Enabled,
			&p.QuietHours.Timezone, &p.QuietHours.StartHour, &p.QuietHours.StartMin,
			&p.QuietHours.EndHour, &p.QuietHours.EndMin, &batch, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preference row: %w", err)
		}
		p.Channels = channelsFromCSV(channels)
		p.Batch = model.BatchWindow(batch)
		out = append(out, &p)
	}
	return out, rows.Err()
}
