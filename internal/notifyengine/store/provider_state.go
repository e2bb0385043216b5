package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// ProviderStateStore persists breaker state per channel, allowing the
// breaker to survive process restarts rather than resetting to Closed on
// every boot.
type ProviderStateStore struct {
	db *sql.DB
}

// NewProviderStateStore wraps db.
func NewProviderStateStore(db *sql.DB) *ProviderStateStore {
	return &ProviderStateStore{db: db}
}

// Save persists the current breaker state for a channel.
func (s *ProviderStateStore) Save(ctx context.Context, st *model.ProviderState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_state (channel, breaker, consecutive_fails, opened_at, last_probe_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel) DO UPDATE SET
			breaker = excluded.breaker,
			consecutive_fails = excluded.consecutive_fails,
			opened_at = excluded.opened_at,
			last_probe_at = excluded.last_probe_at,
			updated_at = excluded.updated_at
	`, string(st.Channel), string(st.Breaker), st.ConsecutiveFails,
		nullTime(st.OpenedAt), nullTime(st.LastProbeAt), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save provider state for %s: %w", st.Channel, err)
	}
	return nil
}

// Load reads back the breaker state for a channel, if any.
func (s *ProviderStateStore) Load(ctx context.Context, channel model.Channel) (*model.ProviderState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT channel, breaker, consecutive_fails, opened_at, last_probe_at, updated_at
		FROM provider_state WHERE channel = ?
	`, string(channel))

	var st model.ProviderState
	var ch, breaker string
	var openedAt, lastProbeAt sql.NullTime
	err := row.Scan(&ch, &breaker, &st.ConsecutiveFails, &openedAt, &lastProbeAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load provider state for %s: %w", channel, err)
	}
	st.Channel = model.Channel(ch)
	st.Breaker = model.BreakerState(breaker)
	if openedAt.Valid {
		st.OpenedAt = &openedAt.Time
	}
	if lastProbeAt.Valid {
		st.LastProbeAt = &lastProbeAt.Time
	}
	return &st, nil
}
