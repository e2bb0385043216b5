package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/template"
)

// TemplateStore persists versioned templates, enforcing at most one active
// version per (type, channel).
type TemplateStore struct {
	db *sql.DB
}

// NewTemplateStore wraps db.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// GetActive loads the active template for (notifType, channel).
func (s *TemplateStore) GetActive(ctx context.Context, notifType string, channel model.Channel) (*model.Template, template.Schema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, channel, version, active, subject, body, schema, created_at, updated_at
		FROM templates WHERE type = ? AND channel = ? AND active = 1
	`, notifType, string(channel))
	return scanTemplate(row)
}

// Get loads a specific template by id.
func (s *TemplateStore) Get(ctx context.Context, id string) (*model.Template, template.Schema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, channel, version, active, subject, body, schema, created_at, updated_at
		FROM templates WHERE id = ?
	`, id)
	return scanTemplate(row)
}

func scanTemplate(row rowScanner) (*model.Template, template.Schema, error) {
	var t model.Template
	var channel, schemaJSON string
	err := row.Scan(&t.ID, &t.Type, &channel, &t.Version, &t.Active, &t.Subject, &t.Body,
		&schemaJSON, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template: %w", err)
	}
	t.Channel = model.Channel(channel)

	var schema template.Schema
	if schemaJSON != "" {
		if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
			return nil, nil, fmt.Errorf("failed to decode template schema: %w", err)
		}
	}
	return &t, schema, nil
}

// Set creates a new template version and, if activate is true, deactivates
// the previous active version for (type, channel) first.
func (s *TemplateStore) Set(ctx context.Context, t *model.Template, schema template.Schema, activate bool) error {
	if err := template.Validate(t.Subject, t.Body, schema); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrInvalidRequest, err)
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode template schema: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin template transaction: %w", err)
	}
	defer tx.Rollback()

	if activate {
		if _, err := tx.ExecContext(ctx, `
			UPDATE templates SET active = 0, updated_at = ? WHERE type = ? AND channel = ? AND active = 1
		`, time.Now(), t.Type, string(t.Channel)); err != nil {
			return fmt.Errorf("failed to deactivate previous template version: %w", err)
		}
	}

	active := 0
	if activate {
		active = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, type, channel, version, active, subject, body, schema, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Type, string(t.Channel), t.Version, active, t.Subject, t.Body, string(schemaJSON),
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}

	return tx.Commit()
}

// Activate flips the active flag to id's template and deactivates any
// previously active version of the same (type, channel).
func (s *TemplateStore) Activate(ctx context.Context, id string) error {
	t, _, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin activate transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE templates SET active = 0, updated_at = ? WHERE type = ? AND channel = ? AND active = 1
	`, time.Now(), t.Type, string(t.Channel)); err != nil {
		return fmt.Errorf("failed to deactivate current template: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE templates SET active = 1, updated_at = ? WHERE id = ?
	`, time.Now(), id); err != nil {
		return fmt.Errorf("failed to activate template %s: %w", id, err)
	}

	return tx.Commit()
}

// List returns every version of every template, newest first.
func (s *TemplateStore) List(ctx context.Context) ([]*model.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, channel, version, active, subject, body, created_at, updated_at
		FROM templates ORDER BY type, channel, version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		var t model.Template
		var channel string
		if err := rows.Scan(&t.ID, &t.Type, &channel, &t.Version, &t.Active, &t.Subject, &t.Body,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		t.Channel = model.Channel(channel)
		out = append(out, &t)
	}
	return out, rows.Err()
}
