package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/siteforge/siteforge/pkg/lifecycle"
)

// CreateApp inserts a new managed application in the unbuilt state.
func (s *SQLiteStore) CreateApp(ctx context.Context, a *lifecycle.ManagedApp) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.State == "" {
		a.State = lifecycle.StateUnbuilt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apps (id, name, slug, cpus, mem, instances, cmd, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.Slug, a.CPUs, a.Mem, a.Instances, a.Cmd, string(a.State), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert app: %w", err)
	}
	return nil
}

// GetApp retrieves a managed application by ID.
func (s *SQLiteStore) GetApp(ctx context.Context, id string) (*lifecycle.ManagedApp, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, cpus, mem, instances, cmd, state, created_at, updated_at
		FROM apps WHERE id = ?
	`, id)

	var a lifecycle.ManagedApp
	var state string
	err := row.Scan(&a.ID, &a.Name, &a.Slug, &a.CPUs, &a.Mem, &a.Instances,
		&a.Cmd, &state, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("app %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan app: %w", err)
	}
	a.State = lifecycle.State(state)
	return &a, nil
}

// ListApps returns all managed applications ordered by name.
func (s *SQLiteStore) ListApps(ctx context.Context) ([]*lifecycle.ManagedApp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, cpus, mem, instances, cmd, state, created_at, updated_at
		FROM apps ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	var apps []*lifecycle.ManagedApp
	for rows.Next() {
		var a lifecycle.ManagedApp
		var state string
		if err := rows.Scan(&a.ID, &a.Name, &a.Slug, &a.CPUs, &a.Mem, &a.Instances,
			&a.Cmd, &state, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		a.State = lifecycle.State(state)
		apps = append(apps, &a)
	}
	return apps, rows.Err()
}

// GetAppState reads only the recorded lifecycle state of an application.
// Implements lifecycle.StateStore.
func (s *SQLiteStore) GetAppState(ctx context.Context, id string) (lifecycle.State, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM apps WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("app %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read app state: %w", err)
	}
	return lifecycle.State(state), nil
}

// SetAppState overwrites the recorded lifecycle state and appends the
// transition to the audit log in the same transaction. Implements
// lifecycle.StateStore.
func (s *SQLiteStore) SetAppState(ctx context.Context, id string, state lifecycle.State) error {
	if err := state.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous string
	err = tx.QueryRowContext(ctx, `SELECT state FROM apps WHERE id = ?`, id).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("app %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read app state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE apps SET state = ?, updated_at = ? WHERE id = ?
	`, string(state), time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update app state: %w", err)
	}

	if err := appendStateChange(ctx, tx, kindApp, id, previous, string(state)); err != nil {
		return err
	}
	return tx.Commit()
}
