package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/provision"
)

// CreateProject inserts a new project. The state defaults to the pipeline's
// initial state; the engine owns it from here.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *provision.Project) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.State() == "" {
		p.SetState(provision.StateInitial)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, app_type, country, base_repo_url, repo_url, repo_full_name, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.AppType, p.Country, p.BaseRepoURL, p.RepoURL, p.RepoFullName, string(p.State()), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*provision.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, app_type, country, base_repo_url, repo_url, repo_full_name, state, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)

	var p provision.Project
	var state string
	err := row.Scan(&p.ID, &p.Name, &p.AppType, &p.Country, &p.BaseRepoURL,
		&p.RepoURL, &p.RepoFullName, &state, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	p.SetState(pipeline.State(state))
	return &p, nil
}

// ListProjects returns all projects ordered by name.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*provision.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, app_type, country, base_repo_url, repo_url, repo_full_name, state, created_at, updated_at
		FROM projects ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*provision.Project
	for rows.Next() {
		var p provision.Project
		var state string
		if err := rows.Scan(&p.ID, &p.Name, &p.AppType, &p.Country, &p.BaseRepoURL,
			&p.RepoURL, &p.RepoFullName, &state, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.SetState(pipeline.State(state))
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// GetProjectState reads only the persisted pipeline state of a project.
func (s *SQLiteStore) GetProjectState(ctx context.Context, id string) (pipeline.State, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM projects WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read project state: %w", err)
	}
	return pipeline.State(state), nil
}

// CompareAndSetProjectState atomically persists to only if the stored state
// still equals from, and appends the transition to the audit log in the
// same transaction. A concurrent writer that got there first surfaces as a
// state conflict.
func (s *SQLiteStore) CompareAndSetProjectState(ctx context.Context, id string, from, to pipeline.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE projects SET state = ?, updated_at = ? WHERE id = ? AND state = ?
	`, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update project state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check project existence: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return pipeline.NewStateConflict(id, from, to)
	}

	if err := appendStateChange(ctx, tx, kindProject, id, string(from), string(to)); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordRepo persists the repository coordinates obtained by the
// create_repo step. Implements provision.RepoRecorder.
func (s *SQLiteStore) RecordRepo(ctx context.Context, projectID, fullName, cloneURL string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET repo_full_name = ?, repo_url = ?, updated_at = ? WHERE id = ?
	`, fullName, cloneURL, time.Now().UTC(), projectID)
	if err != nil {
		return fmt.Errorf("failed to record repository: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return nil
}

// projectStates adapts the store to the engine's StateStore contract.
type projectStates struct {
	s *SQLiteStore
}

// ProjectStates returns the pipeline.StateStore view over projects.
func (s *SQLiteStore) ProjectStates() pipeline.StateStore {
	return projectStates{s: s}
}

func (ps projectStates) GetState(ctx context.Context, entityID string) (pipeline.State, error) {
	return ps.s.GetProjectState(ctx, entityID)
}

func (ps projectStates) CompareAndSetState(ctx context.Context, entityID string, from, to pipeline.State) error {
	return ps.s.CompareAndSetProjectState(ctx, entityID, from, to)
}
