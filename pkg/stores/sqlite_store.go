// Package stores provides the durable state store backing the provisioning
// pipeline and the lifecycle reconciler. State is written only through the
// engine and the reconciler; everything else reads it for display.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// entityKind values for the state_changes audit table.
const (
	kindProject = "project"
	kindApp     = "app"
)

// SQLiteStore implements the state store on SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration. Zero values for the connection
// pool fields take the defaults below.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database, enables WAL mode, and verifies the connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// appendStateChange records one transition in the audit log within tx.
func appendStateChange(ctx context.Context, tx *sql.Tx, kind, entityID, from, to string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO state_changes (entity_kind, entity_id, from_state, to_state, changed_at)
		VALUES (?, ?, ?, ?, ?)
	`, kind, entityID, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append state change: %w", err)
	}
	return nil
}

// StateChange is one row of the transition audit log.
type StateChange struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entity_id"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	ChangedAt time.Time `json:"changed_at"`
}

// StateChanges returns the audit log for one entity, oldest first.
func (s *SQLiteStore) StateChanges(ctx context.Context, kind, entityID string) ([]StateChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_kind, entity_id, from_state, to_state, changed_at
		FROM state_changes
		WHERE entity_kind = ? AND entity_id = ?
		ORDER BY id ASC
	`, kind, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query state changes: %w", err)
	}
	defer rows.Close()

	var changes []StateChange
	for rows.Next() {
		var c StateChange
		if err := rows.Scan(&c.ID, &c.Kind, &c.EntityID, &c.FromState, &c.ToState, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan state change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// ProjectStateChanges returns the audit log for one project.
func (s *SQLiteStore) ProjectStateChanges(ctx context.Context, projectID string) ([]StateChange, error) {
	return s.StateChanges(ctx, kindProject, projectID)
}

// AppStateChanges returns the audit log for one managed application.
func (s *SQLiteStore) AppStateChanges(ctx context.Context, appID string) ([]StateChange, error) {
	return s.StateChanges(ctx, kindApp, appID)
}
