package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/siteforge/siteforge/pkg/lifecycle"
	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/provision"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate store: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_ConnLimits(t *testing.T) {
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    7,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if got := store.db.Stats().MaxOpenConnections; got != 7 {
		t.Errorf("Expected 7 max open connections, got %d", got)
	}
}

func TestSQLiteStore_ConnLimitDefaults(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if store.cfg.MaxOpenConns != 25 {
		t.Errorf("Expected default 25 max open conns, got %d", store.cfg.MaxOpenConns)
	}
	if store.cfg.MaxIdleConns != 5 {
		t.Errorf("Expected default 5 max idle conns, got %d", store.cfg.MaxIdleConns)
	}
	if store.cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("Expected default 5m conn lifetime, got %s", store.cfg.ConnMaxLifetime)
	}
}

func testProject() *provision.Project {
	return &provision.Project{
		ID:          "p1",
		Name:        "FFL South Africa",
		AppType:     "ffl",
		Country:     "za",
		BaseRepoURL: "https://git.example.com/base/ffl.git",
	}
}

func TestSQLiteStore_ProjectRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := testProject()
	if err := store.CreateProject(ctx, p); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	if p.State() != provision.StateInitial {
		t.Errorf("Expected initial state, got %s", p.State())
	}

	got, err := store.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("Failed to get project: %v", err)
	}
	if got.Name != p.Name || got.AppType != p.AppType || got.Country != p.Country {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if got.State() != provision.StateInitial {
		t.Errorf("Expected initial state, got %s", got.State())
	}
}

func TestSQLiteStore_GetProject_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetProject(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}
}

func TestSQLiteStore_ListProjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		p := testProject()
		p.ID = id
		p.Name = "Project " + id
		if err := store.CreateProject(ctx, p); err != nil {
			t.Fatalf("Failed to create project %s: %v", id, err)
		}
	}

	projects, err := store.ListProjects(ctx)
	if err != nil {
		t.Fatalf("Failed to list projects: %v", err)
	}
	if len(projects) != 2 {
		t.Errorf("Expected 2 projects, got %d", len(projects))
	}
}

func TestSQLiteStore_CompareAndSetProjectState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateProject(ctx, testProject()); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	states := store.ProjectStates()

	err := states.CompareAndSetState(ctx, "p1", provision.StateInitial, provision.StateRepoCreated)
	if err != nil {
		t.Fatalf("Expected CAS to succeed, got: %v", err)
	}

	state, err := states.GetState(ctx, "p1")
	if err != nil {
		t.Fatalf("Failed to read state: %v", err)
	}
	if state != provision.StateRepoCreated {
		t.Errorf("Expected repo_created, got %s", state)
	}
}

func TestSQLiteStore_CompareAndSetProjectState_Conflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateProject(ctx, testProject()); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	// The stored state is initial; a CAS expecting a different state loses.
	err := store.CompareAndSetProjectState(ctx, "p1", provision.StateRepoCloned, provision.StateRemoteCreated)
	if !pipeline.IsStateConflict(err) {
		t.Fatalf("Expected state-conflict error, got: %v", err)
	}

	// The stored state is untouched by the lost CAS.
	state, err := store.GetProjectState(ctx, "p1")
	if err != nil {
		t.Fatalf("Failed to read state: %v", err)
	}
	if state != provision.StateInitial {
		t.Errorf("Expected state unchanged at initial, got %s", state)
	}
}

func TestSQLiteStore_CompareAndSetProjectState_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.CompareAndSetProjectState(context.Background(), "nope",
		provision.StateInitial, provision.StateRepoCreated)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}
}

func TestSQLiteStore_ProjectStateChanges_Audit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateProject(ctx, testProject()); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	transitions := []struct{ from, to pipeline.State }{
		{provision.StateInitial, provision.StateRepoCreated},
		{provision.StateRepoCreated, provision.StateRepoCloned},
		{provision.StateRepoCloned, provision.StateRemoteCreated},
	}
	for _, tr := range transitions {
		if err := store.CompareAndSetProjectState(ctx, "p1", tr.from, tr.to); err != nil {
			t.Fatalf("CAS %s -> %s failed: %v", tr.from, tr.to, err)
		}
	}

	changes, err := store.ProjectStateChanges(ctx, "p1")
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("Expected 3 audit rows, got %d", len(changes))
	}
	for i, tr := range transitions {
		if changes[i].FromState != string(tr.from) || changes[i].ToState != string(tr.to) {
			t.Errorf("Audit row %d: expected %s -> %s, got %s -> %s",
				i, tr.from, tr.to, changes[i].FromState, changes[i].ToState)
		}
	}
}

func TestSQLiteStore_RecordRepo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateProject(ctx, testProject()); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	err := store.RecordRepo(ctx, "p1", "sites/ffl-za", "https://git.example.com/sites/ffl-za.git")
	if err != nil {
		t.Fatalf("Failed to record repo: %v", err)
	}

	p, err := store.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("Failed to get project: %v", err)
	}
	if p.RepoFullName != "sites/ffl-za" {
		t.Errorf("Expected full name recorded, got %s", p.RepoFullName)
	}
	if p.RepoURL != "https://git.example.com/sites/ffl-za.git" {
		t.Errorf("Expected clone URL recorded, got %s", p.RepoURL)
	}

	if err := store.RecordRepo(ctx, "nope", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown project, got: %v", err)
	}
}

func testManagedApp() *lifecycle.ManagedApp {
	return &lifecycle.ManagedApp{
		ID:        "a1",
		Name:      "FFL South Africa",
		Slug:      "ffl-za",
		CPUs:      0.1,
		Mem:       128,
		Instances: 1,
		Cmd:       "pserve ffl-za.ini",
	}
}

func TestSQLiteStore_AppRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	app := testManagedApp()
	if err := store.CreateApp(ctx, app); err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	if app.State != lifecycle.StateUnbuilt {
		t.Errorf("Expected unbuilt default state, got %s", app.State)
	}

	got, err := store.GetApp(ctx, "a1")
	if err != nil {
		t.Fatalf("Failed to get app: %v", err)
	}
	if got.Slug != "ffl-za" || got.Instances != 1 {
		t.Errorf("Round trip mismatch: %+v", got)
	}
}

func TestSQLiteStore_SetAppState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateApp(ctx, testManagedApp()); err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	if err := store.SetAppState(ctx, "a1", lifecycle.StatePresent); err != nil {
		t.Fatalf("Failed to set app state: %v", err)
	}

	state, err := store.GetAppState(ctx, "a1")
	if err != nil {
		t.Fatalf("Failed to read app state: %v", err)
	}
	if state != lifecycle.StatePresent {
		t.Errorf("Expected present, got %s", state)
	}

	changes, err := store.AppStateChanges(ctx, "a1")
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("Expected 1 audit row, got %d", len(changes))
	}
	if changes[0].FromState != string(lifecycle.StateUnbuilt) || changes[0].ToState != string(lifecycle.StatePresent) {
		t.Errorf("Unexpected audit row: %+v", changes[0])
	}
}

func TestSQLiteStore_SetAppState_InvalidState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateApp(ctx, testManagedApp()); err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	if err := store.SetAppState(ctx, "a1", lifecycle.State("running")); err == nil {
		t.Fatal("Expected error for invalid state")
	}
}

func TestSQLiteStore_SetAppState_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.SetAppState(context.Background(), "nope", lifecycle.StatePresent)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got: %v", err)
	}
}
