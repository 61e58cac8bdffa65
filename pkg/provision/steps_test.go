package provision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siteforge/siteforge/pkg/hosting"
	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/render"
	"github.com/siteforge/siteforge/pkg/telemetry"
)

// fakeRecorder captures the repository coordinates handed to it.
type fakeRecorder struct {
	projectID string
	fullName  string
	cloneURL  string
	err       error
}

func (f *fakeRecorder) RecordRepo(_ context.Context, projectID, fullName, cloneURL string) error {
	f.projectID = projectID
	f.fullName = fullName
	f.cloneURL = cloneURL
	return f.err
}

func TestSteps_CreateRepo_RecordsCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(hosting.Repo{
			Name:     "ffl-za",
			FullName: "sites/ffl-za",
			CloneURL: "https://git.example.com/sites/ffl-za.git",
		})
	}))
	defer srv.Close()

	recorder := &fakeRecorder{}
	steps := NewSteps(hosting.NewClient(srv.URL), nil, nil, nil, nil,
		recorder, Config{}, telemetry.NopLogger())

	p := &Project{ID: "p1", AppType: "ffl", Country: "za"}
	params := pipeline.Params{ParamAccessToken: "tok"}

	if err := steps.CreateRepo(context.Background(), p, params); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if recorder.projectID != "p1" || recorder.fullName != "sites/ffl-za" {
		t.Errorf("Unexpected recorded coordinates: %+v", recorder)
	}
	if p.RepoURL != "https://git.example.com/sites/ffl-za.git" {
		t.Errorf("Expected clone URL on project, got %s", p.RepoURL)
	}
	if p.RepoFullName != "sites/ffl-za" {
		t.Errorf("Expected full name on project, got %s", p.RepoFullName)
	}
}

func TestSteps_CreateRepo_MissingToken(t *testing.T) {
	steps := NewSteps(hosting.NewClient("http://unused.invalid"), nil, nil, nil, nil,
		&fakeRecorder{}, Config{}, telemetry.NopLogger())

	p := &Project{ID: "p1", AppType: "ffl", Country: "za"}
	err := steps.CreateRepo(context.Background(), p, pipeline.Params{})
	if !pipeline.IsCredentialsRequired(err) {
		t.Fatalf("Expected credentials-required error, got: %v", err)
	}
}

func TestSteps_RenderSettings(t *testing.T) {
	templates := t.TempDir()
	output := t.TempDir()

	tmpl := "name = {{.Name}}\nslug = {{.Slug}}\nsettings = {{.SettingsName}}\n"
	if err := os.WriteFile(filepath.Join(templates, SettingsTemplate), []byte(tmpl), 0o644); err != nil {
		t.Fatalf("Failed to write template: %v", err)
	}

	renderer, err := render.New(templates, output, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	steps := NewSteps(nil, nil, renderer, nil, nil, &fakeRecorder{}, Config{}, telemetry.NopLogger())

	p := &Project{ID: "p1", Name: "FFL South Africa", AppType: "ffl", Country: "za"}
	if err := steps.RenderSettings(p); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(output, "ffl-za.ini"))
	if err != nil {
		t.Fatalf("Expected artifact to exist, got: %v", err)
	}
	content := string(got)
	for _, want := range []string{"name = FFL South Africa", "slug = ffl-za", "settings = ffl_za"} {
		if !strings.Contains(content, want) {
			t.Errorf("Expected %q in artifact, got:\n%s", want, content)
		}
	}
}

func TestSteps_AppSpec(t *testing.T) {
	steps := NewSteps(nil, nil, nil, nil, nil, &fakeRecorder{}, Config{
		AppCPUs:      0.25,
		AppMem:       256,
		AppInstances: 2,
		AppCmdFormat: "pserve /etc/siteforge/settings/%s.ini",
	}, telemetry.NopLogger())

	p := &Project{AppType: "ffl", Country: "za"}
	spec := steps.AppSpec(p)

	if spec.ID != "ffl-za" {
		t.Errorf("Expected spec ID ffl-za, got %s", spec.ID)
	}
	if spec.Cmd != "pserve /etc/siteforge/settings/ffl-za.ini" {
		t.Errorf("Unexpected command: %s", spec.Cmd)
	}
	if spec.CPUs != 0.25 || spec.Mem != 256 || spec.Instances != 2 {
		t.Errorf("Unexpected resources: %+v", spec)
	}
}

func TestSteps_Finish_NoSideEffects(t *testing.T) {
	steps := NewSteps(nil, nil, nil, nil, nil, &fakeRecorder{}, Config{}, telemetry.NopLogger())

	if err := steps.Finish(context.Background(), &Project{}, nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}
