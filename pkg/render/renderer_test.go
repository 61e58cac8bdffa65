package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siteforge/siteforge/pkg/telemetry"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write template: %v", err)
	}
}

func TestRenderer_Render(t *testing.T) {
	templates := t.TempDir()
	output := t.TempDir()
	writeTemplate(t, templates, "frontend.ini.tmpl", "slug = {{.Slug}}\n")

	r, err := New(templates, output, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	data := struct{ Slug string }{Slug: "ffl-za"}
	if err := r.Render("frontend.ini.tmpl", "ffl-za.ini", data); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(output, "ffl-za.ini"))
	if err != nil {
		t.Fatalf("Expected artifact to exist, got: %v", err)
	}
	if string(got) != "slug = ffl-za\n" {
		t.Errorf("Unexpected artifact content: %q", got)
	}
}

func TestRenderer_Render_OverwritesAtomically(t *testing.T) {
	templates := t.TempDir()
	output := t.TempDir()
	writeTemplate(t, templates, "frontend.ini.tmpl", "slug = {{.Slug}}\n")

	r, err := New(templates, output, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	data := struct{ Slug string }{Slug: "ffl-za"}
	for i := 0; i < 3; i++ {
		if err := r.Render("frontend.ini.tmpl", "ffl-za.ini", data); err != nil {
			t.Fatalf("Render %d failed: %v", i, err)
		}
	}

	// No temporary files left behind.
	entries, err := os.ReadDir(output)
	if err != nil {
		t.Fatalf("Failed to read output dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 artifact, got %d entries", len(entries))
	}
}

func TestRenderer_Render_UnknownTemplate(t *testing.T) {
	templates := t.TempDir()
	output := t.TempDir()
	writeTemplate(t, templates, "frontend.ini.tmpl", "x\n")

	r, err := New(templates, output, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := r.Render("missing.tmpl", "out.ini", nil); err == nil {
		t.Fatal("Expected error for unknown template")
	}

	// A failed render leaves no artifact.
	if _, err := os.Stat(filepath.Join(output, "out.ini")); !os.IsNotExist(err) {
		t.Error("Expected no artifact after failed render")
	}
}

func TestRenderer_Reload_PicksUpChanges(t *testing.T) {
	templates := t.TempDir()
	output := t.TempDir()
	writeTemplate(t, templates, "frontend.ini.tmpl", "version = 1\n")

	r, err := New(templates, output, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	writeTemplate(t, templates, "frontend.ini.tmpl", "version = 2\n")
	if err := r.Reload(); err != nil {
		t.Fatalf("Expected reload to succeed, got: %v", err)
	}

	if err := r.Render("frontend.ini.tmpl", "out.ini", nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(output, "out.ini"))
	if !strings.Contains(string(got), "version = 2") {
		t.Errorf("Expected reloaded template content, got %q", got)
	}
}

func TestRenderer_New_MissingDir(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope"), t.TempDir(), telemetry.NopLogger()); err == nil {
		t.Fatal("Expected error for missing template directory")
	}
}
