package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/telemetry"
)

func TestRunner_Run_Success(t *testing.T) {
	r := New(telemetry.NopLogger())

	result, err := r.Run(context.Background(), "", nil, "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("Expected stdout hello, got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
}

func TestRunner_Run_Env(t *testing.T) {
	r := New(telemetry.NopLogger())

	result, err := r.Run(context.Background(), "", map[string]string{
		"DJANGO_SETTINGS_MODULE": "project.ffl_za_settings",
	}, "sh", "-c", "echo $DJANGO_SETTINGS_MODULE")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "project.ffl_za_settings" {
		t.Errorf("Expected env var in output, got %q", result.Stdout)
	}
}

func TestRunner_Run_Dir(t *testing.T) {
	dir := t.TempDir()
	r := New(telemetry.NopLogger())

	result, err := r.Run(context.Background(), dir, nil, "pwd")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.TrimSpace(result.Stdout) == "" {
		t.Error("Expected working directory in output")
	}
}

func TestRunner_Run_NonZeroExit(t *testing.T) {
	r := New(telemetry.NopLogger())

	result, err := r.Run(context.Background(), "", nil, "sh", "-c", "echo oops >&2; exit 3")
	if !pipeline.IsProcessExec(err) {
		t.Fatalf("Expected process exec error, got: %v", err)
	}

	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		t.Fatalf("Expected classified error, got: %v", err)
	}
	if perr.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", perr.ExitCode)
	}
	if !strings.Contains(perr.Message, "oops") {
		t.Errorf("Expected stderr in message, got %q", perr.Message)
	}
	if result == nil || result.ExitCode != 3 {
		t.Errorf("Expected result with exit code 3, got %+v", result)
	}
}

func TestRunner_Run_MissingProgram(t *testing.T) {
	r := New(telemetry.NopLogger())

	_, err := r.Run(context.Background(), "", nil, "definitely-not-a-real-program")
	if err == nil {
		t.Fatal("Expected error for missing program")
	}
	if pipeline.IsProcessExec(err) {
		t.Error("Expected a plain error, not a process exec classification")
	}
}
