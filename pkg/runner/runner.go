// Package runner executes external commands for capability steps that shell
// out to management tooling (database creation, content import, service
// reloads). It captures output and maps non-zero exits to classified
// process execution failures.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/telemetry"
)

// Result holds the output of one command execution.
type Result struct {
	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// ExitCode is the command's exit code. Zero on success.
	ExitCode int
}

// Runner runs external commands.
type Runner struct {
	log *telemetry.Logger
}

// New creates a Runner.
func New(log *telemetry.Logger) *Runner {
	return &Runner{log: log.NewComponentLogger("runner")}
}

// Run executes program with args in dir, appending env (KEY=VALUE pairs are
// built from the map) to the inherited environment. The context cancels the
// process. A non-zero exit returns a process execution failure carrying the
// exit code and the command's stderr; the Result is returned in both cases.
func (r *Runner) Run(ctx context.Context, dir string, env map[string]string, program string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.WithField("program", program).
		WithField("args", strings.Join(args, " ")).
		Debug("running command")

	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(err),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("%s exited with code %d", program, result.ExitCode)
			if s := strings.TrimSpace(result.Stderr); s != "" {
				msg += ": " + s
			}
			return result, pipeline.NewProcessExecError(result.ExitCode, msg)
		}
		return result, fmt.Errorf("failed to run %s: %w", program, err)
	}

	return result, nil
}

// exitCode extracts the exit code from a command error, 0 for success and
// -1 when the process never ran or was killed.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
