// Package render materializes configuration artifacts from templates. A
// render is a deterministic expansion of entity attributes; the only
// partial-write risk is filesystem atomicity, so output is always written to
// a temporary file and renamed into place.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"

	"github.com/siteforge/siteforge/pkg/telemetry"
)

// Renderer expands templates from a template directory into named output
// artifacts in an output directory.
type Renderer struct {
	templatesDir string
	outputDir    string
	log          *telemetry.Logger

	mu   sync.RWMutex
	tmpl *template.Template
}

// New creates a Renderer and parses all *.tmpl files under templatesDir.
func New(templatesDir, outputDir string, log *telemetry.Logger) (*Renderer, error) {
	r := &Renderer{
		templatesDir: templatesDir,
		outputDir:    outputDir,
		log:          log.NewComponentLogger("render"),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses the template directory.
func (r *Renderer) Reload() error {
	tmpl, err := template.ParseGlob(filepath.Join(r.templatesDir, "*.tmpl"))
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	r.mu.Lock()
	r.tmpl = tmpl
	r.mu.Unlock()
	return nil
}

// OutputPath returns the path the named artifact is written to.
func (r *Renderer) OutputPath(outName string) string {
	return filepath.Join(r.outputDir, outName)
}

// Render expands the named template over data and writes the result to
// outName in the output directory. The write is atomic: the content lands in
// a temporary file first and is renamed into place, so readers never observe
// a partially written artifact.
func (r *Renderer) Render(templateName, outName string, data any) error {
	r.mu.RLock()
	tmpl := r.tmpl
	r.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, templateName, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", templateName, err)
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	out := r.OutputPath(outName)
	tmpFile, err := os.CreateTemp(r.outputDir, "."+outName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(buf.Bytes()); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpPath, out); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}

	r.log.WithField("artifact", out).Info("artifact rendered")
	return nil
}

// Watch reloads the templates whenever a file in the template directory
// changes, until the context is cancelled. Edits to templates therefore take
// effect on the next render without a process restart.
func (r *Renderer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}

	if err := watcher.Add(r.templatesDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch template directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
					continue
				}
				if err := r.Reload(); err != nil {
					r.log.WithError(err).Warn("template reload failed, keeping previous set")
					continue
				}
				r.log.WithField("file", event.Name).Debug("templates reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.WithError(err).Warn("template watcher error")
			}
		}
	}()
	return nil
}
