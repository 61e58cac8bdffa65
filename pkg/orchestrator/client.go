// Package orchestrator is the HTTP client for the Marathon-style application
// orchestrator. The lifecycle reconciler and the provisioning pipeline's
// registration stage both drive the orchestrator through this client.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/telemetry"
)

// AppSpec is the resource specification POSTed to the orchestrator when an
// application is created or updated.
type AppSpec struct {
	// ID is the orchestrator application identifier.
	ID string `json:"id"`

	// CPUs is the CPU share allocated to each instance.
	CPUs float64 `json:"cpus"`

	// Mem is the memory allocation in MiB.
	Mem float64 `json:"mem"`

	// Instances is the number of instances to run.
	Instances int `json:"instances"`

	// Cmd is the command each instance runs.
	Cmd string `json:"cmd"`
}

// Client talks to the orchestrator's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *telemetry.Logger
	tracer  *telemetry.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a structured logger.
func WithLogger(log *telemetry.Logger) Option {
	return func(c *Client) { c.log = log.NewComponentLogger("orchestrator") }
}

// WithTracer attaches a tracer; each API call becomes a span.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// NewClient creates an orchestrator client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     telemetry.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateApp creates a new application. The orchestrator answers 201 on
// success; anything else is a classified orchestrator API failure.
func (c *Client) CreateApp(ctx context.Context, spec AppSpec) error {
	ctx, span := c.tracer.Start(ctx, "orchestrator.create_app")
	defer span.End()

	status, raw, err := c.do(ctx, http.MethodPost, "/v2/apps", spec)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return pipeline.NewOrchestratorAPIError(status, apiMessage(raw))
	}

	c.log.WithApp(spec.ID).Info("application created")
	return nil
}

// UpdateApp re-sends the full specification as an idempotent update. Used
// when a build is retried after the application already exists, avoiding
// duplicate-resource errors.
func (c *Client) UpdateApp(ctx context.Context, spec AppSpec) error {
	ctx, span := c.tracer.Start(ctx, "orchestrator.update_app")
	defer span.End()

	id := spec.ID
	status, raw, err := c.do(ctx, http.MethodPut, "/v2/apps/"+id, spec)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return pipeline.NewOrchestratorAPIError(status, apiMessage(raw))
	}

	c.log.WithApp(id).Info("application updated")
	return nil
}

// RestartApp triggers a rolling restart of the application.
func (c *Client) RestartApp(ctx context.Context, id string) error {
	ctx, span := c.tracer.Start(ctx, "orchestrator.restart_app")
	defer span.End()

	status, raw, err := c.do(ctx, http.MethodPost, "/v2/apps/"+id+"/restart", struct{}{})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return pipeline.NewOrchestratorAPIError(status, apiMessage(raw))
	}

	c.log.WithApp(id).Info("application restarted")
	return nil
}

// DestroyApp removes the application from the orchestrator.
func (c *Client) DestroyApp(ctx context.Context, id string) error {
	ctx, span := c.tracer.Start(ctx, "orchestrator.destroy_app")
	defer span.End()

	status, raw, err := c.do(ctx, http.MethodDelete, "/v2/apps/"+id, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return pipeline.NewOrchestratorAPIError(status, apiMessage(raw))
	}

	c.log.WithApp(id).Info("application destroyed")
	return nil
}

// Exists polls the orchestrator for the application. 200 means present, 404
// means absent; any other status, or a transport error, means the truth
// could not be determined and is reported as an error.
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "orchestrator.exists")
	defer span.End()

	status, raw, err := c.do(ctx, http.MethodGet, "/v2/apps/"+id, nil)
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, pipeline.NewOrchestratorAPIError(status, apiMessage(raw))
	}
}

// do performs one JSON round trip and returns the status and raw body.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("orchestrator API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, nil
}

// apiMessage extracts the "message" field from an error body, falling back
// to the raw body.
func apiMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return string(raw)
}
