// Package hosting is the git hosting API client used by the provisioning
// pipeline to create remote repositories and register push webhooks.
package hosting

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

// Client talks to a GitHub-style hosting API. The base URL and HTTP client
// are explicit construction-time configuration.
type Client struct {
	baseURL string
	http    *http.Client
	log     *telemetry.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a structured logger.
func WithLogger(log *telemetry.Logger) Option {
	return func(c *Client) { c.log = log.NewComponentLogger("hosting") }
}

// NewClient creates a hosting API client for the given base URL.
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

// Repo is the subset of the hosting API's repository representation the
// pipeline needs.
type Repo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	CloneURL string `json:"clone_url"`
}

// CreateRepo creates a repository named name under the authenticated
// organization and returns its clone URL. An empty token is a
// credentials-required failure; any non-2xx response is a remote API
// failure carrying the status and the API's message.
func (c *Client) CreateRepo(ctx context.Context, token, name string) (*Repo, error) {
	if token == "" {
		return nil, pipeline.NewCredentialsRequired("access_token")
	}

	body := map[string]any{
		"name":      name,
		"auto_init": true,
	}

	var repo Repo
	if err := c.do(ctx, http.MethodPost, "/user/repos", token, body, &repo); err != nil {
		return nil, err
	}

	c.log.WithField("repo", repo.FullName).Info("repository created")
	return &repo, nil
}

// CreateWebhook registers a push webhook on the named repository pointing at
// hookURL.
func (c *Client) CreateWebhook(ctx context.Context, token, fullName, hookURL string) error {
	if token == "" {
		return pipeline.NewCredentialsRequired("access_token")
	}

	body := map[string]any{
		"name":   "web",
		"active": true,
		"events": []string{"push"},
		"config": map[string]string{
			"url":          hookURL,
			"content_type": "json",
		},
	}

	if err := c.do(ctx, http.MethodPost, "/repos/"+fullName+"/hooks", token, body, nil); err != nil {
		return err
	}

	c.log.WithField("repo", fullName).Info("webhook created")
	return nil
}

// do performs one authenticated JSON round trip. Non-2xx responses are
// mapped to classified remote API failures.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hosting API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pipeline.NewRemoteAPIError(resp.StatusCode, apiMessage(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode hosting API response: %w", err)
		}
	}
	return nil
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
