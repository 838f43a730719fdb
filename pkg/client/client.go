// Package client is a Go client for the walletsync control API. The UI
// shell embeds it to read sync status, trigger cycles, and report app
// lifecycle transitions to the daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 5 * time.Second

// Client talks to a walletsync daemon over its localhost control API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Config configures a control API client.
type Config struct {
	// BaseURL is the daemon's control address, e.g. http://127.0.0.1:7333.
	BaseURL string
	// Token is the bearer token the daemon was started with.
	Token string
	// Timeout bounds each request. Zero means 5s.
	Timeout time.Duration
}

// New creates a control API client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Status is the daemon's view of the sync engine.
type Status struct {
	State        string         `json:"state"`
	LastError    string         `json:"last_error,omitempty"`
	Checkpoint   int64          `json:"checkpoint"`
	Foregrounded bool           `json:"foregrounded"`
	Pending      map[string]int `json:"pending"`
}

// Health is the daemon's liveness response.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// APIError is a non-2xx control API response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("control api: %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("control api: %d", e.StatusCode)
}

// Health checks daemon liveness. It needs no token.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status reads the current sync state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync triggers a full pull+push cycle and waits for it to finish. A 409
// means a cycle was already running; the caller can simply rely on that one.
func (c *Client) Sync(ctx context.Context) error {
	return c.trigger(ctx, "full")
}

// Push triggers a push-only cycle and waits for it to finish.
func (c *Client) Push(ctx context.Context) error {
	return c.trigger(ctx, "push")
}

func (c *Client) trigger(ctx context.Context, mode string) error {
	body := map[string]string{"mode": mode}
	return c.do(ctx, http.MethodPost, "/api/v1/sync/trigger", body, nil)
}

// Foreground tells the daemon the app became visible; the scheduler resumes
// with an immediate sync.
func (c *Client) Foreground(ctx context.Context) error {
	return c.appState(ctx, "foreground")
}

// Background tells the daemon the app left the screen; the scheduler pauses.
func (c *Client) Background(ctx context.Context) error {
	return c.appState(ctx, "background")
}

func (c *Client) appState(ctx context.Context, state string) error {
	body := map[string]string{"state": state}
	return c.do(ctx, http.MethodPost, "/api/v1/app/state", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Detail: problemDetail(resp.Body)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// problemDetail extracts the detail string from an RFC 7807 response body.
func problemDetail(r io.Reader) string {
	var problem struct {
		Detail string `json:"detail"`
	}
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	json.Unmarshal(data, &problem)
	return problem.Detail
}
