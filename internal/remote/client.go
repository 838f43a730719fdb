// Package remote implements the HTTP transport to the sync service. The
// channel is pre-authenticated: the caller supplies a bearer token and the
// client attaches it to every request. Token refresh is out of scope.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/walletbase/walletsync/internal/sync"
)

const (
	pullPath = "/api/v1/sync/pull"
	pushPath = "/api/v1/sync/push"

	defaultTimeout = 30 * time.Second
)

// Client talks to the remote sync endpoints over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the service at baseURL. httpClient may be nil, in
// which case a client with a 30s timeout is used.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}
}

// pullRequest is the wire shape of a pull call.
type pullRequest struct {
	LastPulledAt int64                    `json:"lastPulledAt"`
	Migration    sync.MigrationDescriptor `json:"migration"`
}

// pushRequest is the wire shape of one push batch. lastPulledAt travels as a
// string and migrations as the bare schema version, a quirk the server
// contract pins down.
type pushRequest struct {
	Changes      sync.ChangeSet `json:"changes"`
	LastPulledAt string         `json:"lastPulledAt"`
	Migrations   int            `json:"migrations"`
}

// Pull fetches all remote changes newer than cp, announcing any pending local
// schema migration so the server can backfill new tables and columns.
func (c *Client) Pull(ctx context.Context, cp sync.Checkpoint, migration sync.MigrationDescriptor) (*sync.PullResult, error) {
	if migration.NewTables == nil {
		migration.NewTables = []string{}
	}
	if migration.AddedColumns == nil {
		migration.AddedColumns = map[string][]string{}
	}
	body, err := json.Marshal(pullRequest{LastPulledAt: int64(cp), Migration: migration})
	if err != nil {
		return nil, &sync.TransportError{Op: "pull", Err: err}
	}

	respBody, err := c.post(ctx, "pull", pullPath, body)
	if err != nil {
		return nil, err
	}

	var result sync.PullResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &sync.TransportError{Op: "pull", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &result, nil
}

// Push ships one batch of local changes. A 2xx with an empty body means the
// batch was durably applied; anything else is a transport failure.
func (c *Client) Push(ctx context.Context, changes sync.ChangeSet, cp sync.Checkpoint, schemaVersion int) error {
	body, err := json.Marshal(pushRequest{
		Changes:      changes,
		LastPulledAt: strconv.FormatInt(int64(cp), 10),
		Migrations:   schemaVersion,
	})
	if err != nil {
		return &sync.TransportError{Op: "push", Err: err}
	}

	_, err = c.post(ctx, "push", pushPath, body)
	return err
}

func (c *Client) post(ctx context.Context, op, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &sync.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &sync.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &sync.TransportError{Op: op, StatusCode: resp.StatusCode}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &sync.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	return respBody, nil
}
