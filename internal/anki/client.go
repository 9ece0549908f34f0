// Package anki implements the AnkiConnect client.
//
// AnkiConnect speaks a single-endpoint JSON protocol: every request is a
// POST of {action, version, params} and every response is a
// {result, error} envelope. Invoke is the only method that touches the
// wire; everything else in this repository is built on it.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

const (
	// DefaultURL is where the AnkiConnect add-on listens by default.
	DefaultURL = "http://localhost:8765"
	// DefaultVersion is the AnkiConnect protocol version.
	DefaultVersion = 6

	defaultTimeout = 30 * time.Second
)

// Client issues actions against a local AnkiConnect endpoint.
type Client struct {
	url        string
	version    int
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint URL. An empty url
// falls back to DefaultURL.
func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:        url,
		version:    DefaultVersion,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Invoke sends a named action with params and unwraps the response
// envelope. A non-null error field becomes an apperr.StoreError; an
// unreachable endpoint or non-2xx status becomes an apperr.TransportError.
func (c *Client) Invoke(ctx context.Context, action string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(request{Action: action, Version: c.version, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransportError{Endpoint: "anki", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &apperr.TransportError{Endpoint: "anki", Status: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}
	if env.Error != nil && *env.Error != "" {
		return nil, &apperr.StoreError{Action: action, Message: *env.Error}
	}
	return env.Result, nil
}

// invokeInto invokes an action and unmarshals the result into out.
func (c *Client) invokeInto(ctx context.Context, action string, params, out any) error {
	raw, err := c.Invoke(ctx, action, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", action, err)
	}
	return nil
}
