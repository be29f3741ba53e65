// Package catalog talks to the remote catalog service that owns the
// authoritative copy of the location records. It provides the pre-sync
// connectivity check and the per-record partial update used by the sync
// engine. Nothing in this package mutates local state.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every request to the catalog service.
const DefaultTimeout = 15 * time.Second

// Config carries the connection settings for the catalog service.
// It is passed in explicitly so tests can point the client at a stub
// server and deployments can target different environments.
type Config struct {
	// BaseURL is the root of the catalog API, e.g. "https://data.example.com".
	BaseURL string
	// Token is the static bearer token used on every request.
	Token string
	// Collection is the catalog collection holding the location records.
	Collection string
	// Timeout is the per-request timeout; DefaultTimeout when zero.
	Timeout time.Duration
}

// Client is an HTTP client for the catalog service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	collection string
}

// NewClient creates a catalog client from config.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		collection: cfg.Collection,
	}
}

// Collection returns the configured collection name.
func (c *Client) Collection() string {
	return c.collection
}

// HTTPError is a non-2xx response from the catalog service. Message holds
// the service's own error text when the body carried one.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("catalog returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("catalog returned HTTP %d", e.StatusCode)
}

// NotFoundError reports that the catalog accepted an update request but
// addressed no record: the service answers 2xx with an empty data payload
// when the id does not exist, so an empty payload is a logical not-found.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("id %q does not exist in the remote catalog", e.ID)
}

// envelope is the standard response wrapper used by the catalog API.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// UpdateItem submits a partial update for one record, addressed by id.
//
// Success requires both a 2xx status and a non-empty data payload in the
// response body; a 2xx with no payload is returned as *NotFoundError.
// Non-2xx statuses come back as *HTTPError carrying the service's error
// message when one was present.
func (c *Client) UpdateItem(ctx context.Context, id string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/items/%s/%s", c.baseURL, url.PathEscape(c.collection), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	if !hasData(respBody) {
		return &NotFoundError{ID: id}
	}

	return nil
}

// get performs an authorized GET and returns the status code.
func (c *Client) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// errorMessage extracts the service's own error text from a response body.
func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if len(env.Errors) > 0 {
		return env.Errors[0].Message
	}
	return ""
}

// hasData reports whether a response body carries a non-empty data payload.
func hasData(body []byte) bool {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}

	data := strings.TrimSpace(string(env.Data))
	switch data {
	case "", "null", "{}", "[]":
		return false
	}
	return true
}
