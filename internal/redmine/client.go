// Package redmine is a thin client for the Redmine REST API.
package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ebrain-io/ebrain/internal/apperr"
)

// Config holds the connection settings for a Redmine instance.
type Config struct {
	BaseURL string
	APIKey  string
}

// Issue is the body of an issue creation request.
type Issue struct {
	ID          int    `json:"id,omitempty"`
	ProjectID   int    `json:"project_id"`
	Subject     string `json:"subject"`
	Description string `json:"description,omitempty"`
	StatusID    int    `json:"status_id,omitempty"`
	PriorityID  int    `json:"priority_id,omitempty"`
}

// IssueUpdate is a partial issue update. Nil fields are left untouched on the server.
type IssueUpdate struct {
	ProjectID   *int    `json:"project_id,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	Description *string `json:"description,omitempty"`
	StatusID    *int    `json:"status_id,omitempty"`
	PriorityID  *int    `json:"priority_id,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// Client talks to one Redmine instance.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The default one never times
// out; callers bound requests through their context.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Redmine client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListIssues fetches issues matching params. Values are forwarded verbatim as
// query parameters; nil and empty values are skipped.
func (c *Client) ListIssues(ctx context.Context, params map[string]any) (any, error) {
	q := url.Values{}
	for k, v := range params {
		if v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		q.Set(k, s)
	}
	return c.do(ctx, http.MethodGet, "/issues.json", q, nil, false)
}

// GetIssue fetches a single issue by id.
func (c *Client) GetIssue(ctx context.Context, id int) (any, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/issues/%d.json", id), nil, nil, true)
}

// CreateIssue creates an issue and returns the server's response.
func (c *Client) CreateIssue(ctx context.Context, issue Issue) (any, error) {
	return c.do(ctx, http.MethodPost, "/issues.json", nil, map[string]any{"issue": issue}, false)
}

// UpdateIssue applies a partial update. The result is nil when the server
// confirms without a body.
func (c *Client) UpdateIssue(ctx context.Context, id int, upd IssueUpdate) (any, error) {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/issues/%d.json", id), nil, map[string]any{"issue": upd}, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, single bool) (any, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("redmine: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("redmine: create request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	op := method + " " + path
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.RequestFailed(0, "redmine: "+op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.RequestFailed(resp.StatusCode, "redmine: "+op+": read response", err)
	}

	if single && resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("redmine: %s: not found", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.RequestFailed(resp.StatusCode,
			fmt.Sprintf("redmine: %s: status %d: %s", op, resp.StatusCode, excerpt(respBody)), nil)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, apperr.RequestFailed(resp.StatusCode,
			fmt.Sprintf("redmine: %s: status %d: undecodable body: %s", op, resp.StatusCode, excerpt(respBody)), err)
	}
	return out, nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
