// Package servicenow is a client for the ServiceNow Table API.
package servicenow

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ebrain-io/ebrain/internal/apperr"
)

const tablePath = "/api/now/table"

// Config holds the instance and credentials. AccessToken wins over
// Username/Password when both are set.
type Config struct {
	Instance    string
	Username    string
	Password    string
	AccessToken string
}

// Query selects records from a table.
type Query struct {
	// Query is an encoded query such as "state=1^priority=2", sent verbatim.
	Query  string
	Limit  int
	Fields []string
	// DisplayValue asks the server to resolve reference and choice fields.
	// Nil leaves the server default.
	DisplayValue *bool
}

// Client talks to one ServiceNow instance.
type Client struct {
	http    *http.Client
	baseURL string
	auth    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The default one never times
// out; callers bound requests through their context.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// BaseURL expands an instance name or URL into the Table API root.
// "acme" becomes https://acme.service-now.com/api/now/table.
func BaseURL(instance string) string {
	if strings.HasPrefix(instance, "http") {
		return strings.TrimSuffix(instance, "/") + tablePath
	}
	return "https://" + instance + ".service-now.com" + tablePath
}

// AuthHeader returns the Authorization header value for cfg, or "" when no
// credentials are configured.
func AuthHeader(cfg Config) string {
	if cfg.AccessToken != "" {
		return "Bearer " + cfg.AccessToken
	}
	if cfg.Username != "" && cfg.Password != "" {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Username+":"+cfg.Password))
	}
	return ""
}

// New creates a client. The auth header is fixed at construction.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		baseURL: BaseURL(cfg.Instance),
		auth:    AuthHeader(cfg),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRecords lists records of table matching q.
func (c *Client) GetRecords(ctx context.Context, table string, q Query) (any, error) {
	params := url.Values{}
	if q.Query != "" {
		params.Set("sysparm_query", q.Query)
	}
	if q.Limit > 0 {
		params.Set("sysparm_limit", strconv.Itoa(q.Limit))
	}
	if len(q.Fields) > 0 {
		params.Set("sysparm_fields", strings.Join(q.Fields, ","))
	}
	if q.DisplayValue != nil {
		params.Set("sysparm_display_value", strconv.FormatBool(*q.DisplayValue))
	}
	return c.do(ctx, http.MethodGet, tableURL(table, ""), params, nil, false)
}

// GetRecord fetches one record by sys_id.
func (c *Client) GetRecord(ctx context.Context, table, sysID string) (any, error) {
	return c.do(ctx, http.MethodGet, tableURL(table, sysID), nil, nil, true)
}

// CreateRecord inserts rec into table.
func (c *Client) CreateRecord(ctx context.Context, table string, rec Record) (any, error) {
	return c.do(ctx, http.MethodPost, tableURL(table, ""), nil, rec, false)
}

// UpdateRecord updates the record in place. Every field present in rec is sent,
// including empty strings.
func (c *Client) UpdateRecord(ctx context.Context, table, sysID string, rec Record) (any, error) {
	return c.do(ctx, http.MethodPut, tableURL(table, sysID), nil, rec, true)
}

// DeleteRecord removes the record and returns a confirmation object.
func (c *Client) DeleteRecord(ctx context.Context, table, sysID string) (any, error) {
	if _, err := c.do(ctx, http.MethodDelete, tableURL(table, sysID), nil, nil, true); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Record %s deleted from %s", sysID, table),
	}, nil
}

func tableURL(table, sysID string) string {
	p := "/" + url.PathEscape(table)
	if sysID != "" {
		p += "/" + url.PathEscape(sysID)
	}
	return p
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
			return nil, fmt.Errorf("servicenow: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("servicenow: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	op := method + " " + path
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.RequestFailed(0, "servicenow: "+op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.RequestFailed(resp.StatusCode, "servicenow: "+op+": read response", err)
	}

	if single && resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("servicenow: %s: not found", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.RequestFailed(resp.StatusCode,
			fmt.Sprintf("servicenow: %s: status %d: %s", op, resp.StatusCode, errorMessage(respBody)), nil)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, apperr.RequestFailed(resp.StatusCode,
			fmt.Sprintf("servicenow: %s: status %d: undecodable body: %s", op, resp.StatusCode, errorMessage(respBody)), err)
	}
	return out, nil
}

// errorMessage extracts error.message from a Table API error body, falling
// back to a trimmed excerpt of the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		if e.Error.Detail != "" {
			return e.Error.Message + " (" + e.Error.Detail + ")"
		}
		return e.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
