// Package provider adapts LLM chat APIs to the protocol types used by the
// agent loop. Every failure a provider returns is an apperr upstream agent
// error, so the loop and the surfaces never see a raw transport error.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// Provider is the abstraction over LLM APIs.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Type    string `mapstructure:"type"` // "openai", "anthropic" or "gemini"
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// New builds the provider named by cfg.Type. An empty type means openai.
func New(ctx context.Context, cfg Config) (Provider, error) {
	var opts []Option
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	switch cfg.Type {
	case "", "openai":
		return NewOpenAI(cfg.APIKey, opts...), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, opts...), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("provider: unknown type %q", cfg.Type)
	}
}

// Option configures the HTTP endpoint of the OpenAI and Anthropic providers.
type Option func(*endpoint)

// WithBaseURL points the provider at a compatible gateway or a test server.
func WithBaseURL(url string) Option {
	return func(e *endpoint) { e.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(e *endpoint) { e.model = model }
}

// WithHTTPClient replaces the default client, which gives up after two minutes.
func WithHTTPClient(c *http.Client) Option {
	return func(e *endpoint) { e.client = c }
}

// endpoint is the JSON-over-HTTP plumbing shared by providers without an SDK.
type endpoint struct {
	name    string
	client  *http.Client
	baseURL string
	model   string
	header  http.Header
}

func newEndpoint(name, baseURL, model string, header http.Header, opts []Option) endpoint {
	e := endpoint{
		name:    name,
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: baseURL,
		model:   model,
		header:  header,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e *endpoint) modelFor(req protocol.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return e.model
}

// post sends body to path and decodes a 200 answer into out.
func (e *endpoint) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.UpstreamAgent(fmt.Errorf("%s: encode request: %w", e.name, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperr.UpstreamAgent(fmt.Errorf("%s: %w", e.name, err))
	}
	req.Header = e.header.Clone()
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return apperr.UpstreamAgent(fmt.Errorf("%s: %w", e.name, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiError(e.name, resp.StatusCode, fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(e.name, resp.StatusCode, errorMessage(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apiError(e.name, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

// apiError is an upstream agent failure that keeps the provider's status.
func apiError(name string, status int, msg string) *apperr.Error {
	e := apperr.UpstreamAgent(fmt.Errorf("%s: status %d: %s", name, status, msg))
	e.Status = status
	return e
}

// errorMessage prefers the error.message field OpenAI and Anthropic both
// answer with over the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}
