// Package openaicompat implements tunacode.Provider for any backend that
// speaks the OpenAI chat completions API: OpenAI, OpenRouter, Groq,
// Together, DeepSeek, Mistral, Ollama, vLLM, LM Studio, and friends.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	tunacode "github.com/ryumacodes/tunacode"
)

// Provider implements tunacode.Provider over HTTP.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
}

// Option configures a Provider.
type Option func(*Provider)

// WithName overrides the provider name reported by Name().
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New creates an OpenAI-compatible chat provider. baseURL is the API base
// (e.g. "https://api.openai.com/v1"); the /chat/completions path is
// appended automatically.
func New(apiKey, model, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Chat sends a non-streaming request and returns the complete node.
func (p *Provider) Chat(ctx context.Context, req tunacode.ChatRequest) (tunacode.ChatResponse, error) {
	body := buildBody(req, p.model)

	resp, err := p.send(ctx, body)
	if err != nil {
		return tunacode.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tunacode.ChatResponse{}, p.httpErr(resp)
	}

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return tunacode.ChatResponse{}, &tunacode.ProviderError{
			Provider: p.name,
			Message:  fmt.Sprintf("decode response: %v", err),
		}
	}
	return parseResponse(wire), nil
}

// ChatStream streams text deltas into ch, then returns the final
// accumulated node. ch is closed before returning.
func (p *Provider) ChatStream(ctx context.Context, req tunacode.ChatRequest, ch chan<- string) (tunacode.ChatResponse, error) {
	body := buildBody(req, p.model)
	body.Stream = true
	body.StreamOptions = &streamOptions{IncludeUsage: true}

	resp, err := p.send(ctx, body)
	if err != nil {
		close(ch)
		return tunacode.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return tunacode.ChatResponse{}, p.httpErr(resp)
	}

	// streamSSE closes ch when done.
	return streamSSE(ctx, p.name, resp.Body, ch)
}

// send marshals and posts the request body.
func (p *Provider) send(ctx context.Context, body chatBody) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &tunacode.ProviderError{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &tunacode.ProviderError{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &tunacode.ProviderError{Provider: p.name, Message: err.Error()}
	}
	return resp, nil
}

// httpErr reads the response body into a ProviderError for the retry
// middleware, parsing Retry-After when present.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &tunacode.ProviderError{
		Provider:   p.name,
		Status:     resp.StatusCode,
		Message:    string(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter parses a Retry-After header value in seconds form.
// HTTP-date form is rare from LLM gateways and is ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Compile-time interface check.
var _ tunacode.Provider = (*Provider)(nil)
