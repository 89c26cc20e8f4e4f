package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBytes = 10 * 1024 * 1024

// Endpoints for the hosted OpenAI-compatible services.
var hostedEndpoints = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"groq":       "https://api.groq.com/openai/v1",
}

// OpenAICompatible calls any server implementing the OpenAI chat completions
// API: OpenAI, OpenRouter, Groq or a custom endpoint.
type OpenAICompatible struct {
	name       string
	endpoint   string
	host       string
	model      string
	apiKey     Secret
	maxLines   int
	httpClient *http.Client
}

// NewOpenAICompatible creates a client. name is one of "openai",
// "openrouter", "groq" or "custom"; endpoint is required for "custom" and
// overrides the hosted default otherwise.
func NewOpenAICompatible(name, endpoint, model string, apiKey Secret, maxLines int) (*OpenAICompatible, error) {
	if endpoint == "" {
		endpoint = hostedEndpoints[name]
	}
	if endpoint == "" {
		return nil, fmt.Errorf("provider %s: endpoint is required", name)
	}
	u, err := ValidateEndpoint(endpoint)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	return &OpenAICompatible{
		name:       name,
		endpoint:   strings.TrimRight(endpoint, "/"),
		host:       u.Hostname(),
		model:      model,
		apiKey:     apiKey,
		maxLines:   maxLines,
		httpClient: &http.Client{},
	}, nil
}

func (p *OpenAICompatible) Key() string { return p.name + "/" + p.model }

func (p *OpenAICompatible) Analyze(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"model":    p.model,
		"messages": []map[string]string{{"role": "user", "content": BuildPrompt(req, p.model, p.maxLines)}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if !p.apiKey.Empty() {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey.Reveal())
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, errorf(p.name, 0, "Request to %s timed out", p.host)
		}
		return Result{}, errorf(p.name, 0, "Could not connect to %s", p.host)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Result{}, errorf(p.name, resp.StatusCode, "Unauthorized: check your API key")
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, errorf(p.name, resp.StatusCode, "Rate limited by %s", p.host)
	case resp.StatusCode >= 500:
		return Result{}, errorf(p.name, resp.StatusCode, "Server error from %s (HTTP %d)", p.host, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Result{}, errorf(p.name, resp.StatusCode, "Unexpected response from %s (HTTP %d)", p.host, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return Result{}, errorf(p.name, resp.StatusCode, "Reading response from %s failed", p.host)
	}
	if len(raw) > maxResponseBytes {
		return Result{}, errorf(p.name, resp.StatusCode, "Response exceeded 10 MB size limit")
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Choices) == 0 {
		return Result{}, errorf(p.name, resp.StatusCode, "Invalid response from %s", p.host)
	}
	return ParseResponse(out.Choices[0].Message.Content), nil
}

// ValidateEndpoint accepts https URLs, and plain http only for loopback
// hosts so API keys never travel unencrypted over the network.
func ValidateEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	switch u.Scheme {
	case "https":
		return u, nil
	case "http":
		if isLoopback(u.Hostname()) {
			return u, nil
		}
		return nil, fmt.Errorf("endpoint %q: plain http is only allowed for localhost", endpoint)
	default:
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
