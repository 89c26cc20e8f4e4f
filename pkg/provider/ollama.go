package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultOllamaEndpoint is the local Ollama server.
const DefaultOllamaEndpoint = "http://localhost:11434"

// Ollama calls a local Ollama server's chat API.
type Ollama struct {
	endpoint   string
	model      string
	maxLines   int
	httpClient *http.Client
}

// NewOllama creates an Ollama provider. An empty endpoint uses the local default.
func NewOllama(endpoint, model string, maxLines int) *Ollama {
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	return &Ollama{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		maxLines: maxLines,
		// Timeouts are applied per call by the caller's context.
		httpClient: &http.Client{},
	}
}

func (o *Ollama) Key() string { return "ollama/" + o.model }

func (o *Ollama) Analyze(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"model":    o.model,
		"stream":   false,
		"messages": []map[string]string{{"role": "user", "content": BuildPrompt(req, o.model, o.maxLines)}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, errorf("ollama", 0, "Ollama request timed out")
		}
		return Result{}, errorf("ollama", 0, "Could not connect to Ollama at %s: is it running (ollama serve)?", o.endpoint)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return Result{}, errorf("ollama", resp.StatusCode, "Reading Ollama response failed")
	}
	if len(raw) > maxResponseBytes {
		return Result{}, errorf("ollama", resp.StatusCode, "Ollama response exceeded 10 MB size limit")
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, errorf("ollama", resp.StatusCode, "Ollama error (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, errorf("ollama", resp.StatusCode, "Invalid response from Ollama")
	}
	return ParseResponse(out.Message.Content), nil
}

// ListModels returns the model names installed on the Ollama server.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create tags request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list ollama models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list ollama models: HTTP %d", resp.StatusCode)
	}

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama models: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
