package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blockscope/blockscope/pkg/provider"
)

func TestBuildPrompt(t *testing.T) {
	source := strings.Repeat("x = 1\n", 10) + "last = 2"
	req := provider.Request{Language: "python", Source: source}

	p := provider.BuildPrompt(req, "llama3", 5)
	if !strings.Contains(p, "```python") {
		t.Error("prompt should fence the code with its language")
	}
	if strings.Contains(p, "last = 2") {
		t.Error("source beyond the line cap should be dropped")
	}
	if strings.Contains(p, "/no_think") {
		t.Error("only qwen3 models get /no_think")
	}

	if p := provider.BuildPrompt(req, "qwen3:14b", 0); !strings.HasSuffix(p, "/no_think") {
		t.Error("qwen3 prompt should end with /no_think")
	}
	if p := provider.BuildPrompt(provider.Request{Source: "x"}, "m", 0); !strings.Contains(p, "following unknown code") {
		t.Error("missing language should render as unknown")
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		summary    string
		pseudocode string
	}{
		{
			name:       "both sections",
			raw:        "SUMMARY: Adds two numbers.\nPSEUDOCODE:\nreturn first plus second",
			summary:    "Adds two numbers.",
			pseudocode: "return first plus second",
		},
		{
			name:       "think block stripped",
			raw:        "<think>\nlet me see\nSUMMARY: wrong\n</think>\nSUMMARY: Real summary.\nPSEUDOCODE:\ndo it",
			summary:    "Real summary.",
			pseudocode: "do it",
		},
		{
			name:    "fallback to first line",
			raw:     "\n\nThis function sorts users.\nMore detail.",
			summary: "This function sorts users.",
		},
		{
			name:    "summary only",
			raw:     "SUMMARY: Only a summary.",
			summary: "Only a summary.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := provider.ParseResponse(tc.raw)
			if got.Summary != tc.summary {
				t.Errorf("Summary = %q, want %q", got.Summary, tc.summary)
			}
			if got.Pseudocode != tc.pseudocode {
				t.Errorf("Pseudocode = %q, want %q", got.Pseudocode, tc.pseudocode)
			}
		})
	}
}

func TestOllamaAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Model != "qwen3:8b" || body.Stream {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"message":{"content":"SUMMARY: Greets.\nPSEUDOCODE:\nsay hello"}}`)
	}))
	defer srv.Close()

	o := provider.NewOllama(srv.URL, "qwen3:8b", 0)
	if o.Key() != "ollama/qwen3:8b" {
		t.Errorf("Key() = %q", o.Key())
	}
	res, err := o.Analyze(context.Background(), provider.Request{Language: "go", Source: "func hi() {}"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Summary != "Greets." || res.Pseudocode != "say hello" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestOllamaConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := provider.NewOllama(url, "m", 0).Analyze(context.Background(), provider.Request{})
	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *provider.Error", err)
	}
	if !strings.Contains(perr.Message, "Could not connect to Ollama") {
		t.Errorf("Message = %q", perr.Message)
	}
}

func TestOpenAIStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusUnauthorized, "Unauthorized: check your API key"},
		{http.StatusTooManyRequests, "Rate limited by 127.0.0.1"},
		{http.StatusBadGateway, "Server error from 127.0.0.1 (HTTP 502)"},
	}

	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			p, err := provider.NewOpenAICompatible("custom", srv.URL, "m", provider.NewSecret("k"), 0)
			if err != nil {
				t.Fatalf("NewOpenAICompatible: %v", err)
			}
			_, err = p.Analyze(context.Background(), provider.Request{})
			var perr *provider.Error
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *provider.Error", err)
			}
			if perr.Message != tc.want || perr.StatusCode != tc.status {
				t.Errorf("got (%d, %q), want (%d, %q)", perr.StatusCode, perr.Message, tc.status, tc.want)
			}
		})
	}
}

func TestOpenAIAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"SUMMARY: Counts words.\nPSEUDOCODE:\nsplit and count"}}]}`)
	}))
	defer srv.Close()

	p, err := provider.NewOpenAICompatible("custom", srv.URL+"/", "gpt", provider.NewSecret("sk-123"), 0)
	if err != nil {
		t.Fatalf("NewOpenAICompatible: %v", err)
	}
	res, err := p.Analyze(context.Background(), provider.Request{Source: "def f(): pass"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Summary != "Counts words." {
		t.Errorf("Summary = %q", res.Summary)
	}
}

func TestOpenAITimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p, _ := provider.NewOpenAICompatible("custom", srv.URL, "m", provider.Secret{}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Analyze(ctx, provider.Request{})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		ok       bool
	}{
		{"https://api.openai.com/v1", true},
		{"http://localhost:8080/v1", true},
		{"http://127.0.0.1:1234", true},
		{"http://[::1]:1234", true},
		{"http://example.com/v1", false},
		{"ftp://example.com", false},
		{"not a url", false},
	}
	for _, tc := range tests {
		_, err := provider.ValidateEndpoint(tc.endpoint)
		if (err == nil) != tc.ok {
			t.Errorf("ValidateEndpoint(%q) err = %v, want ok=%v", tc.endpoint, err, tc.ok)
		}
	}
}

func TestSecretNeverPrints(t *testing.T) {
	s := provider.NewSecret("sk-very-secret")
	for _, out := range []string{fmt.Sprint(s), fmt.Sprintf("%v", s), fmt.Sprintf("%#v", s), fmt.Sprintf("%+v", struct{ Key provider.Secret }{s})} {
		if strings.Contains(out, "sk-very-secret") {
			t.Errorf("secret leaked in %q", out)
		}
	}
	if s.Reveal() != "sk-very-secret" {
		t.Error("Reveal should return the raw key")
	}
}
