// Package provider turns block source text into a plain-English summary and
// pseudocode by calling a local or remote language model.
package provider

import (
	"context"
	"fmt"
)

// Request is one analysis request.
type Request struct {
	NodeID   string
	Name     string
	Kind     string // block kind hint: "file", "class", "function"
	Language string
	Source   string
}

// Result is a successful analysis.
type Result struct {
	Summary    string `json:"summary"`
	Pseudocode string `json:"pseudocode"`
}

// Provider analyzes one block per call. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Analyze blocks until the model responds or ctx is done.
	Analyze(ctx context.Context, req Request) (Result, error)
	// Key identifies the provider configuration (provider and model).
	// Cached analyses are only valid under the same key.
	Key() string
}

// Func adapts a function to the Provider interface.
type Func struct {
	Name string
	Fn   func(ctx context.Context, req Request) (Result, error)
}

func (f Func) Analyze(ctx context.Context, req Request) (Result, error) {
	return f.Fn(ctx, req)
}

func (f Func) Key() string { return f.Name }

// Error is a provider-side failure: timeout, connection failure, HTTP error
// or malformed response. Its message is shown to users verbatim.
type Error struct {
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

func errorf(provider string, status int, format string, args ...any) *Error {
	return &Error{Provider: provider, StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// Secret holds an API key. It never prints its value.
type Secret struct {
	value string
}

// NewSecret wraps an API key.
func NewSecret(v string) Secret { return Secret{value: v} }

// Reveal returns the raw key.
func (s Secret) Reveal() string { return s.value }

// Empty reports whether the key is unset.
func (s Secret) Empty() bool { return s.value == "" }

func (s Secret) String() string   { return "***" }
func (s Secret) GoString() string { return "***" }
