// Package models contains shared data models used across the steelsched codebase.
package models

import (
	"context"
	"errors"
)

// AIBackend is the interface every extraction backend must implement.
// Never call a specific provider directly; always inject this interface.
type AIBackend interface {
	// Complete sends a bounded prompt and returns the raw model output,
	// which callers must validate before trusting.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
	// Model returns the configured model name.
	Model() string
}

// CompletionRequest is the input to a single backend call.
type CompletionRequest struct {
	System    string
	Prompt    string
	JSONOnly  bool
	MaxTokens int
}

// Backend failure classes. Providers wrap one of these so callers can tell a
// timeout from an unreachable backend from a bad answer.
var (
	ErrBackendUnavailable = errors.New("extraction backend unavailable")
	ErrBackendTimeout     = errors.New("extraction backend timeout")
	ErrBackendResponse    = errors.New("extraction backend returned invalid response")
)
