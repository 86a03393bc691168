package llm

import (
	"context"
	"errors"
)

// ErrEmbeddingsUnsupported is returned by providers that can only generate text.
var ErrEmbeddingsUnsupported = errors.New("provider does not support embeddings")

// Provider is the interface all LLM backends must implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
}

// RequestOptions tunes a single completion call. Nil fields use provider defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}

// StatusError carries the HTTP status of a failed provider call so retry
// decisions do not depend on error strings.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *StatusError) Unwrap() error { return e.Err }
