// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm defines the inbound LLM client dependency. The
// core calls Generate and interprets the typed Failure it returns; it
// never constructs transport itself.
package llm

import (
	"context"
	"time"
)

// FailureKind classifies why a Generate call did not return a usable
// response.
type FailureKind string

const (
	FailureTimeout         FailureKind = "timeout"
	FailureRateLimit       FailureKind = "rate_limit"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureTransport       FailureKind = "transport"
)

// Failure is a typed LLM call failure. It implements error so callers
// that don't care about the kind can still treat it as one.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Transient reports whether the caller should retry with backoff
// rather than fall back immediately.
func (f *Failure) Transient() bool {
	return f.Kind == FailureTimeout || f.Kind == FailureRateLimit || f.Kind == FailureTransport
}

// Options configures a single Generate call.
type Options struct {
	Temperature     float64
	TopP            float64
	MaxTokens       int
	Deadline        time.Time
	EnableGrounding bool
}

// GroundingMetadata carries provider-supplied grounding citations, when
// EnableGrounding was set and the provider returned any.
type GroundingMetadata struct {
	Sources []string
}

// Response is the result of a successful Generate call.
type Response struct {
	Text               string
	GroundingMetadata  *GroundingMetadata
}

// Client is the single operation the core depends on. A
// concrete implementation (internal/llmclient) owns the transport; the
// core only ever holds this interface.
type Client interface {
	Generate(ctx context.Context, prompt string, opts Options) (Response, error)
}
