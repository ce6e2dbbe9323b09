// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llmclient provides the default, concrete implementation of
// pkg/llm.Client. It POSTs a provider-agnostic JSON envelope to a
// configurable base URL and parses the provider's response into
// llm.Response. The core never imports this package directly; it only
// ever holds the llm.Client interface.
// Uses internal/httputil.DoWithRetry for the HTTP-transport
// retry-on-429 behavior; 5xx and rate-limit-envelope failures are
// surfaced as a *llm.Failure so the caller's own retry/backoff
// (internal/airetry) handles them uniformly with every other
// transient failure, rather than teaching httputil a second retry
// policy that would contradict its existing
// Non429ErrorPassesThrough contract.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"github.com/danpilot/dialogos/internal/httputil"
	"github.com/danpilot/dialogos/pkg/llm"
)

// Client is a pkg/llm.Client backed by a plain *http.Client. Limiter
// enforces a single-writer-per-process discipline for the shared LLM
// client: every Generate call waits on the same rate.Limiter before
// doing any I/O.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	MaxRetries int
	Limiter    *rate.Limiter
	Logger     *zap.Logger
}

// New constructs a Client with a sane default HTTP timeout and a
// limiter allowing one request per second with a burst of one. baseURL
// points at the provider's generation endpoint; apiKey is sent as a
// bearer token.
func New(baseURL, apiKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    baseURL,
		APIKey:     apiKey,
		MaxRetries: 5,
		Limiter:    rate.NewLimiter(rate.Limit(1), 1),
	}
}

type generateRequest struct {
	Prompt          string  `json:"prompt"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	MaxTokens       int     `json:"max_tokens"`
	EnableGrounding bool    `json:"enable_grounding"`
}

type generateResponse struct {
	Text               string   `json:"text"`
	GroundingSources   []string `json:"grounding_sources"`
	RateLimited        bool     `json:"rate_limited"`
}

// Generate implements pkg/llm.Client. It never returns a bare
// transport error: every failure path is wrapped in a *llm.Failure so
// the caller can distinguish transient failures (worth retrying) from
// permanent ones.
func (c *Client) Generate(ctx context.Context, prompt string, opts llm.Options) (llm.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return llm.Response{}, &llm.Failure{Kind: llm.FailureTimeout, Err: err}
		}
	}

	body, err := json.Marshal(generateRequest{
		Prompt:          prompt,
		Temperature:     opts.Temperature,
		TopP:            opts.TopP,
		MaxTokens:       opts.MaxTokens,
		EnableGrounding: opts.EnableGrounding,
	})
	if err != nil {
		return llm.Response{}, &llm.Failure{Kind: llm.FailureInvalidResponse, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, &llm.Failure{Kind: llm.FailureTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.HTTPClient, req, c.MaxRetries, c.Logger)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Response{}, &llm.Failure{Kind: llm.FailureTimeout, Err: err}
		}
		return llm.Response{}, &llm.Failure{Kind: llm.FailureTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, &llm.Failure{Kind: llm.FailureTransport, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return llm.Response{}, &llm.Failure{Kind: llm.FailureRateLimit, Err: fmt.Errorf("rate limited after retries")}
	case resp.StatusCode >= 500:
		return llm.Response{}, &llm.Failure{Kind: llm.FailureTransport, Err: fmt.Errorf("provider status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return llm.Response{}, &llm.Failure{Kind: llm.FailureInvalidResponse, Err: fmt.Errorf("provider status %d: %s", resp.StatusCode, string(data))}
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return llm.Response{}, &llm.Failure{Kind: llm.FailureInvalidResponse, Err: err}
	}
	if parsed.RateLimited {
		return llm.Response{}, &llm.Failure{Kind: llm.FailureRateLimit, Err: fmt.Errorf("provider reported rate_limited in envelope")}
	}

	out := llm.Response{Text: parsed.Text}
	if len(parsed.GroundingSources) > 0 {
		out.GroundingMetadata = &llm.GroundingMetadata{Sources: parsed.GroundingSources}
	}
	return out, nil
}
