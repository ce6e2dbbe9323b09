// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package airetry centralizes the retry-with-backoff and
// parse-then-fallback policy shared by every component that calls the
// LLM client: transient failures retry with exponential backoff, and
// a malformed response gets one silent retry before the caller falls
// back to deterministic behavior.
// Grounded on internal/extract's callWithRetry and
// internal/httputil.DoWithRetry backoff shape.
package airetry

import (
	"context"
	"math"
	"time"

	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/types"
)

// BackoffBase controls the base sleep duration for exponential
// backoff. Tests override this to avoid real sleeps.
var BackoffBase = time.Second

// Generate calls client.Generate, retrying transient failures
// (timeout, rate limit, transport) up to cfg.MaxRetries times with
// exponential backoff: attempt N sleeps
// cfg.ExponentialBackoffBase^(N-1) * cfg.RetryDelaySeconds, plus
// cfg.RateLimitDelaySeconds extra when the failure was a rate limit
//.
func Generate(ctx context.Context, client llm.Client, prompt string, opts llm.Options, cfg types.AIConfig) (llm.Response, error) {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt, cfg, lastErr); err != nil {
				return llm.Response{}, err
			}
		}

		resp, err := client.Generate(ctx, prompt, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var failure *llm.Failure
		if f, ok := err.(*llm.Failure); ok {
			failure = f
		}
		if failure != nil && !failure.Transient() {
			return llm.Response{}, &types.LLMResponseError{Op: "generate", Err: err}
		}
	}

	return llm.Response{}, &types.LLMTransientError{Op: "generate", Err: lastErr}
}

func sleepBackoff(ctx context.Context, attempt int, cfg types.AIConfig, lastErr error) error {
	base := BackoffBase
	retryDelay := cfg.RetryDelaySeconds
	if retryDelay <= 0 {
		retryDelay = 1.0
	}
	backoffBase := cfg.ExponentialBackoffBase
	if backoffBase <= 1 {
		backoffBase = 2
	}

	delay := time.Duration(math.Pow(backoffBase, float64(attempt-1)) * retryDelay * float64(base))

	if failure, ok := lastErr.(*llm.Failure); ok && failure.Kind == llm.FailureRateLimit {
		rateDelay := cfg.RateLimitDelaySeconds
		if rateDelay <= 0 {
			rateDelay = 2.0
		}
		delay += time.Duration(rateDelay * float64(base))
	}

	select {
	case <-ctx.Done():
		return &types.CancellationError{}
	case <-time.After(delay):
		return nil
	}
}

// GenerateAndParse calls Generate and, on success, invokes parse on
// the resulting text. If parse fails, it retries once with a fresh
// Generate call before giving up.
func GenerateAndParse(ctx context.Context, client llm.Client, prompt string, opts llm.Options, cfg types.AIConfig, parse func(string) error) error {
	resp, err := Generate(ctx, client, prompt, opts, cfg)
	if err != nil {
		return err
	}

	if err := parse(resp.Text); err == nil {
		return nil
	}

	resp, err = Generate(ctx, client, prompt, opts, cfg)
	if err != nil {
		return err
	}
	if err := parse(resp.Text); err != nil {
		return &types.LLMResponseError{Op: "parse", Err: err}
	}
	return nil
}
