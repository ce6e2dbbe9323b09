// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package airetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/types"
)

type scriptedClient struct {
	responses []llm.Response
	errs      []error
	calls     int
}

func (c *scriptedClient) Generate(ctx context.Context, prompt string, opts llm.Options) (llm.Response, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return llm.Response{}, c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return llm.Response{}, errors.New("no more scripted responses")
}

func TestMain(m *testing.M) {
	BackoffBase = time.Millisecond
	m.Run()
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{&llm.Failure{Kind: llm.FailureTimeout}, nil},
		responses: []llm.Response{{}, {Text: "ok"}},
	}
	resp, err := Generate(context.Background(), client, "p", llm.Options{}, types.AIConfig{MaxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, client.calls)
}

func TestGenerateExhaustsRetriesReturnsTransientError(t *testing.T) {
	client := &scriptedClient{
		errs: []error{
			&llm.Failure{Kind: llm.FailureTimeout},
			&llm.Failure{Kind: llm.FailureTimeout},
			&llm.Failure{Kind: llm.FailureTimeout},
			&llm.Failure{Kind: llm.FailureTimeout},
		},
	}
	_, err := Generate(context.Background(), client, "p", llm.Options{}, types.AIConfig{MaxRetries: 3})
	require.Error(t, err)
	var transientErr *types.LLMTransientError
	require.ErrorAs(t, err, &transientErr)
	assert.Equal(t, 4, client.calls)
}

func TestGenerateNonTransientFailsFast(t *testing.T) {
	client := &scriptedClient{
		errs: []error{&llm.Failure{Kind: llm.FailureInvalidResponse}},
	}
	_, err := Generate(context.Background(), client, "p", llm.Options{}, types.AIConfig{MaxRetries: 3})
	require.Error(t, err)
	var respErr *types.LLMResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, 1, client.calls)
}

func TestGenerateAndParseRetriesOnceOnParseFailure(t *testing.T) {
	client := &scriptedClient{
		responses: []llm.Response{{Text: "not json"}, {Text: "valid"}},
	}
	var got string
	err := GenerateAndParse(context.Background(), client, "p", llm.Options{}, types.AIConfig{MaxRetries: 3}, func(text string) error {
		if text != "valid" {
			return errors.New("bad parse")
		}
		got = text
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "valid", got)
	assert.Equal(t, 2, client.calls)
}

func TestGenerateAndParseFallsBackAfterSecondParseFailure(t *testing.T) {
	client := &scriptedClient{
		responses: []llm.Response{{Text: "bad"}, {Text: "still bad"}},
	}
	err := GenerateAndParse(context.Background(), client, "p", llm.Options{}, types.AIConfig{MaxRetries: 3}, func(text string) error {
		return errors.New("never parses")
	})
	require.Error(t, err)
	var respErr *types.LLMResponseError
	require.ErrorAs(t, err, &respErr)
}

func TestGenerateRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{errs: []error{&llm.Failure{Kind: llm.FailureTimeout}}}
	_, err := Generate(ctx, client, "p", llm.Options{}, types.AIConfig{MaxRetries: 3})
	require.Error(t, err)
}
