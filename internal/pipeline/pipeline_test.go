// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilot/dialogos/internal/airetry"
	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func baseContext() types.ResearchContext {
	return types.ResearchContext{
		UserQuery:            "compare options for a home solar installation",
		PriorityFactors:      map[string]float64{"budget": 0.8, "timeline": 0.6},
		InformationGaps:      []string{"needs more detail on budget"},
		CompletionConfidence: 0.7,
		Mode:                 types.ModeDeep,
	}
}

type scriptedLLM struct {
	resp llm.Response
	err  error
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts llm.Options) (llm.Response, error) {
	return s.resp, s.err
}

func validFindingsResponse() llm.Response {
	return llm.Response{Text: `{"summary":"solar installers vary widely by region","evidence":[{"source_url":"https://example.com","source_name":"EnergySage","reliability":0.8,"extracted_text":"typical 4-person household system costs $15k-$25k","relevance":0.9}],"gaps_identified":["installer availability in the user's region"]}`}
}

func TestRunAllStagesOKProducesOrderedBundle(t *testing.T) {
	airetry.BackoffBase = time.Microsecond
	defer func() { airetry.BackoffBase = time.Second }()

	p := &Pipeline{
		Client:   &scriptedLLM{resp: validFindingsResponse()},
		Settings: types.DefaultSettings(),
		Clock:    fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	bundle := p.Run(context.Background(), "DRA_20260101_000000", baseContext())

	require.Len(t, bundle.Stages, 6)
	for i, stage := range bundle.Stages {
		assert.Equal(t, i+1, stage.StageIndex)
		assert.False(t, stage.CompletedAt.Before(stage.StartedAt))
		assert.NotEqual(t, types.StageFallback, stage.Status)
	}
	assert.NotEmpty(t, bundle.FinalConclusions)
	assert.NotEmpty(t, bundle.KnowledgeBase)
	assert.GreaterOrEqual(t, bundle.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, bundle.ConfidenceScore, 1.0)
}

func TestRunLLMOutageFallsBackEveryStageAtFloorConfidence(t *testing.T) {
	airetry.BackoffBase = time.Microsecond
	defer func() { airetry.BackoffBase = time.Second }()

	settings := types.DefaultSettings()
	p := &Pipeline{
		Client:   &scriptedLLM{err: &llm.Failure{Kind: llm.FailureTimeout}},
		Settings: settings,
		Clock:    fixedClock(time.Now()),
	}

	bundle := p.Run(context.Background(), "DRA_20260101_000001", baseContext())

	require.Len(t, bundle.Stages, 6)
	for _, stage := range bundle.Stages {
		assert.Equal(t, types.StageFallback, stage.Status)
		assert.NotEmpty(t, stage.ErrorReason)
		require.Len(t, stage.Findings.GapsIdentified, 1)
		assert.Contains(t, stage.Findings.GapsIdentified[0], fmt.Sprintf("stage %d unavailable", stage.StageIndex))
	}
	assert.Equal(t, settings.Research.MinConfidenceFallback, bundle.ConfidenceScore)
}

func TestRunCancelledMidStageFallsBackRemainingStages(t *testing.T) {
	airetry.BackoffBase = time.Microsecond
	defer func() { airetry.BackoffBase = time.Second }()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	client := &countingCancelClient{onCall: func() {
		calls++
		if calls == 2 {
			cancel()
		}
	}}

	p := &Pipeline{
		Client:   client,
		Settings: types.DefaultSettings(),
		Clock:    fixedClock(time.Now()),
	}

	bundle := p.Run(ctx, "DRA_20260101_000002", baseContext())

	require.Len(t, bundle.Stages, 6)
	assert.Equal(t, types.StageOK, bundle.Stages[0].Status)
	assert.Equal(t, types.StageOK, bundle.Stages[1].Status)
	for _, stage := range bundle.Stages[2:] {
		assert.Equal(t, types.StageFallback, stage.Status)
		assert.Equal(t, "cancelled", stage.ErrorReason)
	}
	assert.GreaterOrEqual(t, bundle.ConfidenceScore, types.DefaultSettings().Research.MinConfidenceFallback)
}

// countingCancelClient returns a valid response on every call but lets
// the test cancel the context after the Nth call returns, simulating a
// cancellation that arrives between two stages.
type countingCancelClient struct {
	onCall func()
}

func (c *countingCancelClient) Generate(ctx context.Context, prompt string, opts llm.Options) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	c.onCall()
	return validFindingsResponse(), nil
}

func TestRunStageOrderingAndTimestamps(t *testing.T) {
	p := &Pipeline{
		Client:   &scriptedLLM{resp: validFindingsResponse()},
		Settings: types.DefaultSettings(),
	}

	bundle := p.Run(context.Background(), "DRA_20260101_000003", baseContext())
	for i, stage := range bundle.Stages {
		assert.Equal(t, i+1, stage.StageIndex)
		assert.False(t, stage.CompletedAt.Before(stage.StartedAt))
	}
	assert.Equal(t, "information_gathering", bundle.Stages[0].StageName)
	assert.Equal(t, "final_conclusions", bundle.Stages[5].StageName)
}

func TestAggregateConfidenceFloor(t *testing.T) {
	results := []types.StageResult{
		{StageIndex: 1, Status: types.StageFallback},
	}
	c := aggregateConfidence(results, 0, 0.1)
	assert.Equal(t, 0.1, c)
}

func TestKnowledgeBaseDeduplicates(t *testing.T) {
	results := []types.StageResult{
		{Findings: types.Findings{Evidence: []types.Evidence{{SourceName: "A"}, {SourceName: "B"}}}},
		{Findings: types.Findings{Evidence: []types.Evidence{{SourceName: "A"}}}},
	}
	kb := knowledgeBase(results)
	assert.Equal(t, []string{"A", "B"}, kb)
}
