// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package completion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/types"
)

func standardMode() types.ModeConfig {
	return types.DefaultSettings().DynamicPersonalization.ConversationModes.Standard
}

func TestAssessContinueWithSparseState(t *testing.T) {
	state := &types.ConversationState{UserQuery: "q", PriorityFactors: map[string]float64{}, UserProfile: map[string]any{}}

	a, err := Assess(context.Background(), nil, state, standardMode(), types.DefaultSettings().AI)
	require.NoError(t, err)
	assert.Equal(t, VerdictContinue, a.Verdict)
}

func TestAssessSufficientAtHighConfidence(t *testing.T) {
	state := &types.ConversationState{
		UserQuery: "q",
		PriorityFactors: map[string]float64{
			"budget": 0.8, "timeline": 0.8, "quality": 0.8, "risk": 0.8,
		},
		UserProfile: map[string]any{"budget": "x", "timeline": "x", "quality": "x", "risk": "x"},
		QuestionHistory: []types.QuestionAnswer{
			{AnswerText: "a very long and detailed answer about the budget and timeline and risk considerations at play here today"},
			{AnswerText: "another long and detailed answer describing quality concerns and preferences for this particular decision"},
			{AnswerText: "a third substantial answer elaborating further on priorities and constraints relevant to this conversation"},
		},
	}

	a, err := Assess(context.Background(), nil, state, standardMode(), types.DefaultSettings().AI)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a.Confidence, 0.0)
	assert.LessOrEqual(t, a.Confidence, 1.0)
	assert.Contains(t, []Verdict{VerdictSufficient, VerdictMinimalSufficient}, a.Verdict)
}

func TestAssessClampsConfidenceToRange(t *testing.T) {
	state := &types.ConversationState{
		UserQuery:       "q",
		PriorityFactors: map[string]float64{},
		InformationGaps: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"},
	}

	a, err := Assess(context.Background(), nil, state, standardMode(), types.DefaultSettings().AI)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a.Confidence, 0.0)
	assert.LessOrEqual(t, a.Confidence, 1.0)
}

func TestAssessFallsBackGapsWithoutClient(t *testing.T) {
	state := &types.ConversationState{
		UserQuery:       "q",
		PriorityFactors: map[string]float64{"budget": 0.8},
		UserProfile:     map[string]any{},
	}

	a, err := Assess(context.Background(), nil, state, standardMode(), types.DefaultSettings().AI)
	require.NoError(t, err)
	assert.Contains(t, a.Gaps, "needs more detail on budget")
}

type fakeClient struct {
	resp llm.Response
}

func (f *fakeClient) Generate(ctx context.Context, prompt string, opts llm.Options) (llm.Response, error) {
	return f.resp, nil
}

func TestAssessUsesLLMGapsWhenValid(t *testing.T) {
	state := &types.ConversationState{
		UserQuery:       "q",
		PriorityFactors: map[string]float64{"budget": 0.8},
	}
	client := &fakeClient{resp: llm.Response{Text: `{"gaps":["household size"]}`}}

	a, err := Assess(context.Background(), client, state, standardMode(), types.DefaultSettings().AI)
	require.NoError(t, err)
	assert.Equal(t, []string{"household size"}, a.Gaps)
}

func TestComputeBreadthCountsAboveThreshold(t *testing.T) {
	state := &types.ConversationState{PriorityFactors: map[string]float64{
		"budget": 0.4, "timeline": 0.2, "quality": 0.5, "risk": 0.9,
	}}
	assert.InDelta(t, 0.75, computeBreadth(state), 1e-9)
}

func TestComputeProgressRatio(t *testing.T) {
	state := &types.ConversationState{QuestionHistory: make([]types.QuestionAnswer, 3)}
	mode := types.ModeConfig{MaxQuestions: 6}
	assert.InDelta(t, 0.5, computeProgress(state, mode), 1e-9)
}
