// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package completion implements the Completion Assessor (C5): the
// breadth/depth/progress/gap-penalty confidence formula and the
// sufficient/minimal_sufficient/continue verdict, AI-first for the
// reasoned gaps list with a rule-based fallback.
// Implements: DYNAMIC PERSONALIZATION ENGINE C5.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/danpilot/dialogos/internal/airetry"
	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/types"
)

// Verdict is the assessor's recommendation for whether the dialogue
// should continue.
type Verdict string

const (
	VerdictSufficient        Verdict = "sufficient"
	VerdictMinimalSufficient Verdict = "minimal_sufficient"
	VerdictContinue          Verdict = "continue"
)

// Assessment is the full output of one assessment pass.
type Assessment struct {
	Breadth    float64  `json:"breadth"`
	Depth      float64  `json:"depth"`
	Progress   float64  `json:"progress"`
	GapPenalty float64  `json:"gap_penalty"`
	Confidence float64  `json:"confidence"`
	Verdict    Verdict  `json:"verdict"`
	Gaps       []string `json:"gaps"`
}

type gapsResponse struct {
	Gaps []string `json:"gaps"`
}

// Assess is a total function: it only ever fails with *types.AssessmentError
// when the state itself violates an invariant. LLM unavailability degrades the reasoned-gaps list to a
// rule-based fallback and attenuates confidence by 0.85.
func Assess(ctx context.Context, client llm.Client, state *types.ConversationState, mode types.ModeConfig, aiCfg types.AIConfig) (Assessment, error) {
	breadth := computeBreadth(state)
	depth := computeDepth(state)
	progress := computeProgress(state, mode)
	gapPenalty := computeGapPenalty(state)

	confidence := clip01(0.4*breadth + 0.3*depth + 0.3*progress - gapPenalty)

	if confidence < 0 || confidence > 1 {
		return Assessment{}, &types.AssessmentError{Reason: fmt.Sprintf("computed confidence %v out of range", confidence)}
	}

	verdict := decideVerdict(confidence, len(state.QuestionHistory), mode)

	gaps, attenuated := reasonedGaps(ctx, client, aiCfg, state)
	if attenuated {
		confidence = clip01(confidence * 0.85)
		verdict = decideVerdict(confidence, len(state.QuestionHistory), mode)
	}

	return Assessment{
		Breadth:    breadth,
		Depth:      depth,
		Progress:   progress,
		GapPenalty: gapPenalty,
		Confidence: confidence,
		Verdict:    verdict,
		Gaps:       gaps,
	}, nil
}

func computeBreadth(state *types.ConversationState) float64 {
	count := 0
	for _, weight := range state.PriorityFactors {
		if weight > 0.3 {
			count++
		}
	}
	return math.Min(1, float64(count)/4.0)
}

func computeDepth(state *types.ConversationState) float64 {
	var total float64
	for _, qa := range state.QuestionHistory {
		total += float64(len(qa.AnswerText))
	}
	return math.Min(1, total/600.0)
}

func computeProgress(state *types.ConversationState, mode types.ModeConfig) float64 {
	if mode.MaxQuestions <= 0 {
		return 0
	}
	return float64(len(state.QuestionHistory)) / float64(mode.MaxQuestions)
}

func computeGapPenalty(state *types.ConversationState) float64 {
	return math.Min(0.5, 0.1*float64(len(state.InformationGaps)))
}

func decideVerdict(confidence float64, historyLen int, mode types.ModeConfig) Verdict {
	switch {
	case confidence >= 0.75:
		return VerdictSufficient
	case historyLen >= mode.MaxQuestions && confidence >= 0.5:
		return VerdictSufficient
	case confidence >= 0.4 && historyLen >= maxInt(mode.MinQuestions, 2):
		return VerdictMinimalSufficient
	default:
		return VerdictContinue
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clip01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// reasonedGaps tries the AI path first and falls back to the current
// high-weight priorities lacking profile evidence. The
// second return value reports whether the fallback path was taken, so
// the caller can attenuate confidence.
func reasonedGaps(ctx context.Context, client llm.Client, aiCfg types.AIConfig, state *types.ConversationState) ([]string, bool) {
	if client == nil {
		return ruleBasedGaps(state), true
	}

	var parsed gapsResponse
	err := airetry.GenerateAndParse(ctx, client, gapsPrompt(state), llm.Options{}, aiCfg, func(text string) error {
		return json.Unmarshal([]byte(text), &parsed)
	})
	if err != nil || len(parsed.Gaps) == 0 {
		return ruleBasedGaps(state), true
	}

	return parsed.Gaps, false
}

func ruleBasedGaps(state *types.ConversationState) []string {
	var gaps []string
	for factor, weight := range state.PriorityFactors {
		if weight <= 0.3 {
			continue
		}
		if _, known := state.UserProfile[factor]; known {
			continue
		}
		gaps = append(gaps, fmt.Sprintf("needs more detail on %s", factor))
	}
	return gaps
}

func gapsPrompt(state *types.ConversationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the current profile and priorities for the query %q, list the remaining information gaps as JSON {\"gaps\": [short descriptors]}.\n", state.UserQuery)
	for factor, weight := range state.PriorityFactors {
		fmt.Fprintf(&b, "priority %s weight=%.2f\n", factor, weight)
	}
	return b.String()
}
