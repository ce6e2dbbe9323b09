// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package modeintel implements Mode Intelligence (C6): initial mode
// selection from opening-query signals, and mid-dialogue engagement-
// based switching.
// Implements: DYNAMIC PERSONALIZATION ENGINE C6.
//
// Open Question (a): the source's mode-intelligence code and its
// documentation disagree on the exact engagement thresholds for
// switching. This package picks the thresholds below (avg answer
// length > 180 chars and no urgency marker to switch up; avg length <
// 40 chars or an explicit urgency marker to switch down) and applies
// them consistently.
package modeintel

import (
	"strings"

	"github.com/danpilot/dialogos/pkg/types"
)

var urgencyPhrases = []string{"asap", "urgent", "quick", "quickly", "right away", "immediately"}

var stakeholderPhrases = []string{"my family", "my team", "we ", "our household", "everyone", "both of us"}

// SelectInitialMode selects a conversation mode from the opening
// query: urgency and complexity signals each score the four modes; the
// mode with the highest weighted score wins, with ADAPTIVE as the
// default when signals are ambiguous (all near-tied). No expertise
// signal is computed, so the user's stated expertise does not affect
// the choice.
func SelectInitialMode(query string) types.ConversationMode {
	lower := strings.ToLower(query)

	urgency := urgencySignal(lower)
	complexity := complexitySignal(lower)

	// Each mode scores its own weighted combination of the urgency and
	// complexity signals; ADAPTIVE carries a flat baseline so it wins
	// whenever neither extreme signal is strong.
	candidates := []struct {
		mode  types.ConversationMode
		score float64
	}{
		{types.ModeQuick, urgency - complexity*0.3},
		{types.ModeStandard, 0.3},
		{types.ModeDeep, complexity - urgency*0.3},
		{types.ModeAdaptive, 0.4},
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}
	return best.mode
}

func urgencySignal(lowerQuery string) float64 {
	for _, phrase := range urgencyPhrases {
		if strings.Contains(lowerQuery, phrase) {
			return 0.9
		}
	}
	return 0.2
}

func complexitySignal(lowerQuery string) float64 {
	score := 0.0
	for _, phrase := range stakeholderPhrases {
		if strings.Contains(lowerQuery, phrase) {
			score += 0.3
			break
		}
	}
	if strings.Count(lowerQuery, " or ") >= 2 || strings.Count(lowerQuery, ",") >= 2 {
		score += 0.4
	}
	if strings.Contains(lowerQuery, "compare") {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

// EngagementMetrics summarizes mid-dialogue signals.
type EngagementMetrics struct {
	AvgAnswerLength float64
	UrgencyMarker   bool
	DropoutMarkers  int
}

// Engagement computes EngagementMetrics from a state's question history,
// usable starting turn ≥2.
func Engagement(state *types.ConversationState) EngagementMetrics {
	n := len(state.QuestionHistory)
	if n == 0 {
		return EngagementMetrics{}
	}

	var total float64
	urgencyMarker := false
	dropouts := 0
	for _, qa := range state.QuestionHistory {
		total += float64(len(qa.AnswerText))
		lower := strings.ToLower(qa.AnswerText)
		for _, phrase := range urgencyPhrases {
			if strings.Contains(lower, phrase) {
				urgencyMarker = true
			}
		}
		if strings.TrimSpace(qa.AnswerText) == "" || len(qa.AnswerText) < 5 {
			dropouts++
		}
	}

	return EngagementMetrics{
		AvgAnswerLength: total / float64(n),
		UrgencyMarker:   urgencyMarker,
		DropoutMarkers:  dropouts,
	}
}

var modeOrder = []types.ConversationMode{types.ModeQuick, types.ModeStandard, types.ModeDeep}

// NextMode decides mid-dialogue mode switching: switch UP on
// high engagement plus an unmet high-weight gap; switch DOWN on low
// engagement or an explicit urgency marker. It never returns a mode
// that would make previously asked questions invalid, since switching
// only ever changes the remaining budget, not the history.
func NextMode(current types.ConversationMode, state *types.ConversationState) types.ConversationMode {
	if len(state.QuestionHistory) < 2 {
		return current
	}

	metrics := Engagement(state)
	hasUnmetHighWeightGap := hasUnmetHighWeightGap(state)

	idx := modeIndex(current)
	if idx < 0 {
		return current
	}

	switch {
	case metrics.UrgencyMarker || metrics.AvgAnswerLength < 40:
		if idx > 0 {
			return modeOrder[idx-1]
		}
		return current
	case metrics.AvgAnswerLength > 180 && hasUnmetHighWeightGap:
		if idx < len(modeOrder)-1 {
			return modeOrder[idx+1]
		}
		return current
	default:
		return current
	}
}

func modeIndex(mode types.ConversationMode) int {
	for i, m := range modeOrder {
		if m == mode {
			return i
		}
	}
	return -1
}

func hasUnmetHighWeightGap(state *types.ConversationState) bool {
	if len(state.InformationGaps) == 0 {
		return false
	}
	for _, weight := range state.PriorityFactors {
		if weight >= 0.5 {
			return true
		}
	}
	return false
}
