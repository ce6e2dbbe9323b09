// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convstate implements Conversation State (C1): the typed,
// serializable container for a session's identity and evolving
// understanding.
// Implements: DYNAMIC PERSONALIZATION ENGINE C1.
package convstate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/danpilot/dialogos/pkg/types"
)

// round6 rounds f to 6 decimal places, the precision the canonical
// serialization guarantees round-trips exactly.
func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// normalize lower-cases and collapses whitespace, used for gap
// deduplication.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// sessionIDLayout is the DRA_YYYYMMDD_HHMMSS timestamp format, plus a
// microsecond suffix for uniqueness within a second.
const sessionIDLayout = "20060102_150405"

// NewSessionID formats a session identifier from a timestamp. The
// caller supplies now (and, when two sessions could start in the same
// second, a distinct micros) rather than the package reading the
// clock itself, keeping session creation deterministic for tests.
func NewSessionID(now time.Time, micros int) string {
	return fmt.Sprintf("DRA_%s_%06d", now.Format(sessionIDLayout), micros)
}

// New creates a Conversation State for a fresh session. It fails with
// *types.InvalidFieldError only when query is empty.
func New(sessionID, query string, now time.Time) (*types.ConversationState, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &types.InvalidFieldError{Field: "user_query", Reason: "must not be empty"}
	}
	return &types.ConversationState{
		SessionID:               sessionID,
		UserQuery:                query,
		UserProfile:              map[string]any{},
		InformationGaps:          []string{},
		PriorityFactors:          map[string]float64{},
		ConfidenceScores:         map[string]float64{},
		QuestionHistory:          []types.QuestionAnswer{},
		NextQuestionSuggestions:  []string{},
		ConversationMode:        types.ModeAdaptive,
		Metadata:                 map[string]any{},
		CreatedAt:                now,
		LastUpdatedAt:            now,
	}, nil
}

// AddQA appends a QuestionAnswer to the history and bumps
// LastUpdatedAt. It is total: callers enforce the mode.max_questions
// budget, this mutator just records.
func AddQA(s *types.ConversationState, qa types.QuestionAnswer, now time.Time) {
	qa.PriorityScore = clamp01(round6(qa.PriorityScore))
	s.QuestionHistory = append(s.QuestionHistory, qa)
	s.LastUpdatedAt = now
}

// UpdateProfile sets a key in the user profile. Total; no-op on an
// empty key.
func UpdateProfile(s *types.ConversationState, key string, value any, now time.Time) {
	if key == "" {
		return
	}
	if s.UserProfile == nil {
		s.UserProfile = map[string]any{}
	}
	s.UserProfile[key] = value
	s.LastUpdatedAt = now
}

// AddGap appends a gap descriptor, idempotent on normalized text
//. Returns false when the gap was already present.
func AddGap(s *types.ConversationState, text string, now time.Time) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	norm := normalize(text)
	for _, g := range s.InformationGaps {
		if normalize(g) == norm {
			return false
		}
	}
	s.InformationGaps = append(s.InformationGaps, text)
	s.LastUpdatedAt = now
	return true
}

// RemoveGap drops a gap descriptor (matched by normalized text) and
// reports whether one was removed. Neither the context analyzer nor the
// orchestrator calls it, so gaps stay on the state once added.
func RemoveGap(s *types.ConversationState, text string, now time.Time) bool {
	norm := normalize(text)
	for i, g := range s.InformationGaps {
		if normalize(g) == norm {
			s.InformationGaps = append(s.InformationGaps[:i], s.InformationGaps[i+1:]...)
			s.LastUpdatedAt = now
			return true
		}
	}
	return false
}

// SetPriority sets a priority factor's weight, clamped to [0,1]
//. Fails only when weight is not a finite number.
func SetPriority(s *types.ConversationState, factor string, weight float64, now time.Time) error {
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return &types.InvalidFieldError{Field: "weight", Reason: "must be a finite number"}
	}
	if s.PriorityFactors == nil {
		s.PriorityFactors = map[string]float64{}
	}
	s.PriorityFactors[factor] = round6(clamp01(weight))
	s.LastUpdatedAt = now
	return nil
}

// SetConfidence sets a confidence dimension, clamped to [0,1].
func SetConfidence(s *types.ConversationState, dimension string, value float64, now time.Time) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &types.InvalidFieldError{Field: "value", Reason: "must be a finite number"}
	}
	if s.ConfidenceScores == nil {
		s.ConfidenceScores = map[string]float64{}
	}
	s.ConfidenceScores[dimension] = round6(clamp01(value))
	s.LastUpdatedAt = now
	return nil
}

// SetCompletionConfidence sets the top-level completion confidence,
// clamped to [0,1].
func SetCompletionConfidence(s *types.ConversationState, value float64, now time.Time) {
	s.CompletionConfidence = round6(clamp01(value))
	s.LastUpdatedAt = now
}

// SetMode changes the conversation mode. The caller (Mode Intelligence,
// C6) is responsible for the "never revisit an asked question" and
// budget-adjustment guarantees; this mutator just records the change.
func SetMode(s *types.ConversationState, mode types.ConversationMode, now time.Time) {
	s.ConversationMode = mode
	s.LastUpdatedAt = now
}

// Snapshot produces the immutable ResearchContext handed to the
// research pipeline once the dialogue terminates.
func Snapshot(s *types.ConversationState) types.ResearchContext {
	return types.ResearchContext{
		UserQuery:            s.UserQuery,
		PriorityFactors:      copyFloatMap(s.PriorityFactors),
		InformationGaps:      append([]string(nil), s.InformationGaps...),
		UserProfile:          copyAnyMap(s.UserProfile),
		EmotionalIndicators:  s.EmotionalIndicators,
		CompletionConfidence: s.CompletionConfidence,
		Mode:                 s.ConversationMode,
	}
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// canonical is the wire shape used by Serialize/Deserialize. It exists
// separately from types.ConversationState so float rounding and key
// ordering are applied uniformly regardless of future field additions
// to the public entity.
type canonical struct {
	SessionID               string                     `json:"session_id" yaml:"session_id"`
	UserQuery                string                     `json:"user_query" yaml:"user_query"`
	UserProfile              map[string]any             `json:"user_profile" yaml:"user_profile"`
	InformationGaps          []string                   `json:"information_gaps" yaml:"information_gaps"`
	PriorityFactors          map[string]float64          `json:"priority_factors" yaml:"priority_factors"`
	ConfidenceScores         map[string]float64          `json:"confidence_scores" yaml:"confidence_scores"`
	QuestionHistory          []types.QuestionAnswer      `json:"question_history" yaml:"question_history"`
	ContextUnderstanding     types.ContextUnderstanding  `json:"context_understanding" yaml:"context_understanding"`
	EmotionalIndicators      types.EmotionalIndicators   `json:"emotional_indicators" yaml:"emotional_indicators"`
	CompletionConfidence     float64                     `json:"completion_confidence" yaml:"completion_confidence"`
	ConversationMode         types.ConversationMode      `json:"conversation_mode" yaml:"conversation_mode"`
	NextQuestionSuggestions  []string                    `json:"next_question_suggestions" yaml:"next_question_suggestions"`
	Metadata                 map[string]any              `json:"metadata" yaml:"metadata"`
	CreatedAt                time.Time                   `json:"created_at" yaml:"created_at"`
	LastUpdatedAt             time.Time                  `json:"last_updated_at" yaml:"last_updated_at"`
}

// buildCanonical applies the same float-rounding and copy discipline
// Serialize uses, shared with SerializeYAML so the two encodings never
// drift apart.
func buildCanonical(s *types.ConversationState) canonical {
	return canonical{
		SessionID:               s.SessionID,
		UserQuery:                s.UserQuery,
		UserProfile:              roundAnyMap(s.UserProfile),
		InformationGaps:          sortedCopyPreserveOrder(s.InformationGaps),
		PriorityFactors:          roundFloatMap(s.PriorityFactors),
		ConfidenceScores:         roundFloatMap(s.ConfidenceScores),
		QuestionHistory:          roundQAs(s.QuestionHistory),
		ContextUnderstanding:     s.ContextUnderstanding,
		EmotionalIndicators:      roundEmotional(s.EmotionalIndicators),
		CompletionConfidence:     round6(s.CompletionConfidence),
		ConversationMode:         s.ConversationMode,
		NextQuestionSuggestions:  sortedCopyPreserveOrder(s.NextQuestionSuggestions),
		Metadata:                 roundAnyMap(s.Metadata),
		CreatedAt:                s.CreatedAt.UTC(),
		LastUpdatedAt:            s.LastUpdatedAt.UTC(),
	}
}

// Serialize produces the canonical JSON encoding of a Conversation
// State: deterministic key order (encoding/json sorts map keys) and
// floats rounded to 6 decimals, so two serializations of an
// unchanged state always compare byte-equal.
func Serialize(s *types.ConversationState) ([]byte, error) {
	return json.Marshal(buildCanonical(s))
}

// SerializeYAML produces the same canonical, float-rounded encoding as
// Serialize but in YAML, for collaborators (e.g. a report renderer)
// that want a human-editable session export rather than the JSON wire
// format.
func SerializeYAML(s *types.ConversationState) ([]byte, error) {
	return yaml.Marshal(buildCanonical(s))
}

// Deserialize decodes the canonical JSON encoding back into a
// Conversation State.
func Deserialize(data []byte) (*types.ConversationState, error) {
	var c canonical
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding conversation state: %w", err)
	}
	return &types.ConversationState{
		SessionID:               c.SessionID,
		UserQuery:                c.UserQuery,
		UserProfile:              c.UserProfile,
		InformationGaps:          c.InformationGaps,
		PriorityFactors:          c.PriorityFactors,
		ConfidenceScores:         c.ConfidenceScores,
		QuestionHistory:          c.QuestionHistory,
		ContextUnderstanding:     c.ContextUnderstanding,
		EmotionalIndicators:      c.EmotionalIndicators,
		CompletionConfidence:     c.CompletionConfidence,
		ConversationMode:         c.ConversationMode,
		NextQuestionSuggestions:  c.NextQuestionSuggestions,
		Metadata:                 c.Metadata,
		CreatedAt:                c.CreatedAt,
		LastUpdatedAt:            c.LastUpdatedAt,
	}, nil
}

// sortedCopyPreserveOrder copies ss without reordering; information
// gaps and next-question suggestions are ordered sequences,
// not sets, so insertion order must survive the round trip.
func sortedCopyPreserveOrder(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	return out
}

func roundFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = round6(v)
	}
	return out
}

func roundAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if f, ok := v.(float64); ok {
			out[k] = round6(f)
		} else {
			out[k] = v
		}
	}
	return out
}

func roundQAs(qas []types.QuestionAnswer) []types.QuestionAnswer {
	out := make([]types.QuestionAnswer, len(qas))
	for i, qa := range qas {
		qa.PriorityScore = round6(qa.PriorityScore)
		out[i] = qa
	}
	return out
}

func roundEmotional(e types.EmotionalIndicators) types.EmotionalIndicators {
	e.Urgency.Intensity = round6(e.Urgency.Intensity)
	e.Anxiety.Intensity = round6(e.Anxiety.Intensity)
	e.Excitement.Intensity = round6(e.Excitement.Intensity)
	return e
}
