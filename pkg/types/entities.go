// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the entities, settings, and error taxonomy shared
// across the dialogue-and-research orchestration core.
// Implements: DATA MODEL, EXTERNAL INTERFACES settings schema
//, ERROR HANDLING DESIGN.
package types

import "time"

// ConversationMode governs the question budget and depth of a session.
type ConversationMode string

const (
	ModeQuick    ConversationMode = "quick"
	ModeStandard ConversationMode = "standard"
	ModeDeep     ConversationMode = "deep"
	ModeAdaptive ConversationMode = "adaptive"
)

// QuestionType tags the shape of a QuestionAnswer turn.
type QuestionType string

const (
	QuestionOpenEnded    QuestionType = "open_ended"
	QuestionClarification QuestionType = "clarification"
	QuestionPriority     QuestionType = "priority"
	QuestionConstraint   QuestionType = "constraint"
	QuestionPreference   QuestionType = "preference"
	QuestionValidation   QuestionType = "validation"
	QuestionFollowUp     QuestionType = "follow_up"
)

// QuestionAnswer is a single asked-and-answered turn.
type QuestionAnswer struct {
	QuestionID     string       `json:"question_id" yaml:"question_id"`
	QuestionText   string       `json:"question_text" yaml:"question_text"`
	AnswerText     string       `json:"answer_text" yaml:"answer_text"`
	QuestionType   QuestionType `json:"question_type" yaml:"question_type"`
	Category       string       `json:"category" yaml:"category"`
	AskedAt        time.Time    `json:"asked_at" yaml:"asked_at"`
	AnsweredAt     time.Time    `json:"answered_at" yaml:"answered_at"`
	PriorityScore  float64      `json:"priority_score" yaml:"priority_score"`
	FollowUpHint   string       `json:"follow_up_hint,omitempty" yaml:"follow_up_hint,omitempty"`
}

// EmotionalDimension holds the intensity and triggering phrases for one
// detected emotion (urgency, anxiety, excitement).
type EmotionalDimension struct {
	Intensity float64  `json:"intensity" yaml:"intensity"`
	Phrases   []string `json:"phrases,omitempty" yaml:"phrases,omitempty"`
}

// EmotionalIndicators is the urgency/anxiety/excitement reading of a
// conversation at a point in time.
type EmotionalIndicators struct {
	Urgency    EmotionalDimension `json:"urgency" yaml:"urgency"`
	Anxiety    EmotionalDimension `json:"anxiety" yaml:"anxiety"`
	Excitement EmotionalDimension `json:"excitement" yaml:"excitement"`
}

// ContextUnderstanding is the nested record of detected topics, technical
// level, and decision complexity.
type ContextUnderstanding struct {
	DetectedTopics     []string `json:"detected_topics,omitempty" yaml:"detected_topics,omitempty"`
	TechnicalLevel     string   `json:"technical_level,omitempty" yaml:"technical_level,omitempty"`
	DecisionComplexity string   `json:"decision_complexity,omitempty" yaml:"decision_complexity,omitempty"`
	CommunicationStyle string   `json:"communication_style,omitempty" yaml:"communication_style,omitempty"`
}

// ConversationState is the identity and evolving understanding of one
// research request.
type ConversationState struct {
	SessionID              string                 `json:"session_id" yaml:"session_id"`
	UserQuery              string                 `json:"user_query" yaml:"user_query"`
	UserProfile            map[string]any         `json:"user_profile" yaml:"user_profile"`
	InformationGaps        []string               `json:"information_gaps" yaml:"information_gaps"`
	PriorityFactors        map[string]float64     `json:"priority_factors" yaml:"priority_factors"`
	ConfidenceScores       map[string]float64      `json:"confidence_scores" yaml:"confidence_scores"`
	QuestionHistory        []QuestionAnswer       `json:"question_history" yaml:"question_history"`
	ContextUnderstanding   ContextUnderstanding   `json:"context_understanding" yaml:"context_understanding"`
	EmotionalIndicators    EmotionalIndicators    `json:"emotional_indicators" yaml:"emotional_indicators"`
	CompletionConfidence   float64                `json:"completion_confidence" yaml:"completion_confidence"`
	ConversationMode       ConversationMode       `json:"conversation_mode" yaml:"conversation_mode"`
	NextQuestionSuggestions []string              `json:"next_question_suggestions,omitempty" yaml:"next_question_suggestions,omitempty"`
	Metadata               map[string]any         `json:"metadata" yaml:"metadata"`
	CreatedAt              time.Time              `json:"created_at" yaml:"created_at"`
	LastUpdatedAt          time.Time              `json:"last_updated_at" yaml:"last_updated_at"`
}

// ResearchContext is the immutable snapshot handed to the research
// pipeline once the dialogue terminates.
type ResearchContext struct {
	UserQuery            string              `json:"user_query" yaml:"user_query"`
	PriorityFactors      map[string]float64  `json:"priority_factors" yaml:"priority_factors"`
	InformationGaps      []string            `json:"information_gaps" yaml:"information_gaps"`
	UserProfile          map[string]any      `json:"user_profile" yaml:"user_profile"`
	EmotionalIndicators  EmotionalIndicators `json:"emotional_indicators" yaml:"emotional_indicators"`
	CompletionConfidence float64             `json:"completion_confidence" yaml:"completion_confidence"`
	Mode                 ConversationMode    `json:"mode" yaml:"mode"`
}

// StageStatus reports the outcome of one research pipeline stage.
type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StagePartial  StageStatus = "partial"
	StageFallback StageStatus = "fallback"
)

// Evidence is a single grounded source cited by a research stage.
type Evidence struct {
	SourceURL     string  `json:"source_url" yaml:"source_url"`
	SourceName    string  `json:"source_name" yaml:"source_name"`
	Reliability   float64 `json:"reliability" yaml:"reliability"`
	ExtractedText string  `json:"extracted_text" yaml:"extracted_text"`
	Relevance     float64 `json:"relevance" yaml:"relevance"`
}

// Findings is the structured body of a StageResult.
type Findings struct {
	Summary        string     `json:"summary" yaml:"summary"`
	Evidence       []Evidence `json:"evidence" yaml:"evidence"`
	GapsIdentified []string   `json:"gaps_identified" yaml:"gaps_identified"`
}

// StageResult is the per-stage output of the research pipeline.
type StageResult struct {
	StageIndex    int         `json:"stage_index" yaml:"stage_index"`
	StageName     string      `json:"stage_name" yaml:"stage_name"`
	Findings      Findings    `json:"findings" yaml:"findings"`
	Status        StageStatus `json:"status" yaml:"status"`
	ErrorReason   string      `json:"error_reason,omitempty" yaml:"error_reason,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	StartedAt     time.Time   `json:"started_at" yaml:"started_at"`
	CompletedAt   time.Time   `json:"completed_at" yaml:"completed_at"`
}

// ResearchBundle is the frozen output of the research pipeline for a
// session.
type ResearchBundle struct {
	SessionID        string        `json:"session_id" yaml:"session_id"`
	Query            string        `json:"query" yaml:"query"`
	Stages           []StageResult `json:"stages" yaml:"stages"`
	KnowledgeBase    []string      `json:"knowledge_base" yaml:"knowledge_base"`
	FinalConclusions string        `json:"final_conclusions" yaml:"final_conclusions"`
	ConfidenceScore  float64       `json:"confidence_score" yaml:"confidence_score"`
}

// QuestionMetrics is the per-question effectiveness record tracked by
// Conversation Memory. It references only a fingerprint, never a
// session, by design.
type QuestionMetrics struct {
	QuestionFingerprint      string  `json:"question_fingerprint" yaml:"question_fingerprint"`
	TimesAsked               int     `json:"times_asked" yaml:"times_asked"`
	AverageResponseLength    float64 `json:"average_response_length" yaml:"average_response_length"`
	InformationGainEstimate  float64 `json:"information_gain_estimate" yaml:"information_gain_estimate"`
	EffectivenessScore       float64 `json:"effectiveness_score" yaml:"effectiveness_score"`
	LastSessionID            string  `json:"last_session_id" yaml:"last_session_id"`
}
