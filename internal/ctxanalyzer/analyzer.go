// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ctxanalyzer implements the Context Analyzer (C3): it reads a
// Conversation State's accumulated answers and derives priorities,
// emotional indicators, communication style, technical expertise, and
// information gaps. AI-first with a rule-based fallback, grounded on
// original_source/core/context_analyzer.py's keyword tables.
// Implements: DYNAMIC PERSONALIZATION ENGINE C3.
package ctxanalyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/danpilot/dialogos/internal/airetry"
	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/types"
)

// priorityKeywords mirrors original_source's budget/timeline/quality
// tables, extended with the remaining priority factors this tracks.
var priorityKeywords = map[string][]string{
	"budget":      {"budget", "cost", "price", "expensive", "cheap", "affordable", "money", "free", "premium", "value", "investment", "$"},
	"timeline":    {"urgent", "asap", "quickly", "fast", "deadline", "timeline", "schedule", "soon", "immediately", "delay", "rush", "hurry"},
	"quality":     {"quality", "best", "excellent", "perfect", "reliable", "durable", "professional", "robust", "solid", "top-tier"},
	"convenience": {"convenient", "easy", "simple", "hassle-free", "straightforward", "effortless"},
	"risk":        {"risk", "safe", "safety", "secure", "warranty", "guarantee", "failure", "reliable"},
	"social":      {"recommend", "reviews", "friends", "family", "popular", "trusted", "reputation"},
	"learning":    {"learn", "understand", "explain", "curious", "how does", "why"},
}

var urgencyPatterns = mustCompileAll(
	`need\s.{0,5}(asap|urgently|quickly|immediately)`,
	`(urgent|critical|emergency)`,
	`deadline.{0,10}(tomorrow|today|soon)`,
)

var anxietyPatterns = mustCompileAll(
	`(worried|concerned|anxious|nervous)`,
	`hope.{0,5}(works|right)`,
	`(scared|afraid).{0,10}(wrong|mistake)`,
)

var excitementPatterns = mustCompileAll(
	`(excited|thrilled|amazing|fantastic)`,
	`can't wait`,
	`(love|adore).{0,5}(idea|concept)`,
)

func mustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// technicalTerms drives both detected_topics and technical_expertise.
var technicalTerms = map[string][]string{
	"technology": {"api", "framework", "algorithm", "database", "protocol", "software", "server"},
	"finance":    {"roi", "portfolio", "diversification", "yield", "equity", "interest rate"},
	"health":     {"metabolism", "cardiovascular", "diagnosis", "treatment", "symptom"},
	"general":    {"specification", "optimization", "integration", "methodology"},
}

var uncertaintyMarkers = []string{"maybe", "not sure", "i think", "possibly", "i guess", "kind of", "sort of", "unsure"}

// PriorityInsight is one detected priority factor with its supporting
// evidence.
type PriorityInsight struct {
	Weight          float64  `json:"weight"`
	EvidencePhrases []string `json:"evidence_phrases"`
}

// ContextAnalysis is the full output of one analysis pass.
type ContextAnalysis struct {
	Priorities          map[string]PriorityInsight `json:"priorities"`
	EmotionalIndicators types.EmotionalIndicators  `json:"emotional_indicators"`
	CommunicationStyle  string                     `json:"communication_style"`
	TechnicalExpertise  string                     `json:"technical_expertise"`
	InformationGaps     []string                   `json:"information_gaps"`
	Confidence          float64                    `json:"confidence"`
}

type gapResponse struct {
	Gaps []string `json:"gaps"`
}

// Analyze is a total function: it never fails the caller. On LLM
// unavailability or a malformed response it falls back to rule-based
// gap identification and attenuates confidence by 0.7.
func Analyze(ctx context.Context, client llm.Client, state *types.ConversationState, weights types.PriorityAnalysisConfig, aiCfg types.AIConfig) ContextAnalysis {
	responses := userResponses(state)
	joined := strings.ToLower(strings.Join(responses, " "))

	priorities := detectPriorities(joined, weights)
	emotional := detectEmotional(joined)
	style := communicationStyle(responses)
	expertise := technicalExpertise(joined)

	gaps, confidence := identifyGaps(ctx, client, aiCfg, state, priorities)

	return ContextAnalysis{
		Priorities:          priorities,
		EmotionalIndicators: emotional,
		CommunicationStyle:  style,
		TechnicalExpertise:  expertise,
		InformationGaps:     gaps,
		Confidence:          confidence,
	}
}

// DetectedTopics exposes the domain/topic heuristic independently so
// callers can write it onto ConversationState.ContextUnderstanding.
func DetectedTopics(state *types.ConversationState) []string {
	joined := strings.ToLower(strings.Join(userResponses(state), " "))
	return detectedTopics(joined)
}

func userResponses(state *types.ConversationState) []string {
	out := []string{state.UserQuery}
	for _, qa := range state.QuestionHistory {
		if qa.AnswerText != "" {
			out = append(out, qa.AnswerText)
		}
	}
	return out
}

func detectPriorities(text string, weights types.PriorityAnalysisConfig) map[string]PriorityInsight {
	factorWeights := map[string]float64{
		"budget":      weights.BudgetWeight,
		"timeline":    weights.TimelineWeight,
		"quality":     weights.QualityWeight,
		"convenience": weights.ConvenienceWeight,
		"risk":        weights.RiskWeight,
		"social":      weights.SocialWeight,
		"learning":    weights.LearningWeight,
	}

	priorities := map[string]PriorityInsight{}
	for factor, keywords := range priorityKeywords {
		var hits []string
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) == 0 {
			continue
		}
		density := math.Min(1, float64(len(hits))/float64(len(keywords))*3)
		base := factorWeights[factor]
		if base <= 0 {
			base = 0.5
		}
		priorities[factor] = PriorityInsight{
			Weight:          clamp01(base * density),
			EvidencePhrases: hits,
		}
	}
	return priorities
}

func detectEmotional(text string) types.EmotionalIndicators {
	return types.EmotionalIndicators{
		Urgency:    dimension(text, urgencyPatterns, 0.3),
		Anxiety:    dimension(text, anxietyPatterns, 0.4),
		Excitement: dimension(text, excitementPatterns, 0.5),
	}
}

func dimension(text string, patterns []*regexp.Regexp, perHit float64) types.EmotionalDimension {
	var phrases []string
	for _, p := range patterns {
		phrases = append(phrases, p.FindAllString(text, -1)...)
	}
	if len(phrases) == 0 {
		return types.EmotionalDimension{}
	}
	return types.EmotionalDimension{
		Intensity: clamp01(float64(len(phrases)) * perHit),
		Phrases:   phrases,
	}
}

func communicationStyle(responses []string) string {
	if len(responses) == 0 {
		return "uncertain"
	}

	var totalLen, questionMarks, uncertainCount, technicalHits float64
	for _, r := range responses {
		totalLen += float64(len(r))
		if strings.Contains(r, "?") {
			questionMarks++
		}
		lower := strings.ToLower(r)
		for _, marker := range uncertaintyMarkers {
			if strings.Contains(lower, marker) {
				uncertainCount++
				break
			}
		}
		for _, terms := range technicalTerms {
			for _, t := range terms {
				if strings.Contains(lower, t) {
					technicalHits++
				}
			}
		}
	}

	n := float64(len(responses))
	avgLen := totalLen / n
	uncertaintyRatio := uncertainCount / n
	questionRatio := questionMarks / n
	technicalRatio := technicalHits / n

	switch {
	case uncertaintyRatio > 0.3:
		return "uncertain"
	case questionRatio > 0.3:
		return "exploratory"
	case technicalRatio > 0.5 && avgLen > 80:
		return "analytical"
	case avgLen < 30:
		return "direct"
	case technicalRatio < 0.1 && avgLen > 60:
		return "intuitive"
	case uncertaintyRatio == 0 && questionRatio == 0:
		return "decisive"
	default:
		return "direct"
	}
}

func technicalExpertise(text string) string {
	hits := 0
	for _, terms := range technicalTerms {
		for _, t := range terms {
			if strings.Contains(text, t) {
				hits++
			}
		}
	}
	selfDescribed := strings.Contains(text, "beginner") || strings.Contains(text, "new to")
	expert := strings.Contains(text, "expert") || strings.Contains(text, "experienced") || strings.Contains(text, "professional")

	switch {
	case selfDescribed:
		return "novice"
	case expert || hits >= 4:
		return "expert"
	case hits >= 1:
		return "intermediate"
	default:
		return "novice"
	}
}

func detectedTopics(text string) []string {
	var topics []string
	for topic, terms := range technicalTerms {
		if topic == "general" {
			continue
		}
		for _, t := range terms {
			if strings.Contains(text, t) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}

// identifyGaps tries the AI path first; on failure it falls back to
// rule-based gap naming derived from the priorities actually detected
// this conversation.
func identifyGaps(ctx context.Context, client llm.Client, aiCfg types.AIConfig, state *types.ConversationState, priorities map[string]PriorityInsight) ([]string, float64) {
	confidence := aggregateConfidence(priorities)

	if client == nil {
		return ruleBasedGaps(state, priorities), confidence * 0.7
	}

	prompt := gapPrompt(state, priorities)
	var parsed gapResponse
	err := airetry.GenerateAndParse(ctx, client, prompt, llm.Options{}, aiCfg, func(text string) error {
		return json.Unmarshal([]byte(text), &parsed)
	})
	if err != nil || len(parsed.Gaps) == 0 {
		return ruleBasedGaps(state, priorities), confidence * 0.7
	}

	return parsed.Gaps, confidence
}

func gapPrompt(state *types.ConversationState, priorities map[string]PriorityInsight) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given this profile and detected priorities for the query %q, list the information still missing as a JSON object {\"gaps\": [short descriptors]}.\n", state.UserQuery)
	for factor, insight := range priorities {
		fmt.Fprintf(&b, "priority %s weight=%.2f\n", factor, insight.Weight)
	}
	return b.String()
}

// ruleBasedGaps emits a gap for each high-priority factor lacking
// corresponding evidence in UserProfile, naming the gap after the
// detected factor rather than a fixed taxonomy.
func ruleBasedGaps(state *types.ConversationState, priorities map[string]PriorityInsight) []string {
	var gaps []string
	for factor, insight := range priorities {
		if insight.Weight < 0.3 {
			continue
		}
		if _, known := state.UserProfile[factor]; known {
			continue
		}
		gaps = append(gaps, fmt.Sprintf("needs more detail on %s", factor))
	}
	return gaps
}

func aggregateConfidence(priorities map[string]PriorityInsight) float64 {
	if len(priorities) == 0 {
		return 0.2
	}
	var sum float64
	for _, p := range priorities {
		sum += p.Weight
	}
	return clamp01(sum / float64(len(priorities)))
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

// Apply writes an analysis onto state via convstate's mutators: priority
// weights, emotional indicators, context understanding, and gaps (added
// if newly detected, never removed). Caller supplies now for
// deterministic timestamps.
func Apply(state *types.ConversationState, analysis ContextAnalysis, setPriority func(factor string, weight float64) error, addGap func(text string) bool) error {
	for factor, insight := range analysis.Priorities {
		if err := setPriority(factor, insight.Weight); err != nil {
			return err
		}
	}
	for _, gap := range analysis.InformationGaps {
		addGap(gap)
	}
	state.EmotionalIndicators = analysis.EmotionalIndicators
	state.ContextUnderstanding.CommunicationStyle = analysis.CommunicationStyle
	state.ContextUnderstanding.TechnicalLevel = analysis.TechnicalExpertise
	state.ContextUnderstanding.DetectedTopics = DetectedTopics(state)
	return nil
}
