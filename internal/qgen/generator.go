// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package qgen implements the AI Question Generator (C4): intent and
// domain classification, LLM-grounded question generation, and a
// deterministic template fallback table. Classification keyword lists
// are grounded in original_source/core/ai_question_generator.py's rule-
// based fallback; the precedence order layers on the testable-property
// overrides (research beats learning, troubleshooting terms beat
// purchase/learning) that the literal source if/elif chain does not
// honor on its own.
// Implements: DYNAMIC PERSONALIZATION ENGINE C4.
package qgen

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/danpilot/dialogos/internal/airetry"
	"github.com/danpilot/dialogos/internal/convmemory"
	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/types"
)

// Intent is the classified purpose of a user's opening query.
type Intent string

const (
	IntentPurchase       Intent = "purchase"
	IntentLearning       Intent = "learning"
	IntentComparison     Intent = "comparison"
	IntentResearch       Intent = "research"
	IntentPlanning       Intent = "planning"
	IntentTroubleshooting Intent = "troubleshooting"
	IntentGeneral        Intent = "general"
)

// intentRules is checked in order; the first match wins. Troubleshooting
// is checked first so explicit failure terms override purchase/learning
// language in the same query, and research is checked ahead of learning
// so "research machine learning" classifies as research.
var intentRules = []struct {
	intent   Intent
	keywords []string
}{
	{IntentTroubleshooting, []string{"won't", "doesn't", "error", "broken", "problem", "issue", "fix", "trouble"}},
	{IntentResearch, []string{"research", "study", "analyze", "investigate"}},
	{IntentPurchase, []string{"buy", "purchase", "get", "need"}},
	{IntentLearning, []string{"learn", "understand", "how to", "explain"}},
	{IntentComparison, []string{"compare", "vs", "versus", "difference"}},
	{IntentPlanning, []string{"plan", "organize", "schedule", "itinerary", "prepare"}},
}

// ClassifyIntent maps a raw query to one of the fixed intent categories.
func ClassifyIntent(query string) Intent {
	lower := strings.ToLower(query)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

// domainRules mirrors original_source's domain_keywords dict, extended
// with an added food domain; order only matters for
// determinism since each keyword is checked with a word boundary so
// "app" cannot leak into "appliance".
var domainRules = []struct {
	domain   string
	keywords []string
}{
	{"technology", []string{"computer", "software", "app", "tech", "digital", "programming", "code", "laptop"}},
	{"health", []string{"health", "medical", "doctor", "medicine", "fitness", "diet", "wellness"}},
	{"finance", []string{"money", "investment", "bank", "financial", "budget", "cost", "price"}},
	{"education", []string{"learn", "study", "course", "school", "education", "training"}},
	{"travel", []string{"travel", "trip", "vacation", "flight", "hotel", "destination"}},
	{"home", []string{"home", "house", "furniture", "appliance", "garden", "kitchen", "room"}},
	{"food", []string{"food", "recipe", "restaurant", "cooking", "meal", "cuisine", "ingredient"}},
}

// ClassifyDomain maps a raw query to one of the fixed domain categories.
func ClassifyDomain(query string) string {
	lower := strings.ToLower(query)
	for _, rule := range domainRules {
		for _, kw := range rule.keywords {
			if wordBoundaryMatch(lower, kw) {
				return rule.domain
			}
		}
	}
	return "other"
}

func wordBoundaryMatch(text, keyword string) bool {
	pattern := `\b` + regexp.QuoteMeta(keyword) + `\b`
	matched, _ := regexp.MatchString(pattern, text)
	return matched
}

// GeneratedQuestion is the LLM or template output before validation.
type GeneratedQuestion struct {
	Text      string              `json:"text"`
	Type      types.QuestionType  `json:"type"`
	Category  string              `json:"category"`
	Priority  float64             `json:"priority"`
	Rationale string              `json:"rationale"`
}

// categoryTemplates mirrors original_source's single-category template
// table (_generate_rule_based_question).
var categoryTemplates = map[string]string{
	"budget":      "What's your budget range for this?",
	"timeline":    "What's your timeline for this decision?",
	"expertise":   "What's your experience level with this topic?",
	"preferences": "What features or qualities are most important to you?",
	"constraints": "Are there any limitations or requirements we should consider?",
	"goals":       "What are you hoping to achieve?",
	"context":     "Can you tell me more about how you plan to use this?",
	"background":  "What's your background or situation with this topic?",
}

// categoryOrder fixes the iteration order categoryFor checks, so a gap
// description matching more than one category name resolves the same
// way on every call.
var categoryOrder = []string{"budget", "timeline", "expertise", "preferences", "constraints", "goals", "context", "background"}

// intentTemplates mirrors original_source's per-intent template table
// (_generate_questions_rule_based), extended to cover every Intent this
// module recognizes.
var intentTemplates = map[Intent][]GeneratedQuestion{
	IntentPurchase: {
		{Text: "What's your budget range?", Type: types.QuestionOpenEnded, Category: "budget", Priority: 0.9},
		{Text: "When do you need this?", Type: types.QuestionOpenEnded, Category: "timeline", Priority: 0.8},
		{Text: "What features are most important to you?", Type: types.QuestionPreference, Category: "preferences", Priority: 0.8},
		{Text: "Are there any constraints or limitations?", Type: types.QuestionConstraint, Category: "constraints", Priority: 0.7},
	},
	IntentLearning: {
		{Text: "What's your current experience level?", Type: types.QuestionOpenEnded, Category: "expertise", Priority: 0.9},
		{Text: "What specific aspects interest you most?", Type: types.QuestionPreference, Category: "preferences", Priority: 0.8},
		{Text: "How much time can you dedicate to learning?", Type: types.QuestionOpenEnded, Category: "timeline", Priority: 0.7},
		{Text: "Do you prefer hands-on or theoretical learning?", Type: types.QuestionPreference, Category: "learning_style", Priority: 0.6},
	},
	IntentComparison: {
		{Text: "Which options are you weighing against each other?", Type: types.QuestionOpenEnded, Category: "options", Priority: 0.9},
		{Text: "What criteria matter most in this comparison?", Type: types.QuestionPriority, Category: "preferences", Priority: 0.8},
		{Text: "Are there any deal-breakers to avoid?", Type: types.QuestionConstraint, Category: "constraints", Priority: 0.7},
	},
	IntentResearch: {
		{Text: "What's the intended use for this research?", Type: types.QuestionOpenEnded, Category: "goals", Priority: 0.8},
		{Text: "How deep do you want this research to go?", Type: types.QuestionOpenEnded, Category: "context", Priority: 0.7},
		{Text: "Are there specific sources you already trust or distrust?", Type: types.QuestionOpenEnded, Category: "background", Priority: 0.6},
	},
	IntentPlanning: {
		{Text: "What's your timeline for this plan?", Type: types.QuestionOpenEnded, Category: "timeline", Priority: 0.8},
		{Text: "Who else is involved in this plan?", Type: types.QuestionOpenEnded, Category: "context", Priority: 0.7},
		{Text: "What would make this plan a success?", Type: types.QuestionOpenEnded, Category: "goals", Priority: 0.6},
	},
	IntentTroubleshooting: {
		{Text: "When did the problem start?", Type: types.QuestionOpenEnded, Category: "context", Priority: 0.9},
		{Text: "What have you already tried?", Type: types.QuestionOpenEnded, Category: "background", Priority: 0.8},
		{Text: "What's the impact if this isn't resolved?", Type: types.QuestionPriority, Category: "goals", Priority: 0.6},
	},
	IntentGeneral: {
		{Text: "What criteria are most important for your decision?", Type: types.QuestionPriority, Category: "preferences", Priority: 0.9},
		{Text: "What's your experience with similar options?", Type: types.QuestionOpenEnded, Category: "expertise", Priority: 0.8},
		{Text: "Are there any deal-breakers to avoid?", Type: types.QuestionConstraint, Category: "constraints", Priority: 0.8},
		{Text: "What's your timeline for making this decision?", Type: types.QuestionOpenEnded, Category: "timeline", Priority: 0.7},
	},
}

// Generate produces one question shell, or nil if no non-duplicate
// question remains.
func Generate(ctx context.Context, client llm.Client, state *types.ConversationState, memory *convmemory.Memory, aiCfg types.AIConfig, focusHint string) (*types.QuestionAnswer, error) {
	intent := ClassifyIntent(state.UserQuery)
	domain := ClassifyDomain(state.UserQuery)
	gaps := rankedGaps(state)

	if client != nil {
		if qa := tryLLM(ctx, client, state, memory, aiCfg, intent, domain, gaps, focusHint); qa != nil {
			return qa, nil
		}
	}

	return tryTemplates(state, memory, intent, gaps), nil
}

func rankedGaps(state *types.ConversationState) []string {
	gaps := append([]string(nil), state.InformationGaps...)
	sort.SliceStable(gaps, func(i, j int) bool {
		return gapWeight(state, gaps[i]) > gapWeight(state, gaps[j])
	})
	return gaps
}

func gapWeight(state *types.ConversationState, gap string) float64 {
	lower := strings.ToLower(gap)
	best := 0.0
	for factor, weight := range state.PriorityFactors {
		if strings.Contains(lower, factor) && weight > best {
			best = weight
		}
	}
	return best
}

type generationPrompt struct {
	Intent             Intent
	Domain             string
	Gaps               []string
	Mode               types.ConversationMode
	CommunicationStyle string
	FocusHint          string
}

func tryLLM(ctx context.Context, client llm.Client, state *types.ConversationState, memory *convmemory.Memory, aiCfg types.AIConfig, intent Intent, domain string, gaps []string, focusHint string) *types.QuestionAnswer {
	prompt := buildPrompt(generationPrompt{
		Intent:             intent,
		Domain:             domain,
		Gaps:               gaps,
		Mode:               state.ConversationMode,
		CommunicationStyle: state.ContextUnderstanding.CommunicationStyle,
		FocusHint:          focusHint,
	})

	var generated GeneratedQuestion
	err := airetry.GenerateAndParse(ctx, client, prompt, llm.Options{}, aiCfg, func(text string) error {
		return parseGenerated(text, &generated)
	})
	if err != nil {
		return nil
	}

	generated.Text = strings.TrimSpace(generated.Text)
	if generated.Text == "" {
		return nil
	}
	if memory != nil && memory.IsDuplicate(generated.Text, state.SessionID, 0) {
		return nil
	}

	return &types.QuestionAnswer{
		QuestionText:  generated.Text,
		QuestionType:  orDefaultType(generated.Type),
		Category:      orDefault(generated.Category, "general"),
		PriorityScore: clamp01(generated.Priority),
	}
}

func parseGenerated(text string, out *GeneratedQuestion) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return &types.LLMResponseError{Op: "parse_question", Err: errNoJSONObject}
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}

var errNoJSONObject = jsonObjectError("no JSON object found in response")

type jsonObjectError string

func (e jsonObjectError) Error() string { return string(e) }

func orDefaultType(t types.QuestionType) types.QuestionType {
	if t == "" {
		return types.QuestionOpenEnded
	}
	return t
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
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

// tryTemplates enumerates the deterministic template table keyed by
// (intent, highest-priority unmet gap) and returns the first entry that
// is not a duplicate, or nil if every candidate is exhausted (spec
// §4.4 step 5).
func tryTemplates(state *types.ConversationState, memory *convmemory.Memory, intent Intent, gaps []string) *types.QuestionAnswer {
	var candidates []GeneratedQuestion

	for _, gap := range gaps {
		category := categoryFor(gap)
		if text, ok := categoryTemplates[category]; ok {
			candidates = append(candidates, GeneratedQuestion{Text: text, Type: types.QuestionOpenEnded, Category: category, Priority: 0.7})
		}
	}
	candidates = append(candidates, intentTemplates[intent]...)
	if len(intentTemplates[intent]) == 0 {
		candidates = append(candidates, intentTemplates[IntentGeneral]...)
	}

	for _, c := range candidates {
		if _, known := state.UserProfile[c.Category]; known {
			continue
		}
		if memory != nil && memory.IsDuplicate(c.Text, state.SessionID, 0) {
			continue
		}
		return &types.QuestionAnswer{
			QuestionText:  c.Text,
			QuestionType:  c.Type,
			Category:      c.Category,
			PriorityScore: clamp01(c.Priority),
		}
	}

	return nil
}

func categoryFor(gap string) string {
	lower := strings.ToLower(gap)
	for _, category := range categoryOrder {
		if strings.Contains(lower, category) {
			return category
		}
	}
	return ""
}

func buildPrompt(p generationPrompt) string {
	var b strings.Builder
	b.WriteString("Generate the single best next question as JSON {\"text\",\"type\",\"category\",\"priority\",\"rationale\"}.\n")
	b.WriteString("intent: " + string(p.Intent) + "\n")
	b.WriteString("domain: " + p.Domain + "\n")
	b.WriteString("mode: " + string(p.Mode) + "\n")
	b.WriteString("communication_style: " + p.CommunicationStyle + "\n")
	if p.FocusHint != "" {
		b.WriteString("focus_hint: " + p.FocusHint + "\n")
	}
	for _, gap := range p.Gaps {
		b.WriteString("gap: " + gap + "\n")
	}
	return b.String()
}
