// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilot/dialogos/internal/convmemory"
	"github.com/danpilot/dialogos/pkg/types"
	"github.com/danpilot/dialogos/pkg/ui"
)

// scriptedSink returns answers from a fixed list in order, recording
// every question text it was shown, and falls back to a short closing
// answer once the list is exhausted.
type scriptedSink struct {
	answers []string
	idx     int
	asked   []string
}

func (s *scriptedSink) PresentQuestion(ctx context.Context, q ui.QuestionShell) (string, error) {
	s.asked = append(s.asked, q.QuestionText)
	if s.idx >= len(s.answers) {
		return "Nothing else to add.", nil
	}
	a := s.answers[s.idx]
	s.idx++
	return a, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestOrchestrator(sink ui.QuestionSink, suffix int) *Orchestrator {
	return &Orchestrator{
		Settings:      types.DefaultSettings(),
		Memory:        convmemory.New(),
		Sink:          sink,
		Clock:         fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		SessionSuffix: suffix,
	}
}

// assertNoDuplicateQuestions is the universal no-duplicate-question
// property, checked across every scenario below.
func assertNoDuplicateQuestions(t *testing.T, history []types.QuestionAnswer) {
	t.Helper()
	seen := map[string]bool{}
	for _, qa := range history {
		fp := convmemory.Fingerprint(qa.QuestionText)
		assert.False(t, seen[fp], "question asked twice: %q", qa.QuestionText)
		seen[fp] = true
	}
}

// Quick, urgent purchase: a terse opening query selects QUICK mode,
// stays within its three-question budget, and the urgency markers
// repeated across answers drive emotional_indicators.urgency to at
// least 0.6.
func TestRunQuickUrgentPurchaseStaysWithinBudget(t *testing.T) {
	sink := &scriptedSink{answers: []string{
		"it's urgent, I need it asap, budget is tight under $300",
		"yes still urgent, I need it asap, no specific brand preference",
		"no constraints beyond that, just need it asap",
	}}
	orch := newTestOrchestrator(sink, 1)

	result, err := orch.Run(context.Background(), "need cheap laptop by tomorrow asap")
	require.NoError(t, err)
	require.Equal(t, PhaseFinalizing, result.Phase)

	state := result.State
	assert.Equal(t, types.ModeQuick, state.ConversationMode)
	assert.LessOrEqual(t, len(state.QuestionHistory), 3)
	assert.GreaterOrEqual(t, state.EmotionalIndicators.Urgency.Intensity, 0.6)
	assertNoDuplicateQuestions(t, state.QuestionHistory)
}

// Deep comparison: a multi-stakeholder comparison query selects DEEP
// mode, asks at least four questions, and detects at least two of
// budget/timeline/quality above the breadth threshold.
func TestRunDeepComparisonCoversMultiplePriorities(t *testing.T) {
	sink := &scriptedSink{answers: []string{
		"I want to compare based on price, I need something affordable, budget under $15000 for the whole system",
		"timeline matters, I'd like this done soon, ideally on a tight schedule before summer",
		"quality and reliability matter most, it needs to be durable and long lasting professional grade equipment",
		"no real deal-breakers, just want a solid reputable installer",
	}}
	orch := newTestOrchestrator(sink, 2)

	result, err := orch.Run(context.Background(), "compare solar installation options for my family of four")
	require.NoError(t, err)
	require.Equal(t, PhaseFinalizing, result.Phase)

	state := result.State
	assert.Equal(t, types.ModeDeep, state.ConversationMode)
	assert.GreaterOrEqual(t, len(state.QuestionHistory), 4)

	strong := 0
	for _, factor := range []string{"budget", "timeline", "quality"} {
		if w, ok := state.PriorityFactors[factor]; ok && w >= 0.3 {
			strong++
		}
	}
	assert.GreaterOrEqual(t, strong, 2)
	assertNoDuplicateQuestions(t, state.QuestionHistory)
}

// Mode upgrade mid-conversation: sustained, detailed engagement after
// an urgency-driven QUICK start escalates the mode upward (QUICK ->
// STANDARD -> DEEP) without invalidating any question already asked.
func TestRunSustainedEngagementUpgradesMode(t *testing.T) {
	sink := &scriptedSink{answers: []string{
		"My budget is quite flexible right now, somewhere between eight hundred and fifteen hundred dollars depending on the exact specifications, since this investment really needs to last for several years of heavy daily use across work and personal projects alike.",
		"There isn't a hard deadline pressing on me, but I would like to have everything settled and delivered within the next several weeks so I have time to set it up properly, migrate my files, and get comfortable with it before an important conference presentation.",
		"The features that matter most to me are rock solid build quality, a reliably long battery life that can survive a full day without charging, and a professional looking design that I would feel comfortable bringing into client meetings without hesitation.",
		"The only real constraint is that it needs to be safe and secure to travel with internationally, with reliable warranty coverage in case anything goes wrong while I am away from home for extended stretches during business trips throughout the year.",
	}}
	orch := newTestOrchestrator(sink, 3)

	result, err := orch.Run(context.Background(), "need a good laptop quickly")
	require.NoError(t, err)
	require.Equal(t, PhaseFinalizing, result.Phase)

	state := result.State
	assert.Equal(t, types.ModeDeep, state.ConversationMode, "sustained long answers without urgency markers should escalate past the initial QUICK mode")
	assertNoDuplicateQuestions(t, state.QuestionHistory)

	// Escalation only ever raises the remaining budget; it must never
	// retroactively invalidate history already recorded against the
	// narrower QUICK budget.
	quickBudget := types.DefaultSettings().DynamicPersonalization.ConversationModes.Quick.MaxQuestions
	assert.GreaterOrEqual(t, len(state.QuestionHistory), quickBudget)
}

// Duplicate suppression: driving the same session until the question
// generator has no non-duplicate candidate left never yields two
// question turns with the same fingerprint, even once the deterministic
// template tables start recycling gap-derived candidates across turns.
func TestRunNeverAsksDuplicateQuestion(t *testing.T) {
	answers := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		answers = append(answers, "quality and budget and timeline all matter a great deal to me here, plus safety and convenience")
	}
	sink := &scriptedSink{answers: answers}
	orch := newTestOrchestrator(sink, 4)

	result, err := orch.Run(context.Background(), "compare options for a new family car")
	require.NoError(t, err)
	require.Equal(t, PhaseFinalizing, result.Phase)

	assertNoDuplicateQuestions(t, result.State.QuestionHistory)
}

// Universal budget invariant: the orchestrator never asks more
// questions than the active mode's max_questions allows, checked
// against the mode the session ends in.
func TestRunNeverExceedsActiveModeBudget(t *testing.T) {
	sink := &scriptedSink{answers: []string{
		"it's urgent, I need it asap",
		"still urgent, need it asap",
	}}
	orch := newTestOrchestrator(sink, 5)

	result, err := orch.Run(context.Background(), "need cheap laptop by tomorrow asap")
	require.NoError(t, err)

	mode := types.DefaultSettings().ModeConfig(result.State.ConversationMode)
	assert.LessOrEqual(t, len(result.State.QuestionHistory), mode.MaxQuestions)
}
