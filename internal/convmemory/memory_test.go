// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convmemory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilot/dialogos/pkg/types"
)

func TestTrackAskedAndIsDuplicateExact(t *testing.T) {
	m := New()
	m.TrackAsked("What's your budget range?", "s1")

	assert.True(t, m.IsDuplicate("What's your budget range?", "s1", 0))
	assert.True(t, m.IsDuplicate("  what's YOUR budget range?  ", "s1", 0))
	assert.False(t, m.IsDuplicate("What's your timeline?", "s1", 0))
	assert.False(t, m.IsDuplicate("What's your budget range?", "s2", 0))
}

func TestIsDuplicateJaccardSimilarity(t *testing.T) {
	m := New()
	m.TrackAsked("What is your budget for this laptop purchase?", "s1")

	assert.True(t, m.IsDuplicate("What is your budget for this laptop buy?", "s1", 0.5))
	assert.False(t, m.IsDuplicate("What is your favorite color scheme?", "s1", 0.85))
}

func TestRecordAnswerEffectivenessInRange(t *testing.T) {
	m := New()
	fp := m.TrackAsked("What's your budget?", "s1")

	eff := m.RecordAnswer(fp, "s1", "My budget is around $1500, I want good quality and low risk of failure.")
	assert.GreaterOrEqual(t, eff, 0.0)
	assert.LessOrEqual(t, eff, 1.0)
}

func TestRecordAnswerNoveltyDecreasesOnRepeat(t *testing.T) {
	m := New()
	fp := m.TrackAsked("Tell me about your needs", "s1")

	first := m.RecordAnswer(fp, "s1", "I need a laptop for video editing and gaming with long battery life")
	second := m.RecordAnswer(fp, "s1", "I need a laptop for video editing and gaming with long battery life")

	assert.Greater(t, first, second)
}

func TestDeriveResponsePatternStyles(t *testing.T) {
	direct := &types.ConversationState{QuestionHistory: []types.QuestionAnswer{
		{AnswerText: "Yes"},
		{AnswerText: "No thanks"},
	}}
	assert.Equal(t, "direct", DeriveResponsePattern(direct).CommunicationStyle)

	detailed := &types.ConversationState{QuestionHistory: []types.QuestionAnswer{
		{AnswerText: "I have been thinking a lot about this decision and want to make sure I consider every option carefully before committing to anything significant here."},
	}}
	assert.Equal(t, "detailed", DeriveResponsePattern(detailed).CommunicationStyle)

	uncertain := &types.ConversationState{QuestionHistory: []types.QuestionAnswer{
		{AnswerText: "maybe, not sure yet"},
		{AnswerText: "I think so, maybe"},
		{AnswerText: "definitely yes"},
	}}
	assert.Equal(t, "uncertain", DeriveResponsePattern(uncertain).CommunicationStyle)
}

type fakeStore struct {
	saved   []*types.QuestionMetrics
	loadErr error
	saveErr error
}

func (f *fakeStore) SaveMetrics(metrics []*types.QuestionMetrics) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = metrics
	return nil
}

func (f *fakeStore) LoadMetrics() ([]*types.QuestionMetrics, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.saved, nil
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	m := New()
	fp := m.TrackAsked("What's your budget?", "s1")
	m.RecordAnswer(fp, "s1", "around $1000")

	store := &fakeStore{}
	require.NoError(t, m.Persist(store))
	require.NotEmpty(t, store.saved)

	m2 := New()
	require.NoError(t, m2.Load(store))
	assert.True(t, m2.IsDuplicate("What's your budget?", "s1", 0) == false) // load doesn't replay per-session asked sets
}

func TestPersistLoadDegradeGracefully(t *testing.T) {
	m := New()
	err := m.Persist(nil)
	require.NoError(t, err)

	store := &fakeStore{loadErr: errors.New("disk full")}
	err = m.Load(store)
	require.Error(t, err)
}
