// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memorystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilot/dialogos/pkg/types"
)

func testSetup(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := testSetup(t)

	metrics := []*types.QuestionMetrics{
		{
			QuestionFingerprint:     "fp1",
			TimesAsked:              3,
			AverageResponseLength:   42.5,
			InformationGainEstimate: 0.6,
			EffectivenessScore:      0.75,
			LastSessionID:           "s1",
		},
		{
			QuestionFingerprint: "fp2",
			TimesAsked:          1,
			LastSessionID:       "s2",
		},
	}

	require.NoError(t, store.SaveMetrics(metrics))

	loaded, err := store.LoadMetrics()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byFingerprint := map[string]*types.QuestionMetrics{}
	for _, qm := range loaded {
		byFingerprint[qm.QuestionFingerprint] = qm
	}
	assert.Equal(t, 3, byFingerprint["fp1"].TimesAsked)
	assert.Equal(t, 0.75, byFingerprint["fp1"].EffectivenessScore)
	assert.Equal(t, "s2", byFingerprint["fp2"].LastSessionID)
}

func TestSaveMetricsUpsertsExisting(t *testing.T) {
	store := testSetup(t)

	require.NoError(t, store.SaveMetrics([]*types.QuestionMetrics{
		{QuestionFingerprint: "fp1", TimesAsked: 1, EffectivenessScore: 0.2},
	}))
	require.NoError(t, store.SaveMetrics([]*types.QuestionMetrics{
		{QuestionFingerprint: "fp1", TimesAsked: 5, EffectivenessScore: 0.9},
	}))

	loaded, err := store.LoadMetrics()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 5, loaded[0].TimesAsked)
	assert.Equal(t, 0.9, loaded[0].EffectivenessScore)
}

func TestSaveMetricsSkipsNilAndBlankFingerprint(t *testing.T) {
	store := testSetup(t)

	require.NoError(t, store.SaveMetrics([]*types.QuestionMetrics{
		nil,
		{QuestionFingerprint: ""},
		{QuestionFingerprint: "fp1", TimesAsked: 1},
	}))

	loaded, err := store.LoadMetrics()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "fp1", loaded[0].QuestionFingerprint)
}

func TestLoadMetricsEmptyDatabase(t *testing.T) {
	store := testSetup(t)

	loaded, err := store.LoadMetrics()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
