package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrengthRank(t *testing.T) {
	assert.Equal(t, 0, StrengthVeryWeak.Rank())
	assert.Equal(t, 4, StrengthVeryStrong.Rank())
	assert.True(t, StrengthStrong.Rank() > StrengthWeak.Rank())
	assert.Equal(t, -1, Strength("bogus").Rank())
}

func TestMaxStrength(t *testing.T) {
	assert.Equal(t, StrengthStrong, MaxStrength(StrengthStrong, StrengthWeak))
	assert.Equal(t, StrengthVeryStrong, MaxStrength(StrengthWeak, StrengthVeryStrong))
	assert.Equal(t, StrengthMedium, MaxStrength(StrengthMedium, StrengthMedium))
}

func TestTaskStatusIsTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskCompleted, TaskFailed, TaskTimeout, TaskCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}
	assert.False(t, TaskPending.IsTerminal())
	assert.False(t, TaskRunning.IsTerminal())
}

func TestTaskPriorityValue(t *testing.T) {
	assert.True(t, PriorityHigh.Value() < PriorityMedium.Value())
	assert.True(t, PriorityMedium.Value() < PriorityLow.Value())
}

func TestEdgeListUnmarshalUpgradesLegacyStrings(t *testing.T) {
	var el EdgeList
	err := json.Unmarshal([]byte(`["legacy-tool-a", {"relationship_type":"usage","strength":"strong","reason":"calls it"}]`), &el)
	require.NoError(t, err)
	require.Len(t, el, 2)

	assert.Equal(t, RelReference, el[0].Type)
	assert.Equal(t, StrengthMedium, el[0].Strength)
	assert.Equal(t, "upgraded from legacy plain-string reference", el[0].Reason)

	assert.Equal(t, RelUsage, el[1].Type)
	assert.Equal(t, StrengthStrong, el[1].Strength)
}

func TestEdgeListUnmarshalDropsUnrecognisedElements(t *testing.T) {
	var el EdgeList
	err := json.Unmarshal([]byte(`[123, ""]`), &el)
	require.NoError(t, err)
	assert.Empty(t, el)
}
