package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageIDs(level []Stage) []string {
	ids := make([]string, len(level))
	for i, s := range level {
		ids[i] = s.ID
	}
	return ids
}

func TestDependencyLevelsOrdersByDependency(t *testing.T) {
	stages := []Stage{
		{ID: "validate", Dependencies: []string{"generate"}},
		{ID: "classify"},
		{ID: "generate", Dependencies: []string{"assemble"}},
		{ID: "assemble", Dependencies: []string{"classify"}},
		{ID: "personalize", Dependencies: []string{"classify"}},
	}

	levels := DependencyLevels(stages)

	require.Len(t, levels, 4)
	assert.ElementsMatch(t, []string{"classify"}, stageIDs(levels[0]))
	assert.ElementsMatch(t, []string{"assemble", "personalize"}, stageIDs(levels[1]))
	assert.ElementsMatch(t, []string{"generate"}, stageIDs(levels[2]))
	assert.ElementsMatch(t, []string{"validate"}, stageIDs(levels[3]))
}

func TestDependencyLevelsReleasesCycleTogether(t *testing.T) {
	stages := []Stage{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "root"},
	}

	levels := DependencyLevels(stages)

	require.Len(t, levels, 2)
	assert.ElementsMatch(t, []string{"root"}, stageIDs(levels[0]))
	assert.ElementsMatch(t, []string{"a", "b"}, stageIDs(levels[1]))
}

func TestDependencyLevelsIgnoresUnknownDependency(t *testing.T) {
	stages := []Stage{
		{ID: "only", Dependencies: []string{"ghost"}},
	}

	levels := DependencyLevels(stages)

	require.Len(t, levels, 1)
	assert.ElementsMatch(t, []string{"only"}, stageIDs(levels[0]))
}

func TestMarkDegradedKeepsFirstReason(t *testing.T) {
	exec := &Execution{}
	exec.MarkDegraded("first")
	exec.MarkDegraded("second")

	assert.True(t, exec.Degraded)
	assert.Equal(t, "first", exec.DegradedReason)
}
