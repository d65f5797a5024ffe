package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatus_CanTransitionTo(t *testing.T) {
	legal := map[RunStatus][]RunStatus{
		RunStatusPending: {RunStatusRunning, RunStatusRejected},
		RunStatusRunning: {RunStatusCompleted, RunStatusFailed},
	}

	for _, from := range ValidRunStatuses {
		for _, to := range ValidRunStatuses {
			want := false
			for _, next := range legal[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	assert.False(t, RunStatusPending.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.True(t, RunStatusRejected.IsTerminal())
}

func TestIsValidRunType(t *testing.T) {
	assert.True(t, IsValidRunType(RunTypeExtraction))
	assert.True(t, IsValidRunType(RunTypeAnalysis))
	assert.True(t, IsValidRunType(RunTypeSWE))
	assert.False(t, IsValidRunType(RunType("training")))
}
