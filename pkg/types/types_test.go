package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/crmstore/pkg/types"
)

func TestIsValidLifecycleStage(t *testing.T) {
	for _, s := range types.ValidLifecycleStages {
		assert.True(t, types.IsValidLifecycleStage(s), s)
	}
	assert.True(t, types.IsValidLifecycleStage(""), "unset stage is valid")
	assert.False(t, types.IsValidLifecycleStage("customer"))
}

func TestEntityTypes(t *testing.T) {
	assert.True(t, types.IsValidEntityType(types.EntityDocument))
	assert.False(t, types.IsValidEntityType("memory"))

	assert.True(t, types.IsSearchableType(types.EntityCalendarEvent))
	assert.False(t, types.IsSearchableType(types.EntityDocument), "documents are not searched")
	for _, et := range types.DefaultSearchTypes {
		assert.True(t, types.IsSearchableType(et), et)
	}
}

func TestJobStatus(t *testing.T) {
	for _, s := range []types.JobStatus{types.JobQueued, types.JobProcessing, types.JobCompleted, types.JobFailed, types.JobRetrying} {
		assert.True(t, types.IsValidJobStatus(s), s)
	}
	assert.False(t, types.IsValidJobStatus("paused"))

	assert.True(t, types.JobCompleted.IsTerminal())
	assert.True(t, types.JobFailed.IsTerminal())
	assert.False(t, types.JobRetrying.IsTerminal())
	assert.False(t, types.JobQueued.IsTerminal())
}

func TestPointerHelpers(t *testing.T) {
	assert.Equal(t, "x", *types.String("x"))
	assert.Equal(t, 3, *types.Int(3))
	assert.Equal(t, 0.5, *types.Float64(0.5))
	assert.True(t, *types.Bool(true))
}
