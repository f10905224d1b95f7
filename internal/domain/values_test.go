package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_Transitions(t *testing.T) {
	tests := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskStatusPending, TaskStatusInProgress, true},
		{TaskStatusPending, TaskStatusCarriedOver, true},
		{TaskStatusPending, TaskStatusCancelled, true},
		{TaskStatusPending, TaskStatusDone, false},
		{TaskStatusInProgress, TaskStatusDone, true},
		{TaskStatusInProgress, TaskStatusCarriedOver, true},
		{TaskStatusInProgress, TaskStatusPending, false},
		{TaskStatusCarriedOver, TaskStatusPending, true},
		{TaskStatusCarriedOver, TaskStatusCarriedOver, true},
		{TaskStatusCarriedOver, TaskStatusDone, true},
		{TaskStatusDone, TaskStatusCarriedOver, false},
		{TaskStatusDone, TaskStatusDone, false},
		{TaskStatusCancelled, TaskStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTaskStatus_LiveAndTerminal(t *testing.T) {
	for _, s := range LiveStatuses {
		assert.True(t, s.IsLive(), s)
		assert.False(t, s.IsTerminal(), s)
	}
	assert.True(t, TaskStatusDone.IsTerminal())
	assert.True(t, TaskStatusCancelled.IsTerminal())
	assert.False(t, TaskStatusDone.IsLive())
}

func TestTaskPriority_RankOrder(t *testing.T) {
	assert.Less(t, TaskPriorityLow.Rank(), TaskPriorityMedium.Rank())
	assert.Less(t, TaskPriorityMedium.Rank(), TaskPriorityHigh.Rank())
	assert.Less(t, TaskPriorityHigh.Rank(), TaskPriorityUrgent.Rank())
}

func TestTaskPriority_Raise(t *testing.T) {
	assert.Equal(t, TaskPriorityMedium, TaskPriorityLow.Raise(TaskPriorityUrgent))
	assert.Equal(t, TaskPriorityUrgent, TaskPriorityHigh.Raise(TaskPriorityUrgent))
	assert.Equal(t, TaskPriorityUrgent, TaskPriorityUrgent.Raise(TaskPriorityUrgent))

	// Ceiling below urgent stops escalation early.
	assert.Equal(t, TaskPriorityHigh, TaskPriorityHigh.Raise(TaskPriorityHigh))
	assert.Equal(t, TaskPriorityHigh, TaskPriorityMedium.Raise(TaskPriorityHigh))
}
