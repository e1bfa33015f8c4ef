package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskState
		expected bool
	}{
		{TaskPending, TaskRouting, true},
		{TaskRouting, TaskPreprocessing, true},
		{TaskPreprocessing, TaskVectorizing, true},
		{TaskVectorizing, TaskStoring, true},
		{TaskStoring, TaskStoring, true},
		{TaskStoring, TaskCompleted, true},
		{TaskVectorizing, TaskFailed, true},
		{TaskPending, TaskCancelled, true},
		{TaskPending, TaskVectorizing, false},
		{TaskRouting, TaskRouting, false},
		{TaskCompleted, TaskFailed, false},
		{TaskCancelled, TaskPending, false},
		{TaskFailed, TaskRouting, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, CanTransition(tt.from, tt.to))
		})
	}
}

func TestProcessingTask_Transition(t *testing.T) {
	now := time.Now()
	task := &ProcessingTask{ID: "t1", State: TaskPending}

	for _, next := range []TaskState{TaskRouting, TaskPreprocessing, TaskVectorizing, TaskStoring} {
		require.NoError(t, task.Transition(next, now))
	}
	task.RetryCount = 2
	require.NoError(t, task.Transition(TaskStoring, now))
	assert.Equal(t, 2, task.RetryCount, "self-transition keeps the retry count")

	require.NoError(t, task.Transition(TaskCompleted, now))
	assert.Equal(t, 0, task.RetryCount)
	assert.Equal(t, 1.0, task.Progress)
	assert.Equal(t, now, task.CompletedAt)
	assert.True(t, task.IsDone())

	err := task.Transition(TaskFailed, now)
	assert.ErrorIs(t, err, ErrTaskTerminal)
}

func TestProcessingTask_IllegalTransition(t *testing.T) {
	task := &ProcessingTask{ID: "t1", State: TaskPending}
	err := task.Transition(TaskStoring, time.Now())
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, TaskPending, task.State)
}

func TestProcessingTask_Fail(t *testing.T) {
	task := &ProcessingTask{ID: "t1", State: TaskRouting}
	require.NoError(t, task.Fail(ErrUnsupportedFileType, time.Now()))
	assert.Equal(t, TaskFailed, task.State)
	require.NotNil(t, task.Error)
	assert.Equal(t, ErrorKindUnsupportedFileType, task.Error.Kind)
}

func TestTaskState_CancelImmediately(t *testing.T) {
	assert.True(t, TaskPending.CancelImmediately())
	assert.True(t, TaskPreprocessing.CancelImmediately())
	assert.False(t, TaskVectorizing.CancelImmediately())
	assert.False(t, TaskStoring.CancelImmediately())
}
