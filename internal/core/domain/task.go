package domain

import (
	"fmt"
	"time"
)

// TaskState is a stage of the ingestion state machine.
type TaskState string

// Task states.
const (
	TaskPending       TaskState = "PENDING"
	TaskRouting       TaskState = "ROUTING"
	TaskPreprocessing TaskState = "PREPROCESSING"
	TaskVectorizing   TaskState = "VECTORIZING"
	TaskStoring       TaskState = "STORING"
	TaskCompleted     TaskState = "COMPLETED"
	TaskFailed        TaskState = "FAILED"
	TaskCancelled     TaskState = "CANCELLED"
)

// transitions lists the legal next states for each state.
// STORING may transition to itself: that is a retry of the write.
var transitions = map[TaskState][]TaskState{
	TaskPending:       {TaskRouting, TaskFailed, TaskCancelled},
	TaskRouting:       {TaskPreprocessing, TaskFailed, TaskCancelled},
	TaskPreprocessing: {TaskVectorizing, TaskFailed, TaskCancelled},
	TaskVectorizing:   {TaskStoring, TaskFailed, TaskCancelled},
	TaskStoring:       {TaskStoring, TaskCompleted, TaskFailed, TaskCancelled},
}

// CanTransition returns true if the state machine allows from -> to.
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for COMPLETED, FAILED and CANCELLED.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// CancelImmediately returns true when cancelling in this state needs no cooperation:
// nothing has been written yet.
func (s TaskState) CancelImmediately() bool {
	return s == TaskPending || s == TaskRouting || s == TaskPreprocessing
}

// IsValid returns true if the state is recognised.
func (s TaskState) IsValid() bool {
	switch s {
	case TaskPending, TaskRouting, TaskPreprocessing, TaskVectorizing,
		TaskStoring, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s TaskState) String() string {
	return string(s)
}

// ProcessingTask is one ingestion attempt for one media file.
// It is owned by the orchestrator; stores only persist snapshots.
type ProcessingTask struct {
	// ID is the unique identifier for the task.
	ID string

	// FileID links to the MediaFile being ingested.
	FileID string

	// URI is the file location at submission time.
	URI string

	// State is the current state machine stage.
	State TaskState

	// Progress is the completed fraction in [0,1].
	Progress float64

	// RetryCount is the number of retries of the current phase.
	RetryCount int

	// Error is the classified failure, set when State is FAILED.
	Error *TaskError

	// TotalSegments is the segment count produced by preprocessing.
	TotalSegments int

	// FailedSegments is the number of segments skipped during vectorisation.
	FailedSegments int

	// CreatedAt is when the task was submitted.
	CreatedAt time.Time

	// StartedAt is when a worker picked the task up.
	StartedAt time.Time

	// CompletedAt is when the task reached a terminal state.
	CompletedAt time.Time
}

// Transition moves the task to the next state, enforcing the state machine.
func (t *ProcessingTask) Transition(to TaskState, now time.Time) error {
	if t.State.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, t.ID, t.State)
	}
	if !CanTransition(t.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.State, to)
	}
	if t.State != to {
		// A phase change resets the per-phase attempt counter.
		t.RetryCount = 0
	}
	t.State = to
	if to.IsTerminal() {
		t.CompletedAt = now
		if to == TaskCompleted {
			t.Progress = 1
		}
	}
	return nil
}

// Fail moves the task to FAILED with a classified error.
func (t *ProcessingTask) Fail(err error, now time.Time) error {
	if transitionErr := t.Transition(TaskFailed, now); transitionErr != nil {
		return transitionErr
	}
	t.Error = NewTaskError(err)
	return nil
}

// IsDone reports whether the task reached a terminal state.
func (t *ProcessingTask) IsDone() bool {
	return t.State.IsTerminal()
}
