package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// Ingestion Errors.

	// ErrUnsupportedFileType indicates the file cannot be routed to any strategy,
	// or a provider cannot handle the requested modality. Permanent.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrFileCorrupted indicates the media could not be probed or decoded. Permanent.
	ErrFileCorrupted = errors.New("file corrupted")

	// ErrModelUnavailable indicates an embedding model could not be reached. Transient.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrStorageUnavailable indicates the vector or metadata store could not be reached. Transient.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrResourceExhausted indicates memory, accelerator or queue pressure. Transient.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrNoFace indicates a keyframe contains no detectable face.
	// Face segments failing with it are skipped, not counted as failures.
	ErrNoFace = errors.New("no face detected")

	// ErrNoSpeech indicates an audio window holds no recognisable speech.
	// Treated like ErrNoFace.
	ErrNoSpeech = errors.New("no speech detected")

	// Task Errors.

	// ErrTaskTerminal indicates the task already reached a terminal state.
	ErrTaskTerminal = errors.New("task already finished")

	// ErrIllegalTransition indicates a state change the task state machine forbids.
	ErrIllegalTransition = errors.New("illegal task state transition")

	// ErrOrchestratorStopped indicates the orchestrator no longer accepts work.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")

	// Query Errors.

	// ErrServiceUnavailable indicates no modality could be queried.
	ErrServiceUnavailable = errors.New("search service unavailable")
)

// ErrorKind classifies an error into the ingestion error taxonomy.
type ErrorKind string

// Known error kinds.
const (
	ErrorKindNone                ErrorKind = ""
	ErrorKindUnsupportedFileType ErrorKind = "UnsupportedFileType"
	ErrorKindFileCorrupted       ErrorKind = "FileCorrupted"
	ErrorKindModelUnavailable    ErrorKind = "ModelUnavailable"
	ErrorKindStorageUnavailable  ErrorKind = "StorageUnavailable"
	ErrorKindResourceExhausted   ErrorKind = "ResourceExhausted"
	ErrorKindCancelled           ErrorKind = "Cancelled"
	ErrorKindInternal            ErrorKind = "Internal"
)

// IsTransient returns true if errors of this kind are worth retrying.
func (k ErrorKind) IsTransient() bool {
	switch k {
	case ErrorKindModelUnavailable, ErrorKindStorageUnavailable, ErrorKindResourceExhausted:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (k ErrorKind) String() string {
	return string(k)
}

// Classify maps an error onto the taxonomy.
// Deadline expiry of a single external call counts as the model being unavailable.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrUnsupportedFileType):
		return ErrorKindUnsupportedFileType
	case errors.Is(err, ErrFileCorrupted):
		return ErrorKindFileCorrupted
	case errors.Is(err, ErrModelUnavailable):
		return ErrorKindModelUnavailable
	case errors.Is(err, ErrStorageUnavailable):
		return ErrorKindStorageUnavailable
	case errors.Is(err, ErrResourceExhausted):
		return ErrorKindResourceExhausted
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindModelUnavailable
	default:
		return ErrorKindInternal
	}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Classify(err).IsTransient()
}

// TaskError is the classified failure recorded on a ProcessingTask.
type TaskError struct {
	// Kind is the taxonomy bucket.
	Kind ErrorKind

	// Message is the human-readable cause.
	Message string
}

// NewTaskError builds a TaskError from an error.
func NewTaskError(err error) *TaskError {
	if err == nil {
		return nil
	}
	return &TaskError{Kind: Classify(err), Message: err.Error()}
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
