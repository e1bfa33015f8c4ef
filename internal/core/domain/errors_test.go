package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"unsupported", ErrUnsupportedFileType, ErrorKindUnsupportedFileType},
		{"wrapped corrupted", fmt.Errorf("probe clip.mp4: %w", ErrFileCorrupted), ErrorKindFileCorrupted},
		{"model", ErrModelUnavailable, ErrorKindModelUnavailable},
		{"storage", fmt.Errorf("upsert: %w", ErrStorageUnavailable), ErrorKindStorageUnavailable},
		{"resource", ErrResourceExhausted, ErrorKindResourceExhausted},
		{"cancelled", context.Canceled, ErrorKindCancelled},
		{"deadline", fmt.Errorf("embed: %w", context.DeadlineExceeded), ErrorKindModelUnavailable},
		{"other", errors.New("boom"), ErrorKindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrModelUnavailable))
	assert.True(t, IsTransient(ErrStorageUnavailable))
	assert.True(t, IsTransient(ErrResourceExhausted))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(ErrFileCorrupted))
	assert.False(t, IsTransient(ErrUnsupportedFileType))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("boom")))
}

func TestNewTaskError(t *testing.T) {
	assert.Nil(t, NewTaskError(nil))

	te := NewTaskError(fmt.Errorf("decode: %w", ErrFileCorrupted))
	require.NotNil(t, te)
	assert.Equal(t, ErrorKindFileCorrupted, te.Kind)
	assert.Equal(t, "decode: file corrupted", te.Message)
	assert.Equal(t, "FileCorrupted: decode: file corrupted", te.Error())
}
