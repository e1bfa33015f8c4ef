package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAppSettings(t *testing.T) {
	s := DefaultAppSettings()
	require.NoError(t, s.Validate())

	assert.Equal(t, 4, s.Orchestrator.MaxWorkers)
	assert.Equal(t, 1024, s.Orchestrator.QueueSize)
	assert.Equal(t, 0.3, s.Segmenter.Sensitivity)
	assert.Equal(t, 10*time.Second, s.Segmenter.AudioWindow)
	assert.Equal(t, 3, s.Fusion.CandidateFactor)
	assert.Equal(t, 2*time.Second, s.Fusion.Tolerance)
	assert.Equal(t, VectorBackendSQLite, s.VectorStore.Backend)
}

func TestAppSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppSettings)
	}{
		{"sensitivity too low", func(s *AppSettings) { s.Segmenter.Sensitivity = 0.05 }},
		{"sensitivity too high", func(s *AppSettings) { s.Segmenter.Sensitivity = 0.6 }},
		{"no workers", func(s *AppSettings) { s.Orchestrator.MaxWorkers = 0 }},
		{"ratio above one", func(s *AppSettings) { s.Orchestrator.MaxFailedSegmentRatio = 1.5 }},
		{"no attempts", func(s *AppSettings) { s.Retry.MaxAttempts = 0 }},
		{"bad backend", func(s *AppSettings) { s.VectorStore.Backend = "faiss" }},
		{"missing profile", func(s *AppSettings) { delete(s.Fusion.Profiles, ProfileSmart) }},
		{"profile sum", func(s *AppSettings) {
			s.Fusion.Profiles[ProfileSmart] = WeightProfile{ModalityVisual: 0.9}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultAppSettings()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidInput)
		})
	}
}

func TestFusionSettings_ProfileIsCopy(t *testing.T) {
	f := DefaultAppSettings().Fusion
	p, ok := f.Profile(ProfileSmart)
	require.True(t, ok)
	p[ModalityVisual] = 0
	assert.Equal(t, 0.4, f.Profiles[ProfileSmart][ModalityVisual])

	_, ok = f.Profile("nope")
	assert.False(t, ok)
}

func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	assert.True(t, EmbeddingSettings{Provider: EmbeddingProviderInference}.IsConfigured())
	assert.False(t, EmbeddingSettings{Provider: EmbeddingProviderOpenAI}.IsConfigured())
	assert.True(t, EmbeddingSettings{Provider: EmbeddingProviderGemini, APIKey: "k"}.IsConfigured())
	assert.False(t, EmbeddingSettings{}.IsConfigured())
}
