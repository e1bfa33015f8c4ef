package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// ProfileName identifies an entry in the weight profile table.
type ProfileName string

// Weight profiles.
const (
	ProfileSmart          ProfileName = "smart"
	ProfileVisualDominant ProfileName = "visual_dominant"
	ProfileAudioDominant  ProfileName = "audio_dominant"
	ProfileSpeechDominant ProfileName = "speech_dominant"
)

// AllProfileNames returns every profile in the table.
func AllProfileNames() []ProfileName {
	return []ProfileName{ProfileSmart, ProfileVisualDominant, ProfileAudioDominant, ProfileSpeechDominant}
}

// DefaultProfiles returns the built-in weight profile table.
func DefaultProfiles() map[ProfileName]WeightProfile {
	return map[ProfileName]WeightProfile{
		ProfileSmart: {
			ModalityVisual: 0.4, ModalityAudioMusic: 0.3, ModalityAudioSpeech: 0.3,
		},
		ProfileVisualDominant: {
			ModalityVisual: 0.7, ModalityAudioMusic: 0.15, ModalityAudioSpeech: 0.15,
		},
		ProfileAudioDominant: {
			ModalityVisual: 0.15, ModalityAudioMusic: 0.6, ModalityAudioSpeech: 0.25,
		},
		ProfileSpeechDominant: {
			ModalityVisual: 0.15, ModalityAudioMusic: 0.15, ModalityAudioSpeech: 0.7,
		},
	}
}

// EmbeddingProviderKind identifies an embedding backend.
type EmbeddingProviderKind string

// Available embedding providers.
const (
	// EmbeddingProviderInference is a self-hosted HTTP encoder (CLIP, CLAP, face).
	EmbeddingProviderInference EmbeddingProviderKind = "inference"

	// EmbeddingProviderOpenAI transcribes with Whisper and embeds the transcript.
	EmbeddingProviderOpenAI EmbeddingProviderKind = "openai"

	// EmbeddingProviderGemini transcribes and embeds through the Gemini API.
	EmbeddingProviderGemini EmbeddingProviderKind = "gemini"
)

// AllEmbeddingProviders returns the providers in menu order.
func AllEmbeddingProviders() []EmbeddingProviderKind {
	return []EmbeddingProviderKind{EmbeddingProviderInference, EmbeddingProviderOpenAI, EmbeddingProviderGemini}
}

// IsValid returns true if the provider is recognised.
func (p EmbeddingProviderKind) IsValid() bool {
	switch p {
	case EmbeddingProviderInference, EmbeddingProviderOpenAI, EmbeddingProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProviderKind) RequiresAPIKey() bool {
	return p == EmbeddingProviderOpenAI || p == EmbeddingProviderGemini
}

// String returns the string representation.
func (p EmbeddingProviderKind) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProviderKind) Description() string {
	switch p {
	case EmbeddingProviderInference:
		return "Inference server (local)"
	case EmbeddingProviderOpenAI:
		return "OpenAI (cloud)"
	case EmbeddingProviderGemini:
		return "Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings configures the provider of one modality.
type EmbeddingSettings struct {
	// Provider is the embedding backend.
	Provider EmbeddingProviderKind

	// Model is the model name passed to the provider.
	Model string

	// BaseURL is the API endpoint (for the inference server).
	BaseURL string

	// APIKey is the API key (for cloud providers).
	APIKey string
}

// IsConfigured returns true if the provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// OrchestratorSettings bounds ingestion concurrency and timeouts.
type OrchestratorSettings struct {
	MaxWorkers            int
	QueueSize             int
	SegmentConcurrency    int
	MaxFailedSegmentRatio float64
	EmbedTimeout          time.Duration
	StoreTimeout          time.Duration
}

// SegmenterSettings tunes temporal segmentation.
type SegmenterSettings struct {
	// Sensitivity is the scene-change threshold, valid in [0.1, 0.5].
	Sensitivity float64

	// MinDuration drops shorter visual segments.
	MinDuration time.Duration

	// MaxSegments caps visual segments per file.
	MaxSegments int

	// AudioWindow is the length of audio windows.
	AudioWindow time.Duration

	// Speech enables audio_speech segments.
	Speech bool

	// Faces enables face segments.
	Faces bool
}

// FusionSettings tunes classification and ranking.
type FusionSettings struct {
	// CandidateFactor multiplies the limit to get per-modality k.
	CandidateFactor int

	// Tolerance widens time filters when TimeAccurate is set.
	Tolerance time.Duration

	// FaceBoost is the face weight given to queries naming a known person.
	FaceBoost float64

	// Profiles is the weight profile table.
	Profiles map[ProfileName]WeightProfile
}

// Profile returns a copy of the named profile.
func (f FusionSettings) Profile(name ProfileName) (WeightProfile, bool) {
	p, ok := f.Profiles[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// VectorBackend selects the vector store adapter.
type VectorBackend string

// Vector store backends.
const (
	VectorBackendSQLite   VectorBackend = "sqlite"
	VectorBackendMemory   VectorBackend = "memory"
	VectorBackendMilvus   VectorBackend = "milvus"
	VectorBackendPgvector VectorBackend = "pgvector"
)

// IsValid returns true if the backend is recognised.
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendSQLite, VectorBackendMemory, VectorBackendMilvus, VectorBackendPgvector:
		return true
	default:
		return false
	}
}

// VectorStoreSettings selects and configures the vector store.
type VectorStoreSettings struct {
	Backend       VectorBackend
	MilvusAddress string
	PgvectorDSN   string
}

// MetadataStoreSettings selects the metadata store ("sqlite" or "memory").
type MetadataStoreSettings struct {
	Backend string
}

// MediaSettings configures media sources.
type MediaSettings struct {
	// S3Region is the region used for s3:// URIs.
	S3Region string
}

// WatchSettings configures the file watcher and periodic rescan.
type WatchSettings struct {
	Paths []string

	// RescanCron is a five-field cron expression. Empty disables rescans.
	RescanCron string
}

// DecoderSettings locates the ffmpeg binaries.
type DecoderSettings struct {
	FFmpegPath  string
	FFprobePath string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Orchestrator  OrchestratorSettings
	Retry         RetryPolicy
	Segmenter     SegmenterSettings
	Fusion        FusionSettings
	Embedding     map[Modality]EmbeddingSettings
	RateLimit     float64
	CacheSize     int
	CacheTTL      time.Duration
	VectorStore   VectorStoreSettings
	MetadataStore MetadataStoreSettings
	Media         MediaSettings
	Watch         WatchSettings
	Decoder       DecoderSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// Embedding providers point at a local inference server; speech needs an API key to use a cloud provider.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Orchestrator: OrchestratorSettings{
			MaxWorkers:            4,
			QueueSize:             1024,
			SegmentConcurrency:    4,
			MaxFailedSegmentRatio: 0.5,
			EmbedTimeout:          30 * time.Second,
			StoreTimeout:          15 * time.Second,
		},
		Retry: DefaultRetryPolicy(),
		Segmenter: SegmenterSettings{
			Sensitivity: 0.3,
			MinDuration: time.Second,
			MaxSegments: 100,
			AudioWindow: 10 * time.Second,
			Speech:      true,
			Faces:       false,
		},
		Fusion: FusionSettings{
			CandidateFactor: 3,
			Tolerance:       MaxReportedPrecision,
			FaceBoost:       0.5,
			Profiles:        DefaultProfiles(),
		},
		Embedding: map[Modality]EmbeddingSettings{
			ModalityVisual:      {Provider: EmbeddingProviderInference, Model: "clip-vit-b-32", BaseURL: "http://localhost:8090"},
			ModalityAudioMusic:  {Provider: EmbeddingProviderInference, Model: "clap-htsat", BaseURL: "http://localhost:8090"},
			ModalityAudioSpeech: {Provider: EmbeddingProviderInference, Model: "whisper-minilm", BaseURL: "http://localhost:8090"},
			ModalityFace:        {Provider: EmbeddingProviderInference, Model: "arcface", BaseURL: "http://localhost:8090"},
		},
		RateLimit: 10,
		CacheSize: 256,
		CacheTTL:  10 * time.Minute,
		VectorStore: VectorStoreSettings{
			Backend:       VectorBackendSQLite,
			MilvusAddress: "localhost:19530",
		},
		MetadataStore: MetadataStoreSettings{Backend: "sqlite"},
		Watch:         WatchSettings{},
		Decoder:       DecoderSettings{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"},
	}
}

// DefaultEmbeddingModels returns default models per cloud provider and modality.
func DefaultEmbeddingModels() map[EmbeddingProviderKind]string {
	return map[EmbeddingProviderKind]string{
		EmbeddingProviderOpenAI: "text-embedding-3-small",
		EmbeddingProviderGemini: "gemini-embedding-001",
	}
}

// Validate checks the settings are internally consistent.
func (s AppSettings) Validate() error {
	o := s.Orchestrator
	if o.MaxWorkers < 1 || o.QueueSize < 1 || o.SegmentConcurrency < 1 {
		return fmt.Errorf("%w: orchestrator sizes must be positive", ErrInvalidInput)
	}
	if o.MaxFailedSegmentRatio < 0 || o.MaxFailedSegmentRatio > 1 {
		return fmt.Errorf("%w: max_failed_segment_ratio %v", ErrInvalidInput, o.MaxFailedSegmentRatio)
	}
	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts %d", ErrInvalidInput, s.Retry.MaxAttempts)
	}
	g := s.Segmenter
	if g.Sensitivity < 0.1 || g.Sensitivity > 0.5 {
		return fmt.Errorf("%w: segmenter.sensitivity %v not in [0.1, 0.5]", ErrInvalidInput, g.Sensitivity)
	}
	if g.MaxSegments < 1 || g.AudioWindow <= 0 || g.MinDuration < 0 {
		return fmt.Errorf("%w: segmenter bounds", ErrInvalidInput)
	}
	f := s.Fusion
	if f.CandidateFactor < 1 {
		return fmt.Errorf("%w: fusion.candidate_factor %d", ErrInvalidInput, f.CandidateFactor)
	}
	if f.FaceBoost < 0 || f.FaceBoost > 1 {
		return fmt.Errorf("%w: fusion.face_boost %v", ErrInvalidInput, f.FaceBoost)
	}
	for _, name := range AllProfileNames() {
		p, ok := f.Profiles[name]
		if !ok {
			return fmt.Errorf("%w: missing weight profile %s", ErrInvalidInput, name)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
	}
	if !s.VectorStore.Backend.IsValid() {
		return fmt.Errorf("%w: vector_store.backend %q", ErrInvalidInput, s.VectorStore.Backend)
	}
	return nil
}
