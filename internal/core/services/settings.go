package services

import (
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyMaxWorkers         = "orchestrator.max_workers"
	keyQueueSize          = "orchestrator.queue_size"
	keySegmentConcurrency = "orchestrator.segment_concurrency"
	keyMaxFailedRatio     = "orchestrator.max_failed_segment_ratio"
	keyEmbedTimeout       = "orchestrator.embed_timeout"
	keyStoreTimeout       = "orchestrator.store_timeout"

	keyRetryMaxAttempts = "retry.max_attempts"
	keyRetryBaseDelay   = "retry.base_delay"
	keyRetryMaxDelay    = "retry.max_delay"
	keyRetryMultiplier  = "retry.multiplier"

	keySensitivity = "segmenter.sensitivity"
	keyMinDuration = "segmenter.min_duration"
	keyMaxSegments = "segmenter.max_segments"
	keyAudioWindow = "segmenter.audio_window"
	keySpeech      = "segmenter.speech"
	keyFaces       = "segmenter.faces"

	keyCandidateFactor = "fusion.candidate_factor"
	keyTolerance       = "fusion.tolerance"
	keyFaceBoost       = "fusion.face_boost"

	keyEmbedRateLimit = "embedding.rate_limit"
	keyEmbedCacheSize = "embedding.cache_size"
	keyEmbedCacheTTL  = "embedding.cache_ttl"

	keyVectorBackend   = "vector_store.backend"
	keyMilvusAddress   = "vector_store.milvus.address"
	keyPgvectorDSN     = "vector_store.pgvector.dsn"
	keyMetadataBackend = "metadata_store.backend"
	keyS3Region        = "media.s3.region"
	keyWatchPaths      = "watch.paths"
	keyRescanCron      = "watch.rescan_cron"
	keyFFmpegPath      = "decoder.ffmpeg_path"
	keyFFprobePath     = "decoder.ffprobe_path"
)

func profileKey(name domain.ProfileName, m domain.Modality) string {
	return "profiles." + string(name) + "." + string(m)
}

func embeddingKey(m domain.Modality, field string) string {
	return "embedding." + string(m) + "." + field
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings, filling unset keys with defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Orchestrator: domain.OrchestratorSettings{
			MaxWorkers:            s.getInt(keyMaxWorkers, d.Orchestrator.MaxWorkers),
			QueueSize:             s.getInt(keyQueueSize, d.Orchestrator.QueueSize),
			SegmentConcurrency:    s.getInt(keySegmentConcurrency, d.Orchestrator.SegmentConcurrency),
			MaxFailedSegmentRatio: s.getFloat(keyMaxFailedRatio, d.Orchestrator.MaxFailedSegmentRatio),
			EmbedTimeout:          s.getDuration(keyEmbedTimeout, d.Orchestrator.EmbedTimeout),
			StoreTimeout:          s.getDuration(keyStoreTimeout, d.Orchestrator.StoreTimeout),
		},
		Retry: domain.RetryPolicy{
			MaxAttempts: s.getInt(keyRetryMaxAttempts, d.Retry.MaxAttempts),
			BaseDelay:   s.getDuration(keyRetryBaseDelay, d.Retry.BaseDelay),
			MaxDelay:    s.getDuration(keyRetryMaxDelay, d.Retry.MaxDelay),
			Multiplier:  s.getFloat(keyRetryMultiplier, d.Retry.Multiplier),
		},
		Segmenter: domain.SegmenterSettings{
			Sensitivity: s.getFloat(keySensitivity, d.Segmenter.Sensitivity),
			MinDuration: s.getDuration(keyMinDuration, d.Segmenter.MinDuration),
			MaxSegments: s.getInt(keyMaxSegments, d.Segmenter.MaxSegments),
			AudioWindow: s.getDuration(keyAudioWindow, d.Segmenter.AudioWindow),
			Speech:      s.getBool(keySpeech, d.Segmenter.Speech),
			Faces:       s.getBool(keyFaces, d.Segmenter.Faces),
		},
		Fusion: domain.FusionSettings{
			CandidateFactor: s.getInt(keyCandidateFactor, d.Fusion.CandidateFactor),
			Tolerance:       s.getDuration(keyTolerance, d.Fusion.Tolerance),
			FaceBoost:       s.getFloat(keyFaceBoost, d.Fusion.FaceBoost),
			Profiles:        make(map[domain.ProfileName]domain.WeightProfile),
		},
		Embedding: make(map[domain.Modality]domain.EmbeddingSettings),
		RateLimit: s.getFloat(keyEmbedRateLimit, d.RateLimit),
		CacheSize: s.getInt(keyEmbedCacheSize, d.CacheSize),
		CacheTTL:  s.getDuration(keyEmbedCacheTTL, d.CacheTTL),
		VectorStore: domain.VectorStoreSettings{
			Backend:       s.getVectorBackend(d.VectorStore.Backend),
			MilvusAddress: s.getString(keyMilvusAddress, d.VectorStore.MilvusAddress),
			PgvectorDSN:   s.configStore.GetString(keyPgvectorDSN),
		},
		MetadataStore: domain.MetadataStoreSettings{
			Backend: s.getString(keyMetadataBackend, d.MetadataStore.Backend),
		},
		Media: domain.MediaSettings{
			S3Region: s.configStore.GetString(keyS3Region),
		},
		Watch: domain.WatchSettings{
			Paths:      s.configStore.GetStringSlice(keyWatchPaths),
			RescanCron: s.configStore.GetString(keyRescanCron),
		},
		Decoder: domain.DecoderSettings{
			FFmpegPath:  s.getString(keyFFmpegPath, d.Decoder.FFmpegPath),
			FFprobePath: s.getString(keyFFprobePath, d.Decoder.FFprobePath),
		},
	}

	for _, name := range domain.AllProfileNames() {
		defaults := d.Fusion.Profiles[name]
		profile := make(domain.WeightProfile)
		for _, m := range domain.AllModalities() {
			if w := s.getFloat(profileKey(name, m), defaults[m]); w > 0 {
				profile[m] = w
			}
		}
		settings.Fusion.Profiles[name] = profile
	}

	for _, m := range domain.AllModalities() {
		def := d.Embedding[m]
		provider := s.getProvider(embeddingKey(m, "provider"), def.Provider)
		if provider != def.Provider {
			// Cloud providers bring their own model and endpoint.
			def.Model, def.BaseURL = domain.DefaultEmbeddingModels()[provider], ""
		}
		settings.Embedding[m] = domain.EmbeddingSettings{
			Provider: provider,
			Model:    s.getString(embeddingKey(m, "model"), def.Model),
			BaseURL:  s.getString(embeddingKey(m, "base_url"), def.BaseURL),
			APIKey:   s.configStore.GetString(embeddingKey(m, "api_key")),
		}
	}

	return settings, nil
}

type configValue struct {
	key   string
	value any
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []configValue{
		{keyMaxWorkers, settings.Orchestrator.MaxWorkers},
		{keyQueueSize, settings.Orchestrator.QueueSize},
		{keySegmentConcurrency, settings.Orchestrator.SegmentConcurrency},
		{keyMaxFailedRatio, settings.Orchestrator.MaxFailedSegmentRatio},
		{keyEmbedTimeout, settings.Orchestrator.EmbedTimeout.String()},
		{keyStoreTimeout, settings.Orchestrator.StoreTimeout.String()},
		{keyRetryMaxAttempts, settings.Retry.MaxAttempts},
		{keyRetryBaseDelay, settings.Retry.BaseDelay.String()},
		{keyRetryMaxDelay, settings.Retry.MaxDelay.String()},
		{keyRetryMultiplier, settings.Retry.Multiplier},
		{keySensitivity, settings.Segmenter.Sensitivity},
		{keyMinDuration, settings.Segmenter.MinDuration.String()},
		{keyMaxSegments, settings.Segmenter.MaxSegments},
		{keyAudioWindow, settings.Segmenter.AudioWindow.String()},
		{keySpeech, settings.Segmenter.Speech},
		{keyFaces, settings.Segmenter.Faces},
		{keyCandidateFactor, settings.Fusion.CandidateFactor},
		{keyTolerance, settings.Fusion.Tolerance.String()},
		{keyFaceBoost, settings.Fusion.FaceBoost},
		{keyEmbedRateLimit, settings.RateLimit},
		{keyEmbedCacheSize, settings.CacheSize},
		{keyEmbedCacheTTL, settings.CacheTTL.String()},
		{keyVectorBackend, string(settings.VectorStore.Backend)},
		{keyMilvusAddress, settings.VectorStore.MilvusAddress},
		{keyMetadataBackend, settings.MetadataStore.Backend},
		{keyFFmpegPath, settings.Decoder.FFmpegPath},
		{keyFFprobePath, settings.Decoder.FFprobePath},
	}
	if settings.VectorStore.PgvectorDSN != "" {
		values = append(values, configValue{keyPgvectorDSN, settings.VectorStore.PgvectorDSN})
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if settings.Media.S3Region != "" {
		if err := s.configStore.Set(keyS3Region, settings.Media.S3Region); err != nil {
			return fmt.Errorf("save %s: %w", keyS3Region, err)
		}
	}
	if len(settings.Watch.Paths) > 0 {
		if err := s.configStore.Set(keyWatchPaths, settings.Watch.Paths); err != nil {
			return fmt.Errorf("save %s: %w", keyWatchPaths, err)
		}
	}
	if settings.Watch.RescanCron != "" {
		if err := s.configStore.Set(keyRescanCron, settings.Watch.RescanCron); err != nil {
			return fmt.Errorf("save %s: %w", keyRescanCron, err)
		}
	}

	for name, profile := range settings.Fusion.Profiles {
		for _, m := range domain.AllModalities() {
			if err := s.configStore.Set(profileKey(name, m), profile[m]); err != nil {
				return fmt.Errorf("save profile %s: %w", name, err)
			}
		}
	}

	for m, e := range settings.Embedding {
		if err := s.configStore.Set(embeddingKey(m, "provider"), e.Provider.String()); err != nil {
			return fmt.Errorf("save %s embedding provider: %w", m, err)
		}
		if err := s.configStore.Set(embeddingKey(m, "model"), e.Model); err != nil {
			return fmt.Errorf("save %s embedding model: %w", m, err)
		}
		if err := s.configStore.Set(embeddingKey(m, "base_url"), e.BaseURL); err != nil {
			return fmt.Errorf("save %s embedding base_url: %w", m, err)
		}
		if e.APIKey != "" {
			if err := s.configStore.Set(embeddingKey(m, "api_key"), e.APIKey); err != nil {
				return fmt.Errorf("save %s embedding api_key: %w", m, err)
			}
		}
	}

	return nil
}

// Validate checks the current settings are consistent and every modality
// has a usable provider.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	for _, m := range domain.AllModalities() {
		e := settings.Embedding[m]
		if !e.IsConfigured() {
			return fmt.Errorf("%w: %s embedding provider %q is not configured",
				domain.ErrInvalidInput, m, e.Provider.Description())
		}
	}
	switch settings.VectorStore.Backend {
	case domain.VectorBackendPgvector:
		if settings.VectorStore.PgvectorDSN == "" {
			return fmt.Errorf("%w: %s is required for pgvector", domain.ErrInvalidInput, keyPgvectorDSN)
		}
	case domain.VectorBackendMilvus:
		if settings.VectorStore.MilvusAddress == "" {
			return fmt.Errorf("%w: %s is required for milvus", domain.ErrInvalidInput, keyMilvusAddress)
		}
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getProvider(key string, defaultVal domain.EmbeddingProviderKind) domain.EmbeddingProviderKind {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.EmbeddingProviderKind(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getVectorBackend(defaultVal domain.VectorBackend) domain.VectorBackend {
	val := s.configStore.GetString(keyVectorBackend)
	if val == "" {
		return defaultVal
	}
	backend := domain.VectorBackend(val)
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}
