package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/media/ffmpeg"
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/media/source"
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/milvus"
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/pgvector"
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/services"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// apiKeyEnv names the environment variable holding each cloud provider's key.
var apiKeyEnv = map[domain.EmbeddingProviderKind]string{
	domain.EmbeddingProviderOpenAI: "OPENAI_API_KEY",
	domain.EmbeddingProviderGemini: "GEMINI_API_KEY",
}

// ensureSettings opens the config file. Settings commands need nothing else.
func ensureSettings() error {
	if settingsService != nil {
		return nil
	}
	cs, err := file.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	configStore = cs
	settingsService = services.NewSettingsService(cs)
	return nil
}

// wireServices builds the full service graph from the config file.
func wireServices(ctx context.Context) error {
	logger.Section("Initialising")

	if err := ensureSettings(); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	applyEnvKeys(settings)
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	appSettings = settings
	logger.Debug("Config: %s", configStore.Path())

	var persons driven.PersonStore
	var vectors driven.VectorStore
	switch settings.MetadataStore.Backend {
	case "memory":
		metadataStore = memory.NewMetadataStore()
		persons = memory.NewPersonStore()
	default:
		store, err := sqlite.NewStore(dataDir())
		if err != nil {
			return fmt.Errorf("metadata store: %w", err)
		}
		closers = append(closers, store.Close)
		metadataStore = store.MetadataStore()
		persons = store.PersonStore()
		if settings.VectorStore.Backend == domain.VectorBackendSQLite {
			vectors = store.VectorStore()
		}
		logger.Debug("Database: %s", store.Path())
	}

	if vectors == nil {
		vectors, err = openVectorStore(ctx, settings.VectorStore)
		if err != nil {
			return fmt.Errorf("vector store: %w", err)
		}
		closers = append(closers, vectors.Close)
	}

	embed, err := ai.CreateEmbeddingProvider(ctx, settings)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	closers = append(closers, func() error { embed.Close(); return nil })
	for _, w := range embed.Warnings {
		logger.Warn("%s", w)
	}

	decoder := ffmpeg.NewDecoder(settings.Decoder.FFmpegPath, settings.Decoder.FFprobePath)
	segmenter := services.NewTemporalSegmenter(decoder, settings.Segmenter)
	orchestrator := services.NewIngestionOrchestrator(
		source.NewDefaultResolver(settings.Media.S3Region),
		segmenter,
		decoder,
		embed.Provider,
		vectors,
		metadataStore,
		settings.Orchestrator,
		settings.Retry,
	)
	// Workers outlive individual command contexts; Stop drains them.
	if err := orchestrator.Start(context.Background()); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	closers = append(closers, orchestrator.Stop)
	ingestService = orchestrator

	classifier := services.NewProfileClassifier(settings.Fusion, persons)
	ranker := services.NewWeightedFusionRanker(embed.Provider, vectors, metadataStore, persons, settings.Fusion)
	searchService = services.NewSearchService(classifier, ranker)
	personService = services.NewPersonRegistry(persons, embed.Provider)
	maintenance = services.NewIndexMaintainer(vectors, metadataStore)

	logger.Info("Ready: vectors=%s metadata=%s", settings.VectorStore.Backend, settings.MetadataStore.Backend)
	return nil
}

func openVectorStore(ctx context.Context, cfg domain.VectorStoreSettings) (driven.VectorStore, error) {
	switch cfg.Backend {
	case domain.VectorBackendMemory:
		return memory.NewVectorStore(), nil
	case domain.VectorBackendMilvus:
		return milvus.Connect(ctx, cfg.MilvusAddress)
	case domain.VectorBackendPgvector:
		return pgvector.Connect(ctx, cfg.PgvectorDSN)
	case domain.VectorBackendSQLite:
		// Only reachable with a memory metadata store.
		store, err := sqlite.NewStore(dataDir())
		if err != nil {
			return nil, err
		}
		return &sqliteVectors{VectorStore: store.VectorStore(), store: store}, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", domain.ErrInvalidInput, cfg.Backend)
	}
}

// sqliteVectors closes the database that owns a standalone SQLite vector store.
type sqliteVectors struct {
	driven.VectorStore
	store *sqlite.Store
}

func (s *sqliteVectors) Close() error {
	return s.store.Close()
}

// applyEnvKeys fills missing cloud API keys from the environment.
func applyEnvKeys(settings *domain.AppSettings) {
	for m, es := range settings.Embedding {
		env, ok := apiKeyEnv[es.Provider]
		if !ok || es.APIKey != "" {
			continue
		}
		if key := os.Getenv(env); key != "" {
			es.APIKey = key
			settings.Embedding[m] = es
			logger.Debug("Using %s for %s", env, m)
		}
	}
}

func dataDir() string {
	if configDir == "" {
		return ""
	}
	return filepath.Join(configDir, "data")
}
