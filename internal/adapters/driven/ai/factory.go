// Package ai provides factory functions for creating embedding provider
// adapters from application settings.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/embedding"
	geminiembed "github.com/custodia-labs/sercha-media/internal/adapters/driven/embedding/gemini"
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/embedding/inference"
	openaiembed "github.com/custodia-labs/sercha-media/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// rateBurst lets a file's first few segments start without waiting.
const rateBurst = 4

// pinger is implemented by providers that can check connectivity cheaply.
type pinger interface {
	Ping(ctx context.Context) error
}

// InitResult contains the result of embedding provider initialisation.
type InitResult struct {
	// Provider routes each modality to its configured backend.
	Provider driven.EmbeddingProvider

	// Modalities lists the modalities with a provider.
	Modalities []domain.Modality

	// Warnings are non-fatal issues (unconfigured or unreachable providers).
	Warnings []string
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.Provider != nil {
		_ = r.Provider.Close()
	}
}

// CreateAndValidateEmbeddingProvider builds the provider stack and pings
// every backend that supports it. Unreachable backends are reported as
// warnings; ingestion retries them as ModelUnavailable.
func CreateAndValidateEmbeddingProvider(ctx context.Context, settings *domain.AppSettings) (*InitResult, error) {
	result, providers, err := create(ctx, settings)
	if err != nil {
		return nil, err
	}
	for _, m := range result.Modalities {
		if err := ping(ctx, providers[m]); err != nil {
			msg := fmt.Sprintf("%s embedding provider unreachable: %v", m, err)
			logger.Warn("%s", msg)
			result.Warnings = append(result.Warnings, msg)
		}
	}
	return result, nil
}

// CreateEmbeddingProvider builds the provider stack without connectivity checks.
func CreateEmbeddingProvider(ctx context.Context, settings *domain.AppSettings) (*InitResult, error) {
	result, _, err := create(ctx, settings)
	return result, err
}

func create(
	ctx context.Context, settings *domain.AppSettings,
) (*InitResult, map[domain.Modality]driven.EmbeddingProvider, error) {
	if settings == nil {
		return nil, nil, fmt.Errorf("%w: settings are required", domain.ErrInvalidInput)
	}

	result := &InitResult{}
	raw := make(map[domain.Modality]driven.EmbeddingProvider)
	routed := make(map[domain.Modality]driven.EmbeddingProvider)
	for _, m := range domain.AllModalities() {
		es := settings.Embedding[m]
		if !es.IsConfigured() {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s embedding provider not configured (%s)", m, es.Provider))
			continue
		}
		p, err := CreateModalityProvider(ctx, m, es)
		if err != nil {
			for _, built := range raw {
				_ = built.Close()
			}
			return nil, nil, fmt.Errorf("%s embedding provider: %w", m, err)
		}
		raw[m] = p
		if es.Provider.RequiresAPIKey() {
			p = embedding.WithRateLimit(p, settings.RateLimit, rateBurst)
		}
		routed[m] = p
		result.Modalities = append(result.Modalities, m)
	}
	if len(routed) == 0 {
		return nil, nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrInvalidInput)
	}

	result.Provider = embedding.WithCache(embedding.NewRouter(routed), settings.CacheSize, settings.CacheTTL)
	logger.Debug("Embedding providers: %s", result.Provider.ModelName())
	return result, raw, nil
}

// CreateModalityProvider creates the provider configured for one modality.
// Cloud providers serve audio_speech only.
func CreateModalityProvider(
	ctx context.Context, m domain.Modality, es domain.EmbeddingSettings,
) (driven.EmbeddingProvider, error) {
	if es.Provider.RequiresAPIKey() && m != domain.ModalityAudioSpeech {
		return nil, fmt.Errorf("%w: %s only supports audio_speech", domain.ErrInvalidInput, es.Provider)
	}

	switch es.Provider {
	case domain.EmbeddingProviderInference:
		return inference.NewProvider(inference.Config{BaseURL: es.BaseURL, Model: es.Model})

	case domain.EmbeddingProviderOpenAI:
		return openaiembed.NewProvider(openaiembed.Config{
			APIKey:  es.APIKey,
			BaseURL: es.BaseURL,
			Model:   es.Model,
		})

	case domain.EmbeddingProviderGemini:
		return geminiembed.NewProvider(ctx, geminiembed.Config{APIKey: es.APIKey, Model: es.Model})

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrInvalidInput, es.Provider)
	}
}

// ValidateEmbeddingConfig creates a modality's provider and pings it when
// the backend supports a connectivity check.
func ValidateEmbeddingConfig(ctx context.Context, m domain.Modality, es domain.EmbeddingSettings) error {
	if !es.IsConfigured() {
		return fmt.Errorf("%w: %s embedding provider not configured", domain.ErrInvalidInput, m)
	}
	p, err := CreateModalityProvider(ctx, m, es)
	if err != nil {
		return err
	}
	defer p.Close()
	return ping(ctx, p)
}

func ping(ctx context.Context, p driven.EmbeddingProvider) error {
	pp, ok := p.(pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pp.Ping(ctx); err != nil {
		if errors.Is(err, domain.ErrModelUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
	}
	return nil
}
