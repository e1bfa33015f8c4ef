// Package gemini provides a speech embedding adapter using the Gemini API.
// Audio is transcribed by a generative model from inline audio data and the
// transcript is embedded with a Gemini embedding model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.EmbeddingProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultModel              = "gemini-embedding-001"
	DefaultTranscriptionModel = "gemini-2.5-flash"

	transcribePrompt = "Transcribe the speech in this audio verbatim. " +
		"Reply with the transcript only. Reply with nothing if there is no speech."
)

// Config holds configuration for the Gemini provider.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the embedding model (default: gemini-embedding-001).
	Model string

	// TranscriptionModel is the generative model used for speech-to-text.
	TranscriptionModel string
}

// Models is the subset of genai.Models the provider uses.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Provider embeds speech through the Gemini API.
type Provider struct {
	models     Models
	model      string
	transcribe string
}

// NewProvider creates a new Gemini provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini: API key is required", domain.ErrInvalidInput)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", domain.ErrModelUnavailable, err)
	}
	return newWithModels(client.Models, cfg), nil
}

func newWithModels(m Models, cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = DefaultTranscriptionModel
	}
	return &Provider{models: m, model: cfg.Model, transcribe: cfg.TranscriptionModel}
}

// Embed transcribes audio content and embeds the transcript. Text content
// is embedded as a retrieval query.
func (p *Provider) Embed(ctx context.Context, content driven.Content, modality domain.Modality) (*driven.Embedding, error) {
	if modality != domain.ModalityAudioSpeech {
		return nil, fmt.Errorf("%w: gemini provider cannot embed %s", domain.ErrUnsupportedFileType, modality)
	}

	text, taskType, transcript := content.Text, "RETRIEVAL_QUERY", ""
	if !content.IsText() {
		resp, err := p.models.GenerateContent(ctx, p.transcribe, []*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: audioMIME(content.MIMEType), Data: content.Data}},
				{Text: transcribePrompt},
			},
		}}, nil)
		if err != nil {
			return nil, mapError("transcribe", err)
		}
		transcript = strings.TrimSpace(resp.Text())
		text, taskType = transcript, "RETRIEVAL_DOCUMENT"
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrNoSpeech
	}

	resp, err := p.models.EmbedContent(ctx, p.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.EmbedContentConfig{TaskType: taskType})
	if err != nil {
		return nil, mapError("embed", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: gemini: no embedding values returned", domain.ErrModelUnavailable)
	}
	return &driven.Embedding{Vector: resp.Embeddings[0].Values, Transcript: transcript}, nil
}

// ModelName returns the name of the embedding model being used.
func (p *Provider) ModelName() string {
	return p.model
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

func audioMIME(mime string) string {
	if strings.HasPrefix(mime, "audio/") && mime != "audio/*" {
		return mime
	}
	return "audio/wav"
}

func mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: gemini %s: %w", domain.ErrResourceExhausted, op, err)
		case http.StatusBadRequest:
			if op == "transcribe" {
				return fmt.Errorf("%w: gemini %s: %w", domain.ErrFileCorrupted, op, err)
			}
		}
	}
	return fmt.Errorf("%w: gemini %s: %w", domain.ErrModelUnavailable, op, err)
}
