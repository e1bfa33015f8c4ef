// Package openai provides a speech embedding adapter using the OpenAI API:
// audio is transcribed with Whisper and the transcript is embedded with a
// text embedding model, so speech queries compare against what was said.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.EmbeddingProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultModel              = string(openai.SmallEmbedding3)
	DefaultTranscriptionModel = openai.Whisper1
)

// Config holds configuration for the OpenAI provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API base URL for Azure or compatible APIs.
	BaseURL string

	// Model is the text embedding model (default: text-embedding-3-small).
	Model string

	// TranscriptionModel is the speech-to-text model (default: whisper-1).
	TranscriptionModel string
}

// Client is the subset of *openai.Client the provider uses.
type Client interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Provider embeds speech through the OpenAI API.
type Provider struct {
	client     Client
	model      string
	transcribe string
}

// NewProvider creates a new OpenAI provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai: API key is required", domain.ErrInvalidInput)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newWithClient(openai.NewClientWithConfig(clientCfg), cfg), nil
}

func newWithClient(c Client, cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = DefaultTranscriptionModel
	}
	return &Provider{client: c, model: cfg.Model, transcribe: cfg.TranscriptionModel}
}

// Embed transcribes audio content and embeds the transcript. Text content
// is embedded directly.
func (p *Provider) Embed(ctx context.Context, content driven.Content, modality domain.Modality) (*driven.Embedding, error) {
	if modality != domain.ModalityAudioSpeech {
		return nil, fmt.Errorf("%w: openai provider cannot embed %s", domain.ErrUnsupportedFileType, modality)
	}

	text := content.Text
	transcript := ""
	if !content.IsText() {
		resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    p.transcribe,
			FilePath: "segment" + extensionFor(content.MIMEType),
			Reader:   bytes.NewReader(content.Data),
		})
		if err != nil {
			return nil, mapError("transcribe", err)
		}
		transcript = strings.TrimSpace(resp.Text)
		text = transcript
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrNoSpeech
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, mapError("embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: openai: no embedding returned", domain.ErrModelUnavailable)
	}
	return &driven.Embedding{Vector: resp.Data[0].Embedding, Transcript: transcript}, nil
}

// ModelName returns the name of the embedding model being used.
func (p *Provider) ModelName() string {
	return p.model
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

func extensionFor(mime string) string {
	switch mime {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/flac":
		return ".flac"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".wav"
	}
}

// mapError maps API failures onto the domain taxonomy.
func mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: openai %s: %w", domain.ErrResourceExhausted, op, err)
	case status == http.StatusBadRequest && op == "transcribe":
		return fmt.Errorf("%w: openai %s: %w", domain.ErrFileCorrupted, op, err)
	default:
		return fmt.Errorf("%w: openai %s: %w", domain.ErrModelUnavailable, op, err)
	}
}
