// Package inference provides an embedding adapter for a self-hosted encoder
// server that serves CLIP, CLAP, speech and face models over HTTP.
//
// The server exposes:
//
//	POST /v1/embed   {"model", "modality", "text" | "data"+"mime_type"}
//	                 -> {"embedding": [...], "transcript": "..."}
//	GET  /health     -> 200 when models are loaded
//
// Error bodies carry {"error": {"code", "message"}}; the code "no_face"
// and "no_speech" map to the matching domain sentinels.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.EmbeddingProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:8090"
	DefaultTimeout = 60 * time.Second
)

// Config holds configuration for the inference provider.
type Config struct {
	// BaseURL is the server base URL (default: http://localhost:8090).
	BaseURL string

	// Model is the model name the server should use.
	Model string

	// Timeout is the HTTP request timeout (default: 60s).
	Timeout time.Duration
}

// Provider generates embeddings by calling the inference server.
type Provider struct {
	client  *http.Client
	baseURL string
	model   string
}

type embedRequest struct {
	Model    string `json:"model"`
	Modality string `json:"modality"`
	Text     string `json:"text,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

type embedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Transcript string    `json:"transcript,omitempty"`
	Error      *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewProvider creates a new inference provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: inference: model is required", domain.ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Provider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}, nil
}

// Embed encodes content into the modality's space.
func (p *Provider) Embed(ctx context.Context, content driven.Content, modality domain.Modality) (*driven.Embedding, error) {
	reqBody := embedRequest{
		Model:    p.model,
		Modality: string(modality),
		Text:     content.Text,
		Data:     content.Data,
		MIMEType: content.MIMEType,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: inference: read response: %w", domain.ErrModelUnavailable, err)
	}

	var out embedResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("%w: inference: decode response: %w", domain.ErrModelUnavailable, err)
		}
	}
	if resp.StatusCode != http.StatusOK || out.Error != nil {
		return nil, statusError(resp.StatusCode, out.Error, body)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: inference: empty embedding from %s", domain.ErrModelUnavailable, p.model)
	}
	return &driven.Embedding{Vector: out.Embedding, Transcript: out.Transcript}, nil
}

// Ping checks the server is up and its models are loaded.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("inference: create ping request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: inference: health returned status %d", domain.ErrModelUnavailable, resp.StatusCode)
	}
	return nil
}

// ModelName returns the name of the model being used.
func (p *Provider) ModelName() string {
	return p.model
}

// Close releases resources.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: inference: %w", domain.ErrModelUnavailable, context.DeadlineExceeded)
	}
	return fmt.Errorf("%w: inference: %w", domain.ErrModelUnavailable, err)
}

// statusError maps an error response onto the domain taxonomy.
func statusError(status int, apiErr *apiError, body []byte) error {
	msg := strings.TrimSpace(string(body))
	code := ""
	if apiErr != nil {
		code, msg = apiErr.Code, apiErr.Message
	}

	switch {
	case code == "no_face":
		return domain.ErrNoFace
	case code == "no_speech":
		return domain.ErrNoSpeech
	case code == "unsupported_modality":
		return fmt.Errorf("%w: inference: %s", domain.ErrUnsupportedFileType, msg)
	case status == http.StatusTooManyRequests, status == http.StatusInsufficientStorage, code == "out_of_memory":
		return fmt.Errorf("%w: inference: %s", domain.ErrResourceExhausted, msg)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity,
		status == http.StatusUnsupportedMediaType:
		return fmt.Errorf("%w: inference: %s", domain.ErrFileCorrupted, msg)
	default:
		return fmt.Errorf("%w: inference: status %d: %s", domain.ErrModelUnavailable, status, msg)
	}
}
