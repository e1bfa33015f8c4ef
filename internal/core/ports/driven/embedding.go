package driven

import (
	"context"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// Content is the input to an embedding call.
// Exactly one of Text or Data is normally set; speech providers receive Data
// and produce the transcript themselves.
type Content struct {
	// Text is a query string or a transcript.
	Text string

	// Data is an encoded image (PNG) or audio clip (WAV).
	Data []byte

	// MIMEType describes Data.
	MIMEType string
}

// IsText returns true if the content carries text only.
func (c Content) IsText() bool {
	return len(c.Data) == 0
}

// Embedding is the output of an embedding call.
type Embedding struct {
	// Vector is the embedding.
	Vector []float32

	// Transcript is the recognised speech for audio_speech content.
	Transcript string
}

// EmbeddingProvider encodes content into a modality's vector space.
//
// Errors must wrap the domain taxonomy: domain.ErrModelUnavailable for
// unreachable models, domain.ErrResourceExhausted for rate or memory pressure,
// domain.ErrNoFace when a face encoder finds nothing, domain.ErrNoSpeech when
// a transcript comes back empty.
//
// Implementations may include:
//   - Self-hosted inference servers (CLIP, CLAP, face encoders)
//   - OpenAI (Whisper transcription + text embeddings)
//   - Gemini (transcription + text embeddings)
type EmbeddingProvider interface {
	// Embed encodes content for the given modality.
	Embed(ctx context.Context, content Content, modality domain.Modality) (*Embedding, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}
