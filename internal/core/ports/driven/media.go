package driven

import (
	"context"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// MediaSource resolves a URI to content the decoder can read.
type MediaSource interface {
	// Stat returns size, modification time and content hash without downloading
	// more than needed. Returns domain.ErrNotFound if the URI does not exist.
	Stat(ctx context.Context, uri string) (*domain.MediaStat, error)

	// Fetch makes the content available as a local file.
	// release must be called when the caller is done with the path.
	Fetch(ctx context.Context, uri string) (localPath string, release func(), err error)
}

// MediaDecoder reads decoded media. Failures to parse the container or
// streams must wrap domain.ErrFileCorrupted.
type MediaDecoder interface {
	// Probe reads duration, frame rate and stream layout.
	Probe(ctx context.Context, path string) (*domain.MediaInfo, error)

	// SceneScores returns a scene-difference score per frame, in frame order.
	SceneScores(ctx context.Context, path string) ([]domain.FrameScore, error)

	// ExtractFrame returns the frame shown at atMs encoded as PNG.
	ExtractFrame(ctx context.Context, path string, atMs int64) ([]byte, error)

	// ExtractAudio returns [startMs, endMs) as 16kHz mono WAV.
	ExtractAudio(ctx context.Context, path string, startMs, endMs int64) ([]byte, error)
}
