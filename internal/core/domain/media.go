package domain

import (
	"path"
	"strings"
	"time"
)

// MediaKind is the declared modality of a media file.
// It is a closed set: anything that is not an image, video or audio file
// is MediaKindUnknown and can never be ingested.
type MediaKind string

// Media kinds.
const (
	MediaKindImage   MediaKind = "image"
	MediaKindVideo   MediaKind = "video"
	MediaKindAudio   MediaKind = "audio"
	MediaKindUnknown MediaKind = "unknown"
)

// extensionKinds maps lower-case extensions (without dot) to their kind.
var extensionKinds = map[string]MediaKind{
	"jpg":  MediaKindImage,
	"jpeg": MediaKindImage,
	"png":  MediaKindImage,
	"webp": MediaKindImage,
	"bmp":  MediaKindImage,
	"gif":  MediaKindImage,
	"mp4":  MediaKindVideo,
	"mov":  MediaKindVideo,
	"mkv":  MediaKindVideo,
	"avi":  MediaKindVideo,
	"webm": MediaKindVideo,
	"m4v":  MediaKindVideo,
	"mp3":  MediaKindAudio,
	"wav":  MediaKindAudio,
	"flac": MediaKindAudio,
	"m4a":  MediaKindAudio,
	"ogg":  MediaKindAudio,
	"aac":  MediaKindAudio,
}

// KindFromURI derives the media kind from the URI's extension.
// Works for local paths and s3:// URIs alike.
func KindFromURI(uri string) MediaKind {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(uri)), ".")
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}
	return MediaKindUnknown
}

// IsSupportedURI returns true if the URI routes to a known media kind.
func IsSupportedURI(uri string) bool {
	return KindFromURI(uri) != MediaKindUnknown
}

// IsValid returns true if the kind can be ingested.
func (k MediaKind) IsValid() bool {
	switch k {
	case MediaKindImage, MediaKindVideo, MediaKindAudio:
		return true
	default:
		return false
	}
}

// IsTimeBased returns true if files of this kind have a duration.
func (k MediaKind) IsTimeBased() bool {
	return k == MediaKindVideo || k == MediaKindAudio
}

// String returns the string representation.
func (k MediaKind) String() string {
	return string(k)
}

// MediaFile represents a media file known to the index.
type MediaFile struct {
	// ID is the stable identifier, derived from the URI.
	ID string

	// URI is the file location (local path or s3://bucket/key).
	URI string

	// Kind is the declared modality.
	Kind MediaKind

	// DurationMs is the length of time-based media. Zero for images.
	DurationMs int64

	// FPS is the declared frame rate of the video stream. Zero without video.
	FPS float64

	// ContentHash identifies the content for idempotent re-ingestion.
	ContentHash string

	// Size is the content length in bytes.
	Size int64

	// ModifiedAt is the source modification time.
	ModifiedAt time.Time

	// LastTaskID is the most recent task that reached COMPLETED.
	LastTaskID string

	// CreatedAt is when the file was first observed.
	CreatedAt time.Time

	// UpdatedAt is when the file record last changed.
	UpdatedAt time.Time
}

// MediaStat is what a media source reports about a URI without fetching it.
type MediaStat struct {
	Size        int64
	ModifiedAt  time.Time
	ContentHash string
}

// MediaInfo describes the streams of a decoded media file.
type MediaInfo struct {
	// DurationMs is the container duration.
	DurationMs int64

	// FPS is the declared video frame rate. Zero when there is no video stream.
	FPS float64

	// FrameCount is the number of video frames, when known.
	FrameCount int64

	// HasVideo is true when a video stream exists.
	HasVideo bool

	// HasAudio is true when an audio stream exists.
	HasAudio bool
}

// FrameScore is the content-difference signal for one video frame
// relative to the previous frame, in [0,1].
type FrameScore struct {
	FrameIndex int64
	Score      float64
}
