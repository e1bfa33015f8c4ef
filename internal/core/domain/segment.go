package domain

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Modality tags the index a segment's vector lives in.
type Modality string

// Index modalities.
const (
	// ModalityVisual is a keyframe embedded by an image encoder (CLIP).
	ModalityVisual Modality = "visual"

	// ModalityAudioMusic is an audio window embedded by an audio encoder (CLAP).
	ModalityAudioMusic Modality = "audio_music"

	// ModalityAudioSpeech is an audio window transcribed and embedded as text.
	ModalityAudioSpeech Modality = "audio_speech"

	// ModalityFace is a face embedding taken from a visual keyframe.
	ModalityFace Modality = "face"
)

// AllModalities returns every index modality in a stable order.
func AllModalities() []Modality {
	return []Modality{ModalityVisual, ModalityAudioMusic, ModalityAudioSpeech, ModalityFace}
}

// IsValid returns true if the modality is recognised.
func (m Modality) IsValid() bool {
	switch m {
	case ModalityVisual, ModalityAudioMusic, ModalityAudioSpeech, ModalityFace:
		return true
	default:
		return false
	}
}

// Collection returns the vector store collection holding this modality.
func (m Modality) Collection() string {
	return "media_" + string(m)
}

// IsVisualTimeline returns true if segments of this modality follow scene cuts.
func (m Modality) IsVisualTimeline() bool {
	return m == ModalityVisual || m == ModalityFace
}

// String returns the string representation.
func (m Modality) String() string {
	return string(m)
}

// Timestamp accuracy per modality. Visual accuracy depends on the frame rate.
const (
	AudioPrecision  = 100 * time.Millisecond
	SpeechPrecision = 200 * time.Millisecond

	// MaxReportedPrecision is the system-wide accuracy contract.
	MaxReportedPrecision = 2 * time.Second
)

// FramePrecision is the accuracy of a frame-derived timestamp: one frame interval.
func FramePrecision(fps float64) time.Duration {
	if fps <= 0 {
		return MaxReportedPrecision
	}
	return time.Duration(float64(time.Second) / fps)
}

// FrameTimestampMs converts a frame index to milliseconds on the file timeline.
func FrameTimestampMs(frameIndex int64, fps float64) int64 {
	if fps <= 0 {
		return 0
	}
	return int64(float64(frameIndex) * 1000 / fps)
}

// FrameIndexAt returns the frame shown at ms.
func FrameIndexAt(ms int64, fps float64) int64 {
	if fps <= 0 {
		return 0
	}
	return int64(float64(ms) * fps / 1000)
}

// Segment is a time-bounded, modality-tagged unit of a media file
// that receives its own embedding vector.
// Range is half-open: [StartMs, EndMs).
type Segment struct {
	// ID is the unique identifier for the segment.
	ID string

	// FileID links to the parent MediaFile.
	FileID string

	// TaskID is the ingestion task that produced the segment.
	TaskID string

	// Modality selects the vector collection.
	Modality Modality

	// StartMs is the inclusive start on the file timeline.
	StartMs int64

	// EndMs is the exclusive end on the file timeline.
	EndMs int64

	// FrameIndex is the keyframe for visual and face segments.
	FrameIndex *int64

	// Transcript is set on speech segments after vectorisation.
	Transcript string

	// Precision is the timestamp accuracy of this modality.
	Precision time.Duration

	// WholeFile is true when the segment stands for the whole file (still images).
	WholeFile bool

	// VectorRef is the "collection/id" handle into the vector store.
	VectorRef string

	// Embedding is the vector, held only between vectorisation and storage.
	Embedding []float32
}

// DurationMs returns the segment length.
func (s Segment) DurationMs() int64 {
	return s.EndMs - s.StartMs
}

// MidpointMs returns the temporal midpoint.
func (s Segment) MidpointMs() int64 {
	return s.StartMs + (s.EndMs-s.StartMs)/2
}

// Overlaps reports whether two half-open ranges intersect.
func (s Segment) Overlaps(other Segment) bool {
	return s.StartMs < other.EndMs && other.StartMs < s.EndMs
}

// MergeKey groups hits of the same logical unit: the file for whole-file
// segments, otherwise the segment itself.
func (s Segment) MergeKey() string {
	if s.WholeFile {
		return "file:" + s.FileID
	}
	return "segment:" + s.ID
}

// ValidateSegments checks the ordering invariants: every range is non-empty,
// and segments of the same modality are sorted by start and do not overlap.
func ValidateSegments(segments []Segment) error {
	last := make(map[Modality]Segment)
	for _, seg := range segments {
		if seg.StartMs >= seg.EndMs {
			return fmt.Errorf("%w: segment %s has empty range [%d,%d)", ErrInvalidInput, seg.ID, seg.StartMs, seg.EndMs)
		}
		if prev, ok := last[seg.Modality]; ok {
			if seg.StartMs < prev.EndMs {
				return fmt.Errorf("%w: %s segments %s and %s overlap or are out of order",
					ErrInvalidInput, seg.Modality, prev.ID, seg.ID)
			}
		}
		last[seg.Modality] = seg
	}
	return nil
}

// SortSegments orders segments by modality then start, the canonical storage order.
func SortSegments(segments []Segment) {
	order := make(map[Modality]int)
	for i, m := range AllModalities() {
		order[m] = i
	}
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].Modality != segments[j].Modality {
			return order[segments[i].Modality] < order[segments[j].Modality]
		}
		return segments[i].StartMs < segments[j].StartMs
	})
}

// PrecisionLabel formats an accuracy bound for humans, e.g. "±0.033s".
// The value is capped at MaxReportedPrecision.
func PrecisionLabel(d time.Duration) string {
	if d <= 0 || d > MaxReportedPrecision {
		d = MaxReportedPrecision
	}
	ms := d.Round(time.Millisecond).Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return "±" + strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64) + "s"
}
