package domain

import (
	"fmt"
	"math"
	"sort"
)

// SearchMode is the user's requested search mode.
type SearchMode string

// Available search modes.
const (
	// SearchModeSmart lets the classifier weigh every modality.
	SearchModeSmart SearchMode = "smart"

	// SearchModeVisual searches keyframes only.
	SearchModeVisual SearchMode = "visual"

	// SearchModeMusic searches the audio_music index only.
	SearchModeMusic SearchMode = "music"

	// SearchModeSpeech searches transcripts only.
	SearchModeSpeech SearchMode = "speech"

	// SearchModeFace searches the face index only.
	SearchModeFace SearchMode = "face"
)

// AllSearchModes returns all available search modes.
func AllSearchModes() []SearchMode {
	return []SearchMode{SearchModeSmart, SearchModeVisual, SearchModeMusic, SearchModeSpeech, SearchModeFace}
}

// IsValid returns true if the search mode is recognised.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeSmart, SearchModeVisual, SearchModeMusic, SearchModeSpeech, SearchModeFace:
		return true
	default:
		return false
	}
}

// Modality returns the single modality an explicit mode searches.
// Smart mode has none.
func (m SearchMode) Modality() (Modality, bool) {
	switch m {
	case SearchModeVisual:
		return ModalityVisual, true
	case SearchModeMusic:
		return ModalityAudioMusic, true
	case SearchModeSpeech:
		return ModalityAudioSpeech, true
	case SearchModeFace:
		return ModalityFace, true
	default:
		return "", false
	}
}

// String returns the string representation.
func (m SearchMode) String() string {
	return string(m)
}

// TimeRange restricts results to a window of the file timeline, in milliseconds.
type TimeRange struct {
	StartMs int64
	EndMs   int64
}

// Validate checks the range is non-negative and ordered.
func (r TimeRange) Validate() error {
	if r.StartMs < 0 || r.EndMs < r.StartMs {
		return fmt.Errorf("%w: time range [%d,%d]", ErrInvalidInput, r.StartMs, r.EndMs)
	}
	return nil
}

// Overlaps reports whether [startMs,endMs) intersects the range widened by toleranceMs on each side.
func (r TimeRange) Overlaps(startMs, endMs, toleranceMs int64) bool {
	lo := r.StartMs - toleranceMs
	hi := r.EndMs + toleranceMs
	return startMs <= hi && endMs > lo
}

// DefaultQueryLimit is used when a request leaves Limit unset.
const DefaultQueryLimit = 20

// QueryRequest is a user search.
type QueryRequest struct {
	// Text is the free-text query.
	Text string

	// Image is an example image.
	Image []byte

	// Audio is an example audio clip.
	Audio []byte

	// Video is an example video clip.
	Video []byte

	// Mode is the requested search mode. Empty means smart.
	Mode SearchMode

	// TimeRange optionally restricts results to a window.
	TimeRange *TimeRange

	// TimeAccurate widens the time filter by the tolerance instead of trusting exact bounds.
	TimeAccurate bool

	// Limit is the maximum number of results.
	Limit int

	// FileIDs filters to specific files.
	FileIDs []string
}

// HasInput returns true if the request carries at least one input.
func (q QueryRequest) HasInput() bool {
	return q.Text != "" || len(q.Image) > 0 || len(q.Audio) > 0 || len(q.Video) > 0
}

// Normalized returns a copy with defaults applied.
func (q QueryRequest) Normalized() QueryRequest {
	if q.Mode == "" {
		q.Mode = SearchModeSmart
	}
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	return q
}

// Validate checks the request can be served.
func (q QueryRequest) Validate() error {
	if !q.HasInput() {
		return fmt.Errorf("%w: query has no input", ErrInvalidInput)
	}
	if q.Mode != "" && !q.Mode.IsValid() {
		return fmt.Errorf("%w: unknown search mode %q", ErrInvalidInput, q.Mode)
	}
	if q.TimeRange != nil {
		return q.TimeRange.Validate()
	}
	return nil
}

// QueryType names the shape of a classified query.
type QueryType string

// Query types.
const (
	QueryTypeText       QueryType = "text"
	QueryTypeImage      QueryType = "image"
	QueryTypeAudio      QueryType = "audio"
	QueryTypeVideo      QueryType = "video"
	QueryTypeTextImage  QueryType = "text_image"
	QueryTypeTextAudio  QueryType = "text_audio"
	QueryTypeAudioImage QueryType = "audio_image"
	QueryTypeExplicit   QueryType = "explicit"
	QueryTypePerson     QueryType = "person"
)

// WeightTolerance is the allowed deviation of a profile sum from 1.0.
const WeightTolerance = 1e-6

// WeightProfile maps each modality to its fusion weight.
type WeightProfile map[Modality]float64

// Sum returns the total weight.
func (p WeightProfile) Sum() float64 {
	var total float64
	for _, w := range p {
		total += w
	}
	return total
}

// Clone returns an independent copy.
func (p WeightProfile) Clone() WeightProfile {
	out := make(WeightProfile, len(p))
	for m, w := range p {
		out[m] = w
	}
	return out
}

// Normalize returns a copy whose positive weights sum to 1.0.
// Zero and negative weights are dropped. An empty result means nothing is searchable.
func (p WeightProfile) Normalize() WeightProfile {
	out := make(WeightProfile, len(p))
	var total float64
	for m, w := range p {
		if w > 0 {
			out[m] = w
			total += w
		}
	}
	if total == 0 {
		return WeightProfile{}
	}
	for m := range out {
		out[m] /= total
	}
	return out
}

// Without returns the profile renormalised after dropping the given modalities.
func (p WeightProfile) Without(drop ...Modality) WeightProfile {
	out := p.Clone()
	for _, m := range drop {
		delete(out, m)
	}
	return out.Normalize()
}

// Modalities returns the modalities with positive weight in canonical order.
func (p WeightProfile) Modalities() []Modality {
	var out []Modality
	for _, m := range AllModalities() {
		if p[m] > 0 {
			out = append(out, m)
		}
	}
	return out
}

// Validate checks every key is a modality, every weight is in [0,1],
// and the total is 1.0 within WeightTolerance.
func (p WeightProfile) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty weight profile", ErrInvalidInput)
	}
	for m, w := range p {
		if !m.IsValid() {
			return fmt.Errorf("%w: unknown modality %q", ErrInvalidInput, m)
		}
		if w < 0 || w > 1 || math.IsNaN(w) {
			return fmt.Errorf("%w: weight %v for %s", ErrInvalidInput, w, m)
		}
	}
	if math.Abs(p.Sum()-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %v", ErrInvalidInput, p.Sum())
	}
	return nil
}

// FusedResult is a search result after weighted multi-modal fusion.
type FusedResult struct {
	// Key identifies the merged unit (segment or whole file).
	Key string

	// FileID is the matched media file.
	FileID string

	// URI is the file location.
	URI string

	// SegmentID is the representative segment.
	SegmentID string

	// Scores holds the per-modality similarity.
	Scores map[Modality]float64

	// FusedScore is the weighted sum of Scores.
	FusedScore float64

	// StartMs is the result start on the file timeline.
	StartMs int64

	// EndMs is the result end on the file timeline.
	EndMs int64

	// TimePrecision is the human-readable accuracy bound, e.g. "±0.033s".
	TimePrecision string

	// Transcript is the matched speech, if any.
	Transcript string
}

// SortFusedResults orders by fused score descending, then earlier start, then key.
func SortFusedResults(results []FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.StartMs != b.StartMs {
			return a.StartMs < b.StartMs
		}
		return a.Key < b.Key
	})
}
