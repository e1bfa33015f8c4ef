package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure TemporalSegmenter implements the interface.
var _ driving.Segmenter = (*TemporalSegmenter)(nil)

// TemporalSegmenter cuts media into modality-tagged segments that share the
// file-start zero point.
type TemporalSegmenter struct {
	decoder driven.MediaDecoder
	cfg     domain.SegmenterSettings
	newID   func() string
}

// NewTemporalSegmenter creates a segmenter backed by a media decoder.
func NewTemporalSegmenter(decoder driven.MediaDecoder, cfg domain.SegmenterSettings) *TemporalSegmenter {
	return &TemporalSegmenter{
		decoder: decoder,
		cfg:     cfg,
		newID:   func() string { return uuid.New().String() },
	}
}

// Segment decodes localPath and returns its segments in storage order.
// file.DurationMs is filled from the probe.
func (s *TemporalSegmenter) Segment(
	ctx context.Context, file *domain.MediaFile, localPath string,
) ([]domain.Segment, error) {
	logger.Debug("Segmenting %s (%s)", file.URI, file.Kind)

	var segments []domain.Segment
	switch file.Kind {
	case domain.MediaKindImage:
		segments = s.imageSegments(file)

	case domain.MediaKindVideo, domain.MediaKindAudio:
		info, err := s.decoder.Probe(ctx, localPath)
		if err != nil {
			return nil, corrupted("probe", err)
		}
		if info.DurationMs <= 0 {
			return nil, fmt.Errorf("%w: %s has no duration", domain.ErrFileCorrupted, file.URI)
		}
		file.DurationMs = info.DurationMs
		file.FPS = info.FPS

		if file.Kind == domain.MediaKindVideo && info.HasVideo {
			visual, err := s.visualSegments(ctx, file, localPath, info)
			if err != nil {
				return nil, err
			}
			segments = append(segments, visual...)
		}
		if info.HasAudio || file.Kind == domain.MediaKindAudio {
			segments = append(segments, s.audioSegments(file, info.DurationMs)...)
		}
		if len(segments) == 0 {
			return nil, fmt.Errorf("%w: %s has no decodable streams", domain.ErrFileCorrupted, file.URI)
		}

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, file.URI)
	}

	domain.SortSegments(segments)
	if err := domain.ValidateSegments(segments); err != nil {
		return nil, fmt.Errorf("segment %s: %w", file.URI, err)
	}
	logger.Debug("Segmented %s into %d segments", file.URI, len(segments))
	return segments, nil
}

func (s *TemporalSegmenter) imageSegments(file *domain.MediaFile) []domain.Segment {
	frame := int64(0)
	visual := domain.Segment{
		ID:         s.newID(),
		FileID:     file.ID,
		Modality:   domain.ModalityVisual,
		StartMs:    0,
		EndMs:      1,
		FrameIndex: &frame,
		WholeFile:  true,
	}
	segments := []domain.Segment{visual}
	if s.cfg.Faces {
		segments = append(segments, s.faceOf(visual))
	}
	return segments
}

// visualSegments places boundaries at frames whose scene score reaches the
// sensitivity, filters and caps the candidates, and picks midpoint keyframes.
func (s *TemporalSegmenter) visualSegments(
	ctx context.Context, file *domain.MediaFile, localPath string, info *domain.MediaInfo,
) ([]domain.Segment, error) {
	scores, err := s.decoder.SceneScores(ctx, localPath)
	if err != nil {
		return nil, corrupted("scene detection", err)
	}

	ranges := sceneRanges(scores, info.FPS, info.DurationMs, s.cfg.Sensitivity)
	ranges = filterRanges(ranges, s.cfg.MinDuration.Milliseconds(), s.cfg.MaxSegments)
	logger.Debug("Visual: %d scene scores, %d segments kept", len(scores), len(ranges))

	precision := domain.FramePrecision(info.FPS)
	segments := make([]domain.Segment, 0, len(ranges)*2)
	for _, r := range ranges {
		frame := domain.FrameIndexAt(r[0]+(r[1]-r[0])/2, info.FPS)
		visual := domain.Segment{
			ID:         s.newID(),
			FileID:     file.ID,
			Modality:   domain.ModalityVisual,
			StartMs:    r[0],
			EndMs:      r[1],
			FrameIndex: &frame,
			Precision:  precision,
		}
		segments = append(segments, visual)
		if s.cfg.Faces {
			segments = append(segments, s.faceOf(visual))
		}
	}
	return segments, nil
}

func (s *TemporalSegmenter) faceOf(visual domain.Segment) domain.Segment {
	frame := *visual.FrameIndex
	face := visual
	face.ID = s.newID()
	face.Modality = domain.ModalityFace
	face.FrameIndex = &frame
	return face
}

// audioSegments boxes the timeline into fixed windows; the last window is clipped.
func (s *TemporalSegmenter) audioSegments(file *domain.MediaFile, durationMs int64) []domain.Segment {
	window := s.cfg.AudioWindow.Milliseconds()
	var segments []domain.Segment
	for start := int64(0); start < durationMs; start += window {
		end := min(start+window, durationMs)
		segments = append(segments, domain.Segment{
			ID:        s.newID(),
			FileID:    file.ID,
			Modality:  domain.ModalityAudioMusic,
			StartMs:   start,
			EndMs:     end,
			Precision: domain.AudioPrecision,
		})
		if s.cfg.Speech {
			segments = append(segments, domain.Segment{
				ID:        s.newID(),
				FileID:    file.ID,
				Modality:  domain.ModalityAudioSpeech,
				StartMs:   start,
				EndMs:     end,
				Precision: domain.SpeechPrecision,
			})
		}
	}
	return segments
}

// sceneRanges turns boundary frames into adjacent [start, end) ranges covering [0, duration).
func sceneRanges(scores []domain.FrameScore, fps float64, durationMs int64, sensitivity float64) [][2]int64 {
	cuts := []int64{0}
	for _, fs := range scores {
		if fs.Score < sensitivity {
			continue
		}
		ms := domain.FrameTimestampMs(fs.FrameIndex, fps)
		if ms > cuts[len(cuts)-1] && ms < durationMs {
			cuts = append(cuts, ms)
		}
	}
	cuts = append(cuts, durationMs)

	ranges := make([][2]int64, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		ranges = append(ranges, [2]int64{cuts[i], cuts[i+1]})
	}
	return ranges
}

// filterRanges drops ranges shorter than minMs and keeps the maxCount longest,
// returned in timeline order. A file with only short ranges keeps its longest one.
func filterRanges(ranges [][2]int64, minMs int64, maxCount int) [][2]int64 {
	kept := make([][2]int64, 0, len(ranges))
	for _, r := range ranges {
		if r[1]-r[0] >= minMs {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 && len(ranges) > 0 {
		longest := ranges[0]
		for _, r := range ranges[1:] {
			if r[1]-r[0] > longest[1]-longest[0] {
				longest = r
			}
		}
		kept = append(kept, longest)
	}

	if maxCount > 0 && len(kept) > maxCount {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i][1]-kept[i][0] > kept[j][1]-kept[j][0]
		})
		kept = kept[:maxCount]
		sort.Slice(kept, func(i, j int) bool { return kept[i][0] < kept[j][0] })
	}
	return kept
}

// corrupted classifies decoder failures as FileCorrupted unless they already
// carry a more specific kind (e.g. cancellation).
func corrupted(step string, err error) error {
	if errors.Is(err, domain.ErrFileCorrupted) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrResourceExhausted) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %w: %w", step, domain.ErrFileCorrupted, err)
}
