package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure WeightedFusionRanker implements the interface.
var _ driving.FusionRanker = (*WeightedFusionRanker)(nil)

// errNothingToQuery marks a modality the request gives no query content for.
var errNothingToQuery = errors.New("no query content")

// WeightedFusionRanker queries one collection per weighted modality and merges
// the hits into a weighted sum per segment.
type WeightedFusionRanker struct {
	embedder driven.EmbeddingProvider
	vectors  driven.VectorStore
	metadata driven.MetadataStore
	persons  driven.PersonStore
	cfg      domain.FusionSettings
}

// NewWeightedFusionRanker creates a ranker. persons may be nil.
func NewWeightedFusionRanker(
	embedder driven.EmbeddingProvider,
	vectors driven.VectorStore,
	metadata driven.MetadataStore,
	persons driven.PersonStore,
	cfg domain.FusionSettings,
) *WeightedFusionRanker {
	if cfg.CandidateFactor < 1 {
		cfg.CandidateFactor = 1
	}
	return &WeightedFusionRanker{
		embedder: embedder,
		vectors:  vectors,
		metadata: metadata,
		persons:  persons,
		cfg:      cfg,
	}
}

// modalityHits is the outcome of one modality's query.
type modalityHits struct {
	modality domain.Modality
	hits     []driven.VectorHit
	err      error
}

// candidate is one merged result under construction.
type candidate struct {
	result    domain.FusedResult
	anchor    domain.Segment
	precision time.Duration
}

// Rank runs the per-modality queries and fuses the results.
func (r *WeightedFusionRanker) Rank(
	ctx context.Context, req domain.QueryRequest, profile domain.WeightProfile,
) ([]domain.FusedResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Normalized()

	weights := profile.Normalize()
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no modality has weight", domain.ErrInvalidInput)
	}
	k := r.cfg.CandidateFactor * req.Limit

	outcomes := r.queryAll(ctx, req, weights, k)

	var dropped []domain.Modality
	var lastErr error
	failed, succeeded := 0, 0
	for _, o := range outcomes {
		switch {
		case o.err == nil:
			succeeded++
		case errors.Is(o.err, errNothingToQuery):
			dropped = append(dropped, o.modality)
		default:
			failed++
			lastErr = o.err
			dropped = append(dropped, o.modality)
			logger.Warn("Search on %s failed, excluding it: %v", o.modality, o.err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if succeeded == 0 {
		if failed > 0 {
			return nil, fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, lastErr)
		}
		return []domain.FusedResult{}, nil
	}
	if len(dropped) > 0 {
		weights = weights.Without(dropped...)
		logger.Debug("Renormalised weights: %v", weights)
	}

	candidates, err := r.merge(ctx, outcomes, weights)
	if err != nil {
		return nil, err
	}

	results := make([]domain.FusedResult, 0, len(candidates))
	for _, c := range candidates {
		res := c.result
		for m, s := range res.Scores {
			res.FusedScore += weights[m] * s
		}
		res.TimePrecision = domain.PrecisionLabel(c.precision)
		if !r.inTimeRange(req, res) {
			continue
		}
		results = append(results, res)
	}

	domain.SortFusedResults(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	logger.Debug("Fusion returned %d results from %d candidates", len(results), len(candidates))
	return results, nil
}

// queryAll runs every modality query concurrently.
func (r *WeightedFusionRanker) queryAll(
	ctx context.Context, req domain.QueryRequest, weights domain.WeightProfile, k int,
) []modalityHits {
	modalities := weights.Modalities()
	outcomes := make([]modalityHits, len(modalities))

	var wg sync.WaitGroup
	for i, m := range modalities {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := r.queryModality(ctx, req, m, k)
			outcomes[i] = modalityHits{modality: m, hits: hits, err: err}
		}()
	}
	wg.Wait()
	return outcomes
}

// queryModality embeds the query for one modality and searches its collection.
func (r *WeightedFusionRanker) queryModality(
	ctx context.Context, req domain.QueryRequest, m domain.Modality, k int,
) ([]driven.VectorHit, error) {
	vectors, err := r.queryVectors(ctx, req, m)
	if err != nil {
		return nil, err
	}

	filter := driven.VectorFilter{FileIDs: req.FileIDs}
	best := make(map[string]driven.VectorHit)
	var order []string
	for _, v := range vectors {
		hits, err := r.vectors.Query(ctx, m.Collection(), v, filter, k)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", m.Collection(), err)
		}
		for _, h := range hits {
			prev, seen := best[h.ID]
			if !seen {
				order = append(order, h.ID)
			}
			if !seen || h.Score > prev.Score {
				best[h.ID] = h
			}
		}
	}

	out := make([]driven.VectorHit, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	logger.Debug("%s: %d hits", m, len(out))
	return out, nil
}

// queryVectors builds the query vectors for a modality. Face queries use the
// reference vectors of people named in the text, else the example image.
func (r *WeightedFusionRanker) queryVectors(
	ctx context.Context, req domain.QueryRequest, m domain.Modality,
) ([][]float32, error) {
	if m == domain.ModalityFace {
		persons, err := matchPersons(ctx, r.persons, req.Text)
		if err != nil {
			return nil, err
		}
		var vectors [][]float32
		for _, p := range persons {
			vectors = append(vectors, p.FaceVectors...)
		}
		if len(vectors) > 0 {
			return vectors, nil
		}
	}

	content, ok := queryContent(req, m)
	if !ok {
		return nil, errNothingToQuery
	}
	emb, err := r.embedder.Embed(ctx, content, m)
	if errors.Is(err, domain.ErrNoFace) || errors.Is(err, domain.ErrNoSpeech) {
		return nil, errNothingToQuery
	}
	if err != nil {
		return nil, fmt.Errorf("embed %s query: %w", m, err)
	}
	return [][]float32{emb.Vector}, nil
}

// queryContent picks the input matching a modality, falling back to the text.
// Speech prefers text because the index holds transcripts.
func queryContent(req domain.QueryRequest, m domain.Modality) (driven.Content, bool) {
	var blobs []driven.Content
	switch m {
	case domain.ModalityVisual:
		blobs = []driven.Content{
			{Data: req.Image, MIMEType: "image/*"},
			{Data: req.Video, MIMEType: "video/*"},
		}
	case domain.ModalityAudioMusic:
		blobs = []driven.Content{
			{Data: req.Audio, MIMEType: "audio/*"},
			{Data: req.Video, MIMEType: "video/*"},
		}
	case domain.ModalityAudioSpeech:
		if req.Text != "" {
			return driven.Content{Text: req.Text}, true
		}
		blobs = []driven.Content{
			{Data: req.Audio, MIMEType: "audio/*"},
			{Data: req.Video, MIMEType: "video/*"},
		}
	case domain.ModalityFace:
		// Text never embeds into face space.
		if len(req.Image) > 0 {
			return driven.Content{Data: req.Image, MIMEType: "image/*"}, true
		}
		return driven.Content{}, false
	}

	for _, b := range blobs {
		if len(b.Data) > 0 {
			return b, true
		}
	}
	if req.Text != "" {
		return driven.Content{Text: req.Text}, true
	}
	return driven.Content{}, false
}

// merge hydrates hits into candidates. Visual hits each anchor a candidate.
// Any other hit folds into the candidate of the same file it overlaps most,
// visual or not, and anchors a new one only when nothing overlaps.
func (r *WeightedFusionRanker) merge(
	ctx context.Context, outcomes []modalityHits, weights domain.WeightProfile,
) ([]*candidate, error) {
	var ids []string
	for _, o := range outcomes {
		if o.err != nil || weights[o.modality] <= 0 {
			continue
		}
		for _, h := range o.hits {
			ids = append(ids, h.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	segs, err := r.metadata.GetSegmentsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load segments: %w", domain.ErrServiceUnavailable, err)
	}
	byID := make(map[string]domain.Segment, len(segs))
	for _, s := range segs {
		byID[s.ID] = s
	}

	files := make(map[string]*domain.MediaFile)
	activeFile := func(hit driven.VectorHit, seg domain.Segment) (*domain.MediaFile, bool, error) {
		file, ok := files[seg.FileID]
		if !ok {
			f, err := r.metadata.GetFile(ctx, seg.FileID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				f = nil
			case err != nil:
				return nil, false, fmt.Errorf("%w: load file %s: %w", domain.ErrServiceUnavailable, seg.FileID, err)
			}
			files[seg.FileID] = f
			file = f
		}
		if file == nil || file.LastTaskID == "" {
			return nil, false, nil
		}
		return file, hit.TaskID == file.LastTaskID && seg.TaskID == file.LastTaskID, nil
	}

	byKey := make(map[string]*candidate)
	var ordered []*candidate
	byFile := make(map[string][]*candidate)

	add := func(c *candidate, m domain.Modality, score float64, seg domain.Segment) {
		if prev, ok := c.result.Scores[m]; !ok || score > prev {
			c.result.Scores[m] = score
		}
		if seg.Precision > c.precision {
			c.precision = seg.Precision
		}
		if seg.Modality == domain.ModalityAudioSpeech && c.result.Transcript == "" {
			c.result.Transcript = seg.Transcript
		}
	}
	newCandidate := func(file *domain.MediaFile, seg domain.Segment) *candidate {
		c := &candidate{
			result: domain.FusedResult{
				Key:       seg.MergeKey(),
				FileID:    file.ID,
				URI:       file.URI,
				SegmentID: seg.ID,
				Scores:    make(map[domain.Modality]float64),
				StartMs:   seg.StartMs,
				EndMs:     seg.EndMs,
			},
			anchor: seg,
		}
		byKey[c.result.Key] = c
		ordered = append(ordered, c)
		return c
	}

	// Visual timeline first so later hits have anchors to fold into.
	for pass := 0; pass < 2; pass++ {
		for _, o := range outcomes {
			if o.err != nil || weights[o.modality] <= 0 {
				continue
			}
			anchorPass := o.modality == domain.ModalityVisual
			if (pass == 0) != anchorPass {
				continue
			}
			for _, h := range o.hits {
				seg, ok := byID[h.ID]
				if !ok {
					continue
				}
				file, active, err := activeFile(h, seg)
				if err != nil {
					return nil, err
				}
				if !active {
					continue
				}

				if c, ok := byKey[seg.MergeKey()]; ok {
					add(c, o.modality, h.Score, seg)
					continue
				}
				if !anchorPass {
					if c := largestOverlap(byFile[seg.FileID], seg); c != nil {
						add(c, o.modality, h.Score, seg)
						continue
					}
				}
				c := newCandidate(file, seg)
				add(c, o.modality, h.Score, seg)
				byFile[seg.FileID] = append(byFile[seg.FileID], c)
			}
		}
	}
	return ordered, nil
}

// largestOverlap returns the candidate whose anchor overlaps seg the most.
func largestOverlap(candidates []*candidate, seg domain.Segment) *candidate {
	var best *candidate
	var bestOverlap int64
	for _, c := range candidates {
		if !c.anchor.Overlaps(seg) {
			continue
		}
		overlap := min(c.anchor.EndMs, seg.EndMs) - max(c.anchor.StartMs, seg.StartMs)
		if best == nil || overlap > bestOverlap {
			best, bestOverlap = c, overlap
		}
	}
	return best
}

// inTimeRange applies the optional time filter.
func (r *WeightedFusionRanker) inTimeRange(req domain.QueryRequest, res domain.FusedResult) bool {
	if req.TimeRange == nil {
		return true
	}
	var tolerance int64
	if req.TimeAccurate {
		tolerance = r.cfg.Tolerance.Milliseconds()
	}
	return req.TimeRange.Overlaps(res.StartMs, res.EndMs, tolerance)
}
