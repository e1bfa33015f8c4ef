package driving

import (
	"context"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// SearchService answers multi-modal queries.
type SearchService interface {
	// Search classifies the request and returns fused, ranked results.
	// An empty result is not an error.
	Search(ctx context.Context, req domain.QueryRequest) ([]domain.FusedResult, error)
}

// QueryClassifier turns a request into per-modality weights.
type QueryClassifier interface {
	// Classify returns a normalised weight profile and the detected query type.
	Classify(ctx context.Context, req domain.QueryRequest) (domain.WeightProfile, domain.QueryType, error)
}

// FusionRanker queries every weighted modality and merges the hits.
type FusionRanker interface {
	// Rank returns results sorted by fused score.
	Rank(ctx context.Context, req domain.QueryRequest, profile domain.WeightProfile) ([]domain.FusedResult, error)
}
