package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService classifies a query and ranks the fused results.
type SearchService struct {
	classifier driving.QueryClassifier
	ranker     driving.FusionRanker
}

// NewSearchService creates a new search service.
func NewSearchService(classifier driving.QueryClassifier, ranker driving.FusionRanker) *SearchService {
	return &SearchService{
		classifier: classifier,
		ranker:     ranker,
	}
}

// Search runs a multi-modal query. No matches is an empty slice, not an error.
func (s *SearchService) Search(ctx context.Context, req domain.QueryRequest) ([]domain.FusedResult, error) {
	logger.Section("Search Execution")
	req = req.Normalized()
	logger.Debug("Query: text=%q image=%dB audio=%dB video=%dB mode=%s limit=%d",
		req.Text, len(req.Image), len(req.Audio), len(req.Video), req.Mode, req.Limit)

	profile, queryType, err := s.classifier.Classify(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	logger.Info("Query type %s, weights %v", queryType, profile)

	results, err := s.ranker.Rank(ctx, req, profile)
	if err != nil {
		logger.Warn("Search failed: %v", err)
		return nil, fmt.Errorf("search: %w", err)
	}
	if results == nil {
		results = []domain.FusedResult{}
	}
	logger.Info("Final results: %d", len(results))
	return results, nil
}
