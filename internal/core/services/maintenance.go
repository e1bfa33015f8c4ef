package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure IndexMaintainer implements the interface.
var _ driving.IndexMaintenance = (*IndexMaintainer)(nil)

// IndexMaintainer clears the vector and metadata stores.
type IndexMaintainer struct {
	vectors  driven.VectorStore
	metadata driven.MetadataStore
}

// NewIndexMaintainer creates a maintainer.
func NewIndexMaintainer(vectors driven.VectorStore, metadata driven.MetadataStore) *IndexMaintainer {
	return &IndexMaintainer{vectors: vectors, metadata: metadata}
}

// Reset clears metadata first so that leftover vectors, if the vector reset
// fails, no longer resolve to an active task.
func (m *IndexMaintainer) Reset(ctx context.Context, fileID string) error {
	scope := driven.ResetScope{FileID: fileID}
	if err := m.metadata.Reset(ctx, scope); err != nil {
		return fmt.Errorf("reset metadata: %w", err)
	}
	if err := m.vectors.Reset(ctx, scope); err != nil {
		return fmt.Errorf("reset vectors: %w", err)
	}
	if scope.All() {
		logger.Info("Index reset")
	} else {
		logger.Info("Index reset for file %s", fileID)
	}
	return nil
}
