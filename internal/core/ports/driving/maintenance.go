package driving

import "context"

// IndexMaintenance clears indexed data.
type IndexMaintenance interface {
	// Reset removes all indexed data, or one file's when fileID is set.
	Reset(ctx context.Context, fileID string) error
}
