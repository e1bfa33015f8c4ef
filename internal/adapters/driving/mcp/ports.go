package mcp

import (
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search answers multi-modal queries.
	Search driving.SearchService

	// Ingest submits media and reports task status. Optional; without it the
	// ingest and task_status tools are not offered.
	Ingest driving.IngestionService

	// Person lists registered people. Optional.
	Person driving.PersonService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
