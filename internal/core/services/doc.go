// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Services never import adapters. The ingestion orchestrator, the temporal
// segmenter, the query classifier and the fusion ranker all live here.
package services
