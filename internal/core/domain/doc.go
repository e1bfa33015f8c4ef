// Package domain defines the core business entities for Sercha Media.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - MediaFile: A media file known to the index
//   - Segment: A time-bounded, modality-tagged unit of a media file
//   - ProcessingTask: One ingestion attempt for one media file
//   - QueryRequest / FusedResult: The multi-modal query contract
//   - PersonIdentity: A registered person used to boost face matches
//
// # Timeline
//
// Every timestamp is expressed in milliseconds from the start of its file.
// All modalities of one file share that zero point, so overlapping ranges of
// different modalities are co-located without any offset correction.
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
