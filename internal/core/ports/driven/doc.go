// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - MediaSource: Resolves URIs to local files and content hashes
//   - MediaDecoder: Probes media, scores scene changes, extracts frames and audio
//   - EmbeddingProvider: Encodes content of one modality into a vector
//   - VectorStore: Per-modality similarity collections
//   - MetadataStore: Files, segments and task snapshots
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - PersonStore: Registered people for person-aware search. Without it,
//     queries never receive a face weight.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
