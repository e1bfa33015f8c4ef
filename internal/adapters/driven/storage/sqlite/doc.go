// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements several store interfaces
// through a single database connection:
//
//   - MetadataStore: Media files, segments and task snapshots
//   - VectorStore: Per-modality vectors scored by brute-force cosine similarity
//   - PersonStore: Registered people and their reference face vectors
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-media/data/index.db
//
// # Thread Safety
//
// All operations are thread-safe. CommitIndex replaces a file's segments and
// flips its active task inside one transaction, so readers see either the
// previous index or the new one.
package sqlite
