package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// DBFile is the database name inside the data directory.
const DBFile = "index.db"

// WAL keeps searches reading while an ingestion worker commits. Pragmas in
// the DSN apply to every pooled connection.
const pragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Store owns one database and hands out the metadata, vector and person
// views over it.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates dataDir/index.db and brings its schema up to
// date. An empty dataDir selects ~/.sercha-media/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha-media", "data")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dataDir, DBFile)
	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	applied, err := migrate(db, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	if applied > 0 {
		logger.Info("SQLite schema at %s: applied %d migration(s)", path, applied)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// MetadataStore returns the files, segments and tasks view.
func (s *Store) MetadataStore() driven.MetadataStore {
	return &metadataStore{store: s}
}

// VectorStore returns the per-modality vector view.
func (s *Store) VectorStore() driven.VectorStore {
	return &vectorStore{store: s}
}

// PersonStore returns the person registry view.
func (s *Store) PersonStore() driven.PersonStore {
	return &personStore{store: s}
}
