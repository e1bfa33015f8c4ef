package sqlite

import (
	"database/sql"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

type migration struct {
	version int
	name    string
}

// pendingMigrations lists the up scripts in fsys newer than current,
// ordered by version. Files that do not start with a number are an error.
func pendingMigrations(fsys fs.FS, current int) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	var pending []migration
	seen := make(map[int]string)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", name)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, name, version)
		}
		seen[version] = name
		if version > current {
			pending = append(pending, migration{version: version, name: name})
		}
	}
	slices.SortFunc(pending, func(a, b migration) int { return a.version - b.version })
	return pending, nil
}

// migrate applies pending up scripts, each in its own transaction together
// with its schema_migrations row. It returns how many were applied.
func migrate(db *sql.DB, fsys fs.FS) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return 0, fmt.Errorf("creating schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	pending, err := pendingMigrations(fsys, current)
	if err != nil {
		return 0, err
	}

	for i, m := range pending {
		script, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return i, fmt.Errorf("reading %s: %w", m.name, err)
		}
		if err := applyMigration(db, m, string(script)); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

func applyMigration(db *sql.DB, m migration, script string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("%s: recording version: %w", m.name, err)
	}
	return tx.Commit()
}
