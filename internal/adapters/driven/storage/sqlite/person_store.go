package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// personStore implements driven.PersonStore.
type personStore struct {
	store *Store
}

var _ driven.PersonStore = (*personStore)(nil)

// SavePerson stores or updates a person.
func (s *personStore) SavePerson(ctx context.Context, person *domain.PersonIdentity) error {
	aliasesJSON, err := json.Marshal(person.Aliases)
	if err != nil {
		return fmt.Errorf("marshalling aliases: %w", err)
	}
	vectorsJSON, err := json.Marshal(person.FaceVectors)
	if err != nil {
		return fmt.Errorf("marshalling face vectors: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, aliases, face_vectors, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			aliases = excluded.aliases,
			face_vectors = excluded.face_vectors
	`, person.ID, person.Name, string(aliasesJSON), string(vectorsJSON), nullTime(person.CreatedAt))
	if err != nil {
		return storageErr("saving person", err)
	}
	return nil
}

// GetPerson retrieves a person by ID.
func (s *personStore) GetPerson(ctx context.Context, id string) (*domain.PersonIdentity, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, aliases, face_vectors, created_at FROM persons WHERE id = ?
	`, id)
	return scanPerson(row)
}

// ListPersons returns all registered people ordered by name.
func (s *personStore) ListPersons(ctx context.Context) ([]domain.PersonIdentity, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, name, aliases, face_vectors, created_at FROM persons ORDER BY name, id
	`)
	if err != nil {
		return nil, storageErr("querying persons", err)
	}
	defer rows.Close()

	var persons []domain.PersonIdentity //nolint:prealloc // size unknown from query
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating persons", err)
	}
	return persons, nil
}

// DeletePerson removes a person.
func (s *personStore) DeletePerson(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, `DELETE FROM persons WHERE id = ?`, id)
	if err != nil {
		return storageErr("deleting person", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPerson(row scanner) (*domain.PersonIdentity, error) {
	var p domain.PersonIdentity
	var aliasesJSON, vectorsJSON string
	var createdAt sql.NullTime

	if err := row.Scan(&p.ID, &p.Name, &aliasesJSON, &vectorsJSON, &createdAt); err != nil {
		return nil, notFound("scanning person", err)
	}

	if err := json.Unmarshal([]byte(aliasesJSON), &p.Aliases); err != nil {
		return nil, fmt.Errorf("unmarshaling aliases: %w", err)
	}
	if err := json.Unmarshal([]byte(vectorsJSON), &p.FaceVectors); err != nil {
		return nil, fmt.Errorf("unmarshaling face vectors: %w", err)
	}
	p.CreatedAt = timeOf(createdAt)
	return &p, nil
}
