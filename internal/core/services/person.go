package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure PersonRegistry implements the interface.
var _ driving.PersonService = (*PersonRegistry)(nil)

// PersonRegistry manages registered people and their face reference vectors.
type PersonRegistry struct {
	store    driven.PersonStore
	embedder driven.EmbeddingProvider
}

// NewPersonRegistry creates a person registry.
func NewPersonRegistry(store driven.PersonStore, embedder driven.EmbeddingProvider) *PersonRegistry {
	return &PersonRegistry{store: store, embedder: embedder}
}

// Register embeds each photo with the face encoder and stores the person.
// Photos without a detectable face are skipped; at least one must succeed.
func (r *PersonRegistry) Register(
	ctx context.Context, name string, aliases []string, photos [][]byte,
) (*domain.PersonIdentity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: person name is required", domain.ErrInvalidInput)
	}
	if len(photos) == 0 {
		return nil, fmt.Errorf("%w: at least one photo is required", domain.ErrInvalidInput)
	}

	person := &domain.PersonIdentity{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	for _, a := range aliases {
		if a = strings.TrimSpace(a); a != "" {
			person.Aliases = append(person.Aliases, a)
		}
	}

	for i, photo := range photos {
		emb, err := r.embedder.Embed(ctx, driven.Content{Data: photo, MIMEType: "image/*"}, domain.ModalityFace)
		if errors.Is(err, domain.ErrNoFace) {
			logger.Warn("Photo %d of %s has no face, skipping", i+1, name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("embed photo %d: %w", i+1, err)
		}
		person.FaceVectors = append(person.FaceVectors, emb.Vector)
	}
	if len(person.FaceVectors) == 0 {
		return nil, fmt.Errorf("%w: %w in any photo of %s", domain.ErrInvalidInput, domain.ErrNoFace, name)
	}

	if err := r.store.SavePerson(ctx, person); err != nil {
		return nil, fmt.Errorf("save person: %w", err)
	}
	logger.Info("Registered %s with %d reference face(s)", name, len(person.FaceVectors))
	return person, nil
}

// List returns all registered people.
func (r *PersonRegistry) List(ctx context.Context) ([]domain.PersonIdentity, error) {
	return r.store.ListPersons(ctx)
}

// Remove deletes a person.
func (r *PersonRegistry) Remove(ctx context.Context, id string) error {
	if err := r.store.DeletePerson(ctx, id); err != nil {
		return fmt.Errorf("delete person %s: %w", id, err)
	}
	return nil
}

// Match returns the people named in text.
func (r *PersonRegistry) Match(ctx context.Context, text string) ([]domain.PersonIdentity, error) {
	return matchPersons(ctx, r.store, text)
}
