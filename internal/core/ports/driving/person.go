package driving

import (
	"context"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// PersonService manages the registry of known people.
type PersonService interface {
	// Register creates a person from one or more reference photos.
	Register(ctx context.Context, name string, aliases []string, photos [][]byte) (*domain.PersonIdentity, error)

	// List returns all registered people.
	List(ctx context.Context) ([]domain.PersonIdentity, error)

	// Remove deletes a person.
	Remove(ctx context.Context, id string) error

	// Match returns the people named in text.
	Match(ctx context.Context, text string) ([]domain.PersonIdentity, error)
}
