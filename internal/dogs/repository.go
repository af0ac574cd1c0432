package dogs

import (
	"context"

	"github.com/google/uuid"
)

// Repository abstracts dog persistence.
type Repository interface {
	Create(ctx context.Context, dog Dog) (Dog, error)
	Get(ctx context.Context, id uuid.UUID) (Dog, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Dog, error)
	ListWithin(ctx context.Context, bounds Bounds) ([]Dog, error)
}
