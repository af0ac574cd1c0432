package profiles

import (
	"context"

	"github.com/google/uuid"
)

// Repository abstracts profile persistence.
type Repository interface {
	Create(ctx context.Context, profile Profile) (Profile, error)
	Get(ctx context.Context, id uuid.UUID) (Profile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (Profile, error)
	Update(ctx context.Context, profile Profile) (Profile, error)
}
