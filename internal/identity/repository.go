package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for identity and session persistence.
// Lookups return nil without an error when nothing matches.
type Repository interface {
	// User operations. The password hash is returned alongside the user and is
	// empty for identities without a password credential.
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, string, error)
	FindUserByEmail(ctx context.Context, email string) (*User, string, error)
	FindUserByOAuth(ctx context.Context, provider Provider, providerID string) (*User, error)
	CreateUser(ctx context.Context, user User, passwordHash string) (User, error)
	LinkCredential(ctx context.Context, id uuid.UUID, email, passwordHash string, at time.Time) (User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) error
	MarkSignedIn(ctx context.Context, id uuid.UUID, at time.Time) error

	// Session operations
	CreateSession(ctx context.Context, session Session, tokenHash string) error
	FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, *User, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
