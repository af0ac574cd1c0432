package identity

import (
	"time"

	"github.com/google/uuid"
)

// Provider names the credential an identity authenticates with.
type Provider string

const (
	ProviderEmail     Provider = "email"
	ProviderAnonymous Provider = "anonymous"
	ProviderGoogle    Provider = "google"
)

// User is an authentication principal issued by the identity backend.
type User struct {
	ID               uuid.UUID         `json:"id"`
	Email            string            `json:"email"`
	IsAnonymous      bool              `json:"isAnonymous"`
	EmailConfirmedAt *time.Time        `json:"emailConfirmedAt,omitempty"`
	Provider         Provider          `json:"provider"`
	ProviderID       string            `json:"-"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	LastSignInAt     time.Time         `json:"lastSignInAt"`
}

// Session binds a bearer token to a user until ExpiresAt.
// Token is only populated when the session is first issued; storage keeps its hash.
type Session struct {
	ID        uuid.UUID `json:"-"`
	UserID    uuid.UUID `json:"userId"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	User      User      `json:"user"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// OAuthClaims contains the relevant claims from a Google ID token.
type OAuthClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Event identifies why a Client notified its subscribers.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventUserUpdated    Event = "USER_UPDATED"
)
