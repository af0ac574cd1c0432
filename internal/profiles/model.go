package profiles

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a profile cannot be located.
	ErrNotFound = errors.New("profile not found")
	// ErrAlreadyExists is returned when an identity already owns a profile.
	ErrAlreadyExists = errors.New("profile already exists for this user")
	// ErrValidation is returned when input validation fails.
	ErrValidation = errors.New("validation error")
)

// ValidationError carries per-field messages so callers can distinguish
// client errors from internal failures.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// UserType discriminates guest profiles from permanent ones.
type UserType string

const (
	UserTypeGuest     UserType = "guest"
	UserTypePermanent UserType = "permanent"
)

// AuthProvider records how the owning identity signs in.
type AuthProvider string

const (
	AuthProviderEmail     AuthProvider = "email"
	AuthProviderAnonymous AuthProvider = "anonymous"
	AuthProviderGoogle    AuthProvider = "google"
)

// Profile is the application-level record for a person using SocialDog.
// Exactly one exists per identity.
type Profile struct {
	ID                    uuid.UUID    `db:"id" json:"id"`
	UserID                uuid.UUID    `db:"user_id" json:"userId"`
	FirstName             string       `db:"first_name" json:"firstName"`
	LastName              string       `db:"last_name" json:"lastName"`
	Email                 string       `db:"email" json:"email"`
	Location              string       `db:"location" json:"location"`
	City                  string       `db:"city" json:"city"`
	LocationDisplay       string       `db:"location_display" json:"locationDisplay"`
	Latitude              *float64     `db:"latitude" json:"latitude,omitempty"`
	Longitude             *float64     `db:"longitude" json:"longitude,omitempty"`
	Age                   *int         `db:"age" json:"age,omitempty"`
	Bio                   string       `db:"bio" json:"bio"`
	ProfilePhoto          string       `db:"profile_photo" json:"profilePhoto"`
	UserType              UserType     `db:"user_type" json:"userType"`
	GuestSessionExpiresAt *time.Time   `db:"guest_session_expires_at" json:"guestSessionExpiresAt,omitempty"`
	ConvertedFromGuestAt  *time.Time   `db:"converted_from_guest_at" json:"convertedFromGuestAt,omitempty"`
	AuthProvider          AuthProvider `db:"auth_provider" json:"authProvider"`
	EmailVerified         bool         `db:"email_verified" json:"emailVerified"`
	CreatedAt             time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updatedAt"`
}

// IsGuest reports whether the profile belongs to a time-limited guest.
// An empty user type counts as permanent.
func (p Profile) IsGuest() bool {
	return p.UserType == UserTypeGuest
}

// GuestExpired reports whether a guest profile's session window has passed.
func (p Profile) GuestExpired(now time.Time) bool {
	return p.IsGuest() && p.GuestSessionExpiresAt != nil && !now.Before(*p.GuestSessionExpiresAt)
}

// DisplayName joins first and last name.
func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CreateInput captures the fields for a new profile.
type CreateInput struct {
	UserID                uuid.UUID
	FirstName             string
	LastName              string
	Email                 string
	Location              string
	City                  string
	LocationDisplay       string
	Latitude              *float64
	Longitude             *float64
	Age                   *int
	Bio                   string
	ProfilePhoto          string
	UserType              UserType
	GuestSessionExpiresAt *time.Time
	AuthProvider          AuthProvider
	EmailVerified         bool
}

// ProfileUpdate lists the fields to change. Nil pointers are left untouched;
// double pointers set to a nil inner pointer clear a nullable column.
type ProfileUpdate struct {
	FirstName             *string
	LastName              *string
	Email                 *string
	Location              *string
	City                  *string
	LocationDisplay       *string
	Latitude              **float64
	Longitude             **float64
	Age                   **int
	Bio                   *string
	ProfilePhoto          *string
	UserType              *UserType
	GuestSessionExpiresAt **time.Time
	ConvertedFromGuestAt  **time.Time
	AuthProvider          *AuthProvider
	EmailVerified         *bool
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u == ProfileUpdate{}
}
