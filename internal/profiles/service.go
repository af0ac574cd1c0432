package profiles

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

const (
	maxNameLength     = 100
	maxLocationLength = 255
	maxBioLength      = 2000
	maxPhotoLength    = 2048
	minAge            = 18
	maxAge            = 120
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

// Service orchestrates profile validation and persistence.
type Service struct {
	repo   Repository
	policy *bluemonday.Policy
	now    func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a profile service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		policy: bluemonday.StrictPolicy(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a profile by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	return s.repo.Get(ctx, id)
}

// GetByUserID returns the profile owned by an identity.
func (s *Service) GetByUserID(ctx context.Context, userID uuid.UUID) (Profile, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// Create validates and stores a new profile.
func (s *Service) Create(ctx context.Context, input CreateInput) (Profile, error) {
	if input.UserID == uuid.Nil {
		return Profile{}, &ValidationError{Message: "userId is required", Fields: map[string]string{"userId": "cannot be blank"}}
	}

	now := s.now()
	profile := Profile{
		ID:                    uuid.New(),
		UserID:                input.UserID,
		FirstName:             s.cleanText(input.FirstName),
		LastName:              s.cleanText(input.LastName),
		Email:                 strings.ToLower(strings.TrimSpace(input.Email)),
		Location:              s.cleanText(input.Location),
		City:                  s.cleanText(input.City),
		LocationDisplay:       s.cleanText(input.LocationDisplay),
		Latitude:              input.Latitude,
		Longitude:             input.Longitude,
		Age:                   input.Age,
		Bio:                   s.cleanText(input.Bio),
		ProfilePhoto:          strings.TrimSpace(input.ProfilePhoto),
		UserType:              input.UserType,
		GuestSessionExpiresAt: input.GuestSessionExpiresAt,
		AuthProvider:          input.AuthProvider,
		EmailVerified:         input.EmailVerified,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if profile.UserType == "" {
		profile.UserType = UserTypePermanent
	}
	if profile.AuthProvider == "" {
		profile.AuthProvider = AuthProviderEmail
	}

	if err := validateProfile(&profile, now); err != nil {
		return Profile{}, err
	}

	created, err := s.repo.Create(ctx, profile)
	if err != nil {
		return Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return created, nil
}

// Update applies the set fields of update to the stored profile and returns
// the row as persisted.
func (s *Service) Update(ctx context.Context, id uuid.UUID, update ProfileUpdate) (Profile, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if update.IsEmpty() {
		return existing, nil
	}

	if update.FirstName != nil {
		existing.FirstName = s.cleanText(*update.FirstName)
	}
	if update.LastName != nil {
		existing.LastName = s.cleanText(*update.LastName)
	}
	if update.Email != nil {
		existing.Email = strings.ToLower(strings.TrimSpace(*update.Email))
	}
	if update.Location != nil {
		existing.Location = s.cleanText(*update.Location)
	}
	if update.City != nil {
		existing.City = s.cleanText(*update.City)
	}
	if update.LocationDisplay != nil {
		existing.LocationDisplay = s.cleanText(*update.LocationDisplay)
	}
	if update.Latitude != nil {
		existing.Latitude = *update.Latitude
	}
	if update.Longitude != nil {
		existing.Longitude = *update.Longitude
	}
	if update.Age != nil {
		existing.Age = *update.Age
	}
	if update.Bio != nil {
		existing.Bio = s.cleanText(*update.Bio)
	}
	if update.ProfilePhoto != nil {
		existing.ProfilePhoto = strings.TrimSpace(*update.ProfilePhoto)
	}
	if update.UserType != nil {
		existing.UserType = *update.UserType
	}
	if update.GuestSessionExpiresAt != nil {
		existing.GuestSessionExpiresAt = *update.GuestSessionExpiresAt
	}
	if update.ConvertedFromGuestAt != nil {
		existing.ConvertedFromGuestAt = *update.ConvertedFromGuestAt
	}
	if update.AuthProvider != nil {
		existing.AuthProvider = *update.AuthProvider
	}
	if update.EmailVerified != nil {
		existing.EmailVerified = *update.EmailVerified
	}
	if existing.UserType == "" {
		existing.UserType = UserTypePermanent
	}

	// A stored guest window may already have passed; only a new one must lie ahead.
	var expiresAfter time.Time
	if update.GuestSessionExpiresAt != nil {
		expiresAfter = s.now()
	}
	if err := validateProfile(&existing, expiresAfter); err != nil {
		return Profile{}, err
	}

	existing.UpdatedAt = s.now()
	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

// cleanText strips markup from free text. The strict policy escapes entities,
// so they are decoded again to keep plain text intact.
func (s *Service) cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}

// validateProfile checks p. A non-zero expiresAfter also requires a guest
// expiry to fall after it.
func validateProfile(p *Profile, expiresAfter time.Time) error {
	expiryRule := validation.By(func(value interface{}) error {
		expires, _ := value.(*time.Time)
		if p.UserType == UserTypeGuest && expires == nil {
			return errors.New("is required for guest profiles")
		}
		if p.UserType != UserTypeGuest && expires != nil {
			return errors.New("must be empty for permanent profiles")
		}
		if expires != nil && !expiresAfter.IsZero() && !expires.After(expiresAfter) {
			return errors.New("must be in the future")
		}
		return nil
	})

	err := validation.ValidateStruct(p,
		validation.Field(&p.FirstName, validation.RuneLength(0, maxNameLength)),
		validation.Field(&p.LastName, validation.RuneLength(0, maxNameLength)),
		validation.Field(&p.Email, validation.Match(emailPattern).Error("must be a valid email address")),
		validation.Field(&p.Location, validation.RuneLength(0, maxLocationLength)),
		validation.Field(&p.City, validation.RuneLength(0, maxLocationLength)),
		validation.Field(&p.LocationDisplay, validation.RuneLength(0, maxLocationLength)),
		validation.Field(&p.Bio, validation.RuneLength(0, maxBioLength)),
		validation.Field(&p.ProfilePhoto, validation.Length(0, maxPhotoLength)),
		validation.Field(&p.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&p.Longitude, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&p.Age,
			validation.NilOrNotEmpty.Error(fmt.Sprintf("must be between %d and %d", minAge, maxAge)),
			validation.Min(minAge).Error(fmt.Sprintf("must be between %d and %d", minAge, maxAge)),
			validation.Max(maxAge).Error(fmt.Sprintf("must be between %d and %d", minAge, maxAge)),
		),
		validation.Field(&p.UserType, validation.Required, validation.In(UserTypeGuest, UserTypePermanent)),
		validation.Field(&p.AuthProvider, validation.Required, validation.In(AuthProviderEmail, AuthProviderAnonymous, AuthProviderGoogle)),
		validation.Field(&p.GuestSessionExpiresAt, expiryRule),
	)
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate profile: %w", err)
	}
	return newValidationError(fieldErrs)
}

func newValidationError(errs validation.Errors) *ValidationError {
	fields := make(map[string]string, len(errs))
	keys := make([]string, 0, len(errs))
	for key, err := range errs {
		fields[key] = err.Error()
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+" "+fields[key])
	}
	return &ValidationError{Message: strings.Join(parts, "; "), Fields: fields}
}
