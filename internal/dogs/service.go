package dogs

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/microcosm-cc/bluemonday"
)

const (
	// DefaultRadiusKm is the search radius used when a caller does not pick one.
	DefaultRadiusKm = 10.0
	// MaxRadiusKm caps radius searches.
	MaxRadiusKm = 200.0

	maxNameLength        = 100
	maxBioLength         = 2000
	maxLocationLength    = 255
	maxTemperamentTraits = 10
	maxTraitLength       = 50
	maxAge               = 30
)

// Service validates and stores dog listings and answers radius searches.
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

// NewService wires a dog service.
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

// Create validates and stores a dog owned by the profile ownerID.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (Dog, error) {
	if ownerID == uuid.Nil {
		return Dog{}, &ValidationError{Message: "ownerId is required", Fields: map[string]string{"ownerId": "cannot be blank"}}
	}

	temperament := make([]string, 0, len(input.Temperament))
	for _, trait := range input.Temperament {
		if cleaned := s.cleanText(trait); cleaned != "" {
			temperament = append(temperament, strings.ToLower(cleaned))
		}
	}

	now := s.now()
	dog := Dog{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Name:              s.cleanText(input.Name),
		PrimaryBreed:      s.cleanText(input.PrimaryBreed),
		SecondaryBreed:    s.cleanText(input.SecondaryBreed),
		Age:               input.Age,
		Size:              input.Size,
		Weight:            input.Weight,
		Temperament:       temperament,
		VaccinationStatus: input.VaccinationStatus,
		Neutered:          input.Neutered,
		Bio:               s.cleanText(input.Bio),
		Latitude:          input.Latitude,
		Longitude:         input.Longitude,
		LocationDisplay:   s.cleanText(input.LocationDisplay),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if dog.VaccinationStatus == "" {
		dog.VaccinationStatus = VaccinationUnknown
	}

	if err := validateDog(&dog); err != nil {
		return Dog{}, err
	}

	created, err := s.repo.Create(ctx, dog)
	if err != nil {
		return Dog{}, fmt.Errorf("create dog: %w", err)
	}
	return created, nil
}

// ListByOwner returns the dogs owned by a profile.
func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Dog, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// FindNearby returns dogs within radiusKm of the origin, closest first. A
// radius of zero uses DefaultRadiusKm.
func (s *Service) FindNearby(ctx context.Context, lat, lng, radiusKm float64) ([]NearbyDog, error) {
	if radiusKm == 0 {
		radiusKm = DefaultRadiusKm
	}
	search := struct {
		Latitude  float64
		Longitude float64
		Radius    float64
	}{lat, lng, radiusKm}
	err := validation.ValidateStruct(&search,
		validation.Field(&search.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&search.Longitude, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&search.Radius,
			validation.Min(0.1).Error(fmt.Sprintf("must be between 0.1 and %g", MaxRadiusKm)),
			validation.Max(MaxRadiusKm).Error(fmt.Sprintf("must be between 0.1 and %g", MaxRadiusKm)),
		),
	)
	if err != nil {
		return nil, toValidationError(err, map[string]string{"Latitude": "lat", "Longitude": "lng", "Radius": "radiusKm"})
	}

	candidates, err := s.repo.ListWithin(ctx, boundsAround(lat, lng, radiusKm))
	if err != nil {
		return nil, fmt.Errorf("find nearby dogs: %w", err)
	}

	nearby := make([]NearbyDog, 0, len(candidates))
	for _, dog := range candidates {
		distance := DistanceKm(lat, lng, dog.Latitude, dog.Longitude)
		if distance <= radiusKm {
			nearby = append(nearby, NearbyDog{Dog: dog, DistanceKm: distance})
		}
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})
	return nearby, nil
}

func (s *Service) cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}

func validateDog(d *Dog) error {
	weightRule := validation.By(func(value interface{}) error {
		if weight, _ := value.(*float64); weight != nil && *weight <= 0 {
			return errors.New("must be greater than 0")
		}
		return nil
	})
	traitsRule := validation.By(func(value interface{}) error {
		traits, _ := value.(pq.StringArray)
		if len(traits) > maxTemperamentTraits {
			return fmt.Errorf("must have at most %d traits", maxTemperamentTraits)
		}
		for _, trait := range traits {
			if len([]rune(trait)) > maxTraitLength {
				return fmt.Errorf("traits must be at most %d characters", maxTraitLength)
			}
		}
		return nil
	})

	err := validation.ValidateStruct(d,
		validation.Field(&d.Name, validation.Required.Error("Dog name is required"), validation.RuneLength(0, maxNameLength)),
		validation.Field(&d.PrimaryBreed, validation.Required.Error("Primary breed is required"), validation.RuneLength(0, maxNameLength)),
		validation.Field(&d.SecondaryBreed, validation.RuneLength(0, maxNameLength)),
		validation.Field(&d.Age, validation.Min(0), validation.Max(maxAge).Error(fmt.Sprintf("must be between 0 and %d", maxAge))),
		validation.Field(&d.Size, validation.Required, validation.In(SizeSmall, SizeMedium, SizeLarge, SizeExtraLarge)),
		validation.Field(&d.Weight, weightRule),
		validation.Field(&d.Temperament, traitsRule),
		validation.Field(&d.VaccinationStatus, validation.In(VaccinationUpToDate, VaccinationOverdue, VaccinationUnknown)),
		validation.Field(&d.Bio, validation.RuneLength(0, maxBioLength)),
		validation.Field(&d.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&d.Longitude, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&d.LocationDisplay, validation.RuneLength(0, maxLocationLength)),
	)
	if err == nil {
		return nil
	}
	return toValidationError(err, nil)
}

// toValidationError flattens ozzo field errors. rename maps struct field keys
// to the names callers know them by.
func toValidationError(err error, rename map[string]string) error {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate dog: %w", err)
	}

	fields := make(map[string]string, len(fieldErrs))
	keys := make([]string, 0, len(fieldErrs))
	for key, fieldErr := range fieldErrs {
		if renamed, ok := rename[key]; ok {
			key = renamed
		}
		fields[key] = fieldErr.Error()
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+" "+fields[key])
	}
	return &ValidationError{Message: strings.Join(parts, "; "), Fields: fields}
}
