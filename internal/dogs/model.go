package dogs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a dog cannot be located.
	ErrNotFound = errors.New("dog not found")
	// ErrValidation is returned when input validation fails.
	ErrValidation = errors.New("validation error")
)

// ValidationError carries per-field messages.
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

// Size buckets a dog by build.
type Size string

const (
	SizeSmall      Size = "small"
	SizeMedium     Size = "medium"
	SizeLarge      Size = "large"
	SizeExtraLarge Size = "extra-large"
)

// VaccinationStatus is what the owner reports about vaccinations.
type VaccinationStatus string

const (
	VaccinationUpToDate VaccinationStatus = "up-to-date"
	VaccinationOverdue  VaccinationStatus = "overdue"
	VaccinationUnknown  VaccinationStatus = "unknown"
)

// Dog is a dog listed by a permanent account. OwnerID is the owner's profile id.
type Dog struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	OwnerID           uuid.UUID         `db:"owner_id" json:"ownerId"`
	Name              string            `db:"name" json:"name"`
	PrimaryBreed      string            `db:"primary_breed" json:"primaryBreed"`
	SecondaryBreed    string            `db:"secondary_breed" json:"secondaryBreed,omitempty"`
	Age               int               `db:"age" json:"age"`
	Size              Size              `db:"size" json:"size"`
	Weight            *float64          `db:"weight" json:"weight,omitempty"`
	Temperament       pq.StringArray    `db:"temperament" json:"temperament"`
	VaccinationStatus VaccinationStatus `db:"vaccination_status" json:"vaccinationStatus"`
	Neutered          bool              `db:"neutered" json:"neutered"`
	Bio               string            `db:"bio" json:"bio,omitempty"`
	Latitude          float64           `db:"location_lat" json:"latitude"`
	Longitude         float64           `db:"location_lng" json:"longitude"`
	LocationDisplay   string            `db:"location_display" json:"locationDisplay,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`
}

// NearbyDog is a search hit with its distance from the search origin.
type NearbyDog struct {
	Dog
	DistanceKm float64 `json:"distanceKm"`
}

// CreateInput holds the fields accepted when listing a dog.
type CreateInput struct {
	Name              string
	PrimaryBreed      string
	SecondaryBreed    string
	Age               int
	Size              Size
	Weight            *float64
	Temperament       []string
	VaccinationStatus VaccinationStatus
	Neutered          bool
	Bio               string
	Latitude          float64
	Longitude         float64
	LocationDisplay   string
}

// Bounds is a latitude/longitude box used to narrow radius searches.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether the point lies inside b.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}
