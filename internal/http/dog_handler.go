package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"socialdog/internal/dogs"
)

// DogStore lists dogs and answers radius searches. *dogs.Service implements it.
type DogStore interface {
	Create(ctx context.Context, ownerID uuid.UUID, input dogs.CreateInput) (dogs.Dog, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]dogs.Dog, error)
	FindNearby(ctx context.Context, lat, lng, radiusKm float64) ([]dogs.NearbyDog, error)
}

type dogRequest struct {
	Name              string   `json:"name"`
	PrimaryBreed      string   `json:"primaryBreed"`
	SecondaryBreed    string   `json:"secondaryBreed"`
	Age               *int     `json:"age"`
	Size              string   `json:"size"`
	Weight            *float64 `json:"weight"`
	Temperament       []string `json:"temperament"`
	VaccinationStatus string   `json:"vaccinationStatus"`
	Neutered          bool     `json:"neutered"`
	Bio               string   `json:"bio"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	LocationDisplay   string   `json:"locationDisplay"`
}

func (r dogRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.By(notBlank("Dog name is required"))),
		validation.Field(&r.PrimaryBreed, validation.By(notBlank("Primary breed is required"))),
		validation.Field(&r.Age, validation.NotNil.Error("Age is required")),
		validation.Field(&r.Size, validation.Required.Error("Size is required")),
	)
}

// DogHandler serves dog listings. Only permanent accounts may add dogs.
type DogHandler struct {
	dogs   DogStore
	logger *slog.Logger
}

// NewDogHandler creates a DogHandler.
func NewDogHandler(store DogStore, logger *slog.Logger) *DogHandler {
	return &DogHandler{dogs: store, logger: logger}
}

// Create handles POST /api/dogs. Coordinates default to the owner's profile
// location.
func (h *DogHandler) Create(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}
	snap := manager.Snapshot()
	switch {
	case !snap.Authenticated():
		unauthorized(w)
		return
	case !snap.CanCreateDogs:
		writeError(w, http.StatusForbidden, "Create an account to add your dogs")
		return
	case snap.Profile == nil:
		writeError(w, http.StatusConflict, "no profile is loaded for this account")
		return
	}

	var req dogRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	lat, lng := req.Latitude, req.Longitude
	if lat == nil || lng == nil {
		lat, lng = snap.Profile.Latitude, snap.Profile.Longitude
	}
	if lat == nil || lng == nil {
		writeFieldErrors(w, "Location is required", map[string]string{"latitude": "Location is required"})
		return
	}
	display := req.LocationDisplay
	if strings.TrimSpace(display) == "" {
		display = snap.Profile.LocationDisplay
	}

	dog, err := h.dogs.Create(r.Context(), snap.Profile.ID, dogs.CreateInput{
		Name:              req.Name,
		PrimaryBreed:      req.PrimaryBreed,
		SecondaryBreed:    req.SecondaryBreed,
		Age:               *req.Age,
		Size:              dogs.Size(req.Size),
		Weight:            req.Weight,
		Temperament:       req.Temperament,
		VaccinationStatus: dogs.VaccinationStatus(req.VaccinationStatus),
		Neutered:          req.Neutered,
		Bio:               req.Bio,
		Latitude:          *lat,
		Longitude:         *lng,
		LocationDisplay:   display,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dog)
}

// Mine handles GET /api/dogs/mine.
func (h *DogHandler) Mine(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}
	snap := manager.Snapshot()
	if !snap.Authenticated() {
		unauthorized(w)
		return
	}
	if snap.Profile == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []dogs.Dog{}})
		return
	}

	owned, err := h.dogs.ListByOwner(r.Context(), snap.Profile.ID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": owned})
}

// Nearby handles GET /api/dogs/nearby?lat=&lng=&radiusKm=.
func (h *DogHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, latErr := strconv.ParseFloat(query.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(query.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}
	var radius float64
	if value := query.Get("radiusKm"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			writeFieldErrors(w, "radiusKm must be a number", map[string]string{"radiusKm": "must be a number"})
			return
		}
		radius = parsed
	}

	nearby, err := h.dogs.FindNearby(r.Context(), lat, lng, radius)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nearby})
}

func (h *DogHandler) handleError(w http.ResponseWriter, err error) {
	var validationErr *dogs.ValidationError
	if errors.As(err, &validationErr) {
		writeFieldErrors(w, validationErr.Message, validationErr.Fields)
		return
	}
	h.logger.Error("dog request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "unexpected error")
}
