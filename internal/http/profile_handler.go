package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"socialdog/internal/profiles"
)

// ProfileHandler edits the signed-in client's cached profile.
type ProfileHandler struct {
	logger *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{logger: logger}
}

// Update handles PATCH /api/profile. Only the keys present in the body are
// changed; an explicit null clears a nullable field.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}
	if !manager.Snapshot().Authenticated() {
		unauthorized(w)
		return
	}

	raw := map[string]json.RawMessage{}
	if err := decodeJSONBody(w, r, &raw); err != nil {
		writeJSONError(w, err)
		return
	}

	var payload struct {
		FirstName       *string  `json:"firstName"`
		LastName        *string  `json:"lastName"`
		Location        *string  `json:"location"`
		City            *string  `json:"city"`
		LocationDisplay *string  `json:"locationDisplay"`
		Latitude        *float64 `json:"latitude"`
		Longitude       *float64 `json:"longitude"`
		Age             *int     `json:"age"`
		Bio             *string  `json:"bio"`
		ProfilePhoto    *string  `json:"profilePhoto"`
	}

	if err := decodeInto(raw, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := profiles.ProfileUpdate{}
	if _, ok := raw["firstName"]; ok {
		update.FirstName = orEmpty(payload.FirstName)
	}
	if _, ok := raw["lastName"]; ok {
		update.LastName = orEmpty(payload.LastName)
	}
	if _, ok := raw["location"]; ok {
		update.Location = orEmpty(payload.Location)
	}
	if _, ok := raw["city"]; ok {
		update.City = orEmpty(payload.City)
	}
	if _, ok := raw["locationDisplay"]; ok {
		update.LocationDisplay = orEmpty(payload.LocationDisplay)
	}
	if _, ok := raw["latitude"]; ok {
		value := payload.Latitude
		update.Latitude = &value
	}
	if _, ok := raw["longitude"]; ok {
		value := payload.Longitude
		update.Longitude = &value
	}
	if _, ok := raw["age"]; ok {
		value := payload.Age
		update.Age = &value
	}
	if _, ok := raw["bio"]; ok {
		update.Bio = orEmpty(payload.Bio)
	}
	if _, ok := raw["profilePhoto"]; ok {
		update.ProfilePhoto = orEmpty(payload.ProfilePhoto)
	}

	if update.IsEmpty() {
		writeError(w, http.StatusBadRequest, "no profile fields to update")
		return
	}

	profile, err := manager.UpdateProfile(r.Context(), update)
	if err != nil {
		handleSessionError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Refresh handles POST /api/profile/refresh, reloading the cached profile from
// storage.
func (h *ProfileHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}
	if !manager.Snapshot().Authenticated() {
		unauthorized(w)
		return
	}

	if err := manager.RefreshProfile(r.Context()); err != nil {
		handleSessionError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, manager.Snapshot())
}

// orEmpty turns an explicit null for a text column into an empty string.
func orEmpty(value *string) *string {
	if value == nil {
		return new(string)
	}
	return value
}
