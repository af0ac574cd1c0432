package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"socialdog/internal/geocode"
	"socialdog/internal/metrics"
)

// LocationSearcher describes the address lookup used by the sign-up form.
type LocationSearcher interface {
	Search(ctx context.Context, query string) ([]geocode.Suggestion, error)
}

// GeocodeRecorder counts address lookups by outcome.
type GeocodeRecorder interface {
	RecordGeocode(outcome string)
}

type noopGeocodeRecorder struct{}

func (noopGeocodeRecorder) RecordGeocode(string) {}

// LocationHandler exposes address suggestions.
type LocationHandler struct {
	service  LocationSearcher
	recorder GeocodeRecorder
	logger   *slog.Logger
}

// NewLocationHandler constructs a handler for address lookups. recorder may be nil.
func NewLocationHandler(service LocationSearcher, recorder GeocodeRecorder, logger *slog.Logger) *LocationHandler {
	if recorder == nil {
		recorder = noopGeocodeRecorder{}
	}
	return &LocationHandler{service: service, recorder: recorder, logger: logger}
}

// Search handles GET /api/locations/search?q=.
func (h *LocationHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	suggestions, err := h.service.Search(r.Context(), query)
	if err != nil {
		switch {
		case errors.Is(err, geocode.ErrInvalidQuery):
			h.recorder.RecordGeocode(metrics.OutcomeInvalidInput)
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.recorder.RecordGeocode(metrics.OutcomeBackendError)
			h.logger.Error("address search failed", "error", err, "query", query)
			writeError(w, http.StatusBadGateway, "address search failed. Try again later.")
		}
		return
	}

	h.recorder.RecordGeocode(metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": suggestions,
	})
}
