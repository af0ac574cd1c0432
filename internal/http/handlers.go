package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"socialdog/internal/identity"
	"socialdog/internal/profiles"
	"socialdog/internal/session"
)

const maxJSONBodyBytes int64 = 64 << 10

var errPayloadTooLarge = errors.New("payload too large")

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeFieldErrors(w http.ResponseWriter, message string, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message, Fields: fields})
}

// writeRequestError reports request validation failures field by field.
func writeRequestError(w http.ResponseWriter, err error) {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields := make(map[string]string, len(fieldErrs))
	keys := make([]string, 0, len(fieldErrs))
	for key, fieldErr := range fieldErrs {
		fields[key] = fieldErr.Error()
		keys = append(keys, key)
	}
	sort.Strings(keys)
	writeFieldErrors(w, fields[keys[0]], fields)
}

// handleSessionError maps manager and store failures onto HTTP statuses.
func handleSessionError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var validationErr *profiles.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeFieldErrors(w, validationErr.Message, validationErr.Fields)
	case errors.Is(err, session.ErrOperationInProgress):
		writeError(w, http.StatusTooManyRequests, "another sign-in is already in progress")
	case errors.Is(err, session.ErrPrecondition):
		writeError(w, http.StatusConflict, preconditionMessage(err))
	case errors.Is(err, session.ErrCredential):
		handleCredentialError(w, err)
	case errors.Is(err, session.ErrBackend):
		logger.Error("backend call failed", "error", err)
		writeError(w, http.StatusBadGateway, "Something went wrong. Please try again.")
	default:
		logger.Error("unexpected session error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}

func handleCredentialError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, identity.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:  "An account with this email already exists",
			Fields: map[string]string{"email": "is already registered"},
		})
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrPasswordTooLong):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  capitalize(rootMessage(err)),
			Fields: map[string]string{"password": rootMessage(err)},
		})
	case errors.Is(err, identity.ErrInvalidEmail):
		writeFieldErrors(w, "Please enter a valid email", map[string]string{"email": "must be a valid email address"})
	case errors.Is(err, identity.ErrInvalidResetToken):
		writeError(w, http.StatusBadRequest, "This reset link is invalid or has expired")
	default:
		writeError(w, http.StatusBadRequest, rootMessage(err))
	}
}

func preconditionMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrAlreadySignedIn):
		return "already signed in; sign out first"
	case errors.Is(err, session.ErrNotSignedIn), errors.Is(err, identity.ErrNoSession):
		return "not signed in"
	case errors.Is(err, session.ErrNotGuest), errors.Is(err, identity.ErrNotAnonymous):
		return "only guest accounts can be upgraded"
	case errors.Is(err, session.ErrNoProfile):
		return "no profile is loaded for this account"
	case errors.Is(err, session.ErrSignedOutDuringOperation):
		return "signed out before the request completed"
	case errors.Is(err, session.ErrLinkedToOtherEmail):
		return "this account is already linked to a different email"
	case errors.Is(err, session.ErrGuestDurationTooLong):
		return "guest sessions can last at most 30 days"
	default:
		return "operation not allowed right now"
	}
}

// rootMessage returns the message of the innermost identity sentinel.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		identity.ErrWeakPassword,
		identity.ErrPasswordTooLong,
		identity.ErrInvalidEmail,
		identity.ErrInvalidCredentials,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "invalid request"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	limited := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = limited.Close()
	}()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	// Return generic message to avoid leaking internal JSON parsing details
	writeError(w, http.StatusBadRequest, "invalid request body")
}

func decodeInto(raw map[string]json.RawMessage, payload any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, payload)
}
