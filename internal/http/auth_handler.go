package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"socialdog/internal/identity"
	"socialdog/internal/session"
)

const minPasswordLength = 8

// PasswordResetter completes a password reset from an emailed token.
type PasswordResetter interface {
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type signUpRequest struct {
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirmPassword"`
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Location        string   `json:"location"`
	City            string   `json:"city"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
}

func (r signUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			validation.Match(identity.EmailPattern).Error("Please enter a valid email"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("Password is required"),
			validation.Length(minPasswordLength, 0).Error("Password must be at least 8 characters"),
		),
		validation.Field(&r.ConfirmPassword, validation.By(matches(r.Password))),
		validation.Field(&r.FirstName, validation.By(notBlank("First name is required"))),
		validation.Field(&r.LastName, validation.By(notBlank("Last name is required"))),
	)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r signInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Please enter a valid email"),
		),
		validation.Field(&r.Password, validation.Required.Error("Password is required")),
	)
}

type guestRequest struct {
	SessionDurationHours int `json:"sessionDurationHours"`
}

func (r guestRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionDurationHours,
			validation.Min(0).Error("Session duration must not be negative"),
			validation.Max(session.MaxGuestSessionHours).Error("Session duration must be at most 30 days"),
		),
	)
}

type convertRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	AgreeToTerms    bool   `json:"agreeToTerms"`
}

func (r convertRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			validation.Match(identity.EmailPattern).Error("Please enter a valid email"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("Password is required"),
			validation.Length(minPasswordLength, 0).Error("Password must be at least 8 characters"),
		),
		validation.Field(&r.ConfirmPassword, validation.By(matches(r.Password))),
		validation.Field(&r.FirstName, validation.By(notBlank("First name is required"))),
		validation.Field(&r.LastName, validation.By(notBlank("Last name is required"))),
		validation.Field(&r.AgreeToTerms, validation.Required.Error("You must agree to the terms of service")),
	)
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (r passwordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Please enter a valid email"),
		),
	)
}

type passwordResetConfirmRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r passwordResetConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required.Error("Reset token is required")),
		validation.Field(&r.Password,
			validation.Required.Error("Password is required"),
			validation.Length(minPasswordLength, 0).Error("Password must be at least 8 characters"),
		),
		validation.Field(&r.ConfirmPassword, validation.By(matches(r.Password))),
	)
}

func matches(password string) validation.RuleFunc {
	return func(value interface{}) error {
		if confirm, _ := value.(string); confirm != password {
			return errors.New("Passwords do not match")
		}
		return nil
	}
}

func notBlank(message string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); strings.TrimSpace(s) == "" {
			return errors.New(message)
		}
		return nil
	}
}

// authResponse is the snapshot after a sign-in, plus whether the profile step
// fell short.
type authResponse struct {
	session.Snapshot
	Degraded bool   `json:"degraded"`
	Warning  string `json:"warning,omitempty"`
}

// AuthHandler drives sign-up, sign-in, guest access, guest conversion and
// password resets for the requesting client.
type AuthHandler struct {
	passwords PasswordResetter
	cookies   cookieJar
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(passwords PasswordResetter, env string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{passwords: passwords, cookies: newCookieJar(env), logger: logger}
}

// SignUp handles POST /api/auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}

	var req signUpRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := manager.SignUp(r.Context(), identity.NormalizeEmail(req.Email), req.Password, session.SignUpDetails{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Location:  strings.TrimSpace(req.Location),
		City:      strings.TrimSpace(req.City),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	h.respondSignIn(w, manager, http.StatusCreated, result, err)
}

// SignIn handles POST /api/auth/signin.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}

	var req signInRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := manager.SignIn(r.Context(), identity.NormalizeEmail(req.Email), req.Password)
	h.respondSignIn(w, manager, http.StatusOK, result, err)
}

// Guest handles POST /api/auth/guest. The body is optional.
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}

	var req guestRequest
	if err := decodeJSONBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeRequestError(w, err)
		return
	}

	result, err := manager.SignInAsGuest(r.Context(), session.GuestOptions{SessionDurationHours: req.SessionDurationHours})
	h.respondSignIn(w, manager, http.StatusCreated, result, err)
}

// Convert handles POST /api/auth/convert, upgrading the signed-in guest to a
// permanent account under the same identity.
func (h *AuthHandler) Convert(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}

	var req convertRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := manager.ConvertToAccount(r.Context(), session.ConversionData{
		Email:     identity.NormalizeEmail(req.Email),
		Password:  req.Password,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	})
	if err != nil {
		handleSessionError(w, err, h.logger)
		return
	}

	snap := manager.Snapshot()
	http.SetCookie(w, h.cookies.sessionCookie(snap))
	writeJSON(w, http.StatusOK, authResponse{Snapshot: snap})
}

// RequestPasswordReset handles POST /api/auth/password-reset. Unknown
// addresses get the same answer as known ones.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}

	var req passwordResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := manager.SendPasswordReset(r.Context(), identity.NormalizeEmail(req.Email)); err != nil {
		handleSessionError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ConfirmPasswordReset handles POST /api/auth/password-reset/confirm. Every
// session of the identity is revoked, so the client is signed out too.
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.passwords.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, identity.ErrResetUnavailable):
			writeError(w, http.StatusServiceUnavailable, "password reset is not available")
		case identity.IsCredentialError(err):
			handleCredentialError(w, err)
		default:
			h.logger.Error("password reset failed", "error", err)
			writeError(w, http.StatusInternalServerError, "unexpected error")
		}
		return
	}

	if manager := ManagerFromContext(r.Context()); manager != nil && manager.Snapshot().Authenticated() {
		if err := manager.SignOut(r.Context()); err != nil {
			h.logger.Warn("sign out after password reset failed", "error", err)
		}
	}
	http.SetCookie(w, h.cookies.clearedSessionCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) respondSignIn(w http.ResponseWriter, manager *session.Manager, status int, result session.Result, err error) {
	if err != nil {
		handleSessionError(w, err, h.logger)
		return
	}

	snap := manager.Snapshot()
	http.SetCookie(w, h.cookies.sessionCookie(snap))

	resp := authResponse{Snapshot: snap, Degraded: result.Degraded}
	if result.Degraded {
		resp.Warning = "Signed in, but your profile could not be loaded. Some features may be unavailable."
	}
	writeJSON(w, status, resp)
}

type validatable interface {
	Validate() error
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	if err := decodeJSONBody(w, r, dst); err != nil {
		writeJSONError(w, err)
		return false
	}
	if err := dst.Validate(); err != nil {
		writeRequestError(w, err)
		return false
	}
	return true
}

func requireManager(w http.ResponseWriter, r *http.Request) (*session.Manager, bool) {
	manager := ManagerFromContext(r.Context())
	if manager == nil {
		unauthorized(w)
		return nil, false
	}
	return manager, true
}
