package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"socialdog/internal/session"
)

const (
	sessionCookieName = "socialdog_session"
	clientCookieName  = "socialdog_client"
	clientCookieTTL   = 365 * 24 * time.Hour
)

// cookieJar builds the cookies that tie a browser to its client and session.
type cookieJar struct {
	secure bool
	now    func() time.Time
}

func newCookieJar(env string) cookieJar {
	return cookieJar{secure: !strings.EqualFold(env, "development"), now: time.Now}
}

func (c cookieJar) clientCookie(clientID string) *http.Cookie {
	return &http.Cookie{
		Name:     clientCookieName,
		Value:    clientID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.secure,
		MaxAge:   int(clientCookieTTL.Seconds()),
		Expires:  c.now().Add(clientCookieTTL),
	}
}

// sessionCookie mirrors the session the snapshot holds, or clears the cookie
// when there is none.
func (c cookieJar) sessionCookie(snap session.Snapshot) *http.Cookie {
	if snap.Session == nil || snap.Session.Token == "" {
		return c.clearedSessionCookie()
	}
	ttl := snap.Session.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return c.clearedSessionCookie()
	}
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    snap.Session.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.secure,
		MaxAge:   int(ttl.Seconds()),
		Expires:  snap.Session.ExpiresAt,
	}
}

func (c cookieJar) clearedSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.secure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
}

// SessionHandler exposes the current client's sign-in state.
type SessionHandler struct {
	cookies cookieJar
	logger  *slog.Logger
}

// NewSessionHandler returns a handler that sets cookies for env.
func NewSessionHandler(env string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{cookies: newCookieJar(env), logger: logger}
}

// Status reports the current snapshot. Unauthenticated clients get one too.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	manager := ManagerFromContext(r.Context())
	if manager == nil {
		unauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, manager.Snapshot())
}

// Logout signs the client out. Local state is cleared even when revoking the
// backend session fails.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookies.clearedSessionCookie())

	manager := ManagerFromContext(r.Context())
	if manager == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := manager.SignOut(r.Context()); err != nil {
		h.logger.Warn("sign out: backend revoke failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
