package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"socialdog/internal/session"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration", duration.String())
		})
	}
}

// SessionStore hands out the session manager bound to a browser client.
type SessionStore interface {
	Get(ctx context.Context, clientID, storedToken string) (*session.Manager, error)
	Remove(clientID string)
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const managerContextKey contextKey = "session-manager"

// ManagerFromContext returns the session manager the client middleware bound
// to the request, or nil outside that middleware.
func ManagerFromContext(ctx context.Context) *session.Manager {
	manager, _ := ctx.Value(managerContextKey).(*session.Manager)
	return manager
}

// newClientMiddleware identifies the browser by a long-lived client cookie and
// attaches its session manager. The session cookie seeds a fresh manager; when
// it no longer matches what an idle manager holds, the manager is rebuilt from
// the cookie.
func newClientMiddleware(store SessionStore, cookies cookieJar, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := readClientID(r)
			if clientID == "" {
				clientID = uuid.NewString()
				http.SetCookie(w, cookies.clientCookie(clientID))
			}
			token := readSessionToken(r)

			manager, err := store.Get(r.Context(), clientID, token)
			if err != nil {
				logger.Error("session manager unavailable", "error", err)
				writeError(w, http.StatusBadGateway, "session service unavailable")
				return
			}

			if snap := manager.Snapshot(); !snap.IsLoading && snapshotToken(snap) != token {
				store.Remove(clientID)
				if manager, err = store.Get(r.Context(), clientID, token); err != nil {
					logger.Error("session manager unavailable", "error", err)
					writeError(w, http.StatusBadGateway, "session service unavailable")
					return
				}
				if token != "" && !manager.Snapshot().Authenticated() {
					http.SetCookie(w, cookies.clearedSessionCookie())
				}
			}

			expired, err := manager.ExpireGuest(r.Context())
			if err != nil {
				logger.Warn("guest expiry sign-out failed", "error", err)
			}
			if expired {
				http.SetCookie(w, cookies.clearedSessionCookie())
			}

			ctx := context.WithValue(r.Context(), managerContextKey, manager)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func readClientID(r *http.Request) string {
	cookie, err := r.Cookie(clientCookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

func readSessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func snapshotToken(snap session.Snapshot) string {
	if snap.Session == nil {
		return ""
	}
	return snap.Session.Token
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "authentication required")
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "geolocation=(self), camera=(), microphone=()")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
