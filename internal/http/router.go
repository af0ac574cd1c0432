package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"socialdog/internal/config"
	"socialdog/internal/metrics"
)

// Services bundles what the router hands to its handlers. Google is nil when
// Google sign-in is not configured; Metrics is nil to skip /metrics; Dogs is
// nil to leave out the dog routes.
type Services struct {
	Sessions  SessionStore
	Passwords PasswordResetter
	Locations LocationSearcher
	Google    GoogleAuthenticator
	Metrics   prometheus.Gatherer
	Geocodes  GeocodeRecorder
	Dogs      DogStore
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, services Services, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})

	if services.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(services.Metrics))
	}

	cookies := newCookieJar(cfg.Environment)
	sessionHandler := NewSessionHandler(cfg.Environment, logger)
	authHandler := NewAuthHandler(services.Passwords, cfg.Environment, logger)
	profileHandler := NewProfileHandler(logger)
	locationHandler := NewLocationHandler(services.Locations, services.Geocodes, logger)

	if services.Google == nil {
		logger.Info("Google sign-in disabled; /api/auth/google is not registered")
	}

	var dogHandler *DogHandler
	if services.Dogs != nil {
		dogHandler = NewDogHandler(services.Dogs, logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/locations/search", locationHandler.Search)
		if dogHandler != nil {
			r.Get("/dogs/nearby", dogHandler.Nearby)
		}

		r.Group(func(r chi.Router) {
			r.Use(newClientMiddleware(services.Sessions, cookies, logger))

			r.Route("/session", func(r chi.Router) {
				r.Get("/", sessionHandler.Status)
				r.Delete("/", sessionHandler.Logout)
			})

			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", authHandler.SignUp)
				r.Post("/signin", authHandler.SignIn)
				r.Post("/guest", authHandler.Guest)
				r.Post("/convert", authHandler.Convert)
				r.Post("/password-reset", authHandler.RequestPasswordReset)
				r.Post("/password-reset/confirm", authHandler.ConfirmPasswordReset)

				if services.Google != nil {
					oauthHandler := NewOAuthHandler(services.Google, cfg.FrontendURL, cfg.Environment, logger)
					r.Get("/google", oauthHandler.InitiateGoogle)
					r.Get("/google/callback", oauthHandler.CallbackGoogle)
				}
			})

			r.Route("/profile", func(r chi.Router) {
				r.Patch("/", profileHandler.Update)
				r.Post("/refresh", profileHandler.Refresh)
			})

			if dogHandler != nil {
				r.Post("/dogs", dogHandler.Create)
				r.Get("/dogs/mine", dogHandler.Mine)
			}
		})
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
