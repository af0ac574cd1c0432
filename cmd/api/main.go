package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"socialdog/internal/config"
	"socialdog/internal/dogs"
	"socialdog/internal/geocode"
	transporthttp "socialdog/internal/http"
	"socialdog/internal/identity"
	"socialdog/internal/metrics"
	"socialdog/internal/platform/database"
	"socialdog/internal/platform/logging"
	"socialdog/internal/platform/migrate"
	"socialdog/internal/profiles"
	"socialdog/internal/session"
)

const (
	resetTokenTTL   = time.Hour
	cleanupInterval = 15 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	repos, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if repos.cleanup != nil {
		defer repos.cleanup()
	}

	secret := cfg.TokenSecret
	if secret == "" {
		secret = devTokenSecret()
		logger.Warn("AUTH_TOKEN_SECRET not set; using a random secret, reset links will not survive a restart")
	}

	identitySvc := identity.NewService(repos.identities, cfg.SessionTTL,
		identity.WithResetTokenSecret([]byte(secret)),
		identity.WithResetTokenTTL(resetTokenTTL),
		identity.WithMailer(identity.NewLogMailer(logger)),
		identity.WithLogger(logger),
	)
	profileSvc := profiles.NewService(repos.profiles)
	dogSvc := dogs.NewService(repos.dogs)

	if cfg.SeedDemoAccount {
		if err := seedDemoAccount(ctx, identitySvc, profileSvc, logger); err != nil {
			logger.Warn("demo account not seeded", "error", err)
		} else {
			logger.Info("demo account ready", "email", demoEmail)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	sessions := session.NewRegistry(identitySvc, profileSvc, logger,
		session.WithRecorder(collector),
		session.WithGuestSessionHours(cfg.GuestSessionHours),
		session.WithPasswordResetRedirect(cfg.FrontendURL+"/auth/reset-password"),
		session.WithChangeListener(func(snap session.Snapshot) {
			logger.Debug("session changed", "phase", snap.Phase, "anonymous", snap.IsAnonymous, "loading", snap.IsLoading)
		}),
	)
	defer sessions.Close()

	geocodeClient := &http.Client{Timeout: 10 * time.Second}
	geocoder := geocode.NewService(geocodeClient,
		geocode.WithBaseURL(cfg.GeocoderURL),
		geocode.WithRateLimit(cfg.GeocoderRatePerSecond),
	)

	services := transporthttp.Services{
		Sessions:  sessions,
		Passwords: identitySvc,
		Locations: geocoder,
		Metrics:   registry,
		Geocodes:  collector,
		Dogs:      dogSvc,
	}

	if cfg.OAuthEnabled() {
		google, err := identity.NewGoogleAuthenticator(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL())
		if err != nil {
			logger.Error("failed to initialize Google sign-in", "error", err)
			os.Exit(1)
		}
		services.Google = google
	}

	router := transporthttp.NewRouter(cfg, services, logger)

	go runCleanup(ctx, identitySvc, sessions, collector, cfg.ClientIdleTimeout, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("SocialDog API listening", "addr", srv.Addr, "store", cfg.DataStore, "google", cfg.OAuthEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// runCleanup periodically drops expired backend sessions and idle client managers.
func runCleanup(ctx context.Context, identitySvc *identity.Service, sessions *session.Registry, collector *metrics.Collector, idle time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := identitySvc.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Warn("expired session cleanup failed", "error", err)
			} else {
				collector.RecordExpiredSessions(removed)
			}
			if evicted := sessions.Sweep(idle); evicted > 0 {
				logger.Debug("evicted idle clients", "count", evicted)
			}
		}
	}
}

type repositories struct {
	identities identity.Repository
	profiles   profiles.Repository
	dogs       dogs.Repository
	cleanup    func()
}

func buildRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories, error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory repository")
		return repositories{
			identities: identity.NewInMemoryRepository(),
			profiles:   profiles.NewInMemoryRepository(nil),
			dogs:       dogs.NewInMemoryRepository(),
		}, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return repositories{}, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return repositories{}, err
	}

	logger.Info("connected to postgres")
	return repositories{
		identities: identity.NewPostgresRepository(db),
		profiles:   profiles.NewPostgresRepository(db),
		dogs:       dogs.NewPostgresRepository(db),
		cleanup:    cleanup,
	}, nil
}

func devTokenSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
