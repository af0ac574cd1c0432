package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the SocialDog server.
type Config struct {
	Environment    string
	HTTPPort       int
	DatabaseURL    string
	DataStore      string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	FrontendURL    string

	// SessionTTL bounds how long a backend session token stays valid.
	SessionTTL time.Duration
	// GuestSessionHours is the default guest lifetime when a caller does not pick one.
	GuestSessionHours int
	// ClientIdleTimeout evicts in-memory session managers nobody has touched for a while.
	ClientIdleTimeout time.Duration
	TokenSecret       string
	SeedDemoAccount   bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	GeocoderURL           string
	GeocoderRatePerSecond float64
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/socialdog_database_url")
	if err != nil {
		return Config{}, err
	}

	tokenSecret, err := getEnvOrFile("AUTH_TOKEN_SECRET", "/run/secrets/socialdog_token_secret")
	if err != nil {
		return Config{}, err
	}

	googleSecret, err := getEnvOrFile("AUTH_GOOGLE_CLIENT_SECRET", "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:        strings.ToLower(getEnv("APP_ENV", "development")),
		DatabaseURL:        databaseURL,
		DataStore:          strings.ToLower(getEnv("DATA_STORE", "memory")),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		AllowedOrigins:     parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		FrontendURL:        strings.TrimSuffix(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		TokenSecret:        strings.TrimSpace(tokenSecret),
		GoogleClientID:     strings.TrimSpace(os.Getenv("AUTH_GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(googleSecret),
		GoogleRedirectURL:  strings.TrimSpace(os.Getenv("AUTH_GOOGLE_REDIRECT_URL")),
		GeocoderURL:        strings.TrimRight(getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"), "/"),
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	if cfg.SessionTTL, err = parseDuration("SESSION_TTL", "168h"); err != nil {
		return Config{}, err
	}
	if cfg.ClientIdleTimeout, err = parseDuration("CLIENT_IDLE_TIMEOUT", "2h"); err != nil {
		return Config{}, err
	}

	hoursValue := getEnv("GUEST_SESSION_HOURS", "24")
	hours, err := strconv.Atoi(hoursValue)
	if err != nil || hours <= 0 {
		return Config{}, fmt.Errorf("invalid GUEST_SESSION_HOURS %q", hoursValue)
	}
	cfg.GuestSessionHours = hours

	rateValue := getEnv("GEOCODER_RATE_PER_SECOND", "1")
	ratePerSecond, err := strconv.ParseFloat(rateValue, 64)
	if err != nil || ratePerSecond <= 0 {
		return Config{}, fmt.Errorf("invalid GEOCODER_RATE_PER_SECOND %q", rateValue)
	}
	cfg.GeocoderRatePerSecond = ratePerSecond

	seedValue := getEnv("SEED_DEMO_ACCOUNT", strconv.FormatBool(cfg.UseInMemoryStore()))
	if cfg.SeedDemoAccount, err = strconv.ParseBool(seedValue); err != nil {
		return Config{}, fmt.Errorf("invalid SEED_DEMO_ACCOUNT %q: %w", seedValue, err)
	}

	if cfg.DataStore != "memory" && cfg.DataStore != "postgres" {
		return Config{}, fmt.Errorf("DATA_STORE must be memory or postgres, got %q", cfg.DataStore)
	}

	if cfg.DataStore == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
	}

	if (cfg.GoogleClientID == "") != (cfg.GoogleClientSecret == "") {
		return Config{}, fmt.Errorf("AUTH_GOOGLE_CLIENT_ID and AUTH_GOOGLE_CLIENT_SECRET must be set together")
	}

	if !cfg.IsDevelopment() {
		if cfg.TokenSecret == "" {
			return Config{}, fmt.Errorf("AUTH_TOKEN_SECRET is required outside development")
		}
		if len(cfg.AllowedOrigins) == 0 {
			return Config{}, fmt.Errorf("ALLOWED_ORIGINS must define at least one origin outside development")
		}
		for _, origin := range cfg.AllowedOrigins {
			if origin == "*" {
				return Config{}, fmt.Errorf("ALLOWED_ORIGINS must not contain * outside development")
			}
		}
	}

	return cfg, nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if the in-memory repositories should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// IsDevelopment reports whether the server runs with local-development relaxations.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// OAuthEnabled reports whether Google sign-in is configured.
func (c Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// OAuthRedirectURL returns the configured callback or one derived from the frontend URL.
func (c Config) OAuthRedirectURL() string {
	if c.GoogleRedirectURL != "" {
		return c.GoogleRedirectURL
	}
	return c.FrontendURL + "/api/auth/google/callback"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	value := getEnv(key, fallback)
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, value)
	}
	return d, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
