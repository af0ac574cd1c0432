package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTH_TOKEN_SECRET", "")
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "")
	t.Setenv("AUTH_GOOGLE_CLIENT_SECRET", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("GUEST_SESSION_HOURS", "")
	t.Setenv("SEED_DEMO_ACCOUNT", "")
}

func TestLoadDevelopmentDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if !cfg.UseInMemoryStore() {
		t.Fatal("expected memory store by default")
	}
	if cfg.GuestSessionHours != 24 {
		t.Fatalf("expected 24 guest hours, got %d", cfg.GuestSessionHours)
	}
	if cfg.SessionTTL != 168*time.Hour {
		t.Fatalf("expected 168h session TTL, got %s", cfg.SessionTTL)
	}
	if !cfg.SeedDemoAccount {
		t.Fatal("expected demo account seeding to default on for the memory store")
	}
	if cfg.OAuthEnabled() {
		t.Fatal("expected OAuth to be disabled without client credentials")
	}
	if cfg.HTTPAddress() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress())
	}
}

func TestLoadRequiresTokenSecretOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://socialdog.example")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when AUTH_TOKEN_SECRET is missing outside development")
	}
	if !strings.Contains(err.Error(), "AUTH_TOKEN_SECRET is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsWildcardOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_TOKEN_SECRET", "secret")
	t.Setenv("ALLOWED_ORIGINS", "https://socialdog.example,*")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ALLOWED_ORIGINS contains wildcard")
	}
	if !strings.Contains(err.Error(), "must not contain *") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresAllowedOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_TOKEN_SECRET", "secret")
	t.Setenv("ALLOWED_ORIGINS", "   ")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ALLOWED_ORIGINS is empty")
	}
	if !strings.Contains(err.Error(), "must define at least one origin") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresGoogleCredentialsTogether(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "client-id")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "must be set together") {
		t.Fatalf("expected paired credential error, got %v", err)
	}
}

func TestLoadAcceptsGoogleCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("AUTH_GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("FRONTEND_URL", "https://socialdog.example/")
	t.Setenv("AUTH_GOOGLE_REDIRECT_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.OAuthEnabled() {
		t.Fatal("expected OAuthEnabled() to return true")
	}
	if got := cfg.OAuthRedirectURL(); got != "https://socialdog.example/api/auth/google/callback" {
		t.Fatalf("unexpected redirect URL %q", got)
	}
}

func TestLoadRejectsInvalidGuestHours(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GUEST_SESSION_HOURS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-positive guest hours")
	}
}

func TestLoadRejectsUnknownDataStore(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "sqlite")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported data store")
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "postgres")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Fatalf("expected missing DATABASE_URL error, got %v", err)
	}
}

func TestLoadReadsTokenSecretFromFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "token_secret")
	if err := os.WriteFile(path, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("AUTH_TOKEN_SECRET_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TokenSecret != "from-file" {
		t.Fatalf("expected trimmed secret from file, got %q", cfg.TokenSecret)
	}
}

func TestLoadRejectsEmptySecretFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "token_secret")
	if err := os.WriteFile(path, []byte("   "), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("AUTH_TOKEN_SECRET_FILE", path)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty secret error, got %v", err)
	}
}
