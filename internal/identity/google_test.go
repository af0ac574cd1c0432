package identity

import (
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func TestGenerateState(t *testing.T) {
	state1, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState returned error: %v", err)
	}
	state2, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState returned error: %v", err)
	}
	if state1 == "" || state2 == "" {
		t.Fatal("expected non-empty state")
	}
	if state1 == state2 {
		t.Fatal("expected unique state values")
	}
}

func TestAuthURLCarriesStateAndPrompt(t *testing.T) {
	authenticator := &GoogleAuthenticator{
		config: &oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/api/auth/google/callback",
			Endpoint:     oauth2.Endpoint{AuthURL: "https://auth.test/oauth"},
			Scopes:       []string{"openid", "email"},
		},
	}

	parsed, err := url.Parse(authenticator.AuthURL("state123"))
	if err != nil {
		t.Fatalf("failed to parse auth URL: %v", err)
	}

	query := parsed.Query()
	if query.Get("prompt") != "select_account" {
		t.Fatalf("expected prompt=select_account, got %q", query.Get("prompt"))
	}
	if query.Get("state") != "state123" {
		t.Fatalf("expected state to round-trip, got %q", query.Get("state"))
	}
	if query.Get("redirect_uri") != "http://localhost/api/auth/google/callback" {
		t.Fatalf("unexpected redirect_uri %q", query.Get("redirect_uri"))
	}
}
