package http

import (
	"net/http"
	"testing"

	"socialdog/internal/profiles"
)

func TestProfileUpdateRequiresSignIn(t *testing.T) {
	app := newTestApp(t)
	rec := app.browser(t).do(http.MethodPatch, "/api/profile", map[string]string{"bio": "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestProfileUpdateChangesOnlyProvidedFields(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	if rec := b.do(http.MethodPost, "/api/auth/signup", signUpBody("jamie@example.com")); rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	rec := b.do(http.MethodPatch, "/api/profile", map[string]any{
		"bio":      "Loves <b>long</b> walks",
		"age":      34,
		"latitude": -36.85,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	profile := decodeResponse[profiles.Profile](t, rec)
	if profile.Bio != "Loves long walks" {
		t.Fatalf("expected sanitized bio, got %q", profile.Bio)
	}
	if profile.Age == nil || *profile.Age != 34 {
		t.Fatalf("expected age 34, got %v", profile.Age)
	}
	if profile.FirstName != "Jamie" || profile.City != "Auckland" {
		t.Fatalf("expected untouched fields to survive, got %+v", profile)
	}

	snap := decodeResponse[snapshotResponse](t, b.do(http.MethodGet, "/api/session", nil))
	if snap.Profile == nil || snap.Profile.Bio != "Loves long walks" {
		t.Fatalf("expected cached profile to be updated, got %+v", snap.Profile)
	}
}

func TestProfileUpdateNullClearsAge(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	if rec := b.do(http.MethodPost, "/api/auth/signup", signUpBody("jamie@example.com")); rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if rec := b.do(http.MethodPatch, "/api/profile", map[string]any{"age": 40}); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec := b.do(http.MethodPatch, "/api/profile", map[string]any{"age": nil})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if profile := decodeResponse[profiles.Profile](t, rec); profile.Age != nil {
		t.Fatalf("expected age to be cleared, got %v", *profile.Age)
	}
}

func TestProfileUpdateValidationError(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	if rec := b.do(http.MethodPost, "/api/auth/signup", signUpBody("jamie@example.com")); rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	rec := b.do(http.MethodPatch, "/api/profile", map[string]any{"age": 12})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if resp := decodeResponse[errorBody](t, rec); resp.Fields["age"] == "" {
		t.Fatalf("expected age field error, got %+v", resp)
	}
}

func TestProfileUpdateRejectsEmptyPatch(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	if rec := b.do(http.MethodPost, "/api/auth/guest", nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	rec := b.do(http.MethodPatch, "/api/profile", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestProfileRefreshPicksUpStoredChanges(t *testing.T) {
	app := newTestApp(t)
	b := app.browser(t)
	rec := b.do(http.MethodPost, "/api/auth/signup", signUpBody("jamie@example.com"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	signedUp := decodeResponse[snapshotResponse](t, rec)

	bio := "Updated elsewhere"
	if _, err := app.profiles.Update(t.Context(), signedUp.Profile.ID, profiles.ProfileUpdate{Bio: &bio}); err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	rec = b.do(http.MethodPost, "/api/profile/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if snap := decodeResponse[snapshotResponse](t, rec); snap.Profile == nil || snap.Profile.Bio != bio {
		t.Fatalf("expected refreshed profile, got %+v", snap.Profile)
	}
}
