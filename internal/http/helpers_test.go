package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"socialdog/internal/config"
	"socialdog/internal/dogs"
	"socialdog/internal/geocode"
	"socialdog/internal/identity"
	"socialdog/internal/profiles"
	"socialdog/internal/session"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type captureMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[email] = link
	return nil
}

func (m *captureMailer) token(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	link, ok := m.links[email]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no reset link sent to %s", email)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse reset link: %v", err)
	}
	return parsed.Query().Get("token")
}

type locationSearcherStub struct {
	search    func(ctx context.Context, query string) ([]geocode.Suggestion, error)
	lastQuery string
}

func (s *locationSearcherStub) Search(ctx context.Context, query string) ([]geocode.Suggestion, error) {
	s.lastQuery = query
	if s.search != nil {
		return s.search(ctx, query)
	}
	return nil, nil
}

type geocodeRecorderStub struct {
	outcomes []string
}

func (r *geocodeRecorderStub) RecordGeocode(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

type testApp struct {
	handler   http.Handler
	identity  *identity.Service
	profiles  *profiles.Service
	dogs      *dogs.Service
	registry  *session.Registry
	mailer    *captureMailer
	locations *locationSearcherStub
	geocodes  *geocodeRecorderStub
	google    *fakeGoogleAuthenticator
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := newTestLogger()
	mailer := &captureMailer{}

	idSvc := identity.NewService(identity.NewInMemoryRepository(), time.Hour,
		identity.WithPasswordCost(bcrypt.MinCost),
		identity.WithResetTokenSecret([]byte("test-reset-secret")),
		identity.WithMailer(mailer),
	)
	profSvc := profiles.NewService(profiles.NewInMemoryRepository(nil))
	dogSvc := dogs.NewService(dogs.NewInMemoryRepository())
	registry := session.NewRegistry(idSvc, profSvc, logger,
		session.WithPasswordResetRedirect("http://frontend.test/auth/reset-password"),
	)
	t.Cleanup(registry.Close)

	locations := &locationSearcherStub{}
	geocodes := &geocodeRecorderStub{}
	google := &fakeGoogleAuthenticator{}
	cfg := config.Config{
		Environment:    "development",
		AllowedOrigins: []string{"http://frontend.test"},
		FrontendURL:    "http://frontend.test",
	}

	handler := NewRouter(cfg, Services{
		Sessions:  registry,
		Passwords: idSvc,
		Locations: locations,
		Geocodes:  geocodes,
		Google:    google,
		Dogs:      dogSvc,
	}, logger)

	return &testApp{
		handler:   handler,
		identity:  idSvc,
		profiles:  profSvc,
		dogs:      dogSvc,
		registry:  registry,
		mailer:    mailer,
		locations: locations,
		geocodes:  geocodes,
		google:    google,
	}
}

// browser replays the cookies the server sets, like a real browser would.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (a *testApp) browser(t *testing.T) *browser {
	return &browser{t: t, handler: a.handler, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(method, target string, body any) *httptest.ResponseRecorder {
	b.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			b.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) cookie(name string) string {
	if c, ok := b.cookies[name]; ok {
		return c.Value
	}
	return ""
}

type snapshotResponse struct {
	Phase         string            `json:"phase"`
	User          *identity.User    `json:"user"`
	Profile       *profiles.Profile `json:"profile"`
	IsAnonymous   bool              `json:"isAnonymous"`
	CanCreateDogs bool              `json:"canCreateDogs"`
	CanMessage    bool              `json:"canMessage"`
	Degraded      bool              `json:"degraded"`
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func signUpBody(email string) map[string]any {
	return map[string]any{
		"email":           email,
		"password":        "Password123",
		"confirmPassword": "Password123",
		"firstName":       "Jamie",
		"lastName":        "Rivera",
		"location":        "12 Queen Street, Auckland",
		"city":            "Auckland",
	}
}

func convertBody(email, firstName, lastName string) map[string]any {
	return map[string]any{
		"email":           email,
		"password":        "Password123",
		"confirmPassword": "Password123",
		"firstName":       firstName,
		"lastName":        lastName,
		"agreeToTerms":    true,
	}
}
