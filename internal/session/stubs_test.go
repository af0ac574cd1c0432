package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"socialdog/internal/identity"
	"socialdog/internal/profiles"
)

var errNotStubbed = errors.New("not stubbed")

type authStub struct {
	mu       sync.Mutex
	calls    map[string]int
	listener identity.Listener

	// holdEchoes queues SIGNED_OUT notifications until flushEchoes, like a
	// dispatcher running behind.
	holdEchoes bool
	heldEchoes int

	signUp     func(ctx context.Context, email, password string, metadata map[string]string) (identity.Session, error)
	signIn     func(ctx context.Context, email, password string) (identity.Session, error)
	anonymous  func(ctx context.Context) (identity.Session, error)
	oauth      func(ctx context.Context, claims identity.OAuthClaims) (identity.Session, error)
	link       func(ctx context.Context, email, password string) (identity.User, error)
	signOut    func(ctx context.Context) error
	getSession func(ctx context.Context) (*identity.Session, error)
	reset      func(ctx context.Context, email, redirectTo string) error
}

func newAuthStub() *authStub {
	return &authStub{calls: make(map[string]int)}
}

func (a *authStub) hit(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[name]++
}

func (a *authStub) count(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func (a *authStub) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

// emit delivers a change notification synchronously, as the identity client
// would from its dispatch goroutine.
func (a *authStub) emit(event identity.Event, sess *identity.Session) {
	a.mu.Lock()
	fn := a.listener
	a.mu.Unlock()
	if fn != nil {
		fn(event, sess)
	}
}

func (a *authStub) flushEchoes() {
	a.mu.Lock()
	n := a.heldEchoes
	a.heldEchoes = 0
	a.holdEchoes = false
	a.mu.Unlock()
	for i := 0; i < n; i++ {
		a.emit(identity.EventSignedOut, nil)
	}
}

func (a *authStub) SignUp(ctx context.Context, email, password string, metadata map[string]string) (identity.Session, error) {
	a.hit("SignUp")
	if a.signUp == nil {
		return identity.Session{}, errNotStubbed
	}
	return a.signUp(ctx, email, password, metadata)
}

func (a *authStub) SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error) {
	a.hit("SignInWithPassword")
	if a.signIn == nil {
		return identity.Session{}, errNotStubbed
	}
	return a.signIn(ctx, email, password)
}

func (a *authStub) SignInAnonymously(ctx context.Context) (identity.Session, error) {
	a.hit("SignInAnonymously")
	if a.anonymous == nil {
		return identity.Session{}, errNotStubbed
	}
	return a.anonymous(ctx)
}

func (a *authStub) SignInWithOAuth(ctx context.Context, claims identity.OAuthClaims) (identity.Session, error) {
	a.hit("SignInWithOAuth")
	if a.oauth == nil {
		return identity.Session{}, errNotStubbed
	}
	return a.oauth(ctx, claims)
}

func (a *authStub) LinkPassword(ctx context.Context, email, password string) (identity.User, error) {
	a.hit("LinkPassword")
	if a.link == nil {
		return identity.User{}, errNotStubbed
	}
	return a.link(ctx, email, password)
}

func (a *authStub) SignOut(ctx context.Context) error {
	a.hit("SignOut")
	a.mu.Lock()
	hold := a.holdEchoes
	if hold {
		a.heldEchoes++
	}
	a.mu.Unlock()
	if !hold {
		a.emit(identity.EventSignedOut, nil)
	}
	if a.signOut == nil {
		return nil
	}
	return a.signOut(ctx)
}

func (a *authStub) GetSession(ctx context.Context) (*identity.Session, error) {
	a.hit("GetSession")
	if a.getSession == nil {
		return nil, nil
	}
	return a.getSession(ctx)
}

func (a *authStub) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	a.hit("ResetPasswordForEmail")
	if a.reset == nil {
		return errNotStubbed
	}
	return a.reset(ctx, email, redirectTo)
}

func (a *authStub) Subscribe(fn identity.Listener) func() {
	a.hit("Subscribe")
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		a.listener = nil
		a.mu.Unlock()
	}
}

// profileStub records calls and forwards them to a real in-memory profile service.
type profileStub struct {
	svc *profiles.Service

	mu        sync.Mutex
	gets      int
	creates   int
	updates   int
	getErr    error
	createErr error
	updateErr error
}

func newProfileStub() *profileStub {
	svc := profiles.NewService(profiles.NewInMemoryRepository(nil), profiles.WithClock(func() time.Time { return testEpoch }))
	return &profileStub{svc: svc}
}

func (p *profileStub) GetByUserID(ctx context.Context, userID uuid.UUID) (profiles.Profile, error) {
	p.mu.Lock()
	p.gets++
	err := p.getErr
	p.mu.Unlock()
	if err != nil {
		return profiles.Profile{}, err
	}
	return p.svc.GetByUserID(ctx, userID)
}

func (p *profileStub) Create(ctx context.Context, input profiles.CreateInput) (profiles.Profile, error) {
	p.mu.Lock()
	p.creates++
	err := p.createErr
	p.mu.Unlock()
	if err != nil {
		return profiles.Profile{}, err
	}
	return p.svc.Create(ctx, input)
}

func (p *profileStub) Update(ctx context.Context, id uuid.UUID, update profiles.ProfileUpdate) (profiles.Profile, error) {
	p.mu.Lock()
	p.updates++
	err := p.updateErr
	p.mu.Unlock()
	if err != nil {
		return profiles.Profile{}, err
	}
	return p.svc.Update(ctx, id, update)
}

func (p *profileStub) counts() (gets, creates, updates int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets, p.creates, p.updates
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, auth *authStub, store *profileStub, clock *testClock, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	m := NewManager(auth, store, discardLogger(), opts...)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func newIdentitySession(email string, anonymous bool) identity.Session {
	userID := uuid.New()
	provider := identity.ProviderEmail
	if anonymous {
		provider = identity.ProviderAnonymous
	}
	created := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	return identity.Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     "token-" + userID.String(),
		ExpiresAt: created.Add(7 * 24 * time.Hour),
		CreatedAt: created,
		User: identity.User{
			ID:          userID,
			Email:       email,
			IsAnonymous: anonymous,
			Provider:    provider,
			CreatedAt:   created,
			UpdatedAt:   created,
		},
	}
}

func seedProfile(t *testing.T, store *profileStub, userID uuid.UUID, email string) profiles.Profile {
	t.Helper()
	profile, err := store.svc.Create(context.Background(), profiles.CreateInput{
		UserID:       userID,
		FirstName:    "Sam",
		LastName:     "Owner",
		Email:        email,
		Location:     "Wellington",
		City:         "Wellington",
		AuthProvider: profiles.AuthProviderEmail,
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

type recorderStub struct {
	mu      sync.Mutex
	ops     []string
	clients int
}

func (r *recorderStub) RecordOperation(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, operation+"/"+outcome)
}

func (r *recorderStub) SetActiveClients(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = n
}
