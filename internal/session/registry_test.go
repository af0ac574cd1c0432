package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"socialdog/internal/identity"
	"socialdog/internal/profiles"
)

type registryFixture struct {
	registry *Registry
	identity *identity.Service
	profiles *profiles.Service
	recorder *recorderStub
	clock    *testClock
}

func newRegistryFixture(t *testing.T) registryFixture {
	t.Helper()
	idSvc := identity.NewService(identity.NewInMemoryRepository(), time.Hour, identity.WithPasswordCost(bcrypt.MinCost))
	profSvc := profiles.NewService(profiles.NewInMemoryRepository(nil))
	rec := &recorderStub{}
	clock := newTestClock()

	r := NewRegistry(idSvc, profSvc, discardLogger(), WithRecorder(rec))
	r.now = clock.Now
	t.Cleanup(r.Close)

	return registryFixture{registry: r, identity: idSvc, profiles: profSvc, recorder: rec, clock: clock}
}

func TestRegistryRestoresStoredSession(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	sess, err := f.identity.SignUp(ctx, "owner@example.com", "Password123", nil)
	if err != nil {
		t.Fatalf("SignUp() returned error: %v", err)
	}
	profile, err := f.profiles.Create(ctx, profiles.CreateInput{UserID: sess.UserID, FirstName: "Sam", Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("Create() returned error: %v", err)
	}

	m, err := f.registry.Get(ctx, "client-a", sess.Token)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	snap := m.Snapshot()
	if snap.User == nil || snap.User.ID != sess.UserID {
		t.Fatalf("expected restored identity, got %+v", snap.User)
	}
	if snap.Profile == nil || snap.Profile.ID != profile.ID {
		t.Fatalf("expected restored profile, got %+v", snap.Profile)
	}

	again, err := f.registry.Get(ctx, "client-a", "")
	if err != nil {
		t.Fatalf("second Get() returned error: %v", err)
	}
	if again != m {
		t.Fatal("expected the same manager for the same client")
	}
	if f.registry.Len() != 1 {
		t.Fatalf("expected one manager, got %d", f.registry.Len())
	}

	f.recorder.mu.Lock()
	clients := f.recorder.clients
	f.recorder.mu.Unlock()
	if clients != 1 {
		t.Fatalf("expected active clients gauge of 1, got %d", clients)
	}
}

func TestRegistryIgnoresUnknownStoredToken(t *testing.T) {
	f := newRegistryFixture(t)

	m, err := f.registry.Get(context.Background(), "client-a", "not-a-token")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if snap := m.Snapshot(); snap.Phase != PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated manager, got %s", snap.Phase)
	}
}

func TestRegistryGuestConversionKeepsIdentity(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	m, err := f.registry.Get(ctx, "client-b", "")
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if _, err := m.SignInAsGuest(ctx, GuestOptions{}); err != nil {
		t.Fatalf("SignInAsGuest() returned error: %v", err)
	}
	guestID := m.Snapshot().User.ID

	err = m.ConvertToAccount(ctx, ConversionData{Email: "a@b.com", Password: "longenough1", FirstName: "A", LastName: "B"})
	if err != nil {
		t.Fatalf("ConvertToAccount() returned error: %v", err)
	}

	snap := m.Snapshot()
	if snap.User.ID != guestID || snap.IsAnonymous {
		t.Fatalf("expected same non-anonymous identity, got %+v", snap.User)
	}
	if snap.Profile.UserType != profiles.UserTypePermanent || snap.Profile.Email != "a@b.com" {
		t.Fatalf("unexpected converted profile %+v", snap.Profile)
	}

	signedIn, err := f.identity.SignInWithPassword(ctx, "a@b.com", "longenough1")
	if err != nil {
		t.Fatalf("SignInWithPassword() after conversion returned error: %v", err)
	}
	if signedIn.UserID != guestID {
		t.Fatalf("expected linked credential on guest identity %s, got %s", guestID, signedIn.UserID)
	}

	token := snap.Session.Token
	if err := m.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() returned error: %v", err)
	}
	revoked, err := f.identity.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession() returned error: %v", err)
	}
	if revoked != nil {
		t.Fatal("expected backend session to be revoked")
	}
}

func TestRegistrySweepRemovesIdleManagers(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.registry.Get(ctx, "stale", ""); err != nil {
		t.Fatalf("Get(stale) returned error: %v", err)
	}
	if _, err := f.registry.Get(ctx, "busy", ""); err != nil {
		t.Fatalf("Get(busy) returned error: %v", err)
	}

	f.clock.Advance(90 * time.Minute)
	if _, err := f.registry.Get(ctx, "busy", ""); err != nil {
		t.Fatalf("Get(busy) returned error: %v", err)
	}

	if removed := f.registry.Sweep(time.Hour); removed != 1 {
		t.Fatalf("expected one idle manager removed, got %d", removed)
	}
	if f.registry.Len() != 1 {
		t.Fatalf("expected one manager left, got %d", f.registry.Len())
	}

	f.registry.Remove("busy")
	if f.registry.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", f.registry.Len())
	}
	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	if f.recorder.clients != 0 {
		t.Fatalf("expected gauge to drop to 0, got %d", f.recorder.clients)
	}
}

func TestRegistryRequiresClientID(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.Get(context.Background(), "", "")
	if !errors.Is(err, ErrMissingClientID) {
		t.Fatalf("expected ErrMissingClientID, got %v", err)
	}
}
