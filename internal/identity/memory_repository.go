package identity

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

type userRecord struct {
	user         User
	passwordHash string
}

type sessionRecord struct {
	session   Session
	tokenHash string
}

// InMemoryRepository stores identities and sessions in process memory, for local development or tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]userRecord
	byEmail  map[string]uuid.UUID
	byOAuth  map[oauthKey]uuid.UUID
	sessions map[uuid.UUID]sessionRecord
	byToken  map[string]uuid.UUID
}

type oauthKey struct {
	provider   Provider
	providerID string
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:    make(map[uuid.UUID]userRecord),
		byEmail:  make(map[string]uuid.UUID),
		byOAuth:  make(map[oauthKey]uuid.UUID),
		sessions: make(map[uuid.UUID]sessionRecord),
		byToken:  make(map[string]uuid.UUID),
	}
}

// FindUserByID returns the user and password hash for id.
func (r *InMemoryRepository) FindUserByID(_ context.Context, id uuid.UUID) (*User, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.users[id]
	if !ok {
		return nil, "", nil
	}
	user := cloneUser(rec.user)
	return &user, rec.passwordHash, nil
}

// FindUserByEmail returns the user and password hash registered under email.
func (r *InMemoryRepository) FindUserByEmail(ctx context.Context, email string) (*User, string, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, "", nil
	}
	return r.FindUserByID(ctx, id)
}

// FindUserByOAuth looks up a user by OAuth provider and subject.
func (r *InMemoryRepository) FindUserByOAuth(ctx context.Context, provider Provider, providerID string) (*User, error) {
	r.mu.RLock()
	id, ok := r.byOAuth[oauthKey{provider, providerID}]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	user, _, err := r.FindUserByID(ctx, id)
	return user, err
}

// CreateUser stores a new user, rejecting duplicate emails.
func (r *InMemoryRepository) CreateUser(_ context.Context, user User, passwordHash string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.Email != "" {
		if _, taken := r.byEmail[user.Email]; taken {
			return User{}, ErrEmailTaken
		}
		r.byEmail[user.Email] = user.ID
	}
	if user.ProviderID != "" {
		r.byOAuth[oauthKey{user.Provider, user.ProviderID}] = user.ID
	}
	r.users[user.ID] = userRecord{user: cloneUser(user), passwordHash: passwordHash}
	return cloneUser(user), nil
}

// LinkCredential attaches an email and password to an existing identity.
func (r *InMemoryRepository) LinkCredential(_ context.Context, id uuid.UUID, email, passwordHash string, at time.Time) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if owner, taken := r.byEmail[email]; taken && owner != id {
		return User{}, ErrEmailTaken
	}
	if rec.user.Email != "" {
		delete(r.byEmail, rec.user.Email)
	}

	rec.user.Email = email
	rec.user.IsAnonymous = false
	rec.user.Provider = ProviderEmail
	rec.user.UpdatedAt = at
	rec.passwordHash = passwordHash
	r.users[id] = rec
	r.byEmail[email] = id
	return cloneUser(rec.user), nil
}

// UpdatePassword replaces the password hash and confirms the email if it was not already.
func (r *InMemoryRepository) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	rec.passwordHash = passwordHash
	rec.user.UpdatedAt = at
	if rec.user.EmailConfirmedAt == nil {
		confirmed := at
		rec.user.EmailConfirmedAt = &confirmed
	}
	r.users[id] = rec
	return nil
}

// MarkSignedIn records the last sign-in time.
func (r *InMemoryRepository) MarkSignedIn(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	rec.user.LastSignInAt = at
	r.users[id] = rec
	return nil
}

// CreateSession stores a new session under its token hash.
func (r *InMemoryRepository) CreateSession(_ context.Context, session Session, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session.Token = ""
	session.User = User{}
	r.sessions[session.ID] = sessionRecord{session: session, tokenHash: tokenHash}
	r.byToken[tokenHash] = session.ID
	return nil
}

// FindSessionByTokenHash looks up a session and its user by token hash.
func (r *InMemoryRepository) FindSessionByTokenHash(_ context.Context, tokenHash string) (*Session, *User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[tokenHash]
	if !ok {
		return nil, nil, nil
	}
	rec := r.sessions[id]
	owner, ok := r.users[rec.session.UserID]
	if !ok {
		return nil, nil, nil
	}
	session := rec.session
	user := cloneUser(owner.user)
	return &session, &user, nil
}

// DeleteSession removes a session.
func (r *InMemoryRepository) DeleteSession(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteSessionLocked(id)
	return nil
}

// DeleteUserSessions removes every session owned by userID.
func (r *InMemoryRepository) DeleteUserSessions(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, rec := range r.sessions {
		if rec.session.UserID == userID {
			r.deleteSessionLocked(id)
			count++
		}
	}
	return count, nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (r *InMemoryRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, rec := range r.sessions {
		if rec.session.ExpiresAt.Before(now) {
			r.deleteSessionLocked(id)
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) deleteSessionLocked(id uuid.UUID) {
	rec, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.byToken, rec.tokenHash)
	delete(r.sessions, id)
}

func cloneUser(u User) User {
	u.Metadata = maps.Clone(u.Metadata)
	if u.EmailConfirmedAt != nil {
		confirmed := *u.EmailConfirmedAt
		u.EmailConfirmedAt = &confirmed
	}
	return u
}
