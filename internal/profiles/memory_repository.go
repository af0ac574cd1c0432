package profiles

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository stores profiles in an in-process map, for local development or tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	data   map[uuid.UUID]Profile
	byUser map[uuid.UUID]uuid.UUID
}

// NewInMemoryRepository constructs a repository seeded with optional initial profiles.
func NewInMemoryRepository(initial []Profile) *InMemoryRepository {
	r := &InMemoryRepository{
		data:   make(map[uuid.UUID]Profile, len(initial)),
		byUser: make(map[uuid.UUID]uuid.UUID, len(initial)),
	}
	for _, p := range initial {
		r.data[p.ID] = p
		r.byUser[p.UserID] = p.ID
	}
	return r
}

// Create stores a new profile, enforcing one profile per user.
func (r *InMemoryRepository) Create(_ context.Context, profile Profile) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUser[profile.UserID]; exists {
		return Profile{}, ErrAlreadyExists
	}
	r.data[profile.ID] = profile
	r.byUser[profile.UserID] = profile.ID
	return profile, nil
}

// Get returns a profile by ID.
func (r *InMemoryRepository) Get(_ context.Context, id uuid.UUID) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.data[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return profile, nil
}

// GetByUserID returns the profile owned by userID.
func (r *InMemoryRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (Profile, error) {
	r.mu.RLock()
	id, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return Profile{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

// Update replaces an existing profile.
func (r *InMemoryRepository) Update(_ context.Context, profile Profile) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.data[profile.ID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	profile.UserID = existing.UserID
	profile.CreatedAt = existing.CreatedAt
	r.data[profile.ID] = profile
	return profile, nil
}
