package dogs

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository stores dogs in an in-process map, for local development or tests.
type InMemoryRepository struct {
	mu   sync.RWMutex
	data map[uuid.UUID]Dog
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{data: make(map[uuid.UUID]Dog)}
}

// Create stores a new dog.
func (r *InMemoryRepository) Create(_ context.Context, dog Dog) (Dog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[dog.ID] = dog
	return dog, nil
}

// Get returns a dog by ID.
func (r *InMemoryRepository) Get(_ context.Context, id uuid.UUID) (Dog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dog, ok := r.data[id]
	if !ok {
		return Dog{}, ErrNotFound
	}
	return dog, nil
}

// ListByOwner returns an owner's dogs, newest first.
func (r *InMemoryRepository) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]Dog, error) {
	return r.list(func(d Dog) bool { return d.OwnerID == ownerID }), nil
}

// ListWithin returns the dogs located inside bounds, newest first.
func (r *InMemoryRepository) ListWithin(_ context.Context, bounds Bounds) ([]Dog, error) {
	return r.list(func(d Dog) bool { return bounds.Contains(d.Latitude, d.Longitude) }), nil
}

func (r *InMemoryRepository) list(keep func(Dog) bool) []Dog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Dog, 0)
	for _, dog := range r.data {
		if keep(dog) {
			result = append(result, dog)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}
