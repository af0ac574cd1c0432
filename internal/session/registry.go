package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"socialdog/internal/identity"
)

// ErrMissingClientID is returned by Registry.Get for an empty client id.
var ErrMissingClientID = errors.New("client id is required")

type entry struct {
	manager  *Manager
	client   *identity.Client
	lastSeen time.Time
}

// Registry keeps one Manager per browser client, each driving its own
// identity.Client against the shared backend.
type Registry struct {
	backend  identity.Backend
	profiles Profiles
	logger   *slog.Logger
	settings settings
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry. opts apply to every manager it builds.
func NewRegistry(backend identity.Backend, profileStore Profiles, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backend:  backend,
		profiles: profileStore,
		logger:   logger,
		settings: newSettings(opts),
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
}

// Get returns the manager for clientID, creating and starting one when the
// client is new. storedToken seeds a new manager's session restore and is
// ignored for existing ones.
func (r *Registry) Get(ctx context.Context, clientID, storedToken string) (*Manager, error) {
	if clientID == "" {
		return nil, ErrMissingClientID
	}

	r.mu.Lock()
	if e, ok := r.entries[clientID]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.manager, nil
	}
	r.mu.Unlock()

	client := identity.NewClient(r.backend, storedToken, r.logger)
	manager := newManager(client, r.profiles, r.logger, r.settings)
	if err := manager.Start(ctx); err != nil {
		manager.Close()
		client.Close()
		return nil, err
	}

	r.mu.Lock()
	if e, ok := r.entries[clientID]; ok {
		// Another request for the same client won the race.
		e.lastSeen = r.now()
		r.mu.Unlock()
		manager.Close()
		client.Close()
		return e.manager, nil
	}
	r.entries[clientID] = &entry{manager: manager, client: client, lastSeen: r.now()}
	count := len(r.entries)
	r.mu.Unlock()

	r.settings.recorder.SetActiveClients(count)
	return manager, nil
}

// Remove closes and forgets the manager for clientID. The backend session is
// left alone; a later Get can restore it from the stored token.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	e, ok := r.entries[clientID]
	delete(r.entries, clientID)
	count := len(r.entries)
	r.mu.Unlock()

	if ok {
		e.close()
		r.settings.recorder.SetActiveClients(count)
	}
}

// Sweep closes managers that have not been fetched for longer than maxIdle and
// returns how many were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*entry
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e)
			delete(r.entries, id)
		}
	}
	count := len(r.entries)
	r.mu.Unlock()

	for _, e := range idle {
		e.close()
	}
	if len(idle) > 0 {
		r.logger.Debug("idle session managers swept", "removed", len(idle), "remaining", count)
	}
	r.settings.recorder.SetActiveClients(count)
	return len(idle)
}

// Len returns the number of live managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close shuts down every manager.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.close()
	}
	r.settings.recorder.SetActiveClients(0)
}

func (e *entry) close() {
	e.manager.Close()
	e.client.Close()
}
