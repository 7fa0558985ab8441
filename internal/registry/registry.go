package registry

import (
	"sync"

	"supplyline/internal/broadcast"
	"supplyline/internal/game"

	"github.com/google/uuid"
)

// Handle is one lobby's live entry: its configuration, its running
// round state (nil until the game starts), and its broadcast bus. The
// mutex serializes every state-changing operation on the lobby, held
// across the full submission-to-broadcast cascade so observers never
// see a half-applied transition.
type Handle struct {
	mu sync.Mutex

	Lobby          *game.Lobby
	Round          *game.RoundState
	PendingClasses map[uuid.UUID]game.ClassID
	Bus            *broadcast.Bus
}

// Lock acquires the lobby's mutex.
func (h *Handle) Lock() { h.mu.Lock() }

// Unlock releases the lobby's mutex.
func (h *Handle) Unlock() { h.mu.Unlock() }

// Registry maps lobby ids to their live handles. The map lock is only
// held for lookups and inserts; lobby work happens under the handle's
// own mutex.
type Registry struct {
	mu      sync.RWMutex
	handles map[uuid.UUID]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[uuid.UUID]*Handle)}
}

// Get returns the handle for a lobby, or nil when the lobby has not
// been loaded.
func (r *Registry) Get(id uuid.UUID) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[id]
}

// GetOrCreate returns the existing handle or inserts a fresh one built
// by create. The create function runs under the write lock, so it must
// not block.
func (r *Registry) GetOrCreate(id uuid.UUID, create func() *Handle) *Handle {
	r.mu.RLock()
	h := r.handles[id]
	r.mu.RUnlock()
	if h != nil {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h := r.handles[id]; h != nil {
		return h
	}
	h = create()
	r.handles[id] = h
	return h
}

// Remove drops a lobby's handle and closes its bus.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	h := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	if h != nil {
		h.Bus.Close()
	}
}

// Len reports the number of loaded lobbies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
