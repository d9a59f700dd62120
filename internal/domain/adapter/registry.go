package adapter

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry is the set of registered adapter handlers. It observes handlers
// without owning them. Mutations are expected to come from the player core's
// executor; the lock only makes snapshots safe for concurrent readers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Handler]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Handler]struct{}),
	}
}

// Add registers h. Adding a handler twice is logged and ignored.
func (r *Registry) Add(h Handler) bool {
	if h == nil {
		log.Warn().Msg("Ignoring nil adapter handler")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[h]; exists {
		log.Warn().Msg("Adapter handler already registered")
		return false
	}
	r.handlers[h] = struct{}{}
	return true
}

// Remove unregisters h. Removing an unknown handler is logged and ignored.
func (r *Registry) Remove(h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[h]; !exists {
		log.Warn().Msg("Adapter handler not registered")
		return false
	}
	delete(r.handlers, h)
	return true
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Handlers returns a snapshot of the registered handlers in no particular order.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handler, 0, len(r.handlers))
	for h := range r.handlers {
		out = append(out, h)
	}
	return out
}

// Broadcast invokes op on every registered handler and returns how many
// reported success. Handlers are called outside the lock so they may call
// back into the core.
func (r *Registry) Broadcast(op func(Handler) bool) int {
	accepted := 0
	for _, h := range r.Handlers() {
		if op(h) {
			accepted++
		}
	}
	return accepted
}

// CollectStates concatenates the states reported by every handler.
func (r *Registry) CollectStates(all bool) []State {
	var states []State
	for _, h := range r.Handlers() {
		states = append(states, h.AdapterStates(all)...)
	}
	return states
}

// Login fans a login out to every handler.
func (r *Registry) Login(playerID, accessToken, userName string, forceLogin bool, refresh time.Duration) int {
	return r.Broadcast(func(h Handler) bool {
		return h.Login(playerID, accessToken, userName, forceLogin, refresh)
	})
}

// Logout fans a logout out to every handler.
func (r *Registry) Logout(playerID string) int {
	return r.Broadcast(func(h Handler) bool { return h.Logout(playerID) })
}

// Play fans a play request out to every handler.
func (r *Registry) Play(req PlayRequest) int {
	return r.Broadcast(func(h Handler) bool { return h.Play(req) })
}

// PlayControl fans a control request out to every handler.
func (r *Registry) PlayControl(playerID string, req RequestType) int {
	return r.Broadcast(func(h Handler) bool { return h.PlayControl(playerID, req) })
}

// Seek fans an absolute seek out to every handler.
func (r *Registry) Seek(playerID string, offset time.Duration) int {
	return r.Broadcast(func(h Handler) bool { return h.Seek(playerID, offset) })
}

// AdjustSeek fans a relative seek out to every handler.
func (r *Registry) AdjustSeek(playerID string, delta time.Duration) int {
	return r.Broadcast(func(h Handler) bool { return h.AdjustSeek(playerID, delta) })
}

// AuthorizeDiscoveredPlayers hands the authorization list to every handler.
func (r *Registry) AuthorizeDiscoveredPlayers(players []PlayerInfo) int {
	return r.Broadcast(func(h Handler) bool { return h.AuthorizeDiscoveredPlayers(players) })
}
