package socketio

import (
	"net/netip"
	"sync"
)

// controllerSlots bounds how many remote controllers may drive the agent at
// once. Loopback controllers are never counted. Admitting a remote controller
// past the limit evicts the one that connected earliest.
type controllerSlots struct {
	mu     sync.Mutex
	limit  int
	remote []string        // remote controller ids, oldest first
	known  map[string]bool // id -> loopback
}

func newControllerSlots(limit int) *controllerSlots {
	return &controllerSlots{
		limit: limit,
		known: make(map[string]bool),
	}
}

// Admit records a controller and returns the id it displaced, if any.
func (c *controllerSlots) Admit(id, ip string) (evicted string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.known[id]; ok {
		return ""
	}
	loopback := isLoopback(ip)
	c.known[id] = loopback
	if loopback {
		return ""
	}

	c.remote = append(c.remote, id)
	if c.limit > 0 && len(c.remote) > c.limit {
		evicted, c.remote = c.remote[0], c.remote[1:]
		delete(c.known, evicted)
	}
	return evicted
}

// Release forgets a controller.
func (c *controllerSlots) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loopback, ok := c.known[id]
	if !ok {
		return
	}
	delete(c.known, id)
	if loopback {
		return
	}
	for i, r := range c.remote {
		if r == id {
			c.remote = append(c.remote[:i], c.remote[i+1:]...)
			return
		}
	}
}

// Remote returns the number of admitted remote controllers.
func (c *controllerSlots) Remote() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.remote)
}

func isLoopback(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	return err == nil && addr.Unmap().IsLoopback()
}
