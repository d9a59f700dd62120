package adapter

import (
	"sync"
	"testing"
	"time"
)

type countingHandler struct {
	mu       sync.Mutex
	players  map[string]bool
	controls []RequestType
}

func newCountingHandler(players ...string) *countingHandler {
	h := &countingHandler{players: make(map[string]bool)}
	for _, p := range players {
		h.players[p] = true
	}
	return h
}

func (h *countingHandler) owns(id string) bool { return h.players[id] }

func (h *countingHandler) Login(id, _, _ string, _ bool, _ time.Duration) bool { return h.owns(id) }
func (h *countingHandler) Logout(id string) bool                               { return h.owns(id) }
func (h *countingHandler) Play(req PlayRequest) bool                           { return h.owns(req.PlayerID) }
func (h *countingHandler) Seek(id string, _ time.Duration) bool                { return h.owns(id) }
func (h *countingHandler) AdjustSeek(id string, _ time.Duration) bool          { return h.owns(id) }
func (h *countingHandler) Offset(string) time.Duration                         { return 0 }
func (h *countingHandler) AuthorizeDiscoveredPlayers([]PlayerInfo) bool        { return true }

func (h *countingHandler) PlayControl(id string, req RequestType) bool {
	if !h.owns(id) {
		return false
	}
	h.mu.Lock()
	h.controls = append(h.controls, req)
	h.mu.Unlock()
	return true
}

func (h *countingHandler) AdapterStates(bool) []State {
	var out []State
	for p := range h.players {
		out = append(out, State{Session: SessionState{PlayerID: p}})
	}
	return out
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	r := NewRegistry()
	h := newCountingHandler("a")

	if !r.Add(h) {
		t.Fatal("first add should succeed")
	}
	if r.Add(h) {
		t.Error("duplicate add should report false")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 handler, got %d", r.Len())
	}
}

func TestRegistryAddNil(t *testing.T) {
	r := NewRegistry()
	if r.Add(nil) {
		t.Error("nil handler should be rejected")
	}
}

func TestRegistryRemoveUnknownIsTolerated(t *testing.T) {
	r := NewRegistry()
	h := newCountingHandler("a")

	if r.Remove(h) {
		t.Error("removing unknown handler should report false")
	}

	r.Add(h)
	if !r.Remove(h) {
		t.Error("removing registered handler should report true")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryBroadcastReachesEveryHandler(t *testing.T) {
	r := NewRegistry()
	a := newCountingHandler("a")
	b := newCountingHandler("b")
	r.Add(a)
	r.Add(b)

	if n := r.PlayControl("a", RequestPause); n != 1 {
		t.Errorf("expected 1 handler to accept, got %d", n)
	}
	if len(a.controls) != 1 || a.controls[0] != RequestPause {
		t.Errorf("expected a to see PAUSE, got %v", a.controls)
	}
	if len(b.controls) != 0 {
		t.Errorf("expected b to ignore the request, got %v", b.controls)
	}

	calls := 0
	r.Broadcast(func(Handler) bool { calls++; return false })
	if calls != 2 {
		t.Errorf("expected broadcast to visit 2 handlers, got %d", calls)
	}
}

func TestRegistryCollectStates(t *testing.T) {
	r := NewRegistry()
	r.Add(newCountingHandler("a", "b"))
	r.Add(newCountingHandler("c"))

	states := r.CollectStates(true)
	if len(states) != 3 {
		t.Fatalf("expected 3 states, got %d", len(states))
	}

	seen := map[string]bool{}
	for _, s := range states {
		seen[s.PlayerID()] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Errorf("missing state for %q", id)
		}
	}
}
