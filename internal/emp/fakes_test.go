package emp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
	"github.com/edumarques81/stellar-emp/internal/domain/focus"
)

// recordingAdapter owns the players it has a state for and records every call
// in order.
type recordingAdapter struct {
	mu         sync.Mutex
	calls      []string
	states     map[string]adapter.State
	rejectPlay bool
	authorized [][]adapter.PlayerInfo
}

func newRecordingAdapter(players ...string) *recordingAdapter {
	a := &recordingAdapter{states: make(map[string]adapter.State)}
	for _, p := range players {
		a.states[p] = adapter.State{
			Session:  adapter.SessionState{PlayerID: p, SkillToken: "skill-" + p},
			Playback: adapter.PlaybackState{PlayerID: p, State: adapter.StatusIdle},
		}
	}
	return a
}

func (a *recordingAdapter) record(format string, args ...any) {
	a.mu.Lock()
	a.calls = append(a.calls, fmt.Sprintf(format, args...))
	a.mu.Unlock()
}

func (a *recordingAdapter) owns(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.states[id]
	return ok
}

func (a *recordingAdapter) setStatus(id string, st adapter.PlaybackStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.states[id]
	s.Playback.State = st
	a.states[id] = s
}

func (a *recordingAdapter) setState(id string, s adapter.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[id] = s
}

func (a *recordingAdapter) reset() {
	a.mu.Lock()
	a.calls = nil
	a.mu.Unlock()
}

func (a *recordingAdapter) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// callsWithPrefix returns the recorded calls starting with prefix.
func (a *recordingAdapter) callsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range a.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (a *recordingAdapter) Login(id, _, _ string, _ bool, _ time.Duration) bool {
	a.record("login:%s", id)
	return a.owns(id)
}

func (a *recordingAdapter) Logout(id string) bool {
	a.record("logout:%s", id)
	return a.owns(id)
}

func (a *recordingAdapter) Play(req adapter.PlayRequest) bool {
	a.record("play:%s", req.PlayerID)
	return !a.rejectPlay && a.owns(req.PlayerID)
}

func (a *recordingAdapter) PlayControl(id string, req adapter.RequestType) bool {
	a.record("control:%s:%s", id, req)
	return a.owns(id)
}

func (a *recordingAdapter) Seek(id string, offset time.Duration) bool {
	a.record("seek:%s:%d", id, offset.Milliseconds())
	return a.owns(id)
}

func (a *recordingAdapter) AdjustSeek(id string, delta time.Duration) bool {
	a.record("adjustSeek:%s:%d", id, delta.Milliseconds())
	return a.owns(id)
}

func (a *recordingAdapter) AdapterStates(bool) []adapter.State {
	a.record("states")
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]adapter.State, 0, len(a.states))
	for _, s := range a.states {
		out = append(out, s)
	}
	return out
}

func (a *recordingAdapter) Offset(string) time.Duration { return 0 }

func (a *recordingAdapter) AuthorizeDiscoveredPlayers(players []adapter.PlayerInfo) bool {
	a.record("authorize")
	a.mu.Lock()
	a.authorized = append(a.authorized, players)
	a.mu.Unlock()
	return true
}

// fakeFocusManager counts channel requests and never calls back; tests drive
// OnFocusChanged themselves.
type fakeFocusManager struct {
	mu       sync.Mutex
	acquires int
	releases int
	reject   bool
}

func (f *fakeFocusManager) AcquireChannel(string, focus.Observer, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	return !f.reject
}

func (f *fakeFocusManager) ReleaseChannel(string, focus.Observer) <-chan bool {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
	ch := make(chan bool, 1)
	ch <- true
	return ch
}

func (f *fakeFocusManager) counts() (acquires, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires, f.releases
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) SendEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type resultRecorder struct {
	mu          sync.Mutex
	completed   int
	failed      int
	description string
}

func (r *resultRecorder) SetCompleted() {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
}

func (r *resultRecorder) SetFailed(description string) {
	r.mu.Lock()
	r.failed++
	r.description = description
	r.mu.Unlock()
}

type fakeStore struct {
	mu     sync.Mutex
	loaded []adapter.PlayerInfo
	saved  []adapter.PlayerInfo
	saves  int
}

func (s *fakeStore) LoadAuthorized() ([]adapter.PlayerInfo, error) {
	return s.loaded, nil
}

func (s *fakeStore) SaveAuthorized(players []adapter.PlayerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = players
	s.saves++
	return nil
}

type harness struct {
	core   *Core
	fm     *fakeFocusManager
	events *eventRecorder
}

func newHarness(t *testing.T, cfg Config, opts Options) *harness {
	t.Helper()
	h := &harness{fm: &fakeFocusManager{}, events: &eventRecorder{}}
	if cfg.AgentID == "" {
		cfg.AgentID = "test-agent"
	}
	opts.FocusManager = h.fm
	opts.Events = h.events
	c, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	h.core = c
	t.Cleanup(c.Shutdown)
	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.core.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
}

func (h *harness) handle(t *testing.T, namespace, name string, payload any) *resultRecorder {
	t.Helper()
	raw, ok := payload.(string)
	if !ok {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		raw = string(data)
	}
	res := &resultRecorder{}
	h.core.HandleDirective(directive.Directive{
		Namespace: namespace,
		Name:      name,
		MessageID: "msg-" + name,
		Payload:   raw,
	}, res)
	return res
}

func (h *harness) addAdapter(t *testing.T, a adapter.Handler) {
	t.Helper()
	h.core.AddAdapterHandler(a)
	h.flush(t)
}

func (h *harness) authorize(t *testing.T, ids ...string) {
	t.Helper()
	players := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		players = append(players, map[string]any{
			"localPlayerId": "local-" + id,
			"authorized":    true,
			"metadata":      map[string]string{"playerId": id, "skillToken": "skill-" + id},
		})
	}
	res := h.handle(t, NamespaceExternalMediaPlayer, "AuthorizeDiscoveredPlayers", map[string]any{"players": players})
	h.flush(t)
	if res.completed != 1 {
		t.Fatalf("authorize: completed = %d, failed = %d (%s)", res.completed, res.failed, res.description)
	}
}

// foreground puts id in focus and grants the channel.
func (h *harness) foreground(t *testing.T, id string) {
	t.Helper()
	h.core.SetPlayerInFocus(id, true)
	h.flush(t)
	h.core.Arbitrator().OnFocusChanged(focus.Foreground, focus.Primary)
	h.flush(t)
}
