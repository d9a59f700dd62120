// Package contextmgr aggregates pull-based state snapshots from registered
// state providers into a single device context.
package contextmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrTimeout is returned when providers do not answer a context request in time.
	ErrTimeout = errors.New("context request timed out")
	// ErrTokenOutdated is returned when a provider answers a request that is no longer pending.
	ErrTokenOutdated = errors.New("state request token outdated")
	// ErrUnknownProvider is returned for state from an unregistered namespace and name.
	ErrUnknownProvider = errors.New("unknown state provider")
	// ErrInvalidState is returned for a payload that is not valid JSON.
	ErrInvalidState = errors.New("state is not valid JSON")
)

// NamespaceAndName identifies one piece of context.
type NamespaceAndName struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (n NamespaceAndName) String() string {
	return n.Namespace + "." + n.Name
}

// RefreshPolicy controls whether a provider is asked for fresh state on every
// context request.
type RefreshPolicy int

const (
	// RefreshNever keeps the last pushed state.
	RefreshNever RefreshPolicy = iota
	// RefreshAlways asks the provider on every request.
	RefreshAlways
	// RefreshSometimes asks the provider but an empty answer omits the entry.
	RefreshSometimes
)

// Provider supplies state on request by calling Manager.SetState with the token.
type Provider interface {
	ProvideState(key NamespaceAndName, token uint64)
}

// Entry is one reported piece of context.
type Entry struct {
	Header  NamespaceAndName `json:"header"`
	Payload json.RawMessage  `json:"payload"`
}

type slot struct {
	provider Provider
	policy   RefreshPolicy
	state    string
}

type request struct {
	token   uint64
	pending map[NamespaceAndName]bool
	done    chan struct{}
}

// Manager collects state from providers.
type Manager struct {
	timeout time.Duration

	mu        sync.Mutex
	slots     map[NamespaceAndName]*slot
	requests  map[uint64]*request
	nextToken uint64
	onChange  func(NamespaceAndName)
}

// NewManager creates a manager that waits up to timeout for provider replies.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		timeout:  timeout,
		slots:    make(map[NamespaceAndName]*slot),
		requests: make(map[uint64]*request),
	}
}

// SetStateProvider registers (or with nil, removes) the provider for key.
func (m *Manager) SetStateProvider(key NamespaceAndName, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p == nil {
		delete(m.slots, key)
		return
	}
	if s, ok := m.slots[key]; ok {
		s.provider = p
		return
	}
	m.slots[key] = &slot{provider: p, policy: RefreshAlways}
}

// OnChange sets a callback fired when a provider pushes changed state outside
// of a request.
func (m *Manager) OnChange(fn func(NamespaceAndName)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetState stores state for key. A zero token is an unsolicited update;
// any other token answers the matching GetContext request.
func (m *Manager) SetState(key NamespaceAndName, state string, policy RefreshPolicy, token uint64) error {
	if state != "" && !json.Valid([]byte(state)) {
		return fmt.Errorf("%s: %w", key, ErrInvalidState)
	}

	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", key, ErrUnknownProvider)
	}

	changed := s.state != state
	s.state = state
	s.policy = policy

	if token == 0 {
		fn := m.onChange
		m.mu.Unlock()
		if changed && fn != nil {
			fn(key)
		}
		return nil
	}

	req, ok := m.requests[token]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s token %d: %w", key, token, ErrTokenOutdated)
	}
	delete(req.pending, key)
	if len(req.pending) == 0 {
		delete(m.requests, token)
		close(req.done)
	}
	m.mu.Unlock()
	return nil
}

// GetContext asks every refreshing provider for state and returns the
// aggregated entries once all have answered.
func (m *Manager) GetContext(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	m.nextToken++
	req := &request{
		token:   m.nextToken,
		pending: make(map[NamespaceAndName]bool),
		done:    make(chan struct{}),
	}
	asks := make(map[NamespaceAndName]Provider)
	for key, s := range m.slots {
		if s.policy != RefreshNever || s.state == "" {
			req.pending[key] = true
			asks[key] = s.provider
		}
	}
	if len(req.pending) == 0 {
		close(req.done)
	} else {
		m.requests[req.token] = req
	}
	m.mu.Unlock()

	for key, p := range asks {
		p.ProvideState(key, req.token)
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-req.done:
	case <-timer.C:
		m.abandon(req.token)
		log.Error().Uint64("token", req.token).Dur("timeout", m.timeout).Msg("Context request timed out")
		return nil, ErrTimeout
	case <-ctx.Done():
		m.abandon(req.token)
		return nil, ctx.Err()
	}

	return m.snapshot(), nil
}

func (m *Manager) abandon(token uint64) {
	m.mu.Lock()
	delete(m.requests, token)
	m.mu.Unlock()
}

func (m *Manager) snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]Entry, 0, len(m.slots))
	for key, s := range m.slots {
		if s.state == "" {
			continue
		}
		entries = append(entries, Entry{Header: key, Payload: json.RawMessage(s.state)})
	}
	return entries
}
