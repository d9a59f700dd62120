// Package emp implements the external media player agent: it arbitrates
// focus between competing media adapters, dispatches cloud directives to
// them and reports their aggregated state as context.
//
// All mutable state is owned by a single executor goroutine. Public methods
// either queue work on it or read through a narrow lock.
package emp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/contextmgr"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
	"github.com/edumarques81/stellar-emp/internal/domain/focus"
	"github.com/edumarques81/stellar-emp/internal/infra/executor"
	"github.com/edumarques81/stellar-emp/internal/infra/metrics"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultSPIVersion       = "1.0"
	DefaultFocusWaitTimeout = 500 * time.Millisecond
)

// Config configures a Core.
type Config struct {
	AgentID    string
	SPIVersion string
	Channel    string

	// FocusWaitTimeout bounds how long a focus notification waits for the
	// player activity to settle.
	FocusWaitTimeout time.Duration

	// DefaultPlayers are player ids handled by the built-in player. They are
	// always authorized and never go through the focus manager. The empty id
	// is always a default player.
	DefaultPlayers []string
}

func (c Config) withDefaults() Config {
	if c.SPIVersion == "" {
		c.SPIVersion = DefaultSPIVersion
	}
	if c.Channel == "" {
		c.Channel = focus.ContentChannel
	}
	if c.FocusWaitTimeout <= 0 {
		c.FocusWaitTimeout = DefaultFocusWaitTimeout
	}
	return c
}

// AuthorizationStore persists the set of players the cloud authorized.
type AuthorizationStore interface {
	LoadAuthorized() ([]adapter.PlayerInfo, error)
	SaveAuthorized(players []adapter.PlayerInfo) error
}

// StateSetter receives context state. contextmgr.Manager implements it.
type StateSetter interface {
	SetState(key contextmgr.NamespaceAndName, state string, policy contextmgr.RefreshPolicy, token uint64) error
}

// Options carries the collaborators of a Core. Only FocusManager is required.
type Options struct {
	FocusManager focus.Manager
	Events       EventSink
	Context      StateSetter
	Store        AuthorizationStore
	Metrics      *metrics.Metrics
}

// Core is the composition root of the external media player agent.
type Core struct {
	cfg      Config
	exec     *executor.Executor
	registry *adapter.Registry
	arbiter  *Arbitrator
	dispatch *Dispatcher
	provider *StateProvider

	events  EventSink
	context StateSetter
	store   AuthorizationStore
	metrics *metrics.Metrics

	defaults map[string]bool

	// Owned by the executor.
	authorized map[string]adapter.PlayerInfo
}

// New creates a Core and loads the persisted authorization set.
func New(cfg Config, opts Options) (*Core, error) {
	if opts.FocusManager == nil {
		return nil, fmt.Errorf("focus manager is required")
	}
	cfg = cfg.withDefaults()

	c := &Core{
		cfg:        cfg,
		exec:       executor.New("emp"),
		registry:   adapter.NewRegistry(),
		events:     opts.Events,
		context:    opts.Context,
		store:      opts.Store,
		metrics:    opts.Metrics,
		defaults:   map[string]bool{"": true},
		authorized: make(map[string]adapter.PlayerInfo),
	}
	if c.events == nil {
		c.events = discardSink{}
	}
	for _, id := range cfg.DefaultPlayers {
		c.defaults[id] = true
	}

	activityID := "ExternalMediaPlayer-" + uuid.NewString()
	c.arbiter = newArbitrator(cfg.Channel, activityID, cfg.FocusWaitTimeout, c.exec,
		opts.FocusManager, c.registry, c.metrics, c.isDefaultPlayer)
	c.dispatch = newDispatcher(c)
	c.provider = newStateProvider(c)

	if c.store != nil {
		players, err := c.store.LoadAuthorized()
		if err != nil {
			c.exec.Shutdown()
			return nil, fmt.Errorf("failed to load authorized players: %w", err)
		}
		for _, p := range players {
			if p.Authorized && p.PlayerID != "" {
				c.authorized[p.PlayerID] = p
			}
		}
		log.Info().Int("players", len(c.authorized)).Msg("Loaded authorized players")
	}

	return c, nil
}

// HandleDirective routes a directive; see Dispatcher.Handle.
func (c *Core) HandleDirective(d directive.Directive, result directive.Result) {
	c.dispatch.Handle(d, result)
}

// Dispatcher returns the directive dispatcher.
func (c *Core) Dispatcher() *Dispatcher {
	return c.dispatch
}

// StateProvider returns the context state provider.
func (c *Core) StateProvider() *StateProvider {
	return c.provider
}

// Arbitrator returns the focus arbitrator. It is the focus.Observer
// registered with the focus manager.
func (c *Core) Arbitrator() *Arbitrator {
	return c.arbiter
}

// Registry returns the adapter registry for read-only use.
func (c *Core) Registry() *adapter.Registry {
	return c.registry
}

// AddAdapterHandler registers h on the executor.
func (c *Core) AddAdapterHandler(h adapter.Handler) {
	c.submit("addAdapterHandler", func() {
		if c.registry.Add(h) {
			c.metrics.SetRegisteredAdapters(c.registry.Len())
		}
	})
}

// RemoveAdapterHandler unregisters h on the executor.
func (c *Core) RemoveAdapterHandler(h adapter.Handler) {
	c.submit("removeAdapterHandler", func() {
		if c.registry.Remove(h) {
			c.metrics.SetRegisteredAdapters(c.registry.Len())
		}
	})
}

// SetPlayerInFocus makes playerID the player in focus, acquiring or
// releasing the content channel. Unauthorized players are ignored.
func (c *Core) SetPlayerInFocus(playerID string, acquireFocus bool) {
	c.submit("setPlayerInFocus", func() {
		c.setPlayerInFocusLocked(playerID, acquireFocus)
	})
}

func (c *Core) setPlayerInFocusLocked(playerID string, acquireFocus bool) {
	if !c.isAuthorizedLocked(playerID) {
		log.Error().Err(ErrUnauthorizedPlayer).Str("playerId", playerID).Msg("setPlayerInFocus ignored")
		return
	}
	c.arbiter.setPlayerInFocusLocked(playerID, acquireFocus)
}

// PlayerInFocus returns the player in focus without going through the executor.
func (c *Core) PlayerInFocus() string {
	return c.arbiter.PlayerInFocus()
}

// FocusSnapshot returns the arbitrator state for diagnostics.
func (c *Core) FocusSnapshot() FocusSnapshot {
	return c.arbiter.Snapshot()
}

// OnButtonPressed routes a hardware or UI button to the default player.
func (c *Core) OnButtonPressed(button adapter.PlaybackButton) {
	c.routeToDefault(button.RequestType())
}

// OnTogglePressed routes a toggle change to the default player.
func (c *Core) OnTogglePressed(toggle adapter.PlaybackToggle, selected bool) {
	c.routeToDefault(toggle.RequestType(selected))
}

func (c *Core) routeToDefault(req adapter.RequestType) {
	if req == adapter.RequestNone {
		return
	}
	player := c.defaultPlayerID()
	c.submit("routeToDefault", func() {
		if c.arbiter.PlayerInFocus() == player {
			c.arbiter.onRequestLocked(req)
		}
		if c.registry.PlayControl(player, req) == 0 {
			log.Warn().Stringer("request", req).Str("playerId", player).Msg("No adapter accepted button request")
		}
	})
}

// OnBuiltinPlayerActivityChanged tells the core the built-in audio player
// changed activity. When it starts playing the content channel is yielded.
func (c *Core) OnBuiltinPlayerActivityChanged(activity adapter.Activity) {
	c.submit("builtinActivity", func() {
		c.arbiter.onBuiltinActivityLocked(activity)
	})
}

// Flush waits until every task queued before the call has run.
func (c *Core) Flush(ctx context.Context) error {
	return c.exec.SubmitWait(ctx, func() {})
}

// Shutdown releases the channel, drops all adapters and stops the executor.
func (c *Core) Shutdown() {
	err := c.exec.Submit(func() {
		c.arbiter.releaseOnShutdownLocked()
		for _, h := range c.registry.Handlers() {
			c.registry.Remove(h)
		}
		c.metrics.SetRegisteredAdapters(0)
	})
	if err != nil {
		return
	}
	c.exec.Shutdown()
	log.Info().Msg("External media player shut down")
}

func (c *Core) submit(op string, task func()) bool {
	if err := c.exec.Submit(task); err != nil {
		log.Error().Err(err).Str("op", op).Msg("Failed to queue task")
		return false
	}
	return true
}

func (c *Core) isDefaultPlayer(playerID string) bool {
	return c.defaults[playerID]
}

func (c *Core) defaultPlayerID() string {
	if len(c.cfg.DefaultPlayers) > 0 {
		return c.cfg.DefaultPlayers[0]
	}
	return ""
}

func (c *Core) isAuthorizedLocked(playerID string) bool {
	if c.isDefaultPlayer(playerID) {
		return true
	}
	_, ok := c.authorized[playerID]
	return ok
}

// sessionLocked finds the reported session of playerID.
func (c *Core) sessionLocked(playerID string) adapter.SessionState {
	for _, st := range c.registry.CollectStates(true) {
		if st.PlayerID() == playerID {
			return st.Session
		}
	}
	return adapter.SessionState{PlayerID: playerID}
}
