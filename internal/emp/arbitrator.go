package emp

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/focus"
	"github.com/edumarques81/stellar-emp/internal/infra/executor"
	"github.com/edumarques81/stellar-emp/internal/infra/metrics"
)

// HaltInitiator records why the player in focus was last halted.
type HaltInitiator int

const (
	HaltNone HaltInitiator = iota
	// HaltExternalPause means the user or another app paused playback; it is never auto-resumed.
	HaltExternalPause
	// HaltFocusChangePause means losing focus paused playback; it resumes on refocus.
	HaltFocusChangePause
	// HaltFocusChangeStop means losing focus entirely stopped playback.
	HaltFocusChangeStop
)

func (h HaltInitiator) String() string {
	switch h {
	case HaltNone:
		return "NONE"
	case HaltExternalPause:
		return "EXTERNAL_PAUSE"
	case HaltFocusChangePause:
		return "FOCUS_CHANGE_PAUSE"
	case HaltFocusChangeStop:
		return "FOCUS_CHANGE_STOP"
	}
	return fmt.Sprintf("HaltInitiator(%d)", int(h))
}

// FocusSnapshot is a consistent copy of the arbitrator state.
type FocusSnapshot struct {
	Focus                    focus.State
	MixingBehavior           focus.MixingBehavior
	PlayerInFocus            string
	Activity                 adapter.Activity
	HaltInitiator            HaltInitiator
	FocusAcquireInProgress   bool
	IgnoreExternalPauseCheck bool
}

// playPriming is the state a Play directive overwrote before any adapter accepted it.
type playPriming struct {
	halt   HaltInitiator
	ignore bool
}

// Arbitrator owns the single focus of the external media player. Methods
// suffixed with Locked run on the executor only; mu guards the fields so other
// goroutines can take snapshots.
type Arbitrator struct {
	channel    string
	activityID string
	timeout    time.Duration

	exec     *executor.Executor
	fm       focus.Manager
	registry *adapter.Registry
	metrics  *metrics.Metrics
	exempt   func(playerID string) bool

	activity *activityTracker

	mu                       sync.Mutex
	focus                    focus.State
	mixing                   focus.MixingBehavior
	playerInFocus            string
	haltInitiator            HaltInitiator
	focusAcquireInProgress   bool
	ignoreExternalPauseCheck bool
	releaseOnGrant           bool
}

func newArbitrator(channel, activityID string, timeout time.Duration, exec *executor.Executor,
	fm focus.Manager, registry *adapter.Registry, m *metrics.Metrics, exempt func(string) bool) *Arbitrator {
	return &Arbitrator{
		channel:    channel,
		activityID: activityID,
		timeout:    timeout,
		exec:       exec,
		fm:         fm,
		registry:   registry,
		metrics:    m,
		exempt:     exempt,
		activity:   newActivityTracker(),
		focus:      focus.None,
		mixing:     focus.Undefined,
	}
}

// PlayerInFocus returns the player currently holding transport control, or "".
func (a *Arbitrator) PlayerInFocus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playerInFocus
}

// Snapshot returns a copy of the arbitrator state.
func (a *Arbitrator) Snapshot() FocusSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return FocusSnapshot{
		Focus:                    a.focus,
		MixingBehavior:           a.mixing,
		PlayerInFocus:            a.playerInFocus,
		Activity:                 a.activity.get(),
		HaltInitiator:            a.haltInitiator,
		FocusAcquireInProgress:   a.focusAcquireInProgress,
		IgnoreExternalPauseCheck: a.ignoreExternalPauseCheck,
	}
}

// OnFocusChanged implements focus.Observer. The transition itself runs on the
// executor; the caller is held until the player activity settles or the
// timeout elapses. It must not be called from the executor.
func (a *Arbitrator) OnFocusChanged(state focus.State, behavior focus.MixingBehavior) {
	if err := a.exec.Submit(func() { a.onFocusChangedLocked(state, behavior) }); err != nil {
		log.Error().Err(err).Stringer("focus", state).Msg("Dropping focus change")
		return
	}

	var pred func(adapter.Activity) bool
	switch state {
	case focus.Background:
		if behavior == focus.MayDuck {
			return
		}
		pred = isHalted
	case focus.None:
		pred = isEnded
	default:
		return
	}

	if !a.activity.waitFor(a.timeout, pred) {
		a.metrics.IncFocusWaitTimeouts()
		log.Error().
			Stringer("focus", state).
			Stringer("activity", a.activity.get()).
			Dur("timeout", a.timeout).
			Msg("Timed out waiting for player activity after focus change")
	}
}

func (a *Arbitrator) onFocusChangedLocked(state focus.State, behavior focus.MixingBehavior) {
	a.mu.Lock()
	if a.focus == state && a.mixing == behavior {
		a.focusAcquireInProgress = false
		a.mu.Unlock()
		log.Debug().Stringer("focus", state).Stringer("behavior", behavior).Msg("Focus unchanged")
		return
	}
	a.focus = state
	a.mixing = behavior
	a.focusAcquireInProgress = false
	revoked := a.releaseOnGrant
	a.releaseOnGrant = false
	player := a.playerInFocus
	halt := a.haltInitiator
	a.mu.Unlock()

	if revoked && state != focus.None {
		log.Info().Stringer("focus", state).Msg("Releasing channel granted to a revoked player")
		a.releaseLocked()
		return
	}

	a.metrics.IncFocusTransition(state.String())
	log.Info().
		Stringer("focus", state).
		Stringer("behavior", behavior).
		Str("playerId", player).
		Stringer("halt", halt).
		Msg("Focus changed")

	switch state {
	case focus.Foreground:
		a.onForegroundLocked(player, halt)
	case focus.Background:
		a.onBackgroundLocked(player, halt, behavior)
	case focus.None:
		a.onNoneLocked(player)
	}
}

func (a *Arbitrator) onForegroundLocked(player string, halt HaltInitiator) {
	if halt == HaltExternalPause {
		return
	}
	switch a.activity.get() {
	case adapter.ActivityPaused:
		if halt != HaltFocusChangePause {
			return
		}
		a.registry.PlayControl(player, adapter.RequestResume)
		a.setHaltInitiator(HaltNone)
		a.activity.set(adapter.ActivityPlaying)
	default:
		// Idle, stopped or finished players have nothing to resume.
	}
}

func (a *Arbitrator) onBackgroundLocked(player string, halt HaltInitiator, behavior focus.MixingBehavior) {
	if behavior == focus.MayDuck {
		return
	}

	if halt != HaltExternalPause {
		for _, h := range a.registry.Handlers() {
			for _, st := range h.AdapterStates(true) {
				if st.PlayerID() != player {
					continue
				}
				switch st.Playback.State {
				case adapter.StatusIdle, adapter.StatusPaused, adapter.StatusStopped:
					a.setHaltInitiator(HaltExternalPause)
				default:
					h.PlayControl(player, adapter.RequestPause)
					a.setHaltInitiator(HaltFocusChangePause)
				}
			}
		}
	}
	a.activity.set(adapter.ActivityPaused)
}

func (a *Arbitrator) onNoneLocked(player string) {
	if player != "" {
		a.registry.PlayControl(player, adapter.RequestStop)
	}
	a.mu.Lock()
	a.playerInFocus = ""
	a.haltInitiator = HaltFocusChangeStop
	a.mu.Unlock()
	a.activity.set(adapter.ActivityStopped)
}

// setPlayerInFocusLocked records the player in focus and acquires or releases
// the channel for it. Focus-exempt players never touch the focus manager.
func (a *Arbitrator) setPlayerInFocusLocked(playerID string, acquire bool) {
	a.mu.Lock()
	a.playerInFocus = playerID
	if acquire {
		a.releaseOnGrant = false
	}
	current := a.focus
	inProgress := a.focusAcquireInProgress
	a.mu.Unlock()

	if a.exempt(playerID) {
		log.Debug().Str("playerId", playerID).Msg("Focus-exempt player in focus")
		return
	}

	if acquire {
		if current != focus.None || inProgress {
			log.Debug().
				Str("playerId", playerID).
				Stringer("focus", current).
				Bool("acquireInProgress", inProgress).
				Msg("Skipping channel acquire")
			return
		}
		a.acquireLocked(playerID)
		return
	}

	if current != focus.None {
		a.releaseLocked()
	}
}

// revokeLocked drops a player that lost its authorization. A held channel is
// released now; a pending acquire is released as soon as it is granted.
func (a *Arbitrator) revokeLocked(playerID string) {
	a.mu.Lock()
	if a.playerInFocus != playerID {
		a.mu.Unlock()
		return
	}
	a.playerInFocus = ""
	current := a.focus
	if current == focus.None && a.focusAcquireInProgress {
		a.releaseOnGrant = true
	}
	a.mu.Unlock()

	if current != focus.None && !a.exempt(playerID) {
		a.releaseLocked()
	}
}

func (a *Arbitrator) acquireLocked(playerID string) {
	a.mu.Lock()
	a.focusAcquireInProgress = true
	a.mu.Unlock()

	a.metrics.IncAcquireRequests()
	if !a.fm.AcquireChannel(a.channel, a, a.activityID) {
		a.mu.Lock()
		a.focusAcquireInProgress = false
		a.mu.Unlock()
		log.Error().Str("playerId", playerID).Str("channel", a.channel).Msg("Channel acquire rejected")
		return
	}
	log.Info().Str("playerId", playerID).Str("channel", a.channel).Msg("Channel acquire requested")
}

func (a *Arbitrator) releaseLocked() {
	released := a.fm.ReleaseChannel(a.channel, a)
	a.setHaltInitiator(HaltNone)
	a.activity.set(adapter.ActivityIdle)

	// The focus manager answers after notifying us, which needs the executor.
	go func() {
		if !<-released {
			log.Warn().Str("channel", a.channel).Msg("Channel release reported no holder")
		}
	}()
}

// onBuiltinActivityLocked yields the channel when the built-in player starts.
func (a *Arbitrator) onBuiltinActivityLocked(activity adapter.Activity) {
	if activity != adapter.ActivityPlaying {
		return
	}
	a.mu.Lock()
	current := a.focus
	player := a.playerInFocus
	a.playerInFocus = ""
	a.mu.Unlock()

	if current == focus.None {
		return
	}
	log.Info().Str("playerId", player).Msg("Built-in player started, releasing channel")
	a.releaseLocked()
}

// reportActivityLocked applies an activity reported by the adapter in focus.
func (a *Arbitrator) reportActivityLocked(activity adapter.Activity) {
	a.mu.Lock()
	switch activity {
	case adapter.ActivityPlaying:
		a.ignoreExternalPauseCheck = false
	case adapter.ActivityPaused:
		if a.focus == focus.Foreground && !a.ignoreExternalPauseCheck {
			a.haltInitiator = HaltExternalPause
		}
	}
	a.mu.Unlock()
	a.activity.set(activity)
}

// onRequestLocked updates the halt initiator for a control request sent to the player in focus.
func (a *Arbitrator) onRequestLocked(req adapter.RequestType) {
	switch req {
	case adapter.RequestPause, adapter.RequestStop:
		a.setHaltInitiator(HaltExternalPause)
	case adapter.RequestPauseResumeToggle:
		if a.activity.get() == adapter.ActivityPlaying {
			a.setHaltInitiator(HaltExternalPause)
		} else {
			a.setHaltInitiator(HaltNone)
		}
	case adapter.RequestPlay, adapter.RequestResume:
		a.setHaltInitiator(HaltNone)
	}
}

// primePlayLocked optimistically marks playback as requested before any
// adapter has accepted it, so a focus change racing the play confirmation
// does not treat the player as externally paused.
func (a *Arbitrator) primePlayLocked() playPriming {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := playPriming{halt: a.haltInitiator, ignore: a.ignoreExternalPauseCheck}
	a.haltInitiator = HaltNone
	a.ignoreExternalPauseCheck = true
	return prev
}

func (a *Arbitrator) rollbackPlayLocked(prev playPriming) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.haltInitiator = prev.halt
	a.ignoreExternalPauseCheck = prev.ignore
}

// releaseOnShutdownLocked gives the channel back if it is held.
func (a *Arbitrator) releaseOnShutdownLocked() {
	a.mu.Lock()
	current := a.focus
	a.mu.Unlock()
	if current != focus.None {
		a.fm.ReleaseChannel(a.channel, a)
	}
}

func (a *Arbitrator) setHaltInitiator(h HaltInitiator) {
	a.mu.Lock()
	a.haltInitiator = h
	a.mu.Unlock()
}
