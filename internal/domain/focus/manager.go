package focus

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/infra/executor"
)

// ChannelConfig describes one channel a LocalManager arbitrates.
type ChannelConfig struct {
	Name string
	// Duck lets a backgrounded holder keep playing at lower volume instead of pausing.
	Duck bool
}

type holder struct {
	observer   Observer
	activityID string
}

type channel struct {
	config  ChannelConfig
	holders []holder // last element holds the foreground
}

// LocalManager is an in-process Manager. The newest acquirer of a channel is
// in the foreground; earlier holders wait in the background and regain the
// foreground when it is released.
type LocalManager struct {
	exec *executor.Executor

	mu       sync.Mutex
	channels map[string]*channel
}

// NewLocalManager creates a manager for the given channels.
func NewLocalManager(configs ...ChannelConfig) *LocalManager {
	m := &LocalManager{
		exec:     executor.New("focus"),
		channels: make(map[string]*channel),
	}
	for _, c := range configs {
		m.channels[c.Name] = &channel{config: c}
	}
	return m
}

// AcquireChannel implements Manager.
func (m *LocalManager) AcquireChannel(name string, observer Observer, activityID string) bool {
	m.mu.Lock()
	_, ok := m.channels[name]
	m.mu.Unlock()
	if !ok || observer == nil {
		log.Error().Str("channel", name).Msg("Acquire on unknown channel")
		return false
	}

	err := m.exec.Submit(func() {
		m.acquire(name, holder{observer: observer, activityID: activityID})
	})
	return err == nil
}

// ReleaseChannel implements Manager.
func (m *LocalManager) ReleaseChannel(name string, observer Observer) <-chan bool {
	result := make(chan bool, 1)
	err := m.exec.Submit(func() {
		result <- m.release(name, observer)
	})
	if err != nil {
		result <- false
	}
	return result
}

// Foreground returns the activity id currently holding the channel's foreground.
func (m *LocalManager) Foreground(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[name]
	if !ok || len(ch.holders) == 0 {
		return ""
	}
	return ch.holders[len(ch.holders)-1].activityID
}

// Close stops the notification goroutine.
func (m *LocalManager) Close() {
	m.exec.Shutdown()
}

func (m *LocalManager) acquire(name string, h holder) {
	m.mu.Lock()
	ch := m.channels[name]
	if n := len(ch.holders); n > 0 && ch.holders[n-1].observer == h.observer {
		ch.holders[n-1].activityID = h.activityID
		m.mu.Unlock()
		return
	}

	var previous Observer
	ch.holders = removeHolder(ch.holders, h.observer)
	if n := len(ch.holders); n > 0 {
		previous = ch.holders[n-1].observer
	}
	ch.holders = append(ch.holders, h)
	duck := ch.config.Duck
	m.mu.Unlock()

	log.Debug().Str("channel", name).Str("activity", h.activityID).Msg("Channel acquired")

	if previous != nil {
		behavior := MustPause
		if duck {
			behavior = MayDuck
		}
		previous.OnFocusChanged(Background, behavior)
	}
	h.observer.OnFocusChanged(Foreground, Primary)
}

func (m *LocalManager) release(name string, observer Observer) bool {
	m.mu.Lock()
	ch, ok := m.channels[name]
	if !ok {
		m.mu.Unlock()
		return false
	}

	n := len(ch.holders)
	wasForeground := n > 0 && ch.holders[n-1].observer == observer
	remaining := removeHolder(ch.holders, observer)
	if len(remaining) == n {
		m.mu.Unlock()
		return false
	}
	ch.holders = remaining

	var next Observer
	if wasForeground && len(remaining) > 0 {
		next = remaining[len(remaining)-1].observer
	}
	m.mu.Unlock()

	log.Debug().Str("channel", name).Msg("Channel released")

	observer.OnFocusChanged(None, MustStop)
	if next != nil {
		next.OnFocusChanged(Foreground, Primary)
	}
	return true
}

func removeHolder(holders []holder, observer Observer) []holder {
	out := holders[:0:0]
	for _, h := range holders {
		if h.observer != observer {
			out = append(out, h)
		}
	}
	return out
}
