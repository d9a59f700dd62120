package socketio

import (
	"sort"
	"sync"
	"time"
)

// PushDebouncer collapses bursts of context changes into one push. Keys
// changed within the window are delivered together, sorted, once the window
// elapses without further triggers.
type PushDebouncer struct {
	window   time.Duration
	callback func(keys []string)

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	stopped bool
}

// NewPushDebouncer creates a debouncer with the given window duration.
func NewPushDebouncer(window time.Duration, callback func(keys []string)) *PushDebouncer {
	return &PushDebouncer{
		window:   window,
		callback: callback,
		pending:  make(map[string]bool),
	}
}

// Trigger records that key changed and restarts the window.
func (d *PushDebouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending[key] = true

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *PushDebouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	d.pending = make(map[string]bool)
	d.mu.Unlock()

	sort.Strings(keys)
	if d.callback != nil {
		d.callback(keys)
	}
}

// Stop prevents any further callbacks from firing.
func (d *PushDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]bool)
}
