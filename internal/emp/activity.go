package emp

import (
	"sync"
	"time"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
)

// activityTracker holds the current player activity and lets other goroutines
// wait, with a bound, for it to reach a value.
type activityTracker struct {
	mu      sync.Mutex
	current adapter.Activity
	changed chan struct{}
}

func newActivityTracker() *activityTracker {
	return &activityTracker{
		current: adapter.ActivityIdle,
		changed: make(chan struct{}),
	}
}

func (t *activityTracker) get() adapter.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *activityTracker) set(a adapter.Activity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = a
	close(t.changed)
	t.changed = make(chan struct{})
}

// waitFor blocks until pred holds for the current activity or timeout
// elapses. It reports whether pred held.
func (t *activityTracker) waitFor(timeout time.Duration, pred func(adapter.Activity) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		if pred(t.current) {
			t.mu.Unlock()
			return true
		}
		changed := t.changed
		t.mu.Unlock()

		select {
		case <-changed:
		case <-deadline.C:
			return false
		}
	}
}

func isHalted(a adapter.Activity) bool {
	switch a {
	case adapter.ActivityIdle, adapter.ActivityPaused, adapter.ActivityStopped, adapter.ActivityFinished:
		return true
	}
	return false
}

func isEnded(a adapter.Activity) bool {
	switch a {
	case adapter.ActivityIdle, adapter.ActivityStopped, adapter.ActivityFinished:
		return true
	}
	return false
}
