// Package focus defines the audio channel focus contract and an in-process
// focus manager implementing it.
package focus

import "fmt"

// State is the focus level a channel holder has.
type State int

const (
	None State = iota
	Background
	Foreground
)

func (s State) String() string {
	switch s {
	case None:
		return "NONE"
	case Background:
		return "BACKGROUND"
	case Foreground:
		return "FOREGROUND"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MixingBehavior tells a holder how to behave at its new focus level.
type MixingBehavior int

const (
	Undefined MixingBehavior = iota
	Primary
	MayDuck
	MustPause
	MustStop
)

func (m MixingBehavior) String() string {
	switch m {
	case Undefined:
		return "UNDEFINED"
	case Primary:
		return "PRIMARY"
	case MayDuck:
		return "MAY_DUCK"
	case MustPause:
		return "MUST_PAUSE"
	case MustStop:
		return "MUST_STOP"
	}
	return fmt.Sprintf("MixingBehavior(%d)", int(m))
}

// ContentChannel is the channel media players share.
const ContentChannel = "Content"

// Observer receives focus changes. Managers call it on their own goroutine.
type Observer interface {
	OnFocusChanged(state State, behavior MixingBehavior)
}

// Manager arbitrates channel focus between observers.
type Manager interface {
	// AcquireChannel requests focus for observer. It returns false if the
	// request could not be queued; the grant itself arrives via OnFocusChanged.
	AcquireChannel(channel string, observer Observer, activityID string) bool

	// ReleaseChannel gives up focus. The returned channel yields whether the
	// observer held the channel.
	ReleaseChannel(channel string, observer Observer) <-chan bool
}
