package main

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/emp"
)

// eventRelay fans events out to sinks registered after the agent is built.
type eventRelay struct {
	mu    sync.RWMutex
	sinks []emp.EventSink
}

func (r *eventRelay) Add(sink emp.EventSink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, sink)
	r.mu.Unlock()
}

// SendEvent implements emp.EventSink.
func (r *eventRelay) SendEvent(e emp.Event) {
	log.Debug().Str("namespace", e.Namespace).Str("name", e.Name).Str("messageId", e.MessageID).Msg("Event")

	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()
	for _, s := range sinks {
		s.SendEvent(e)
	}
}
