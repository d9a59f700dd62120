// Package directive defines inbound cloud directives and their completion
// callbacks.
package directive

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Directive is an inbound command addressed to a capability agent.
type Directive struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	MessageID string `json:"messageId"`
	AgentID   string `json:"agentId,omitempty"`
	Payload   string `json:"payload"`
}

// Key returns the namespace and name joined by a dot.
func (d Directive) Key() string {
	return d.Namespace + "." + d.Name
}

// Result receives the outcome of handling a directive. Exactly one of its
// methods is called per directive.
type Result interface {
	SetCompleted()
	SetFailed(description string)
}

// Once wraps a Result so that only the first outcome is delivered.
type Once struct {
	once   sync.Once
	result Result
	key    string
}

// NewOnce wraps r for directive d.
func NewOnce(d Directive, r Result) *Once {
	return &Once{result: r, key: d.Key()}
}

// SetCompleted implements Result.
func (o *Once) SetCompleted() {
	delivered := false
	o.once.Do(func() {
		delivered = true
		if o.result != nil {
			o.result.SetCompleted()
		}
	})
	if !delivered {
		log.Warn().Str("directive", o.key).Msg("Directive result already reported")
	}
}

// SetFailed implements Result.
func (o *Once) SetFailed(description string) {
	delivered := false
	o.once.Do(func() {
		delivered = true
		if o.result != nil {
			o.result.SetFailed(description)
		}
	})
	if !delivered {
		log.Warn().Str("directive", o.key).Str("description", description).Msg("Directive result already reported")
	}
}

// ResultFunc adapts a function to Result. It receives an empty description on success.
type ResultFunc func(ok bool, description string)

// SetCompleted implements Result.
func (f ResultFunc) SetCompleted() { f(true, "") }

// SetFailed implements Result.
func (f ResultFunc) SetFailed(description string) { f(false, description) }
