package emp

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
)

// Namespaces used by the directives and events this agent handles.
const (
	NamespaceExternalMediaPlayer = "ExternalMediaPlayer"
	NamespacePlaybackController  = "Alexa.PlaybackController"
	NamespacePlaylistController  = "Alexa.PlaylistController"
	NamespaceSeekController      = "Alexa.SeekController"
	NamespaceFavoritesController = "Alexa.FavoritesController"
	NamespacePlaybackReporter    = "Alexa.PlaybackStateReporter"
	NamespaceSystem              = "System"
)

// Event is an outbound message to the cloud.
type Event struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	MessageID string          `json:"messageId"`
	Payload   json.RawMessage `json:"payload"`
}

// EventSink delivers events. Implementations must not block for long.
type EventSink interface {
	SendEvent(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e Event)

// SendEvent implements EventSink.
func (f EventSinkFunc) SendEvent(e Event) { f(e) }

type discardSink struct{}

func (discardSink) SendEvent(Event) {}

func newEvent(namespace, name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Namespace: namespace,
		Name:      name,
		MessageID: uuid.NewString(),
		Payload:   data,
	}, nil
}

func (c *Core) sendEvent(namespace, name string, payload any) {
	e, err := newEvent(namespace, name, payload)
	if err != nil {
		log.Error().Err(err).Str("event", namespace+"."+name).Msg("Failed to build event")
		return
	}
	log.Debug().Str("event", namespace+"."+name).RawJSON("payload", e.Payload).Msg("Sending event")
	c.events.SendEvent(e)
}

type exceptionPayload struct {
	UnparsedDirective string         `json:"unparsedDirective"`
	Error             exceptionError `json:"error"`
}

type exceptionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *Core) sendException(d directive.Directive, err error) {
	raw, _ := json.Marshal(d)
	c.sendEvent(NamespaceSystem, "ExceptionEncountered", exceptionPayload{
		UnparsedDirective: string(raw),
		Error: exceptionError{
			Type:    exceptionType(err),
			Message: err.Error(),
		},
	})
}

type playerRef struct {
	PlayerID string `json:"playerId"`
}

type playerEventPayload struct {
	EventName         string `json:"eventName"`
	PlayerID          string `json:"playerId"`
	SkillToken        string `json:"skillToken"`
	PlaybackSessionID string `json:"playbackSessionId"`
}

type playerErrorPayload struct {
	PlayerID          string `json:"playerId"`
	SkillToken        string `json:"skillToken"`
	PlaybackSessionID string `json:"playbackSessionId"`
	ErrorName         string `json:"errorName"`
	Code              int    `json:"code"`
	Description       string `json:"description"`
	Fatal             bool   `json:"fatal"`
}

type discoveredPlayersPayload struct {
	Agent   string                     `json:"agent"`
	Players []adapter.DiscoveredPlayer `json:"players"`
}

type authorizedRef struct {
	PlayerID   string `json:"playerId"`
	SkillToken string `json:"skillToken"`
}

type deauthorizedRef struct {
	LocalPlayerID string `json:"localPlayerId"`
}

type authorizationCompletePayload struct {
	Authorized   []authorizedRef   `json:"authorized"`
	Deauthorized []deauthorizedRef `json:"deauthorized"`
}
