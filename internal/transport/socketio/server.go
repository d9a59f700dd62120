// Package socketio exposes the agent to local clients over Socket.io.
// Clients send directives and UI input; the server pushes events, directive
// results and context snapshots.
package socketio

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/contextmgr"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
	"github.com/edumarques81/stellar-emp/internal/emp"
)

// Events emitted to clients.
const (
	EventDirectiveResult = "directiveResult"
	EventEvent           = "event"
	EventPushContext     = "pushContext"
	EventError           = "pushError"
)

// Defaults for Options.
const (
	DefaultContextTimeout     = 2 * time.Second
	DefaultPushDebounce       = 100 * time.Millisecond
	DefaultMaxExternalClients = 4
)

// Agent is the part of the agent driven by clients.
type Agent interface {
	HandleDirective(d directive.Directive, result directive.Result)
	OnButtonPressed(button adapter.PlaybackButton)
	OnTogglePressed(toggle adapter.PlaybackToggle, selected bool)
	SetPlayerInFocus(playerID string, acquire bool)
}

// ContextSource builds context snapshots.
type ContextSource interface {
	GetContext(ctx context.Context) ([]contextmgr.Entry, error)
}

// Options configures a Server.
type Options struct {
	ContextTimeout     time.Duration
	PushDebounce       time.Duration
	MaxExternalClients int
}

// Server handles Socket.io connections and events.
type Server struct {
	io             *socket.Server
	agent          Agent
	contexts       ContextSource
	contextTimeout time.Duration
	slots          *controllerSlots
	debouncer      *PushDebouncer

	mu          sync.RWMutex
	clients     map[string]*socket.Socket
	lastContext []byte
}

// NewServer creates a new Socket.io server.
func NewServer(agent Agent, contexts ContextSource, o Options) (*Server, error) {
	if o.ContextTimeout <= 0 {
		o.ContextTimeout = DefaultContextTimeout
	}
	if o.PushDebounce <= 0 {
		o.PushDebounce = DefaultPushDebounce
	}
	if o.MaxExternalClients <= 0 {
		o.MaxExternalClients = DefaultMaxExternalClients
	}

	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:             socket.NewServer(nil, opts),
		agent:          agent,
		contexts:       contexts,
		contextTimeout: o.ContextTimeout,
		slots:          newControllerSlots(o.MaxExternalClients),
		clients:        make(map[string]*socket.Socket),
	}
	s.debouncer = NewPushDebouncer(o.PushDebounce, func(keys []string) {
		log.Debug().Strs("keys", keys).Msg("Context changed")
		s.BroadcastContext()
	})

	s.setupHandlers()

	return s, nil
}

func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		ip := remoteIP(client.Handshake().Address)

		evicted := s.slots.Admit(clientID, ip)
		log.Info().Str("id", clientID).Str("ip", ip).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		old := s.clients[evicted]
		s.mu.Unlock()

		if old != nil {
			log.Info().Str("id", evicted).Msg("Evicting oldest remote controller")
			old.Disconnect(true)
		}

		go s.pushContext(client)

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.slots.Release(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("directive", func(args ...any) {
			s.handleDirective(client, args)
		})

		client.On("getContext", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getContext")
			go s.pushContext(client)
		})

		client.On("buttonPressed", func(args ...any) {
			name := getString(argMap(args), "button")
			button, err := adapter.ParsePlaybackButton(name)
			if err != nil {
				s.emitError(client, "buttonPressed", err)
				return
			}
			log.Debug().Str("id", clientID).Str("button", name).Msg("buttonPressed")
			s.agent.OnButtonPressed(button)
		})

		client.On("togglePressed", func(args ...any) {
			m := argMap(args)
			name := getString(m, "toggle")
			toggle, err := adapter.ParsePlaybackToggle(name)
			if err != nil {
				s.emitError(client, "togglePressed", err)
				return
			}
			selected := getBool(m, "selected")
			log.Debug().Str("id", clientID).Str("toggle", name).Bool("selected", selected).Msg("togglePressed")
			s.agent.OnTogglePressed(toggle, selected)
		})

		client.On("setPlayerInFocus", func(args ...any) {
			m := argMap(args)
			playerID := getString(m, "playerId")
			acquire := true
			if _, ok := m["acquire"]; ok {
				acquire = getBool(m, "acquire")
			}
			log.Debug().Str("id", clientID).Str("playerId", playerID).Bool("acquire", acquire).Msg("setPlayerInFocus")
			s.agent.SetPlayerInFocus(playerID, acquire)
		})
	})
}

// wireDirective is a directive as sent by clients. Payload may be a JSON
// object or a string holding one.
type wireDirective struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	MessageID string          `json:"messageId"`
	Payload   json.RawMessage `json:"payload"`
}

func parseDirective(arg any) (directive.Directive, error) {
	raw, err := json.Marshal(arg)
	if err != nil {
		return directive.Directive{}, err
	}
	var w wireDirective
	if err := json.Unmarshal(raw, &w); err != nil {
		return directive.Directive{}, err
	}

	payload := string(w.Payload)
	var s string
	if json.Unmarshal(w.Payload, &s) == nil {
		payload = s
	}
	return directive.Directive{
		Namespace: w.Namespace,
		Name:      w.Name,
		MessageID: w.MessageID,
		Payload:   payload,
	}, nil
}

func (s *Server) handleDirective(client *socket.Socket, args []any) {
	if len(args) == 0 {
		s.emitError(client, "directive", errMissingArgument)
		return
	}
	d, err := parseDirective(args[0])
	if err != nil {
		s.emitError(client, "directive", err)
		return
	}
	log.Debug().Str("id", string(client.Id())).Str("directive", d.Key()).Str("messageId", d.MessageID).Msg("directive")

	s.agent.HandleDirective(d, directive.ResultFunc(func(ok bool, description string) {
		client.Emit(EventDirectiveResult, map[string]any{
			"messageId":   d.MessageID,
			"success":     ok,
			"description": description,
		})
	}))
}

// SendEvent implements emp.EventSink by broadcasting the event.
func (s *Server) SendEvent(e emp.Event) {
	var payload any
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			log.Error().Err(err).Str("event", e.Name).Msg("Dropping event with invalid payload")
			return
		}
	}
	s.io.Emit(EventEvent, map[string]any{
		"namespace": e.Namespace,
		"name":      e.Name,
		"messageId": e.MessageID,
		"payload":   payload,
	})
}

// ContextChanged schedules a context broadcast.
func (s *Server) ContextChanged(key contextmgr.NamespaceAndName) {
	s.debouncer.Trigger(key.String())
}

func (s *Server) fetchContext() (any, []byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.contextTimeout)
	defer cancel()

	entries, err := s.contexts.GetContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, nil, err
	}
	var wire any
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, nil, err
	}
	return wire, data, nil
}

func (s *Server) pushContext(client *socket.Socket) {
	wire, _, err := s.fetchContext()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get context")
		s.emitError(client, "getContext", err)
		return
	}
	client.Emit(EventPushContext, wire)
}

// BroadcastContext sends the context to all clients unless it is unchanged
// since the last broadcast.
func (s *Server) BroadcastContext() {
	wire, data, err := s.fetchContext()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get context for broadcast")
		return
	}

	s.mu.Lock()
	same := bytes.Equal(data, s.lastContext)
	s.lastContext = data
	clientCount := len(s.clients)
	s.mu.Unlock()

	if same {
		log.Debug().Msg("Context unchanged, broadcast skipped")
		return
	}

	s.io.Emit(EventPushContext, wire)
	log.Debug().Int("clients", clientCount).Msg("Broadcast context")
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) emitError(client *socket.Socket, event string, err error) {
	log.Warn().Err(err).Str("id", string(client.Id())).Str("event", event).Msg("Bad client request")
	client.Emit(EventError, map[string]any{
		"event": event,
		"error": err.Error(),
	})
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops pending pushes and closes the Socket.io server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

var _ emp.EventSink = (*Server)(nil)
