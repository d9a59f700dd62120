// Package remote bridges a media player running in another process over a
// websocket. Commands are sent as JSON frames; the remote side answers state
// queries and reports player events on the same connection.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/version"
)

// DefaultTimeout bounds a state round trip.
const DefaultTimeout = 500 * time.Millisecond

const (
	maxBackoff  = 30 * time.Second
	dialTimeout = 10 * time.Second
)

// ErrNotConnected is returned when a frame is sent without a connection.
var ErrNotConnected = errors.New("remote adapter not connected")

// Frame types sent to the remote player.
const (
	FrameLogin      = "login"
	FrameLogout     = "logout"
	FramePlay       = "play"
	FrameControl    = "control"
	FrameSeek       = "seek"
	FrameAdjustSeek = "adjustSeek"
	FrameAuthorize  = "authorize"
	FrameGetStates  = "getStates"
)

// Frame types received from the remote player.
const (
	FrameStates         = "states"
	FrameLoginComplete  = "loginComplete"
	FrameLogoutComplete = "logoutComplete"
	FramePlayerEvent    = "playerEvent"
	FramePlayerError    = "playerError"
	FrameDiscovered     = "discovered"
	FrameFocus          = "focus"
)

// Frame is the envelope of every message on the connection.
type Frame struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	PlayerID string          `json:"playerId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type loginPayload struct {
	AccessToken       string `json:"accessToken"`
	UserName          string `json:"userName"`
	ForceLogin        bool   `json:"forceLogin"`
	RefreshIntervalMs int64  `json:"tokenRefreshIntervalInMilliseconds"`
}

type playPayload struct {
	PlaybackContextToken string                `json:"playbackContextToken"`
	Index                int64                 `json:"index"`
	OffsetMs             int64                 `json:"offsetInMilliseconds"`
	SkillToken           string                `json:"skillToken,omitempty"`
	PlaybackSessionID    string                `json:"playbackSessionId,omitempty"`
	Navigation           string                `json:"navigation,omitempty"`
	Preload              bool                  `json:"preload"`
	Requestor            adapter.PlayRequestor `json:"playRequestor"`
}

type controlPayload struct {
	Request string `json:"request"`
}

type seekPayload struct {
	PositionMs int64 `json:"positionMilliseconds"`
}

type adjustSeekPayload struct {
	DeltaMs int64 `json:"deltaPositionMilliseconds"`
}

type authorizePayload struct {
	Players []adapter.PlayerInfo `json:"players"`
}

type getStatesPayload struct {
	All bool `json:"all"`
}

type statesPayload struct {
	States []adapter.State `json:"states"`
}

type playerEventPayload struct {
	Event string `json:"event"`
}

type playerErrorPayload struct {
	Name        string `json:"name"`
	Code        int    `json:"code"`
	Description string `json:"description"`
	Fatal       bool   `json:"fatal"`
}

type discoveredPayload struct {
	Players []adapter.DiscoveredPlayer `json:"players"`
}

type focusPayload struct {
	Acquire bool `json:"acquire"`
}

// Config describes one remote player.
type Config struct {
	PlayerID   string
	URL        string
	SkillToken string
	Timeout    time.Duration
}

// Adapter is an adapter.Handler that forwards to a remote player.
type Adapter struct {
	playerID   string
	url        string
	skillToken string
	timeout    time.Duration
	reporter   adapter.Reporter
	dialer     *websocket.Dialer

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan []adapter.State
}

// New creates an unconnected adapter.
func New(cfg Config, reporter adapter.Reporter) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		playerID:   cfg.PlayerID,
		url:        cfg.URL,
		skillToken: cfg.SkillToken,
		timeout:    timeout,
		reporter:   reporter,
		dialer:     &websocket.Dialer{HandshakeTimeout: dialTimeout},
		pending:    make(map[string]chan []adapter.State),
	}
}

// PlayerID returns the player id the adapter answers to.
func (a *Adapter) PlayerID() string {
	return a.playerID
}

// Connected reports whether a connection is open.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Connect dials the remote player and starts reading its frames. The
// returned channel is closed when the connection ends.
func (a *Adapter) Connect(ctx context.Context) (<-chan struct{}, error) {
	header := http.Header{"User-Agent": []string{version.UserAgent()}}
	conn, _, err := a.dialer.DialContext(ctx, a.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", a.url, err)
	}

	a.mu.Lock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.conn = conn
	a.mu.Unlock()

	log.Info().Str("playerId", a.playerID).Str("url", a.url).Msg("Remote player connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.readLoop(ctx, conn)
	}()
	return done, nil
}

// Run keeps the adapter connected until ctx is done, reconnecting with
// exponential backoff.
func (a *Adapter) Run(ctx context.Context) {
	backoff := time.Second
	for {
		done, err := a.Connect(ctx)
		if err != nil {
			log.Warn().Err(err).Str("playerId", a.playerID).Dur("retryIn", backoff).Msg("Remote player unavailable")
		} else {
			backoff = time.Second
			select {
			case <-done:
			case <-ctx.Done():
				a.Close()
				<-done
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Close closes the current connection, if any.
func (a *Adapter) Close() error {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("playerId", a.playerID).Msg("Remote player connection lost")
			}
			a.mu.Lock()
			if a.conn == conn {
				a.conn = nil
			}
			a.mu.Unlock()
			conn.Close()
			return
		}
		a.handleFrame(f)
	}
}

func (a *Adapter) handleFrame(f Frame) {
	playerID := f.PlayerID
	if playerID == "" {
		playerID = a.playerID
	}

	switch f.Type {
	case FrameStates:
		var p statesPayload
		if !a.decode(f, &p) {
			return
		}
		a.mu.Lock()
		ch, ok := a.pending[f.ID]
		a.mu.Unlock()
		if !ok {
			log.Debug().Str("id", f.ID).Msg("Late state response dropped")
			return
		}
		select {
		case ch <- p.States:
		default:
		}
	case FrameLoginComplete:
		a.reporter.LoginComplete(playerID)
	case FrameLogoutComplete:
		a.reporter.LogoutComplete(playerID)
	case FramePlayerEvent:
		var p playerEventPayload
		if a.decode(f, &p) {
			a.reporter.PlayerEvent(playerID, p.Event)
		}
	case FramePlayerError:
		var p playerErrorPayload
		if a.decode(f, &p) {
			a.reporter.PlayerError(playerID, p.Name, p.Code, p.Description, p.Fatal)
		}
	case FrameDiscovered:
		var p discoveredPayload
		if a.decode(f, &p) {
			a.reporter.ReportDiscoveredPlayers(p.Players)
		}
	case FrameFocus:
		var p focusPayload
		if a.decode(f, &p) {
			a.reporter.SetPlayerInFocus(playerID, p.Acquire)
		}
	default:
		log.Debug().Str("playerId", a.playerID).Str("type", f.Type).Msg("Unknown frame from remote player")
	}
}

func (a *Adapter) decode(f Frame, v any) bool {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		log.Warn().Err(err).Str("playerId", a.playerID).Str("type", f.Type).Msg("Malformed frame from remote player")
		return false
	}
	return true
}

func (a *Adapter) send(frameType, id string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(a.timeout))
	return conn.WriteJSON(Frame{Type: frameType, ID: id, PlayerID: a.playerID, Payload: raw})
}

// forward sends a command frame when playerID belongs to this adapter.
func (a *Adapter) forward(playerID, frameType string, payload any) bool {
	if playerID != a.playerID {
		return false
	}
	if err := a.send(frameType, "", payload); err != nil {
		log.Warn().Err(err).Str("playerId", a.playerID).Str("type", frameType).Msg("Failed to forward to remote player")
		return false
	}
	return true
}

// Login implements adapter.Handler.
func (a *Adapter) Login(playerID, accessToken, userName string, forceLogin bool, refreshInterval time.Duration) bool {
	return a.forward(playerID, FrameLogin, loginPayload{
		AccessToken:       accessToken,
		UserName:          userName,
		ForceLogin:        forceLogin,
		RefreshIntervalMs: refreshInterval.Milliseconds(),
	})
}

// Logout implements adapter.Handler.
func (a *Adapter) Logout(playerID string) bool {
	return a.forward(playerID, FrameLogout, struct{}{})
}

// Play implements adapter.Handler.
func (a *Adapter) Play(req adapter.PlayRequest) bool {
	skillToken := req.SkillToken
	if skillToken == "" {
		skillToken = a.skillToken
	}
	return a.forward(req.PlayerID, FramePlay, playPayload{
		PlaybackContextToken: req.PlaybackContextToken,
		Index:                req.Index,
		OffsetMs:             req.Offset.Milliseconds(),
		SkillToken:           skillToken,
		PlaybackSessionID:    req.PlaybackSessionID,
		Navigation:           req.Navigation,
		Preload:              req.Preload,
		Requestor:            req.Requestor,
	})
}

// PlayControl implements adapter.Handler.
func (a *Adapter) PlayControl(playerID string, req adapter.RequestType) bool {
	return a.forward(playerID, FrameControl, controlPayload{Request: req.String()})
}

// Seek implements adapter.Handler.
func (a *Adapter) Seek(playerID string, offset time.Duration) bool {
	return a.forward(playerID, FrameSeek, seekPayload{PositionMs: offset.Milliseconds()})
}

// AdjustSeek implements adapter.Handler.
func (a *Adapter) AdjustSeek(playerID string, delta time.Duration) bool {
	return a.forward(playerID, FrameAdjustSeek, adjustSeekPayload{DeltaMs: delta.Milliseconds()})
}

// AuthorizeDiscoveredPlayers implements adapter.Handler.
func (a *Adapter) AuthorizeDiscoveredPlayers(players []adapter.PlayerInfo) bool {
	if err := a.send(FrameAuthorize, "", authorizePayload{Players: players}); err != nil {
		log.Warn().Err(err).Str("playerId", a.playerID).Msg("Failed to forward authorization")
		return false
	}
	return true
}

// AdapterStates implements adapter.Handler. It asks the remote player and
// waits up to the configured timeout; nil is returned on timeout.
func (a *Adapter) AdapterStates(all bool) []adapter.State {
	id := uuid.NewString()
	ch := make(chan []adapter.State, 1)

	a.mu.Lock()
	a.pending[id] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
	}()

	if err := a.send(FrameGetStates, id, getStatesPayload{All: all}); err != nil {
		log.Debug().Err(err).Str("playerId", a.playerID).Msg("State request not sent")
		return nil
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case states := <-ch:
		return states
	case <-timer.C:
		log.Warn().Str("playerId", a.playerID).Dur("timeout", a.timeout).Msg("Remote player state request timed out")
		return nil
	}
}

// Offset implements adapter.Handler.
func (a *Adapter) Offset(playerID string) time.Duration {
	if playerID != a.playerID {
		return 0
	}
	for _, s := range a.AdapterStates(true) {
		if s.PlayerID() == playerID {
			return s.Playback.TrackOffset
		}
	}
	return 0
}

var _ adapter.Handler = (*Adapter)(nil)
