// Package mpdplayer implements a media adapter that drives an MPD server. An
// adapter with an empty player id is the built-in player; otherwise it acts
// as a local adapter under its player id.
package mpdplayer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/infra/mpd"
)

// DefaultSeekStep is how far FastForward and Rewind move.
const DefaultSeekStep = 10 * time.Second

// Player is the subset of the MPD client the adapter drives.
type Player interface {
	Status() (mpd.Status, error)
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	Next() error
	Previous() error
	Seek(d time.Duration, relative bool) error
	SetRandom(on bool) error
	SetRepeat(on bool) error
	SetSingle(on bool) error
	ReplaceQueue(uri string) error
}

var supportedOperations = []adapter.Operation{
	adapter.OpPlay, adapter.OpPause, adapter.OpStop, adapter.OpNext, adapter.OpPrevious,
	adapter.OpStartOver, adapter.OpFastForward, adapter.OpRewind,
	adapter.OpEnableRepeat, adapter.OpEnableRepeatOne, adapter.OpDisableRepeat,
	adapter.OpEnableShuffle, adapter.OpDisableShuffle,
	adapter.OpFavorite, adapter.OpUnfavorite,
	adapter.OpSetSeekPosition, adapter.OpAdjustSeekPosition,
}

// Adapter is an adapter.Handler backed by MPD.
type Adapter struct {
	playerID      string
	localPlayerID string
	spiVersion    string
	seekStep      time.Duration

	client   Player
	reporter adapter.Reporter

	mu        sync.Mutex
	session   adapter.SessionState
	favorite  adapter.Favorite
	lastState string
	lastSong  string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLocalPlayerID sets the id reported during discovery.
func WithLocalPlayerID(id string) Option {
	return func(a *Adapter) {
		a.localPlayerID = id
	}
}

// WithSPIVersion sets the reported SPI version.
func WithSPIVersion(v string) Option {
	return func(a *Adapter) {
		a.spiVersion = v
	}
}

// WithSeekStep sets the FastForward/Rewind step.
func WithSeekStep(d time.Duration) Option {
	return func(a *Adapter) {
		a.seekStep = d
	}
}

// New creates an adapter for playerID. reporter receives login, playback and
// error reports.
func New(playerID string, client Player, reporter adapter.Reporter, opts ...Option) *Adapter {
	a := &Adapter{
		playerID:      playerID,
		localPlayerID: "mpd-" + playerID,
		spiVersion:    "1.0",
		seekStep:      DefaultSeekStep,
		client:        client,
		reporter:      reporter,
		favorite:      adapter.NotRated,
		lastState:     mpd.StateStop,
	}
	if playerID == "" {
		a.localPlayerID = "mpd-builtin"
	}
	for _, opt := range opts {
		opt(a)
	}
	a.session = adapter.SessionState{
		PlayerID:   playerID,
		SPIVersion: a.spiVersion,
		Launched:   true,
	}
	return a
}

// PlayerID returns the player id the adapter answers to.
func (a *Adapter) PlayerID() string {
	return a.playerID
}

func (a *Adapter) owns(playerID string) bool {
	return playerID == a.playerID
}

// Discover reports this player for authorization. The built-in player needs
// no authorization and reports nothing.
func (a *Adapter) Discover() {
	if a.playerID == "" {
		return
	}
	a.reporter.ReportDiscoveredPlayers([]adapter.DiscoveredPlayer{{
		LocalPlayerID:    a.localPlayerID,
		SPIVersion:       a.spiVersion,
		ValidationMethod: "NONE",
		ValidationData:   []string{},
	}})
}

// Login implements adapter.Handler.
func (a *Adapter) Login(playerID, accessToken, userName string, _ bool, _ time.Duration) bool {
	if !a.owns(playerID) {
		return false
	}
	a.mu.Lock()
	a.session.LoggedIn = true
	a.session.AccessToken = accessToken
	a.session.UserName = userName
	a.mu.Unlock()

	a.reporter.LoginComplete(playerID)
	return true
}

// Logout implements adapter.Handler.
func (a *Adapter) Logout(playerID string) bool {
	if !a.owns(playerID) {
		return false
	}
	a.mu.Lock()
	a.session.LoggedIn = false
	a.session.AccessToken = ""
	a.session.UserName = ""
	a.mu.Unlock()

	a.reporter.LogoutComplete(playerID)
	return true
}

// Play implements adapter.Handler. The playback context token is an MPD uri
// or "playlist:<name>"; an empty token plays the current queue.
func (a *Adapter) Play(req adapter.PlayRequest) bool {
	if !a.owns(req.PlayerID) {
		return false
	}

	if req.PlaybackContextToken != "" {
		if err := a.client.ReplaceQueue(req.PlaybackContextToken); err != nil {
			a.fail("PLAY_FAILED", err)
			return false
		}
	}
	if err := a.client.Play(int(req.Index)); err != nil {
		a.fail("PLAY_FAILED", err)
		return false
	}
	if req.Offset > 0 {
		if err := a.client.Seek(req.Offset, false); err != nil {
			log.Warn().Err(err).Str("playerId", a.playerID).Msg("Failed to apply play offset")
		}
	}

	a.mu.Lock()
	a.session.SkillToken = req.SkillToken
	a.session.PlaybackSessionID = req.PlaybackSessionID
	a.session.Active = true
	a.mu.Unlock()
	return true
}

// PlayControl implements adapter.Handler.
func (a *Adapter) PlayControl(playerID string, req adapter.RequestType) bool {
	if !a.owns(playerID) {
		return false
	}

	var err error
	switch req {
	case adapter.RequestPlay:
		err = a.client.Play(-1)
	case adapter.RequestResume:
		err = a.client.Pause(false)
	case adapter.RequestPause:
		err = a.client.Pause(true)
	case adapter.RequestPauseResumeToggle:
		err = a.toggle()
	case adapter.RequestStop:
		err = a.client.Stop()
	case adapter.RequestNext:
		err = a.client.Next()
	case adapter.RequestPrevious:
		err = a.client.Previous()
	case adapter.RequestStartOver:
		err = a.client.Seek(0, false)
	case adapter.RequestFastForward:
		err = a.client.Seek(a.seekStep, true)
	case adapter.RequestRewind:
		err = a.client.Seek(-a.seekStep, true)
	case adapter.RequestEnableRepeatOne:
		err = a.setRepeat(true, true)
	case adapter.RequestEnableRepeat:
		err = a.setRepeat(true, false)
	case adapter.RequestDisableRepeat:
		err = a.setRepeat(false, false)
	case adapter.RequestEnableShuffle:
		err = a.client.SetRandom(true)
	case adapter.RequestDisableShuffle:
		err = a.client.SetRandom(false)
	case adapter.RequestFavorite:
		a.setFavorite(adapter.Favorited)
	case adapter.RequestUnfavorite:
		a.setFavorite(adapter.Unfavorited)
	case adapter.RequestDeselectFavorite, adapter.RequestDeselectUnfavorite:
		a.setFavorite(adapter.NotRated)
	default:
		log.Debug().Str("playerId", a.playerID).Stringer("request", req).Msg("Unsupported control request")
		return false
	}

	if err != nil {
		log.Error().Err(err).Str("playerId", a.playerID).Stringer("request", req).Msg("MPD control failed")
		return false
	}
	return true
}

func (a *Adapter) toggle() error {
	st, err := a.client.Status()
	if err != nil {
		return err
	}
	if st.State == mpd.StatePlay {
		return a.client.Pause(true)
	}
	if st.State == mpd.StatePause {
		return a.client.Pause(false)
	}
	return a.client.Play(-1)
}

func (a *Adapter) setRepeat(repeat, single bool) error {
	if err := a.client.SetRepeat(repeat); err != nil {
		return err
	}
	return a.client.SetSingle(single)
}

func (a *Adapter) setFavorite(f adapter.Favorite) {
	a.mu.Lock()
	a.favorite = f
	a.mu.Unlock()
}

// Seek implements adapter.Handler.
func (a *Adapter) Seek(playerID string, offset time.Duration) bool {
	if !a.owns(playerID) {
		return false
	}
	if err := a.client.Seek(offset, false); err != nil {
		log.Error().Err(err).Str("playerId", a.playerID).Dur("offset", offset).Msg("MPD seek failed")
		return false
	}
	return true
}

// AdjustSeek implements adapter.Handler.
func (a *Adapter) AdjustSeek(playerID string, delta time.Duration) bool {
	if !a.owns(playerID) {
		return false
	}
	if err := a.client.Seek(delta, true); err != nil {
		log.Error().Err(err).Str("playerId", a.playerID).Dur("delta", delta).Msg("MPD seek adjustment failed")
		return false
	}
	return true
}

// AdapterStates implements adapter.Handler. With all false nothing is
// returned while the player is stopped.
func (a *Adapter) AdapterStates(all bool) []adapter.State {
	st, err := a.client.Status()
	if err != nil {
		log.Warn().Err(err).Str("playerId", a.playerID).Msg("MPD status unavailable")
		st = mpd.Status{State: mpd.StateStop}
	}

	state := a.buildState(st)
	if !all && !state.Session.Active {
		return nil
	}
	return []adapter.State{state}
}

func (a *Adapter) buildState(st mpd.Status) adapter.State {
	a.mu.Lock()
	session := a.session
	favorite := a.favorite
	a.mu.Unlock()

	status := playbackStatus(st)
	session.Active = status == adapter.StatusPlaying || status == adapter.StatusPaused

	pb := adapter.PlaybackState{
		PlayerID:            a.playerID,
		State:               status,
		SupportedOperations: supportedOperations,
		TrackOffset:         st.Elapsed,
		ShuffleEnabled:      st.Random,
		RepeatEnabled:       st.Repeat && !st.Single,
		RepeatOneEnabled:    st.Repeat && st.Single,
		Favorite:            favorite,
		Duration:            st.Duration,
	}
	if st.Song.File != "" {
		pb.MediaType = "TRACK"
		pb.PlaybackSource = "MPD"
		pb.PlaybackSourceID = st.Song.File
		pb.TrackName = st.Song.Title
		if pb.TrackName == "" {
			pb.TrackName = st.Song.File
		}
		pb.TrackID = st.Song.ID
		pb.TrackNumber = st.Song.Track
		pb.Artist = st.Song.Artist
		pb.Album = st.Song.Album
		pb.MediaProvider = "mpd"
	}
	return adapter.State{Session: session, Playback: pb}
}

func playbackStatus(st mpd.Status) adapter.PlaybackStatus {
	switch st.State {
	case mpd.StatePlay:
		return adapter.StatusPlaying
	case mpd.StatePause:
		return adapter.StatusPaused
	}
	if st.Song.File == "" {
		return adapter.StatusIdle
	}
	return adapter.StatusStopped
}

// Offset implements adapter.Handler.
func (a *Adapter) Offset(playerID string) time.Duration {
	if !a.owns(playerID) {
		return 0
	}
	st, err := a.client.Status()
	if err != nil {
		return 0
	}
	return st.Elapsed
}

// AuthorizeDiscoveredPlayers implements adapter.Handler. The skill token of
// an authorized entry for this player is kept for its session.
func (a *Adapter) AuthorizeDiscoveredPlayers(players []adapter.PlayerInfo) bool {
	for _, p := range players {
		if p.LocalPlayerID != a.localPlayerID {
			continue
		}
		a.mu.Lock()
		if p.Authorized {
			a.session.SkillToken = p.SkillToken
		} else {
			a.session.SkillToken = ""
		}
		a.mu.Unlock()
		log.Info().
			Str("playerId", a.playerID).
			Str("localPlayerId", p.LocalPlayerID).
			Bool("authorized", p.Authorized).
			Msg("Player authorization updated")
		return true
	}
	return false
}

// Run turns MPD subsystem changes into player events until ctx is done or
// changes is closed.
func (a *Adapter) Run(ctx context.Context, changes <-chan string) {
	a.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case subsystem, ok := <-changes:
			if !ok {
				return
			}
			if subsystem == "player" || subsystem == "options" {
				a.Refresh()
			}
		}
	}
}

// Refresh reads the MPD status and reports the transition since the last
// refresh, if any.
func (a *Adapter) Refresh() {
	st, err := a.client.Status()
	if err != nil {
		log.Warn().Err(err).Str("playerId", a.playerID).Msg("MPD status unavailable")
		return
	}

	a.mu.Lock()
	event := transitionEvent(a.lastState, st.State, a.lastSong, st.Song.ID)
	a.lastState = st.State
	a.lastSong = st.Song.ID
	a.mu.Unlock()

	if event != "" {
		log.Debug().Str("playerId", a.playerID).Str("event", event).Msg("Player event")
		a.reporter.PlayerEvent(a.playerID, event)
	}
}

// transitionEvent names the player event for an MPD state change.
func transitionEvent(prev, cur, prevSong, curSong string) string {
	switch {
	case cur == mpd.StatePlay && prev == mpd.StatePause:
		return "PlaybackResumed"
	case cur == mpd.StatePlay && prev != mpd.StatePlay:
		return "PlaybackStarted"
	case cur == mpd.StatePlay && curSong != prevSong:
		return "TrackChanged"
	case cur == mpd.StatePause && prev != mpd.StatePause:
		return "PlaybackPaused"
	case cur == mpd.StateStop && prev != mpd.StateStop:
		return "PlaybackStopped"
	}
	return ""
}

func (a *Adapter) fail(name string, err error) {
	log.Error().Err(err).Str("playerId", a.playerID).Str("error", name).Msg("MPD playback failed")
	a.reporter.PlayerError(a.playerID, name, -1, err.Error(), false)
}

var _ adapter.Handler = (*Adapter)(nil)
