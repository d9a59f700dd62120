package emp

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/contextmgr"
)

// Context keys reported by the provider.
var (
	SessionStateKey  = contextmgr.NamespaceAndName{Namespace: NamespaceExternalMediaPlayer, Name: "ExternalMediaPlayerState"}
	PlaybackStateKey = contextmgr.NamespaceAndName{Namespace: NamespacePlaybackReporter, Name: "playbackState"}
)

// Media item type reported for every player.
const mediaItemType = "ExternalMediaPlayerMusicItem"

type sessionContext struct {
	Agent         string          `json:"agent"`
	SPIVersion    string          `json:"spiVersion"`
	PlayerInFocus *string         `json:"playerInFocus"`
	Players       []sessionPlayer `json:"players"`
}

type sessionPlayer struct {
	PlayerID          string `json:"playerId"`
	EndpointID        string `json:"endpointId,omitempty"`
	LoggedIn          bool   `json:"loggedIn"`
	UserName          string `json:"username,omitempty"`
	IsGuest           bool   `json:"isGuest"`
	Launched          bool   `json:"launched"`
	Active            bool   `json:"active"`
	SPIVersion        string `json:"spiVersion"`
	PlayerCookie      string `json:"playerCookie,omitempty"`
	SkillToken        string `json:"skillToken"`
	PlaybackSessionID string `json:"playbackSessionId"`
}

type playbackContext struct {
	playbackFields
	Players []playbackPlayer `json:"players"`
}

type playbackPlayer struct {
	PlayerID string `json:"playerId"`
	playbackFields
}

type playbackFields struct {
	State                string              `json:"state"`
	SupportedOperations  []adapter.Operation `json:"supportedOperations"`
	PositionMilliseconds int64               `json:"positionMilliseconds"`
	Shuffle              string              `json:"shuffle"`
	Repeat               string              `json:"repeat"`
	Favorite             string              `json:"favorite"`
	Media                *mediaInfo          `json:"media,omitempty"`
}

type mediaInfo struct {
	Type  string     `json:"type"`
	Value mediaValue `json:"value"`
}

type mediaValue struct {
	PlaybackSource         string     `json:"playbackSource,omitempty"`
	PlaybackSourceID       string     `json:"playbackSourceId,omitempty"`
	TrackName              string     `json:"trackName,omitempty"`
	TrackID                string     `json:"trackId,omitempty"`
	TrackNumber            string     `json:"trackNumber,omitempty"`
	Artist                 string     `json:"artist,omitempty"`
	ArtistID               string     `json:"artistId,omitempty"`
	Album                  string     `json:"album,omitempty"`
	AlbumID                string     `json:"albumId,omitempty"`
	CoverURLs              *coverURLs `json:"coverUrls,omitempty"`
	CoverID                string     `json:"coverId,omitempty"`
	MediaProvider          string     `json:"mediaProvider,omitempty"`
	MediaType              string     `json:"mediaType,omitempty"`
	DurationInMilliseconds int64      `json:"durationInMilliseconds"`
}

type coverURLs struct {
	Tiny   string `json:"tiny"`
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// defaultPlaybackFields is reported at the root when no built-in player state exists.
func defaultPlaybackFields() playbackFields {
	return playbackFields{
		State:                string(adapter.StatusIdle),
		SupportedOperations:  []adapter.Operation{},
		PositionMilliseconds: 0,
		Shuffle:              "NOT_SHUFFLED",
		Repeat:               "NOT_REPEATED",
		Favorite:             string(adapter.NotRated),
	}
}

// StateProvider serializes the adapters' aggregated state into the session
// and playback context documents.
type StateProvider struct {
	core *Core
}

func newStateProvider(c *Core) *StateProvider {
	return &StateProvider{core: c}
}

// ProvideState implements contextmgr.Provider. The document is built on the
// executor and answered through the core's StateSetter.
func (p *StateProvider) ProvideState(key contextmgr.NamespaceAndName, token uint64) {
	p.core.submit("provideState", func() {
		p.setStateLocked(key, token)
	})
}

// pushLocked sends both documents as unsolicited updates.
func (p *StateProvider) pushLocked() {
	p.setStateLocked(SessionStateKey, 0)
	p.setStateLocked(PlaybackStateKey, 0)
}

func (p *StateProvider) setStateLocked(key contextmgr.NamespaceAndName, token uint64) {
	if p.core.context == nil {
		return
	}

	var (
		doc []byte
		err error
	)
	switch key {
	case SessionStateKey:
		doc, err = p.SessionState()
	case PlaybackStateKey:
		doc, err = p.PlaybackState()
	default:
		log.Error().Stringer("key", key).Msg("Unknown context key requested")
		return
	}
	if err != nil {
		log.Error().Err(err).Stringer("key", key).Msg("Failed to build context")
		return
	}

	if err := p.core.context.SetState(key, string(doc), contextmgr.RefreshAlways, token); err != nil {
		log.Error().Err(err).Stringer("key", key).Uint64("token", token).Msg("Failed to set context state")
	}
}

// SessionState builds the session context document.
func (p *StateProvider) SessionState() ([]byte, error) {
	c := p.core
	doc := sessionContext{
		Agent:      c.cfg.AgentID,
		SPIVersion: c.cfg.SPIVersion,
		Players:    []sessionPlayer{},
	}
	if inFocus := c.arbiter.PlayerInFocus(); inFocus != "" {
		doc.PlayerInFocus = &inFocus
	}

	for _, st := range c.registry.CollectStates(true) {
		s := st.Normalize().Session
		if s.PlayerID == "" {
			continue
		}
		spi := s.SPIVersion
		if spi == "" {
			spi = c.cfg.SPIVersion
		}
		doc.Players = append(doc.Players, sessionPlayer{
			PlayerID:          s.PlayerID,
			EndpointID:        s.EndpointID,
			LoggedIn:          s.LoggedIn,
			UserName:          s.UserName,
			IsGuest:           s.IsGuest,
			Launched:          s.Launched,
			Active:            s.Active,
			SPIVersion:        spi,
			PlayerCookie:      s.PlayerCookie,
			SkillToken:        s.SkillToken,
			PlaybackSessionID: s.PlaybackSessionID,
		})
	}
	return json.Marshal(doc)
}

// PlaybackState builds the playback context document. The built-in player's
// state, the one without a player id, is reported at the root; when there is
// none a default idle state is reported instead.
func (p *StateProvider) PlaybackState() ([]byte, error) {
	doc := playbackContext{
		playbackFields: defaultPlaybackFields(),
		Players:        []playbackPlayer{},
	}

	rootSet := false
	for _, st := range p.core.registry.CollectStates(true) {
		st = st.Normalize()
		fields, err := toPlaybackFields(st.Playback)
		if err != nil {
			log.Error().Err(err).Str("playerId", st.PlayerID()).Msg("Skipping invalid playback state")
			continue
		}

		if st.PlayerID() == "" {
			if rootSet {
				log.Warn().Msg("More than one state without playerId, keeping the first")
				continue
			}
			doc.playbackFields = fields
			rootSet = true
			continue
		}
		doc.Players = append(doc.Players, playbackPlayer{PlayerID: st.PlayerID(), playbackFields: fields})
	}
	return json.Marshal(doc)
}

func toPlaybackFields(s adapter.PlaybackState) (playbackFields, error) {
	state, err := adapter.ParsePlaybackStatus(string(s.State))
	if err != nil {
		return playbackFields{}, err
	}

	f := playbackFields{
		State:                string(state),
		SupportedOperations:  s.SupportedOperations,
		PositionMilliseconds: s.TrackOffset.Milliseconds(),
		Shuffle:              "NOT_SHUFFLED",
		Repeat:               "NOT_REPEATED",
		Favorite:             string(s.Favorite),
	}
	if s.ShuffleEnabled {
		f.Shuffle = "SHUFFLED"
	}
	switch {
	case s.RepeatOneEnabled:
		f.Repeat = "ONE_REPEATED"
	case s.RepeatEnabled:
		f.Repeat = "REPEATED"
	}

	if s.TrackName != "" || s.TrackID != "" || s.PlaybackSource != "" {
		v := mediaValue{
			PlaybackSource:         s.PlaybackSource,
			PlaybackSourceID:       s.PlaybackSourceID,
			TrackName:              s.TrackName,
			TrackID:                s.TrackID,
			TrackNumber:            s.TrackNumber,
			Artist:                 s.Artist,
			ArtistID:               s.ArtistID,
			Album:                  s.Album,
			AlbumID:                s.AlbumID,
			CoverID:                s.CoverID,
			MediaProvider:          s.MediaProvider,
			MediaType:              s.MediaType,
			DurationInMilliseconds: s.Duration.Milliseconds(),
		}
		if s.CoverURL != "" {
			v.CoverURLs = &coverURLs{Tiny: s.CoverURL, Small: s.CoverURL, Medium: s.CoverURL, Large: s.CoverURL}
		}
		f.Media = &mediaInfo{Type: mediaItemType, Value: v}
	}
	return f, nil
}
