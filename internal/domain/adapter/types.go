// Package adapter provides the adapter state model, the handler contract that
// media adapters implement and the registry the player core fans out through.
package adapter

import (
	"fmt"
	"time"
)

// PlaybackStatus is the playback state an adapter reports for one player.
type PlaybackStatus string

// Playback status values accepted on the wire.
const (
	StatusIdle           PlaybackStatus = "IDLE"
	StatusPlaying        PlaybackStatus = "PLAYING"
	StatusPaused         PlaybackStatus = "PAUSED"
	StatusStopped        PlaybackStatus = "STOPPED"
	StatusBufferUnderrun PlaybackStatus = "BUFFER_UNDERRUN"
	StatusFinished       PlaybackStatus = "FINISHED"
)

// ParsePlaybackStatus validates s against the six known playback states.
func ParsePlaybackStatus(s string) (PlaybackStatus, error) {
	switch st := PlaybackStatus(s); st {
	case StatusIdle, StatusPlaying, StatusPaused, StatusStopped, StatusBufferUnderrun, StatusFinished:
		return st, nil
	}
	return "", fmt.Errorf("invalid playback state %q", s)
}

// Activity returns the player activity matching the status.
func (s PlaybackStatus) Activity() Activity {
	switch s {
	case StatusPlaying:
		return ActivityPlaying
	case StatusPaused:
		return ActivityPaused
	case StatusStopped:
		return ActivityStopped
	case StatusBufferUnderrun:
		return ActivityBufferUnderrun
	case StatusFinished:
		return ActivityFinished
	default:
		return ActivityIdle
	}
}

// Operation names a transport operation a player supports.
type Operation string

// Supported operations as reported in the playback context.
const (
	OpPlay               Operation = "Play"
	OpPause              Operation = "Pause"
	OpStop               Operation = "Stop"
	OpNext               Operation = "Next"
	OpPrevious           Operation = "Previous"
	OpStartOver          Operation = "StartOver"
	OpFastForward        Operation = "FastForward"
	OpRewind             Operation = "Rewind"
	OpEnableRepeat       Operation = "EnableRepeat"
	OpEnableRepeatOne    Operation = "EnableRepeatOne"
	OpDisableRepeat      Operation = "DisableRepeat"
	OpEnableShuffle      Operation = "EnableShuffle"
	OpDisableShuffle     Operation = "DisableShuffle"
	OpFavorite           Operation = "Favorite"
	OpUnfavorite         Operation = "Unfavorite"
	OpSetSeekPosition    Operation = "SetSeekPosition"
	OpAdjustSeekPosition Operation = "AdjustSeekPosition"
)

// Favorite is the rating of the current track.
type Favorite string

const (
	Favorited   Favorite = "FAVORITED"
	Unfavorited Favorite = "UNFAVORITED"
	NotRated    Favorite = "NOT_RATED"
)

// SessionState describes a player's login session.
type SessionState struct {
	PlayerID          string `json:"playerId"`
	EndpointID        string `json:"endpointId,omitempty"`
	LoggedIn          bool   `json:"loggedIn"`
	UserName          string `json:"userName,omitempty"`
	IsGuest           bool   `json:"isGuest"`
	Launched          bool   `json:"launched"`
	Active            bool   `json:"active"`
	AccessToken       string `json:"accessToken,omitempty"`
	PlayerCookie      string `json:"playerCookie,omitempty"`
	SkillToken        string `json:"skillToken,omitempty"`
	PlaybackSessionID string `json:"playbackSessionId,omitempty"`
	SPIVersion        string `json:"spiVersion,omitempty"`
}

// PlaybackState describes what a player is doing and what it is playing.
type PlaybackState struct {
	PlayerID            string         `json:"playerId"`
	State               PlaybackStatus `json:"state"`
	SupportedOperations []Operation    `json:"supportedOperations"`
	TrackOffset         time.Duration  `json:"trackOffset"`
	ShuffleEnabled      bool           `json:"shuffleEnabled"`
	RepeatEnabled       bool           `json:"repeatEnabled"`
	RepeatOneEnabled    bool           `json:"repeatOneEnabled"`
	Favorite            Favorite       `json:"favorite"`

	// Media
	MediaType        string        `json:"mediaType,omitempty"`
	PlaybackSource   string        `json:"playbackSource,omitempty"`
	PlaybackSourceID string        `json:"playbackSourceId,omitempty"`
	TrackName        string        `json:"trackName,omitempty"`
	TrackID          string        `json:"trackId,omitempty"`
	TrackNumber      string        `json:"trackNumber,omitempty"`
	Artist           string        `json:"artist,omitempty"`
	ArtistID         string        `json:"artistId,omitempty"`
	Album            string        `json:"album,omitempty"`
	AlbumID          string        `json:"albumId,omitempty"`
	CoverURL         string        `json:"coverUrl,omitempty"`
	CoverID          string        `json:"coverId,omitempty"`
	MediaProvider    string        `json:"mediaProvider,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// State is the unit exchanged between an adapter handler and the player core.
type State struct {
	Session  SessionState  `json:"sessionState"`
	Playback PlaybackState `json:"playbackState"`
}

// PlayerID returns the session player id, falling back to the playback one.
func (s State) PlayerID() string {
	if s.Session.PlayerID != "" {
		return s.Session.PlayerID
	}
	return s.Playback.PlayerID
}

// Normalize fills unset fields so the state can be reported as is:
// both halves carry the same player id, an empty status becomes IDLE and an
// empty rating becomes NOT_RATED.
func (s State) Normalize() State {
	id := s.PlayerID()
	s.Session.PlayerID = id
	s.Playback.PlayerID = id
	if s.Playback.State == "" {
		s.Playback.State = StatusIdle
	}
	if s.Playback.Favorite == "" {
		s.Playback.Favorite = NotRated
	}
	if s.Playback.SupportedOperations == nil {
		s.Playback.SupportedOperations = []Operation{}
	}
	return s
}

// Merge overlays the non-zero playback fields of update onto s. Session data
// and booleans are always taken from update since they have no unset value.
func (s State) Merge(update State) State {
	out := s
	out.Session = update.Session
	if out.Session.PlayerID == "" {
		out.Session.PlayerID = s.Session.PlayerID
	}

	p, u := &out.Playback, update.Playback
	if u.State != "" {
		p.State = u.State
	}
	if u.SupportedOperations != nil {
		p.SupportedOperations = u.SupportedOperations
	}
	p.TrackOffset = u.TrackOffset
	p.ShuffleEnabled = u.ShuffleEnabled
	p.RepeatEnabled = u.RepeatEnabled
	p.RepeatOneEnabled = u.RepeatOneEnabled
	if u.Favorite != "" {
		p.Favorite = u.Favorite
	}
	mergeString(&p.MediaType, u.MediaType)
	mergeString(&p.PlaybackSource, u.PlaybackSource)
	mergeString(&p.PlaybackSourceID, u.PlaybackSourceID)
	mergeString(&p.TrackName, u.TrackName)
	mergeString(&p.TrackID, u.TrackID)
	mergeString(&p.TrackNumber, u.TrackNumber)
	mergeString(&p.Artist, u.Artist)
	mergeString(&p.ArtistID, u.ArtistID)
	mergeString(&p.Album, u.Album)
	mergeString(&p.AlbumID, u.AlbumID)
	mergeString(&p.CoverURL, u.CoverURL)
	mergeString(&p.CoverID, u.CoverID)
	mergeString(&p.MediaProvider, u.MediaProvider)
	if u.Duration != 0 {
		p.Duration = u.Duration
	}
	if u.PlayerID != "" {
		p.PlayerID = u.PlayerID
	}
	return out
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Activity is the coarse player activity tracked by the focus arbitrator.
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityPlaying
	ActivityStopped
	ActivityPaused
	ActivityBufferUnderrun
	ActivityFinished
)

func (a Activity) String() string {
	switch a {
	case ActivityIdle:
		return "IDLE"
	case ActivityPlaying:
		return "PLAYING"
	case ActivityStopped:
		return "STOPPED"
	case ActivityPaused:
		return "PAUSED"
	case ActivityBufferUnderrun:
		return "BUFFER_UNDERRUN"
	case ActivityFinished:
		return "FINISHED"
	}
	return fmt.Sprintf("Activity(%d)", int(a))
}

// PlayerInfo identifies a player the cloud has authorized (or revoked).
type PlayerInfo struct {
	LocalPlayerID string `json:"localPlayerId"`
	PlayerID      string `json:"playerId"`
	SkillToken    string `json:"skillToken"`
	Authorized    bool   `json:"authorized"`
}

// DiscoveredPlayer is a player an adapter found and reports for authorization.
type DiscoveredPlayer struct {
	LocalPlayerID    string   `json:"localPlayerId"`
	SPIVersion       string   `json:"spiVersion"`
	ValidationMethod string   `json:"validationMethod"`
	ValidationData   []string `json:"validationData"`
}

// PlayRequest carries the arguments of a Play directive to the adapters.
type PlayRequest struct {
	PlayerID             string
	PlaybackContextToken string
	Index                int64
	Offset               time.Duration
	SkillToken           string
	PlaybackSessionID    string
	Navigation           string
	Preload              bool
	Requestor            PlayRequestor
}

// PlayRequestor identifies who asked for playback.
type PlayRequestor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}
