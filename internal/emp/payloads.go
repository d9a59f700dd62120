package emp

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
)

const (
	// maxSeekDeltaMs bounds AdjustSeekPosition deltas in either direction.
	maxSeekDeltaMs int64 = 86400000
	// maxRefreshIntervalMs is the largest interval representable as a time.Duration.
	maxRefreshIntervalMs int64 = math.MaxInt64 / int64(time.Millisecond)
)

type basePayload struct {
	PlayerID *string `json:"playerId"`
}

type loginPayload struct {
	PlayerID                           *string `json:"playerId"`
	AccessToken                        *string `json:"accessToken"`
	UserName                           string  `json:"userName"`
	TokenRefreshIntervalInMilliseconds *int64  `json:"tokenRefreshIntervalInMilliseconds"`
	ForceLogin                         *bool   `json:"forceLogin"`
}

type playPayload struct {
	PlayerID             string                 `json:"playerId"`
	PlaybackContextToken *string                `json:"playbackContextToken"`
	Index                int64                  `json:"index"`
	OffsetInMilliseconds int64                  `json:"offsetInMilliseconds"`
	SkillToken           *string                `json:"skillToken"`
	PlaybackSessionID    *string                `json:"playbackSessionId"`
	Navigation           *string                `json:"navigation"`
	Preload              *bool                  `json:"preload"`
	PlayRequestor        *adapter.PlayRequestor `json:"playRequestor"`
}

type setSeekPayload struct {
	PlayerID             string `json:"playerId"`
	PositionMilliseconds *int64 `json:"positionMilliseconds"`
}

type adjustSeekPayload struct {
	PlayerID                  string `json:"playerId"`
	DeltaPositionMilliseconds *int64 `json:"deltaPositionMilliseconds"`
}

type authorizePayload struct {
	Players *[]authorizeEntry `json:"players"`
}

type authorizeEntry struct {
	LocalPlayerID *string `json:"localPlayerId"`
	Authorized    *bool   `json:"authorized"`
	Metadata      struct {
		PlayerID   string `json:"playerId"`
		SkillToken string `json:"skillToken"`
	} `json:"metadata"`
}

func decodePayload(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func parseLogin(raw string) (loginPayload, error) {
	var p loginPayload
	if err := decodePayload(raw, &p); err != nil {
		return p, err
	}
	switch {
	case p.PlayerID == nil || *p.PlayerID == "":
		return p, missing("playerId")
	case p.AccessToken == nil:
		return p, missing("accessToken")
	case p.TokenRefreshIntervalInMilliseconds == nil:
		return p, missing("tokenRefreshIntervalInMilliseconds")
	case p.ForceLogin == nil:
		return p, missing("forceLogin")
	}
	if ms := *p.TokenRefreshIntervalInMilliseconds; ms < 0 || ms > maxRefreshIntervalMs {
		return p, fmt.Errorf("%w: tokenRefreshIntervalInMilliseconds %d", ErrOutOfRange, ms)
	}
	return p, nil
}

func parseRequiredPlayer(raw string) (string, error) {
	var p basePayload
	if err := decodePayload(raw, &p); err != nil {
		return "", err
	}
	if p.PlayerID == nil || *p.PlayerID == "" {
		return "", missing("playerId")
	}
	return *p.PlayerID, nil
}

// parseOptionalPlayer returns the playerId if present and whether it was.
func parseOptionalPlayer(raw string) (string, bool, error) {
	var p basePayload
	if err := decodePayload(raw, &p); err != nil {
		return "", false, err
	}
	if p.PlayerID == nil {
		return "", false, nil
	}
	return *p.PlayerID, true, nil
}

func parsePlay(raw string) (adapter.PlayRequest, error) {
	var p playPayload
	if err := decodePayload(raw, &p); err != nil {
		return adapter.PlayRequest{}, err
	}
	switch {
	case p.PlaybackContextToken == nil:
		return adapter.PlayRequest{}, missing("playbackContextToken")
	case p.SkillToken == nil:
		return adapter.PlayRequest{}, missing("skillToken")
	case p.PlaybackSessionID == nil:
		return adapter.PlayRequest{}, missing("playbackSessionId")
	case p.Navigation == nil:
		return adapter.PlayRequest{}, missing("navigation")
	case p.Preload == nil:
		return adapter.PlayRequest{}, missing("preload")
	}

	req := adapter.PlayRequest{
		PlayerID:             p.PlayerID,
		PlaybackContextToken: *p.PlaybackContextToken,
		Index:                p.Index,
		Offset:               time.Duration(p.OffsetInMilliseconds) * time.Millisecond,
		SkillToken:           *p.SkillToken,
		PlaybackSessionID:    *p.PlaybackSessionID,
		Navigation:           *p.Navigation,
		Preload:              *p.Preload,
	}
	if p.PlayRequestor != nil {
		req.Requestor = *p.PlayRequestor
	}
	return req, nil
}

func parseSetSeek(raw string) (string, time.Duration, error) {
	var p setSeekPayload
	if err := decodePayload(raw, &p); err != nil {
		return "", 0, err
	}
	if p.PositionMilliseconds == nil {
		return "", 0, missing("positionMilliseconds")
	}
	if *p.PositionMilliseconds < 0 {
		return "", 0, fmt.Errorf("%w: positionMilliseconds %d", ErrOutOfRange, *p.PositionMilliseconds)
	}
	return p.PlayerID, time.Duration(*p.PositionMilliseconds) * time.Millisecond, nil
}

func parseAdjustSeek(raw string) (string, time.Duration, error) {
	var p adjustSeekPayload
	if err := decodePayload(raw, &p); err != nil {
		return "", 0, err
	}
	if p.DeltaPositionMilliseconds == nil {
		return "", 0, missing("deltaPositionMilliseconds")
	}
	delta := *p.DeltaPositionMilliseconds
	if delta < -maxSeekDeltaMs || delta > maxSeekDeltaMs {
		return "", 0, fmt.Errorf("%w: deltaPositionMilliseconds %d", ErrOutOfRange, delta)
	}
	return p.PlayerID, time.Duration(delta) * time.Millisecond, nil
}

func parseAuthorize(raw string) ([]adapter.PlayerInfo, error) {
	var p authorizePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.Players == nil {
		return nil, missing("players")
	}

	players := make([]adapter.PlayerInfo, 0, len(*p.Players))
	for i, e := range *p.Players {
		if e.LocalPlayerID == nil || *e.LocalPlayerID == "" {
			return nil, missing(fmt.Sprintf("players[%d].localPlayerId", i))
		}
		if e.Authorized == nil {
			return nil, missing(fmt.Sprintf("players[%d].authorized", i))
		}
		players = append(players, adapter.PlayerInfo{
			LocalPlayerID: *e.LocalPlayerID,
			PlayerID:      e.Metadata.PlayerID,
			SkillToken:    e.Metadata.SkillToken,
			Authorized:    *e.Authorized,
		})
	}
	return players, nil
}
