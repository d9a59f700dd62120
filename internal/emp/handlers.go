package emp

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
)

// queue submits the effect of a directive; the directive fails only if the
// executor no longer accepts work.
func (c *Core) queue(d directive.Directive, task func()) error {
	if err := c.exec.Submit(task); err != nil {
		return fmt.Errorf("%s: %w", d.Key(), ErrShutdown)
	}
	return nil
}

func (c *Core) handleLogin(d directive.Directive, _ adapter.RequestType) error {
	p, err := parseLogin(d.Payload)
	if err != nil {
		return err
	}
	playerID := *p.PlayerID
	refresh := time.Duration(*p.TokenRefreshIntervalInMilliseconds) * time.Millisecond

	return c.queue(d, func() {
		if c.registry.Login(playerID, *p.AccessToken, p.UserName, *p.ForceLogin, refresh) == 0 {
			log.Warn().Str("playerId", playerID).Msg("No adapter accepted login")
		}
	})
}

func (c *Core) handleLogout(d directive.Directive, _ adapter.RequestType) error {
	playerID, err := parseRequiredPlayer(d.Payload)
	if err != nil {
		return err
	}
	return c.queue(d, func() {
		if c.registry.Logout(playerID) == 0 {
			log.Warn().Str("playerId", playerID).Msg("No adapter accepted logout")
		}
	})
}

func (c *Core) handlePlay(d directive.Directive, _ adapter.RequestType) error {
	req, err := parsePlay(d.Payload)
	if err != nil {
		return err
	}
	if req.PlayerID == "" {
		log.Debug().Str("messageId", d.MessageID).Msg("Play without playerId targets the default player")
	}

	return c.queue(d, func() {
		prev := c.arbiter.primePlayLocked()
		if c.registry.Play(req) == 0 {
			// The directive is still acknowledged; only the priming is undone.
			log.Error().Str("playerId", req.PlayerID).Msg("No adapter accepted play")
			c.arbiter.rollbackPlayLocked(prev)
			return
		}
		c.setPlayerInFocusLocked(req.PlayerID, true)
	})
}

func (c *Core) handlePlayControl(d directive.Directive, req adapter.RequestType) error {
	playerID, present, err := parseOptionalPlayer(d.Payload)
	if err != nil {
		return err
	}
	if !present {
		log.Debug().Str("directive", d.Key()).Msg("No playerId, using player in focus")
	}

	return c.queue(d, func() {
		c.playControlLocked(playerID, present, req)
	})
}

func (c *Core) playControlLocked(playerID string, present bool, req adapter.RequestType) {
	inFocus := c.arbiter.PlayerInFocus()
	if !present {
		playerID = inFocus
	}
	if playerID == inFocus {
		c.arbiter.onRequestLocked(req)
	}
	if c.registry.PlayControl(playerID, req) == 0 {
		log.Warn().Str("playerId", playerID).Stringer("request", req).Msg("No adapter accepted control request")
	}
}

func (c *Core) handleSeek(d directive.Directive, _ adapter.RequestType) error {
	playerID, offset, err := parseSetSeek(d.Payload)
	if err != nil {
		return err
	}
	return c.queue(d, func() {
		if playerID == "" {
			playerID = c.arbiter.PlayerInFocus()
		}
		if c.registry.Seek(playerID, offset) == 0 {
			log.Warn().Str("playerId", playerID).Dur("offset", offset).Msg("No adapter accepted seek")
		}
	})
}

func (c *Core) handleAdjustSeek(d directive.Directive, _ adapter.RequestType) error {
	playerID, delta, err := parseAdjustSeek(d.Payload)
	if err != nil {
		return err
	}
	return c.queue(d, func() {
		if playerID == "" {
			playerID = c.arbiter.PlayerInFocus()
		}
		if c.registry.AdjustSeek(playerID, delta) == 0 {
			log.Warn().Str("playerId", playerID).Dur("delta", delta).Msg("No adapter accepted seek adjustment")
		}
	})
}

func (c *Core) handleAuthorizeDiscoveredPlayers(d directive.Directive, _ adapter.RequestType) error {
	players, err := parseAuthorize(d.Payload)
	if err != nil {
		return err
	}
	return c.queue(d, func() {
		c.authorizeLocked(players)
	})
}

// ReportDiscoveredPlayers implements adapter.Reporter.
func (c *Core) ReportDiscoveredPlayers(players []adapter.DiscoveredPlayer) {
	c.submit("reportDiscoveredPlayers", func() {
		c.sendEvent(NamespaceExternalMediaPlayer, "ReportDiscoveredPlayers", discoveredPlayersPayload{
			Agent:   c.cfg.AgentID,
			Players: players,
		})
	})
}

// LoginComplete implements adapter.Reporter.
func (c *Core) LoginComplete(playerID string) {
	c.submit("loginComplete", func() {
		c.sendEvent(NamespaceExternalMediaPlayer, "Login", playerRef{PlayerID: playerID})
		c.provider.pushLocked()
	})
}

// LogoutComplete implements adapter.Reporter.
func (c *Core) LogoutComplete(playerID string) {
	c.submit("logoutComplete", func() {
		c.sendEvent(NamespaceExternalMediaPlayer, "Logout", playerRef{PlayerID: playerID})
		c.provider.pushLocked()
	})
}

// playerEventActivity maps player event names to the activity they imply.
var playerEventActivity = map[string]adapter.Activity{
	"PlaybackStarted":      adapter.ActivityPlaying,
	"PlaybackResumed":      adapter.ActivityPlaying,
	"PlaybackPaused":       adapter.ActivityPaused,
	"PlaybackStopped":      adapter.ActivityStopped,
	"TrackFinished":        adapter.ActivityFinished,
	"PlaybackSessionEnded": adapter.ActivityFinished,
}

// PlayerEvent implements adapter.Reporter.
func (c *Core) PlayerEvent(playerID, event string) {
	c.submit("playerEvent", func() {
		if activity, ok := playerEventActivity[event]; ok {
			switch {
			case c.isDefaultPlayer(playerID):
				c.arbiter.onBuiltinActivityLocked(activity)
			case playerID == c.arbiter.PlayerInFocus():
				c.arbiter.reportActivityLocked(activity)
			}
		}

		session := c.sessionLocked(playerID)
		c.sendEvent(NamespaceExternalMediaPlayer, "PlayerEvent", playerEventPayload{
			EventName:         event,
			PlayerID:          playerID,
			SkillToken:        session.SkillToken,
			PlaybackSessionID: session.PlaybackSessionID,
		})
		c.provider.pushLocked()
	})
}

// PlayerError implements adapter.Reporter.
func (c *Core) PlayerError(playerID, errorName string, code int, description string, fatal bool) {
	c.submit("playerError", func() {
		session := c.sessionLocked(playerID)
		c.sendEvent(NamespaceExternalMediaPlayer, "PlayerError", playerErrorPayload{
			PlayerID:          playerID,
			SkillToken:        session.SkillToken,
			PlaybackSessionID: session.PlaybackSessionID,
			ErrorName:         errorName,
			Code:              code,
			Description:       description,
			Fatal:             fatal,
		})
	})
}

var _ adapter.Reporter = (*Core)(nil)
