package emp

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
)

// authorizeLocked replaces the authorized set with the players marked
// authorized, persists it and tells every adapter.
func (c *Core) authorizeLocked(players []adapter.PlayerInfo) {
	next := make(map[string]adapter.PlayerInfo)
	payload := authorizationCompletePayload{
		Authorized:   []authorizedRef{},
		Deauthorized: []deauthorizedRef{},
	}

	for _, p := range players {
		if !p.Authorized {
			payload.Deauthorized = append(payload.Deauthorized, deauthorizedRef{LocalPlayerID: p.LocalPlayerID})
			continue
		}
		if p.PlayerID == "" {
			log.Warn().Str("localPlayerId", p.LocalPlayerID).Msg("Authorized player without playerId")
			continue
		}
		next[p.PlayerID] = p
		payload.Authorized = append(payload.Authorized, authorizedRef{PlayerID: p.PlayerID, SkillToken: p.SkillToken})
	}

	if inFocus := c.arbiter.PlayerInFocus(); inFocus != "" && !c.isDefaultPlayer(inFocus) {
		if _, ok := next[inFocus]; !ok {
			log.Warn().Str("playerId", inFocus).Msg("Player in focus was deauthorized, releasing focus")
			c.arbiter.revokeLocked(inFocus)
		}
	}
	c.authorized = next

	if c.store != nil {
		if err := c.store.SaveAuthorized(c.authorizedListLocked()); err != nil {
			log.Error().Err(err).Msg("Failed to persist authorized players")
		}
	}

	c.registry.AuthorizeDiscoveredPlayers(players)
	c.sendEvent(NamespaceExternalMediaPlayer, "AuthorizationComplete", payload)
	log.Info().
		Int("authorized", len(payload.Authorized)).
		Int("deauthorized", len(payload.Deauthorized)).
		Msg("Players authorized")
}

func (c *Core) authorizedListLocked() []adapter.PlayerInfo {
	out := make([]adapter.PlayerInfo, 0, len(c.authorized))
	for _, p := range c.authorized {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// AuthorizedPlayers returns the authorized players, ordered by player id.
// It must not be called from the executor.
func (c *Core) AuthorizedPlayers(ctx context.Context) ([]adapter.PlayerInfo, error) {
	out := make(chan []adapter.PlayerInfo, 1)
	if err := c.exec.SubmitWait(ctx, func() {
		out <- c.authorizedListLocked()
	}); err != nil {
		return nil, err
	}
	return <-out, nil
}
