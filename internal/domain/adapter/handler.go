package adapter

import "time"

// Handler is the capability set every media adapter implements. A handler may
// own several players; calls naming a player it does not own are ignored and
// return false.
type Handler interface {
	Login(playerID, accessToken, userName string, forceLogin bool, refreshInterval time.Duration) bool
	Logout(playerID string) bool
	Play(req PlayRequest) bool
	PlayControl(playerID string, req RequestType) bool
	Seek(playerID string, offset time.Duration) bool
	AdjustSeek(playerID string, delta time.Duration) bool

	// AdapterStates returns the state of the players the handler owns. With
	// all false only players with an active session are returned.
	AdapterStates(all bool) []State

	Offset(playerID string) time.Duration
	AuthorizeDiscoveredPlayers(players []PlayerInfo) bool
}

// Reporter is the back channel adapters use to report to the player core.
// The core implements it; adapters hold it without owning the core.
type Reporter interface {
	ReportDiscoveredPlayers(players []DiscoveredPlayer)
	LoginComplete(playerID string)
	LogoutComplete(playerID string)
	PlayerEvent(playerID, event string)
	PlayerError(playerID, errorName string, code int, description string, fatal bool)
	SetPlayerInFocus(playerID string, acquireFocus bool)
}
