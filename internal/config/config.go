// Package config loads the agent and adapter configuration.
package config

import (
	"fmt"
	"time"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultSPIVersion     = "1.0"
	DefaultChannel        = "Content"
	DefaultTimeoutMs      = 500
	DefaultMPDHost        = "localhost"
	DefaultMPDPort        = 6600
	DefaultDBPath         = "data/emp.db"
	DefaultPushDebounceMs = 100
)

// Config is the full service configuration.
type Config struct {
	AgentID    string `toml:"agent_id"`
	SPIVersion string `toml:"spi_version"`
	Channel    string `toml:"channel"`
	DBPath     string `toml:"db_path"`

	// FocusWaitTimeoutMs bounds the wait for player activity after a focus change.
	FocusWaitTimeoutMs int `toml:"focus_wait_timeout_ms"`
	// BrokerTimeoutMs bounds state round-trips to remote adapters and context requests.
	BrokerTimeoutMs int `toml:"broker_timeout_ms"`
	// PushDebounceMs coalesces context pushes to Socket.IO clients.
	PushDebounceMs int `toml:"push_debounce_ms"`

	MPD    []MPDAdapter    `toml:"mpd"`
	Remote []RemoteAdapter `toml:"remote"`
}

// MPDAdapter configures an adapter backed by an MPD server.
type MPDAdapter struct {
	// PlayerID is empty for the built-in player.
	PlayerID string `toml:"player_id"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	// Default marks the adapter as a default player: always authorized and
	// exempt from channel focus.
	Default bool `toml:"default"`
}

// RemoteAdapter configures a websocket-bridged remote player.
type RemoteAdapter struct {
	PlayerID   string `toml:"player_id"`
	URL        string `toml:"url"`
	SkillToken string `toml:"skill_token"`
}

// ApplyDefaults fills unset fields. With no adapters configured a single
// built-in MPD player on localhost is added.
func (c *Config) ApplyDefaults() {
	if c.SPIVersion == "" {
		c.SPIVersion = DefaultSPIVersion
	}
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.FocusWaitTimeoutMs <= 0 {
		c.FocusWaitTimeoutMs = DefaultTimeoutMs
	}
	if c.BrokerTimeoutMs <= 0 {
		c.BrokerTimeoutMs = DefaultTimeoutMs
	}
	if c.PushDebounceMs <= 0 {
		c.PushDebounceMs = DefaultPushDebounceMs
	}

	if len(c.MPD) == 0 && len(c.Remote) == 0 {
		c.MPD = []MPDAdapter{{Default: true}}
	}
	for i := range c.MPD {
		if c.MPD[i].Host == "" {
			c.MPD[i].Host = DefaultMPDHost
		}
		if c.MPD[i].Port == 0 {
			c.MPD[i].Port = DefaultMPDPort
		}
	}
}

// Validate checks the adapter definitions.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, m := range c.MPD {
		if m.PlayerID == "" && !m.Default {
			return fmt.Errorf("mpd[%d]: player_id is required unless default is set", i)
		}
		if seen[m.PlayerID] {
			return fmt.Errorf("mpd[%d]: duplicate player_id %q", i, m.PlayerID)
		}
		seen[m.PlayerID] = true
		if m.Port <= 0 || m.Port > 65535 {
			return fmt.Errorf("mpd[%d]: invalid port %d", i, m.Port)
		}
	}
	for i, r := range c.Remote {
		if r.PlayerID == "" {
			return fmt.Errorf("remote[%d]: player_id is required", i)
		}
		if r.URL == "" {
			return fmt.Errorf("remote[%d]: url is required", i)
		}
		if seen[r.PlayerID] {
			return fmt.Errorf("remote[%d]: duplicate player_id %q", i, r.PlayerID)
		}
		seen[r.PlayerID] = true
	}
	return nil
}

// FocusWaitTimeout returns FocusWaitTimeoutMs as a duration.
func (c *Config) FocusWaitTimeout() time.Duration {
	return time.Duration(c.FocusWaitTimeoutMs) * time.Millisecond
}

// BrokerTimeout returns BrokerTimeoutMs as a duration.
func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.BrokerTimeoutMs) * time.Millisecond
}

// PushDebounce returns PushDebounceMs as a duration.
func (c *Config) PushDebounce() time.Duration {
	return time.Duration(c.PushDebounceMs) * time.Millisecond
}

// DefaultPlayers returns the non-empty player ids of default MPD adapters.
func (c *Config) DefaultPlayers() []string {
	var ids []string
	for _, m := range c.MPD {
		if m.Default && m.PlayerID != "" {
			ids = append(ids, m.PlayerID)
		}
	}
	return ids
}
