// Package store persists the players the cloud has authorized in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the store database.
	DefaultDBPath = "data/emp.db"
)

// DB is the SQLite authorization store.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Stats describes the store contents.
type Stats struct {
	SchemaVersion     string    `json:"schemaVersion"`
	AuthorizedPlayers int       `json:"authorizedPlayers"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// NewDB creates a new store instance.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{
		path: path,
	}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open store database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		d.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Store database opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

func (d *DB) initSchema() error {
	currentVersion := d.getSchemaVersion()

	if currentVersion == "" {
		if err := d.createSchema(); err != nil {
			return err
		}
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	if currentVersion != CurrentSchemaVersion {
		log.Info().
			Str("current", currentVersion).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating store schema")
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	return nil
}

func (d *DB) createSchema() error {
	schema := `
	-- Players the cloud authorized
	CREATE TABLE IF NOT EXISTS authorized_players (
		player_id TEXT PRIMARY KEY,
		local_player_id TEXT NOT NULL,
		skill_token TEXT NOT NULL DEFAULT '',
		authorized_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	-- Store metadata
	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_authorized_local ON authorized_players(local_player_id);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Msg("Store schema created")
	return nil
}

func (d *DB) getSchemaVersion() string {
	var version string
	err := d.db.QueryRow("SELECT value FROM store_meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

func (d *DB) setMeta(key, value string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := d.db.Exec(`
		INSERT INTO store_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, now, value, now)
	return err
}

func (d *DB) getMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM store_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// LoadAuthorized returns the persisted authorized players ordered by player id.
func (d *DB) LoadAuthorized() ([]adapter.PlayerInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, fmt.Errorf("database not open")
	}

	rows, err := d.db.Query(`
		SELECT player_id, local_player_id, skill_token
		FROM authorized_players
		ORDER BY player_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query authorized players: %w", err)
	}
	defer rows.Close()

	var players []adapter.PlayerInfo
	for rows.Next() {
		p := adapter.PlayerInfo{Authorized: true}
		if err := rows.Scan(&p.PlayerID, &p.LocalPlayerID, &p.SkillToken); err != nil {
			return nil, fmt.Errorf("failed to scan authorized player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// SaveAuthorized replaces the persisted set with players. Entries that are
// not authorized or lack a player id are skipped.
func (d *DB) SaveAuthorized(players []adapter.PlayerInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return fmt.Errorf("database not open")
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM authorized_players"); err != nil {
		return fmt.Errorf("failed to clear authorized players: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO authorized_players (player_id, local_player_id, skill_token, authorized_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET local_player_id = excluded.local_player_id,
			skill_token = excluded.skill_token
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Format(time.RFC3339)
	saved := 0
	for _, p := range players {
		if !p.Authorized || p.PlayerID == "" {
			continue
		}
		if _, err := stmt.Exec(p.PlayerID, p.LocalPlayerID, p.SkillToken, now); err != nil {
			return fmt.Errorf("failed to save player %s: %w", p.PlayerID, err)
		}
		saved++
	}

	if _, err := tx.Exec(`
		INSERT INTO store_meta (key, value, updated_at) VALUES ('last_updated', ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, now, now); err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	log.Debug().Int("players", saved).Msg("Authorized players saved")
	return nil
}

// AgentIdentity returns the persisted agent id, generating and storing a new
// one on first use.
func (d *DB) AgentIdentity() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return "", fmt.Errorf("database not open")
	}

	id, err := d.getMeta("agent_id")
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.New().String()
	if err := d.setMeta("agent_id", id); err != nil {
		return "", fmt.Errorf("failed to save agent id: %w", err)
	}
	log.Info().Str("agentId", id).Msg("Agent identity generated")
	return id, nil
}

// GetStats returns store statistics.
func (d *DB) GetStats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, fmt.Errorf("database not open")
	}

	stats := &Stats{}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM authorized_players").Scan(&stats.AuthorizedPlayers); err != nil {
		return nil, err
	}

	stats.SchemaVersion, _ = d.getMeta("schema_version")
	if lastUpdated, _ := d.getMeta("last_updated"); lastUpdated != "" {
		stats.LastUpdated, _ = time.Parse(time.RFC3339, lastUpdated)
	}
	return stats, nil
}
