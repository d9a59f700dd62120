package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// LoadEnv reads .env files into the process environment. With no paths,
// ".env" is used. A missing file is an error callers may ignore.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Load reads the TOML file at path, applies defaults and then environment
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
		}
	}

	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies STELLAR_EMP_* variables. MPD host, port and
// password apply to the first MPD adapter.
func applyEnvOverrides(cfg *Config) {
	cfg.AgentID = GetEnv("STELLAR_EMP_AGENT_ID", cfg.AgentID)
	cfg.SPIVersion = GetEnv("STELLAR_EMP_SPI_VERSION", cfg.SPIVersion)
	cfg.DBPath = GetEnv("STELLAR_EMP_DB_PATH", cfg.DBPath)
	cfg.FocusWaitTimeoutMs = GetEnvInt("STELLAR_EMP_FOCUS_WAIT_TIMEOUT_MS", cfg.FocusWaitTimeoutMs)
	cfg.BrokerTimeoutMs = GetEnvInt("STELLAR_EMP_BROKER_TIMEOUT_MS", cfg.BrokerTimeoutMs)
	cfg.PushDebounceMs = GetEnvInt("STELLAR_EMP_PUSH_DEBOUNCE_MS", cfg.PushDebounceMs)

	if len(cfg.MPD) > 0 {
		m := &cfg.MPD[0]
		m.Host = GetEnv("STELLAR_EMP_MPD_HOST", m.Host)
		m.Port = GetEnvInt("STELLAR_EMP_MPD_PORT", m.Port)
		m.Password = GetEnv("STELLAR_EMP_MPD_PASSWORD", m.Password)
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable named by
// key, or fallback if the variable is unset or not a valid boolean.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
