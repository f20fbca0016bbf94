// Package config loads and persists the engine configuration: remote
// endpoint, cadence knobs, and the per-device identity.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const configFile = ".caja/config.json"

// Defaults for unset cadence knobs.
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultPollInterval = 15 * time.Second
	DefaultSyncInterval = 2 * time.Minute
)

// Config is the persisted configuration. Duration fields are duration
// strings ("5m", "30s") so the JSON stays hand-editable.
type Config struct {
	ServerURL   string `json:"server_url,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`

	CacheTTL     string `json:"cache_ttl,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	SyncInterval string `json:"sync_interval,omitempty"`

	MetricsAddr string `json:"metrics_addr,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`
	LogFormat   string `json:"log_format,omitempty"`
}

// Load reads the config from baseDir, applies environment overrides, and
// ensures the device id exists. A missing file yields defaults, not an error.
func Load(baseDir string) (*Config, error) {
	// A .env beside the working dir can supply the CAJA_* variables.
	godotenv.Load()

	var cfg Config
	path := filepath.Join(baseDir, configFile)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		if err := Save(baseDir, &cfg); err != nil {
			return nil, fmt.Errorf("persist device id: %w", err)
		}
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		"CAJA_SERVER_URL":    &cfg.ServerURL,
		"CAJA_API_KEY":       &cfg.APIKey,
		"CAJA_POSTGRES_DSN":  &cfg.PostgresDSN,
		"CAJA_CACHE_TTL":     &cfg.CacheTTL,
		"CAJA_POLL_INTERVAL": &cfg.PollInterval,
		"CAJA_SYNC_INTERVAL": &cfg.SyncInterval,
		"CAJA_METRICS_ADDR":  &cfg.MetricsAddr,
		"CAJA_LOG_LEVEL":     &cfg.LogLevel,
		"CAJA_LOG_FORMAT":    &cfg.LogFormat,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

// Save writes the config atomically (temp file + rename).
func Save(baseDir string, cfg *Config) error {
	path := filepath.Join(baseDir, configFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// GetCacheTTL returns the parsed cache TTL or the default.
func (c *Config) GetCacheTTL() time.Duration {
	return c.duration(c.CacheTTL, DefaultCacheTTL)
}

// GetPollInterval returns the connectivity probe interval or the default.
func (c *Config) GetPollInterval() time.Duration {
	return c.duration(c.PollInterval, DefaultPollInterval)
}

// GetSyncInterval returns the safety-net drain interval or the default.
func (c *Config) GetSyncInterval() time.Duration {
	return c.duration(c.SyncInterval, DefaultSyncInterval)
}

func (c *Config) duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
