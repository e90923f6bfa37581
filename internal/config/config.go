// Package config loads runtime configuration for the viewer. It uses
// Viper to read ./config.yaml or ~/.otviewer/config.yaml, with
// OTVIEW_-prefixed environment variables overriding file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration. Connection and table
// settings are fallbacks: values stored in the credential vault win
// when present. Record field names are always configured here.
type Config struct {
	// ── Remote store ─────────────────────────────────────────────
	URL       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
	Database  string `mapstructure:"database"`
	Table     string `mapstructure:"table"`

	// ── Record field names ───────────────────────────────────────
	CiphertextField string `mapstructure:"ciphertext_field"`
	DeviceField     string `mapstructure:"device_field"`
	TimeField       string `mapstructure:"time_field"`

	// ── Tuning ───────────────────────────────────────────────────
	// FetchLimit caps bulk query result sizes; clamped to [100, 1000].
	FetchLimit int `mapstructure:"fetch_limit"`
	// BatchSize is the decrypt pipeline batch length.
	BatchSize int `mapstructure:"batch_size"`

	// StatePath is the sqlite file holding the encrypted credential
	// blob. Empty means ~/.otviewer/state.db.
	StatePath string `mapstructure:"state_path"`
}

// Load reads config from file and environment with defaults filled in.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("url", "ws://127.0.0.1:8000/rpc")
	v.SetDefault("namespace", "owntracks")
	v.SetDefault("database", "owntracks")
	v.SetDefault("table", "locations")

	v.SetDefault("ciphertext_field", "data")
	v.SetDefault("device_field", "device")
	v.SetDefault("time_field", "created_at")

	v.SetDefault("fetch_limit", 500)
	v.SetDefault("batch_size", 25)
	v.SetDefault("state_path", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.otviewer")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("OTVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ResolveStatePath returns the sqlite path, creating the default state
// directory when no explicit path is configured.
func (c *Config) ResolveStatePath() (string, error) {
	if c.StatePath != "" {
		return c.StatePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".otviewer")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return filepath.Join(dir, "state.db"), nil
}
