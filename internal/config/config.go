package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.convo/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	UserID         string `toml:"user_id"`
	BackendURL     string `toml:"backend_url"`
	StreamURL      string `toml:"stream_url"`
	DebugAddr      string `toml:"debug_addr"`
}

// Load reads config from the given path, then applies CONVO_* environment
// overrides. A missing file is not an error: first runs are configured
// through the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CONVO_USER_ID"); v != "" {
		c.UserID = v
	}
	if v := os.Getenv("CONVO_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("CONVO_STREAM_URL"); v != "" {
		c.StreamURL = v
	}
	if v := os.Getenv("CONVO_DEBUG_ADDR"); v != "" {
		c.DebugAddr = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
