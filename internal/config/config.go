package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const DefaultListenAddr = ":8080"

// Config represents the global ~/.wpphook/config.toml.
type Config struct {
	// Listen is the HTTP listen address for the daemon.
	Listen string `toml:"listen"`
	// WebhookURL receives best-effort event POSTs. Empty disables
	// webhook delivery.
	WebhookURL string `toml:"webhook_url"`
	// DefaultSession is used when no -session flag is given.
	DefaultSession string `toml:"default_session"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
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
