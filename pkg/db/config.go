package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNoActiveProfile = errors.New("no active profile found")

// Config represents the complete runtime configuration loaded from the database.
type Config struct {
	Profile   *Profile
	APIServer *APIServer
	Engine    *EngineSettings
	Brokers   []*MQTTBroker
}

// APIAddress returns the API server listen address.
func (c *Config) APIAddress() string {
	if c.APIServer == nil {
		return "0.0.0.0:8080"
	}
	return c.APIServer.Address()
}

// Timezone returns the profile timezone.
func (c *Config) Timezone() string {
	if c.Profile == nil {
		return "UTC"
	}
	return c.Profile.Timezone
}

// DataDir returns the directory holding the JSON state files, falling back
// to ~/.local/share/preauto when unset.
func (c *Config) DataDir() string {
	if c.Engine != nil && c.Engine.DataDir != "" {
		return c.Engine.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "preauto")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "preauto-data"
	}
	return filepath.Join(home, ".local", "share", "preauto")
}

// ActiveConfig loads the complete configuration for the active profile.
func (db *DB) ActiveConfig(ctx context.Context) (*Config, error) {
	profile, err := db.Profiles().GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrNoActiveProfile
		}
		return nil, fmt.Errorf("failed to get active profile: %w", err)
	}

	config := &Config{Profile: profile}

	apiServer, err := db.APIServers().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrAPIServerNotFound) {
		return nil, fmt.Errorf("failed to get API server config: %w", err)
	}
	config.APIServer = apiServer

	engine, err := db.EngineSettings().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrEngineSettingsNotFound) {
		return nil, fmt.Errorf("failed to get engine settings: %w", err)
	}
	config.Engine = engine

	brokers, err := db.MQTTBrokers().ListEnabled(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mqtt brokers: %w", err)
	}
	config.Brokers = brokers

	return config, nil
}
