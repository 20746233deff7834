package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the full application configuration.
type Config struct {
	HTTP struct {
		Port int    `koanf:"port"`
		Host string `koanf:"host"`
	} `koanf:"http"`

	Provider Provider `koanf:"provider"`

	Sessions struct {
		TTL       string `koanf:"ttl"`
		Retention string `koanf:"retention"`
	} `koanf:"sessions"`

	Accounts struct {
		StalenessWindow string `koanf:"staleness_window"`
	} `koanf:"accounts"`

	NATS struct {
		URL string `koanf:"url"`
	} `koanf:"nats"`

	Auth struct {
		JWTSecret string `koanf:"jwt_secret"`
	} `koanf:"auth"`

	Log struct {
		Level string `koanf:"level"`
		JSON  bool   `koanf:"json"`
	} `koanf:"log"`
}

// Provider holds the external aggregation provider settings. Absent
// credentials are not an error: they select simulation mode.
type Provider struct {
	BaseURL      string `koanf:"base_url"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	Enabled      bool   `koanf:"enabled"`
	SessionType  string `koanf:"session_type"`
	Timeout      string `koanf:"timeout"`
	MaxAttempts  int    `koanf:"max_attempts"`
}

// Load reads configuration from config.yaml (if present) and LATTICE_*
// environment variables, layered over built-in defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	config := &Config{}
	config.HTTP.Port = 8000
	config.HTTP.Host = "0.0.0.0"
	config.Provider.BaseURL = "https://production.knotapi.com"
	config.Provider.SessionType = "transaction_link"
	config.Provider.Timeout = "30s"
	config.Provider.MaxAttempts = 3
	config.Sessions.TTL = "30m"
	config.Sessions.Retention = "720h"
	config.Accounts.StalenessWindow = "15m"
	config.Auth.JWTSecret = "dev-jwt-secret-change-in-production"
	config.Log.Level = "info"
	config.Log.JSON = false

	// Load from file if exists
	if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
		// File doesn't exist, that's okay
	}

	// Load from environment (LATTICE_ prefix). Double underscore separates
	// nesting levels so that LATTICE_PROVIDER__CLIENT_ID becomes
	// provider.client_id.
	if err := k.Load(env.Provider("LATTICE_", ".", func(s string) string {
		key := s[8:] // Remove LATTICE_ prefix
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading env config: %w", err)
	}

	if err := k.Unmarshal("", config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// SessionTTL parses the configured session validity window.
func (c *Config) SessionTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sessions.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid sessions.ttl: %w", err)
	}
	return d, nil
}

// SessionRetention parses how long terminal sessions are kept for audit.
func (c *Config) SessionRetention() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sessions.Retention)
	if err != nil {
		return 0, fmt.Errorf("invalid sessions.retention: %w", err)
	}
	return d, nil
}

// StalenessWindow parses the account staleness window used by GET /accounts.
func (c *Config) StalenessWindow() (time.Duration, error) {
	d, err := time.ParseDuration(c.Accounts.StalenessWindow)
	if err != nil {
		return 0, fmt.Errorf("invalid accounts.staleness_window: %w", err)
	}
	return d, nil
}

// ProviderTimeout parses the per-attempt timeout for provider calls.
func (c *Config) ProviderTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Provider.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid provider.timeout: %w", err)
	}
	return d, nil
}
