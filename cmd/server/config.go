// Package main provides the Flare server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/flare/internal/plugin"
)

// Config represents the server configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Alarm         AlarmConfig         `yaml:"alarm"`
	Processing    ProcessingConfig    `yaml:"processing"`
	Plugins       PluginsConfig       `yaml:"plugins"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Verbose       bool                `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	HTTPAddress string `yaml:"http_address"` // HTTP listen address (default: :8080)
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file path
}

// AlarmConfig points at an optional alarm model override.
type AlarmConfig struct {
	ModelFile string `yaml:"model_file"` // YAML severity map override (optional)
}

// ProcessingConfig tunes the receipt pipeline and the periodic sweeps.
type ProcessingConfig struct {
	HistoryOnValueChange bool          `yaml:"history_on_value_change"`
	RaiseOnPluginError   bool          `yaml:"raise_on_plugin_error"`
	SkipPostReceive      bool          `yaml:"skip_post_receive"`
	AlertTimeout         int           `yaml:"alert_timeout"`  // seconds
	ShelveTimeout        time.Duration `yaml:"shelve_timeout"` // e.g. "2h"
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`
	EscalationInterval   time.Duration `yaml:"escalation_interval"`
}

// PluginsConfig selects which builtin plugins run, in what order, and with
// what settings.
type PluginsConfig struct {
	Order     []string                `yaml:"order"`
	Scopes    map[string]plugin.Scope `yaml:"scopes"`
	Reject    RejectConfig            `yaml:"reject"`
	Blackout  BlackoutConfig          `yaml:"blackout"`
	RateLimit RateLimitConfig         `yaml:"ratelimit"`
	Enhance   EnhanceConfig           `yaml:"enhance"`
}

// RejectConfig configures the reject policy plugin.
type RejectConfig struct {
	OriginBlacklist     []string `yaml:"origin_blacklist"`
	AllowedEnvironments []string `yaml:"allowed_environments"`
}

// BlackoutConfig configures the blackout plugin.
type BlackoutConfig struct {
	NotificationBlackout *bool    `yaml:"notification_blackout"`
	AcceptSeverities     []string `yaml:"accept_severities"`
}

// RateLimitConfig configures the per-origin receive rate limit.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// EnhanceConfig configures the attribute enhancement plugin.
type EnhanceConfig struct {
	Rules []plugin.EnhanceRule `yaml:"rules"`
}

// NotificationsConfig configures outbound delivery.
type NotificationsConfig struct {
	RateLimit NotifyRateLimitConfig `yaml:"rate_limit"`
	Webhooks  []WebhookConfig       `yaml:"webhooks"`
}

// NotifyRateLimitConfig bounds outbound notification volume.
type NotifyRateLimitConfig struct {
	MaxPerWindow int           `yaml:"max_per_window"`
	Window       time.Duration `yaml:"window"`
	Disabled     bool          `yaml:"disabled"`
}

// WebhookConfig declares one webhook notification channel.
type WebhookConfig struct {
	ChannelID string            `yaml:"channel_id"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/flare.db"
	}
	if c.Processing.AlertTimeout <= 0 {
		c.Processing.AlertTimeout = 86400
	}
	if c.Processing.ShelveTimeout <= 0 {
		c.Processing.ShelveTimeout = 2 * time.Hour
	}
	if c.Processing.HousekeepingInterval <= 0 {
		c.Processing.HousekeepingInterval = 5 * time.Minute
	}
	if c.Processing.EscalationInterval <= 0 {
		c.Processing.EscalationInterval = time.Minute
	}
	if c.Plugins.Order == nil {
		c.Plugins.Order = []string{"reject", "blackout", "heartbeat"}
	}
	if len(c.Plugins.Reject.AllowedEnvironments) == 0 {
		c.Plugins.Reject.AllowedEnvironments = []string{"Production", "Development"}
	}
	if c.Plugins.RateLimit.PerSecond <= 0 {
		c.Plugins.RateLimit.PerSecond = 10
	}
	if c.Plugins.RateLimit.Burst <= 0 {
		c.Plugins.RateLimit.Burst = 50
	}
	if c.Notifications.RateLimit.MaxPerWindow <= 0 {
		c.Notifications.RateLimit.MaxPerWindow = 10
	}
	if c.Notifications.RateLimit.Window <= 0 {
		c.Notifications.RateLimit.Window = time.Minute
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	known := map[string]bool{
		"reject": true, "blackout": true, "ratelimit": true,
		"heartbeat": true, "enhance": true,
	}
	for _, name := range c.Plugins.Order {
		if !known[name] {
			return fmt.Errorf("unknown plugin %q in plugins.order", name)
		}
	}
	for i, wh := range c.Notifications.Webhooks {
		if wh.ChannelID == "" {
			return fmt.Errorf("notifications.webhooks[%d].channel_id is required", i)
		}
		if wh.URL == "" {
			return fmt.Errorf("notifications.webhooks[%d].url is required", i)
		}
	}
	return nil
}
