// Package config provides configuration loading for tagmill.
package config

import "time"

// Config is the top-level configuration for the tagmill service.
type Config struct {
	// Server configures the HTTP event listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Rules locates the tagging rule catalog.
	Rules RulesConfig `yaml:"rules" mapstructure:"rules"`

	// Modulemd configures retrieval of modulemd documents for incoming
	// build events. Optional: when the base URL is empty, events must
	// carry a full build descriptor inline.
	Modulemd ModulemdConfig `yaml:"modulemd" mapstructure:"modulemd"`

	// Hub configures the build-system endpoint tags are applied to.
	// Optional: when the URL is empty, the service runs as if dry_run
	// were set.
	Hub HubConfig `yaml:"hub" mapstructure:"hub"`

	// History configures tag history persistence.
	History HistoryConfig `yaml:"history" mapstructure:"history"`

	// Cache configures the resolution decision cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// DryRun resolves destinations but skips tag application.
	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address. Default "127.0.0.1:8080".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	// LogLevel is one of debug, info, warn, error. Default "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// RulesConfig locates the rule catalog.
type RulesConfig struct {
	// Path is the YAML rule catalog file. Required.
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// ModulemdConfig configures the modulemd document client.
type ModulemdConfig struct {
	// BaseURL is the root URL modulemd documents are fetched from.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	// Timeout is the per-request timeout, e.g. "10s". Default "10s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// HubConfig configures the tag application client.
type HubConfig struct {
	// URL is the build-system hub endpoint.
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	// Token is an optional bearer token for hub requests.
	Token string `yaml:"token" mapstructure:"token"`
	// Timeout is the per-request timeout, e.g. "30s". Default "30s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
	// Retries is how many times a failed tag call is retried. Unset
	// defaults to 2; an explicit 0 disables retrying.
	Retries *int `yaml:"retries" mapstructure:"retries" validate:"omitempty,min=0,max=10"`
}

// HistoryConfig configures tag history persistence.
type HistoryConfig struct {
	// Backend is "memory" or "sqlite". Default "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`
	// Path is the sqlite database file, required for the sqlite backend.
	Path string `yaml:"path" mapstructure:"path"`
	// ChannelSize is the async writer's buffer. Default 1000.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"min=0"`
	// BatchSize is how many records are written per flush. Default 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"min=0"`
	// FlushInterval is the maximum time records wait buffered, e.g. "1s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`
}

// CacheConfig configures the resolution decision cache.
type CacheConfig struct {
	// Size is the maximum number of cached resolutions. Negative
	// disables the cache. Default 1000.
	Size int `yaml:"size" mapstructure:"size"`
}

// SetDefaults fills optional fields that were left empty.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Modulemd.Timeout == "" {
		c.Modulemd.Timeout = "10s"
	}
	if c.Hub.Timeout == "" {
		c.Hub.Timeout = "30s"
	}
	if c.Hub.Retries == nil {
		retries := 2
		c.Hub.Retries = &retries
	}
	if c.History.Backend == "" {
		c.History.Backend = "memory"
	}
	if c.History.ChannelSize == 0 {
		c.History.ChannelSize = 1000
	}
	if c.History.BatchSize == 0 {
		c.History.BatchSize = 100
	}
	if c.History.FlushInterval == "" {
		c.History.FlushInterval = "1s"
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 1000
	}
}

// ModulemdTimeout returns the parsed modulemd request timeout.
// Validate guarantees the string parses.
func (c *Config) ModulemdTimeout() time.Duration {
	return mustDuration(c.Modulemd.Timeout, 10*time.Second)
}

// HubTimeout returns the parsed hub request timeout.
func (c *Config) HubTimeout() time.Duration {
	return mustDuration(c.Hub.Timeout, 30*time.Second)
}

// HubRetries returns the retry count with the default applied, so an
// explicit 0 in the config is honored rather than re-defaulted.
func (c *Config) HubRetries() int {
	if c.Hub.Retries == nil {
		return 2
	}
	return *c.Hub.Retries
}

// HistoryFlushInterval returns the parsed history flush interval.
func (c *Config) HistoryFlushInterval() time.Duration {
	return mustDuration(c.History.FlushInterval, time.Second)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
