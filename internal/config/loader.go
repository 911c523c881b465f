package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and
// environment variables. If configFile is empty, tagmill.yaml/.yml is
// searched in standard locations. The search requires an explicit YAML
// extension so the binary itself is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("tagmill")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: TAGMILL_SERVER_ADDR
	viper.SetEnvPrefix("TAGMILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a tagmill config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".tagmill"),
		"/etc/tagmill",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "tagmill"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: TAGMILL_RULES_PATH overrides rules.path.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("rules.path")
	_ = viper.BindEnv("modulemd.base_url")
	_ = viper.BindEnv("modulemd.timeout")
	_ = viper.BindEnv("hub.url")
	_ = viper.BindEnv("hub.token")
	_ = viper.BindEnv("hub.timeout")
	_ = viper.BindEnv("hub.retries")
	_ = viper.BindEnv("history.backend")
	_ = viper.BindEnv("history.path")
	_ = viper.BindEnv("history.channel_size")
	_ = viper.BindEnv("history.batch_size")
	_ = viper.BindEnv("history.flush_interval")
	_ = viper.BindEnv("cache.size")
	_ = viper.BindEnv("dry_run")
}

// LoadConfig reads the configuration file, applies environment
// overrides, sets defaults, and validates. Missing config files are not
// an error: the service can run from environment variables alone.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration and applies defaults but does
// not validate. Use this when CLI flags may override fields before
// validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or
// an empty string in env-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
