package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Modules  ModulesConfig  `mapstructure:"modules"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	UI       UIConfig       `mapstructure:"ui"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	SyncTimeout time.Duration `mapstructure:"sync_timeout"`
}

// ModulesConfig controls module discovery and teardown.
type ModulesConfig struct {
	Dir             string        `mapstructure:"dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logger settings. The window owns the terminal, so logs
// always go to a file.
type LogConfig struct {
	Path   string `mapstructure:"path"`
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the diagnostics listener address. Empty disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	Title string `mapstructure:"title"`
}

// Load reads configuration from file and env. Env var overrides use prefix NEXTOOL_.
func Load() (Config, error) {
	v := viper.New()

	home := os.Getenv("HOME")
	v.SetDefault("database.path", filepath.Join(home, ".local", "share", "nextool", "nextool.db"))
	v.SetDefault("database.sync_timeout", 10*time.Second)
	v.SetDefault("modules.dir", "plugins")
	v.SetDefault("modules.shutdown_timeout", 5*time.Second)
	v.SetDefault("log.path", filepath.Join(home, ".local", "state", "nextool", "nextool.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("ui.title", "NexTool - Game Assistant")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("NEXTOOL_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "nextool"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("NEXTOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit NEXTOOL_CONFIG must exist and parse
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the host cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if strings.TrimSpace(c.Modules.Dir) == "" {
		return fmt.Errorf("config: modules.dir is required")
	}
	if c.Modules.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: modules.shutdown_timeout must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
