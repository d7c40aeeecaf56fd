// Package config loads server configuration from a yaml file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/countclash/countclash-server-go/internal/stats"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Storage StorageConfig `mapstructure:"storage"`
	Game    GameConfig    `mapstructure:"game"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// ServerConfig configures the websocket gateway listener.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// StorageConfig selects and configures the document store backend.
type StorageConfig struct {
	// Backend is "file" or "postgres".
	Backend string `mapstructure:"backend"`
	// Path is the state file location for the file backend.
	Path string `mapstructure:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `mapstructure:"dsn"`
}

// GameConfig holds game-surface tunables.
type GameConfig struct {
	LeaderboardPageSize int `mapstructure:"leaderboard_page_size"`
}

// AuthConfig configures gateway authentication.
type AuthConfig struct {
	// AdapterTokenHash is the bcrypt hash of the shared adapter token. Empty
	// disables authentication.
	AdapterTokenHash string `mapstructure:"adapter_token_hash"`
}

// Load reads configuration from path, applying defaults and COUNTCLASH_*
// environment overrides. A missing file is not an error; defaults and the
// environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("server.address", ":8089")
	v.SetDefault("server.path", "/gateway")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.path", "db/counting_stats.json")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("game.leaderboard_page_size", stats.DefaultPageSize)
	v.SetDefault("auth.adapter_token_hash", "")

	v.SetEnvPrefix("COUNTCLASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Game.LeaderboardPageSize <= 0 {
		return fmt.Errorf("game.leaderboard_page_size must be positive")
	}
	return nil
}
