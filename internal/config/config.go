// Package config loads the chronicled configuration from file and
// environment with viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/memyselfandm/chronicle/internal/batcher"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Batcher   BatcherConfig   `mapstructure:"batcher" yaml:"batcher"`
	Feed      FeedConfig      `mapstructure:"feed" yaml:"feed"`
	Postgres  PostgresConfig  `mapstructure:"postgres" yaml:"postgres"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

type BatcherConfig struct {
	Window        time.Duration `mapstructure:"window" yaml:"window"`
	MaxBatchSize  int           `mapstructure:"max_batch_size" yaml:"max_batch_size"`
	PreserveOrder bool          `mapstructure:"preserve_order" yaml:"preserve_order"`
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// Engine converts the config section into the batcher's own config type.
func (c BatcherConfig) Engine() batcher.Config {
	return batcher.Config{
		Window:        c.Window,
		MaxBatchSize:  c.MaxBatchSize,
		PreserveOrder: c.PreserveOrder,
		QueueSize:     c.QueueSize,
	}
}

type FeedConfig struct {
	MaxEvents int `mapstructure:"max_events" yaml:"max_events"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	User           string `mapstructure:"user" yaml:"user"`
	Password       string `mapstructure:"password" yaml:"password"`
	Database       string `mapstructure:"database" yaml:"database"`
	SSLMode        string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MigrationsPath string `mapstructure:"migrations_path" yaml:"migrations_path"`
}

// ConnString builds the postgres connection string.
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url"`
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from the given file, or from config.yaml in the
// working directory or /etc/chronicle when no path is given. Environment
// variables with the CHRONICLE_ prefix override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("batcher.window", "100ms")
	v.SetDefault("batcher.max_batch_size", 50)
	v.SetDefault("batcher.preserve_order", true)
	v.SetDefault("batcher.queue_size", 10000)

	v.SetDefault("feed.max_events", 1000)

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "chronicle")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "chronicle")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.migrations_path", "migrations")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.redis_url", "redis://localhost:6379/0")
	v.SetDefault("rate_limit.requests", 10000)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/chronicle")
	}

	v.SetEnvPrefix("CHRONICLE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the engine would refuse at construction,
// so misconfiguration fails at startup instead of at first flush.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Batcher.Engine().Validate(); err != nil {
		return err
	}
	if c.Feed.MaxEvents <= 0 {
		return fmt.Errorf("feed.max_events must be positive, got %d", c.Feed.MaxEvents)
	}
	if c.RateLimit.Enabled && c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive, got %d", c.RateLimit.Requests)
	}
	return nil
}
