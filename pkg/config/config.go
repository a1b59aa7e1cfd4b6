package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for apiary-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Ops server (health, ping, metrics)
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// MigrationsPath is the directory holding the SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis carries queen death notifications to the chat surface.
	// Leave host empty to log notifications instead.
	Redis RedisConfig `yaml:"redis"`

	Tick  TickConfig  `yaml:"tick"`
	Game  GameConfig  `yaml:"game"`
	Relay RelayConfig `yaml:"relay"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"apiary"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"apiary"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// TickConfig controls the hive simulation cadence.
type TickConfig struct {
	// Enabled turns the background ticker on for `serve`.
	Enabled bool `yaml:"enabled" env:"TICK_ENABLED" env-default:"true"`
	// IntervalSeconds is the wall-clock length of one tick.
	IntervalSeconds int `yaml:"interval_seconds" env:"TICK_INTERVAL_SECONDS" env-default:"5"`
}

// Interval returns the tick length as a duration.
func (t *TickConfig) Interval() time.Duration {
	return time.Duration(t.IntervalSeconds) * time.Second
}

// RelayConfig controls the /api/events WebSocket stream.
type RelayConfig struct {
	// Buffer is the per-subscriber event queue; events beyond it are dropped.
	Buffer int `yaml:"buffer" env:"RELAY_BUFFER" env-default:"64"`
	// OriginPatterns lists browser origins allowed to connect.
	OriginPatterns []string `yaml:"origin_patterns" env:"RELAY_ORIGIN_PATTERNS" env-separator:","`
}

// GameConfig holds game content settings.
type GameConfig struct {
	// CatalogPath overrides the built-in bee type catalog when set.
	CatalogPath string `yaml:"catalog_path" env:"GAME_CATALOG_PATH" env-default:""`
	// NamesPath overrides the built-in bee name list when set.
	NamesPath string `yaml:"names_path" env:"GAME_NAMES_PATH" env-default:""`
	// NotificationChannel is the Redis pub/sub channel for player notifications.
	NotificationChannel string `yaml:"notification_channel" env:"GAME_NOTIFICATION_CHANNEL" env-default:"apiary:notifications"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD,
// REDIS_PASSWORD) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tick.IntervalSeconds <= 0 {
		return fmt.Errorf("tick.interval_seconds must be positive, got %d", c.Tick.IntervalSeconds)
	}
	if c.Relay.Buffer < 0 {
		return fmt.Errorf("relay.buffer must not be negative, got %d", c.Relay.Buffer)
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database.max_connections must be positive, got %d", c.Database.MaxConnections)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the database as a postgres:// URL, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsConfigured reports whether a Redis host was provided.
func (c *RedisConfig) IsConfigured() bool {
	return c.Host != ""
}
