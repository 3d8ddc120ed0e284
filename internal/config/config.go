// Package config loads settings from the environment. A .env file in the
// working directory is read first when present. Every variable carries the
// PUJCOVNA_ prefix and its section name, e.g. PUJCOVNA_DATABASE_DRIVER.
// Field names map to variables through split_words, so no field ever falls
// back to an unprefixed variable such as PATH.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "PUJCOVNA"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
	Service  ServiceConfig
	Log      LogConfig

	// AdminUser is the operator account created on first run.
	AdminUser string `split_words:"true" default:"Admin"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"5s"`
	CORSOrigins     []string      `split_words:"true" default:"*"`
	// PublicURL prefixes stored file references, e.g. https://desk.example.com.
	PublicURL string `split_words:"true" default:""`
}

// DatabaseConfig selects and tunes the store.
type DatabaseConfig struct {
	Driver          string        `split_words:"true" default:"sqlite"`
	Path            string        `split_words:"true" default:"pujcovna.sqlite3"`
	URL             string        `split_words:"true" default:""`
	MaxOpenConns    int           `split_words:"true" default:"25"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"5m"`
}

// CacheConfig selects the read cache backend.
type CacheConfig struct {
	Type          string        `split_words:"true" default:"memory"`
	TTL           time.Duration `split_words:"true" default:"1m"`
	RedisAddr     string        `split_words:"true" default:"localhost:6379"`
	RedisPassword string        `split_words:"true" default:""`
	RedisDB       int           `split_words:"true" default:"0"`
	RedisPrefix   string        `split_words:"true" default:"pujcovna:"`
}

// KafkaConfig enables event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers  []string `split_words:"true" default:""`
	Topic    string   `split_words:"true" default:"pujcovna.events"`
	ClientID string   `split_words:"true" default:"pujcovna"`
	Retries  int      `split_words:"true" default:"3"`
}

// ServiceConfig tunes the loan desk services.
type ServiceConfig struct {
	OpTimeout       time.Duration `split_words:"true" default:"5s"`
	ScanInterval    time.Duration `split_words:"true" default:"2s"`
	ScanSessionTTL  time.Duration `split_words:"true" default:"15m"`
	ImageMaxDim     int           `split_words:"true" default:"1024"`
	MaxUploadBytes  int64         `split_words:"true" default:"10485760"`
	TokenExpiration time.Duration `split_words:"true" default:"24h"`
}

// LogConfig selects log destination and format.
type LogConfig struct {
	Path   string `split_words:"true" default:""`
	Format string `split_words:"true" default:"console"`
	Level  string `split_words:"true" default:"info"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot check by type alone.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database url is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unsupported cache type %q", c.Cache.Type)
	}

	if c.Service.OpTimeout <= 0 {
		return fmt.Errorf("service op timeout must be positive")
	}
	if c.Service.ScanInterval < 0 {
		return fmt.Errorf("scan interval must not be negative")
	}
	if c.Kafka.Retries < 1 {
		return fmt.Errorf("kafka retries must be at least 1")
	}
	if c.Service.ImageMaxDim <= 0 {
		return fmt.Errorf("image max dimension must be positive")
	}
	return nil
}

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool {
	for _, b := range c.Kafka.Brokers {
		if b != "" {
			return true
		}
	}
	return false
}
