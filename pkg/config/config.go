// Package config loads engine settings from an optional file and
// DBCOMMAND_ prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// DBCOMMAND_DEADLOCK_RETRIES or DBCOMMAND_DATABASE_DSN.
const EnvPrefix = "DBCOMMAND"

// Config is the full engine configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Deadlock DeadlockConfig `mapstructure:"deadlock"`
	Command  CommandConfig  `mapstructure:"command"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects the driver and connection string.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// DeadlockConfig controls retry of transient lock failures.
type DeadlockConfig struct {
	Retries           int `mapstructure:"retries"`
	RetryLimitSeconds int `mapstructure:"retry_limit_seconds"`
}

// CommandConfig holds command defaults.
type CommandConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// CacheConfig selects and sizes the reader cache.
type CacheConfig struct {
	// Backend is memory, redis or none.
	Backend            string        `mapstructure:"backend"`
	Name               string        `mapstructure:"name"`
	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
	EvictionInterval   time.Duration `mapstructure:"eviction_interval"`
	Redis              RedisConfig   `mapstructure:"redis"`
}

// RedisConfig is used when the cache backend is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

var defaults = map[string]any{
	"database.driver":              "",
	"database.dsn":                 "",
	"deadlock.retries":             0,
	"deadlock.retry_limit_seconds": 0,
	"command.timeout_seconds":      30,
	"cache.backend":                "memory",
	"cache.name":                   "default",
	"cache.capacity":               10000,
	"cache.num_shards":             256,
	"cache.eviction_percentage":    10,
	"cache.eviction_interval":      "0s",
	"cache.redis.addr":             "",
	"cache.redis.password":         "",
	"cache.redis.db":               0,
	"cache.redis.prefix":           "dbcommand:",
	"log.level":                    "info",
	"log.format":                   "console",
	"log.output":                   "stderr",
}

// Load reads path, when not empty, then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Database),
		validation.Field(&c.Deadlock),
		validation.Field(&c.Command),
		validation.Field(&c.Cache),
		validation.Field(&c.Log),
	)
}

// Validate requires a driver and a DSN.
func (c DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required),
		validation.Field(&c.DSN, validation.Required),
	)
}

// Validate rejects negative values.
func (c DeadlockConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Retries, validation.Min(0)),
		validation.Field(&c.RetryLimitSeconds, validation.Min(0)),
	)
}

func (c CommandConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TimeoutSeconds, validation.Min(0)),
	)
}

// Validate checks the backend and the settings it needs.
func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In("memory", "redis", "none")),
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Capacity, validation.When(c.Backend == "memory", validation.Min(1))),
		validation.Field(&c.NumShards, validation.When(c.Backend == "memory", validation.Min(1))),
		validation.Field(&c.EvictionPercentage, validation.Min(0), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Redis, validation.Skip.When(c.Backend != "redis")),
	)
}

// Validate requires an address.
func (c RedisConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
	)
}

func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.In("json", "console")),
	)
}

// RetryLimit is the deadlock backoff ceiling as a duration.
func (c DeadlockConfig) RetryLimit() time.Duration {
	return time.Duration(c.RetryLimitSeconds) * time.Second
}
