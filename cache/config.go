package cache

import (
	"time"

	"github.com/goliatone/go-dbcommand/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

// Config exposes memory store options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewMemoryStore constructs the in-process store using the provided configuration.
func NewMemoryStore(cfg Config) (Store, error) {
	return cacheinfra.NewMemoryStore(cfg.toInternal())
}

// NewRedisStore constructs a store backed by redis. Keys are prefixed with prefix.
func NewRedisStore(client redis.Cmdable, prefix string) Store {
	return cacheinfra.NewRedisStore(client, prefix)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
