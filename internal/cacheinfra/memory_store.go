package cacheinfra

import (
	"context"
	"time"

	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backed memory store.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the optional parts of Config to sturdyc options.
// Capacity, NumShards and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &dberrors.ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &dberrors.ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &dberrors.ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &dberrors.ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// clientTTL is the lifetime handed to sturdyc. Expiry is decided per entry
// from memoryEntry.expiresAt, so the client must never drop entries by age.
const clientTTL = 100 * 365 * 24 * time.Hour

// memoryEntry carries the per-entry expiry next to the cached value.
// A zero expiresAt never expires on its own.
type memoryEntry struct {
	value     any
	ttl       time.Duration
	sliding   bool
	expiresAt time.Time
}

// MemoryStore is an in-process store on top of a sturdyc client.
type MemoryStore struct {
	client *sturdyc.Client[memoryEntry]
	now    func() time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the time source used to evaluate expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore validates cfg and creates the sturdyc client behind the store.
func NewMemoryStore(cfg Config, opts ...MemoryOption) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[memoryEntry](
		cfg.Capacity,
		cfg.NumShards,
		clientTTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	s := &MemoryStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the stored value. A sliding entry has its deadline pushed
// forward on every hit.
func (s *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}

	now := s.now()
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		s.client.Delete(key)
		return nil, false, nil
	}

	if e.sliding {
		e.expiresAt = now.Add(e.ttl)
		s.client.Set(key, e)
	}

	return e.value, true, nil
}

// Set stores value under key. A zero ttl never expires.
func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration, sliding bool) error {
	e := memoryEntry{value: value, ttl: ttl, sliding: sliding && ttl > 0}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.client.Set(key, e)
	return nil
}

// Delete removes key from the store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}
