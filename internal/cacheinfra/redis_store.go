package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoded is a msgpack payload read back from a remote store. Callers
// decode it into the concrete type they expect.
type Encoded []byte

// Decode unmarshals the payload into dst.
func (e Encoded) Decode(dst any) error {
	return msgpack.Unmarshal(e, dst)
}

type redisEnvelope struct {
	Sliding bool          `msgpack:"s"`
	TTL     time.Duration `msgpack:"t"`
	Payload []byte        `msgpack:"p"`
}

// RedisStore keeps entries in redis, msgpack encoded. Sliding entries get
// their key TTL refreshed with EXPIRE on every hit.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a store over client. Every key is prefixed with prefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + k
}

// Get returns an Encoded payload, or a miss when the key is absent.
func (s *RedisStore) Get(ctx context.Context, key string) (any, bool, error) {
	k := s.key(key)
	raw, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", k, err)
	}

	var env redisEnvelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("redis decode %s: %w", k, err)
	}

	if env.Sliding && env.TTL > 0 {
		if err := s.client.Expire(ctx, k, env.TTL).Err(); err != nil {
			return nil, false, fmt.Errorf("redis expire %s: %w", k, err)
		}
	}

	return Encoded(env.Payload), true, nil
}

// Set encodes value and writes it with the given ttl. Zero ttl keeps the key
// until it is deleted or evicted by redis.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration, sliding bool) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}

	raw, err := msgpack.Marshal(redisEnvelope{Sliding: sliding && ttl > 0, TTL: ttl, Payload: payload})
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}

	k := s.key(key)
	if err := s.client.Set(ctx, k, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	k := s.key(key)
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", k, err)
	}
	return nil
}
