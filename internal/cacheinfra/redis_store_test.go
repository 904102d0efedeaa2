package cacheinfra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the handful of commands RedisStore issues.
type fakeRedis struct {
	redis.Cmdable
	data    map[string][]byte
	ttls    map[string]time.Duration
	expires []string
	getErr  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = value.([]byte)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires = append(f.expires, key)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type cachedUser struct {
	ID   int64
	Name string
}

func TestRedisStore_SetGet(t *testing.T) {
	client := newFakeRedis()
	store := NewRedisStore(client, "app:")
	ctx := context.Background()

	if err := store.Set(ctx, "user:7", cachedUser{ID: 7, Name: "Ada"}, time.Minute, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if client.ttls["app:user:7"] != time.Minute {
		t.Errorf("expected ttl to be forwarded, got %v", client.ttls["app:user:7"])
	}

	v, ok, err := store.Get(ctx, "user:7")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}

	encoded, isEncoded := v.(Encoded)
	if !isEncoded {
		t.Fatalf("expected Encoded payload, got %T", v)
	}
	var got cachedUser
	if err := encoded.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != (cachedUser{ID: 7, Name: "Ada"}) {
		t.Errorf("unexpected value %+v", got)
	}
	if len(client.expires) != 0 {
		t.Errorf("absolute entries must not be touched on read")
	}
}

func TestRedisStore_SlidingRefreshesTTL(t *testing.T) {
	client := newFakeRedis()
	store := NewRedisStore(client, "")
	ctx := context.Background()

	_ = store.Set(ctx, "k", "v", 10*time.Second, true)
	if _, _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(client.expires) != 1 || client.expires[0] != "k" {
		t.Errorf("expected one EXPIRE on k, got %v", client.expires)
	}
}

func TestRedisStore_MissAndErrors(t *testing.T) {
	client := newFakeRedis()
	store := NewRedisStore(client, "")
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "absent"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	boom := errors.New("connection refused")
	client.getErr = boom
	if _, _, err := store.Get(ctx, "absent"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	client := newFakeRedis()
	store := NewRedisStore(client, "p:")
	ctx := context.Background()

	_ = store.Set(ctx, "k", 1, 0, false)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := client.data["p:k"]; ok {
		t.Fatal("expected key removed")
	}
}
