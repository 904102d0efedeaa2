// Package cache provides the cache facade used by the execution engine.
//
// # Overview
//
// A Facade wraps one Store (a key/value backend with optional expiry) and
// serializes every read and write on its own mutex. Facades are created and
// injected explicitly; there is no process-wide registry.
//
//	store, _ := cache.NewMemoryStore(cache.DefaultConfig())
//	users := cache.New("users", store)
//
//	u, hit, err := cache.GetOrFetch(ctx, users, "user::7", cache.Expire(0, 60),
//		func(ctx context.Context) (User, error) {
//			return loadUser(ctx, 7)
//		})
//
// # Expiry
//
// Expire resolves the two legacy settings, absolute seconds and sliding
// seconds, into a single Expiry:
//
//   - both zero: NoExpiry, the entry stays until removed or evicted
//   - absolute > 0: Absolute, even when sliding is also set
//   - otherwise: Sliding, the deadline moves forward on every read
//
// # Stores
//
// Two stores are provided. NewMemoryStore keeps entries in process on top of
// sturdyc; expiry is tracked per entry, and beyond that the store only evicts
// to stay within its capacity. NewRedisStore writes msgpack encoded values to
// redis and hands them back as values implementing Decoder, which Lookup and
// GetOrFetch decode into the requested type.
//
// # Keys
//
// Keys are opaque strings chosen by the caller. KeySerializer builds stable
// keys from a namespace and arguments, and Namespace derives a snake_case
// namespace from a Go type. RemovePrefix only sees keys written through the
// same facade.
package cache
