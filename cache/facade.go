package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrInvalidResultType is returned when a cached value is not of the requested type.
var ErrInvalidResultType = errors.New("cache: cached value has an unexpected type")

// Store is the key/value backend a Facade writes to. A ttl of zero never
// expires; sliding asks the store to push the deadline forward on reads.
type Store interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration, sliding bool) error
	Delete(ctx context.Context, key string) error
}

// Decoder is implemented by values that a remote store hands back encoded.
type Decoder interface {
	Decode(dst any) error
}

// FetchFn produces the value for a cache miss.
type FetchFn[T any] func(ctx context.Context) (T, error)

// ErrorHandler receives store failures the facade does not return to the caller.
type ErrorHandler func(ctx context.Context, op, key string, err error)

// Facade serializes access to one Store and remembers the keys it wrote so
// they can be removed by prefix. Keys expired by the store are forgotten on
// the next Get that misses them.
type Facade struct {
	name    string
	store   Store
	mu      sync.Mutex
	keys    *xsync.MapOf[string, struct{}]
	onError ErrorHandler
}

// Option customizes a Facade.
type Option func(*Facade)

// WithErrorHandler registers the sink for store errors swallowed by GetOrFetch.
func WithErrorHandler(h ErrorHandler) Option {
	return func(f *Facade) {
		if h != nil {
			f.onError = h
		}
	}
}

// New creates a facade named name over store.
func New(name string, store Store, opts ...Option) *Facade {
	f := &Facade{
		name:    name,
		store:   store,
		keys:    xsync.NewMapOf[string, struct{}](),
		onError: func(context.Context, string, string, error) {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the facade name.
func (f *Facade) Name() string { return f.name }

// Get returns the raw stored value for key. A miss also forgets the key, so
// entries the store expired on its own stop counting toward RemovePrefix.
func (f *Facade) Get(ctx context.Context, key string) (any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok, err := f.store.Get(ctx, key)
	if err == nil && !ok {
		f.keys.Delete(key)
	}
	return v, ok, err
}

// Put writes value under key with the given expiry, replacing any previous entry.
func (f *Facade) Put(ctx context.Context, key string, value any, exp Expiry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ttl, sliding := exp.storeArgs()
	if err := f.store.Set(ctx, key, value, ttl, sliding); err != nil {
		return err
	}
	f.keys.Store(key, struct{}{})
	return nil
}

// Remove deletes key.
func (f *Facade) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys.Delete(key)
	return f.store.Delete(ctx, key)
}

// RemovePrefix deletes every key written through this facade that starts
// with prefix. It keeps going after a failed delete and returns the first error.
func (f *Facade) RemovePrefix(ctx context.Context, prefix string) error {
	var matched []string
	f.keys.Range(func(key string, _ struct{}) bool {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
		return true
	})

	f.mu.Lock()
	defer f.mu.Unlock()

	var first error
	for _, key := range matched {
		if err := f.store.Delete(ctx, key); err != nil && first == nil {
			first = err
		}
		f.keys.Delete(key)
	}
	return first
}

// Lookup reads key and converts it to T.
func Lookup[T any](ctx context.Context, f *Facade, key string) (T, bool, error) {
	var zero T
	raw, ok, err := f.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := as[T](raw)
	if err != nil {
		return zero, false, fmt.Errorf("cache %q key %q: %w", f.name, key, err)
	}
	return v, true, nil
}

func as[T any](raw any) (T, error) {
	if v, ok := raw.(T); ok {
		return v, nil
	}
	var out T
	if dec, ok := raw.(Decoder); ok {
		if err := dec.Decode(&out); err != nil {
			return out, fmt.Errorf("%w: %v", ErrInvalidResultType, err)
		}
		return out, nil
	}
	return out, fmt.Errorf("%w: got %T, want %T", ErrInvalidResultType, raw, out)
}

// GetOrFetch serves key from the cache, or runs fetch and stores its result.
// The boolean reports whether the value came from the cache. Nothing is
// written when fetch fails. Store errors are passed to the error handler and
// treated as a miss (on read) or ignored (on write).
func GetOrFetch[T any](ctx context.Context, f *Facade, key string, exp Expiry, fetch FetchFn[T]) (T, bool, error) {
	v, ok, err := Lookup[T](ctx, f, key)
	switch {
	case errors.Is(err, ErrInvalidResultType):
		return v, false, err
	case err != nil:
		f.onError(ctx, "get", key, err)
	case ok:
		return v, true, nil
	}

	v, err = fetch(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	if err := f.Put(ctx, key, v, exp); err != nil {
		f.onError(ctx, "put", key, err)
	}
	return v, false, nil
}
