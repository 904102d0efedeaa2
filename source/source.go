// Package source is the fluent front end of the engine.
//
// A Source holds connection level defaults. Connectors are immutable: every
// builder method returns a modified copy, so a partially configured
// connector can be shared and specialized.
//
//	users := source.New(engine)
//	byID := source.Text[User](users, "SELECT id, name FROM users WHERE id = @id")
//
//	u, err := byID.Param("id", 7).CachedBy(cache.Expire(0, 300), 7).Single(ctx)
package source

import (
	"context"

	"github.com/goliatone/go-dbcommand/cache"
	"github.com/goliatone/go-dbcommand/executor"
)

// DefaultTimeoutSeconds applies to connectors that do not set their own.
const DefaultTimeoutSeconds = 30

// Source carries the engine and the defaults shared by its connectors.
type Source struct {
	engine         *executor.Engine
	timeoutSeconds int
	cacheName      string
	keys           cache.KeySerializer
}

// Option customizes a Source.
type Option func(*Source)

// WithTimeout sets the default command timeout. Zero disables it.
func WithTimeout(seconds int) Option {
	return func(s *Source) {
		if seconds >= 0 {
			s.timeoutSeconds = seconds
		}
	}
}

// WithCacheName selects which engine cache connectors use.
func WithCacheName(name string) Option {
	return func(s *Source) { s.cacheName = name }
}

// WithKeySerializer replaces the serializer used by CachedBy.
func WithKeySerializer(ks cache.KeySerializer) Option {
	return func(s *Source) {
		if ks != nil {
			s.keys = ks
		}
	}
}

// New creates a Source over engine.
func New(engine *executor.Engine, opts ...Option) *Source {
	s := &Source{
		engine:         engine,
		timeoutSeconds: DefaultTimeoutSeconds,
		keys:           cache.NewDefaultKeySerializer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Source) Engine() *executor.Engine { return s.engine }

// Invalidate removes every cached read whose key starts with prefix.
func (s *Source) Invalidate(ctx context.Context, prefix string) error {
	f, err := s.engine.Cache(s.cacheName)
	if err != nil {
		return err
	}
	return f.RemovePrefix(ctx, prefix)
}

// InvalidateType removes every read cached through CachedBy for T.
func InvalidateType[T any](ctx context.Context, s *Source) error {
	return s.Invalidate(ctx, cache.Namespace[T]()+cache.KeySeparator)
}
