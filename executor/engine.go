package executor

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-dbcommand/cache"
	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/goliatone/go-dbcommand/provider"
	"github.com/goliatone/go-dbcommand/transaction"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/goliatone/go-dbcommand/executor"

// Provenance tells where a result came from.
type Provenance int

const (
	FromDatabase Provenance = iota
	FromCache
)

func (p Provenance) String() string {
	if p == FromCache {
		return "cache"
	}
	return "database"
}

// Result pairs a value with its provenance.
type Result[V any] struct {
	Value  V
	Source Provenance
}

// Cached reports whether the value was served from the cache.
func (r Result[V]) Cached() bool { return r.Source == FromCache }

// Mapper turns a row into a T.
type Mapper[T any] func(Record) (T, error)

// CacheSettings configures the cache for one call. An empty Key disables caching.
type CacheSettings struct {
	// Name selects a facade registered with WithCache. Empty uses the first one.
	Name   string
	Key    string
	Expiry cache.Expiry
	// Evict removes Key before the command runs.
	Evict bool
}

// Call is everything the engine needs to run one command for items of type T.
type Call[T any] struct {
	Spec    command.Spec
	Binding command.Binding[T]

	Mapper        Mapper[T]
	DictionaryKey func(Record) (any, error)

	// Scope runs the call inside a transaction. When nil, a scope attached to
	// the context with transaction.WithScope is used, if any.
	Scope *transaction.Scope

	Cache CacheSettings

	// ConnectionCreated runs on the dedicated connection of an ad hoc call
	// before the command. It cannot be combined with a transaction.
	ConnectionCreated func(ctx context.Context, conn *sql.Conn) error
	PostCommand       func(cmd *command.Command) error
	PostItemCommand   func(cmd *command.Command, item T) error
}

// Engine runs calls against one provider.
type Engine struct {
	provider     provider.Provider
	caches       map[string]*cache.Facade
	defaultCache string
	retry        func() RetrySettings
	deadlocks    DeadlockLogger
	logger       *zap.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	jitter       func(time.Duration) time.Duration
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCache registers f under f.Name(). The first registered facade is the default.
func WithCache(f *cache.Facade) Option {
	return func(e *Engine) {
		if f == nil {
			return
		}
		if len(e.caches) == 0 {
			e.defaultCache = f.Name()
		}
		e.caches[f.Name()] = f
	}
}

// WithRetrySettings sets the source of deadlock retry settings. It is read
// once per command run.
func WithRetrySettings(fn func() RetrySettings) Option {
	return func(e *Engine) {
		if fn != nil {
			e.retry = fn
		}
	}
}

// WithDeadlockLogger sets the sink for transient failures.
func WithDeadlockLogger(l DeadlockLogger) Option {
	return func(e *Engine) { e.deadlocks = l }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer sets the tracer used for command spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithJitter replaces the random wait between retries. fn receives the
// backoff ceiling and returns the wait.
func WithJitter(fn func(time.Duration) time.Duration) Option {
	return func(e *Engine) {
		if fn != nil {
			e.jitter = fn
		}
	}
}

// New creates an engine over p.
func New(p provider.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider: p,
		caches:   map[string]*cache.Facade{},
		retry:    func() RetrySettings { return RetrySettings{} },
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		jitter:   randomJitter,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// Provider returns the engine's provider.
func (e *Engine) Provider() provider.Provider { return e.provider }

// Cache returns the named facade, or the default one for an empty name.
func (e *Engine) Cache(name string) (*cache.Facade, error) {
	if name == "" {
		name = e.defaultCache
	}
	f, ok := e.caches[name]
	if !ok {
		return nil, dberrors.NewConfigError("Cache.Name", "no cache registered as %q", name)
	}
	return f, nil
}

// Evict removes key from the named cache.
func (e *Engine) Evict(ctx context.Context, name, key string) error {
	f, err := e.Cache(name)
	if err != nil {
		return err
	}
	return f.Remove(ctx, key)
}

// CacheErrorHandler returns a cache.ErrorHandler that logs store failures
// and counts them as lookup errors.
func CacheErrorHandler(logger *zap.Logger, metrics *Metrics, cacheName string) cache.ErrorHandler {
	return func(_ context.Context, op, key string, err error) {
		logger.Warn("cache store error",
			zap.String("cache", cacheName),
			zap.String("op", op),
			zap.String("key", key),
			zap.Error(err),
		)
		if metrics != nil {
			metrics.CacheLookups.WithLabelValues(cacheName, "error").Inc()
		}
	}
}
