package di

import (
	"database/sql"
	"fmt"

	"github.com/goliatone/go-dbcommand/cache"
	"github.com/goliatone/go-dbcommand/executor"
	"github.com/goliatone/go-dbcommand/pkg/config"
	"github.com/goliatone/go-dbcommand/pkg/logging"
	"github.com/goliatone/go-dbcommand/provider"
	"github.com/goliatone/go-dbcommand/source"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container wires the engine and its collaborators from a Config.
// It owns the pool and the redis client it opened and releases them on Close.
type Container struct {
	config   config.Config
	logger   *zap.Logger
	metrics  *executor.Metrics
	provider *provider.SQLProvider
	cache    *cache.Facade
	redis    *redis.Client
	engine   *executor.Engine
	source   *source.Source
}

type options struct {
	logger   *zap.Logger
	registry prometheus.Registerer
	db       *sql.DB
	redis    redis.Cmdable
	provider []provider.Option
}

// Option customizes NewContainer.
type Option func(*options)

// WithLogger uses logger instead of building one from Config.Log.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the engine metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithDB uses an already open pool. The container does not close it.
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// WithRedisClient uses client for the redis cache backend instead of
// dialing Config.Cache.Redis.Addr.
func WithRedisClient(client redis.Cmdable) Option {
	return func(o *options) { o.redis = client }
}

// WithProviderOption forwards opt to the provider, e.g. provider.WithDialect.
func WithProviderOption(opt provider.Option) Option {
	return func(o *options) { o.provider = append(o.provider, opt) }
}

// NewContainer builds every component described by cfg.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{config: cfg, logger: o.logger}
	if c.logger == nil {
		logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}
	c.metrics = executor.NewMetrics(o.registry)

	settings := provider.Settings{DriverName: cfg.Database.Driver, ConnectionString: cfg.Database.DSN}
	if o.db != nil {
		c.provider = provider.FromDB(o.db, settings, o.provider...)
	} else {
		p, err := provider.New(settings, o.provider...)
		if err != nil {
			return nil, err
		}
		c.provider = p
	}

	if err := c.buildCache(o.redis); err != nil {
		return nil, err
	}

	deadlock := cfg.Deadlock
	engineOpts := []executor.Option{
		executor.WithLogger(c.logger.Named("executor")),
		executor.WithMetrics(c.metrics),
		executor.WithDeadlockLogger(executor.NewZapDeadlockLogger(c.logger.Named("deadlock"))),
		executor.WithRetrySettings(func() executor.RetrySettings {
			return executor.RetrySettings{Attempts: deadlock.Retries, BackoffCeiling: deadlock.RetryLimit()}
		}),
	}
	if c.cache != nil {
		engineOpts = append(engineOpts, executor.WithCache(c.cache))
	}
	c.engine = executor.New(c.provider, engineOpts...)
	c.source = source.New(c.engine,
		source.WithTimeout(cfg.Command.TimeoutSeconds),
		source.WithCacheName(cfg.Cache.Name),
	)

	c.logger.Debug("container ready",
		zap.String("driver", cfg.Database.Driver),
		zap.String("dsn", provider.MaskPassword(cfg.Database.DSN)),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int("deadlock_retries", cfg.Deadlock.Retries),
	)
	return c, nil
}

func (c *Container) buildCache(client redis.Cmdable) error {
	cc := c.config.Cache
	handler := cache.WithErrorHandler(executor.CacheErrorHandler(c.logger.Named("cache"), c.metrics, cc.Name))

	switch cc.Backend {
	case "none":
		return nil
	case "redis":
		if client == nil {
			c.redis = redis.NewClient(&redis.Options{
				Addr:     cc.Redis.Addr,
				Password: cc.Redis.Password,
				DB:       cc.Redis.DB,
			})
			client = c.redis
		}
		c.cache = cache.New(cc.Name, cache.NewRedisStore(client, cc.Redis.Prefix), handler)
		return nil
	default:
		memCfg := cache.DefaultConfig()
		memCfg.Capacity = cc.Capacity
		memCfg.NumShards = cc.NumShards
		memCfg.EvictionPercentage = cc.EvictionPercentage
		memCfg.EvictionInterval = cc.EvictionInterval
		store, err := cache.NewMemoryStore(memCfg)
		if err != nil {
			return fmt.Errorf("di: memory cache: %w", err)
		}
		c.cache = cache.New(cc.Name, store, handler)
		return nil
	}
}

// NewContainerFromFile loads configuration from path and the environment.
func NewContainerFromFile(path string, opts ...Option) (*Container, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(*cfg, opts...)
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config { return c.config }

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Metrics returns the engine collectors.
func (c *Container) Metrics() *executor.Metrics { return c.metrics }

// Provider returns the connection provider.
func (c *Container) Provider() *provider.SQLProvider { return c.provider }

// Cache returns the reader cache, or nil when the backend is none.
func (c *Container) Cache() *cache.Facade { return c.cache }

// Engine returns the execution engine.
func (c *Container) Engine() *executor.Engine { return c.engine }

// Source returns a Source carrying the configured defaults.
func (c *Container) Source() *source.Source { return c.source }

// Close releases the pool and redis client opened by the container.
func (c *Container) Close() error {
	var result *multierror.Error
	if err := c.provider.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	_ = c.logger.Sync()
	return result.ErrorOrNil()
}
