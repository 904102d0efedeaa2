// Package provider opens database pools and classifies driver errors.
//
// A Provider is the connection collaborator of the execution engine. It owns
// one *sql.DB per connection string, exposes a bun handle over the same pool
// for transaction frames, and decides which driver errors are transient
// lock failures worth retrying.
package provider

import (
	"context"
	"database/sql"
	"sync"

	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	// Registered drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Settings identifies a database.
type Settings struct {
	DriverName       string
	ConnectionString string
}

// Validate reports a ConfigError when either field is missing.
func (s Settings) Validate() error {
	if s.DriverName == "" {
		return &dberrors.ConfigError{Field: "DriverName", Message: "is required"}
	}
	if s.ConnectionString == "" {
		return &dberrors.ConfigError{Field: "ConnectionString", Message: "is required"}
	}
	return nil
}

// Provider is the capability set the engine needs from a database.
type Provider interface {
	Settings() Settings
	Dialect() command.Dialect
	Open(ctx context.Context) (*sql.DB, error)
	Bun(ctx context.Context) (*bun.DB, error)
	IsTransient(err error) bool
}

// Classifier decides whether err is a transient lock failure.
type Classifier func(err error) bool

// SQLProvider opens its pool lazily on first use and keeps it for the
// lifetime of the provider.
type SQLProvider struct {
	settings   Settings
	dialect    command.Dialect
	classifier Classifier

	mu    sync.Mutex
	db    *sql.DB
	bunDB *bun.DB
	owned bool
}

// Option customizes a SQLProvider.
type Option func(*SQLProvider)

// WithDialect overrides the dialect derived from the driver name.
func WithDialect(d command.Dialect) Option {
	return func(p *SQLProvider) { p.dialect = d }
}

// WithClassifier overrides the transient error classification.
func WithClassifier(c Classifier) Option {
	return func(p *SQLProvider) {
		if c != nil {
			p.classifier = c
		}
	}
}

// New validates settings and returns a provider. No connection is made
// until Open is called.
func New(settings Settings, opts ...Option) (*SQLProvider, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	p := &SQLProvider{
		settings:   settings,
		dialect:    command.DialectFor(settings.DriverName),
		classifier: IsTransient,
		owned:      true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FromDB wraps an already open pool. Close does not close db.
func FromDB(db *sql.DB, settings Settings, opts ...Option) *SQLProvider {
	p := &SQLProvider{
		settings:   settings,
		dialect:    command.DialectFor(settings.DriverName),
		classifier: IsTransient,
		db:         db,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Settings returns the provider settings.
func (p *SQLProvider) Settings() Settings { return p.settings }

// Dialect returns the command dialect for the driver.
func (p *SQLProvider) Dialect() command.Dialect { return p.dialect }

// IsTransient reports whether err should be retried.
func (p *SQLProvider) IsTransient(err error) bool { return p.classifier(err) }

// Open returns the pool, opening it on first use.
func (p *SQLProvider) Open(ctx context.Context) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked(ctx)
}

func (p *SQLProvider) openLocked(ctx context.Context) (*sql.DB, error) {
	if p.db != nil {
		return p.db, nil
	}
	db, err := sql.Open(p.settings.DriverName, p.settings.ConnectionString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	p.db = db
	return db, nil
}

// Bun returns a bun handle over the same pool.
func (p *SQLProvider) Bun(ctx context.Context) (*bun.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bunDB != nil {
		return p.bunDB, nil
	}
	db, err := p.openLocked(ctx)
	if err != nil {
		return nil, err
	}
	p.bunDB = bun.NewDB(db, bunDialect(p.settings.DriverName))
	return p.bunDB, nil
}

// Close releases the pool if the provider opened it.
func (p *SQLProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil || !p.owned {
		return nil
	}
	err := p.db.Close()
	p.db, p.bunDB = nil, nil
	return err
}

func bunDialect(driverName string) schema.Dialect {
	switch command.DialectFor(driverName).Name {
	case command.Postgres.Name:
		return pgdialect.New()
	case command.MySQL.Name:
		return mysqldialect.New()
	default:
		return sqlitedialect.New()
	}
}
