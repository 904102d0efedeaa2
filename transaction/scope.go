// Package transaction manages a stack of nested transactions over one
// pooled connection.
//
// Begin opens the outermost transaction. BeginTransaction pushes a nested
// frame, implemented as a savepoint. Commit and Rollback always act on the
// top frame. Close applies the scope's Disposition to every frame still
// open, innermost first, which makes
//
//	scope, err := transaction.Begin(ctx, p, transaction.RollbackOnClose)
//	if err != nil {
//		return err
//	}
//	defer scope.Close()
//
// safe on every exit path. A Scope belongs to one goroutine.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/goliatone/go-dbcommand/provider"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrClosed is returned when a closed scope is used.
var ErrClosed = errors.New("transaction: scope is closed")

// Disposition is applied to frames left open when a scope is closed.
type Disposition int

const (
	RollbackOnClose Disposition = iota
	CommitOnClose
)

func (d Disposition) String() string {
	if d == CommitOnClose {
		return "commit"
	}
	return "rollback"
}

// frame is one level of the transaction stack.
type frame interface {
	Commit() error
	Rollback() error
	Nest(ctx context.Context) (frame, error)
}

type bunFrame struct {
	tx bun.Tx
}

func (f bunFrame) Commit() error   { return f.tx.Commit() }
func (f bunFrame) Rollback() error { return f.tx.Rollback() }

func (f bunFrame) Nest(ctx context.Context) (frame, error) {
	nested, err := f.tx.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return bunFrame{tx: nested}, nil
}

// Scope is a LIFO stack of transaction frames sharing one connection.
type Scope struct {
	id      string
	frames  []frame
	conn    command.Conn
	onClose Disposition
	logger  *zap.Logger
	closed  bool
}

type options struct {
	logger *zap.Logger
	txOpts *sql.TxOptions
}

// Option customizes Begin.
type Option func(*options)

// WithLogger sets the logger used for frame events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTxOptions sets the isolation level and read-only flag of the outer transaction.
func WithTxOptions(txOpts *sql.TxOptions) Option {
	return func(o *options) { o.txOpts = txOpts }
}

// Begin opens the outer transaction on a connection taken from p.
func Begin(ctx context.Context, p provider.Provider, onClose Disposition, opts ...Option) (*Scope, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := p.Bun(ctx)
	if err != nil {
		return nil, fmt.Errorf("transaction: open: %w", err)
	}
	tx, err := db.BeginTx(ctx, o.txOpts)
	if err != nil {
		return nil, fmt.Errorf("transaction: begin: %w", err)
	}
	return newScope(bunFrame{tx: tx}, tx.Tx, onClose, o.logger), nil
}

func newScope(root frame, conn command.Conn, onClose Disposition, logger *zap.Logger) *Scope {
	s := &Scope{
		id:      uuid.NewString(),
		frames:  []frame{root},
		conn:    conn,
		onClose: onClose,
	}
	s.logger = logger.With(zap.String("scope_id", s.id))
	s.logger.Debug("transaction started", zap.Stringer("on_close", onClose))
	return s
}

// ID identifies the scope in logs.
func (s *Scope) ID() string { return s.id }

// Depth returns the number of open frames.
func (s *Scope) Depth() int { return len(s.frames) }

// Conn returns the transaction commands run on.
func (s *Scope) Conn() command.Conn { return s.conn }

// BeginTransaction pushes a nested frame.
func (s *Scope) BeginTransaction(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if len(s.frames) == 0 {
		return dberrors.ErrNoTransaction
	}
	nested, err := s.frames[len(s.frames)-1].Nest(ctx)
	if err != nil {
		return fmt.Errorf("transaction: nest: %w", err)
	}
	s.frames = append(s.frames, nested)
	s.logger.Debug("nested transaction started", zap.Int("depth", len(s.frames)))
	return nil
}

func (s *Scope) pop() frame {
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return top
}

// Commit pops and commits the top frame.
func (s *Scope) Commit() error {
	if len(s.frames) == 0 {
		return dberrors.ErrNoTransaction
	}
	depth := len(s.frames)
	if err := s.pop().Commit(); err != nil {
		return fmt.Errorf("transaction: commit at depth %d: %w", depth, err)
	}
	s.logger.Debug("transaction committed", zap.Int("depth", depth))
	return nil
}

// Rollback pops and rolls back the top frame. It does nothing on an empty stack.
func (s *Scope) Rollback() error {
	if len(s.frames) == 0 {
		return nil
	}
	depth := len(s.frames)
	if err := s.pop().Rollback(); err != nil {
		return fmt.Errorf("transaction: rollback at depth %d: %w", depth, err)
	}
	s.logger.Debug("transaction rolled back", zap.Int("depth", depth))
	return nil
}

// RollbackAll rolls back every open frame, innermost first.
func (s *Scope) RollbackAll() error {
	var result *multierror.Error
	for len(s.frames) > 0 {
		if err := s.Rollback(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Close applies the disposition to the remaining frames and releases the
// connection. Calling Close again does nothing.
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var result *multierror.Error
	for len(s.frames) > 0 {
		var err error
		if s.onClose == CommitOnClose {
			err = s.Commit()
		} else {
			err = s.Rollback()
		}
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.logger.Debug("transaction scope closed")
	return result.ErrorOrNil()
}
