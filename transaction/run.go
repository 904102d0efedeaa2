package transaction

import (
	"context"

	"github.com/goliatone/go-dbcommand/provider"
	"github.com/hashicorp/go-multierror"
)

// Run executes fn inside a new scope. The scope is attached to the context
// passed to fn. When fn returns an error or panics every frame is rolled
// back; otherwise remaining frames follow onClose. The panic is re-raised
// after cleanup.
func Run[T any](ctx context.Context, p provider.Provider, onClose Disposition, fn func(ctx context.Context, s *Scope) (T, error), opts ...Option) (result T, err error) {
	s, err := Begin(ctx, p, onClose, opts...)
	if err != nil {
		return result, err
	}
	return runScope(ctx, s, fn)
}

func runScope[T any](ctx context.Context, s *Scope, fn func(ctx context.Context, s *Scope) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = s.RollbackAll()
			_ = s.Close()
			panic(r)
		}
		if err != nil {
			if rbErr := s.RollbackAll(); rbErr != nil {
				err = multierror.Append(err, rbErr)
			}
		}
		if closeErr := s.Close(); closeErr != nil {
			if err == nil {
				err = closeErr
			} else {
				err = multierror.Append(err, closeErr)
			}
		}
	}()
	return fn(WithScope(ctx, s), s)
}
