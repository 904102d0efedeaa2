package executor

import (
	"context"
	"fmt"

	"github.com/goliatone/go-dbcommand/command"
)

func execStatement(ctx context.Context, conn command.Conn, cmd *command.Command) error {
	_, err := cmd.Exec(ctx, conn)
	return err
}

// Execute runs the command once, bound against the zero T.
func Execute[T any](ctx context.Context, e *Engine, call Call[T]) error {
	var item T
	return ExecuteItem(ctx, e, call, item)
}

// ExecuteItem runs the command once, bound against item.
func ExecuteItem[T any](ctx context.Context, e *Engine, call Call[T], item T) error {
	if err := evict(ctx, e, &call); err != nil {
		return err
	}
	return run(ctx, e, "execute", &call, item, execStatement)
}

// ExecuteList runs the command once per item, in order, and stops at the
// first failure. Outside a transaction the items already run stay applied.
// Inside one, the failure rolls the whole scope back.
func ExecuteList[T any](ctx context.Context, e *Engine, call Call[T], items []T) error {
	if err := evict(ctx, e, &call); err != nil {
		return err
	}
	for i, item := range items {
		if err := run(ctx, e, "execute_list", &call, item, execStatement); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func firstValue(out *any) execFunc {
	return queryRows(func() { *out = nil }, func(r Record) (bool, error) {
		if r.Len() > 0 {
			*out = r.At(0)
		}
		return false, nil
	})
}

// Scalar returns the first column of the first row, or nil when there are no rows.
func Scalar[T any](ctx context.Context, e *Engine, call Call[T]) (any, error) {
	var item T
	return ScalarItem(ctx, e, call, item)
}

// ScalarItem is Scalar bound against item.
func ScalarItem[T any](ctx context.Context, e *Engine, call Call[T], item T) (any, error) {
	if err := evict(ctx, e, &call); err != nil {
		return nil, err
	}
	var out any
	if err := run(ctx, e, "scalar", &call, item, firstValue(&out)); err != nil {
		return nil, err
	}
	return out, nil
}

// ScalarAs is Scalar converted to S. NULL and no rows give the zero S.
func ScalarAs[S, T any](ctx context.Context, e *Engine, call Call[T]) (S, error) {
	var item T
	return ScalarItemAs[S](ctx, e, call, item)
}

// ScalarItemAs is ScalarItem converted to S.
func ScalarItemAs[S, T any](ctx context.Context, e *Engine, call Call[T], item T) (S, error) {
	v, err := ScalarItem(ctx, e, call, item)
	if err != nil {
		var zero S
		return zero, err
	}
	return Convert[S](v)
}

// ScalarOr is ScalarAs returning def instead of the zero S when the result
// is NULL or there are no rows.
func ScalarOr[S, T any](ctx context.Context, e *Engine, call Call[T], def S) (S, error) {
	var item T
	return ScalarItemOr(ctx, e, call, item, def)
}

// ScalarItemOr is ScalarOr bound against item.
func ScalarItemOr[S, T any](ctx context.Context, e *Engine, call Call[T], item T, def S) (S, error) {
	v, err := ScalarItem(ctx, e, call, item)
	if err != nil {
		var zero S
		return zero, err
	}
	if v == nil || v == command.Null {
		return def, nil
	}
	return Convert[S](v)
}
