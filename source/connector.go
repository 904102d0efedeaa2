package source

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-dbcommand/cache"
	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/executor"
	"github.com/goliatone/go-dbcommand/transaction"
)

// Connector builds one executor.Call. Its methods never modify the receiver.
type Connector[T any] struct {
	src  *Source
	call executor.Call[T]
}

func newConnector[T any](s *Source, spec command.Spec) Connector[T] {
	c := Connector[T]{src: s}
	c.call.Spec = spec.WithTimeout(s.timeoutSeconds)
	c.call.Binding = command.Bind[T]()
	c.call.Mapper = executor.StructMapper[T]()
	c.call.Cache.Name = s.cacheName
	return c
}

// Text starts a connector for a text command.
func Text[T any](s *Source, text string) Connector[T] {
	return newConnector[T](s, command.Query(text))
}

// Procedure starts a connector for a stored procedure.
func Procedure[T any](s *Source, name string) Connector[T] {
	return newConnector[T](s, command.Procedure(name))
}

// Timeout overrides the source's default timeout.
func (c Connector[T]) Timeout(seconds int) Connector[T] {
	c.call.Spec = c.call.Spec.WithTimeout(seconds)
	return c
}

// Param binds a constant.
func (c Connector[T]) Param(name string, value any) Connector[T] {
	c.call.Binding = c.call.Binding.Add(name, value)
	return c
}

// ParamIf binds a constant when cond is true.
func (c Connector[T]) ParamIf(cond bool, name string, value any) Connector[T] {
	c.call.Binding = c.call.Binding.AddIf(cond, name, value)
	return c
}

// ParamFunc binds a value taken from the item.
func (c Connector[T]) ParamFunc(name string, fn func(T) any) Connector[T] {
	c.call.Binding = c.call.Binding.AddFunc(name, fn)
	return c
}

// ParamWhen binds a value taken from the item when expr holds for it.
func (c Connector[T]) ParamWhen(expr, name string, fn func(T) any) Connector[T] {
	c.call.Binding = c.call.Binding.AddWhen(expr, name, fn)
	return c
}

// Output declares an output parameter.
func (c Connector[T]) Output(name string, t command.DbType) Connector[T] {
	c.call.Binding = c.call.Binding.AddOutput(name, t)
	return c
}

// Return declares the return value parameter.
func (c Connector[T]) Return(name string, t command.DbType) Connector[T] {
	c.call.Binding = c.call.Binding.SetReturn(name, t)
	return c
}

// Map replaces the default struct mapper.
func (c Connector[T]) Map(m executor.Mapper[T]) Connector[T] {
	c.call.Mapper = m
	return c
}

// KeyBy sets the dictionary key function.
func (c Connector[T]) KeyBy(fn func(executor.Record) (any, error)) Connector[T] {
	c.call.DictionaryKey = fn
	return c
}

// KeyColumn indexes dictionaries by the raw value of column.
func (c Connector[T]) KeyColumn(column string) Connector[T] {
	return c.KeyBy(func(r executor.Record) (any, error) {
		v, _ := r.Value(column)
		return v, nil
	})
}

// InScope runs the command inside scope.
func (c Connector[T]) InScope(scope *transaction.Scope) Connector[T] {
	c.call.Scope = scope
	return c
}

// OnConnection runs fn on the dedicated connection of an ad hoc command.
func (c Connector[T]) OnConnection(fn func(ctx context.Context, conn *sql.Conn) error) Connector[T] {
	c.call.ConnectionCreated = fn
	return c
}

// AfterCommand runs fn once the command succeeded, with outputs populated.
func (c Connector[T]) AfterCommand(fn func(cmd *command.Command) error) Connector[T] {
	c.call.PostCommand = fn
	return c
}

// AfterItem is AfterCommand with access to the item the command ran for.
func (c Connector[T]) AfterItem(fn func(cmd *command.Command, item T) error) Connector[T] {
	c.call.PostItemCommand = fn
	return c
}

// Cached serves readers from the cache under key.
func (c Connector[T]) Cached(key string, exp cache.Expiry) Connector[T] {
	c.call.Cache.Key = key
	c.call.Cache.Expiry = exp
	return c
}

// CachedBy derives the key from T's namespace, the command text and args.
func (c Connector[T]) CachedBy(exp cache.Expiry, args ...any) Connector[T] {
	parts := append([]any{c.call.Spec.Text}, args...)
	return c.Cached(c.src.keys.SerializeKey(cache.Namespace[T](), parts...), exp)
}

// Evict removes the cache key before the command runs.
func (c Connector[T]) Evict() Connector[T] {
	c.call.Cache.Evict = true
	return c
}

// Call returns the assembled call.
func (c Connector[T]) Call() executor.Call[T] { return c.call }

// Single returns the first mapped row, or the zero T.
func (c Connector[T]) Single(ctx context.Context) (T, error) {
	res, err := executor.ReaderSingle(ctx, c.src.engine, c.call)
	return res.Value, err
}

// List returns every mapped row.
func (c Connector[T]) List(ctx context.Context) ([]T, error) {
	res, err := executor.ReaderList(ctx, c.src.engine, c.call)
	return res.Value, err
}

// Exec runs the command once.
func (c Connector[T]) Exec(ctx context.Context) error {
	return executor.Execute(ctx, c.src.engine, c.call)
}

// ExecItem runs the command for item.
func (c Connector[T]) ExecItem(ctx context.Context, item T) error {
	return executor.ExecuteItem(ctx, c.src.engine, c.call, item)
}

// ExecList runs the command for each item in order.
func (c Connector[T]) ExecList(ctx context.Context, items []T) error {
	return executor.ExecuteList(ctx, c.src.engine, c.call, items)
}

// Scalar returns the first column of the first row.
func (c Connector[T]) Scalar(ctx context.Context) (any, error) {
	return executor.Scalar(ctx, c.src.engine, c.call)
}

// ScalarItem is Scalar bound against item.
func (c Connector[T]) ScalarItem(ctx context.Context, item T) (any, error) {
	return executor.ScalarItem(ctx, c.src.engine, c.call, item)
}

// Dictionary indexes every mapped row by the connector's key function.
func Dictionary[K comparable, T any](ctx context.Context, c Connector[T]) (map[K]T, error) {
	res, err := executor.ReaderDictionary[K](ctx, c.src.engine, c.call)
	return res.Value, err
}

// Table appends the first result set to existing under name.
func Table(ctx context.Context, c Connector[executor.TableSet], existing *executor.TableSet, name string) (*executor.TableSet, error) {
	res, err := executor.ReaderTable(ctx, c.src.engine, c.call, existing, name)
	return res.Value, err
}

// ScalarAs is Scalar converted to S.
func ScalarAs[S, T any](ctx context.Context, c Connector[T]) (S, error) {
	return executor.ScalarAs[S](ctx, c.src.engine, c.call)
}

// ScalarOr is ScalarAs with def for NULL or no rows.
func ScalarOr[S, T any](ctx context.Context, c Connector[T], def S) (S, error) {
	return executor.ScalarOr(ctx, c.src.engine, c.call, def)
}
