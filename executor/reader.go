package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goliatone/go-dbcommand/cache"
	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/dberrors"
)

// scanRows calls fn for every row of rows until fn returns false.
func scanRows(rows *sql.Rows, fn func(Record) (bool, error)) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	index := columnIndex(columns)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		more, err := fn(Record{columns: columns, index: index, values: values})
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return rows.Err()
}

// queryRows runs cmd and feeds its rows to fn. reset runs before every
// attempt so a retried read starts from nothing.
func queryRows(reset func(), fn func(Record) (bool, error)) execFunc {
	return func(ctx context.Context, conn command.Conn, cmd *command.Command) error {
		reset()
		rows, err := cmd.Query(ctx, conn)
		if err != nil {
			return err
		}
		defer rows.Close()
		return scanRows(rows, fn)
	}
}

// evict applies CacheSettings.Evict before a call runs.
func evict[T any](ctx context.Context, e *Engine, call *Call[T]) error {
	if !call.Cache.Evict {
		return nil
	}
	if call.Cache.Key == "" {
		return dberrors.NewConfigError("Cache.Key", "is required to evict")
	}
	return e.Evict(ctx, call.Cache.Name, call.Cache.Key)
}

// cached serves a reader from the call's cache when a key is set. A failed
// fetch writes nothing.
func cached[T, V any](ctx context.Context, e *Engine, call *Call[T], fetch cache.FetchFn[V]) (Result[V], error) {
	if err := evict(ctx, e, call); err != nil {
		return Result[V]{}, err
	}
	if call.Cache.Key == "" {
		v, err := fetch(ctx)
		return Result[V]{Value: v, Source: FromDatabase}, err
	}

	f, err := e.Cache(call.Cache.Name)
	if err != nil {
		return Result[V]{}, err
	}
	v, hit, err := cache.GetOrFetch(ctx, f, call.Cache.Key, call.Cache.Expiry, fetch)
	if err != nil {
		return Result[V]{}, err
	}
	if hit {
		e.metrics.CacheLookups.WithLabelValues(f.Name(), "hit").Inc()
		return Result[V]{Value: v, Source: FromCache}, nil
	}
	e.metrics.CacheLookups.WithLabelValues(f.Name(), "miss").Inc()
	return Result[V]{Value: v, Source: FromDatabase}, nil
}

func requireMapper[T any](call *Call[T]) error {
	if call.Mapper == nil {
		return dberrors.NewConfigError("Mapper", "is required for readers")
	}
	return nil
}

// ReaderSingle maps the first row of the result. No rows yields the zero value.
func ReaderSingle[T any](ctx context.Context, e *Engine, call Call[T]) (Result[T], error) {
	if err := requireMapper(&call); err != nil {
		return Result[T]{}, err
	}
	var item T
	return cached(ctx, e, &call, func(ctx context.Context) (T, error) {
		var out T
		reset := func() {
			var zero T
			out = zero
		}
		err := run(ctx, e, "reader_single", &call, item, queryRows(reset, func(r Record) (bool, error) {
			v, err := call.Mapper(r)
			if err != nil {
				return false, err
			}
			out = v
			return false, nil
		}))
		if err != nil {
			var zero T
			return zero, err
		}
		return out, nil
	})
}

// ReaderList maps every row in order. No rows yields an empty, non-nil slice.
func ReaderList[T any](ctx context.Context, e *Engine, call Call[T]) (Result[[]T], error) {
	if err := requireMapper(&call); err != nil {
		return Result[[]T]{}, err
	}
	var item T
	return cached(ctx, e, &call, func(ctx context.Context) ([]T, error) {
		var out []T
		reset := func() { out = nil }
		err := run(ctx, e, "reader_list", &call, item, queryRows(reset, func(r Record) (bool, error) {
			v, err := call.Mapper(r)
			if err != nil {
				return false, err
			}
			out = append(out, v)
			return true, nil
		}))
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = []T{}
		}
		return out, nil
	})
}

// ReaderDictionary maps every row and indexes it by call.DictionaryKey.
// A later row replaces an earlier one with the same key.
func ReaderDictionary[K comparable, T any](ctx context.Context, e *Engine, call Call[T]) (Result[map[K]T], error) {
	if err := requireMapper(&call); err != nil {
		return Result[map[K]T]{}, err
	}
	if call.DictionaryKey == nil {
		return Result[map[K]T]{}, dberrors.NewConfigError("DictionaryKey", "is required for dictionary readers")
	}
	var item T
	return cached(ctx, e, &call, func(ctx context.Context) (map[K]T, error) {
		var out map[K]T
		reset := func() { out = map[K]T{} }
		err := run(ctx, e, "reader_dictionary", &call, item, queryRows(reset, func(r Record) (bool, error) {
			raw, err := call.DictionaryKey(r)
			if err != nil {
				return false, err
			}
			key, err := Convert[K](raw)
			if err != nil {
				return false, fmt.Errorf("dictionary key: %w", err)
			}
			v, err := call.Mapper(r)
			if err != nil {
				return false, err
			}
			out[key] = v
			return true, nil
		}))
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// ReaderTable reads every result set of the command and appends a copy of
// the first one to existing under newTableName. existing is returned
// unchanged when the command produced no result set; a nil existing starts
// a new set. The cache holds the fetched tables, not the merged set.
func ReaderTable[T any](ctx context.Context, e *Engine, call Call[T], existing *TableSet, newTableName string) (Result[*TableSet], error) {
	if newTableName == "" {
		return Result[*TableSet]{}, dberrors.NewConfigError("newTableName", "must not be empty")
	}
	var item T
	if _, ok := any(item).(TableSet); !ok {
		return Result[*TableSet]{}, dberrors.NewConfigError("Call", "table readers take a Call[TableSet], got %T", item)
	}
	res, err := cached(ctx, e, &call, func(ctx context.Context) (TableSet, error) {
		var set TableSet
		err := run(ctx, e, "reader_table", &call, item, readTables(&set))
		if err != nil {
			return TableSet{}, err
		}
		return set, nil
	})
	if err != nil {
		return Result[*TableSet]{}, err
	}
	return Result[*TableSet]{Value: mergeFirst(existing, res.Value, newTableName), Source: res.Source}, nil
}

func readTables(set *TableSet) execFunc {
	return func(ctx context.Context, conn command.Conn, cmd *command.Command) error {
		*set = TableSet{}
		rows, err := cmd.Query(ctx, conn)
		if err != nil {
			return err
		}
		defer rows.Close()

		for {
			columns, err := rows.Columns()
			if err != nil {
				return err
			}
			if len(columns) > 0 {
				t := &Table{Name: tableName(set.Len()), Columns: columns}
				err := scanRows(rows, func(r Record) (bool, error) {
					t.Rows = append(t.Rows, r.values)
					return true, nil
				})
				if err != nil {
					return err
				}
				set.Add(t)
			}
			if !rows.NextResultSet() {
				break
			}
		}
		return rows.Err()
	}
}

func tableName(i int) string {
	if i == 0 {
		return "Table"
	}
	return fmt.Sprintf("Table%d", i)
}
