package executor

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/mitchellh/mapstructure"
)

// Record is one row of a result. Column lookups ignore case. A Record is
// only valid inside the Mapper or key function it was passed to.
type Record struct {
	columns []string
	index   map[string]int
	values  []any
}

func columnIndex(columns []string) map[string]int {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		key := strings.ToLower(c)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return index
}

// NewRecord builds a Record from parallel column and value slices.
func NewRecord(columns []string, values []any) Record {
	return Record{columns: columns, index: columnIndex(columns), values: values}
}

// Columns returns the column names in result order.
func (r Record) Columns() []string { return r.columns }

// Len returns the number of columns.
func (r Record) Len() int { return len(r.values) }

// Has reports whether column is present.
func (r Record) Has(column string) bool {
	_, ok := r.index[strings.ToLower(column)]
	return ok
}

// Value returns the raw driver value of column. NULL is nil.
func (r Record) Value(column string) (any, bool) {
	i, ok := r.index[strings.ToLower(column)]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// At returns the raw value at position i.
func (r Record) At(i int) any { return r.values[i] }

// Map copies the row into a column to value map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		if _, dup := m[c]; !dup {
			m[c] = r.values[i]
		}
	}
	return m
}

// Get converts column to V. A missing column is a ConfigError; NULL becomes
// the zero value.
func Get[V any](r Record, column string) (V, error) {
	v, ok := r.Value(column)
	if !ok {
		var zero V
		return zero, dberrors.NewConfigError("Record", "no column %q", column)
	}
	return Convert[V](v)
}

// GetOr converts column to V, returning def when the column is missing or NULL.
func GetOr[V any](r Record, column string, def V) (V, error) {
	v, ok := r.Value(column)
	if !ok || v == nil {
		return def, nil
	}
	return Convert[V](v)
}

// StructMapper maps rows onto T by the "db" struct tag, falling back to a
// case-insensitive match on the field name. Text columns decode into
// numbers, booleans and RFC 3339 timestamps.
func StructMapper[T any]() Mapper[T] {
	return func(r Record) (T, error) {
		var out T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "db",
			Result:           &out,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				nullHook,
				mapstructure.StringToTimeHookFunc(time.RFC3339),
			),
		})
		if err != nil {
			return out, err
		}
		if err := dec.Decode(r.Map()); err != nil {
			return out, &dberrors.ConversionError{Target: fmt.Sprintf("%T", out), Value: r.Map(), Err: err}
		}
		return out, nil
	}
}

// nullHook unwraps sql.Null* values a custom driver may hand back.
func nullHook(_, _ reflect.Type, data any) (any, error) {
	switch v := data.(type) {
	case sql.NullString:
		return nullable(v.String, v.Valid), nil
	case sql.NullInt64:
		return nullable(v.Int64, v.Valid), nil
	case sql.NullInt32:
		return nullable(v.Int32, v.Valid), nil
	case sql.NullFloat64:
		return nullable(v.Float64, v.Valid), nil
	case sql.NullBool:
		return nullable(v.Bool, v.Valid), nil
	case sql.NullTime:
		return nullable(v.Time, v.Valid), nil
	}
	return data, nil
}

func nullable(v any, valid bool) any {
	if !valid {
		return nil
	}
	return v
}
