package executor

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goliatone/go-dbcommand/command"
	"github.com/goliatone/go-dbcommand/dberrors"
	"github.com/spf13/cast"
)

// Convert turns a driver value into S. NULL converts to the zero value.
// Supported targets are strings, byte slices, booleans, every integer and
// float width, time.Time, time.Duration and interface types; anything else
// needs an exact type match. Integers that do not fit the target width are
// rejected, and []byte sources are read as text.
func Convert[S any](v any) (S, error) {
	var zero S
	if v == nil || v == command.Null {
		return zero, nil
	}
	if s, ok := v.(S); ok {
		return s, nil
	}

	src := v
	if b, ok := v.([]byte); ok {
		src = string(b)
	}

	var (
		out any
		err error
	)
	switch any(zero).(type) {
	case string:
		out, err = cast.ToStringE(src)
	case []byte:
		switch b := src.(type) {
		case string:
			out = []byte(b)
		default:
			err = fmt.Errorf("unsupported source type %T", v)
		}
	case bool:
		out, err = cast.ToBoolE(src)
	case int:
		out, err = toSigned(src, strconv.IntSize, func(n int64) any { return int(n) })
	case int8:
		out, err = toSigned(src, 8, func(n int64) any { return int8(n) })
	case int16:
		out, err = toSigned(src, 16, func(n int64) any { return int16(n) })
	case int32:
		out, err = toSigned(src, 32, func(n int64) any { return int32(n) })
	case int64:
		out, err = toSigned(src, 64, func(n int64) any { return n })
	case uint:
		out, err = toUnsigned(src, strconv.IntSize, func(n uint64) any { return uint(n) })
	case uint8:
		out, err = toUnsigned(src, 8, func(n uint64) any { return uint8(n) })
	case uint16:
		out, err = toUnsigned(src, 16, func(n uint64) any { return uint16(n) })
	case uint32:
		out, err = toUnsigned(src, 32, func(n uint64) any { return uint32(n) })
	case uint64:
		out, err = toUnsigned(src, 64, func(n uint64) any { return n })
	case float32:
		var f float64
		if f, err = cast.ToFloat64E(src); err == nil {
			if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
				err = fmt.Errorf("%g overflows float32", f)
			}
			out = float32(f)
		}
	case float64:
		out, err = cast.ToFloat64E(src)
	case time.Time:
		out, err = cast.ToTimeE(src)
	case time.Duration:
		out, err = cast.ToDurationE(src)
	default:
		err = fmt.Errorf("unsupported target type")
	}
	if err != nil {
		return zero, &dberrors.ConversionError{Target: fmt.Sprintf("%T", zero), Value: v, Err: err}
	}
	return out.(S), nil
}

func toSigned(v any, bits int, conv func(int64) any) (any, error) {
	if u, ok := v.(uint64); ok && u > math.MaxInt64 {
		return nil, fmt.Errorf("%d overflows int%d", u, bits)
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return nil, err
	}
	if bits < 64 {
		lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
		if n < lo || n > hi {
			return nil, fmt.Errorf("%d overflows int%d", n, bits)
		}
	}
	return conv(n), nil
}

func toUnsigned(v any, bits int, conv func(uint64) any) (any, error) {
	n, err := cast.ToUint64E(v)
	if err != nil {
		return nil, err
	}
	if bits < 64 && n > uint64(1)<<bits-1 {
		return nil, fmt.Errorf("%d overflows uint%d", n, bits)
	}
	return conv(n), nil
}
