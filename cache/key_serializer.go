package cache

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// MaxKeyLength is the longest key emitted verbatim. Longer keys keep their
// namespace and replace the rest with a digest.
const MaxKeyLength = 200

// KeySerializer builds a cache key from a namespace and arbitrary args.
// It is responsible for producing stable keys across calls and processes.
type KeySerializer interface {
	SerializeKey(namespace string, args ...any) string
}

type defaultKeySerializer struct{}

// NewDefaultKeySerializer returns the serializer used when callers do not
// provide their own. Scalars are written as text; anything else is msgpack
// encoded with sorted map keys and reduced to an xxhash digest.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey joins namespace and the serialized args with KeySeparator.
func (s defaultKeySerializer) SerializeKey(namespace string, args ...any) string {
	if len(args) == 0 {
		return namespace
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, namespace)
	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	key := strings.Join(parts, KeySeparator)
	if len(key) <= MaxKeyLength {
		return key
	}
	rest := key[len(namespace)+len(KeySeparator):]
	return namespace + KeySeparator + "h" + strconv.FormatUint(xxhash.Sum64String(rest), 16)
}

func (s defaultKeySerializer) serializeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return x
	case []byte:
		return "b" + strconv.FormatUint(xxhash.Sum64(x), 16)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return "t:" + rv.Type().String()
	}
	return "m" + strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16)
}
