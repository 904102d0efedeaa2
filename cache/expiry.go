package cache

import (
	"fmt"
	"time"
)

// Policy selects how an entry expires.
type Policy int

const (
	// NoExpiry keeps the entry until it is removed or evicted by the store.
	NoExpiry Policy = iota
	// Absolute expires the entry TTL after it was written.
	Absolute
	// Sliding expires the entry TTL after it was last read.
	Sliding
)

func (p Policy) String() string {
	switch p {
	case Absolute:
		return "absolute"
	case Sliding:
		return "sliding"
	default:
		return "none"
	}
}

// Expiry is the resolved expiry of a cache entry.
type Expiry struct {
	Policy Policy
	TTL    time.Duration
}

// Never is the expiry of entries that only leave the cache when removed.
var Never = Expiry{Policy: NoExpiry}

// Expire resolves absolute and sliding seconds into one Expiry.
// Absolute wins when both are set; no expiry only when both are zero.
func Expire(absoluteSeconds, slidingSeconds int) Expiry {
	switch {
	case absoluteSeconds > 0:
		return Expiry{Policy: Absolute, TTL: time.Duration(absoluteSeconds) * time.Second}
	case slidingSeconds > 0:
		return Expiry{Policy: Sliding, TTL: time.Duration(slidingSeconds) * time.Second}
	default:
		return Never
	}
}

// storeArgs maps the expiry to the ttl and sliding flag a Store expects.
func (e Expiry) storeArgs() (time.Duration, bool) {
	if e.Policy == NoExpiry || e.TTL <= 0 {
		return 0, false
	}
	return e.TTL, e.Policy == Sliding
}

func (e Expiry) String() string {
	if e.Policy == NoExpiry {
		return e.Policy.String()
	}
	return fmt.Sprintf("%s(%s)", e.Policy, e.TTL)
}
