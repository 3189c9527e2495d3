// Package idgen generates opaque, globally-unique, time-sortable ids for
// memory entries.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh ULID string. ULIDs sort lexicographically by
// creation time, which is a convenience the opaque-id contract in spec
// §3 doesn't forbid.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
