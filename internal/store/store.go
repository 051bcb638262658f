// Package store implements the concurrent cache engine: a sharded in-memory
// map with lazy time-based expiration and size-bounded eviction.
package store

import "github.com/pkg/errors"

// ErrValueTooLarge is returned by Set when a single value exceeds the
// configured capacity and could never fit even in an empty store.
var ErrValueTooLarge = errors.New("value exceeds store capacity")

// Store is the shared cache engine contract. All operations are safe for
// concurrent use; operations on distinct keys do not contend.
type Store interface {
	// Get returns a copy of the value if the key is present and not
	// expired. An expired entry is reclaimed as a side effect.
	Get(key string) ([]byte, bool)
	// Set inserts or replaces the entry. expiresAtMs is an absolute
	// timestamp in Unix milliseconds; 0 means no expiration. If the insert
	// would push total size over capacity, existing entries are evicted
	// first, nearest expiration first then oldest created first.
	Set(key string, value []byte, expiresAtMs int64) error
	// Delete removes the entry if present and reports whether it did.
	Delete(key string) bool
	// Exists reports whether the key is present and not expired,
	// reclaiming it if expired.
	Exists(key string) bool
	// Flush removes every entry.
	Flush()
	// Len and Size are point-in-time diagnostic counts, eventually
	// consistent under concurrent mutation.
	Len() int
	Size() int64
}
