// Handles caching of fetched payloads on local storage
package cache

import "time"

// GenericCache stores opaque payloads by string key.
// Implementations never decide staleness themselves: callers compare
// LastModified against their own TTL (see IsFresh).
type GenericCache interface {
	// retrieves the payload stored for key.
	// returns nil, false, nil when there is no such entry
	Get(key string) ([]byte, bool, error)
	// stores value for key, replacing any previous payload atomically
	Set(key string, value []byte) error
	// deletes the entry for key. Removing a missing entry is not an error
	Remove(key string) error
	// returns the time of the last successful Set for key.
	// returns zero time, false, nil when there is no such entry
	LastModified(key string) (time.Time, bool, error)
}

// IsFresh reports whether an entry written at modTime may still be reused at now.
// A non-positive ttl means entries are never fresh.
func IsFresh(modTime time.Time, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Before(modTime.Add(ttl))
}
