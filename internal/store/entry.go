package store

import "time"

// Entry is a read-only snapshot of a cached value.
//
// Zero value of ExpiresAt means "no expiration".
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// IsExpired checks whether the entry is expired at the given time.
func (e Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return now.After(e.ExpiresAt)
}

// slot is one arena cell. prev/next link slots by index into the
// recency list; nilIndex terminates it.
type slot struct {
	key       string
	value     []byte
	expiresAt int64 // unix nanos; 0 means no expiry
	prev      int32
	next      int32
}

const nilIndex int32 = -1

func (s *slot) expired(now int64) bool {
	return s.expiresAt != 0 && now > s.expiresAt
}
