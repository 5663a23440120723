// Package ids mints the time-sortable identifiers carried by subjects and
// bridged messages.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID that sorts after every ULID previously returned in the
// same millisecond.
func New() ulid.ULID {
	return newAt(time.Now())
}

func newAt(at time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy)
}

// CreateULID returns New encoded as a 26-character string.
func CreateULID() string {
	return New().String()
}

// Time extracts the creation time from an encoded identifier.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
