package store

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ulidEntropy   = ulid.Monotonic(rand.Reader, 0)
	ulidEntropyMu sync.Mutex
)

// NewID returns a time-ordered ULID for teams and sessions.
func NewID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// NewAPIKey returns a random team key. Only its hash is stored.
func NewAPIKey() string {
	return "ak_" + ulid.MustNew(ulid.Now(), rand.Reader).String()
}
