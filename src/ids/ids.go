// Package ids generates identifiers for messages and entities.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// MessageKey returns a unique, time-sortable key for a broker message.
// Consumers must not attach meaning to it.
func MessageKey() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// EntityID returns a random UUID used as a primary key.
func EntityID() string {
	return uuid.NewString()
}
