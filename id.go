package tunacode

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewRequestID returns a short id for correlating one request's log lines:
// the last 8 hex characters of a fresh UUIDv7, taken from its random bits.
func NewRequestID() string {
	id := strings.ReplaceAll(NewID(), "-", "")
	return id[len(id)-8:]
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
