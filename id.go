package masfro

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for message ids, mission ids, and conversation ids.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Now returns the current time. Exists so agents depend on one clock
// source, which tests can't easily override without a real clock since
// the scheduler and mission timeouts both read wall time.
func Now() time.Time {
	return time.Now()
}

// NowUnix returns the current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
