package store

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces client and job IDs (UUIDs).
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}
