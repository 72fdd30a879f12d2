package domain

import "github.com/google/uuid"

// IDGenerator mints identifiers for entities, transitions, and checkpoints.
// Implemented by UUIDv7Generator (production) and a fixed-sequence generator
// in internal/testutil (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, making ids sortable
// by creation time, which keeps audit listings readable.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a new hyphenated UUIDv7 string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
