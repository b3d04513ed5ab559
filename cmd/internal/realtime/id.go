package realtime

import (
	"time"

	"parley/cmd/identity/ids"
)

// NewMessageID returns a ULID used as a server-assigned message id.
// ULIDs sort by time, which keeps message ids traceable in logs.
func NewMessageID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// newEnvelopeID returns a ULID envelope id, or "" when entropy fails.
// Envelope ids are advisory; "" is tolerable in that rare case.
func newEnvelopeID(now time.Time) string {
	id, err := ids.NewULID(now)
	if err != nil {
		return ""
	}
	return id
}
