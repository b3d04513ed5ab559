// Package token persists the refresh-token ledger.
//
// The ledger stores one record per issued refresh token, keyed by the
// digest of the opaque secret. The secret itself is never stored. Records
// are immutable except for two transitions: a one-time revocation and a
// one-time successor link written during rotation. Both are guarded so
// concurrent rotations of the same token resolve to exactly one winner.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Revocation reasons recorded on the ledger.
const (
	ReasonRotated    = "rotated"
	ReasonLogout     = "logout"
	ReasonSuperseded = "superseded"
	ReasonBreach     = "breach"
	ReasonExpired    = "expired"
	ReasonRevoked    = "revoked"
)

// SecretBytes is the entropy of an opaque refresh secret.
const SecretBytes = 32

var (
	// ErrNotFound is returned when no ledger record matches.
	ErrNotFound = errors.New("refresh token not found")
	// ErrAlreadyLinked is returned when a successor link is already set.
	ErrAlreadyLinked = errors.New("refresh token already has a successor")
)

// NewSecret returns a fresh opaque refresh secret, URL-safe base64.
func NewSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// State is the derived lifecycle position of a ledger record.
type State string

const (
	StateActive  State = "active"
	StateRevoked State = "revoked"
	StateExpired State = "expired"
)

// Record is one issued refresh token.
type Record struct {
	ID            uuid.UUID
	UserID        string
	DeviceID      string
	Digest        string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RevokedReason string
	ReplacedBy    *uuid.UUID
}

// StateAt derives the record's lifecycle state at the given instant.
// Revocation dominates expiry so a revoked-then-expired token still reads
// as revoked, which is what breach detection keys on.
func (r Record) StateAt(now time.Time) State {
	if r.RevokedAt != nil {
		return StateRevoked
	}
	if !now.Before(r.ExpiresAt) {
		return StateExpired
	}
	return StateActive
}

// CreateInput describes a new ledger record.
type CreateInput struct {
	UserID    string
	DeviceID  string
	Digest    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Ledger is the refresh-token persistence boundary.
type Ledger interface {
	// Create inserts a new record and returns it with its assigned ID.
	Create(ctx context.Context, in CreateInput) (Record, error)

	// FindByDigest loads the record whose digest matches.
	FindByDigest(ctx context.Context, digest string) (Record, error)

	// RevokeIfActive revokes the record only when it has not been revoked
	// already. It reports whether this call performed the revocation; a
	// false return with nil error means another actor got there first.
	RevokeIfActive(ctx context.Context, now time.Time, id uuid.UUID, reason string) (bool, error)

	// LinkSuccessor records the rotation successor. The link is write-once:
	// a second link attempt returns ErrAlreadyLinked.
	LinkSuccessor(ctx context.Context, id, successor uuid.UUID) error

	// RevokeAllForUser revokes every live token of the user and returns the
	// number revoked.
	RevokeAllForUser(ctx context.Context, now time.Time, userID string, reason string) (int, error)

	// RevokeAllForDevice revokes every live token bound to the device.
	RevokeAllForDevice(ctx context.Context, now time.Time, deviceID string, reason string) (int, error)

	// CountActiveForDevice reports how many unexpired, unrevoked tokens the
	// device currently holds.
	CountActiveForDevice(ctx context.Context, now time.Time, deviceID string) (int, error)

	// DeleteExpired removes records whose expiry is older than the cutoff
	// and returns the number deleted.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}
