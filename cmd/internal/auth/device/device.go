// Package device tracks the physical clients a user has logged in from.
//
// A device is keyed by (user, fingerprint), where the fingerprint is an
// opaque client-supplied string. At most one live record exists per pair;
// login resolves the pair with a lookup-or-create so repeated logins from
// the same client reuse the record and refresh its liveness metadata.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no device matches the lookup key.
var ErrNotFound = errors.New("device not found")

// Info is the client-supplied classification of a device.
type Info struct {
	Fingerprint string
	Type        string // e.g. "mobile", "desktop", "tablet"
	OS          string
	Browser     string
}

// Device is one (user, fingerprint) registration.
type Device struct {
	ID          string
	UserID      string
	Fingerprint string
	Type        string
	OS          string
	Browser     string
	IP          string
	LastSeenAt  time.Time
	Active      bool
	CreatedAt   time.Time
}

// Registry is the device persistence boundary.
type Registry interface {
	// LookupOrCreate resolves the live device for (userID, info.Fingerprint),
	// creating it on first login. Existing records are reactivated and their
	// last-seen timestamp and source address refreshed.
	LookupOrCreate(ctx context.Context, now time.Time, userID string, info Info, ip string) (Device, error)

	// Get loads a device by ID.
	Get(ctx context.Context, id string) (Device, error)

	// Touch refreshes last-seen and the source address.
	Touch(ctx context.Context, now time.Time, id string, ip string) error

	// ListActive returns the user's live devices, most recently seen first.
	ListActive(ctx context.Context, userID string) ([]Device, error)

	// Deactivate marks a device as no longer live (session revocation).
	Deactivate(ctx context.Context, now time.Time, id string) error
}
