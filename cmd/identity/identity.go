package identity

import (
	"context"
	"strings"
	"time"
)

// Status is the moderation state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

// User is the canonical security principal.
//
// TwoFactorSecret holds a base32 TOTP secret. A non-empty secret with
// TwoFactorEnabled=false is an enrollment in progress: the account is NOT
// treated as secured until the user has confirmed a code and the flag flips.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string

	Status Status

	TwoFactorSecret  string
	TwoFactorEnabled bool

	Online     bool
	LastSeenAt *time.Time

	CreatedAt time.Time
}

// TwoFactorPending reports whether an enrollment was started but never confirmed.
func (u User) TwoFactorPending() bool {
	return u.TwoFactorSecret != "" && !u.TwoFactorEnabled
}

// CreateInput describes a registration request. The password must already be
// hashed; this package never sees plaintext passwords.
type CreateInput struct {
	Username     string
	Email        string
	PasswordHash string
	Now          time.Time
}

// Store is the credential persistence boundary.
type Store interface {
	// Create registers a new active user. Returns ErrExists when the
	// normalized username or email is taken.
	Create(ctx context.Context, in CreateInput) (User, error)

	// GetByID loads a user, including password hash and second-factor secret.
	GetByID(ctx context.Context, id string) (User, error)

	// GetByEmail loads a user by normalized email.
	GetByEmail(ctx context.Context, email string) (User, error)

	// SetPendingTwoFactorSecret stores an unconfirmed TOTP secret.
	// It must not flip the enabled flag.
	SetPendingTwoFactorSecret(ctx context.Context, id string, secret string) error

	// EnableTwoFactor flips the enabled flag for a user with a pending secret.
	EnableTwoFactor(ctx context.Context, id string) error

	// DisableTwoFactor clears both the secret and the enabled flag.
	DisableTwoFactor(ctx context.Context, id string) error

	// SetStatus applies a moderation action.
	SetStatus(ctx context.Context, id string, status Status) error

	// SetPresence records online state and the last-seen timestamp.
	SetPresence(ctx context.Context, id string, online bool, seenAt time.Time) error
}

// NormalizeEmail canonicalizes an email for lookup and uniqueness.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeUsername canonicalizes a username for uniqueness.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
