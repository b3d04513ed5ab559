// Package twofactor manages TOTP enrollment and verification.
//
// Enrollment is two-phase: a generated secret is stored pending until the
// user proves possession by submitting one valid code. Only then does the
// account count as secured. Disable also demands a valid code so a stolen
// access token alone cannot strip the second factor.
package twofactor

import (
	"context"
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/autherr"
)

// IssuerName labels provisioning URIs in authenticator apps.
const IssuerName = "Parley"

// ErrNotEnrolled is returned when an operation needs an enrollment that
// does not exist.
var ErrNotEnrolled = errors.New("two-factor not enrolled")

// Enrollment is the provisioning material returned to a user starting
// enrollment. The secret is shown once; afterwards only codes travel.
type Enrollment struct {
	Secret string
	URI    string
}

// Gate drives the second-factor lifecycle against the identity store.
type Gate struct {
	users identity.Store
	now   func() time.Time
}

// NewGate creates a Gate.
func NewGate(users identity.Store) *Gate {
	return &Gate{users: users, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Enroll generates a fresh secret for the user and stores it pending.
// Re-enrolling before confirmation simply replaces the pending secret.
func (g *Gate) Enroll(ctx context.Context, userID string) (Enrollment, error) {
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return Enrollment{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      IssuerName,
		AccountName: u.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, err
	}

	if err := g.users.SetPendingTwoFactorSecret(ctx, userID, key.Secret()); err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// ConfirmEnrollment activates the pending secret once the user submits a
// valid code for it.
func (g *Gate) ConfirmEnrollment(ctx context.Context, userID, code string) error {
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorSecret == "" {
		return ErrNotEnrolled
	}
	if !g.validate(code, u.TwoFactorSecret) {
		return autherr.ErrInvalidSecondFactor
	}
	return g.users.EnableTwoFactor(ctx, userID)
}

// Verify checks a code against the user's active second factor.
func (g *Gate) Verify(ctx context.Context, userID, code string) error {
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == "" {
		return ErrNotEnrolled
	}
	if !g.validate(code, u.TwoFactorSecret) {
		return autherr.ErrInvalidSecondFactor
	}
	return nil
}

// Disable removes the second factor after a final possession proof.
func (g *Gate) Disable(ctx context.Context, userID, code string) error {
	if err := g.Verify(ctx, userID, code); err != nil {
		return err
	}
	return g.users.DisableTwoFactor(ctx, userID)
}

// validate accepts the current 30s step plus one step of skew either way,
// covering clock drift between phone and server.
func (g *Gate) validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, g.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
