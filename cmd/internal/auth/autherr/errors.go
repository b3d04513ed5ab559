// Package autherr defines the stable error taxonomy of the session core.
//
// Every failure a caller can act on maps to exactly one sentinel here.
// Storage failures are wrapped as ErrUnavailable so clients never conflate
// "wrong credentials" with "backend down", and login failures are uniform
// so the surface does not leak whether an identity exists.
package autherr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both unknown identity and wrong password.
	// The two cases are intentionally indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountNotActive is returned when the account is suspended or banned.
	ErrAccountNotActive = errors.New("account not active")

	// ErrInvalidSecondFactor is returned for a wrong or out-of-window TOTP code.
	ErrInvalidSecondFactor = errors.New("invalid second factor")

	// ErrInvalidToken is returned when a refresh token matches no ledger record.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a refresh token is presented past expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrSecurityBreach is returned when a revoked refresh token is presented
	// again. All of the user's tokens are revoked before this is returned.
	ErrSecurityBreach = errors.New("security breach detected")

	// ErrUnauthenticated is returned when an access token is missing,
	// malformed, tampered with, or expired.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when a session or device is not owned by the caller.
	ErrForbidden = errors.New("forbidden")

	// ErrUserExists is returned on registration with a taken username or email.
	ErrUserExists = errors.New("username or email already exists")

	// ErrUnavailable wraps storage and collaborator failures.
	ErrUnavailable = errors.New("service unavailable")
)

// Unavailable wraps a storage failure with the ErrUnavailable kind.
// Op names the failing operation for logs; err carries the cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
