package app

import (
	"errors"

	"parley/cmd/security/digest"
)

// ValidateSecurityConfig enforces the startup security policy.
// Fail-fast on purpose: silently falling back to unkeyed refresh-token
// digests in production is unacceptable.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := digest.KeyFromEnv(digest.MinHMACKeyBytes); err != nil {
		switch {
		case errors.Is(err, digest.ErrKeyMissing):
			return errors.New("security policy: PARLEY_REQUIRE_TOKEN_HMAC=true but PARLEY_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, digest.ErrKeyTooShort):
			return errors.New("security policy: PARLEY_REQUIRE_TOKEN_HMAC=true but PARLEY_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	// End-to-end check against the module that performs the hashing, so a
	// future fallback path cannot slip in under policy.
	if _, err := digest.RefreshTokenHexStrict("startup-policy-probe"); err != nil {
		return err
	}

	return nil
}
