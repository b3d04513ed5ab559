package digest

import "errors"

var (
	// ErrKeyMissing is returned in strict mode when PARLEY_TOKEN_HMAC_KEY is unset.
	ErrKeyMissing = errors.New("token hmac key missing")

	// ErrKeyTooShort is returned when the configured key is below the minimum length.
	ErrKeyTooShort = errors.New("token hmac key too short")
)
