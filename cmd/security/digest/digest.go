package digest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

// HMACEnvKey is the env var name holding the refresh-token HMAC secret.
// #nosec G101 -- this is the name of an environment variable, not a credential.
const HMACEnvKey = "PARLEY_TOKEN_HMAC_KEY"

// MinHMACKeyBytes is the enforced minimum key length in strict mode.
const MinHMACKeyBytes = 32

// SHA256Hex returns the SHA-256 digest of s as 64 hex characters.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HMACSHA256Hex returns the HMAC-SHA256 digest of s under key as hex.
func HMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// KeyFromEnv returns the configured HMAC key, trimmed.
// Missing/blank -> ErrKeyMissing. Shorter than minBytes -> ErrKeyTooShort.
func KeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrKeyTooShort
	}
	return b, nil
}

// RefreshTokenHex digests a refresh token for server-side storage.
// Keyed when PARLEY_TOKEN_HMAC_KEY is set, plain SHA-256 otherwise.
func RefreshTokenHex(token string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return SHA256Hex(token)
	}
	return HMACSHA256Hex(token, []byte(key))
}

// RefreshTokenHexStrict digests a refresh token in enforced-HMAC mode.
// It fails instead of falling back when the key is missing or too short.
func RefreshTokenHexStrict(token string) (string, error) {
	key, err := KeyFromEnv(MinHMACKeyBytes)
	if err != nil {
		return "", err
	}
	return HMACSHA256Hex(token, key), nil
}
