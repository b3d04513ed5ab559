package digest

import (
	"strings"
	"testing"
)

func TestSHA256Hex_Deterministic(t *testing.T) {
	a := SHA256Hex("refresh-token-value")
	b := SHA256Hex("refresh-token-value")
	if a != b {
		t.Fatalf("digest not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == SHA256Hex("other-token") {
		t.Fatalf("distinct inputs must not collide trivially")
	}
}

func TestHMACSHA256Hex_KeyChangesDigest(t *testing.T) {
	plain := SHA256Hex("tok")
	keyed := HMACSHA256Hex("tok", []byte(strings.Repeat("k", 32)))
	if plain == keyed {
		t.Fatalf("keyed digest must differ from plain digest")
	}
	if keyed != HMACSHA256Hex("tok", []byte(strings.Repeat("k", 32))) {
		t.Fatalf("keyed digest not deterministic")
	}
}

func TestRefreshTokenHex_FallsBackWithoutKey(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if RefreshTokenHex("tok") != SHA256Hex("tok") {
		t.Fatalf("expected SHA-256 fallback without key")
	}
}

func TestRefreshTokenHexStrict_RequiresKey(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := RefreshTokenHexStrict("tok"); err == nil {
		t.Fatalf("expected error without key")
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := RefreshTokenHexStrict("tok"); err == nil {
		t.Fatalf("expected error for short key")
	}

	t.Setenv(HMACEnvKey, strings.Repeat("k", 32))
	got, err := RefreshTokenHexStrict("tok")
	if err != nil {
		t.Fatalf("strict digest: %v", err)
	}
	if got != HMACSHA256Hex("tok", []byte(strings.Repeat("k", 32))) {
		t.Fatalf("unexpected strict digest")
	}
}
