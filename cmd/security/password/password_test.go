package password

import (
	"strings"
	"testing"
)

// Cheap params keep the test fast; verification bounds scale with them.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	cfg := testConfig()

	enc, err := cfg.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding: %s", enc)
	}

	ok, err := cfg.Verify(enc, "correct horse battery")
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}

	ok, err = cfg.Verify(enc, "wrong password!")
	if err != nil {
		t.Fatalf("Verify mismatch: %v", err)
	}
	if ok {
		t.Fatalf("mismatching password must not verify")
	}
}

func TestHash_PolicyBounds(t *testing.T) {
	cfg := testConfig()

	if _, err := cfg.Hash("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := cfg.Hash(strings.Repeat("x", cfg.MaxLength+1)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	cfg := testConfig()

	for _, enc := range []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		if _, err := cfg.Verify(enc, "whatever"); err != ErrInvalidHash {
			t.Fatalf("enc=%q: expected ErrInvalidHash, got %v", enc, err)
		}
	}
}

func TestVerify_RefusesOversizedParams(t *testing.T) {
	cfg := testConfig()

	// A hash claiming far more memory than we allow must be refused before
	// any key derivation happens.
	hostile := "$argon2id$v=19$m=1048576,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"
	if _, err := cfg.Verify(hostile, "pw"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash for oversized params, got %v", err)
	}
}
