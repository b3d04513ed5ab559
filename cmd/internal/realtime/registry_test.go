package realtime

import "testing"

func TestRegistry_BindSupersedes(t *testing.T) {
	r := NewRegistry()

	a := NewClient("user-1", 8)
	if prev := r.Bind("user-1", a); prev != nil {
		t.Fatalf("expected no previous transport")
	}

	b := NewClient("user-1", 8)
	prev := r.Bind("user-1", b)
	if prev != a {
		t.Fatalf("expected the first transport back for teardown")
	}
	if got := r.Lookup("user-1"); got != b {
		t.Fatalf("expected newest transport bound")
	}
	if a.Gen == b.Gen {
		t.Fatalf("generations must be distinct")
	}
}

func TestRegistry_StaleReleaseKeepsNewBinding(t *testing.T) {
	r := NewRegistry()

	a := NewClient("user-1", 8)
	r.Bind("user-1", a)
	b := NewClient("user-1", 8)
	r.Bind("user-1", b)

	// The superseded transport's disconnect fires after the new bind.
	if r.ReleaseIf("user-1", a.Gen) {
		t.Fatalf("stale generation must not unbind")
	}
	if !r.Online("user-1") {
		t.Fatalf("newest transport must survive stale release")
	}

	if !r.ReleaseIf("user-1", b.Gen) {
		t.Fatalf("current generation must release")
	}
	if r.Online("user-1") || r.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()
	if r.Lookup("ghost") != nil || r.Online("ghost") {
		t.Fatalf("unknown user must not resolve")
	}
}
