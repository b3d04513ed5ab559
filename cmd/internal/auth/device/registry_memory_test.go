package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRegistry_LookupOrCreateReusesRecord(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	info := Info{Fingerprint: "fp-1", Type: "desktop", OS: "linux", Browser: "firefox"}

	first, err := reg.LookupOrCreate(ctx, t0, "user-1", info, "10.0.0.1")
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}

	// Same (user, fingerprint) resolves to the same record; metadata refreshes.
	second, err := reg.LookupOrCreate(ctx, t0.Add(time.Hour), "user-1", info, "10.0.0.2")
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same device, got %s and %s", first.ID, second.ID)
	}
	if second.IP != "10.0.0.2" || !second.LastSeenAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("liveness metadata not refreshed: %+v", second)
	}

	// A different fingerprint is a distinct device.
	other, err := reg.LookupOrCreate(ctx, t0, "user-1", Info{Fingerprint: "fp-2"}, "10.0.0.1")
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("expected distinct device per fingerprint")
	}
}

func TestMemoryRegistry_DeactivateAndReactivate(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	info := Info{Fingerprint: "fp-1", Type: "mobile"}

	d, _ := reg.LookupOrCreate(ctx, t0, "user-1", info, "10.0.0.1")

	if err := reg.Deactivate(ctx, t0.Add(time.Minute), d.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	active, _ := reg.ListActive(ctx, "user-1")
	if len(active) != 0 {
		t.Fatalf("expected no active devices, got %d", len(active))
	}

	// Logging in again from the same client revives the record.
	revived, err := reg.LookupOrCreate(ctx, t0.Add(time.Hour), "user-1", info, "10.0.0.1")
	if err != nil {
		t.Fatalf("LookupOrCreate: %v", err)
	}
	if revived.ID != d.ID || !revived.Active {
		t.Fatalf("expected reactivated device, got %+v", revived)
	}
}

func TestMemoryRegistry_ListActiveOrdering(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	old, _ := reg.LookupOrCreate(ctx, t0, "user-1", Info{Fingerprint: "fp-old"}, "ip")
	recent, _ := reg.LookupOrCreate(ctx, t0.Add(time.Hour), "user-1", Info{Fingerprint: "fp-new"}, "ip")
	reg.LookupOrCreate(ctx, t0, "user-2", Info{Fingerprint: "fp-old"}, "ip")

	got, err := reg.ListActive(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 2 || got[0].ID != recent.ID || got[1].ID != old.ID {
		t.Fatalf("expected most recent first, got %+v", got)
	}
}

func TestMemoryRegistry_UnknownID(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	if _, err := reg.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := reg.Touch(ctx, time.Now(), "nope", "ip"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := reg.Deactivate(ctx, time.Now(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
