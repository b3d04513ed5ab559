package twofactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/autherr"
)

func newTestGate(t *testing.T) (*Gate, identity.Store, identity.User, time.Time) {
	t.Helper()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	users := identity.NewMemoryStore()
	u, err := users.Create(context.Background(), identity.CreateInput{
		Username:     "ada",
		Email:        "ada@example.com",
		PasswordHash: "h",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	g := NewGate(users).WithClock(func() time.Time { return t0 })
	return g, users, u, t0
}

func codeFor(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return code
}

func TestGate_EnrollmentLifecycle(t *testing.T) {
	ctx := context.Background()
	g, users, u, t0 := newTestGate(t)

	enr, err := g.Enroll(ctx, u.ID)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if enr.Secret == "" || enr.URI == "" {
		t.Fatalf("expected provisioning material, got %+v", enr)
	}

	// A pending secret does not yet gate anything.
	if err := g.Verify(ctx, u.ID, codeFor(t, enr.Secret, t0)); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled before confirmation, got %v", err)
	}

	// A wrong code must not activate it.
	if err := g.ConfirmEnrollment(ctx, u.ID, "000000"); !errors.Is(err, autherr.ErrInvalidSecondFactor) {
		t.Fatalf("expected ErrInvalidSecondFactor, got %v", err)
	}
	got, _ := users.GetByID(ctx, u.ID)
	if got.TwoFactorEnabled {
		t.Fatalf("wrong code must not enable the factor")
	}

	if err := g.ConfirmEnrollment(ctx, u.ID, codeFor(t, enr.Secret, t0)); err != nil {
		t.Fatalf("ConfirmEnrollment: %v", err)
	}
	if err := g.Verify(ctx, u.ID, codeFor(t, enr.Secret, t0)); err != nil {
		t.Fatalf("Verify after confirmation: %v", err)
	}
}

func TestGate_VerifyAcceptsAdjacentStep(t *testing.T) {
	ctx := context.Background()
	g, _, u, t0 := newTestGate(t)

	enr, _ := g.Enroll(ctx, u.ID)
	if err := g.ConfirmEnrollment(ctx, u.ID, codeFor(t, enr.Secret, t0)); err != nil {
		t.Fatalf("ConfirmEnrollment: %v", err)
	}

	// One 30s step of drift either way is tolerated; two is not.
	if err := g.Verify(ctx, u.ID, codeFor(t, enr.Secret, t0.Add(-30*time.Second))); err != nil {
		t.Fatalf("previous-step code rejected: %v", err)
	}
	if err := g.Verify(ctx, u.ID, codeFor(t, enr.Secret, t0.Add(90*time.Second))); !errors.Is(err, autherr.ErrInvalidSecondFactor) {
		t.Fatalf("expected stale code rejection, got %v", err)
	}
}

func TestGate_DisableDemandsValidCode(t *testing.T) {
	ctx := context.Background()
	g, users, u, t0 := newTestGate(t)

	enr, _ := g.Enroll(ctx, u.ID)
	if err := g.ConfirmEnrollment(ctx, u.ID, codeFor(t, enr.Secret, t0)); err != nil {
		t.Fatalf("ConfirmEnrollment: %v", err)
	}

	if err := g.Disable(ctx, u.ID, "000000"); !errors.Is(err, autherr.ErrInvalidSecondFactor) {
		t.Fatalf("expected rejection without valid code, got %v", err)
	}
	if err := g.Disable(ctx, u.ID, codeFor(t, enr.Secret, t0)); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	got, _ := users.GetByID(ctx, u.ID)
	if got.TwoFactorEnabled || got.TwoFactorSecret != "" {
		t.Fatalf("expected cleared factor, got %+v", got)
	}
	if err := g.Verify(ctx, u.ID, "123456"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled after disable, got %v", err)
	}
}
