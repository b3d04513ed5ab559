package issuer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/accesstoken"
	"parley/cmd/internal/auth/autherr"
	"parley/cmd/internal/auth/device"
	"parley/cmd/internal/auth/token"
	"parley/cmd/internal/auth/twofactor"
	"parley/cmd/security/digest"
	"parley/cmd/security/password"
)

// cheapPasswords keeps Argon2id affordable in tests.
func cheapPasswords() password.Config {
	return password.Config{
		Params: password.Params{
			MemoryKiB:   8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		MinLength: 8,
		MaxLength: 256,
	}
}

type fixture struct {
	svc     *Service
	users   *identity.MemoryStore
	devices *device.MemoryRegistry
	ledger  *token.MemoryLedger
	gate    *twofactor.Gate
	now     time.Time
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	nowFn := func() time.Time { return clock }

	users := identity.NewMemoryStore()
	devices := device.NewMemoryRegistry()
	ledger := token.NewMemoryLedger()
	access, err := accesstoken.NewManager([]byte("0123456789abcdef0123456789abcdef"), 15*time.Minute)
	require.NoError(t, err)
	access.WithClock(nowFn)
	gate := twofactor.NewGate(users).WithClock(nowFn)

	svc, err := New(users, devices, ledger, access, gate, cheapPasswords(), 7*24*time.Hour, slog.Default())
	require.NoError(t, err)
	svc.WithClock(nowFn)

	return &fixture{svc: svc, users: users, devices: devices, ledger: ledger, gate: gate, now: t0, clock: &clock}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) register(t *testing.T, username, email string) identity.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	return u
}

func laptop() device.Info {
	return device.Info{Fingerprint: "fp-laptop", Type: "desktop", OS: "linux", Browser: "firefox"}
}

func phone() device.Info {
	return device.Info{Fingerprint: "fp-phone", Type: "mobile", OS: "android", Browser: "chrome"}
}

func (f *fixture) login(t *testing.T, email string, info device.Info) Session {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginInput{
		Email:    email,
		Password: "hunter2hunter2",
		Device:   info,
		IP:       "10.0.0.1",
	})
	require.NoError(t, err)
	require.False(t, res.SecondFactorRequired)
	return res.Session
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.register(t, "ada", "ada@example.com")

	_, err := f.svc.Register(ctx, RegisterInput{Username: "ada2", Email: "ADA@example.com", Password: "hunter2hunter2"})
	require.ErrorIs(t, err, autherr.ErrUserExists)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "bo", Email: "bo@example.com", Password: "short"})
	require.ErrorIs(t, err, password.ErrPasswordTooShort)
}

func TestLogin_IssuesDeviceBoundSession(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "ada", "ada@example.com")

	sess := f.login(t, "ada@example.com", laptop())
	require.NotEmpty(t, sess.AccessToken)
	require.NotEmpty(t, sess.RefreshToken)
	require.Equal(t, u.ID, sess.Device.UserID)
	require.Equal(t, "fp-laptop", sess.Device.Fingerprint)
	require.Equal(t, f.now.Add(7*24*time.Hour), sess.RefreshExpiresAt)
}

func TestLogin_UniformCredentialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "ada", "ada@example.com")

	_, err := f.svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong-password", Device: laptop()})
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "whatever-pass", Device: laptop()})
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)
}

func TestLogin_InactiveAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.register(t, "ada", "ada@example.com")
	require.NoError(t, f.users.SetStatus(ctx, u.ID, identity.StatusSuspended))

	_, err := f.svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "hunter2hunter2", Device: laptop()})
	require.ErrorIs(t, err, autherr.ErrAccountNotActive)
}

func TestLogin_SameDeviceSupersedesOldToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "ada", "ada@example.com")

	first := f.login(t, "ada@example.com", laptop())
	second := f.login(t, "ada@example.com", laptop())
	require.Equal(t, first.Device.ID, second.Device.ID)

	n, err := f.ledger.CountActiveForDevice(ctx, f.now, first.Device.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n, "a device never holds more than one live refresh token")

	// The superseded token is revoked; presenting it is a reuse event.
	_, err = f.svc.Rotate(ctx, first.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, autherr.ErrSecurityBreach)
}

func TestSecondFactor_LoginFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.register(t, "ada", "ada@example.com")

	enr, err := f.gate.Enroll(ctx, u.ID)
	require.NoError(t, err)
	code, err := totp.GenerateCode(enr.Secret, f.now)
	require.NoError(t, err)
	require.NoError(t, f.gate.ConfirmEnrollment(ctx, u.ID, code))

	// Credentials alone no longer finish the login.
	res, err := f.svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "hunter2hunter2", Device: laptop()})
	require.NoError(t, err)
	require.True(t, res.SecondFactorRequired)
	require.Empty(t, res.Session.AccessToken)
	require.Empty(t, res.Session.RefreshToken)

	_, err = f.svc.CompleteSecondFactor(ctx, u.ID, "000000", laptop(), "10.0.0.1")
	require.ErrorIs(t, err, autherr.ErrInvalidSecondFactor)

	code, err = totp.GenerateCode(enr.Secret, f.now)
	require.NoError(t, err)
	sess, err := f.svc.CompleteSecondFactor(ctx, u.ID, code, laptop(), "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, sess.AccessToken)
	require.NotEmpty(t, sess.RefreshToken)
}

func TestRotate_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "ada", "ada@example.com")
	sess := f.login(t, "ada@example.com", laptop())

	f.advance(time.Hour)
	next, err := f.svc.Rotate(ctx, sess.RefreshToken, "10.0.0.2")
	require.NoError(t, err)
	require.NotEqual(t, sess.RefreshToken, next.RefreshToken)
	require.Equal(t, sess.Device.ID, next.Device.ID)

	// The device metadata followed the rotation.
	dev, err := f.devices.Get(ctx, sess.Device.ID)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2", dev.IP)
	require.Equal(t, f.now.Add(time.Hour), dev.LastSeenAt)

	// The new token rotates; the chain keeps going.
	_, err = f.svc.Rotate(ctx, next.RefreshToken, "10.0.0.2")
	require.NoError(t, err)
}

func TestRotate_UnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "ada", "ada@example.com")
	sess := f.login(t, "ada@example.com", laptop())

	_, err := f.svc.Rotate(ctx, "never-issued", "10.0.0.1")
	require.ErrorIs(t, err, autherr.ErrInvalidToken)

	f.advance(8 * 24 * time.Hour)
	_, err = f.svc.Rotate(ctx, sess.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, autherr.ErrTokenExpired)

	// The expired token is now revoked, and retrying stays ErrTokenExpired
	// rather than escalating to a breach.
	rec, err := f.ledger.FindByDigest(ctx, digest.RefreshTokenHex(sess.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, rec.RevokedAt)
	require.Equal(t, token.ReasonExpired, rec.RevokedReason)

	_, err = f.svc.Rotate(ctx, sess.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, autherr.ErrTokenExpired)
}

func TestRotate_ReuseRevokesEverySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "ada", "ada@example.com")

	laptopSess := f.login(t, "ada@example.com", laptop())
	phoneSess := f.login(t, "ada@example.com", phone())

	// Normal rotation retires the laptop token.
	rotated, err := f.svc.Rotate(ctx, laptopSess.RefreshToken, "10.0.0.1")
	require.NoError(t, err)

	// Replaying the retired token is theft evidence: everything goes.
	_, err = f.svc.Rotate(ctx, laptopSess.RefreshToken, "10.0.0.66")
	require.ErrorIs(t, err, autherr.ErrSecurityBreach)

	// Both the rotated successor and the phone's untouched token are dead.
	_, err = f.svc.Rotate(ctx, rotated.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, autherr.ErrSecurityBreach)
	_, err = f.svc.Rotate(ctx, phoneSess.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, autherr.ErrSecurityBreach)
}

func TestRotate_InactiveAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.register(t, "ada", "ada@example.com")
	sess := f.login(t, "ada@example.com", laptop())

	require.NoError(t, f.users.SetStatus(ctx, u.ID, identity.StatusBanned))
	_, err := f.svc.Rotate(ctx, sess.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, autherr.ErrAccountNotActive)
}

func TestLogout_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "ada", "ada@example.com")
	sess := f.login(t, "ada@example.com", laptop())

	require.NoError(t, f.svc.Logout(ctx, sess.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, sess.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, "never-issued"))

	devs, err := f.svc.ListSessions(ctx, sess.User.ID)
	require.NoError(t, err)
	require.Empty(t, devs)
}

func TestSessions_ListAndRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.register(t, "ada", "ada@example.com")
	other := f.register(t, "bo", "bo@example.com")

	f.login(t, "ada@example.com", laptop())
	f.advance(time.Minute)
	phoneSess := f.login(t, "ada@example.com", phone())

	devs, err := f.svc.ListSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, devs, 2)
	require.Equal(t, phoneSess.Device.ID, devs[0].ID, "most recently seen first")

	// Another user cannot revoke it, and learns nothing from trying.
	require.ErrorIs(t, f.svc.RevokeSession(ctx, other.ID, phoneSess.Device.ID), autherr.ErrForbidden)
	require.ErrorIs(t, f.svc.RevokeSession(ctx, u.ID, "no-such-device"), autherr.ErrForbidden)

	require.NoError(t, f.svc.RevokeSession(ctx, u.ID, phoneSess.Device.ID))
	devs, err = f.svc.ListSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, devs, 1)

	n, err := f.ledger.CountActiveForDevice(ctx, f.clock.Add(0), phoneSess.Device.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "ada", "ada@example.com")
	f.login(t, "ada@example.com", laptop())

	n, err := f.svc.SweepExpired(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, n)

	f.advance(8 * 24 * time.Hour)
	n, err = f.svc.SweepExpired(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
