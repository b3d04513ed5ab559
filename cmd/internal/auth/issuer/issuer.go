// Package issuer drives the authenticated session lifecycle: registration,
// login with an optional second factor, refresh-token rotation with reuse
// detection, and session enumeration and revocation.
package issuer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/accesstoken"
	"parley/cmd/internal/auth/autherr"
	"parley/cmd/internal/auth/device"
	"parley/cmd/internal/auth/token"
	"parley/cmd/internal/auth/twofactor"
	"parley/cmd/security/digest"
	"parley/cmd/security/password"
)

// DefaultRefreshTTL is the refresh-token lifetime when none is configured.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// Session is an issued token pair bound to a device.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             identity.User
	Device           device.Device
}

// LoginResult is the outcome of a successful credential check. When the
// account carries a second factor, no tokens are issued yet: the caller
// must come back through CompleteSecondFactor with a code.
type LoginResult struct {
	SecondFactorRequired bool
	UserID               string
	Session              Session
}

// LoginInput carries everything a login attempt presents.
type LoginInput struct {
	Email    string
	Password string
	Device   device.Info
	IP       string
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Service implements the session lifecycle on top of the identity store,
// the device registry, and the refresh-token ledger.
type Service struct {
	users   identity.Store
	devices device.Registry
	ledger  token.Ledger
	access  *accesstoken.Manager
	second  *twofactor.Gate
	pw      password.Config
	log     *slog.Logger

	refreshTTL time.Duration
	now        func() time.Time

	// dummyHash is verified against when the email matches no account, so a
	// miss costs the same key derivation as a wrong password.
	dummyHash string
}

// New creates a Service. A zero refreshTTL falls back to DefaultRefreshTTL.
func New(
	users identity.Store,
	devices device.Registry,
	ledger token.Ledger,
	access *accesstoken.Manager,
	second *twofactor.Gate,
	pw password.Config,
	refreshTTL time.Duration,
	log *slog.Logger,
) (*Service, error) {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	if log == nil {
		log = slog.Default()
	}
	dummy, err := pw.Hash("correct-horse-battery")
	if err != nil {
		return nil, err
	}
	return &Service{
		users:      users,
		devices:    devices,
		ledger:     ledger,
		access:     access,
		second:     second,
		pw:         pw,
		log:        log,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
		dummyHash:  dummy,
	}, nil
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new active account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (identity.User, error) {
	if err := s.pw.Validate(in.Password); err != nil {
		return identity.User{}, err
	}
	hash, err := s.pw.Hash(in.Password)
	if err != nil {
		return identity.User{}, err
	}

	u, err := s.users.Create(ctx, identity.CreateInput{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Now:          s.now(),
	})
	if errors.Is(err, identity.ErrExists) {
		return identity.User{}, autherr.ErrUserExists
	}
	if err != nil {
		return identity.User{}, autherr.Unavailable("auth.register", err)
	}

	s.log.InfoContext(ctx, "auth.register.ok", "user_id", u.ID)
	return u, nil
}

// Login checks credentials and either issues a session or reports that a
// second factor is required. All credential failures return the same
// ErrInvalidCredentials so the surface does not reveal which part failed.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, identity.ErrNotFound) {
		// Burn the same hashing cost as a real verification.
		_, _ = s.pw.Verify(s.dummyHash, in.Password)
		loginsTotal.WithLabelValues("invalid").Inc()
		return LoginResult{}, autherr.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, autherr.Unavailable("auth.login", err)
	}

	ok, err := s.pw.Verify(u.PasswordHash, in.Password)
	if err != nil || !ok {
		s.log.InfoContext(ctx, "auth.login.fail", "user_id", u.ID)
		loginsTotal.WithLabelValues("invalid").Inc()
		return LoginResult{}, autherr.ErrInvalidCredentials
	}

	if u.Status != identity.StatusActive {
		loginsTotal.WithLabelValues("inactive").Inc()
		return LoginResult{}, autherr.ErrAccountNotActive
	}

	if u.TwoFactorEnabled {
		loginsTotal.WithLabelValues("second_factor_pending").Inc()
		return LoginResult{SecondFactorRequired: true, UserID: u.ID}, nil
	}

	sess, err := s.issueSession(ctx, u, in.Device, in.IP)
	if err != nil {
		return LoginResult{}, err
	}
	loginsTotal.WithLabelValues("ok").Inc()
	return LoginResult{UserID: u.ID, Session: sess}, nil
}

// CompleteSecondFactor finishes a login that Login paused for a TOTP code.
func (s *Service) CompleteSecondFactor(ctx context.Context, userID, code string, info device.Info, ip string) (Session, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return Session{}, autherr.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, autherr.Unavailable("auth.second_factor", err)
	}
	if u.Status != identity.StatusActive {
		return Session{}, autherr.ErrAccountNotActive
	}

	if err := s.second.Verify(ctx, userID, code); err != nil {
		if errors.Is(err, twofactor.ErrNotEnrolled) {
			return Session{}, autherr.ErrInvalidCredentials
		}
		s.log.InfoContext(ctx, "auth.second_factor.fail", "user_id", userID)
		return Session{}, err
	}

	sess, err := s.issueSession(ctx, u, info, ip)
	if err != nil {
		return Session{}, err
	}
	loginsTotal.WithLabelValues("ok").Inc()
	return sess, nil
}

// issueSession binds a fresh token pair to the caller's device. Any live
// tokens on the same device are revoked first so a device never holds more
// than one usable refresh token.
func (s *Service) issueSession(ctx context.Context, u identity.User, info device.Info, ip string) (Session, error) {
	now := s.now()

	dev, err := s.devices.LookupOrCreate(ctx, now, u.ID, info, ip)
	if err != nil {
		return Session{}, autherr.Unavailable("auth.device", err)
	}

	if _, err := s.ledger.RevokeAllForDevice(ctx, now, dev.ID, token.ReasonSuperseded); err != nil {
		return Session{}, autherr.Unavailable("auth.supersede", err)
	}

	secret, err := token.NewSecret()
	if err != nil {
		return Session{}, autherr.Unavailable("auth.secret", err)
	}
	rec, err := s.ledger.Create(ctx, token.CreateInput{
		UserID:    u.ID,
		DeviceID:  dev.ID,
		Digest:    digest.RefreshTokenHex(secret),
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return Session{}, autherr.Unavailable("auth.issue", err)
	}

	accessRaw, claims, err := s.access.Issue(u.ID)
	if err != nil {
		return Session{}, autherr.Unavailable("auth.sign", err)
	}

	s.log.InfoContext(ctx, "auth.session.issued",
		"user_id", u.ID, "device_id", dev.ID, "token_id", rec.ID)

	return Session{
		AccessToken:      accessRaw,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshToken:     secret,
		RefreshExpiresAt: rec.ExpiresAt,
		User:             u,
		Device:           dev,
	}, nil
}

// Rotate exchanges a refresh token for a fresh pair and retires the old one.
//
// Presenting a token that was already revoked, for any reason, is treated
// as evidence of theft: every refresh token the user holds is revoked and
// ErrSecurityBreach is returned. A rotation that loses the revocation race
// to a concurrent presenter of the same token is the same reuse event.
func (s *Service) Rotate(ctx context.Context, refreshSecret, ip string) (Session, error) {
	now := s.now()

	rec, err := s.ledger.FindByDigest(ctx, digest.RefreshTokenHex(refreshSecret))
	if errors.Is(err, token.ErrNotFound) {
		rotationsTotal.WithLabelValues("invalid").Inc()
		return Session{}, autherr.ErrInvalidToken
	}
	if err != nil {
		return Session{}, autherr.Unavailable("auth.rotate", err)
	}

	switch rec.StateAt(now) {
	case token.StateRevoked:
		// Expiry-revoked tokens are dead, not stolen: retrying an expired
		// rotation must stay ErrTokenExpired instead of escalating.
		if rec.RevokedReason == token.ReasonExpired {
			rotationsTotal.WithLabelValues("expired").Inc()
			return Session{}, autherr.ErrTokenExpired
		}
		return Session{}, s.breach(ctx, now, rec)
	case token.StateExpired:
		if _, err := s.ledger.RevokeIfActive(ctx, now, rec.ID, token.ReasonExpired); err != nil {
			return Session{}, autherr.Unavailable("auth.rotate", err)
		}
		rotationsTotal.WithLabelValues("expired").Inc()
		return Session{}, autherr.ErrTokenExpired
	}

	won, err := s.ledger.RevokeIfActive(ctx, now, rec.ID, token.ReasonRotated)
	if err != nil {
		return Session{}, autherr.Unavailable("auth.rotate", err)
	}
	if !won {
		return Session{}, s.breach(ctx, now, rec)
	}

	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return Session{}, autherr.Unavailable("auth.rotate", err)
	}
	if u.Status != identity.StatusActive {
		rotationsTotal.WithLabelValues("inactive").Inc()
		return Session{}, autherr.ErrAccountNotActive
	}

	dev, err := s.devices.Get(ctx, rec.DeviceID)
	if err != nil {
		return Session{}, autherr.Unavailable("auth.rotate", err)
	}
	if err := s.devices.Touch(ctx, now, dev.ID, ip); err != nil {
		return Session{}, autherr.Unavailable("auth.rotate", err)
	}

	secret, err := token.NewSecret()
	if err != nil {
		return Session{}, autherr.Unavailable("auth.secret", err)
	}
	succ, err := s.ledger.Create(ctx, token.CreateInput{
		UserID:    rec.UserID,
		DeviceID:  rec.DeviceID,
		Digest:    digest.RefreshTokenHex(secret),
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return Session{}, autherr.Unavailable("auth.rotate", err)
	}
	if err := s.ledger.LinkSuccessor(ctx, rec.ID, succ.ID); err != nil && !errors.Is(err, token.ErrAlreadyLinked) {
		return Session{}, autherr.Unavailable("auth.rotate", err)
	}

	accessRaw, claims, err := s.access.Issue(u.ID)
	if err != nil {
		return Session{}, autherr.Unavailable("auth.sign", err)
	}

	s.log.InfoContext(ctx, "auth.rotate.ok",
		"user_id", u.ID, "device_id", dev.ID, "old_token_id", rec.ID, "token_id", succ.ID)
	rotationsTotal.WithLabelValues("ok").Inc()

	return Session{
		AccessToken:      accessRaw,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshToken:     secret,
		RefreshExpiresAt: succ.ExpiresAt,
		User:             u,
		Device:           dev,
	}, nil
}

func (s *Service) breach(ctx context.Context, now time.Time, rec token.Record) error {
	n, err := s.ledger.RevokeAllForUser(ctx, now, rec.UserID, token.ReasonBreach)
	if err != nil {
		return autherr.Unavailable("auth.breach", err)
	}
	s.log.WarnContext(ctx, "auth.rotate.breach",
		"user_id", rec.UserID, "device_id", rec.DeviceID, "token_id", rec.ID, "revoked", n)
	breachesTotal.Inc()
	rotationsTotal.WithLabelValues("breach").Inc()
	return autherr.ErrSecurityBreach
}

// Logout revokes the presented refresh token and releases its device.
// Unknown or already-revoked tokens are a no-op: logout is idempotent and
// never errors on state it was trying to reach anyway.
func (s *Service) Logout(ctx context.Context, refreshSecret string) error {
	now := s.now()

	rec, err := s.ledger.FindByDigest(ctx, digest.RefreshTokenHex(refreshSecret))
	if errors.Is(err, token.ErrNotFound) {
		return nil
	}
	if err != nil {
		return autherr.Unavailable("auth.logout", err)
	}

	if _, err := s.ledger.RevokeIfActive(ctx, now, rec.ID, token.ReasonLogout); err != nil {
		return autherr.Unavailable("auth.logout", err)
	}
	if err := s.devices.Deactivate(ctx, now, rec.DeviceID); err != nil && !errors.Is(err, device.ErrNotFound) {
		return autherr.Unavailable("auth.logout", err)
	}

	s.log.InfoContext(ctx, "auth.logout.ok", "user_id", rec.UserID, "device_id", rec.DeviceID)
	return nil
}

// ListSessions returns the caller's live device sessions, most recent first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]device.Device, error) {
	devs, err := s.devices.ListActive(ctx, userID)
	if err != nil {
		return nil, autherr.Unavailable("auth.sessions.list", err)
	}
	return devs, nil
}

// RevokeSession ends the session on one of the caller's devices. Attempting
// to revoke a device owned by someone else returns ErrForbidden without
// revealing whether the device exists.
func (s *Service) RevokeSession(ctx context.Context, userID, deviceID string) error {
	now := s.now()

	dev, err := s.devices.Get(ctx, deviceID)
	if errors.Is(err, device.ErrNotFound) {
		return autherr.ErrForbidden
	}
	if err != nil {
		return autherr.Unavailable("auth.sessions.revoke", err)
	}
	if dev.UserID != userID {
		return autherr.ErrForbidden
	}

	if _, err := s.ledger.RevokeAllForDevice(ctx, now, dev.ID, token.ReasonRevoked); err != nil {
		return autherr.Unavailable("auth.sessions.revoke", err)
	}
	if err := s.devices.Deactivate(ctx, now, dev.ID); err != nil {
		return autherr.Unavailable("auth.sessions.revoke", err)
	}

	s.log.InfoContext(ctx, "auth.sessions.revoked", "user_id", userID, "device_id", dev.ID)
	return nil
}

// SweepExpired deletes ledger records past the retention cutoff.
func (s *Service) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	n, err := s.ledger.DeleteExpired(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, autherr.Unavailable("auth.sweep", err)
	}
	if n > 0 {
		s.log.InfoContext(ctx, "auth.sweep.ok", "deleted", n)
	}
	return n, nil
}
