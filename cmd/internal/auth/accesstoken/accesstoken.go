// Package accesstoken issues and verifies short-lived bearer tokens.
//
// Tokens are HS256 JWTs. The subject carries the user ID and every token
// gets a unique jti so individual tokens remain distinguishable in logs.
// Verification pins the algorithm and issuer; anything else is rejected
// before the claims are inspected.
package accesstoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim stamped on every token.
const Issuer = "parley"

var (
	// ErrInvalid is returned for malformed, forged, or mis-issued tokens.
	ErrInvalid = errors.New("invalid access token")
	// ErrExpired is returned for well-formed tokens past their expiry.
	ErrExpired = errors.New("access token expired")
)

// Claims is the verified content of an access token.
type Claims struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager signs and verifies access tokens with a shared HMAC key.
type Manager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewManager creates a Manager. The key must be at least 32 bytes.
func NewManager(key []byte, ttl time.Duration) (*Manager, error) {
	if len(key) < 32 {
		return nil, errors.New("accesstoken: signing key shorter than 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("accesstoken: non-positive ttl")
	}
	return &Manager{key: key, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}, nil
}

// WithClock overrides the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TTL reports the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a new token for the user.
func (m *Manager) Issue(userID string) (string, Claims, error) {
	now := m.now()
	claims := Claims{
		UserID:    userID,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   claims.UserID,
		ID:        claims.TokenID,
		IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	})
	signed, err := tok.SignedString(m.key)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Verify parses and validates a token, returning its claims.
func (m *Manager) Verify(raw string) (Claims, error) {
	var reg jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &reg,
		func(*jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	if reg.Subject == "" || reg.IssuedAt == nil || reg.ExpiresAt == nil {
		return Claims{}, ErrInvalid
	}
	return Claims{
		UserID:    reg.Subject,
		TokenID:   reg.ID,
		IssuedAt:  reg.IssuedAt.Time,
		ExpiresAt: reg.ExpiresAt.Time,
	}, nil
}
