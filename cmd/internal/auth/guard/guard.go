// Package guard authenticates bearer tokens on every protected request.
//
// A valid signature is not enough: the account behind the token is
// re-loaded so suspension or a ban takes effect within the access-token
// window instead of at the next refresh.
package guard

import (
	"context"
	"errors"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/accesstoken"
	"parley/cmd/internal/auth/autherr"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID  string
	TokenID string
	User    identity.User
}

// Guard verifies access tokens and the liveness of the account behind them.
type Guard struct {
	tokens *accesstoken.Manager
	users  identity.Store
}

// New creates a Guard.
func New(tokens *accesstoken.Manager, users identity.Store) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate resolves a raw bearer token to a Principal.
//
// Missing, malformed, and expired tokens all come back as
// autherr.ErrUnauthenticated. The caller learns that the request carries
// no usable identity, never which check failed.
func (g *Guard) Authenticate(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, autherr.ErrUnauthenticated
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		return Principal{}, autherr.ErrUnauthenticated
	}

	u, err := g.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, identity.ErrNotFound) {
		return Principal{}, autherr.ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, autherr.Unavailable("guard.authenticate", err)
	}
	if u.Status != identity.StatusActive {
		return Principal{}, autherr.ErrAccountNotActive
	}

	return Principal{UserID: u.ID, TokenID: claims.TokenID, User: u}, nil
}
