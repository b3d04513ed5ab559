package identity

import (
	"context"
	"errors"
	"time"

	"parley/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (parley.users).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed credential store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `
	id, username, email, password_hash, status,
	twofactor_secret, twofactor_enabled, online, last_seen_at, created_at
`

func scanUser(row pgx.Row) (User, error) {
	var (
		u      User
		secret *string
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Status,
		&secret,
		&u.TwoFactorEnabled,
		&u.Online,
		&u.LastSeenAt,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if secret != nil {
		u.TwoFactorSecret = *secret
	}
	return u, nil
}

// Create inserts a new active user row.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (User, error) {
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO parley.users (
			id, username, username_norm, email, email_norm,
			password_hash, status, twofactor_enabled, online, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE, $8)
	`, id, in.Username, NormalizeUsername(in.Username), in.Email, NormalizeEmail(in.Email),
		in.PasswordHash, StatusActive, now)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 unique_violation: taken username or email.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrExists
		}
		return User{}, err
	}

	return User{
		ID:           id,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Status:       StatusActive,
		CreatedAt:    now,
	}, nil
}

// GetByID loads a user row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM parley.users
		WHERE id = $1
	`, id))
}

// GetByEmail loads a user row by normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM parley.users
		WHERE email_norm = $1
	`, NormalizeEmail(email)))
}

// SetPendingTwoFactorSecret stores an unconfirmed TOTP secret.
func (s *PostgresStore) SetPendingTwoFactorSecret(ctx context.Context, id string, secret string) error {
	return s.execOne(ctx, `
		UPDATE parley.users
		SET twofactor_secret = $2
		WHERE id = $1
	`, id, secret)
}

// EnableTwoFactor flips the enabled flag. The pending secret must exist.
func (s *PostgresStore) EnableTwoFactor(ctx context.Context, id string) error {
	return s.execOne(ctx, `
		UPDATE parley.users
		SET twofactor_enabled = TRUE
		WHERE id = $1 AND twofactor_secret IS NOT NULL
	`, id)
}

// DisableTwoFactor clears the secret and the enabled flag.
func (s *PostgresStore) DisableTwoFactor(ctx context.Context, id string) error {
	return s.execOne(ctx, `
		UPDATE parley.users
		SET twofactor_secret = NULL, twofactor_enabled = FALSE
		WHERE id = $1
	`, id)
}

// SetStatus applies a moderation action.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status) error {
	return s.execOne(ctx, `
		UPDATE parley.users
		SET status = $2
		WHERE id = $1
	`, id, status)
}

// SetPresence records online state and last-seen.
func (s *PostgresStore) SetPresence(ctx context.Context, id string, online bool, seenAt time.Time) error {
	return s.execOne(ctx, `
		UPDATE parley.users
		SET online = $2, last_seen_at = $3
		WHERE id = $1
	`, id, online, seenAt)
}

func (s *PostgresStore) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
