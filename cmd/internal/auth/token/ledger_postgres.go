package token

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger implements Ledger using PostgreSQL (parley.refresh_tokens).
//
// The two guarded transitions are expressed as conditional UPDATEs instead
// of row locks: the WHERE clause carries the precondition and the affected
// row count tells the caller whether it won.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a Postgres-backed refresh-token ledger.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const recordColumns = `
	id, user_id, device_id, digest, created_at, expires_at,
	revoked_at, revoked_reason, replaced_by
`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var reason *string
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.DeviceID,
		&r.Digest,
		&r.CreatedAt,
		&r.ExpiresAt,
		&r.RevokedAt,
		&reason,
		&r.ReplacedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if reason != nil {
		r.RevokedReason = *reason
	}
	return r, nil
}

func (l *PostgresLedger) Create(ctx context.Context, in CreateInput) (Record, error) {
	return scanRecord(l.pool.QueryRow(ctx, `
		INSERT INTO parley.refresh_tokens (id, user_id, device_id, digest, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+recordColumns,
		uuid.New(), in.UserID, in.DeviceID, in.Digest, in.CreatedAt, in.ExpiresAt))
}

func (l *PostgresLedger) FindByDigest(ctx context.Context, digest string) (Record, error) {
	return scanRecord(l.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM parley.refresh_tokens
		WHERE digest = $1
	`, digest))
}

func (l *PostgresLedger) RevokeIfActive(ctx context.Context, now time.Time, id uuid.UUID, reason string) (bool, error) {
	tag, err := l.pool.Exec(ctx, `
		UPDATE parley.refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, id, now, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (l *PostgresLedger) LinkSuccessor(ctx context.Context, id, successor uuid.UUID) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE parley.refresh_tokens
		SET replaced_by = $2
		WHERE id = $1 AND replaced_by IS NULL
	`, id, successor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing row from an already-set link.
	var exists bool
	if err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM parley.refresh_tokens WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyLinked
}

func (l *PostgresLedger) RevokeAllForUser(ctx context.Context, now time.Time, userID string, reason string) (int, error) {
	tag, err := l.pool.Exec(ctx, `
		UPDATE parley.refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, now, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (l *PostgresLedger) RevokeAllForDevice(ctx context.Context, now time.Time, deviceID string, reason string) (int, error) {
	tag, err := l.pool.Exec(ctx, `
		UPDATE parley.refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE device_id = $1 AND revoked_at IS NULL
	`, deviceID, now, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (l *PostgresLedger) CountActiveForDevice(ctx context.Context, now time.Time, deviceID string) (int, error) {
	var n int
	err := l.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM parley.refresh_tokens
		WHERE device_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`, deviceID, now).Scan(&n)
	return n, err
}

func (l *PostgresLedger) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := l.pool.Exec(ctx, `
		DELETE FROM parley.refresh_tokens
		WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
