package device

import (
	"context"
	"errors"
	"time"

	"parley/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry implements Registry using PostgreSQL (parley.devices).
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a Postgres-backed device registry.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

const deviceColumns = `
	id, user_id, fingerprint, device_type, os, browser, ip, last_seen_at, active, created_at
`

func scanDevice(row pgx.Row) (Device, error) {
	var d Device
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Fingerprint,
		&d.Type,
		&d.OS,
		&d.Browser,
		&d.IP,
		&d.LastSeenAt,
		&d.Active,
		&d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, err
	}
	return d, nil
}

// LookupOrCreate upserts on the (user_id, fingerprint) unique key.
// The single statement keeps the at-most-one-live-device invariant without a
// read-then-write race between concurrent logins from the same client.
func (r *PostgresRegistry) LookupOrCreate(ctx context.Context, now time.Time, userID string, info Info, ip string) (Device, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Device{}, err
	}

	return scanDevice(r.pool.QueryRow(ctx, `
		INSERT INTO parley.devices (
			id, user_id, fingerprint, device_type, os, browser, ip,
			last_seen_at, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $8)
		ON CONFLICT (user_id, fingerprint) DO UPDATE
		SET last_seen_at = EXCLUDED.last_seen_at,
		    ip = EXCLUDED.ip,
		    active = TRUE
		RETURNING `+deviceColumns, id, userID, info.Fingerprint, info.Type, info.OS, info.Browser, ip, now))
}

// Get loads a device by ID.
func (r *PostgresRegistry) Get(ctx context.Context, id string) (Device, error) {
	return scanDevice(r.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM parley.devices
		WHERE id = $1
	`, id))
}

// Touch refreshes last-seen and the source address.
func (r *PostgresRegistry) Touch(ctx context.Context, now time.Time, id string, ip string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE parley.devices
		SET last_seen_at = $2, ip = $3
		WHERE id = $1
	`, id, now, ip)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns live devices ordered by recency.
func (r *PostgresRegistry) ListActive(ctx context.Context, userID string) ([]Device, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM parley.devices
		WHERE user_id = $1 AND active
		ORDER BY last_seen_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Deactivate marks a device as not live (idempotent).
func (r *PostgresRegistry) Deactivate(ctx context.Context, now time.Time, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE parley.devices
		SET active = FALSE, last_seen_at = $2
		WHERE id = $1
	`, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
