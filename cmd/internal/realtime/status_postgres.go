package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStatusStore implements StatusStore on parley.message_status.
//
// Advance is a single conditional UPDATE: the monotonicity and own-message
// guards live in the WHERE clause, so concurrent receipts for the same
// message never move the status backwards.
type PostgresStatusStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStatusStore creates a Postgres-backed status store.
func NewPostgresStatusStore(pool *pgxpool.Pool) *PostgresStatusStore {
	return &PostgresStatusStore{pool: pool}
}

func (s *PostgresStatusStore) Track(ctx context.Context, now time.Time, messageID, conversationID, senderID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO parley.message_status (message_id, conversation_id, sender_id, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO NOTHING
	`, messageID, conversationID, senderID, int(StatusSent), now)
	return err
}

func (s *PostgresStatusStore) Advance(ctx context.Context, now time.Time, messageID string, to Status, byUserID string) (MessageStatus, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE parley.message_status
		SET status = $2, updated_at = $3
		WHERE message_id = $1
		  AND status < $2
		  AND NOT (sender_id = $4 AND $2 = $5)
		RETURNING message_id, conversation_id, sender_id, status, updated_at
	`, messageID, int(to), now, byUserID, int(StatusSeen))

	m, err := scanStatus(row)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, ErrUnknownMessage) {
		return MessageStatus{}, false, err
	}

	// No row changed: either the message is untracked or the transition was
	// discarded. Load the current state to tell the two apart.
	m, err = s.Get(ctx, messageID)
	if err != nil {
		return MessageStatus{}, false, err
	}
	return m, false, nil
}

func (s *PostgresStatusStore) Get(ctx context.Context, messageID string) (MessageStatus, error) {
	return scanStatus(s.pool.QueryRow(ctx, `
		SELECT message_id, conversation_id, sender_id, status, updated_at
		FROM parley.message_status
		WHERE message_id = $1
	`, messageID))
}

func scanStatus(row pgx.Row) (MessageStatus, error) {
	var m MessageStatus
	var st int
	err := row.Scan(&m.MessageID, &m.ConversationID, &m.SenderID, &st, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MessageStatus{}, ErrUnknownMessage
	}
	if err != nil {
		return MessageStatus{}, err
	}
	m.Status = Status(st)
	return m, nil
}
