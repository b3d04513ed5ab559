package realtime

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresParticipantStore implements ParticipantStore on
// parley.conversation_participants.
type PostgresParticipantStore struct {
	pool *pgxpool.Pool
}

// NewPostgresParticipantStore creates a Postgres-backed participant store.
func NewPostgresParticipantStore(pool *pgxpool.Pool) *PostgresParticipantStore {
	return &PostgresParticipantStore{pool: pool}
}

func (s *PostgresParticipantStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1
		FROM parley.conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresParticipantStore) Participants(ctx context.Context, conversationID string) ([]string, error) {
	return s.list(ctx, `
		SELECT user_id
		FROM parley.conversation_participants
		WHERE conversation_id = $1
	`, conversationID)
}

func (s *PostgresParticipantStore) ConversationsOf(ctx context.Context, userID string) ([]string, error) {
	return s.list(ctx, `
		SELECT conversation_id
		FROM parley.conversation_participants
		WHERE user_id = $1
	`, userID)
}

func (s *PostgresParticipantStore) list(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
