package token

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-memory Ledger used for development and tests.
type MemoryLedger struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]Record
	byDigest map[string]uuid.UUID
}

// NewMemoryLedger constructs an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:     make(map[uuid.UUID]Record),
		byDigest: make(map[string]uuid.UUID),
	}
}

func (l *MemoryLedger) Create(_ context.Context, in CreateInput) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Record{
		ID:        uuid.New(),
		UserID:    in.UserID,
		DeviceID:  in.DeviceID,
		Digest:    in.Digest,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}
	l.byID[r.ID] = r
	l.byDigest[r.Digest] = r.ID
	return r, nil
}

func (l *MemoryLedger) FindByDigest(_ context.Context, digest string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byDigest[digest]
	if !ok {
		return Record{}, ErrNotFound
	}
	return l.byID[id], nil
}

func (l *MemoryLedger) RevokeIfActive(_ context.Context, now time.Time, id uuid.UUID, reason string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.RevokedAt != nil {
		return false, nil
	}
	at := now
	r.RevokedAt = &at
	r.RevokedReason = reason
	l.byID[id] = r
	return true, nil
}

func (l *MemoryLedger) LinkSuccessor(_ context.Context, id, successor uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.byID[id]
	if !ok {
		return ErrNotFound
	}
	if r.ReplacedBy != nil {
		return ErrAlreadyLinked
	}
	succ := successor
	r.ReplacedBy = &succ
	l.byID[id] = r
	return nil
}

func (l *MemoryLedger) RevokeAllForUser(_ context.Context, now time.Time, userID string, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, r := range l.byID {
		if r.UserID == userID && r.RevokedAt == nil {
			at := now
			r.RevokedAt = &at
			r.RevokedReason = reason
			l.byID[id] = r
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) RevokeAllForDevice(_ context.Context, now time.Time, deviceID string, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, r := range l.byID {
		if r.DeviceID == deviceID && r.RevokedAt == nil {
			at := now
			r.RevokedAt = &at
			r.RevokedReason = reason
			l.byID[id] = r
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) CountActiveForDevice(_ context.Context, now time.Time, deviceID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, r := range l.byID {
		if r.DeviceID == deviceID && r.StateAt(now) == StateActive {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, r := range l.byID {
		if r.ExpiresAt.Before(cutoff) {
			delete(l.byDigest, r.Digest)
			delete(l.byID, id)
			n++
		}
	}
	return n, nil
}
