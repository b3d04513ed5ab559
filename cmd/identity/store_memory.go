package identity

import (
	"context"
	"sync"
	"time"

	"parley/cmd/identity/ids"
)

// MemoryStore is an in-memory Store used for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string // email_norm -> id
	byUser  map[string]string // username_norm -> id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
		byUser:  make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, in CreateInput) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emailNorm := NormalizeEmail(in.Email)
	userNorm := NormalizeUsername(in.Username)
	if _, ok := s.byEmail[emailNorm]; ok {
		return User{}, ErrExists
	}
	if _, ok := s.byUser[userNorm]; ok {
		return User{}, ErrExists
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u := User{
		ID:           id,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Status:       StatusActive,
		CreatedAt:    now,
	}
	s.byID[id] = u
	s.byEmail[emailNorm] = id
	s.byUser[userNorm] = id
	return u, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) SetPendingTwoFactorSecret(_ context.Context, id string, secret string) error {
	return s.update(id, func(u *User) {
		u.TwoFactorSecret = secret
	})
}

func (s *MemoryStore) EnableTwoFactor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok || u.TwoFactorSecret == "" {
		return ErrNotFound
	}
	u.TwoFactorEnabled = true
	s.byID[id] = u
	return nil
}

func (s *MemoryStore) DisableTwoFactor(_ context.Context, id string) error {
	return s.update(id, func(u *User) {
		u.TwoFactorSecret = ""
		u.TwoFactorEnabled = false
	})
}

func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	return s.update(id, func(u *User) {
		u.Status = status
	})
}

func (s *MemoryStore) SetPresence(_ context.Context, id string, online bool, seenAt time.Time) error {
	return s.update(id, func(u *User) {
		u.Online = online
		seen := seenAt
		u.LastSeenAt = &seen
	})
}

func (s *MemoryStore) update(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	s.byID[id] = u
	return nil
}
