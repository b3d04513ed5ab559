package realtime

import (
	"context"
	"sync"
)

// ParticipantStore is the authorization boundary for conversations: who may
// send into a conversation and who hears its presence and typing events.
type ParticipantStore interface {
	// IsParticipant reports whether userID belongs to conversationID.
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)

	// Participants lists the members of a conversation.
	Participants(ctx context.Context, conversationID string) ([]string, error)

	// ConversationsOf lists the conversations a user belongs to.
	ConversationsOf(ctx context.Context, userID string) ([]string, error)
}

// MemoryParticipantStore is an in-memory ParticipantStore used for
// development and tests.
type MemoryParticipantStore struct {
	mu     sync.RWMutex
	byConv map[string]map[string]struct{}
	byUser map[string]map[string]struct{}
}

// NewMemoryParticipantStore constructs an empty MemoryParticipantStore.
func NewMemoryParticipantStore() *MemoryParticipantStore {
	return &MemoryParticipantStore{
		byConv: make(map[string]map[string]struct{}),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Add joins a user to a conversation.
func (s *MemoryParticipantStore) Add(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byConv[conversationID] == nil {
		s.byConv[conversationID] = make(map[string]struct{})
	}
	s.byConv[conversationID][userID] = struct{}{}

	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]struct{})
	}
	s.byUser[userID][conversationID] = struct{}{}
}

func (s *MemoryParticipantStore) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byConv[conversationID][userID]
	return ok, nil
}

func (s *MemoryParticipantStore) Participants(_ context.Context, conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byConv[conversationID]))
	for id := range s.byConv[conversationID] {
		out = append(out, id)
	}
	return out, nil
}

func (s *MemoryParticipantStore) ConversationsOf(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		out = append(out, id)
	}
	return out, nil
}
