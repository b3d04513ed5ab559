package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the delivery state of a message. Transitions only move forward:
// sent -> delivered -> seen. Anything else is discarded.
type Status int

const (
	StatusSent      Status = 0
	StatusDelivered Status = 1
	StatusSeen      Status = 2
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusSeen:
		return "seen"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrUnknownMessage is returned when a receipt names no tracked message.
var ErrUnknownMessage = errors.New("unknown message")

// MessageStatus is the tracked delivery state of one message.
type MessageStatus struct {
	MessageID      string
	ConversationID string
	SenderID       string
	Status         Status
	UpdatedAt      time.Time
}

// StatusStore persists per-message delivery state.
type StatusStore interface {
	// Track registers a freshly sent message at StatusSent.
	Track(ctx context.Context, now time.Time, messageID, conversationID, senderID string) error

	// Advance moves a message's status forward. It reports false without
	// error when the transition is not monotonic, and also when the sender
	// tries to mark their own message seen. The returned record reflects
	// the state after the call either way.
	Advance(ctx context.Context, now time.Time, messageID string, to Status, byUserID string) (MessageStatus, bool, error)

	// Get loads the tracked state of a message.
	Get(ctx context.Context, messageID string) (MessageStatus, error)
}

// MemoryStatusStore is an in-memory StatusStore used for development and tests.
type MemoryStatusStore struct {
	mu   sync.Mutex
	byID map[string]MessageStatus
}

// NewMemoryStatusStore constructs an empty MemoryStatusStore.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{byID: make(map[string]MessageStatus)}
}

func (s *MemoryStatusStore) Track(_ context.Context, now time.Time, messageID, conversationID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[messageID]; ok {
		return nil
	}
	s.byID[messageID] = MessageStatus{
		MessageID:      messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Status:         StatusSent,
		UpdatedAt:      now,
	}
	return nil
}

func (s *MemoryStatusStore) Advance(_ context.Context, now time.Time, messageID string, to Status, byUserID string) (MessageStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok {
		return MessageStatus{}, false, ErrUnknownMessage
	}
	if to <= m.Status {
		return m, false, nil
	}
	if to == StatusSeen && byUserID == m.SenderID {
		return m, false, nil
	}

	m.Status = to
	m.UpdatedAt = now
	s.byID[messageID] = m
	return m, true, nil
}

func (s *MemoryStatusStore) Get(_ context.Context, messageID string) (MessageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok {
		return MessageStatus{}, ErrUnknownMessage
	}
	return m, nil
}
