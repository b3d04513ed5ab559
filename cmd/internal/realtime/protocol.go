// Package realtime bridges authenticated identities onto live WebSocket
// transports: presence, typing relay, and per-message delivery status.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Envelope type constants (wire-stable).
const (
	// TypeMessageSend carries a new message into a conversation (client -> server).
	TypeMessageSend = "message.send"
	// TypeMessageNew delivers an accepted message to conversation peers (server -> client).
	TypeMessageNew = "message.new"

	// TypeMessageDelivered reports a message reached a recipient device (client -> server).
	TypeMessageDelivered = "message.delivered"
	// TypeMessageSeen reports a recipient viewed the message (client -> server).
	TypeMessageSeen = "message.seen"
	// TypeMessageStatus notifies of a status transition (server -> client).
	TypeMessageStatus = "message.status"

	// TypeTyping and TypeTypingStop are relayed to conversation peers.
	TypeTyping     = "typing"
	TypeTypingStop = "typing.stop"

	// TypePresence announces a peer going online or offline (server -> client).
	TypePresence = "presence"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeMessageSend,
		TypeMessageNew,
		TypeMessageDelivered,
		TypeMessageSeen,
		TypeMessageStatus,
		TypeTyping,
		TypeTypingStop,
		TypePresence,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// MessageSendPayload carries a new message from the sender.
type MessageSendPayload struct {
	ConversationID string `json:"conversation_id"`
	ClientMsgID    string `json:"client_msg_id"`
	Body           string `json:"body"`
}

// MessageNewPayload delivers an accepted message to conversation peers.
type MessageNewPayload struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	ClientMsgID    string    `json:"client_msg_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// MessageReceiptPayload reports delivery or viewing of a message.
type MessageReceiptPayload struct {
	MessageID string `json:"message_id"`
}

// MessageStatusPayload notifies of a status transition.
type MessageStatusPayload struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	ClientMsgID    string    `json:"client_msg_id,omitempty"`
	Status         string    `json:"status"`
	By             string    `json:"by,omitempty"`
	At             time.Time `json:"at"`
}

// TypingPayload is relayed to the other participants of a conversation.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
}

// PresencePayload announces a peer's online state.
type PresencePayload struct {
	UserID     string     `json:"user_id"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
