package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"parley/cmd/identity"
)

type gatewayFixture struct {
	gw           *Gateway
	users        *identity.MemoryStore
	participants *MemoryParticipantStore
	status       *MemoryStatusStore
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	users := identity.NewMemoryStore()
	participants := NewMemoryParticipantStore()
	status := NewMemoryStatusStore()
	gw := NewGateway(slog.Default(), nil, status, participants, users)
	return &gatewayFixture{gw: gw, users: users, participants: participants, status: status}
}

// connect registers a user, joins them to the conversation, and binds a
// transport the way HandleWS would.
func (f *gatewayFixture) connect(t *testing.T, username, convID string) *Client {
	t.Helper()

	u, err := f.users.Create(context.Background(), identity.CreateInput{
		Username: username, Email: username + "@example.com", PasswordHash: "h",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.participants.Add(convID, u.ID)

	c := NewClient(u.ID, 16)
	if prev := f.gw.registry.Bind(u.ID, c); prev != nil {
		prev.Close()
	}
	return c
}

func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case env := <-c.Send:
		return env
	default:
		t.Fatalf("expected a queued envelope for %s", c.UserID)
		return Envelope{}
	}
}

func expectEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case env := <-c.Send:
		t.Fatalf("unexpected envelope %s for %s", env.Type, c.UserID)
	default:
	}
}

func sendEnvelope(typ string, payload any) Envelope {
	b, _ := json.Marshal(payload)
	return Envelope{V: Version, Type: typ, TS: time.Now().UTC(), Payload: b}
}

func TestGateway_MessageSendAcksAndFansOut(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")
	stranger := f.connect(t, "carol", "conv-other")

	now := time.Now().UTC()
	env := sendEnvelope(TypeMessageSend, MessageSendPayload{
		ConversationID: "conv-1", ClientMsgID: "c1", Body: "hello bob",
	})
	if err := f.gw.onMessageSend(ctx, alice, env, now); err != nil {
		t.Fatalf("onMessageSend: %v", err)
	}

	// Sender gets the canonical id via a sent-status ack.
	ack := recv(t, alice)
	if ack.Type != TypeMessageStatus {
		t.Fatalf("expected status ack, got %s", ack.Type)
	}
	var st MessageStatusPayload
	if err := json.Unmarshal(ack.Payload, &st); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if st.Status != "sent" || st.ClientMsgID != "c1" || st.MessageID == "" {
		t.Fatalf("unexpected ack %+v", st)
	}

	// The peer receives the message; outsiders hear nothing.
	newEnv := recv(t, bob)
	if newEnv.Type != TypeMessageNew {
		t.Fatalf("expected message.new, got %s", newEnv.Type)
	}
	var msg MessageNewPayload
	_ = json.Unmarshal(newEnv.Payload, &msg)
	if msg.SenderID != alice.UserID || msg.Body != "hello bob" || msg.MessageID != st.MessageID {
		t.Fatalf("unexpected fanout %+v", msg)
	}
	expectEmpty(t, stranger)

	// Reaching bob's live transport moves the message to delivered and the
	// sender is told without bob sending anything.
	delivered := recv(t, alice)
	if delivered.Type != TypeMessageStatus {
		t.Fatalf("expected delivered push, got %s", delivered.Type)
	}
	_ = json.Unmarshal(delivered.Payload, &st)
	if st.Status != "delivered" || st.By != bob.UserID || st.MessageID != msg.MessageID {
		t.Fatalf("unexpected delivered push %+v", st)
	}
	expectEmpty(t, alice)

	rec, err := f.status.Get(ctx, st.MessageID)
	if err != nil || rec.Status != StatusDelivered || rec.SenderID != alice.UserID {
		t.Fatalf("ledger state wrong: %+v err=%v", rec, err)
	}
}

func TestGateway_DeliveredWaitsForLiveTransport(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	alice := f.connect(t, "alice", "conv-1")

	// Bob is a participant but has no bound transport.
	bob, err := f.users.Create(ctx, identity.CreateInput{
		Username: "bob", Email: "bob@example.com", PasswordHash: "h",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.participants.Add("conv-1", bob.ID)

	now := time.Now().UTC()
	send := sendEnvelope(TypeMessageSend, MessageSendPayload{ConversationID: "conv-1", ClientMsgID: "c1", Body: "hi"})
	if err := f.gw.onMessageSend(ctx, alice, send, now); err != nil {
		t.Fatalf("onMessageSend: %v", err)
	}

	var st MessageStatusPayload
	_ = json.Unmarshal(recv(t, alice).Payload, &st)
	if st.Status != "sent" {
		t.Fatalf("expected sent ack, got %+v", st)
	}
	expectEmpty(t, alice)

	// Nobody was reachable, so the ledger stays at sent.
	rec, err := f.status.Get(ctx, st.MessageID)
	if err != nil || rec.Status != StatusSent {
		t.Fatalf("ledger state wrong: %+v err=%v", rec, err)
	}
}

func TestGateway_MessageSendRejectsOutsiders(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	carol := f.connect(t, "carol", "conv-other")
	env := sendEnvelope(TypeMessageSend, MessageSendPayload{
		ConversationID: "conv-1", ClientMsgID: "c1", Body: "let me in",
	})
	if err := f.gw.onMessageSend(ctx, carol, env, time.Now().UTC()); err == nil {
		t.Fatalf("expected rejection for non-participant")
	}
}

func TestGateway_ReceiptNotifiesSenderOnce(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")

	now := time.Now().UTC()
	send := sendEnvelope(TypeMessageSend, MessageSendPayload{ConversationID: "conv-1", ClientMsgID: "c1", Body: "hi"})
	if err := f.gw.onMessageSend(ctx, alice, send, now); err != nil {
		t.Fatalf("onMessageSend: %v", err)
	}
	var ackSt MessageStatusPayload
	_ = json.Unmarshal(recv(t, alice).Payload, &ackSt)
	recv(t, bob)   // message.new
	recv(t, alice) // delivered push from fanout

	// Delivery already happened on fanout, so an explicit delivery receipt
	// from Bob is silently discarded.
	receipt := sendEnvelope(TypeMessageDelivered, MessageReceiptPayload{MessageID: ackSt.MessageID})
	f.gw.onReceipt(ctx, bob, receipt, StatusDelivered, now)
	expectEmpty(t, alice)
	expectEmpty(t, bob)

	var st MessageStatusPayload

	// Alice cannot mark her own message seen.
	seen := sendEnvelope(TypeMessageSeen, MessageReceiptPayload{MessageID: ackSt.MessageID})
	f.gw.onReceipt(ctx, alice, seen, StatusSeen, now)
	expectEmpty(t, alice)

	// Bob can; Alice is told.
	f.gw.onReceipt(ctx, bob, seen, StatusSeen, now)
	_ = json.Unmarshal(recv(t, alice).Payload, &st)
	if st.Status != "seen" {
		t.Fatalf("expected seen, got %+v", st)
	}
}

func TestGateway_ReceiptForUnknownMessage(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	bob := f.connect(t, "bob", "conv-1")
	receipt := sendEnvelope(TypeMessageSeen, MessageReceiptPayload{MessageID: "ghost"})
	f.gw.onReceipt(ctx, bob, receipt, StatusSeen, time.Now().UTC())

	env := recv(t, bob)
	if env.Type != TypeError {
		t.Fatalf("expected error envelope, got %s", env.Type)
	}
}

func TestGateway_ReceiptRejectsNonParticipant(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")
	mallory := f.connect(t, "mallory", "conv-other")

	now := time.Now().UTC()
	send := sendEnvelope(TypeMessageSend, MessageSendPayload{ConversationID: "conv-1", ClientMsgID: "c1", Body: "hi"})
	if err := f.gw.onMessageSend(ctx, alice, send, now); err != nil {
		t.Fatalf("onMessageSend: %v", err)
	}
	var ackSt MessageStatusPayload
	_ = json.Unmarshal(recv(t, alice).Payload, &ackSt)
	recv(t, bob)   // message.new
	recv(t, alice) // delivered push

	// Knowing a message id is not enough: receipts from outside the
	// conversation bounce with an error and never touch the ledger.
	receipt := sendEnvelope(TypeMessageSeen, MessageReceiptPayload{MessageID: ackSt.MessageID})
	f.gw.onReceipt(ctx, mallory, receipt, StatusSeen, now)

	env := recv(t, mallory)
	if env.Type != TypeError {
		t.Fatalf("expected error envelope, got %s", env.Type)
	}
	var ep ErrorPayload
	_ = json.Unmarshal(env.Payload, &ep)
	if ep.Code != "not_participant" {
		t.Fatalf("unexpected error code %q", ep.Code)
	}
	expectEmpty(t, alice)

	rec, err := f.status.Get(ctx, ackSt.MessageID)
	if err != nil || rec.Status != StatusDelivered {
		t.Fatalf("status must be unchanged: %+v err=%v", rec, err)
	}
}

func TestGateway_TypingRelay(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")

	env := sendEnvelope(TypeTyping, TypingPayload{ConversationID: "conv-1"})
	if err := f.gw.onTyping(ctx, alice, env, time.Now().UTC()); err != nil {
		t.Fatalf("onTyping: %v", err)
	}

	relayed := recv(t, bob)
	if relayed.Type != TypeTyping {
		t.Fatalf("expected typing, got %s", relayed.Type)
	}
	var p TypingPayload
	_ = json.Unmarshal(relayed.Payload, &p)
	if p.UserID != alice.UserID {
		t.Fatalf("typing must carry the origin identity, got %+v", p)
	}
	expectEmpty(t, alice)
}

func TestGateway_PresenceFanout(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	alice := f.connect(t, "alice", "conv-1")
	bob := f.connect(t, "bob", "conv-1")

	f.gw.setPresence(ctx, alice.UserID, true)

	env := recv(t, bob)
	if env.Type != TypePresence {
		t.Fatalf("expected presence, got %s", env.Type)
	}
	var p PresencePayload
	_ = json.Unmarshal(env.Payload, &p)
	if p.UserID != alice.UserID || !p.Online || p.LastSeenAt != nil {
		t.Fatalf("unexpected presence %+v", p)
	}
	expectEmpty(t, alice)

	u, _ := f.users.GetByEmail(ctx, "alice@example.com")
	if !u.Online {
		t.Fatalf("presence must be persisted")
	}

	f.gw.setPresence(ctx, alice.UserID, false)
	_ = json.Unmarshal(recv(t, bob).Payload, &p)
	if p.Online || p.LastSeenAt == nil {
		t.Fatalf("offline presence must carry last seen, got %+v", p)
	}
}

func TestGateway_OriginPolicy(t *testing.T) {
	f := newGatewayFixture(t)

	r := httptest.NewRequest("GET", "http://localhost/ws", nil)
	if err := f.gw.enforceOrigin(r); err == nil {
		t.Fatalf("missing origin must be rejected by default")
	}

	r.Header.Set("Origin", "http://localhost:3000")
	if err := f.gw.enforceOrigin(r); err != nil {
		t.Fatalf("localhost origin rejected: %v", err)
	}

	r.Header.Set("Origin", "http://evil.example.com")
	if err := f.gw.enforceOrigin(r); err == nil {
		t.Fatalf("unlisted origin must be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "http://localhost/ws?token=from-query", nil)
	if got := bearerToken(r); got != "from-query" {
		t.Fatalf("expected query token, got %q", got)
	}

	r.Header.Set("Authorization", "Bearer from-header")
	if got := bearerToken(r); got != "from-header" {
		t.Fatalf("header must win, got %q", got)
	}

	r = httptest.NewRequest("GET", "http://localhost/ws", nil)
	if got := bearerToken(r); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
