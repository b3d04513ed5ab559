package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/guard"
)

const (
	wsSubprotocolV1 = "parley.realtime.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Gateway is the WebSocket entrypoint of the realtime bridge.
//
// It authenticates the identity before upgrading, enforces origin policy,
// rate limits, and heartbeats, binds the transport in the Registry, and
// routes validated envelopes to the status ledger and conversation peers.
type Gateway struct {
	log          *slog.Logger
	guard        *guard.Guard
	registry     *Registry
	status       StatusStore
	participants ParticipantStore
	users        identity.Store

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, g *guard.Guard, status StatusStore, participants ParticipantStore, users identity.Store) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	gw := &Gateway{
		log:          log,
		guard:        g,
		registry:     NewRegistry(),
		status:       status,
		participants: participants,
		users:        users,
	}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	gw.devInsecure = envBoolWS("PARLEY_WS_DEV_INSECURE", false)

	gw.originRequired = envBoolWS("PARLEY_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	gw.allowedOrigins = envCSVWS("PARLEY_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	gw.originPatterns = deriveOriginPatternsFromAllowedOrigins(gw.allowedOrigins)

	gw.writeTimeout = envDurationWS("PARLEY_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	gw.readIdleTimeout = envDurationWS("PARLEY_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	gw.sendQueueSize = envIntWS("PARLEY_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if gw.sendQueueSize < wsMinSendQueueSize {
		gw.sendQueueSize = wsMinSendQueueSize
	}

	gw.heartbeatEvery = envDurationWS("PARLEY_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	gw.heartbeatTimeout = envDurationWS("PARLEY_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	gw.rateEvents = envIntWS("PARLEY_WS_RATE_EVENTS", rateLimitEvents)
	gw.rateWindow = envDurationWS("PARLEY_WS_RATE_WINDOW", rateLimitWindow)

	return gw
}

// Registry exposes the live transport registry, for presence queries.
func (g *Gateway) Registry() *Registry { return g.registry }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// bearerToken extracts the access token from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// HandleWS upgrades an HTTP request to a WebSocket transport and runs the realtime loop.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Authenticate before upgrading so an invalid token never gets a socket.
	principal, err := g.guard.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(principal.UserID, g.sendQueueSize)

	// Detach lifetime from the request so presence bookkeeping can finish
	// after the HTTP request context is torn down.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// One live transport per identity. A newer connection takes over the
	// mapping; the superseded transport is left to run out on its own and
	// its release is a no-op thanks to the generation check.
	if prev := g.registry.Bind(principal.UserID, client); prev != nil {
		g.log.Info("ws.superseded", "user_id", principal.UserID)
	}
	connectionsGauge.Inc()

	g.setPresence(ctx, principal.UserID, true)

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Registry release happens before client.Close so fanout to a dying
	// transport only ever drops, never panics.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			released := g.registry.ReleaseIf(principal.UserID, client.Gen)
			connectionsGauge.Dec()

			client.Close()
			_ = conn.Close(code, reason)
			cancel()

			// A superseded transport must not mark the identity offline:
			// the replacement is already live.
			if released {
				g.setPresence(context.WithoutCancel(ctx), principal.UserID, false)
			}
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "user_id", principal.UserID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "user_id", principal.UserID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "user_id", principal.UserID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}
		envelopesTotal.WithLabelValues(env.Type).Inc()

		switch env.Type {
		case TypeMessageSend:
			if err := g.onMessageSend(ctx, client, env, now); err != nil {
				g.trySendError(client, "send_failed", err.Error())
			}

		case TypeMessageDelivered:
			g.onReceipt(ctx, client, env, StatusDelivered, now)

		case TypeMessageSeen:
			g.onReceipt(ctx, client, env, StatusSeen, now)

		case TypeTyping, TypeTypingStop:
			if err := g.onTyping(ctx, client, env, now); err != nil {
				g.trySendError(client, "typing_failed", err.Error())
			}

		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

func (g *Gateway) onMessageSend(ctx context.Context, client *Client, env Envelope, now time.Time) error {
	var p MessageSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return errors.New("missing conversation_id")
	}
	if strings.TrimSpace(p.ClientMsgID) == "" {
		return errors.New("missing client_msg_id")
	}
	body := strings.TrimSpace(p.Body)
	if body == "" {
		return errors.New("empty body")
	}
	if len([]rune(body)) > maxMessageChars {
		return fmt.Errorf("message too long: max=%d chars", maxMessageChars)
	}

	ok, err := g.participants.IsParticipant(ctx, convID, client.UserID)
	if err != nil {
		return fmt.Errorf("participant check: %w", err)
	}
	if !ok {
		return errors.New("not a participant")
	}

	msgID, err := NewMessageID(now)
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	if err := g.status.Track(ctx, now, msgID, convID, client.UserID); err != nil {
		return fmt.Errorf("status track: %w", err)
	}

	// Ack the sender with the canonical id before fanout.
	ackPayload, _ := json.Marshal(MessageStatusPayload{
		ConversationID: convID,
		MessageID:      msgID,
		ClientMsgID:    p.ClientMsgID,
		Status:         StatusSent.String(),
		At:             now,
	})
	if !client.TrySend(newEnvelope(TypeMessageStatus, ackPayload, now)) {
		droppedTotal.Inc()
		return errors.New("backpressure: ack")
	}

	newPayload, _ := json.Marshal(MessageNewPayload{
		ConversationID: convID,
		MessageID:      msgID,
		ClientMsgID:    p.ClientMsgID,
		SenderID:       client.UserID,
		Body:           body,
		SentAt:         now,
	})
	newEnv := newEnvelope(TypeMessageNew, newPayload, now)

	// Fan out and record who the message actually reached. Landing on any
	// participant's live transport is what moves the status to delivered;
	// seen stays an explicit client acknowledgement.
	members, err := g.participants.Participants(ctx, convID)
	if err != nil {
		g.log.Error("ws.fanout.fail", "conversation_id", convID, "err", err)
		return nil
	}
	reachedBy := ""
	for _, m := range members {
		if m == client.UserID {
			continue
		}
		c := g.registry.Lookup(m)
		if c == nil {
			continue
		}
		if !c.TrySend(newEnv) {
			droppedTotal.Inc()
			continue
		}
		if reachedBy == "" {
			reachedBy = m
		}
	}
	if reachedBy == "" {
		return nil
	}

	rec, changed, err := g.status.Advance(ctx, now, msgID, StatusDelivered, reachedBy)
	if err != nil {
		g.log.Error("ws.deliver.fail", "message_id", msgID, "err", err)
		return nil
	}
	if changed {
		deliveredPayload, _ := json.Marshal(MessageStatusPayload{
			ConversationID: convID,
			MessageID:      msgID,
			ClientMsgID:    p.ClientMsgID,
			Status:         rec.Status.String(),
			By:             reachedBy,
			At:             rec.UpdatedAt,
		})
		if !client.TrySend(newEnvelope(TypeMessageStatus, deliveredPayload, now)) {
			droppedTotal.Inc()
		}
	}
	return nil
}

// onReceipt advances the status ledger for a delivery or seen report.
// Non-monotonic and own-message transitions are discarded without a reply;
// receipts for untracked messages get an error envelope.
func (g *Gateway) onReceipt(ctx context.Context, client *Client, env Envelope, to Status, now time.Time) {
	var p MessageReceiptPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.trySendError(client, "bad_receipt", "invalid payload")
		return
	}
	msgID := strings.TrimSpace(p.MessageID)
	if msgID == "" {
		g.trySendError(client, "bad_receipt", "missing message_id")
		return
	}

	// The status machine is scoped to the conversation's participant set:
	// a receipt from anyone else never touches the ledger.
	tracked, err := g.status.Get(ctx, msgID)
	if errors.Is(err, ErrUnknownMessage) {
		g.trySendError(client, "unknown_message", msgID)
		return
	}
	if err != nil {
		g.log.Error("ws.receipt.fail", "user_id", client.UserID, "message_id", msgID, "err", err)
		g.trySendError(client, "receipt_failed", "try again")
		return
	}
	ok, err := g.participants.IsParticipant(ctx, tracked.ConversationID, client.UserID)
	if err != nil {
		g.log.Error("ws.receipt.fail", "user_id", client.UserID, "message_id", msgID, "err", err)
		g.trySendError(client, "receipt_failed", "try again")
		return
	}
	if !ok {
		g.trySendError(client, "not_participant", msgID)
		return
	}

	rec, changed, err := g.status.Advance(ctx, now, msgID, to, client.UserID)
	if errors.Is(err, ErrUnknownMessage) {
		g.trySendError(client, "unknown_message", msgID)
		return
	}
	if err != nil {
		g.log.Error("ws.receipt.fail", "user_id", client.UserID, "message_id", msgID, "err", err)
		g.trySendError(client, "receipt_failed", "try again")
		return
	}
	if !changed {
		return
	}

	// Only the sender cares about the transition.
	sender := g.registry.Lookup(rec.SenderID)
	if sender == nil {
		return
	}
	payload, _ := json.Marshal(MessageStatusPayload{
		ConversationID: rec.ConversationID,
		MessageID:      rec.MessageID,
		Status:         rec.Status.String(),
		By:             client.UserID,
		At:             rec.UpdatedAt,
	})
	if !sender.TrySend(newEnvelope(TypeMessageStatus, payload, now)) {
		droppedTotal.Inc()
	}
}

func (g *Gateway) onTyping(ctx context.Context, client *Client, env Envelope, now time.Time) error {
	var p TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return errors.New("missing conversation_id")
	}

	ok, err := g.participants.IsParticipant(ctx, convID, client.UserID)
	if err != nil {
		return fmt.Errorf("participant check: %w", err)
	}
	if !ok {
		return errors.New("not a participant")
	}

	payload, _ := json.Marshal(TypingPayload{ConversationID: convID, UserID: client.UserID})
	g.fanout(ctx, convID, client.UserID, newEnvelope(env.Type, payload, now))
	return nil
}

// ---- presence ----

// setPresence records online state and announces it to conversation peers.
func (g *Gateway) setPresence(ctx context.Context, userID string, online bool) {
	now := time.Now().UTC()

	if err := g.users.SetPresence(ctx, userID, online, now); err != nil {
		g.log.Error("ws.presence.store.fail", "user_id", userID, "online", online, "err", err)
	}

	p := PresencePayload{UserID: userID, Online: online}
	if !online {
		p.LastSeenAt = &now
	}
	payload, _ := json.Marshal(p)
	env := newEnvelope(TypePresence, payload, now)

	for _, peer := range g.peersOf(ctx, userID) {
		c := g.registry.Lookup(peer)
		if c == nil {
			continue
		}
		if !c.TrySend(env) {
			droppedTotal.Inc()
		}
	}

	g.log.Info("ws.presence", "user_id", userID, "online", online)
}

// peersOf collects the distinct users sharing a conversation with userID.
func (g *Gateway) peersOf(ctx context.Context, userID string) []string {
	convs, err := g.participants.ConversationsOf(ctx, userID)
	if err != nil {
		g.log.Error("ws.peers.fail", "user_id", userID, "err", err)
		return nil
	}

	seen := make(map[string]struct{})
	for _, convID := range convs {
		members, err := g.participants.Participants(ctx, convID)
		if err != nil {
			g.log.Error("ws.peers.fail", "user_id", userID, "conversation_id", convID, "err", err)
			continue
		}
		for _, m := range members {
			if m != userID {
				seen[m] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	return out
}

// fanout delivers an envelope to every participant except the origin.
// Non-blocking: offline peers are skipped and full queues drop.
func (g *Gateway) fanout(ctx context.Context, conversationID, originUserID string, env Envelope) {
	members, err := g.participants.Participants(ctx, conversationID)
	if err != nil {
		g.log.Error("ws.fanout.fail", "conversation_id", conversationID, "err", err)
		return
	}
	for _, m := range members {
		if m == originUserID {
			continue
		}
		c := g.registry.Lookup(m)
		if c == nil {
			continue
		}
		if !c.TrySend(env) {
			droppedTotal.Inc()
		}
	}
}

// ---- send helpers ----

func (g *Gateway) trySendError(client *Client, code, msg string) {
	p, _ := json.Marshal(ErrorPayload{Code: code, Message: msg})
	if !client.TrySend(newEnvelope(TypeError, p, time.Now().UTC())) {
		droppedTotal.Inc()
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) Envelope {
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      newEnvelopeID(ts),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
