// Package gateway is the websocket front of the live-connection core:
// it authenticates handshakes, registers connections with the presence
// registry and routes every duplex event to the relay or the call
// coordinator.
package gateway

import (
	"chat-core/auth"
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type Gateway struct {
	log          *slog.Logger
	verifier     contract.TokenVerifier
	presence     contract.IPresence
	deps         collaborators
	upgrader     websocket.Upgrader
	iceServers   []event.IceServer
	historyLimit int
	sendBuffer   int
}

// collaborators groups the services the event loop dispatches into.
type collaborators struct {
	relay    Relay
	calls    CallCoordinator
	messages contract.MessageStore
	statuses contract.StatusStore
}

// Relay is the message/typing side of the event surface.
type Relay interface {
	SendMessage(ctx context.Context, senderID string, p event.SendMessagePayload) error
	Typing(ctx context.Context, senderID, recipientID string, stopped bool) error
}

// CallCoordinator is the signaling side of the event surface.
type CallCoordinator interface {
	Request(ctx context.Context, caller domain.Identity, origin contract.EventSink, p event.CallRequestPayload) error
	Accept(ctx context.Context, senderID string, p event.CallAnswerPayload) error
	Reject(ctx context.Context, senderID string, p event.CallAnswerPayload) error
	End(ctx context.Context, senderID string, p event.CallAnswerPayload) error
	Signal(ctx context.Context, senderID, name string, p event.SignalPayload) error
	Disconnect(ctx context.Context, userID string)
}

type Options struct {
	IceServers   []string
	HistoryLimit int
	SendBuffer   int
}

func New(log *slog.Logger, verifier contract.TokenVerifier, presence contract.IPresence,
	relay Relay, calls CallCoordinator, messages contract.MessageStore,
	statuses contract.StatusStore, opts Options) *Gateway {
	ice := make([]event.IceServer, 0, len(opts.IceServers))
	for _, url := range opts.IceServers {
		ice = append(ice, event.IceServer{URLs: url})
	}

	return &Gateway{
		log:      log,
		verifier: verifier,
		presence: presence,
		deps: collaborators{
			relay:    relay,
			calls:    calls,
			messages: messages,
			statuses: statuses,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		iceServers:   ice,
		historyLimit: opts.HistoryLimit,
		sendBuffer:   opts.SendBuffer,
	}
}

// Handler exposes the duplex endpoint.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	return mux
}

// handleWS authenticates the handshake, upgrades the socket and runs
// the connection's event loop until the peer goes away. A missing or
// invalid credential refuses the connection with no retry; the client
// must come back with a fresh token.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractToken(r)
	if err != nil {
		g.log.Warn("Refusing connection without credential", "remote", r.RemoteAddr)
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		g.log.Warn("Refusing connection with invalid credential", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("Upgrade failed", "err", err)
		return
	}

	conn := newConnection(g.log, ws, identity.UserID, g.sendBuffer)
	g.log.Info(fmt.Sprintf("User authenticated: %s (ID: %s)", identity.Username, identity.UserID),
		"conn", conn.ID)

	ctx := r.Context()
	g.register(ctx, identity, conn)
	go conn.writePump()

	g.readLoop(ctx, identity, conn)
	g.deregister(ctx, identity, conn)
}

// register files the connection under its identity, pushes the one-time
// signaling configuration and announces the user to everyone else. The
// persisted status write is best-effort: a failing store must not cost
// the user their connection.
func (g *Gateway) register(ctx context.Context, identity domain.Identity, conn *Connection) {
	g.presence.Add(identity.UserID, conn.ID, identity.Username, conn)

	if err := g.deps.statuses.UpdateStatus(identity.UserID, true); err != nil {
		g.log.Error("Failed to persist online status", "user", identity.UserID, "err", err)
	}

	_ = conn.Consume(ctx, event.Event{
		Name: event.WebRTCConfig,
		Data: event.WebRTCConfigPayload{IceServers: g.iceServers},
	})

	g.broadcast(ctx, conn.ID, event.Event{
		Name: event.UserOnline,
		Data: event.UserPresencePayload{UserID: identity.UserID},
	})
	g.log.Info(fmt.Sprintf("User %s is online", identity.Username))
}

// deregister drops the handle; when it was the identity's last one, the
// offline transition fires: persisted status, offline broadcast, and a
// warning when the departing user still held call state (their peer
// stays in-call until an explicit callEnded arrives).
func (g *Gateway) deregister(ctx context.Context, identity domain.Identity, conn *Connection) {
	inCall, callID := g.presence.CallState(identity.UserID)
	offline := g.presence.Remove(identity.UserID, conn.ID)
	conn.close()

	if !offline {
		g.log.Debug("Device disconnected, user still online", "user", identity.UserID, "conn", conn.ID)
		return
	}

	if inCall {
		g.log.Warn("User went fully offline while in a call; counterpart stays in-call until an explicit callEnded",
			"user", identity.UserID, "call_id", callID)
	}
	g.deps.calls.Disconnect(ctx, identity.UserID)

	if err := g.deps.statuses.UpdateStatus(identity.UserID, false); err != nil {
		g.log.Error("Failed to persist offline status", "user", identity.UserID, "err", err)
	}

	g.broadcast(ctx, conn.ID, event.Event{
		Name: event.UserOffline,
		Data: event.UserPresencePayload{UserID: identity.UserID},
	})
	g.log.Info(fmt.Sprintf("User %s is now fully offline", identity.Username))
}

func (g *Gateway) broadcast(ctx context.Context, exceptConn string, e event.Event) {
	for _, sink := range g.presence.AllSinksExcept(exceptConn) {
		_ = sink.Consume(ctx, e)
	}
}

// readLoop pumps frames off the socket and dispatches them. A single
// malformed frame or failed operation is logged and skipped; it never
// tears the connection down.
func (g *Gateway) readLoop(ctx context.Context, identity domain.Identity, conn *Connection) {
	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debug("Read error", "conn", conn.ID, "err", err)
			}
			return
		}

		var env event.Envelope
		if err = json.Unmarshal(frame, &env); err != nil {
			g.log.Warn("Dropping malformed frame", "conn", conn.ID, "err", err)
			continue
		}

		if err = g.dispatch(ctx, identity, conn, env); err != nil {
			g.log.Debug("Event dropped", "event", env.Event, "user", identity.UserID, "err", err)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, identity domain.Identity,
	conn *Connection, env event.Envelope) error {
	switch env.Event {
	case event.SendMessage:
		var p event.SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		return g.deps.relay.SendMessage(ctx, identity.UserID, p)

	case event.Typing, event.StoppedTyping:
		var p event.TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		return g.deps.relay.Typing(ctx, identity.UserID, p.RecipientID, env.Event == event.StoppedTyping)

	case event.CallRequest:
		var p event.CallRequestPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		return g.deps.calls.Request(ctx, identity, conn, p)

	case event.CallAccepted, event.CallRejected, event.CallEnded:
		var p event.CallAnswerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		switch env.Event {
		case event.CallAccepted:
			return g.deps.calls.Accept(ctx, identity.UserID, p)
		case event.CallRejected:
			return g.deps.calls.Reject(ctx, identity.UserID, p)
		default:
			return g.deps.calls.End(ctx, identity.UserID, p)
		}

	case event.Offer, event.Answer, event.IceCandidate:
		var p event.SignalPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		return g.deps.calls.Signal(ctx, identity.UserID, env.Event, p)

	case event.GetRecentMessages:
		var p event.GetRecentMessagesPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		if p.OtherUserID == "" {
			return nil
		}
		messages, err := g.deps.messages.FindRecent(identity.UserID, p.OtherUserID, g.historyLimit)
		if err != nil {
			return err
		}
		return conn.Consume(ctx, event.Event{Name: event.RecentMessages, Data: messages})

	default:
		g.log.Debug("Unknown event", "event", env.Event, "user", identity.UserID)
		return nil
	}
}
