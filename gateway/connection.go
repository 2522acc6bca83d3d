package gateway

import (
	"chat-core/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// envelope is the outgoing frame shape; incoming frames decode into
// event.Envelope instead to keep the payload raw until dispatch.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Connection is one duplex channel owned by the presence registry entry
// it is filed under. It implements contract.EventSink: Consume hands
// the frame to the write pump through a bounded queue and never blocks
// the caller; a full queue drops the frame.
type Connection struct {
	ID     string
	userID string
	log    *slog.Logger
	ws     *websocket.Conn
	send   chan event.Event

	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(log *slog.Logger, ws *websocket.Conn, userID string, sendBuffer int) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Connection{
		ID:     uuid.NewString(),
		userID: userID,
		log:    log,
		ws:     ws,
		send:   make(chan event.Event, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Consume queues one outgoing frame. Dropping on a full queue keeps a
// slow device from stalling relay and presence paths for everyone else.
func (c *Connection) Consume(ctx context.Context, e event.Event) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection %s is closed", c.ID)
	default:
	}

	select {
	case c.send <- e:
		return nil
	default:
		return fmt.Errorf("send queue full on connection %s, dropping %s", c.ID, e.Name)
	}
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings. One writer goroutine per connection;
// the websocket does not allow concurrent writers.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case e := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			frame, err := json.Marshal(envelope{Event: e.Name, Data: e.Data})
			if err != nil {
				c.log.Error("Failed to marshal outgoing frame", "event", e.Name, "err", err)
				continue
			}
			if err = c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed, closing connection", "conn", c.ID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close signals the pumps to stop. Idempotent; the send channel is
// never closed so concurrent broadcasters cannot panic.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
