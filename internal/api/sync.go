package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/internal/auth"
	"evalgo.org/phoenix/internal/rtstore"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the CORS middleware; the socket
		// itself is gated by token authentication.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Outbound message buffer per connection
	sendBuffer = 256
)

// SyncHandler serves the websocket store sync endpoint. A connection is
// authenticated once at upgrade time; every operation on the socket then runs
// under that identity. The agent connects with its elevated service token,
// panel browsers with ordinary user tokens, and the store's access predicates
// decide what each may read or write.
type SyncHandler struct {
	store *rtstore.Store
}

// NewSyncHandler creates a sync handler over the given store.
func NewSyncHandler(store *rtstore.Store) *SyncHandler {
	return &SyncHandler{store: store}
}

// Handle upgrades the connection and runs the sync session. The route must be
// behind the auth middleware so claims are present on the context.
func (h *SyncHandler) Handle(c echo.Context) error {
	sa := auth.GetStoreAuth(c)
	if sa.Anonymous() && !sa.Elevated {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conn := &syncConn{
		conn:  ws,
		auth:  sa,
		store: h.store,
		send:  make(chan rtstore.ServerMessage, sendBuffer),
		done:  make(chan struct{}),
	}

	log.Printf("Sync client connected: %s (elevated=%v)", sa.UID, sa.Elevated)

	go conn.writePump()
	conn.readLoop()

	return nil
}

// syncConn is one authenticated sync session.
type syncConn struct {
	conn  *websocket.Conn
	auth  rtstore.Auth
	store *rtstore.Store

	send chan rtstore.ServerMessage
	done chan struct{}

	mu     sync.Mutex
	subs   []*rtstore.Subscription
	closed bool
}

// readLoop reads client operations until the connection drops.
func (sc *syncConn) readLoop() {
	defer sc.close()

	_ = sc.conn.SetReadDeadline(time.Now().Add(pongWait))
	sc.conn.SetPongHandler(func(string) error {
		_ = sc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg rtstore.ClientMessage
		if err := sc.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Sync client %s read error: %v", sc.auth.UID, err)
			}
			return
		}
		sc.handle(msg)
	}
}

// handle dispatches one client operation.
func (sc *syncConn) handle(msg rtstore.ClientMessage) {
	switch msg.Type {
	case rtstore.OpGet:
		value, err := sc.store.Get(sc.auth, msg.Path)
		if err != nil {
			sc.fail(msg.Seq, err)
			return
		}
		sc.reply(rtstore.ServerMessage{
			Type: rtstore.MsgResult, Seq: msg.Seq, Path: msg.Path, Value: value,
		})

	case rtstore.OpSet:
		value, err := decodeValue(msg.Value)
		if err != nil {
			sc.fail(msg.Seq, err)
			return
		}
		sc.finish(msg.Seq, sc.store.Set(sc.auth, msg.Path, value))

	case rtstore.OpUpdate:
		var fields map[string]any
		if err := json.Unmarshal(msg.Value, &fields); err != nil {
			sc.fail(msg.Seq, err)
			return
		}
		sc.finish(msg.Seq, sc.store.Update(sc.auth, msg.Path, fields))

	case rtstore.OpCreate:
		value, err := decodeValue(msg.Value)
		if err != nil {
			sc.fail(msg.Seq, err)
			return
		}
		sc.finish(msg.Seq, sc.store.Create(sc.auth, msg.Path, value))

	case rtstore.OpSubscribe:
		sc.subscribe(msg)

	default:
		sc.reply(rtstore.ServerMessage{
			Type: rtstore.MsgError, Seq: msg.Seq, Error: "unknown operation: " + msg.Type,
		})
	}
}

// subscribe registers a store subscription and forwards its events for the
// lifetime of the connection. Non-elevated callers must be able to read the
// path before they may watch it.
func (sc *syncConn) subscribe(msg rtstore.ClientMessage) {
	if !sc.auth.Elevated {
		if _, err := sc.store.Get(sc.auth, msg.Path); err != nil {
			sc.fail(msg.Seq, err)
			return
		}
	}

	sub, err := sc.store.Subscribe(msg.Path)
	if err != nil {
		sc.fail(msg.Seq, err)
		return
	}

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		sub.Close()
		return
	}
	sc.subs = append(sc.subs, sub)
	sc.mu.Unlock()

	go sc.forward(sub)

	sc.reply(rtstore.ServerMessage{
		Type: rtstore.MsgResult, Seq: msg.Seq, Path: msg.Path,
	})
}

// forward pushes subscription events to the client, re-checking read access
// per event for non-elevated sessions. An event under a subscribed path can
// carry data the subscriber's grant was revoked from since subscribing.
func (sc *syncConn) forward(sub *rtstore.Subscription) {
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			out := rtstore.ServerMessage{
				Type: rtstore.MsgEvent, Path: ev.Path, Value: ev.Value, Timestamp: ev.Timestamp,
			}
			if !sc.auth.Elevated {
				value, err := sc.store.Get(sc.auth, ev.Path)
				if err != nil {
					continue // no longer readable; drop silently
				}
				out.Value = value
			}
			sc.reply(out)
		case <-sc.done:
			return
		}
	}
}

// reply queues a message for the write pump, disconnecting slow consumers.
func (sc *syncConn) reply(msg rtstore.ServerMessage) {
	select {
	case sc.send <- msg:
	case <-sc.done:
	default:
		log.Printf("Sync client %s cannot keep up, disconnecting", sc.auth.UID)
		sc.close()
	}
}

func (sc *syncConn) finish(seq int64, err error) {
	if err != nil {
		sc.fail(seq, err)
		return
	}
	sc.reply(rtstore.ServerMessage{Type: rtstore.MsgResult, Seq: seq})
}

func (sc *syncConn) fail(seq int64, err error) {
	sc.reply(rtstore.ServerMessage{Type: rtstore.MsgError, Seq: seq, Error: wireError(err)})
}

// writePump writes queued messages and keeps the connection alive with pings.
func (sc *syncConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sc.close()
	}()

	for {
		select {
		case msg, ok := <-sc.send:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sc.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-sc.done:
			return

		case <-ticker.C:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the session down once: unsubscribes everything and closes the
// socket.
func (sc *syncConn) close() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	subs := sc.subs
	sc.subs = nil
	sc.mu.Unlock()

	close(sc.done)
	for _, sub := range subs {
		sub.Close()
	}
	_ = sc.conn.Close()

	log.Printf("Sync client disconnected: %s", sc.auth.UID)
}

// decodeValue unmarshals a raw operation payload. A missing payload decodes
// to nil, which the store treats as a delete.
func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// wireError maps store errors to stable wire strings.
func wireError(err error) string {
	switch {
	case errors.Is(err, rtstore.ErrPermissionDenied):
		return "permission denied"
	case errors.Is(err, rtstore.ErrAlreadyExists):
		return "already exists"
	default:
		return err.Error()
	}
}
