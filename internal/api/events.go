package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"evalgo.org/phoenix/internal/auth"
	"evalgo.org/phoenix/internal/rtstore"
)

// PanelEventType represents the type of a panel push event
type PanelEventType string

const (
	EventServerUpdated PanelEventType = "server_updated"
	EventCommandUpdate PanelEventType = "command_updated"
	EventAgentPresence PanelEventType = "agent_presence"
)

// PanelEvent is a change notification pushed to connected panels. Data holds
// the value the receiving user is allowed to read at Path.
type PanelEvent struct {
	Type      PanelEventType `json:"type"`
	Path      string         `json:"path"`
	Timestamp int64          `json:"timestamp"`
	Data      interface{}    `json:"data,omitempty"`
}

// eventClient represents one connected panel on the events endpoint.
type eventClient struct {
	hub  *EventHub
	conn *websocket.Conn
	auth rtstore.Auth
	send chan []byte
}

// EventHub fans store changes out to connected panels. Unlike the sync
// endpoint it is push-only: panels cannot write through it, and every event
// is re-checked against the receiving user's read predicates, so a panel
// only ever sees what its own grants allow.
type EventHub struct {
	store *rtstore.Store

	// Registered clients
	clients map[*eventClient]bool

	// Register requests from clients
	register chan *eventClient

	// Unregister requests from clients
	unregister chan *eventClient

	events chan rtstore.Event
	done   chan struct{}
	subs   []*rtstore.Subscription

	mu sync.RWMutex
}

// NewEventHub creates a new hub over the given store and starts its fan-out
// loop. Store subscriptions are attached by Start.
func NewEventHub(store *rtstore.Store) *EventHub {
	h := &EventHub{
		store:      store,
		clients:    make(map[*eventClient]bool),
		register:   make(chan *eventClient),
		unregister: make(chan *eventClient),
		events:     make(chan rtstore.Event, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// Start subscribes the hub to the watched subtrees.
func (h *EventHub) Start() error {
	for _, path := range []string{"servers", "commands", "agent"} {
		sub, err := h.store.Subscribe(path)
		if err != nil {
			return err
		}
		h.subs = append(h.subs, sub)
		go h.pump(sub)
	}
	return nil
}

// Stop closes the subscriptions and stops the loop.
func (h *EventHub) Stop() {
	close(h.done)
	for _, sub := range h.subs {
		sub.Close()
	}
}

func (h *EventHub) pump(sub *rtstore.Subscription) {
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			select {
			case h.events <- ev:
			case <-h.done:
				return
			}
		case <-h.done:
			return
		}
	}
}

// run is the hub's main loop.
func (h *EventHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("Events client connected: %s (total: %d)", client.auth.UID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("Events client disconnected (total: %d)", total)

		case ev := <-h.events:
			h.deliver(ev)

		case <-h.done:
			return
		}
	}
}

// deliver pushes one store event to every client whose grants admit it.
func (h *EventHub) deliver(ev rtstore.Event) {
	eventType, ok := classifyEvent(ev.Path)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		data := ev.Value
		if !client.auth.Elevated {
			value, err := h.store.Get(client.auth, ev.Path)
			if err != nil {
				continue // not readable by this user
			}
			data = value
		}

		message, err := json.Marshal(PanelEvent{
			Type:      eventType,
			Path:      ev.Path,
			Timestamp: ev.Timestamp,
			Data:      data,
		})
		if err != nil {
			continue
		}

		select {
		case client.send <- message:
		default:
			// Client is slow or disconnected, remove it
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// classifyEvent maps a store path to a panel event type. Replay events on
// the bare subtree roots carry no useful payload and are suppressed.
func classifyEvent(path string) (PanelEventType, bool) {
	switch {
	case strings.HasPrefix(path, "servers/"):
		return EventServerUpdated, true
	case strings.HasPrefix(path, "commands/"):
		return EventCommandUpdate, true
	case path == "agent/status" || strings.HasPrefix(path, "agent/status/"):
		return EventAgentPresence, true
	}
	return "", false
}

// Handle handles GET /ws/events: push-only change notifications for the web
// panels. The socket is authenticated at upgrade like the sync endpoint.
func (h *EventHub) Handle(c echo.Context) error {
	sa := auth.GetStoreAuth(c)
	if sa.Anonymous() && !sa.Elevated {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &eventClient{
		hub:  h,
		conn: ws,
		auth: sa,
		send: make(chan []byte, sendBuffer),
	}
	h.register <- client

	go client.writePump()
	client.readPump()

	return nil
}

// readPump discards client messages and watches for disconnect.
func (c *eventClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Events client error: %v", err)
			}
			break
		}
		// We don't expect messages from clients, just ignore them
	}
}

// writePump pumps hub messages to the websocket connection.
func (c *eventClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
