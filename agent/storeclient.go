package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"evalgo.org/phoenix/internal/rtstore"
)

const (
	// Reconnect backoff bounds. Doubles from min to max, resets on a
	// successful connection.
	reconnectMinDelay = 1 * time.Second
	reconnectMaxDelay = 60 * time.Second

	// requestTimeout bounds how long a store operation waits for its reply.
	requestTimeout = 10 * time.Second

	// subBuffer is the per-subscription event buffer. Events beyond it are
	// dropped; the next full-tree replay restores consistency.
	subBuffer = 256
)

// ErrClientClosed is returned for operations on a closed sync client.
var ErrClientClosed = errors.New("sync client closed")

// SyncClient is the agent's websocket connection to the panel's realtime
// store. It reconnects with bounded exponential backoff and re-issues every
// subscription after each reconnect, so consumers see a fresh replay instead
// of a silent gap.
type SyncClient struct {
	url   string
	token string

	mu      sync.Mutex
	conn    *websocket.Conn
	seq     int64
	pending map[int64]chan rtstore.ServerMessage
	subs    map[string]chan rtstore.Event
	closed  bool

	connected chan struct{} // closed once the first connection is up
	connOnce  sync.Once
	done      chan struct{}
}

// NewSyncClient creates a sync client for the given ws:// URL. The token is
// the agent's elevated service credential.
func NewSyncClient(url, token string) *SyncClient {
	return &SyncClient{
		url:       url,
		token:     token,
		pending:   make(map[int64]chan rtstore.ServerMessage),
		subs:      make(map[string]chan rtstore.Event),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start connects and keeps the connection alive until the context is
// cancelled. It blocks until the first connection succeeds or ctx ends.
func (c *SyncClient) Start(ctx context.Context) error {
	go c.run(ctx)

	select {
	case <-c.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the connect/read/reconnect loop.
func (c *SyncClient) run(ctx context.Context) {
	delay := reconnectMinDelay

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			log.Printf("Store connection failed: %v (retrying in %s)", err, delay)
			select {
			case <-ctx.Done():
				c.shutdown()
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		delay = reconnectMinDelay
		log.Printf("Connected to store at %s", c.url)

		c.mu.Lock()
		c.conn = conn
		paths := make([]string, 0, len(c.subs))
		for path := range c.subs {
			paths = append(paths, path)
		}
		c.mu.Unlock()

		c.connOnce.Do(func() { close(c.connected) })

		// Re-issue subscriptions; the server replays current values.
		for _, path := range paths {
			if err := c.sendSubscribe(path); err != nil {
				log.Printf("Failed to resubscribe to %s: %v", path, err)
			}
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.failPending(fmt.Errorf("connection lost"))
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			c.shutdown()
			return
		default:
		}

		log.Printf("Store connection lost, reconnecting")
	}
}

// dial opens the websocket with the agent credential.
func (c *SyncClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, header)
	return conn, err
}

// readLoop dispatches server messages until the connection breaks.
func (c *SyncClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg rtstore.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return
		}

		switch msg.Type {
		case rtstore.MsgEvent:
			c.dispatchEvent(rtstore.Event{
				Path:      msg.Path,
				Value:     msg.Value,
				Timestamp: msg.Timestamp,
			})
		case rtstore.MsgResult, rtstore.MsgError:
			c.mu.Lock()
			ch, ok := c.pending[msg.Seq]
			if ok {
				delete(c.pending, msg.Seq)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		}
	}
}

// dispatchEvent fans an event out to matching subscriptions. A subscription
// matches its own path and everything beneath it.
func (c *SyncClient) dispatchEvent(ev rtstore.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path, ch := range c.subs {
		if ev.Path != path && !strings.HasPrefix(ev.Path, path+"/") {
			continue
		}
		select {
		case ch <- ev:
		default:
			// Slow consumer; the next replay catches it up.
			log.Printf("Dropping event for slow subscription %s", path)
		}
	}
}

// failPending rejects all in-flight requests. Caller holds the lock.
func (c *SyncClient) failPending(err error) {
	for seq, ch := range c.pending {
		delete(c.pending, seq)
		ch <- rtstore.ServerMessage{Type: rtstore.MsgError, Seq: seq, Error: err.Error()}
	}
}

// shutdown closes all subscription channels.
func (c *SyncClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.failPending(ErrClientClosed)
	for path, ch := range c.subs {
		close(ch)
		delete(c.subs, path)
	}
	close(c.done)
}

// request sends one operation and waits for its reply.
func (c *SyncClient) request(op, path string, value any) (*rtstore.ServerMessage, error) {
	var raw json.RawMessage
	if value != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value: %w", err)
		}
		raw = data
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("not connected")
	}
	c.seq++
	seq := c.seq
	reply := make(chan rtstore.ServerMessage, 1)
	c.pending[seq] = reply

	msg := rtstore.ClientMessage{Type: op, Seq: seq, Path: path, Value: raw}
	err := conn.WriteJSON(msg)
	if err != nil {
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to send %s: %w", op, err)
	}
	c.mu.Unlock()

	select {
	case resp := <-reply:
		if resp.Type == rtstore.MsgError {
			return nil, fmt.Errorf("store %s %s: %s", op, path, resp.Error)
		}
		return &resp, nil
	case <-time.After(requestTimeout):
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("store %s %s: timed out", op, path)
	}
}

// sendSubscribe issues the subscribe operation without waiting for events.
func (c *SyncClient) sendSubscribe(path string) error {
	_, err := c.request(rtstore.OpSubscribe, path, nil)
	return err
}

// Get reads the value at path.
func (c *SyncClient) Get(path string) (any, error) {
	resp, err := c.request(rtstore.OpGet, path, nil)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Set writes the value at path.
func (c *SyncClient) Set(path string, value any) error {
	_, err := c.request(rtstore.OpSet, path, value)
	return err
}

// Update merges fields into the record at path.
func (c *SyncClient) Update(path string, fields map[string]any) error {
	_, err := c.request(rtstore.OpUpdate, path, fields)
	return err
}

// Create writes the value at path only if the path is empty.
func (c *SyncClient) Create(path string, value any) error {
	_, err := c.request(rtstore.OpCreate, path, value)
	return err
}

// Subscribe registers for events at path and beneath it. The server replays
// the current value as the first event, again after every reconnect.
func (c *SyncClient) Subscribe(path string) (<-chan rtstore.Event, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if _, exists := c.subs[path]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", path)
	}
	ch := make(chan rtstore.Event, subBuffer)
	c.subs[path] = ch
	c.mu.Unlock()

	if err := c.sendSubscribe(path); err != nil {
		c.mu.Lock()
		delete(c.subs, path)
		c.mu.Unlock()
		close(ch)
		return nil, err
	}

	return ch, nil
}
