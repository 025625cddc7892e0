package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/phoenix/internal/auth"
	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/models"
)

func newEventsTestServer(t *testing.T) (*rtstore.Store, *EventHub, *httptest.Server) {
	t.Helper()

	store := rtstore.New(rtstore.DefaultRules())
	hub := NewEventHub(store)
	require.NoError(t, hub.Start())
	t.Cleanup(hub.Stop)

	e := echo.New()
	e.GET("/ws/events", hub.Handle, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := c.QueryParam("uid")
			if uid == "" {
				return next(c)
			}
			claims := &auth.Claims{UserID: uid, Username: uid}
			if c.QueryParam("role") == "agent" {
				claims.Roles = []models.Role{models.RoleAgent}
				claims.MarkElevated()
			}
			c.Set(auth.ContextKeyClaims, claims)
			return next(c)
		}
	})

	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	return store, hub, ts
}

func dialEvents(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	if query != "" {
		url += "?" + query
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readPanelEvent reads events until match returns true, failing the test if
// nothing matches within the deadline.
func readPanelEvent(t *testing.T, conn *websocket.Conn, match func(PanelEvent) bool) PanelEvent {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "no matching event before deadline")

		var ev PanelEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		if match(ev) {
			return ev
		}
	}
}

// waitForClients blocks until the hub has registered n clients. Registration
// happens after the websocket handshake, so tests must not write events
// before the client has landed in the hub.
func waitForClients(t *testing.T, hub *EventHub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEventsRejectsAnonymous(t *testing.T) {
	_, _, ts := newEventsTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestEventsPushesServerUpdates(t *testing.T) {
	store, hub, ts := newEventsTestServer(t)
	seedServer(t, store, "srv-1", "alice")

	conn := dialEvents(t, ts, "uid=alice")
	waitForClients(t, hub, 1)

	require.NoError(t, store.Update(syncElevated, "servers/srv-1/status", map[string]any{
		"state": "running",
	}))

	ev := readPanelEvent(t, conn, func(e PanelEvent) bool {
		return e.Path == "servers/srv-1/status"
	})
	assert.Equal(t, EventServerUpdated, ev.Type)

	status, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "running", status["state"])
}

func TestEventsFilteredByGrants(t *testing.T) {
	store, hub, ts := newEventsTestServer(t)
	seedServer(t, store, "srv-1", "alice")
	seedServer(t, store, "srv-2", "bob")

	conn := dialEvents(t, ts, "uid=alice")
	waitForClients(t, hub, 1)

	require.NoError(t, store.Update(syncElevated, "servers/srv-2/status", map[string]any{
		"state": "running",
	}))
	require.NoError(t, store.Update(syncElevated, "servers/srv-1/status", map[string]any{
		"state": "stopped",
	}))

	// The srv-1 event arrives; the srv-2 event written before it must not.
	// Delivery is ordered per client, so seeing srv-1 proves srv-2 was
	// dropped rather than still in flight.
	ev := readPanelEvent(t, conn, func(e PanelEvent) bool {
		return strings.HasPrefix(e.Path, "servers/")
	})
	assert.Equal(t, "servers/srv-1/status", ev.Path)
}

func TestEventsAgentPresenceIsWorldReadable(t *testing.T) {
	store, hub, ts := newEventsTestServer(t)

	conn := dialEvents(t, ts, "uid=carol")
	waitForClients(t, hub, 1)

	require.NoError(t, store.Set(syncElevated, "agent/status", map[string]any{
		"online":   true,
		"hostname": "gamebox",
	}))

	ev := readPanelEvent(t, conn, func(e PanelEvent) bool {
		return e.Path == "agent/status"
	})
	assert.Equal(t, EventAgentPresence, ev.Type)

	presence, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, presence["online"])
}

func TestEventsElevatedSeesCommands(t *testing.T) {
	store, hub, ts := newEventsTestServer(t)

	conn := dialEvents(t, ts, "uid=agent:host&role=agent")
	waitForClients(t, hub, 1)

	require.NoError(t, store.Set(syncElevated, "commands/cmd-1", map[string]any{
		"id":          "cmd-1",
		"serverId":    "srv-1",
		"action":      "start",
		"requestedBy": "alice",
		"requestedAt": time.Now().UnixMilli(),
		"status":      "pending",
	}))

	ev := readPanelEvent(t, conn, func(e PanelEvent) bool {
		return e.Path == "commands/cmd-1"
	})
	assert.Equal(t, EventCommandUpdate, ev.Type)
}

func TestClassifyEvent(t *testing.T) {
	tests := []struct {
		path      string
		wantType  PanelEventType
		wantMatch bool
	}{
		{"servers/srv-1", EventServerUpdated, true},
		{"servers/srv-1/status", EventServerUpdated, true},
		{"commands/cmd-1", EventCommandUpdate, true},
		{"agent/status", EventAgentPresence, true},
		{"servers", "", false},
		{"commands", "", false},
		{"agent", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			eventType, ok := classifyEvent(tt.path)
			assert.Equal(t, tt.wantMatch, ok)
			assert.Equal(t, tt.wantType, eventType)
		})
	}
}

func TestEventHubClientCount(t *testing.T) {
	_, hub, ts := newEventsTestServer(t)

	assert.Equal(t, 0, hub.ClientCount())

	dialEvents(t, ts, "uid=alice")
	dialEvents(t, ts, "uid=bob")

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}
