package api

import (
	"encoding/json"
	"fmt"
	"net/http"
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

var syncElevated = rtstore.Auth{UID: "agent:test", Elevated: true}

// newSyncTestServer stands up the sync endpoint behind a test middleware that
// turns the uid/role query params into claims, standing in for the JWT
// middleware that does the same in production.
func newSyncTestServer(t *testing.T) (*rtstore.Store, *httptest.Server) {
	t.Helper()

	store := rtstore.New(rtstore.DefaultRules())

	e := echo.New()
	handler := NewSyncHandler(store)
	e.GET("/ws/sync", handler.Handle, func(next echo.HandlerFunc) echo.HandlerFunc {
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

	return store, ts
}

func dialSync(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sync"
	if query != "" {
		url += "?" + query
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendOp(t *testing.T, conn *websocket.Conn, op string, seq int64, path string, value any) {
	t.Helper()

	msg := rtstore.ClientMessage{Type: op, Seq: seq, Path: path}
	if value != nil {
		raw, err := json.Marshal(value)
		require.NoError(t, err)
		msg.Value = raw
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads server messages until match returns true, failing the test
// if nothing matches within the deadline. Subscriptions replay current state
// before live events, so tests must be able to skip past replay traffic.
func readUntil(t *testing.T, conn *websocket.Conn, match func(rtstore.ServerMessage) bool) rtstore.ServerMessage {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		var msg rtstore.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg), "no matching message before deadline")
		if match(msg) {
			return msg
		}
	}
}

func awaitReply(t *testing.T, conn *websocket.Conn, seq int64) rtstore.ServerMessage {
	t.Helper()
	return readUntil(t, conn, func(m rtstore.ServerMessage) bool { return m.Seq == seq })
}

func seedServer(t *testing.T, store *rtstore.Store, serverID string, uids ...string) {
	t.Helper()

	allowed := map[string]any{}
	for _, uid := range uids {
		allowed[uid] = true
	}
	require.NoError(t, store.Set(syncElevated, "servers/"+serverID, map[string]any{
		"id":           serverID,
		"name":         serverID,
		"allowedUsers": allowed,
	}))
}

func TestSyncRejectsAnonymous(t *testing.T) {
	_, ts := newSyncTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sync"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSyncGetRespectsGrants(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1", "alice")

	conn := dialSync(t, ts, "uid=alice")

	sendOp(t, conn, rtstore.OpGet, 1, "servers/srv-1", nil)
	reply := awaitReply(t, conn, 1)
	require.Equal(t, rtstore.MsgResult, reply.Type)
	value, ok := reply.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "srv-1", value["id"])

	// No grant, no read. Denial is indistinguishable from absence.
	sendOp(t, conn, rtstore.OpGet, 2, "servers/srv-hidden", nil)
	reply = awaitReply(t, conn, 2)
	assert.Equal(t, rtstore.MsgError, reply.Type)
	assert.Contains(t, reply.Error, "permission denied")
}

func TestSyncStatusWriteDeniedForUsers(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1", "alice")

	conn := dialSync(t, ts, "uid=alice")

	sendOp(t, conn, rtstore.OpSet, 1, "servers/srv-1/status", map[string]any{
		"state": "running", "lastUpdated": 1,
	})
	reply := awaitReply(t, conn, 1)
	assert.Equal(t, rtstore.MsgError, reply.Type)
	assert.Contains(t, reply.Error, "permission denied")
}

func TestSyncAgentWritesStatus(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1", "alice")

	agent := dialSync(t, ts, "uid=agent:test&role=agent")

	sendOp(t, agent, rtstore.OpUpdate, 1, "servers/srv-1/status", map[string]any{
		"state": "running", "lastUpdated": 42,
	})
	reply := awaitReply(t, agent, 1)
	require.Equal(t, rtstore.MsgResult, reply.Type)

	status, err := store.Get(syncElevated, "servers/srv-1/status")
	require.NoError(t, err)
	assert.Equal(t, "running", status.(map[string]any)["state"])
}

func TestSyncCommandCreateIsAppendOnly(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1", "alice")

	conn := dialSync(t, ts, "uid=alice")

	cmd := map[string]any{
		"id":          "cmd-1",
		"serverId":    "srv-1",
		"action":      "start",
		"requestedBy": "alice",
		"requestedAt": time.Now().UnixMilli(),
		"status":      models.CommandStatusPending,
	}

	sendOp(t, conn, rtstore.OpCreate, 1, "commands/cmd-1", cmd)
	reply := awaitReply(t, conn, 1)
	require.Equal(t, rtstore.MsgResult, reply.Type)

	// Creating the same command twice is rejected.
	sendOp(t, conn, rtstore.OpCreate, 2, "commands/cmd-1", cmd)
	reply = awaitReply(t, conn, 2)
	assert.Equal(t, rtstore.MsgError, reply.Type)
	assert.Contains(t, reply.Error, "already exists")

	// Mutating an existing command is rejected too.
	sendOp(t, conn, rtstore.OpSet, 3, "commands/cmd-1", cmd)
	reply = awaitReply(t, conn, 3)
	assert.Equal(t, rtstore.MsgError, reply.Type)

	_ = store
}

func TestSyncCommandCreateRejectsImpersonation(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1", "alice", "mallory")

	conn := dialSync(t, ts, "uid=mallory")

	sendOp(t, conn, rtstore.OpCreate, 1, "commands/cmd-2", map[string]any{
		"id":          "cmd-2",
		"serverId":    "srv-1",
		"action":      "start",
		"requestedBy": "alice", // not mallory
		"requestedAt": time.Now().UnixMilli(),
		"status":      models.CommandStatusPending,
	})
	reply := awaitReply(t, conn, 1)
	assert.Equal(t, rtstore.MsgError, reply.Type)

	value, err := store.Get(syncElevated, "commands/cmd-2")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestSyncSubscribeRequiresReadAccess(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1") // no grants

	conn := dialSync(t, ts, "uid=alice")

	sendOp(t, conn, rtstore.OpSubscribe, 1, "servers/srv-1", nil)
	reply := awaitReply(t, conn, 1)
	assert.Equal(t, rtstore.MsgError, reply.Type)

	_ = store
}

func TestSyncSubscribeReplaysAndForwards(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1", "alice")

	conn := dialSync(t, ts, "uid=alice")

	sendOp(t, conn, rtstore.OpSubscribe, 1, "servers/srv-1", nil)
	reply := awaitReply(t, conn, 1)
	require.Equal(t, rtstore.MsgResult, reply.Type)

	// Replay of the current record arrives first.
	ev := readUntil(t, conn, func(m rtstore.ServerMessage) bool {
		return m.Type == rtstore.MsgEvent && m.Path == "servers/srv-1"
	})
	require.NotNil(t, ev.Value)

	// A live elevated write is pushed to the subscriber.
	require.NoError(t, store.Update(syncElevated, "servers/srv-1/status", map[string]any{
		"state": "running", "lastUpdated": time.Now().UnixMilli(),
	}))

	ev = readUntil(t, conn, func(m rtstore.ServerMessage) bool {
		return m.Type == rtstore.MsgEvent && strings.HasPrefix(m.Path, "servers/srv-1/status")
	})
	require.NotNil(t, ev.Value)
}

func TestSyncAgentSeesAllEvents(t *testing.T) {
	store, ts := newSyncTestServer(t)

	agent := dialSync(t, ts, "uid=agent:test&role=agent")

	sendOp(t, agent, rtstore.OpSubscribe, 1, "commands", nil)
	reply := awaitReply(t, agent, 1)
	require.Equal(t, rtstore.MsgResult, reply.Type)

	// A user's submission is pushed to the elevated watcher even though the
	// agent holds no grant on the server.
	user := rtstore.Auth{UID: "alice"}
	seedServer(t, store, "srv-9", "alice")
	require.NoError(t, store.Create(user, "commands/cmd-9", map[string]any{
		"id":          "cmd-9",
		"serverId":    "srv-9",
		"action":      "restart",
		"requestedBy": "alice",
		"requestedAt": time.Now().UnixMilli(),
		"status":      models.CommandStatusPending,
	}))

	ev := readUntil(t, agent, func(m rtstore.ServerMessage) bool {
		return m.Type == rtstore.MsgEvent && m.Path == "commands/cmd-9"
	})
	value, ok := ev.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "restart", value["action"])
}

func TestSyncRevokedGrantStopsEvents(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1", "alice")

	conn := dialSync(t, ts, "uid=alice")

	sendOp(t, conn, rtstore.OpSubscribe, 1, "servers/srv-1", nil)
	require.Equal(t, rtstore.MsgResult, awaitReply(t, conn, 1).Type)

	// Revoke the grant, then write. The event must not reach alice.
	require.NoError(t, store.Set(syncElevated, "servers/srv-1/allowedUsers/alice", nil))
	require.NoError(t, store.Update(syncElevated, "servers/srv-1/status", map[string]any{
		"state": "running", "lastUpdated": time.Now().UnixMilli(),
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	for {
		var msg rtstore.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break // timed out with no leaked event
		}
		if msg.Type == rtstore.MsgEvent && strings.HasPrefix(msg.Path, "servers/srv-1/status") {
			t.Fatalf("revoked subscriber received %s", msg.Path)
		}
	}
}

func TestSyncUnknownOperation(t *testing.T) {
	_, ts := newSyncTestServer(t)

	conn := dialSync(t, ts, "uid=alice")

	sendOp(t, conn, "transact", 7, "servers/srv-1", nil)
	reply := awaitReply(t, conn, 7)
	assert.Equal(t, rtstore.MsgError, reply.Type)
	assert.Contains(t, reply.Error, "unknown operation")
}

func TestSyncConcurrentCommandBursts(t *testing.T) {
	store, ts := newSyncTestServer(t)
	seedServer(t, store, "srv-1", "alice")

	conn := dialSync(t, ts, "uid=alice")

	const n = 20
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("cmd-burst-%d", i)
		sendOp(t, conn, rtstore.OpCreate, int64(100+i), "commands/"+id, map[string]any{
			"id":          id,
			"serverId":    "srv-1",
			"action":      "start",
			"requestedBy": "alice",
			"requestedAt": time.Now().UnixMilli(),
			"status":      models.CommandStatusPending,
		})
	}

	for i := 0; i < n; i++ {
		reply := awaitReply(t, conn, int64(100+i))
		assert.Equal(t, rtstore.MsgResult, reply.Type)
	}

	for i := 0; i < n; i++ {
		value, err := store.Get(syncElevated, fmt.Sprintf("commands/cmd-burst-%d", i))
		require.NoError(t, err)
		assert.NotNil(t, value)
	}
}
