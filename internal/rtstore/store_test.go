package rtstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var elevated = Auth{Elevated: true}

func seedServer(t *testing.T, s *Store, id string, allowed ...string) {
	t.Helper()
	users := make(map[string]any)
	for _, uid := range allowed {
		users[uid] = true
	}
	err := s.Set(elevated, "servers/"+id, map[string]any{
		"id":           id,
		"name":         id,
		"allowedUsers": users,
	})
	require.NoError(t, err)
}

func TestGetDeniedWithoutGrant(t *testing.T) {
	s := New(DefaultRules())
	seedServer(t, s, "srv1", "u1")

	_, err := s.Get(Auth{UID: "u1"}, "servers/srv1")
	assert.NoError(t, err)

	_, err = s.Get(Auth{UID: "u2"}, "servers/srv1")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.Get(Auth{}, "servers/srv1")
	assert.ErrorIs(t, err, ErrPermissionDenied, "anonymous read must be denied")
}

func TestStatusWriteDeniedForOrdinaryCallers(t *testing.T) {
	s := New(DefaultRules())
	seedServer(t, s, "srv1", "u1")

	status := map[string]any{"state": "running", "lastUpdated": int64(1)}

	// Even a granted user must not write status directly.
	err := s.Set(Auth{UID: "u1"}, "servers/srv1/status", status)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The elevated credential may.
	err = s.Set(elevated, "servers/srv1/status", status)
	assert.NoError(t, err)

	got, err := s.Get(Auth{UID: "u1"}, "servers/srv1/status")
	require.NoError(t, err)
	assert.Equal(t, "running", got.(map[string]any)["state"])
}

func TestPresenceWorldReadableElevatedWritable(t *testing.T) {
	s := New(DefaultRules())

	err := s.Set(Auth{UID: "u1"}, "agent/status", map[string]any{"online": true})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, s.Set(elevated, "agent/status", map[string]any{"online": true}))

	// Readable even without identity.
	got, err := s.Get(Auth{}, "agent/status")
	require.NoError(t, err)
	assert.Equal(t, true, got.(map[string]any)["online"])
}

func TestDenyByDefault(t *testing.T) {
	s := New(DefaultRules())
	require.NoError(t, s.Set(elevated, "internal/secret", "x"))

	_, err := s.Get(Auth{UID: "u1"}, "internal/secret")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = s.Set(Auth{UID: "u1"}, "internal/secret", "y")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSubscribeReplaysCurrentValue(t *testing.T) {
	s := New(DefaultRules())
	seedServer(t, s, "srv1", "u1")

	sub, err := s.Subscribe("servers/srv1")
	require.NoError(t, err)
	defer sub.Close()

	ev := <-sub.Events()
	assert.Equal(t, "servers/srv1", ev.Path)
	require.NotNil(t, ev.Value)
	assert.Equal(t, "srv1", ev.Value.(map[string]any)["id"])
}

func TestSubscribeDeliversSubtreeWrites(t *testing.T) {
	s := New(DefaultRules())

	sub, err := s.Subscribe("commands")
	require.NoError(t, err)
	defer sub.Close()

	// Initial replay of the (empty) path.
	first := <-sub.Events()
	assert.Nil(t, first.Value)

	require.NoError(t, s.Set(elevated, "commands/cmd1", map[string]any{"id": "cmd1"}))

	ev := <-sub.Events()
	assert.Equal(t, "commands/cmd1", ev.Path)
	assert.NotZero(t, ev.Timestamp)
}

func TestClosedSubscriptionStopsDelivery(t *testing.T) {
	s := New(DefaultRules())

	sub, err := s.Subscribe("agent/status")
	require.NoError(t, err)
	<-sub.Events() // drain replay
	sub.Close()

	// Writes after Close must not panic and must not be delivered.
	require.NoError(t, s.Set(elevated, "agent/status", map[string]any{"online": true}))

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestLastWriterWinsStamps(t *testing.T) {
	s := New(DefaultRules())

	now := time.UnixMilli(1000)
	s.SetClock(func() time.Time { return now })
	require.NoError(t, s.Set(elevated, "agent/status", map[string]any{"online": true}))
	assert.Equal(t, int64(1000), s.Stamp("agent/status"))

	now = time.UnixMilli(2000)
	require.NoError(t, s.Set(elevated, "agent/status", map[string]any{"online": false}))
	assert.Equal(t, int64(2000), s.Stamp("agent/status"))

	got, err := s.Get(Auth{}, "agent/status")
	require.NoError(t, err)
	assert.Equal(t, false, got.(map[string]any)["online"])
}

func TestUpdateMergesFields(t *testing.T) {
	s := New(DefaultRules())
	require.NoError(t, s.Set(elevated, "commands/cmd1", map[string]any{
		"id":     "cmd1",
		"status": "pending",
	}))

	require.NoError(t, s.Update(elevated, "commands/cmd1", map[string]any{
		"status":      "completed",
		"processedAt": int64(42),
	}))

	got := rawReader{s}.Raw("commands/cmd1").(map[string]any)
	assert.Equal(t, "completed", got["status"])
	assert.Equal(t, "cmd1", got["id"], "merge must preserve untouched fields")
	assert.Equal(t, int64(42), got["processedAt"])
}

func TestUpdateIfConditionGatesWrite(t *testing.T) {
	s := New(DefaultRules())
	require.NoError(t, s.Set(elevated, "commands/cmd1", map[string]any{
		"id":     "cmd1",
		"status": "pending",
	}))

	isPending := func(existing any) bool {
		m, ok := existing.(map[string]any)
		return ok && m["status"] == "pending"
	}

	// Condition holds: the merge lands.
	require.NoError(t, s.UpdateIf(elevated, "commands/cmd1", map[string]any{
		"status": "completed",
	}, isPending))

	// Condition no longer holds: ErrConflict, value untouched.
	err := s.UpdateIf(elevated, "commands/cmd1", map[string]any{
		"status": "failed",
		"error":  "expired",
	}, isPending)
	assert.ErrorIs(t, err, ErrConflict)

	got := rawReader{s}.Raw("commands/cmd1").(map[string]any)
	assert.Equal(t, "completed", got["status"])
	assert.Nil(t, got["error"])
}

func TestUpdateIfConflictEmitsNoEvent(t *testing.T) {
	s := New(DefaultRules())
	require.NoError(t, s.Set(elevated, "commands/cmd1", map[string]any{"status": "completed"}))

	sub, err := s.Subscribe("commands/cmd1")
	require.NoError(t, err)
	defer sub.Close()
	<-sub.Events() // drain replay

	err = s.UpdateIf(elevated, "commands/cmd1", map[string]any{"status": "failed"},
		func(existing any) bool { return false })
	assert.ErrorIs(t, err, ErrConflict)

	select {
	case ev := <-sub.Events():
		t.Fatalf("rejected write must not notify subscribers, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(DefaultRules())
	seedServer(t, s, "srv1", "u1")

	got, err := s.Get(Auth{UID: "u1"}, "servers/srv1")
	require.NoError(t, err)
	got.(map[string]any)["name"] = "mutated"

	again, err := s.Get(Auth{UID: "u1"}, "servers/srv1")
	require.NoError(t, err)
	assert.Equal(t, "srv1", again.(map[string]any)["name"])
}

func TestInvalidPaths(t *testing.T) {
	s := New(DefaultRules())

	_, err := s.Get(elevated, "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	err = s.Set(elevated, "a//b", 1)
	assert.ErrorIs(t, err, ErrInvalidPath)
}
