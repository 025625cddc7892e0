package rtstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingCommand(id, serverID, action, uid string) map[string]any {
	return map[string]any{
		"id":          id,
		"serverId":    serverID,
		"action":      action,
		"requestedBy": uid,
		"requestedAt": time.Now().UnixMilli(),
		"status":      "pending",
	}
}

func TestCommandCreateAllowed(t *testing.T) {
	s := New(DefaultRules())
	seedServer(t, s, "srv1", "u1")

	err := s.Create(Auth{UID: "u1"}, "commands/cmd1", pendingCommand("cmd1", "srv1", "start", "u1"))
	assert.NoError(t, err)
}

func TestCommandCreateDeniedForAnonymous(t *testing.T) {
	s := New(DefaultRules())

	err := s.Create(Auth{}, "commands/cmd1", pendingCommand("cmd1", "srv1", "start", ""))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCommandCreateRejectsImpersonation(t *testing.T) {
	s := New(DefaultRules())

	// u2 tries to submit a command claiming to be u1.
	err := s.Create(Auth{UID: "u2"}, "commands/cmd1", pendingCommand("cmd1", "srv1", "start", "u1"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCommandCreateRejectsUnknownAction(t *testing.T) {
	s := New(DefaultRules())

	err := s.Create(Auth{UID: "u1"}, "commands/cmd1", pendingCommand("cmd1", "srv1", "delete", "u1"))
	assert.ErrorIs(t, err, ErrPermissionDenied, "action outside the enum must never reach the store")
}

func TestCommandCreateRejectsIncompleteRecord(t *testing.T) {
	s := New(DefaultRules())

	cmd := pendingCommand("cmd1", "srv1", "start", "u1")
	delete(cmd, "requestedAt")

	err := s.Create(Auth{UID: "u1"}, "commands/cmd1", cmd)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCommandCreateRejectsNonPendingStatus(t *testing.T) {
	s := New(DefaultRules())

	cmd := pendingCommand("cmd1", "srv1", "start", "u1")
	cmd["status"] = "completed"

	err := s.Create(Auth{UID: "u1"}, "commands/cmd1", cmd)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCommandOverwriteDenied(t *testing.T) {
	s := New(DefaultRules())

	require.NoError(t, s.Create(Auth{UID: "u1"}, "commands/cmd1", pendingCommand("cmd1", "srv1", "start", "u1")))

	// No second create at the same id.
	err := s.Create(Auth{UID: "u1"}, "commands/cmd1", pendingCommand("cmd1", "srv1", "stop", "u1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// And no mutation of the existing record by ordinary callers.
	err = s.Update(Auth{UID: "u1"}, "commands/cmd1", map[string]any{"status": "completed"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The elevated credential appends the outcome.
	err = s.Update(elevated, "commands/cmd1", map[string]any{"status": "completed"})
	assert.NoError(t, err)
}

func TestCommandSubPathWriteDenied(t *testing.T) {
	s := New(DefaultRules())
	seedServer(t, s, "srv1", "u1")
	require.NoError(t, s.Create(Auth{UID: "u1"}, "commands/cmd1", pendingCommand("cmd1", "srv1", "start", "u1")))

	// A write below the record root targets a still-unset sub-path, so the
	// no-existing-value check alone cannot catch it. It is an append to the
	// command all the same and must be denied for ordinary callers, even
	// when the payload is a well-formed command naming the caller.
	err := s.Set(Auth{UID: "u2"}, "commands/cmd1/result", pendingCommand("cmd1", "srv1", "start", "u2"))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = s.Update(Auth{UID: "u1"}, "commands/cmd1/processedAt", map[string]any{"at": 1})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The record survives untouched.
	raw, err := s.Get(elevated, "commands/cmd1")
	require.NoError(t, err)
	cmd := raw.(map[string]any)
	assert.Equal(t, "pending", cmd["status"])
	assert.Nil(t, cmd["result"])
}

func TestCommandReadableByRequesterAndGrantedUsers(t *testing.T) {
	s := New(DefaultRules())
	seedServer(t, s, "srv1", "u1", "u3")

	require.NoError(t, s.Create(Auth{UID: "u1"}, "commands/cmd1", pendingCommand("cmd1", "srv1", "start", "u1")))

	_, err := s.Get(Auth{UID: "u1"}, "commands/cmd1")
	assert.NoError(t, err, "requester reads their own command")

	_, err = s.Get(Auth{UID: "u3"}, "commands/cmd1")
	assert.NoError(t, err, "granted user reads commands for their server")

	_, err = s.Get(Auth{UID: "u2"}, "commands/cmd1")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRulesetMatchCaptures(t *testing.T) {
	params, ok := match("servers/{id}/status", "servers/srv1/status")
	require.True(t, ok)
	assert.Equal(t, "srv1", params["id"])

	_, ok = match("servers/{id}/status", "servers/srv1/allowedUsers")
	assert.False(t, ok)

	// Ancestor prefix matches carry the rule down the subtree.
	params, ok = match("servers/{id}", "servers/srv1/allowedUsers/u1")
	require.True(t, ok)
	assert.Equal(t, "srv1", params["id"])
}
