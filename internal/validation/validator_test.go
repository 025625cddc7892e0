package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateServerValid(t *testing.T) {
	v := New()

	result, err := v.ValidateServer([]byte(`{
		"id": "server:mc-1",
		"name": "Creative World",
		"gameType": "minecraft",
		"config": {
			"executablePath": "/opt/mc/start.sh",
			"arguments": ["-Xmx4G"],
			"stopCommand": "stop",
			"stopTimeout": 30
		}
	}`))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateServerMissingFields(t *testing.T) {
	v := New()

	result, err := v.ValidateServer([]byte(`{"id": "server:x"}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)

	fields := make(map[string]bool)
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["config"])
}

func TestValidateServerBadRuntime(t *testing.T) {
	v := New()

	result, err := v.ValidateServer([]byte(`{
		"id": "server:x",
		"name": "X",
		"config": {"runtime": "systemd"}
	}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "config.runtime", result.Errors[0].Field)
}

func TestValidateServerDockerRequiresImage(t *testing.T) {
	v := New()

	result, err := v.ValidateServer([]byte(`{
		"id": "server:x",
		"name": "X",
		"config": {"runtime": "docker"}
	}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "config.containerImage", result.Errors[0].Field)
}

func TestValidateServerPortMappings(t *testing.T) {
	v := New()

	result, err := v.ValidateServer([]byte(`{
		"id": "server:x",
		"name": "X",
		"config": {
			"runtime": "docker",
			"containerImage": "itzg/minecraft-server",
			"ports": ["25565:25565", "19132:19132/udp", "bad", "0:80", "80:80/icmp"]
		}
	}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 3)
}

func TestValidateServerInvalidJSON(t *testing.T) {
	v := New()

	result, err := v.ValidateServer([]byte(`{not json`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "document", result.Errors[0].Field)
}

func TestValidateCommandValid(t *testing.T) {
	v := New()

	result, err := v.ValidateCommand([]byte(`{
		"id": "cmd-1",
		"serverId": "server:mc-1",
		"action": "start",
		"requestedBy": "user:alice",
		"requestedAt": 1700000000000,
		"status": "pending"
	}`))
	require.NoError(t, err)
	assert.True(t, result.Valid, "errors: %v", result.Errors)
}

func TestValidateCommandBadAction(t *testing.T) {
	v := New()

	result, err := v.ValidateCommand([]byte(`{
		"id": "cmd-1",
		"serverId": "server:mc-1",
		"action": "delete",
		"requestedBy": "user:alice",
		"requestedAt": 1700000000000,
		"status": "pending"
	}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateCommandBadStatus(t *testing.T) {
	v := New()

	result, err := v.ValidateCommand([]byte(`{
		"id": "cmd-1",
		"serverId": "server:mc-1",
		"action": "stop",
		"requestedBy": "user:alice",
		"requestedAt": 1700000000000,
		"status": "waiting"
	}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)

	var found bool
	for _, e := range result.Errors {
		if e.Field == "status" {
			found = true
		}
	}
	assert.True(t, found)
}
