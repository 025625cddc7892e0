package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadLocalConfig(t *testing.T) {
	path := writeConfig(t, `
hostname: game-host-1
servers:
  srv-minecraft:
    executablePath: /opt/minecraft/run.sh
    workingDirectory: /opt/minecraft
    arguments: ["-Xmx4G"]
    stopCommand: stop
    stopTimeout: 60
  srv-valheim:
    runtime: docker
    containerImage: lloesche/valheim-server
    ports: ["2456:2456/udp"]
`)

	cfg, err := LoadLocalConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "game-host-1", cfg.Hostname)
	assert.Len(t, cfg.Servers, 2)

	mc, ok := cfg.ServerConfigFor("srv-minecraft")
	require.True(t, ok)
	assert.Equal(t, "/opt/minecraft/run.sh", mc.ExecutablePath)
	assert.Equal(t, []string{"-Xmx4G"}, mc.Arguments)
	assert.Equal(t, "stop", mc.StopCommand)
	assert.Equal(t, 60, mc.StopTimeout)

	vh, ok := cfg.ServerConfigFor("srv-valheim")
	require.True(t, ok)
	assert.Equal(t, "docker", vh.RuntimeKind())
	assert.True(t, cfg.needsDocker())

	_, ok = cfg.ServerConfigFor("srv-unknown")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"srv-minecraft", "srv-valheim"}, cfg.ServerIDs())
}

func TestLoadLocalConfigMissingFile(t *testing.T) {
	_, err := LoadLocalConfig("/nonexistent/agent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestLoadLocalConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "servers: [not: {a map")
	_, err := LoadLocalConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadLocalConfigNoServers(t *testing.T) {
	path := writeConfig(t, "hostname: empty-host\n")
	_, err := LoadLocalConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no servers")
}

func TestLoadLocalConfigProcessNeedsExecutable(t *testing.T) {
	path := writeConfig(t, `
servers:
  srv-1:
    workingDirectory: /opt/games
`)
	_, err := LoadLocalConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executablePath is required")
}

func TestLoadLocalConfigDockerNeedsImageOrName(t *testing.T) {
	path := writeConfig(t, `
servers:
  srv-1:
    runtime: docker
    ports: ["25565:25565"]
`)
	_, err := LoadLocalConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "containerImage or containerName")
}

func TestLoadLocalConfigUnknownRuntime(t *testing.T) {
	path := writeConfig(t, `
servers:
  srv-1:
    runtime: systemd
    executablePath: /opt/run.sh
`)
	_, err := LoadLocalConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown runtime")
}

func TestProcessRuntimeIsTheDefault(t *testing.T) {
	path := writeConfig(t, `
servers:
  srv-1:
    executablePath: /opt/run.sh
`)
	cfg, err := LoadLocalConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.needsDocker())
	sc, _ := cfg.ServerConfigFor("srv-1")
	assert.Equal(t, "process", sc.RuntimeKind())
}
