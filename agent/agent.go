// Package agent provides the privileged host-side daemon for Phoenix.
//
// The agent runs on the game host and performs the following tasks:
//   - Connects to the panel's realtime store over a websocket sync link
//   - Subscribes to the commands subtree and executes start/stop/restart
//     commands against locally configured game servers
//   - Publishes server status records after every action and on a periodic
//     reconciliation sweep
//   - Maintains a heartbeat presence record so the panel can tell a live
//     agent from a crashed one
//
// The agent holds the elevated store credential. Launch configuration comes
// exclusively from the local config file; the panel can only name which
// server to act on, never what gets executed.
//
// Example usage:
//
//	a, err := agent.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	if err := a.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"evalgo.org/phoenix/internal/config"
	"evalgo.org/phoenix/internal/version"
	"evalgo.org/phoenix/models"
)

// Agent manages the host side of the command protocol.
type Agent struct {
	config   *config.Config
	local    *LocalConfig
	store    *SyncClient
	executor *Executor
	runtimes map[string]Runtime
	hostname string

	startTime        time.Time
	commandsExecuted int64
}

// New creates a new agent instance from the application configuration.
func New(cfg *config.Config) (*Agent, error) {
	if cfg.Agent.SyncURL == "" {
		return nil, fmt.Errorf("agent sync URL is required")
	}
	if cfg.Agent.AgentToken == "" {
		return nil, fmt.Errorf("agent token is required")
	}

	local, err := LoadLocalConfig(cfg.Agent.ConfigPath)
	if err != nil {
		return nil, err
	}

	hostname := local.Hostname
	if hostname == "" {
		hostname, err = os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
	}

	a := &Agent{
		config:   cfg,
		local:    local,
		store:    NewSyncClient(cfg.Agent.SyncURL, cfg.Agent.AgentToken),
		hostname: hostname,
	}

	a.runtimes = map[string]Runtime{
		models.RuntimeProcess: NewProcessRuntime(a.onServerStatus),
	}

	// Only connect to Docker when some server actually needs it.
	if local.needsDocker() {
		dr, err := NewDockerRuntime(cfg.Agent.DockerSocket)
		if err != nil {
			return nil, fmt.Errorf("docker runtime required by config: %w", err)
		}
		a.runtimes[models.RuntimeDocker] = dr
	}

	a.executor = NewExecutor(a.store, local, a.runtimes)

	return a, nil
}

// needsDocker reports whether any configured server uses the docker runtime.
func (c *LocalConfig) needsDocker() bool {
	for _, sc := range c.Servers {
		if sc.RuntimeKind() == models.RuntimeDocker {
			return true
		}
	}
	return false
}

// Start connects to the store and runs until the context is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	a.startTime = time.Now()

	log.Printf("Agent starting on host %s (%d servers configured)", a.hostname, len(a.local.Servers))
	log.Printf("Store: %s", a.config.Agent.SyncURL)

	if err := a.store.Start(ctx); err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}

	// Announce presence before accepting any work.
	a.writePresence(true)

	if a.config.Agent.HTTPPort > 0 {
		if err := a.startHTTPServer(ctx, a.config.Agent.HTTPPort); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	go a.heartbeatLoop(ctx)
	go a.statusSyncLoop(ctx)

	err := a.executor.Run(ctx)

	// Best-effort goodbye; staleness masking covers us if this never lands.
	a.writePresence(false)

	if err == context.Canceled {
		return nil
	}
	return err
}

// writePresence publishes the agent's liveness record.
func (a *Agent) writePresence(online bool) {
	p := models.Presence{
		Online:        online,
		LastHeartbeat: time.Now().UnixMilli(),
		Version:       version.Get().Version,
		Hostname:      a.hostname,
	}

	var doc map[string]any
	if err := models.Remarshal(p, &doc); err != nil {
		log.Printf("Failed to encode presence: %v", err)
		return
	}

	if err := a.store.Set("agent/status", doc); err != nil {
		log.Printf("Failed to write presence: %v", err)
	}
}

// heartbeatLoop refreshes the presence record on the heartbeat interval.
func (a *Agent) heartbeatLoop(ctx context.Context) {
	interval := a.config.Agent.HeartbeatInterval
	if interval <= 0 {
		interval = models.HeartbeatInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.writePresence(true)
		}
	}
}

// statusSyncLoop periodically reconciles the published status of every
// configured server with what the runtime actually reports. This repairs
// drift from missed events and covers state changes the panel never
// commanded (crashes, manual restarts on the host).
func (a *Agent) statusSyncLoop(ctx context.Context) {
	interval := a.config.Agent.StatusSyncInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Sync immediately on start so the panel sees fresh state.
	a.syncStatuses(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.syncStatuses(ctx)
		}
	}
}

// syncStatuses publishes the current runtime state of every local server.
func (a *Agent) syncStatuses(ctx context.Context) {
	for id, cfg := range a.local.Servers {
		runtime, ok := a.runtimes[cfg.RuntimeKind()]
		if !ok {
			continue
		}

		status, err := runtime.Status(ctx, id, cfg)
		if err != nil {
			log.Printf("Failed to read status of server %s: %v", id, err)
			continue
		}

		a.executor.writeServerStatus(id, status)
	}
}

// onServerStatus publishes status changes the runtimes report outside any
// command result: transitional starting and stopping states, and
// terminations the panel never asked for.
func (a *Agent) onServerStatus(serverID string, status *models.ServerStatus) {
	a.executor.writeServerStatus(serverID, status)
}
