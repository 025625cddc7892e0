package agent

import (
	"context"
	"errors"

	"evalgo.org/phoenix/models"
)

var (
	// ErrAlreadyRunning is returned by Start when the server has a live
	// handle.
	ErrAlreadyRunning = errors.New("server is already running")
	// ErrNotRunning is returned by Stop when the server has no live handle.
	ErrNotRunning = errors.New("server is not running")
)

// Runtime starts and stops game server processes on the local host. Two
// implementations exist: ProcessRuntime supervises plain OS processes and
// DockerRuntime drives containers through the Docker API.
//
// Implementations must serialize operations per server: a second Start for
// the same server while one is in flight is an error, not a queued request.
type Runtime interface {
	// Start launches the server. Fails with ErrAlreadyRunning if the server
	// has a live handle.
	Start(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error)

	// Stop gracefully stops the server: the configured stop command first,
	// then force-kill after the stop timeout. Fails with ErrNotRunning if
	// the server has no live handle.
	Stop(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error)

	// Restart stops then starts the server. A server that is not running is
	// simply started.
	Restart(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error)

	// Status reports the current state of the server as the runtime sees it.
	Status(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error)
}

// StatusHandler receives the status changes a commanded operation's return
// value cannot carry: the transitional starting and stopping states, and
// terminations outside any stop command. The latter arrive with state
// "stopped" for a clean exit and "error" otherwise.
type StatusHandler func(serverID string, status *models.ServerStatus)
