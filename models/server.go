package models

import "time"

// Runtime kinds for a managed server process.
const (
	RuntimeProcess = "process"
	RuntimeDocker  = "docker"
)

// Server represents a managed game server. The record lives at
// servers/{serverId} in the realtime store and is mirrored into CouchDB for
// provisioning. Config and allowedUsers are mutated by operators; status is
// written exclusively by the agent.
//
// Wire JSON at servers/{serverId}:
//
//	{id, name, gameType, description, allowedUsers:{[uid]:true},
//	 status:{state,lastUpdated,message,pid?},
//	 config:{executablePath, workingDirectory, arguments:[], stopCommand?, stopTimeout}}
type Server struct {
	ID  string `json:"id" validate:"required"`
	Rev string `json:"_rev,omitempty"`

	// Name is the display name shown in the panel
	Name string `json:"name" validate:"required"`

	// GameType is a free category tag (e.g. "minecraft", "valheim")
	GameType string `json:"gameType,omitempty"`

	// Description is free text
	Description string `json:"description,omitempty"`

	// AllowedUsers maps identity IDs to a boolean grant. Presence in the map
	// is access; there are no partial revocation states.
	AllowedUsers map[string]bool `json:"allowedUsers,omitempty"`

	// Status is written only by the agent
	Status *ServerStatus `json:"status,omitempty"`

	// Config describes how the agent launches and stops the process
	Config *ServerConfig `json:"config,omitempty"`
}

// ServerStatus is the agent-owned status record embedded in a Server.
type ServerStatus struct {
	// State is one of stopped/starting/running/stopping/error
	State ServerState `json:"state"`

	// LastUpdated is the write time in epoch milliseconds. Writes carrying an
	// older timestamp than the current record are discarded by the agent's
	// own discipline; the store does not order them.
	LastUpdated int64 `json:"lastUpdated"`

	// Message is free text (uptime, failure reason, ...)
	Message string `json:"message,omitempty"`

	// PID is set while a local process is running
	PID int `json:"pid,omitempty"`
}

// NewerThan reports whether s was written after other. A nil other never
// wins.
func (s *ServerStatus) NewerThan(other *ServerStatus) bool {
	if other == nil {
		return true
	}
	return s.LastUpdated > other.LastUpdated
}

// ServerConfig is the operator-provided launch configuration.
type ServerConfig struct {
	// Runtime selects the supervisor backend: "process" (default) or "docker"
	Runtime string `json:"runtime,omitempty" yaml:"runtime"`

	// ExecutablePath is the server binary (process runtime)
	ExecutablePath string `json:"executablePath,omitempty" yaml:"executablePath"`

	// WorkingDirectory is the launch directory; defaults to the executable's
	// directory when empty
	WorkingDirectory string `json:"workingDirectory,omitempty" yaml:"workingDirectory"`

	// Arguments is the discrete argument list. Arguments are never joined
	// into a shell command string.
	Arguments []string `json:"arguments,omitempty" yaml:"arguments"`

	// StopCommand is an optional console command written to the process stdin
	// for graceful shutdown (e.g. "stop" for Minecraft)
	StopCommand string `json:"stopCommand,omitempty" yaml:"stopCommand"`

	// StopTimeout is the graceful-stop window in seconds before the process
	// group is killed (default 30)
	StopTimeout int `json:"stopTimeout,omitempty" yaml:"stopTimeout"`

	// ContainerImage and Ports apply to the docker runtime
	ContainerImage string   `json:"containerImage,omitempty" yaml:"containerImage"`
	ContainerName  string   `json:"containerName,omitempty" yaml:"containerName"`
	Ports          []string `json:"ports,omitempty" yaml:"ports"`
}

// StopTimeoutDuration returns the configured graceful-stop window.
func (c *ServerConfig) StopTimeoutDuration() time.Duration {
	if c == nil || c.StopTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.StopTimeout) * time.Second
}

// RuntimeKind returns the configured runtime, defaulting to "process".
func (c *ServerConfig) RuntimeKind() string {
	if c == nil || c.Runtime == "" {
		return RuntimeProcess
	}
	return c.Runtime
}

// UserAllowed reports whether uid holds a grant on the server.
func (s *Server) UserAllowed(uid string) bool {
	if uid == "" {
		return false
	}
	return s.AllowedUsers[uid]
}
