package models

import "time"

// Valid command actions. Anything else is rejected before execution.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// Command status constants
const (
	CommandStatusPending    = "pending"
	CommandStatusProcessing = "processing"
	CommandStatusCompleted  = "completed"
	CommandStatusFailed     = "failed"
)

// CommandFreshnessWindow is the maximum age of a command the agent will
// execute. Older commands are rejected as expired so a long agent outage
// cannot replay stale intents.
const CommandFreshnessWindow = 5 * time.Minute

// Command represents a recorded request to perform one privileged action on
// one server. It is written once by the panel with status "pending"; only the
// agent's elevated credential may append the outcome fields afterwards.
//
// Command Flow:
//  1. Panel dispatcher creates the record at commands/{id} (status=pending)
//  2. Agent's store subscription delivers the record
//  3. Agent validates, claims (pending -> processing) and executes
//  4. Agent writes the terminal status plus the server's status record
//
// Wire JSON at commands/{commandId}:
//
//	{id, serverId, action, requestedBy, requestedByEmail, requestedAt,
//	 status, processedAt?, result?, error?}
type Command struct {
	ID  string `json:"id" validate:"required"`
	Rev string `json:"_rev,omitempty"`

	// ServerID is the target server
	ServerID string `json:"serverId" validate:"required"`

	// Action is one of start, stop, restart
	Action string `json:"action" validate:"required,oneof=start stop restart"`

	// RequestedBy is the identity ID of the requesting user
	RequestedBy string `json:"requestedBy" validate:"required"`

	// RequestedByEmail is denormalized for audit display
	RequestedByEmail string `json:"requestedByEmail,omitempty"`

	// RequestedAt is the creation time in epoch milliseconds
	RequestedAt int64 `json:"requestedAt" validate:"required"`

	// Status is pending/processing/completed/failed
	Status string `json:"status"`

	// ProcessedAt is set by the agent when the command reaches a terminal state
	ProcessedAt int64 `json:"processedAt,omitempty"`

	// Result holds a human-readable success message
	Result string `json:"result,omitempty"`

	// Error holds the failure reason if the command failed
	Error string `json:"error,omitempty"`
}

// ValidAction reports whether a is one of the known command actions.
func ValidAction(a string) bool {
	switch a {
	case ActionStart, ActionStop, ActionRestart:
		return true
	}
	return false
}

// Complete reports whether the command carries every field required at
// creation time. Incomplete records are rejected by the store rules so the
// agent never observes a partially-formed command.
func (c *Command) Complete() bool {
	return c.ID != "" &&
		c.ServerID != "" &&
		c.Action != "" &&
		c.RequestedBy != "" &&
		c.RequestedAt != 0 &&
		c.Status == CommandStatusPending
}

// Age returns how old the command is relative to now.
func (c *Command) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(c.RequestedAt))
}

// Expired reports whether the command is older than the freshness window.
func (c *Command) Expired(now time.Time) bool {
	return c.Age(now) > CommandFreshnessWindow
}

// Terminal reports whether the command has reached a final state.
func (c *Command) Terminal() bool {
	return c.Status == CommandStatusCompleted || c.Status == CommandStatusFailed
}

// commandTransitions enumerates the legal command status transitions.
// pending -> processing -> {completed, failed} is the only valid order;
// a command never moves backward and never skips the processing claim,
// except that a pending command may be failed directly by validation or
// by the expiry sweeper.
var commandTransitions = map[string][]string{
	CommandStatusPending:    {CommandStatusProcessing, CommandStatusFailed},
	CommandStatusProcessing: {CommandStatusCompleted, CommandStatusFailed},
}

// CanTransitionCommand reports whether a command may move from one status to
// another.
func CanTransitionCommand(from, to string) bool {
	for _, next := range commandTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
