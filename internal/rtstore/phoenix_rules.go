package rtstore

import (
	"evalgo.org/phoenix/models"
)

// DefaultRules is the access predicate set guarding the phoenix tree:
//
//	servers/{id}          readable by granted users, writes elevated-only
//	servers/{id}/status   writes elevated-only (the agent)
//	commands/{id}         creation-only for authenticated users, appends elevated-only
//	agent/status          world-readable, writes elevated-only
//
// Everything not matched here is denied. The agent's elevated credential
// bypasses this ruleset entirely and is therefore never mentioned in it.
func DefaultRules() *Ruleset {
	return NewRuleset(
		Rule{
			// Status sub-path first: its write rule must shadow the server
			// rule so no ordinary caller can ever touch status.
			Pattern: "servers/{id}/status",
			Read:    serverReadable,
			Write:   nil, // deny: only the elevated credential writes status
		},
		Rule{
			Pattern: "servers/{id}",
			Read:    serverReadable,
			Write:   nil, // provisioning goes through the elevated panel server
		},
		Rule{
			Pattern: "commands/{id}",
			Read:    commandReadable,
			Write:   commandCreatable,
		},
		Rule{
			Pattern: "agent/status",
			Read:    func(r *Request) bool { return true },
			Write:   nil, // deny: only the agent heartbeats presence
		},
	)
}

// serverReadable permits a read iff the caller is authenticated and holds a
// grant in the server's allowedUsers set.
func serverReadable(r *Request) bool {
	if r.Auth.Anonymous() {
		return false
	}
	return userAllowed(r.Store, r.Params["id"], r.Auth.UID)
}

// commandReadable permits reading a command to its requester and to users
// granted on the target server.
func commandReadable(r *Request) bool {
	if r.Auth.Anonymous() {
		return false
	}
	var cmd models.Command
	if err := models.Remarshal(r.Existing, &cmd); err != nil {
		return false
	}
	if cmd.RequestedBy == r.Auth.UID {
		return true
	}
	return userAllowed(r.Store, cmd.ServerID, r.Auth.UID)
}

// commandCreatable enforces the append-only command discipline for ordinary
// callers: the record must not exist yet, must be complete, must carry a
// known action, and must name the caller as requester (no impersonation).
// Any later mutation of the record is denied; only the agent's elevated
// credential appends outcome fields.
func commandCreatable(r *Request) bool {
	if r.Auth.Anonymous() {
		return false
	}
	// The pattern also matches descendants of the command record
	// (commands/{id}/result and the like). Those are appends to an existing
	// command even when the exact sub-path is still unset, so only a write
	// at the record root is ever creatable.
	if r.Path != "commands/"+r.Params["id"] {
		return false
	}
	if r.Existing != nil {
		return false
	}

	var cmd models.Command
	if err := models.Remarshal(r.Incoming, &cmd); err != nil {
		return false
	}
	if !cmd.Complete() {
		return false
	}
	if cmd.ID != r.Params["id"] {
		return false
	}
	if !models.ValidAction(cmd.Action) {
		return false
	}
	return cmd.RequestedBy == r.Auth.UID
}

func userAllowed(store Reader, serverID, uid string) bool {
	if serverID == "" || uid == "" {
		return false
	}
	granted, ok := store.Raw("servers/" + serverID + "/allowedUsers/" + uid).(bool)
	return ok && granted
}
