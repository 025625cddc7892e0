// Package dispatch creates command records on behalf of panel users.
//
// The dispatcher is deliberately thin: it performs a fast local
// authorization check for immediate UI feedback, then writes the command
// through the realtime store under the caller's own credential. The store
// ruleset remains the enforcement point; a dispatcher bug cannot grant
// access the rules would deny.
package dispatch

import (
	"errors"
	"fmt"
	"log"
	"time"

	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/models"
)

var (
	// ErrNotAuthorized is returned when the caller holds no grant on the
	// target server. Deliberate probing and revoked access look the same.
	ErrNotAuthorized = errors.New("not authorized for this server")
	// ErrUnknownServer is returned when the target server does not exist.
	ErrUnknownServer = errors.New("unknown server")
	// ErrInvalidAction is returned for actions outside the allowed set.
	ErrInvalidAction = errors.New("invalid action")
)

// Archive mirrors dispatched commands into durable audit storage.
type Archive interface {
	SaveCommand(cmd *models.Command) error
}

// Dispatcher submits commands to the realtime store.
type Dispatcher struct {
	store   *rtstore.Store
	archive Archive
	now     func() time.Time
}

// New creates a dispatcher. archive may be nil when audit mirroring is
// disabled (tests, ephemeral deployments).
func New(store *rtstore.Store, archive Archive) *Dispatcher {
	return &Dispatcher{
		store:   store,
		archive: archive,
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Submit creates a pending command for the given server under the caller's
// credential. The command ID is generated here; the caller never chooses it.
//
// The returned command is the record as written, including the generated ID,
// so the caller can follow its progress at commands/{id}.
func (d *Dispatcher) Submit(auth rtstore.Auth, serverID, action string) (*models.Command, error) {
	if !models.ValidAction(action) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	// Fast local check for immediate feedback. The store rules re-check on
	// write, so this is a courtesy, not the enforcement point.
	raw, err := d.store.Get(auth, "servers/"+serverID)
	if err != nil {
		if errors.Is(err, rtstore.ErrPermissionDenied) {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}
	if raw == nil {
		return nil, ErrUnknownServer
	}

	cmd := &models.Command{
		ID:               models.GenerateID("cmd"),
		ServerID:         serverID,
		Action:           action,
		RequestedBy:      auth.UID,
		RequestedByEmail: auth.Email,
		RequestedAt:      d.now().UnixMilli(),
		Status:           models.CommandStatusPending,
	}

	var doc map[string]any
	if err := models.Remarshal(cmd, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	if err := d.store.Create(auth, "commands/"+cmd.ID, doc); err != nil {
		if errors.Is(err, rtstore.ErrPermissionDenied) {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}

	// Audit mirror is best-effort; the store record is authoritative.
	if d.archive != nil {
		if err := d.archive.SaveCommand(cmd); err != nil {
			log.Printf("WARN: failed to archive command %s: %v", cmd.ID, err)
		}
	}

	log.Printf("Dispatched command %s: %s %s (requested by %s)",
		cmd.ID, cmd.Action, cmd.ServerID, cmd.RequestedBy)

	return cmd, nil
}
