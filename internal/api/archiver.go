package api

import (
	"log"
	"strings"

	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/internal/storage"
	"evalgo.org/phoenix/models"
)

// Archiver mirrors realtime store writes into CouchDB so command history and
// server status survive panel restarts. It runs under the panel's own
// elevated subscription: the agent writes outcomes to the store only, and the
// archiver is the single component that persists them.
type Archiver struct {
	store   *rtstore.Store
	storage *storage.Storage

	subs []*rtstore.Subscription
}

// NewArchiver creates an archiver over the given store and storage.
func NewArchiver(rt *rtstore.Store, st *storage.Storage) *Archiver {
	return &Archiver{store: rt, storage: st}
}

// Start subscribes to the command and server subtrees and mirrors changes
// until Stop is called.
func (a *Archiver) Start() error {
	cmdSub, err := a.store.Subscribe("commands")
	if err != nil {
		return err
	}
	srvSub, err := a.store.Subscribe("servers")
	if err != nil {
		cmdSub.Close()
		return err
	}
	a.subs = []*rtstore.Subscription{cmdSub, srvSub}

	go a.run(cmdSub, a.handleCommandEvent)
	go a.run(srvSub, a.handleServerEvent)

	log.Println("Archiver started")
	return nil
}

// Stop closes the archiver's subscriptions.
func (a *Archiver) Stop() {
	for _, sub := range a.subs {
		sub.Close()
	}
	a.subs = nil
	log.Println("Archiver stopped")
}

func (a *Archiver) run(sub *rtstore.Subscription, handle func(rtstore.Event)) {
	for ev := range sub.Events() {
		handle(ev)
	}
}

// handleCommandEvent persists terminal command states. Pending and processing
// writes are skipped: the dispatcher already archived the record at
// submission, and transient states are not worth a CouchDB revision each.
func (a *Archiver) handleCommandEvent(ev rtstore.Event) {
	segs := strings.Split(ev.Path, "/")

	switch {
	case len(segs) == 1:
		// Full-tree replay on subscribe
		tree, ok := ev.Value.(map[string]any)
		if !ok {
			return
		}
		for _, doc := range tree {
			a.archiveCommand(doc)
		}
	case len(segs) == 2:
		a.archiveCommand(ev.Value)
	}
}

func (a *Archiver) archiveCommand(doc any) {
	if doc == nil {
		return
	}

	var cmd models.Command
	if err := models.Remarshal(doc, &cmd); err != nil {
		log.Printf("Archiver: skipping malformed command: %v", err)
		return
	}
	if !cmd.Terminal() {
		return
	}

	if err := a.storage.SaveCommand(&cmd); err != nil {
		log.Printf("Archiver: failed to save command %s: %v", cmd.ID, err)
	}
}

// handleServerEvent persists agent status writes onto the server document.
func (a *Archiver) handleServerEvent(ev rtstore.Event) {
	segs := strings.Split(ev.Path, "/")

	// Only servers/{id}/status writes are mirrored; provisioning changes go
	// through storage directly.
	if len(segs) != 3 || segs[2] != "status" {
		return
	}

	var status models.ServerStatus
	if err := models.Remarshal(ev.Value, &status); err != nil {
		log.Printf("Archiver: skipping malformed status for %s: %v", segs[1], err)
		return
	}

	if err := a.storage.UpdateServerStatus(segs[1], &status); err != nil {
		log.Printf("Archiver: failed to save status for %s: %v", segs[1], err)
	}
}
