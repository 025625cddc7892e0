// Package sweeper expires abandoned commands. A pending command older than
// the freshness window will never be executed by the agent, so the sweeper
// fails it with a visible reason instead of leaving it pending forever.
package sweeper

import (
	"errors"
	"log"
	"time"

	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/models"
)

// Archive mirrors expired commands into durable audit storage.
type Archive interface {
	SaveCommand(cmd *models.Command) error
}

// Sweeper periodically fails pending commands past the freshness window.
type Sweeper struct {
	store    *rtstore.Store
	archive  Archive
	interval time.Duration
	ticker   *time.Ticker
	stop     chan bool
	running  bool
	now      func() time.Time
}

// New creates a new sweeper instance. archive may be nil.
func New(store *rtstore.Store, archive Archive) *Sweeper {
	return &Sweeper{
		store:    store,
		archive:  archive,
		interval: 30 * time.Second,
		stop:     make(chan bool),
		running:  false,
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	if s.running {
		log.Println("Sweeper already running")
		return
	}

	s.running = true
	s.ticker = time.NewTicker(s.interval)

	log.Printf("Sweeper started - expiring stale commands every %s", s.interval)

	go func() {
		// Sweep immediately on start
		s.Sweep()

		for {
			select {
			case <-s.ticker.C:
				s.Sweep()
			case <-s.stop:
				s.ticker.Stop()
				s.running = false
				log.Println("Sweeper stopped")
				return
			}
		}
	}()
}

// Stop halts the sweeper
func (s *Sweeper) Stop() {
	if s.running {
		s.stop <- true
	}
}

// Sweep scans the commands subtree once and fails every pending command
// older than the freshness window. Returns the number of commands expired.
func (s *Sweeper) Sweep() int {
	raw, err := s.store.Get(rtstore.Auth{Elevated: true}, "commands")
	if err != nil {
		log.Printf("Error reading commands for sweep: %v", err)
		return 0
	}

	tree, ok := raw.(map[string]any)
	if !ok || len(tree) == 0 {
		return 0
	}

	return s.sweepTree(tree, s.now())
}

// sweepTree expires the stale pending commands in the given snapshot. The
// snapshot may lag the store: a command the agent completes between the scan
// and the expiry write must not be dragged back to failed, so the write is
// conditional on the status still being pending at write time.
func (s *Sweeper) sweepTree(tree map[string]any, now time.Time) int {
	elevated := rtstore.Auth{Elevated: true}
	expired := 0

	for id, doc := range tree {
		var cmd models.Command
		if err := models.Remarshal(doc, &cmd); err != nil {
			log.Printf("Skipping malformed command %s: %v", id, err)
			continue
		}

		if cmd.Status != models.CommandStatusPending || !cmd.Expired(now) {
			continue
		}

		fields := map[string]any{
			"status":      models.CommandStatusFailed,
			"error":       "Command expired before execution",
			"processedAt": now.UnixMilli(),
		}

		err := s.store.UpdateIf(elevated, "commands/"+id, fields, func(existing any) bool {
			var cur models.Command
			if err := models.Remarshal(existing, &cur); err != nil {
				return false
			}
			return cur.Status == models.CommandStatusPending &&
				models.CanTransitionCommand(cur.Status, models.CommandStatusFailed) &&
				cur.Expired(now)
		})
		if errors.Is(err, rtstore.ErrConflict) {
			// Raced with the agent: the command moved on since the scan.
			continue
		}
		if err != nil {
			log.Printf("Error expiring command %s: %v", id, err)
			continue
		}

		expired++
		log.Printf("Expired command %s (%s %s, requested %s ago)",
			id, cmd.Action, cmd.ServerID, cmd.Age(now).Round(time.Second))

		if s.archive != nil {
			cmd.Status = models.CommandStatusFailed
			cmd.Error = "Command expired before execution"
			cmd.ProcessedAt = now.UnixMilli()
			if err := s.archive.SaveCommand(&cmd); err != nil {
				log.Printf("WARN: failed to archive expired command %s: %v", id, err)
			}
		}
	}

	return expired
}
