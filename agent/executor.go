package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/models"
)

// processedCap bounds the executed-command memory. Oldest entries are
// evicted first; a command old enough to have been evicted is also old
// enough to fail the freshness check, so eviction cannot cause a re-run.
const processedCap = 1000

// queueDepth bounds the per-server command queue. The rate limiter admits
// ten commands a minute, so a full queue means the server is wedged.
const queueDepth = 32

// commandRateLimit allows 10 commands per server per minute.
var commandRateLimit = rate.Every(time.Minute / 10)

// StoreClient is the executor's view of the shared realtime store. The
// production implementation is the websocket SyncClient; tests substitute a
// local store.
type StoreClient interface {
	Get(path string) (any, error)
	Set(path string, value any) error
	Update(path string, fields map[string]any) error
	Subscribe(path string) (<-chan rtstore.Event, error)
}

// Executor receives command records from the store and runs them against the
// local runtimes. Every command ends in exactly one terminal status write,
// whatever goes wrong in between.
type Executor struct {
	store    StoreClient
	local    *LocalConfig
	runtimes map[string]Runtime

	mu             sync.Mutex
	processed      map[string]bool
	processedOrder []string
	limiters       map[string]*rate.Limiter
	queues         map[string]chan func()

	inflight sync.WaitGroup
	now      func() time.Time
}

// NewExecutor creates a command executor. The runtimes map is keyed by
// runtime kind ("process", "docker").
func NewExecutor(store StoreClient, local *LocalConfig, runtimes map[string]Runtime) *Executor {
	return &Executor{
		store:     store,
		local:     local,
		runtimes:  runtimes,
		processed: make(map[string]bool),
		limiters:  make(map[string]*rate.Limiter),
		queues:    make(map[string]chan func()),
		now:       time.Now,
	}
}

// SetClock overrides the time source for tests.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// Run subscribes to the commands subtree and executes incoming commands
// until the context is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	events, err := e.store.Subscribe("commands")
	if err != nil {
		return fmt.Errorf("failed to subscribe to commands: %w", err)
	}

	log.Printf("Command executor started")

	for {
		select {
		case <-ctx.Done():
			log.Printf("Command executor stopped")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("command subscription closed")
			}
			e.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent processes one store event from the commands subtree. The
// initial replay delivers the whole subtree at once; later events carry
// individual command records.
func (e *Executor) HandleEvent(ctx context.Context, ev rtstore.Event) {
	segs := strings.Split(strings.Trim(ev.Path, "/"), "/")

	switch {
	case len(segs) == 1 && segs[0] == "commands":
		// Full-tree replay on (re)connect: catch up on anything pending.
		tree, ok := ev.Value.(map[string]any)
		if !ok {
			return
		}
		for id, doc := range tree {
			e.handleCommand(ctx, id, doc)
		}
	case len(segs) == 2 && segs[0] == "commands":
		e.handleCommand(ctx, segs[1], ev.Value)
	}
}

// handleCommand validates and executes a single command record.
func (e *Executor) handleCommand(ctx context.Context, id string, doc any) {
	if doc == nil {
		return
	}

	var cmd models.Command
	if err := models.Remarshal(doc, &cmd); err != nil {
		log.Printf("Skipping malformed command %s: %v", id, err)
		return
	}

	// Our own status writes echo back through the subscription. Only a
	// command that can still move to processing is runnable.
	if !models.CanTransitionCommand(cmd.Status, models.CommandStatusProcessing) {
		return
	}

	if !e.markProcessed(id) {
		return // seen before; replays and echoes must not re-run commands
	}

	// Validation failures are visible terminal states, not silent drops.
	if !models.ValidAction(cmd.Action) {
		e.failCommand(id, fmt.Sprintf("Invalid action: %s", cmd.Action))
		return
	}

	cfg, ok := e.local.ServerConfigFor(cmd.ServerID)
	if !ok {
		e.failCommand(id, fmt.Sprintf("Server %s is not configured on this host", cmd.ServerID))
		return
	}

	if cmd.Expired(e.now()) {
		e.failCommand(id, "Command expired before execution")
		return
	}

	if !e.limiter(cmd.ServerID).Allow() {
		e.failCommand(id, fmt.Sprintf("Rate limit exceeded for server %s", cmd.ServerID))
		return
	}

	runtime, ok := e.runtimes[cfg.RuntimeKind()]
	if !ok {
		e.failCommand(id, fmt.Sprintf("Runtime %s is not available on this host", cfg.RuntimeKind()))
		return
	}

	// A graceful stop can take tens of seconds. Run it off the event loop so
	// commands for other servers keep flowing; commands for the same server
	// stay ordered behind it.
	e.enqueue(ctx, cmd.ServerID, id, func() {
		e.runCommand(ctx, runtime, id, &cmd, cfg)
	})
}

// runCommand claims a validated command, executes it, and writes its
// terminal status. Runs on the owning server's worker goroutine.
func (e *Executor) runCommand(ctx context.Context, runtime Runtime, id string, cmd *models.Command, cfg *models.ServerConfig) {
	// Claim the command before touching the process.
	if err := e.store.Update("commands/"+id, map[string]any{
		"status": models.CommandStatusProcessing,
	}); err != nil {
		log.Printf("Failed to claim command %s: %v", id, err)
		return
	}

	log.Printf("Executing command %s: %s %s (requested by %s)",
		id, cmd.Action, cmd.ServerID, cmd.RequestedBy)

	status, err := e.execute(ctx, runtime, cmd, cfg)

	if err != nil {
		log.Printf("Command %s failed: %v", id, err)
		e.failCommand(id, err.Error())
	} else {
		if uerr := e.store.Update("commands/"+id, map[string]any{
			"status":      models.CommandStatusCompleted,
			"result":      fmt.Sprintf("Action %s completed", cmd.Action),
			"processedAt": e.now().UnixMilli(),
		}); uerr != nil {
			log.Printf("Failed to record completion of command %s: %v", id, uerr)
		}
		log.Printf("Command %s completed", id)
	}

	if status != nil {
		e.writeServerStatus(cmd.ServerID, status)
	}
}

// enqueue hands fn to the worker goroutine owning serverID, starting the
// worker on first use. A full queue fails the command instead of blocking
// the event loop.
func (e *Executor) enqueue(ctx context.Context, serverID, id string, fn func()) {
	e.mu.Lock()
	q, ok := e.queues[serverID]
	if !ok {
		q = make(chan func(), queueDepth)
		e.queues[serverID] = q
		go e.work(ctx, serverID, q)
	}
	e.mu.Unlock()

	e.inflight.Add(1)
	select {
	case q <- func() { defer e.inflight.Done(); fn() }:
	default:
		e.inflight.Done()
		e.failCommand(id, fmt.Sprintf("Command queue full for server %s", serverID))
	}
}

// work drains one server's command queue until the context is cancelled.
func (e *Executor) work(ctx context.Context, serverID string, q chan func()) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("Command worker for server %s stopped", serverID)
			return
		case fn := <-q:
			fn()
		}
	}
}

// Wait blocks until every queued command has finished executing.
func (e *Executor) Wait() {
	e.inflight.Wait()
}

// execute dispatches the action to the runtime, converting panics into
// ordinary failures so one bad command cannot take the executor down.
func (e *Executor) execute(ctx context.Context, runtime Runtime, cmd *models.Command, cfg *models.ServerConfig) (status *models.ServerStatus, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			status = &models.ServerStatus{
				State:       models.StateError,
				LastUpdated: e.now().UnixMilli(),
				Message:     fmt.Sprintf("Execution panic: %v", rec),
			}
			err = fmt.Errorf("execution panic: %v", rec)
		}
	}()

	switch cmd.Action {
	case models.ActionStart:
		return runtime.Start(ctx, cmd.ServerID, cfg)
	case models.ActionStop:
		return runtime.Stop(ctx, cmd.ServerID, cfg)
	case models.ActionRestart:
		return runtime.Restart(ctx, cmd.ServerID, cfg)
	default:
		return nil, fmt.Errorf("invalid action: %s", cmd.Action)
	}
}

// failCommand writes the failed terminal status for a command.
func (e *Executor) failCommand(id, reason string) {
	if err := e.store.Update("commands/"+id, map[string]any{
		"status":      models.CommandStatusFailed,
		"error":       reason,
		"processedAt": e.now().UnixMilli(),
	}); err != nil {
		log.Printf("Failed to record failure of command %s: %v", id, err)
	}
}

// writeServerStatus publishes the server's new status record.
func (e *Executor) writeServerStatus(serverID string, status *models.ServerStatus) {
	var doc map[string]any
	if err := models.Remarshal(status, &doc); err != nil {
		log.Printf("Failed to encode status for server %s: %v", serverID, err)
		return
	}
	if err := e.store.Set("servers/"+serverID+"/status", doc); err != nil {
		log.Printf("Failed to write status for server %s: %v", serverID, err)
	}
}

// markProcessed records a command ID. Returns false if it was already seen.
func (e *Executor) markProcessed(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.processed[id] {
		return false
	}

	e.processed[id] = true
	e.processedOrder = append(e.processedOrder, id)
	if len(e.processedOrder) > processedCap {
		oldest := e.processedOrder[0]
		e.processedOrder = e.processedOrder[1:]
		delete(e.processed, oldest)
	}

	return true
}

// limiter returns the per-server rate limiter, creating it on first use.
func (e *Executor) limiter(serverID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.limiters[serverID]
	if !ok {
		l = rate.NewLimiter(commandRateLimit, 10)
		e.limiters[serverID] = l
	}
	return l
}
