package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"evalgo.org/phoenix/models"
)

// ProcessRuntime supervises game servers as plain OS processes.
//
// Each server runs in its own process group so that force-kill reaches the
// whole tree, not just the direct child. Arguments are always passed as a
// discrete list; nothing is ever interpreted by a shell.
//
// The runtime tracks one lifecycle state per server and moves it only
// through models.Transition, so an illegal move (a Start during an active
// stop, say) is rejected instead of producing a contradictory status.
type ProcessRuntime struct {
	mu       sync.Mutex
	procs    map[string]*managedProcess
	states   map[string]models.ServerState
	onStatus StatusHandler
	now      func() time.Time
}

// managedProcess tracks one supervised server process.
type managedProcess struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	done     chan struct{}
	exitErr  error
	stopping bool // a commanded stop is in progress; guarded by ProcessRuntime.mu
}

// NewProcessRuntime creates a process runtime. onStatus may be nil.
func NewProcessRuntime(onStatus StatusHandler) *ProcessRuntime {
	return &ProcessRuntime{
		procs:    make(map[string]*managedProcess),
		states:   make(map[string]models.ServerState),
		onStatus: onStatus,
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (r *ProcessRuntime) SetClock(now func() time.Time) {
	r.now = now
}

// stateLocked returns the tracked lifecycle state. Caller holds mu.
func (r *ProcessRuntime) stateLocked(serverID string) models.ServerState {
	if s, ok := r.states[serverID]; ok {
		return s
	}
	return models.StateStopped
}

// advanceLocked moves the tracked state through the lifecycle machine.
// Caller holds mu.
func (r *ProcessRuntime) advanceLocked(serverID string, to models.ServerState) (models.ServerState, error) {
	next, err := models.Transition(r.stateLocked(serverID), to)
	if err != nil {
		return r.stateLocked(serverID), err
	}
	r.states[serverID] = next
	return next, nil
}

// emit pushes a transitional status to the handler, if one is set.
func (r *ProcessRuntime) emit(serverID string, state models.ServerState, message string) {
	if r.onStatus == nil {
		return
	}
	r.onStatus(serverID, &models.ServerStatus{
		State:       state,
		LastUpdated: r.now().UnixMilli(),
		Message:     message,
	})
}

// Start launches the server process.
func (r *ProcessRuntime) Start(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	if cfg == nil || cfg.ExecutablePath == "" {
		return nil, fmt.Errorf("no executable configured for server %s", serverID)
	}

	r.mu.Lock()
	if existing := r.procs[serverID]; existing != nil {
		select {
		case <-existing.done:
			// Process already exited; the waiter will clean up shortly.
		default:
			r.mu.Unlock()
			return nil, fmt.Errorf("server %s: %w (pid %d)", serverID, ErrAlreadyRunning, existing.cmd.Process.Pid)
		}
	}
	if _, err := r.advanceLocked(serverID, models.StateStarting); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	r.emit(serverID, models.StateStarting, "Launching process")

	cmd := exec.Command(cfg.ExecutablePath, cfg.Arguments...)
	cmd.Dir = cfg.WorkingDirectory
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(cfg.ExecutablePath)
	}
	// Own process group so force-kill reaches children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		r.abortStart(serverID)
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		r.abortStart(serverID)
		return nil, fmt.Errorf("failed to start %s: %w", cfg.ExecutablePath, err)
	}

	proc := &managedProcess{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	r.mu.Lock()
	r.procs[serverID] = proc
	state, terr := r.advanceLocked(serverID, models.StateRunning)
	r.mu.Unlock()
	if terr != nil {
		// Cannot happen from starting; logged for the record.
		log.Printf("Server %s: %v", serverID, terr)
	}

	go r.wait(serverID, proc)

	log.Printf("Started server %s: %s (pid %d)", serverID, cfg.ExecutablePath, cmd.Process.Pid)

	return &models.ServerStatus{
		State:       state,
		LastUpdated: r.now().UnixMilli(),
		Message:     "Process started",
		PID:         cmd.Process.Pid,
	}, nil
}

// abortStart rolls a failed launch into the error state.
func (r *ProcessRuntime) abortStart(serverID string) {
	r.mu.Lock()
	_, _ = r.advanceLocked(serverID, models.StateError)
	r.mu.Unlock()
}

// wait blocks until the process exits and reports unexpected terminations.
func (r *ProcessRuntime) wait(serverID string, proc *managedProcess) {
	err := proc.cmd.Wait()
	proc.exitErr = err
	close(proc.done)

	r.mu.Lock()
	stopping := proc.stopping
	if r.procs[serverID] == proc {
		delete(r.procs, serverID)
	}
	var state models.ServerState
	if !stopping {
		if err != nil {
			state, _ = r.advanceLocked(serverID, models.StateError)
		} else {
			// A self-initiated clean exit still walks the stop legs of the
			// lifecycle machine.
			_, _ = r.advanceLocked(serverID, models.StateStopping)
			state, _ = r.advanceLocked(serverID, models.StateStopped)
		}
	}
	r.mu.Unlock()

	if stopping {
		return // the Stop call reports the final status
	}

	status := &models.ServerStatus{
		State:       state,
		LastUpdated: r.now().UnixMilli(),
		Message:     "Process exited",
	}
	if err != nil {
		status.Message = fmt.Sprintf("Process exited unexpectedly: %v", err)
	}

	log.Printf("Server %s exited (state %s): %s", serverID, status.State, status.Message)

	if r.onStatus != nil {
		r.onStatus(serverID, status)
	}
}

// Stop gracefully stops the server process. The configured stop command is
// written to the process stdin first; if the process is still alive after the
// stop timeout, its whole process group is killed. Stopping a server with no
// live handle fails with ErrNotRunning.
func (r *ProcessRuntime) Stop(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	r.mu.Lock()
	proc := r.procs[serverID]
	if proc == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("server %s: %w", serverID, ErrNotRunning)
	}
	proc.stopping = true
	if _, err := r.advanceLocked(serverID, models.StateStopping); err != nil {
		// A concurrent stop already holds the stopping state; keep going,
		// both callers wait on the same done channel.
		log.Printf("Server %s: %v", serverID, err)
	}
	pid := proc.cmd.Process.Pid
	r.mu.Unlock()

	r.emit(serverID, models.StateStopping, "Stopping process")

	if cfg != nil && cfg.StopCommand != "" {
		if _, err := io.WriteString(proc.stdin, cfg.StopCommand+"\n"); err != nil {
			log.Printf("Failed to write stop command to server %s: %v", serverID, err)
			// Fall through to signal-based shutdown.
			_ = syscall.Kill(-pid, syscall.SIGTERM)
		}
	} else {
		_ = syscall.Kill(-pid, syscall.SIGTERM)
	}

	timeout := cfg.StopTimeoutDuration()
	select {
	case <-proc.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		log.Printf("Server %s did not stop within %s, force killing process group %d", serverID, timeout, pid)
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-proc.done
	}

	r.mu.Lock()
	state, _ := r.advanceLocked(serverID, models.StateStopped)
	r.mu.Unlock()

	log.Printf("Stopped server %s", serverID)

	return &models.ServerStatus{
		State:       state,
		LastUpdated: r.now().UnixMilli(),
		Message:     "Process stopped",
	}, nil
}

// Restart stops the server and starts it again. A server that is not
// running is simply started.
func (r *ProcessRuntime) Restart(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	if _, err := r.Stop(ctx, serverID, cfg); err != nil && !errors.Is(err, ErrNotRunning) {
		return nil, fmt.Errorf("restart: stop failed: %w", err)
	}
	return r.Start(ctx, serverID, cfg)
}

// Status reports the current process state.
func (r *ProcessRuntime) Status(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	proc := r.procs[serverID]
	state := r.stateLocked(serverID)

	if proc == nil {
		return &models.ServerStatus{
			State:       state,
			LastUpdated: r.now().UnixMilli(),
		}, nil
	}

	select {
	case <-proc.done:
		// Exited but the waiter has not recorded it yet.
		return &models.ServerStatus{
			State:       models.StateStopped,
			LastUpdated: r.now().UnixMilli(),
		}, nil
	default:
		return &models.ServerStatus{
			State:       state,
			LastUpdated: r.now().UnixMilli(),
			PID:         proc.cmd.Process.Pid,
		}, nil
	}
}
