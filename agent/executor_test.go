package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/models"
)

var elevated = rtstore.Auth{Elevated: true}

// localStore adapts an in-process store to the StoreClient interface, the
// way the websocket client does in production.
type localStore struct {
	store *rtstore.Store
}

func (l *localStore) Get(path string) (any, error) {
	return l.store.Get(elevated, path)
}

func (l *localStore) Set(path string, value any) error {
	return l.store.Set(elevated, path, value)
}

func (l *localStore) Update(path string, fields map[string]any) error {
	return l.store.Update(elevated, path, fields)
}

func (l *localStore) Subscribe(path string) (<-chan rtstore.Event, error) {
	sub, err := l.store.Subscribe(path)
	if err != nil {
		return nil, err
	}
	return sub.Events(), nil
}

// fakeRuntime records calls and returns canned statuses.
type fakeRuntime struct {
	mu      sync.Mutex
	calls   []string
	failOn  string
	panicOn string
}

func (f *fakeRuntime) record(op, serverID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+" "+serverID)
}

func (f *fakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRuntime) do(op, serverID string) (*models.ServerStatus, error) {
	f.record(op, serverID)
	if f.panicOn == op {
		panic("runtime exploded")
	}
	if f.failOn == op {
		return &models.ServerStatus{State: models.StateError, Message: "launch failed"},
			fmt.Errorf("launch failed")
	}
	state := models.StateRunning
	if op == "stop" {
		state = models.StateStopped
	}
	return &models.ServerStatus{State: state, LastUpdated: time.Now().UnixMilli()}, nil
}

func (f *fakeRuntime) Start(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	return f.do("start", serverID)
}

func (f *fakeRuntime) Stop(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	return f.do("stop", serverID)
}

func (f *fakeRuntime) Restart(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	return f.do("restart", serverID)
}

func (f *fakeRuntime) Status(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	return f.do("status", serverID)
}

func testLocalConfig() *LocalConfig {
	return &LocalConfig{
		Servers: map[string]*models.ServerConfig{
			"srv-1": {ExecutablePath: "/opt/games/srv-1/run.sh"},
			"srv-2": {ExecutablePath: "/opt/games/srv-2/run.sh"},
		},
	}
}

func newTestExecutor(t *testing.T) (*Executor, *rtstore.Store, *fakeRuntime) {
	t.Helper()
	store := rtstore.New(rtstore.DefaultRules())
	rt := &fakeRuntime{}
	exec := NewExecutor(
		&localStore{store: store},
		testLocalConfig(),
		map[string]Runtime{models.RuntimeProcess: rt},
	)
	return exec, store, rt
}

func commandDoc(id, serverID, action string, requestedAt int64) map[string]any {
	return map[string]any{
		"id":          id,
		"serverId":    serverID,
		"action":      action,
		"requestedBy": "user:alice",
		"requestedAt": requestedAt,
		"status":      models.CommandStatusPending,
	}
}

func getCommand(t *testing.T, store *rtstore.Store, id string) models.Command {
	t.Helper()
	raw, err := store.Get(elevated, "commands/"+id)
	require.NoError(t, err)
	var cmd models.Command
	require.NoError(t, models.Remarshal(raw, &cmd))
	return cmd
}

func TestExecutorRunsFreshCommand(t *testing.T) {
	exec, store, rt := newTestExecutor(t)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	doc := commandDoc("cmd:1", "srv-1", "start", now.UnixMilli())
	exec.HandleEvent(context.Background(), rtstore.Event{Path: "commands/cmd:1", Value: doc})
	exec.Wait()

	cmd := getCommand(t, store, "cmd:1")
	assert.Equal(t, models.CommandStatusCompleted, cmd.Status)
	assert.Equal(t, now.UnixMilli(), cmd.ProcessedAt)
	assert.Equal(t, []string{"start srv-1"}, rt.Calls())

	// The server status record was published.
	raw, err := store.Get(elevated, "servers/srv-1/status")
	require.NoError(t, err)
	var status models.ServerStatus
	require.NoError(t, models.Remarshal(raw, &status))
	assert.Equal(t, models.StateRunning, status.State)
}

func TestExecutorIgnoresDuplicateDelivery(t *testing.T) {
	exec, _, rt := newTestExecutor(t)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	doc := commandDoc("cmd:1", "srv-1", "start", now.UnixMilli())
	ev := rtstore.Event{Path: "commands/cmd:1", Value: doc}

	exec.HandleEvent(context.Background(), ev)
	exec.HandleEvent(context.Background(), ev)
	exec.HandleEvent(context.Background(), ev)
	exec.Wait()

	assert.Equal(t, []string{"start srv-1"}, rt.Calls())
}

func TestExecutorRejectsExpiredCommand(t *testing.T) {
	exec, store, rt := newTestExecutor(t)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	// Six minutes old: past the freshness window.
	doc := commandDoc("cmd:old", "srv-1", "start", now.Add(-6*time.Minute).UnixMilli())
	exec.HandleEvent(context.Background(), rtstore.Event{Path: "commands/cmd:old", Value: doc})

	cmd := getCommand(t, store, "cmd:old")
	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Contains(t, cmd.Error, "expired")
	assert.Empty(t, rt.Calls())
}

func TestExecutorRejectsUnknownAction(t *testing.T) {
	exec, store, rt := newTestExecutor(t)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	doc := commandDoc("cmd:bad", "srv-1", "delete", now.UnixMilli())
	exec.HandleEvent(context.Background(), rtstore.Event{Path: "commands/cmd:bad", Value: doc})

	cmd := getCommand(t, store, "cmd:bad")
	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Contains(t, cmd.Error, "Invalid action")
	assert.Empty(t, rt.Calls())
}

func TestExecutorRejectsUnconfiguredServer(t *testing.T) {
	exec, store, rt := newTestExecutor(t)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	doc := commandDoc("cmd:x", "srv-unknown", "start", now.UnixMilli())
	exec.HandleEvent(context.Background(), rtstore.Event{Path: "commands/cmd:x", Value: doc})

	cmd := getCommand(t, store, "cmd:x")
	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Contains(t, cmd.Error, "not configured")
	assert.Empty(t, rt.Calls())
}

func TestExecutorRateLimitsPerServer(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	// The limiter admits a burst of 10 per server per minute.
	for i := 0; i < 11; i++ {
		id := fmt.Sprintf("cmd:%d", i)
		doc := commandDoc(id, "srv-1", "start", now.UnixMilli())
		exec.HandleEvent(context.Background(), rtstore.Event{Path: "commands/" + id, Value: doc})
	}
	exec.Wait()

	cmd := getCommand(t, store, "cmd:10")
	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Contains(t, cmd.Error, "Rate limit")
}

func TestExecutorConvertsPanicToFailure(t *testing.T) {
	store := rtstore.New(rtstore.DefaultRules())
	rt := &fakeRuntime{panicOn: "start"}
	exec := NewExecutor(
		&localStore{store: store},
		testLocalConfig(),
		map[string]Runtime{models.RuntimeProcess: rt},
	)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	doc := commandDoc("cmd:boom", "srv-1", "start", now.UnixMilli())
	exec.HandleEvent(context.Background(), rtstore.Event{Path: "commands/cmd:boom", Value: doc})
	exec.Wait()

	cmd := getCommand(t, store, "cmd:boom")
	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Contains(t, cmd.Error, "panic")
}

func TestExecutorRecordsRuntimeFailure(t *testing.T) {
	store := rtstore.New(rtstore.DefaultRules())
	rt := &fakeRuntime{failOn: "start"}
	exec := NewExecutor(
		&localStore{store: store},
		testLocalConfig(),
		map[string]Runtime{models.RuntimeProcess: rt},
	)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	doc := commandDoc("cmd:fail", "srv-1", "start", now.UnixMilli())
	exec.HandleEvent(context.Background(), rtstore.Event{Path: "commands/cmd:fail", Value: doc})
	exec.Wait()

	cmd := getCommand(t, store, "cmd:fail")
	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Equal(t, "launch failed", cmd.Error)

	// The error status still reaches the server record.
	raw, err := store.Get(elevated, "servers/srv-1/status")
	require.NoError(t, err)
	var status models.ServerStatus
	require.NoError(t, models.Remarshal(raw, &status))
	assert.Equal(t, models.StateError, status.State)
}

// blockingRuntime stalls stop calls for one server until released,
// standing in for a slow graceful shutdown.
type blockingRuntime struct {
	fakeRuntime
	blockOn string
	release chan struct{}
}

func (b *blockingRuntime) Stop(ctx context.Context, serverID string, cfg *models.ServerConfig) (*models.ServerStatus, error) {
	if b.blockOn == serverID {
		<-b.release
	}
	return b.fakeRuntime.Stop(ctx, serverID, cfg)
}

func TestExecutorSlowCommandDoesNotBlockOtherServers(t *testing.T) {
	store := rtstore.New(rtstore.DefaultRules())
	rt := &blockingRuntime{blockOn: "srv-1", release: make(chan struct{})}
	exec := NewExecutor(
		&localStore{store: store},
		testLocalConfig(),
		map[string]Runtime{models.RuntimeProcess: rt},
	)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	ctx := context.Background()
	slow := commandDoc("cmd:slow", "srv-1", "stop", now.UnixMilli())
	fast := commandDoc("cmd:fast", "srv-2", "start", now.UnixMilli())
	queued := commandDoc("cmd:queued", "srv-1", "start", now.UnixMilli())
	require.NoError(t, store.Set(elevated, "commands/cmd:slow", slow))
	require.NoError(t, store.Set(elevated, "commands/cmd:fast", fast))
	require.NoError(t, store.Set(elevated, "commands/cmd:queued", queued))
	exec.HandleEvent(ctx, rtstore.Event{Path: "commands/cmd:slow", Value: slow})
	exec.HandleEvent(ctx, rtstore.Event{Path: "commands/cmd:fast", Value: fast})
	exec.HandleEvent(ctx, rtstore.Event{Path: "commands/cmd:queued", Value: queued})

	status := func(id string) string {
		raw, err := store.Get(elevated, "commands/"+id)
		if err != nil {
			return ""
		}
		var cmd models.Command
		if models.Remarshal(raw, &cmd) != nil {
			return ""
		}
		return cmd.Status
	}

	// The stop on srv-1 is still in flight; the srv-2 command must not
	// queue behind it.
	require.Eventually(t, func() bool {
		return status("cmd:fast") == models.CommandStatusCompleted
	}, time.Second, 5*time.Millisecond)

	// Same-server commands stay ordered behind the in-flight stop.
	require.Eventually(t, func() bool {
		return status("cmd:slow") == models.CommandStatusProcessing
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.CommandStatusPending, status("cmd:queued"))

	close(rt.release)
	exec.Wait()
	assert.Equal(t, models.CommandStatusCompleted, status("cmd:slow"))
	assert.Equal(t, models.CommandStatusCompleted, status("cmd:queued"))
}

func TestExecutorHandlesFullTreeReplay(t *testing.T) {
	exec, store, rt := newTestExecutor(t)
	now := time.UnixMilli(1700000000000)
	exec.SetClock(func() time.Time { return now })

	// Simulate the replay a reconnect delivers: the whole subtree at once,
	// mixing pending and already-terminal records.
	tree := map[string]any{
		"cmd:a": commandDoc("cmd:a", "srv-1", "start", now.UnixMilli()),
		"cmd:b": map[string]any{
			"id": "cmd:b", "serverId": "srv-1", "action": "stop",
			"requestedBy": "user:alice", "requestedAt": now.UnixMilli(),
			"status": models.CommandStatusCompleted,
		},
	}
	require.NoError(t, store.Set(elevated, "commands/cmd:a", tree["cmd:a"]))
	require.NoError(t, store.Set(elevated, "commands/cmd:b", tree["cmd:b"]))

	exec.HandleEvent(context.Background(), rtstore.Event{Path: "commands", Value: tree})
	exec.Wait()

	assert.Equal(t, []string{"start srv-1"}, rt.Calls())
}

func TestMarkProcessedEvictsOldest(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	for i := 0; i < processedCap; i++ {
		require.True(t, exec.markProcessed(fmt.Sprintf("cmd:%d", i)))
	}

	// One past the cap evicts the oldest entry.
	require.True(t, exec.markProcessed("cmd:overflow"))
	assert.True(t, exec.markProcessed("cmd:0"), "evicted ID should be accepted again")
	assert.False(t, exec.markProcessed("cmd:overflow"))
}
