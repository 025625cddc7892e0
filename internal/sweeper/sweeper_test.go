package sweeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/phoenix/internal/rtstore"
	"evalgo.org/phoenix/models"
)

var elevated = rtstore.Auth{Elevated: true}

func seedCommand(t *testing.T, store *rtstore.Store, id, status string, requestedAt int64) {
	t.Helper()
	err := store.Set(elevated, "commands/"+id, map[string]any{
		"id":          id,
		"serverId":    "srv-1",
		"action":      "start",
		"requestedBy": "user:alice",
		"requestedAt": requestedAt,
		"status":      status,
	})
	require.NoError(t, err)
}

func TestSweepExpiresStalePending(t *testing.T) {
	store := rtstore.New(rtstore.DefaultRules())
	now := time.UnixMilli(1700000000000)

	// Ten minutes old: past the five minute freshness window.
	seedCommand(t, store, "cmd:stale", models.CommandStatusPending, now.Add(-10*time.Minute).UnixMilli())

	s := New(store, nil)
	s.SetClock(func() time.Time { return now })

	assert.Equal(t, 1, s.Sweep())

	raw, err := store.Get(elevated, "commands/cmd:stale")
	require.NoError(t, err)

	var cmd models.Command
	require.NoError(t, models.Remarshal(raw, &cmd))
	assert.Equal(t, models.CommandStatusFailed, cmd.Status)
	assert.Equal(t, "Command expired before execution", cmd.Error)
	assert.Equal(t, now.UnixMilli(), cmd.ProcessedAt)
	// Original fields survive the merge.
	assert.Equal(t, "srv-1", cmd.ServerID)
	assert.Equal(t, "user:alice", cmd.RequestedBy)
}

func TestSweepLeavesFreshAndTerminalAlone(t *testing.T) {
	store := rtstore.New(rtstore.DefaultRules())
	now := time.UnixMilli(1700000000000)

	seedCommand(t, store, "cmd:fresh", models.CommandStatusPending, now.Add(-1*time.Minute).UnixMilli())
	seedCommand(t, store, "cmd:done", models.CommandStatusCompleted, now.Add(-30*time.Minute).UnixMilli())
	seedCommand(t, store, "cmd:running", models.CommandStatusProcessing, now.Add(-30*time.Minute).UnixMilli())

	s := New(store, nil)
	s.SetClock(func() time.Time { return now })

	assert.Equal(t, 0, s.Sweep())

	for id, want := range map[string]string{
		"cmd:fresh":   models.CommandStatusPending,
		"cmd:done":    models.CommandStatusCompleted,
		"cmd:running": models.CommandStatusProcessing,
	} {
		raw, err := store.Get(elevated, "commands/"+id)
		require.NoError(t, err)
		var cmd models.Command
		require.NoError(t, models.Remarshal(raw, &cmd))
		assert.Equal(t, want, cmd.Status, id)
	}
}

func TestSweepStaleSnapshotDoesNotOverwriteCompleted(t *testing.T) {
	store := rtstore.New(rtstore.DefaultRules())
	now := time.UnixMilli(1700000000000)

	requestedAt := now.Add(-10 * time.Minute).UnixMilli()
	seedCommand(t, store, "cmd:raced", models.CommandStatusPending, requestedAt)

	s := New(store, nil)
	s.SetClock(func() time.Time { return now })

	// Snapshot the tree as a sweep would, then let the agent complete the
	// command before the sweep writes. The expiry write must lose.
	raw, err := store.Get(elevated, "commands")
	require.NoError(t, err)
	snapshot := raw.(map[string]any)

	require.NoError(t, store.Update(elevated, "commands/cmd:raced", map[string]any{
		"status": models.CommandStatusCompleted,
		"result": "Action start completed",
	}))

	assert.Equal(t, 0, s.sweepTree(snapshot, now))

	var cmd models.Command
	cur, err := store.Get(elevated, "commands/cmd:raced")
	require.NoError(t, err)
	require.NoError(t, models.Remarshal(cur, &cmd))
	assert.Equal(t, models.CommandStatusCompleted, cmd.Status)
	assert.Empty(t, cmd.Error)
}

func TestSweepEmptyStore(t *testing.T) {
	store := rtstore.New(rtstore.DefaultRules())
	s := New(store, nil)
	assert.Equal(t, 0, s.Sweep())
}

type recordingArchive struct {
	saved []*models.Command
}

func (r *recordingArchive) SaveCommand(cmd *models.Command) error {
	r.saved = append(r.saved, cmd)
	return nil
}

func TestSweepArchivesExpiredCommands(t *testing.T) {
	store := rtstore.New(rtstore.DefaultRules())
	now := time.UnixMilli(1700000000000)

	seedCommand(t, store, "cmd:stale", models.CommandStatusPending, now.Add(-6*time.Minute).UnixMilli())

	archive := &recordingArchive{}
	s := New(store, archive)
	s.SetClock(func() time.Time { return now })

	s.Sweep()

	require.Len(t, archive.saved, 1)
	assert.Equal(t, models.CommandStatusFailed, archive.saved[0].Status)
}
