package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatreview/core"
)

var _ core.SessionStore = (*Store)(nil)

func completedSnapshot(t *testing.T, id string) core.SessionSnapshot {
	t.Helper()
	sess := core.NewSession(id, "ds", "ds-junior-ml")
	_, err := sess.AppendMessage(core.NewMessage(id, core.SenderCandidate, "Привет", "T1"))
	require.NoError(t, err)
	task := core.Task{ID: "T1", Type: core.TaskTheory, MaxPoints: 5}
	require.NoError(t, sess.AppendScore(core.NewScore(id, task, 4, "solid"), false))
	require.NoError(t, sess.Complete())
	return sess.Snapshot()
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := New(Config{})
	require.NoError(t, err)
	defer store.Close()

	snap := completedSnapshot(t, "s1")
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, got.State)
	assert.Equal(t, "T1", got.CurrentTaskID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Привет", got.Messages[0].Text)
	require.Len(t, got.Scores, 1)
	assert.InDelta(t, 4.0, got.Scores[0].Awarded, 1e-9)
	require.NotNil(t, got.Finished)
}

func TestStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store, err := New(Config{Path: filepath.Join(t.TempDir(), "sessions.db")})
	require.NoError(t, err)
	defer store.Close()

	sess := core.NewSession("s2", "ds", "ds-junior-ml")
	require.NoError(t, store.Save(ctx, sess.Snapshot()))
	_, err = sess.AppendMessage(core.NewMessage("s2", core.SenderSystem, "note", ""))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess.Snapshot()))

	got, err := store.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)
}

func TestStore_NotFound(t *testing.T) {
	store, err := New(Config{})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
