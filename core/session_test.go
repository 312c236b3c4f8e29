package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_CandidateMessageActivates(t *testing.T) {
	s := NewSession("s1", "ds", "ds-junior-ml")
	assert.Equal(t, StateCreated, s.State())

	m, err := s.AppendMessage(NewMessage("", SenderCandidate, "hello", "T1"))
	require.NoError(t, err)
	assert.Equal(t, "s1", m.SessionID)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, "T1", s.CurrentTaskID())
}

func TestSession_MessagesAreCopiedOnRead(t *testing.T) {
	s := NewSession("s2", "r", "sc")
	_, err := s.AppendMessage(NewMessage("", SenderCandidate, "first", ""))
	require.NoError(t, err)

	msgs := s.Messages()
	msgs[0].Text = "changed"
	msgs = append(msgs, NewMessage("", SenderSystem, "extra", ""))

	assert.Equal(t, "first", s.Messages()[0].Text)
	assert.Equal(t, 1, s.MessageCount())
	assert.Len(t, msgs, 2)
}

func TestSession_BeginTurnIsExclusive(t *testing.T) {
	s := NewSession("s3", "r", "sc")
	require.NoError(t, s.BeginTurn("turn-1"))

	err := s.BeginTurn("turn-2")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "turn-1", s.TurnID())

	_, err = s.AppendMessage(NewMessage("", SenderCandidate, "too early", ""))
	assert.ErrorIs(t, err, ErrInvalidState)

	// System messages may still append while the model is working.
	_, err = s.AppendMessage(NewMessage("", SenderSystem, "tool log", ""))
	assert.NoError(t, err)

	assert.Equal(t, StateAwaitingModel, s.EndTurn("stale"))
	assert.Equal(t, StateActive, s.EndTurn("turn-1"))
	assert.Empty(t, s.TurnID())
}

func TestSession_ConcurrentBeginTurn(t *testing.T) {
	s := NewSession("s4", "r", "sc")
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginTurn(NewID()) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSession_CompleteWhenIdleDefersDuringTurn(t *testing.T) {
	s := NewSession("s5", "r", "sc")
	require.NoError(t, s.BeginTurn("t"))

	assert.False(t, s.CompleteWhenIdle())
	assert.Equal(t, StateAwaitingModel, s.State())
	assert.ErrorIs(t, s.Complete(), ErrInvalidState)

	assert.Equal(t, StateCompleted, s.EndTurn("t"))
	assert.NotNil(t, s.Snapshot().Finished)

	_, err := s.AppendMessage(NewMessage("", SenderCandidate, "late", ""))
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = s.AppendMessage(NewMessage("", SenderSystem, "summary", ""))
	assert.NoError(t, err)
	assert.ErrorIs(t, s.BeginTurn("again"), ErrInvalidState)
}

func TestSession_AppendScore(t *testing.T) {
	task := Task{ID: "C1", Type: TaskCoding, MaxPoints: 10}

	t.Run("append keeps history", func(t *testing.T) {
		s := NewSession("s6", "r", "sc")
		require.NoError(t, s.AppendScore(NewScore("", task, 4, ""), false))
		require.NoError(t, s.AppendScore(NewScore("", task, 7, ""), false))
		assert.Len(t, s.Scores(), 2)
		assert.Equal(t, 7.0, s.LatestScores()["C1"].Awarded)
	})

	t.Run("unique rejects second score", func(t *testing.T) {
		s := NewSession("s7", "r", "sc")
		require.NoError(t, s.AppendScore(NewScore("", task, 4, ""), true))
		err := s.AppendScore(NewScore("", task, 7, ""), true)
		assert.ErrorIs(t, err, ErrInvalidScore)
		assert.Len(t, s.Scores(), 1)
	})

	t.Run("completed rejects", func(t *testing.T) {
		s := NewSession("s8", "r", "sc")
		require.NoError(t, s.Complete())
		assert.ErrorIs(t, s.AppendScore(NewScore("", task, 4, ""), false), ErrInvalidState)
	})
}

func TestSession_SnapshotRestore(t *testing.T) {
	s := NewSession("s9", "r", "sc")
	_, _ = s.AppendMessage(NewMessage("", SenderCandidate, "hi", ""))
	require.NoError(t, s.AppendScore(NewScore("", Task{ID: "T1", MaxPoints: 5}, 5, "great"), false))
	require.NoError(t, s.BeginTurn("t"))

	snap := s.Snapshot()
	assert.Equal(t, StateAwaitingModel, snap.State)

	restored := RestoreSession(snap)
	assert.Equal(t, StateActive, restored.State())
	assert.Equal(t, snap.Messages, restored.Messages())
	assert.Equal(t, snap.Scores, restored.Scores())
}
