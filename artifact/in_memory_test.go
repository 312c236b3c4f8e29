package artifact

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatreview/core"
)

func TestInMemoryStore_SaveListOrder(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Save(ctx, Submission{SessionID: "s1", TaskID: "C1", Kind: KindCode, Source: "print(1)"}))
	require.NoError(t, s.Save(ctx, Submission{SessionID: "s1", TaskID: "SQL1", Kind: KindSQL, Source: "select 1"}))
	require.NoError(t, s.Save(ctx, Submission{SessionID: "s2", TaskID: "C1", Kind: KindCode}))

	subs, err := s.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "C1", subs[0].TaskID)
	assert.Equal(t, KindSQL, subs[1].Kind)
	assert.NotEmpty(t, subs[0].ID)
	assert.False(t, subs[0].Created.IsZero())

	got, err := s.Get(ctx, "s1", subs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "select 1", got.Source)
}

func TestInMemoryStore_ListIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.Save(ctx, Submission{SessionID: "s1", Source: "a"}))

	subs, _ := s.List(ctx, "s1")
	subs[0].Source = "mutated"

	again, _ := s.List(ctx, "s1")
	assert.Equal(t, "a", again[0].Source)

	empty, err := s.List(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	err := s.Save(ctx, Submission{TaskID: "C1"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = s.Get(ctx, "s1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInMemoryStore_ConcurrentSave(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Save(ctx, Submission{SessionID: "s1"})
		}()
	}
	wg.Wait()
	subs, _ := s.List(ctx, "s1")
	assert.Len(t, subs, 50)
}
