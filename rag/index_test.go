package rag

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/chatreview/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCorpus(t *testing.T, ix *Index, docs ...string) string {
	t.Helper()
	c, err := ix.CreateCorpus("", "kb", "")
	require.NoError(t, err)
	for i, d := range docs {
		_, err := ix.AddDocument(c.ID, "doc"+string(rune('a'+i))+".md", d, nil)
		require.NoError(t, err)
	}
	return c.ID
}

func TestSearch_EmptyCorpus(t *testing.T) {
	ix := NewIndex()
	id := newCorpus(t, ix)

	res, err := ix.Search(context.Background(), id, "anything", 3)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestSearch_UnknownCorpus(t *testing.T) {
	_, err := NewIndex().Search(context.Background(), "missing", "q", 3)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSearch_IdenticalDocumentRanksFirst(t *testing.T) {
	ix := NewIndex()
	query := "L1 regularization drives weights to zero; L2 shrinks them smoothly"
	id := newCorpus(t, ix,
		"SQL joins combine rows from two tables",
		query,
		"regularization in linear models",
	)

	res, err := ix.Search(context.Background(), id, query, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, 1.0, res[0].Score)
	assert.Equal(t, "docb.md", res[0].Filename)
	assert.Greater(t, res[1].Score, res[2].Score)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	ix := NewIndex()
	id := newCorpus(t, ix, "alpha beta", "gamma delta", "alpha beta", "epsilon")

	res, err := ix.Search(context.Background(), id, "alpha beta", 0)
	require.NoError(t, err)
	require.Len(t, res, 3) // default top k
	assert.Equal(t, "doca.md", res[0].Filename)
	assert.Equal(t, "docc.md", res[1].Filename)
	assert.Equal(t, res[0].Score, res[1].Score)
	// zero-score documents follow in insertion order
	assert.Equal(t, "docb.md", res[2].Filename)
	assert.Equal(t, 0.0, res[2].Score)
}

func TestSearch_CaseAndScriptNormalization(t *testing.T) {
	ix := NewIndex()
	id := newCorpus(t, ix, "Регрессия, РЕГУЛЯРИЗАЦИЯ!", "unrelated")

	res, err := ix.Search(context.Background(), id, "регрессия регуляризация", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "doca.md", res[0].Filename)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
}

func TestSearch_SnippetTruncation(t *testing.T) {
	ix := NewIndex(func(o *Options) { o.SnippetLength = 5 })
	id := newCorpus(t, ix, "привет мир")

	res, err := ix.Search(context.Background(), id, "мир", 1)
	require.NoError(t, err)
	assert.Equal(t, "приве", res[0].Snippet)
}

func TestCorpusLifecycle(t *testing.T) {
	ix := NewIndex()
	c, err := ix.CreateCorpus("kb", "Knowledge", "desc")
	require.NoError(t, err)
	_, err = ix.CreateCorpus("kb", "dup", "")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	doc, err := ix.AddDocument(c.ID, "a.md", "content", map[string]any{"k": "v"})
	require.NoError(t, err)

	got, err := ix.Document("kb", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "content", got.Content)

	_, err = ix.Document("kb", "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = ix.AddDocument("nope", "a", "b", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)

	info, err := ix.Corpus("kb")
	require.NoError(t, err)
	assert.Equal(t, 1, info.DocumentCount)
	assert.Len(t, ix.Corpora(), 1)
}

func TestConcurrentIngestAndSearch(t *testing.T) {
	ix := NewIndex()
	id := newCorpus(t, ix)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = ix.AddDocument(id, "f", strings.Repeat("token ", i+1), nil)
		}(i)
		go func() {
			defer wg.Done()
			_, err := ix.Search(context.Background(), id, "token", 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	docs, err := ix.Documents(id)
	require.NoError(t, err)
	assert.Len(t, docs, 8)
}

func TestDefaultTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world_1", "strasse"}, DefaultTokenize("Hello, WORLD_1! Straße"))
}
