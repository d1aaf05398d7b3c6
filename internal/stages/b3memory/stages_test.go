package b3memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noema/noema/internal/kernel"
	"github.com/noema/noema/internal/stages/b3memory"
	"github.com/noema/noema/internal/state"
)

func TestWALWriterSkipsWithoutPackZ(t *testing.T) {
	env := b3memory.WALWriter(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestWALWriterAppendsSignedRecord(t *testing.T) {
	s := state.Tree{"perception": state.Tree{"packz": state.Tree{
		"id": "abc", "text": "hi", "lang": "en", "at_ms": 1,
	}}}
	env := b3memory.WALWriter(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	wal := env.Updates.Get("memory").GetSlice("wal")
	require.Len(t, wal, 1)
	rec := wal[0].(state.Tree)
	assert.Equal(t, "abc", rec.GetString("id"))
	assert.NotEmpty(t, rec.GetString("sig"))
}

func TestIndexerSkipsWithoutWAL(t *testing.T) {
	env := b3memory.Indexer(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestIndexerStagesLastWALRecord(t *testing.T) {
	s := state.Tree{"memory": state.Tree{"wal": []any{
		state.Tree{"id": "r1", "text": "old"},
		state.Tree{"id": "r2", "text": "new"},
	}}}
	env := b3memory.Indexer(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	queue := env.Updates.Get("memory").GetSlice("index_queue")
	require.Len(t, queue, 1)
	entry := queue[0].(state.Tree)
	assert.Equal(t, "r2", entry.GetString("id"))
	assert.Equal(t, "packz", entry.GetString("type"))
}

func TestRetrieverFiltersNonPositiveScores(t *testing.T) {
	s := state.Tree{"memory": state.Tree{"retrieval_candidates": []any{
		state.Tree{"id": "a", "score": 0.8},
		state.Tree{"id": "b", "score": 0.0},
	}}}
	env := b3memory.Retriever(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	retrieved := env.Updates.Get("memory").GetSlice("retrieved")
	require.Len(t, retrieved, 1)
	assert.Equal(t, "a", retrieved[0].(state.Tree).GetString("id"))
}

func TestRetrieverSkipsWithoutCandidates(t *testing.T) {
	env := b3memory.Retriever(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}

func TestContextCacheBoundsLength(t *testing.T) {
	existing := make([]any, b3memory.ContextCacheLimit)
	for i := range existing {
		existing[i] = state.Tree{"id": i}
	}
	s := state.Tree{"memory": state.Tree{
		"context_cache": existing,
		"retrieved":     []any{state.Tree{"id": "new"}},
	}}
	env := b3memory.ContextCache(s)
	require.Equal(t, kernel.StatusOK, env.Status)
	cache := env.Updates.Get("memory").GetSlice("context_cache")
	assert.Len(t, cache, b3memory.ContextCacheLimit)
	assert.Equal(t, "new", cache[len(cache)-1].(state.Tree).GetString("id"))
}

func TestContextCacheSkipsWhenNothingToCache(t *testing.T) {
	env := b3memory.ContextCache(state.Tree{})
	assert.Equal(t, kernel.StatusSkip, env.Status)
}
