package hnsw

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/index"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	store := NewStore()
	defer store.Close()
	err := store.Upsert(ctx, []index.Entry{
		{
			ID:     index.EntryID(1, "https://example.com/a", 0, 1),
			Vector: []float32{1, 0, 0},
			Payload: index.Payload{
				SourceId:    core.ID(1),
				DocumentURL: "https://example.com/a",
				Ordinal:     0,
				Text:        "alpha",
				Generation:  1,
			},
		},
		{
			ID:     index.EntryID(1, "https://example.com/b", 0, 1),
			Vector: []float32{0, 1, 0},
			Payload: index.Payload{
				SourceId:    core.ID(1),
				DocumentURL: "https://example.com/b",
				Ordinal:     0,
				Text:        "beta",
				Generation:  1,
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(path))

	loaded := NewStore()
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	count, err := loaded.Count(ctx, index.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hits, err := loaded.Query(ctx, []float32{1, 0, 0}, 1, index.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://example.com/a", hits[0].Entry.Payload.DocumentURL)
	assert.Equal(t, "alpha", hits[0].Entry.Payload.Text)
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore()
	defer store.Close()

	err := store.Load(filepath.Join(t.TempDir(), "missing.hnsw"))
	assert.True(t, os.IsNotExist(err), "expected not-exist error, got %v", err)
}

func TestStore_SaveAfterDeleteOmitsRemovedEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	store := NewStore()
	defer store.Close()
	err := store.Upsert(ctx, []index.Entry{
		{
			ID:      index.EntryID(1, "https://example.com/a", 0, 1),
			Vector:  []float32{1, 0, 0},
			Payload: index.Payload{SourceId: core.ID(1), DocumentURL: "https://example.com/a", Generation: 1},
		},
		{
			ID:      index.EntryID(1, "https://example.com/a", 0, 2),
			Vector:  []float32{1, 0, 0},
			Payload: index.Payload{SourceId: core.ID(1), DocumentURL: "https://example.com/a", Generation: 2},
		},
	})
	require.NoError(t, err)

	_, err = store.Delete(ctx, index.Filter{SourceId: core.ID(1), BeforeGeneration: 2})
	require.NoError(t, err)
	require.NoError(t, store.Save(path))

	loaded := NewStore()
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	count, err := loaded.Count(ctx, index.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "lazily deleted entries must not resurface after load")
}
