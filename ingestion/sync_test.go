package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/index"
	"github.com/leonj1/Archon-sub001/index/hnsw"
)

func newTestSynchronizer(t *testing.T, idx index.VectorIndex) *Synchronizer {
	t.Helper()
	sync, err := NewSynchronizer(idx, 2, time.Millisecond, slog.Default())
	require.NoError(t, err)
	return sync
}

func embeddedChunks(sourceID core.ID, generation core.Generation, n int) []*core.Chunk {
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			SourceId:    sourceID,
			DocumentURL: "https://example.com/page",
			Ordinal:     i,
			Text:        "some text",
			Vector:      []float32{float32(i + 1), 1, 0},
			Generation:  generation,
		}
	}
	return chunks
}

func TestSynchronizer_StoresNewGeneration(t *testing.T) {
	store := hnsw.NewStore()
	defer store.Close()
	sync := newTestSynchronizer(t, store)

	stored, err := sync.Replace(context.Background(), core.ID(1), 1, embeddedChunks(1, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, stored)

	count, err := store.Count(context.Background(), index.Filter{SourceId: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestSynchronizer_SkipsFailedChunks(t *testing.T) {
	store := hnsw.NewStore()
	defer store.Close()
	sync := newTestSynchronizer(t, store)

	chunks := embeddedChunks(1, 1, 4)
	chunks[1].Vector = nil
	chunks[3].Vector = nil

	stored, err := sync.Replace(context.Background(), core.ID(1), 1, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
}

func TestSynchronizer_SweepsOlderGenerations(t *testing.T) {
	store := hnsw.NewStore()
	defer store.Close()
	sync := newTestSynchronizer(t, store)

	ctx := context.Background()
	_, err := sync.Replace(ctx, core.ID(1), 1, embeddedChunks(1, 1, 5))
	require.NoError(t, err)

	// The recrawl produced fewer chunks; after the sweep only generation 2
	// entries remain.
	_, err = sync.Replace(ctx, core.ID(1), 2, embeddedChunks(1, 2, 3))
	require.NoError(t, err)

	total, err := store.Count(ctx, index.Filter{SourceId: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	old, err := store.Count(ctx, index.Filter{SourceId: 1, Generation: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, old, "generation 1 entries should be swept")
}

func TestSynchronizer_DoesNotTouchOtherSources(t *testing.T) {
	store := hnsw.NewStore()
	defer store.Close()
	sync := newTestSynchronizer(t, store)

	ctx := context.Background()
	_, err := sync.Replace(ctx, core.ID(1), 1, embeddedChunks(1, 1, 4))
	require.NoError(t, err)
	_, err = sync.Replace(ctx, core.ID(2), 1, embeddedChunks(2, 1, 4))
	require.NoError(t, err)

	_, err = sync.Replace(ctx, core.ID(1), 2, embeddedChunks(1, 2, 2))
	require.NoError(t, err)

	other, err := store.Count(ctx, index.Filter{SourceId: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, other, "source 2 entries must survive source 1's sweep")
}

type failingIndex struct {
	index.VectorIndex
	failUpsert bool
	failDelete bool
}

func (f *failingIndex) Upsert(ctx context.Context, entries []index.Entry) error {
	if f.failUpsert {
		return errors.New("index unavailable")
	}
	return f.VectorIndex.Upsert(ctx, entries)
}

func (f *failingIndex) Delete(ctx context.Context, filter index.Filter) (int, error) {
	if f.failDelete {
		return 0, errors.New("index unavailable")
	}
	return f.VectorIndex.Delete(ctx, filter)
}

func TestSynchronizer_UpsertFailureKeepsOldGeneration(t *testing.T) {
	store := hnsw.NewStore()
	defer store.Close()

	ctx := context.Background()
	healthy := newTestSynchronizer(t, store)
	_, err := healthy.Replace(ctx, core.ID(1), 1, embeddedChunks(1, 1, 3))
	require.NoError(t, err)

	broken := newTestSynchronizer(t, &failingIndex{VectorIndex: store, failUpsert: true})
	_, err = broken.Replace(ctx, core.ID(1), 2, embeddedChunks(1, 2, 3))
	require.Error(t, err)

	// Old generation is untouched and still serving.
	old, err := store.Count(ctx, index.Filter{SourceId: 1, Generation: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, old)
}

func TestSynchronizer_DeleteFailureReported(t *testing.T) {
	store := hnsw.NewStore()
	defer store.Close()

	ctx := context.Background()
	healthy := newTestSynchronizer(t, store)
	_, err := healthy.Replace(ctx, core.ID(1), 1, embeddedChunks(1, 1, 2))
	require.NoError(t, err)

	broken := newTestSynchronizer(t, &failingIndex{VectorIndex: store, failDelete: true})
	_, err = broken.Replace(ctx, core.ID(1), 2, embeddedChunks(1, 2, 2))
	require.Error(t, err, "a failed sweep must fail the run")

	// The new generation was written before the sweep failed; the next
	// successful replace sweeps both.
	_, err = healthy.Replace(ctx, core.ID(1), 3, embeddedChunks(1, 3, 1))
	require.NoError(t, err)

	total, err := store.Count(ctx, index.Filter{SourceId: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
