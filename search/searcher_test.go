package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonj1/Archon-sub001/ai/mock"
	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/index"
	"github.com/leonj1/Archon-sub001/index/hnsw"
	"github.com/leonj1/Archon-sub001/storage"
	"github.com/leonj1/Archon-sub001/storage/badger"
)

type searchFixture struct {
	searcher   *Searcher
	sourceRepo storage.SourceRepository
	store      *hnsw.Store
	embedder   *mock.MockEmbedder
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()

	sourceRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	store := hnsw.NewStore()
	t.Cleanup(func() { store.Close() })

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}

	searcher, err := NewSearcher(sourceRepo, store, embedder)
	require.NoError(t, err)

	return &searchFixture{
		searcher:   searcher,
		sourceRepo: sourceRepo,
		store:      store,
		embedder:   embedder,
	}
}

// seedSource creates a source record with a committed generation.
func (f *searchFixture) seedSource(t *testing.T, originURL string, generation core.Generation) core.ID {
	t.Helper()
	ctx := context.Background()

	stored, _, err := f.sourceRepo.CreateSourceIfAbsent(ctx, &core.Source{
		Name:      originURL,
		OriginURL: originURL,
	})
	require.NoError(t, err)

	if generation > 0 {
		err = f.sourceRepo.UpdateSourceStatus(ctx, stored.Id, core.StatusCompleted, "", &core.SourceCounts{
			Documents:  1,
			Chunks:     1,
			Generation: generation,
		})
		require.NoError(t, err)
	}
	return stored.Id
}

func (f *searchFixture) seedEntry(t *testing.T, sourceID core.ID, url string, ordinal int, generation core.Generation, vector []float32) {
	t.Helper()
	err := f.store.Upsert(context.Background(), []index.Entry{{
		ID:     index.EntryID(sourceID, url, ordinal, generation),
		Vector: vector,
		Payload: index.Payload{
			SourceId:    sourceID,
			DocumentURL: url,
			Ordinal:     ordinal,
			Text:        "entry text",
			Generation:  generation,
		},
	}})
	require.NoError(t, err)
}

func TestSearcher_EmptyQuery(t *testing.T) {
	f := newSearchFixture(t)

	_, err := f.searcher.Search(context.Background(), "   ", 10, 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearcher_InvalidLimit(t *testing.T) {
	f := newSearchFixture(t)

	_, err := f.searcher.Search(context.Background(), "query", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestSearcher_ReturnsCommittedEntries(t *testing.T) {
	f := newSearchFixture(t)
	sourceID := f.seedSource(t, "https://example.com", 1)
	f.seedEntry(t, sourceID, "https://example.com/a", 0, 1, []float32{1, 0, 0})
	f.seedEntry(t, sourceID, "https://example.com/b", 0, 1, []float32{0, 1, 0})

	results, err := f.searcher.Search(context.Background(), "query", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Closest vector first.
	assert.Equal(t, "https://example.com/a", results[0].DocumentURL)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, sourceID, results[0].SourceId)
}

func TestSearcher_InFlightGenerationInvisible(t *testing.T) {
	f := newSearchFixture(t)
	sourceID := f.seedSource(t, "https://example.com", 1)
	f.seedEntry(t, sourceID, "https://example.com/old", 0, 1, []float32{0, 1, 0})
	// Generation 2 exists in the index but was never committed.
	f.seedEntry(t, sourceID, "https://example.com/new", 0, 2, []float32{1, 0, 0})

	results, err := f.searcher.Search(context.Background(), "query", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/old", results[0].DocumentURL)
}

func TestSearcher_SourceFilter(t *testing.T) {
	f := newSearchFixture(t)
	sourceA := f.seedSource(t, "https://a.example.com", 1)
	sourceB := f.seedSource(t, "https://b.example.com", 1)
	f.seedEntry(t, sourceA, "https://a.example.com/x", 0, 1, []float32{1, 0, 0})
	f.seedEntry(t, sourceB, "https://b.example.com/y", 0, 1, []float32{1, 0, 0})

	results, err := f.searcher.Search(context.Background(), "query", 10, sourceB)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, sourceB, results[0].SourceId)
}

func TestSearcher_UnknownSource(t *testing.T) {
	f := newSearchFixture(t)

	results, err := f.searcher.Search(context.Background(), "query", 10, core.ID(999))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearcher_NeverCompletedSourceExcluded(t *testing.T) {
	f := newSearchFixture(t)
	// Source exists but has no committed generation.
	sourceID := f.seedSource(t, "https://example.com", 0)
	f.seedEntry(t, sourceID, "https://example.com/a", 0, 1, []float32{1, 0, 0})

	results, err := f.searcher.Search(context.Background(), "query", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearcher_LimitRespected(t *testing.T) {
	f := newSearchFixture(t)
	sourceID := f.seedSource(t, "https://example.com", 1)
	for i := 0; i < 5; i++ {
		f.seedEntry(t, sourceID, "https://example.com/doc", i, 1, []float32{1, float32(i) / 10, 0})
	}

	results, err := f.searcher.Search(context.Background(), "query", 2, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearcher_EmbeddingFailure(t *testing.T) {
	f := newSearchFixture(t)
	f.seedSource(t, "https://example.com", 1)
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("provider down")
	}

	_, err := f.searcher.Search(context.Background(), "query", 10, 0)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
