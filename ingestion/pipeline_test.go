package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonj1/Archon-sub001/ai/mock"
	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/index"
	"github.com/leonj1/Archon-sub001/index/hnsw"
	"github.com/leonj1/Archon-sub001/storage"
	"github.com/leonj1/Archon-sub001/storage/badger"
)

type pipelineFixture struct {
	pipeline   *Pipeline
	sourceRepo storage.SourceRepository
	store      *hnsw.Store
	embedder   *mock.MockEmbedder
}

func newPipelineFixture(t *testing.T, fetcher Fetcher) *pipelineFixture {
	t.Helper()

	sourceRepo, documentRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	store := hnsw.NewStore()
	t.Cleanup(func() { store.Close() })

	embedder := mock.NewMockEmbedder()

	pipeline, err := NewPipeline(sourceRepo, documentRepo, fetcher, embedder, store)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	return &pipelineFixture{
		pipeline:   pipeline,
		sourceRepo: sourceRepo,
		store:      store,
		embedder:   embedder,
	}
}

func staticFetcher(docs ...FetchedDocument) Fetcher {
	return FetcherFunc(func(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error) {
		return docs, nil
	})
}

// waitForTerminal polls until the source reaches a terminal status.
func waitForTerminal(t *testing.T, repo storage.SourceRepository, id core.ID) *core.Source {
	t.Helper()
	return waitForTerminalAfter(t, repo, id, time.Time{})
}

// waitForTerminalAfter polls until the source carries a terminal status
// written after the given time. Re-running a source starts from a record that
// is already terminal, so a plain terminal check would observe the previous
// run's state; anchoring on the prior record's UpdatedAt distinguishes the
// new run's terminal write from the old one.
func waitForTerminalAfter(t *testing.T, repo storage.SourceRepository, id core.ID, after time.Time) *core.Source {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		source, err := repo.GetSource(context.Background(), id)
		require.NoError(t, err)
		if source.Status.Terminal() && source.UpdatedAt.After(after) {
			return source
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("source never reached a terminal status")
	return nil
}

func TestPipeline_SuccessfulRun(t *testing.T) {
	fetcher := staticFetcher(
		FetchedDocument{URL: "https://example.com/a", Title: "A", Content: "alpha content"},
		FetchedDocument{URL: "https://example.com/b", Title: "B", Content: "beta content"},
	)
	f := newPipelineFixture(t, fetcher)

	runID, err := f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "example",
		OriginURL: "https://example.com",
	}, nil)
	require.NoError(t, err)
	require.NotZero(t, runID)

	source := waitForTerminal(t, f.sourceRepo, core.IDFromContent("https://example.com"))
	assert.Equal(t, core.StatusCompleted, source.Status)
	assert.Equal(t, 2, source.DocumentCount)
	assert.Equal(t, 2, source.ChunkCount)
	assert.Equal(t, 0, source.FailedChunkCount)
	assert.Equal(t, core.Generation(1), source.Generation)

	count, err := f.store.Count(context.Background(), index.Filter{SourceId: source.Id})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPipeline_FetchFailureWritesFailed(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error) {
		return nil, errors.New("origin unreachable")
	})
	f := newPipelineFixture(t, fetcher)

	_, err := f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "broken",
		OriginURL: "https://broken.example.com",
	}, nil)
	require.NoError(t, err)

	source := waitForTerminal(t, f.sourceRepo, core.IDFromContent("https://broken.example.com"))
	assert.Equal(t, core.StatusFailed, source.Status)
	assert.Contains(t, source.StatusDetail, "origin unreachable")
}

func TestPipeline_InvalidOriginURLRejectedSynchronously(t *testing.T) {
	f := newPipelineFixture(t, staticFetcher())

	_, err := f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "bad",
		OriginURL: "not a url",
	}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidOriginURL)
}

func TestPipeline_NilSourceRejectedSynchronously(t *testing.T) {
	f := newPipelineFixture(t, staticFetcher())

	_, err := f.pipeline.BeginIngest(context.Background(), nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidSource)
}

func TestPipeline_ConcurrentRunRejected(t *testing.T) {
	gate := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []FetchedDocument{{URL: url, Content: "content"}}, nil
	})
	f := newPipelineFixture(t, fetcher)

	source := &core.Source{Name: "example", OriginURL: "https://example.com"}
	_, err := f.pipeline.BeginIngest(context.Background(), source, nil)
	require.NoError(t, err)

	_, err = f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "example",
		OriginURL: "https://example.com",
	}, nil)
	assert.ErrorIs(t, err, ErrRunActive, "second run for the same source is rejected, not queued")

	close(gate)
	final := waitForTerminal(t, f.sourceRepo, core.IDFromContent("https://example.com"))
	assert.Equal(t, core.StatusCompleted, final.Status)
}

func TestPipeline_CancelWritesFailed(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newPipelineFixture(t, fetcher)

	runID, err := f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "slow",
		OriginURL: "https://slow.example.com",
	}, nil)
	require.NoError(t, err)

	require.NoError(t, f.pipeline.Cancel(runID))

	source := waitForTerminal(t, f.sourceRepo, core.IDFromContent("https://slow.example.com"))
	assert.Equal(t, core.StatusFailed, source.Status)
	assert.Equal(t, "cancelled", source.StatusDetail)
}

func TestPipeline_CancelUnknownRun(t *testing.T) {
	f := newPipelineFixture(t, staticFetcher())

	err := f.pipeline.Cancel(core.ID(12345))
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestPipeline_PartialEmbeddingFailureStillCompletes(t *testing.T) {
	fetcher := staticFetcher(
		FetchedDocument{URL: "https://example.com/a", Content: "good content"},
		FetchedDocument{URL: "https://example.com/b", Content: "poison content"},
	)
	f := newPipelineFixture(t, fetcher)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.Contains(text, "poison") {
				return nil, errors.New("provider rejected input")
			}
		}
		vectors := make([][]float32, len(texts))
		for i := range vectors {
			vectors[i] = []float32{1, 0, 0}
		}
		return vectors, nil
	}

	opts := DefaultOptions()
	opts.BatchSize = 1
	opts.MaxRetries = 1
	opts.RetryBaseDelay = time.Millisecond

	_, err := f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "example",
		OriginURL: "https://example.com",
	}, &opts)
	require.NoError(t, err)

	source := waitForTerminal(t, f.sourceRepo, core.IDFromContent("https://example.com"))
	assert.Equal(t, core.StatusCompleted, source.Status, "partial embedding failure must not fail the run")
	assert.Equal(t, 1, source.ChunkCount)
	assert.Equal(t, 1, source.FailedChunkCount)
	assert.Contains(t, source.StatusDetail, "1 chunks failed to embed")
}

func TestPipeline_AllEmbeddingsFailedFailsRun(t *testing.T) {
	fetcher := staticFetcher(FetchedDocument{URL: "https://example.com/a", Content: "content"})
	f := newPipelineFixture(t, fetcher)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("provider down")
	}

	opts := DefaultOptions()
	opts.MaxRetries = 1
	opts.RetryBaseDelay = time.Millisecond

	_, err := f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "example",
		OriginURL: "https://example.com",
	}, &opts)
	require.NoError(t, err)

	source := waitForTerminal(t, f.sourceRepo, core.IDFromContent("https://example.com"))
	assert.Equal(t, core.StatusFailed, source.Status)
}

func TestPipeline_RecrawlReplacesOldGeneration(t *testing.T) {
	var current []FetchedDocument
	fetcher := FetcherFunc(func(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error) {
		return current, nil
	})
	f := newPipelineFixture(t, fetcher)

	ctx := context.Background()
	sourceID := core.IDFromContent("https://example.com")

	current = []FetchedDocument{
		{URL: "https://example.com/a", Content: "first crawl a"},
		{URL: "https://example.com/b", Content: "first crawl b"},
		{URL: "https://example.com/c", Content: "first crawl c"},
	}
	_, err := f.pipeline.BeginIngest(ctx, &core.Source{Name: "example", OriginURL: "https://example.com"}, nil)
	require.NoError(t, err)
	first := waitForTerminal(t, f.sourceRepo, sourceID)
	require.Equal(t, core.StatusCompleted, first.Status)
	require.Equal(t, core.Generation(1), first.Generation)

	current = []FetchedDocument{
		{URL: "https://example.com/a", Content: "second crawl a"},
	}
	_, err = f.pipeline.BeginIngest(ctx, &core.Source{Name: "example", OriginURL: "https://example.com"}, nil)
	require.NoError(t, err)
	second := waitForTerminalAfter(t, f.sourceRepo, sourceID, first.UpdatedAt)
	assert.Equal(t, core.StatusCompleted, second.Status)
	assert.Equal(t, core.Generation(2), second.Generation)

	// Only the new generation remains in the index.
	total, err := f.store.Count(ctx, index.Filter{SourceId: sourceID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	old, err := f.store.Count(ctx, index.Filter{SourceId: sourceID, Generation: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, old)
}

func TestPipeline_ProgressEventsObserved(t *testing.T) {
	gate := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []FetchedDocument{{URL: url, Content: "content"}}, nil
	})
	f := newPipelineFixture(t, fetcher)

	runID, err := f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "example",
		OriginURL: "https://example.com",
	}, nil)
	require.NoError(t, err)

	events, cancel := f.pipeline.Subscribe(runID)
	defer cancel()
	close(gate)

	stages := make(map[core.SourceStatus]bool)
	for event := range events {
		assert.Equal(t, runID, event.RunId)
		stages[event.Stage] = true
	}
	assert.True(t, stages[core.StatusCompleted], "completion event should be observed; got %v", stages)
}

func TestPipeline_EmptyDocumentsSkipped(t *testing.T) {
	fetcher := staticFetcher(
		FetchedDocument{URL: "https://example.com/a", Content: "real content"},
		FetchedDocument{URL: "https://example.com/empty", Content: ""},
	)
	f := newPipelineFixture(t, fetcher)

	_, err := f.pipeline.BeginIngest(context.Background(), &core.Source{
		Name:      "example",
		OriginURL: "https://example.com",
	}, nil)
	require.NoError(t, err)

	source := waitForTerminal(t, f.sourceRepo, core.IDFromContent("https://example.com"))
	assert.Equal(t, core.StatusCompleted, source.Status)
	assert.Equal(t, 1, source.DocumentCount, "empty documents are dropped before storage")
}
