package archon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonj1/Archon-sub001/ai/mock"
	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/ingestion"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService("", WithInMemoryStorage(), WithEmbedder(mock.NewMockEmbedder()))
	require.NoError(t, err)
	t.Cleanup(func() { service.Close() })
	return service
}

func TestService_IngestThenSearch(t *testing.T) {
	service := newTestService(t)

	fetcher := ingestion.FetcherFunc(func(ctx context.Context, url string, maxDepth int) ([]ingestion.FetchedDocument, error) {
		return []ingestion.FetchedDocument{
			{URL: url + "/intro", Title: "Intro", Content: "an introduction to the system"},
			{URL: url + "/guide", Title: "Guide", Content: "a detailed operator guide"},
		}, nil
	})

	pipeline, err := service.NewIngestionPipeline(fetcher)
	require.NoError(t, err)
	defer pipeline.Release()

	ctx := context.Background()
	_, err = pipeline.BeginIngest(ctx, &core.Source{
		Name:      "docs",
		OriginURL: "https://docs.example.com",
	}, nil)
	require.NoError(t, err)

	sourceID := core.IDFromContent("https://docs.example.com")
	var source *core.Source
	deadline := time.Now().Add(5 * time.Second)
	for {
		source, err = service.SourceRepository().GetSource(ctx, sourceID)
		require.NoError(t, err)
		if source.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ingestion run did not finish in time, status %s", source.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, core.StatusCompleted, source.Status)

	searcher, err := service.NewSearcher()
	require.NoError(t, err)

	results, err := searcher.Search(ctx, "operator guide", 5, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	for _, result := range results {
		assert.Equal(t, sourceID, result.SourceId)
		assert.NotEmpty(t, result.Text)
	}
}

func TestService_SearchBeforeAnyIngest(t *testing.T) {
	service := newTestService(t)

	searcher, err := service.NewSearcher()
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "anything", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
