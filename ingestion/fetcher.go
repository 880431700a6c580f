package ingestion

import "context"

// FetchedDocument is one raw document produced by the external fetch
// capability, before it is bound to a source.
type FetchedDocument struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]string
}

// Fetcher is the external crawl capability: it turns an origin URL into raw
// documents. Implementations must return an explicit error instead of a
// partial silent result, and must honor context cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string, maxDepth int) ([]FetchedDocument, error) {
	return f(ctx, url, maxDepth)
}
