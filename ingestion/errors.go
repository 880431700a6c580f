package ingestion

import "errors"

var (
	// ErrSourceRepositoryRequired is returned when a source repository is not provided.
	ErrSourceRepositoryRequired = errors.New("source repository required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrFetcherRequired is returned when a fetcher is not provided.
	ErrFetcherRequired = errors.New("fetcher required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrRunActive is returned when an ingestion run is already active for the
	// source. The second call is rejected, not queued.
	ErrRunActive = errors.New("ingestion run already active for source")

	// ErrRunNotFound is returned when cancelling a run that is not active.
	ErrRunNotFound = errors.New("ingestion run not found")

	// ErrAllChunksFailed is returned when no chunk of a non-empty input could
	// be embedded. Partial failure is tolerated; total failure is not.
	ErrAllChunksFailed = errors.New("all chunks failed to embed")

	// ErrInvalidMaxAttempts is returned when a retry is configured with a
	// non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")
)
