package search

import "errors"

var (
	// ErrEmptyQuery is returned when the query text is empty.
	ErrEmptyQuery = errors.New("query text cannot be empty")

	// ErrInvalidLimit is returned when the result limit is not positive.
	ErrInvalidLimit = errors.New("result limit must be positive")

	// ErrSourceRepositoryRequired is returned when a source repository is not provided.
	ErrSourceRepositoryRequired = errors.New("source repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbeddingFailed wraps an embedding provider failure for the query text.
	ErrEmbeddingFailed = errors.New("failed to embed query")
)
