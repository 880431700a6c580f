// Package mock provides a test double implementation of the ai.Embedder
// interface.
//
// The mock allows tests to run without an external embedding service and
// enables controlled, deterministic behavior: by default the same text always
// produces the same unit vector, so similarity queries in tests behave
// consistently.
//
//	// Basic usage with default behavior
//	embedder := mock.NewMockEmbedder()
//	vectors, err := embedder.EmbedTexts(ctx, []string{"test"})
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("rate limited")
//	}
package mock
