package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/leonj1/Archon-sub001/ai"
	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/index"
)

// BatchExecutor turns chunk texts into vectors via the embedding capability,
// tolerating partial provider failures. Chunks are grouped into fixed-size
// batches to bound request size; batches are dispatched concurrently on a
// worker pool, and because every batch writes only its own slice of the input,
// the chunk set is order-stable when Execute returns.
type BatchExecutor struct {
	embedder       ai.Embedder
	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
	pool           *ants.Pool
	logger         *slog.Logger
}

// BatchResult summarizes one execution.
type BatchResult struct {
	Embedded int
	Failed   int
}

// NewBatchExecutor creates a batch executor with its own worker pool.
// batchSize: number of chunks per provider call
// concurrency: maximum batches in flight at once
func NewBatchExecutor(embedder ai.Embedder, batchSize, concurrency, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) (*BatchExecutor, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if batchSize < 1 {
		batchSize = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}

	return &BatchExecutor{
		embedder:       embedder,
		batchSize:      batchSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		pool:           pool,
		logger:         logger.With("component", "batch-executor"),
	}, nil
}

// Execute embeds all chunks in place. Vectors are normalized so cosine
// similarity is a dot product. A batch whose retries are exhausted marks its
// chunks failed (nil vector) and does not abort sibling batches. Zero
// successes over a non-empty input is a stage failure.
//
// onProgress, when non-nil, is called after each finished batch with the
// number of processed and total chunks.
func (e *BatchExecutor) Execute(ctx context.Context, chunks []*core.Chunk, onProgress func(done, total int)) (BatchResult, error) {
	if len(chunks) == 0 {
		return BatchResult{}, nil
	}

	batches := make([][]*core.Chunk, 0, (len(chunks)+e.batchSize-1)/e.batchSize)
	for start := 0; start < len(chunks); start += e.batchSize {
		end := start + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}

	var (
		wg        sync.WaitGroup
		failed    atomic.Int64
		processed atomic.Int64
	)

	for _, batch := range batches {
		batch := batch
		wg.Add(1)
		submitErr := e.pool.Submit(func() {
			defer wg.Done()

			if err := e.embedBatch(ctx, batch); err != nil {
				e.logger.Warn("batch failed after retries; continuing with remaining batches",
					"chunks", len(batch), "err", err)
				failed.Add(int64(len(batch)))
			}

			done := processed.Add(int64(len(batch)))
			if onProgress != nil {
				onProgress(int(done), len(chunks))
			}
		})
		if submitErr != nil {
			// Pool is released or overloaded; count the batch as failed
			wg.Done()
			failed.Add(int64(len(batch)))
		}
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{
		Embedded: len(chunks) - int(failed.Load()),
		Failed:   int(failed.Load()),
	}
	if result.Embedded == 0 {
		return result, ErrAllChunksFailed
	}
	return result, nil
}

// embedBatch embeds one batch with retry, attaching vectors in input order.
func (e *BatchExecutor) embedBatch(ctx context.Context, batch []*core.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = e.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		// The provider must preserve input order; the only observable check
		// is the count. A short or long result risks mis-aligned vectors, so
		// the whole batch fails, and retrying a provider that miscounts will
		// not fix it.
		if len(vectors) != len(texts) {
			return Permanent(fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors)))
		}
		return nil
	}, e.maxRetries, e.retryBaseDelay)
	if err != nil {
		return err
	}

	for i := range batch {
		batch[i].Vector = index.Normalize(vectors[i])
	}
	return nil
}

// Release releases the worker pool. The executor should not be used after
// calling Release.
func (e *BatchExecutor) Release() {
	e.pool.Release()
}
