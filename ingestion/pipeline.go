// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/leonj1/Archon-sub001/ai"
	"github.com/leonj1/Archon-sub001/chunker"
	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/index"
	"github.com/leonj1/Archon-sub001/storage"
)

// Options control one ingestion run. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	MaxDepth         int
	ChunkSize        int
	ChunkOverlap     int
	BatchSize        int
	EmbedConcurrency int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	FetchTimeout     time.Duration
	EmbedTimeout     time.Duration
	IndexTimeout     time.Duration
}

// DefaultOptions returns the options used when BeginIngest receives nil.
func DefaultOptions() Options {
	return Options{
		MaxDepth:         2,
		ChunkSize:        chunker.DefaultSize,
		ChunkOverlap:     chunker.DefaultOverlap,
		BatchSize:        32,
		EmbedConcurrency: 4,
		MaxRetries:       3,
		RetryBaseDelay:   500 * time.Millisecond,
		FetchTimeout:     5 * time.Minute,
		EmbedTimeout:     10 * time.Minute,
		IndexTimeout:     2 * time.Minute,
	}
}

type activeRun struct {
	sourceID core.ID
	cancel   context.CancelFunc
}

// Pipeline drives a source through the full ingestion lifecycle: fetch,
// chunk, embed, index sync. Runs execute asynchronously on a worker pool;
// BeginIngest returns as soon as the run is admitted.
//
// At most one run per source is admitted at a time. Every admitted run writes
// exactly one terminal status (completed or failed) for its source.
type Pipeline struct {
	sourceRepo   storage.SourceRepository
	documentRepo storage.DocumentRepository
	fetcher      Fetcher
	embedder     ai.Embedder
	idx          index.VectorIndex

	broadcaster *Broadcaster
	runPool     *ants.Pool
	logger      *slog.Logger

	mu            sync.Mutex
	activeSources map[core.ID]struct{}
	runs          map[core.ID]*activeRun
}

// PipelineOption configures a Pipeline during construction.
type PipelineOption func(*Pipeline) error

// WithLogger sets the logger used by the pipeline and its stages.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithRunPoolSize bounds how many ingestion runs execute concurrently.
func WithRunPoolSize(size int) PipelineOption {
	return func(p *Pipeline) error {
		if size < 1 {
			return errors.New("run pool size must be positive")
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.runPool.Release()
		p.runPool = pool
		return nil
	}
}

// NewPipeline creates a pipeline over the given capabilities.
func NewPipeline(sourceRepo storage.SourceRepository, documentRepo storage.DocumentRepository, fetcher Fetcher, embedder ai.Embedder, idx index.VectorIndex, opts ...PipelineOption) (*Pipeline, error) {
	if sourceRepo == nil {
		return nil, ErrSourceRepositoryRequired
	}
	if documentRepo == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}

	runPool, err := ants.NewPool(8)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		sourceRepo:    sourceRepo,
		documentRepo:  documentRepo,
		fetcher:       fetcher,
		embedder:      embedder,
		idx:           idx,
		broadcaster:   NewBroadcaster(),
		runPool:       runPool,
		logger:        slog.Default(),
		activeSources: make(map[core.ID]struct{}),
		runs:          make(map[core.ID]*activeRun),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			runPool.Release()
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	return p, nil
}

// BeginIngest registers the source if it is new and starts an asynchronous
// ingestion run for it. The returned run ID identifies the run for Subscribe
// and Cancel. If a run for the same source is already active, no new run
// starts and ErrRunActive is returned.
func (p *Pipeline) BeginIngest(ctx context.Context, source *core.Source, opts *Options) (core.ID, error) {
	options := DefaultOptions()
	if opts != nil {
		options = *opts
	}

	// Validate everything that can fail synchronously before the source is
	// touched, so a bad request never burns a status transition.
	if source == nil {
		return 0, fmt.Errorf("%w: source is nil", core.ErrInvalidSource)
	}
	if _, err := chunker.New(options.ChunkSize, options.ChunkOverlap); err != nil {
		return 0, err
	}
	if err := core.ValidateOriginURL(source.OriginURL); err != nil {
		return 0, err
	}

	stored, _, err := p.sourceRepo.CreateSourceIfAbsent(ctx, source)
	if err != nil {
		return 0, err
	}

	runID := core.IDFromContent(fmt.Sprintf("%d/%d", stored.Id, time.Now().UnixNano()))

	p.mu.Lock()
	if _, active := p.activeSources[stored.Id]; active {
		p.mu.Unlock()
		return 0, fmt.Errorf("%w: source %d", ErrRunActive, stored.Id)
	}
	p.activeSources[stored.Id] = struct{}{}

	// Runs outlive the caller's request context; cancellation goes through
	// Cancel or Release.
	runCtx, cancel := context.WithCancel(context.Background())
	p.runs[runID] = &activeRun{sourceID: stored.Id, cancel: cancel}
	p.mu.Unlock()

	submitErr := p.runPool.Submit(func() {
		p.execute(runCtx, runID, stored, options)
	})
	if submitErr != nil {
		p.finishRun(runID, stored.Id)
		cancel()
		return 0, submitErr
	}

	p.logger.Info("ingestion run admitted",
		"run_id", runID, "source_id", stored.Id, "origin_url", stored.OriginURL)
	return runID, nil
}

// Cancel requests cancellation of an active run. The run still writes its
// terminal failed status before finishing.
func (p *Pipeline) Cancel(runID core.ID) error {
	p.mu.Lock()
	run, ok := p.runs[runID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	run.cancel()
	return nil
}

// Subscribe returns a channel of progress events for the given run. The
// channel closes when the run finishes or the returned cancel function is
// called.
func (p *Pipeline) Subscribe(runID core.ID) (<-chan core.ProgressEvent, func()) {
	return p.broadcaster.Subscribe(runID)
}

// Release cancels all active runs and shuts the run pool down. The pipeline
// should not be used after calling Release.
func (p *Pipeline) Release() {
	p.mu.Lock()
	for _, run := range p.runs {
		run.cancel()
	}
	p.mu.Unlock()

	p.runPool.Release()
}

func (p *Pipeline) finishRun(runID, sourceID core.ID) {
	p.mu.Lock()
	delete(p.runs, runID)
	delete(p.activeSources, sourceID)
	p.mu.Unlock()
}

// execute runs the full lifecycle for one source. It owns the source's status
// record for the duration of the run and guarantees exactly one terminal
// write.
func (p *Pipeline) execute(ctx context.Context, runID core.ID, source *core.Source, options Options) {
	logger := p.logger.With("run_id", runID, "source_id", source.Id)
	started := time.Now()

	completed := false
	var failDetail string
	defer func() {
		if !completed {
			if failDetail == "" {
				failDetail = "ingestion failed"
			}
			// The run context may already be cancelled; the terminal write
			// must still land.
			if err := p.sourceRepo.UpdateSourceStatus(context.Background(), source.Id, core.StatusFailed, failDetail, nil); err != nil {
				logger.Error("failed to record terminal status", "err", err)
			}
			p.publish(runID, source.Id, "failed", 100, failDetail)
		}
		p.broadcaster.EndRun(runID)
		p.finishRun(runID, source.Id)
	}()

	fail := func(stage string, err error) {
		if errors.Is(err, context.Canceled) {
			failDetail = "cancelled"
			logger.Info("ingestion run cancelled", "stage", stage)
			return
		}
		failDetail = fmt.Sprintf("%s: %v", stage, err)
		logger.Error("ingestion run failed", "stage", stage, "err", err)
	}

	// Stage 1: crawl.
	if err := p.sourceRepo.UpdateSourceStatus(ctx, source.Id, core.StatusCrawling, "", nil); err != nil {
		fail("crawling", err)
		return
	}
	p.publish(runID, source.Id, "crawling", 0, source.OriginURL)

	fetchCtx, cancelFetch := context.WithTimeout(ctx, options.FetchTimeout)
	fetched, err := p.fetcher.Fetch(fetchCtx, source.OriginURL, options.MaxDepth)
	cancelFetch()
	if err != nil {
		fail("crawling", err)
		return
	}

	docs := make([]*core.Document, 0, len(fetched))
	for _, fd := range fetched {
		if fd.Content == "" {
			logger.Warn("skipping empty document", "url", fd.URL)
			continue
		}
		docs = append(docs, &core.Document{
			SourceId: source.Id,
			URL:      fd.URL,
			Title:    fd.Title,
			Content:  fd.Content,
			Metadata: fd.Metadata,
		})
	}
	if _, err := p.documentRepo.ReplaceDocuments(ctx, source.Id, docs...); err != nil {
		fail("crawling", err)
		return
	}
	p.publish(runID, source.Id, "crawling", 100, fmt.Sprintf("%d documents", len(docs)))

	// Stage 2: chunk and embed.
	if err := p.sourceRepo.UpdateSourceStatus(ctx, source.Id, core.StatusProcessing, "", nil); err != nil {
		fail("processing", err)
		return
	}

	generation := source.Generation + 1

	splitter, err := chunker.New(options.ChunkSize, options.ChunkOverlap)
	if err != nil {
		fail("processing", err)
		return
	}

	var chunks []*core.Chunk
	for _, doc := range docs {
		for _, piece := range splitter.Split(doc.Content) {
			chunks = append(chunks, &core.Chunk{
				SourceId:    source.Id,
				DocumentURL: doc.URL,
				Title:       doc.Title,
				Ordinal:     piece.Ordinal,
				Text:        piece.Text,
				Generation:  generation,
			})
		}
	}
	p.publish(runID, source.Id, "processing", 0, fmt.Sprintf("%d chunks", len(chunks)))

	executor, err := NewBatchExecutor(p.embedder, options.BatchSize, options.EmbedConcurrency, options.MaxRetries, options.RetryBaseDelay, logger)
	if err != nil {
		fail("processing", err)
		return
	}
	defer executor.Release()

	embedCtx, cancelEmbed := context.WithTimeout(ctx, options.EmbedTimeout)
	batchResult, err := executor.Execute(embedCtx, chunks, func(done, total int) {
		p.publish(runID, source.Id, "processing", done*100/total, fmt.Sprintf("%d/%d chunks embedded", done, total))
	})
	cancelEmbed()
	if err != nil {
		fail("processing", err)
		return
	}

	// Stage 3: index sync.
	if err := p.sourceRepo.UpdateSourceStatus(ctx, source.Id, core.StatusStoring, "", nil); err != nil {
		fail("storing", err)
		return
	}
	p.publish(runID, source.Id, "storing", 0, "")

	synchronizer, err := NewSynchronizer(p.idx, options.MaxRetries, options.RetryBaseDelay, logger)
	if err != nil {
		fail("storing", err)
		return
	}

	indexCtx, cancelIndex := context.WithTimeout(ctx, options.IndexTimeout)
	stored, err := synchronizer.Replace(indexCtx, source.Id, generation, chunks)
	cancelIndex()
	if err != nil {
		fail("storing", err)
		return
	}

	// Terminal: committing the counts advances the source's generation, which
	// is what makes the new entries visible to search.
	detail := ""
	if batchResult.Failed > 0 {
		detail = fmt.Sprintf("%d chunks failed to embed", batchResult.Failed)
	}
	counts := &core.SourceCounts{
		Documents:    len(docs),
		Chunks:       stored,
		FailedChunks: batchResult.Failed,
		Generation:   generation,
	}
	if err := p.sourceRepo.UpdateSourceStatus(ctx, source.Id, core.StatusCompleted, detail, counts); err != nil {
		fail("completing", err)
		return
	}
	completed = true

	p.publish(runID, source.Id, "completed", 100, detail)
	logger.Info("ingestion run completed",
		"documents", len(docs), "chunks", stored,
		"failed_chunks", batchResult.Failed, "generation", generation,
		"duration", time.Since(started))
}

func (p *Pipeline) publish(runID, sourceID core.ID, stage core.SourceStatus, percent int, detail string) {
	p.broadcaster.Publish(core.ProgressEvent{
		RunId:    runID,
		SourceId: sourceID,
		Stage:    stage,
		Percent:  percent,
		Detail:   detail,
	})
}
