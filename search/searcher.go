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


package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leonj1/Archon-sub001/ai"
	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/index"
	"github.com/leonj1/Archon-sub001/storage"
)

// Searcher answers similarity queries over ingested content.
type Searcher struct {
	sourceRepo storage.SourceRepository
	idx        index.VectorIndex
	embedder   ai.Embedder
	logger     *slog.Logger
}

// Option configures a Searcher during construction.
type Option func(*Searcher) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a searcher over the given capabilities.
func NewSearcher(sourceRepo storage.SourceRepository, idx index.VectorIndex, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if sourceRepo == nil {
		return nil, ErrSourceRepositoryRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		sourceRepo: sourceRepo,
		idx:        idx,
		embedder:   embedder,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search embeds the query text and returns up to limit results ordered by
// similarity score descending. A non-zero sourceID restricts results to that
// source. Only entries belonging to a source's committed generation are
// returned; an in-flight run's entries stay invisible until its run commits.
func (s *Searcher) Search(ctx context.Context, query string, limit int, sourceID core.ID) ([]core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	committed, err := s.committedGenerations(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if len(committed) == 0 {
		return []core.SearchResult{}, nil
	}

	started := time.Now()
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	// Overfetch so dropping uncommitted-generation hits still fills the
	// requested limit in the common case.
	hits, err := s.idx.Query(ctx, vector, limit*2, index.Filter{SourceId: sourceID})
	if err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, limit)
	for _, hit := range hits {
		generation, ok := committed[hit.Entry.Payload.SourceId]
		if !ok || hit.Entry.Payload.Generation != generation {
			continue
		}
		results = append(results, core.SearchResult{
			SourceId:    hit.Entry.Payload.SourceId,
			DocumentURL: hit.Entry.Payload.DocumentURL,
			Title:       hit.Entry.Payload.Title,
			Text:        hit.Entry.Payload.Text,
			Ordinal:     hit.Entry.Payload.Ordinal,
			Score:       hit.Score,
		})
		if len(results) == limit {
			break
		}
	}

	s.logger.Debug("search executed",
		"limit", limit, "source_id", sourceID,
		"hits", len(hits), "results", len(results),
		"duration", time.Since(started))
	return results, nil
}

// committedGenerations maps each eligible source to its committed generation.
// Sources that never completed a run have generation zero and are excluded,
// since no entry of theirs is committed.
func (s *Searcher) committedGenerations(ctx context.Context, sourceID core.ID) (map[core.ID]core.Generation, error) {
	committed := make(map[core.ID]core.Generation)

	if sourceID != 0 {
		source, err := s.sourceRepo.GetSource(ctx, sourceID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return committed, nil
			}
			return nil, err
		}
		if source.Generation > 0 {
			committed[source.Id] = source.Generation
		}
		return committed, nil
	}

	sources, err := s.sourceRepo.ListSources(ctx, storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	for _, source := range sources {
		if source.Generation > 0 {
			committed[source.Id] = source.Generation
		}
	}
	return committed, nil
}
