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
	"log/slog"
	"time"

	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/index"
)

// upsertSliceSize bounds how many entries a single upsert pass covers so a
// retry after a transient index failure repeats bounded work.
const upsertSliceSize = 128

// Synchronizer publishes a fully embedded chunk set into the vector index
// using a generation-tagged replace protocol: the new generation is written
// first, then all entries from earlier generations of the same source are
// deleted. A failure before the delete step leaves the previous generation
// untouched and still serving queries.
type Synchronizer struct {
	idx            index.VectorIndex
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewSynchronizer creates a synchronizer over the given index.
func NewSynchronizer(idx index.VectorIndex, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) (*Synchronizer, error) {
	if idx == nil {
		return nil, ErrIndexRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		idx:            idx,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger.With("component", "synchronizer"),
	}, nil
}

// Replace upserts every chunk carrying a vector as an entry of the given
// generation, then deletes all older generations of the source. Chunks whose
// embedding failed (nil vector) are skipped. Returns the number of entries
// stored.
//
// Entry IDs are deterministic over (source, document, ordinal, generation),
// so a retried upsert overwrites rather than duplicates.
func (s *Synchronizer) Replace(ctx context.Context, sourceID core.ID, generation core.Generation, chunks []*core.Chunk) (int, error) {
	entries := make([]index.Entry, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Vector == nil {
			continue
		}
		entries = append(entries, index.Entry{
			ID:     index.EntryID(sourceID, chunk.DocumentURL, chunk.Ordinal, generation),
			Vector: chunk.Vector,
			Payload: index.Payload{
				SourceId:    sourceID,
				DocumentURL: chunk.DocumentURL,
				Title:       chunk.Title,
				Ordinal:     chunk.Ordinal,
				Text:        chunk.Text,
				Generation:  generation,
			},
		})
	}

	for start := 0; start < len(entries); start += upsertSliceSize {
		end := start + upsertSliceSize
		if end > len(entries) {
			end = len(entries)
		}
		slice := entries[start:end]

		err := RetryWithBackoff(ctx, func() error {
			return classifyIndexErr(s.idx.Upsert(ctx, slice))
		}, s.maxRetries, s.retryBaseDelay)
		if err != nil {
			return 0, err
		}
	}

	// New generation is fully present; sweep everything older. A failure here
	// fails the run, and because the committed generation recorded for the
	// source never advanced, queries keep resolving against the old entries
	// until the next successful run sweeps again.
	var removed int
	err := RetryWithBackoff(ctx, func() error {
		n, err := s.idx.Delete(ctx, index.Filter{
			SourceId:         sourceID,
			BeforeGeneration: generation,
		})
		removed += n
		return classifyIndexErr(err)
	}, s.maxRetries, s.retryBaseDelay)
	if err != nil {
		return 0, err
	}

	s.logger.Debug("index generation replaced",
		"source_id", sourceID, "generation", generation,
		"stored", len(entries), "removed", removed)
	return len(entries), nil
}

// classifyIndexErr marks index failures that cannot succeed on retry, a
// closed index or a vector of the wrong dimensionality, as permanent.
func classifyIndexErr(err error) error {
	if err == nil {
		return nil
	}
	var dim index.ErrDimensionMismatch
	if errors.Is(err, index.ErrIndexClosed) || errors.As(err, &dim) {
		return Permanent(err)
	}
	return err
}
