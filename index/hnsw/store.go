// Package hnsw provides an in-process implementation of index.VectorIndex
// backed by a pure Go HNSW graph. Vectors are stored normalized so cosine
// similarity is a plain dot product.
package hnsw

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/coder/hnsw"

	"github.com/leonj1/Archon-sub001/index"
)

// Store implements index.VectorIndex using coder/hnsw.
type Store struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	// ID mapping (string <-> uint64) plus payloads
	idMap    map[string]uint64
	keyMap   map[uint64]string
	payloads map[uint64]index.Payload
	nextKey  uint64

	dimensions int // 0 until the first upsert fixes it
	closed     bool
	logger     *slog.Logger
}

var _ index.VectorIndex = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty in-process vector index. The dimensionality is
// fixed by the first upserted entry.
func NewStore(opts ...Option) *Store {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	s := &Store{
		graph:    graph,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		payloads: make(map[uint64]index.Payload),
		logger:   slog.Default().With("component", "hnsw-index"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert inserts or replaces entries by ID. Replaced entries are removed
// lazily: the old graph node is orphaned and skipped on query, which avoids
// coder/hnsw issues with deleting the last node.
func (s *Store) Upsert(ctx context.Context, entries []index.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return index.ErrIndexClosed
	}

	for _, entry := range entries {
		if len(entry.Vector) == 0 {
			return index.ErrEmptyVector
		}
		if s.dimensions == 0 {
			s.dimensions = len(entry.Vector)
		}
		if len(entry.Vector) != s.dimensions {
			return index.ErrDimensionMismatch{Expected: s.dimensions, Got: len(entry.Vector)}
		}
	}

	for _, entry := range entries {
		if existingKey, exists := s.idMap[entry.ID]; exists {
			delete(s.keyMap, existingKey) // orphan the old node
			delete(s.payloads, existingKey)
			delete(s.idMap, entry.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(entry.Vector))
		copy(vec, entry.Vector)
		index.NormalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[entry.ID] = key
		s.keyMap[key] = entry.ID
		s.payloads[key] = entry.Payload
	}

	return nil
}

// Delete removes all entries matching the filter. Uses lazy deletion: nodes
// stay in the graph but disappear from the mappings and thus from results.
func (s *Store) Delete(ctx context.Context, filter index.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, index.ErrIndexClosed
	}

	removed := 0
	for key, payload := range s.payloads {
		if !filter.Matches(payload) {
			continue
		}
		id := s.keyMap[key]
		delete(s.idMap, id)
		delete(s.keyMap, key)
		delete(s.payloads, key)
		removed++
	}

	return removed, nil
}

// Query returns up to limit hits nearest to the vector, restricted to the
// filter. The graph is over-fetched to compensate for filtered and orphaned
// nodes; if that still comes up short the whole graph is searched.
func (s *Store) Query(ctx context.Context, vector []float32, limit int, filter index.Filter) ([]index.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, index.ErrIndexClosed
	}
	if len(vector) == 0 {
		return nil, index.ErrEmptyVector
	}
	if s.dimensions != 0 && len(vector) != s.dimensions {
		return nil, index.ErrDimensionMismatch{Expected: s.dimensions, Got: len(vector)}
	}
	if limit <= 0 || s.graph.Len() == 0 {
		return []index.Hit{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	index.NormalizeInPlace(query)

	k := limit*4 + 16
	hits := s.searchLocked(query, k, limit, filter)
	if len(hits) < limit && k < s.graph.Len() {
		hits = s.searchLocked(query, s.graph.Len(), limit, filter)
	}
	return hits, nil
}

// searchLocked runs a graph search and converts matching nodes to hits.
// Caller must hold at least a read lock.
func (s *Store) searchLocked(query []float32, k, limit int, filter index.Filter) []index.Hit {
	nodes := s.graph.Search(query, k)

	hits := make([]index.Hit, 0, limit)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			// Orphaned by lazy deletion
			continue
		}
		payload := s.payloads[node.Key]
		if !filter.Matches(payload) {
			continue
		}

		distance := s.graph.Distance(query, node.Value)
		hits = append(hits, index.Hit{
			Entry: index.Entry{ID: id, Vector: node.Value, Payload: payload},
			Score: 1 - distance,
		})
	}

	// Score descending, ties broken by (source ID, document URL, ordinal)
	// ascending for determinism.
	slices.SortFunc(hits, func(a, b index.Hit) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.Entry.Payload.SourceId != b.Entry.Payload.SourceId {
			if a.Entry.Payload.SourceId < b.Entry.Payload.SourceId {
				return -1
			}
			return 1
		}
		if c := strings.Compare(a.Entry.Payload.DocumentURL, b.Entry.Payload.DocumentURL); c != 0 {
			return c
		}
		return a.Entry.Payload.Ordinal - b.Entry.Payload.Ordinal
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Count returns the number of entries matching the filter.
func (s *Store) Count(ctx context.Context, filter index.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, index.ErrIndexClosed
	}

	count := 0
	for _, payload := range s.payloads {
		if filter.Matches(payload) {
			count++
		}
	}
	return count, nil
}

// Close marks the index closed. Further operations fail with ErrIndexClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
