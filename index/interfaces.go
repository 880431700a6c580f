package index

import (
	"context"
	"fmt"

	"github.com/leonj1/Archon-sub001/core"
)

// Payload is the metadata stored alongside a vector. It carries enough
// provenance to build search results without consulting another store.
type Payload struct {
	SourceId    core.ID
	DocumentURL string
	Title       string
	Ordinal     int
	Text        string
	Generation  core.Generation
}

// Entry is one vector plus payload, identified by a deterministic ID so
// upserting the same entry twice is idempotent.
type Entry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is one ranked result of a similarity query.
type Hit struct {
	Entry Entry
	Score float32
}

// Filter restricts a query, delete or count to matching payloads.
// Zero values mean "no restriction" for their field; generations are always
// positive, so 0 is unambiguous.
type Filter struct {
	// SourceId restricts to one source when non-zero.
	SourceId core.ID
	// Generation restricts to an exact generation when non-zero.
	Generation core.Generation
	// BeforeGeneration restricts to generations strictly older than the given
	// one when non-zero. Used to sweep superseded generations.
	BeforeGeneration core.Generation
}

// Matches reports whether a payload satisfies the filter.
func (f Filter) Matches(p Payload) bool {
	if f.SourceId != 0 && p.SourceId != f.SourceId {
		return false
	}
	if f.Generation != 0 && p.Generation != f.Generation {
		return false
	}
	if f.BeforeGeneration != 0 && p.Generation >= f.BeforeGeneration {
		return false
	}
	return true
}

// VectorIndex is the capability interface over the external vector index.
// Implementations must be thread-safe. Upsert and Delete are idempotent.
type VectorIndex interface {
	// Upsert inserts or replaces entries by ID.
	Upsert(ctx context.Context, entries []Entry) error

	// Delete removes all entries matching the filter and returns how many
	// were removed. Deleting nothing is not an error.
	Delete(ctx context.Context, filter Filter) (int, error)

	// Query returns up to limit entries nearest to the vector, restricted to
	// the filter, ordered by similarity score descending. Ties are broken by
	// (source ID, document URL, ordinal) ascending for determinism.
	Query(ctx context.Context, vector []float32, limit int, filter Filter) ([]Hit, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Close releases resources held by the index.
	Close() error
}

// EntryID builds the deterministic identifier of a chunk entry. The key
// includes the generation, so retried upserts of one run overwrite themselves
// and never collide with another generation.
func EntryID(sourceID core.ID, documentURL string, ordinal int, generation core.Generation) string {
	return fmt.Sprintf("%d/%s/%d/g%d", sourceID, documentURL, ordinal, generation)
}
