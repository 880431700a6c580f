package storage

import (
	"context"

	"github.com/leonj1/Archon-sub001/core"
)

// Repository provides common operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// ListOptions filters and paginates ListSources.
// A zero Status matches all statuses. Limit <= 0 means no limit.
type ListOptions struct {
	Status core.SourceStatus
	Offset int
	Limit  int
}

// SourceRepository provides operations for managing source lifecycle records.
//
// Status writes are single-writer-at-a-time per source because the ingestion
// pipeline holds a per-source run slot; each transition is a direct field set
// inside one transaction, never a merge of partial state.
type SourceRepository interface {
	Repository

	// CreateSourceIfAbsent creates a source record with status pending in a
	// single transactional write, or returns the existing record unchanged.
	// The returned bool is true when the record was created.
	CreateSourceIfAbsent(ctx context.Context, source *core.Source) (*core.Source, bool, error)

	// UpdateSourceStatus atomically writes status, detail and, when counts is
	// non-nil, the committed counters and generation for one source.
	// Returns ErrNotFound if the source doesn't exist.
	UpdateSourceStatus(ctx context.Context, id core.ID, status core.SourceStatus, detail string, counts *core.SourceCounts) error

	// GetSource retrieves a single source by ID.
	// Returns ErrNotFound if the source doesn't exist.
	GetSource(ctx context.Context, id core.ID) (*core.Source, error)

	// ListSources retrieves sources matching the filter, ordered by ID.
	ListSources(ctx context.Context, opts ListOptions) ([]*core.Source, error)
}

// DocumentRepository provides operations for managing fetched documents.
type DocumentRepository interface {
	Repository

	// ReplaceDocuments supersedes the document set of a source in a single
	// transaction: prior documents for the source are removed and the given
	// ones written with fresh timestamps.
	ReplaceDocuments(ctx context.Context, sourceID core.ID, documents ...*core.Document) ([]*core.Document, error)

	// GetDocuments retrieves all documents belonging to a source, ordered by URL.
	GetDocuments(ctx context.Context, sourceID core.ID) ([]*core.Document, error)

	// CountDocuments returns the number of documents stored for a source.
	CountDocuments(ctx context.Context, sourceID core.ID) (int, error)
}
