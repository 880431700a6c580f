package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/storage"
)

// SourceRepository implements storage.SourceRepository for BadgerDB.
type SourceRepository struct {
	backend *Backend
}

var _ storage.SourceRepository = (*SourceRepository)(nil)

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(backend *Backend) *SourceRepository {
	return &SourceRepository{backend: backend}
}

// Close implements storage.Repository. The backend is owned by the caller.
func (r *SourceRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *SourceRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// CreateSourceIfAbsent creates a source record with status pending, or returns
// the existing record unchanged. Creation and the pending status are one
// transactional write: there is no window in which the record exists without
// a status.
func (r *SourceRepository) CreateSourceIfAbsent(ctx context.Context, source *core.Source) (*core.Source, bool, error) {
	if source == nil {
		return nil, false, fmt.Errorf("%w: source is nil", core.ErrInvalidSource)
	}
	if source.Id == 0 {
		source.Id = core.IDFromContent(source.OriginURL)
	}
	if err := core.ValidateOriginURL(source.OriginURL); err != nil {
		return nil, false, err
	}

	var (
		result  *core.Source
		created bool
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSourceKey(source.Id)

		existing, err := r.readSource(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		source.Status = core.StatusPending
		source.StatusDetail = ""
		source.InsertedAt = time.Now().UTC()
		source.UpdatedAt = source.InsertedAt

		if err := core.ValidateSource(source); err != nil {
			return err
		}

		if err := tx.Set(key, storage.MarshalSource(source)); err != nil {
			return err
		}
		result = source
		created = true
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// UpdateSourceStatus atomically writes status, detail and optional counts for
// one source. The write is a direct field set on the stored record inside a
// single transaction.
func (r *SourceRepository) UpdateSourceStatus(ctx context.Context, id core.ID, status core.SourceStatus, detail string, counts *core.SourceCounts) error {
	if err := core.ValidateStatus(status); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSourceKey(id)

		source, err := r.readSource(tx, key)
		if err != nil {
			return err
		}
		if source == nil {
			return storage.ErrNotFound
		}

		source.Status = status
		source.StatusDetail = detail
		source.UpdatedAt = time.Now().UTC()
		if counts != nil {
			source.DocumentCount = counts.Documents
			source.ChunkCount = counts.Chunks
			source.FailedChunkCount = counts.FailedChunks
			source.Generation = counts.Generation
		}

		if err := tx.Set(key, storage.MarshalSource(source)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetSource retrieves a single source by ID.
func (r *SourceRepository) GetSource(ctx context.Context, id core.ID) (*core.Source, error) {
	var source *core.Source
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		source, err = r.readSource(tx, makeSourceKey(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, storage.ErrNotFound
	}
	return source, nil
}

// ListSources retrieves sources matching the filter, ordered by ID.
func (r *SourceRepository) ListSources(ctx context.Context, opts storage.ListOptions) ([]*core.Source, error) {
	var sources []*core.Source

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(sourceRecordPrefix + ":")
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		skipped := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			var source *core.Source
			err := iter.Item().Value(func(val []byte) error {
				var err error
				source, err = storage.UnmarshalSource(val)
				return err
			})
			if err != nil {
				return err
			}

			if opts.Status != "" && source.Status != opts.Status {
				continue
			}
			if skipped < opts.Offset {
				skipped++
				continue
			}
			sources = append(sources, source)
			if opts.Limit > 0 && len(sources) >= opts.Limit {
				break
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return sources, nil
}

// readSource reads and unmarshals a source record, returning nil if absent.
func (r *SourceRepository) readSource(tx *badger.Txn, key []byte) (*core.Source, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var source *core.Source
	err = item.Value(func(val []byte) error {
		var err error
		source, err = storage.UnmarshalSource(val)
		return err
	})
	return source, err
}
