package badger

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/leonj1/Archon-sub001/core"
	"github.com/leonj1/Archon-sub001/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close implements storage.Repository. The backend is owned by the caller.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// ReplaceDocuments supersedes the document set of a source in a single
// transaction. Prior documents are removed before the new set is written, so
// readers never observe a mix of two crawls.
func (r *DocumentRepository) ReplaceDocuments(ctx context.Context, sourceID core.ID, documents ...*core.Document) ([]*core.Document, error) {
	for _, document := range documents {
		if err := core.ValidateDocument(document); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Delete prior documents for the source
		staleKeys, err := collectKeys(tx, makePartialDocumentKey(sourceID))
		if err != nil {
			return err
		}
		for _, key := range staleKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		for _, document := range documents {
			document.SourceId = sourceID
			document.InsertedAt = now
			document.UpdatedAt = now

			key := makeDocumentKey(sourceID, document.URL)
			if err := tx.Set(key, storage.MarshalDocument(document)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return documents, nil
}

// GetDocuments retrieves all documents belonging to a source, ordered by URL.
func (r *DocumentRepository) GetDocuments(ctx context.Context, sourceID core.ID) ([]*core.Document, error) {
	var documents []*core.Document

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = makePartialDocumentKey(sourceID)
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var document *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				document, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			documents = append(documents, document)
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Keys are ordered by URL hash, not URL
	slices.SortFunc(documents, func(a, b *core.Document) int {
		return strings.Compare(a.URL, b.URL)
	})
	return documents, nil
}

// CountDocuments returns the number of documents stored for a source.
func (r *DocumentRepository) CountDocuments(ctx context.Context, sourceID core.ID) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = makePartialDocumentKey(sourceID)
		iterOpts.PrefetchValues = false
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// collectKeys copies all keys under a prefix. Deletion during iteration is not
// allowed by badger, so keys are collected first.
func collectKeys(tx *badger.Txn, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	iterOpts.PrefetchValues = false
	iter := tx.NewIterator(iterOpts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys, nil
}
