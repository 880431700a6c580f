// Package storage defines the metadata repository capability: transactional
// persistence of source lifecycle records and fetched documents. The ingestion
// pipeline and searcher depend only on the interfaces in this package, never
// on a concrete backend.
package storage
