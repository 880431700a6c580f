// Package index defines the vector index capability: upsert, delete and
// nearest-neighbor query of embedded chunks by filter. The storage engine
// behind the capability is opaque to the rest of the system; the pipeline and
// searcher depend only on the VectorIndex interface.
package index
