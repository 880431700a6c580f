package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing, so identical content
// (for example the same origin URL) always maps to the same ID.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Generation is a version tag applied to all chunks produced by one ingestion
// run of a source. A freshly committed generation supersedes all older ones.
type Generation int64

// SourceStatus is the lifecycle state of a Source.
type SourceStatus string

const (
	// StatusPending is assigned atomically when a Source record is created,
	// before any ingestion run begins.
	StatusPending SourceStatus = "pending"
	// StatusCrawling means documents are being fetched for the source.
	StatusCrawling SourceStatus = "crawling"
	// StatusProcessing means fetched documents are being chunked and embedded.
	StatusProcessing SourceStatus = "processing"
	// StatusStoring means embedded chunks are being synchronized into the vector index.
	StatusStoring SourceStatus = "storing"
	// StatusCompleted is the terminal state of a successful ingestion run.
	StatusCompleted SourceStatus = "completed"
	// StatusFailed is the terminal state of an unsuccessful ingestion run.
	StatusFailed SourceStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s SourceStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Source is a logical content origin (one site, feed or file set) tracked as a
// single lifecycle entity. Status is never absent: it is initialized to
// pending in the same transactional write that creates the record. A Source is
// created once per ID; recrawl mutates the same record, it is never deleted
// and recreated.
type Source struct {
	Id               ID
	Name             string
	OriginURL        string
	Status           SourceStatus
	StatusDetail     string // Free-form diagnostic text, empty when not applicable
	DocumentCount    int
	ChunkCount       int
	FailedChunkCount int        // Chunks that could not be embedded in the last completed run
	Generation       Generation // Last committed generation in the vector index
	InsertedAt       time.Time
	UpdatedAt        time.Time
}

// SourceCounts carries the committed counters written together with a terminal
// status transition.
type SourceCounts struct {
	Documents    int
	Chunks       int
	FailedChunks int
	Generation   Generation
}

// Document is one fetched page or file belonging to a Source. Documents are
// created during the crawling stage and superseded as a set on recrawl.
type Document struct {
	SourceId   ID
	URL        string
	Title      string
	Content    string
	Metadata   map[string]string
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// Chunk is a contiguous slice of a document's content plus its embedding
// vector once computed. Ordinals are 0-based and contiguous within a document.
type Chunk struct {
	SourceId    ID
	DocumentURL string
	Title       string
	Ordinal     int
	Text        string
	Vector      []float32  // Populated by the embedding executor; nil when embedding failed
	Generation  Generation // Tag of the ingestion run that produced the chunk
}

// ProgressEvent is ephemeral run telemetry. Events are consumed live or lost
// if no observer is attached; a terminal Source.Status read reconstructs the
// final outcome.
type ProgressEvent struct {
	RunId    ID
	SourceId ID
	Stage    SourceStatus
	Percent  int // 0-100 within the current stage
	Detail   string
	Metadata map[string]string
}

// SearchResult is one ranked hit from a similarity query, carrying enough
// provenance to display and deduplicate.
type SearchResult struct {
	SourceId    ID
	DocumentURL string
	Title       string
	Text        string
	Ordinal     int
	Score       float32
}
