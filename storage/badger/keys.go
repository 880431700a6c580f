package badger

import (
	"encoding/binary"

	"github.com/leonj1/Archon-sub001/core"
)

// Key prefixes for different data types
const (
	sourceRecordPrefix   = "srcrec"
	documentRecordPrefix = "docrec"
)

// makeSourceKey generates a key for a source record by ID.
// The ID is written BigEndian so iteration order follows ID order.
func makeSourceKey(id core.ID) []byte {
	prefix := sourceRecordPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeDocumentKey generates a composite key for a document record.
// Format: prefix:sourceID:urlHash
func makeDocumentKey(sourceID core.ID, url string) []byte {
	prefix := documentRecordPrefix + ":"
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(sourceID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(url)))
	return buf
}

// makePartialDocumentKey generates a partial key for scanning all documents of
// a source.
// Format: prefix:sourceID
func makePartialDocumentKey(sourceID core.ID) []byte {
	prefix := documentRecordPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(sourceID))
	return buf
}
