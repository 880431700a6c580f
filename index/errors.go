package index

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexClosed indicates the index has been closed.
	ErrIndexClosed = errors.New("vector index is closed")

	// ErrEmptyVector indicates a query or entry vector is empty.
	ErrEmptyVector = errors.New("vector cannot be empty")
)

// ErrDimensionMismatch indicates a vector's dimensionality differs from the
// index's.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
