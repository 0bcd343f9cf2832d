package similarity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when a search is requested with k <= 0.
	ErrInvalidK = errors.New("k must be positive")

	// ErrLengthMismatch is returned by Add when ids and vectors differ in
	// count. The index is not mutated.
	ErrLengthMismatch = errors.New("ids and vectors must have equal length")
)

// ErrDimensionMismatch indicates a vector whose length disagrees with the
// index's fixed dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
