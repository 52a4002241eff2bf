package embed

import (
	"errors"
	"fmt"
)

// ErrInvalidComponent indicates a NaN or infinite vector component.
var ErrInvalidComponent = errors.New("embedding contains NaN or infinite component")

// ErrClosed indicates use after Close.
var ErrClosed = errors.New("embedder is closed")

// DimensionMismatchError indicates the model produced a vector whose
// length differs from the configured dimension. This is always fatal to
// the index, never a warning.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// IsDimensionMismatch reports whether err is a dimension mismatch.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}
