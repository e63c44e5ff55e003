package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyVideo means the source yielded fewer than two frames, so no
	// motion field can be formed.
	ErrEmptyVideo = errors.New("video has fewer than two frames")

	// ErrInsufficientData means no frame was accumulated, either because the
	// stride skipped every frame or because finalize ran on an empty state.
	ErrInsufficientData = errors.New("no frames were processed")

	// ErrNonFiniteValue means a field carried NaN or ±Inf.
	ErrNonFiniteValue = errors.New("field contains non-finite values")

	// ErrNegativeEnergy means an energy map held a value below zero.
	ErrNegativeEnergy = errors.New("energy must be non-negative")

	// ErrResultNotFound means no stored result has the requested ID.
	ErrResultNotFound = errors.New("analysis result not found")
)

// InvalidFieldShapeError reports a field whose dimensions differ from the
// declared frame size.
type InvalidFieldShapeError struct {
	Field    string
	WantRows int
	WantCols int
	GotRows  int
	GotCols  int
}

func (e *InvalidFieldShapeError) Error() string {
	return fmt.Sprintf("invalid %s shape: got %dx%d, want %dx%d",
		e.Field, e.GotCols, e.GotRows, e.WantCols, e.WantRows)
}
