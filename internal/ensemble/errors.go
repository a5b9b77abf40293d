package ensemble

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for bad construction-time input.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrPathNotFound is returned when a value path cannot be resolved in a document.
	ErrPathNotFound = errors.New("path not found")
	// ErrHeterogeneousData is returned when rows of different lengths are stacked.
	ErrHeterogeneousData = errors.New("heterogeneous data")
	// ErrEmptyPrediction is returned when a predicted matrix has no columns.
	ErrEmptyPrediction = errors.New("empty prediction")
	// ErrLabelCountMismatch is returned when a matrix width differs from the label count.
	ErrLabelCountMismatch = errors.New("label count mismatch")
	// ErrShapeMismatch is returned when bundle matrices and axes disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// ShapeError carries the offending identifiers and sizes of a size check.
type ShapeError struct {
	Err     error
	Feature string
	Source  string
	Got     int
	Want    int
}

func (e *ShapeError) Error() string {
	switch {
	case e.Source != "" && e.Feature != "":
		return fmt.Sprintf("%v: feature %q source %q has size %d, expected %d", e.Err, e.Feature, e.Source, e.Got, e.Want)
	case e.Source != "":
		return fmt.Sprintf("%v: source %q has size %d, expected %d", e.Err, e.Source, e.Got, e.Want)
	default:
		return fmt.Sprintf("%v: feature %q has size %d, expected %d", e.Err, e.Feature, e.Got, e.Want)
	}
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

func shapeErr(err error, feature string, got, want int) error {
	return &ShapeError{Err: err, Feature: feature, Got: got, Want: want}
}
