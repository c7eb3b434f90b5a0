package processor

import (
	"errors"
	"fmt"
	"strings"
)

// LoadError means the source file could not be read or parsed at all. It
// aborts the whole pipeline.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading dataset %q: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SchemaError means one or more mandatory columns are missing from the
// source. Like LoadError it is terminal: no partial dashboard is computed.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing mandatory columns: %s", strings.Join(e.Missing, ", "))
}

// EmptyResultError signals that a filter matched zero rows. Aggregations do
// not raise it; they degrade to neutral values. It is returned only by
// operations that cannot produce anything meaningful without rows, such as
// report export.
type EmptyResultError struct {
	Op string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: filter matched no rows", e.Op)
}

// TrainingError covers an empty training set or a bad target column. It is
// scoped to the forecast feature; the rest of the dashboard stays valid.
type TrainingError struct {
	Reason string
}

func (e *TrainingError) Error() string {
	return "training failed: " + e.Reason
}

// ErrModelNotTrained is returned by Predict before any successful Train.
var ErrModelNotTrained = errors.New("no trained model in session")
