package matching

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyReference is returned when the to collection has no records.
	ErrEmptyReference = errors.New("empty reference corpus")

	// ErrInvalidWindow is returned for an n-gram window smaller than 2.
	ErrInvalidWindow = errors.New("invalid n-gram window: must be 2 or greater")

	// ErrInvalidConfig marks any other configuration problem.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSinkFailed wraps every failure reported by a result sink.
	ErrSinkFailed = errors.New("output sink failed")

	// ErrEmptyInput is returned when an input file contains no usable records.
	ErrEmptyInput = errors.New("input does not contain any records")
)

// SinkError records a sink failure together with the batch that was lost.
type SinkError struct {
	Batch int   // number of results in the rejected batch
	Err   error // underlying error
}

func (e *SinkError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (batch of %d): %v", ErrSinkFailed, e.Batch, e.Err)
}

// Unwrap exposes both the sentinel and the underlying error to errors.Is/As.
func (e *SinkError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{ErrSinkFailed, e.Err}
}
