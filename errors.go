package detdata

import (
	"errors"
	"fmt"
)

// ErrMisaligned is returned when a record or target has a different number of boxes and labels.
var ErrMisaligned = errors.New("boxes and labels are not index-aligned")

// IndexError reports a sample index outside of [0, Len).
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("sample index %d out of range [0, %d)", e.Index, e.Len)
}

// DecodeError reports an image that could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %q: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TransformError reports a failed transform or a transform that produced malformed output.
type TransformError struct {
	Path string // The image the transform was applied to.
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed for %q: %v", e.Path, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}
