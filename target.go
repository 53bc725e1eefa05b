package detdata

import (
	"fmt"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
)

// boxCols is the number of columns of the boxes matrix.
const boxCols = 4

// Target is the annotation of one image.
//
// Boxes is a float32 matrix with one row per object and 4 columns. It is never nil; an image
// without objects has a 0x4 matrix. Labels holds one class id per row of Boxes.
type Target struct {
	Boxes  *anyvec.Matrix
	Labels []int64
}

// NewTarget converts boxes and labels to a Target.
func NewTarget(boxes []Box, labels []int64) (*Target, error) {
	if len(boxes) != len(labels) {
		return nil, fmt.Errorf("%d boxes and %d labels: %w", len(boxes), len(labels), ErrMisaligned)
	}

	data := make([]float32, 0, len(boxes)*boxCols)
	for _, b := range boxes {
		for _, v := range b {
			data = append(data, float32(v))
		}
	}

	l := make([]int64, len(labels))
	copy(l, labels)

	return &Target{
		Boxes: &anyvec.Matrix{
			Data: anyvec32.MakeVectorData(data),
			Rows: len(boxes),
			Cols: boxCols,
		},
		Labels: l,
	}, nil
}

// Len returns the number of objects.
func (t *Target) Len() int {
	return t.Boxes.Rows
}

// Box returns the box in row i.
func (t *Target) Box(i int) Box {
	data := t.Boxes.Data.Data().([]float32)
	var b Box
	for j := range b {
		b[j] = float64(data[i*boxCols+j])
	}
	return b
}
