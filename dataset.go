package detdata

import (
	"crypto/sha256"
	"fmt"

	"github.com/unixpickle/anynet/anysgd"
)

// Options configures a Dataset.
type Options struct {
	// Transform, if non-nil, is applied to every sample after decoding.
	Transform Transform

	// ChannelOrder is the channel order of the decoded images.
	ChannelOrder ChannelOrder
}

// A Dataset gives indexed access to the decoded samples of a Table.
//
// It is an anysgd.SampleList: Swap and Slice reorder a list of row indices, never the table itself,
// so several Datasets may share one table. GetSample may be called from multiple goroutines as long
// as the table is not modified and the transform is safe for concurrent use.
type Dataset struct {
	table   Table
	indices []int
	opts    Options
}

// NewDataset creates a Dataset over a copy of the rows of table.
func NewDataset(table Table, opts Options) *Dataset {
	indices := make([]int, len(table))
	rows := make(Table, len(table))
	for i := range indices {
		indices[i] = i
		boxes, labels := table[i].clone()
		rows[i] = Record{ImagePath: table[i].ImagePath, Boxes: boxes, Labels: labels}
	}
	return &Dataset{
		table:   rows,
		indices: indices,
		opts:    opts,
	}
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.indices)
}

// Swap swaps two samples.
func (d *Dataset) Swap(i, j int) {
	d.indices[i], d.indices[j] = d.indices[j], d.indices[i]
}

// Slice creates a Dataset with samples i through j-1 that shares the table.
func (d *Dataset) Slice(i, j int) anysgd.SampleList {
	return &Dataset{
		table:   d.table,
		indices: append([]int(nil), d.indices[i:j]...),
		opts:    d.opts,
	}
}

// Hash hashes the image path of a sample. It makes the Dataset an anysgd.Hasher, so
// anysgd.HashSplit gives deterministic splits.
func (d *Dataset) Hash(i int) []byte {
	sum := sha256.Sum256([]byte(d.table[d.indices[i]].ImagePath))
	return sum[:]
}

// Record returns the table row behind sample idx.
func (d *Dataset) Record(idx int) (Record, error) {
	if idx < 0 || idx >= len(d.indices) {
		return Record{}, &IndexError{Index: idx, Len: len(d.indices)}
	}
	return d.table[d.indices[idx]], nil
}

// Table returns the rows of the dataset in sample order.
func (d *Dataset) Table() Table {
	t := make(Table, len(d.indices))
	for i, idx := range d.indices {
		t[i] = d.table[idx]
	}
	return t
}

// GetSample loads, converts and transforms the sample at idx.
//
// Errors are *IndexError, *DecodeError or *TransformError, or wrap ErrMisaligned if the row's
// boxes and labels differ in length.
func (d *Dataset) GetSample(idx int) (*Sample, error) {
	r, err := d.Record(idx)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("sample %d: %w", idx, err)
	}

	img, err := LoadImage(r.ImagePath, d.opts.ChannelOrder)
	if err != nil {
		return nil, err
	}

	// The transform may modify boxes and labels in place, so it gets copies.
	boxes, labels := r.clone()
	if d.opts.Transform != nil {
		out, err := d.opts.Transform.Apply(Annotated{Image: img, Boxes: boxes, Labels: labels})
		if err != nil {
			return nil, &TransformError{Path: r.ImagePath, Err: err}
		}
		if err := out.validate(); err != nil {
			return nil, &TransformError{Path: r.ImagePath, Err: err}
		}
		img, boxes, labels = out.Image, out.Boxes, out.Labels
	}

	target, err := NewTarget(boxes, labels)
	if err != nil {
		return nil, fmt.Errorf("sample %d: %w", idx, err)
	}

	return &Sample{Image: img, Target: target}, nil
}
