package detdata

// The backing table of annotated images.

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Box is a bounding box. The format readers and the built-in transforms use absolute x1, y1, x2, y2
// offsets from the top-left corner of the image.
type Box [4]float64

// Width is the box width.
func (b Box) Width() float64 {
	return b[2] - b[0]
}

// Height is the box height.
func (b Box) Height() float64 {
	return b[3] - b[1]
}

// Record is a single row of the backing table: an image and its objects. Boxes[i] and Labels[i]
// describe the same object.
type Record struct {
	ImagePath string  `json:"img_path"`
	Boxes     []Box   `json:"bboxes"`
	Labels    []int64 `json:"labels"`
}

// Validate checks that boxes and labels are index-aligned.
func (r *Record) Validate() error {
	if len(r.Boxes) != len(r.Labels) {
		return fmt.Errorf("%q has %d boxes and %d labels: %w",
			r.ImagePath, len(r.Boxes), len(r.Labels), ErrMisaligned)
	}
	return nil
}

// deleteObject removes the object at index i, keeping the order of the remaining objects.
func (r *Record) deleteObject(i int) {
	r.Boxes = append(r.Boxes[:i], r.Boxes[i+1:]...)
	r.Labels = append(r.Labels[:i], r.Labels[i+1:]...)
}

// Table is the annotation metadata for a list of images.
type Table []Record

// Validate checks every record of the table.
func (t Table) Validate() error {
	for i := range t {
		if err := t[i].Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// MapLabels replaces label ids as specified in mappings.
//
// The format of mappings is old=new.
func (t Table) MapLabels(mappings []string) error {
	if len(mappings) == 0 {
		return nil
	}

	replacements := make(map[int64]int64, len(mappings))
	for _, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 {
			return fmt.Errorf("invalid mapping: %v", v)
		}
		from, err := strconv.ParseInt(a[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid mapping %q: %v", v, err)
		}
		to, err := strconv.ParseInt(a[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid mapping %q: %v", v, err)
		}
		replacements[from] = to
	}

	count := 0
	for _, r := range t {
		for i, l := range r.Labels {
			if to, ok := replacements[l]; ok && to != l {
				r.Labels[i] = to
				count++
			}
		}
	}

	log.Printf("The label mappings changed %d labels", count)
	return nil
}

// ScaleBoxes transforms all bounding boxes of the table, see ScaleBoxes.Apply.
func (t Table) ScaleBoxes(scaleX, scaleY, aspectRatio float64) {
	s := ScaleBoxes{ScaleX: scaleX, ScaleY: scaleY, AspectRatio: aspectRatio}
	for _, r := range t {
		for i := range r.Boxes {
			r.Boxes[i] = s.scale(r.Boxes[i])
		}
	}
}

// FilterOptions selects the objects and records that Table.Filter keeps.
type FilterOptions struct {
	Labels         []int64 // Labels to keep. Empty keeps all.
	MinWidth       float64
	MinHeight      float64
	MinAspectRatio float64 // Zero disables the filter.
	MaxAspectRatio float64 // Zero disables the filter.
	RequireLabel   bool    // Drop records that have no objects left.
}

// keep reports whether an object passes the filter.
func (o *FilterOptions) keep(b Box, label int64) bool {
	width := b.Width()
	height := b.Height()
	if o.MinWidth > width || o.MinHeight > height {
		return false
	}

	if o.MinAspectRatio != 0 || o.MaxAspectRatio != 0 {
		if height == 0 {
			return false
		}
		ratio := width / height
		if (o.MinAspectRatio != 0 && ratio < o.MinAspectRatio) ||
			(o.MaxAspectRatio != 0 && ratio > o.MaxAspectRatio) {
			return false
		}
	}

	if len(o.Labels) > 0 {
		for _, l := range o.Labels {
			if l == label {
				return true
			}
		}
		return false
	}

	return true
}

// Filter removes objects that do not pass the filter options and, if opts.RequireLabel is set,
// records left without objects. The order of records and objects is kept.
func (t *Table) Filter(opts FilterOptions) {
	numRecords := len(*t)
	numBefore := 0
	numAfter := 0

	kept := (*t)[:0]
	for _, r := range *t {
		numBefore += len(r.Boxes)
		for i := 0; i < len(r.Boxes); i++ {
			if !opts.keep(r.Boxes[i], r.Labels[i]) {
				r.deleteObject(i)
				i--
			}
		}
		numAfter += len(r.Boxes)

		if opts.RequireLabel && len(r.Boxes) == 0 {
			continue
		}
		kept = append(kept, r)
	}
	*t = kept

	log.Printf("Filtered out %d labels and %d files", numBefore-numAfter, numRecords-len(*t))
}

// Split randomly splits the table into multiple tables.
//
// The cumulativeSplits specify the cumulative distribution according to which the data is split
// into the returned tables. The last value must be 100.
func (t Table) Split(cumulativeSplits []int) ([]Table, error) {
	tables := make([]Table, len(cumulativeSplits))

	// Allocate slightly more than the expected size for each table.
	var sum int
	for i, s := range cumulativeSplits {
		percent := s - sum
		tables[i] = make(Table, 0, int(math.Ceil(1.05*float64(percent)/100*float64(len(t)))))
		sum = s
	}
	if sum != 100 {
		return nil, fmt.Errorf("the split percentages do not add up to 100")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

outer:
	for _, r := range t {
		n := rng.Intn(100)
		for i, s := range cumulativeSplits {
			if n < s {
				tables[i] = append(tables[i], r)
				continue outer
			}
		}
	}

	return tables, nil
}

// clone returns a deep copy of the record's boxes and labels. Nil slices stay nil.
func (r *Record) clone() ([]Box, []int64) {
	return append([]Box(nil), r.Boxes...), append([]int64(nil), r.Labels...)
}
