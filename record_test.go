package detdata

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordValidate(t *testing.T) {
	assert.NoError(t, (&Record{ImagePath: "a.png"}).Validate())
	assert.NoError(t, (&Record{Boxes: []Box{{0, 0, 1, 1}}, Labels: []int64{1}}).Validate())

	err := (&Record{ImagePath: "a.png", Labels: []int64{1}}).Validate()
	assert.True(t, errors.Is(err, ErrMisaligned))

	table := Table{{}, {Boxes: []Box{{}}}}
	err = table.Validate()
	assert.True(t, errors.Is(err, ErrMisaligned))
	assert.Contains(t, err.Error(), "row 1")
}

func TestTableMapLabels(t *testing.T) {
	table := Table{
		{Boxes: []Box{{}, {}, {}}, Labels: []int64{1, 2, 3}},
		{Boxes: []Box{{}}, Labels: []int64{2}},
	}

	require.NoError(t, table.MapLabels([]string{"2=5", "3=3"}))
	assert.Equal(t, []int64{1, 5, 3}, table[0].Labels)
	assert.Equal(t, []int64{5}, table[1].Labels)

	for _, m := range []string{"2", "a=1", "1=b", "1=2=3"} {
		assert.Error(t, table.MapLabels([]string{m}), m)
	}
}

func TestTableScaleBoxes(t *testing.T) {
	table := Table{{Boxes: []Box{{2, 2, 4, 6}}, Labels: []int64{1}}}

	table.ScaleBoxes(0, 0, 0)
	assert.Equal(t, Box{2, 2, 4, 6}, table[0].Boxes[0])

	table.ScaleBoxes(1, 0.5, 0)
	assert.Equal(t, Box{2, 3, 4, 5}, table[0].Boxes[0])
}

func TestTableFilter(t *testing.T) {
	table := Table{
		{
			ImagePath: "a.png",
			Boxes:     []Box{{0, 0, 10, 10}, {0, 0, 1, 1}, {0, 0, 20, 10}, {5, 5, 15, 15}},
			Labels:    []int64{1, 1, 2, 3},
		},
		{ImagePath: "b.png", Boxes: []Box{{0, 0, 1, 1}}, Labels: []int64{1}},
		{ImagePath: "c.png"},
	}

	cases := []struct {
		opts   FilterOptions
		paths  []string
		labels [][]int64
	}{
		{
			opts:   FilterOptions{},
			paths:  []string{"a.png", "b.png", "c.png"},
			labels: [][]int64{{1, 1, 2, 3}, {1}, nil},
		},
		{
			opts:   FilterOptions{MinWidth: 2},
			paths:  []string{"a.png", "b.png", "c.png"},
			labels: [][]int64{{1, 2, 3}, {}, nil},
		},
		{
			opts:   FilterOptions{MinWidth: 2, RequireLabel: true},
			paths:  []string{"a.png"},
			labels: [][]int64{{1, 2, 3}},
		},
		{
			opts:   FilterOptions{Labels: []int64{3, 2}, RequireLabel: true},
			paths:  []string{"a.png"},
			labels: [][]int64{{2, 3}},
		},
		{
			opts:   FilterOptions{MaxAspectRatio: 1.5},
			paths:  []string{"a.png", "b.png", "c.png"},
			labels: [][]int64{{1, 1, 3}, {1}, nil},
		},
		{
			opts:   FilterOptions{MinAspectRatio: 1.5, RequireLabel: true},
			paths:  []string{"a.png"},
			labels: [][]int64{{2}},
		},
	}

	for i, c := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			tbl := make(Table, len(table))
			for j, r := range table {
				boxes, labels := r.clone()
				if r.Boxes == nil {
					boxes, labels = nil, nil
				}
				tbl[j] = Record{ImagePath: r.ImagePath, Boxes: boxes, Labels: labels}
			}

			tbl.Filter(c.opts)

			require.Len(t, tbl, len(c.paths))
			for j, r := range tbl {
				assert.Equal(t, c.paths[j], r.ImagePath)
				assert.Equal(t, len(c.labels[j]), len(r.Labels))
				if len(c.labels[j]) > 0 {
					assert.Equal(t, c.labels[j], r.Labels)
				}
				assert.NoError(t, r.Validate())
			}
		})
	}
}

func TestTableSplit(t *testing.T) {
	table := make(Table, 200)
	for i := range table {
		table[i].ImagePath = fmt.Sprintf("%03d.png", i)
	}

	tables, err := table.Split([]int{70, 90, 100})
	require.NoError(t, err)
	require.Len(t, tables, 3)

	var all Table
	for _, tbl := range tables {
		all = append(all, tbl...)
	}
	assert.ElementsMatch(t, table, all)

	// Everything goes into the only table.
	tables, err = table.Split([]int{100})
	require.NoError(t, err)
	assert.Equal(t, table, tables[0])

	_, err = table.Split([]int{50, 90})
	assert.Error(t, err)
}
