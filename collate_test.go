package detdata

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anynet/anyff"
)

func TestCollateEmpty(t *testing.T) {
	b := Collate(nil)
	require.NotNil(t, b.Images)
	require.NotNil(t, b.Targets)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Targets)
}

func TestCollateOrder(t *testing.T) {
	img1 := NewImage(2, 2, RGB)
	img2 := NewImage(3, 1, RGB)
	t1, err := NewTarget([]Box{{0, 0, 1, 1}, {1, 1, 2, 2}}, []int64{1, 2})
	require.NoError(t, err)
	t2, err := NewTarget(nil, nil)
	require.NoError(t, err)

	b := Collate([]*Sample{{Image: img1, Target: t1}, {Image: img2, Target: t2}})

	assert.Equal(t, 2, b.Len())
	assert.Same(t, img1, b.Images[0])
	assert.Same(t, img2, b.Images[1])
	assert.Same(t, t1, b.Targets[0])
	assert.Same(t, t2, b.Targets[1])

	// Targets are kept per sample, not merged.
	assert.Equal(t, 2, b.Targets[0].Len())
	assert.Equal(t, 0, b.Targets[1].Len())
}

func TestFetcher(t *testing.T) {
	table := testTable(t)
	ds := NewDataset(table, Options{})
	f := &Fetcher{MaxGos: 2}

	batch, err := f.Fetch(ds)
	require.NoError(t, err)
	b := batch.(*Batch)
	require.Equal(t, len(table), b.Len())

	for i, r := range table {
		assert.Equal(t, r.Labels, nonNil(b.Targets[i].Labels), "sample %d", i)
		assert.Equal(t, len(r.Boxes), b.Targets[i].Len())
	}
	if diff := cmp.Diff([3]int{6, 8, 3}, b.Images[0].Shape()); diff != "" {
		t.Errorf("unexpected shape (-want +got):\n%s", diff)
	}

	sub, err := f.Fetch(ds.Slice(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, sub.(*Batch).Targets[0].Labels)
}

func nonNil(l []int64) []int64 {
	if len(l) == 0 {
		return nil
	}
	return l
}

func TestFetcherErrors(t *testing.T) {
	table := testTable(t)
	table = append(table, Record{ImagePath: filepath.Join(t.TempDir(), "missing.png")})
	ds := NewDataset(table, Options{})
	f := &Fetcher{}

	_, err := f.Fetch(ds)
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))

	_, err = f.Fetch(ds.Slice(0, 0))
	assert.Error(t, err)

	_, err = f.Fetch(anyff.SliceSampleList{&anyff.Sample{}})
	assert.Error(t, err)
}

func TestFetcherNegativeMaxGos(t *testing.T) {
	ds := NewDataset(testTable(t), Options{})

	batch, err := (&Fetcher{MaxGos: -1}).Fetch(ds)
	require.NoError(t, err)
	b := batch.(*Batch)
	require.Equal(t, ds.Len(), b.Len())
	for i := range b.Images {
		assert.NotNil(t, b.Images[i])
		assert.NotNil(t, b.Targets[i])
	}
}
