package detdata

import (
	"encoding/binary"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readTFRecords splits a TFRecord file into its payloads without checking the CRCs.
func readTFRecords(t *testing.T, path string) [][]byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records [][]byte
	for len(data) > 0 {
		require.True(t, len(data) >= 12, "truncated header")
		n := int(binary.LittleEndian.Uint64(data))
		data = data[12:]
		require.True(t, len(data) >= n+4, "truncated record")
		records = append(records, data[:n])
		data = data[n+4:]
	}
	return records
}

func TestWriteTFRecord(t *testing.T) {
	dir := t.TempDir()
	table := Table{
		{
			ImagePath: writePNG(t, dir, "a.png", 10, 20, color.NRGBA{A: 255}),
			Boxes:     []Box{{1, 2, 5, 10}},
			Labels:    []int64{1},
		},
		{ImagePath: writePNG(t, dir, "b.png", 4, 4, color.NRGBA{A: 255})},
		{ImagePath: filepath.Join(dir, "missing.png")},
	}
	labels := NewLabelMap()
	labels.ID("dog")

	path := filepath.Join(dir, "out.record")
	require.NoError(t, WriteTFRecord(path, table, labels, 1))

	records := readTFRecords(t, path)
	require.Len(t, records, 2)

	var e tensorflow.Example
	require.NoError(t, proto.Unmarshal(records[0], &e))
	f := e.Features.Feature

	assert.Equal(t, []int64{20}, f["image/height"].GetInt64List().Value)
	assert.Equal(t, []int64{10}, f["image/width"].GetInt64List().Value)
	assert.Equal(t, [][]byte{[]byte("png")}, f["image/format"].GetBytesList().Value)
	assert.Equal(t, [][]byte{[]byte("dog")}, f["image/object/class/text"].GetBytesList().Value)
	assert.Equal(t, []int64{1}, f["image/object/class/label"].GetInt64List().Value)
	assert.InDeltaSlice(t, []float32{0.1}, f["image/object/bbox/xmin"].GetFloatList().Value, 1e-6)
	assert.InDeltaSlice(t, []float32{0.5}, f["image/object/bbox/ymax"].GetFloatList().Value, 1e-6)

	encoded, err := os.ReadFile(table[0].ImagePath)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{encoded}, f["image/encoded"].GetBytesList().Value)
}

func TestWriteTFRecordShards(t *testing.T) {
	dir := t.TempDir()
	var table Table
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		table = append(table, Record{ImagePath: writePNG(t, dir, name, 2, 2, color.NRGBA{A: 255})})
	}

	path := filepath.Join(dir, "out.record")
	calls := 0
	require.NoError(t, WriteCustomTFRecord(path, table, nil, 2, func(r Record, m TFFeatureMap) {
		calls++
		m["image/key"] = filepath.Base(r.ImagePath)
	}))
	assert.Equal(t, 3, calls)

	first := readTFRecords(t, path+"-00000-of-00002")
	second := readTFRecords(t, path+"-00001-of-00002")
	assert.Len(t, first, 2)
	assert.Len(t, second, 1)

	var e tensorflow.Example
	require.NoError(t, proto.Unmarshal(second[0], &e))
	assert.Equal(t, [][]byte{[]byte("c.png")}, e.Features.Feature["image/key"].GetBytesList().Value)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteTFRecordShardCount(t *testing.T) {
	dir := t.TempDir()
	img := writePNG(t, dir, "a.png", 2, 2, color.NRGBA{A: 255})
	table := make(Table, 10)
	for i := range table {
		table[i].ImagePath = img
	}

	path := filepath.Join(dir, "out.record")
	require.NoError(t, WriteTFRecord(path, table, nil, 6))

	matches, err := filepath.Glob(path + "-*-of-00006")
	require.NoError(t, err)
	assert.Len(t, matches, 6)

	total := 0
	for _, m := range matches {
		n := len(readTFRecords(t, m))
		assert.True(t, n == 1 || n == 2, "%s has %d records", m, n)
		total += n
	}
	assert.Equal(t, len(table), total)
}

func TestWriteTFRecordErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.record")

	misaligned := Table{{ImagePath: "a.png", Labels: []int64{1}}}
	assert.Error(t, WriteTFRecord(path, misaligned, nil, 1))

	err := WriteTFRecord(filepath.Join(dir, "missing", "out.record"), Table{{ImagePath: "a.png"}}, nil, 1)
	assert.Error(t, err)
}
