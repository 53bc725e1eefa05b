package detdata

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelStats(t *testing.T) {
	dir := t.TempDir()
	table := Table{
		{
			ImagePath: writePNG(t, dir, "a.png", 2, 2, color.NRGBA{R: 255, G: 51, B: 0, A: 255}),
			Boxes:     []Box{{0, 0, 1, 1}, {1, 1, 2, 2}},
			Labels:    []int64{1, 1},
		},
		{
			ImagePath: writePNG(t, dir, "b.png", 2, 2, color.NRGBA{R: 0, G: 51, B: 0, A: 255}),
		},
		{
			// Twice the pixels of the others.
			ImagePath: writePNG(t, dir, "c.png", 4, 2, color.NRGBA{R: 0, G: 51, B: 0, A: 255}),
			Boxes:     []Box{{0, 0, 1, 1}},
			Labels:    []int64{2},
		},
	}

	s, err := ChannelStats(NewDataset(table, Options{}))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 3, s.Objects)

	// 4 of 16 pixels have R = 1.
	assert.InDelta(t, 0.25, s.Mean[0], 1e-6)
	assert.InDelta(t, 0.2, s.Mean[1], 1e-6)
	assert.InDelta(t, 0.0, s.Mean[2], 1e-6)
	assert.InDelta(t, 0.4330127, s.StdDev[0], 1e-6)
	assert.InDelta(t, 0.0, s.StdDev[1], 1e-6)
	assert.InDelta(t, 0.0, s.StdDev[2], 1e-6)
}

func TestChannelStatsOrder(t *testing.T) {
	dir := t.TempDir()
	table := Table{{ImagePath: writePNG(t, dir, "a.png", 1, 1, color.NRGBA{R: 255, A: 255})}}

	s, err := ChannelStats(NewDataset(table, Options{ChannelOrder: BGR}))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s.Mean[0], 1e-6)
	assert.InDelta(t, 1.0, s.Mean[2], 1e-6)
}

func TestChannelStatsErrors(t *testing.T) {
	_, err := ChannelStats(NewDataset(nil, Options{}))
	assert.Error(t, err)

	table := Table{{ImagePath: "missing.png"}}
	_, err = ChannelStats(NewDataset(table, Options{}))
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}
