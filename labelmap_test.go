package detdata

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelMap(t *testing.T) {
	m := NewLabelMap()
	assert.Equal(t, int64(1), m.ID("car"))
	assert.Equal(t, int64(2), m.ID("person"))
	assert.Equal(t, int64(1), m.ID("car"))
	assert.Equal(t, 2, m.Len())

	name, ok := m.Name(2)
	assert.True(t, ok)
	assert.Equal(t, "person", name)
	_, ok = m.Name(0)
	assert.False(t, ok)
}

func TestLabelMapConcurrent(t *testing.T) {
	m := NewLabelMap()
	names := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, n := range names {
				m.ID(n)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(names), m.Len())
	seen := map[int64]bool{}
	for _, n := range names {
		id := m.ID(n)
		assert.True(t, id >= 1 && id <= int64(len(names)))
		seen[id] = true
	}
	assert.Len(t, seen, len(names))
}

func TestLabelMapSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.json")

	m := NewLabelMap()
	m.ID("car")
	m.ID("person")
	require.NoError(t, m.Save(path))

	loaded, err := LoadLabelMap(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, int64(2), loaded.ID("person"))
	assert.Equal(t, int64(3), loaded.ID("bike"))

	enc, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"car","id":1},{"name":"person","id":2}]`, string(enc))
}

func TestLoadLabelMapErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadLabelMap(filepath.Join(dir, "missing.json"))
	assert.True(t, os.IsNotExist(err))

	cases := map[string]string{
		"syntax":    `[{"name":`,
		"no name":   `[{"id":1}]`,
		"zero id":   `[{"name":"car","id":0}]`,
		"duplicate": `[{"name":"car","id":1},{"name":"bus","id":1}]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, filepath.Join(dir, name+".json"), content)
			_, err := LoadLabelMap(path)
			assert.Error(t, err)
		})
	}

	// Ids do not need to be contiguous.
	path := writeFile(t, filepath.Join(dir, "sparse.json"), `[{"name":"car","id":7}]`)
	m, err := LoadLabelMap(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8), m.ID("bus"))
}
