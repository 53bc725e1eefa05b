package detdata

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"sort"
	"sync"
)

// LabelMap maps class names to the int64 ids used as labels. Ids start at 1; 0 is left for the
// background class. It is safe for concurrent use.
type LabelMap struct {
	mu     sync.Mutex
	ids    map[string]int64
	names  map[int64]string
	nextID int64
}

// labelMapItem is the JSON representation of a single label map entry.
type labelMapItem struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// NewLabelMap returns an empty label map.
func NewLabelMap() *LabelMap {
	return &LabelMap{
		ids:    make(map[string]int64),
		names:  make(map[int64]string),
		nextID: 1,
	}
}

// ID returns the id for name, assigning the next free id if name has none yet.
func (m *LabelMap) ID(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.ids[name]; ok {
		return id
	}
	id := m.nextID
	m.nextID++
	m.ids[name] = id
	m.names[id] = name
	return id
}

// Name returns the class name for id.
func (m *LabelMap) Name(id int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.names[id]
	return name, ok
}

// Len returns the number of classes.
func (m *LabelMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.ids)
}

// LoadLabelMap reads a label map written by LabelMap.Save.
//
// If an error occurs because the file does not exist, then os.IsNotExist will return true for the
// error.
func LoadLabelMap(path string) (*LabelMap, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []labelMapItem
	if err := json.Unmarshal(enc, &items); err != nil {
		return nil, fmt.Errorf("failed to parse the label map %q: %v", path, err)
	}

	m := NewLabelMap()
	for _, item := range items {
		if item.Name == "" || item.ID <= 0 {
			return nil, fmt.Errorf("invalid entry in %q: %s: %d", path, item.Name, item.ID)
		}
		if _, dup := m.names[item.ID]; dup {
			return nil, fmt.Errorf("duplicate id %d in %q", item.ID, path)
		}

		m.ids[item.Name] = item.ID
		m.names[item.ID] = item.Name
		if item.ID >= m.nextID {
			m.nextID = item.ID + 1
		}
	}

	return m, nil
}

// Save writes the label map to path as a JSON list ordered by id.
func (m *LabelMap) Save(path string) error {
	m.mu.Lock()
	items := make([]labelMapItem, 0, len(m.ids))
	for name, id := range m.ids {
		items = append(items, labelMapItem{Name: name, ID: id})
	}
	m.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	enc, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}
	return nil
}
