package detdata

// JSON Lines tables: one record per line with the keys img_path, bboxes and labels.

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// maxLineSize bounds a single JSON Lines record.
const maxLineSize = 16 << 20

// FromJSONLines reads a table from the JSON Lines file at path. Relative image paths are resolved
// against the directory of the table file. Empty lines are skipped.
func FromJSONLines(path string) (t Table, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %v", path, err)
	}
	defer closeWithErrCheck(f, &err)

	dir := filepath.Dir(path)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %v", path, lineNo, err)
		}
		if r.ImagePath == "" {
			return nil, fmt.Errorf("%s:%d: missing img_path", path, lineNo)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if !filepath.IsAbs(r.ImagePath) {
			r.ImagePath = filepath.Join(dir, r.ImagePath)
		}

		t = append(t, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q: %v", path, err)
	}

	log.Printf("Read %d records from %s", len(t), path)
	return t, nil
}

// WriteJSONLines writes the table to path, one record per line. Records without objects are
// written with empty lists rather than null.
func WriteJSONLines(path string, t Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	defer closeWithErrCheck(f, &err)

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range t {
		if r.Boxes == nil {
			r.Boxes = []Box{}
		}
		if r.Labels == nil {
			r.Labels = []int64{}
		}
		if err := enc.Encode(&r); err != nil {
			return err
		}
	}

	return w.Flush()
}

// UnmarshalJSON requires exactly four coordinates.
func (b *Box) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != len(b) {
		return fmt.Errorf("bounding box has %d coordinates, want %d", len(v), len(b))
	}
	copy(b[:], v)
	return nil
}
