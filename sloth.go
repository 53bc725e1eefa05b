package detdata

// Sloth label files.

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
)

// slothAnnotation is a single annotation within a Sloth file.
type slothAnnotation struct {
	Class  string  `json:"class,omitempty"`
	Type   string  `json:"type,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// slothAnnotatedFile is the Sloth annotation structure for a single file.
type slothAnnotatedFile struct {
	Annotations []slothAnnotation `json:"annotations"`
	Class       string            `json:"class,omitempty"`
	FilePath    string            `json:"filename,omitempty"`
}

// FromSloth reads and parses Sloth annotations from the file at path. Only "rect" annotations
// (or annotations without a type) are kept. Relative image paths are resolved against the
// directory of path.
func FromSloth(path string, labels *LabelMap) (Table, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var slothData []slothAnnotatedFile
	if err := json.Unmarshal(enc, &slothData); err != nil {
		return nil, fmt.Errorf("failed to parse Sloth input from %q: %v", path, err)
	}

	dir := filepath.Dir(path)
	data := make(Table, 0, len(slothData))
	for _, f := range slothData {
		r := Record{ImagePath: f.FilePath}
		if !filepath.IsAbs(r.ImagePath) {
			r.ImagePath = filepath.Join(dir, r.ImagePath)
		}

		for _, a := range f.Annotations {
			if a.Type != "" && a.Type != "rect" {
				continue
			}
			r.Boxes = append(r.Boxes, Box{a.X, a.Y, a.X + a.Width, a.Y + a.Height})
			r.Labels = append(r.Labels, labels.ID(a.Class))
		}
		data = append(data, r)
	}

	return data, nil
}
