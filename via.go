package detdata

// VGG Image Annotator (VIA) projects.

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"path/filepath"
	"sort"
)

// viaShape describes the shape of a region.
type viaShape struct {
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// viaRegion is a single region annotation for a particular image in a VIA project.
type viaRegion struct {
	Attributes map[string]string `json:"region_attributes"`
	Shape      viaShape          `json:"shape_attributes"`
}

// viaAnnotatedFile is the VIA annotation structure for a single file.
type viaAnnotatedFile struct {
	Regions  []viaRegion `json:"regions"`
	FilePath string      `json:"filename"`
}

// viaProject is the part of a VIA project file that holds the annotations.
type viaProject struct {
	ImageMetadata map[string]viaAnnotatedFile `json:"_via_img_metadata"`
}

// viaLabelAttribute is the region attribute holding the class name.
const viaLabelAttribute = "Label"

// FromVIA reads and parses a VIA project from the file at path. Rectangular regions with a
// "Label" attribute become objects; other regions are skipped. Records, and with them the ids of
// new class names, follow the order of the project keys.
func FromVIA(path string, labels *LabelMap) (Table, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var project viaProject
	if err := json.Unmarshal(enc, &project); err != nil {
		return nil, fmt.Errorf("failed to parse VIA input from %q: %v", path, err)
	}

	keys := make([]string, 0, len(project.ImageMetadata))
	for k := range project.ImageMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dir := filepath.Dir(path)
	data := make(Table, 0, len(keys))
	for _, k := range keys {
		f := project.ImageMetadata[k]
		r := Record{ImagePath: f.FilePath}
		if !filepath.IsAbs(r.ImagePath) {
			r.ImagePath = filepath.Join(dir, r.ImagePath)
		}

		for _, region := range f.Regions {
			label, ok := region.Attributes[viaLabelAttribute]
			if !ok || region.Shape.Name != "rect" {
				log.Printf("Skipping a region of %q without rect shape or label", f.FilePath)
				continue
			}
			s := region.Shape
			r.Boxes = append(r.Boxes, Box{s.X, s.Y, s.X + s.Width, s.Y + s.Height})
			r.Labels = append(r.Labels, labels.ID(label))
		}
		data = append(data, r)
	}

	return data, nil
}
