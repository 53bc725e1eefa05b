package detdata

// Pascal VOC datasets.

import (
	"encoding/xml"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// vocAnnotation is the part of a VOC annotation XML file describing the objects.
type vocAnnotation struct {
	XMLName  xml.Name `xml:"annotation"`
	Filename string   `xml:"filename"`
	Objects  []struct {
		Name      string `xml:"name"`
		Difficult int    `xml:"difficult"`
		BndBox    struct {
			XMin float64 `xml:"xmin"`
			YMin float64 `xml:"ymin"`
			XMax float64 `xml:"xmax"`
			YMax float64 `xml:"ymax"`
		} `xml:"bndbox"`
	} `xml:"object"`
}

// FromPascalVOC loads the images listed in <dir>/ImageSets/Main/<set>.txt with their objects from
// <dir>/Annotations/<image>.xml. Images are expected at <dir>/JPEGImages/<image>.jpg unless the
// annotation names a different file. Objects flagged as difficult are skipped unless
// keepDifficult is set.
func FromPascalVOC(dir, set string, keepDifficult bool, labels *LabelMap) (Table, error) {
	lines, err := readLines(filepath.Join(dir, "ImageSets", "Main", set+".txt"))
	if err != nil {
		return nil, err
	}
	log.Printf("Parsing Pascal VOC labels for %d files", len(lines))

	data := make(Table, 0, len(lines))
	for _, line := range lines {
		// Lines of class specific sets have the form "name flag".
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]

		r, err := parseVOCAnnotation(dir, name, keepDifficult, labels)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", name, err)
			continue
		}
		data = append(data, r)
	}

	return data, nil
}

// parseVOCAnnotation reads the annotation of a single image.
func parseVOCAnnotation(dir, name string, keepDifficult bool, labels *LabelMap) (
	r Record, err error) {

	f, err := os.Open(filepath.Join(dir, "Annotations", name+".xml"))
	if err != nil {
		return Record{}, err
	}
	defer closeWithErrCheck(f, &err)

	var a vocAnnotation
	if err := xml.NewDecoder(f).Decode(&a); err != nil {
		return Record{}, fmt.Errorf("invalid annotation XML: %v", err)
	}

	file := a.Filename
	if file == "" {
		file = name + ".jpg"
	}
	r.ImagePath = filepath.Join(dir, "JPEGImages", file)

	for _, o := range a.Objects {
		if o.Difficult != 0 && !keepDifficult {
			continue
		}
		b := o.BndBox
		r.Boxes = append(r.Boxes, Box{b.XMin, b.YMin, b.XMax, b.YMax})
		r.Labels = append(r.Labels, labels.ID(o.Name))
	}

	return r, nil
}
