package detdata

// KITTI label files.

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
)

// FromKitti reads and parses KITTI annotations from labelDir and matches them to the images in
// imageDir by base name. Class names are converted to ids with labels.
func FromKitti(labelDir, imageDir string, labels *LabelMap) (Table, error) {
	labelFiles, err := filesByExtInDir(labelDir, ".txt")
	if err != nil {
		return nil, err
	}
	log.Printf("Parsing KITTI labels for %d files", len(labelFiles))

	// Find the image files and create a map from base file name without ext to ext.
	imageFiles, err := filesByExtInDir(imageDir, "")
	if err != nil {
		return nil, err
	}
	imageNamesToExt := mapFileNamesToExtensions(imageFiles)

	data := make(Table, 0, len(labelFiles))
	for _, path := range labelFiles {
		lines, err := readLines(path)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", path, err)
			continue
		}

		_, baseNoExt, _, err := splitPath(path)
		if err != nil {
			log.Print(err)
			continue
		}
		imageExt, found := imageNamesToExt[baseNoExt]
		if !found {
			log.Print("Could not find the corresponding image file, skipping ", path)
			continue
		}

		r := Record{ImagePath: filepath.Join(imageDir, baseNoExt+"."+imageExt)}
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			name, box, err := parseKittiObject(line)
			if err != nil {
				log.Printf("Error while parsing %q: %v", path, err)
				continue
			}
			r.Boxes = append(r.Boxes, box)
			r.Labels = append(r.Labels, labels.ID(name))
		}

		data = append(data, r)
	}

	return data, nil
}

// parseKittiObject parses the class name and bounding box from the line of a single object.
func parseKittiObject(line string) (string, Box, error) {
	var box Box

	tokens := strings.Fields(line)
	if len(tokens) < 8 {
		return "", box, fmt.Errorf("insufficient tokens in %q", line)
	}

	var err error
	for i := 4; i < 8 && err == nil; i++ {
		box[i-4], err = strconv.ParseFloat(tokens[i], 64)
	}
	if err != nil {
		return "", box, fmt.Errorf("unexpected values in %q: %v", line, err)
	}

	return tokens[0], box, nil
}
