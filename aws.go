package detdata

// AWS Rekognition detect-labels output.

import (
	"encoding/json"
	"io/ioutil"
)

// awsBoundingBox is an axis-aligned rectangle with the dimensions given as normalised ratios of
// the image size.
type awsBoundingBox struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// awsInstance is an object instance in an AWS label.
type awsInstance struct {
	BoundingBox awsBoundingBox
	Confidence  float64 // Range [0, 100].
}

// awsLabel is a single label within an AWS detect-labels file.
type awsLabel struct {
	Confidence float64 // Range [0, 100].
	Instances  []awsInstance
	Name       string
}

// awsDetectLabelsFile is the AWS detect-labels structure for a single image.
type awsDetectLabelsFile struct {
	Labels []awsLabel `json:"Labels"`
}

// FromAWSDetectLabels reads and parses AWS detect-labels results from labelDir and matches them to
// the images in imageDir by base name. Instances with a confidence below minConfidence (range
// [0, 1]) are dropped; labels without instances carry no box and are ignored.
func FromAWSDetectLabels(labelDir, imageDir string, minConfidence float64, labels *LabelMap) (
	Table, error) {

	return parseLabelsWithOneToOneImages(labelDir, ".json", imageDir,
		func(labelPath, imagePath string) (Record, error) {
			return parseAWSDetectLabelsFile(labelPath, imagePath, minConfidence, labels)
		})
}

// parseAWSDetectLabelsFile parses the label file at labelPath and reads the size of the
// corresponding image at imagePath to construct the Record.
func parseAWSDetectLabelsFile(labelPath, imagePath string, minConfidence float64,
	labels *LabelMap) (Record, error) {

	enc, err := ioutil.ReadFile(labelPath)
	if err != nil {
		return Record{}, err
	}

	var awsData awsDetectLabelsFile
	if err := json.Unmarshal(enc, &awsData); err != nil {
		return Record{}, err
	}

	// Get the image width and height.
	img, _, err := decodeImageConfig(imagePath)
	if err != nil {
		return Record{}, err
	}
	w, h := float64(img.Width), float64(img.Height)

	// Instances are unrolled into one object each.
	r := Record{ImagePath: imagePath}
	for _, a := range awsData.Labels {
		for _, i := range a.Instances {
			if i.Confidence/100 < minConfidence {
				continue
			}
			b := i.BoundingBox
			r.Boxes = append(r.Boxes, Box{
				b.Left * w,
				b.Top * h,
				(b.Left + b.Width) * w,
				(b.Top + b.Height) * h,
			})
			r.Labels = append(r.Labels, labels.ID(a.Name))
		}
	}

	return r, nil
}
