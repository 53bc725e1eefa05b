package detdata

// TFRecord export of object detection examples.

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// tfFeatures builds the object detection features for a single record. Box coordinates are
// normalised by the image size.
func tfFeatures(r Record, labels *LabelMap) (TFFeatureMap, error) {
	img, format, err := decodeImageConfig(r.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}
	if img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("empty image")
	}

	imgData, err := readFile(r.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = r.ImagePath
	f["image/source_id"] = r.ImagePath
	f["image/encoded"] = imgData
	f["image/format"] = format

	n := len(r.Boxes)
	xmins := make([]float32, n)
	ymins := make([]float32, n)
	xmaxs := make([]float32, n)
	ymaxs := make([]float32, n)
	classes := make([]string, n)
	classIDs := make([]int64, n)
	for i, b := range r.Boxes {
		xmins[i] = float32(b[0]) / float32(img.Width)
		ymins[i] = float32(b[1]) / float32(img.Height)
		xmaxs[i] = float32(b[2]) / float32(img.Width)
		ymaxs[i] = float32(b[3]) / float32(img.Height)

		classIDs[i] = r.Labels[i]
		classes[i] = strconv.FormatInt(r.Labels[i], 10)
		if labels != nil {
			if name, ok := labels.Name(r.Labels[i]); ok {
				classes[i] = name
			}
		}
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write of the table to one or
// more TFRecord files at recordFilePath, with a "-xxxxx-of-yyyyy" suffix when numShards > 1.
//
// Class texts are taken from labels, which may be nil. Records whose image cannot be read are
// logged and skipped.
func WriteTFRecord(recordFilePath string, t Table, labels *LabelMap, numShards int) error {
	return WriteCustomTFRecord(recordFilePath, t, labels, numShards, nil)
}

// WriteCustomTFRecord works like WriteTFRecord, except that customiseFeature may modify the
// feature map of each record before it is serialised, as long as all of its values can be
// converted to tensorflow.Feature.
func WriteCustomTFRecord(recordFilePath string, t Table, labels *LabelMap, numShards int,
	customiseFeature func(r Record, m TFFeatureMap)) (err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if err := t.Validate(); err != nil {
		return err
	}
	if numShards <= 0 {
		numShards = 1
	}
	if numShards > len(t) && len(t) > 0 {
		numShards = len(t)
	}

	shardPath := func(idx int) string {
		if numShards == 1 {
			return recordFilePath
		}
		return fmt.Sprintf("%s-%05d-of-%05d", recordFilePath, idx, numShards)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()

	// Record i goes to shard i*numShards/len(t), so every one of the numShards files is created.
	shardIdx := -1
	written := 0

	for i, r := range t {
		// Check if a new shard file needs to be opened for writing.
		if idx := i * numShards / len(t); idx != shardIdx {
			shardIdx = idx

			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return err
				}
				shardFile = nil
			}

			f, err := os.Create(shardPath(shardIdx))
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath(shardIdx), err)
			}
			shardFile = f
		}

		features, err := tfFeatures(r, labels)
		if err != nil {
			log.Printf("Failed to convert %q: %v", r.ImagePath, err)
			continue
		}
		if customiseFeature != nil {
			customiseFeature(r, features)
		}

		if err := writeTFRecordExample(shardFile, example.New(features)); err != nil {
			return fmt.Errorf("failed to write example for %q: %v", r.ImagePath, err)
		}
		written++
	}

	log.Printf("Wrote %d examples to %d shard(s)", written, shardIdx+1)
	return nil
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}
