// Converts object detection labels from KITTI, Sloth, VGG Image Annotator, Pascal VOC, AWS
// detect-labels or JSON Lines tables into JSON Lines tables or TFRecord files, and verifies that
// every sample of a table can be loaded for training.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sensorable/detdata"
	"github.com/unixpickle/anynet/anysgd"
)

var (
	convertFrom format // The source format.
	convertTo   format // The target format.

	imageDirPath           string   // The input directory with the labeled images.
	labelFileOrDirPath     string   // The input label directory or file, depending on the format.
	labelOutFileOrDirPaths []string // The output label file path(s).
	labelOutSplits         []int    // The cumulative split percentages for the output datasets.
	hashSplitRatio         float64  // The fraction of the deterministic hash split for the first output.
	labelMapFilePath       string   // The label map file.
	numShardFiles          int      // The number of shard files to create.
	vocSet                 string   // The Pascal VOC image set.
	vocKeepDifficult       bool     // Keep Pascal VOC objects flagged as difficult.
	awsMinConfidence       float64  // The min. confidence of AWS instances.

	labelMappings   string  // A comma-separated string of label mappings.
	bboxScaleWidth  float64 // A scale factor for the bounding box width.
	bboxScaleHeight float64 // A scale factor for the bounding box height.
	bboxAspectRatio float64 // The desired output aspect ratio for bounding boxes.

	filterLabels         string  // A comma-separated string of label ids to keep (empty keeps all).
	filterRequireLabel   bool    // Filter out files with no labels (after other filters).
	filterMinBboxWidth   float64 // The minimum bounding box width.
	filterMinBboxHeight  float64 // The minimum bounding box height.
	filterMinAspectRatio float64 // The minimum aspect ratio of bboxes (w/h).
	filterMaxAspectRatio float64 // The maximum aspect ratio of bboxes (w/h).

	verify          bool                 // Load every sample through the dataset adapter.
	computeStats    bool                 // Compute per-channel statistics.
	batchSize       int                  // The batch size for verification.
	numWorkers      int                  // The goroutines loading samples per batch.
	channelOrder    detdata.ChannelOrder // The channel order of decoded images.
	resizeLonger    int                  // The target length for the longer side of the image.
	resizeShorter   int                  // The target length for the shorter side of the image.
	downsampling    imaging.ResampleFilter
	upsampling      imaging.ResampleFilter
	hflipProb       float64 // The probability of a horizontal flip.
	previewDirPath  string  // The output directory for transformed sample previews.
	previewCount    int     // The number of previews to write.
	jpegQuality     int     // The JPEG quality for previews.
	shuffleVerified bool    // Shuffle the samples before verification.
)

type format int

// The known label formats.
const (
	Unknown format = iota // If an unknown format is specified.
	AWSDetectLabels
	Kitti
	Sloth
	Table
	TFRecord
	VIA // VGG Image Annotator
	VOC // Pascal VOC
)

func formatFrom(s string) format {
	switch s {
	case "aws-dl":
		return AWSDetectLabels
	case "kitti":
		return Kitti
	case "sloth":
		return Sloth
	case "table":
		return Table
	case "tfrecord":
		return TFRecord
	case "via":
		return VIA
	case "voc":
		return VOC
	}
	return Unknown
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  aws-dl input options:\t\t-labels <dir> -images <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  kitti input options:\t\t-labels <dir> -images <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  sloth input options:\t\t-labels <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  table input options:\t\t-labels <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  table output options:\t\t-labels-out <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord output options:\t-labels-out <file> [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr, "  via input options:\t\t-labels <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  voc input options:\t\t-labels <dir> [-voc-set]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Format arguments.
	from := flag.String("from", "", "The source `format`")
	to := flag.String("to", "", "The target `format` (empty to write no labels)")

	// Path arguments.
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image input directory (kitti, aws-dl)")
	flag.StringVar(&labelFileOrDirPath, "labels", labelFileOrDirPath,
		"The `path` to the label input file (sloth, table, via) or directory (kitti, aws-dl, voc)")
	outPaths := flag.String("labels-out", "",
		"The comma-separated paths (`path[,...]`) to the label output files; must be one path per"+
			" value in flag -split, or two with -hash-split")
	outSplits := flag.String("split", "100",
		"The comma-separated output split percentages (`percent[,...]`) to randomly divide records"+
			" into; must add up to 100%")
	flag.Float64Var(&hashSplitRatio, "hash-split", 0,
		"Split deterministically by image path hash, with this `fraction` in the first output")
	flag.StringVar(&labelMapFilePath, "label-map", labelMapFilePath,
		"The label map file `path`; read if it exists and written after parsing")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")
	flag.StringVar(&vocSet, "voc-set", "trainval", "The Pascal VOC image `set`")
	flag.BoolVar(&vocKeepDifficult, "voc-keep-difficult", vocKeepDifficult,
		"Keep Pascal VOC objects flagged as difficult")
	flag.Float64Var(&awsMinConfidence, "aws-min-confidence", awsMinConfidence,
		"The minimum confidence of AWS instances; range [0.0, 1.0)")

	// Transformation arguments.
	flag.StringVar(&labelMappings, "map-labels", labelMappings,
		"Comma-separated list of old=new label id replacements")
	flag.Float64Var(&bboxScaleWidth, "bbox-scale-x", 1,
		"A scale factor for the width of all bounding boxes")
	flag.Float64Var(&bboxScaleHeight, "bbox-scale-y", 1,
		"A scale factor for the height of all bounding boxes")
	flag.Float64Var(&bboxAspectRatio, "bbox-aspect-ratio", 0,
		"The output aspect `ratio` for object bounding boxes; bounding boxes are grown (not shrunk)"+
			" to match this ratio when it is > 0")

	// Filter arguments.
	flag.StringVar(&filterLabels, "filter-labels", filterLabels,
		"Comma-separated list of label ids to keep (after map-labels; empty string keeps all)")
	flag.BoolVar(&filterRequireLabel, "require-label", filterRequireLabel,
		"Require at least one label (after filters) to keep the file")
	flag.Float64Var(&filterMinBboxWidth, "min-bbox-width", filterMinBboxWidth,
		"The min. required width in `pixels` for object bounding boxes")
	flag.Float64Var(&filterMinBboxHeight, "min-bbox-height", filterMinBboxHeight,
		"The min. required height in `pixels` for object bounding boxes")
	flag.Float64Var(&filterMinAspectRatio, "min-bbox-aspect-ratio", filterMinAspectRatio,
		"The min. required aspect `ratio` (width/height) for object bounding boxes (zero disables"+
			" the filter)")
	flag.Float64Var(&filterMaxAspectRatio, "max-bbox-aspect-ratio", filterMaxAspectRatio,
		"The max. required aspect `ratio` (width/height) for object bounding boxes (zero disables"+
			" the filter)")

	// Sample loading arguments.
	flag.BoolVar(&verify, "verify", verify,
		"Decode and transform every sample and report the ones that fail")
	flag.BoolVar(&computeStats, "stats", computeStats,
		"Compute the per-channel pixel mean and standard deviation")
	flag.BoolVar(&shuffleVerified, "shuffle", shuffleVerified,
		"Shuffle the samples before verification")
	flag.IntVar(&batchSize, "batch-size", 32, "The number of samples loaded per batch")
	flag.IntVar(&numWorkers, "workers", 0,
		"The number of goroutines loading samples (zero uses GOMAXPROCS)")
	order := flag.String("channel-order", "rgb", "The channel `order` of decoded images {rgb, bgr}")
	flag.IntVar(&resizeLonger, "resize-longer", resizeLonger,
		"The target `length` for the longer side of loaded images (zero to keep aspect ratio)")
	flag.IntVar(&resizeShorter, "resize-shorter", resizeShorter,
		"The target `length` for the shorter side of loaded images (zero to keep aspect ratio)")
	downsamplingFilter := flag.String("downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	upsamplingFilter := flag.String("upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.Float64Var(&hflipProb, "hflip", 0,
		"The `probability` of flipping loaded images horizontally")
	flag.StringVar(&previewDirPath, "preview-dir", previewDirPath,
		"The `path` to a directory to write transformed sample images to")
	flag.IntVar(&previewCount, "preview-count", 10, "The number of sample images to preview")
	flag.IntVar(&jpegQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEG previews [1, 100]")

	// Parse and validate flags.
	flag.Parse()

	convertFrom = formatFrom(*from)
	convertTo = formatFrom(*to)

	// Validate the conversion direction.
	validInFormat := false
	for _, f := range []format{AWSDetectLabels, Kitti, Sloth, Table, VIA, VOC} {
		if f == convertFrom {
			validInFormat = true
			break
		}
	}
	if !validInFormat {
		printUsageAndExit("Unsupported input format")
	} else if *to != "" && convertTo != Table && convertTo != TFRecord {
		printUsageAndExit("Unsupported output format")
	}

	// Validate input arguments.
	if labelFileOrDirPath == "" ||
		(convertFrom == Kitti && imageDirPath == "") ||
		(convertFrom == AWSDetectLabels && imageDirPath == "") {
		printUsageAndExit("Missing label or image input path argument")
	}

	// Validate output split arguments.
	if *to != "" {
		labelOutFileOrDirPaths = strings.Split(*outPaths, ",")
		if *outPaths == "" {
			printUsageAndExit("Missing label output path argument")
		}
	}
	if hashSplitRatio != 0 {
		if hashSplitRatio < 0 || hashSplitRatio > 1 {
			printUsageAndExit("Invalid -hash-split, must be in [0.0, 1.0]: ", hashSplitRatio)
		}
		if *to != "" && len(labelOutFileOrDirPaths) != 2 {
			printUsageAndExit("Flag -hash-split requires two paths in -labels-out")
		}
	} else {
		splits := strings.Split(*outSplits, ",")
		if *to != "" && len(splits) != len(labelOutFileOrDirPaths) {
			printUsageAndExit("The number of output datasets defined by -split and the number of" +
				" paths in -labels-out must match")
		}

		// Parse splits as cumulative int percentages.
		var splitSum int
		for _, v := range splits {
			if i, err := strconv.Atoi(v); err != nil || i < 0 || i > 100 {
				printUsageAndExit("Invalid value in -split: ", v)
			} else {
				splitSum += i
				labelOutSplits = append(labelOutSplits, splitSum)
			}
		}
		if splitSum != 100 {
			printUsageAndExit("The values in -split must add up to 100%")
		}
	}

	// Transformation arguments.
	if bboxScaleWidth <= 0 || bboxScaleHeight <= 0 {
		printUsageAndExit("Invalid bounding box scale factor")
	} else if bboxAspectRatio < 0 {
		printUsageAndExit("Invalid value for -bbox-aspect-ratio")
	}

	// Sample loading arguments.
	var err error
	if channelOrder, err = detdata.ParseChannelOrder(*order); err != nil {
		printUsageAndExit(err)
	}
	if downsampling, err = detdata.ResampleFilter(*downsamplingFilter); err != nil {
		printUsageAndExit(err)
	}
	if upsampling, err = detdata.ResampleFilter(*upsamplingFilter); err != nil {
		printUsageAndExit(err)
	}
	if batchSize <= 0 {
		printUsageAndExit("Invalid -batch-size")
	}
	if numWorkers < 0 {
		printUsageAndExit("Invalid -workers")
	}
	if hflipProb < 0 || hflipProb > 1 {
		printUsageAndExit("Invalid -hflip, must be in [0.0, 1.0]: ", hflipProb)
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 92
		log.Print("Invalid JPEG quality, setting it to ", jpegQuality)
	}

	// Validate filter arguments.
	if awsMinConfidence < 0 || awsMinConfidence >= 1 {
		printUsageAndExit("Invalid -aws-min-confidence, must be in [0.0, 1.0): ", awsMinConfidence)
	}

	// Clean path arguments.
	if imageDirPath != "" {
		imageDirPath = filepath.Clean(imageDirPath)
	}
	if previewDirPath != "" {
		previewDirPath = filepath.Clean(previewDirPath)
	}

	labelFileOrDirPath = filepath.Clean(labelFileOrDirPath)
	for i, v := range labelOutFileOrDirPaths {
		labelOutFileOrDirPaths[i] = filepath.Clean(v)
		if labelFileOrDirPath == labelOutFileOrDirPaths[i] {
			printUsageAndExit("The label input and output paths cannot be identical")
		}
	}
}

func main() {
	// Load the label map. It is not an error if the file does not exist.
	labels := detdata.NewLabelMap()
	if labelMapFilePath != "" {
		if m, err := detdata.LoadLabelMap(labelMapFilePath); err == nil {
			log.Print("Label map loaded successfully")
			labels = m
		} else if os.IsNotExist(err) {
			log.Print("Creating a new label map")
		} else {
			log.Fatal("Failed to read the label map: ", err)
		}
	}

	// Parse input.
	var data detdata.Table
	var err error
	switch convertFrom {
	case AWSDetectLabels:
		data, err = detdata.FromAWSDetectLabels(labelFileOrDirPath, imageDirPath, awsMinConfidence,
			labels)
	case Kitti:
		data, err = detdata.FromKitti(labelFileOrDirPath, imageDirPath, labels)
	case Sloth:
		data, err = detdata.FromSloth(labelFileOrDirPath, labels)
	case Table:
		data, err = detdata.FromJSONLines(labelFileOrDirPath)
	case VIA:
		data, err = detdata.FromVIA(labelFileOrDirPath, labels)
	case VOC:
		data, err = detdata.FromPascalVOC(labelFileOrDirPath, vocSet, vocKeepDifficult, labels)
	default:
		err = fmt.Errorf("unsupported input format")
	}
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}

	if labelMapFilePath != "" && labels.Len() > 0 {
		if err := labels.Save(labelMapFilePath); err != nil {
			log.Fatal("Failed to save the label map: ", err)
		}
	}

	// Map labels.
	if len(labelMappings) > 0 {
		if err := data.MapLabels(strings.Split(labelMappings, ",")); err != nil {
			log.Fatal("Failed to map labels: ", err)
		}
	}

	// Perform transformations.
	if bboxScaleWidth != 1 || bboxScaleHeight != 1 || bboxAspectRatio > 0 {
		data.ScaleBoxes(bboxScaleWidth, bboxScaleHeight, bboxAspectRatio)
	}

	// Apply filters.
	filter := detdata.FilterOptions{
		MinWidth:       filterMinBboxWidth,
		MinHeight:      filterMinBboxHeight,
		MinAspectRatio: filterMinAspectRatio,
		MaxAspectRatio: filterMaxAspectRatio,
		RequireLabel:   filterRequireLabel,
	}
	if filterLabels != "" {
		for _, v := range strings.Split(filterLabels, ",") {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				log.Fatalf("Invalid label id %q in -filter-labels", v)
			}
			filter.Labels = append(filter.Labels, id)
		}
	}
	data.Filter(filter)

	ds := detdata.NewDataset(data, detdata.Options{
		Transform:    sampleTransform(),
		ChannelOrder: channelOrder,
	})

	if verify {
		if shuffleVerified {
			anysgd.Shuffle(ds)
		}
		if failed := verifySamples(ds); failed > 0 {
			log.Printf("%d of %d samples failed to load", failed, ds.Len())
		} else {
			log.Printf("All %d samples loaded successfully", ds.Len())
		}
	}

	if computeStats {
		stats, err := detdata.ChannelStats(ds)
		if err != nil {
			log.Fatal("Failed to compute statistics: ", err)
		}
		log.Printf("%d samples, %d objects", stats.Samples, stats.Objects)
		log.Printf("%s mean: %.4f %.4f %.4f", channelOrder, stats.Mean[0], stats.Mean[1],
			stats.Mean[2])
		log.Printf("%s std:  %.4f %.4f %.4f", channelOrder, stats.StdDev[0], stats.StdDev[1],
			stats.StdDev[2])
	}

	if previewDirPath != "" {
		if err := writePreviews(ds, previewDirPath); err != nil {
			log.Fatal("Failed to write previews: ", err)
		}
	}

	if convertTo == Unknown {
		log.Print("Total number of labelled files: ", len(data))
		return
	}

	// Split data into output datasets.
	var datasets []detdata.Table
	switch {
	case hashSplitRatio != 0:
		left, right := anysgd.HashSplit(ds, hashSplitRatio)
		datasets = []detdata.Table{left.(*detdata.Dataset).Table(), right.(*detdata.Dataset).Table()}
	case len(labelOutSplits) == 1:
		datasets = []detdata.Table{data}
	default:
		if datasets, err = data.Split(labelOutSplits); err != nil {
			log.Fatal("Failed to split the dataset: ", err)
		}
	}

	// Write output datasets.
	for i, t := range datasets {
		outPath := labelOutFileOrDirPaths[i]
		switch convertTo {
		case Table:
			err = detdata.WriteJSONLines(outPath, t)
		case TFRecord:
			err = detdata.WriteTFRecord(outPath, t, labels, numShardFiles)
		default:
			err = fmt.Errorf("unsupported output format")
		}
		if err != nil {
			log.Fatal("Conversion failed: ", err)
		}

		log.Printf("Successfully wrote labels for %d files to %s", len(t), outPath)
	}

	log.Print("Total number of labelled files: ", len(data))
}

// sampleTransform builds the transform applied to loaded samples from the flags, or nil.
func sampleTransform() detdata.Transform {
	var c detdata.Compose
	if resizeLonger > 0 || resizeShorter > 0 {
		c = append(c, detdata.Resize{
			LongerSide:  resizeLonger,
			ShorterSide: resizeShorter,
			Downsample:  &downsampling,
			Upsample:    &upsampling,
		})
	}
	if hflipProb > 0 {
		c = append(c, detdata.HorizontalFlip{P: hflipProb})
	}
	if len(c) == 0 {
		return nil
	}
	return c
}

// verifySamples loads all samples in batches and returns the number of samples that failed.
// A failed batch is retried sample by sample to find every failure.
func verifySamples(ds *detdata.Dataset) int {
	fetcher := &detdata.Fetcher{MaxGos: numWorkers}
	failed := 0
	for i := 0; i < ds.Len(); i += batchSize {
		j := i + batchSize
		if j > ds.Len() {
			j = ds.Len()
		}
		if _, err := fetcher.Fetch(ds.Slice(i, j)); err == nil {
			continue
		}

		for k := i; k < j; k++ {
			if _, err := ds.GetSample(k); err != nil {
				failed++
				logSampleError(err)
			}
		}
	}
	return failed
}

func logSampleError(err error) {
	var decodeErr *detdata.DecodeError
	var transformErr *detdata.TransformError
	switch {
	case errors.As(err, &decodeErr):
		log.Printf("Unreadable image %q: %v", decodeErr.Path, decodeErr.Err)
	case errors.As(err, &transformErr):
		log.Printf("Transform failed for %q: %v", transformErr.Path, transformErr.Err)
	default:
		log.Print(err)
	}
}

// writePreviews writes the first transformed samples of ds to dir.
func writePreviews(ds *detdata.Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	n := previewCount
	if n > ds.Len() {
		n = ds.Len()
	}
	for i := 0; i < n; i++ {
		sample, err := ds.GetSample(i)
		if err != nil {
			logSampleError(err)
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("sample_%05d.jpg", i))
		if err := detdata.SaveImage(path, sample.Image, jpegQuality); err != nil {
			return err
		}
		log.Printf("Wrote %s with %d objects", path, sample.Target.Len())
	}
	return nil
}
