package detdata

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"

	// Decoders for formats beyond the standard library.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Channels is the number of channels of every decoded Image.
const Channels = 3

// maxPixelValue is the largest value of an 8-bit channel.
const maxPixelValue = 255

// ChannelOrder is the order of the colour channels in an Image.
type ChannelOrder int

// The supported channel orders.
const (
	RGB ChannelOrder = iota
	BGR
)

// ParseChannelOrder parses "rgb" or "bgr".
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(s) {
	case "rgb":
		return RGB, nil
	case "bgr":
		return BGR, nil
	}
	return RGB, fmt.Errorf("unknown channel order %q", s)
}

func (o ChannelOrder) String() string {
	if o == BGR {
		return "BGR"
	}
	return "RGB"
}

// Layout is the memory layout of an exported image tensor.
type Layout int

// The supported tensor layouts.
const (
	HWC Layout = iota // Interleaved: height, width, channel.
	CHW               // Planar: channel, height, width.
)

// Image is a decoded image with three float32 channels stored interleaved (HWC). Values are in
// [0, 1] after decoding, but transforms such as Normalize may move them out of that range.
//
// Image implements image.Image, clamping values to [0, 1].
type Image struct {
	Pix    []float32
	Width  int
	Height int
	Order  ChannelOrder
}

// NewImage allocates a black image.
func NewImage(width, height int, order ChannelOrder) *Image {
	return &Image{
		Pix:    make([]float32, width*height*Channels),
		Width:  width,
		Height: height,
		Order:  order,
	}
}

// Shape returns the dimensions of the HWC pixel array.
func (m *Image) Shape() [3]int {
	return [3]int{m.Height, m.Width, Channels}
}

// PixOffset returns the index of the first channel of the pixel at (x, y).
func (m *Image) PixOffset(x, y int) int {
	return (y*m.Width + x) * Channels
}

// Valid reports whether the pixel buffer matches the dimensions.
func (m *Image) Valid() bool {
	return m.Width >= 0 && m.Height >= 0 && len(m.Pix) == m.Width*m.Height*Channels
}

// Tensor copies the pixels into a float32 vector with the given layout.
func (m *Image) Tensor(layout Layout) anyvec.Vector {
	data := make([]float32, len(m.Pix))
	if layout == HWC {
		copy(data, m.Pix)
		return anyvec32.MakeVectorData(data)
	}

	plane := m.Width * m.Height
	for i := 0; i < plane; i++ {
		for c := 0; c < Channels; c++ {
			data[c*plane+i] = m.Pix[i*Channels+c]
		}
	}
	return anyvec32.MakeVectorData(data)
}

// ColorModel implements image.Image.
func (m *Image) ColorModel() color.Model {
	return color.NRGBA64Model
}

// Bounds implements image.Image.
func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// At implements image.Image.
func (m *Image) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(m.Bounds())) {
		return color.NRGBA64{}
	}
	i := m.PixOffset(x, y)
	r, g, b := m.Pix[i], m.Pix[i+1], m.Pix[i+2]
	if m.Order == BGR {
		r, b = b, r
	}
	return color.NRGBA64{R: toUint16(r), G: toUint16(g), B: toUint16(b), A: 0xffff}
}

func toUint16(v float32) uint16 {
	if v <= 0 {
		return 0
	} else if v >= 1 {
		return 0xffff
	}
	return uint16(math.Round(float64(v) * 0xffff))
}

// imageFromNRGBA converts an 8-bit image to the float representation in the given channel order.
// Alpha is dropped without premultiplication.
func imageFromNRGBA(src *image.NRGBA, order ChannelOrder) *Image {
	bounds := src.Bounds()
	m := NewImage(bounds.Dx(), bounds.Dy(), order)

	ri, bi := 0, 2
	if order == BGR {
		ri, bi = 2, 0
	}

	for y := 0; y < m.Height; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+m.Width*4]
		dst := m.Pix[m.PixOffset(0, y):]
		for x := 0; x < m.Width; x++ {
			s := srcRow[x*4 : x*4+4]
			d := dst[x*Channels : x*Channels+Channels]
			d[ri] = float32(s[0]) / maxPixelValue
			d[1] = float32(s[1]) / maxPixelValue
			d[bi] = float32(s[2]) / maxPixelValue
		}
	}

	return m
}

// FromImage converts any image.Image to an Image in the given channel order, scaling the 8-bit
// channel values to [0, 1].
func FromImage(img image.Image, order ChannelOrder) *Image {
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = imaging.Clone(img)
	}
	return imageFromNRGBA(nrgba, order)
}

// LoadImage reads and decodes the image at path, applying its EXIF orientation. The result has
// three channels in the given order with values in [0, 1].
//
// All failures are reported as *DecodeError.
func LoadImage(path string, order ChannelOrder) (*Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return FromImage(img, order), nil
}

// resizeImage resamples the image to match the longer and shorter sides (one may be 0).
//
// Returns the resized image along with the width and height scale factors.
func resizeImage(img image.Image, longerSide, shorterSide int,
	downsamplingFilter, upsamplingFilter imaging.ResampleFilter) (
	resized *image.NRGBA, scaleWidth, scaleHeight float64) {

	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}

	// Select the filter based on the direction of the rescaling operation.
	var filter imaging.ResampleFilter
	if longerSide*shorterSide < imgWidth*imgHeight {
		filter = downsamplingFilter
	} else {
		filter = upsamplingFilter
	}

	if isLandscape {
		resized = imaging.Resize(img, longerSide, shorterSide, filter)
		scaleWidth = float64(longerSide) / float64(imgLonger)
		scaleHeight = float64(shorterSide) / float64(imgShorter)
	} else { // Portrait.
		resized = imaging.Resize(img, shorterSide, longerSide, filter)
		scaleWidth = float64(shorterSide) / float64(imgShorter)
		scaleHeight = float64(longerSide) / float64(imgLonger)
	}

	return resized, scaleWidth, scaleHeight
}

// ResampleFilter returns the imaging filter with the given name.
func ResampleFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// SaveImage encodes img as PNG or JPEG, depending on the file extension of path.
func SaveImage(path string, img image.Image, jpegQuality int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	}
	return err
}
