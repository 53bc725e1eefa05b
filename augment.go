package detdata

// Built-in augmentations. All of them treat boxes as absolute x1, y1, x2, y2 pixel coordinates.

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
)

// Rand is the source of randomness for the random augmentations. A *rand.Rand satisfies it but is
// not safe for concurrent use; a nil Rand uses the top-level functions of math/rand, which are.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) Intn(n int) int   { return rand.Intn(n) }

func randOrGlobal(r Rand) Rand {
	if r == nil {
		return globalRand{}
	}
	return r
}

// HorizontalFlip mirrors the image and its boxes left to right with probability P.
type HorizontalFlip struct {
	P    float64
	Rand Rand
}

// Apply implements Transform.
func (f HorizontalFlip) Apply(a Annotated) (Annotated, error) {
	if randOrGlobal(f.Rand).Float64() >= f.P {
		return a, nil
	}

	m := a.Image
	for y := 0; y < m.Height; y++ {
		for l, r := 0, m.Width-1; l < r; l, r = l+1, r-1 {
			li, ri := m.PixOffset(l, y), m.PixOffset(r, y)
			for c := 0; c < Channels; c++ {
				m.Pix[li+c], m.Pix[ri+c] = m.Pix[ri+c], m.Pix[li+c]
			}
		}
	}

	w := float64(m.Width)
	for i, b := range a.Boxes {
		a.Boxes[i] = Box{w - b[2], b[1], w - b[0], b[3]}
	}
	return a, nil
}

// VerticalFlip mirrors the image and its boxes top to bottom with probability P.
type VerticalFlip struct {
	P    float64
	Rand Rand
}

// Apply implements Transform.
func (f VerticalFlip) Apply(a Annotated) (Annotated, error) {
	if randOrGlobal(f.Rand).Float64() >= f.P {
		return a, nil
	}

	m := a.Image
	rowLen := m.Width * Channels
	tmp := make([]float32, rowLen)
	for t, b := 0, m.Height-1; t < b; t, b = t+1, b-1 {
		top := m.Pix[m.PixOffset(0, t) : m.PixOffset(0, t)+rowLen]
		bottom := m.Pix[m.PixOffset(0, b) : m.PixOffset(0, b)+rowLen]
		copy(tmp, top)
		copy(top, bottom)
		copy(bottom, tmp)
	}

	h := float64(m.Height)
	for i, b := range a.Boxes {
		a.Boxes[i] = Box{b[0], h - b[3], b[2], h - b[1]}
	}
	return a, nil
}

// Resize resamples the image so that its longer and shorter sides match LongerSide and
// ShorterSide. If one of them is zero, it is derived from the other to keep the aspect ratio. If
// both are zero, the image is left unchanged.
//
// Resampling goes through 8-bit intermediate pixels, so values are quantised to steps of 1/255
// and clamped to [0, 1].
type Resize struct {
	LongerSide  int
	ShorterSide int
	Downsample  *imaging.ResampleFilter // Defaults to imaging.Box.
	Upsample    *imaging.ResampleFilter // Defaults to imaging.Linear.
}

// Apply implements Transform.
func (r Resize) Apply(a Annotated) (Annotated, error) {
	if r.LongerSide <= 0 && r.ShorterSide <= 0 {
		return a, nil
	}
	if a.Image.Width == 0 || a.Image.Height == 0 {
		return a, fmt.Errorf("cannot resize an empty image")
	}

	down, up := imaging.Box, imaging.Linear
	if r.Downsample != nil {
		down = *r.Downsample
	}
	if r.Upsample != nil {
		up = *r.Upsample
	}

	resized, sx, sy := resizeImage(a.Image, r.LongerSide, r.ShorterSide, down, up)
	a.Image = imageFromNRGBA(resized, a.Image.Order)
	for i := range a.Boxes {
		b := &a.Boxes[i]
		b[0] *= sx
		b[1] *= sy
		b[2] *= sx
		b[3] *= sy
	}
	return a, nil
}

// RandomCrop cuts a Width x Height region at a random position from the image. Crops larger than
// the image are reduced to the image size.
//
// Boxes are shifted into the crop and clipped to it. A box is dropped, along with its label, when
// nothing of it remains or when the remaining fraction of its area is below MinVisibility.
type RandomCrop struct {
	Width         int
	Height        int
	MinVisibility float64
	Rand          Rand
}

// Apply implements Transform.
func (c RandomCrop) Apply(a Annotated) (Annotated, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return a, fmt.Errorf("invalid crop size %dx%d", c.Width, c.Height)
	}
	if len(a.Boxes) != len(a.Labels) {
		return a, fmt.Errorf("crop: %d boxes and %d labels: %w", len(a.Boxes), len(a.Labels),
			ErrMisaligned)
	}

	src := a.Image
	w, h := c.Width, c.Height
	if w > src.Width {
		w = src.Width
	}
	if h > src.Height {
		h = src.Height
	}

	rng := randOrGlobal(c.Rand)
	x0 := rng.Intn(src.Width - w + 1)
	y0 := rng.Intn(src.Height - h + 1)

	dst := NewImage(w, h, src.Order)
	for y := 0; y < h; y++ {
		copy(dst.Pix[dst.PixOffset(0, y):dst.PixOffset(0, y)+w*Channels],
			src.Pix[src.PixOffset(x0, y+y0):])
	}
	a.Image = dst

	a.Boxes, a.Labels = cropBoxes(a.Boxes, a.Labels, float64(x0), float64(y0), float64(w),
		float64(h), c.MinVisibility)
	return a, nil
}

// cropBoxes shifts the boxes by (-x0, -y0), clips them to [0, w] x [0, h] and drops the ones that
// are no longer visible enough. Boxes and labels are filtered in place.
func cropBoxes(boxes []Box, labels []int64, x0, y0, w, h, minVisibility float64) (
	[]Box, []int64) {

	n := 0
	for i, b := range boxes {
		area := b.Width() * b.Height()
		clipped := Box{
			math.Max(b[0]-x0, 0),
			math.Max(b[1]-y0, 0),
			math.Min(b[2]-x0, w),
			math.Min(b[3]-y0, h),
		}
		if clipped.Width() <= 0 || clipped.Height() <= 0 {
			continue
		}
		if area > 0 && clipped.Width()*clipped.Height()/area < minVisibility {
			continue
		}

		boxes[n] = clipped
		labels[n] = labels[i]
		n++
	}
	return boxes[:n], labels[:n]
}

// BoxFilter drops objects that do not match the label list, are smaller than the minimum size or
// fall outside of the aspect ratio range. Zero values disable the respective checks. The order of
// the remaining objects is kept.
type BoxFilter struct {
	Labels         []int64
	MinWidth       float64
	MinHeight      float64
	MinAspectRatio float64
	MaxAspectRatio float64
}

// Apply implements Transform.
func (f BoxFilter) Apply(a Annotated) (Annotated, error) {
	if len(a.Boxes) != len(a.Labels) {
		return a, fmt.Errorf("box filter: %d boxes and %d labels: %w", len(a.Boxes), len(a.Labels),
			ErrMisaligned)
	}

	opts := FilterOptions{
		Labels:         f.Labels,
		MinWidth:       f.MinWidth,
		MinHeight:      f.MinHeight,
		MinAspectRatio: f.MinAspectRatio,
		MaxAspectRatio: f.MaxAspectRatio,
	}

	n := 0
	for i, b := range a.Boxes {
		if !opts.keep(b, a.Labels[i]) {
			continue
		}
		a.Boxes[n] = b
		a.Labels[n] = a.Labels[i]
		n++
	}
	a.Boxes = a.Boxes[:n]
	a.Labels = a.Labels[:n]
	return a, nil
}

// ScaleBoxes transforms bounding boxes without touching the image.
//
// First boxes are scaled around their centre by ScaleX and ScaleY. A zero scale factor is
// treated as 1.
//
// Next, a box is grown (never shrunk) to match AspectRatio (width/height). An AspectRatio of zero
// disables this step.
type ScaleBoxes struct {
	ScaleX      float64
	ScaleY      float64
	AspectRatio float64
}

// Apply implements Transform.
func (s ScaleBoxes) Apply(a Annotated) (Annotated, error) {
	for i := range a.Boxes {
		a.Boxes[i] = s.scale(a.Boxes[i])
	}
	return a, nil
}

func (s ScaleBoxes) scale(b Box) Box {
	sx, sy := s.ScaleX, s.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}

	// Scale.
	if sx != 1 || sy != 1 {
		w := b.Width()
		h := b.Height()
		dx := (w*sx - w) * 0.5
		dy := (h*sy - h) * 0.5

		b[0] -= dx
		b[1] -= dy
		b[2] += dx
		b[3] += dy
	}

	// Grow to match the desired aspect ratio.
	if s.AspectRatio > 0 {
		// Calculate the ratio so that the expansion works even if one of width or height is zero.
		w := b.Width()
		h := b.Height()
		var ratio float64
		if h != 0 {
			ratio = w / h
		} else {
			ratio = math.MaxFloat64
		}

		if ratio < s.AspectRatio {
			dx := (h*s.AspectRatio - w) * 0.5
			b[0] -= dx
			b[2] += dx
		} else if ratio > s.AspectRatio {
			dy := (w/s.AspectRatio - h) * 0.5
			b[1] -= dy
			b[3] += dy
		}
	}

	return b
}

// Normalize standardises each channel as (v - Mean) / Std. Mean and Std are given in the channel
// order of the image.
type Normalize struct {
	Mean [Channels]float32
	Std  [Channels]float32
}

// Apply implements Transform.
func (n Normalize) Apply(a Annotated) (Annotated, error) {
	for c, s := range n.Std {
		if s == 0 {
			return a, fmt.Errorf("zero standard deviation for channel %d", c)
		}
	}

	pix := a.Image.Pix
	for i := 0; i < len(pix); i += Channels {
		for c := 0; c < Channels; c++ {
			pix[i+c] = (pix[i+c] - n.Mean[c]) / n.Std[c]
		}
	}
	return a, nil
}
