package detdata

import (
	"errors"
	"fmt"
)

// Annotated is an image together with its objects. It is the input and output of a Transform.
type Annotated struct {
	Image  *Image
	Boxes  []Box
	Labels []int64
}

// A Transform augments an image jointly with its boxes and labels.
//
// Apply owns its input: it may modify the image, boxes and labels in place and return them. It may
// drop objects, but the returned boxes and labels must stay index-aligned.
//
// A Transform used by a Dataset that is read from multiple goroutines must be safe for concurrent
// use.
type Transform interface {
	Apply(a Annotated) (Annotated, error)
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(a Annotated) (Annotated, error)

// Apply calls f(a).
func (f TransformFunc) Apply(a Annotated) (Annotated, error) {
	return f(a)
}

// Compose applies transforms in order, stopping at the first error. The output of every step is
// validated before it is passed on.
type Compose []Transform

// Apply implements Transform.
func (c Compose) Apply(a Annotated) (Annotated, error) {
	for i, t := range c {
		var err error
		if a, err = t.Apply(a); err != nil {
			return a, fmt.Errorf("transform %d: %w", i, err)
		}
		if err := a.validate(); err != nil {
			return a, fmt.Errorf("transform %d: %w", i, err)
		}
	}
	return a, nil
}

// validate checks the output of a transform.
func (a *Annotated) validate() error {
	if a.Image == nil {
		return errors.New("transform returned no image")
	}
	if !a.Image.Valid() {
		return fmt.Errorf("transform returned %d values for a %dx%d image",
			len(a.Image.Pix), a.Image.Width, a.Image.Height)
	}
	if len(a.Boxes) != len(a.Labels) {
		return fmt.Errorf("transform returned %d boxes and %d labels: %w",
			len(a.Boxes), len(a.Labels), ErrMisaligned)
	}
	return nil
}
