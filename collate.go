package detdata

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/unixpickle/anynet/anysgd"
)

// A Sample is one decoded image and its target.
type Sample struct {
	Image  *Image
	Target *Target
}

// A Batch holds the images and targets of a list of samples, in sample order. Images and targets
// are kept per sample, since the number of objects varies between images.
type Batch struct {
	Images  []*Image
	Targets []*Target
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.Images)
}

// Collate transposes a list of samples into a Batch. It does not validate, pad or stack anything.
func Collate(samples []*Sample) *Batch {
	b := &Batch{
		Images:  make([]*Image, len(samples)),
		Targets: make([]*Target, len(samples)),
	}
	for i, s := range samples {
		b.Images[i] = s.Image
		b.Targets[i] = s.Target
	}
	return b
}

// A SampleList is an anysgd.SampleList that produces detection samples. *Dataset implements it.
type SampleList interface {
	anysgd.SampleList

	GetSample(idx int) (*Sample, error)
}

// A Fetcher loads the samples of a SampleList concurrently and collates them into a *Batch. It
// implements anysgd.Fetcher.
type Fetcher struct {
	// MaxGos specifies the maximum goroutines to use
	// simultaneously for fetching samples.
	// If it is 0 or negative, GOMAXPROCS is used.
	MaxGos int
}

// Fetch produces a *Batch for the samples in s, which must implement SampleList.
// The list may not be empty.
func (f *Fetcher) Fetch(s anysgd.SampleList) (anysgd.Batch, error) {
	if s.Len() == 0 {
		return nil, errors.New("fetch batch: empty batch")
	}
	l, ok := s.(SampleList)
	if !ok {
		return nil, fmt.Errorf("fetch batch: unsupported sample list %T", s)
	}

	samples := make([]*Sample, l.Len())

	idxChan := make(chan int, l.Len())
	for i := 0; i < l.Len(); i++ {
		idxChan <- i
	}
	close(idxChan)

	maxGos := f.MaxGos
	if maxGos <= 0 {
		maxGos = runtime.GOMAXPROCS(0)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, maxGos)
	for i := 0; i < maxGos; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxChan {
				sample, err := l.GetSample(i)
				if err != nil {
					errChan <- fmt.Errorf("fetch batch: %w", err)
					return
				}
				samples[i] = sample
			}
		}()
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	return Collate(samples), nil
}
