package detdata

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises the pixels and objects of a dataset.
type Stats struct {
	Samples int
	Objects int
	Mean    [Channels]float64 // Per channel, in the dataset's channel order.
	StdDev  [Channels]float64 // Population standard deviation per channel.
}

// ChannelStats computes the per-channel pixel mean and standard deviation over all samples of ds,
// as seen after the dataset's transform. Every pixel has the same weight.
func ChannelStats(ds SampleList) (Stats, error) {
	var s Stats
	if ds.Len() == 0 {
		return s, fmt.Errorf("cannot compute statistics of an empty dataset")
	}

	// Per sample means and variances, combined below weighted by pixel count.
	var means, variances [Channels][]float64
	weights := make([]float64, 0, ds.Len())
	channel := make([]float64, 0)

	for i := 0; i < ds.Len(); i++ {
		sample, err := ds.GetSample(i)
		if err != nil {
			return s, err
		}
		s.Samples++
		s.Objects += sample.Target.Len()

		img := sample.Image
		numPixels := img.Width * img.Height
		if numPixels == 0 {
			continue
		}
		weights = append(weights, float64(numPixels))

		for c := 0; c < Channels; c++ {
			channel = channel[:0]
			for p := c; p < len(img.Pix); p += Channels {
				channel = append(channel, float64(img.Pix[p]))
			}
			m, v := stat.PopMeanVariance(channel, nil)
			means[c] = append(means[c], m)
			variances[c] = append(variances[c], v)
		}

		if (i+1)%1000 == 0 {
			log.Printf("Processed %d of %d samples", i+1, ds.Len())
		}
	}
	if len(weights) == 0 {
		return s, nil
	}

	// Law of total variance: the mean of the variances plus the variance of the means.
	for c := 0; c < Channels; c++ {
		mean := stat.Mean(means[c], weights)
		_, varOfMeans := stat.PopMeanVariance(means[c], weights)
		s.Mean[c] = mean
		// Rounding may leave a tiny negative variance for constant channels.
		s.StdDev[c] = math.Sqrt(math.Max(0, stat.Mean(variances[c], weights)+varOfMeans))
	}

	return s, nil
}
