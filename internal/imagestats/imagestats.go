// Package imagestats computes per-channel pixel statistics over a bounded
// sample of decoded images, feeding normalization at training and
// prediction time.
package imagestats

import (
	"context"
	"image"
	_ "image/jpeg" // register JPEG decoding
	_ "image/png"  // register PNG decoding
	"math"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// Channels is the number of color channels statistics are computed for.
const Channels = 3

// Stats holds per-channel pixel means and standard deviations in [0, 1]
// scale, rounded to four decimal places.
type Stats struct {
	Means  []float64
	Stdevs []float64
}

// channelMoments is one image's contribution to the pooled statistics.
type channelMoments struct {
	n    float64
	mean float64
	ssd  float64 // sum of squared deviations from the image mean
}

// Compute decodes every given image and pools per-channel moments into
// exact whole-sample statistics. It fails on the first undecodable image;
// a partial silent result would skew normalization.
func Compute(ctx context.Context, paths []string) (*Stats, error) {
	if len(paths) == 0 {
		return nil, errors.Newf("no images available for channel statistics").
			Category(errors.CategoryConfiguration).
			Build()
	}

	pooled := make([]channelMoments, Channels)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		moments, err := imageMoments(path)
		if err != nil {
			return nil, err
		}
		for c := range Channels {
			pooled[c] = combine(pooled[c], moments[c])
		}
	}

	stats := &Stats{
		Means:  make([]float64, Channels),
		Stdevs: make([]float64, Channels),
	}
	for c := range Channels {
		stats.Means[c] = round4(pooled[c].mean)
		stats.Stdevs[c] = round4(math.Sqrt(pooled[c].ssd / pooled[c].n))
	}
	return stats, nil
}

// imageMoments decodes one image and computes its per-channel moments.
func imageMoments(path string) ([Channels]channelMoments, error) {
	var moments [Channels]channelMoments

	f, err := os.Open(path)
	if err != nil {
		return moments, errors.New(err).
			Category(errors.CategoryImageDecode).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return moments, errors.New(err).
			Category(errors.CategoryImageDecode).
			FileContext(path, 0).
			Build()
	}

	bounds := img.Bounds()
	nPixels := bounds.Dx() * bounds.Dy()
	if nPixels == 0 {
		return moments, errors.Newf("image %s has no pixels", path).
			Category(errors.CategoryImageDecode).
			Build()
	}

	channels := [Channels][]float64{}
	for c := range Channels {
		channels[c] = make([]float64, 0, nPixels)
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			channels[0] = append(channels[0], float64(r)/0xffff)
			channels[1] = append(channels[1], float64(g)/0xffff)
			channels[2] = append(channels[2], float64(b)/0xffff)
		}
	}

	for c := range Channels {
		n := float64(len(channels[c]))
		mean := stat.Mean(channels[c], nil)
		ssd := 0.0
		if n > 1 {
			ssd = stat.Variance(channels[c], nil) * (n - 1)
		}
		moments[c] = channelMoments{n: n, mean: mean, ssd: ssd}
	}
	return moments, nil
}

// combine pools the moments of two pixel populations exactly.
func combine(a, b channelMoments) channelMoments {
	if a.n == 0 {
		return b
	}
	if b.n == 0 {
		return a
	}
	n := a.n + b.n
	delta := b.mean - a.mean
	return channelMoments{
		n:    n,
		mean: a.mean + delta*b.n/n,
		ssd:  a.ssd + b.ssd + delta*delta*a.n*b.n/n,
	}
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
