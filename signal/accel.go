package signal

import (
	"math"

	"github.com/rustyeddy/volaccel/indicators"
	"gonum.org/v1/gonum/stat"
)

// AccelThreshold is the normalized derivative both volume derivatives must
// exceed, in the same direction, for a bar to count as accelerating.
const AccelThreshold = 0.1

// Acceleration is the volume acceleration state of a series for one
// smoothing window.
type Acceleration struct {
	Smoothed  []float64
	FirstNorm []float64
	// SecondNorm is the z-scored second difference of the smoothed volume.
	SecondNorm []float64
	// Run is the signed count of consecutive accelerating bars.
	Run []int
}

// VolumeAcceleration smooths volume over smooth bars, z-scores its first and
// second differences over the whole history and counts consecutive bars
// where both agree beyond AccelThreshold.
func VolumeAcceleration(volume []float64, smooth int) Acceleration {
	sm := indicators.RollingMean(volume, smooth, 1)
	d1 := indicators.Diff(sm, 1)
	d2 := indicators.Diff(d1, 1)

	a := Acceleration{
		Smoothed:   sm,
		FirstNorm:  zscore(d1),
		SecondNorm: zscore(d2),
		Run:        make([]int, len(volume)),
	}

	run := 0
	for i := 1; i < len(volume); i++ {
		switch {
		case a.FirstNorm[i] > AccelThreshold && a.SecondNorm[i] > AccelThreshold:
			run = max(0, run) + 1
		case a.FirstNorm[i] < -AccelThreshold && a.SecondNorm[i] < -AccelThreshold:
			run = min(0, run) - 1
		default:
			run = 0
		}
		a.Run[i] = run
	}
	return a
}

// zscore normalizes x by the mean and sample standard deviation of its
// non-NaN values. NaN positions stay NaN.
func zscore(x []float64) []float64 {
	valid := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}

	out := make([]float64, len(x))
	if len(valid) < 2 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	mean, std := stat.MeanStdDev(valid, nil)
	std += 1e-10
	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out
}
