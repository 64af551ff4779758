package dsp

import (
	"math"

	"github.com/meko-christian/algo-approx"
)

// MinLevelDB is reported for silent blocks.
const MinLevelDB = -96

// PeakLevelDB returns the peak absolute sample value of block in dBFS.
func PeakLevelDB(block []float32) float32 {
	var peak float32
	for _, s := range block {
		peak = max(peak, abs32(s))
	}

	return levelDB(peak)
}

// levelDB converts a linear amplitude to dBFS, floored at MinLevelDB.
func levelDB(x float32) float32 {
	if x <= 0 {
		return MinLevelDB
	}

	return max(MinLevelDB, 20*log10Approx(x))
}

// log10Approx is a fast log10 for meter display. Its error is far below a
// meter step.
func log10Approx(x float32) float32 {
	return float32(approx.FastLog(float64(x)) / math.Ln10)
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
