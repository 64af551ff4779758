package dsp

import (
	"math"

	"hrtfkit/pkg/mhr"
	"hrtfkit/pkg/q15"
)

const (
	// HRIRLength is the fixed coefficient buffer length used by the renderer.
	// Every supported data set has IRSize <= HRIRLength.
	HRIRLength = mhr.MaxIRSize

	// DelayFracBits is the number of fractional bits in a fixed-point delay.
	DelayFracBits = 20
	DelayFracOne  = 1 << DelayFracBits

	// PassthruCoeff is the first coefficient of the omni-directional response
	// in the quantized domain. The remaining coefficients are zero.
	PassthruCoeff = 32767 * 0.707106781187

	// GainThreshold is the gain at or below which coefficients are zeroed.
	GainThreshold = 0.0001

	quantScale = q15.Scale
)

// HRIRCoeffs holds one coefficient pair (left, right) per impulse sample.
type HRIRCoeffs [HRIRLength][2]float32

// LerpCoeffs computes bilinearly interpolated HRIR coefficients and delays for
// the given direction, in radians. Elevation is clamped to [-π/2, π/2] and
// azimuth wrapped into [-π, π).
//
// spread widens the source: 0 is a point source and 2π collapses the response
// to the omni-directional pass-through. It is clamped to [0, 2π]. The
// coefficients are scaled by gain.
// Only the first set.IRSize() pairs of coeffs are written.
//
// Non-finite angles are treated as 0. A NaN gain counts as silent.
//
// When gain <= GainThreshold the coefficients are zeroed and delays is not
// written; callers must not use delays for such a source.
func LerpCoeffs(set *mhr.DataSet, elevation, azimuth, spread, gain float32, coeffs *HRIRCoeffs, delays *[2]uint32) {
	irSize := set.IRSize()

	if Silent(gain) {
		clear(coeffs[:irSize])
		return
	}

	dirfact := 1 - max(0, min(finite(spread), 2*math.Pi))/(2*math.Pi)

	ring, evMu := elevationIndices(set.EvCount(), clampElevation(elevation))
	azimuth = wrapAzimuth(azimuth)

	var (
		lidx, ridx [4]int
		azMu       [2]float32
	)

	for i, ev := range ring {
		azCount := set.AzCount(ev)
		evOffset := set.EvOffset(ev)

		var az [2]int
		az, azMu[i] = azimuthIndices(azCount, azimuth)

		lidx[i*2+0] = evOffset + az[0]
		lidx[i*2+1] = evOffset + az[1]
		ridx[i*2+0] = evOffset + mirrorAzimuth(azCount, az[0])
		ridx[i*2+1] = evOffset + mirrorAzimuth(azCount, az[1])
	}

	blend := [4]float32{
		(1 - azMu[0]) * (1 - evMu),
		azMu[0] * (1 - evMu),
		(1 - azMu[1]) * evMu,
		azMu[1] * evMu,
	}

	delays[0] = lerpDelay(set, &lidx, &blend, dirfact)
	delays[1] = lerpDelay(set, &ridx, &blend, dirfact)

	var left, right [4][]int16
	for k := range 4 {
		left[k] = set.Response(lidx[k])
		right[k] = set.Response(ridx[k])
	}

	scale := gain / quantScale

	// Sample 0 blends toward the pass-through value, the rest toward zero.
	var base float32 = PassthruCoeff
	for i := range irSize {
		l := float32(left[0][i])*blend[0] + float32(left[1][i])*blend[1] +
			float32(left[2][i])*blend[2] + float32(left[3][i])*blend[3]
		r := float32(right[0][i])*blend[0] + float32(right[1][i])*blend[1] +
			float32(right[2][i])*blend[2] + float32(right[3][i])*blend[3]

		coeffs[i][0] = (base + (l-base)*dirfact) * scale
		coeffs[i][1] = (base + (r-base)*dirfact) * scale
		base = 0
	}
}

func lerpDelay(set *mhr.DataSet, idx *[4]int, blend *[4]float32, dirfact float32) uint32 {
	d := float32(set.Delay(idx[0]))*blend[0] + float32(set.Delay(idx[1]))*blend[1] +
		float32(set.Delay(idx[2]))*blend[2] + float32(set.Delay(idx[3]))*blend[3]

	return uint32(d*dirfact+0.5) << DelayFracBits
}

// elevationIndices returns the two rings bracketing ev and the interpolation
// factor between them.
func elevationIndices(evCount int, ev float32) (ring [2]int, mu float32) {
	f := (ev + math.Pi/2) * float32(evCount-1) / math.Pi

	ring[0] = min(int(f), evCount-1)
	ring[1] = min(ring[0]+1, evCount-1)
	mu = f - float32(ring[0])

	return ring, mu
}

// azimuthIndices returns the two azimuths on a ring of azCount points that
// bracket az, and the interpolation factor between them.
func azimuthIndices(azCount int, az float32) (idx [2]int, mu float32) {
	f := (az + math.Pi) * float32(azCount) / (2 * math.Pi)
	fl := float32(math.Floor(float64(f)))

	idx[0] = int(fl) % azCount
	if idx[0] < 0 {
		idx[0] += azCount
	}
	idx[1] = (idx[0] + 1) % azCount
	mu = f - fl

	return idx, mu
}

// mirrorAzimuth returns the right-ear index for left-ear azimuth a.
func mirrorAzimuth(azCount, a int) int {
	return (azCount - a) % azCount
}

// Silent reports whether gain is low enough that a source produces no output.
func Silent(gain float32) bool {
	return !(gain > GainThreshold)
}

// finite maps NaN and ±Inf to 0.
func finite(v float32) float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0
	}
	return v
}

func clampElevation(ev float32) float32 {
	return max(-math.Pi/2, min(finite(ev), math.Pi/2))
}

func wrapAzimuth(az float32) float32 {
	az = finite(az)
	if az >= -math.Pi && az < math.Pi {
		return az
	}

	w := math.Mod(float64(az)+math.Pi, 2*math.Pi)
	if w < 0 {
		w += 2 * math.Pi
	}

	return float32(w - math.Pi)
}
