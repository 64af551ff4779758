package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/crossover"

	"hrtfkit/pkg/mhr"
)

// AmbiChannels is the number of first-order ambisonic channels, in ACN order
// (W, Y, Z, X).
const AmbiChannels = 4

// DefaultCrossoverHz is the band split frequency for BuildBFormatBands.
const DefaultCrossoverHz = 400.0

const crossoverOrder = 4

// ErrInvalidCrossover is returned when the band splitter cannot be designed
// for the requested frequency and the data set's sample rate.
var ErrInvalidCrossover = errors.New("dsp: invalid crossover")

// BFormatCoeffs holds one HRIR pair per ambisonic channel.
type BFormatCoeffs [AmbiChannels][HRIRLength][2]float32

const deg = math.Pi / 180

// Virtual speaker layout used to decode B-format to the two ears.
var cubePoints = [8]struct{ elevation, azimuth float32 }{
	{35 * deg, -45 * deg},
	{35 * deg, 45 * deg},
	{35 * deg, -135 * deg},
	{35 * deg, 135 * deg},
	{-35 * deg, -45 * deg},
	{-35 * deg, 45 * deg},
	{-35 * deg, -135 * deg},
	{-35 * deg, 135 * deg},
}

// Encoding gains per cube point. Row 0 applies to the full band (or the high
// band when split), row 1 to the low band.
var cubeMatrix = [8][2][AmbiChannels]float32{
	{{0.25, 0.1443375672, 0.1443375672, 0.1443375672}, {0.125, 0.125, 0.125, 0.125}},
	{{0.25, -0.1443375672, 0.1443375672, 0.1443375672}, {0.125, -0.125, 0.125, 0.125}},
	{{0.25, 0.1443375672, 0.1443375672, -0.1443375672}, {0.125, 0.125, 0.125, -0.125}},
	{{0.25, -0.1443375672, 0.1443375672, -0.1443375672}, {0.125, -0.125, 0.125, -0.125}},
	{{0.25, 0.1443375672, -0.1443375672, 0.1443375672}, {0.125, 0.125, -0.125, 0.125}},
	{{0.25, -0.1443375672, -0.1443375672, 0.1443375672}, {0.125, -0.125, -0.125, 0.125}},
	{{0.25, 0.1443375672, -0.1443375672, -0.1443375672}, {0.125, 0.125, -0.125, -0.125}},
	{{0.25, -0.1443375672, -0.1443375672, -0.1443375672}, {0.125, -0.125, -0.125, -0.125}},
}

const (
	bandFull = 0
	bandHigh = 0
	bandLow  = 1
)

// BuildBFormat fills coeffs with the filters that decode first-order B-format
// to binaural output, using the nearest measured response to each cube point.
// Responses are time-aligned against the earliest one. The number of
// populated samples per channel is returned.
func BuildBFormat(set *mhr.DataSet, coeffs *BFormatCoeffs) int {
	lidx, ridx, minDelay := cubeIndices(set)
	irSize := set.IRSize()

	*coeffs = BFormatCoeffs{}

	var temp [HRIRLength]float32

	maxLen := 0
	for c := range cubePoints {
		for ear, idx := range [2]int{lidx[c], ridx[c]} {
			for i, s := range set.Response(idx) {
				temp[i] = float32(s) / quantScale
			}

			delay := int(set.Delay(idx)) - minDelay
			accumulate(coeffs, ear, delay, &temp, &cubeMatrix[c][bandFull])

			maxLen = max(maxLen, min(delay+irSize, HRIRLength))
		}
	}

	return maxLen
}

// BuildBFormatBands is BuildBFormat with each response split into a low and a
// high band at crossoverHz. The bands are weighted with separate encoding
// gains before being summed.
func BuildBFormatBands(set *mhr.DataSet, coeffs *BFormatCoeffs, crossoverHz float64) (int, error) {
	xo, err := crossover.New(crossoverHz, crossoverOrder, float64(set.SampleRate()))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCrossover, err)
	}

	lidx, ridx, minDelay := cubeIndices(set)
	irSize := set.IRSize()

	*coeffs = BFormatCoeffs{}

	var (
		in, lo, hi   [HRIRLength]float64
		loF32, hiF32 [HRIRLength]float32
	)

	maxLen := 0
	for c := range cubePoints {
		for ear, idx := range [2]int{lidx[c], ridx[c]} {
			clear(in[:])
			for i, s := range set.Response(idx) {
				in[i] = float64(s) / quantScale
			}

			// The filter tail runs over the whole buffer.
			xo.Reset()
			xo.ProcessBlock(in[:], lo[:], hi[:])

			for i := range HRIRLength {
				loF32[i] = float32(lo[i])
				hiF32[i] = float32(hi[i])
			}

			delay := int(set.Delay(idx)) - minDelay
			accumulate(coeffs, ear, delay, &hiF32, &cubeMatrix[c][bandHigh])
			accumulate(coeffs, ear, delay, &loF32, &cubeMatrix[c][bandLow])

			maxLen = max(maxLen, min(delay+irSize, HRIRLength))
		}
	}

	return maxLen, nil
}

// cubeIndices selects the nearest left and right responses for each cube
// point and returns the smallest delay among them.
func cubeIndices(set *mhr.DataSet) (lidx, ridx [8]int, minDelay int) {
	evCount := set.EvCount()
	minDelay = mhr.HistoryLength

	for c, pt := range cubePoints {
		ev := int(math.Floor(float64((pt.elevation+math.Pi/2)*float32(evCount-1)/math.Pi + 0.5)))
		ev = min(ev, evCount-1)

		azCount := set.AzCount(ev)
		evOffset := set.EvOffset(ev)

		az := int(math.Floor(float64((pt.azimuth+math.Pi)*float32(azCount)/(2*math.Pi)+0.5))) % azCount

		lidx[c] = evOffset + az
		ridx[c] = evOffset + mirrorAzimuth(azCount, az)

		minDelay = min(minDelay, int(set.Delay(lidx[c])), int(set.Delay(ridx[c])))
	}

	return lidx, ridx, minDelay
}

// accumulate adds src, shifted by delay samples and weighted per channel, to
// one ear of every channel in dst.
func accumulate(dst *BFormatCoeffs, ear, delay int, src *[HRIRLength]float32, gains *[AmbiChannels]float32) {
	for ch := range AmbiChannels {
		g := gains[ch]
		out := &dst[ch]

		k := 0
		for j := delay; j < HRIRLength; j++ {
			out[j][ear] += src[k] * g
			k++
		}
	}
}
