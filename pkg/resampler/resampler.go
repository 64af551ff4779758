// Package resampler converts input audio to the sample rate of an HRIR data
// set. Data sets themselves are never resampled.
package resampler

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// ErrInvalidRate is returned for non-positive sample rates.
var ErrInvalidRate = errors.New("resampler: invalid sample rate")

// ErrInvalidQuality is returned by ParseQuality for unknown names.
var ErrInvalidQuality = errors.New("resampler: invalid quality")

// Quality selects the anti-aliasing filter of the polyphase converter.
type Quality = resample.Quality

// Quality modes, from cheapest to most accurate.
const (
	QualityFast     = resample.QualityFast
	QualityBalanced = resample.QualityBalanced
	QualityBest     = resample.QualityBest
)

// ParseQuality maps "fast", "balanced" or "best" to a Quality.
func ParseQuality(name string) (Quality, error) {
	switch strings.ToLower(name) {
	case "fast":
		return QualityFast, nil
	case "balanced", "":
		return QualityBalanced, nil
	case "best":
		return QualityBest, nil
	}
	return QualityBalanced, fmt.Errorf("%w: %q", ErrInvalidQuality, name)
}

// Resampler performs whole-buffer sample rate conversion. The output is
// compensated for the filter delay so that it lines up with the input.
type Resampler struct {
	quality Quality
}

// New creates a Resampler with balanced quality.
func New() *Resampler {
	return &Resampler{quality: QualityBalanced}
}

// NewWithQuality creates a Resampler with the given filter quality.
func NewWithQuality(q Quality) *Resampler {
	return &Resampler{quality: q}
}

// Quality returns the configured filter quality.
func (r *Resampler) Quality() Quality { return r.quality }

// Resample converts mono audio from srcRate to dstRate. The input is copied
// when the rates match. The result has OutputLength samples.
func (r *Resampler) Resample(data []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, srcRate, dstRate)
	}

	if srcRate == dstRate {
		result := make([]float32, len(data))
		copy(result, data)
		return result, nil
	}

	output := make([]float32, OutputLength(len(data), srcRate, dstRate))
	if len(output) == 0 {
		return output, nil
	}

	rs, err := resample.NewForRates(float64(srcRate), float64(dstRate), resample.WithQuality(r.quality))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRate, err)
	}

	up, down := rs.Ratio()
	taps := rs.TapsPerPhase()

	// The linear-phase prototype is taps*up long; its centre is the delay
	// in output samples.
	delay := int(math.Round(float64(taps*up-1) / float64(2*down)))

	// Zero padding flushes the filter tail past the last input sample.
	in := make([]float64, len(data)+taps/2+2)
	for i, v := range data {
		in[i] = float64(v)
	}

	y := rs.Process(in)
	for i := range output {
		if j := i + delay; j < len(y) {
			output[i] = float32(y[j])
		}
	}

	return output, nil
}

// OutputLength returns the number of samples Resample produces.
func OutputLength(inputLen, srcRate, dstRate int) int {
	if inputLen == 0 || srcRate <= 0 {
		return 0
	}
	return int(math.Round(float64(inputLen) * float64(dstRate) / float64(srcRate)))
}
