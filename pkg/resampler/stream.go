package resampler

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// Stream converts audio block by block, keeping filter state between calls.
// It is used where the input arrives incrementally, such as live playback.
type Stream struct {
	rs *resample.Resampler

	in  []float64
	out []float32
}

// NewStream creates a streaming converter from srcRate to dstRate.
func NewStream(srcRate, dstRate int) (*Stream, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, srcRate, dstRate)
	}

	rs, err := resample.NewForRates(float64(srcRate), float64(dstRate), resample.WithQuality(resample.QualityBalanced))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRate, err)
	}

	return &Stream{rs: rs}, nil
}

// Process converts one block. The returned slice is reused by the next call.
func (s *Stream) Process(block []float32) []float32 {
	s.in = s.in[:0]
	for _, v := range block {
		s.in = append(s.in, float64(v))
	}

	y := s.rs.Process(s.in)

	s.out = s.out[:0]
	for _, v := range y {
		s.out = append(s.out, float32(v))
	}

	return s.out
}

// Ratio returns the reduced up/down conversion factors.
func (s *Stream) Ratio() (up, down int) {
	return s.rs.Ratio()
}

// Reset clears the filter state.
func (s *Stream) Reset() {
	s.rs.Reset()
}
