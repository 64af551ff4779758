package dsp

import (
	"fmt"
	"sync"

	"hrtfkit/pkg/mhr"
)

// maxKernelLen covers the longest delay followed by the longest response.
const maxKernelLen = mhr.HistoryLength + HRIRLength

// Source is the spatial state of a rendered source. Angles are in radians.
type Source struct {
	Elevation float32
	Azimuth   float32
	Spread    float32
	Gain      float32
}

// BinauralRenderer renders a mono signal to two ears through the interpolated
// HRIR pair of one source. Parameter changes and processing may happen on
// different goroutines.
type BinauralRenderer struct {
	mu sync.RWMutex

	set     *mhr.DataSet
	source  Source
	engines [2]*OverlapAddEngine

	// Last interpolation result
	coeffs HRIRCoeffs
	delays [2]uint32
	silent bool

	kernel []float32
}

// NewBinauralRenderer creates a renderer for set that processes audio in
// blocks of up to blockSize samples. The source starts straight ahead at unit
// gain.
func NewBinauralRenderer(set *mhr.DataSet, blockSize int) (*BinauralRenderer, error) {
	r := &BinauralRenderer{
		set:    set,
		source: Source{Gain: 1},
		kernel: make([]float32, maxKernelLen),
	}

	for ear := range r.engines {
		engine, err := NewOverlapAddEngine(maxKernelLen, blockSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create convolution engine: %w", err)
		}
		r.engines[ear] = engine
	}

	r.update()

	return r, nil
}

// SetSource moves the source and rebuilds both ear kernels.
func (r *BinauralRenderer) SetSource(elevation, azimuth, spread, gain float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.source = Source{Elevation: elevation, Azimuth: azimuth, Spread: spread, Gain: gain}
	r.update()
}

// SetDataSet switches to another data set, keeping the current source.
func (r *BinauralRenderer) SetDataSet(set *mhr.DataSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.set = set
	for _, engine := range r.engines {
		engine.Reset()
	}
	r.update()
}

// Source returns the current source parameters.
func (r *BinauralRenderer) Source() Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// DataSet returns the data set in use.
func (r *BinauralRenderer) DataSet() *mhr.DataSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// Coefficients returns a copy of the last interpolated coefficients and the
// integer sample delays per ear. The delays are zero for a silent source.
func (r *BinauralRenderer) Coefficients() (HRIRCoeffs, [2]int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var delays [2]int
	if !r.silent {
		delays[0] = int(r.delays[0] >> DelayFracBits)
		delays[1] = int(r.delays[1] >> DelayFracBits)
	}

	return r.coeffs, delays, r.set.IRSize()
}

// update must be called with mu held.
func (r *BinauralRenderer) update() {
	s := r.source
	LerpCoeffs(r.set, s.Elevation, s.Azimuth, s.Spread, s.Gain, &r.coeffs, &r.delays)

	r.silent = Silent(s.Gain)
	if r.silent {
		return
	}

	irSize := r.set.IRSize()
	for ear, engine := range r.engines {
		delay := int(r.delays[ear] >> DelayFracBits)

		kernel := r.kernel[:delay+irSize]
		clear(kernel[:delay])
		for i := range irSize {
			kernel[delay+i] = r.coeffs[i][ear]
		}

		// Length is bounded by maxKernelLen.
		_ = engine.SetKernel(kernel)
	}
}

// ProcessBlock renders in to the left and right outputs. Inputs longer than
// the block size are processed in chunks.
func (r *BinauralRenderer) ProcessBlock(in, outL, outR []float32) {
	if len(outL) < len(in) || len(outR) < len(in) {
		panic(fmt.Sprintf("output buffers too short for %d samples", len(in)))
	}

	// Processing advances the engines' pending tails.
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.silent {
		clear(outL[:len(in)])
		clear(outR[:len(in)])
		return
	}

	step := r.engines[0].BlockSize()
	for off := 0; off < len(in); off += step {
		end := min(off+step, len(in))
		r.engines[0].ProcessBlock(in[off:end], outL[off:end])
		r.engines[1].ProcessBlock(in[off:end], outR[off:end])
	}
}
