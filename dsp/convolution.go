package dsp

import (
	"errors"
	"fmt"

	"github.com/MeKo-Christian/algo-fft"
)

// Errors.
var (
	ErrBlockSize      = errors.New("dsp: invalid block size")
	ErrKernelTooLong  = errors.New("dsp: kernel exceeds engine capacity")
	ErrFFTUnavailable = errors.New("dsp: FFT plan unavailable")
)

// OverlapAddEngine handles FFT-based fast convolution using overlap-add.
// The kernel can be replaced between blocks; the pending tail of the previous
// kernel is kept so a change never truncates output already in flight.
type OverlapAddEngine struct {
	// FFT configuration
	fftSize   int // power of two >= blockSize + maxKernel - 1
	blockSize int // largest accepted input block
	maxKernel int // longest accepted kernel

	plan *algofft.Plan[complex64]

	// Kernel in frequency domain
	kernelFFT []complex64
	kernelLen int

	// Pending output, index 0 is the next sample to emit
	acc []float32

	// Scratch
	inputBuf []complex64
}

// NewOverlapAddEngine creates an engine that convolves blocks of up to
// blockSize samples with kernels of up to maxKernel samples. The initial
// kernel is silent.
func NewOverlapAddEngine(maxKernel, blockSize int) (*OverlapAddEngine, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, blockSize)
	}
	if maxKernel <= 0 {
		return nil, fmt.Errorf("%w: kernel capacity %d", ErrKernelTooLong, maxKernel)
	}

	fftSize := nextPowerOf2(blockSize + maxKernel - 1)

	plan, err := algofft.NewPlan32(fftSize)
	if err != nil {
		return nil, fmt.Errorf("%w: size %d: %w", ErrFFTUnavailable, fftSize, err)
	}

	return &OverlapAddEngine{
		fftSize:   fftSize,
		blockSize: blockSize,
		maxKernel: maxKernel,
		plan:      plan,
		kernelFFT: make([]complex64, fftSize),
		acc:       make([]float32, fftSize),
		inputBuf:  make([]complex64, fftSize),
	}, nil
}

// BlockSize returns the largest block ProcessBlock accepts.
func (e *OverlapAddEngine) BlockSize() int { return e.blockSize }

// KernelLen returns the length of the current kernel.
func (e *OverlapAddEngine) KernelLen() int { return e.kernelLen }

// SetKernel replaces the convolution kernel.
func (e *OverlapAddEngine) SetKernel(kernel []float32) error {
	if len(kernel) > e.maxKernel {
		return fmt.Errorf("%w: %d > %d", ErrKernelTooLong, len(kernel), e.maxKernel)
	}

	// Zero-pad kernel to FFT size
	for i := range e.kernelFFT {
		if i < len(kernel) {
			e.kernelFFT[i] = complex(kernel[i], 0)
		} else {
			e.kernelFFT[i] = 0
		}
	}

	if err := e.plan.Forward(e.kernelFFT, e.kernelFFT); err != nil {
		return fmt.Errorf("kernel FFT failed: %w", err)
	}

	e.kernelLen = len(kernel)

	return nil
}

// ProcessBlock convolves input with the current kernel and writes
// len(input) samples to output.
func (e *OverlapAddEngine) ProcessBlock(input, output []float32) {
	if len(input) > e.blockSize {
		panic(fmt.Sprintf("input block size %d exceeds engine block size %d", len(input), e.blockSize))
	}
	if len(output) < len(input) {
		panic(fmt.Sprintf("output buffer too short: %d < %d", len(output), len(input)))
	}

	n := len(input)

	// Pad input to FFT size
	for i := range e.inputBuf {
		if i < n {
			e.inputBuf[i] = complex(input[i], 0)
		} else {
			e.inputBuf[i] = 0
		}
	}

	err := e.plan.Forward(e.inputBuf, e.inputBuf)
	if err != nil {
		panic(fmt.Sprintf("forward FFT failed: %v", err))
	}

	// Multiply in frequency domain
	for i := range e.inputBuf {
		e.inputBuf[i] *= e.kernelFFT[i]
	}

	// Inverse FFT (algo-fft scales by 1/N automatically)
	err = e.plan.Inverse(e.inputBuf, e.inputBuf)
	if err != nil {
		panic(fmt.Sprintf("inverse FFT failed: %v", err))
	}

	// Overlap-add onto the pending tail
	for i := range e.acc {
		e.acc[i] += real(e.inputBuf[i])
	}

	copy(output, e.acc[:n])
	copy(e.acc, e.acc[n:])
	clear(e.acc[e.fftSize-n:])
}

// Reset drops the pending tail.
func (e *OverlapAddEngine) Reset() {
	clear(e.acc)
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
