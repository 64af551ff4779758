// Package q15 provides conversion between float32 samples and 16-bit
// quantized (Q15) samples as stored in HRIR data sets and PCM files.
package q15

import "math"

// Scale is the quantized value of full scale (+1.0).
const Scale = 32767

// ToFloat32 converts a quantized sample to float32.
func ToFloat32(v int16) float32 {
	return float32(v) / Scale
}

// FromFloat32 converts a float32 sample to the nearest quantized value.
// Values outside [-1, 1] are clipped; NaN maps to zero.
func FromFloat32(v float32) int16 {
	if math.IsNaN(float64(v)) {
		return 0
	}

	q := math.Round(float64(v) * Scale)
	if q > math.MaxInt16 {
		return math.MaxInt16
	}
	if q < -Scale {
		return -Scale
	}

	return int16(q)
}

// ToFloat32Slice converts quantized samples to float32.
func ToFloat32Slice(values []int16) []float32 {
	result := make([]float32, len(values))
	for i, v := range values {
		result[i] = ToFloat32(v)
	}
	return result
}

// FromFloat32Slice converts float32 samples to quantized values.
func FromFloat32Slice(values []float32) []int16 {
	result := make([]int16, len(values))
	for i, v := range values {
		result[i] = FromFloat32(v)
	}
	return result
}

// Interleave converts multi-channel float32 audio to interleaved int values
// in the Q15 range. channels[i] holds the samples of channel i.
// Output is interleaved: ch0_sample0, ch1_sample0, ch0_sample1, ...
func Interleave(channels [][]float32) []int {
	if len(channels) == 0 {
		return []int{}
	}

	numChannels := len(channels)
	numSamples := len(channels[0])

	// Verify all channels have the same length
	for i := 1; i < numChannels; i++ {
		if len(channels[i]) != numSamples {
			panic("Interleave: all channels must have equal length")
		}
	}

	result := make([]int, numChannels*numSamples)
	idx := 0

	for sample := range numSamples {
		for ch := range numChannels {
			result[idx] = int(FromFloat32(channels[ch][sample]))
			idx++
		}
	}

	return result
}

// Downmix converts interleaved integer PCM of the given bit depth to mono
// float32 by averaging the channels.
func Downmix(data []int, channels, bitDepth int) []float32 {
	if channels <= 0 {
		panic("Downmix: channels must be > 0")
	}

	fullScale := float32(int(1)<<(bitDepth-1)) - 1
	numSamples := len(data) / channels

	result := make([]float32, numSamples)
	for i := range numSamples {
		var sum float32
		for ch := range channels {
			sum += float32(data[i*channels+ch])
		}
		result[i] = sum / float32(channels) / fullScale
	}

	return result
}
