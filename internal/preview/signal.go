package preview

// Signal produces the mono test signal fed to the renderer.
type Signal interface {
	// Rate returns the sample rate of the signal.
	Rate() int

	// Next fills dst with the following samples.
	Next(dst []float32)
}

// NoiseBursts is a repeating burst of white noise followed by silence,
// which makes direction changes easy to hear.
type NoiseBursts struct {
	rate    int
	on, off int
	level   float32

	pos  int
	seed uint32
}

// NewNoiseBursts creates a signal with onSec seconds of noise every
// onSec+offSec seconds.
func NewNoiseBursts(rate int, onSec, offSec float64, level float32) *NoiseBursts {
	return &NoiseBursts{
		rate:  rate,
		on:    max(1, int(onSec*float64(rate))),
		off:   max(0, int(offSec*float64(rate))),
		level: level,
		seed:  22222,
	}
}

// Rate implements Signal.
func (n *NoiseBursts) Rate() int { return n.rate }

// Next implements Signal.
func (n *NoiseBursts) Next(dst []float32) {
	period := n.on + n.off

	for i := range dst {
		if n.pos < n.on {
			// Numerical Recipes LCG
			n.seed = n.seed*1664525 + 1013904223
			dst[i] = (float32(n.seed>>8)/float32(1<<23) - 1) * n.level
		} else {
			dst[i] = 0
		}

		n.pos++
		if n.pos >= period {
			n.pos = 0
		}
	}
}

// Loop repeats a recorded signal.
type Loop struct {
	samples []float32
	rate    int
	pos     int
}

// NewLoop creates a looping signal. An empty recording plays silence.
func NewLoop(samples []float32, rate int) *Loop {
	return &Loop{samples: samples, rate: rate}
}

// Rate implements Signal.
func (l *Loop) Rate() int { return l.rate }

// Next implements Signal.
func (l *Loop) Next(dst []float32) {
	if len(l.samples) == 0 {
		clear(dst)
		return
	}

	for i := 0; i < len(dst); {
		n := copy(dst[i:], l.samples[l.pos:])
		i += n

		l.pos += n
		if l.pos >= len(l.samples) {
			l.pos = 0
		}
	}
}
