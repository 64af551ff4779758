// Command mhr-render renders a mono (or downmixed) WAV file to binaural
// stereo through an HRIR data set.
//
// Usage:
//
//	mhr-render [options] -hrtf <set.mhr> <input.wav> <output.wav>
//
// The input is resampled to the data set's sample rate. The source can be
// placed at a fixed direction or rotated around the listener.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"hrtfkit/dsp"
	"hrtfkit/internal/wavio"
	"hrtfkit/pkg/mhr"
	"hrtfkit/pkg/resampler"
)

var (
	hrtfFile  = flag.String("hrtf", "", "HRIR data set (.mhr)")
	azimuth   = flag.Float64("az", 0, "Source azimuth in degrees, positive to the right")
	elevation = flag.Float64("el", 0, "Source elevation in degrees")
	spread    = flag.Float64("spread", 0, "Source spread in degrees (0-360)")
	gain      = flag.Float64("gain", 1, "Source gain")
	rotate    = flag.Float64("rotate", 0, "Rotation speed in degrees per second (0 = fixed)")
	blockSize = flag.Int("block", 256, "Processing block size in samples")
	quality   = flag.String("quality", "balanced", "Resampler quality: fast, balanced or best")
)

// renderOptions are the parameters of one render.
type renderOptions struct {
	Elevation float32 // radians
	Azimuth   float32 // radians
	Spread    float32 // radians
	Gain      float32

	// RotateRate is the azimuth change in radians per second.
	RotateRate float64

	BlockSize int
	Quality   resampler.Quality
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -hrtf <set.mhr> <input.wav> <output.wav>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Renders a WAV file to binaural stereo.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -hrtf default-44100.mhr -az 90 voice.wav voice-right.wav\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -hrtf default-44100.mhr -rotate 45 loop.wav loop-orbit.wav\n", os.Args[0])
	}
	flag.Parse()

	if flag.NArg() != 2 || *hrtfFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	q, err := resampler.ParseQuality(*quality)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := renderOptions{
		Elevation:  float32(*elevation * math.Pi / 180),
		Azimuth:    float32(*azimuth * math.Pi / 180),
		Spread:     float32(*spread * math.Pi / 180),
		Gain:       float32(*gain),
		RotateRate: *rotate * math.Pi / 180,
		BlockSize:  *blockSize,
		Quality:    q,
	}

	if err := run(*hrtfFile, flag.Arg(0), flag.Arg(1), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(hrtfPath, inputFile, outputFile string, opts renderOptions) error {
	data, err := os.ReadFile(hrtfPath)
	if err != nil {
		return fmt.Errorf("failed to read data set: %w", err)
	}

	set, err := mhr.Decode(data, hrtfPath)
	if err != nil {
		return fmt.Errorf("failed to decode data set: %w", err)
	}

	input, inputRate, err := wavio.ReadMono(inputFile)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	rate := int(set.SampleRate())

	input, err = resampler.NewWithQuality(opts.Quality).Resample(input, inputRate, rate)
	if err != nil {
		return fmt.Errorf("failed to resample input: %w", err)
	}

	left, right, err := render(set, input, opts)
	if err != nil {
		return err
	}

	if err := wavio.WriteStereo(outputFile, left, right, rate); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

// render runs input through a binaural renderer. With a rotation rate the
// azimuth advances once per block. The output is longer than the input by
// the longest delay plus response, so the convolution tail is kept.
func render(set *mhr.DataSet, input []float32, opts renderOptions) (left, right []float32, err error) {
	if opts.BlockSize <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", dsp.ErrBlockSize, opts.BlockSize)
	}

	r, err := dsp.NewBinauralRenderer(set, opts.BlockSize)
	if err != nil {
		return nil, nil, err
	}

	n := len(input) + tailLength(set)

	padded := make([]float32, n)
	copy(padded, input)

	left = make([]float32, n)
	right = make([]float32, n)

	blockSeconds := float64(opts.BlockSize) / float64(set.SampleRate())

	az := float64(opts.Azimuth)
	for off := 0; off < n; off += opts.BlockSize {
		r.SetSource(opts.Elevation, float32(az), opts.Spread, opts.Gain)

		end := min(off+opts.BlockSize, n)
		r.ProcessBlock(padded[off:end], left[off:end], right[off:end])

		az = math.Remainder(az+opts.RotateRate*blockSeconds, 2*math.Pi)
	}

	return left, right, nil
}

// tailLength is the number of samples an impulse rings on after the input
// ends: the largest delay plus the response length, less one.
func tailLength(set *mhr.DataSet) int {
	return mhr.HistoryLength + set.IRSize() - 1
}
