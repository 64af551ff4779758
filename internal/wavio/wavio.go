// Package wavio reads and writes the PCM WAV files used by the command line
// tools.
package wavio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"hrtfkit/pkg/q15"
)

// Errors returned by ReadMono.
var (
	ErrNotWAV         = errors.New("wavio: not a WAV file")
	ErrUnsupportedPCM = errors.New("wavio: unsupported sample format")
)

// pcmFormat is the WAVE_FORMAT_PCM audio format tag.
const pcmFormat = 1

// ReadMono decodes an integer PCM WAV file and downmixes it to mono. It
// returns the samples and the sample rate.
func ReadMono(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotWAV, path)
	}

	if dec.WavAudioFormat != pcmFormat {
		return nil, 0, fmt.Errorf("%w: format tag %d", ErrUnsupportedPCM, dec.WavAudioFormat)
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, 0, fmt.Errorf("%w: %d bits", ErrUnsupportedPCM, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wavio: decoding %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, 0, fmt.Errorf("%w: %d channels", ErrUnsupportedPCM, channels)
	}

	data := buf.Data
	if dec.BitDepth == 8 {
		// 8-bit PCM is unsigned.
		data = make([]int, len(buf.Data))
		for i, v := range buf.Data {
			data[i] = v - 128
		}
	}

	return q15.Downmix(data, channels, int(dec.BitDepth)), buf.Format.SampleRate, nil
}

// WriteStereo encodes left and right as a 16-bit stereo PCM WAV file. The
// channels must have equal length.
func WriteStereo(path string, left, right []float32, rate int) (err error) {
	if len(left) != len(right) {
		return fmt.Errorf("wavio: channel lengths differ: %d and %d", len(left), len(right))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc := wav.NewEncoder(f, rate, 16, 2, pcmFormat)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: rate},
		Data:           q15.Interleave([][]float32{left, right}),
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: encoding %s: %w", path, err)
	}

	return enc.Close()
}
