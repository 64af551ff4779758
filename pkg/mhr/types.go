// Package mhr provides reading and writing of minimum-phase HRIR data sets (.mhr).
//
// An .mhr file stores one directional impulse response per measured direction,
// organised as elevation rings with a per-ring azimuth count. Two layouts exist,
// identified by an 8-byte magic marker:
//
//   - "MinPHR00": u32 rate, u16 response count, u16 IR size, u8 elevation count,
//     u16 elevation offsets, i16 coefficients, u8 delays.
//   - "MinPHR01": u32 rate, u8 IR size, u8 elevation count, u8 azimuth counts,
//     i16 coefficients, u8 delays.
//
// All multi-byte fields are little-endian. Only the left-ear hemisphere is stored;
// right-ear responses are found by mirroring the azimuth.
package mhr

import (
	"errors"
	"fmt"
)

// Version identifies the on-disk layout of a data set.
type Version int

// Supported layouts.
const (
	Version0 Version = iota
	Version1
)

// Magic markers for each layout.
const (
	MagicV0 = "MinPHR00"
	MagicV1 = "MinPHR01"

	MagicSize = 8
)

// Data set limits.
const (
	MinIRSize = 8
	MaxIRSize = 128
	ModIRSize = 8

	MinEvCount = 5
	MaxEvCount = 128

	MinAzCount = 1
	MaxAzCount = 128

	// HistoryLength is the length of the renderer's per-ear input history.
	// Delays must fit inside it.
	HistoryLength = 64
	MaxDelay      = HistoryLength - 1
)

// Errors.
var (
	ErrInvalidMagic        = errors.New("mhr: invalid magic marker")
	ErrTruncated           = errors.New("mhr: unexpected end of data")
	ErrUnsupportedIRSize   = errors.New("mhr: unsupported HRIR size")
	ErrUnsupportedEvCount  = errors.New("mhr: unsupported elevation count")
	ErrUnsupportedAzCount  = errors.New("mhr: unsupported azimuth count")
	ErrInvalidOffset       = errors.New("mhr: invalid elevation offset")
	ErrInvalidDelay        = errors.New("mhr: invalid delay")
	ErrInvalidCoefficients = errors.New("mhr: coefficient count mismatch")
	ErrUnsupportedVersion  = errors.New("mhr: unsupported format version")
)

// FormatError describes a single field that failed validation.
type FormatError struct {
	Field string // offending field, e.g. "irSize" or "delays[12]"
	Value int    // value found in the data
	Want  string // accepted range or required size
	Err   error  // one of the sentinel errors above
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v: %s=%d (want %s)", e.Err, e.Field, e.Value, e.Want)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func truncated(section string, remaining, required int) error {
	return &FormatError{
		Field: section,
		Value: remaining,
		Want:  fmt.Sprintf(">= %d bytes", required),
		Err:   ErrTruncated,
	}
}

// DataSet is a validated HRIR data set. It is never modified after construction
// and may be shared between any number of readers.
type DataSet struct {
	sampleRate uint32
	irSize     uint16
	evCount    uint8
	azCount    []uint16
	evOffset   []uint32
	coeffs     []int16
	delays     []uint8
	sourceID   string
}

// New validates the given layout and builds a data set from it. Elevation
// offsets are derived from azCounts. The slices are copied.
func New(sampleRate uint32, irSize int, azCounts []uint16, coeffs []int16, delays []uint8, sourceID string) (*DataSet, error) {
	err := errors.Join(checkIRSize(irSize), checkEvCount(len(azCounts)))
	if err != nil {
		return nil, err
	}

	t := table{
		sampleRate: sampleRate,
		irSize:     irSize,
		azCount:    make([]uint16, len(azCounts)),
		evOffset:   make([]uint32, len(azCounts)),
	}
	copy(t.azCount, azCounts)

	var errs []error
	for i, n := range t.azCount {
		errs = append(errs, checkAzCount(i, int(n)))
		t.evOffset[i] = uint32(t.irCount)
		t.irCount += int(n)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if len(coeffs) != t.irCount*irSize {
		return nil, &FormatError{
			Field: "coefficients",
			Value: len(coeffs),
			Want:  fmt.Sprintf("%d", t.irCount*irSize),
			Err:   ErrInvalidCoefficients,
		}
	}
	if len(delays) != t.irCount {
		return nil, &FormatError{
			Field: "delays",
			Value: len(delays),
			Want:  fmt.Sprintf("%d", t.irCount),
			Err:   ErrInvalidCoefficients,
		}
	}
	if err := checkDelays(delays); err != nil {
		return nil, err
	}

	set := t.build(sourceID)
	set.coeffs = make([]int16, len(coeffs))
	copy(set.coeffs, coeffs)
	set.delays = make([]uint8, len(delays))
	copy(set.delays, delays)

	return set, nil
}

// SampleRate returns the rate the responses were authored at.
func (s *DataSet) SampleRate() uint32 { return s.sampleRate }

// IRSize returns the number of samples per impulse response.
func (s *DataSet) IRSize() int { return int(s.irSize) }

// EvCount returns the number of elevation rings.
func (s *DataSet) EvCount() int { return int(s.evCount) }

// AzCount returns the number of azimuths on elevation ring ev.
func (s *DataSet) AzCount(ev int) int { return int(s.azCount[ev]) }

// EvOffset returns the index of the first response on elevation ring ev.
func (s *DataSet) EvOffset(ev int) int { return int(s.evOffset[ev]) }

// IRCount returns the total number of stored responses.
func (s *DataSet) IRCount() int { return len(s.delays) }

// Response returns the quantized impulse response at index idx.
// The returned slice aliases the data set and must not be modified.
func (s *DataSet) Response(idx int) []int16 {
	n := int(s.irSize)
	return s.coeffs[idx*n : idx*n+n : idx*n+n]
}

// Delay returns the propagation delay, in samples, of response idx.
func (s *DataSet) Delay(idx int) uint8 { return s.delays[idx] }

// SourceID identifies where the data set was loaded from.
func (s *DataSet) SourceID() string { return s.sourceID }

// table is the layout information shared by both versions once the
// version-specific header and ring table are read.
type table struct {
	sampleRate uint32
	irSize     int
	irCount    int
	azCount    []uint16
	evOffset   []uint32
}

func (t *table) build(sourceID string) *DataSet {
	return &DataSet{
		sampleRate: t.sampleRate,
		irSize:     uint16(t.irSize),
		evCount:    uint8(len(t.azCount)),
		azCount:    t.azCount,
		evOffset:   t.evOffset,
		sourceID:   sourceID,
	}
}

func checkIRSize(irSize int) error {
	if irSize < MinIRSize || irSize > MaxIRSize || irSize%ModIRSize != 0 {
		return &FormatError{
			Field: "irSize",
			Value: irSize,
			Want:  fmt.Sprintf("%d to %d by %d", MinIRSize, MaxIRSize, ModIRSize),
			Err:   ErrUnsupportedIRSize,
		}
	}
	return nil
}

func checkEvCount(evCount int) error {
	if evCount < MinEvCount || evCount > MaxEvCount {
		return &FormatError{
			Field: "evCount",
			Value: evCount,
			Want:  fmt.Sprintf("%d to %d", MinEvCount, MaxEvCount),
			Err:   ErrUnsupportedEvCount,
		}
	}
	return nil
}

func checkAzCount(ev, azCount int) error {
	if azCount < MinAzCount || azCount > MaxAzCount {
		return &FormatError{
			Field: fmt.Sprintf("azCount[%d]", ev),
			Value: azCount,
			Want:  fmt.Sprintf("%d to %d", MinAzCount, MaxAzCount),
			Err:   ErrUnsupportedAzCount,
		}
	}
	return nil
}

func checkDelays(delays []uint8) error {
	var errs []error
	for i, d := range delays {
		if d > MaxDelay {
			errs = append(errs, &FormatError{
				Field: fmt.Sprintf("delays[%d]", i),
				Value: int(d),
				Want:  fmt.Sprintf("<= %d", MaxDelay),
				Err:   ErrInvalidDelay,
			})
		}
	}
	return errors.Join(errs...)
}
