package mhr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vazrupe/endibuf"
)

// Header sizes in bytes, excluding the magic marker.
const (
	HeaderSizeV0 = 9 // Rate(4) + IRCount(2) + IRSize(2) + EvCount(1)
	HeaderSizeV1 = 6 // Rate(4) + IRSize(1) + EvCount(1)
)

type headerV0 struct {
	Rate    uint32
	IRCount uint16
	IRSize  uint16
	EvCount uint8
}

type headerV1 struct {
	Rate    uint32
	IRSize  uint8
	EvCount uint8
}

// Decode detects the layout from the magic marker at the start of data and
// decodes the data set that follows it.
func Decode(data []byte, sourceID string) (*DataSet, error) {
	v, err := DetectVersion(data)
	if err != nil {
		return nil, err
	}

	return DecodeVersion(data[MagicSize:], v, sourceID)
}

// DetectVersion returns the layout announced by the magic marker.
func DetectVersion(data []byte) (Version, error) {
	if len(data) < MagicSize {
		return 0, fmt.Errorf("%w: data is too short (%d bytes)", ErrInvalidMagic, len(data))
	}

	switch string(data[:MagicSize]) {
	case MagicV1:
		return Version1, nil
	case MagicV0:
		return Version0, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidMagic, data[:MagicSize])
}

// DecodeVersion decodes a payload (the bytes following the magic marker)
// using the given layout. Either a complete data set or an error is returned.
func DecodeVersion(payload []byte, v Version, sourceID string) (*DataSet, error) {
	d := newDecoder(payload)

	var (
		t   *table
		err error
	)

	switch v {
	case Version0:
		t, err = d.readTableV0()
	case Version1:
		t, err = d.readTableV1()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	if err != nil {
		return nil, err
	}

	return d.readResponses(t, sourceID)
}

// decoder tracks how much of the payload is left so every section can be
// checked for truncation before it is read.
type decoder struct {
	r         *endibuf.Reader
	remaining int
}

func newDecoder(payload []byte) *decoder {
	r := endibuf.NewReader(bytes.NewReader(payload))
	r.Endian = binary.LittleEndian

	return &decoder{r: r, remaining: len(payload)}
}

func (d *decoder) read(section string, v any) error {
	if err := d.r.ReadData(v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTruncated, section, err)
	}

	d.remaining -= binary.Size(v)

	return nil
}

func (d *decoder) need(section string, size int) error {
	if d.remaining < size {
		return truncated(section, d.remaining, size)
	}
	return nil
}

func (d *decoder) readTableV0() (*table, error) {
	if err := d.need("header", HeaderSizeV0); err != nil {
		return nil, err
	}

	var hdr headerV0
	if err := d.read("header", &hdr); err != nil {
		return nil, err
	}

	err := errors.Join(checkIRSize(int(hdr.IRSize)), checkEvCount(int(hdr.EvCount)))
	if err != nil {
		return nil, err
	}

	evCount := int(hdr.EvCount)
	if err := d.need("evOffset", evCount*2); err != nil {
		return nil, err
	}

	offsets := make([]uint16, evCount)
	if err := d.read("evOffset", offsets); err != nil {
		return nil, err
	}

	t := &table{
		sampleRate: hdr.Rate,
		irSize:     int(hdr.IRSize),
		irCount:    int(hdr.IRCount),
		azCount:    make([]uint16, evCount),
		evOffset:   make([]uint32, evCount),
	}

	var errs []error
	if offsets[0] != 0 {
		errs = append(errs, &FormatError{Field: "evOffset[0]", Value: int(offsets[0]), Want: "0", Err: ErrInvalidOffset})
	}

	for i := 1; i < evCount; i++ {
		if offsets[i] <= offsets[i-1] {
			errs = append(errs, &FormatError{
				Field: fmt.Sprintf("evOffset[%d]", i),
				Value: int(offsets[i]),
				Want:  fmt.Sprintf("> %d", offsets[i-1]),
				Err:   ErrInvalidOffset,
			})
			continue
		}

		azCount := int(offsets[i] - offsets[i-1])
		errs = append(errs, checkAzCount(i-1, azCount))
		t.azCount[i-1] = uint16(azCount)
	}

	last := evCount - 1
	if t.irCount <= int(offsets[last]) {
		errs = append(errs, &FormatError{
			Field: fmt.Sprintf("evOffset[%d]", last),
			Value: int(offsets[last]),
			Want:  fmt.Sprintf("< irCount (%d)", t.irCount),
			Err:   ErrInvalidOffset,
		})
	} else {
		azCount := t.irCount - int(offsets[last])
		errs = append(errs, checkAzCount(last, azCount))
		t.azCount[last] = uint16(azCount)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	for i, off := range offsets {
		t.evOffset[i] = uint32(off)
	}

	return t, nil
}

func (d *decoder) readTableV1() (*table, error) {
	if err := d.need("header", HeaderSizeV1); err != nil {
		return nil, err
	}

	var hdr headerV1
	if err := d.read("header", &hdr); err != nil {
		return nil, err
	}

	err := errors.Join(checkIRSize(int(hdr.IRSize)), checkEvCount(int(hdr.EvCount)))
	if err != nil {
		return nil, err
	}

	evCount := int(hdr.EvCount)
	if err := d.need("azCount", evCount); err != nil {
		return nil, err
	}

	counts := make([]uint8, evCount)
	if err := d.read("azCount", counts); err != nil {
		return nil, err
	}

	var errs []error
	for i, n := range counts {
		errs = append(errs, checkAzCount(i, int(n)))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	t := &table{
		sampleRate: hdr.Rate,
		irSize:     int(hdr.IRSize),
		azCount:    make([]uint16, evCount),
		evOffset:   make([]uint32, evCount),
	}
	for i, n := range counts {
		t.azCount[i] = uint16(n)
		t.evOffset[i] = uint32(t.irCount)
		t.irCount += int(n)
	}

	return t, nil
}

// readResponses reads the coefficient and delay blocks, which share the same
// layout in every version.
func (d *decoder) readResponses(t *table, sourceID string) (*DataSet, error) {
	reqSize := 2*t.irSize*t.irCount + t.irCount
	if err := d.need("responses", reqSize); err != nil {
		return nil, err
	}

	coeffs := make([]int16, t.irSize*t.irCount)
	if err := d.read("coefficients", coeffs); err != nil {
		return nil, err
	}

	delays := make([]uint8, t.irCount)
	if err := d.read("delays", delays); err != nil {
		return nil, err
	}

	if err := checkDelays(delays); err != nil {
		return nil, err
	}

	set := t.build(sourceID)
	set.coeffs = coeffs
	set.delays = delays

	return set, nil
}
