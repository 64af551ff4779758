package mhr

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encode writes set to w in the given layout, magic marker included.
func Encode(w io.Writer, set *DataSet, v Version) error {
	var (
		magic  string
		header any
		table  any
	)

	switch v {
	case Version0:
		if set.IRCount() > math.MaxUint16 {
			return &FormatError{
				Field: "irCount",
				Value: set.IRCount(),
				Want:  fmt.Sprintf("<= %d for version 0", math.MaxUint16),
				Err:   ErrUnsupportedVersion,
			}
		}

		magic = MagicV0
		header = headerV0{
			Rate:    set.sampleRate,
			IRCount: uint16(set.IRCount()),
			IRSize:  set.irSize,
			EvCount: set.evCount,
		}

		offsets := make([]uint16, len(set.evOffset))
		for i, off := range set.evOffset {
			offsets[i] = uint16(off)
		}
		table = offsets

	case Version1:
		magic = MagicV1
		header = headerV1{
			Rate:    set.sampleRate,
			IRSize:  uint8(set.irSize),
			EvCount: set.evCount,
		}

		counts := make([]uint8, len(set.azCount))
		for i, n := range set.azCount {
			counts[i] = uint8(n)
		}
		table = counts

	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	// Write magic number
	if _, err := io.WriteString(w, magic); err != nil {
		return fmt.Errorf("failed to write magic number: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, table); err != nil {
		return fmt.Errorf("failed to write elevation table: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, set.coeffs); err != nil {
		return fmt.Errorf("failed to write coefficients: %w", err)
	}

	if _, err := w.Write(set.delays); err != nil {
		return fmt.Errorf("failed to write delays: %w", err)
	}

	return nil
}
