package mhr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// testSet builds a small five-ring set with distinguishable responses.
func testSet(t *testing.T, irSize int) *DataSet {
	t.Helper()

	azCounts := []uint16{1, 4, 8, 4, 1}
	irCount := 18

	coeffs := make([]int16, irCount*irSize)
	delays := make([]uint8, irCount)

	for i := range irCount {
		for j := range irSize {
			coeffs[i*irSize+j] = int16(i*100 + j)
		}
		delays[i] = uint8(i * 3)
	}

	set, err := New(44100, irSize, azCounts, coeffs, delays, "test.mhr")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return set
}

// buildV1 assembles a version 1 file by hand so invalid layouts can be produced.
func buildV1(rate uint32, irSize uint8, counts []uint8, delay uint8) []byte {
	var buf bytes.Buffer

	buf.WriteString(MagicV1)
	_ = binary.Write(&buf, binary.LittleEndian, headerV1{Rate: rate, IRSize: irSize, EvCount: uint8(len(counts))})
	buf.Write(counts)

	irCount := 0
	for _, n := range counts {
		irCount += int(n)
	}

	buf.Write(make([]byte, 2*int(irSize)*irCount))
	for range irCount {
		buf.WriteByte(delay)
	}

	return buf.Bytes()
}

// buildV0 assembles a version 0 file by hand.
func buildV0(rate uint32, irCount, irSize uint16, offsets []uint16) []byte {
	var buf bytes.Buffer

	buf.WriteString(MagicV0)
	_ = binary.Write(&buf, binary.LittleEndian, headerV0{
		Rate:    rate,
		IRCount: irCount,
		IRSize:  irSize,
		EvCount: uint8(len(offsets)),
	})
	_ = binary.Write(&buf, binary.LittleEndian, offsets)
	buf.Write(make([]byte, 2*int(irSize)*int(irCount)+int(irCount)))

	return buf.Bytes()
}

func equalSets(t *testing.T, got, want *DataSet) {
	t.Helper()

	if got.SampleRate() != want.SampleRate() {
		t.Errorf("SampleRate = %d, want %d", got.SampleRate(), want.SampleRate())
	}

	if got.IRSize() != want.IRSize() {
		t.Errorf("IRSize = %d, want %d", got.IRSize(), want.IRSize())
	}

	if got.EvCount() != want.EvCount() {
		t.Fatalf("EvCount = %d, want %d", got.EvCount(), want.EvCount())
	}

	if got.IRCount() != want.IRCount() {
		t.Fatalf("IRCount = %d, want %d", got.IRCount(), want.IRCount())
	}

	for ev := range want.EvCount() {
		if got.AzCount(ev) != want.AzCount(ev) || got.EvOffset(ev) != want.EvOffset(ev) {
			t.Errorf("ring %d: az=%d off=%d, want az=%d off=%d",
				ev, got.AzCount(ev), got.EvOffset(ev), want.AzCount(ev), want.EvOffset(ev))
		}
	}

	for i := range want.IRCount() {
		if got.Delay(i) != want.Delay(i) {
			t.Errorf("Delay(%d) = %d, want %d", i, got.Delay(i), want.Delay(i))
		}

		g, w := got.Response(i), want.Response(i)
		for j := range w {
			if g[j] != w[j] {
				t.Errorf("Response(%d)[%d] = %d, want %d", i, j, g[j], w[j])
				break
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, v := range []Version{Version0, Version1} {
		t.Run(map[Version]string{Version0: "v0", Version1: "v1"}[v], func(t *testing.T) {
			want := testSet(t, 16)

			var buf bytes.Buffer
			if err := Encode(&buf, want, v); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			got, err := Decode(buf.Bytes(), "copy.mhr")
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			equalSets(t, got, want)

			if got.SourceID() != "copy.mhr" {
				t.Errorf("SourceID = %q, want %q", got.SourceID(), "copy.mhr")
			}
		})
	}
}

func TestDetectVersion(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Version
		wantErr bool
	}{
		{"v0", []byte("MinPHR00rest"), Version0, false},
		{"v1", []byte("MinPHR01"), Version1, false},
		{"unknown", []byte("MinPHR02"), 0, true},
		{"short", []byte("MinPHR0"), 0, true},
		{"empty", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectVersion(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMagic) {
					t.Errorf("expected ErrInvalidMagic, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.want {
				t.Errorf("version = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	for _, v := range []Version{Version0, Version1} {
		var buf bytes.Buffer
		if err := Encode(&buf, testSet(t, 8), v); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}

		data := buf.Bytes()

		// Every strict prefix must fail, and none may panic.
		for n := range len(data) {
			_, err := Decode(data[:n], "cut")
			if err == nil {
				t.Fatalf("version %d: prefix of %d/%d bytes decoded", v, n, len(data))
			}

			want := ErrTruncated
			if n < MagicSize {
				want = ErrInvalidMagic
			}

			if !errors.Is(err, want) {
				t.Fatalf("version %d: prefix %d: expected %v, got %v", v, n, want, err)
			}
		}

		// Trailing bytes are ignored.
		if _, err := Decode(append(data, 0, 0, 0), "long"); err != nil {
			t.Errorf("version %d: trailing bytes rejected: %v", v, err)
		}
	}
}

func TestIRSizeBounds(t *testing.T) {
	counts := []uint8{1, 2, 2, 2, 1}

	tests := []struct {
		irSize uint8
		ok     bool
	}{
		{7, false},
		{8, true},
		{9, false},
		{64, true},
		{120, true},
		{128, true},
		{129, false},
		{136, false},
	}

	for _, tt := range tests {
		_, err := Decode(buildV1(44100, tt.irSize, counts, 0), "size")
		if tt.ok && err != nil {
			t.Errorf("irSize %d: unexpected error: %v", tt.irSize, err)
		}

		if !tt.ok && !errors.Is(err, ErrUnsupportedIRSize) {
			t.Errorf("irSize %d: expected ErrUnsupportedIRSize, got %v", tt.irSize, err)
		}
	}
}

func TestEvCountBounds(t *testing.T) {
	ones := func(n int) []uint8 {
		c := make([]uint8, n)
		for i := range c {
			c[i] = 1
		}
		return c
	}

	tests := []struct {
		evCount int
		ok      bool
	}{
		{4, false},
		{5, true},
		{128, true},
		{129, false},
	}

	for _, tt := range tests {
		set, err := Decode(buildV1(48000, 8, ones(tt.evCount), 0), "ev")
		if tt.ok {
			if err != nil {
				t.Errorf("evCount %d: unexpected error: %v", tt.evCount, err)
				continue
			}

			if set.EvCount() != tt.evCount || set.IRCount() != tt.evCount {
				t.Errorf("evCount %d: got EvCount=%d IRCount=%d", tt.evCount, set.EvCount(), set.IRCount())
			}

			continue
		}

		if !errors.Is(err, ErrUnsupportedEvCount) {
			t.Errorf("evCount %d: expected ErrUnsupportedEvCount, got %v", tt.evCount, err)
		}
	}
}

func TestAzCountBounds(t *testing.T) {
	if _, err := Decode(buildV1(44100, 8, []uint8{1, 4, 0, 4, 1}, 0), "zero"); !errors.Is(err, ErrUnsupportedAzCount) {
		t.Errorf("zero azimuth count: expected ErrUnsupportedAzCount, got %v", err)
	}

	if _, err := Decode(buildV1(44100, 8, []uint8{1, 4, 129, 4, 1}, 0), "big"); !errors.Is(err, ErrUnsupportedAzCount) {
		t.Errorf("azimuth count 129: expected ErrUnsupportedAzCount, got %v", err)
	}

	if _, err := Decode(buildV1(44100, 8, []uint8{1, 4, 128, 4, 1}, 0), "max"); err != nil {
		t.Errorf("azimuth count 128: unexpected error: %v", err)
	}
}

func TestDelayBounds(t *testing.T) {
	counts := []uint8{1, 2, 2, 2, 1}

	if _, err := Decode(buildV1(44100, 8, counts, MaxDelay), "max"); err != nil {
		t.Errorf("delay %d: unexpected error: %v", MaxDelay, err)
	}

	_, err := Decode(buildV1(44100, 8, counts, MaxDelay+1), "over")
	if !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("delay %d: expected ErrInvalidDelay, got %v", MaxDelay+1, err)
	}

	var fe *FormatError
	if !errors.As(err, &fe) || fe.Field != "delays[0]" {
		t.Errorf("expected FormatError for delays[0], got %v", err)
	}
}

func TestV0Offsets(t *testing.T) {
	tests := []struct {
		name    string
		irCount uint16
		offsets []uint16
		wantErr error
	}{
		{"valid", 9, []uint16{0, 1, 3, 6, 8}, nil},
		{"first not zero", 9, []uint16{1, 2, 3, 6, 8}, ErrInvalidOffset},
		{"not increasing", 9, []uint16{0, 3, 3, 6, 8}, ErrInvalidOffset},
		{"decreasing", 9, []uint16{0, 4, 3, 6, 8}, ErrInvalidOffset},
		{"last past count", 8, []uint16{0, 1, 3, 6, 8}, ErrInvalidOffset},
		{"ring too wide", 200, []uint16{0, 1, 130, 131, 132}, ErrUnsupportedAzCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Decode(buildV0(44100, tt.irCount, 8, tt.offsets), tt.name)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				wantAz := []int{1, 2, 3, 2, 1}
				for ev, az := range wantAz {
					if set.AzCount(ev) != az {
						t.Errorf("AzCount(%d) = %d, want %d", ev, set.AzCount(ev), az)
					}
				}

				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestJoinedErrors(t *testing.T) {
	// Both header fields are invalid; both must be reported.
	_, err := Decode(buildV1(44100, 7, []uint8{1, 1, 1}, 0), "bad")

	if !errors.Is(err, ErrUnsupportedIRSize) {
		t.Errorf("expected ErrUnsupportedIRSize in %v", err)
	}

	if !errors.Is(err, ErrUnsupportedEvCount) {
		t.Errorf("expected ErrUnsupportedEvCount in %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	azCounts := []uint16{1, 2, 2, 2, 1}

	if _, err := New(44100, 8, azCounts, make([]int16, 7*8), make([]uint8, 8), "x"); !errors.Is(err, ErrInvalidCoefficients) {
		t.Errorf("short coefficients: expected ErrInvalidCoefficients, got %v", err)
	}

	if _, err := New(44100, 8, azCounts, make([]int16, 8*8), make([]uint8, 7), "x"); !errors.Is(err, ErrInvalidCoefficients) {
		t.Errorf("short delays: expected ErrInvalidCoefficients, got %v", err)
	}

	coeffs := make([]int16, 8*8)
	set, err := New(44100, 8, azCounts, coeffs, make([]uint8, 8), "x")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// The set owns its data.
	coeffs[0] = 1234
	if set.Response(0)[0] != 0 {
		t.Error("data set aliases caller's coefficient slice")
	}
}

func TestResponseCapacity(t *testing.T) {
	set := testSet(t, 8)

	r := set.Response(0)
	if cap(r) != 8 {
		t.Fatalf("cap(Response(0)) = %d, want 8", cap(r))
	}

	next := set.Response(1)[0]
	_ = append(r, 1)

	if set.Response(1)[0] != next {
		t.Error("appending to a response modified its neighbour")
	}
}

func TestEncodeUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, testSet(t, 8), Version(7)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func BenchmarkDecode(b *testing.B) {
	azCounts := make([]uint16, 25)
	irCount := 0
	for i := range azCounts {
		azCounts[i] = 64
		irCount += 64
	}

	set, err := New(48000, 32, azCounts, make([]int16, irCount*32), make([]uint8, irCount), "bench")
	if err != nil {
		b.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, set, Version1); err != nil {
		b.Fatal(err)
	}

	data := buf.Bytes()

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		if _, err := Decode(data, "bench"); err != nil {
			b.Fatal(err)
		}
	}
}
