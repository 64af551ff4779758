package resampler

import (
	"errors"
	"math"
	"testing"
)

func sine(n int, freq, rate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
	}
	return out
}

func TestResample_EmptyInput(t *testing.T) {
	t.Parallel()

	result, err := New().Resample([]float32{}, 48000, 44100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result) != 0 {
		t.Errorf("expected empty result, got %d samples", len(result))
	}
}

func TestResample_IdentityRatio(t *testing.T) {
	t.Parallel()

	input := []float32{1, 2, 3, 4, 5, 6, 7, 8}

	result, err := New().Resample(input, 48000, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result) != len(input) {
		t.Fatalf("expected length %d, got %d", len(input), len(result))
	}

	for i := range input {
		if result[i] != input[i] {
			t.Errorf("at index %d: expected %f, got %f", i, input[i], result[i])
		}
	}

	// The result must not alias the input.
	result[0] = 100
	if input[0] != 1 {
		t.Error("identity resample aliased its input")
	}
}

func TestResample_InvalidRate(t *testing.T) {
	t.Parallel()

	for _, rates := range [][2]int{{0, 44100}, {48000, 0}, {-1, 44100}} {
		_, err := New().Resample([]float32{1}, rates[0], rates[1])
		if !errors.Is(err, ErrInvalidRate) {
			t.Errorf("Resample(%d -> %d) error = %v, want ErrInvalidRate", rates[0], rates[1], err)
		}
	}
}

func TestResample_Lengths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src, dst int
		inputLen int
		want     int
	}{
		{"downsample 2x", 96000, 48000, 1024, 512},
		{"upsample 2x", 44100, 88200, 512, 1024},
		{"44.1k to 48k", 44100, 48000, 44100, 48000},
		{"48k to 44.1k", 48000, 44100, 4800, 4410},
	}

	for _, tableTest := range tests {
		t.Run(tableTest.name, func(t *testing.T) {
			t.Parallel()

			result, err := New().Resample(make([]float32, tableTest.inputLen), tableTest.src, tableTest.dst)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(result) != tableTest.want {
				t.Errorf("length = %d, want %d", len(result), tableTest.want)
			}
		})
	}
}

func TestResample_PreservesSine(t *testing.T) {
	t.Parallel()

	const (
		src  = 44100
		dst  = 48000
		freq = 1000.0
	)

	result, err := New().Resample(sine(4410, freq, src), src, dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Skip the edges where the filter runs off the input.
	mid := result[400 : len(result)-400]

	var sum float64
	crossings := 0
	for i, v := range mid {
		sum += float64(v) * float64(v)
		if i > 0 && (mid[i-1] < 0) != (v < 0) {
			crossings++
		}
	}

	if rms := math.Sqrt(sum / float64(len(mid))); math.Abs(rms-math.Sqrt2/2) > 0.02 {
		t.Errorf("rms = %f, want %f", rms, math.Sqrt2/2)
	}

	// Two crossings per period.
	want := 2 * freq * float64(len(mid)) / dst
	if math.Abs(float64(crossings)-want) > 2 {
		t.Errorf("zero crossings = %d, want about %.0f", crossings, want)
	}
}

func TestResample_AlignsImpulse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src, dst int
	}{
		{"up", 44100, 48000},
		{"down", 48000, 44100},
		{"double", 24000, 48000},
	}

	for _, tableTest := range tests {
		t.Run(tableTest.name, func(t *testing.T) {
			t.Parallel()

			input := make([]float32, 4000)
			input[1000] = 1

			result, err := New().Resample(input, tableTest.src, tableTest.dst)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			peak := 0
			for i := range result {
				if math.Abs(float64(result[i])) > math.Abs(float64(result[peak])) {
					peak = i
				}
			}

			want := 1000 * float64(tableTest.dst) / float64(tableTest.src)
			if math.Abs(float64(peak)-want) > 2 {
				t.Errorf("impulse at %d, want about %.1f", peak, want)
			}
		})
	}
}

func TestParseQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    Quality
		wantErr bool
	}{
		{"fast", QualityFast, false},
		{"Balanced", QualityBalanced, false},
		{"", QualityBalanced, false},
		{"best", QualityBest, false},
		{"ultra", QualityBalanced, true},
	}

	for _, tt := range tests {
		got, err := ParseQuality(tt.name)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidQuality) {
				t.Errorf("ParseQuality(%q) error = %v, want ErrInvalidQuality", tt.name, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseQuality(%q) = %v, %v; want %v", tt.name, got, err, tt.want)
		}
	}

	if got := NewWithQuality(QualityBest).Quality(); got != QualityBest {
		t.Errorf("Quality() = %v, want QualityBest", got)
	}
}

func TestOutputLength(t *testing.T) {
	t.Parallel()

	if got := OutputLength(0, 44100, 48000); got != 0 {
		t.Errorf("empty input length = %d", got)
	}
	if got := OutputLength(100, 0, 48000); got != 0 {
		t.Errorf("zero rate length = %d", got)
	}
	if got := OutputLength(441, 44100, 48000); got != 480 {
		t.Errorf("length = %d, want 480", got)
	}
}

func TestStream_InvalidRate(t *testing.T) {
	t.Parallel()

	if _, err := NewStream(0, 48000); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("error = %v, want ErrInvalidRate", err)
	}
}

func TestStream_BlockwiseMatchesLength(t *testing.T) {
	t.Parallel()

	s, err := NewStream(44100, 48000)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	up, down := s.Ratio()
	if up != 160 || down != 147 {
		t.Fatalf("ratio = %d/%d, want 160/147", up, down)
	}

	input := sine(44100, 440, 44100)

	total := 0
	for off := 0; off < len(input); off += 512 {
		end := min(off+512, len(input))
		total += len(s.Process(input[off:end]))
	}

	if math.Abs(float64(total-48000)) > 2 {
		t.Errorf("streamed %d samples, want about 48000", total)
	}
}

func TestStream_Reset(t *testing.T) {
	t.Parallel()

	s, err := NewStream(48000, 24000)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	input := sine(256, 440, 48000)

	first := append([]float32(nil), s.Process(input)...)
	s.Reset()
	second := s.Process(input)

	if len(first) != len(second) {
		t.Fatalf("length after reset = %d, want %d", len(second), len(first))
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample %d differs after reset: %f vs %f", i, first[i], second[i])
		}
	}
}

func BenchmarkResample(b *testing.B) {
	input := sine(44100, 440, 44100)
	r := New()

	for b.Loop() {
		_, _ = r.Resample(input, 44100, 48000)
	}
}

func BenchmarkStream(b *testing.B) {
	input := sine(512, 440, 44100)

	s, err := NewStream(44100, 48000)
	if err != nil {
		b.Fatal(err)
	}

	for b.Loop() {
		s.Process(input)
	}
}
