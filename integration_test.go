package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hrtfkit/dsp"
	"hrtfkit/internal/config"
	"hrtfkit/internal/preview"
	"hrtfkit/internal/resource"
	"hrtfkit/internal/wavio"
	"hrtfkit/pkg/mhr"
	"hrtfkit/pkg/registry"
)

// writeSet stores a small data set at rate under dir/name.
func writeSet(t *testing.T, dir, name string, rate uint32, v mhr.Version) {
	t.Helper()

	azCounts := []uint16{1, 4, 8, 4, 1}
	irSize := 16
	irCount := 18

	coeffs := make([]int16, irCount*irSize)
	delays := make([]uint8, irCount)
	for i := range irCount {
		coeffs[i*irSize] = int16(6000 + 200*i)
		coeffs[i*irSize+3] = int16(-1500)
		delays[i] = uint8(i % 6)
	}

	set, err := mhr.New(rate, irSize, azCounts, coeffs, delays, name)
	if err != nil {
		t.Fatalf("mhr.New: %v", err)
	}

	var buf bytes.Buffer
	if err := mhr.Encode(&buf, set, v); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// discoverFixture builds a config pointing at a temp directory holding two
// data sets, and discovers them.
func discoverFixture(t *testing.T) []registry.Entry {
	t.Helper()

	dir := t.TempDir()
	writeSet(t, dir, "kemar.mhr", 44100, mhr.Version1)
	writeSet(t, dir, "cipic.mhr", 48000, mhr.Version0)

	conf, err := config.Parse([]byte("[general]\nhrtf-paths = " + dir + "\ndefault-hrtf = kemar\n"))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}

	files := &resource.FileSearch{Roots: []string{t.TempDir()}, Logger: quietLogger()}
	reg := registry.New(files, builtinSource(), registry.WithLogger(quietLogger()))
	t.Cleanup(reg.Teardown)

	return reg.Discover(conf, "")
}

func TestIntegrationDiscovery(t *testing.T) {
	entries := discoverFixture(t)

	if len(entries) != 2 {
		t.Fatalf("discovered %d entries, want 2", len(entries))
	}

	// Sorted search gives cipic first; default-hrtf moves kemar to the front.
	if entries[0].Name != "kemar" || entries[1].Name != "cipic" {
		t.Errorf("order = %q, %q; want kemar, cipic", entries[0].Name, entries[1].Name)
	}

	var out bytes.Buffer
	listEntries(&out, entries)

	text := out.String()
	if !strings.Contains(text, "0: kemar") || !strings.Contains(text, "(48000 Hz, 16 taps, 18 responses") {
		t.Errorf("listing:\n%s", text)
	}
}

func TestIntegrationSelectEntry(t *testing.T) {
	entries := discoverFixture(t)

	tests := []struct {
		want    string
		index   int
		wantErr bool
	}{
		{"", 0, false},
		{"cipic", 1, false},
		{"1", 1, false},
		{"7", 0, true},
		{"nope", 0, true},
	}

	for _, tt := range tests {
		idx, err := selectEntry(entries, tt.want)
		if tt.wantErr {
			if !errors.Is(err, preview.ErrInvalidEntry) {
				t.Errorf("selectEntry(%q) error = %v, want ErrInvalidEntry", tt.want, err)
			}
			continue
		}
		if err != nil || idx != tt.index {
			t.Errorf("selectEntry(%q) = %d, %v; want %d", tt.want, idx, err, tt.index)
		}
	}
}

func TestIntegrationPlayback(t *testing.T) {
	entries := discoverFixture(t)

	dir := t.TempDir()
	input := make([]float32, 4410)
	for i := range input {
		input[i] = float32(i%100) / 100
	}

	wavPath := filepath.Join(dir, "loop.wav")
	if err := wavio.WriteStereo(wavPath, input, input, 22050); err != nil {
		t.Fatal(err)
	}

	sig, err := newSignal(wavPath, 0)
	if err != nil {
		t.Fatalf("newSignal: %v", err)
	}
	if sig.Rate() != 22050 {
		t.Errorf("signal rate = %d, want 22050", sig.Rate())
	}

	player, err := preview.NewPlayer(entries, 0, 48000, 256, sig, preview.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	player.SetSource(dsp.Source{Azimuth: float32(90 * deg), Gain: 1})

	buf := make([]byte, 4096*8)
	for range 3 {
		if n, err := player.Read(buf); err != nil || n != len(buf) {
			t.Fatalf("Read = %d, %v", n, err)
		}
	}

	if err := player.SelectHRTF(1); err != nil {
		t.Fatalf("SelectHRTF: %v", err)
	}
	if n, err := player.Read(buf); err != nil || n != len(buf) {
		t.Fatalf("Read after switch = %d, %v", n, err)
	}

	if lv := player.Levels(); lv.OutL <= dsp.MinLevelDB && lv.OutR <= dsp.MinLevelDB {
		t.Errorf("output silent after switch: %+v", lv)
	}
}

func TestIntegrationNoiseSignal(t *testing.T) {
	sig, err := newSignal("", 44100)
	if err != nil {
		t.Fatal(err)
	}
	if sig.Rate() != 44100 {
		t.Errorf("rate = %d", sig.Rate())
	}

	if _, err := newSignal(filepath.Join(t.TempDir(), "missing.wav"), 44100); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestAdjustSource(t *testing.T) {
	src := dsp.Source{Elevation: 1.5, Azimuth: 3.1, Spread: 0, Gain: 1}

	got := adjustSource(src, paramAzimuth, 1)
	if got.Azimuth > 0 {
		t.Errorf("azimuth did not wrap: %f", got.Azimuth)
	}

	if got := adjustSource(src, paramElevation, 1); got.Elevation > 1.5708 {
		t.Errorf("elevation not clamped: %f", got.Elevation)
	}

	if got := adjustSource(src, paramGain, 1); got.Gain != 1 {
		t.Errorf("gain not clamped: %f", got.Gain)
	}

	if got := adjustSource(src, paramSpread, -1); got.Spread != 0 {
		t.Errorf("spread not clamped: %f", got.Spread)
	}
}
