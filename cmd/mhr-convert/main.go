// Command mhr-convert inspects .mhr HRIR data sets and converts them between
// layout versions.
//
// Usage:
//
//	mhr-convert [options] <input.mhr>
//
// Options:
//
//	-o         Output file (required unless -info is given)
//	-version   Output layout version, 0 or 1 (default: 1)
//	-info      Print a summary of the data set
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"hrtfkit/dsp"
	"hrtfkit/pkg/mhr"
)

var (
	output  = flag.String("o", "", "Output file (required unless -info is given)")
	version = flag.Int("version", 1, "Output layout version, 0 or 1")
	info    = flag.Bool("info", false, "Print a summary of the data set")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <input.mhr>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Inspects and converts minimum-phase HRIR data sets (.mhr).\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -info default-44100.mhr\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -version 0 -o legacy.mhr default-44100.mhr\n", os.Args[0])
	}
	flag.Parse()

	if flag.NArg() != 1 || (*output == "" && !*info) {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0), *output, mhr.Version(*version), *info, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(inputFile, outputFile string, v mhr.Version, showInfo bool, stdout io.Writer) error {
	if v != mhr.Version0 && v != mhr.Version1 {
		return fmt.Errorf("%w: %d", mhr.ErrUnsupportedVersion, v)
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	set, err := mhr.Decode(data, inputFile)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(inputFile), err)
	}

	if showInfo {
		inputVersion, _ := mhr.DetectVersion(data)
		if err := printInfo(stdout, set, inputVersion); err != nil {
			return err
		}
	}

	if outputFile == "" {
		return nil
	}

	return writeSet(outputFile, set, v)
}

func writeSet(path string, set *mhr.DataSet, v mhr.Version) (err error) {
	outFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := outFile.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := mhr.Encode(outFile, set, v); err != nil {
		// Leave no partial file behind.
		_ = os.Remove(path)
		return fmt.Errorf("failed to write data set: %w", err)
	}

	return nil
}

func printInfo(w io.Writer, set *mhr.DataSet, v mhr.Version) error {
	minDelay, maxDelay := delayRange(set)

	var coeffs dsp.BFormatCoeffs
	bformatLen := dsp.BuildBFormat(set, &coeffs)

	bandsLen, err := dsp.BuildBFormatBands(set, &coeffs, dsp.DefaultCrossoverHz)
	if err != nil && !errors.Is(err, dsp.ErrInvalidCrossover) {
		return err
	}

	fmt.Fprintf(w, "Source:       %s\n", set.SourceID())
	fmt.Fprintf(w, "Layout:       v%d\n", v)
	fmt.Fprintf(w, "Sample rate:  %d Hz\n", set.SampleRate())
	fmt.Fprintf(w, "IR size:      %d\n", set.IRSize())
	fmt.Fprintf(w, "Responses:    %d\n", set.IRCount())
	fmt.Fprintf(w, "Elevations:   %d\n", set.EvCount())

	for ev := range set.EvCount() {
		elevation := -90 + 180*float64(ev)/float64(set.EvCount()-1)
		fmt.Fprintf(w, "  %+7.2f deg: %3d azimuths (offset %d)\n", elevation, set.AzCount(ev), set.EvOffset(ev))
	}

	fmt.Fprintf(w, "Delays:       %d..%d samples\n", minDelay, maxDelay)
	fmt.Fprintf(w, "B-Format:     %d samples\n", bformatLen)
	if err == nil {
		fmt.Fprintf(w, "B-Format 2b:  %d samples (%.0f Hz split)\n", bandsLen, dsp.DefaultCrossoverHz)
	}

	return nil
}

func delayRange(set *mhr.DataSet) (lo, hi uint8) {
	lo = mhr.MaxDelay
	for i := range set.IRCount() {
		d := set.Delay(i)
		lo = min(lo, d)
		hi = max(hi, d)
	}
	return lo, hi
}
