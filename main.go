// Command hrtfkit is an interactive HRTF preview. It discovers the available
// HRTF data sets the same way an OpenAL device does, then plays a test signal
// through the selected set while the source is steered from the terminal or
// a browser.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ebitengine/oto/v3"

	"hrtfkit/dsp"
	"hrtfkit/internal/config"
	"hrtfkit/internal/preview"
	"hrtfkit/internal/resource"
	"hrtfkit/internal/wavio"
	"hrtfkit/pkg/registry"
	"hrtfkit/web"
)

var errNoHRTF = errors.New("no HRTF data sets found")

// options are the command-line settings.
type options struct {
	configFile string
	device     string
	hrtf       string
	list       bool
	input      string
	rate       int
	blockSize  int
	azimuth    float64
	elevation  float64
	port       int
	noWeb      bool
	noBrowser  bool
	noTUI      bool
	logFile    string
	debug      bool
}

func parseFlags() options {
	var o options

	flag.StringVar(&o.configFile, "config", "", "Additional alsoft-style config file, read last")
	flag.StringVar(&o.device, "device", "", "Device name used for per-device config sections")
	flag.StringVar(&o.hrtf, "hrtf", "", "HRTF entry to start with, by name or index (default: first)")
	flag.BoolVar(&o.list, "list", false, "List the discovered HRTF entries and exit")
	flag.StringVar(&o.input, "input", "", "WAV file to loop (default: noise bursts)")
	flag.IntVar(&o.rate, "rate", 0, "Output sample rate (default: rate of the selected data set)")
	flag.IntVar(&o.blockSize, "block", 512, "Processing block size in samples")
	flag.Float64Var(&o.azimuth, "az", 0, "Initial azimuth in degrees")
	flag.Float64Var(&o.elevation, "el", 0, "Initial elevation in degrees")
	flag.IntVar(&o.port, "port", 8080, "Web server port")
	flag.BoolVar(&o.noWeb, "no-web", false, "Disable web server")
	flag.BoolVar(&o.noBrowser, "no-browser", false, "Don't auto-open browser")
	flag.BoolVar(&o.noTUI, "no-tui", false, "Disable interactive TUI")
	flag.StringVar(&o.logFile, "log", "hrtfkit.log", "Log file path")
	flag.BoolVar(&o.debug, "debug", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Interactive HRTF preview.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -list\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -hrtf \"Built-In 48000hz\" -input voice.wav\n", os.Args[0])
	}
	flag.Parse()

	return o
}

func main() {
	opts := parseFlags()

	file, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	slog.Info("Starting hrtfkit", "args", os.Args)

	if err := run(opts, logger, os.Stdout); err != nil {
		slog.Error("Fatal error", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}

func run(opts options, logger *slog.Logger, stdout io.Writer) error {
	conf, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}

	reg := registry.New(resource.NewFileSearch(logger), builtinSource(), registry.WithLogger(logger))
	defer reg.Teardown()

	entries := reg.Discover(conf, opts.device)

	if opts.list {
		listEntries(stdout, entries)
		return nil
	}

	if len(entries) == 0 {
		return errNoHRTF
	}

	index, err := selectEntry(entries, opts.hrtf)
	if err != nil {
		return err
	}

	set := entries[index].Set

	sig, err := newSignal(opts.input, int(set.SampleRate()))
	if err != nil {
		return err
	}

	deviceRate := opts.rate
	if deviceRate <= 0 {
		deviceRate = int(set.SampleRate())
	}

	player, err := preview.NewPlayer(entries, index, deviceRate, opts.blockSize, sig, preview.WithLogger(logger))
	if err != nil {
		return err
	}

	player.SetSource(dsp.Source{
		Elevation: float32(opts.elevation * deg),
		Azimuth:   float32(opts.azimuth * deg),
		Gain:      1,
	})

	out, err := startOutput(player, deviceRate)
	if err != nil {
		return err
	}
	defer out.Close()

	var webServer *web.Server
	if !opts.noWeb {
		webServer = startWeb(player, opts, logger, stdout)
	}

	if opts.noTUI {
		fmt.Fprintln(stdout, "Playing through", entries[index].Name)
		fmt.Fprintln(stdout, "TUI disabled. Running in headless mode.")
		fmt.Fprintln(stdout, "Log file:", opts.logFile)
		fmt.Fprintln(stdout, "Press Ctrl+C to exit.")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		<-ctx.Done()
		stop()
	} else if err := runTUI(player); err != nil {
		return err
	}

	if webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := webServer.Shutdown(ctx); err != nil {
			slog.Error("Web server shutdown error", "error", err)
		}
	}

	return nil
}

const deg = math.Pi / 180

// loadConfig reads the standard configuration locations followed by extra.
func loadConfig(extra string) (*config.File, error) {
	paths := config.DefaultPaths()
	if extra != "" {
		if _, err := os.Stat(extra); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		paths = append(paths, extra)
	}

	conf, err := config.Load(paths...)
	if err != nil {
		return nil, err
	}

	slog.Info("Configuration loaded", "files", conf.Paths())

	return conf, nil
}

// selectEntry resolves the -hrtf flag: an exact entry name or an index.
func selectEntry(entries []registry.Entry, want string) (int, error) {
	if want == "" {
		return 0, nil
	}

	for i, e := range entries {
		if e.Name == want {
			return i, nil
		}
	}

	if i, err := strconv.Atoi(want); err == nil && i >= 0 && i < len(entries) {
		return i, nil
	}

	return 0, fmt.Errorf("%w: %q", preview.ErrInvalidEntry, want)
}

// newSignal loads the looped input, or noise bursts at rate when path is
// empty.
func newSignal(path string, rate int) (preview.Signal, error) {
	if path == "" {
		return preview.NewNoiseBursts(rate, 0.25, 0.25, 0.5), nil
	}

	samples, inputRate, err := wavio.ReadMono(path)
	if err != nil {
		return nil, err
	}

	slog.Info("Input loaded", "file", path, "rate", inputRate, "samples", len(samples))

	return preview.NewLoop(samples, inputRate), nil
}

func listEntries(w io.Writer, entries []registry.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No HRTF data sets found.")
		return
	}

	fmt.Fprintf(w, "Available HRTFs:\n\n")
	for i, e := range entries {
		fmt.Fprintf(w, "  %3d: %-30s (%d Hz, %d taps, %d responses, %s)\n",
			i, e.Name, e.Set.SampleRate(), e.Set.IRSize(), e.Set.IRCount(), e.Set.SourceID())
	}
}

// output is a running audio device stream.
type output struct {
	player *oto.Player
}

func (o *output) Close() error {
	return o.player.Close()
}

// startOutput opens the audio device and starts pulling from src.
func startOutput(src io.Reader, rate int) (*output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   50 * time.Millisecond,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	p := ctx.NewPlayer(src)
	p.Play()

	slog.Info("Audio output started", "rate", rate)

	return &output{player: p}, nil
}

func startWeb(player *preview.Player, opts options, logger *slog.Logger, stdout io.Writer) *web.Server {
	srv := web.NewServer(player, fmt.Sprintf(":%d", opts.port), logger)
	player.AddStateListener(srv)

	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("Web server error", "error", err)
		}
	}()

	url := fmt.Sprintf("http://localhost:%d", opts.port)

	if !opts.noBrowser {
		go func() {
			// Give the server time to start
			time.Sleep(200 * time.Millisecond)
			if err := web.OpenBrowser(url); err != nil {
				slog.Error("Failed to open browser", "error", err)
			}
		}()
	}

	fmt.Fprintf(stdout, "Web UI available at %s\n", url)

	return srv
}
