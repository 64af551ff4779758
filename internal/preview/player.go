// Package preview drives live binaural playback of a test signal through the
// HRTF entries found by discovery.
package preview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"hrtfkit/dsp"
	"hrtfkit/pkg/registry"
	"hrtfkit/pkg/resampler"
)

// Errors.
var (
	ErrNoEntries    = errors.New("preview: no HRTF entries")
	ErrInvalidEntry = errors.New("preview: entry index out of range")
)

// bytesPerFrame is one stereo float32 frame.
const bytesPerFrame = 2 * 4

// EntryInfo describes one selectable HRTF entry.
type EntryInfo struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Source     string `json:"source"`
	SampleRate uint32 `json:"sampleRate"`
	IRSize     int    `json:"irSize"`
	EvCount    int    `json:"evCount"`
	IRCount    int    `json:"irCount"`
}

// Coefficients is a snapshot of the current interpolated HRIR pair.
type Coefficients struct {
	Left   []float32 `json:"left"`
	Right  []float32 `json:"right"`
	Delays [2]int    `json:"delays"`
}

// Levels holds peak meter readings in dB.
type Levels struct {
	In   float32 `json:"in"`
	OutL float32 `json:"outL"`
	OutR float32 `json:"outR"`
}

// StateListener is notified about source and entry changes.
type StateListener interface {
	OnSourceChange(src dsp.Source)
	OnHRTFChange(index int, name string)
}

// Player renders a Signal through the selected HRTF entry and serves the
// result as interleaved float32 little-endian stereo at the device rate.
type Player struct {
	mu sync.Mutex

	entries    []registry.Entry
	current    int
	renderer   *dsp.BinauralRenderer
	deviceRate int
	blockSize  int

	signal     Signal
	inStream   *resampler.Stream    // signal rate to set rate, nil when equal
	outStreams [2]*resampler.Stream // set rate to device rate, nil when equal

	inBuf       []float32
	left, right []float32
	pending     []float32 // interleaved frames not yet read

	levels Levels

	listenersMu sync.RWMutex
	listeners   []StateListener

	logger *slog.Logger
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the player's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		p.logger = logger
	}
}

// NewPlayer creates a player for entries, starting with entries[index].
// deviceRate is the output rate; blockSize is the number of signal samples
// rendered at a time.
func NewPlayer(entries []registry.Entry, index, deviceRate, blockSize int, signal Signal, opts ...Option) (*Player, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	if index < 0 || index >= len(entries) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEntry, index)
	}
	if deviceRate <= 0 {
		return nil, fmt.Errorf("%w: %d", resampler.ErrInvalidRate, deviceRate)
	}

	renderer, err := dsp.NewBinauralRenderer(entries[index].Set, blockSize)
	if err != nil {
		return nil, err
	}

	p := &Player{
		entries:    entries,
		current:    index,
		renderer:   renderer,
		deviceRate: deviceRate,
		blockSize:  blockSize,
		signal:     signal,
		inBuf:      make([]float32, blockSize),
		levels:     Levels{In: dsp.MinLevelDB, OutL: dsp.MinLevelDB, OutR: dsp.MinLevelDB},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := p.configureStreams(); err != nil {
		return nil, err
	}

	p.logger.Info("Preview player ready",
		"entry", entries[index].Name, "setRate", entries[index].Set.SampleRate(),
		"signalRate", signal.Rate(), "deviceRate", deviceRate, "blockSize", blockSize)

	return p, nil
}

// configureStreams must be called with mu held.
func (p *Player) configureStreams() error {
	setRate := int(p.entries[p.current].Set.SampleRate())

	p.inStream = nil
	if rate := p.signal.Rate(); rate != setRate {
		s, err := resampler.NewStream(rate, setRate)
		if err != nil {
			return err
		}
		p.inStream = s
	}

	p.outStreams = [2]*resampler.Stream{}
	if setRate != p.deviceRate {
		for ear := range p.outStreams {
			s, err := resampler.NewStream(setRate, p.deviceRate)
			if err != nil {
				return err
			}
			p.outStreams[ear] = s
		}
	}

	return nil
}

// AddStateListener registers l for change notifications.
func (p *Player) AddStateListener(l StateListener) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, l)
}

func (p *Player) notify(fn func(StateListener)) {
	p.listenersMu.RLock()
	defer p.listenersMu.RUnlock()

	for _, l := range p.listeners {
		fn(l)
	}
}

// DeviceRate returns the output sample rate.
func (p *Player) DeviceRate() int { return p.deviceRate }

// Entries describes every selectable entry in order.
func (p *Player) Entries() []EntryInfo {
	infos := make([]EntryInfo, len(p.entries))
	for i, e := range p.entries {
		infos[i] = EntryInfo{
			Index:      i,
			Name:       e.Name,
			Source:     e.Set.SourceID(),
			SampleRate: e.Set.SampleRate(),
			IRSize:     e.Set.IRSize(),
			EvCount:    e.Set.EvCount(),
			IRCount:    e.Set.IRCount(),
		}
	}
	return infos
}

// Current returns the index and name of the selected entry.
func (p *Player) Current() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.entries[p.current].Name
}

// SelectHRTF switches to entries[index].
func (p *Player) SelectHRTF(index int) error {
	if index < 0 || index >= len(p.entries) {
		return fmt.Errorf("%w: %d", ErrInvalidEntry, index)
	}

	p.mu.Lock()
	prevRate := p.entries[p.current].Set.SampleRate()
	p.current = index
	entry := p.entries[index]

	p.renderer.SetDataSet(entry.Set)

	var err error
	if entry.Set.SampleRate() != prevRate {
		err = p.configureStreams()
	}
	p.mu.Unlock()

	if err != nil {
		return err
	}

	p.logger.Info("Switched HRTF", "index", index, "name", entry.Name, "rate", entry.Set.SampleRate())
	p.notify(func(l StateListener) { l.OnHRTFChange(index, entry.Name) })

	return nil
}

// Source returns the rendered source parameters.
func (p *Player) Source() dsp.Source {
	return p.renderer.Source()
}

// SetSource moves the rendered source.
func (p *Player) SetSource(src dsp.Source) {
	src.Gain = max(0, src.Gain)
	src.Spread = max(0, min(src.Spread, 2*math.Pi))

	p.renderer.SetSource(src.Elevation, src.Azimuth, src.Spread, src.Gain)

	p.logger.Debug("Source moved", "elevation", src.Elevation, "azimuth", src.Azimuth,
		"spread", src.Spread, "gain", src.Gain)
	p.notify(func(l StateListener) { l.OnSourceChange(src) })
}

// Coefficients returns the current interpolated responses.
func (p *Player) Coefficients() Coefficients {
	coeffs, delays, irSize := p.renderer.Coefficients()

	c := Coefficients{
		Left:   make([]float32, irSize),
		Right:  make([]float32, irSize),
		Delays: delays,
	}
	for i := range irSize {
		c.Left[i] = coeffs[i][0]
		c.Right[i] = coeffs[i][1]
	}

	return c
}

// Levels returns the most recent peak levels.
func (p *Player) Levels() Levels {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levels
}

// Read implements io.Reader for the audio device. Whole frames are written.
func (p *Player) Read(buf []byte) (int, error) {
	frames := len(buf) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pending) < frames*2 {
		p.renderBlock()
	}

	for i, v := range p.pending[:frames*2] {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	p.pending = p.pending[:copy(p.pending, p.pending[frames*2:])]

	return frames * bytesPerFrame, nil
}

// renderBlock appends one block of output to pending. It must be called
// with mu held.
func (p *Player) renderBlock() {
	in := p.inBuf
	p.signal.Next(in)
	p.levels.In = dsp.PeakLevelDB(in)

	if p.inStream != nil {
		in = p.inStream.Process(in)
	}

	n := len(in)
	if cap(p.left) < n {
		p.left = make([]float32, n)
		p.right = make([]float32, n)
	}
	left, right := p.left[:n], p.right[:n]

	p.renderer.ProcessBlock(in, left, right)

	if p.outStreams[0] != nil {
		left = p.outStreams[0].Process(left)
		right = p.outStreams[1].Process(right)
	}

	p.levels.OutL = dsp.PeakLevelDB(left)
	p.levels.OutR = dsp.PeakLevelDB(right)

	for i := range min(len(left), len(right)) {
		p.pending = append(p.pending, left[i], right[i])
	}
}
