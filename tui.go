package main

import (
	"fmt"
	"math"
	"time"

	"github.com/nsf/termbox-go"

	"hrtfkit/dsp"
	"hrtfkit/internal/preview"
)

const (
	colDef     = termbox.ColorDefault
	colWhite   = termbox.ColorWhite
	colRed     = termbox.ColorRed
	colGreen   = termbox.ColorGreen
	colYellow  = termbox.ColorYellow
	colBlue    = termbox.ColorBlue
	colCyan    = termbox.ColorCyan
	colMagenta = termbox.ColorMagenta
)

// Step sizes for the arrow keys.
const (
	angleStep = 5 * math.Pi / 180
	gainStep  = 0.05
)

// TUIState is the interactive view over a preview player.
type TUIState struct {
	selectedParam int
	player        *preview.Player
	exit          bool

	entries    []preview.EntryInfo
	browseMode bool
	browseIdx  int
}

const (
	paramHRTF = iota
	paramAzimuth
	paramElevation
	paramSpread
	paramGain
)

var paramNames = []string{
	"HRTF",
	"Azimuth (deg)",
	"Elevation (deg)",
	"Spread (deg)",
	"Gain (0-1)",
}

func runTUI(player *preview.Player) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("failed to initialize TUI: %w", err)
	}
	defer termbox.Close()

	termbox.SetInputMode(termbox.InputEsc)

	state := &TUIState{
		player:  player,
		entries: player.Entries(),
	}
	state.browseIdx, _ = player.Current()

	eventQueue := make(chan termbox.Event)

	go func() {
		for {
			eventQueue <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	draw(state)

	for !state.exit {
		select {
		case ev := <-eventQueue:
			switch ev.Type {
			case termbox.EventKey:
				handleKey(ev, state)
			case termbox.EventResize:
				draw(state)
			}
		case <-ticker.C:
			draw(state)
		}
	}

	return nil
}

func handleKey(ev termbox.Event, s *TUIState) {
	if s.browseMode {
		handleBrowseKey(ev, s)
		return
	}

	if ev.Key == termbox.KeyEsc || ev.Ch == 'q' {
		s.exit = true
		return
	}

	// Navigation
	switch ev.Key {
	case termbox.KeyArrowUp:
		s.selectedParam--
		if s.selectedParam < 0 {
			s.selectedParam = len(paramNames) - 1
		}
	case termbox.KeyArrowDown:
		s.selectedParam++
		if s.selectedParam >= len(paramNames) {
			s.selectedParam = 0
		}
	}

	if s.selectedParam == paramHRTF {
		if ev.Key == termbox.KeyArrowRight || ev.Key == termbox.KeyArrowLeft || ev.Key == termbox.KeyEnter {
			s.browseMode = true
			s.browseIdx, _ = s.player.Current()
		}
		return
	}

	var dir float32
	switch ev.Key {
	case termbox.KeyArrowRight:
		dir = 1
	case termbox.KeyArrowLeft:
		dir = -1
	}
	if dir == 0 {
		return
	}

	s.player.SetSource(adjustSource(s.player.Source(), s.selectedParam, dir))
}

// adjustSource steps one source parameter. Azimuth wraps around the
// listener; the other parameters stop at their limits.
func adjustSource(src dsp.Source, param int, dir float32) dsp.Source {
	switch param {
	case paramAzimuth:
		az := float64(src.Azimuth + dir*angleStep)
		src.Azimuth = float32(math.Remainder(az, 2*math.Pi))
	case paramElevation:
		src.Elevation = max(-math.Pi/2, min(src.Elevation+dir*angleStep, math.Pi/2))
	case paramSpread:
		src.Spread = max(0, min(src.Spread+dir*angleStep*3, 2*math.Pi))
	case paramGain:
		src.Gain = max(0, min(src.Gain+dir*gainStep, 1))
	}
	return src
}

func handleBrowseKey(ev termbox.Event, s *TUIState) {
	switch ev.Key {
	case termbox.KeyEsc:
		s.browseMode = false
	case termbox.KeyEnter:
		if current, _ := s.player.Current(); s.browseIdx != current {
			// Failures are logged by the player.
			_ = s.player.SelectHRTF(s.browseIdx)
		}
		s.browseMode = false
	case termbox.KeyArrowUp:
		s.browseIdx--
		if s.browseIdx < 0 {
			s.browseIdx = len(s.entries) - 1
		}
	case termbox.KeyArrowDown:
		s.browseIdx++
		if s.browseIdx >= len(s.entries) {
			s.browseIdx = 0
		}
	case termbox.KeyPgup:
		s.browseIdx = max(0, s.browseIdx-10)
	case termbox.KeyPgdn:
		s.browseIdx = min(len(s.entries)-1, s.browseIdx+10)
	}
}

func draw(state *TUIState) {
	_ = termbox.Clear(colDef, colDef)

	if state.browseMode {
		drawBrowser(state)
		return
	}

	current, name := state.player.Current()
	entry := state.entries[current]

	printTB(0, 0, colCyan, colDef, "hrtfkit preview - Interactive Mode")
	printTB(0, 1, colWhite, colDef, fmt.Sprintf("Data set: %d Hz, %d-tap HRIRs   Output: %d Hz",
		entry.SampleRate, entry.IRSize, state.player.DeviceRate()))
	printTB(0, 2, colDef, colDef, "Use Arrows to navigate/adjust. 'q' or Esc to quit.")
	printTB(0, 3, colDef, colDef, "----------------------------------------------------")

	if len(name) > 30 {
		name = name[:27] + "..."
	}

	src := state.player.Source()
	vals := []string{
		name,
		fmt.Sprintf("%+.0f", float64(src.Azimuth)*180/math.Pi),
		fmt.Sprintf("%+.0f", float64(src.Elevation)*180/math.Pi),
		fmt.Sprintf("%.0f", float64(src.Spread)*180/math.Pi),
		fmt.Sprintf("%.2f", src.Gain),
	}

	for i, pname := range paramNames {
		col := colWhite
		bgColor := colDef
		prefix := "  "

		if i == state.selectedParam {
			col = colDef
			bgColor = colWhite
			prefix = "> "
		}

		line := fmt.Sprintf("%-22s %s", prefix+pname, vals[i])
		printTB(0, 5+i, col, bgColor, line)

		if i == paramHRTF && i == state.selectedParam {
			printTB(len(line)+2, 5+i, colYellow, colDef, "[Enter to browse]")
		}
	}

	delays := state.player.Coefficients().Delays
	printTB(0, 11, colWhite, colDef, fmt.Sprintf("Onset delay: L %d  R %d samples", delays[0], delays[1]))

	meterY := 13
	printTB(0, meterY, colYellow, colDef, "Meters:")

	levels := state.player.Levels()
	drawMeter(meterY+2, "In   ", levels.In, colGreen)
	drawMeter(meterY+4, "Out L", levels.OutL, colBlue)
	drawMeter(meterY+5, "Out R", levels.OutR, colRed)

	termbox.Flush()
}

func drawBrowser(state *TUIState) {
	w, h := termbox.Size()

	printTB(0, 0, colMagenta, colDef, "Select HRTF")
	printTB(0, 1, colDef, colDef, "Use Up/Down to browse, PgUp/PgDn for fast scroll")
	printTB(0, 2, colDef, colDef, "Enter to select, Esc to cancel")
	printTB(0, 3, colDef, colDef, "─────────────────────────────────────────────────────────────────")

	listStartY := 5
	listHeight := max(h-listStartY-2, 5)

	scrollOffset := 0
	if state.browseIdx >= listHeight {
		scrollOffset = state.browseIdx - listHeight + 1
	}

	current, _ := state.player.Current()

	for i := 0; i < listHeight && scrollOffset+i < len(state.entries); i++ {
		idx := scrollOffset + i
		entry := state.entries[idx]

		col := colWhite
		bgColor := colDef
		prefix := "  "

		if idx == state.browseIdx {
			col = colDef
			bgColor = colWhite
			prefix = "> "
		}

		suffix := ""
		if idx == current {
			suffix = " [current]"
		}

		name := entry.Name
		if len(name) > 25 {
			name = name[:22] + "..."
		}

		line := fmt.Sprintf("%s%3d: %-25s (%.1fkHz, %d taps, %d responses)%s",
			prefix, idx, name, float64(entry.SampleRate)/1000, entry.IRSize, entry.IRCount, suffix)

		if len(line) > w-1 {
			line = line[:w-1]
		}

		printTB(0, listStartY+i, col, bgColor, line)
	}

	if len(state.entries) > listHeight {
		scrollInfo := fmt.Sprintf("Showing %d-%d of %d",
			scrollOffset+1, min(scrollOffset+listHeight, len(state.entries)), len(state.entries))
		printTB(0, h-1, colYellow, colDef, scrollInfo)
	}

	termbox.Flush()
}

func drawMeter(yPos int, label string, db float32, color termbox.Attribute) {
	const (
		barWidth = 60
		xPos     = 2
		maxDB    = 6.0
	)

	db = max(dsp.MinLevelDB, min(db, maxDB))

	ratio := (db - dsp.MinLevelDB) / (maxDB - dsp.MinLevelDB)
	filled := int(ratio * barWidth)

	printTB(xPos, yPos, colDef, colDef, fmt.Sprintf("%s [%-6.1f dB] ", label, db))

	startX := xPos + 15

	for i := range barWidth {
		barChar := '░'
		if i < filled {
			barChar = '█'
		}

		termbox.SetCell(startX+i, yPos, barChar, color, colDef)
	}
}

func printTB(x, y int, fg, bg termbox.Attribute, msg string) {
	for _, c := range msg {
		termbox.SetCell(x, y, c, fg, bg)
		x++
	}
}
