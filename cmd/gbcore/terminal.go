package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/valerio/go-gbcore/gbcore"
)

const (
	frameTime = time.Second / 60

	// terminal key events have no release counterpart, so a pressed key
	// stays held for this long after its last repeat
	keyHoldTime = 150 * time.Millisecond
)

// keymap translates terminal keys to console buttons.
var keymap = map[tcell.Key]gbcore.Buttons{
	tcell.KeyUp:    gbcore.ButtonUp,
	tcell.KeyDown:  gbcore.ButtonDown,
	tcell.KeyLeft:  gbcore.ButtonLeft,
	tcell.KeyRight: gbcore.ButtonRight,
	tcell.KeyEnter: gbcore.ButtonStart,
	tcell.KeyTab:   gbcore.ButtonSelect,
}

var runeKeymap = map[rune]gbcore.Buttons{
	'z': gbcore.ButtonA,
	'x': gbcore.ButtonB,
}

type terminalView struct {
	gb       *gbcore.GB
	screen   tcell.Screen
	romPath  string
	capture  *wavCapture
	player   *audioPlayer
	lastHeld map[gbcore.Buttons]time.Time

	frame [gbcore.ScreenWidth * gbcore.ScreenHeight]uint32
	audio [gbcore.SamplesPerFrame + gbcore.MaxSamplesOverrun]uint32
}

// runTerminal drives the emulator with a tcell display until the user quits.
func runTerminal(gb *gbcore.GB, romPath string, capture *wavCapture, player *audioPlayer) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	defer screen.Fini()
	screen.HideCursor()

	v := &terminalView{
		gb:       gb,
		screen:   screen,
		romPath:  romPath,
		capture:  capture,
		player:   player,
		lastHeld: make(map[gbcore.Buttons]time.Time),
	}
	gb.SetInputGetter(v.heldButtons)

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			if quit := v.handleEvent(ev); quit {
				return nil
			}
		case <-ticker.C:
			if err := v.step(); err != nil {
				return err
			}
		}
	}
}

func (v *terminalView) handleEvent(ev tcell.Event) (quit bool) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		v.screen.Sync()
	case *tcell.EventKey:
		switch {
		case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC:
			return true
		case ev.Key() == tcell.KeyF5:
			v.saveState()
		case ev.Key() == tcell.KeyF7:
			v.loadState()
		case ev.Key() == tcell.KeyRune:
			if ev.Rune() == 'q' {
				return true
			}
			if b, ok := runeKeymap[ev.Rune()]; ok {
				v.lastHeld[b] = time.Now()
			}
		default:
			if b, ok := keymap[ev.Key()]; ok {
				v.lastHeld[b] = time.Now()
			}
		}
	}
	return false
}

// heldButtons reports keys seen within the hold window as still pressed.
func (v *terminalView) heldButtons() gbcore.Buttons {
	var held gbcore.Buttons
	now := time.Now()
	for b, at := range v.lastHeld {
		if now.Sub(at) < keyHoldTime {
			held |= b
		}
	}
	return held
}

// step emulates one frame and redraws the screen.
func (v *terminalView) step() error {
	samples := gbcore.SamplesPerFrame
	v.gb.RunFor(v.audio[:], &samples)

	if err := pushAudio(v.audio[:samples], v.capture, v.player); err != nil {
		return err
	}

	v.gb.BlitTo(v.frame[:], gbcore.ScreenWidth)
	v.draw()
	return nil
}

// draw renders the frame with half-block cells, two pixels per terminal row.
func (v *terminalView) draw() {
	for cy := 0; cy < gbcore.ScreenHeight/2; cy++ {
		for x := 0; x < gbcore.ScreenWidth; x++ {
			top := v.frame[(cy*2)*gbcore.ScreenWidth+x]
			bottom := v.frame[(cy*2+1)*gbcore.ScreenWidth+x]
			style := tcell.StyleDefault.
				Foreground(rgbColor(top)).
				Background(rgbColor(bottom))
			v.screen.SetContent(x, cy, '▀', nil, style)
		}
	}
	v.screen.Show()
}

func rgbColor(rgb32 uint32) tcell.Color {
	return tcell.NewRGBColor(
		int32(rgb32>>16&0xFF),
		int32(rgb32>>8&0xFF),
		int32(rgb32&0xFF),
	)
}

func (v *terminalView) statePath() string {
	return v.romPath + ".st0"
}

func (v *terminalView) saveState() {
	f, err := os.Create(v.statePath())
	if err == nil {
		err = v.gb.SaveState(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		slog.Error("Saving state", "error", err)
		return
	}
	slog.Info("Saved state", "path", v.statePath())
}

func (v *terminalView) loadState() {
	f, err := os.Open(v.statePath())
	if err == nil {
		err = v.gb.LoadState(f)
		f.Close()
	}
	if err != nil {
		slog.Error("Loading state", "error", err)
		return
	}
	slog.Info("Loaded state", "path", v.statePath())
}
