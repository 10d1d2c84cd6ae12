package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/valerio/go-gbcore/gbcore"
)

func main() {
	app := cli.NewApp()
	app.Name = "gbcore"
	app.Description = "A Game Boy / Game Boy Color emulator"
	app.Usage = "gbcore [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "bios",
			Usage: "Path to a boot ROM image (256 bytes DMG, 2304 bytes CGB)",
		},
		cli.BoolFlag{
			Name:  "cgb",
			Usage: "Run as a Game Boy Color",
		},
		cli.BoolFlag{
			Name:  "gba",
			Usage: "Boot with GBA compatibility register values (implies --cgb)",
		},
		cli.BoolFlag{
			Name:  "multicart",
			Usage: "Enable the MBC1 multicart heuristic for collection cartridges",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run without a display",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "wav",
			Usage: "Capture audio output to a WAV file",
		},
		cli.BoolFlag{
			Name:  "audio",
			Usage: "Play audio through the host sound device",
		},
		cli.StringFlag{
			Name:  "savedata",
			Usage: "Battery savedata file, loaded at start and written at exit",
		},
		cli.StringFlag{
			Name:  "load-state",
			Usage: "Restore a save state before running",
		},
		cli.StringFlag{
			Name:  "save-state",
			Usage: "Write a save state to this path at exit (headless mode)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	rom, err := os.ReadFile(romPath)
	if err != nil {
		return fmt.Errorf("reading ROM: %w", err)
	}

	var flags gbcore.LoadFlag
	if c.Bool("cgb") || c.Bool("gba") {
		flags |= gbcore.CGBMode
	}
	if c.Bool("gba") {
		flags |= gbcore.GBAFlag
	}
	if c.Bool("multicart") {
		flags |= gbcore.MulticartCompat
	}

	gb := gbcore.New()
	if biosPath := c.String("bios"); biosPath != "" {
		bios, err := os.ReadFile(biosPath)
		if err != nil {
			return fmt.Errorf("reading boot ROM: %w", err)
		}
		if err := gb.LoadBios(bios); err != nil {
			return err
		}
	}
	if err := gb.Load(rom, flags); err != nil {
		return err
	}
	slog.Info("Loaded ROM", "title", gb.RomTitle(), "cgb", gb.IsCgb())

	savedataPath := c.String("savedata")
	if savedataPath != "" {
		if data, err := os.ReadFile(savedataPath); err == nil {
			gb.LoadSavedata(data)
			slog.Info("Loaded savedata", "path", savedataPath, "bytes", len(data))
		}
	}

	if statePath := c.String("load-state"); statePath != "" {
		f, err := os.Open(statePath)
		if err != nil {
			return fmt.Errorf("opening save state: %w", err)
		}
		err = gb.LoadState(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	var capture *wavCapture
	if wavPath := c.String("wav"); wavPath != "" {
		capture, err = newWavCapture(wavPath)
		if err != nil {
			return fmt.Errorf("creating WAV capture: %w", err)
		}
		defer func() {
			if err := capture.Close(); err != nil {
				slog.Error("Closing WAV capture", "error", err)
			}
		}()
	}

	var player *audioPlayer
	if c.Bool("audio") {
		player, err = newAudioPlayer()
		if err != nil {
			return fmt.Errorf("opening audio device: %w", err)
		}
		defer player.Close()
	}

	if c.Bool("headless") {
		frames := c.Int("frames")
		if frames <= 0 {
			return errors.New("headless mode requires --frames with a positive value")
		}
		if err := runHeadless(gb, frames, capture, player); err != nil {
			return err
		}
		if statePath := c.String("save-state"); statePath != "" {
			if err := writeState(gb, statePath); err != nil {
				return err
			}
		}
	} else {
		if err := runTerminal(gb, romPath, capture, player); err != nil {
			return err
		}
	}

	if savedataPath != "" {
		if blob := gb.SaveSavedata(false); blob != nil {
			if err := os.WriteFile(savedataPath, blob, 0644); err != nil {
				return fmt.Errorf("writing savedata: %w", err)
			}
			slog.Info("Wrote savedata", "path", savedataPath, "bytes", len(blob))
		}
	}
	return nil
}

// runHeadless emulates the requested number of frames as fast as possible.
func runHeadless(gb *gbcore.GB, frames int, capture *wavCapture, player *audioPlayer) error {
	buf := make([]uint32, gbcore.SamplesPerFrame+gbcore.MaxSamplesOverrun)

	done := 0
	for done < frames {
		samples := gbcore.SamplesPerFrame
		ret := gb.RunFor(buf, &samples)
		if ret >= 0 {
			done++
		}
		if hit := gb.GetHitInterruptAddress(); hit >= 0 {
			slog.Info("Breakpoint hit", "address", fmt.Sprintf("0x%06X", hit))
			break
		}
		if err := pushAudio(buf[:samples], capture, player); err != nil {
			return err
		}
	}
	slog.Info("Headless run complete", "frames", done)
	return nil
}

func pushAudio(samples []uint32, capture *wavCapture, player *audioPlayer) error {
	if capture == nil && player == nil {
		return nil
	}
	pcm := downsample(samples)
	if capture != nil {
		if err := capture.push(pcm); err != nil {
			return fmt.Errorf("writing WAV: %w", err)
		}
	}
	if player != nil {
		player.push(pcm)
	}
	return nil
}

func writeState(gb *gbcore.GB, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating save state: %w", err)
	}
	err = gb.SaveState(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
