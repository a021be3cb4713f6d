package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/urfave/cli"
	"github.com/valerio/go-jeebie/jeebie"
	"github.com/valerio/go-jeebie/jeebie/audio"
	"github.com/valerio/go-jeebie/jeebie/backend"
	"github.com/valerio/go-jeebie/jeebie/backend/ebiten"
	"github.com/valerio/go-jeebie/jeebie/backend/headless"
	"github.com/valerio/go-jeebie/jeebie/backend/sdl2"
	"github.com/valerio/go-jeebie/jeebie/backend/terminal"
	"github.com/valerio/go-jeebie/jeebie/input"
	"github.com/valerio/go-jeebie/jeebie/input/action"
	"github.com/valerio/go-jeebie/jeebie/input/event"
)

func main() {
	app := cli.NewApp()
	app.Name = "Jeebie"
	app.Description = "A simple gameboy emulator"
	app.Usage = "jeebie [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the emulator without a graphical interface",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "test-pattern",
			Usage: "Display a test pattern instead of emulation (for debugging display)",
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save frame snapshots every N frames in headless mode (0 = disabled)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save frame snapshots (default: temp directory)",
		},
		cli.BoolFlag{
			Name:  "sdl2",
			Usage: "Use the SDL2 backend instead of the terminal (requires building with -tags sdl2)",
		},
		cli.BoolFlag{
			Name:  "ebiten",
			Usage: "Use the ebiten backend instead of the terminal (requires building with -tags ebiten)",
		},
	}
	app.Action = runEmulator

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	testPattern := c.Bool("test-pattern")

	var romPath string
	if !testPattern {
		romPath = c.String("rom")
		if romPath == "" {
			if c.NArg() > 0 {
				romPath = c.Args().Get(0)
			} else {
				cli.ShowAppHelp(c)
				return errors.New("no ROM path provided")
			}
		}
	}

	var emu jeebie.Emulator
	if testPattern {
		emu = jeebie.NewTestPatternEmulator()
	} else {
		dmg, err := jeebie.NewWithFile(romPath)
		if err != nil {
			return err
		}
		emu = dmg
	}

	be, title, err := selectBackend(c, romPath)
	if err != nil {
		return err
	}

	config := backend.BackendConfig{
		Title:         title,
		TestPattern:   testPattern,
		DebugProvider: emu,
		AudioProvider: audioProviderOf(emu),
	}

	return runLoop(emu, be, config)
}

func selectBackend(c *cli.Context, romPath string) (backend.Backend, string, error) {
	if c.Bool("headless") {
		frames := c.Int("frames")
		if frames <= 0 {
			return nil, "", errors.New("headless mode requires --frames option with a positive value")
		}

		snapshotConfig, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"), romPath)
		if err != nil {
			return nil, "", err
		}

		return headless.New(frames, snapshotConfig), romPath, nil
	}

	if c.Bool("sdl2") {
		return sdl2.New(), "Jeebie", nil
	}

	if c.Bool("ebiten") {
		return ebiten.New(), "Jeebie", nil
	}

	return terminal.New(), "Jeebie", nil
}

// audioProviderOf extracts the emulator's audio.Provider without widening the
// Emulator interface; TestPatternEmulator has no audio and returns nil.
func audioProviderOf(emu jeebie.Emulator) audio.Provider {
	if p, ok := emu.(interface{ GetAudioProvider() audio.Provider }); ok {
		return p.GetAudioProvider()
	}
	return nil
}

// backendAction is implemented by backends that handle actions the emulator
// itself has no concept of - snapshots, test pattern cycling, debug windows.
// The terminal and SDL2 backends each expose it under their own name.
type backendAction interface {
	HandleAction(act action.Action)
}

type backendBackendAction interface {
	HandleBackendAction(act action.Action)
}

func dispatchBackendAction(be backend.Backend, act action.Action) {
	switch b := be.(type) {
	case backendAction:
		b.HandleAction(act)
	case backendBackendAction:
		b.HandleBackendAction(act)
	}
}

func runLoop(emu jeebie.Emulator, be backend.Backend, config backend.BackendConfig) error {
	if err := be.Init(config); err != nil {
		return err
	}
	defer be.Cleanup()

	handler := input.NewHandler()

	for {
		if err := emu.RunUntilFrame(); err != nil {
			return err
		}

		events, err := be.Update(emu.GetCurrentFrame())
		if err != nil {
			return err
		}

		for _, evt := range events {
			if !handler.ProcessEvent(evt) {
				continue
			}

			if evt.Action == action.EmulatorQuit && evt.Type == event.Press {
				return nil
			}

			emu.HandleAction(evt.Action, evt.Type == event.Press)
			if evt.Type == event.Press {
				dispatchBackendAction(be, evt.Action)
			}
		}
	}
}
