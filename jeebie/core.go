// Package jeebie wires every owned subsystem (CPU, PPU, APU, timer, joypad,
// interrupt controller, cartridge) behind the address bus into a single
// master clock, and exposes the host-facing surface backends drive.
package jeebie

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/audio"
	"github.com/valerio/go-jeebie/jeebie/cartridge"
	"github.com/valerio/go-jeebie/jeebie/cpu"
	"github.com/valerio/go-jeebie/jeebie/debug"
	"github.com/valerio/go-jeebie/jeebie/input/action"
	"github.com/valerio/go-jeebie/jeebie/joypad"
	"github.com/valerio/go-jeebie/jeebie/memory"
	"github.com/valerio/go-jeebie/jeebie/timing"
	"github.com/valerio/go-jeebie/jeebie/video"
)

// DebuggerState aliases debug.DebuggerState so callers that only import
// the root package (no debug dependency) can still name the four states.
type DebuggerState = debug.DebuggerState

const (
	DebuggerRunning         = debug.DebuggerRunning
	DebuggerPaused          = debug.DebuggerPaused
	DebuggerStepInstruction = debug.DebuggerStepInstruction
	DebuggerStepFrame       = debug.DebuggerStepFrame
)

// cyclesPerFrame is the number of master cycles in one 154-scanline frame
// (456 dots * 154 lines).
const cyclesPerFrame = 70224

// DMG is a complete system: the bus and CPU, and every component the bus
// owns, driven in lockstep from a single master clock. The name matches
// the hardware it emulates (the original monochrome Game Boy, "DMG-01");
// the same struct also serves CGB ROMs, since color mode is a bus/PPU/APU
// runtime flag rather than a separate implementation.
type DMG struct {
	bus *memory.Bus
	cpu *cpu.CPU

	cycleCounter uint64
	romPath      string

	mutedChannels [4]bool

	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64

	limiter timing.Limiter
}

// New returns a DMG with no cartridge inserted.
func New() *DMG {
	d := &DMG{
		bus:           memory.New(false),
		debuggerState: DebuggerRunning,
		limiter:       timing.NewNoOpLimiter(),
	}
	d.cpu = cpu.New(d.bus)
	return d
}

// NewWithFile returns a DMG with the ROM at path already loaded.
func NewWithFile(path string) (*DMG, error) {
	d := New()
	if err := d.LoadNewGame(path); err != nil {
		return nil, err
	}
	return d, nil
}

func savePathFor(romPath string) string {
	ext := filepath.Ext(romPath)
	return strings.TrimSuffix(romPath, ext) + ".sav"
}

// LoadNewGame parses the ROM at path (and its adjacent .sav, if present),
// persists and detaches any previously inserted cartridge, and resets every
// component to its post-boot-ROM state. The CGB flag in the header selects
// whether the bus runs in color mode.
func (d *DMG) LoadNewGame(path string) error {
	d.CloseGame()

	rom, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rom %q: %w", path, err)
	}

	sav, _ := os.ReadFile(savePathFor(path))

	cart, err := cartridge.New(rom, sav, nil)
	if err != nil {
		return fmt.Errorf("parsing cartridge %q: %w", path, err)
	}

	d.bus = memory.New(cart.Header.CGB)
	d.bus.LoadCartridge(cart)
	d.cpu = cpu.New(d.bus)
	d.romPath = path
	d.cycleCounter = 0
	d.instructionCount = 0
	d.frameCount = 0

	slog.Info("loaded cartridge", "path", path, "title", cart.Header.Title, "cgb", cart.Header.CGB)
	return nil
}

// CloseGame persists the battery save for the current cartridge, if any,
// and detaches it.
func (d *DMG) CloseGame() {
	if d.romPath == "" {
		return
	}
	if cart := d.bus.Cartridge(); cart != nil && cart.HasBattery() {
		if err := os.WriteFile(savePathFor(d.romPath), cart.Save(), 0o644); err != nil {
			slog.Warn("failed to persist battery save", "path", d.romPath, "error", err)
		}
	}
	d.romPath = ""
}

// Tick runs the CPU's Advance microcode step one master cycle (one M-cycle,
// 4 T-cycles) at a time until a full unit of work - an instruction, a CB
// fetch, an interrupt dispatch, or a single halted/stopped no-op - has
// completed, interleaving every other subsystem that shares the same clock
// between each Advance call: the timer observes every T-cycle, OAM DMA
// every T-cycle in which the CPU is not halted,
// the APU's frame sequencer taps the timer's DIV bit 4 on the same schedule,
// and the PPU and VRAM (H)DMA run at the never-doubled dot rate (half as
// often here under CGB double speed). It returns the T-cycles consumed, for
// the System's own cycle accounting.
func (d *DMG) Tick() int {
	ic := d.bus.Interrupts()
	tmr := d.bus.Timer()
	gpu := d.bus.GPU()
	apu := d.bus.APU()
	doubleSpeed := d.bus.IsDoubleSpeed()

	startCycles := d.cpu.Cycles()

	for {
		d.cpu.Advance()

		// STOP and an active HDMA block both freeze the master clock for
		// the CPU; nothing else advances during those calls either.
		if d.cpu.State() != cpu.StateStopped && d.cpu.State() != cpu.StateHdmaHalted {
			for t := 0; t < 4; t++ {
				tmr.Advance(ic)
				apu.AdvanceFrameSequencer(tmr.FrameSequencerBit())
				if !d.cpu.IsHalted() {
					d.bus.AdvanceDMA()
				}
				if !doubleSpeed || t%2 == 0 {
					gpu.Advance(ic)
					d.bus.AdvanceHDMA()
				}
			}
			d.bus.Tick(4)
		}

		if !d.cpu.IsIntermediate() {
			break
		}
	}

	d.updateHdmaHalt()

	cycles := int(d.cpu.Cycles() - startCycles)
	d.cycleCounter += uint64(cycles)
	d.instructionCount++

	return cycles
}

// updateHdmaHalt applies the CGB HDMA/CPU handshake: a CPU that halts mid
// HBlank-mode transfer is parked until the transfer yields the bus back.
func (d *DMG) updateHdmaHalt() {
	if d.cpu.IsHdmaHalted() {
		if !d.bus.HdmaBlockActive() {
			d.cpu.SetHdmaHalted(false)
		}
		return
	}
	if d.cpu.IsHalted() && d.bus.HdmaBlockActive() {
		d.cpu.SetHdmaHalted(true)
	}
}

// RunUntilFrame ticks the system until a full frame's worth of master
// cycles has elapsed, honoring the debugger's pause/step-instruction/
// step-frame states.
func (d *DMG) RunUntilFrame() error {
	d.debuggerMutex.RLock()
	state := d.debuggerState
	stepReq := d.stepRequested
	frameReq := d.frameRequested
	d.debuggerMutex.RUnlock()

	if state == DebuggerPaused && !stepReq && !frameReq {
		return nil
	}

	elapsed := uint64(0)
	for elapsed < cyclesPerFrame {
		elapsed += uint64(d.Tick())

		if state == DebuggerPaused && stepReq {
			d.debuggerMutex.Lock()
			d.stepRequested = false
			d.debuggerMutex.Unlock()
			break
		}
	}

	if state == DebuggerPaused && frameReq {
		d.debuggerMutex.Lock()
		d.frameRequested = false
		d.debuggerMutex.Unlock()
	}

	d.frameCount++
	return nil
}

// IsInVBlank reports whether the PPU is currently in its VBlank mode.
func (d *DMG) IsInVBlank() bool {
	return d.bus.GPU().Mode() == video.VBlank
}

// Screen returns the current frame as a packed 160x144x4 RGBA byte slice.
func (d *DMG) Screen() []byte {
	return d.bus.GPU().Framebuffer().ToBinaryData()
}

// GetCurrentFrame returns the live framebuffer, for backends that want the
// GBColor representation instead of packed RGBA bytes.
func (d *DMG) GetCurrentFrame() *video.FrameBuffer {
	return d.bus.GPU().Framebuffer()
}

// AudioOutput consumes one pending stereo sample, if the APU has produced
// one since the last call.
func (d *DMG) AudioOutput() (left, right float32, ok bool) {
	return d.bus.APU().PopSample()
}

// GetAudioProvider exposes the APU to backends that render live audio
// (mute/solo toggles, raw sample buffer), without handing them the whole bus.
func (d *DMG) GetAudioProvider() audio.Provider {
	return d.bus.APU()
}

// Press and Release forward a physical key edge to the joypad, which
// raises the JOYPAD interrupt itself on an enabled high-to-low transition.
func (d *DMG) Press(key joypad.Key) {
	d.bus.Joypad().Press(key, d.bus.Interrupts())
}

func (d *DMG) Release(key joypad.Key) {
	d.bus.Joypad().Release(key)
}

// CycleCounter and ResetCycleCounter expose the running master-cycle count
// for host-side frame pacing.
func (d *DMG) CycleCounter() uint64 { return d.cycleCounter }
func (d *DMG) ResetCycleCounter()   { d.cycleCounter = 0 }

// ToggleChannelMute mutes/unmutes one of the four audio channels (0..3).
func (d *DMG) ToggleChannelMute(channel int) {
	if channel < 0 || channel >= 4 {
		return
	}
	d.mutedChannels[channel] = !d.mutedChannels[channel]
	d.bus.APU().ToggleChannel(channel)
}

var actionToKey = map[action.Action]joypad.Key{
	action.GBButtonA:      joypad.A,
	action.GBButtonB:      joypad.B,
	action.GBButtonStart:  joypad.Start,
	action.GBButtonSelect: joypad.Select,
	action.GBDPadUp:       joypad.Up,
	action.GBDPadDown:     joypad.Down,
	action.GBDPadLeft:     joypad.Left,
	action.GBDPadRight:    joypad.Right,
}

// HandleAction routes a single input event: Game Boy hardware buttons reach
// the joypad, emulator-feature actions drive the debugger state machine and
// audio-debug toggles.
func (d *DMG) HandleAction(act action.Action, pressed bool) {
	if key, ok := actionToKey[act]; ok {
		if pressed {
			d.Press(key)
		} else {
			d.Release(key)
		}
		return
	}

	if !pressed {
		return
	}

	switch act {
	case action.EmulatorPauseToggle:
		d.debuggerMutex.Lock()
		if d.debuggerState == DebuggerPaused {
			d.debuggerState = DebuggerRunning
		} else {
			d.debuggerState = DebuggerPaused
		}
		d.debuggerMutex.Unlock()
	case action.EmulatorStepInstruction:
		d.debuggerMutex.Lock()
		d.stepRequested = true
		d.debuggerMutex.Unlock()
	case action.EmulatorStepFrame:
		d.debuggerMutex.Lock()
		d.frameRequested = true
		d.debuggerMutex.Unlock()
	case action.AudioToggleChannel1:
		d.ToggleChannelMute(0)
	case action.AudioToggleChannel2:
		d.ToggleChannelMute(1)
	case action.AudioToggleChannel3:
		d.ToggleChannelMute(2)
	case action.AudioToggleChannel4:
		d.ToggleChannelMute(3)
	case action.AudioSoloChannel1:
		d.bus.APU().SoloChannel(0)
	case action.AudioSoloChannel2:
		d.bus.APU().SoloChannel(1)
	case action.AudioSoloChannel3:
		d.bus.APU().SoloChannel(2)
	case action.AudioSoloChannel4:
		d.bus.APU().SoloChannel(3)
	}
}

// SetDebuggerState sets the debugger state directly, for hosts that manage
// their own pause/run UI rather than routing through actions.
func (d *DMG) SetDebuggerState(state DebuggerState) {
	d.debuggerMutex.Lock()
	defer d.debuggerMutex.Unlock()
	d.debuggerState = state
}

// GetDebuggerState returns the current debugger state.
func (d *DMG) GetDebuggerState() DebuggerState {
	d.debuggerMutex.RLock()
	defer d.debuggerMutex.RUnlock()
	return d.debuggerState
}

// GetInstructionCount and GetFrameCount report cumulative progress, for
// debug displays.
func (d *DMG) GetInstructionCount() uint64 { return d.instructionCount }
func (d *DMG) GetFrameCount() uint64       { return d.frameCount }

// SetFrameLimiter installs a pacing strategy for RunUntilFrame callers that
// want wall-clock-synced playback; nil restores the no-op limiter used for
// headless/benchmark runs.
func (d *DMG) SetFrameLimiter(limiter timing.Limiter) {
	if limiter == nil {
		d.limiter = timing.NewNoOpLimiter()
		return
	}
	d.limiter = limiter
}

// ResetFrameTiming resets the installed limiter's pacing state, used after
// a debugger pause so the next frame isn't perceived as catching up.
func (d *DMG) ResetFrameTiming() {
	d.limiter.Reset()
}

// ExtractDebugData snapshots CPU, interrupt, and memory state for debug
// displays. Returns nil until a cartridge has been loaded.
func (d *DMG) ExtractDebugData() *debug.CompleteDebugData {
	if d.bus == nil || d.cpu == nil {
		return nil
	}

	pc := d.cpu.PC()

	snapshotStart := uint16(0)
	if pc >= 0x80 {
		snapshotStart = pc - 0x80
	}
	snapshotSize := 200
	if uint32(snapshotStart)+uint32(snapshotSize) > 0x10000 {
		snapshotSize = int(0x10000 - uint32(snapshotStart))
	}
	snapshotBytes := make([]byte, snapshotSize)
	for i := range snapshotBytes {
		snapshotBytes[i] = d.bus.Read(snapshotStart + uint16(i))
	}

	ic := d.bus.Interrupts()

	lcdc := d.bus.Read(addr.LCDC)
	spriteHeight := 8
	if lcdc&0x04 != 0 {
		spriteHeight = 16
	}
	currentLine := int(d.bus.Read(addr.LY))

	d.debuggerMutex.RLock()
	debuggerState := d.debuggerState
	d.debuggerMutex.RUnlock()

	return &debug.CompleteDebugData{
		OAM:             debug.ExtractOAMData(d.bus, currentLine, spriteHeight),
		VRAM:            debug.ExtractVRAMData(d.bus),
		CPU:             d.extractCPUState(),
		Memory:          &debug.MemorySnapshot{StartAddr: snapshotStart, Bytes: snapshotBytes},
		DebuggerState:   debuggerState,
		InterruptEnable: ic.IE(),
		InterruptFlags:  ic.IF(),
	}
}

func (d *DMG) extractCPUState() *debug.CPUState {
	return &debug.CPUState{
		A:      d.cpu.A(),
		F:      d.cpu.F(),
		B:      d.cpu.B(),
		C:      d.cpu.C(),
		D:      d.cpu.D(),
		E:      d.cpu.E(),
		H:      d.cpu.H(),
		L:      d.cpu.L(),
		SP:     d.cpu.SP(),
		PC:     d.cpu.PC(),
		IME:    d.cpu.IME(),
		Cycles: d.cpu.Cycles(),
	}
}
