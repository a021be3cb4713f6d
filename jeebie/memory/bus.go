// Package memory implements the address bus: decode/arbitration across
// cartridge, VRAM/OAM (PPU), WRAM, HRAM, the I/O register window, and the
// OAM DMA / HDMA engines that need tight coupling to the rest of the bus.
package memory

import (
	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/audio"
	"github.com/valerio/go-jeebie/jeebie/cartridge"
	"github.com/valerio/go-jeebie/jeebie/interrupt"
	"github.com/valerio/go-jeebie/jeebie/joypad"
	"github.com/valerio/go-jeebie/jeebie/serial"
	"github.com/valerio/go-jeebie/jeebie/timer"
	"github.com/valerio/go-jeebie/jeebie/video"
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// Bus owns every addressable device and dispatches CPU reads/writes to the
// right one. It also owns the DMA/HDMA engines: both need byte-level access
// to cartridge/WRAM/VRAM that would otherwise force an awkward callback
// interface, so - mirroring the teacher's single-package MMU - they live
// here as sibling files instead of their own package.
type Bus struct {
	cart *cartridge.Cartridge
	gpu  *video.GPU
	apu  *audio.APU
	tmr  *timer.Timer
	pad  *joypad.Joypad
	ic   *interrupt.Controller

	serialPort SerialPort

	wram     [8][0x1000]byte
	wramBank uint8 // SVBK select, 1..7 (0 reads back as 1)
	hram     [0x7F]byte

	cgb              bool
	doubleSpeed      bool
	speedSwitchArmed bool

	bootROMDisabled byte

	dma  *dma
	hdma *hdma
}

// New builds a bus with no cartridge inserted; LoadCartridge attaches one.
func New(cgb bool) *Bus {
	b := &Bus{
		gpu: video.New(cgb),
		apu: audio.New(),
		tmr: timer.New(),
		pad: joypad.New(),
		ic:  interrupt.New(),
		cgb: cgb,
	}
	b.serialPort = serial.NewLogSink(func() { b.ic.Raise(interrupt.Serial) })
	b.dma = newDMA(b)
	b.hdma = newHDMA(b)
	return b
}

// LoadCartridge attaches a parsed cartridge to the ROM/ext-RAM windows.
func (b *Bus) LoadCartridge(c *cartridge.Cartridge) { b.cart = c }

// Cartridge returns the currently inserted cartridge, or nil.
func (b *Bus) Cartridge() *cartridge.Cartridge { return b.cart }

// GPU, APU, Timer, Joypad, and Interrupts expose the owned subsystems to the
// System orchestrator and to host-facing code (input, audio sinks, display).
func (b *Bus) GPU() *video.GPU                   { return b.gpu }
func (b *Bus) APU() *audio.APU                   { return b.apu }
func (b *Bus) Timer() *timer.Timer               { return b.tmr }
func (b *Bus) Joypad() *joypad.Joypad            { return b.pad }
func (b *Bus) Interrupts() *interrupt.Controller { return b.ic }
func (b *Bus) IsDoubleSpeed() bool                { return b.doubleSpeed }

// Reset restores every owned subsystem to its post-boot-ROM state.
func (b *Bus) Reset() {
	b.gpu.Reset()
	b.tmr.Reset()
	b.pad.Reset()
	b.ic.Reset()
	b.serialPort.Reset()
	for i := range b.wram {
		b.wram[i] = [0x1000]byte{}
	}
	b.hram = [0x7F]byte{}
	b.wramBank = 1
	b.doubleSpeed = false
	b.speedSwitchArmed = false
	b.dma = newDMA(b)
	b.hdma = newHDMA(b)
}

// Advance steps the DMA/HDMA engines by one master cycle. The System calls
// this once per tick, alongside CPU/Timer/PPU/APU advances.
func (b *Bus) Advance() {
	b.AdvanceDMA()
	b.AdvanceHDMA()
}

// AdvanceDMA steps the OAM DMA engine by one master cycle. OAM DMA runs at
// the CPU's own rate (it shares the CPU's clock domain), so the System
// drives this once per CPU T-cycle even in double speed.
func (b *Bus) AdvanceDMA() {
	b.dma.advance()
	b.gpu.SetOAMDMAActive(b.dma.active())
}

// AdvanceHDMA steps the HBlank/General VRAM DMA engine by one master cycle.
// HDMA is tied to the PPU's dot clock rather than the CPU's, so the System
// drives this at the PPU's (never-doubled) rate.
func (b *Bus) AdvanceHDMA() {
	b.hdma.advance()
}

// HdmaBlockActive reports whether an HBlank-mode HDMA transfer is mid-block,
// the window during which the System must park the CPU (HdmaHalted).
func (b *Bus) HdmaBlockActive() bool {
	return b.hdma.active && b.hdma.state == hdmaHBlankTransfer
}

// HdmaIdle reports whether the HDMA engine has no transfer queued or running.
func (b *Bus) HdmaIdle() bool {
	return !b.hdma.active
}

// ArmSpeedSwitch records a write to KEY1 bit 0; the actual switch happens
// when the CPU executes STOP with the arm bit set.
func (b *Bus) ArmSpeedSwitch(v bool) { b.speedSwitchArmed = v }

// SpeedSwitchArmed reports whether KEY1 bit 0 is set.
func (b *Bus) SpeedSwitchArmed() bool { return b.speedSwitchArmed }

// PerformSpeedSwitch flips the double-speed flag (invoked by the CPU after a
// STOP instruction with the arm bit set) and propagates it to the APU, whose
// frame sequencer cadence depends on the wall-clock rate, not the CPU clock.
func (b *Bus) PerformSpeedSwitch() {
	b.doubleSpeed = !b.doubleSpeed
	b.speedSwitchArmed = false
	b.apu.SetDoubleSpeed(b.doubleSpeed)
}

func (b *Bus) wramBankIndex() int {
	bank := int(b.wramBank)
	if bank == 0 {
		bank = 1
	}
	if !b.cgb {
		return 1
	}
	return bank
}

// Read performs a CPU memory read, honoring DMA's bus-arbitration rule: while
// a transfer is running, reads outside HRAM return 0xFF.
func (b *Bus) Read(address uint16) byte {
	if b.dma.active() && (address < 0xFF80 || address > 0xFFFE) {
		return 0xFF
	}
	return b.read(address)
}

func (b *Bus) read(address uint16) byte {
	switch {
	case address <= 0x7FFF:
		if b.cart == nil {
			return 0xFF
		}
		return b.cart.Read(address)
	case address <= 0x9FFF:
		return b.gpu.ReadVRAM(address)
	case address <= 0xBFFF:
		if b.cart == nil {
			return 0xFF
		}
		return b.cart.ReadExtRAM(address)
	case address <= 0xCFFF:
		return b.wram[0][address-0xC000]
	case address <= 0xDFFF:
		return b.wram[b.wramBankIndex()][address-0xD000]
	case address <= 0xFDFF:
		return b.read(address - 0x2000)
	case address <= 0xFE9F:
		return b.gpu.ReadOAM(address)
	case address <= 0xFEFF:
		return 0xFF
	case address <= 0xFF7F:
		return b.readIO(address)
	case address <= 0xFFFE:
		return b.hram[address-0xFF80]
	default:
		return b.ic.IE()
	}
}

// Write performs a CPU memory write; while a transfer is running, writes
// that isAddrAccessible refuses (its source page and OAM) are dropped.
func (b *Bus) Write(address uint16, val byte) {
	if !b.dma.isAddrAccessible(address) {
		return
	}
	b.write(address, val)
}

func (b *Bus) write(address uint16, val byte) {
	switch {
	case address <= 0x7FFF:
		if b.cart != nil {
			b.cart.Write(address, val)
		}
	case address <= 0x9FFF:
		b.gpu.WriteVRAM(address, val)
	case address <= 0xBFFF:
		if b.cart != nil {
			b.cart.WriteExtRAM(address, val)
		}
	case address <= 0xCFFF:
		b.wram[0][address-0xC000] = val
	case address <= 0xDFFF:
		b.wram[b.wramBankIndex()][address-0xD000] = val
	case address <= 0xFDFF:
		b.write(address-0x2000, val)
	case address <= 0xFE9F:
		b.gpu.WriteOAM(address, val)
	case address <= 0xFEFF:
		// unusable
	case address <= 0xFF7F:
		b.writeIO(address, val)
	case address <= 0xFFFE:
		b.hram[address-0xFF80] = val
	default:
		b.ic.WriteIE(val)
	}
}

// dmaRead/dmaWrite give the DMA/HDMA engines a path to memory that bypasses
// the accessibility gate (they are the thing arbitrating it) but keeps every
// other decode rule (VRAM/OAM mode gating, cartridge mapping) intact.
func (b *Bus) dmaRead(address uint16) byte { return b.read(address) }

func (b *Bus) readIO(address uint16) byte {
	switch address {
	case addr.P1:
		return b.pad.Read()
	case addr.SB, addr.SC:
		return b.serialPort.Read(address)
	case addr.DIV, addr.TIMA, addr.TMA, addr.TAC:
		return b.tmr.Read(address)
	case addr.IF:
		return b.ic.IF()
	case addr.KEY1:
		v := byte(0x7E)
		if b.doubleSpeed {
			v |= 0x80
		}
		if b.speedSwitchArmed {
			v |= 0x01
		}
		return v
	case addr.SVBK:
		return b.wramBank | 0xF8
	case 0xFF50:
		return b.bootROMDisabled | 0xFE
	case addr.HDMA1, addr.HDMA2, addr.HDMA3, addr.HDMA4, addr.HDMA5:
		return b.hdma.read(address)
	default:
		if address >= addr.AudioStart && address <= addr.AudioEnd {
			return b.apu.ReadRegister(address)
		}
		return b.gpu.Read(address)
	}
}

func (b *Bus) writeIO(address uint16, val byte) {
	switch address {
	case addr.P1:
		b.pad.Write(val)
	case addr.SB, addr.SC:
		b.serialPort.Write(address, val)
	case addr.DIV, addr.TIMA, addr.TMA, addr.TAC:
		b.tmr.Write(address, val)
	case addr.IF:
		b.ic.WriteIF(val)
	case addr.DMA:
		b.dma.trigger(val)
	case addr.KEY1:
		if b.cgb {
			b.speedSwitchArmed = val&0x01 != 0
		}
	case addr.SVBK:
		if b.cgb {
			b.wramBank = val & 0x07
		}
	case 0xFF50:
		b.bootROMDisabled = val & 0x01
	case addr.HDMA1, addr.HDMA2, addr.HDMA3, addr.HDMA4, addr.HDMA5:
		if b.cgb {
			b.hdma.write(address, val)
		}
	default:
		if address >= addr.AudioStart && address <= addr.AudioEnd {
			b.apu.WriteRegister(address, val)
			return
		}
		b.gpu.Write(address, val)
	}
}

// Tick advances the subsystems that are driven in cycle batches rather than
// per-dot (Timer is per-cycle via Advance, APU and serial consume a batch of
// T-cycles at once to amortize their internal loops).
func (b *Bus) Tick(cycles int) {
	b.apu.Tick(cycles)
	b.serialPort.Tick(cycles)
}

// RequestInterrupt is a convenience passthrough used by devices that don't
// hold their own *interrupt.Controller reference.
func (b *Bus) RequestInterrupt(k interrupt.Kind) { b.ic.Raise(k) }

// ReadBit reads a single bit out of the byte at address, for debug tooling
// that wants bitfield access without decoding the byte itself.
func (b *Bus) ReadBit(index uint8, address uint16) bool {
	return b.Read(address)&(1<<index) != 0
}
