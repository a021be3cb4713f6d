// Package timer implements the Game Boy's 16-bit divider/TIMA/TMA/TAC timer
// and exposes the falling-edge tap consumed by the audio frame sequencer.
package timer

import (
	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/bit"
	"github.com/valerio/go-jeebie/jeebie/interrupt"
)

// tacBitPosition maps the two TAC rate-select bits to the divider bit they tap.
var tacBitPosition = [4]uint16{9, 3, 5, 7}

// frameSequencerBit is the DIV bit that feeds the audio frame sequencer's
// falling-edge tap. Per the authoritative source this stays bit 4 even in
// double speed (see DESIGN.md Open Question resolutions).
const frameSequencerBit = 4

// Timer owns the internal 16-bit divider and the TIMA/TMA/TAC registers.
type Timer struct {
	divider uint16 // internal counter; DIV register is the upper 8 bits

	tima byte
	tma  byte
	tac  byte

	lastTimerBit        bool
	overflowCyclesLeft  int
	pendingInterruptTMA bool
}

// New returns a timer in its post-boot-ROM state.
func New() *Timer {
	return &Timer{divider: 0xABCC}
}

// Reset restores the post-boot-ROM state.
func (t *Timer) Reset() {
	*t = Timer{divider: 0xABCC}
}

// DIV returns the observable upper 8 bits of the internal divider.
func (t *Timer) DIV() byte { return byte(t.divider >> 8) }

// TIMA returns the current timer counter value.
func (t *Timer) TIMA() byte { return t.tima }

// TMA returns the timer modulo value.
func (t *Timer) TMA() byte { return t.tma }

// TAC returns the timer control register (upper bits read as one, matching
// hardware; only the low 3 bits are meaningful).
func (t *Timer) TAC() byte { return t.tac | 0xF8 }

// FrameSequencerBit returns the current value of the DIV bit tapped by the
// audio frame sequencer's falling-edge detector.
func (t *Timer) FrameSequencerBit() bool {
	return bit.IsSet16(frameSequencerBit+8, t.divider)
}

// Read dispatches a bus read to the appropriate register.
func (t *Timer) Read(address uint16) byte {
	switch address {
	case addr.DIV:
		return t.DIV()
	case addr.TIMA:
		return t.tima
	case addr.TMA:
		return t.tma
	case addr.TAC:
		return t.TAC()
	default:
		return 0xFF
	}
}

// Write dispatches a bus write to the appropriate register.
func (t *Timer) Write(address uint16, value byte) {
	switch address {
	case addr.DIV:
		// Writing any value resets the internal divider. If the currently
		// selected tap bit was high, this is itself a falling edge and can
		// tick TIMA - the "DIV write glitch" exploited by test ROMs.
		wasSelectedBitHigh := t.enabled() && bit.IsSet16(tacBitPosition[t.tac&0x03], t.divider)
		t.divider = 0
		if wasSelectedBitHigh {
			t.tickTIMA()
		}
		t.lastTimerBit = false
	case addr.TIMA:
		t.tima = value
		// A write during the overflow delay window cancels the pending
		// reload/interrupt.
		t.overflowCyclesLeft = 0
		t.pendingInterruptTMA = false
	case addr.TMA:
		t.tma = value
	case addr.TAC:
		t.tac = value & 0x07
	}
}

func (t *Timer) enabled() bool {
	return t.tac&0x04 != 0
}

func (t *Timer) tickTIMA() {
	if t.tima == 0xFF {
		t.tima = 0x00
		t.overflowCyclesLeft = 4
	} else {
		t.tima++
	}
}

// Advance steps the timer by exactly one master cycle, raising TIMER on the
// controller when TIMA overflows (after the documented one-M-cycle delay).
func (t *Timer) Advance(ic *interrupt.Controller) {
	if t.pendingInterruptTMA {
		t.tima = t.tma
		ic.Raise(interrupt.Timer)
		t.pendingInterruptTMA = false
	}

	if t.overflowCyclesLeft > 0 {
		t.overflowCyclesLeft--
		if t.overflowCyclesLeft == 0 {
			t.pendingInterruptTMA = true
		}
	}

	t.divider++

	if t.overflowCyclesLeft > 0 {
		// Still draining the reload delay; the divider still runs but the
		// edge detector is irrelevant until TIMA reloads.
		return
	}

	if t.enabled() {
		currentBit := bit.IsSet16(tacBitPosition[t.tac&0x03], t.divider)
		if t.lastTimerBit && !currentBit {
			t.tickTIMA()
		}
		t.lastTimerBit = currentBit
	} else {
		t.lastTimerBit = false
	}
}
