// Package joypad implements the Game Boy's single joypad I/O register: group
// selection and active-low key state, with edge-triggered JOYPAD interrupts.
package joypad

import (
	"github.com/valerio/go-jeebie/jeebie/bit"
	"github.com/valerio/go-jeebie/jeebie/interrupt"
)

// Key identifies one of the eight physical keys.
type Key uint8

const (
	Right Key = iota
	Left
	Up
	Down
	A
	B
	Select
	Start
)

// Joypad holds the debounced key state for both selectable groups.
type Joypad struct {
	buttons uint8 // A,B,Select,Start - bits 0..3, active low
	dpad    uint8 // Right,Left,Up,Down - bits 0..3, active low
	select_ uint8 // bits 5..4 of the I/O register, selects which group reads back
}

// New returns a joypad with no keys pressed and no group selected.
func New() *Joypad {
	return &Joypad{buttons: 0x0F, dpad: 0x0F, select_: 0x30}
}

// Reset restores the no-keys-pressed, no-group-selected state.
func (j *Joypad) Reset() {
	*j = Joypad{buttons: 0x0F, dpad: 0x0F, select_: 0x30}
}

// Read returns the joypad I/O byte: bits 7..6 always set, bits 5..4 the
// selected group, bits 3..0 the active-low state of that group (or all high
// if neither group is selected).
func (j *Joypad) Read() uint8 {
	result := uint8(0xC0) | j.select_
	selectButtons := j.select_&0x20 == 0
	selectDpad := j.select_&0x10 == 0

	nibble := uint8(0x0F)
	if selectButtons {
		nibble &= j.buttons
	}
	if selectDpad {
		nibble &= j.dpad
	}
	return result | nibble
}

// Write updates the group-select bits. Group-select writes never raise an
// interrupt on their own.
func (j *Joypad) Write(value uint8) {
	j.select_ = value & 0x30
}

// Press asserts the given key low. If this is a falling edge on a bit
// visible through the currently selected group(s), raises JOYPAD.
func (j *Joypad) Press(key Key, ic *interrupt.Controller) {
	before := j.Read() & 0x0F
	switch key {
	case Right:
		j.dpad = bit.Reset(0, j.dpad)
	case Left:
		j.dpad = bit.Reset(1, j.dpad)
	case Up:
		j.dpad = bit.Reset(2, j.dpad)
	case Down:
		j.dpad = bit.Reset(3, j.dpad)
	case A:
		j.buttons = bit.Reset(0, j.buttons)
	case B:
		j.buttons = bit.Reset(1, j.buttons)
	case Select:
		j.buttons = bit.Reset(2, j.buttons)
	case Start:
		j.buttons = bit.Reset(3, j.buttons)
	}
	after := j.Read() & 0x0F
	if before != 0 && after != before {
		ic.Raise(interrupt.Joypad)
	}
}

// Release deasserts the given key.
func (j *Joypad) Release(key Key) {
	switch key {
	case Right:
		j.dpad = bit.Set(0, j.dpad)
	case Left:
		j.dpad = bit.Set(1, j.dpad)
	case Up:
		j.dpad = bit.Set(2, j.dpad)
	case Down:
		j.dpad = bit.Set(3, j.dpad)
	case A:
		j.buttons = bit.Set(0, j.buttons)
	case B:
		j.buttons = bit.Set(1, j.buttons)
	case Select:
		j.buttons = bit.Set(2, j.buttons)
	case Start:
		j.buttons = bit.Set(3, j.buttons)
	}
}
