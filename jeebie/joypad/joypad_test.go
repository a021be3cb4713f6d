package joypad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valerio/go-jeebie/jeebie/interrupt"
)

func TestInitialState(t *testing.T) {
	j := New()
	assert.Equal(t, uint8(0xFF), j.Read())
}

func TestSelectDirectional(t *testing.T) {
	j := New()
	j.Write(0x20) // select dpad (bit4 low)
	assert.Equal(t, uint8(0xEF), j.Read())
}

func TestPressAndReleaseButtons(t *testing.T) {
	j := New()
	ic := interrupt.New()
	j.Write(0x10) // select buttons (bit5 low)

	j.Press(A, ic)
	assert.Equal(t, uint8(0xDE), j.Read())

	j.Release(A)
	assert.Equal(t, uint8(0xDF), j.Read())
}

func TestPressAndReleaseDirectional(t *testing.T) {
	j := New()
	ic := interrupt.New()
	j.Write(0x20)

	j.Press(Up, ic)
	assert.Equal(t, uint8(0xEB), j.Read())

	j.Release(Up)
	assert.Equal(t, uint8(0xEF), j.Read())
}

func TestNoKeyPressedWhenGroupNotSelected(t *testing.T) {
	j := New()
	ic := interrupt.New()
	j.Write(0x30) // neither group selected

	j.Press(A, ic)
	assert.Equal(t, uint8(0xFF), j.Read())
}

func TestPressingKeyRaisesInterrupt(t *testing.T) {
	j := New()
	ic := interrupt.New()
	ic.WriteIF(0)
	j.Write(0x10)

	j.Press(Start, ic)

	assert.True(t, ic.IF()&(1<<interrupt.Bit[interrupt.Joypad]) != 0)
}

func TestPressingKeyWhenGroupNotSelectedDoesNotRaiseInterrupt(t *testing.T) {
	j := New()
	ic := interrupt.New()
	ic.WriteIF(0)
	j.Write(0x30)

	j.Press(Start, ic)

	assert.True(t, ic.IF()&(1<<interrupt.Bit[interrupt.Joypad]) == 0)
}
