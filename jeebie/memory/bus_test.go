package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusWRAMBank0Fixed(t *testing.T) {
	b := New(true)

	b.Write(0xC010, 0x42)
	assert.Equal(t, byte(0x42), b.Read(0xC010))
}

func TestBusWRAMBankingCGB(t *testing.T) {
	b := New(true)

	b.writeIO(0xFF70, 2)
	b.Write(0xD000, 0xAA)

	b.writeIO(0xFF70, 3)
	b.Write(0xD000, 0xBB)

	b.writeIO(0xFF70, 2)
	assert.Equal(t, byte(0xAA), b.Read(0xD000))

	b.writeIO(0xFF70, 3)
	assert.Equal(t, byte(0xBB), b.Read(0xD000))
}

func TestBusWRAMBankZeroReadsBackAsOne(t *testing.T) {
	b := New(true)

	b.writeIO(0xFF70, 1)
	b.Write(0xD000, 0x11)

	b.writeIO(0xFF70, 2)
	b.Write(0xD000, 0x22)

	// SVBK=0 aliases to bank 1, not a distinct bank 0.
	b.writeIO(0xFF70, 0)
	assert.Equal(t, byte(0x11), b.Read(0xD000))
}

func TestBusDMGIgnoresWRAMBankSwitch(t *testing.T) {
	b := New(false)

	b.Write(0xD000, 0x55)
	b.writeIO(0xFF70, 5)
	assert.Equal(t, byte(0x55), b.Read(0xD000))
}

func TestBusEchoRAMMirrorsWRAM(t *testing.T) {
	b := New(false)

	b.Write(0xC005, 0x77)
	assert.Equal(t, byte(0x77), b.Read(0xE005))

	b.Write(0xE006, 0x88)
	assert.Equal(t, byte(0x88), b.Read(0xC006))
}

func TestBusUnusableOAMRegionReadsFF(t *testing.T) {
	b := New(false)
	assert.Equal(t, byte(0xFF), b.Read(0xFEA0))
}

func TestBusHRAMReadWrite(t *testing.T) {
	b := New(false)

	b.Write(0xFFA0, 0x99)
	assert.Equal(t, byte(0x99), b.Read(0xFFA0))
}

func TestBusInterruptEnableRegister(t *testing.T) {
	b := New(false)

	b.Write(0xFFFF, 0x1F)
	assert.Equal(t, byte(0x1F), b.Read(0xFFFF))
}

func TestBusReadBit(t *testing.T) {
	b := New(false)

	b.Write(0xFFA0, 0b0000_0100)
	assert.True(t, b.ReadBit(2, 0xFFA0))
	assert.False(t, b.ReadBit(0, 0xFFA0))
}

func TestBusDMARestrictsReadsToHRAM(t *testing.T) {
	b := New(false)

	b.Write(0xC000, 0x01)
	b.Write(0xFF80, 0x02)

	b.writeIO(0xFF46, 0xC0) // trigger OAM DMA from page 0xC000
	b.AdvanceDMA()          // triggered -> waiting
	b.AdvanceDMA()          // waiting -> running
	assert.True(t, b.dma.active())

	// While DMA is running, reads outside HRAM (source page included) return 0xFF.
	assert.Equal(t, byte(0xFF), b.Read(0x0000))
	assert.Equal(t, byte(0x02), b.Read(0xFF80))
	assert.Equal(t, byte(0xFF), b.Read(0xC000))
}

func TestBusResetRestoresPostBootState(t *testing.T) {
	b := New(true)

	b.Write(0xC000, 0x42)
	b.Write(0xFF80, 0x42)
	b.writeIO(0xFF70, 4)

	b.Reset()

	assert.Equal(t, byte(0), b.Read(0xC000))
	assert.Equal(t, byte(0), b.Read(0xFF80))
	assert.Equal(t, byte(1|0xF8), b.Read(0xFF70))
}
