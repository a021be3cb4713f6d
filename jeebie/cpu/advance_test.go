package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valerio/go-jeebie/jeebie/memory"
)

// countAdvances drives cpu.Advance until the unit of work it started
// (instruction, CB fetch, or interrupt dispatch) completes, returning how
// many Advance calls it took.
func countAdvances(cpu *CPU) int {
	calls := 1
	cpu.Advance()
	for cpu.IsIntermediate() {
		cpu.Advance()
		calls++
	}
	return calls
}

func TestAdvanceNOPTakesOneMCycle(t *testing.T) {
	mmu := memory.New(false)
	cpu := New(mmu)
	cpu.pc = 0xC000
	mmu.Write(0xC000, 0x00) // NOP

	calls := countAdvances(cpu)

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint16(0xC001), cpu.pc)
	assert.Equal(t, uint64(4), cpu.cycles)
}

func TestAdvancePushTakesFourMCyclesOneBusTouchEach(t *testing.T) {
	mmu := memory.New(false)
	cpu := New(mmu)
	cpu.pc = 0xC000
	cpu.sp = 0xFFFE
	cpu.setBC(0xBEEF)
	mmu.Write(0xC000, 0xC5) // PUSH BC

	calls := countAdvances(cpu)

	assert.Equal(t, 4, calls)
	assert.Equal(t, uint16(0xFFFC), cpu.sp)
	assert.Equal(t, uint8(0xEF), mmu.Read(0xFFFD))
	assert.Equal(t, uint8(0xBE), mmu.Read(0xFFFC))
	assert.Equal(t, uint64(16), cpu.cycles)
}

func TestAdvanceCBPrefixedOpcodeFetchesPrefixAndOperandOnSeparateCalls(t *testing.T) {
	mmu := memory.New(false)
	cpu := New(mmu)
	cpu.pc = 0xC000
	cpu.b = 0x80
	mmu.Write(0xC000, 0xCB)
	mmu.Write(0xC001, 0x00) // RLC B

	cpu.Advance()
	assert.True(t, cpu.fetchingCB)
	assert.True(t, cpu.IsIntermediate())
	assert.Equal(t, uint16(0xC001), cpu.pc)

	cpu.Advance()
	assert.False(t, cpu.fetchingCB)
	assert.False(t, cpu.IsIntermediate())
	assert.Equal(t, uint16(0xC002), cpu.pc)
	assert.Equal(t, uint8(0x01), cpu.b)
	assert.True(t, cpu.isSetFlag(carryFlag))
}

func TestAdvanceCBMemoryOpcodeTakesFourMCycles(t *testing.T) {
	mmu := memory.New(false)
	cpu := New(mmu)
	cpu.pc = 0xC000
	cpu.setHL(0xD000)
	mmu.Write(0xD000, 0x80)
	mmu.Write(0xC000, 0xCB)
	mmu.Write(0xC001, 0x06) // RLC (HL)

	calls := countAdvances(cpu)

	assert.Equal(t, 4, calls)
	assert.Equal(t, uint8(0x01), mmu.Read(0xD000))
}

func TestAdvanceCallTakesSixMCycles(t *testing.T) {
	mmu := memory.New(false)
	cpu := New(mmu)
	cpu.pc = 0xC000
	cpu.sp = 0xFFFE
	mmu.Write(0xC000, 0xCD) // CALL a16
	mmu.Write(0xC001, 0x34)
	mmu.Write(0xC002, 0x12)

	calls := countAdvances(cpu)

	assert.Equal(t, 6, calls)
	assert.Equal(t, uint16(0x1234), cpu.pc)
	assert.Equal(t, uint16(0xFFFC), cpu.sp)
}
