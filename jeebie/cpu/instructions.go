package cpu

import "github.com/valerio/go-jeebie/jeebie/bit"

func (c *CPU) pushStack(r uint16) {
	c.sp--
	c.doBusOp(busOp{kind: busOpPushLo, addr: c.sp, value: bit.Low(r)})
	c.sp--
	c.doBusOp(busOp{kind: busOpPushHi, addr: c.sp, value: bit.High(r)})
}

func (c *CPU) popStack() uint16 {
	high := c.doBusOp(busOp{kind: busOpPopHi, addr: c.sp})
	c.sp++
	low := c.doBusOp(busOp{kind: busOpPopLo, addr: c.sp})
	c.sp++

	return bit.Combine(high, low)
}

// readBus and writeBus are the gated memory access opcodes use; every direct
// bus touch a primary or CB-prefixed opcode makes goes through one of these
// instead of c.bus directly, so it counts toward the instruction's idle-cycle
// accounting and, under Advance, blocks until its turn.
func (c *CPU) readBus(addr uint16) uint8 {
	return c.doBusOp(busOp{kind: busOpReadMemory, addr: addr})
}

func (c *CPU) writeBus(addr uint16, v uint8) {
	c.doBusOp(busOp{kind: busOpWriteMemory, addr: addr, value: v})
}

func (c *CPU) inc(r *uint8) {
	*r++
	value := *r

	c.setFlagToCondition(zeroFlag, value == 0)
	c.setFlagToCondition(halfCarryFlag, (value&0xF) == 0)
	c.resetFlag(subFlag)
}

func (c *CPU) dec(r *uint8) {
	*r--
	value := *r

	c.setFlagToCondition(zeroFlag, value == 0)
	c.setFlagToCondition(halfCarryFlag, (value&0xF) == 0xF)
	c.setFlag(subFlag)
}

func (c *CPU) rlc(r *uint8) {
	value := *r

	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value << 1) | (value >> 7)
	*r = value
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
}

func (c *CPU) rl(r *uint8) {
	value := *r
	carry := c.flagToBit(carryFlag)

	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value << 1) | carry
	*r = value
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
}

func (c *CPU) rrc(r *uint8) {
	value := *r

	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value >> 1) | ((value & 1) << 7)
	*r = value
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
}

func (c *CPU) rr(r *uint8) {
	value := *r
	carry := c.flagToBit(carryFlag) << 7

	c.setFlagToCondition(carryFlag, value&0x01 != 0)
	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value >> 1) | carry
	*r = value
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
}

// addToA sets the result of adding an 8 bit register to A, while setting all relevant flags.
func (c *CPU) addToA(value uint8) {
	a := c.a
	result := a + value

	carry := (uint16(a) + uint16(value)) > 0xFF
	halfCarry := (a&0xF)+(value&0xF) > 0xF

	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	c.a = result
}

// addToHL sets the result of adding a 16 bit register to HL, while setting relevant flags.
func (c *CPU) addToHL(reg uint16) {
	hl := bit.Combine(c.h, c.l)
	result := hl + reg

	carry := (uint32(hl) + uint32(reg)) > 0xFFFF
	halfCarry := (hl&0xFFF)+(reg&0xFFF) > 0xFFF

	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	c.h = bit.High(result)
	c.l = bit.Low(result)
}

// sub will subtract the value from register A and set all relevant flags.
func (c *CPU) sub(value uint8) {
	a := c.a
	c.a = a - value

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, a < value)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF) < 0)
}

// sbc will subtract the value and carry (1 if set, 0 otherwise) from the register A.
func (c *CPU) sbc(value uint8) {
	a := c.a
	carry := 0
	if c.isSetFlag(carryFlag) {
		carry = 1
	}

	result := int(c.a) - int(value) - carry
	c.a = uint8(result)

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, result < 0)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF)-carry < 0)
}

func (c *CPU) and(value uint8) {
	c.a &= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(halfCarryFlag)
}

func (c *CPU) or(value uint8) {
	c.a |= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) xor(value uint8) {
	c.a ^= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

// jr performs a relative jump using the signed immediate byte. The operand
// is consumed (PC already moved past it by readImmediate) before the offset
// is applied.
func (c *CPU) jr() {
	offset := int8(c.readImmediate())
	c.pc = uint16(int32(c.pc) + int32(offset))
}

// jp performs an absolute jump using the immediate word.
func (c *CPU) jp() {
	c.pc = c.readImmediateWord()
}

// readImmediate reads the byte at PC and advances PC past it.
func (c *CPU) readImmediate() uint8 {
	value := c.doBusOp(busOp{kind: busOpReadArg, addr: c.pc})
	c.pc++
	return value
}

// readImmediateWord reads the little-endian word at PC and advances PC past it.
func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return bit.Combine(high, low)
}

// readSignedImmediate reads the byte at PC as a signed offset and advances PC past it.
func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

func (c *CPU) getBC() uint16 { return bit.Combine(c.b, c.c) }
func (c *CPU) setBC(value uint16) {
	c.b = bit.High(value)
	c.c = bit.Low(value)
}

func (c *CPU) getDE() uint16 { return bit.Combine(c.d, c.e) }
func (c *CPU) setDE(value uint16) {
	c.d = bit.High(value)
	c.e = bit.Low(value)
}

func (c *CPU) getHL() uint16 { return bit.Combine(c.h, c.l) }
func (c *CPU) setHL(value uint16) {
	c.h = bit.High(value)
	c.l = bit.Low(value)
}

func (c *CPU) getAF() uint16 { return bit.Combine(c.a, c.f) }
func (c *CPU) setAF(value uint16) {
	c.a = bit.High(value)
	c.f = bit.Low(value) & 0xF0
}

// adc adds value and the carry flag to register A, setting all relevant flags.
func (c *CPU) adc(value uint8) {
	a := c.a
	carry := c.flagToBit(carryFlag)
	result := uint16(a) + uint16(value) + uint16(carry)
	halfCarry := (a&0xF)+(value&0xF)+carry > 0xF

	c.a = uint8(result)

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, result > 0xFF)
	c.setFlagToCondition(halfCarryFlag, halfCarry)
}

// cp compares value against register A, setting flags as sub would, without
// writing the result back to A.
func (c *CPU) cp(value uint8) {
	a := c.a
	result := a - value

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, a < value)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF) < 0)
}

// daa adjusts register A to valid packed BCD after an add or subtract,
// following the N/H/C flags left by that operation.
func (c *CPU) daa() {
	a := c.a
	carry := c.isSetFlag(carryFlag)
	var adjust uint8

	if c.isSetFlag(subFlag) {
		if c.isSetFlag(halfCarryFlag) {
			adjust |= 0x06
		}
		if carry {
			adjust |= 0x60
		}
		a -= adjust
	} else {
		if c.isSetFlag(halfCarryFlag) || (a&0xF) > 9 {
			adjust |= 0x06
		}
		if carry || a > 0x99 {
			adjust |= 0x60
			carry = true
		}
		a += adjust
	}

	c.a = a
	c.setFlagToCondition(zeroFlag, a == 0)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, carry)
}

// bit tests bit idx of value, setting Z to its inverse, clearing N and
// setting H; C is left untouched.
func (c *CPU) bit(idx uint8, value uint8) {
	c.setFlagToCondition(zeroFlag, !bit.IsSet(idx, value))
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

// set sets bit idx of *r in place.
func (c *CPU) set(idx uint8, r *uint8) {
	*r = bit.Set(idx, *r)
}

// res clears bit idx of *r in place.
func (c *CPU) res(idx uint8, r *uint8) {
	*r = bit.Reset(idx, *r)
}

// swap exchanges the high and low nibbles of *r.
func (c *CPU) swap(r *uint8) {
	value := *r
	*r = (value << 4) | (value >> 4)

	c.setFlagToCondition(zeroFlag, *r == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
}

// sla shifts *r left by one, shifting 0 into bit 0 and the old bit 7 into carry.
func (c *CPU) sla(r *uint8) {
	value := *r
	c.setFlagToCondition(carryFlag, value&0x80 != 0)

	value <<= 1
	*r = value

	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

// sra shifts *r right by one, preserving bit 7 and shifting the old bit 0 into carry.
func (c *CPU) sra(r *uint8) {
	value := *r
	msb := value & 0x80
	c.setFlagToCondition(carryFlag, value&0x01 != 0)

	value = (value >> 1) | msb
	*r = value

	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

// srl shifts *r right by one, shifting 0 into bit 7 and the old bit 0 into carry.
func (c *CPU) srl(r *uint8) {
	value := *r
	c.setFlagToCondition(carryFlag, value&0x01 != 0)

	value >>= 1
	*r = value

	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}
