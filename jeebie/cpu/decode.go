package cpu

// Decode peeks the opcode at PC without consuming it, recording it on
// currentOpcode (0xCBxx for CB-prefixed opcodes, plain byte otherwise) and
// returning the function that implements it. Decode leaves PC unchanged;
// moving PC past the opcode is left to the caller.
func Decode(c *CPU) Opcode {
	b := c.bus.Read(c.pc)
	if b == 0xCB {
		sub := c.bus.Read(c.pc + 1)
		c.currentOpcode = 0xCB00 | uint16(sub)
	} else {
		c.currentOpcode = uint16(b)
	}
	return decode(c.currentOpcode)
}
