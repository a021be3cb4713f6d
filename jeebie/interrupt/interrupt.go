// Package interrupt implements the Game Boy interrupt controller: the
// master-enable flag (IME) plus the request (IF) and enable (IE) bitmasks,
// and the arbitration of which pending interrupt gets serviced next.
package interrupt

// Kind identifies one of the five interrupt sources, ordered by hardware
// priority from highest to lowest.
type Kind uint8

const (
	VBlank Kind = iota
	LCD
	Timer
	Serial
	Joypad
)

// Vector is the fixed ISR entry address for each interrupt kind.
var Vector = map[Kind]uint16{
	VBlank: 0x40,
	LCD:    0x48,
	Timer:  0x50,
	Serial: 0x58,
	Joypad: 0x60,
}

// Bit is the position of each interrupt's flag within IF/IE.
var Bit = map[Kind]uint8{
	VBlank: 0,
	LCD:    1,
	Timer:  2,
	Serial: 3,
	Joypad: 4,
}

// requestMask covers the five meaningful bits of IF; the upper three bits
// always read as one.
const requestMask = 0x1F

// dispatchOrder is VBLANK-first per spec: when more than one interrupt is
// latched in the same dispatch window, the CPU services them in this order,
// which is also the IF/IE bit order (bit 0 first).
var dispatchOrder = [5]Kind{VBlank, LCD, Timer, Serial, Joypad}

// Controller holds IME/IF/IE and arbitrates dispatch.
type Controller struct {
	ime     bool
	request uint8
	enable  uint8
}

// New returns a controller in its post-boot-ROM state: IME cleared, IF
// holding its documented reset value (0xE1, i.e. VBlank+bit0 and the
// always-one upper bits already set), IE cleared.
func New() *Controller {
	return &Controller{
		ime:     false,
		request: 0xE1,
		enable:  0x00,
	}
}

// Reset restores the controller to its post-boot-ROM state.
func (c *Controller) Reset() {
	c.ime = false
	c.request = 0xE1
	c.enable = 0x00
}

// IME reports whether the master-enable flag is set.
func (c *Controller) IME() bool { return c.ime }

// SetIME sets the master-enable flag.
func (c *Controller) SetIME(v bool) { c.ime = v }

// IF returns the request byte with the upper three bits forced to one.
func (c *Controller) IF() uint8 { return c.request | 0xE0 }

// WriteIF overwrites the request byte; the upper bits are forced to one on
// read, not on write, matching the documented register behavior.
func (c *Controller) WriteIF(v uint8) { c.request = v & requestMask }

// IE returns the enable byte.
func (c *Controller) IE() uint8 { return c.enable }

// WriteIE overwrites the enable byte.
func (c *Controller) WriteIE(v uint8) { c.enable = v }

// Raise sets the request bit for the given interrupt kind.
func (c *Controller) Raise(k Kind) {
	c.request |= 1 << Bit[k]
}

// Serve clears the request bit for the given interrupt kind.
func (c *Controller) Serve(k Kind) {
	c.request &^= 1 << Bit[k]
}

// Pending reports whether any enabled interrupt is currently requested,
// irrespective of IME.
func (c *Controller) Pending() bool {
	return (c.enable & c.request & requestMask) != 0
}

// ShouldDispatch reports whether the CPU should enter interrupt servicing:
// IME set and at least one enabled interrupt requested.
func (c *Controller) ShouldDispatch() bool {
	return c.ime && c.Pending()
}

// Dispatch clears IME and returns, in VBLANK-first scan order, the vectors
// of every interrupt that is both enabled and requested at the moment of
// the call. The CPU is expected to service these back-to-back within one
// dispatch episode, clearing each IF bit as it does (via Serve).
func (c *Controller) Dispatch() []uint16 {
	c.ime = false
	var vectors []uint16
	pending := c.enable & c.request & requestMask
	for _, k := range dispatchOrder {
		if pending&(1<<Bit[k]) != 0 {
			vectors = append(vectors, Vector[k])
		}
	}
	return vectors
}

// KindForVector maps an ISR vector address back to its Kind, for the CPU to
// call Serve with once it has pushed PC and jumped.
func KindForVector(v uint16) (Kind, bool) {
	for k, vec := range Vector {
		if vec == v {
			return k, true
		}
	}
	return 0, false
}
