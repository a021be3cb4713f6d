package cpu

import (
	"github.com/valerio/go-jeebie/jeebie/interrupt"
	"github.com/valerio/go-jeebie/jeebie/memory"
)

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// CpuState names the microcode phase Advance is currently driving. Advance's
// own control flow never switches on it; it exists so a debugger or
// disassembler polling between Advance calls can tell a fetch apart from a
// push, a halted no-op or an interrupt dispatch.
type CpuState int

const (
	StateFetching CpuState = iota
	StateExecuting
	StateServicingInterrupts
	StateHalted
	StateStopped
	StateHdmaHalted
)

func (s CpuState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateExecuting:
		return "executing"
	case StateServicingInterrupts:
		return "servicing-interrupts"
	case StateHalted:
		return "halted"
	case StateStopped:
		return "stopped"
	case StateHdmaHalted:
		return "hdma-halted"
	default:
		return "unknown"
	}
}

// busOpKind tags a single bus access an opcode closure makes while it runs
// under Advance, so the driver can both service it and report a precise
// CpuState while the instruction is mid-flight.
type busOpKind int

const (
	busOpReadArg busOpKind = iota
	busOpReadMemory
	busOpWriteMemory
	busOpPushHi
	busOpPushLo
	busOpPopHi
	busOpPopLo
	busOpIdle
)

type busOp struct {
	kind  busOpKind
	addr  uint16
	value uint8
}

// CPU is the main struct holding Sharp LR35902 state. Registers are kept as
// flat byte/word fields rather than wrapped Register8/Register16 pairs -
// every opcode and instruction combinator in this package addresses them
// directly (cpu.a, cpu.h, cpu.sp, ...).
type CPU struct {
	a, b, c, d, e, f, h, l uint8
	sp, pc                 uint16

	bus *memory.Bus
	ic  *interrupt.Controller

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool

	halted  bool
	haltBug bool
	stopped bool

	hdmaHalted bool

	cycles uint64

	state CpuState

	// gated is true while an opcode closure or the interrupt dispatch routine
	// is running on its own goroutine under Advance: every bus access it
	// makes is routed through busReq/busResp instead of touching the bus
	// directly, so Advance can let exactly one through per call. Helpers
	// called directly and synchronously, as this package's unit tests do,
	// see gated == false and hit the bus immediately with no goroutine
	// involved.
	gated      bool
	busOpCount int
	busReq     chan busOp
	busResp    chan uint8
	done       chan int

	inFlight             bool
	fetchingCB           bool
	dispatchingInterrupt bool
}

// New returns a CPU wired to bus, at the standard post-boot-ROM register
// state (equivalent to the state left behind by the Nintendo boot ROM).
func New(bus *memory.Bus) *CPU {
	c := &CPU{bus: bus}
	if bus != nil {
		c.ic = bus.Interrupts()
	}
	c.Reset()
	return c
}

// Reset restores the post-boot-ROM register state.
func (c *CPU) Reset() {
	c.a, c.f = 0x01, 0xB0
	c.b, c.c = 0x00, 0x13
	c.d, c.e = 0x00, 0xD8
	c.h, c.l = 0x01, 0x4D
	c.sp = 0xFFFE
	c.pc = 0x0100
	c.interruptsEnabled = false
	c.eiPending = false
	c.halted = false
	c.haltBug = false
	c.stopped = false
	c.hdmaHalted = false
	c.cycles = 0
	c.state = StateFetching
	c.gated = false
	c.busOpCount = 0
	c.busReq = nil
	c.busResp = nil
	c.done = nil
	c.inFlight = false
	c.fetchingCB = false
	c.dispatchingInterrupt = false
}

// PC, SP expose the program counter and stack pointer for disassembler and
// debugger consumers.
func (c *CPU) PC() uint16 { return c.pc }
func (c *CPU) SP() uint16 { return c.sp }

// A, F, B, C, D, E, H, L expose the individual 8-bit registers for debug
// snapshots; opcode/instruction code addresses the fields directly instead.
func (c *CPU) A() uint8 { return c.a }
func (c *CPU) F() uint8 { return c.f }
func (c *CPU) B() uint8 { return c.b }
func (c *CPU) C() uint8 { return c.c }
func (c *CPU) D() uint8 { return c.d }
func (c *CPU) E() uint8 { return c.e }
func (c *CPU) H() uint8 { return c.h }
func (c *CPU) L() uint8 { return c.l }

// IME reports whether interrupts are currently enabled.
func (c *CPU) IME() bool { return c.interruptsEnabled }

// IsHalted, IsStopped report the CPU's low-power states.
func (c *CPU) IsHalted() bool  { return c.halted }
func (c *CPU) IsStopped() bool { return c.stopped }

// IsHdmaHalted reports whether the System has parked the CPU for an active
// HBlank-mode HDMA block transfer.
func (c *CPU) IsHdmaHalted() bool { return c.hdmaHalted }

// SetHdmaHalted is called by the System orchestrator once per HDMA block
// boundary, per the CGB HDMA/CPU interaction in the master tick loop.
func (c *CPU) SetHdmaHalted(v bool) { c.hdmaHalted = v }

// Cycles returns the cumulative T-cycle count executed since the last Reset.
func (c *CPU) Cycles() uint64 { return c.cycles }

// State reports the microcode phase the last Advance call left the CPU in.
func (c *CPU) State() CpuState { return c.state }

// IsIntermediate reports whether the CPU is mid instruction: waiting on the
// second byte of a CB-prefixed opcode, or running an opcode/interrupt
// dispatch whose goroutine hasn't reached its final bus event yet. A driver
// that wants whole-instruction semantics keeps calling Advance while this is
// true.
func (c *CPU) IsIntermediate() bool {
	return c.inFlight || c.fetchingCB
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

// Advance runs exactly one master cycle of CPU microcode and touches the
// bus at most once while doing so. A single machine instruction, CB fetch or
// interrupt dispatch spans several consecutive Advance calls; IsIntermediate
// reports whether more calls are still owed before the CPU is back to a
// plain fetch boundary. This is the method the system tick loop drives, one
// call per master cycle, interleaved with the timer, PPU and DMA advances
// that share that same clock.
func (c *CPU) Advance() {
	if c.inFlight {
		c.resumeInstruction()
		return
	}

	if c.hdmaHalted {
		c.state = StateHdmaHalted
		return
	}

	if c.stopped {
		if c.ic.Pending() {
			c.stopped = false
		} else {
			c.state = StateStopped
			return
		}
	}

	if c.halted {
		if !c.ic.Pending() {
			c.state = StateHalted
			c.cycles += 4
			return
		}

		c.halted = false
		if c.interruptsEnabled {
			c.startInterruptDispatch()
			return
		}

		// IME is clear: the CPU wakes without servicing anything, and the
		// fetch that follows re-reads the same PC (the halt bug).
		c.haltBug = true
		c.startFetch()
		return
	}

	if c.ic.Pending() && c.interruptsEnabled {
		c.startInterruptDispatch()
		return
	}

	c.startFetch()
}

// Clock runs Advance until the instruction, CB fetch or interrupt dispatch
// that it starts has fully completed. It exists for callers that want
// whole-instruction semantics - standalone CPU unit tests, mainly - rather
// than driving one master cycle at a time themselves.
func (c *CPU) Clock() int {
	before := c.cycles
	c.Advance()
	for c.IsIntermediate() {
		c.Advance()
	}
	return int(c.cycles - before)
}

// Tick is Clock under the name this package used before Advance existed.
func (c *CPU) Tick() int {
	return c.Clock()
}

// startFetch reads the opcode byte at PC - the one bus touch this Advance
// call is allowed - and either launches it directly, or, for the CB prefix,
// marks the CPU as waiting on a second fetch byte before it can dispatch.
func (c *CPU) startFetch() {
	c.state = StateFetching
	opcode := uint16(c.bus.Read(c.pc))

	if c.haltBug {
		c.haltBug = false
	} else {
		c.pc++
	}

	c.inFlight = true
	c.currentOpcode = opcode

	if opcode == 0xCB {
		c.fetchingCB = true
		return
	}

	c.launchOpcode(opcode, 1)
}

// completeCBFetch reads the CB sub-opcode byte and launches it in the same
// call: the two fetch bytes of a CB instruction occupy two Advance calls
// between them (startFetch, then this), matching the two M-cycles real
// hardware spends reading them.
func (c *CPU) completeCBFetch() {
	sub := uint16(c.bus.Read(c.pc))
	c.pc++

	opcode := 0xCB00 | sub
	c.currentOpcode = opcode
	c.fetchingCB = false

	c.launchOpcode(opcode, 2)
}

// launchOpcode starts fn on its own goroutine, gated so every bus touch it
// makes blocks until Advance lets it through, then services the first event
// that goroutine produces before returning.
func (c *CPU) launchOpcode(opcode uint16, fetchSlots int) {
	c.state = StateExecuting
	fn := decode(opcode)

	c.busOpCount = 0
	c.gated = true
	c.busReq = make(chan busOp)
	c.busResp = make(chan uint8)
	c.done = make(chan int, 1)

	go c.runOpcode(fn, fetchSlots)

	c.awaitNextEvent()
}

// startInterruptDispatch services the highest-priority pending, enabled
// interrupt: clears IME, pushes PC and jumps to the vector, over the same
// goroutine/channel machinery an opcode runs under. The caller has already
// established that an interrupt is pending and IME is set.
func (c *CPU) startInterruptDispatch() {
	c.state = StateServicingInterrupts

	vectors := c.ic.Dispatch()
	vector := vectors[0]
	if k, ok := interrupt.KindForVector(vector); ok {
		c.ic.Serve(k)
	}
	c.interruptsEnabled = false

	c.inFlight = true
	c.dispatchingInterrupt = true
	c.busOpCount = 0
	c.gated = true
	c.busReq = make(chan busOp)
	c.busResp = make(chan uint8)
	c.done = make(chan int, 1)

	go c.runInterruptDispatch(vector)

	c.awaitNextEvent()
}

// runInterruptDispatch is the interrupt-service sequence run on its own
// goroutine: two idle M-cycles and the two-byte push of PC, after which PC
// is set to the vector; the Advance call that collects completion is the
// fifth M-cycle, for 5 M-cycles (20 T-cycles) total.
func (c *CPU) runInterruptDispatch(vector uint16) {
	c.doBusOp(busOp{kind: busOpIdle})
	c.doBusOp(busOp{kind: busOpIdle})
	c.pushStack(c.pc)
	c.pc = vector
	c.done <- 20
}

// runOpcode runs fn to completion on its own goroutine. fn's return value is
// its total T-cycle cost, trusted from the closure itself; the difference
// between that cost and the M-cycles already spent on fetching and on real
// bus touches is padded out with idle gate round-trips, so that the total
// number of Advance calls this instruction consumes always matches its real
// M-cycle count without needing fn's internal bus-touch shape known in
// advance.
func (c *CPU) runOpcode(fn Opcode, fetchSlots int) {
	total := fn(c)

	idle := total/4 - fetchSlots - c.busOpCount
	for i := 0; i < idle; i++ {
		c.doBusOp(busOp{kind: busOpIdle})
	}

	c.done <- total
}

// resumeInstruction is Advance's entry point while inFlight is set: either
// the CB second byte is still owed, or an opcode/dispatch goroutine is
// waiting on its next event.
func (c *CPU) resumeInstruction() {
	if c.fetchingCB {
		c.completeCBFetch()
		return
	}
	c.awaitNextEvent()
}

// awaitNextEvent services exactly one event from the running goroutine: a
// single gated bus op, or its completion signal. This is what keeps each
// Advance call to at most one bus touch while an instruction is mid-flight.
func (c *CPU) awaitNextEvent() {
	select {
	case op := <-c.busReq:
		c.serviceBusOp(op)
	case total := <-c.done:
		c.finishInstruction(total)
	}
}

func (c *CPU) serviceBusOp(op busOp) {
	switch op.kind {
	case busOpWriteMemory, busOpPushHi, busOpPushLo:
		c.bus.Write(op.addr, op.value)
		c.busResp <- 0
	case busOpIdle:
		c.busResp <- 0
	default:
		c.busResp <- c.bus.Read(op.addr)
	}
}

func (c *CPU) finishInstruction(total int) {
	c.cycles += uint64(total)

	c.inFlight = false
	c.gated = false
	c.busReq = nil
	c.busResp = nil
	c.done = nil
	c.state = StateFetching

	if c.dispatchingInterrupt {
		c.dispatchingInterrupt = false
		return
	}

	if c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}
}

// doBusOp is the single gate every opcode and instruction-combinator bus
// access funnels through. With gated set it blocks on busReq/busResp so
// Advance can service it one at a time; otherwise (direct, synchronous
// calls - this package's own unit tests call helpers like pushStack and
// popStack this way) it hits the bus immediately.
func (c *CPU) doBusOp(op busOp) uint8 {
	if !c.gated {
		switch op.kind {
		case busOpWriteMemory, busOpPushHi, busOpPushLo:
			c.bus.Write(op.addr, op.value)
			return 0
		case busOpIdle:
			return 0
		default:
			return c.bus.Read(op.addr)
		}
	}

	c.busOpCount++
	c.busReq <- op
	return <-c.busResp
}
