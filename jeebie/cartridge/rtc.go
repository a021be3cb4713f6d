package cartridge

// TimeSource abstracts the host wall clock so the RTC can be driven
// deterministically in tests, per the "RTC wall-clock source" design note:
// this is the one place the core reads real time, and it is isolated behind
// an interface so the rest of the core stays pure.
type TimeSource interface {
	// NowUnix returns the current time as seconds since the Unix epoch.
	NowUnix() int64
}

// rtcRegisters holds the five RTC counter registers shared by the live and
// latched register sets.
type rtcRegisters struct {
	seconds  uint8
	minutes  uint8
	hours    uint8
	daysLo   uint8
	dayCarry bool
	halt     bool
}

func (r rtcRegisters) days() int {
	return int(r.daysLo) // high bit of day counter lives in dayHi flags byte
}

// RTC models the MBC3 real-time clock: live registers that accumulate
// elapsed wall-clock time (unless halted), a latched snapshot taken on a
// rising edge of the latch port, and a wall-clock anchor used to replay
// elapsed time across save/load.
type RTC struct {
	live    rtcRegisters
	dayHi   uint8 // bit 0: day counter bit 8; bit 6: halt; bit 7: day carry
	latched rtcRegisters
	latchedDayHi uint8

	lastLatchWrite uint8
	anchor         int64 // seconds since epoch, set at construction/load
	source         TimeSource
}

func newRTC(source TimeSource) *RTC {
	return &RTC{source: source, anchor: source.NowUnix()}
}

// catchUp folds elapsed wall-clock time (since the last catch-up or since
// the anchor was set) into the live registers, cascading
// seconds->minutes->hours->days with a 9-bit day counter and carry flag.
// Per SPEC_FULL §13.3 this does not run while halt is set.
func (r *RTC) catchUp() {
	if r.live.halt {
		return
	}
	now := r.source.NowUnix()
	elapsed := now - r.anchor
	if elapsed <= 0 {
		r.anchor = now
		return
	}
	r.anchor = now

	total := int64(r.live.seconds) + elapsed
	r.live.seconds = uint8(total % 60)
	total /= 60
	total += int64(r.live.minutes)
	r.live.minutes = uint8(total % 60)
	total /= 60
	total += int64(r.live.hours)
	r.live.hours = uint8(total % 24)
	total /= 24
	days := int64(r.dayCounter()) + total
	if days > 0x1FF {
		r.dayHi |= 0x80
		days &= 0x1FF
	}
	r.live.daysLo = uint8(days & 0xFF)
	if days&0x100 != 0 {
		r.dayHi |= 0x01
	} else {
		r.dayHi &^= 0x01
	}
}

func (r *RTC) dayCounter() int {
	hi := 0
	if r.dayHi&0x01 != 0 {
		hi = 1
	}
	return (hi << 8) | int(r.live.daysLo)
}

// latch snapshots the live registers (after folding in elapsed time) into
// the latched set.
func (r *RTC) latch() {
	r.catchUp()
	r.latched = r.live
	r.latchedDayHi = r.dayHi
}

// ObserveLatchWrite detects the rising edge on the 0x6000..0x7FFF latch
// port (write 0x00 then 0x01) and latches on it.
func (r *RTC) ObserveLatchWrite(val uint8) {
	if r.lastLatchWrite == 0x00 && val == 0x01 {
		r.latch()
	}
	r.lastLatchWrite = val
}

// ReadLatched reads one of the 5 RTC registers (select 0x08..0x0C) from the
// latched snapshot.
func (r *RTC) ReadLatched(sel uint8) uint8 {
	switch sel {
	case 0x08:
		return r.latched.seconds
	case 0x09:
		return r.latched.minutes
	case 0x0A:
		return r.latched.hours
	case 0x0B:
		return r.latched.daysLo
	case 0x0C:
		return r.latchedDayHi
	default:
		return 0xFF
	}
}

// WriteLive writes one of the 5 RTC registers on the live set.
func (r *RTC) WriteLive(sel uint8, val uint8) {
	r.catchUp()
	switch sel {
	case 0x08:
		r.live.seconds = val % 60
	case 0x09:
		r.live.minutes = val % 60
	case 0x0A:
		r.live.hours = val % 24
	case 0x0B:
		r.live.daysLo = val
	case 0x0C:
		r.dayHi = val & 0xC1
		r.live.halt = val&0x40 != 0
	}
}

// rtcSaveSize is the serialized size: 5 live + 5 latched registers at
// stride 4, plus an 8-byte little-endian anchor.
const rtcSaveSize = 5*4 + 5*4 + 8

func (r *RTC) marshal() []byte {
	r.catchUp()
	buf := make([]byte, rtcSaveSize)
	writeReg := func(off int, regs rtcRegisters, dayHi uint8) {
		buf[off] = regs.seconds
		buf[off+4] = regs.minutes
		buf[off+8] = regs.hours
		buf[off+12] = regs.daysLo
		buf[off+16] = dayHi
	}
	writeReg(0, r.live, r.dayHi)
	writeReg(20, r.latched, r.latchedDayHi)
	anchor := uint64(r.anchor)
	for i := 0; i < 8; i++ {
		buf[40+i] = byte(anchor >> (8 * i))
	}
	return buf
}

func (r *RTC) unmarshal(buf []byte) {
	if len(buf) < rtcSaveSize {
		// RTC buffer truncation: soft-recover by resetting the anchor to
		// "now" and keeping whatever live/latched state was already set.
		r.anchor = r.source.NowUnix()
		return
	}
	readReg := func(off int) (rtcRegisters, uint8) {
		return rtcRegisters{
			seconds: buf[off],
			minutes: buf[off+4],
			hours:   buf[off+8],
			daysLo:  buf[off+12],
			halt:    buf[off+16]&0x40 != 0,
		}, buf[off+16]
	}
	r.live, r.dayHi = readReg(0)
	r.latched, r.latchedDayHi = readReg(20)
	var anchor uint64
	for i := 0; i < 8; i++ {
		anchor |= uint64(buf[40+i]) << (8 * i)
	}
	r.anchor = int64(anchor)
	r.catchUp()
}
