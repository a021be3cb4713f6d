package cartridge

import (
	"log/slog"
	"time"
)

// systemClock is the default TimeSource, backing the RTC with the host wall
// clock. Tests inject a deterministic TimeSource instead.
type systemClock struct{}

func (systemClock) NowUnix() int64 { return time.Now().Unix() }

// Cartridge owns the ROM image, the parsed header, and the active mapper.
type Cartridge struct {
	Header Header
	mapper Mapper
}

// New parses the header from rom, picks a mapper per the cartridge-type
// byte (falling back to None with a logged warning for anything this
// emulator doesn't recognize), and seeds external RAM from sav if given.
func New(rom []byte, sav []byte, source TimeSource) (*Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}

	if h.ROMSize != 0 && h.ROMSize != len(rom) {
		slog.Warn("cartridge ROM size mismatch", "declared", h.ROMSize, "actual", len(rom))
	}

	if source == nil {
		source = systemClock{}
	}

	kind := Kind(h.CartType)
	if kind == KindUnknown {
		slog.Warn("unknown cartridge type, falling back to no-mapper", "type", h.CartType)
		kind = KindNone
	}

	var m Mapper
	switch kind {
	case KindMBC1:
		m = newMBC1(h, rom, h.HasBattery)
	case KindMBC3:
		m = newMBC3(h, rom, h.HasBattery, source)
	case KindMBC5:
		m = newMBC5(h, rom, h.HasBattery)
	default:
		m = newNoneMapper(rom)
	}

	c := &Cartridge{Header: h, mapper: m}
	if len(sav) > 0 {
		c.LoadSave(sav)
	}
	return c, nil
}

// Read dispatches a ROM-window read (0000..7FFF) to the mapper.
func (c *Cartridge) Read(addr uint16) uint8 { return c.mapper.Read(addr) }

// Write dispatches a ROM-window write (bank-select port writes) to the mapper.
func (c *Cartridge) Write(addr uint16, val uint8) { c.mapper.Write(addr, val) }

// ReadExtRAM dispatches an external-RAM-window read (A000..BFFF).
func (c *Cartridge) ReadExtRAM(addr uint16) uint8 { return c.mapper.ReadExtRAM(addr) }

// WriteExtRAM dispatches an external-RAM-window write (A000..BFFF).
func (c *Cartridge) WriteExtRAM(addr uint16, val uint8) { c.mapper.WriteExtRAM(addr, val) }

// Tick lets RTC-bearing mappers advance any internal bookkeeping.
func (c *Cartridge) Tick(cycles int) { c.mapper.Tick(cycles) }

// HasBattery reports whether this cartridge's external RAM should be
// persisted across sessions.
func (c *Cartridge) HasBattery() bool { return c.mapper.HasBattery() }

// Save serializes external RAM (and, for RTC-capable carts, the RTC state)
// into the `.sav` file format described in spec §6.
func (c *Cartridge) Save() []byte {
	ram := c.mapper.RAM()
	out := make([]byte, len(ram))
	copy(out, ram)

	if m3, ok := c.mapper.(*mbc3Mapper); ok && m3.rtc != nil {
		out = append(out, m3.rtc.marshal()...)
	}
	return out
}

// LoadSave restores external RAM (and RTC state, if present) from a `.sav`
// file's contents.
func (c *Cartridge) LoadSave(data []byte) {
	ram := c.mapper.RAM()
	n := len(ram)
	if n > len(data) {
		n = len(data)
	}
	copy(ram, data[:n])

	if m3, ok := c.mapper.(*mbc3Mapper); ok && m3.rtc != nil {
		if len(data) > len(ram) {
			m3.rtc.unmarshal(data[len(ram):])
		}
	}
}
