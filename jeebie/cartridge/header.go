// Package cartridge owns the ROM image, optional battery-backed RAM, and the
// pluggable memory-bank-controller (MBC) strategy that maps bus requests in
// the cartridge address windows to banked storage.
package cartridge

import (
	"errors"
	"strings"
	"unicode"
)

// ErrROMTooSmall is returned when the ROM image is too small to contain a
// valid header; this is the one cartridge-load error the core surfaces to
// the caller (everything else is a soft, logged recovery).
var ErrROMTooSmall = errors.New("cartridge: ROM image smaller than header region")

const (
	titleAddress          = 0x134
	titleLength           = 16
	cgbFlagAddress        = 0x143
	sgbFlagAddress        = 0x146
	cartridgeTypeAddress  = 0x147
	romSizeAddress        = 0x148
	ramSizeAddress        = 0x149
	headerChecksumAddress = 0x14D
)

// ramSizeBytes maps the RAM-size header code (0x149) to its declared size in
// bytes, per the de-facto cartridge header specification.
var ramSizeBytes = [...]int{0, 0, 0x2000, 4 * 0x2000, 16 * 0x2000, 8 * 0x2000}

// Header is the subset of the 0x100..0x150 cartridge header the core reads.
type Header struct {
	Title       string
	CartType    byte
	ROMSize     int
	RAMSize     int
	CGB         bool
	SGB         bool
	HasBattery  bool
	HasRTC      bool
	HasRumble   bool
}

// ParseHeader reads the header fields out of a raw ROM image.
func ParseHeader(rom []byte) (Header, error) {
	if len(rom) < 0x150 {
		return Header{}, ErrROMTooSmall
	}

	romSizeCode := rom[romSizeAddress]
	romSize := romSizeFromCode(romSizeCode)

	ramSizeCode := rom[ramSizeAddress]
	ramSize := 0
	if int(ramSizeCode) < len(ramSizeBytes) {
		ramSize = ramSizeBytes[ramSizeCode]
	}

	cartType := rom[cartridgeTypeAddress]
	battery, rtc, rumble := cartTypeCapabilities(cartType)

	h := Header{
		Title:      cleanTitle(rom[titleAddress : titleAddress+titleLength]),
		CartType:   cartType,
		ROMSize:    romSize,
		RAMSize:    ramSize,
		CGB:        rom[cgbFlagAddress]&0x80 != 0,
		SGB:        rom[sgbFlagAddress] == 0x03,
		HasBattery: battery,
		HasRTC:     rtc,
		HasRumble:  rumble,
	}
	return h, nil
}

func romSizeFromCode(code byte) int {
	switch code {
	case 0x52:
		return 1152 * 1024
	case 0x53:
		return 1280 * 1024
	case 0x54:
		return 1536 * 1024
	default:
		if code <= 8 {
			return 0x8000 << code
		}
		return 0x8000
	}
}

// cartTypeCapabilities reports battery/RTC/rumble presence for the
// documented cartridge-type byte values this emulator recognizes.
func cartTypeCapabilities(cartType byte) (battery, rtc, rumble bool) {
	switch cartType {
	case 0x03, 0x06, 0x09, 0x0D, 0x10, 0x13, 0x1B, 0x1E, 0xFF:
		battery = true
	}
	switch cartType {
	case 0x0F, 0x10:
		rtc = true
	}
	switch cartType {
	case 0x1C, 0x1D, 0x1E, 0x20:
		rumble = true
	}
	return
}

// MapperKind classifies the cartridge type byte into one of the MBC
// families this emulator implements.
type MapperKind int

const (
	KindNone MapperKind = iota
	KindMBC1
	KindMBC3
	KindMBC5
	KindUnknown
)

// Kind classifies a cartridge-type byte, falling back to KindUnknown (which
// the cartridge constructor downgrades to KindNone with a warning, per the
// "unknown cartridge type is soft" error policy).
func Kind(cartType byte) MapperKind {
	switch {
	case cartType == 0x00:
		return KindNone
	case cartType >= 0x01 && cartType <= 0x03:
		return KindMBC1
	case cartType >= 0x0F && cartType <= 0x13:
		return KindMBC3
	case cartType >= 0x19 && cartType <= 0x1E:
		return KindMBC5
	default:
		return KindUnknown
	}
}

func cleanTitle(raw []byte) string {
	runes := make([]rune, 0, len(raw))
	for _, b := range raw {
		r := rune(b)
		switch {
		case r == 0:
			continue
		case !unicode.IsPrint(r):
			r = '?'
		}
		runes = append(runes, r)
	}
	title := strings.TrimSpace(string(runes))
	if title == "" {
		return "(untitled)"
	}
	return title
}
