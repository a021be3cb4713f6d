// Package video implements the pixel pipeline (PPU): a dot-accurate mode
// state machine driving background/sprite fetchers into per-scanline FIFOs,
// producing an RGBA framebuffer.
package video

import (
	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/bit"
	"github.com/valerio/go-jeebie/jeebie/interrupt"
)

// Mode is one of the four PPU modes.
type Mode uint8

const (
	HBlank Mode = iota
	VBlank
	OAMSearch
	PixelTransfer
)

const dotsPerScanline = 456
const oamSearchDots = 80
const visibleLines = 144
const totalLines = 154

// lcdc bit positions.
const (
	// lcdcBGWindowEnable is the DMG background/window display enable bit;
	// on CGB it instead demotes BG/window tile priority and OAM priority to
	// always lose against sprites ("master priority").
	lcdcBGWindowEnable = 0
	lcdcObjEnable      = 1
	lcdcObjSize       = 2
	lcdcBGTileMap     = 3
	lcdcBGWindowData  = 4
	lcdcWindowEnable  = 5
	lcdcWindowTileMap = 6
	lcdcLCDEnable     = 7
)

// stat bit positions.
const (
	statModeMask  = 0x03
	statLYCEqual  = 1 << 2
	statHBlankInt = 1 << 3
	statVBlankInt = 1 << 4
	statOAMInt    = 1 << 5
	statLYCInt    = 1 << 6
)

// OAMEntry mirrors the 4-byte sprite attribute layout.
type OAMEntry struct {
	Y, X, Tile, Flags uint8
	OAMOffset         uint8
}

func (o OAMEntry) Palette() uint8 {
	if bit.IsSet(4, o.Flags) {
		return 1
	}
	return 0
}
func (o OAMEntry) FlipX() bool       { return bit.IsSet(5, o.Flags) }
func (o OAMEntry) FlipY() bool       { return bit.IsSet(6, o.Flags) }
func (o OAMEntry) BGPriority() bool  { return bit.IsSet(7, o.Flags) }
func (o OAMEntry) CGBBank() uint8    { return bit.GetBitValue(3, o.Flags) }
func (o OAMEntry) CGBPalette() uint8 { return bit.ExtractBits(o.Flags, 2, 0) }

// TilePixel is one decoded background/window pixel awaiting composition.
type TilePixel struct {
	Color    uint8 // 2-bit index into the palette
	Palette  uint8 // 3-bit CGB BG palette index (0 in DMG)
	Priority bool  // BG-over-OBJ priority flag (CGB tile attribute)
}

// SpritePixel is a fetched sprite pixel awaiting FIFO merge.
type SpritePixel struct {
	TilePixel
	OAMOffset uint8
}

type fetcherState uint8

const (
	fetchGetTile fetcherState = iota
	fetchGetTileDataLo
	fetchGetTileDataHi
	fetchPush
)

// GPU is the pixel pipeline. VRAM/OAM are owned here; register IO and mode
// transitions happen via per-master-cycle Advance() calls from the System.
type GPU struct {
	vram [2][0x2000]byte
	oam  [40]OAMEntry

	cgb bool

	lcdc, stat, scy, scx, ly, lyc, bgp, obp0, obp1, wy, wx byte
	vbk                                                    byte

	// CGB palette memories: 8 palettes * 4 colors * 2 bytes (RGB555 LE).
	bgPalette  [64]byte
	objPalette [64]byte
	bcps, ocps byte

	mode Mode
	dot  int

	scanlineSprites []OAMEntry
	currentPixel    int

	bgFIFO     []TilePixel
	spriteFIFO []SpritePixel

	fetcher          fetcherState
	fetcherDivider   int
	fetchX           uint8
	fetchTileIndex   byte
	fetchLo, fetchHi byte
	fetchIsWindow    bool
	fetchAttr        byte

	windowActive       bool
	windowInternalLine int

	spritePending bool
	spriteToFetch OAMEntry

	oamDMAActive bool

	frame FrameBuffer
}

// New returns a PPU reset to its post-boot-ROM state. cgb selects whether
// the color-mode tile-attribute map and palette memories are consulted.
func New(cgb bool) *GPU {
	g := &GPU{cgb: cgb, frame: *NewFrameBuffer()}
	g.Reset()
	return g
}

// Reset restores the post-boot-ROM register state.
func (g *GPU) Reset() {
	g.lcdc = 0x91
	g.stat = 0x85
	g.scy, g.scx = 0, 0
	g.ly, g.lyc = 0, 0
	g.bgp, g.obp0, g.obp1 = 0xFC, 0xFF, 0xFF
	g.wy, g.wx = 0, 0
	g.mode = OAMSearch
	g.dot = 0
	g.windowInternalLine = 0
	g.bgFIFO = g.bgFIFO[:0]
	g.spriteFIFO = g.spriteFIFO[:0]
}

// lcdEnabled reports the LCDC power bit.
func (g *GPU) lcdEnabled() bool { return bit.IsSet(lcdcLCDEnable, g.lcdc) }

// SetOAMDMAActive is called by the bus while OAM DMA owns OAM: PPU reads
// that reach OAM return 0xFF for the duration.
func (g *GPU) SetOAMDMAActive(active bool) { g.oamDMAActive = active }

// Framebuffer returns the current RGBA pixel buffer.
func (g *GPU) Framebuffer() *FrameBuffer { return &g.frame }

// Mode reports the current PPU mode, for orchestration (HDMA HBlank gating).
func (g *GPU) Mode() Mode { return g.mode }

// VBKBank reports the active VRAM bank select (CGB only) for HDMA's raw
// bank-aware VRAM writes.
func (g *GPU) VBKBank() uint8 { return g.vbk & 0x01 }

// ReadVRAM reads a VRAM byte, blocked (returns 0xFF) during PixelTransfer.
func (g *GPU) ReadVRAM(addrVal uint16) byte {
	if g.mode == PixelTransfer {
		return 0xFF
	}
	bank := 0
	if g.cgb {
		bank = int(g.vbk & 0x01)
	}
	return g.vram[bank][addrVal-0x8000]
}

// WriteVRAM writes a VRAM byte, blocked during PixelTransfer.
func (g *GPU) WriteVRAM(addrVal uint16, val byte) {
	if g.mode == PixelTransfer {
		return
	}
	bank := 0
	if g.cgb {
		bank = int(g.vbk & 0x01)
	}
	g.vram[bank][addrVal-0x8000] = val
}

// VRAMBankRaw reads directly from a specific bank, bypassing the mode gate -
// used by HDMA, which is only ever allowed to run outside PixelTransfer.
func (g *GPU) VRAMBankRaw(bank int, addrVal uint16) byte {
	return g.vram[bank][addrVal-0x8000]
}

// WriteVRAMBankRaw writes directly to a specific bank, bypassing the mode
// gate - used by HDMA to land copied bytes regardless of current mode.
func (g *GPU) WriteVRAMBankRaw(bank int, addrVal uint16, val byte) {
	g.vram[bank][addrVal-0x8000] = val
}

// ReadOAM reads an OAM byte, blocked during OAMSearch|PixelTransfer or DMA.
func (g *GPU) ReadOAM(addrVal uint16) byte {
	if g.oamDMAActive || g.mode == OAMSearch || g.mode == PixelTransfer {
		return 0xFF
	}
	return g.readOAMRaw(addrVal)
}

// WriteOAM writes an OAM byte, blocked during OAMSearch|PixelTransfer or DMA.
func (g *GPU) WriteOAM(addrVal uint16, val byte) {
	if g.oamDMAActive || g.mode == OAMSearch || g.mode == PixelTransfer {
		return
	}
	g.writeOAMRaw(addrVal, val)
}

// WriteOAMDMA writes a byte to OAM bypassing the mode gate - called only by
// the DMA engine while it logically owns OAM.
func (g *GPU) WriteOAMDMA(offset uint8, val byte) {
	g.writeOAMRaw(0xFE00+uint16(offset), val)
}

func (g *GPU) readOAMRaw(addrVal uint16) byte {
	idx := (addrVal - 0xFE00) / 4
	if int(idx) >= len(g.oam) {
		return 0xFF
	}
	field := (addrVal - 0xFE00) % 4
	e := g.oam[idx]
	switch field {
	case 0:
		return e.Y
	case 1:
		return e.X
	case 2:
		return e.Tile
	default:
		return e.Flags
	}
}

func (g *GPU) writeOAMRaw(addrVal uint16, val byte) {
	idx := (addrVal - 0xFE00) / 4
	if int(idx) >= len(g.oam) {
		return
	}
	field := (addrVal - 0xFE00) % 4
	e := &g.oam[idx]
	e.OAMOffset = uint8(idx)
	switch field {
	case 0:
		e.Y = val
	case 1:
		e.X = val
	case 2:
		e.Tile = val
	default:
		e.Flags = val
	}
}

// Read dispatches a register read.
func (g *GPU) Read(addrVal uint16) byte {
	switch addrVal {
	case addr.LCDC:
		return g.lcdc
	case addr.STAT:
		return g.stat | 0x80
	case addr.SCY:
		return g.scy
	case addr.SCX:
		return g.scx
	case addr.LY:
		return g.ly
	case addr.LYC:
		return g.lyc
	case addr.BGP:
		return g.bgp
	case addr.OBP0:
		return g.obp0
	case addr.OBP1:
		return g.obp1
	case addr.WY:
		return g.wy
	case addr.WX:
		return g.wx
	case addr.VBK:
		return g.vbk | 0xFE
	case addr.BCPS:
		return g.bcps
	case addr.BCPD:
		return g.readPaletteMem(g.bgPalette[:], g.bcps)
	case addr.OCPS:
		return g.ocps
	case addr.OCPD:
		return g.readPaletteMem(g.objPalette[:], g.ocps)
	default:
		return 0xFF
	}
}

func (g *GPU) readPaletteMem(mem []byte, sel byte) byte {
	return mem[sel&0x3F]
}

// Write dispatches a register write.
func (g *GPU) Write(addrVal uint16, val byte) {
	switch addrVal {
	case addr.LCDC:
		wasEnabled := g.lcdEnabled()
		g.lcdc = val
		if wasEnabled && !g.lcdEnabled() {
			g.disableLCD()
		}
	case addr.STAT:
		g.stat = (g.stat & statModeMask) | (val &^ statModeMask) | 0x80
	case addr.SCY:
		g.scy = val
	case addr.SCX:
		g.scx = val
	case addr.LY:
		// read-only
	case addr.LYC:
		g.lyc = val
	case addr.BGP:
		g.bgp = val
	case addr.OBP0:
		g.obp0 = val
	case addr.OBP1:
		g.obp1 = val
	case addr.WY:
		g.wy = val
	case addr.WX:
		g.wx = val
	case addr.VBK:
		if g.cgb {
			g.vbk = val & 0x01
		}
	case addr.BCPS:
		g.bcps = val & 0xBF
	case addr.BCPD:
		g.writePaletteMem(g.bgPalette[:], &g.bcps, val)
	case addr.OCPS:
		g.ocps = val & 0xBF
	case addr.OCPD:
		g.writePaletteMem(g.objPalette[:], &g.ocps, val)
	}
}

func (g *GPU) writePaletteMem(mem []byte, sel *byte, val byte) {
	idx := *sel & 0x3F
	mem[idx] = val
	if *sel&0x80 != 0 {
		*sel = 0x80 | ((idx + 1) & 0x3F)
	}
}

// disableLCD resets the scanline position immediately and forces VBlank
// mode, per spec §4.9.
func (g *GPU) disableLCD() {
	g.ly = 0
	g.dot = 0
	g.mode = VBlank
	g.windowInternalLine = 0
	g.bgFIFO = g.bgFIFO[:0]
	g.spriteFIFO = g.spriteFIFO[:0]
}

// Advance steps the PPU by exactly one master cycle (one dot).
func (g *GPU) Advance(ic *interrupt.Controller) {
	if !g.lcdEnabled() {
		return
	}

	switch g.mode {
	case OAMSearch:
		if g.dot == 0 {
			g.scanOAM()
		}
		g.dot++
		if g.dot >= oamSearchDots {
			g.enterMode(PixelTransfer, ic)
		}
	case PixelTransfer:
		g.dot++
		g.stepPixelTransfer()
		if g.currentPixel >= 160 {
			if g.windowActive {
				g.windowInternalLine++
			}
			g.enterMode(HBlank, ic)
		}
	case HBlank:
		g.dot++
		if g.dot >= dotsPerScanline {
			g.advanceScanline(ic)
		}
	case VBlank:
		g.dot++
		if g.dot >= dotsPerScanline {
			g.advanceScanline(ic)
		}
	}
}

func (g *GPU) enterMode(m Mode, ic *interrupt.Controller) {
	g.mode = m
	g.stat = (g.stat &^ statModeMask) | uint8(m)
	switch m {
	case HBlank:
		if g.stat&statHBlankInt != 0 {
			ic.Raise(interrupt.LCD)
		}
	case VBlank:
		ic.Raise(interrupt.VBlank)
		if g.stat&statVBlankInt != 0 {
			ic.Raise(interrupt.LCD)
		}
	case OAMSearch:
		g.dot = 0
		if g.stat&statOAMInt != 0 {
			ic.Raise(interrupt.LCD)
		}
	case PixelTransfer:
		g.currentPixel = 0
		g.fetcher = fetchGetTile
		g.fetcherDivider = 0
		g.fetchX = 0
		g.windowActive = false
		g.bgFIFO = g.bgFIFO[:0]
		g.spriteFIFO = g.spriteFIFO[:0]
	}
}

func (g *GPU) advanceScanline(ic *interrupt.Controller) {
	g.dot = 0
	g.ly++
	if g.ly == totalLines {
		g.ly = 0
		g.windowInternalLine = 0
	}
	g.updateLYC(ic)

	switch {
	case g.ly == visibleLines:
		g.enterMode(VBlank, ic)
	case g.ly < visibleLines:
		g.enterMode(OAMSearch, ic)
	default:
		// still within the 10 VBlank lines
		g.mode = VBlank
	}
}

func (g *GPU) updateLYC(ic *interrupt.Controller) {
	equal := g.ly == g.lyc
	wasEqual := g.stat&statLYCEqual != 0
	if equal {
		g.stat |= statLYCEqual
	} else {
		g.stat &^= statLYCEqual
	}
	if equal && !wasEqual && g.stat&statLYCInt != 0 {
		ic.Raise(interrupt.LCD)
	}
}

// scanOAM collects up to 10 sprites whose vertical range covers LY+16.
func (g *GPU) scanOAM() {
	g.scanlineSprites = g.scanlineSprites[:0]
	height := 8
	if bit.IsSet(lcdcObjSize, g.lcdc) {
		height = 16
	}
	for i := range g.oam {
		if len(g.scanlineSprites) >= 10 {
			break
		}
		e := g.oam[i]
		top := int(e.Y) - 16
		if int(g.ly) >= top && int(g.ly) < top+height {
			g.scanlineSprites = append(g.scanlineSprites, e)
		}
	}
	if !g.cgb {
		// Stable ascending sort by X.
		for i := 1; i < len(g.scanlineSprites); i++ {
			for j := i; j > 0 && g.scanlineSprites[j-1].X > g.scanlineSprites[j].X; j-- {
				g.scanlineSprites[j-1], g.scanlineSprites[j] = g.scanlineSprites[j], g.scanlineSprites[j-1]
			}
		}
	}
}

func (g *GPU) isWindowVisible() bool {
	return bit.IsSet(lcdcWindowEnable, g.lcdc) &&
		g.wy <= g.ly &&
		g.wx <= 166 &&
		g.currentPixel >= int(g.wx)-7
}

func (g *GPU) stepPixelTransfer() {
	if !g.windowActive && g.isWindowVisible() {
		g.windowActive = true
		g.fetcher = fetchGetTile
		g.fetcherDivider = 0
		g.fetchX = 0
		g.bgFIFO = g.bgFIFO[:0]
	}

	if bit.IsSet(lcdcObjEnable, g.lcdc) && !g.spritePending {
		for _, e := range g.scanlineSprites {
			if int(e.X)-8 == g.currentPixel {
				g.spritePending = true
				g.spriteToFetch = e
				break
			}
		}
	}

	if g.spritePending {
		g.stepSpriteFetch()
		return
	}

	g.stepBGFetcher()

	if len(g.bgFIFO) > 0 {
		bgPixel := g.bgFIFO[0]
		g.bgFIFO = g.bgFIFO[1:]

		final := bgPixel
		if len(g.spriteFIFO) > 0 {
			sp := g.spriteFIFO[0]
			g.spriteFIFO = g.spriteFIFO[1:]
			final = g.composite(bgPixel, sp)
		}

		g.pushPixel(final)
		g.currentPixel++
	}
}

func (g *GPU) composite(bgPixel TilePixel, sp SpritePixel) TilePixel {
	if sp.Color == 0 {
		return bgPixel
	}
	if !g.cgb {
		if sp.Priority && bgPixel.Color != 0 {
			return bgPixel
		}
		return sp.TilePixel
	}
	if bit.IsSet(lcdcBGWindowEnable, g.lcdc) {
		if bgPixel.Priority && bgPixel.Color != 0 {
			return bgPixel
		}
		if sp.Priority && bgPixel.Color != 0 {
			return bgPixel
		}
	}
	return sp.TilePixel
}

func (g *GPU) pushPixel(p TilePixel) {
	var rgba uint32
	if g.cgb {
		rgba = g.cgbColor(p)
	} else {
		shift := p.Color * 2
		color := (g.bgp >> shift) & 0x03
		rgba = uint32(ByteToColor(color))
	}
	g.frame.SetPixel(uint(g.currentPixel), uint(g.ly), GBColor(rgba))
}

func (g *GPU) cgbColor(p TilePixel) uint32 {
	base := int(p.Palette) * 8
	lo := g.bgPalette[base+int(p.Color)*2]
	hi := g.bgPalette[base+int(p.Color)*2+1]
	word := uint16(hi)<<8 | uint16(lo)
	r := uint8(word & 0x1F)
	gC := uint8((word >> 5) & 0x1F)
	b := uint8((word >> 10) & 0x1F)
	expand := func(v uint8) uint32 { return uint32((v << 3) | (v >> 2)) }
	return (expand(r) << 24) | (expand(gC) << 16) | (expand(b) << 8) | 0xFF
}

// stepBGFetcher advances the background/window fetcher one dot; each
// sub-state consumes two dots via fetcherDivider.
func (g *GPU) stepBGFetcher() {
	g.fetcherDivider++
	if g.fetcherDivider < 2 {
		return
	}
	g.fetcherDivider = 0

	switch g.fetcher {
	case fetchGetTile:
		g.fetchIsWindow = g.windowActive
		g.fetchTileIndex, g.fetchAttr = g.lookupTile()
		g.fetcher = fetchGetTileDataLo
	case fetchGetTileDataLo:
		g.fetchLo = g.lookupTileData(g.fetchTileIndex, g.fetchAttr, false)
		g.fetcher = fetchGetTileDataHi
	case fetchGetTileDataHi:
		g.fetchHi = g.lookupTileData(g.fetchTileIndex, g.fetchAttr, true)
		g.fetcher = fetchPush
	case fetchPush:
		if len(g.bgFIFO) == 0 {
			flipX := g.cgb && bit.IsSet(5, g.fetchAttr)
			blank := !g.cgb && !bit.IsSet(lcdcBGWindowEnable, g.lcdc)
			for i := 0; i < 8; i++ {
				bitIdx := 7 - i
				if flipX {
					bitIdx = i
				}
				lo := bit.GetBitValue(uint8(bitIdx), g.fetchLo)
				hi := bit.GetBitValue(uint8(bitIdx), g.fetchHi)
				color := (hi << 1) | lo
				if blank {
					color = 0
				}
				priority := g.cgb && bit.IsSet(7, g.fetchAttr)
				palette := uint8(0)
				if g.cgb {
					palette = bit.ExtractBits(g.fetchAttr, 2, 0)
				}
				g.bgFIFO = append(g.bgFIFO, TilePixel{Color: color, Palette: palette, Priority: priority})
			}
			g.fetchX++
			g.fetcher = fetchGetTile
		}
	}
}

func (g *GPU) lookupTile() (tile byte, attr byte) {
	var mapBase uint16
	var xCoord, yCoord uint8
	if g.fetchIsWindow {
		mapBase = addr.TileMap0
		if bit.IsSet(lcdcWindowTileMap, g.lcdc) {
			mapBase = addr.TileMap1
		}
		xCoord = g.fetchX
		yCoord = uint8(g.windowInternalLine)
	} else {
		mapBase = addr.TileMap0
		if bit.IsSet(3, g.lcdc) {
			mapBase = addr.TileMap1
		}
		xCoord = uint8((uint16(g.scx)/8 + uint16(g.fetchX)) & 0x1F)
		yCoord = uint8((uint16(g.ly) + uint16(g.scy)) & 0xFF)
	}
	tileRow := uint16(yCoord) / 8
	tileCol := uint16(xCoord)
	offset := tileRow*32 + tileCol
	tile = g.VRAMBankRaw(0, mapBase+offset)
	if g.cgb {
		attr = g.VRAMBankRaw(1, mapBase+offset)
	}
	return
}

func (g *GPU) lookupTileData(tile byte, attr byte, hi bool) byte {
	var yCoord uint8
	if g.fetchIsWindow {
		yCoord = uint8(g.windowInternalLine) % 8
	} else {
		yCoord = uint8((uint16(g.ly) + uint16(g.scy)) % 8)
	}
	if g.cgb && bit.IsSet(6, attr) {
		yCoord = 7 - yCoord
	}

	var base uint16
	if bit.IsSet(lcdcBGWindowData, g.lcdc) {
		base = addr.TileData0 + uint16(tile)*16
	} else {
		base = addr.TileData2 + uint16(int8(tile))*16
	}

	bank := 0
	if g.cgb && bit.IsSet(3, attr) {
		bank = 1
	}
	off := base + uint16(yCoord)*2
	if hi {
		return g.VRAMBankRaw(bank, off+1)
	}
	return g.VRAMBankRaw(bank, off)
}

func (g *GPU) stepSpriteFetch() {
	g.fetcherDivider++
	if g.fetcherDivider < 2 {
		return
	}
	g.fetcherDivider = 0

	e := g.spriteToFetch
	height := 8
	if bit.IsSet(lcdcObjSize, g.lcdc) {
		height = 16
	}
	line := int(g.ly) - (int(e.Y) - 16)
	if e.FlipY() {
		line = height - 1 - line
	}
	tile := e.Tile
	if height == 16 {
		tile &^= 0x01
		if line >= 8 {
			tile |= 0x01
			line -= 8
		}
	}

	bank := 0
	if g.cgb {
		bank = int(e.CGBBank())
	}
	base := addr.TileData0 + uint16(tile)*16 + uint16(line)*2
	lo := g.VRAMBankRaw(bank, base)
	hi := g.VRAMBankRaw(bank, base+1)

	for i := 0; i < 8; i++ {
		bitIdx := 7 - i
		if e.FlipX() {
			bitIdx = i
		}
		loB := bit.GetBitValue(uint8(bitIdx), lo)
		hiB := bit.GetBitValue(uint8(bitIdx), hi)
		color := (hiB << 1) | loB
		var pal uint8
		if g.cgb {
			pal = e.CGBPalette()
		} else {
			pal = e.Palette()
		}
		sp := SpritePixel{
			TilePixel: TilePixel{Color: color, Palette: pal, Priority: e.BGPriority()},
			OAMOffset: e.OAMOffset,
		}

		if i < len(g.spriteFIFO) {
			existing := g.spriteFIFO[i]
			if g.shouldOverride(existing, sp) {
				g.spriteFIFO[i] = sp
			}
		} else {
			g.spriteFIFO = append(g.spriteFIFO, sp)
		}
	}

	g.spritePending = false
}

// shouldOverride decides which of two overlapping sprite pixels wins: in
// color mode, lower OAM offset wins; in monochrome, the pre-sorted-by-X
// scan order already guarantees lower X wins by arriving first.
func (g *GPU) shouldOverride(existing, candidate SpritePixel) bool {
	if existing.Color == 0 && candidate.Color != 0 {
		return true
	}
	if candidate.Color == 0 {
		return false
	}
	if g.cgb {
		return candidate.OAMOffset < existing.OAMOffset
	}
	return false
}
