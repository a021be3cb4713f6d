package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valerio/go-jeebie/jeebie/addr"
	"github.com/valerio/go-jeebie/jeebie/interrupt"
)

func runDots(g *GPU, ic *interrupt.Controller, n int) {
	for i := 0; i < n; i++ {
		g.Advance(ic)
	}
}

func TestGPUModeSequenceTiming(t *testing.T) {
	g := New(false)
	ic := interrupt.New()

	assert.Equal(t, OAMSearch, g.Mode())
	runDots(g, ic, oamSearchDots-1)
	assert.Equal(t, OAMSearch, g.Mode())
	g.Advance(ic)
	assert.Equal(t, PixelTransfer, g.Mode())

	// Pixel transfer runs until 160 pixels are pushed, then HBlank for the
	// remainder of the 456-dot scanline.
	for g.Mode() == PixelTransfer {
		g.Advance(ic)
	}
	assert.Equal(t, HBlank, g.Mode())
	assert.Equal(t, uint8(0), g.ly)
}

func TestGPUFrameIsDotsPerScanlineTimesTotalLines(t *testing.T) {
	g := New(false)
	ic := interrupt.New()

	dots := 0
	startLY := g.ly
	for {
		g.Advance(ic)
		dots++
		if g.ly == startLY && g.mode == OAMSearch && dots > dotsPerScanline {
			break
		}
	}
	assert.Equal(t, dotsPerScanline*totalLines, dots)
}

func TestGPUEntersVBlankAfterVisibleLines(t *testing.T) {
	g := New(false)
	ic := interrupt.New()
	ic.WriteIF(0)

	for g.ly < visibleLines {
		g.Advance(ic)
	}
	// Drive to the edge of line 144 where VBlank mode begins.
	for g.mode != VBlank {
		g.Advance(ic)
	}
	assert.Equal(t, VBlank, g.Mode())
	assert.True(t, ic.IF()&(1<<interrupt.Bit[interrupt.VBlank]) != 0)
}

func TestGPULYCInterruptOnMatch(t *testing.T) {
	g := New(false)
	ic := interrupt.New()
	ic.WriteIF(0)
	g.Write(addr.LYC, 2)
	g.Write(addr.STAT, g.Read(addr.STAT)|statLYCInt)

	// LY reaches 2 after two full scanlines
	runDots(g, ic, dotsPerScanline*2)

	assert.True(t, g.stat&statLYCEqual != 0)
	assert.True(t, ic.IF()&(1<<interrupt.Bit[interrupt.LCD]) != 0)
}

func TestGPUDisableLCDResetsPosition(t *testing.T) {
	g := New(false)
	ic := interrupt.New()
	runDots(g, ic, dotsPerScanline*3+10)
	assert.NotEqual(t, uint8(0), g.ly)

	g.Write(addr.LCDC, g.lcdc&^(1<<lcdcLCDEnable))
	assert.Equal(t, uint8(0), g.ly)
	assert.Equal(t, VBlank, g.Mode())
}

func TestGPUVRAMBlockedDuringPixelTransfer(t *testing.T) {
	g := New(false)
	ic := interrupt.New()
	g.WriteVRAMBankRaw(0, 0x8000, 0x42)

	runDots(g, ic, oamSearchDots+1)
	assert.Equal(t, PixelTransfer, g.Mode())
	assert.Equal(t, byte(0xFF), g.ReadVRAM(0x8000))
}

func TestGPUOAMScanRespectsTenSpriteLimit(t *testing.T) {
	g := New(false)
	for i := 0; i < 20; i++ {
		g.oam[i] = OAMEntry{Y: 16, X: uint8(8 + i), Tile: 0, Flags: 0}
	}
	g.ly = 0
	g.scanOAM()
	assert.Len(t, g.scanlineSprites, 10)
}

func TestGPUPaletteMapping(t *testing.T) {
	assert.Equal(t, WhiteColor, ByteToColor(0))
	assert.Equal(t, LightGreyColor, ByteToColor(1))
	assert.Equal(t, DarkGreyColor, ByteToColor(2))
	assert.Equal(t, BlackColor, ByteToColor(3))
}

// TestGPULCDCBit0BlanksBackgroundOnDMG verifies that clearing LCDC bit 0 on
// DMG forces background/window pixels to color 0 (white, via BGP) instead
// of whatever the tile data says, per the "BG/Window display enable" bit.
func TestGPULCDCBit0BlanksBackgroundOnDMG(t *testing.T) {
	g := New(false)
	ic := interrupt.New()

	// Tile 0 at VRAM 0x8000: every row opaque color 3 (both bit planes set).
	for row := uint16(0); row < 8; row++ {
		g.WriteVRAM(addr.TileData0+row*2, 0xFF)
		g.WriteVRAM(addr.TileData0+row*2+1, 0xFF)
	}
	g.Write(addr.BGP, 0xE4) // identity palette: color N -> shade N

	g.Write(addr.LCDC, g.lcdc&^(1<<lcdcBGWindowEnable))

	runDots(g, ic, oamSearchDots)
	for g.Mode() == PixelTransfer {
		g.Advance(ic)
	}

	assert.Equal(t, WhiteColor, GBColor(g.frame.GetPixel(0, 0)))
}
