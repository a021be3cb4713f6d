//go:build sdl2

package sdl2

import (
	"fmt"
	"unsafe"

	"github.com/valerio/go-jeebie/jeebie/debug"
	"github.com/valerio/go-jeebie/jeebie/video"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	DebugWindowWidth  = 1280
	DebugWindowHeight = 800
	maxDisasmLines    = 20
	spriteScale       = 2
)

// DebugWindow renders CPU, OAM, VRAM and disassembly state in a second SDL
// window. It is fed whatever backend.DebugDataProvider.ExtractDebugData
// returns; audio and per-pixel layer compositing aren't part of that data,
// so this window only shows what the emulator actually reports.
type DebugWindow struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	visible  bool

	bgTexture *sdl.Texture

	data *debug.CompleteDebugData

	tilemapPixelBuffer []byte // 256*256*4 bytes for the VRAM tile grid

	cachedDisasmLines []string
	cachedPC          uint16
	disasmCacheValid  bool

	needsUpdate bool
}

func NewDebugWindow() *DebugWindow {
	return &DebugWindow{
		visible:     false,
		needsUpdate: true,
	}
}

func (dw *DebugWindow) Init() error {
	window, err := sdl.CreateWindow(
		"Game Boy Debug",
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		DebugWindowWidth,
		DebugWindowHeight,
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
	)
	if err != nil {
		return err
	}
	dw.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		return err
	}
	dw.renderer = renderer

	dw.bgTexture, err = renderer.CreateTexture(
		sdl.PIXELFORMAT_RGBA8888,
		sdl.TEXTUREACCESS_STREAMING,
		256, 256,
	)
	if err != nil {
		return err
	}

	dw.tilemapPixelBuffer = make([]byte, 256*256*4)

	dw.window.Hide()
	return nil
}

// UpdateData replaces the snapshot the window renders from. Called whenever
// the backend re-extracts debug data from the emulator.
func (dw *DebugWindow) UpdateData(data *debug.CompleteDebugData) {
	if data == nil {
		return
	}

	if dw.data != nil && dw.data.CPU != nil && data.CPU != nil && dw.data.CPU.PC != data.CPU.PC {
		dw.disasmCacheValid = false
	}

	dw.data = data
	dw.needsUpdate = true
}

// ProcessEvent lets the debug window react to its own window's SDL events.
func (dw *DebugWindow) ProcessEvent(evt sdl.Event) {
	if e, ok := evt.(*sdl.WindowEvent); ok && e.WindowID == dw.windowID() && e.Event == sdl.WINDOWEVENT_CLOSE {
		dw.SetVisible(false)
	}
}

func (dw *DebugWindow) windowID() uint32 {
	if dw.window == nil {
		return 0
	}
	id, _ := dw.window.GetID()
	return id
}

func (dw *DebugWindow) Render() error {
	if !dw.visible || !dw.needsUpdate {
		return nil
	}

	dw.renderer.SetDrawColor(30, 30, 30, 255)
	dw.renderer.Clear()

	dw.renderSpritePanel()
	dw.renderTileGridPanel()
	dw.renderInterruptPanel()
	dw.renderDisassemblyPanel()

	dw.renderer.Present()
	dw.needsUpdate = false
	return nil
}

func (dw *DebugWindow) renderSpritePanel() {
	dw.renderPanelLabel(10, 10, "Sprites (OAM)")

	panelRect := &sdl.Rect{X: 10, Y: 35, W: 620, H: 300}
	dw.renderer.SetDrawColor(40, 40, 40, 255)
	dw.renderer.FillRect(panelRect)
	dw.renderer.SetDrawColor(100, 100, 100, 255)
	dw.renderer.DrawRect(panelRect)

	if dw.data == nil || dw.data.OAM == nil {
		return
	}

	sprites := dw.data.OAM.Sprites
	const spritesPerColumn = 14
	const columnWidth = 200
	const rowHeight = 20

	for i := 0; i < len(sprites) && i < 40; i++ {
		sprite := sprites[i]

		column := i / spritesPerColumn
		row := i % spritesPerColumn
		x := int32(20 + column*columnWidth)
		y := int32(45 + row*rowHeight)

		dw.renderSpriteTilePreview(sprite.Sprite.TileIndex, x, y)

		textR, textG, textB := uint8(200), uint8(200), uint8(200)
		if !sprite.IsVisible {
			textR, textG, textB = 100, 100, 100
		}

		info := fmt.Sprintf("%02d:%02X (%3d,%3d)",
			sprite.Index,
			sprite.Sprite.TileIndex,
			sprite.Sprite.X,
			sprite.Sprite.Y,
		)

		DrawText(dw.renderer, info, x+20, y+5, 1, textR, textG, textB)

		flagX := x + 140
		if sprite.Sprite.FlipX {
			DrawText(dw.renderer, "X", flagX, y+5, 1, 255, 150, 150)
			flagX += 8
		}
		if sprite.Sprite.FlipY {
			DrawText(dw.renderer, "Y", flagX, y+5, 1, 150, 255, 150)
			flagX += 8
		}
		if sprite.Sprite.BehindBG {
			DrawText(dw.renderer, "B", flagX, y+5, 1, 150, 150, 255)
			flagX += 8
		}
		if sprite.Sprite.PaletteOBP1 {
			DrawText(dw.renderer, "1", flagX, y+5, 1, 255, 255, 150)
		} else {
			DrawText(dw.renderer, "0", flagX, y+5, 1, 200, 200, 200)
		}
	}

	legendY := int32(45 + spritesPerColumn*rowHeight + 5)
	DrawText(dw.renderer, "Format: ID:Tile (X,Y) | Flags: X=FlipX Y=FlipY B=BG 0/1=Palette",
		20, legendY, 1, 150, 150, 150)
}

// renderSpriteTilePreview looks up the sprite's tile in the VRAM tile grid
// (already resolved to palette colors) and draws it as a scaled square.
func (dw *DebugWindow) renderSpriteTilePreview(tileIndex uint8, x, y int32) {
	if dw.data.VRAM == nil || int(tileIndex) >= len(dw.data.VRAM.TilePatterns) {
		return
	}
	pattern := dw.data.VRAM.TilePatterns[tileIndex]

	for ty := 0; ty < debug.TilePixelHeight; ty++ {
		for tx := 0; tx < debug.TilePixelWidth; tx++ {
			r, g, b := gbColorToRGB(pattern.Pixels[ty][tx])
			dw.renderer.SetDrawColor(r, g, b, 255)
			for sy := 0; sy < spriteScale; sy++ {
				for sx := 0; sx < spriteScale; sx++ {
					dw.renderer.DrawPoint(
						x+int32(tx*spriteScale+sx),
						y+int32(ty*spriteScale+sy),
					)
				}
			}
		}
	}
}

// renderTileGridPanel shows every resolved tile pattern currently in VRAM, in
// the same 16-wide by 24-tall layout debug.VRAMData.GetTileGrid returns.
func (dw *DebugWindow) renderTileGridPanel() {
	dw.renderPanelLabel(650, 10, "VRAM Tiles")

	panelRect := &sdl.Rect{X: 650, Y: 35, W: 280, H: 280}
	dw.renderer.SetDrawColor(40, 40, 40, 255)
	dw.renderer.FillRect(panelRect)
	dw.renderer.SetDrawColor(100, 100, 100, 255)
	dw.renderer.DrawRect(panelRect)

	if dw.data == nil || dw.data.VRAM == nil {
		DrawText(dw.renderer, "No VRAM data", 730, 160, 2, 100, 100, 100)
		return
	}

	dw.renderTileGrid(dw.data.VRAM)

	info := fmt.Sprintf("%d tiles decoded", len(dw.data.VRAM.TilePatterns))
	DrawText(dw.renderer, info, 660, 320, 1, 150, 150, 150)
}

func (dw *DebugWindow) renderTileGrid(vram *debug.VRAMData) {
	for i := range dw.tilemapPixelBuffer {
		dw.tilemapPixelBuffer[i] = 0
	}

	const tilesPerRow = 16
	for idx, pattern := range vram.TilePatterns {
		tileX := (idx % tilesPerRow) * debug.TilePixelWidth
		tileY := (idx / tilesPerRow) * debug.TilePixelHeight

		for ty := 0; ty < debug.TilePixelHeight; ty++ {
			for tx := 0; tx < debug.TilePixelWidth; tx++ {
				r, g, b := gbColorToRGB(pattern.Pixels[ty][tx])
				px, py := tileX+tx, tileY+ty
				if px >= 256 || py >= 256 {
					continue
				}
				offset := (py*256 + px) * 4
				dw.tilemapPixelBuffer[offset] = 255 // Alpha
				dw.tilemapPixelBuffer[offset+1] = b
				dw.tilemapPixelBuffer[offset+2] = g
				dw.tilemapPixelBuffer[offset+3] = r
			}
		}
	}

	dw.bgTexture.Update(nil, unsafe.Pointer(&dw.tilemapPixelBuffer[0]), 256*4)

	srcRect := &sdl.Rect{X: 0, Y: 0, W: 256, H: 256}
	dstRect := &sdl.Rect{X: 660, Y: 45, W: 256, H: 256}
	dw.renderer.Copy(dw.bgTexture, srcRect, dstRect)
}

func gbColorToRGB(c video.GBColor) (r, g, b uint8) {
	var rgba uint32
	switch c {
	case 0:
		rgba = uint32(video.WhiteColor)
	case 1:
		rgba = uint32(video.LightGreyColor)
	case 2:
		rgba = uint32(video.DarkGreyColor)
	case 3:
		rgba = uint32(video.BlackColor)
	default:
		rgba = 0xFFFF00FF
	}
	return uint8(rgba >> 24), uint8(rgba >> 16), uint8(rgba >> 8)
}

func (dw *DebugWindow) renderInterruptPanel() {
	dw.renderPanelLabel(990, 10, "Interrupts")

	panelRect := &sdl.Rect{X: 990, Y: 35, W: 280, H: 130}
	dw.renderer.SetDrawColor(40, 40, 40, 255)
	dw.renderer.FillRect(panelRect)
	dw.renderer.SetDrawColor(100, 100, 100, 255)
	dw.renderer.DrawRect(panelRect)

	if dw.data == nil {
		return
	}

	DrawText(dw.renderer, fmt.Sprintf("IE: 0x%02X", dw.data.InterruptEnable), 1000, 45, 1, 200, 200, 200)
	DrawText(dw.renderer, fmt.Sprintf("IF: 0x%02X", dw.data.InterruptFlags), 1000, 65, 1, 200, 200, 200)

	names := []string{"VBlank", "LCDStat", "Timer", "Serial", "Joypad"}
	for i, name := range names {
		enabled := dw.data.InterruptEnable&(1<<uint(i)) != 0
		pending := dw.data.InterruptFlags&(1<<uint(i)) != 0
		r, g, b := uint8(150), uint8(150), uint8(150)
		if pending {
			r, g, b = 255, 255, 100
		} else if enabled {
			r, g, b = 200, 200, 200
		}
		DrawText(dw.renderer, name, 1000, int32(90+i*12), 1, r, g, b)
	}
}

func (dw *DebugWindow) renderDisassemblyPanel() {
	dw.renderPanelLabel(10, 350, "Disassembly")

	panelRect := &sdl.Rect{X: 10, Y: 375, W: 620, H: 410}
	dw.renderer.SetDrawColor(40, 40, 40, 255)
	dw.renderer.FillRect(panelRect)
	dw.renderer.SetDrawColor(100, 100, 100, 255)
	dw.renderer.DrawRect(panelRect)

	if dw.data == nil || dw.data.CPU == nil || dw.data.Memory == nil {
		DrawText(dw.renderer, "No debug data available", 20, 390, 1, 100, 100, 100)
		return
	}

	pc := dw.data.CPU.PC

	if !dw.disasmCacheValid || dw.cachedPC != pc {
		disasmLines := debug.CreateDisassembly(dw.data.Memory, pc, maxDisasmLines)

		if cap(dw.cachedDisasmLines) < len(disasmLines)*2 {
			dw.cachedDisasmLines = make([]string, 0, len(disasmLines)*2)
		} else {
			dw.cachedDisasmLines = dw.cachedDisasmLines[:0]
		}

		for _, line := range disasmLines {
			if line.IsCurrent {
				dw.cachedDisasmLines = append(dw.cachedDisasmLines, "current")
			} else {
				dw.cachedDisasmLines = append(dw.cachedDisasmLines, "")
			}
			text := fmt.Sprintf("%04X: %s", line.Address, line.Instruction)
			dw.cachedDisasmLines = append(dw.cachedDisasmLines, text)
		}

		dw.cachedPC = pc
		dw.disasmCacheValid = true
	}

	y := int32(385)
	lineHeight := int32(16)

	for i := 0; i < len(dw.cachedDisasmLines); i += 2 {
		if y+lineHeight > 750 {
			break
		}

		var r, g, b uint8
		if dw.cachedDisasmLines[i] == "current" {
			r, g, b = 255, 255, 100
			DrawText(dw.renderer, ">", 15, y, 1, 255, 255, 100)
		} else {
			r, g, b = 180, 180, 180
		}
		DrawText(dw.renderer, dw.cachedDisasmLines[i+1], 30, y, 1, r, g, b)
		y += lineHeight
	}

	statusY := int32(760)
	statusBg := &sdl.Rect{X: 10, Y: statusY - 2, W: 620, H: 20}
	dw.renderer.SetDrawColor(20, 20, 20, 255)
	dw.renderer.FillRect(statusBg)

	var statusText string
	var statusR, statusG, statusB uint8
	switch dw.data.DebuggerState {
	case debug.DebuggerPaused:
		statusText = "PAUSED - SPACE: resume | N: step | F: frame"
		statusR, statusG, statusB = 255, 150, 150
	case debug.DebuggerStepInstruction:
		statusText = "STEPPING - N: next step | SPACE: resume"
		statusR, statusG, statusB = 255, 255, 100
	case debug.DebuggerStepFrame:
		statusText = "FRAME STEP - F: next frame | SPACE: resume"
		statusR, statusG, statusB = 150, 255, 150
	default: // DebuggerRunning
		statusText = "RUNNING - SPACE: pause | N: step | F: frame"
		statusR, statusG, statusB = 150, 255, 150
	}

	DrawText(dw.renderer, statusText, 20, statusY, 1, statusR, statusG, statusB)
}

func (dw *DebugWindow) renderPanelLabel(x, y int32, text string) {
	const fontScale = 1
	const charWidth = 6
	const charHeight = 7
	const padding = 4

	labelWidth := int32(len(text)*charWidth*fontScale + padding*2)
	labelHeight := int32(charHeight*fontScale + padding*2)

	labelRect := &sdl.Rect{X: x, Y: y, W: labelWidth, H: labelHeight}
	dw.renderer.SetDrawColor(60, 60, 60, 255)
	dw.renderer.FillRect(labelRect)
	dw.renderer.SetDrawColor(180, 180, 180, 255)
	dw.renderer.DrawRect(labelRect)

	DrawText(dw.renderer, text, x+padding, y+padding, fontScale, 200, 200, 200)
}

func (dw *DebugWindow) SetVisible(visible bool) {
	dw.visible = visible
	if visible {
		dw.window.Show()
		dw.needsUpdate = true
	} else {
		dw.window.Hide()
	}
}

func (dw *DebugWindow) IsVisible() bool {
	return dw.visible
}

func (dw *DebugWindow) IsInitialized() bool {
	return dw.window != nil
}

func (dw *DebugWindow) Cleanup() error {
	if dw.bgTexture != nil {
		dw.bgTexture.Destroy()
	}
	if dw.renderer != nil {
		dw.renderer.Destroy()
	}
	if dw.window != nil {
		dw.window.Destroy()
	}
	return nil
}
