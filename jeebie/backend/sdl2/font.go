//go:build sdl2

package sdl2

import (
	"strings"

	"github.com/veandco/go-sdl2/sdl"
)

// glyphWidth and glyphHeight describe the dot-matrix cell every glyph in
// fontGlyphs is drawn on, before the caller's scale factor is applied.
const (
	glyphWidth  = 4
	glyphHeight = 5
)

// fontGlyphs holds a 4x5 dot pattern for every character the debug window
// draws. Lowercase letters are folded to uppercase before lookup. Characters
// with no entry render as blank space rather than a placeholder glyph.
var fontGlyphs = map[byte][glyphHeight]string{
	'A': {".##.", "#..#", "####", "#..#", "#..#"},
	'B': {"###.", "#..#", "###.", "#..#", "###."},
	'C': {".###", "#...", "#...", "#...", ".###"},
	'D': {"###.", "#..#", "#..#", "#..#", "###."},
	'E': {"####", "#...", "###.", "#...", "####"},
	'F': {"####", "#...", "###.", "#...", "#..."},
	'G': {".###", "#...", "#.##", "#..#", ".###"},
	'H': {"#..#", "#..#", "####", "#..#", "#..#"},
	'I': {".##.", "..#.", "..#.", "..#.", ".##."},
	'J': {"..##", "...#", "...#", "#..#", ".##."},
	'K': {"#..#", "#.#.", "##..", "#.#.", "#..#"},
	'L': {"#...", "#...", "#...", "#...", "####"},
	'M': {"#..#", "##.#", "#.##", "#..#", "#..#"},
	'N': {"#..#", "##.#", "#.##", "#..#", "#..#"},
	'O': {".##.", "#..#", "#..#", "#..#", ".##."},
	'P': {"###.", "#..#", "###.", "#...", "#..."},
	'Q': {".##.", "#..#", "#..#", "#.#.", ".###"},
	'R': {"###.", "#..#", "###.", "#.#.", "#..#"},
	'S': {".###", "#...", ".##.", "...#", "###."},
	'T': {"####", ".#..", ".#..", ".#..", ".#.."},
	'U': {"#..#", "#..#", "#..#", "#..#", ".##."},
	'V': {"#..#", "#..#", "#..#", ".##.", ".##."},
	'W': {"#..#", "#..#", "#.#.", "##.#", "#..#"},
	'X': {"#..#", ".##.", ".##.", ".##.", "#..#"},
	'Y': {"#..#", ".##.", ".#..", ".#..", ".#.."},
	'Z': {"####", "...#", ".##.", "#...", "####"},
	'0': {".##.", "#..#", "#..#", "#..#", ".##."},
	'1': {".#..", "##..", ".#..", ".#..", "###."},
	'2': {".##.", "#..#", "..#.", ".#..", "####"},
	'3': {".##.", "#..#", ".##.", "#..#", ".##."},
	'4': {"#..#", "#..#", "####", "...#", "...#"},
	'5': {"####", "#...", "###.", "...#", "###."},
	'6': {".##.", "#...", "###.", "#..#", ".##."},
	'7': {"####", "...#", "..#.", ".#..", ".#.."},
	'8': {".##.", "#..#", ".##.", "#..#", ".##."},
	'9': {".##.", "#..#", ".###", "...#", ".##."},
	':': {"....", ".#..", "....", ".#..", "...."},
	'(': {"..#.", ".#..", ".#..", ".#..", "..#."},
	')': {".#..", "..#.", "..#.", "..#.", ".#.."},
	',': {"....", "....", "....", ".#..", "#..."},
	'-': {"....", "....", "####", "....", "...."},
	'=': {"....", "####", "....", "####", "...."},
	'|': {".#..", ".#..", ".#..", ".#..", ".#.."},
	'>': {"#...", ".#..", "..#.", ".#..", "#..."},
	'<': {"..#.", ".#..", "#...", ".#..", "..#."},
	'.': {"....", "....", "....", "....", ".#.."},
	'%': {"#..#", "...#", "..#.", ".#..", "#..#"},
	'+': {"....", ".#..", "####", ".#..", "...."},
	'/': {"...#", "..#.", ".#..", "#...", "...."},
	'_': {"....", "....", "....", "....", "####"},
	'!': {".#..", ".#..", ".#..", "....", ".#.."},
	'?': {".##.", "#..#", "..#.", "....", "..#."},
}

// DrawText renders text as a monospaced dot-matrix font, one glyph cell at a
// time, using renderer.DrawPoint so it needs no font asset or SDL_ttf binding.
func DrawText(renderer *sdl.Renderer, text string, x, y, scale int32, r, g, b uint8) {
	if scale < 1 {
		scale = 1
	}

	renderer.SetDrawColor(r, g, b, 255)

	cellWidth := int32(glyphWidth+1) * scale
	cursorX := x

	for _, ch := range strings.ToUpper(text) {
		glyph, ok := fontGlyphs[byte(ch)]
		if ok {
			for row := 0; row < glyphHeight; row++ {
				for col := 0; col < glyphWidth; col++ {
					if glyph[row][col] != '#' {
						continue
					}
					px := cursorX + int32(col)*scale
					py := y + int32(row)*scale
					for sy := int32(0); sy < scale; sy++ {
						for sx := int32(0); sx < scale; sx++ {
							renderer.DrawPoint(px+sx, py+sy)
						}
					}
				}
			}
		}
		cursorX += cellWidth
	}
}
