package tui

import (
	"image"
	"strings"

	"seehuhn.de/go/geom/vec"

	"github.com/pdok/roadtile/atlas"
	"github.com/pdok/roadtile/autotile"
)

// CharsPerPixel is the number of terminal columns per surface pixel,
// terminal cells being about twice as tall as wide.
const CharsPerPixel = 2

var glyphs = [16]rune{
	' ', '╵', '╶', '└',
	'╷', '│', '┌', '├',
	'╴', '┘', '─', '┴',
	'┐', '┤', '┬', '┼',
}

// Glyph returns the box drawing rune for a mask.
func Glyph(m autotile.Mask) rune {
	return glyphs[m&autotile.All]
}

// Glyphs is a text surface. Sprites are mapped back to their mask through
// the atlas and drawn as box drawing runes.
type Glyphs struct {
	atlas  atlas.Atlas
	origin vec.Vec2
	width  int
	rows   [][]rune
}

func NewGlyphs(a atlas.Atlas) *Glyphs {
	return &Glyphs{atlas: a}
}

func (g *Glyphs) Reset(width, height int, origin vec.Vec2) {
	g.origin = origin
	g.width = max(0, width) * CharsPerPixel
	g.rows = make([][]rune, max(0, height))
	for i := range g.rows {
		g.rows[i] = []rune(strings.Repeat(" ", g.width))
	}
}

func (g *Glyphs) DrawSprite(_ image.Image, src, dst image.Rectangle) {
	if g.atlas.TilePx < 1 {
		return
	}
	mask, ok := g.atlas.Lookup(src.Min.X/g.atlas.TilePx, src.Min.Y/g.atlas.TilePx)
	if !ok {
		return
	}
	glyph := Glyph(mask)
	fill := ' '
	if mask.Has(autotile.East) {
		fill = '─'
	}
	for y := max(0, dst.Min.Y); y < min(len(g.rows), dst.Max.Y); y++ {
		for x := max(0, dst.Min.X*CharsPerPixel); x < min(g.width, dst.Max.X*CharsPerPixel); x++ {
			r := fill
			if (x-dst.Min.X*CharsPerPixel)%CharsPerPixel == 0 {
				r = glyph
			}
			g.rows[y][x] = r
		}
	}
}

func (g *Glyphs) Origin() vec.Vec2 {
	return g.origin
}

// Lines returns the surface as text, one string per row.
func (g *Glyphs) Lines() []string {
	lines := make([]string, len(g.rows))
	for i, r := range g.rows {
		lines[i] = string(r)
	}
	return lines
}

func (g *Glyphs) String() string {
	return strings.Join(g.Lines(), "\n")
}
