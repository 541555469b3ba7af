package atlas

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/pdok/roadtile/autotile"
)

var (
	Asphalt = color.RGBA{R: 0x4a, G: 0x4a, B: 0x52, A: 0xff}
	Marking = color.RGBA{R: 0xf2, G: 0xd4, B: 0x5c, A: 0xff}
)

// Placeholder draws a sheet for a in which every tile shows a road piece
// running from the centre towards each neighbour in its mask.
func Placeholder(a Atlas) *image.RGBA {
	sheet := image.NewRGBA(image.Rectangle{Max: a.SheetSize()})
	asphalt := image.NewUniform(Asphalt)
	marking := image.NewUniform(Marking)
	for mask := range a.Tiles {
		src, ok := a.Source(mask)
		if !ok {
			continue
		}
		for _, r := range roadRects(src, mask, src.Dx()/2) {
			draw.Draw(sheet, r, asphalt, image.Point{}, draw.Src)
		}
		for _, r := range roadRects(src, mask, max(1, src.Dx()/8)) {
			draw.Draw(sheet, r, marking, image.Point{}, draw.Src)
		}
	}
	return sheet
}

// roadRects returns the centre block and one arm per mask bit for a road of
// the given width in pixels.
func roadRects(tile image.Rectangle, mask autotile.Mask, width int) []image.Rectangle {
	inset := (tile.Dx() - width) / 2
	centre := image.Rect(tile.Min.X+inset, tile.Min.Y+inset, tile.Max.X-inset, tile.Max.Y-inset)
	rects := []image.Rectangle{centre}
	if mask.Has(autotile.North) {
		rects = append(rects, image.Rect(centre.Min.X, tile.Min.Y, centre.Max.X, centre.Min.Y))
	}
	if mask.Has(autotile.East) {
		rects = append(rects, image.Rect(centre.Max.X, centre.Min.Y, tile.Max.X, centre.Max.Y))
	}
	if mask.Has(autotile.South) {
		rects = append(rects, image.Rect(centre.Min.X, centre.Max.Y, centre.Max.X, tile.Max.Y))
	}
	if mask.Has(autotile.West) {
		rects = append(rects, image.Rect(tile.Min.X, centre.Min.Y, centre.Min.X, centre.Max.Y))
	}
	return rects
}
