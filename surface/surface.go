// Package surface is an in-memory RGBA render surface for the compositor.
package surface

import (
	"image"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"seehuhn.de/go/geom/vec"
)

// Image is a transparent back buffer. Sprites are scaled nearest neighbour
// so pixel art stays crisp.
type Image struct {
	img    *image.RGBA
	origin vec.Vec2
	// Sprites counts DrawSprite calls since the last Reset.
	Sprites int
}

func New() *Image {
	return &Image{img: image.NewRGBA(image.Rectangle{})}
}

// Reset clears the buffer to transparent, reallocating only when the size changes.
func (s *Image) Reset(width, height int, origin vec.Vec2) {
	s.origin = origin
	s.Sprites = 0
	width, height = max(0, width), max(0, height)
	if s.img.Rect.Dx() != width || s.img.Rect.Dy() != height {
		s.img = image.NewRGBA(image.Rect(0, 0, width, height))
		return
	}
	clear(s.img.Pix)
}

func (s *Image) DrawSprite(sheet image.Image, src, dst image.Rectangle) {
	if sheet == nil || !dst.Overlaps(s.img.Rect) {
		return
	}
	s.Sprites++
	draw.NearestNeighbor.Scale(s.img, dst, sheet, src, draw.Over, nil)
}

// Origin is the host pixel position of the top-left corner.
func (s *Image) Origin() vec.Vec2 {
	return s.origin
}

func (s *Image) RGBA() *image.RGBA {
	return s.img
}

func (s *Image) WritePNG(w io.Writer) error {
	return png.Encode(w, s.img)
}
