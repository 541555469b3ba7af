package compositor

import (
	"image"
	"math"

	"github.com/go-spatial/geom"
	"seehuhn.de/go/geom/vec"
)

// Window is a rectangle in the host's pixel space at the current zoom.
type Window struct {
	MinX, MinY, MaxX, MaxY float64
}

func (w Window) Width() float64 {
	return w.MaxX - w.MinX
}

func (w Window) Height() float64 {
	return w.MaxY - w.MinY
}

// Empty is true for windows without area, NaN edges included.
func (w Window) Empty() bool {
	return !(w.MaxX > w.MinX) || !(w.MaxY > w.MinY)
}

func (w Window) Intersects(o Window) bool {
	return w.MinX < o.MaxX && o.MinX < w.MaxX && w.MinY < o.MaxY && o.MinY < w.MaxY
}

// Size returns the window size in whole pixels.
func (w Window) Size() image.Point {
	if w.Empty() {
		return image.Point{}
	}
	return image.Pt(int(math.Ceil(w.Width())), int(math.Ceil(w.Height())))
}

// Viewport is the read-only view of the host map the compositor needs.
type Viewport interface {
	// PixelBounds returns the visible window.
	PixelBounds() Window
	// ToPixel converts a planar EPSG:3857 point to pixels at the current zoom.
	ToPixel(geom.Point) vec.Vec2
}

// Notifier is implemented by viewports that announce pan, zoom and resize.
type Notifier interface {
	Subscribe(func(Window)) (cancel func())
}

// Surface is the transparent drawing layer owned by the compositor.
type Surface interface {
	// Reset clears the surface and sizes it to width x height pixels,
	// its top-left corner placed at origin in host pixel space.
	Reset(width, height int, origin vec.Vec2)
	// DrawSprite copies src of sheet into dst, scaling when the sizes differ.
	DrawSprite(sheet image.Image, src, dst image.Rectangle)
}

type SurfaceProvider interface {
	NewSurface() Surface
}

// SurfaceFunc adapts a function to a SurfaceProvider.
type SurfaceFunc func() Surface

func (f SurfaceFunc) NewSurface() Surface {
	return f()
}
