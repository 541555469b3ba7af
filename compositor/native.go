package compositor

import (
	"github.com/go-spatial/geom"
	"seehuhn.de/go/geom/vec"

	"github.com/pdok/roadtile/raster"
)

// NativeViewport shows a whole grid at a fixed number of pixels per cell,
// with the grid's north-west corner at pixel 0, 0.
type NativeViewport struct {
	grid *raster.Grid
	px   float64
}

func NewNativeViewport(grid *raster.Grid, cellPx int) *NativeViewport {
	return &NativeViewport{grid: grid, px: float64(max(1, cellPx))}
}

func (v *NativeViewport) PixelBounds() Window {
	return Window{MaxX: float64(v.grid.Cols) * v.px, MaxY: float64(v.grid.Rows) * v.px}
}

func (v *NativeViewport) ToPixel(p geom.Point) vec.Vec2 {
	scale := v.px / v.grid.CellSize
	return vec.Vec2{
		X: (p.X() - v.grid.Origin.X()) * scale,
		Y: (v.grid.North - p.Y()) * scale,
	}
}
