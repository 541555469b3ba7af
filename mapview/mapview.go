// Package mapview is a slippy map viewport on the WebMercatorQuad tile matrix set.
// It tracks a centre, a fractional zoom and a size in pixels, converts between
// planar metres and world pixels, and notifies subscribers on every change.
package mapview

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	"seehuhn.de/go/geom/vec"

	"github.com/pdok/roadtile/compositor"
	"github.com/pdok/roadtile/mathhelp"
	"github.com/pdok/roadtile/tms20"
	"github.com/pdok/roadtile/webmercator"
)

const TileMatrixSetID = "WebMercatorQuad"

var ErrUnsupportedTileMatrixSet = errors.New("tile matrix set must be EPSG:3857 with a top-left origin")

type View struct {
	tms    tms20.TileMatrixSet
	origin geom.Point
	world  geom.Extent
	center geom.Point
	zoom   float64
	width  int
	height int

	subs   map[int]func(compositor.Window)
	nextID int
}

// New returns a view of width x height pixels centred on 0, 0 at zoom 0.
func New(width, height int) (*View, error) {
	tms, err := tms20.LoadEmbeddedTileMatrixSet(TileMatrixSetID)
	if err != nil {
		return nil, fmt.Errorf("could not load tile matrix set %s: %w", TileMatrixSetID, err)
	}
	return NewWithTileMatrixSet(tms, width, height)
}

// NewWithTileMatrixSet returns a view on a custom spherical Mercator tile matrix set,
// for instance one with fewer zoom levels or larger tiles than WebMercatorQuad.
func NewWithTileMatrixSet(tms tms20.TileMatrixSet, width, height int) (*View, error) {
	if len(tms.TileMatrices) == 0 {
		return nil, fmt.Errorf("%w: %s has no tile matrices", ErrUnsupportedTileMatrixSet, tms.ID)
	}
	if tms.SRID() != webmercator.SRID {
		return nil, fmt.Errorf("%w: %s is EPSG:%d", ErrUnsupportedTileMatrixSet, tms.ID, tms.SRID())
	}
	z := tms.MinZoom()
	tm := tms.TileMatrices[z]
	if tm.CornerOfOrigin == tms20.BottomLeft {
		return nil, fmt.Errorf("%w: %s has a bottom-left origin", ErrUnsupportedTileMatrixSet, tms.ID)
	}
	world, err := worldExtent(tms, uint(z))
	if err != nil {
		return nil, err
	}
	return &View{
		tms:    tms,
		origin: geom.Point(tm.PointOfOrigin),
		world:  world,
		zoom:   float64(z),
		width:  max(0, width),
		height: max(0, height),
		subs:   make(map[int]func(compositor.Window)),
	}, nil
}

// worldExtent spans the tile matrix at zoom, from the corner of its first tile
// to the corner one past its last.
func worldExtent(tms tms20.TileMatrixSet, zoom uint) (geom.Extent, error) {
	size, ok := tms.Size(zoom)
	if !ok {
		return geom.Extent{}, fmt.Errorf("%w: no tile matrix %d in %s", ErrUnsupportedTileMatrixSet, zoom, tms.ID)
	}
	topLeft, ok := tms.ToNative(slippy.NewTile(zoom, 0, 0))
	if !ok {
		return geom.Extent{}, fmt.Errorf("%w: no origin tile in %s", ErrUnsupportedTileMatrixSet, tms.ID)
	}
	bottomRight, ok := tms.ToNative(size)
	if !ok {
		return geom.Extent{}, fmt.Errorf("%w: no corner tile in %s", ErrUnsupportedTileMatrixSet, tms.ID)
	}
	return geom.Extent{topLeft.X(), bottomRight.Y(), bottomRight.X(), topLeft.Y()}, nil
}

func (v *View) Zoom() float64 {
	return v.zoom
}

func (v *View) Size() (width, height int) {
	return v.width, v.height
}

// Center returns the centre in lon/lat.
func (v *View) Center() (lon, lat float64) {
	return webmercator.Unproject(v.center)
}

// Resolution returns the metres per pixel at the current zoom.
func (v *View) Resolution() float64 {
	res, ok := v.tms.CellSizeAt(v.zoom)
	if !ok {
		panic(fmt.Errorf("zoom %v outside %s", v.zoom, TileMatrixSetID))
	}
	return res
}

// World returns the planar extent covered by the tile matrix set.
func (v *View) World() geom.Extent {
	return v.world
}

func (v *View) SetCenter(lon, lat float64) {
	v.setCenter(webmercator.Project(lon, lat))
	v.notify()
}

// setCenter keeps the centre inside the world.
func (v *View) setCenter(p geom.Point) {
	if math.IsNaN(p.X()) || math.IsNaN(p.Y()) {
		return
	}
	v.center = geom.Point{
		mathhelp.Clamp(p.X(), v.world.MinX(), v.world.MaxX()),
		mathhelp.Clamp(p.Y(), v.world.MinY(), v.world.MaxY()),
	}
}

// SetZoom clamps z to the zoom levels of the tile matrix set.
func (v *View) SetZoom(z float64) {
	if math.IsNaN(z) {
		return
	}
	v.zoom = mathhelp.Clamp(z, float64(v.tms.MinZoom()), float64(v.tms.MaxZoom()))
	v.notify()
}

func (v *View) ZoomBy(dz float64) {
	v.SetZoom(v.zoom + dz)
}

// Pan moves the view by dx, dy screen pixels, positive dy moving south.
func (v *View) Pan(dx, dy float64) {
	res := v.Resolution()
	v.setCenter(geom.Point{v.center.X() + dx*res, v.center.Y() - dy*res})
	v.notify()
}

func (v *View) Resize(width, height int) {
	v.width, v.height = max(0, width), max(0, height)
	v.notify()
}

// Fit centres the view on a planar extent and picks the deepest zoom,
// in whole levels, at which it fits. The centre is kept inside the world.
func (v *View) Fit(ext geom.Extent) {
	v.setCenter(geom.Point{(ext.MinX() + ext.MaxX()) / 2, (ext.MinY() + ext.MaxY()) / 2})
	z := v.tms.MinZoom()
	for id := v.tms.MinZoom(); id <= v.tms.MaxZoom(); id++ {
		res := v.tms.TileMatrices[id].CellSize
		if ext.XSpan()/res > float64(v.width) || ext.YSpan()/res > float64(v.height) {
			break
		}
		z = id
	}
	v.zoom = float64(z)
	v.notify()
}

// ToPixel converts a planar point to world pixels at the current zoom,
// measured from the top-left corner of the tile matrix set.
func (v *View) ToPixel(p geom.Point) vec.Vec2 {
	res := v.Resolution()
	return vec.Vec2{X: (p.X() - v.origin.X()) / res, Y: (v.origin.Y() - p.Y()) / res}
}

// FromPixel is the inverse of ToPixel.
func (v *View) FromPixel(px vec.Vec2) geom.Point {
	res := v.Resolution()
	return geom.Point{v.origin.X() + px.X*res, v.origin.Y() - px.Y*res}
}

// PixelBounds returns the visible window in world pixels.
func (v *View) PixelBounds() compositor.Window {
	c := v.ToPixel(v.center)
	minX := math.Round(c.X - float64(v.width)/2)
	minY := math.Round(c.Y - float64(v.height)/2)
	return compositor.Window{MinX: minX, MinY: minY, MaxX: minX + float64(v.width), MaxY: minY + float64(v.height)}
}

// Tile returns the slippy tile holding p at the current whole zoom level.
func (v *View) Tile(p geom.Point) (*slippy.Tile, bool) {
	return v.tms.FromNative(uint(math.Floor(v.zoom)), p)
}

// Subscribe registers f for every pan, zoom and resize.
func (v *View) Subscribe(f func(compositor.Window)) (cancel func()) {
	id := v.nextID
	v.nextID++
	v.subs[id] = f
	return func() { delete(v.subs, id) }
}

func (v *View) notify() {
	if len(v.subs) == 0 {
		return
	}
	w := v.PixelBounds()
	for _, f := range v.subs {
		f(w)
	}
}
