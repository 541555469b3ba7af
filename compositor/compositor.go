// Package compositor draws a mask grid as sprites onto the part of a host
// viewport that is visible.
//
// Every redraw starts from the viewport's current state: the size of a cell
// in pixels, the pixel position of the grid and the visible cell range are
// derived again each time. Nothing pixel related is kept between redraws
// because the ratio of pixels to metres changes with every zoom.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	"seehuhn.de/go/geom/vec"

	"github.com/pdok/roadtile/atlas"
	"github.com/pdok/roadtile/autotile"
	"github.com/pdok/roadtile/raster"
)

var ErrMismatch = errors.New("mask grid does not match occupancy grid")

type Options struct {
	// Extra cells drawn around the visible range, against popping during fast pans
	Margin int `default:"2" validate:"gte=0"`
}

func DefaultOptions() Options {
	var o Options
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return o
}

// CellRange is an inclusive range of cell indices.
type CellRange struct {
	MinCol, MinRow, MaxCol, MaxRow int
}

var emptyRange = CellRange{0, 0, -1, -1}

func (r CellRange) Empty() bool {
	return r.MinCol > r.MaxCol || r.MinRow > r.MaxRow
}

func (r CellRange) Contains(col, row int) bool {
	return col >= r.MinCol && col <= r.MaxCol && row >= r.MinRow && row <= r.MaxRow
}

// Frame describes one redraw.
type Frame struct {
	Window Window
	CellPx int
	// Pixel position of the grid's north-west corner
	NW    vec.Vec2
	Range CellRange
	// Sprites drawn
	Drawn int
	// Masked cells in range without an atlas entry
	Missing int
}

type Compositor struct {
	grid  *raster.Grid
	masks *autotile.MaskGrid
	atlas atlas.Atlas
	sheet image.Image
	opts  Options

	viewport Viewport
	surface  Surface
	cancel   func()
	last     Frame
}

// New returns a detached compositor. The atlas is used as is, a nil sheet
// is allowed for surfaces that do not read pixels.
func New(grid *raster.Grid, masks *autotile.MaskGrid, a atlas.Atlas, sheet image.Image, opts Options) (*Compositor, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid compositor options: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	c := &Compositor{atlas: a, sheet: sheet, opts: opts}
	if err := c.setData(grid, masks); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Compositor) setData(grid *raster.Grid, masks *autotile.MaskGrid) error {
	if grid == nil || masks == nil {
		return fmt.Errorf("%w: missing grid", ErrMismatch)
	}
	if grid.Cols != masks.Cols || grid.Rows != masks.Rows {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrMismatch, grid.Cols, grid.Rows, masks.Cols, masks.Rows)
	}
	c.grid, c.masks = grid, masks
	return nil
}

// OnAttach binds the compositor to a viewport, creates its surface and draws.
// Viewports that implement Notifier trigger a redraw on every change.
func (c *Compositor) OnAttach(vp Viewport, provider SurfaceProvider) Frame {
	c.OnDetach()
	c.viewport = vp
	c.surface = provider.NewSurface()
	if n, ok := vp.(Notifier); ok {
		c.cancel = n.Subscribe(func(w Window) { c.OnViewportChanged(w) })
	}
	return c.OnViewportChanged(vp.PixelBounds())
}

// OnDetach drops the viewport and surface, later redraws are no-ops.
func (c *Compositor) OnDetach() {
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = nil
	c.viewport = nil
	c.surface = nil
	c.last = Frame{}
}

func (c *Compositor) Attached() bool {
	return c.viewport != nil && c.surface != nil
}

// Surface returns the current surface, nil when detached.
func (c *Compositor) Surface() Surface {
	return c.surface
}

// Last returns the most recent frame.
func (c *Compositor) Last() Frame {
	return c.last
}

// SetMasks swaps the grid data and redraws the last window.
func (c *Compositor) SetMasks(grid *raster.Grid, masks *autotile.MaskGrid) (Frame, error) {
	if err := c.setData(grid, masks); err != nil {
		return Frame{}, err
	}
	if !c.Attached() {
		return Frame{}, nil
	}
	return c.OnViewportChanged(c.viewport.PixelBounds()), nil
}

// OnViewportChanged redraws the surface for window.
func (c *Compositor) OnViewportChanged(window Window) Frame {
	if !c.Attached() {
		return Frame{}
	}
	size := window.Size()
	c.surface.Reset(size.X, size.Y, vec.Vec2{X: window.MinX, Y: window.MinY})

	f := Frame{Window: window, Range: emptyRange}
	f.CellPx = CellPixelSize(c.viewport, c.grid)
	f.NW = c.viewport.ToPixel(geom.Point{c.grid.Origin.X(), c.grid.North})
	f.Range = VisibleRange(window, f.NW, f.CellPx, c.grid.Cols, c.grid.Rows, c.opts.Margin)

	if !f.Range.Empty() {
		// whole pixel offset of the grid on the surface, shared by all cells so they tile seamlessly
		ox := roundInt(f.NW.X - window.MinX)
		oy := roundInt(f.NW.Y - window.MinY)
		for row := f.Range.MinRow; row <= f.Range.MaxRow; row++ {
			for col := f.Range.MinCol; col <= f.Range.MaxCol; col++ {
				mask := c.masks.At(col, row)
				if mask == autotile.None {
					continue
				}
				src, ok := c.atlas.Source(mask)
				if !ok {
					f.Missing++
					continue
				}
				x, y := ox+col*f.CellPx, oy+row*f.CellPx
				c.surface.DrawSprite(c.sheet, src, image.Rect(x, y, x+f.CellPx, y+f.CellPx))
				f.Drawn++
			}
		}
	}
	c.last = f
	return f
}

// CellPixelSize returns the pixel edge length of one cell at the viewport's
// current zoom, rounded, never below 1.
func CellPixelSize(vp Viewport, grid *raster.Grid) int {
	p0 := vp.ToPixel(grid.Origin)
	p1 := vp.ToPixel(geom.Point{grid.Origin.X() + grid.CellSize, grid.Origin.Y()})
	d := math.Round(p1.Sub(p0).Length())
	if math.IsNaN(d) || d < 1 {
		return 1
	}
	if d > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(d)
}

// VisibleRange returns the cells of a cols x rows grid placed with its
// north-west corner at nw that fall in view, widened by margin cells and
// clamped to the grid. The range is empty when view misses the grid.
func VisibleRange(view Window, nw vec.Vec2, cellPx, cols, rows, margin int) CellRange {
	if cols <= 0 || rows <= 0 || cellPx <= 0 || view.Empty() {
		return emptyRange
	}
	px := float64(cellPx)
	extent := Window{MinX: nw.X, MinY: nw.Y, MaxX: nw.X + float64(cols)*px, MaxY: nw.Y + float64(rows)*px}
	if !view.Intersects(extent) {
		return emptyRange
	}
	return CellRange{
		MinCol: cellIndex((view.MinX-nw.X)/px, -margin, cols),
		MinRow: cellIndex((view.MinY-nw.Y)/px, -margin, rows),
		MaxCol: cellIndex((view.MaxX-nw.X)/px, margin, cols),
		MaxRow: cellIndex((view.MaxY-nw.Y)/px, margin, rows),
	}
}

// cellIndex floors v, adds offset and clamps to [0, n).
func cellIndex(v float64, offset, n int) int {
	v = math.Floor(v) + float64(offset)
	if !(v > 0) {
		return 0
	}
	if v > float64(n-1) {
		return n - 1
	}
	return int(v)
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
