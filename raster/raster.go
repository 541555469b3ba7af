// Package raster burns polylines into an occupancy grid.
//
// Every vertex is projected to spherical Mercator and mapped to a grid cell.
// Each segment between two vertex cells is traced with a supercover traversal,
// so every cell the segment passes through is occupied, whatever its slope.
// Occupied cells are widened with a square brush, and optional gap-closing
// passes bridge single-cell holes.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"

	"github.com/pdok/roadtile/mathhelp"
	"github.com/pdok/roadtile/webmercator"
)

var ErrInvalidConfig = errors.New("invalid rasterize config")

// Config is a rasterization request. Lines are in lon/lat degrees.
type Config struct {
	Lines  []geom.LineString `yaml:"-" json:"-"`
	Bounds Bounds            `yaml:"bounds" json:"bounds"`
	// Edge length of a cell in metres
	CellSize float64 `default:"10" validate:"gt=0" yaml:"cellSize" json:"cellSize"`
	// Brush radius in cells, 0 burns the traced cell only
	Brush int `default:"1" validate:"gte=0" yaml:"brush" json:"brush"`
	// Number of gap-closing passes
	ClosePasses int `validate:"gte=0" yaml:"closePasses" json:"closePasses"`
}

// DefaultConfig returns a Config with the default cell size and brush.
func DefaultConfig() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	return c
}

func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Rasterize traces all lines into a new grid and applies the configured
// number of gap-closing passes. Lines with fewer than two vertices are skipped.
func Rasterize(cfg Config) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := New(cfg.Bounds, cfg.CellSize)
	if g.Cols == 0 {
		return g, nil
	}
	for _, line := range cfg.Lines {
		g.burnLine(line, cfg.Brush)
	}
	for i := 0; i < cfg.ClosePasses; i++ {
		g = CloseGaps(g)
	}
	return g, nil
}

func (g *Grid) burnLine(line geom.LineString, brush int) {
	if len(line) < 2 {
		return
	}
	pts := make([][2]float64, 0, len(line))
	for _, v := range line {
		p := webmercator.Project(v[0], v[1])
		if !webmercator.InDomain(p) {
			continue
		}
		pts = append(pts, g.cellCoords(p))
	}
	// segments only matter where the brush can still reach the grid
	m := float64(brush + 1)
	lo := [2]float64{-m, -m}
	hi := [2]float64{float64(g.Cols) + m, float64(g.Rows) + m}
	if len(pts) == 1 {
		if a, _, ok := clipSegment(pts[0], pts[0], lo, hi); ok {
			g.burn(cellAt(a), brush)
		}
		return
	}
	for i := 1; i < len(pts); i++ {
		a, b, ok := clipSegment(pts[i-1], pts[i], lo, hi)
		if !ok {
			continue
		}
		Supercover(cellAt(a), cellAt(b), func(c Cell) { g.burn(c, brush) })
	}
}

// cellCoords returns the fractional column and row of a planar point.
func (g *Grid) cellCoords(p geom.Point) [2]float64 {
	return [2]float64{(p.X() - g.Origin.X()) / g.CellSize, (g.North - p.Y()) / g.CellSize}
}

func cellAt(p [2]float64) Cell {
	return Cell{Col: int(math.Floor(p[0])), Row: int(math.Floor(p[1]))}
}

// clipSegment clips segment a-b to the rectangle lo-hi (Liang-Barsky).
// ok is false when no part of the segment lies inside.
func clipSegment(a, b, lo, hi [2]float64) ([2]float64, [2]float64, bool) {
	t0, t1 := 0.0, 1.0
	for axis := 0; axis < 2; axis++ {
		d := b[axis] - a[axis]
		for _, e := range [2]struct{ p, q float64 }{
			{-d, a[axis] - lo[axis]},
			{d, hi[axis] - a[axis]},
		} {
			if e.p == 0 {
				if e.q < 0 {
					return a, b, false
				}
				continue
			}
			r := e.q / e.p
			if e.p < 0 {
				t0 = math.Max(t0, r)
			} else {
				t1 = math.Min(t1, r)
			}
		}
	}
	if t0 > t1 {
		return a, b, false
	}
	ca := [2]float64{a[0] + t0*(b[0]-a[0]), a[1] + t0*(b[1]-a[1])}
	cb := [2]float64{a[0] + t1*(b[0]-a[0]), a[1] + t1*(b[1]-a[1])}
	return ca, cb, true
}

// burn marks every cell within Chebyshev distance brush of c, clipped to the grid.
func (g *Grid) burn(c Cell, brush int) {
	if c.Col+brush < 0 || c.Row+brush < 0 || c.Col-brush >= g.Cols || c.Row-brush >= g.Rows {
		return
	}
	for row := mathhelp.Clamp(c.Row-brush, 0, g.Rows-1); row <= mathhelp.Clamp(c.Row+brush, 0, g.Rows-1); row++ {
		for col := mathhelp.Clamp(c.Col-brush, 0, g.Cols-1); col <= mathhelp.Clamp(c.Col+brush, 0, g.Cols-1); col++ {
			g.cells[row*g.Cols+col] = true
		}
	}
}

// Supercover calls plot for every cell crossed by the segment between the
// centres of a and b, a and b included, in traversal order.
// When the segment passes exactly through a cell corner both axes advance
// at once and the two side cells, which are only touched in that corner,
// are not plotted.
func Supercover(a, b Cell, plot func(Cell)) {
	dx := mathhelp.Abs(b.Col - a.Col)
	dy := mathhelp.Abs(b.Row - a.Row)
	sx := mathhelp.Sign(b.Col - a.Col)
	sy := mathhelp.Sign(b.Row - a.Row)

	c := a
	plot(c)
	// The next vertical boundary is crossed at t = (2ix+1)/2dx and the next
	// horizontal one at t = (2iy+1)/2dy. Cross-multiplied to stay in integers.
	for ix, iy := 0, 0; ix < dx || iy < dy; {
		d := (1+2*ix)*dy - (1+2*iy)*dx
		switch {
		case d < 0:
			c.Col += sx
			ix++
		case d > 0:
			c.Row += sy
			iy++
		default:
			c.Col += sx
			c.Row += sy
			ix++
			iy++
		}
		plot(c)
	}
}

// CloseGaps returns a new grid in which every empty cell that bridges two
// occupied neighbours is occupied: north and south, east and west, or two
// opposite diagonal corners. Decisions only read the input grid.
func CloseGaps(in *Grid) *Grid {
	out := in.clone()
	for row := 0; row < in.Rows; row++ {
		for col := 0; col < in.Cols; col++ {
			if in.Occupied(col, row) {
				continue
			}
			if bridges(in, col, row) {
				out.cells[row*in.Cols+col] = true
			}
		}
	}
	return out
}

func bridges(g *Grid, col, row int) bool {
	n := g.Occupied(col, row-1)
	s := g.Occupied(col, row+1)
	e := g.Occupied(col+1, row)
	w := g.Occupied(col-1, row)
	if (n && s) || (e && w) {
		return true
	}
	ne := g.Occupied(col+1, row-1)
	sw := g.Occupied(col-1, row+1)
	nw := g.Occupied(col-1, row-1)
	se := g.Occupied(col+1, row+1)
	return (ne && sw) || (nw && se)
}
