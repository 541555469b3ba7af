package raster

import (
	"math"

	"github.com/go-spatial/geom"

	"github.com/pdok/roadtile/mathhelp"
	"github.com/pdok/roadtile/webmercator"
)

// Bounds is an area of interest in degrees.
type Bounds struct {
	West  float64 `yaml:"west" json:"west"`
	South float64 `yaml:"south" json:"south"`
	East  float64 `yaml:"east" json:"east"`
	North float64 `yaml:"north" json:"north"`
}

// Valid reports whether the bounds have a positive extent on both axes.
func (b Bounds) Valid() bool {
	return b.West < b.East && b.South < b.North
}

// Expand grows the bounds by d degrees on every side.
func (b Bounds) Expand(d float64) Bounds {
	return Bounds{West: b.West - d, South: b.South - d, East: b.East + d, North: b.North + d}
}

// BoundsOf returns the bounding box of all vertices, false when there are none.
func BoundsOf(lines []geom.LineString) (Bounds, bool) {
	b := Bounds{West: math.Inf(1), South: math.Inf(1), East: math.Inf(-1), North: math.Inf(-1)}
	found := false
	for _, l := range lines {
		for _, v := range l {
			b.West = math.Min(b.West, v[0])
			b.East = math.Max(b.East, v[0])
			b.South = math.Min(b.South, v[1])
			b.North = math.Max(b.North, v[1])
			found = true
		}
	}
	if !found {
		return Bounds{}, false
	}
	return b, true
}

// Cell addresses a grid cell. Row 0 is the northern edge.
type Cell struct {
	Col, Row int
}

// Grid is an occupancy field of Cols x Rows cells, stored row*Cols+col.
type Grid struct {
	Cols     int
	Rows     int
	CellSize float64
	// Origin is the planar south-west corner of the bounds.
	Origin geom.Point
	// North is the planar y of the northern edge, rows count down from it.
	North float64

	cells []bool
}

// Dims returns the cell counts needed to cover width x height metres.
func Dims(width, height, cellSize float64) (cols, rows int) {
	return mathhelp.CeilDiv(width, cellSize), mathhelp.CeilDiv(height, cellSize)
}

// New returns an empty grid covering bounds. Degenerate bounds give a 0 x 0 grid.
func New(bounds Bounds, cellSize float64) *Grid {
	sw := webmercator.Project(bounds.West, bounds.South)
	ne := webmercator.Project(bounds.East, bounds.North)
	g := &Grid{CellSize: cellSize, Origin: sw, North: ne.Y()}
	if bounds.Valid() {
		g.Cols, g.Rows = Dims(ne.X()-sw.X(), ne.Y()-sw.Y(), cellSize)
	}
	if g.Cols == 0 || g.Rows == 0 {
		g.Cols, g.Rows = 0, 0
	}
	g.cells = make([]bool, g.Cols*g.Rows)
	return g
}

// FromBytes builds a grid from a flat row-major 0/1 slice, mostly for tests and tools.
func FromBytes(cols, rows int, data []byte) *Grid {
	g := &Grid{Cols: cols, Rows: rows, CellSize: 1, cells: make([]bool, cols*rows)}
	for i := range g.cells {
		if i < len(data) {
			g.cells[i] = data[i] != 0
		}
	}
	g.North = float64(rows)
	return g
}

func (g *Grid) Dims() (cols, rows int) {
	return g.Cols, g.Rows
}

func (g *Grid) inside(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.Cols && row < g.Rows
}

// Index returns row*Cols+col, or -1 outside the grid.
func (g *Grid) Index(col, row int) int {
	if !g.inside(col, row) {
		return -1
	}
	return row*g.Cols + col
}

// Occupied is false for any cell outside the grid.
func (g *Grid) Occupied(col, row int) bool {
	i := g.Index(col, row)
	return i >= 0 && g.cells[i]
}

func (g *Grid) set(col, row int) {
	if i := g.Index(col, row); i >= 0 {
		g.cells[i] = true
	}
}

// Count returns the number of occupied cells.
func (g *Grid) Count() int {
	n := 0
	for _, c := range g.cells {
		n += mathhelp.Bool2int(c)
	}
	return n
}

// Bytes returns the grid as flat row-major 0/1 bytes.
func (g *Grid) Bytes() []byte {
	b := make([]byte, len(g.cells))
	for i, c := range g.cells {
		b[i] = byte(mathhelp.Bool2int(c))
	}
	return b
}

func (g *Grid) Equal(o *Grid) bool {
	if g.Cols != o.Cols || g.Rows != o.Rows {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

func (g *Grid) clone() *Grid {
	c := *g
	c.cells = make([]bool, len(g.cells))
	copy(c.cells, g.cells)
	return &c
}

// CellOf returns the cell containing a planar point. The result may lie outside the grid.
func (g *Grid) CellOf(p geom.Point) Cell {
	return Cell{
		Col: int(math.Floor((p.X() - g.Origin.X()) / g.CellSize)),
		Row: int(math.Floor((g.North - p.Y()) / g.CellSize)),
	}
}

// CellExtent returns the planar extent of a cell.
func (g *Grid) CellExtent(col, row int) geom.Extent {
	minX := g.Origin.X() + float64(col)*g.CellSize
	maxY := g.North - float64(row)*g.CellSize
	return geom.Extent{minX, maxY - g.CellSize, minX + g.CellSize, maxY}
}

// Extent returns the planar extent covered by all cells.
func (g *Grid) Extent() geom.Extent {
	return geom.Extent{
		g.Origin.X(),
		g.North - float64(g.Rows)*g.CellSize,
		g.Origin.X() + float64(g.Cols)*g.CellSize,
		g.North,
	}
}
