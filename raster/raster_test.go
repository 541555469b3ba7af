package raster

import (
	"fmt"
	"math"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/roadtile/webmercator"
)

func TestDims(t *testing.T) {
	tests := []struct {
		width, height, cellSize float64
		cols, rows              int
	}{
		{100, 50, 10, 10, 5},
		{101, 50, 10, 11, 5},
		{0.5, 0.5, 10, 1, 1},
		{0, 50, 10, 0, 5},
		{-20, -20, 10, 0, 0},
		{30, 30, 1.5, 20, 20},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%vx%v/%v", tt.width, tt.height, tt.cellSize), func(t *testing.T) {
			cols, rows := Dims(tt.width, tt.height, tt.cellSize)
			assert.Equal(t, tt.cols, cols)
			assert.Equal(t, tt.rows, rows)
		})
	}
}

// planarBounds returns lon/lat bounds whose projection spans the given planar metres.
func planarBounds(minX, minY, maxX, maxY float64) Bounds {
	w, s := webmercator.Unproject(geom.Point{minX, minY})
	e, n := webmercator.Unproject(geom.Point{maxX, maxY})
	return Bounds{West: w, South: s, East: e, North: n}
}

func TestNewDegenerateBounds(t *testing.T) {
	tests := []struct {
		name   string
		bounds Bounds
	}{
		{"west equals east", Bounds{West: 5, South: 52, East: 5, North: 53}},
		{"west after east", Bounds{West: 6, South: 52, East: 5, North: 53}},
		{"south after north", Bounds{West: 5, South: 53, East: 6, North: 52}},
		{"zero", Bounds{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Bounds = tt.bounds
			cfg.Lines = []geom.LineString{{{5, 52}, {6, 53}}}
			cfg.ClosePasses = 2
			g, err := Rasterize(cfg)
			require.NoError(t, err)
			assert.Equal(t, 0, g.Cols)
			assert.Equal(t, 0, g.Rows)
			assert.Empty(t, g.Bytes())
			assert.False(t, g.Occupied(0, 0))
		})
	}
}

func TestNewHalfCells(t *testing.T) {
	g := New(planarBounds(0, 0, 195, 95), 10)
	assert.Equal(t, 20, g.Cols)
	assert.Equal(t, 10, g.Rows)
	assert.Len(t, g.Bytes(), 200)
}

func TestNewExactCells(t *testing.T) {
	for _, k := range []float64{1, 3, 7, 10, 13, 100, 1000} {
		t.Run(fmt.Sprint(k), func(t *testing.T) {
			g := New(planarBounds(1000, 2000, 1000+k*10, 2000+k*10), 10)
			assert.Equal(t, int(k), g.Cols)
			assert.Equal(t, int(k), g.Rows)
		})
	}
	g := New(planarBounds(1000, 2000, 1101, 2101), 10)
	assert.Equal(t, 11, g.Cols)
	assert.Equal(t, 11, g.Rows)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10.0, cfg.CellSize)
	assert.Equal(t, 1, cfg.Brush)
	require.NoError(t, cfg.Validate())

	for name, mutate := range map[string]func(*Config){
		"zero cell size":     func(c *Config) { c.CellSize = 0 },
		"negative cell size": func(c *Config) { c.CellSize = -1 },
		"nan cell size":      func(c *Config) { c.CellSize = math.NaN() },
		"negative brush":     func(c *Config) { c.Brush = -1 },
		"negative passes":    func(c *Config) { c.ClosePasses = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			_, err := Rasterize(c)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func collect(a, b Cell) []Cell {
	var cells []Cell
	Supercover(a, b, func(c Cell) { cells = append(cells, c) })
	return cells
}

func TestSupercoverShapes(t *testing.T) {
	tests := []struct {
		name string
		a, b Cell
		want []Cell
	}{
		{"single cell", Cell{3, 3}, Cell{3, 3}, []Cell{{3, 3}}},
		{"horizontal", Cell{0, 2}, Cell{3, 2}, []Cell{{0, 2}, {1, 2}, {2, 2}, {3, 2}}},
		{"horizontal reversed", Cell{3, 2}, Cell{1, 2}, []Cell{{3, 2}, {2, 2}, {1, 2}}},
		{"vertical", Cell{1, 0}, Cell{1, 3}, []Cell{{1, 0}, {1, 1}, {1, 2}, {1, 3}}},
		{"vertical up", Cell{1, 2}, Cell{1, 0}, []Cell{{1, 2}, {1, 1}, {1, 0}}},
		{"diagonal", Cell{0, 0}, Cell{3, 3}, []Cell{{0, 0}, {1, 1}, {2, 2}, {3, 3}}},
		{"anti diagonal", Cell{2, 0}, Cell{0, 2}, []Cell{{2, 0}, {1, 1}, {0, 2}}},
		{"neighbour", Cell{4, 4}, Cell{5, 4}, []Cell{{4, 4}, {5, 4}}},
		{"knight", Cell{0, 0}, Cell{2, 1}, []Cell{{0, 0}, {1, 0}, {1, 1}, {2, 1}}},
		{"corner through middle", Cell{0, 0}, Cell{2, 6}, []Cell{
			{0, 0}, {0, 1}, {1, 2}, {1, 3}, {1, 4}, {2, 5}, {2, 6},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(tt.a, tt.b))
		})
	}
}

func TestSupercoverCoverage(t *testing.T) {
	for dx := -7; dx <= 7; dx++ {
		for dy := -7; dy <= 7; dy++ {
			a := Cell{10, 10}
			b := Cell{10 + dx, 10 + dy}
			t.Run(fmt.Sprintf("%+d,%+d", dx, dy), func(t *testing.T) {
				cells := collect(a, b)
				require.Equal(t, a, cells[0])
				require.Equal(t, b, cells[len(cells)-1])
				visited := make(map[Cell]bool, len(cells))
				for i, c := range cells {
					require.False(t, visited[c], "cell %v visited twice", c)
					visited[c] = true
					if i > 0 {
						p := cells[i-1]
						assert.LessOrEqual(t, abs(c.Col-p.Col), 1)
						assert.LessOrEqual(t, abs(c.Row-p.Row), 1)
					}
				}
				// sample the centre to centre segment densely, every sampled cell must be visited
				const steps = 2000
				for s := 0; s <= steps; s++ {
					f := float64(s) / steps
					x := float64(a.Col) + 0.5 + f*float64(dx)
					y := float64(a.Row) + 0.5 + f*float64(dy)
					if nearCorner(x, y) {
						continue
					}
					c := Cell{int(math.Floor(x)), int(math.Floor(y))}
					assert.True(t, visited[c], "sample (%v,%v) in %v not visited", x, y, c)
				}
			})
		}
	}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func nearCorner(x, y float64) bool {
	const eps = 1e-6
	fx := math.Abs(x - math.Round(x))
	fy := math.Abs(y - math.Round(y))
	return fx < eps && fy < eps
}

func TestBrush(t *testing.T) {
	g := FromBytes(5, 5, nil)
	g.burn(Cell{0, 0}, 1)
	assert.Equal(t, []byte{
		1, 1, 0, 0, 0,
		1, 1, 0, 0, 0,
		0, 0, 0, 0, 0,
		0, 0, 0, 0, 0,
		0, 0, 0, 0, 0,
	}, g.Bytes())

	g = FromBytes(5, 5, nil)
	g.burn(Cell{2, 2}, 2)
	assert.Equal(t, 25, g.Count())

	g = FromBytes(5, 5, nil)
	g.burn(Cell{-3, 2}, 1)
	assert.Equal(t, 0, g.Count())
	g.burn(Cell{-1, 2}, 1)
	assert.Equal(t, 3, g.Count())
}

func TestCloseGaps(t *testing.T) {
	tests := []struct {
		name     string
		in, want []byte
	}{
		{
			name: "horizontal bridge",
			in: []byte{
				0, 0, 0,
				1, 0, 1,
				0, 0, 0,
			},
			want: []byte{
				0, 0, 0,
				1, 1, 1,
				0, 0, 0,
			},
		},
		{
			name: "vertical bridge",
			in: []byte{
				0, 1, 0,
				0, 0, 0,
				0, 1, 0,
			},
			want: []byte{
				0, 1, 0,
				0, 1, 0,
				0, 1, 0,
			},
		},
		{
			name: "diagonal bridge",
			in: []byte{
				1, 0, 0,
				0, 0, 0,
				0, 0, 1,
			},
			want: []byte{
				1, 0, 0,
				0, 1, 0,
				0, 0, 1,
			},
		},
		{
			name: "single pass does not chain",
			in: []byte{
				1, 0, 0, 1,
			},
			want: []byte{
				1, 0, 0, 1,
			},
		},
		{
			name: "isolated cell untouched",
			in: []byte{
				0, 0, 0,
				0, 1, 0,
				0, 0, 0,
			},
			want: []byte{
				0, 0, 0,
				0, 1, 0,
				0, 0, 0,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := 3
			if len(tt.in) == 4 {
				cols = 4
			}
			in := FromBytes(cols, len(tt.in)/cols, tt.in)
			before := in.Bytes()
			out := CloseGaps(in)
			assert.Equal(t, tt.want, out.Bytes())
			assert.Equal(t, before, in.Bytes(), "input must not be modified")
		})
	}
}

func TestCloseGapsOrderIndependent(t *testing.T) {
	// a checkerboard: every empty cell bridges, each decision must see the original grid
	in := FromBytes(4, 4, []byte{
		1, 0, 1, 0,
		0, 1, 0, 1,
		1, 0, 1, 0,
		0, 1, 0, 1,
	})
	out := CloseGaps(in)
	assert.Equal(t, []byte{
		1, 1, 1, 0,
		1, 1, 1, 1,
		1, 1, 1, 1,
		0, 1, 1, 1,
	}, out.Bytes())
}

func TestCloseGapsFixedPoint(t *testing.T) {
	g := FromBytes(6, 6, []byte{
		1, 0, 0, 0, 0, 1,
		0, 0, 0, 0, 0, 0,
		0, 0, 1, 0, 0, 0,
		0, 0, 0, 0, 0, 0,
		1, 0, 1, 0, 0, 0,
		0, 0, 0, 0, 0, 0,
	})
	for i := 0; i < 36; i++ {
		next := CloseGaps(g)
		if next.Equal(g) {
			break
		}
		g = next
	}
	again := CloseGaps(g)
	assert.True(t, again.Equal(g))
	assert.Equal(t, g.Bytes(), again.Bytes())
}

func TestRasterizeHorizontalLine(t *testing.T) {
	// 14 vertices from x=5 to x=125 at y=45 in a 195 x 95 metre area: 13 cells in row 5
	line := make(geom.LineString, 14)
	for i := range line {
		lon, lat := webmercator.Unproject(geom.Point{5 + 120*float64(i)/13, 45})
		line[i] = [2]float64{lon, lat}
	}
	cfg := DefaultConfig()
	cfg.Bounds = planarBounds(0, 0, 195, 95)
	cfg.Brush = 0
	cfg.Lines = []geom.LineString{line}

	g, err := Rasterize(cfg)
	require.NoError(t, err)
	require.Equal(t, 20, g.Cols)
	require.Equal(t, 10, g.Rows)
	assert.Equal(t, 13, g.Count())
	for col := 0; col < 13; col++ {
		assert.True(t, g.Occupied(col, 5), "col %d", col)
	}
	assert.True(t, CloseGaps(g).Equal(g))

	cfg.Brush = 1
	thick, err := Rasterize(cfg)
	require.NoError(t, err)
	assert.Equal(t, 14*3, thick.Count())
}

func TestRasterizeSkipsShortLines(t *testing.T) {
	lon, lat := webmercator.Unproject(geom.Point{55, 45})
	cfg := DefaultConfig()
	cfg.Bounds = planarBounds(0, 0, 95, 95)
	cfg.Brush = 0
	cfg.Lines = []geom.LineString{nil, {}, {{lon, lat}}}
	g, err := Rasterize(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Count())
}

func TestRasterizeClipsOutside(t *testing.T) {
	a, b := webmercator.Unproject(geom.Point{-500, 45})
	c, d := webmercator.Unproject(geom.Point{500, 45})
	cfg := DefaultConfig()
	cfg.Bounds = planarBounds(0, 0, 95, 95)
	cfg.Brush = 0
	cfg.Lines = []geom.LineString{{{a, b}, {c, d}}}
	g, err := Rasterize(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, g.Count())
}

func TestCellOfAndExtent(t *testing.T) {
	g := New(planarBounds(0, 0, 95, 95), 10)
	assert.Equal(t, Cell{0, 0}, g.CellOf(geom.Point{1, 94}))
	assert.Equal(t, Cell{9, 9}, g.CellOf(geom.Point{94, 1}))
	assert.Equal(t, Cell{-1, 10}, g.CellOf(geom.Point{-1, -6}))

	ext := g.CellExtent(2, 3)
	assert.InDelta(t, 20, ext.MinX(), 1e-6)
	assert.InDelta(t, 55, ext.MinY(), 1e-6)
	assert.InDelta(t, 30, ext.MaxX(), 1e-6)
	assert.InDelta(t, 65, ext.MaxY(), 1e-6)
}

func TestBoundsOf(t *testing.T) {
	_, ok := BoundsOf(nil)
	assert.False(t, ok)
	b, ok := BoundsOf([]geom.LineString{{{1, 5}, {3, 2}}, {{-1, 4}}})
	require.True(t, ok)
	assert.Equal(t, Bounds{West: -1, South: 2, East: 3, North: 5}, b)
	assert.True(t, b.Valid())
	assert.Equal(t, Bounds{West: -2, South: 1, East: 4, North: 6}, b.Expand(1))
}

func TestRasterizeFarVertices(t *testing.T) {
	bounds := Bounds{West: 5, South: 52, East: 5.01, North: 52.01}
	tests := []struct {
		name string
		line geom.LineString
		want int
	}{
		{name: "huge longitude dropped", line: geom.LineString{{5.005, 52.005}, {1e9, 52.005}}, want: 1},
		{name: "infinite longitude dropped", line: geom.LineString{{5.005, 52.005}, {math.Inf(1), 52}}, want: 1},
		{name: "nan latitude dropped", line: geom.LineString{{math.NaN(), 52.005}, {5.005, math.NaN()}}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Bounds = bounds
			cfg.Brush = 0
			cfg.Lines = []geom.LineString{tt.line}
			g, err := Rasterize(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Count())
		})
	}
}

func TestRasterizeLongSegmentClipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bounds = Bounds{West: 5, South: 52, East: 5.01, North: 52.01}
	cfg.Brush = 0
	cfg.Lines = []geom.LineString{{{5.005, 52.005}, {300, 52.005}}}
	g, err := Rasterize(cfg)
	require.NoError(t, err)

	start := g.CellOf(webmercator.Project(5.005, 52.005))
	assert.Equal(t, g.Cols-start.Col, g.Count())
	for col := start.Col; col < g.Cols; col++ {
		assert.True(t, g.Occupied(col, start.Row), "col %d", col)
	}
}

func TestClipSegment(t *testing.T) {
	lo, hi := [2]float64{0, 0}, [2]float64{10, 5}
	tests := []struct {
		name   string
		a, b   [2]float64
		wantA  [2]float64
		wantB  [2]float64
		inside bool
	}{
		{name: "inside", a: [2]float64{1, 1}, b: [2]float64{4, 2}, wantA: [2]float64{1, 1}, wantB: [2]float64{4, 2}, inside: true},
		{name: "crosses east", a: [2]float64{5, 2}, b: [2]float64{1e12, 2}, wantA: [2]float64{5, 2}, wantB: [2]float64{10, 2}, inside: true},
		{name: "crosses both", a: [2]float64{-10, 1}, b: [2]float64{20, 4}, wantA: [2]float64{0, 2}, wantB: [2]float64{10, 3}, inside: true},
		{name: "above", a: [2]float64{1, -3}, b: [2]float64{8, -1}, inside: false},
		{name: "parallel outside", a: [2]float64{-2, 1}, b: [2]float64{-2, 4}, inside: false},
		{name: "misses corner", a: [2]float64{-3, 3}, b: [2]float64{1, 7}, inside: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, ok := clipSegment(tt.a, tt.b, lo, hi)
			require.Equal(t, tt.inside, ok)
			if !ok {
				return
			}
			assert.InDeltaSlice(t, tt.wantA[:], a[:], 1e-9)
			assert.InDeltaSlice(t, tt.wantB[:], b[:], 1e-9)
		})
	}
}
