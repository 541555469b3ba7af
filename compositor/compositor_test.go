package compositor

import (
	"fmt"
	"image"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seehuhn.de/go/geom/vec"

	"github.com/pdok/roadtile/atlas"
	"github.com/pdok/roadtile/autotile"
	"github.com/pdok/roadtile/raster"
)

// linearViewport maps planar metres to pixels with scale px/m, y pointing down.
type linearViewport struct {
	scale  float64
	window Window
	subs   map[int]func(Window)
	nextID int
}

func (v *linearViewport) PixelBounds() Window {
	return v.window
}

func (v *linearViewport) ToPixel(p geom.Point) vec.Vec2 {
	return vec.Vec2{X: p.X() * v.scale, Y: -p.Y() * v.scale}
}

func (v *linearViewport) Subscribe(f func(Window)) func() {
	if v.subs == nil {
		v.subs = make(map[int]func(Window))
	}
	id := v.nextID
	v.nextID++
	v.subs[id] = f
	return func() { delete(v.subs, id) }
}

func (v *linearViewport) move(w Window) {
	v.window = w
	for _, f := range v.subs {
		f(w)
	}
}

type blit struct {
	src, dst image.Rectangle
}

type recordingSurface struct {
	resets int
	width  int
	height int
	origin vec.Vec2
	blits  []blit
}

func (s *recordingSurface) Reset(width, height int, origin vec.Vec2) {
	s.resets++
	s.width, s.height, s.origin = width, height, origin
	s.blits = nil
}

func (s *recordingSurface) DrawSprite(_ image.Image, src, dst image.Rectangle) {
	s.blits = append(s.blits, blit{src, dst})
}

// testGrid is a 5x5 plus sign with its north-west corner at planar (0, 50), cells of 10 m.
func testGrid(t *testing.T) (*raster.Grid, *autotile.MaskGrid) {
	t.Helper()
	g := raster.FromBytes(5, 5, []byte{
		0, 0, 1, 0, 0,
		0, 0, 1, 0, 0,
		1, 1, 1, 1, 1,
		0, 0, 1, 0, 0,
		0, 0, 1, 0, 0,
	})
	g.CellSize = 10
	g.Origin = geom.Point{0, 0}
	g.North = 50
	return g, autotile.Compute(g)
}

func newAttached(t *testing.T, a atlas.Atlas, vp *linearViewport) (*Compositor, *recordingSurface) {
	t.Helper()
	g, m := testGrid(t)
	c, err := New(g, m, a, nil, DefaultOptions())
	require.NoError(t, err)
	s := &recordingSurface{}
	c.OnAttach(vp, SurfaceFunc(func() Surface { return s }))
	return c, s
}

func TestRedrawFullGrid(t *testing.T) {
	// scale 1 px/m: cells are 10 px, the grid spans pixels x 0..50 and y -50..0
	vp := &linearViewport{scale: 1, window: Window{MinX: -10, MinY: -60, MaxX: 70, MaxY: 10}}
	c, s := newAttached(t, atlas.Default(), vp)

	f := c.Last()
	assert.Equal(t, 10, f.CellPx)
	assert.Equal(t, vec.Vec2{X: 0, Y: -50}, f.NW)
	assert.Equal(t, CellRange{0, 0, 4, 4}, f.Range)
	assert.Equal(t, 9, f.Drawn)
	assert.Equal(t, 0, f.Missing)

	assert.Equal(t, 1, s.resets)
	assert.Equal(t, 80, s.width)
	assert.Equal(t, 70, s.height)
	assert.Equal(t, vec.Vec2{X: -10, Y: -60}, s.origin)

	// the centre cell lands at surface position (10 + 2*10, 10 + 2*10)
	centre, _ := atlas.Default().Source(autotile.All)
	assert.Contains(t, s.blits, blit{src: centre, dst: image.Rect(30, 30, 40, 40)})
	tip, _ := atlas.Default().Source(autotile.South)
	assert.Contains(t, s.blits, blit{src: tip, dst: image.Rect(30, 10, 40, 20)})
}

func TestRedrawFollowsZoom(t *testing.T) {
	vp := &linearViewport{scale: 1, window: Window{MinX: 0, MinY: -50, MaxX: 50, MaxY: 0}}
	c, s := newAttached(t, atlas.Default(), vp)
	require.Equal(t, 10, c.Last().CellPx)

	vp.scale = 2.5
	vp.move(Window{MinX: 0, MinY: -125, MaxX: 125, MaxY: 0})
	f := c.Last()
	assert.Equal(t, 25, f.CellPx)
	assert.Equal(t, 2, s.resets)
	centre, _ := atlas.Default().Source(autotile.All)
	assert.Contains(t, s.blits, blit{src: centre, dst: image.Rect(50, 50, 75, 75)})

	vp.scale = 0.01
	vp.move(Window{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10})
	assert.Equal(t, 1, c.Last().CellPx, "never below one pixel")
}

func TestRedrawPartialAtlas(t *testing.T) {
	a := atlas.Atlas{TilePx: 16, Tiles: map[autotile.Mask]atlas.Tile{
		autotile.East | autotile.West: {Col: 0, Row: 0},
	}}
	vp := &linearViewport{scale: 1, window: Window{MinX: 0, MinY: -50, MaxX: 50, MaxY: 0}}
	c, s := newAttached(t, a, vp)
	f := c.Last()
	assert.Equal(t, 2, f.Drawn)
	assert.Equal(t, 7, f.Missing)
	require.Len(t, s.blits, 2)
	assert.Equal(t, image.Rect(0, 0, 16, 16), s.blits[0].src)
}

func TestRedrawCulls(t *testing.T) {
	// a window over column 4 only, well below the grid's top rows
	vp := &linearViewport{scale: 1, window: Window{MinX: 41, MinY: -9, MaxX: 49, MaxY: -1}}
	g, m := testGrid(t)
	c, err := New(g, m, atlas.Default(), nil, Options{Margin: 0})
	require.NoError(t, err)
	s := &recordingSurface{}
	c.OnAttach(vp, SurfaceFunc(func() Surface { return s }))
	assert.Equal(t, CellRange{4, 4, 4, 4}, c.Last().Range)
	assert.Empty(t, s.blits, "cell 4,4 is empty")

	vp.move(Window{MinX: 200, MinY: 200, MaxX: 300, MaxY: 300})
	assert.True(t, c.Last().Range.Empty())
	assert.Empty(t, s.blits)
	assert.Equal(t, 2, s.resets, "the surface is cleared even when nothing is visible")
}

func TestDetachedIsNoop(t *testing.T) {
	g, m := testGrid(t)
	c, err := New(g, m, atlas.Default(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, c.Attached())
	assert.Equal(t, Frame{}, c.OnViewportChanged(Window{MaxX: 100, MaxY: 100}))

	vp := &linearViewport{scale: 1, window: Window{MinX: 0, MinY: -50, MaxX: 50, MaxY: 0}}
	s := &recordingSurface{}
	c.OnAttach(vp, SurfaceFunc(func() Surface { return s }))
	require.True(t, c.Attached())
	c.OnDetach()
	assert.False(t, c.Attached())
	assert.Empty(t, vp.subs, "detach cancels the subscription")

	vp.move(Window{MinX: 0, MinY: -50, MaxX: 60, MaxY: 0})
	assert.Equal(t, 1, s.resets)
	assert.Nil(t, c.Surface())
}

func TestSetMasks(t *testing.T) {
	vp := &linearViewport{scale: 1, window: Window{MinX: 0, MinY: -50, MaxX: 50, MaxY: 0}}
	c, s := newAttached(t, atlas.Default(), vp)
	require.Equal(t, 9, c.Last().Drawn)

	g := raster.FromBytes(5, 5, []byte{1, 1})
	g.CellSize, g.Origin, g.North = 10, geom.Point{0, 0}, 50
	f, err := c.SetMasks(g, autotile.Compute(g))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Drawn)
	assert.Len(t, s.blits, 2)

	_, err = c.SetMasks(g, autotile.Compute(raster.FromBytes(2, 2, nil)))
	require.ErrorIs(t, err, ErrMismatch)
}

func TestNewValidates(t *testing.T) {
	g, m := testGrid(t)
	_, err := New(g, m, atlas.Default(), nil, Options{Margin: -1})
	require.Error(t, err)
	_, err = New(g, m, atlas.Atlas{TilePx: 0}, nil, DefaultOptions())
	require.ErrorIs(t, err, atlas.ErrInvalidAtlas)
	_, err = New(g, autotile.Compute(raster.FromBytes(1, 1, nil)), atlas.Default(), nil, DefaultOptions())
	require.ErrorIs(t, err, ErrMismatch)
	_, err = New(nil, nil, atlas.Default(), nil, DefaultOptions())
	require.ErrorIs(t, err, ErrMismatch)
}

func TestCellPixelSize(t *testing.T) {
	g, _ := testGrid(t)
	tests := []struct {
		scale float64
		want  int
	}{
		{1, 10},
		{0.26, 3},
		{0.24, 2},
		{0.04, 1},
		{0, 1},
		{1e-9, 1},
		{3.04, 30},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.scale), func(t *testing.T) {
			assert.Equal(t, tt.want, CellPixelSize(&linearViewport{scale: tt.scale}, g))
		})
	}
}

func TestVisibleRange(t *testing.T) {
	nw := vec.Vec2{X: 100, Y: 200}
	const cellPx, cols, rows = 8, 50, 40
	tests := []struct {
		name   string
		view   Window
		margin int
		want   CellRange
	}{
		{"exact cells", Window{MinX: 100 + 3*8, MinY: 200 + 5*8, MaxX: 100 + 10*8 - 1, MaxY: 200 + 9*8 - 1}, 0, CellRange{3, 5, 9, 8}},
		{"with margin", Window{MinX: 100 + 3*8, MinY: 200 + 5*8, MaxX: 100 + 10*8 - 1, MaxY: 200 + 9*8 - 1}, 2, CellRange{1, 3, 11, 10}},
		{"clamped", Window{MinX: 0, MinY: 0, MaxX: 10000, MaxY: 10000}, 2, CellRange{0, 0, 49, 39}},
		{"fractional edges", Window{MinX: 123.5, MinY: 241.9, MaxX: 124.2, MaxY: 242.1}, 0, CellRange{2, 5, 3, 5}},
		{"left of grid", Window{MinX: 0, MinY: 200, MaxX: 99, MaxY: 300}, 2, emptyRange},
		{"below grid", Window{MinX: 100, MinY: 200 + 40*8, MaxX: 300, MaxY: 900}, 2, emptyRange},
		{"empty window", Window{MinX: 150, MinY: 250, MaxX: 150, MaxY: 260}, 2, emptyRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VisibleRange(tt.view, nw, cellPx, cols, rows, tt.margin))
		})
	}
	assert.True(t, VisibleRange(Window{MaxX: 10, MaxY: 10}, vec.Vec2{}, 8, 0, 0, 2).Empty())
}

func TestVisibleRangeSuperset(t *testing.T) {
	nw := vec.Vec2{X: -37.25, Y: 12.5}
	const cols, rows, margin = 64, 48, 2
	for _, cellPx := range []int{1, 3, 7, 32} {
		for c0 := 0; c0 < cols; c0 += 9 {
			for c1 := c0; c1 < cols; c1 += 13 {
				r0, r1 := c0*rows/cols, c1*rows/cols
				view := Window{
					MinX: nw.X + float64(c0*cellPx),
					MinY: nw.Y + float64(r0*cellPx),
					MaxX: nw.X + float64((c1+1)*cellPx) - 0.5,
					MaxY: nw.Y + float64((r1+1)*cellPx) - 0.5,
				}
				got := VisibleRange(view, nw, cellPx, cols, rows, margin)
				name := fmt.Sprintf("px %d cols %d..%d rows %d..%d", cellPx, c0, c1, r0, r1)
				assert.True(t, got.Contains(c0, r0) && got.Contains(c1, r1), name)
				assert.GreaterOrEqual(t, got.MinCol, c0-margin, name)
				assert.LessOrEqual(t, got.MaxCol, c1+margin, name)
				assert.GreaterOrEqual(t, got.MinRow, r0-margin, name)
				assert.LessOrEqual(t, got.MaxRow, r1+margin, name)
			}
		}
	}
}
