// Package lineindex finds the road lines near a cell or extent.
package lineindex

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/go-spatial/geom"

	"github.com/pdok/roadtile/raster"
	"github.com/pdok/roadtile/webmercator"
)

// epsilon pads zero width extents of axis aligned lines, in meters.
const epsilon = 0.01

type indexedLine struct {
	id     int
	extent [4]float64
}

// Bounds implements rtreego.Spatial.
func (l *indexedLine) Bounds() rtreego.Rect {
	return rect(l.extent)
}

func rect(ext [4]float64) rtreego.Rect {
	point := rtreego.Point{ext[0], ext[1]}
	lengths := []float64{ext[2] - ext[0], ext[3] - ext[1]}
	for i := range lengths {
		if lengths[i] < epsilon {
			lengths[i] = epsilon
		}
	}
	r, _ := rtreego.NewRect(point, lengths)
	return r
}

// Index holds the projected extent of every line, keyed by its position
// in the slice passed to New.
type Index struct {
	rtree *rtreego.Rtree
	lines []geom.LineString
}

func New(lines []geom.LineString) *Index {
	idx := &Index{rtree: rtreego.NewTree(2, 25, 50), lines: lines}
	for i, l := range lines {
		if len(l) == 0 {
			continue
		}
		ext := geom.NewExtent(webmercator.ProjectLine(l)...)
		idx.rtree.Insert(&indexedLine{id: i, extent: ext.Extent()})
	}
	return idx
}

func (idx *Index) Size() int {
	return idx.rtree.Size()
}

func (idx *Index) Line(id int) geom.LineString {
	return idx.lines[id]
}

// Search returns the ids of the lines whose extent intersects ext, ascending.
// ext is in web mercator.
func (idx *Index) Search(ext geom.Extent) []int {
	found := idx.rtree.SearchIntersect(rect(ext.Extent()))
	ids := make([]int, len(found))
	for i, s := range found {
		ids[i] = s.(*indexedLine).id
	}
	sort.Ints(ids)
	return ids
}

// AtCell returns the lines that may have burned the cell with the given brush.
func (idx *Index) AtCell(grid *raster.Grid, col, row, brush int) []int {
	ext := grid.CellExtent(col, row)
	pad := float64(brush) * grid.CellSize
	return idx.Search(geom.Extent{ext.MinX() - pad, ext.MinY() - pad, ext.MaxX() + pad, ext.MaxY() + pad})
}
