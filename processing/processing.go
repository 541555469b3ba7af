// Package processing takes care of the logistics around reading road features
// from a Source and writing masked cells to a Target.
// Not the rasterizing itself.
package processing

import (
	"log"
	"sort"
	"sync"

	"github.com/go-spatial/geom"

	"github.com/pdok/roadtile/autotile"
	"github.com/pdok/roadtile/extract"
	"github.com/pdok/roadtile/geomhelp"
	"github.com/pdok/roadtile/morton"
	"github.com/pdok/roadtile/raster"
	"github.com/pdok/roadtile/webmercator"
)

// CellColumns are the attribute columns of an exported cell, in order.
var CellColumns = []string{"col", "row", "mask"}

// CollectLines reads all features from source and flattens their geometries
// into line strings. Features without line geometry are skipped.
func CollectLines(source Source) []geom.LineString {
	features := make(chan Feature)
	go source.ReadFeatures(features)

	var lines []geom.LineString
	var featureCount, skippedCount uint64
	for feature := range features {
		featureCount++
		found := extract.FromGeometry(feature.Geometry())
		if len(found) == 0 {
			skippedCount++
			log.Printf("    skipping feature without lines: %s", geomhelp.WktMustEncode(feature.Geometry(), 80))
			continue
		}
		lines = append(lines, found...)
	}

	log.Printf("    total features: %d", featureCount)
	log.Printf("           skipped: %d", skippedCount)
	log.Printf("             lines: %d", len(lines))
	return lines
}

type cellFeature struct {
	columns  []interface{}
	geometry geom.Geometry
}

func (f cellFeature) Columns() []interface{} {
	return f.columns
}

func (f cellFeature) Geometry() geom.Geometry {
	return f.geometry
}

type maskedCell struct {
	z        morton.Z
	col, row int
	mask     autotile.Mask
}

// MaskedCells returns the occupied cells with a non-zero mask, ordered
// along the Morton curve so neighbouring cells end up near each other.
func MaskedCells(masks *autotile.MaskGrid) []raster.Cell {
	cells := maskedCells(masks)
	result := make([]raster.Cell, len(cells))
	for i, c := range cells {
		result[i] = raster.Cell{Col: c.col, Row: c.row}
	}
	return result
}

func maskedCells(masks *autotile.MaskGrid) []maskedCell {
	var cells []maskedCell
	for row := 0; row < masks.Rows; row++ {
		for col := 0; col < masks.Cols; col++ {
			m := masks.At(col, row)
			if m == autotile.None {
				continue
			}
			cells = append(cells, maskedCell{z: morton.MustToZ(uint(col), uint(row)), col: col, row: row, mask: m})
		}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].z < cells[j].z })
	return cells
}

// CellPolygon returns the cell outline in lon/lat, counter-clockwise.
func CellPolygon(grid *raster.Grid, col, row int) geom.Polygon {
	ext := grid.CellExtent(col, row)
	corners := [][2]float64{
		{ext.MinX(), ext.MinY()},
		{ext.MaxX(), ext.MinY()},
		{ext.MaxX(), ext.MaxY()},
		{ext.MinX(), ext.MaxY()},
	}
	ring := make([][2]float64, len(corners))
	for i, c := range corners {
		lon, lat := webmercator.Unproject(c)
		ring[i] = [2]float64{lon, lat}
	}
	return geom.Polygon{ring}
}

// ExportCells writes every masked cell as a polygon feature with CellColumns to the targets.
func ExportCells(grid *raster.Grid, masks *autotile.MaskGrid, targets ...Target) {
	channels := make([]chan Feature, len(targets))
	wg := sync.WaitGroup{}
	for i, target := range targets {
		channels[i] = make(chan Feature)
		wg.Add(1)
		go func(target Target, features <-chan Feature) {
			defer wg.Done()
			target.WriteFeatures(features)
		}(target, channels[i])
	}

	var count uint64
	for _, c := range maskedCells(masks) {
		f := cellFeature{
			columns:  []interface{}{int64(c.col), int64(c.row), int64(c.mask)},
			geometry: CellPolygon(grid, c.col, c.row),
		}
		for _, ch := range channels {
			ch <- f
		}
		count++
	}
	for _, ch := range channels {
		close(ch)
	}
	wg.Wait()
	log.Printf("    exported cells: %d", count)
}
