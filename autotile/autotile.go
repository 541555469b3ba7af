// Package autotile derives 4-neighbour connectivity masks from an occupancy grid.
package autotile

import (
	"runtime"
	"strings"
	"sync"
)

// Mask holds one bit per occupied axis-aligned neighbour.
type Mask uint8

const (
	North Mask = 1 << iota
	East
	South
	West

	None Mask = 0
	All       = North | East | South | West
)

func (m Mask) Has(bit Mask) bool {
	return m&bit == bit
}

func (m Mask) String() string {
	if m == None {
		return "-"
	}
	var parts []string
	for _, b := range []struct {
		bit  Mask
		name string
	}{{North, "N"}, {East, "E"}, {South, "S"}, {West, "W"}} {
		if m.Has(b.bit) {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, "|")
}

// Occupancy is a read-only grid of occupied cells.
// Occupied must report false for cells outside the grid.
type Occupancy interface {
	Dims() (cols, rows int)
	Occupied(col, row int) bool
}

// Bitmask returns the mask of one cell, 0 when the cell itself is empty.
func Bitmask(occ Occupancy, col, row int) Mask {
	if !occ.Occupied(col, row) {
		return None
	}
	var m Mask
	if occ.Occupied(col, row-1) {
		m |= North
	}
	if occ.Occupied(col+1, row) {
		m |= East
	}
	if occ.Occupied(col, row+1) {
		m |= South
	}
	if occ.Occupied(col-1, row) {
		m |= West
	}
	return m
}

// MaskGrid is the mask for every cell of an occupancy grid, row*Cols+col.
type MaskGrid struct {
	Cols, Rows int
	masks      []Mask
}

// At returns None outside the grid.
func (g *MaskGrid) At(col, row int) Mask {
	if col < 0 || row < 0 || col >= g.Cols || row >= g.Rows {
		return None
	}
	return g.masks[row*g.Cols+col]
}

func (g *MaskGrid) Dims() (cols, rows int) {
	return g.Cols, g.Rows
}

// Values returns a copy of the flat mask slice.
func (g *MaskGrid) Values() []Mask {
	v := make([]Mask, len(g.masks))
	copy(v, g.masks)
	return v
}

// Histogram counts the cells per non-zero mask.
func (g *MaskGrid) Histogram() map[Mask]int {
	h := make(map[Mask]int)
	for _, m := range g.masks {
		if m != None {
			h[m]++
		}
	}
	return h
}

// rows per band before the work is split over goroutines
const bandRows = 256

// Compute returns the masks for every cell. Large grids are split in row
// bands computed in parallel. The result only depends on occ.
func Compute(occ Occupancy) *MaskGrid {
	cols, rows := occ.Dims()
	g := &MaskGrid{Cols: cols, Rows: rows, masks: make([]Mask, cols*rows)}
	if rows <= bandRows {
		computeRows(occ, g, 0, rows)
		return g
	}

	bands := make(chan int)
	wg := sync.WaitGroup{}
	for w := 0; w < runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for from := range bands {
				computeRows(occ, g, from, min(from+bandRows, rows))
			}
		}()
	}
	for from := 0; from < rows; from += bandRows {
		bands <- from
	}
	close(bands)
	wg.Wait()
	return g
}

func computeRows(occ Occupancy, g *MaskGrid, from, to int) {
	for row := from; row < to; row++ {
		for col := 0; col < g.Cols; col++ {
			g.masks[row*g.Cols+col] = Bitmask(occ, col, row)
		}
	}
}
