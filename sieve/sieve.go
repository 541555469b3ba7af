// Package sieve drops road lines too short to matter at a given cell size.
package sieve

import (
	"github.com/go-spatial/geom"

	"github.com/pdok/roadtile/geomhelp"
	"github.com/pdok/roadtile/webmercator"
)

// projectedLength is the length in web mercator metres.
func projectedLength(l geom.LineString) float64 {
	return geomhelp.LineLength(webmercator.ProjectLine(l))
}

// Lines keeps the lines that are at least minLength metres long in
// web mercator. Lines with fewer than two vertices are always dropped,
// a minLength of 0 keeps every other line.
func Lines(lines []geom.LineString, minLength float64) (kept []geom.LineString, dropped int) {
	for _, l := range lines {
		if len(l) < 2 || projectedLength(l) < minLength {
			dropped++
			continue
		}
		kept = append(kept, l)
	}
	return kept, dropped
}
