// Package webmercator converts between geographic lon/lat (degrees, EPSG:4326)
// and planar spherical Mercator metres (EPSG:3857), the projection of the
// common slippy map tile services.
package webmercator

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// SRID of the planar coordinates produced by Project.
const SRID = 3857

// EarthRadius is the sphere radius in metres.
const EarthRadius = orb.EarthRadius

// MaxExtent is the planar half-width of the world, the x of the antimeridian.
const MaxExtent = math.Pi * EarthRadius

// InDomain reports whether a planar point is finite and no further than one world
// width beyond the antimeridian or the clamped poles on either axis.
func InDomain(p geom.Point) bool {
	const limit = 2 * MaxExtent
	return math.Abs(p.X()) <= limit && math.Abs(p.Y()) <= limit
}

// Project returns the planar coordinate of lon, lat.
// Latitudes at or beyond the poles are clamped to the edge of the projection.
func Project(lon, lat float64) geom.Point {
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return geom.Point{p[0], p[1]}
}

// Unproject is the inverse of Project.
func Unproject(pt geom.Point) (lon, lat float64) {
	p := project.Mercator.ToWGS84(orb.Point{pt[0], pt[1]})
	return p[0], p[1]
}

// ProjectLine projects every vertex of a lon/lat line string.
func ProjectLine(line geom.LineString) geom.LineString {
	projected := make(geom.LineString, len(line))
	for i, v := range line {
		projected[i] = Project(v[0], v[1])
	}
	return projected
}
