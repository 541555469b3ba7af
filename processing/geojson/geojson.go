// Package geojson reads road lines from and writes cells to GeoJSON.
package geojson

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/pdok/roadtile/extract"
	"github.com/pdok/roadtile/processing"
)

type lineFeature struct {
	line geom.LineString
}

func (f lineFeature) Columns() []interface{} {
	return nil
}

func (f lineFeature) Geometry() geom.Geometry {
	return f.line
}

// Source yields every line string of a GeoJSON document as one feature.
type Source struct {
	lines []geom.LineString
}

// Open reads and parses the GeoJSON file at path.
func Open(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Source, error) {
	lines, err := extract.Lines(data)
	if err != nil {
		return nil, err
	}
	return &Source{lines: lines}, nil
}

func (s *Source) ReadFeatures(features chan<- processing.Feature) {
	defer close(features)
	for _, l := range s.lines {
		features <- lineFeature{line: l}
	}
}

// Target collects features into a FeatureCollection and encodes it to W
// once the channel closes. Columns name the feature properties in order.
type Target struct {
	W       io.Writer
	Columns []string
	Err     error
}

func NewTarget(w io.Writer, columns ...string) *Target {
	return &Target{W: w, Columns: columns}
}

func (t *Target) WriteFeatures(features <-chan processing.Feature) {
	fc := geojson.NewFeatureCollection()
	for f := range features {
		g := ToOrb(f.Geometry())
		if g == nil {
			log.Printf("skipping feature with geometry %T", f.Geometry())
			continue
		}
		feature := geojson.NewFeature(g)
		for i, v := range f.Columns() {
			feature.Properties[t.column(i)] = v
		}
		fc.Append(feature)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		t.Err = fmt.Errorf("error encoding GeoJSON: %w", err)
		return
	}
	if _, err = t.W.Write(data); err != nil {
		t.Err = fmt.Errorf("error writing GeoJSON: %w", err)
	}
}

func (t *Target) column(i int) string {
	if i < len(t.Columns) {
		return t.Columns[i]
	}
	return fmt.Sprintf("column%d", i)
}

// ToOrb converts the geometries roadtile writes. Polygon rings are closed.
func ToOrb(g geom.Geometry) orb.Geometry {
	switch v := g.(type) {
	case geom.Point:
		return orb.Point(v)
	case geom.LineString:
		return lineString(v)
	case geom.MultiLineString:
		mls := make(orb.MultiLineString, len(v))
		for i, l := range v {
			mls[i] = lineString(l)
		}
		return mls
	case geom.Polygon:
		poly := make(orb.Polygon, len(v))
		for i, r := range v {
			ring := orb.Ring(lineString(r))
			if len(ring) > 0 && !ring.Closed() {
				ring = append(ring, ring[0])
			}
			poly[i] = ring
		}
		return poly
	}
	return nil
}

func lineString(points [][2]float64) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point(p)
	}
	return ls
}
