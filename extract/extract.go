// Package extract flattens nested geometry containers into plain polylines.
// Anything that is not line geometry is ignored.
package extract

import (
	"encoding/json"
	"fmt"

	"github.com/go-spatial/geom"
)

// Lines decodes a GeoJSON document and returns every line string in it,
// however deeply nested in features, feature collections and geometry
// collections. Unknown or malformed nodes are skipped. An error is only
// returned when data is not JSON at all.
func Lines(data []byte) ([]geom.LineString, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not decode geojson: %w", err)
	}
	var lines []geom.LineString
	walk(raw, func(l geom.LineString) { lines = append(lines, l) })
	return lines, nil
}

func walk(node any, add func(geom.LineString)) {
	switch n := node.(type) {
	case []any:
		// a bare array of nodes
		for _, child := range n {
			walk(child, add)
		}
	case map[string]any:
		t, _ := n["type"].(string)
		switch t {
		case "FeatureCollection":
			walk(n["features"], add)
		case "Feature":
			walk(n["geometry"], add)
		case "GeometryCollection":
			walk(n["geometries"], add)
		case "LineString":
			if l := parseLineString(n["coordinates"]); l != nil {
				add(l)
			}
		case "MultiLineString":
			arr, _ := n["coordinates"].([]any)
			for _, el := range arr {
				if l := parseLineString(el); l != nil {
					add(l)
				}
			}
		}
	}
}

func parseLineString(v any) geom.LineString {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var l geom.LineString
	for _, el := range arr {
		if pt, ok := parsePoint(el); ok {
			l = append(l, pt)
		}
	}
	return l
}

func parsePoint(v any) ([2]float64, bool) {
	a, ok := v.([]any)
	if !ok || len(a) < 2 {
		return [2]float64{}, false
	}
	lon, lok := a[0].(float64)
	lat, aok := a[1].(float64)
	if !lok || !aok {
		return [2]float64{}, false
	}
	return [2]float64{lon, lat}, true
}

// FromGeometry does the same flattening for an already decoded geometry.
func FromGeometry(g geom.Geometry) []geom.LineString {
	var lines []geom.LineString
	fromGeometry(g, func(l geom.LineString) { lines = append(lines, l) })
	return lines
}

func fromGeometry(g geom.Geometry, add func(geom.LineString)) {
	switch v := g.(type) {
	case geom.LineString:
		if len(v) > 0 {
			add(v)
		}
	case *geom.LineString:
		if v != nil {
			fromGeometry(*v, add)
		}
	case geom.MultiLineString:
		for _, l := range v {
			fromGeometry(geom.LineString(l), add)
		}
	case *geom.MultiLineString:
		if v != nil {
			fromGeometry(*v, add)
		}
	case geom.Line:
		add(geom.LineString{v[0], v[1]})
	case geom.Collection:
		for _, child := range v {
			fromGeometry(child, add)
		}
	case *geom.Collection:
		if v != nil {
			fromGeometry(*v, add)
		}
	}
}
