package geomhelp

import (
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
)

// WktMustEncode renders g as WKT for log lines, cut to maxLen characters
// when maxLen > 0. Geometries WKT cannot express are printed with %v.
func WktMustEncode(g geom.Geometry, maxLen uint) string {
	if g == nil {
		return "GEOMETRY EMPTY"
	}
	s, err := wkt.EncodeString(g)
	if err != nil {
		s = fmt.Sprintf("%T%v", g, g)
	}
	if maxLen == 0 {
		return s
	}
	return truncate.StringWithTail(s, maxLen, "...")
}

// LineLength returns the planar length of a line string.
func LineLength(l geom.LineString) float64 {
	var length float64
	for i := 1; i < len(l); i++ {
		length += math.Hypot(l[i][0]-l[i-1][0], l[i][1]-l[i-1][1])
	}
	return length
}
