package processing

import (
	"github.com/go-spatial/geom"
)

type Feature interface {
	Columns() []interface{}
	Geometry() geom.Geometry
}

// Source sends its features and closes the channel when done.
type Source interface {
	ReadFeatures(chan<- Feature)
}

// Target consumes features until the channel is closed.
type Target interface {
	WriteFeatures(<-chan Feature)
}
