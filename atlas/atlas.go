// Package atlas maps autotile masks to tiles in a sprite sheet.
package atlas

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pdok/roadtile/autotile"
)

var ErrInvalidAtlas = errors.New("invalid atlas")

// Tile is the column and row of a tile in the sheet.
type Tile struct {
	Col int `yaml:"col" validate:"gte=0"`
	Row int `yaml:"row" validate:"gte=0"`
}

// Atlas maps masks to tiles of TilePx x TilePx pixels.
// Masks without an entry have no sprite.
type Atlas struct {
	TilePx int                    `yaml:"tilePx" default:"32" validate:"gte=1"`
	Tiles  map[autotile.Mask]Tile `yaml:"tiles" validate:"dive,keys,gte=1,lte=15,endkeys"`
}

// Default returns the built-in road sheet layout.
func Default() Atlas {
	return Atlas{
		TilePx: 32,
		Tiles: map[autotile.Mask]Tile{
			// dead ends
			autotile.North: {2, 0},
			autotile.East:  {3, 0},
			autotile.South: {0, 0},
			autotile.West:  {1, 0},
			// straights
			autotile.North | autotile.South: {0, 1},
			autotile.East | autotile.West:   {1, 1},
			// corners
			autotile.North | autotile.East: {2, 2},
			autotile.East | autotile.South: {3, 2},
			autotile.South | autotile.West: {0, 2},
			autotile.West | autotile.North: {1, 2},
			// tees
			autotile.North | autotile.East | autotile.South: {2, 3},
			autotile.East | autotile.South | autotile.West:  {3, 3},
			autotile.South | autotile.West | autotile.North: {0, 3},
			autotile.West | autotile.North | autotile.East:  {1, 3},
			// crossing
			autotile.All: {0, 4},
		},
	}
}

// Parse decodes a YAML atlas, applies defaults and validates it.
func Parse(data []byte) (Atlas, error) {
	var a Atlas
	if err := defaults.Set(&a); err != nil {
		return a, err
	}
	if err := yaml.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("could not decode atlas: %w", err)
	}
	if err := a.Validate(); err != nil {
		return a, err
	}
	return a, nil
}

// Load reads and parses the YAML atlas at path.
func Load(path string) (Atlas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Atlas{}, err
	}
	return Parse(data)
}

func (a Atlas) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAtlas, err)
	}
	return nil
}

// Source returns the sheet rectangle of the sprite for mask.
func (a Atlas) Source(mask autotile.Mask) (image.Rectangle, bool) {
	t, ok := a.Tiles[mask]
	if !ok || mask == autotile.None {
		return image.Rectangle{}, false
	}
	return image.Rect(t.Col*a.TilePx, t.Row*a.TilePx, (t.Col+1)*a.TilePx, (t.Row+1)*a.TilePx), true
}

// Lookup returns the mask whose tile is at col, row.
func (a Atlas) Lookup(col, row int) (autotile.Mask, bool) {
	for m, t := range a.Tiles {
		if t.Col == col && t.Row == row {
			return m, true
		}
	}
	return autotile.None, false
}

// SheetSize returns the pixel size of the smallest sheet holding all tiles.
func (a Atlas) SheetSize() image.Point {
	var cols, rows int
	for _, t := range a.Tiles {
		cols = max(cols, t.Col+1)
		rows = max(rows, t.Row+1)
	}
	return image.Pt(cols*a.TilePx, rows*a.TilePx)
}
