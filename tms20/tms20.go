// Package tms20 implements the parts of the OGC Tile Matrix Set standard (v2.0)
// needed to drive a slippy map viewport.
// See https://www.ogc.org/standard/tms/
package tms20

import (
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	"github.com/perimeterx/marshmallow"
)

var (
	//go:embed tilematrixsets/*.json
	embeddedTileMatrixSetsJSONFS embed.FS
	embeddedTileMatrixSetsCache  = make(map[string]*TileMatrixSet)
)

// TMID identifies a tile matrix, usually its zoom level.
type TMID = int

// LoadJSONTileMatrixSet reads a tile matrix set from a JSON file on disk.
func LoadJSONTileMatrixSet(path string) (TileMatrixSet, error) {
	var tms TileMatrixSet
	tmsJSON, err := os.ReadFile(path)
	if err != nil {
		return tms, err
	}
	err = json.Unmarshal(tmsJSON, &tms)
	return tms, err
}

func LoadEmbeddedTileMatrixSet(id string) (TileMatrixSet, error) {
	var tms TileMatrixSet
	cached, ok := embeddedTileMatrixSetsCache[id]
	if ok {
		return *cached, nil
	}
	tmsJSON, err := embeddedTileMatrixSetsJSONFS.ReadFile("tilematrixsets/" + id + ".json")
	if err != nil {
		return tms, err
	}
	err = json.Unmarshal(tmsJSON, &tms)
	if err != nil {
		return tms, err
	}
	embeddedTileMatrixSetsCache[id] = &tms
	return tms, nil
}

// TileMatrixSet is a definition of a tile matrix set following the Tile Matrix Set standard.
type TileMatrixSet struct {
	// Tile matrix set identifier
	ID string `json:"id,omitempty"`
	// Title of this tile matrix set, normally used for display to a human
	Title string `json:"title,omitempty"`
	// Reference to an official source for this TileMatrixSet
	URI         string   `validate:"omitempty,uri" json:"uri,omitempty"`
	OrderedAxes []string `validate:"omitempty,min=1" json:"orderedAxes,omitempty"`
	// Coordinate Reference System, only URI references are supported
	CRS URICRS `validate:"required" json:"-"`
	// Reference to a well-known scale set
	WellKnownScaleSet string `validate:"omitempty,uri" json:"wellKnownScaleSet,omitempty"`
	// Tile matrices by zoom level
	TileMatrices map[TMID]TileMatrix `validate:"required,min=1,dive" json:"-"`
}

func (tms *TileMatrixSet) MarshalJSON() ([]byte, error) {
	tileMatrices := make([]TileMatrix, 0, len(tms.TileMatrices))
	for _, tm := range tms.TileMatrices {
		tileMatrices = append(tileMatrices, tm)
	}
	sort.Slice(tileMatrices, func(i, j int) bool {
		iID, _ := strconv.Atoi(tileMatrices[i].ID)
		jID, _ := strconv.Atoi(tileMatrices[j].ID)
		return iID < jID
	})
	return json.Marshal(struct {
		TileMatrixSet                    // not a pointer, because it would cause recursion to this function
		SpecialCRS          string       `json:"crs"`
		SpecialTileMatrices []TileMatrix `json:"tileMatrices"`
	}{
		TileMatrixSet:       *tms,
		SpecialCRS:          tms.CRS.URI,
		SpecialTileMatrices: tileMatrices,
	})
}

func (tms *TileMatrixSet) UnmarshalJSON(data []byte) error {
	err := defaults.Set(tms)
	if err != nil {
		return err
	}

	specials, err := marshmallow.Unmarshal(data, tms, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	rawCrs, ok := specials["crs"]
	if !ok {
		return fmt.Errorf(`missing key "crs"`)
	}
	tms.CRS, err = parseCRS(rawCrs)
	if err != nil {
		return err
	}

	rawTileMatrices, ok := specials["tileMatrices"]
	if !ok {
		return fmt.Errorf(`missing key "tileMatrices"`)
	}
	tms.TileMatrices, err = unmarshalTileMatrices(rawTileMatrices)
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(tms)
}

func unmarshalTileMatrices(rawTileMatrices interface{}) (map[TMID]TileMatrix, error) {
	rawTileMatricesList, ok := rawTileMatrices.([]interface{})
	if !ok {
		return nil, fmt.Errorf(`"tileMatrices" should be an array`)
	}
	tileMatrices := make(map[TMID]TileMatrix, len(rawTileMatricesList))
	for _, rawTileMatrix := range rawTileMatricesList {
		rawTileMatrixMap, ok := rawTileMatrix.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf(`"tileMatrices" should be objects`)
		}
		var tileMatrix TileMatrix
		if err := defaults.Set(&tileMatrix); err != nil {
			return nil, err
		}
		if _, err := marshmallow.UnmarshalFromJSONMap(rawTileMatrixMap, &tileMatrix); err != nil {
			return nil, err
		}
		tileMatrixID, err := strconv.Atoi(tileMatrix.ID)
		if err != nil {
			return nil, fmt.Errorf("only integer-like ids are supported for tile matrices: %w", err)
		}
		tileMatrices[tileMatrixID] = tileMatrix
	}
	return tileMatrices, nil
}

var (
	crsURIRegexURL = regexp.MustCompile("https?://.+/def/crs/(?P<authority>[^/]+)/[^/]+/(?P<code>[^/]+)$")
	crsURIRegexURN = regexp.MustCompile("^urn:ogc:def:crs:(?P<authority>[^:]+)::(?P<code>[^:]+)$")
)

// URICRS references a coordinate reference system by URI.
type URICRS struct {
	URI           string `validate:"required,uri"`
	AuthorityName string `validate:"required"`
	AuthorityCode string `validate:"required"`
}

// parseCRS accepts a plain URI string or an object with an "uri" property.
func parseCRS(rawCrs interface{}) (URICRS, error) {
	var crs URICRS
	switch v := rawCrs.(type) {
	case string:
		crs.URI = v
	case map[string]interface{}:
		uri, ok := v["uri"].(string)
		if !ok {
			return crs, fmt.Errorf(`only crs references by uri are supported`)
		}
		crs.URI = uri
	default:
		return crs, fmt.Errorf(`wrong type key "crs": %T`, rawCrs)
	}

	uriParts := crsURIRegexURL.FindStringSubmatch(crs.URI)
	if uriParts == nil {
		uriParts = crsURIRegexURN.FindStringSubmatch(crs.URI)
	}
	if uriParts == nil {
		return crs, fmt.Errorf(`could not parse crs uri "%v"`, crs.URI)
	}
	crs.AuthorityName = uriParts[1]
	crs.AuthorityCode = uriParts[2]
	return crs, nil
}

// A 2D Point in the CRS indicated elsewhere
type TwoDPoint [2]float64

func (p TwoDPoint) XY() [2]float64 {
	return p
}

// A tile matrix, usually corresponding to a particular zoom level of a TileMatrixSet.
type TileMatrix struct {
	// Identifier selecting one of the scales defined in the TileMatrixSet
	ID string `validate:"required" json:"id"`
	// Scale denominator of this tile matrix
	ScaleDenominator float64 `validate:"required,gt=0" json:"scaleDenominator"`
	// Cell size of this tile matrix, in CRS units per pixel
	CellSize float64 `validate:"required,gt=0" json:"cellSize"`
	// The corner of the tile matrix used as the origin for numbering tile rows and columns.
	CornerOfOrigin CornerOfOrigin `default:"topLeft" validate:"oneof=topLeft bottomLeft" json:"cornerOfOrigin,omitempty"`
	// Position in CRS coordinates of the corner of origin
	PointOfOrigin TwoDPoint `validate:"required" json:"pointOfOrigin"`
	// Width of each tile of this tile matrix in pixels
	TileWidth uint `validate:"required,min=1" json:"tileWidth"`
	// Height of each tile of this tile matrix in pixels
	TileHeight uint `validate:"required,min=1" json:"tileHeight"`
	// Width of the matrix (number of tiles in width)
	MatrixWidth uint `validate:"required,min=1" json:"matrixWidth"`
	// Height of the matrix (number of tiles in height)
	MatrixHeight uint `validate:"required,min=1" json:"matrixHeight"`
}

type CornerOfOrigin string

const (
	TopLeft    CornerOfOrigin = "topLeft"
	BottomLeft CornerOfOrigin = "bottomLeft"
)

func (tms *TileMatrixSet) SRID() uint {
	code, err := strconv.ParseUint(tms.CRS.AuthorityCode, 10, 64)
	if err != nil {
		panic(fmt.Errorf(`could not parse uri authority code "%w"`, err))
	}
	return uint(code)
}

// MinZoom and MaxZoom return the lowest and highest tile matrix ids.
func (tms *TileMatrixSet) MinZoom() TMID {
	first := true
	var z TMID
	for id := range tms.TileMatrices {
		if first || id < z {
			z, first = id, false
		}
	}
	return z
}

func (tms *TileMatrixSet) MaxZoom() TMID {
	first := true
	var z TMID
	for id := range tms.TileMatrices {
		if first || id > z {
			z, first = id, false
		}
	}
	return z
}

// CellSizeAt returns the pixel size in CRS units at a fractional zoom,
// interpolated geometrically between the neighbouring tile matrices.
func (tms *TileMatrixSet) CellSizeAt(zoom float64) (float64, bool) {
	floor := math.Floor(zoom)
	tm, ok := tms.TileMatrices[TMID(floor)]
	if !ok {
		return 0, false
	}
	frac := zoom - floor
	if frac == 0 {
		return tm.CellSize, true
	}
	next, ok := tms.TileMatrices[TMID(floor)+1]
	if !ok {
		return tm.CellSize / math.Pow(2, frac), true
	}
	return tm.CellSize * math.Pow(next.CellSize/tm.CellSize, frac), true
}

func (tms *TileMatrixSet) Size(zoom uint) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[TMID(zoom)]
	if !ok {
		return nil, false
	}
	return slippy.NewTile(zoom, tm.MatrixWidth, tm.MatrixHeight), true
}

// FromNative returns the tile containing pt at zoom.
func (tms *TileMatrixSet) FromNative(zoom uint, pt geom.Point) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[TMID(zoom)]
	if !ok {
		return nil, false
	}

	tileSizeX := float64(tm.TileWidth) * tm.CellSize
	minX := tm.PointOfOrigin.XY()[0]
	x := math.Floor((pt.X() - minX) / tileSizeX)
	if x < 0 || x >= float64(tm.MatrixWidth) {
		return nil, false
	}

	tileSizeY := float64(tm.TileHeight) * tm.CellSize
	var y float64
	switch tm.CornerOfOrigin {
	case BottomLeft:
		y = math.Floor((pt.Y() - tm.PointOfOrigin.XY()[1]) / tileSizeY)
	default:
		y = math.Floor((tm.PointOfOrigin.XY()[1] - pt.Y()) / tileSizeY)
	}
	if y < 0 || y >= float64(tm.MatrixHeight) {
		return nil, false
	}

	return slippy.NewTile(zoom, uint(x), uint(y)), true
}

// ToNative returns the top-left corner of tile.
func (tms *TileMatrixSet) ToNative(tile *slippy.Tile) (geom.Point, bool) {
	topLeftPt := geom.Point{}
	tm, ok := tms.TileMatrices[TMID(tile.Z)]
	if !ok {
		return topLeftPt, false
	}
	if tile.X > tm.MatrixWidth || tile.Y > tm.MatrixHeight {
		// >, not >= because "should be able to take tiles with x and y values 1 higher than the max"
		return topLeftPt, false
	}

	tileSizeX := float64(tm.TileWidth) * tm.CellSize
	topLeftPt[0] = tm.PointOfOrigin.XY()[0] + float64(tile.X)*tileSizeX

	tileSizeY := float64(tm.TileHeight) * tm.CellSize
	switch tm.CornerOfOrigin {
	case BottomLeft:
		topLeftPt[1] = tm.PointOfOrigin.XY()[1] + float64(tile.Y+1)*tileSizeY
	default:
		topLeftPt[1] = tm.PointOfOrigin.XY()[1] - float64(tile.Y)*tileSizeY
	}

	return topLeftPt, true
}
