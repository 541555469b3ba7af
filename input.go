package main

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-spatial/geom"
	"github.com/urfave/cli/v2"

	"github.com/pdok/roadtile/atlas"
	"github.com/pdok/roadtile/autotile"
	"github.com/pdok/roadtile/mapview"
	"github.com/pdok/roadtile/processing"
	"github.com/pdok/roadtile/processing/geojson"
	"github.com/pdok/roadtile/processing/gpkg"
	"github.com/pdok/roadtile/raster"
	"github.com/pdok/roadtile/sieve"
	"github.com/pdok/roadtile/tms20"
)

var errFormat = errors.New("invalid value")

// parseFloats splits s on sep into exactly n numbers.
func parseFloats(s, sep string, n int) ([]float64, error) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("%w %q: want %d numbers separated by %q", errFormat, s, n, sep)
	}
	values := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", errFormat, s, err)
		}
		values[i] = v
	}
	return values, nil
}

// parseBounds reads "west,south,east,north" in degrees.
func parseBounds(s string) (raster.Bounds, error) {
	v, err := parseFloats(s, ",", 4)
	if err != nil {
		return raster.Bounds{}, err
	}
	b := raster.Bounds{West: v[0], South: v[1], East: v[2], North: v[3]}
	if !b.Valid() {
		return raster.Bounds{}, fmt.Errorf("%w %q: west/south must be below east/north", errFormat, s)
	}
	return b, nil
}

// parseLonLat reads "lon,lat".
func parseLonLat(s string) (lon, lat float64, err error) {
	v, err := parseFloats(s, ",", 2)
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

// parseCell reads "col,row".
func parseCell(s string) (raster.Cell, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return raster.Cell{}, fmt.Errorf("%w %q: want col,row", errFormat, s)
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return raster.Cell{}, fmt.Errorf("%w %q: %w", errFormat, s, err)
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return raster.Cell{}, fmt.Errorf("%w %q: %w", errFormat, s, err)
	}
	return raster.Cell{Col: col, Row: row}, nil
}

// parseSize reads "WIDTHxHEIGHT" in pixels.
func parseSize(s string) (width, height int, err error) {
	v, err := parseFloats(strings.ToLower(s), "x", 2)
	if err != nil {
		return 0, 0, err
	}
	if v[0] < 1 || v[1] < 1 {
		return 0, 0, fmt.Errorf("%w %q: size must be at least 1x1", errFormat, s)
	}
	return int(v[0]), int(v[1]), nil
}

// openSource picks the reader by file extension.
func openSource(path, table string) (processing.Source, func(), error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("error opening source: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		source := &gpkg.SourceGeopackage{}
		if err := source.Init(path); err != nil {
			return nil, nil, err
		}
		if err := source.SelectTable(table); err != nil {
			source.Close()
			return nil, nil, err
		}
		log.Printf("  reading %s from %s", source.Table.Name, path)
		return source, source.Close, nil
	default:
		source, err := geojson.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading GeoJSON %s: %w", path, err)
		}
		log.Printf("  reading %s", path)
		return source, func() {}, nil
	}
}

// rasterizeInput reads the source and burns it into a grid with the flag settings.
func rasterizeInput(c *cli.Context) ([]geom.LineString, *raster.Grid, *autotile.MaskGrid, error) {
	source, closeSource, err := openSource(c.String(SOURCE), c.String(TABLE))
	if err != nil {
		return nil, nil, nil, err
	}
	lines := processing.CollectLines(source)
	closeSource()
	if minLength := c.Float64(SIEVE); minLength > 0 {
		var dropped int
		lines, dropped = sieve.Lines(lines, minLength)
		log.Printf("  sieved %d lines shorter than %gm", dropped, minLength)
	}

	cfg := raster.DefaultConfig()
	cfg.Lines = lines
	cfg.CellSize = c.Float64(CELLSIZE)
	cfg.Brush = c.Int(BRUSH)
	cfg.ClosePasses = c.Int(CLOSE)
	if c.IsSet(BOUNDS) {
		if cfg.Bounds, err = parseBounds(c.String(BOUNDS)); err != nil {
			return nil, nil, nil, err
		}
	} else {
		var ok bool
		if cfg.Bounds, ok = raster.BoundsOf(lines); !ok {
			return nil, nil, nil, errors.New("no lines found in source and no bounds given")
		}
	}

	grid, err := raster.Rasterize(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Printf("  grid %dx%d, %d occupied cells", grid.Cols, grid.Rows, grid.Count())
	return lines, grid, autotile.Compute(grid), nil
}

func loadAtlas(c *cli.Context) (atlas.Atlas, error) {
	if !c.IsSet(ATLAS) {
		return atlas.Default(), nil
	}
	return atlas.Load(c.String(ATLAS))
}

func loadTileMatrixSet(c *cli.Context) (tms20.TileMatrixSet, error) {
	return tileMatrixSet(c.String(TMS))
}

// tileMatrixSet reads a tile matrix set file, or the built-in one when path is empty.
func tileMatrixSet(path string) (tms20.TileMatrixSet, error) {
	if path == "" {
		return tms20.LoadEmbeddedTileMatrixSet(mapview.TileMatrixSetID)
	}
	tms, err := tms20.LoadJSONTileMatrixSet(path)
	if err != nil {
		return tms, fmt.Errorf("error loading tile matrix set %s: %w", path, err)
	}
	return tms, nil
}

func newView(c *cli.Context, width, height int) (*mapview.View, error) {
	return viewOn(c.String(TMS), width, height)
}

func viewOn(path string, width, height int) (*mapview.View, error) {
	tms, err := tileMatrixSet(path)
	if err != nil {
		return nil, err
	}
	return mapview.NewWithTileMatrixSet(tms, width, height)
}

// loadSheet reads the sprite sheet PNG, or draws the placeholder sheet.
func loadSheet(c *cli.Context, a atlas.Atlas) (image.Image, error) {
	if !c.IsSet(SHEET) {
		return atlas.Placeholder(a), nil
	}
	f, err := os.Open(c.String(SHEET))
	if err != nil {
		return nil, fmt.Errorf("error opening sprite sheet: %w", err)
	}
	defer f.Close()
	sheet, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("error decoding sprite sheet: %w", err)
	}
	want := a.SheetSize()
	if b := sheet.Bounds(); b.Dx() < want.X || b.Dy() < want.Y {
		log.Printf("  sprite sheet is %dx%d, the atlas addresses %dx%d", b.Dx(), b.Dy(), want.X, want.Y)
	}
	return sheet, nil
}

// prepareTarget removes an existing target file when overwrite is set.
func prepareTarget(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("target %s exists, use --%s", path, OVERWRITE)
		}
		return nil
	}
	err := os.Remove(path)
	var pathError *os.PathError
	if err != nil && !(errors.As(err, &pathError) && errors.Is(pathError.Err, syscall.ENOENT)) {
		return fmt.Errorf("could not remove target file: %w", err)
	}
	return nil
}
