package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-spatial/geom"
	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pdok/roadtile/autotile"
	"github.com/pdok/roadtile/compositor"
	"github.com/pdok/roadtile/geomhelp"
	"github.com/pdok/roadtile/lineindex"
	"github.com/pdok/roadtile/mapslicehelp"
	"github.com/pdok/roadtile/mapview"
	"github.com/pdok/roadtile/processing"
	"github.com/pdok/roadtile/processing/geojson"
	"github.com/pdok/roadtile/processing/gpkg"
	"github.com/pdok/roadtile/raster"
	"github.com/pdok/roadtile/surface"
	"github.com/pdok/roadtile/tui"
	"github.com/pdok/roadtile/webmercator"
)

const SOURCE string = `source`
const TABLE string = `table`
const BOUNDS string = `bounds`
const CELLSIZE string = `cellsize`
const BRUSH string = `brush`
const CLOSE string = `close`
const SIEVE string = `sieve`
const ATLAS string = `atlas`
const SHEET string = `sheet`
const MARGIN string = `margin`
const OUT string = `out`
const OVERWRITE string = `overwrite`
const PAGESIZE string = `pagesize`
const PIXELS string = `pixels`
const CENTER string = `center`
const ZOOM string = `zoom`
const SIZE string = `size`
const CELL string = `cell`
const TMS string = `tms`

func envVars(name string) []string {
	return []string{strcase.ToScreamingSnake(name)}
}

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     SOURCE,
			Aliases:  []string{"s"},
			Usage:    "Source with road lines in lon/lat, GeoJSON or GPKG",
			Required: true,
			EnvVars:  envVars(SOURCE),
		},
		&cli.StringFlag{
			Name:    TABLE,
			Usage:   "Table to read from a GPKG source, default the first line table",
			EnvVars: envVars(TABLE),
		},
		&cli.StringFlag{
			Name:    BOUNDS,
			Aliases: []string{"b"},
			Usage:   `Grid bounds in degrees "west,south,east,north", default the bounds of the source`,
			EnvVars: envVars(BOUNDS),
		},
		&cli.Float64Flag{
			Name:    CELLSIZE,
			Aliases: []string{"c"},
			Usage:   "Cell edge length in metres",
			Value:   raster.DefaultConfig().CellSize,
			EnvVars: envVars(CELLSIZE),
		},
		&cli.IntFlag{
			Name:    BRUSH,
			Usage:   "Brush radius in cells",
			Value:   raster.DefaultConfig().Brush,
			EnvVars: envVars(BRUSH),
		},
		&cli.IntFlag{
			Name:    CLOSE,
			Usage:   "Number of gap closing passes",
			EnvVars: envVars(CLOSE),
		},
		&cli.Float64Flag{
			Name:    SIEVE,
			Usage:   "Drop lines shorter than this many metres before rasterizing",
			EnvVars: envVars(SIEVE),
		},
	}
}

func renderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    ATLAS,
			Aliases: []string{"a"},
			Usage:   "Atlas YAML mapping masks to sprite sheet tiles, default the built-in table",
			EnvVars: envVars(ATLAS),
		},
		&cli.StringFlag{
			Name:    SHEET,
			Usage:   "Sprite sheet PNG, default a drawn placeholder sheet",
			EnvVars: envVars(SHEET),
		},
		&cli.IntFlag{
			Name:    MARGIN,
			Usage:   "Cells drawn beyond the visible window on every side",
			Value:   compositor.DefaultOptions().Margin,
			EnvVars: envVars(MARGIN),
		},
	}
}

func tmsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    TMS,
			Usage:   "Tile matrix set JSON in EPSG:3857, default the built-in WebMercatorQuad",
			EnvVars: envVars(TMS),
		},
	}
}

func outFlags(usage string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     OUT,
			Aliases:  []string{"o"},
			Usage:    usage,
			Required: true,
			EnvVars:  envVars(OUT),
		},
		&cli.BoolFlag{
			Name:    OVERWRITE,
			Usage:   "Overwrite the target if it exists",
			EnvVars: envVars(OVERWRITE),
		},
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "roadtile"
	app.Usage = "Rasterize road lines into autotiled cells and render them"
	app.Version = versioninfo.Short()

	app.Commands = []*cli.Command{
		{
			Name:  "rasterize",
			Usage: "Rasterize the source and write the masked cells as PNG, GeoJSON or GPKG",
			Flags: flags(inputFlags(), renderFlags(), outFlags("Target file, the extension selects the format"), []cli.Flag{
				&cli.IntFlag{
					Name:    PIXELS,
					Usage:   "Pixels per cell for PNG output",
					Value:   8,
					EnvVars: envVars(PIXELS),
				},
				&cli.IntFlag{
					Name:    PAGESIZE,
					Aliases: []string{"p"},
					Usage:   "Page Size, how many features are written per transaction to a target GPKG",
					Value:   1000,
					EnvVars: envVars(PAGESIZE),
				},
			}),
			Action: rasterizeAction,
		},
		{
			Name:  "render",
			Usage: "Render a slippy map view of the rasterized source to PNG",
			Flags: flags(inputFlags(), renderFlags(), tmsFlags(), outFlags("Target PNG"), []cli.Flag{
				&cli.StringFlag{
					Name:    CENTER,
					Usage:   `View centre "lon,lat", default the centre of the grid`,
					EnvVars: envVars(CENTER),
				},
				&cli.Float64Flag{
					Name:    ZOOM,
					Aliases: []string{"z"},
					Usage:   "Tile matrix zoom level, fractions allowed, default fit the grid",
					EnvVars: envVars(ZOOM),
				},
				&cli.StringFlag{
					Name:    SIZE,
					Usage:   `Image size "WIDTHxHEIGHT"`,
					Value:   "1024x768",
					EnvVars: envVars(SIZE),
				},
			}),
			Action: renderAction,
		},
		{
			Name:   "stats",
			Usage:  "Print grid dimensions and the mask histogram",
			Flags:  inputFlags(),
			Action: statsAction,
		},
		{
			Name:  "inspect",
			Usage: "Print the mask, extent and contributing lines of one cell",
			Flags: flags(inputFlags(), []cli.Flag{
				&cli.StringFlag{
					Name:     CELL,
					Usage:    `Cell "col,row"`,
					Required: true,
					EnvVars:  envVars(CELL),
				},
			}),
			Action: inspectAction,
		},
		{
			Name:   "view",
			Usage:  "Browse the rasterized source in the terminal",
			Flags:  flags(inputFlags(), renderFlags(), tmsFlags()),
			Action: viewAction,
		},
		{
			Name:   "tms",
			Usage:  "Print the tile matrix set that render and view use as JSON",
			Flags:  tmsFlags(),
			Action: tmsAction,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func compositorOptions(c *cli.Context) compositor.Options {
	opts := compositor.DefaultOptions()
	opts.Margin = c.Int(MARGIN)
	return opts
}

func rasterizeAction(c *cli.Context) error {
	out := c.String(OUT)
	if err := prepareTarget(out, c.Bool(OVERWRITE)); err != nil {
		return err
	}

	log.Println("=== start rasterizing ===")
	_, grid, masks, err := rasterizeInput(c)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(out)) {
	case ".png":
		err = writeNativePNG(c, out, grid, masks)
	case ".geojson", ".json":
		err = writeGeoJSON(out, grid, masks)
	case ".gpkg":
		err = writeGeopackage(out, c.Int(PAGESIZE), grid, masks)
	default:
		err = fmt.Errorf("unsupported target format %s", filepath.Ext(out))
	}
	if err != nil {
		return err
	}
	log.Println("=== done rasterizing ===")
	return nil
}

func writeNativePNG(c *cli.Context, out string, grid *raster.Grid, masks *autotile.MaskGrid) error {
	a, err := loadAtlas(c)
	if err != nil {
		return err
	}
	sheet, err := loadSheet(c, a)
	if err != nil {
		return err
	}
	comp, err := compositor.New(grid, masks, a, sheet, compositorOptions(c))
	if err != nil {
		return err
	}
	img := surface.New()
	frame := comp.OnAttach(compositor.NewNativeViewport(grid, c.Int(PIXELS)), compositor.SurfaceFunc(func() compositor.Surface { return img }))
	defer comp.OnDetach()
	log.Printf("  drawn %d sprites, %d cells without sprite", frame.Drawn, frame.Missing)
	return writePNG(out, img)
}

func writePNG(out string, img *surface.Image) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err = img.WritePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeGeoJSON(out string, grid *raster.Grid, masks *autotile.MaskGrid) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	target := geojson.NewTarget(f, processing.CellColumns...)
	processing.ExportCells(grid, masks, target)
	if target.Err != nil {
		f.Close()
		return target.Err
	}
	return f.Close()
}

func writeGeopackage(out string, pagesize int, grid *raster.Grid, masks *autotile.MaskGrid) error {
	target := &gpkg.TargetGeopackage{}
	if err := target.Init(out, pagesize); err != nil {
		return err
	}
	defer target.Close()
	if err := target.CreateCellTable(gpkg.CellTable); err != nil {
		return err
	}
	processing.ExportCells(grid, masks, target)
	return target.Err
}

func renderAction(c *cli.Context) error {
	out := c.String(OUT)
	if err := prepareTarget(out, c.Bool(OVERWRITE)); err != nil {
		return err
	}
	width, height, err := parseSize(c.String(SIZE))
	if err != nil {
		return err
	}

	log.Println("=== start rendering ===")
	_, grid, masks, err := rasterizeInput(c)
	if err != nil {
		return err
	}
	a, err := loadAtlas(c)
	if err != nil {
		return err
	}
	sheet, err := loadSheet(c, a)
	if err != nil {
		return err
	}

	view, err := newView(c, width, height)
	if err != nil {
		return err
	}
	view.Fit(grid.Extent())
	if c.IsSet(CENTER) {
		lon, lat, err := parseLonLat(c.String(CENTER))
		if err != nil {
			return err
		}
		view.SetCenter(lon, lat)
	}
	if c.IsSet(ZOOM) {
		view.SetZoom(c.Float64(ZOOM))
	}

	comp, err := compositor.New(grid, masks, a, sheet, compositorOptions(c))
	if err != nil {
		return err
	}
	img := surface.New()
	frame := comp.OnAttach(view, compositor.SurfaceFunc(func() compositor.Surface { return img }))
	defer comp.OnDetach()

	lon, lat := view.Center()
	log.Printf("  zoom %.2f centre %.5f,%.5f, cell %dpx", view.Zoom(), lon, lat, frame.CellPx)
	log.Printf("  drawn %d sprites, %d cells without sprite", frame.Drawn, frame.Missing)
	if err = writePNG(out, img); err != nil {
		return err
	}
	log.Println("=== done rendering ===")
	return nil
}

func statsAction(c *cli.Context) error {
	lines, grid, masks, err := rasterizeInput(c)
	if err != nil {
		return err
	}
	p := message.NewPrinter(language.English)
	p.Printf("lines:     %d\n", len(lines))
	p.Printf("grid:      %d x %d cells of %gm\n", grid.Cols, grid.Rows, grid.CellSize)
	p.Printf("occupied:  %d\n", grid.Count())

	histogram := mapslicehelp.SortedCounts(masks.Histogram())
	p.Printf("isolated:  %d\n", grid.Count()-mapslicehelp.Sum(histogram))
	if histogram.Len() == 0 {
		return nil
	}
	p.Println("masks:")
	for pair := histogram.Oldest(); pair != nil; pair = pair.Next() {
		p.Printf("  %2d %-7s %c %d\n", uint8(pair.Key), pair.Key.String(), tui.Glyph(pair.Key), pair.Value)
	}
	mask, count, ties := mapslicehelp.FindLastKeyWithMaxValue(histogram)
	p.Printf("most common: %s (%d cells, %d masks with that count)\n", mask.String(), count, ties)
	return nil
}

func inspectAction(c *cli.Context) error {
	cell, err := parseCell(c.String(CELL))
	if err != nil {
		return err
	}
	lines, grid, masks, err := rasterizeInput(c)
	if err != nil {
		return err
	}
	if cell.Col < 0 || cell.Row < 0 || cell.Col >= grid.Cols || cell.Row >= grid.Rows {
		return fmt.Errorf("cell %d,%d outside grid of %dx%d", cell.Col, cell.Row, grid.Cols, grid.Rows)
	}

	ext := grid.CellExtent(cell.Col, cell.Row)
	west, south := webmercator.Unproject(geom.Point{ext.MinX(), ext.MinY()})
	east, north := webmercator.Unproject(geom.Point{ext.MaxX(), ext.MaxY()})
	mask := masks.At(cell.Col, cell.Row)
	fmt.Printf("cell:     %d,%d\n", cell.Col, cell.Row)
	fmt.Printf("occupied: %v\n", grid.Occupied(cell.Col, cell.Row))
	fmt.Printf("mask:     %d %s %c\n", mask, mask, tui.Glyph(mask))
	fmt.Printf("bounds:   %.6f,%.6f,%.6f,%.6f\n", west, south, east, north)

	idx := lineindex.New(lines)
	ids := idx.AtCell(grid, cell.Col, cell.Row, c.Int(BRUSH))
	fmt.Printf("lines:    %d\n", len(ids))
	for _, id := range ids {
		l := idx.Line(id)
		fmt.Printf("  %d (%.0fm) %s\n", id, geomhelp.LineLength(webmercator.ProjectLine(l)), geomhelp.WktMustEncode(l, 100))
	}
	return nil
}

func viewAction(c *cli.Context) error {
	_, grid, masks, err := rasterizeInput(c)
	if err != nil {
		return err
	}
	a, err := loadAtlas(c)
	if err != nil {
		return err
	}
	view, err := newView(c, 0, 0)
	if err != nil {
		return err
	}
	m, err := tui.New(filepath.Base(c.String(SOURCE)), view, grid, masks, a, compositorOptions(c))
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func tmsAction(c *cli.Context) error {
	tms, err := loadTileMatrixSet(c)
	if err != nil {
		return err
	}
	if _, err = mapview.NewWithTileMatrixSet(tms, 0, 0); err != nil {
		return err
	}
	out, err := json.MarshalIndent(&tms, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
