// Package gpkg reads road lines from and writes raster cells to GeoPackages.
package gpkg

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	_ "github.com/mattn/go-sqlite3" // sqlite driver behind gpkg.Open

	"github.com/pdok/roadtile/extract"
	"github.com/pdok/roadtile/processing"
	"github.com/pdok/roadtile/webmercator"
)

const (
	SRSWGS84       = 4326
	SRSWebMercator = webmercator.SRID

	// CellTable is the default name of the exported cell table.
	CellTable = "cells"
)

var ErrUnsupportedSRS = errors.New("unsupported spatial reference system")

var ErrIncompleteWrite = errors.New("not all features were written")

type featureGPKG struct {
	columns  []interface{}
	geometry geom.Geometry
}

func (f featureGPKG) Columns() []interface{} {
	return f.columns
}

func (f featureGPKG) Geometry() geom.Geometry {
	return f.geometry
}

type Column struct {
	Name string
	Type string
}

type Table struct {
	Name           string
	Columns        []Column
	GeometryColumn string
	GeometryType   gpkg.GeometryType
	SRSID          int
}

// IsLines reports whether the table can hold line geometry.
func (t Table) IsLines() bool {
	switch t.GeometryType {
	case gpkg.Linestring, gpkg.MultiLinestring, gpkg.Geometry, gpkg.GeometryCollection:
		return true
	}
	return false
}

// geometryTypeFromString returns the numeric value of a geometry type name
func geometryTypeFromString(geometrytype string) gpkg.GeometryType {
	switch strings.ToUpper(geometrytype) {
	case "POINT":
		return gpkg.Point
	case "LINESTRING":
		return gpkg.Linestring
	case "POLYGON":
		return gpkg.Polygon
	case "MULTIPOINT":
		return gpkg.MultiPoint
	case "MULTILINESTRING":
		return gpkg.MultiLinestring
	case "MULTIPOLYGON":
		return gpkg.MultiPolygon
	case "GEOMETRYCOLLECTION":
		return gpkg.GeometryCollection
	default:
		return gpkg.Geometry
	}
}

// SourceGeopackage reads the features of Table. Geometries in web mercator
// are converted to lon/lat line strings.
type SourceGeopackage struct {
	Table  Table
	handle *gpkg.Handle
}

func (source *SourceGeopackage) Init(file string) error {
	handle, err := gpkg.Open(file)
	if err != nil {
		return fmt.Errorf("error opening GeoPackage %s: %w", file, err)
	}
	source.handle = handle
	return nil
}

func (source SourceGeopackage) Close() {
	source.handle.Close()
}

// Tables lists the feature tables of the GeoPackage.
func (source SourceGeopackage) Tables() ([]Table, error) {
	query := `SELECT table_name, column_name, geometry_type_name, srs_id FROM gpkg_geometry_columns ORDER BY table_name;`
	rows, err := source.handle.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error reading geometry columns: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		var gtype string
		if err := rows.Scan(&t.Name, &t.GeometryColumn, &gtype, &t.SRSID); err != nil {
			return nil, fmt.Errorf("error reading the source table information: %w", err)
		}
		t.GeometryType = geometryTypeFromString(gtype)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tables {
		tables[i].Columns, err = source.tableColumns(tables[i].Name)
		if err != nil {
			return nil, err
		}
	}
	return tables, nil
}

// SelectTable picks the table to read, the first line table when name is empty.
func (source *SourceGeopackage) SelectTable(name string) error {
	tables, err := source.Tables()
	if err != nil {
		return err
	}
	for _, t := range tables {
		if (name == "" && t.IsLines()) || t.Name == name {
			if t.SRSID != SRSWGS84 && t.SRSID != SRSWebMercator {
				return fmt.Errorf("%w: table %s has srs %d", ErrUnsupportedSRS, t.Name, t.SRSID)
			}
			source.Table = t
			return nil
		}
	}
	if name == "" {
		return fmt.Errorf("no line table found")
	}
	return fmt.Errorf("table %s not found", name)
}

func (source SourceGeopackage) tableColumns(table string) ([]Column, error) {
	rows, err := source.handle.Query(fmt.Sprintf(`PRAGMA table_info('%v');`, table))
	if err != nil {
		return nil, fmt.Errorf("error getting the column information of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var cid, notnull, pk int
		var dfltValue *string
		var c Column
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("error getting the column information of %s: %w", table, err)
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func (t Table) selectSQL() string {
	var csql []string
	for _, c := range t.Columns {
		csql = append(csql, `"`+c.Name+`"`)
	}
	return `SELECT ` + strings.Join(csql, `,`) + ` FROM "` + t.Name + `";`
}

func (source SourceGeopackage) ReadFeatures(features chan<- processing.Feature) {
	defer close(features)

	rows, err := source.handle.Query(source.Table.selectSQL())
	if err != nil {
		log.Printf("error reading %s: %s", source.Table.Name, err)
		return
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		log.Printf("error reading the columns: %s", err)
		return
	}

	for rows.Next() {
		vals := make([]interface{}, len(cols))
		valPtrs := make([]interface{}, len(cols))
		for i := range cols {
			valPtrs[i] = &vals[i]
		}
		if err = rows.Scan(valPtrs...); err != nil {
			log.Printf("err reading row values: %v", err)
			return
		}

		var f featureGPKG
		for i, colName := range cols {
			if colName == source.Table.GeometryColumn {
				f.geometry = source.decodeGeometry(vals[i])
				continue
			}
			switch v := vals[i].(type) {
			case []uint8:
				f.columns = append(f.columns, string(v))
			case int64, float64, time.Time, string, nil:
				f.columns = append(f.columns, v)
			default:
				log.Printf("unexpected type for sqlite column data: %v: %T", cols[i], v)
				f.columns = append(f.columns, nil)
			}
		}
		features <- f
	}
	if err = rows.Err(); err != nil {
		log.Println(err)
	}
}

func (source SourceGeopackage) decodeGeometry(val interface{}) geom.Geometry {
	raw, ok := val.([]byte)
	if !ok {
		return nil
	}
	sb, err := gpkg.DecodeGeometry(raw)
	if err != nil {
		log.Printf("error decoding the geometry: %s", err)
		return nil
	}
	if source.Table.SRSID != SRSWebMercator {
		return sb.Geometry
	}
	lines := extract.FromGeometry(sb.Geometry)
	unprojected := make(geom.MultiLineString, len(lines))
	for i, l := range lines {
		unprojected[i] = make([][2]float64, len(l))
		for j, v := range l {
			lon, lat := webmercator.Unproject(v)
			unprojected[i][j] = [2]float64{lon, lat}
		}
	}
	return unprojected
}

var spatialReferenceSystems = map[int]gpkg.SpatialReferenceSystem{
	SRSWGS84: {
		Name:                   "WGS 84 geodetic",
		ID:                     SRSWGS84,
		Organization:           "EPSG",
		OrganizationCoordsysID: SRSWGS84,
		Definition:             `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`,
		Description:            "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
	},
	SRSWebMercator: {
		Name:                   "WGS 84 / Pseudo-Mercator",
		ID:                     SRSWebMercator,
		Organization:           "EPSG",
		OrganizationCoordsysID: SRSWebMercator,
		Definition:             `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`,
		Description:            "spherical mercator",
	},
}

// CellTableSpec is the table holding one polygon per masked cell.
func CellTableSpec(name string) Table {
	return Table{
		Name: name,
		Columns: []Column{
			{Name: "fid", Type: "INTEGER PRIMARY KEY AUTOINCREMENT"},
			{Name: "col", Type: "INTEGER NOT NULL"},
			{Name: "row", Type: "INTEGER NOT NULL"},
			{Name: "mask", Type: "INTEGER NOT NULL"},
			{Name: "geom", Type: "POLYGON"},
		},
		GeometryColumn: "geom",
		GeometryType:   gpkg.Polygon,
		SRSID:          SRSWGS84,
	}
}

// TargetGeopackage writes features to Table in transactions of pagesize features.
// Err is set by WriteFeatures when any feature did not make it to the table.
type TargetGeopackage struct {
	Table    Table
	Err      error
	pagesize int
	handle   *gpkg.Handle
}

func (target *TargetGeopackage) Init(file string, pagesize int) error {
	if pagesize < 1 {
		pagesize = 1
	}
	handle, err := gpkg.Open(file)
	if err != nil {
		return fmt.Errorf("error opening GeoPackage %s: %w", file, err)
	}
	target.pagesize = pagesize
	target.handle = handle
	return nil
}

func (target TargetGeopackage) Close() {
	target.handle.Close()
}

// CreateTable registers the spatial reference system of t and builds the table.
func (target *TargetGeopackage) CreateTable(t Table) error {
	srs, ok := spatialReferenceSystems[t.SRSID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedSRS, t.SRSID)
	}
	if err := target.handle.UpdateSRS(srs); err != nil {
		return fmt.Errorf("error registering srs %d: %w", t.SRSID, err)
	}
	if _, err := target.handle.Exec(t.createSQL()); err != nil {
		return fmt.Errorf("error building table %s in target GeoPackage: %w", t.Name, err)
	}
	err := target.handle.AddGeometryTable(gpkg.TableDescription{
		Name:          t.Name,
		ShortName:     t.Name,
		Description:   t.Name,
		GeometryField: t.GeometryColumn,
		GeometryType:  t.GeometryType,
		SRS:           int32(t.SRSID),
		Z:             gpkg.Prohibited,
		M:             gpkg.Prohibited,
	})
	if err != nil {
		return fmt.Errorf("error adding geometry table %s in target GeoPackage: %w", t.Name, err)
	}
	target.Table = t
	return nil
}

// CreateCellTable builds the cell table under the given name.
func (target *TargetGeopackage) CreateCellTable(name string) error {
	if name == "" {
		name = CellTable
	}
	return target.CreateTable(CellTableSpec(name))
}

func (target *TargetGeopackage) WriteFeatures(features <-chan processing.Feature) {
	var page []processing.Feature
	var ext *geom.Extent
	var total, failed int

	flush := func() {
		var n int
		ext, n = target.writeFeatures(page, ext)
		total += len(page)
		failed += n
		page = nil
	}
	for feature := range features {
		page = append(page, feature)
		if len(page)%target.pagesize == 0 {
			flush()
		}
	}
	flush()

	if failed > 0 {
		target.Err = fmt.Errorf("%w: %d of %d features to %s", ErrIncompleteWrite, failed, total, target.Table.Name)
	}
	if ext == nil {
		return
	}
	if err := target.handle.UpdateGeometryExtent(target.Table.Name, ext); err != nil {
		log.Printf("error updating the geometry extent of %s: %s", target.Table.Name, err)
	}
}

// writeFeatures inserts one page in a single transaction and returns the
// grown extent and the number of features that were not written.
func (target *TargetGeopackage) writeFeatures(features []processing.Feature, ext *geom.Extent) (*geom.Extent, int) {
	if len(features) == 0 {
		return ext, 0
	}
	tx, err := target.handle.Begin()
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return ext, len(features)
	}
	stmt, err := tx.Prepare(target.Table.insertSQL())
	if err != nil {
		log.Printf("error preparing insert statement: %s", err)
		_ = tx.Rollback()
		return ext, len(features)
	}
	defer stmt.Close()

	failed := 0
	for _, f := range features {
		sb, err := gpkg.NewBinary(int32(target.Table.SRSID), f.Geometry())
		if err != nil {
			log.Printf("error encoding geometry: %s", err)
			failed++
			continue
		}
		data := append(append([]interface{}{}, f.Columns()...), sb)
		if _, err = stmt.Exec(data...); err != nil {
			log.Printf("error inserting feature: %s", err)
			failed++
			continue
		}

		if ext == nil {
			ext, err = geom.NewExtentFromGeometry(f.Geometry())
			if err != nil {
				ext = nil
				log.Printf("error creating the extent: %s", err)
			}
		} else if err = ext.AddGeometry(f.Geometry()); err != nil {
			log.Printf("error extending the extent: %s", err)
		}
	}
	if err = tx.Commit(); err != nil {
		log.Printf("error committing transaction: %s", err)
		return ext, len(features)
	}
	return ext, failed
}

// createSQL builds the CREATE statement for t.
func (t Table) createSQL() string {
	var columnparts []string
	for _, c := range t.Columns {
		columnparts = append(columnparts, strings.TrimSpace(`"`+c.Name+`" `+c.Type))
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%v"`, t.Name) + `(` + strings.Join(columnparts, `, `) + `);`
}

// insertSQL inserts every column except the geometry and an INTEGER PRIMARY KEY,
// with the geometry last.
func (t Table) insertSQL() string {
	var csql, vsql []string
	for _, c := range t.Columns {
		if c.Name == t.GeometryColumn || strings.Contains(strings.ToUpper(c.Type), "PRIMARY KEY") {
			continue
		}
		csql = append(csql, `"`+c.Name+`"`)
		vsql = append(vsql, `?`)
	}
	csql = append(csql, `"`+t.GeometryColumn+`"`)
	vsql = append(vsql, `?`)
	return `INSERT INTO "` + t.Name + `"(` + strings.Join(csql, `,`) + `) VALUES(` + strings.Join(vsql, `,`) + `)`
}
