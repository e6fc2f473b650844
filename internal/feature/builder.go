// Package feature assembles GeoJSON feature collections from sheet rows.
package feature

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-sheets/internal/geom"
	"github.com/joeblew999/plat-sheets/internal/sheet"
)

// IncludeMarker is the cell value that opts a row into the geometry layer.
// The match is exact: "Y", "yes" or "true" do not count.
const IncludeMarker = "y"

var (
	// ErrGeometryParse is reported for a geometry cell that is not valid
	// JSON or does not describe a geometry.
	ErrGeometryParse = errors.New("feature: geometry cell could not be parsed")

	// ErrCoordinate is reported for a latitude or longitude cell that is
	// not a number.
	ErrCoordinate = errors.New("feature: invalid coordinate")

	errMissingColumn = errors.New("column missing from row")
	errOutOfRange    = errors.New("out of range")
)

// ParseError locates a bad cell. Row is the spreadsheet row number, so
// the header is row 1 and the first record is row 2.
type ParseError struct {
	Row    int
	Column string
	Kind   error
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d, column %q: %v: %v", e.Row, e.Column, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func sheetRow(index int) int { return index + 2 }

// GeometryOptions names the columns the geometry layer reads.
type GeometryOptions struct {
	InclusionColumn string
	GeometryColumn  string
	PropertyColumns []string
}

// BuildGeometry turns included rows into one feature collection.
//
// A row is included only when its inclusion cell equals [IncludeMarker].
// Its geometry cell is normalised with [geom.Normalize] and every resulting
// entry gets a fresh properties map built from PropertyColumns. Entries
// without a geometry are skipped. Feature order follows row order, then the
// order within the cell.
//
// The first bad geometry cell aborts the whole build with a *ParseError.
func BuildGeometry(rows []sheet.Row, opts GeometryOptions) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()

	for i, row := range rows {
		if v, _ := row.Get(opts.InclusionColumn); v != IncludeMarker {
			continue
		}

		cell, ok := row.Get(opts.GeometryColumn)
		if !ok {
			return nil, &ParseError{
				Row: sheetRow(i), Column: opts.GeometryColumn,
				Kind: ErrGeometryParse, Err: errMissingColumn,
			}
		}

		features, err := geom.Normalize(json.RawMessage(cell))
		if err != nil {
			return nil, &ParseError{Row: sheetRow(i), Column: opts.GeometryColumn, Kind: ErrGeometryParse, Err: err}
		}

		for _, f := range features {
			if f == nil || f.Geometry == nil {
				continue
			}
			f.Properties = properties(row, opts.PropertyColumns)
			fc.Append(f)
		}
	}

	return fc, nil
}

func properties(row sheet.Row, columns []string) geojson.Properties {
	props := make(geojson.Properties, len(columns))
	for _, col := range columns {
		props[col] = row.Value(col)
	}
	return props
}
