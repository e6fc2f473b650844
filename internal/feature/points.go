package feature

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-sheets/internal/sheet"
)

// MarkerType selects how a point observation is drawn.
type MarkerType string

const (
	// Marker is a standard pin icon. Radius does not apply.
	Marker MarkerType = "marker"
	// CircleMarker is a circle with a radius in screen pixels.
	CircleMarker MarkerType = "circleMarker"
	// Circle is a circle with a radius in meters on the ground.
	Circle MarkerType = "circle"
)

// ParseMarkerType matches s case-sensitively. Anything unknown is Marker.
func ParseMarkerType(s string) MarkerType {
	switch MarkerType(s) {
	case CircleMarker:
		return CircleMarker
	case Circle:
		return Circle
	}
	return Marker
}

// UsesRadius reports whether the radius setting has any effect.
func (m MarkerType) UsesRadius() bool {
	return m == CircleMarker || m == Circle
}

// RadiusUnit is "px", "m" or "" for plain markers.
func (m MarkerType) RadiusUnit() string {
	switch m {
	case CircleMarker:
		return "px"
	case Circle:
		return "m"
	}
	return ""
}

// PointOptions names the columns the point layer reads.
type PointOptions struct {
	// InclusionColumn filters rows like the geometry layer does. Empty
	// means every row is placed.
	InclusionColumn string
	LatColumn       string
	LonColumn       string
	PropertyColumns []string
}

// BuildPoints places one point feature per row at (lon, lat). Rows whose
// lat and lon cells are both blank are unplaced observations: they are
// skipped and logged. Any other missing or non-numeric coordinate aborts
// the build.
func BuildPoints(rows []sheet.Row, opts PointOptions) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()

	for i, row := range rows {
		if opts.InclusionColumn != "" {
			if v, _ := row.Get(opts.InclusionColumn); v != IncludeMarker {
				continue
			}
		}

		if blank(row, opts.LatColumn) && blank(row, opts.LonColumn) {
			log.Warn().Int("row", sheetRow(i)).Msg("Point row has no coordinates, skipped")
			continue
		}

		lat, err := coordinate(row, i, opts.LatColumn, 90)
		if err != nil {
			return nil, err
		}
		lon, err := coordinate(row, i, opts.LonColumn, 180)
		if err != nil {
			return nil, err
		}

		f := geojson.NewFeature(orb.Point{lon, lat})
		f.Properties = properties(row, opts.PropertyColumns)
		fc.Append(f)
	}

	return fc, nil
}

// blank reports a cell that is present but holds only whitespace.
func blank(row sheet.Row, column string) bool {
	v, ok := row.Get(column)
	return ok && strings.TrimSpace(v) == ""
}

func coordinate(row sheet.Row, index int, column string, limit float64) (float64, error) {
	cell, ok := row.Get(column)
	if !ok {
		return 0, &ParseError{Row: sheetRow(index), Column: column, Kind: ErrCoordinate, Err: errMissingColumn}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, &ParseError{Row: sheetRow(index), Column: column, Kind: ErrCoordinate, Err: err}
	}
	if !(v >= -limit && v <= limit) {
		return 0, &ParseError{Row: sheetRow(index), Column: column, Kind: ErrCoordinate, Err: errOutOfRange}
	}
	return v, nil
}
