// Package geom turns the loosely typed contents of a spreadsheet geometry
// cell into GeoJSON features.
//
// A cell may hold any of:
//
//	[lon, lat]                               bare coordinates (depth 1..4)
//	{"type": "Polygon", "coordinates": ...}  a geometry object
//	{"type": "Feature", ...}                 a single feature
//	{"type": "FeatureCollection", ...}       several features
//
// [Classify] inspects the value without decoding it fully and [Normalize]
// returns the matching feature list. Properties are left to the caller.
package geom

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrShape reports a value that cannot be read as geometry.
var ErrShape = errors.New("geom: ill-formed geometry")

// Kind is the shape of a raw geometry value.
type Kind int

const (
	KindPoint Kind = iota
	KindLineString
	KindPolygon
	KindMultiPolygon
	KindGeometry
	KindFeature
	KindFeatureCollection
)

var kindNames = [...]string{
	KindPoint:             "Point",
	KindLineString:        "LineString",
	KindPolygon:           "Polygon",
	KindMultiPolygon:      "MultiPolygon",
	KindGeometry:          "Geometry",
	KindFeature:           "Feature",
	KindFeatureCollection: "FeatureCollection",
}

// String returns the GeoJSON type name for coordinate kinds and the object
// type for the others.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Coordinates reports whether k was inferred from bare coordinate nesting.
func (k Kind) Coordinates() bool {
	return k <= KindMultiPolygon
}

// Classify reports the kind of raw. Objects are classified by their "type"
// member alone. Arrays are walked along the first element chain: a number
// at depth 1, 2 or 3 gives Point, LineString or Polygon. Anything else,
// including empty arrays where no number is ever reached, is MultiPolygon.
func Classify(raw json.RawMessage) (Kind, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}

	switch t := v.(type) {
	case map[string]any:
		typ, ok := t["type"]
		if !ok {
			return 0, fmt.Errorf("%w: object has no type member", ErrShape)
		}
		switch typ {
		case "FeatureCollection":
			return KindFeatureCollection, nil
		case "Feature":
			return KindFeature, nil
		}
		return KindGeometry, nil
	case []any:
		return walkDepth(t), nil
	default:
		return 0, fmt.Errorf("%w: expected coordinates or a GeoJSON object, got %s", ErrShape, jsonType(v))
	}
}

// walkDepth walks the first element of each nesting level.
func walkDepth(coords []any) Kind {
	level := coords
	for _, k := range []Kind{KindPoint, KindLineString, KindPolygon} {
		if len(level) == 0 {
			break
		}
		next, ok := level[0].([]any)
		if !ok {
			if _, isNum := level[0].(float64); isNum {
				return k
			}
			break
		}
		level = next
	}
	return KindMultiPolygon
}

// Normalize returns the features encoded by raw.
//
// A FeatureCollection yields its features unchanged and a Feature yields
// itself. A bare geometry or bare coordinates are wrapped in a new Feature;
// for coordinates the geometry type comes from [Classify]. Every position
// must hold at least two numbers: a Point, LineString or Polygon that breaks
// this fails with [ErrShape], while MultiPolygon, being the fallback for
// nesting the depth walk could not read, becomes an empty MultiPolygon.
func Normalize(raw json.RawMessage) ([]*geojson.Feature, error) {
	kind, err := Classify(raw)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindFeatureCollection:
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}
		return fc.Features, nil

	case KindFeature:
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}
		return []*geojson.Feature{f}, nil

	case KindGeometry:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShape, err)
		}
		return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
	}

	var coords any
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, err
	}
	if !positionsFit(coords, int(kind)) {
		if kind == KindMultiPolygon {
			return []*geojson.Feature{geojson.NewFeature(orb.MultiPolygon{})}, nil
		}
		return nil, fmt.Errorf("%w: %s needs positions of at least two numbers", ErrShape, kind)
	}

	g, err := decodeCoordinates(kind, raw)
	if err != nil {
		return nil, err
	}
	return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
}

// positionsFit reports whether v holds positions exactly depth array levels
// down, each with at least two numbers. Point is depth 0, MultiPolygon 3.
func positionsFit(v any, depth int) bool {
	arr, ok := v.([]any)
	if !ok {
		return false
	}
	if depth == 0 {
		if len(arr) < 2 {
			return false
		}
		for _, n := range arr {
			if _, ok := n.(float64); !ok {
				return false
			}
		}
		return true
	}
	for _, e := range arr {
		if !positionsFit(e, depth-1) {
			return false
		}
	}
	return true
}

// decodeCoordinates reads bare coordinates as a geometry of the given kind.
func decodeCoordinates(kind Kind, raw json.RawMessage) (*geojson.Geometry, error) {
	doc, err := json.Marshal(struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}{kind.String(), raw})
	if err != nil {
		return nil, err
	}

	g, err := geojson.UnmarshalGeometry(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: coordinates do not form a %s: %v", ErrShape, kind, err)
	}
	return g, nil
}

// InferredType returns the GeoJSON type that bare coordinates would be read
// as, or the empty string when raw is not bare coordinates.
func InferredType(raw json.RawMessage) string {
	kind, err := Classify(raw)
	if err != nil || !kind.Coordinates() {
		return ""
	}
	return kind.String()
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	}
	return fmt.Sprintf("%T", v)
}
