// Package service runs a map session: it loads the two sheets into layers,
// keeps them fresh, and turns clicks into panel content.
package service

import "time"

// LayerInfo describes the active generation of one layer kind.
type LayerInfo struct {
	Kind   string    `json:"kind" enum:"geometry,points" doc:"Layer kind" example:"points"`
	ID     string    `json:"id" doc:"Generation ID, changes on every reload"`
	Count  int       `json:"count" doc:"Number of features"`
	Source string    `json:"source" doc:"Where the rows came from" example:"file://seed/points.csv"`
	Loaded time.Time `json:"loaded" doc:"When this generation was built"`
	Bounds []float64 `json:"bounds,omitempty" doc:"Bounding box [minLon, minLat, maxLon, maxLat], absent when empty"`
	Marker string    `json:"marker,omitempty" enum:"marker,circleMarker,circle" doc:"Point marker type"`
	Radius float64   `json:"radius,omitempty" doc:"Marker radius, pixels for circleMarker, meters for circle"`
}

// FeatureSummary is one feature of a layer as listed by the API.
type FeatureSummary struct {
	Index        int            `json:"index" doc:"Position in the layer, used to select the feature"`
	GeometryType string         `json:"geometryType" doc:"GeoJSON geometry type" example:"Point"`
	Title        string         `json:"title" doc:"Panel title of the feature"`
	Properties   map[string]any `json:"properties" doc:"Configured property columns, null when missing"`
}
