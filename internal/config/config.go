// Package config loads the layer configuration file (sheets.yaml).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-sheets/internal/feature"
	"github.com/joeblew999/plat-sheets/internal/layer"
	"github.com/joeblew999/plat-sheets/internal/panel"
)

// Published sheets the service reads when no config file overrides them.
const (
	DefaultGeometryURL = "https://docs.google.com/spreadsheets/d/e/2PACX-1vR1on0SyoQQfTL0lsTJTuZGotL3IRWj7raYbbnYy5WT83TiQUshrby-SHIducbO7j5T4H3t8x63OKQy/pub?output=csv"
	DefaultPointsURL   = "https://docs.google.com/spreadsheets/d/e/2PACX-1vR8kfDgeV5DH0yXntk8-b2WXs5oW_bHuJdNb4hDXPA6AilTSTsNvHieU9yEhP14uBxaj3wALggT03-D/pub?output=csv"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the root of sheets.yaml.
type Config struct {
	Geometry     GeometryLayer `yaml:"geometry"`
	Points       PointsLayer   `yaml:"points"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// HitTolerance is how far from a point or line a click still selects
	// it, in meters.
	HitTolerance float64 `yaml:"hit_tolerance"`
}

// GeometryLayer configures the area and line layer.
type GeometryLayer struct {
	URL             string       `yaml:"url"`
	Seed            string       `yaml:"seed,omitempty"` // local CSV shown before the first fetch
	InclusionColumn string       `yaml:"inclusion_column"`
	GeometryColumn  string       `yaml:"geometry_column"`
	PropertyColumns []string     `yaml:"property_columns"`
	Panel           panel.Layout `yaml:"panel"`
}

// PointsLayer configures the observation layer.
type PointsLayer struct {
	URL             string       `yaml:"url"`
	Seed            string       `yaml:"seed,omitempty"`
	InclusionColumn string       `yaml:"inclusion_column,omitempty"`
	LatColumn       string       `yaml:"lat_column"`
	LonColumn       string       `yaml:"lon_column"`
	PropertyColumns []string     `yaml:"property_columns"`
	Marker          string       `yaml:"marker"`
	Radius          float64      `yaml:"radius"`
	Panel           panel.Layout `yaml:"panel"`
}

// Default returns the configuration of the two published sheets.
func Default() *Config {
	return &Config{
		Geometry: GeometryLayer{
			URL:             DefaultGeometryURL,
			InclusionColumn: "include",
			GeometryColumn:  "geometry",
			PropertyColumns: []string{"name", "description"},
			Panel:           panel.GeometryLayout(),
		},
		Points: PointsLayer{
			URL:       DefaultPointsURL,
			LatColumn: "lat",
			LonColumn: "lon",
			PropertyColumns: []string{
				"N", "Usuario", "Clase", "Especie", "Fecha", "Seguridad_id",
				"Frecuencia_paso", "Carretera", "Pk", "Foto", "Observaciones",
			},
			Marker: string(feature.Marker),
			Radius: 100,
			Panel:  panel.PointsLayout(),
		},
		FetchTimeout: 30 * time.Second,
		HitTolerance: 25,
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that an empty path or a missing file
// yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks that every column the builders read is named.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"geometry.inclusion_column", c.Geometry.InclusionColumn},
		{"geometry.geometry_column", c.Geometry.GeometryColumn},
		{"points.lat_column", c.Points.LatColumn},
		{"points.lon_column", c.Points.LonColumn},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalid, r.name)
		}
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch_timeout must be positive", ErrInvalid)
	}
	if c.HitTolerance < 0 {
		return fmt.Errorf("%w: hit_tolerance must not be negative", ErrInvalid)
	}
	if c.Points.Radius < 0 {
		return fmt.Errorf("%w: points.radius must not be negative", ErrInvalid)
	}
	return nil
}

// YAML encodes the configuration in file form.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Options returns the builder options of the geometry layer.
func (g GeometryLayer) Options() feature.GeometryOptions {
	return feature.GeometryOptions{
		InclusionColumn: g.InclusionColumn,
		GeometryColumn:  g.GeometryColumn,
		PropertyColumns: g.PropertyColumns,
	}
}

// Options returns the builder options of the points layer.
func (p PointsLayer) Options() feature.PointOptions {
	return feature.PointOptions{
		InclusionColumn: p.InclusionColumn,
		LatColumn:       p.LatColumn,
		LonColumn:       p.LonColumn,
		PropertyColumns: p.PropertyColumns,
	}
}

// Style returns the marker placement of the points layer.
func (p PointsLayer) Style() layer.Style {
	return layer.Style{Marker: feature.ParseMarkerType(p.Marker), Radius: p.Radius}
}
