package panel

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Layout says which feature properties fill the panel.
type Layout struct {
	TitleColumn string            `yaml:"title_column"`
	BodyColumns []string          `yaml:"body_columns"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	// Bare renders body values without labels, one paragraph each.
	Bare        bool   `yaml:"bare,omitempty"`
	PhotoColumn string `yaml:"photo_column,omitempty"`
	PhotoWidth  int    `yaml:"photo_width,omitempty"`
}

// GeometryLayout shows the name as title and the description as body.
func GeometryLayout() Layout {
	return Layout{
		TitleColumn: "name",
		BodyColumns: []string{"description"},
		Bare:        true,
	}
}

// PointsLayout shows the species as title followed by the observation
// record and its photo.
func PointsLayout() Layout {
	return Layout{
		TitleColumn: "Especie",
		BodyColumns: []string{
			"N", "Usuario", "Fecha", "Seguridad_id", "Frecuencia_paso",
			"Carretera", "Pk", "Observaciones",
		},
		PhotoColumn: "Foto",
		PhotoWidth:  270,
	}
}

// Line is one body entry.
type Line struct {
	Label string
	Value string
}

// Entry is the panel content for one feature, ready for a template.
type Entry struct {
	Title      string
	Bare       bool
	Lines      []Line
	Photo      string
	PhotoWidth int
}

// Entry extracts the panel content from a feature's properties. Null
// properties render as empty strings.
func (l Layout) Entry(props geojson.Properties) Entry {
	e := Entry{
		Title:      text(props[l.TitleColumn]),
		Bare:       l.Bare,
		PhotoWidth: l.PhotoWidth,
	}
	for _, col := range l.BodyColumns {
		label := col
		if v, ok := l.Labels[col]; ok {
			label = v
		}
		e.Lines = append(e.Lines, Line{Label: label, Value: text(props[col])})
	}
	if l.PhotoColumn != "" {
		e.Photo = text(props[l.PhotoColumn])
	}
	return e
}

func text(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	return fmt.Sprint(v)
}
