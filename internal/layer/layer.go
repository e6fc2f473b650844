// Package layer keeps at most one displayed generation of each layer kind.
package layer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-sheets/internal/feature"
)

// Kind is one of the independent renderable categories.
type Kind string

const (
	// Geometry holds area and line features from the geometry sheet.
	Geometry Kind = "geometry"
	// Points holds observation markers from the points sheet.
	Points Kind = "points"
)

// Kinds lists every layer kind in drawing order, bottom first.
var Kinds = []Kind{Geometry, Points}

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("layer: unknown kind")

// ParseKind validates a kind name from a URL or config.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Geometry, Points:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Style carries the point placement settings. It is empty for the
// geometry layer.
type Style struct {
	Marker feature.MarkerType `json:"marker,omitempty"`
	Radius float64            `json:"radius,omitempty"`
}

// Handle is one generation of a layer. It is immutable once created.
type Handle struct {
	ID         uuid.UUID
	Kind       Kind
	Collection *geojson.FeatureCollection
	Style      Style
	Bound      orb.Bound
	Empty      bool // no located features, Bound is meaningless
	Created    time.Time
}

// NewHandle wraps a freshly built collection. Radius is dropped for plain
// markers, which ignore it.
func NewHandle(kind Kind, fc *geojson.FeatureCollection, style Style) *Handle {
	if !style.Marker.UsesRadius() {
		style.Radius = 0
	}
	bound, ok := collectionBound(fc)
	return &Handle{
		ID:         uuid.New(),
		Kind:       kind,
		Collection: fc,
		Style:      style,
		Bound:      bound,
		Empty:      !ok,
		Created:    time.Now(),
	}
}

// Len returns the number of features in the generation.
func (h *Handle) Len() int {
	if h.Collection == nil {
		return 0
	}
	return len(h.Collection.Features)
}

// Feature returns the i-th feature.
func (h *Handle) Feature(i int) (*geojson.Feature, bool) {
	if i < 0 || i >= h.Len() {
		return nil, false
	}
	return h.Collection.Features[i], true
}

func collectionBound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var bound orb.Bound
	found := false
	if fc == nil {
		return bound, false
	}
	for _, f := range fc.Features {
		if f.Geometry == nil || isEmpty(f.Geometry) {
			continue
		}
		b := f.Geometry.Bound()
		if !found {
			bound, found = b, true
			continue
		}
		bound = bound.Union(b)
	}
	return bound, found
}

func isEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.MultiPolygon:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiPoint:
		return len(g) == 0
	case orb.MultiLineString:
		return len(g) == 0
	case orb.Collection:
		return len(g) == 0
	}
	return false
}

// Surface is whatever displays layers. Attach makes a handle visible and
// Detach removes it.
type Surface interface {
	Attach(h *Handle) error
	Detach(h *Handle) error
}

// ErrKindMismatch is returned when a handle is offered for the wrong slot.
var ErrKindMismatch = errors.New("layer: handle kind does not match slot")

// Manager owns one slot per kind. Replace detaches the previous generation
// before attaching the next, so a kind never shows two generations. The
// two kinds are independent; nothing makes their refreshes atomic together.
type Manager struct {
	mu      sync.Mutex
	surface Surface
	active  map[Kind]*Handle
}

// NewManager creates a manager drawing onto surface.
func NewManager(surface Surface) *Manager {
	return &Manager{surface: surface, active: make(map[Kind]*Handle)}
}

// Replace makes h the active generation for kind. If the surface refuses
// the new handle the slot is left empty.
func (m *Manager) Replace(kind Kind, h *Handle) error {
	if h.Kind != kind {
		return fmt.Errorf("%w: %s handle for %s slot", ErrKindMismatch, h.Kind, kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.active[kind]; ok {
		if err := m.surface.Detach(prev); err != nil {
			return fmt.Errorf("layer: detach %s %s: %w", kind, prev.ID, err)
		}
		delete(m.active, kind)
	}

	if err := m.surface.Attach(h); err != nil {
		return fmt.Errorf("layer: attach %s %s: %w", kind, h.ID, err)
	}
	m.active[kind] = h
	return nil
}

// Active returns the current generation for kind.
func (m *Manager) Active(kind Kind) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.active[kind]
	return h, ok
}

// All returns the active generation of every kind that has one.
func (m *Manager) All() map[Kind]*Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[Kind]*Handle, len(m.active))
	for k, v := range m.active {
		result[k] = v
	}
	return result
}
