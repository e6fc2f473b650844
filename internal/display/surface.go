// Package display holds the layers currently shown on the map and answers
// which feature, if any, lies under a click.
package display

import (
	"errors"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"

	"github.com/joeblew999/plat-sheets/internal/layer"
)

const earthRadiusMeters = 6371000.0

var (
	// ErrSlotTaken is returned when a kind already shows a generation.
	ErrSlotTaken = errors.New("display: layer kind already attached")
	// ErrNotAttached is returned when detaching a handle that is not shown.
	ErrNotAttached = errors.New("display: layer not attached")
)

// Action names the change passed to a ChangeFunc.
type Action string

const (
	Attached Action = "attached"
	Detached Action = "detached"
)

// ChangeFunc observes attach and detach calls. It runs with the surface
// lock held and must not call back into the surface.
type ChangeFunc func(action Action, h *layer.Handle)

type shown struct {
	handle *layer.Handle
	index  rtree.RTreeG[int]
}

// Surface is the in-memory map: one attached generation per kind, each
// with an R-tree over feature bounds for hit testing.
type Surface struct {
	mu       sync.RWMutex
	layers   map[layer.Kind]*shown
	onChange ChangeFunc
}

// NewSurface creates an empty surface. onChange may be nil.
func NewSurface(onChange ChangeFunc) *Surface {
	return &Surface{layers: make(map[layer.Kind]*shown), onChange: onChange}
}

// Attach shows h. The slot for its kind must be empty.
func (s *Surface) Attach(h *layer.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.layers[h.Kind]; ok {
		return ErrSlotTaken
	}

	sh := &shown{handle: h}
	for i := 0; i < h.Len(); i++ {
		f, _ := h.Feature(i)
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		sh.index.Insert(b.Min, b.Max, i)
	}
	s.layers[h.Kind] = sh

	if s.onChange != nil {
		s.onChange(Attached, h)
	}
	return nil
}

// Detach hides h. It must be the generation currently shown for its kind.
func (s *Surface) Detach(h *layer.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.layers[h.Kind]
	if !ok || sh.handle.ID != h.ID {
		return ErrNotAttached
	}
	delete(s.layers, h.Kind)

	if s.onChange != nil {
		s.onChange(Detached, h)
	}
	return nil
}

// Shown returns the generation displayed for kind.
func (s *Surface) Shown(kind layer.Kind) (*layer.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.layers[kind]
	if !ok {
		return nil, false
	}
	return sh.handle, true
}

// Hit identifies a feature under a click.
type Hit struct {
	Kind  layer.Kind
	Layer *layer.Handle
	Index int
}

// HitTest returns the topmost feature at p. Layers are searched top down
// (points above geometry) and, within a layer, later features win since
// they are drawn last. Points and lines are hit within toleranceMeters;
// polygons are hit when they contain p.
func (s *Surface) HitTest(p orb.Point, toleranceMeters float64) (Hit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dLon, dLat := degreesAround(p, toleranceMeters)
	lo := [2]float64{p[0] - dLon, p[1] - dLat}
	hi := [2]float64{p[0] + dLon, p[1] + dLat}

	for i := len(layer.Kinds) - 1; i >= 0; i-- {
		sh, ok := s.layers[layer.Kinds[i]]
		if !ok {
			continue
		}

		best := -1
		sh.index.Search(lo, hi, func(_, _ [2]float64, idx int) bool {
			if idx <= best {
				return true
			}
			f, _ := sh.handle.Feature(idx)
			if hits(f.Geometry, p, toleranceMeters, dLat) {
				best = idx
			}
			return true
		})
		if best >= 0 {
			return Hit{Kind: sh.handle.Kind, Layer: sh.handle, Index: best}, true
		}
	}
	return Hit{}, false
}

func hits(g orb.Geometry, p orb.Point, toleranceMeters, toleranceDeg float64) bool {
	switch g := g.(type) {
	case orb.Point:
		return geo.Distance(g, p) <= toleranceMeters
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Ring:
		return planar.RingContains(g, p)
	case orb.Collection:
		for _, sub := range g {
			if hits(sub, p, toleranceMeters, toleranceDeg) {
				return true
			}
		}
		return false
	}
	return planar.DistanceFrom(g, p) <= toleranceDeg
}

// degreesAround converts a distance in meters to degree offsets at p.
func degreesAround(p orb.Point, meters float64) (dLon, dLat float64) {
	metersPerDegreeLat := earthRadiusMeters * math.Pi / 180.0
	metersPerDegreeLon := metersPerDegreeLat * math.Cos(p[1]*math.Pi/180.0)
	dLat = meters / metersPerDegreeLat
	if metersPerDegreeLon < 1 {
		return 180, dLat
	}
	return meters / metersPerDegreeLon, dLat
}
