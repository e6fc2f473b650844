package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-sheets/internal/config"
	"github.com/joeblew999/plat-sheets/internal/db"
	"github.com/joeblew999/plat-sheets/internal/display"
	"github.com/joeblew999/plat-sheets/internal/feature"
	"github.com/joeblew999/plat-sheets/internal/layer"
	"github.com/joeblew999/plat-sheets/internal/panel"
	"github.com/joeblew999/plat-sheets/internal/sheet"
	"github.com/joeblew999/plat-sheets/internal/templates"
)

var (
	// ErrNoLayer is returned when a kind has no active generation.
	ErrNoLayer = errors.New("service: layer not loaded")
	// ErrNoFeature is returned for an index outside the active generation.
	ErrNoFeature = errors.New("service: no such feature")
	// ErrNoSource is returned when refreshing a kind without a source.
	ErrNoSource = errors.New("service: no source configured")
)

// Options configures a Session. Only Config is required.
type Options struct {
	Config *config.Config
	// Sources overrides the published sheet URLs from Config.
	Sources   map[layer.Kind]sheet.Source
	Snapshots *db.SnapshotStore
	Renderer  *templates.Renderer
	Bus       *EventBus
	// RefreshInterval re-fetches every kind periodically. Zero fetches
	// once at Start.
	RefreshInterval time.Duration
}

// Session is one running map: a layer manager drawing onto a display
// surface, and the side panel. Everything the HTTP handlers touch goes
// through it.
type Session struct {
	cfg       *config.Config
	surface   *display.Surface
	layers    *layer.Manager
	panel     *panel.Controller
	renderer  *templates.Renderer
	snapshots *db.SnapshotStore
	bus       *EventBus
	sources   map[layer.Kind]sheet.Source
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex // serialises replace with origin bookkeeping
	origins map[layer.Kind]string
}

// NewSession wires the layer manager, display surface and panel together.
func NewSession(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("service: config is required")
	}
	renderer := opts.Renderer
	if renderer == nil {
		r, err := templates.New()
		if err != nil {
			return nil, fmt.Errorf("service: load templates: %w", err)
		}
		renderer = r
	}
	bus := opts.Bus
	if bus == nil {
		bus = NewEventBus()
	}

	s := &Session{
		cfg:       opts.Config,
		renderer:  renderer,
		snapshots: opts.Snapshots,
		bus:       bus,
		sources:   make(map[layer.Kind]sheet.Source),
		interval:  opts.RefreshInterval,
		origins:   make(map[layer.Kind]string),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if url := opts.Config.Geometry.URL; url != "" {
		s.sources[layer.Geometry] = sheet.NewHTTPSource(url, opts.Config.FetchTimeout)
	}
	if url := opts.Config.Points.URL; url != "" {
		s.sources[layer.Points] = sheet.NewHTTPSource(url, opts.Config.FetchTimeout)
	}
	for kind, src := range opts.Sources {
		s.sources[kind] = src
	}

	s.surface = display.NewSurface(func(a display.Action, h *layer.Handle) {
		bus.Publish(Event{Resource: ResourceLayers, Action: string(a), Kind: string(h.Kind), ID: h.ID.String()})
	})
	s.layers = layer.NewManager(s.surface)
	s.panel = panel.NewController()
	s.panel.OnChange(func(st panel.State) {
		action := "cleared"
		if st.Open {
			action = "selected"
		}
		bus.Publish(Event{Resource: ResourcePanel, Action: action, ID: strconv.FormatUint(st.Seq, 10)})
	})

	return s, nil
}

// Bus returns the event bus the session publishes on.
func (s *Session) Bus() *EventBus { return s.bus }

// Renderer returns the fragment renderer used for the panel.
func (s *Session) Renderer() *templates.Renderer { return s.renderer }

// Sources names the sheet each kind is fetched from.
func (s *Session) Sources() map[string]string {
	out := make(map[string]string, len(s.sources))
	for kind, src := range s.sources {
		out[string(kind)] = src.String()
	}
	return out
}

// Build turns rows into the collection and style of kind without
// displaying anything.
func Build(cfg *config.Config, kind layer.Kind, rows []sheet.Row) (*geojson.FeatureCollection, layer.Style, error) {
	switch kind {
	case layer.Geometry:
		fc, err := feature.BuildGeometry(rows, cfg.Geometry.Options())
		return fc, layer.Style{}, err
	case layer.Points:
		fc, err := feature.BuildPoints(rows, cfg.Points.Options())
		return fc, cfg.Points.Style(), err
	}
	return nil, layer.Style{}, fmt.Errorf("%w: %q", layer.ErrUnknownKind, kind)
}

// LoadGeometry builds the geometry layer from rows and displays it in
// place of the previous generation.
func (s *Session) LoadGeometry(rows []sheet.Row) (*layer.Handle, error) {
	return s.Load(layer.Geometry, rows, "direct")
}

// LoadPoints builds the points layer from rows and displays it in place
// of the previous generation.
func (s *Session) LoadPoints(rows []sheet.Row) (*layer.Handle, error) {
	return s.Load(layer.Points, rows, "direct")
}

// Load builds kind from rows and replaces the displayed generation. If the
// build fails the previous generation stays on display.
func (s *Session) Load(kind layer.Kind, rows []sheet.Row, origin string) (*layer.Handle, error) {
	fc, style, err := Build(s.cfg, kind, rows)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Str("source", origin).Msg("Build rejected, keeping previous layer")
		s.bus.Publish(Event{Resource: ResourceLayers, Action: "failed", Kind: string(kind)})
		return nil, err
	}

	h := layer.NewHandle(kind, fc, style)

	s.mu.Lock()
	err = s.layers.Replace(kind, h)
	if err == nil {
		s.origins[kind] = origin
	} else {
		delete(s.origins, kind)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("kind", string(kind)).
		Str("id", h.ID.String()).
		Int("rows", len(rows)).
		Int("features", h.Len()).
		Str("source", origin).
		Msg("Layer replaced")
	return h, nil
}

// Start shows seed data for every kind, from the last snapshot or else the
// configured seed file, then fires one fetch per kind. With a refresh
// interval the fetches repeat until Close.
func (s *Session) Start(ctx context.Context) {
	for _, kind := range layer.Kinds {
		s.seed(ctx, kind)
		if _, err := s.Refresh(kind); err != nil && !errors.Is(err, ErrNoSource) {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("Initial fetch not started")
		}
	}

	if s.interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				for _, kind := range layer.Kinds {
					s.Refresh(kind)
				}
			}
		}
	}()
}

func (s *Session) seed(ctx context.Context, kind layer.Kind) {
	if s.snapshots != nil {
		snap, err := s.snapshots.Load(ctx, string(kind))
		if err == nil {
			if _, err := s.Load(kind, snap.Rows, "snapshot:"+snap.Source); err == nil {
				return
			}
		} else if !errors.Is(err, db.ErrNoSnapshot) {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("Snapshot unavailable")
		}
	}

	path := s.seedPath(kind)
	if path == "" {
		return
	}
	src := sheet.FileSource{Path: path}
	rows, err := src.Rows(ctx)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Seed file unavailable")
		return
	}
	s.Load(kind, rows, src.String())
}

func (s *Session) seedPath(kind layer.Kind) string {
	switch kind {
	case layer.Geometry:
		return s.cfg.Geometry.Seed
	case layer.Points:
		return s.cfg.Points.Seed
	}
	return ""
}

// Refresh fires a fetch for kind. The new rows replace the displayed layer
// when they arrive; a failed fetch or a rejected build leaves it alone.
// The returned channel closes once the result has been handled.
func (s *Session) Refresh(kind layer.Kind) (<-chan struct{}, error) {
	src, ok := s.sources[kind]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoSource, kind)
	}
	if err := s.ctx.Err(); err != nil {
		return nil, fmt.Errorf("service: session closed: %w", err)
	}

	s.wg.Add(1)
	pending := sheet.Fetch(s.ctx, src)
	done := pending.Then(
		func(rows []sheet.Row) {
			if _, err := s.Load(kind, rows, src.String()); err == nil {
				s.saveSnapshot(kind, src, rows)
			}
		},
		func(err error) {
			log.Warn().Err(err).Str("kind", string(kind)).Str("source", src.String()).Msg("Fetch failed, keeping previous layer")
		},
	)
	go func() {
		<-done
		s.wg.Done()
	}()
	return done, nil
}

func (s *Session) saveSnapshot(kind layer.Kind, src sheet.Source, rows []sheet.Row) {
	if s.snapshots == nil {
		return
	}
	err := s.snapshots.Save(s.ctx, db.Snapshot{
		Kind:      string(kind),
		Source:    src.String(),
		FetchedAt: time.Now(),
		Rows:      rows,
	})
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Snapshot not saved")
	}
}

// Close stops periodic refreshes and waits for fetches in flight.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// Layer returns the active generation of kind.
func (s *Session) Layer(kind layer.Kind) (*layer.Handle, error) {
	h, ok := s.layers.Active(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLayer, kind)
	}
	return h, nil
}

// Layers describes every active generation in drawing order.
func (s *Session) Layers() []LayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := []LayerInfo{}
	for _, kind := range layer.Kinds {
		h, ok := s.layers.Active(kind)
		if !ok {
			continue
		}
		info := LayerInfo{
			Kind:   string(kind),
			ID:     h.ID.String(),
			Count:  h.Len(),
			Source: s.origins[kind],
			Loaded: h.Created,
			Marker: string(h.Style.Marker),
			Radius: h.Style.Radius,
		}
		if !h.Empty {
			info.Bounds = []float64{h.Bound.Min.Lon(), h.Bound.Min.Lat(), h.Bound.Max.Lon(), h.Bound.Max.Lat()}
		}
		infos = append(infos, info)
	}
	return infos
}

// Features lists a page of the active generation of kind and the total
// number of features.
func (s *Session) Features(kind layer.Kind, offset, limit int) ([]FeatureSummary, int, error) {
	h, err := s.Layer(kind)
	if err != nil {
		return nil, 0, err
	}
	layout := s.layout(kind)

	total := h.Len()
	start := min(max(offset, 0), total)
	end := min(start+max(limit, 0), total)

	items := make([]FeatureSummary, 0, end-start)
	for i := start; i < end; i++ {
		f, _ := h.Feature(i)
		items = append(items, FeatureSummary{
			Index:        i,
			GeometryType: geometryType(f.Geometry),
			Title:        layout.Entry(f.Properties).Title,
			Properties:   map[string]any(f.Properties),
		})
	}
	return items, total, nil
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return g.GeoJSONType()
}

func (s *Session) layout(kind layer.Kind) panel.Layout {
	if kind == layer.Points {
		return s.cfg.Points.Panel
	}
	return s.cfg.Geometry.Panel
}

// SelectFeature opens the panel on feature index of the active generation
// of kind, as a click on that feature would.
func (s *Session) SelectFeature(kind layer.Kind, index int) (panel.State, error) {
	h, err := s.Layer(kind)
	if err != nil {
		return panel.State{}, err
	}
	return s.selectFrom(h, index)
}

func (s *Session) selectFrom(h *layer.Handle, index int) (panel.State, error) {
	f, ok := h.Feature(index)
	if !ok {
		return panel.State{}, fmt.Errorf("%w: %s[%d]", ErrNoFeature, h.Kind, index)
	}

	entry := s.layout(h.Kind).Entry(f.Properties)
	body, err := s.renderer.Render("panel-body", entry)
	if err != nil {
		return panel.State{}, fmt.Errorf("service: render panel: %w", err)
	}
	s.panel.Select(entry.Title, body)
	return s.panel.State(), nil
}

// Selection is the result of a map click.
type Selection struct {
	Hit   bool
	Kind  layer.Kind
	Index int
	Panel panel.State
}

// ClickAt handles a click on the map at (lon, lat): a feature under the
// click is selected, a click on the background closes the panel.
func (s *Session) ClickAt(lon, lat float64) (Selection, error) {
	hit, ok := s.surface.HitTest(orb.Point{lon, lat}, s.cfg.HitTolerance)
	if !ok {
		return Selection{Panel: s.Dismiss()}, nil
	}

	st, err := s.selectFrom(hit.Layer, hit.Index)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Hit: true, Kind: hit.Kind, Index: hit.Index, Panel: st}, nil
}

// Dismiss closes the panel.
func (s *Session) Dismiss() panel.State {
	s.panel.Clear()
	return s.panel.State()
}

// Panel returns the current panel state.
func (s *Session) Panel() panel.State {
	return s.panel.State()
}
