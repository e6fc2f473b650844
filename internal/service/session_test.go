package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-sheets/internal/config"
	"github.com/joeblew999/plat-sheets/internal/db"
	"github.com/joeblew999/plat-sheets/internal/feature"
	"github.com/joeblew999/plat-sheets/internal/layer"
	"github.com/joeblew999/plat-sheets/internal/sheet"
)

type failingSource struct{}

func (failingSource) Rows(context.Context) ([]sheet.Row, error) {
	return nil, errors.Join(sheet.ErrFetch, errors.New("offline"))
}

func (failingSource) String() string { return "failing" }

type countingSource struct {
	calls atomic.Int32
	rows  []sheet.Row
}

func (c *countingSource) Rows(context.Context) ([]sheet.Row, error) {
	c.calls.Add(1)
	return c.rows, nil
}

func (c *countingSource) String() string { return "counting" }

func offlineConfig() *config.Config {
	cfg := config.Default()
	cfg.Geometry.URL = ""
	cfg.Points.URL = ""
	return cfg
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Config == nil {
		opts.Config = offlineConfig()
	}
	s, err := NewSession(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

var (
	geometryRows = []sheet.Row{
		{"include": "y", "geometry": "[[[0,0],[1,0],[1,1],[0,1],[0,0]]]", "name": "Square", "description": "A <b>field</b>"},
		{"include": "n", "geometry": "[5,5]", "name": "Hidden"},
		{"include": "y", "geometry": "[[2,2],[3,3]]", "name": "Track"},
	}
	pointRows = []sheet.Row{
		{"lat": "41.1", "lon": "-4.0", "Especie": "Bubo bubo", "N": "1", "Foto": "https://example.org/b.jpg"},
		{"lat": "41.2", "lon": "-4.1", "Especie": "Vulpes vulpes", "N": "2"},
	}
)

func TestLoadKeepsPreviousLayerOnBadRows(t *testing.T) {
	s := newSession(t, Options{})

	first, err := s.LoadGeometry(geometryRows)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Len())

	bad := append([]sheet.Row{}, geometryRows...)
	bad = append(bad, sheet.Row{"include": "y", "geometry": "[[0,0],"})
	_, err = s.LoadGeometry(bad)
	require.ErrorIs(t, err, feature.ErrGeometryParse)

	active, err := s.Layer(layer.Geometry)
	require.NoError(t, err)
	assert.Same(t, first, active)
}

func TestLoadReplacesGeneration(t *testing.T) {
	bus := NewEventBus()
	events := bus.Subscribe()
	s := newSession(t, Options{Bus: bus})

	first, err := s.LoadPoints(pointRows)
	require.NoError(t, err)
	second, err := s.LoadPoints(pointRows[:1])
	require.NoError(t, err)

	active, err := s.Layer(layer.Points)
	require.NoError(t, err)
	assert.Same(t, second, active)

	var got []Event
	for len(got) < 3 {
		got = append(got, <-events)
	}
	assert.Equal(t, []Event{
		{Resource: ResourceLayers, Action: "attached", Kind: "points", ID: first.ID.String()},
		{Resource: ResourceLayers, Action: "detached", Kind: "points", ID: first.ID.String()},
		{Resource: ResourceLayers, Action: "attached", Kind: "points", ID: second.ID.String()},
	}, got)
}

func TestRefreshReplacesOnArrival(t *testing.T) {
	s := newSession(t, Options{Sources: map[layer.Kind]sheet.Source{
		layer.Geometry: sheet.StaticRows(geometryRows),
	}})

	done, err := s.Refresh(layer.Geometry)
	require.NoError(t, err)
	<-done

	infos := s.Layers()
	require.Len(t, infos, 1)
	assert.Equal(t, "geometry", infos[0].Kind)
	assert.Equal(t, 2, infos[0].Count)
	assert.Equal(t, "static(3 rows)", infos[0].Source)
	assert.Equal(t, []float64{0, 0, 3, 3}, infos[0].Bounds)

	_, err = s.Refresh(layer.Points)
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestFailedFetchKeepsSeed(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(seed, []byte("lat,lon,Especie\n41,-4,Seed\n"), 0o644))

	cfg := offlineConfig()
	cfg.Points.Seed = seed
	s := newSession(t, Options{Config: cfg, Sources: map[layer.Kind]sheet.Source{
		layer.Points: failingSource{},
	}})

	s.Start(context.Background())
	done, err := s.Refresh(layer.Points)
	require.NoError(t, err)
	<-done

	infos := s.Layers()
	require.Len(t, infos, 1)
	assert.Equal(t, "file://"+seed, infos[0].Source)
	assert.Equal(t, 1, infos[0].Count)
}

func TestSnapshotSeedsNextSession(t *testing.T) {
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	store := db.NewSnapshotStore(conn)

	first := newSession(t, Options{Snapshots: store, Sources: map[layer.Kind]sheet.Source{
		layer.Points: sheet.StaticRows(pointRows),
	}})
	done, err := first.Refresh(layer.Points)
	require.NoError(t, err)
	<-done

	snap, err := store.Load(context.Background(), "points")
	require.NoError(t, err)
	assert.Equal(t, pointRows, snap.Rows)

	second := newSession(t, Options{Snapshots: store})
	second.Start(context.Background())

	infos := second.Layers()
	require.Len(t, infos, 1)
	assert.Equal(t, "snapshot:static(2 rows)", infos[0].Source)
	assert.Equal(t, 2, infos[0].Count)
}

func TestRejectedFetchSavesNoSnapshot(t *testing.T) {
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	store := db.NewSnapshotStore(conn)

	s := newSession(t, Options{Snapshots: store, Sources: map[layer.Kind]sheet.Source{
		layer.Points: sheet.StaticRows{{"lat": "north", "lon": "0"}},
	}})
	done, err := s.Refresh(layer.Points)
	require.NoError(t, err)
	<-done

	_, err = store.Load(context.Background(), "points")
	assert.ErrorIs(t, err, db.ErrNoSnapshot)
	_, err = s.Layer(layer.Points)
	assert.ErrorIs(t, err, ErrNoLayer)
}

func TestPeriodicRefresh(t *testing.T) {
	src := &countingSource{rows: pointRows}
	s := newSession(t, Options{
		RefreshInterval: 10 * time.Millisecond,
		Sources:         map[layer.Kind]sheet.Source{layer.Points: src},
	})

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return src.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Close()
	_, err := s.Refresh(layer.Points)
	assert.Error(t, err)
}

func TestClickAtSelectsAndClears(t *testing.T) {
	s := newSession(t, Options{})
	_, err := s.LoadGeometry(geometryRows)
	require.NoError(t, err)
	_, err = s.LoadPoints(pointRows)
	require.NoError(t, err)

	sel, err := s.ClickAt(-4.0, 41.1)
	require.NoError(t, err)
	assert.True(t, sel.Hit)
	assert.Equal(t, layer.Points, sel.Kind)
	assert.Equal(t, 0, sel.Index)
	assert.True(t, sel.Panel.Open)
	assert.Equal(t, "Bubo bubo", sel.Panel.Title)
	assert.Contains(t, sel.Panel.Body, "N: 1<br/>")
	assert.Contains(t, sel.Panel.Body, `<img src="https://example.org/b.jpg" width="270">`)

	sel, err = s.ClickAt(0.5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, layer.Geometry, sel.Kind)
	assert.Equal(t, "Square", sel.Panel.Title)
	assert.Equal(t, "<p>A &lt;b&gt;field&lt;/b&gt;</p>", sel.Panel.Body)

	sel, err = s.ClickAt(50, 50)
	require.NoError(t, err)
	assert.False(t, sel.Hit)
	assert.False(t, sel.Panel.Open)
	assert.False(t, s.Panel().Open)
}

func TestSelectFeature(t *testing.T) {
	s := newSession(t, Options{})

	_, err := s.SelectFeature(layer.Points, 0)
	assert.ErrorIs(t, err, ErrNoLayer)

	_, err = s.LoadPoints(pointRows)
	require.NoError(t, err)

	st, err := s.SelectFeature(layer.Points, 1)
	require.NoError(t, err)
	assert.Equal(t, "Vulpes vulpes", st.Title)

	_, err = s.SelectFeature(layer.Points, 2)
	assert.ErrorIs(t, err, ErrNoFeature)
	assert.Equal(t, "Vulpes vulpes", s.Panel().Title, "failed select leaves the panel alone")

	st = s.Dismiss()
	assert.False(t, st.Open)
}

func TestFeaturesPaging(t *testing.T) {
	s := newSession(t, Options{})
	_, err := s.LoadPoints(pointRows)
	require.NoError(t, err)

	items, total, err := s.Features(layer.Points, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Index)
	assert.Equal(t, "Point", items[0].GeometryType)
	assert.Equal(t, "Vulpes vulpes", items[0].Title)
	assert.Nil(t, items[0].Properties["Usuario"])

	items, _, err = s.Features(layer.Points, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBuildUnknownKind(t *testing.T) {
	_, _, err := Build(config.Default(), layer.Kind("tiles"), nil)
	assert.ErrorIs(t, err, layer.ErrUnknownKind)
}

func TestSources(t *testing.T) {
	cfg := offlineConfig()
	cfg.Geometry.URL = "https://example.org/geometry.csv"
	s := newSession(t, Options{
		Config:  cfg,
		Sources: map[layer.Kind]sheet.Source{layer.Points: &countingSource{}},
	})

	assert.Equal(t, map[string]string{
		"geometry": "https://example.org/geometry.csv",
		"points":   "counting",
	}, s.Sources())
}
