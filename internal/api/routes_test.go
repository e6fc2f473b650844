package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-sheets/internal/config"
	"github.com/joeblew999/plat-sheets/internal/db"
	"github.com/joeblew999/plat-sheets/internal/layer"
	"github.com/joeblew999/plat-sheets/internal/panel"
	"github.com/joeblew999/plat-sheets/internal/service"
	"github.com/joeblew999/plat-sheets/internal/sheet"
)

var pointRows = []sheet.Row{
	{"lat": "41.10", "lon": "-4.00", "Especie": "Bubo bubo", "N": "1"},
	{"lat": "41.20", "lon": "-4.10", "Especie": "Vulpes vulpes", "N": "2"},
	{"lat": "41.30", "lon": "-4.20", "Especie": "Meles meles", "N": "3"},
}

func newTestAPI(t *testing.T) (humatest.TestAPI, *service.Session) {
	t.Helper()

	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	store := db.NewSnapshotStore(conn)

	cfg := config.Default()
	cfg.Geometry.URL = ""
	cfg.Points.URL = ""
	session, err := service.NewSession(service.Options{
		Config:    cfg,
		Snapshots: store,
		Sources:   map[layer.Kind]sheet.Source{layer.Points: sheet.StaticRows(pointRows)},
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	humaConfig := huma.DefaultConfig("plat-sheets test", "1.0.0")
	humaConfig.Transformers = append(humaConfig.Transformers, LinkTransformer())
	_, api := humatest.New(t, humaConfig)

	huma.AutoRegister(api, NewHandler(session, store))
	NewInfoHandler("", true, map[string]string{"points": "static"}).RegisterRoutes(api)
	return api, session
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func hasLink(resp http.Header, fragment string) bool {
	for _, l := range resp.Values("Link") {
		if strings.Contains(l, fragment) {
			return true
		}
	}
	return false
}

func TestHealthAndInfo(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, hasLink(resp.Header(), `</api/v1/layers>; rel="layers"`))

	resp = api.Get("/api/v1/info")
	require.Equal(t, http.StatusOK, resp.Code)
	info := decode[InfoBody](t, resp.Body.Bytes())
	assert.Equal(t, "plat-sheets", info.Name)
	assert.Equal(t, []string{"geometry", "points"}, info.Kinds)
	assert.True(t, info.DB)
}

func TestLayersLifecycle(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/api/v1/layers")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `[]`, resp.Body.String())

	resp = api.Get("/api/v1/layers/points")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = api.Get("/api/v1/layers/tiles")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = api.Post("/api/v1/layers/points/refresh?wait=true")
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, "Fetch handled", decode[MessageBody](t, resp.Body.Bytes()).Message)

	resp = api.Get("/api/v1/layers")
	infos := decode[[]service.LayerInfo](t, resp.Body.Bytes())
	require.Len(t, infos, 1)
	assert.Equal(t, "points", infos[0].Kind)
	assert.Equal(t, 3, infos[0].Count)
	assert.Equal(t, "marker", infos[0].Marker)

	resp = api.Get("/api/v1/layers/points")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/geo+json", resp.Header().Get("Content-Type"))
	fc := decode[map[string]any](t, resp.Body.Bytes())
	assert.Equal(t, "FeatureCollection", fc["type"])
	assert.Len(t, fc["features"], 3)

	resp = api.Post("/api/v1/layers/geometry/refresh")
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = api.Get("/api/v1/snapshots")
	require.Equal(t, http.StatusOK, resp.Code)
	stats := decode[[]db.SnapshotStat](t, resp.Body.Bytes())
	require.Len(t, stats, 1)
	assert.Equal(t, 3, stats[0].RowCount)
}

func TestFeaturesPagingAndActions(t *testing.T) {
	api, session := newTestAPI(t)
	_, err := session.LoadPoints(pointRows)
	require.NoError(t, err)

	resp := api.Get("/api/v1/layers/points/features?offset=0&limit=2")
	require.Equal(t, http.StatusOK, resp.Code)
	page := decode[struct {
		Total int                      `json:"total"`
		Data  []service.FeatureSummary `json:"data"`
	}](t, resp.Body.Bytes())
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Vulpes vulpes", page.Data[1].Title)
	assert.True(t, hasLink(resp.Header(), `offset=2&limit=2>; rel="next"`))

	resp = api.Get("/api/v1/layers/points/features/2")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Meles meles", decode[FeatureBody](t, resp.Body.Bytes()).Title)
	assert.True(t, hasLink(resp.Header(), `</api/v1/layers/points/features/2/select>; rel="select"; method="POST"`))
	assert.True(t, hasLink(resp.Header(), `</api/v1/layers/points/features/2>; rel="self"`))

	resp = api.Get("/api/v1/layers/points/features/9")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSelectClickAndClear(t *testing.T) {
	api, session := newTestAPI(t)
	_, err := session.LoadPoints(pointRows)
	require.NoError(t, err)

	resp := api.Post("/api/v1/layers/points/features/1/select")
	require.Equal(t, http.StatusOK, resp.Code)
	st := decode[panel.State](t, resp.Body.Bytes())
	assert.True(t, st.Open)
	assert.Equal(t, "Vulpes vulpes", st.Title)

	resp = api.Post("/api/v1/layers/points/features/7/select")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = api.Post("/api/v1/click", map[string]any{"lon": -4.2, "lat": 41.3})
	require.Equal(t, http.StatusOK, resp.Code)
	click := decode[ClickBody](t, resp.Body.Bytes())
	assert.True(t, click.Hit)
	assert.Equal(t, "points", click.Kind)
	assert.Equal(t, 2, click.Index)
	assert.Equal(t, "Meles meles", click.Panel.Title)

	resp = api.Post("/api/v1/click", map[string]any{"lon": 10, "lat": 10})
	require.Equal(t, http.StatusOK, resp.Code)
	click = decode[ClickBody](t, resp.Body.Bytes())
	assert.False(t, click.Hit)
	assert.False(t, click.Panel.Open)

	resp = api.Post("/api/v1/click", map[string]any{"lon": 200, "lat": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	_, err = session.SelectFeature(layer.Points, 0)
	require.NoError(t, err)
	resp = api.Post("/api/v1/panel/clear")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, panel.Placeholder, decode[panel.State](t, resp.Body.Bytes()).Title)

	resp = api.Get("/api/v1/panel")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, decode[panel.State](t, resp.Body.Bytes()).Open)
}
