package templates

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-sheets/internal/panel"
)

func TestRenderPanelBodyEscapes(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	body, err := r.Render("panel-body", panel.Entry{
		Lines: []panel.Line{
			{Label: "N", Value: "7"},
			{Label: "Observaciones", Value: "<script>alert(1)</script>"},
		},
		Photo:      "https://example.org/b.jpg",
		PhotoWidth: 270,
	})
	require.NoError(t, err)

	assert.Contains(t, body, "N: 7<br/>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, `<img src="https://example.org/b.jpg" width="270">`)
}

func TestRenderBareBody(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	body, err := r.Render("panel-body", panel.Entry{
		Bare:  true,
		Lines: []panel.Line{{Label: "description", Value: "Encinar"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>Encinar</p>", body)
}

func TestRenderPanel(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	html, err := r.Render("panel", panel.State{Open: true, Title: "Bubo & co", Body: "<p>x</p>", Seq: 4})
	require.NoError(t, err)
	assert.Contains(t, html, `class="sidebar open"`)
	assert.Contains(t, html, "Bubo &amp; co")
	assert.Contains(t, html, "<p>x</p>")

	html, err = r.Render("panel", panel.State{Title: panel.Placeholder})
	require.NoError(t, err)
	assert.Contains(t, html, `class="sidebar"`)
	assert.Contains(t, html, panel.Placeholder)
}

func TestRenderLayerStatus(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	type status struct {
		Kind   string
		Count  int
		Source string
		Loaded time.Time
	}

	html, err := r.Render("layer-status", []status{
		{Kind: "points", Count: 3, Source: "seed.csv", Loaded: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "points: 3 features from seed.csv")
	assert.Contains(t, html, "2024-05-01 10:00:00")

	html, err = r.Render("layer-status", []status{})
	require.NoError(t, err)
	assert.Contains(t, html, "No layers loaded")
}

func TestOverride(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	// Render first: overriding must work after templates have executed.
	_, err = r.Render("panel", panel.State{})
	require.NoError(t, err)

	dir := t.TempDir()
	custom := `{{define "panel"}}<aside>{{.Title}}</aside>{{end}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "panel.html"), []byte(custom), 0o644))
	require.NoError(t, r.Override(dir))

	html, err := r.Render("panel", panel.State{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, "<aside>t</aside>", html)

	_, err = r.Render("panel-body", panel.Entry{})
	assert.NoError(t, err, "embedded fragments stay available")

	assert.Error(t, r.Override(filepath.Join(dir, "missing")))
}
