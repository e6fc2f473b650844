// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-sheets/internal/db"
	"github.com/joeblew999/plat-sheets/internal/humastar"
	"github.com/joeblew999/plat-sheets/internal/layer"
	"github.com/joeblew999/plat-sheets/internal/panel"
	"github.com/joeblew999/plat-sheets/internal/service"
)

// Types

type KindInput struct {
	Kind string `path:"kind" enum:"geometry,points" doc:"Layer kind" example:"points"`
}

type FeatureInput struct {
	KindInput
	Index int `path:"index" minimum:"0" doc:"Feature position in the layer" example:"0"`
}

type FeaturesInput struct {
	KindInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Number of features to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

type RefreshInput struct {
	KindInput
	Wait bool `query:"wait" doc:"Block until the fetch has been handled"`
}

type ClickInput struct {
	Body struct {
		Lon float64 `json:"lon" minimum:"-180" maximum:"180" doc:"Longitude of the click" example:"-4.0"`
		Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude of the click" example:"41.1"`
	}
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type ClickBody struct {
	Hit   bool        `json:"hit" doc:"Whether a feature was under the click"`
	Kind  string      `json:"kind,omitempty" doc:"Layer kind of the selected feature"`
	Index int         `json:"index" doc:"Index of the selected feature, 0 on a miss"`
	Panel panel.State `json:"panel" doc:"Panel after the click"`
}

// FeatureBody is a single feature with its state-dependent actions.
type FeatureBody struct {
	Kind string `json:"kind" doc:"Layer kind"`
	service.FeatureSummary
}

var featureActions = []humastar.ActionDef{
	{Rel: "select", Pattern: "/api/v1/layers/%s/select", Method: http.MethodPost, Title: "Show in panel"},
}

// Actions implements humastar.Actor.
func (b FeatureBody) Actions() []humastar.Action {
	return humastar.ActionsFor(fmt.Sprintf("%s/features/%d", b.Kind, b.Index), featureActions)
}

// Handler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type Handler struct {
	session   *service.Session
	snapshots *db.SnapshotStore
}

// NewHandler creates the REST handlers. snapshots may be nil.
func NewHandler(session *service.Session, snapshots *db.SnapshotStore) *Handler {
	return &Handler{session: session, snapshots: snapshots}
}

// RegisterHealth registers health check routes.
func (h *Handler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer read and refresh routes.
func (h *Handler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.ListLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{kind}", h.GetLayer, huma.OperationTags("layers"))
	huma.Register(api, huma.Operation{
		OperationID:   "refresh-layer",
		Method:        http.MethodPost,
		Path:          "/api/v1/layers/{kind}/refresh",
		Summary:       "Fetch a layer's sheet again",
		Tags:          []string{"layers"},
		DefaultStatus: http.StatusAccepted,
	}, h.RefreshLayer)
}

// RegisterFeatures registers feature listing and selection routes.
func (h *Handler) RegisterFeatures(api huma.API) {
	huma.Get(api, "/api/v1/layers/{kind}/features", h.ListFeatures, huma.OperationTags("features"))
	huma.Get(api, "/api/v1/layers/{kind}/features/{index}", h.GetFeature, huma.OperationTags("features"))
	huma.Post(api, "/api/v1/layers/{kind}/features/{index}/select", h.SelectFeature, huma.OperationTags("features"))
}

// RegisterPanel registers side panel routes.
func (h *Handler) RegisterPanel(api huma.API) {
	huma.Get(api, "/api/v1/panel", h.GetPanel, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/clear", h.ClearPanel, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/click", h.Click, huma.OperationTags("panel"))
}

// RegisterSnapshots registers snapshot listing routes.
func (h *Handler) RegisterSnapshots(api huma.API) {
	huma.Get(api, "/api/v1/snapshots", h.ListSnapshots, huma.OperationTags("snapshots"))
}

// Handlers

func (h *Handler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *Handler) ListLayers(ctx context.Context, input *struct{}) (*struct{ Body []service.LayerInfo }, error) {
	return &struct{ Body []service.LayerInfo }{Body: h.session.Layers()}, nil
}

func (h *Handler) GetLayer(ctx context.Context, input *KindInput) (*GeoJSONOutput, error) {
	l, err := h.session.Layer(layer.Kind(input.Kind))
	if err != nil {
		return nil, httpError(err)
	}
	data, err := json.Marshal(l.Collection)
	if err != nil {
		return nil, huma.Error500InternalServerError("encode layer", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *Handler) RefreshLayer(ctx context.Context, input *RefreshInput) (*struct{ Body MessageBody }, error) {
	done, err := h.session.Refresh(layer.Kind(input.Kind))
	if err != nil {
		return nil, httpError(err)
	}
	msg := "Fetch started"
	if input.Wait {
		select {
		case <-done:
			msg = "Fetch handled"
		case <-ctx.Done():
		}
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: msg}}, nil
}

func (h *Handler) ListFeatures(ctx context.Context, input *FeaturesInput) (*struct {
	Body humastar.PageBody[service.FeatureSummary]
}, error) {
	items, total, err := h.session.Features(layer.Kind(input.Kind), input.Offset, input.Limit)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct {
		Body humastar.PageBody[service.FeatureSummary]
	}{Body: humastar.NewPage(items, total, input.Offset, input.Limit)}, nil
}

func (h *Handler) GetFeature(ctx context.Context, input *FeatureInput) (*struct{ Body FeatureBody }, error) {
	items, _, err := h.session.Features(layer.Kind(input.Kind), input.Index, 1)
	if err != nil {
		return nil, httpError(err)
	}
	if len(items) == 0 {
		return nil, huma.Error404NotFound("feature not found")
	}
	return &struct{ Body FeatureBody }{Body: FeatureBody{Kind: input.Kind, FeatureSummary: items[0]}}, nil
}

func (h *Handler) SelectFeature(ctx context.Context, input *FeatureInput) (*struct{ Body panel.State }, error) {
	st, err := h.session.SelectFeature(layer.Kind(input.Kind), input.Index)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body panel.State }{Body: st}, nil
}

func (h *Handler) GetPanel(ctx context.Context, input *struct{}) (*struct{ Body panel.State }, error) {
	return &struct{ Body panel.State }{Body: h.session.Panel()}, nil
}

func (h *Handler) ClearPanel(ctx context.Context, input *struct{}) (*struct{ Body panel.State }, error) {
	return &struct{ Body panel.State }{Body: h.session.Dismiss()}, nil
}

func (h *Handler) Click(ctx context.Context, input *ClickInput) (*struct{ Body ClickBody }, error) {
	sel, err := h.session.ClickAt(input.Body.Lon, input.Body.Lat)
	if err != nil {
		return nil, httpError(err)
	}
	return &struct{ Body ClickBody }{Body: ClickBody{
		Hit:   sel.Hit,
		Kind:  string(sel.Kind),
		Index: sel.Index,
		Panel: sel.Panel,
	}}, nil
}

func (h *Handler) ListSnapshots(ctx context.Context, input *struct{}) (*struct{ Body []db.SnapshotStat }, error) {
	if h.snapshots == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	stats, err := h.snapshots.Stats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list snapshots", err)
	}
	return &struct{ Body []db.SnapshotStat }{Body: stats}, nil
}

// httpError maps session errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, service.ErrNoLayer), errors.Is(err, service.ErrNoFeature):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrNoSource):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, layer.ErrUnknownKind):
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}
