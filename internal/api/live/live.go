// Package live contains the Datastar SSE handlers that keep a browser map
// page in step with the session: layer status, the side panel and clicks.
package live

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-sheets/internal/humastar"
	"github.com/joeblew999/plat-sheets/internal/service"
)

// Handler streams session changes to the page and accepts map clicks.
type Handler struct {
	humastar.Handler
	session *service.Session
}

// NewHandler creates the live handlers for a session.
func NewHandler(session *service.Session) *Handler {
	return &Handler{
		Handler: humastar.Handler{Renderer: session.Renderer()},
		session: session,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/live/events", h.Events, huma.OperationTags("live"))
	huma.Post(api, "/api/v1/live/click", h.Click, huma.OperationTags("live"))
	huma.Post(api, "/api/v1/live/dismiss", h.Dismiss, huma.OperationTags("live"))
}

// Events sends the current panel and layer status, then forwards every bus
// event until the client goes away.
func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		bus := h.session.Bus()
		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)

		sse.Replace(h.Render("panel", h.session.Panel()), "#sidebar")
		sse.Replace(h.Render("layer-status", h.session.Layers()), "#layer-status")

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				switch ev.Resource {
				case service.ResourceLayers:
					sse.Replace(h.Render("layer-status", h.session.Layers()), "#layer-status")
					sse.DispatchCustomEvent("layer-changed", map[string]any{
						"kind": ev.Kind, "action": ev.Action, "id": ev.ID,
					})
				case service.ResourcePanel:
					sse.Replace(h.Render("panel", h.session.Panel()), "#sidebar")
				}
			}
		}
	}), nil
}

// Click resolves the $lon/$lat signals against the shown layers and patches
// the panel with the result.
func (h *Handler) Click(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	lon, okLon := signals.Float("lon")
	lat, okLat := signals.Float("lat")
	if !okLon || !okLat {
		return nil, huma.Error400BadRequest("lon and lat signals are required")
	}

	return h.Stream(func(sse humastar.SSE) {
		sel, err := h.session.ClickAt(lon, lat)
		if err != nil {
			log.Warn().Err(err).Float64("lon", lon).Float64("lat", lat).Msg("Click failed")
			sse.Error(err.Error())
			return
		}
		sse.Replace(h.Render("panel", sel.Panel), "#sidebar")
		sse.Signals(map[string]any{"selected": sel.Hit})
	}), nil
}

// Dismiss closes the panel.
func (h *Handler) Dismiss(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		st := h.session.Dismiss()
		sse.Replace(h.Render("panel", st), "#sidebar")
		sse.Signals(map[string]any{"selected": false})
	}), nil
}
