package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-sheets/internal/layer"
)

// Version is reported by /api/v1/info.
const Version = "0.1.0"

type InfoHandler struct {
	dataDir string
	dbOK    bool
	sources map[string]string
}

// NewInfoHandler describes the running service. sources maps each layer
// kind to the sheet it is fetched from.
func NewInfoHandler(dataDir string, dbOK bool, sources map[string]string) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, sources: sources}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name    string            `json:"name" doc:"Service name"`
	Version string            `json:"version" doc:"Service version"`
	DataDir string            `json:"data_dir" doc:"Data directory path"`
	DB      bool              `json:"db" doc:"Whether the snapshot database is available"`
	Kinds   []string          `json:"kinds" doc:"Layer kinds in drawing order"`
	Sources map[string]string `json:"sources" doc:"Sheet each layer kind is fetched from"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	kinds := make([]string, len(layer.Kinds))
	for i, k := range layer.Kinds {
		kinds[i] = string(k)
	}
	sources := h.sources
	if sources == nil {
		sources = map[string]string{}
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:    "plat-sheets",
		Version: Version,
		DataDir: h.dataDir,
		DB:      h.dbOK,
		Kinds:   kinds,
		Sources: sources,
	}}, nil
}
