package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-sheets/internal/api"
	"github.com/joeblew999/plat-sheets/internal/api/live"
	"github.com/joeblew999/plat-sheets/internal/config"
	"github.com/joeblew999/plat-sheets/internal/db"
	"github.com/joeblew999/plat-sheets/internal/service"
	"github.com/joeblew999/plat-sheets/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host            string
	Port            string
	DataDir         string        // snapshot database lives here; empty keeps it in memory
	ConfigPath      string        // layer config YAML; a missing file means defaults
	TemplatesDir    string        // optional fragment overrides
	RefreshInterval time.Duration // zero fetches once at start
}

// Server is the sheets HTTP server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	humaAPI huma.API
	db      *sql.DB
	session *service.Session
	handler http.Handler
}

// New creates a new sheets server. The session is built but no fetch is
// fired until Start.
func New(cfg Config) (*Server, error) {
	layers, err := config.LoadOrDefault(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.ConfigPath).Msg("Layer config ready")

	renderer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("server: load templates: %w", err)
	}
	if cfg.TemplatesDir != "" {
		if err := renderer.Override(cfg.TemplatesDir); err != nil {
			return nil, fmt.Errorf("server: template overrides: %w", err)
		}
		log.Info().Str("dir", cfg.TemplatesDir).Msg("Loaded fragment overrides")
	}

	s := &Server{config: cfg, mux: http.NewServeMux()}

	var snapshots *db.SnapshotStore
	conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "sheets"})
	if err != nil {
		log.Warn().Err(err).Str("data_dir", cfg.DataDir).Msg("Snapshot database unavailable, running without it")
	} else {
		s.db = conn
		snapshots = db.NewSnapshotStore(conn)
	}

	s.session, err = service.NewSession(service.Options{
		Config:          layers,
		Snapshots:       snapshots,
		Renderer:        renderer,
		RefreshInterval: cfg.RefreshInterval,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-sheets API", api.Version)
	humaConfig.Info.Description = "Map layers built from published spreadsheets, with a live selection panel."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	s.humaAPI = humago.New(s.mux, humaConfig)
	s.routes(snapshots)
	s.handler = RequestLogger(s.mux)
	return s, nil
}

func (s *Server) routes(snapshots *db.SnapshotStore) {
	huma.AutoRegister(s.humaAPI, api.NewHandler(s.session, snapshots))
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.session.Sources()).RegisterRoutes(s.humaAPI)
	live.NewHandler(s.session).RegisterRoutes(s.humaAPI)

	s.mux.HandleFunc("/", s.handleRoot)
}

// Start seeds the layers and fires the first fetches.
func (s *Server) Start(ctx context.Context) {
	s.session.Start(ctx)
}

// Session returns the session behind the handlers.
func (s *Server) Session() *service.Session {
	return s.session
}

// OpenAPI returns the OpenAPI document of the registered routes.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the session and closes the snapshot database.
func (s *Server) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-sheets",
		"status":  "running",
		"docs":    "/docs",
	})
}
