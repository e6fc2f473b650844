package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-sheets/internal/config"
	"github.com/joeblew999/plat-sheets/internal/layer"
	"github.com/joeblew999/plat-sheets/internal/logger"
	"github.com/joeblew999/plat-sheets/internal/server"
	"github.com/joeblew999/plat-sheets/internal/service"
	"github.com/joeblew999/plat-sheets/internal/sheet"
)

// Options defines all CLI flags and env vars for the sheets server.
// Flags: --host, --port, --data-dir, --config, --refresh, --log-level, --log-format, --templates
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory for the snapshot database" default:".data"`
	Config    string `doc:"Layer config file" short:"c" default:"sheets.yaml"`
	Refresh   int    `doc:"Seconds between sheet fetches, 0 fetches once" default:"0"`
	LogLevel  string `doc:"Log level (trace, debug, info, warn, error)" default:"info"`
	LogFormat string `doc:"Log format (console or json)" default:"console"`
	Templates string `doc:"Directory of fragment templates overriding the built-in ones"`
}

func setupLogging(opts *Options) {
	if err := logger.Setup(logger.Options{Level: opts.LogLevel, Format: logger.Format(opts.LogFormat)}); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log options: %v\n", err)
		os.Exit(1)
	}
}

func serverConfig(opts *Options) server.Config {
	return server.Config{
		Host:            opts.Host,
		Port:            fmt.Sprintf("%d", opts.Port),
		DataDir:         opts.DataDir,
		ConfigPath:      opts.Config,
		TemplatesDir:    opts.Templates,
		RefreshInterval: time.Duration(opts.Refresh) * time.Second,
	}
}

func newServer(opts *Options) *server.Server {
	srv, err := server.New(serverConfig(opts))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}
	return srv
}

func main() {
	// A missing .env is fine; real env vars and flags still apply.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server
		var httpServer *http.Server

		hooks.OnStart(func() {
			setupLogging(opts)
			srv = newServer(opts)
			srv.Start(context.Background())

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			log.Info().
				Str("addr", addr).
				Str("data_dir", opts.DataDir).
				Str("docs", baseURL+"/docs").
				Str("events", baseURL+"/api/v1/live/events").
				Msg("plat-sheets API server starting")

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("Server error")
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(ctx)
			srv.Close()
		})
	})

	cli.Root().Use = "sheets"
	cli.Root().Short = "Map layers from published spreadsheets"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts)
			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := exportSpec(os.Stdout, opts, useYAML); err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting spec: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// build subcommand: turn one CSV into the layer's GeoJSON
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a layer's GeoJSON from a CSV file (- for stdin)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts)
			kindName, _ := cmd.Flags().GetString("kind")
			csvPath, _ := cmd.Flags().GetString("csv")

			if err := build(os.Stdout, opts.Config, kindName, csvPath); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	buildCmd.Flags().StringP("kind", "k", "geometry", "Layer kind (geometry or points)")
	buildCmd.Flags().String("csv", "-", "CSV file to read")
	cli.Root().AddCommand(buildCmd)

	cli.Run()
}

// exportSpec writes the OpenAPI document. The snapshot database stays in
// memory so nothing is created under the data directory.
func exportSpec(w io.Writer, opts *Options, useYAML bool) error {
	cfg := serverConfig(opts)
	cfg.DataDir = ""
	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	defer srv.Close()
	spec := srv.OpenAPI()

	var output []byte
	if useYAML {
		output, err = yaml.Marshal(spec)
	} else {
		output, err = json.MarshalIndent(spec, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func build(w io.Writer, configPath, kindName, csvPath string) error {
	kind, err := layer.ParseKind(kindName)
	if err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if csvPath != "-" {
		f, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	rows, err := sheet.ReadCSV(in)
	if err != nil {
		return err
	}

	fc, style, err := service.Build(cfg, kind, rows)
	if err != nil {
		return err
	}
	log.Debug().Str("kind", string(kind)).Int("features", len(fc.Features)).Str("marker", string(style.Marker)).Msg("Built layer")

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}
