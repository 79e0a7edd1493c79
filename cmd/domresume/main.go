// Command domresume keeps browser pages resumable: it saves the state of
// every configured page (form values, checked boxes, open details, scroll
// offsets, focus) to SQLite and applies it back on reload.
//
// Usage:
//
//	domresume -config domresume.yaml                # watch pages from YAML config
//	domresume -url https://example.com/form         # watch a single page
//	domresume -config domresume.yaml -mcp           # also serve MCP tools on stdio
//	domresume -db domresume.db -http :8080          # serve stored states over HTTP only
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domresume/resume"
	"github.com/hazyhaar/domresume/shield"
	"github.com/hazyhaar/domresume/tabwatch"
)

type options struct {
	configPath string
	singleURL  string
	dbPath     string
	httpAddr   string
	mcpStdio   bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to domresume.yaml config file")
	flag.StringVar(&o.singleURL, "url", "", "watch a single URL")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database (overrides db_path)")
	flag.StringVar(&o.httpAddr, "http", "", "serve the stored states over HTTP on this address")
	flag.BoolVar(&o.mcpStdio, "mcp", false, "serve MCP tools on stdin/stdout")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("domresume: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}

	store, err := resume.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if o.httpAddr != "" {
		srv := &http.Server{
			Addr:              o.httpAddr,
			Handler:           router(store, cfg.Resume.Prefix, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("domresume: http listening", "addr", o.httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("domresume: http", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if len(cfg.Pages) == 0 {
		if o.httpAddr == "" {
			return errors.New("nothing to do: no pages and no -http address")
		}
		logger.Info("domresume: serving stored states only", "db", cfg.DBPath)
		<-ctx.Done()
		return nil
	}

	sinks, err := buildSinks(cfg, o.mcpStdio, logger)
	if err != nil {
		return err
	}
	w, err := tabwatch.New(cfg, store, logger, sinks...)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer w.Stop()

	if o.mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "domresume", Version: "1.0.0"}, nil)
		w.RegisterMCP(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("domresume: mcp", "error", err)
			}
		}()
	}

	logger.Info("domresume: running", "pages", len(cfg.Pages), "db", cfg.DBPath)
	<-ctx.Done()
	logger.Info("domresume: shutting down")
	return nil
}

func router(store resume.Scopes, prefix string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	for _, mw := range shield.APIStack(logger) {
		r.Use(mw)
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Mount("/", resume.NewHandler(store, resume.HandlerOptions{Prefix: prefix, Logger: logger}))
	return r
}

// buildSinks builds the configured sinks. Stdout carries the MCP protocol
// in -mcp mode, so stdout sinks are refused there.
func buildSinks(cfg *tabwatch.Config, mcpStdio bool, logger *slog.Logger) ([]tabwatch.Sink, error) {
	if !mcpStdio {
		return tabwatch.NewSinks(cfg.Sinks, logger)
	}
	var sinks []tabwatch.Sink
	for _, sc := range cfg.Sinks {
		if sc.Type == "stdout" {
			return nil, errors.New("stdout sink cannot be used with -mcp")
		}
		s, err := tabwatch.NewSinks([]tabwatch.SinkConfig{sc}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s...)
	}
	return sinks, nil
}

func resolveConfig(o options) (*tabwatch.Config, error) {
	var cfg *tabwatch.Config
	switch {
	case o.configPath != "":
		c, err := tabwatch.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	case o.singleURL != "" || o.httpAddr != "":
		cfg = &tabwatch.Config{}
	default:
		fmt.Fprintln(os.Stderr, "usage: domresume -config <file> | -url <url> | -db <path> -http <addr> [-mcp]")
		os.Exit(1)
	}

	if o.singleURL != "" {
		cfg.Pages = append(cfg.Pages, tabwatch.PageConfig{URL: o.singleURL})
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
