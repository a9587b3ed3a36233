// server is the OpenAPI knowledge base MCP server binary. It serves the
// four tools over stdio or MCP-over-HTTP, with a monitoring surface on a
// separate listener.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/fredcamaral/gomcp-sdk/transport"
	"github.com/go-chi/chi/v5"

	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/mcp"
	"openapi-mcp-server/internal/monitoring"
	"openapi-mcp-server/internal/storage"
)

func main() {
	var (
		mode = flag.String("mode", "stdio", "Server mode: stdio or http")
		addr = flag.String("addr", "", "HTTP address (overrides OPENAPI_MCP_HTTP_ADDR)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Server.HTTPAddr = *addr
	}

	// Stdio carries the MCP protocol, so logs must stay on stderr.
	logger := logging.NewWithWriter(
		logging.ParseLevel(cfg.Logging.Level), os.Stderr, cfg.Logging.Format == "text")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *mode); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger, mode string) error {
	engine, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		// Flush the WAL before closing so a clean shutdown leaves a
		// single-file database.
		checkpointCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.CheckpointWAL(checkpointCtx)
		_ = engine.Close()
	}()

	applied, err := storage.NewMigrator(engine, logger).Up(ctx, false)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied on startup", "count", len(applied))
	}

	collector := monitoring.NewCollector(&cfg.Monitoring, nil)
	srv, err := mcp.NewServer(cfg, engine.DB(), collector, logger)
	if err != nil {
		return err
	}
	collector.SetPool(srv.Pool())

	health := monitoring.NewHealthChecker(engine, collector, srv.SyntheticSearch)
	api := monitoring.NewAPI(health, collector, monitoring.NewProgressHub(logger), logger)

	switch mode {
	case "stdio":
		// Monitoring stays reachable over HTTP while MCP runs on stdio.
		go serveHTTP(ctx, cfg.Server.HTTPAddr, api.Router(), logger)

		logger.Info("starting MCP server on stdio",
			"name", cfg.Server.Name, "version", cfg.Server.Version)
		srv.MCPServer().SetTransport(transport.NewStdioTransport())
		return srv.MCPServer().Start(ctx)

	case "http":
		router := api.Router()
		router.Post("/mcp", mcpHandler(srv.MCPServer()))
		logger.Info("starting MCP server on HTTP",
			"addr", cfg.Server.HTTPAddr, "name", cfg.Server.Name)
		serveHTTP(ctx, cfg.Server.HTTPAddr, router, logger)
		return nil

	default:
		return errors.New("invalid mode " + mode + ": use 'stdio' or 'http'")
	}
}

// mcpHandler serves MCP JSON-RPC over a plain HTTP POST.
func mcpHandler(mcpServer *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON-RPC request", http.StatusBadRequest)
			return
		}
		resp := mcpServer.HandleRequest(r.Context(), &req)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("Error encoding response: %v", err)
		}
	}
}

// serveHTTP runs a listener until the context is cancelled, then shuts it
// down gracefully.
func serveHTTP(ctx context.Context, addr string, router chi.Router, logger logging.Logger) {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP listener up", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	// Fresh context: the parent is already cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
}
