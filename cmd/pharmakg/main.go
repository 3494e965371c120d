package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	pkgmcp "github.com/sanonone/pharmakg/internal/mcp"
	"github.com/sanonone/pharmakg/internal/server"
	"github.com/sanonone/pharmakg/pkg/engine"
	"github.com/sanonone/pharmakg/pkg/graph"
	"github.com/sanonone/pharmakg/pkg/graph/neo4jstore"
	"github.com/sanonone/pharmakg/pkg/graph/sqlitestore"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file (optional)")
	httpAddr := flag.String("http-addr", "", "Address and port of the REST API server (e.g. :8080), overrides the config file")
	dataDir := flag.String("data-dir", "", "Directory for the journal, overrides the config file")
	seed := flag.Bool("seed", false, "Load the curated reference pharmacogene dataset at startup")
	mcpMode := flag.Bool("mcp", false, "Serve the MCP tool interface on stdio instead of HTTP")

	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	opts := engine.DefaultOptions(cfg.DataDir)
	opts.JournalRewritePercentage = cfg.JournalRewritePercentage
	opts.Evidence = cfg.Evidence

	backend, err := openBackend(cfg.Backend)
	if err != nil {
		log.Fatalf("Backend initialization failed: %v", err)
	}
	opts.Backend = backend

	eng, err := engine.Open(opts)
	if err != nil {
		log.Fatalf("Engine initialization failed: %v", err)
	}

	if *seed {
		if err := eng.SeedReference(); err != nil {
			log.Fatalf("Reference seed failed: %v", err)
		}
		slog.Info("reference dataset loaded")
	}

	if *mcpMode {
		runMCP(eng, backend)
		return
	}

	srv := server.NewServer(eng, cfg.HTTPAddr, cfg.AuthToken)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal(err)
		}
	}()

	<-shutdownChan

	srv.Shutdown()
	if err := eng.Close(); err != nil {
		log.Printf("Engine shutdown error: %v", err)
	}
	closeBackend(backend)
}

func runMCP(eng *engine.Engine, backend graph.Backend) {
	defer closeBackend(backend)
	defer eng.Close()

	s := pkgmcp.NewMCPServer(eng)
	if err := s.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}

// openBackend builds the optional durable mirror from the configuration.
func openBackend(cfg server.BackendConfig) (graph.Backend, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		return sqlitestore.New(cfg.DSN)
	case "neo4j":
		ctx, cancel := context.WithTimeout(context.Background(), graph.DefaultRetryPolicy().Timeout)
		defer cancel()
		return neo4jstore.New(ctx, neo4jstore.Config{
			URI:      cfg.URI,
			Username: cfg.Username,
			Password: cfg.Password,
		}, slog.Default())
	default:
		log.Fatalf("Unknown backend driver %q (use \"sqlite\" or \"neo4j\")", cfg.Driver)
		return nil, nil
	}
}

func closeBackend(b graph.Backend) {
	if b == nil {
		return
	}
	if err := b.Close(context.Background()); err != nil {
		log.Printf("Backend shutdown error: %v", err)
	}
}
