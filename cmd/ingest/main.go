// ingest loads OpenAPI/Swagger JSON specifications into the knowledge
// base: parse, normalize, persist, index, verify. Accepts single files or
// glob patterns and ingests batches concurrently.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"

	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/internal/pipeline"
	"openapi-mcp-server/internal/storage"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	headColor = color.New(color.FgCyan, color.Bold)
)

func main() {
	var (
		dbPath   = flag.String("db", "", "Database path (overrides OPENAPI_MCP_DB_PATH)")
		progress = flag.Bool("progress", true, "Print parse progress for large files")
		verbose  = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Usage = usage
	flag.Parse()

	paths := expandArgs(flag.Args())
	if len(paths) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fatalf("Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.Storage.DatabasePath = *dbPath
	}

	level := logging.LevelWarn
	if *verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewWithWriter(level, os.Stderr, true)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		fatalf("Failed to open database %s: %v", cfg.Storage.DatabasePath, err)
	}
	defer func() { _ = engine.Close() }()

	if _, err := storage.NewMigrator(engine, logger).Up(ctx, false); err != nil {
		fatalf("Migrations failed: %v", err)
	}

	p := pipeline.New(cfg, engine.DB(), logger)
	if *progress && len(paths) == 1 {
		p.OnProgress(func(pr parser.Progress) {
			fmt.Fprintf(os.Stderr, "\r  parsing %.0f%% (%d bytes)", pr.Percent, pr.BytesRead)
			if pr.Percent >= 100 {
				fmt.Fprintln(os.Stderr)
			}
		})
	}

	if len(paths) == 1 {
		report, err := p.Ingest(ctx, paths[0])
		printReport(report)
		if err != nil {
			fatalf("Ingestion failed: %v", err)
		}
		return
	}

	headColor.Printf("Ingesting %d files\n", len(paths))
	batch := p.IngestBatch(ctx, paths)
	for _, report := range batch.Reports {
		printReport(report)
	}
	if len(batch.Failures) > 0 {
		fmt.Println()
		failed := make([]string, 0, len(batch.Failures))
		for path := range batch.Failures {
			failed = append(failed, path)
		}
		sort.Strings(failed)
		for _, path := range failed {
			errColor.Printf("  failed %s: %v\n", path, batch.Failures[path])
		}
	}
	fmt.Println()
	okColor.Printf("%d succeeded", batch.Succeeded())
	if len(batch.Failures) > 0 {
		errColor.Printf(", %d failed", len(batch.Failures))
	}
	fmt.Printf(" in %s\n", batch.Took.Round(time.Millisecond))
	if len(batch.Failures) > 0 {
		os.Exit(1)
	}
}

func printReport(r *pipeline.Report) {
	if r == nil {
		return
	}
	if r.Skipped {
		warnColor.Printf("  skipped %s (already ingested, unchanged)\n", r.FilePath)
		return
	}
	if r.APIID == 0 {
		errColor.Printf("  failed  %s\n", r.FilePath)
		for _, stage := range r.Stages {
			if !stage.Success {
				errColor.Printf("          stage %s failed with %d error(s)\n", stage.Stage, stage.Errors)
			}
		}
		return
	}
	okColor.Printf("  ingested %s\n", r.FilePath)
	fmt.Printf("           %s %s: %d endpoints, %d schemas, %d security schemes, %d indexed\n",
		r.Title, r.Version, r.EndpointCount, r.SchemaCount, r.SecurityCount, r.IndexedDocuments)
	if r.ConsistencyScore > 0 {
		fmt.Printf("           consistency score %.2f\n", r.ConsistencyScore)
	}
	for _, w := range r.Warnings {
		warnColor.Printf("           warning: %s\n", w)
	}
}

// expandArgs resolves glob patterns; plain paths pass through.
func expandArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil || len(matches) == 0 {
			out = append(out, arg)
			continue
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: ingest [flags] <spec.json> [more.json ...]

Loads OpenAPI 2.0/3.0/3.1 JSON specifications into the knowledge base.
Glob patterns are expanded; multiple files ingest concurrently.

Flags:
`)
	flag.PrintDefaults()
}

func fatalf(format string, args ...interface{}) {
	errColor.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
