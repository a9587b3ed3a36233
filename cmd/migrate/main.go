// migrate manages the SQLite schema of the OpenAPI knowledge base:
// status, up and down, each with an optional dry run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/logging"
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
		dbPath  = flag.String("db", "", "Database path (overrides OPENAPI_MCP_DB_PATH)")
		dryRun  = flag.Bool("dry-run", false, "Report what would run without changing the database")
		verbose = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Usage = usage
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "status"
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

	engine, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		fatalf("Failed to open database %s: %v", cfg.Storage.DatabasePath, err)
	}
	defer func() { _ = engine.Close() }()

	migrator := storage.NewMigrator(engine, logger)
	ctx := context.Background()

	switch command {
	case "status":
		err = runStatus(ctx, migrator, cfg.Storage.DatabasePath)
	case "up":
		err = runUp(ctx, migrator, *dryRun)
	case "down":
		err = runDown(ctx, migrator, *dryRun)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

func runStatus(ctx context.Context, migrator *storage.Migrator, dbPath string) error {
	statuses, err := migrator.Status(ctx)
	if err != nil {
		return err
	}

	headColor.Printf("Migrations for %s\n\n", dbPath)
	pending := 0
	for _, st := range statuses {
		if st.Applied {
			okColor.Printf("  [applied] ")
			fmt.Printf("%03d %-40s %s\n", st.Version, st.Name, st.AppliedAt.Format("2006-01-02 15:04:05"))
		} else {
			warnColor.Printf("  [pending] ")
			fmt.Printf("%03d %s\n", st.Version, st.Name)
			pending++
		}
	}
	fmt.Println()
	if pending > 0 {
		warnColor.Printf("%d migration(s) pending. Run 'migrate up' to apply.\n", pending)
	} else {
		okColor.Println("Database is up to date.")
	}
	return nil
}

func runUp(ctx context.Context, migrator *storage.Migrator, dryRun bool) error {
	ran, err := migrator.Up(ctx, dryRun)
	if err != nil {
		return err
	}
	if len(ran) == 0 {
		okColor.Println("Nothing to apply; database is up to date.")
		return nil
	}
	for _, mig := range ran {
		if dryRun {
			warnColor.Printf("  would apply %03d %s\n", mig.Version, mig.Name)
		} else {
			okColor.Printf("  applied %03d %s\n", mig.Version, mig.Name)
		}
	}
	return nil
}

func runDown(ctx context.Context, migrator *storage.Migrator, dryRun bool) error {
	mig, err := migrator.Down(ctx, dryRun)
	if err != nil {
		return err
	}
	if mig == nil {
		okColor.Println("Nothing to roll back.")
		return nil
	}
	if dryRun {
		warnColor.Printf("  would roll back %03d %s\n", mig.Version, mig.Name)
	} else {
		okColor.Printf("  rolled back %03d %s\n", mig.Version, mig.Name)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: migrate [flags] <command>

Commands:
  status    Show applied and pending migrations (default)
  up        Apply all pending migrations
  down      Roll back the most recent migration

Flags:
`)
	flag.PrintDefaults()
}

func fatalf(format string, args ...interface{}) {
	errColor.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
