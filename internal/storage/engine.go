// Package storage owns the SQLite knowledge base: connection lifecycle,
// versioned migrations, and backup management. Repositories in the
// repository subpackage provide the typed data access on top.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"openapi-mcp-server/internal/config"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/logging"
)

// Engine wraps the SQLite handle with lifecycle and health operations.
type Engine struct {
	db     *sql.DB
	path   string
	logger logging.Logger
}

// Open creates the database file if needed and configures the connection
// pool. WAL keeps readers unblocked during ingestion writes.
func Open(cfg config.StorageConfig, logger logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.NoOp()
	}
	logger = logger.WithComponent("storage")

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to create database directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_sync=NORMAL&_busy_timeout=%d&_foreign_keys=on",
		cfg.DatabasePath, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to open database", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "database is not reachable", err)
	}

	logger.Info("database opened", "path", cfg.DatabasePath)
	return &Engine{db: db, path: cfg.DatabasePath, logger: logger}, nil
}

// DB exposes the underlying handle for repositories and migrations.
func (e *Engine) DB() *sql.DB { return e.db }

// Path returns the database file path.
func (e *Engine) Path() string { return e.path }

// Close releases the connection pool.
func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Ping verifies the connection within the context deadline.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "database ping failed", err)
	}
	return nil
}

// IntegrityCheck runs the SQLite consistency pragmas and reports the first
// problem found.
func (e *Engine) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := e.db.QueryRowContext(ctx, "PRAGMA integrity_check(1)").Scan(&result); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "integrity check failed to run", err)
	}
	if result != "ok" {
		return srverrors.New(srverrors.CodeDataIntegrity, "database integrity check failed").
			WithDetail("result", result)
	}

	rows, err := e.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "foreign key check failed to run", err)
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		var table string
		var rowid, parent, fkid interface{}
		_ = rows.Scan(&table, &rowid, &parent, &fkid)
		return srverrors.New(srverrors.CodeDataIntegrity, "foreign key violation detected").
			WithDetail("table", table)
	}
	return rows.Err()
}

// CheckpointWAL flushes the write-ahead log into the main database file.
func (e *Engine) CheckpointWAL(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "WAL checkpoint failed", err)
	}
	return nil
}
