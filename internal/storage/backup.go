package storage

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"openapi-mcp-server/internal/config"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/logging"
)

// BackupMetadata is the sidecar written next to every backup file.
type BackupMetadata struct {
	CreatedAt    time.Time `json:"created_at"`
	SourcePath   string    `json:"source_path"`
	SizeBytes    int64     `json:"size_bytes"`
	Compressed   bool      `json:"compressed"`
	SHA256       string    `json:"sha256"`
	SchemaTables int       `json:"schema_tables"`
}

// BackupManager creates, verifies, restores, and prunes database backups.
type BackupManager struct {
	engine *Engine
	cfg    config.StorageConfig
	logger logging.Logger
}

// NewBackupManager creates a manager for the engine's database file.
func NewBackupManager(engine *Engine, cfg config.StorageConfig, logger logging.Logger) *BackupManager {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &BackupManager{engine: engine, cfg: cfg, logger: logger.WithComponent("backup")}
}

// Create checkpoints the WAL and copies the database into the backup
// directory, returning the backup file path.
func (b *BackupManager) Create(ctx context.Context) (string, error) {
	if err := b.engine.CheckpointWAL(ctx); err != nil {
		return "", err
	}
	if err := os.MkdirAll(b.cfg.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405")
	name := fmt.Sprintf("openapi_%s.db", stamp)
	if b.cfg.BackupCompress {
		name += ".gz"
	}
	dest := filepath.Join(b.cfg.BackupDir, name)

	sum, size, err := copyFile(b.engine.Path(), dest, b.cfg.BackupCompress)
	if err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	meta := BackupMetadata{
		CreatedAt:    time.Now().UTC(),
		SourcePath:   b.engine.Path(),
		SizeBytes:    size,
		Compressed:   b.cfg.BackupCompress,
		SHA256:       sum,
		SchemaTables: len(Migrations),
	}
	if err := writeMetadata(dest, meta); err != nil {
		_ = os.Remove(dest)
		return "", err
	}

	b.logger.Info("backup created", "path", dest, "bytes", size, "compressed", b.cfg.BackupCompress)
	return dest, nil
}

// Verify checks the backup's checksum against its sidecar and opens the
// copy to run an integrity check.
func (b *BackupManager) Verify(ctx context.Context, backupPath string) error {
	meta, err := readMetadata(backupPath)
	if err != nil {
		return err
	}
	sum, err := fileChecksum(backupPath)
	if err != nil {
		return err
	}
	if sum != meta.SHA256 {
		return srverrors.New(srverrors.CodeDataIntegrity, "backup checksum mismatch").
			WithDetail("expected", meta.SHA256).
			WithDetail("actual", sum)
	}

	plain, cleanup, err := materialize(backupPath, meta.Compressed)
	if err != nil {
		return err
	}
	defer cleanup()

	db, err := sql.Open("sqlite3", "file:"+plain+"?mode=ro")
	if err != nil {
		return srverrors.Wrap(srverrors.CodeDataIntegrity, "cannot open backup copy", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check(1)").Scan(&result); err != nil {
		return srverrors.Wrap(srverrors.CodeDataIntegrity, "backup integrity check failed to run", err)
	}
	if result != "ok" {
		return srverrors.New(srverrors.CodeDataIntegrity, "backup failed integrity check").
			WithDetail("result", result)
	}
	return nil
}

// Restore replaces the live database with the backup. The current file is
// kept as a pre-restore snapshot so a bad restore can be undone.
func (b *BackupManager) Restore(ctx context.Context, backupPath string) error {
	if err := b.Verify(ctx, backupPath); err != nil {
		return err
	}
	meta, err := readMetadata(backupPath)
	if err != nil {
		return err
	}

	plain, cleanup, err := materialize(backupPath, meta.Compressed)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := b.engine.Close(); err != nil {
		return err
	}

	snapshot := fmt.Sprintf("%s.pre_restore_%s", b.engine.Path(), time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(b.engine.Path(), snapshot); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to snapshot current database: %w", err)
	}
	// Copy rather than rename: the materialized file may sit on another
	// filesystem.
	if _, _, err := copyFile(plain, b.engine.Path(), false); err != nil {
		// Put the snapshot back so the server is not left without a database.
		_ = os.Rename(snapshot, b.engine.Path())
		return fmt.Errorf("failed to install backup: %w", err)
	}

	b.logger.Info("database restored", "backup", backupPath, "snapshot", snapshot)
	return nil
}

// Sweep prunes old backups: keep the newest BackupKeep, and drop anything
// older than the retention window.
func (b *BackupManager) Sweep() (removed []string, err error) {
	entries, err := os.ReadDir(b.cfg.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	var backups []backup
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "openapi_") || strings.HasSuffix(name, ".metadata") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{filepath.Join(b.cfg.BackupDir, name), info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].modTime.After(backups[j].modTime) })

	cutoff := time.Now().AddDate(0, 0, -b.cfg.BackupRetentionDays)
	for i, bk := range backups {
		tooMany := b.cfg.BackupKeep > 0 && i >= b.cfg.BackupKeep
		tooOld := b.cfg.BackupRetentionDays > 0 && bk.modTime.Before(cutoff)
		if !tooMany && !tooOld {
			continue
		}
		if err := os.Remove(bk.path); err != nil {
			return removed, fmt.Errorf("failed to remove backup %s: %w", bk.path, err)
		}
		_ = os.Remove(bk.path + ".metadata")
		removed = append(removed, bk.path)
	}
	if len(removed) > 0 {
		b.logger.Info("backups pruned", "removed", len(removed))
	}
	return removed, nil
}

func copyFile(src, dest string, compress bool) (checksum string, written int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var w io.Writer = out
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(out)
		w = gz
	}
	if _, err := io.Copy(w, in); err != nil {
		return "", 0, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return "", 0, err
		}
	}

	checksum, err = fileChecksum(dest)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return "", 0, err
	}
	return checksum, info.Size(), nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// materialize returns a plain database file path for the backup,
// decompressing to a temp file when needed.
func materialize(backupPath string, compressed bool) (string, func(), error) {
	if !compressed {
		return backupPath, func() {}, nil
	}
	in, err := os.Open(backupPath)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = in.Close() }()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", nil, srverrors.Wrap(srverrors.CodeDataIntegrity, "backup is not valid gzip", err)
	}
	defer func() { _ = gz.Close() }()

	tmp, err := os.CreateTemp("", "openapi-restore-*.db")
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, gz); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", nil, err
	}
	path := tmp.Name()
	return path, func() { _ = os.Remove(path) }, nil
}

func writeMetadata(backupPath string, meta BackupMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(backupPath+".metadata", data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}
	return nil
}

func readMetadata(backupPath string) (BackupMetadata, error) {
	var meta BackupMetadata
	data, err := os.ReadFile(backupPath + ".metadata")
	if err != nil {
		return meta, srverrors.Wrap(srverrors.CodeFileNotFound, "backup metadata sidecar is missing", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, srverrors.Wrap(srverrors.CodeDataIntegrity, "backup metadata is corrupt", err)
	}
	return meta, nil
}
