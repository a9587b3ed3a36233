package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/logging"
)

// Migration is one versioned schema change with its rollback.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Checksum fingerprints the forward SQL so an edited migration is caught
// before it silently diverges from what was applied.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// MigrationStatus is one row of the status report.
type MigrationStatus struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// Migrator applies the ordered migration set to an engine.
type Migrator struct {
	engine *Engine
	logger logging.Logger
	set    []Migration
}

// NewMigrator creates a migrator over the built-in migration set.
func NewMigrator(engine *Engine, logger logging.Logger) *Migrator {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Migrator{engine: engine, logger: logger.WithComponent("migrate"), set: Migrations}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.engine.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS database_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to create migrations table", err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]string, error) {
	rows, err := m.engine.DB().QueryContext(ctx, "SELECT version, checksum FROM database_migrations")
	if err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to read applied migrations", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[int]string{}
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[version] = checksum
	}
	return out, rows.Err()
}

// Up applies every pending migration in order. When dryRun is set, it only
// reports what would run. Each migration runs in its own transaction.
func (m *Migrator) Up(ctx context.Context, dryRun bool) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var ran []Migration
	for _, mig := range m.set {
		if checksum, ok := applied[mig.Version]; ok {
			if checksum != mig.Checksum() {
				return ran, srverrors.New(srverrors.CodeMigrationIntegrity,
					fmt.Sprintf("migration %d (%s) was modified after being applied", mig.Version, mig.Name)).
					WithDetail("expected_checksum", checksum).
					WithDetail("actual_checksum", mig.Checksum()).
					WithSuggestions("restore the original migration SQL or rebuild the database")
			}
			continue
		}
		if dryRun {
			ran = append(ran, mig)
			continue
		}
		if err := m.applyOne(ctx, mig); err != nil {
			return ran, err
		}
		ran = append(ran, mig)
		m.logger.Info("migration applied", "version", mig.Version, "name", mig.Name)
	}
	return ran, nil
}

func (m *Migrator) applyOne(ctx context.Context, mig Migration) error {
	tx, err := m.engine.DB().BeginTx(ctx, nil)
	if err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to begin migration transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.UpSQL); err != nil {
		return srverrors.Wrap(srverrors.CodeMigrationIntegrity,
			fmt.Sprintf("migration %d (%s) failed", mig.Version, mig.Name), err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO database_migrations (version, name, checksum) VALUES (?, ?, ?)",
		mig.Version, mig.Name, mig.Checksum()); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to record migration", err)
	}
	if err := tx.Commit(); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to commit migration", err)
	}
	return nil
}

// Down rolls back the highest applied migration. Migrations without
// rollback SQL refuse to roll back.
func (m *Migrator) Down(ctx context.Context, dryRun bool) (*Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var target *Migration
	for i := len(m.set) - 1; i >= 0; i-- {
		if _, ok := applied[m.set[i].Version]; ok {
			target = &m.set[i]
			break
		}
	}
	if target == nil {
		return nil, nil
	}
	if target.DownSQL == "" {
		return nil, srverrors.New(srverrors.CodeMigrationIntegrity,
			fmt.Sprintf("migration %d (%s) has no rollback", target.Version, target.Name))
	}
	if dryRun {
		return target, nil
	}

	tx, err := m.engine.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to begin rollback transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, target.DownSQL); err != nil {
		return nil, srverrors.Wrap(srverrors.CodeMigrationIntegrity,
			fmt.Sprintf("rollback of migration %d failed", target.Version), err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM database_migrations WHERE version = ?", target.Version); err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to unrecord migration", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to commit rollback", err)
	}
	m.logger.Info("migration rolled back", "version", target.Version, "name", target.Name)
	return target, nil
}

// Status reports every known migration and whether it is applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.engine.DB().QueryContext(ctx,
		"SELECT version, applied_at FROM database_migrations")
	if err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to read migration status", err)
	}
	defer func() { _ = rows.Close() }()

	appliedAt := map[int]time.Time{}
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan status row: %w", err)
		}
		appliedAt[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(m.set))
	for _, mig := range m.set {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := appliedAt[mig.Version]; ok {
			st.Applied = true
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}
