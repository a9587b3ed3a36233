// Package search maintains the full-text index over endpoints and turns
// user keywords into ranked results: query processing, BM25 reranking, and
// zero-result suggestions.
package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/pkg/types"
)

// IndexManager owns the endpoints_fts table contents.
type IndexManager struct {
	db        *sql.DB
	batchSize int
	logger    logging.Logger
}

// NewIndexManager creates a manager writing in batches of batchSize.
func NewIndexManager(db *sql.DB, batchSize int, logger logging.Logger) *IndexManager {
	if batchSize <= 0 {
		batchSize = 200
	}
	if logger == nil {
		logger = logging.NoOp()
	}
	return &IndexManager{db: db, batchSize: batchSize, logger: logger.WithComponent("search-index")}
}

// indexDocument is the projection of one endpoint into the FTS columns.
func indexDocument(ep *types.Endpoint) []interface{} {
	var paramNames []string
	for _, p := range ep.Parameters {
		paramNames = append(paramNames, p.Name)
	}
	return []interface{}{
		ep.Path,
		ep.OperationID,
		ep.Summary,
		ep.Description,
		strings.Join(ep.Tags, " "),
		strings.Join(paramNames, " "),
		ep.SearchableText,
		ep.ID,
	}
}

// CreateFromStore rebuilds the index rows for one specification from its
// persisted endpoints. Existing rows for those endpoints are replaced, so
// the operation is idempotent.
func (m *IndexManager) CreateFromStore(ctx context.Context, apiID int64) (int, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, path, COALESCE(operation_id, ''), COALESCE(summary, ''),
			COALESCE(description, ''), COALESCE(tags, ''), COALESCE(parameters, ''),
			searchable_text
		FROM endpoints WHERE api_id = ?`, apiID)
	if err != nil {
		return 0, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to read endpoints for indexing", err)
	}
	defer func() { _ = rows.Close() }()

	var endpoints []*types.Endpoint
	for rows.Next() {
		ep := &types.Endpoint{}
		var tags, params string
		if err := rows.Scan(&ep.ID, &ep.Path, &ep.OperationID, &ep.Summary,
			&ep.Description, &tags, &params, &ep.SearchableText); err != nil {
			return 0, fmt.Errorf("failed to scan endpoint for indexing: %w", err)
		}
		decodeStringList(tags, &ep.Tags)
		decodeParameterNames(params, &ep.Parameters)
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	indexed := 0
	for start := 0; start < len(endpoints); start += m.batchSize {
		end := start + m.batchSize
		if end > len(endpoints) {
			end = len(endpoints)
		}
		if err := m.writeBatch(ctx, endpoints[start:end]); err != nil {
			return indexed, err
		}
		indexed += end - start
	}
	m.logger.InfoContext(ctx, "search index built", "api_id", apiID, "documents", indexed)
	return indexed, nil
}

func (m *IndexManager) writeBatch(ctx context.Context, endpoints []*types.Endpoint) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to begin index transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, "DELETE FROM endpoints_fts WHERE endpoint_id = ?")
	if err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to prepare index delete", err)
	}
	defer func() { _ = del.Close() }()

	ins, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoints_fts
			(path, operation_id, summary, description, tags, parameters, content, endpoint_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to prepare index insert", err)
	}
	defer func() { _ = ins.Close() }()

	for _, ep := range endpoints {
		if _, err := del.ExecContext(ctx, ep.ID); err != nil {
			return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to clear index row", err)
		}
		if _, err := ins.ExecContext(ctx, indexDocument(ep)...); err != nil {
			return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to write index row", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to commit index batch", err)
	}
	return nil
}

// UpdateDocument refreshes the index row for one endpoint.
func (m *IndexManager) UpdateDocument(ctx context.Context, ep *types.Endpoint) error {
	return m.writeBatch(ctx, []*types.Endpoint{ep})
}

// RemoveDocument drops the index row for one endpoint.
func (m *IndexManager) RemoveDocument(ctx context.Context, endpointID int64) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM endpoints_fts WHERE endpoint_id = ?", endpointID); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to remove index row", err)
	}
	return nil
}

// RemoveAPI drops every index row belonging to one specification.
func (m *IndexManager) RemoveAPI(ctx context.Context, apiID int64) error {
	if _, err := m.db.ExecContext(ctx, `
		DELETE FROM endpoints_fts WHERE endpoint_id IN
			(SELECT id FROM endpoints WHERE api_id = ?)`, apiID); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to remove index rows", err)
	}
	return nil
}

// IntegrityReport compares the index against the endpoints table.
type IntegrityReport struct {
	EndpointRows int     `json:"endpoint_rows"`
	IndexRows    int     `json:"index_rows"`
	Missing      []int64 `json:"missing_endpoint_ids,omitempty"`
	Orphaned     []int64 `json:"orphaned_index_ids,omitempty"`
}

// Consistent reports whether the index exactly covers the endpoints table.
func (r *IntegrityReport) Consistent() bool {
	return len(r.Missing) == 0 && len(r.Orphaned) == 0
}

// ValidateIntegrity finds endpoints absent from the index and index rows
// whose endpoint no longer exists.
func (m *IndexManager) ValidateIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM endpoints").Scan(&report.EndpointRows); err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to count endpoints", err)
	}
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM endpoints_fts").Scan(&report.IndexRows); err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to count index rows", err)
	}

	missing, err := m.collectIDs(ctx, `
		SELECT e.id FROM endpoints e
		WHERE NOT EXISTS (SELECT 1 FROM endpoints_fts f WHERE f.endpoint_id = e.id)`)
	if err != nil {
		return nil, err
	}
	report.Missing = missing

	orphaned, err := m.collectIDs(ctx, `
		SELECT f.endpoint_id FROM endpoints_fts f
		WHERE NOT EXISTS (SELECT 1 FROM endpoints e WHERE e.id = f.endpoint_id)`)
	if err != nil {
		return nil, err
	}
	report.Orphaned = orphaned
	return report, nil
}

func (m *IndexManager) collectIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, srverrors.Wrap(srverrors.CodeDatabaseConnection, "integrity query failed", err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func decodeStringList(data string, dest *[]string) {
	if data == "" {
		return
	}
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err == nil {
		*dest = list
		return
	}
	// Lenient fallback keeps indexing going on a malformed column.
	trimmed := strings.Trim(data, "[]")
	for _, part := range strings.Split(trimmed, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			*dest = append(*dest, part)
		}
	}
}

func decodeParameterNames(data string, dest *[]types.Parameter) {
	if data == "" {
		return
	}
	var params []types.Parameter
	if err := json.Unmarshal([]byte(data), &params); err == nil {
		*dest = params
	}
}
