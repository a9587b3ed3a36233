package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/pkg/types"
)

// APIRepository manages api_metadata rows.
type APIRepository struct {
	db *sql.DB
}

// NewAPIRepository creates the repository.
func NewAPIRepository(db *sql.DB) *APIRepository {
	return &APIRepository{db: db}
}

// Create inserts one metadata row and fills in the generated ID.
func (r *APIRepository) Create(ctx context.Context, tx *sql.Tx, md *types.APIMetadata) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO api_metadata
			(file_path, file_hash, title, version, openapi_version, description,
			 endpoint_count, schema_count, security_scheme_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		md.FilePath, md.FileHash, md.Title, md.Version, md.OpenAPIVersion, md.Description,
		md.EndpointCount, md.SchemaCount, md.SecuritySchemeCount)
	if err != nil {
		return mapError("create api metadata", err)
	}
	md.ID, err = res.LastInsertId()
	return err
}

const apiColumns = `id, file_path, file_hash, title, version, openapi_version,
	COALESCE(description, ''), endpoint_count, schema_count, security_scheme_count, ingested_at`

func (r *APIRepository) scan(row interface{ Scan(...interface{}) error }) (*types.APIMetadata, error) {
	md := &types.APIMetadata{}
	err := row.Scan(&md.ID, &md.FilePath, &md.FileHash, &md.Title, &md.Version,
		&md.OpenAPIVersion, &md.Description, &md.EndpointCount, &md.SchemaCount,
		&md.SecuritySchemeCount, &md.IngestedAt)
	if err != nil {
		return nil, err
	}
	return md, nil
}

// GetByID fetches one metadata row.
func (r *APIRepository) GetByID(ctx context.Context, id int64) (*types.APIMetadata, error) {
	md, err := r.scan(r.db.QueryRowContext(ctx,
		"SELECT "+apiColumns+" FROM api_metadata WHERE id = ?", id))
	if err != nil {
		return nil, mapError("get api metadata", err)
	}
	return md, nil
}

// GetByHash returns the metadata row for a file hash, or nil when the file
// has not been ingested.
func (r *APIRepository) GetByHash(ctx context.Context, hash string) (*types.APIMetadata, error) {
	md, err := r.scan(r.db.QueryRowContext(ctx,
		"SELECT "+apiColumns+" FROM api_metadata WHERE file_hash = ?", hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get api metadata by hash", err)
	}
	return md, nil
}

var apiTable = table{
	name:   "api_metadata",
	entity: "api",
	columns: map[string]bool{
		"id": true, "file_path": true, "file_hash": true, "title": true,
		"version": true, "openapi_version": true, "description": true,
		"endpoint_count": true, "schema_count": true,
		"security_scheme_count": true, "ingested_at": true,
	},
	defaultOrder: "ingested_at DESC, id DESC",
}

// List returns ingested specifications, newest first unless the options
// say otherwise.
func (r *APIRepository) List(ctx context.Context, opts ListOptions) ([]*types.APIMetadata, error) {
	q, args, err := apiTable.listQuery(apiColumns, opts)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError("list api metadata", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.APIMetadata
	for rows.Next() {
		md, err := r.scan(rows)
		if err != nil {
			return nil, mapError("scan api metadata", err)
		}
		out = append(out, md)
	}
	return out, rows.Err()
}

// Count returns the number of specifications matching the filters.
func (r *APIRepository) Count(ctx context.Context, f Filters) (int, error) {
	return apiTable.count(ctx, r.db, f)
}

// Exists reports whether any specification matches the filters.
func (r *APIRepository) Exists(ctx context.Context, f Filters) (bool, error) {
	return apiTable.exists(ctx, r.db, f)
}

// GetPage returns one page of specifications with its envelope.
func (r *APIRepository) GetPage(ctx context.Context, page, perPage int, orderBy string, f Filters) ([]*types.APIMetadata, Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultListLimit
	}
	total, err := r.Count(ctx, f)
	if err != nil {
		return nil, Page{}, err
	}
	p := NewPage(page, perPage, total)
	specs, err := r.List(ctx, ListOptions{Limit: perPage, Offset: p.Offset(), OrderBy: orderBy, Filters: f})
	if err != nil {
		return nil, Page{}, err
	}
	return specs, p, nil
}

// Update rewrites one metadata row.
func (r *APIRepository) Update(ctx context.Context, md *types.APIMetadata) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin api metadata update", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE api_metadata SET
			file_path = ?, file_hash = ?, title = ?, version = ?,
			openapi_version = ?, description = ?, endpoint_count = ?,
			schema_count = ?, security_scheme_count = ?
		WHERE id = ?`,
		md.FilePath, md.FileHash, md.Title, md.Version, md.OpenAPIVersion,
		md.Description, md.EndpointCount, md.SchemaCount, md.SecuritySchemeCount, md.ID)
	if err != nil {
		return mapError("update api metadata", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return srverrors.NotFound("api", fmt.Sprintf("%d", md.ID))
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit api metadata update", err)
	}
	return nil
}

// UpdateByID applies a partial column update to one metadata row.
func (r *APIRepository) UpdateByID(ctx context.Context, id int64, fields Filters) error {
	return apiTable.updateByID(ctx, r.db, id, fields)
}

// Delete removes one specification and, through cascades, its children.
func (r *APIRepository) Delete(ctx context.Context, id int64) error {
	return r.DeleteByID(ctx, id)
}

// DeleteByID removes one specification row; foreign keys cascade to its
// endpoints, schemas, and security schemes.
func (r *APIRepository) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM api_metadata WHERE id = ?", id)
	if err != nil {
		return mapError("delete api metadata", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return srverrors.NotFound("api", fmt.Sprintf("%d", id))
	}
	return nil
}
