package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/pkg/types"
)

// SecuritySchemeRepository manages security scheme rows. The type-specific
// fields travel in one JSON payload column.
type SecuritySchemeRepository struct {
	db *sql.DB
}

// NewSecuritySchemeRepository creates the repository.
func NewSecuritySchemeRepository(db *sql.DB) *SecuritySchemeRepository {
	return &SecuritySchemeRepository{db: db}
}

// CreateMany inserts schemes inside the caller's transaction.
func (r *SecuritySchemeRepository) CreateMany(ctx context.Context, tx *sql.Tx, schemes []*types.SecurityScheme) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO security_schemes (api_id, name, type, description, payload, reference_count)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return mapError("prepare security scheme insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, s := range schemes {
		payload, err := marshalColumn(s)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx,
			s.APIID, s.Name, string(s.Type), s.Description, payload, s.ReferenceCount)
		if err != nil {
			return mapError(fmt.Sprintf("insert security scheme %s", s.Name), err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func scanScheme(row interface{ Scan(...interface{}) error }) (*types.SecurityScheme, error) {
	var id, apiID int64
	var refCount int
	var payload string
	if err := row.Scan(&id, &apiID, &refCount, &payload); err != nil {
		return nil, err
	}
	s := &types.SecurityScheme{}
	if err := unmarshalColumn(payload, s); err != nil {
		return nil, err
	}
	s.ID = id
	s.APIID = apiID
	s.ReferenceCount = refCount
	return s, nil
}

// GetByName fetches the newest scheme with the given name.
func (r *SecuritySchemeRepository) GetByName(ctx context.Context, name string) (*types.SecurityScheme, error) {
	s, err := scanScheme(r.db.QueryRowContext(ctx,
		"SELECT id, api_id, reference_count, payload FROM security_schemes WHERE name = ? ORDER BY api_id DESC LIMIT 1",
		name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, srverrors.NotFound("security scheme", name)
		}
		return nil, mapError("get security scheme", err)
	}
	return s, nil
}

var securitySchemeTable = table{
	name:   "security_schemes",
	entity: "security scheme",
	columns: map[string]bool{
		"id": true, "api_id": true, "name": true, "type": true,
		"description": true, "reference_count": true,
	},
	defaultOrder: "name",
}

const securitySchemeColumnsSQL = "id, api_id, reference_count, payload"

// GetByID fetches one scheme row.
func (r *SecuritySchemeRepository) GetByID(ctx context.Context, id int64) (*types.SecurityScheme, error) {
	s, err := scanScheme(r.db.QueryRowContext(ctx,
		"SELECT "+securitySchemeColumnsSQL+" FROM security_schemes WHERE id = ?", id))
	if err != nil {
		return nil, mapError("get security scheme", err)
	}
	return s, nil
}

// List returns schemes under the generic filter contract.
func (r *SecuritySchemeRepository) List(ctx context.Context, opts ListOptions) ([]*types.SecurityScheme, error) {
	q, args, err := securitySchemeTable.listQuery(securitySchemeColumnsSQL, opts)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError("list security schemes", err)
	}
	defer func() { _ = rows.Close() }()
	return collectSchemes(rows)
}

// Count returns the number of schemes matching the filters.
func (r *SecuritySchemeRepository) Count(ctx context.Context, f Filters) (int, error) {
	return securitySchemeTable.count(ctx, r.db, f)
}

// Exists reports whether any scheme matches the filters.
func (r *SecuritySchemeRepository) Exists(ctx context.Context, f Filters) (bool, error) {
	return securitySchemeTable.exists(ctx, r.db, f)
}

// GetPage returns one page of schemes with its envelope.
func (r *SecuritySchemeRepository) GetPage(ctx context.Context, page, perPage int, orderBy string, f Filters) ([]*types.SecurityScheme, Page, error) {
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
	schemes, err := r.List(ctx, ListOptions{Limit: perPage, Offset: p.Offset(), OrderBy: orderBy, Filters: f})
	if err != nil {
		return nil, Page{}, err
	}
	return schemes, p, nil
}

// Update rewrites one scheme row, regenerating the payload column.
func (r *SecuritySchemeRepository) Update(ctx context.Context, s *types.SecurityScheme) error {
	payload, err := marshalColumn(s)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin security scheme update", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE security_schemes SET name = ?, type = ?, description = ?, payload = ?, reference_count = ?
		WHERE id = ?`,
		s.Name, string(s.Type), s.Description, payload, s.ReferenceCount, s.ID)
	if err != nil {
		return mapError("update security scheme", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return srverrors.NotFound("security scheme", fmt.Sprintf("%d", s.ID))
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit security scheme update", err)
	}
	return nil
}

// UpdateByID applies a partial column update to one scheme. The payload
// column is untouched, so type-specific fields need Update instead.
func (r *SecuritySchemeRepository) UpdateByID(ctx context.Context, id int64, fields Filters) error {
	return securitySchemeTable.updateByID(ctx, r.db, id, fields)
}

// DeleteByID removes one scheme row.
func (r *SecuritySchemeRepository) DeleteByID(ctx context.Context, id int64) error {
	return securitySchemeTable.deleteByID(ctx, r.db, id)
}

func collectSchemes(rows *sql.Rows) ([]*types.SecurityScheme, error) {
	var out []*types.SecurityScheme
	for rows.Next() {
		s, err := scanScheme(rows)
		if err != nil {
			return nil, mapError("scan security scheme", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByAPI returns all schemes of one specification.
func (r *SecuritySchemeRepository) ListByAPI(ctx context.Context, apiID int64) ([]*types.SecurityScheme, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, api_id, reference_count, payload FROM security_schemes WHERE api_id = ? ORDER BY name", apiID)
	if err != nil {
		return nil, mapError("list security schemes", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.SecurityScheme
	for rows.Next() {
		s, err := scanScheme(rows)
		if err != nil {
			return nil, mapError("scan security scheme", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
