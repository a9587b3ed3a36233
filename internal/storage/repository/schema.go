package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/pkg/types"
)

// SchemaRepository manages schema component rows.
type SchemaRepository struct {
	db *sql.DB
}

// NewSchemaRepository creates the repository.
func NewSchemaRepository(db *sql.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// CreateMany inserts schemas inside the caller's transaction.
func (r *SchemaRepository) CreateMany(ctx context.Context, tx *sql.Tx, schemas []*types.Schema) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schemas
			(api_id, name, title, description, root, reference_count,
			 dependencies, circular_refs, deprecated, extensions, searchable_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return mapError("prepare schema insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, s := range schemas {
		root, err := marshalColumn(s.Root)
		if err != nil {
			return err
		}
		deps, err := marshalColumn(s.Dependencies)
		if err != nil {
			return err
		}
		circular, err := marshalColumn(s.CircularRefs)
		if err != nil {
			return err
		}
		ext, err := marshalColumn(s.Extensions)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx,
			s.APIID, s.Name, s.Title, s.Description, root, s.ReferenceCount,
			deps, circular, boolToInt(s.Deprecated), ext, s.SearchableText)
		if err != nil {
			return mapError(fmt.Sprintf("insert schema %s", s.Name), err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

const schemaColumnsSQL = `id, api_id, name, COALESCE(title, ''),
	COALESCE(description, ''), root, reference_count, COALESCE(dependencies, ''),
	COALESCE(circular_refs, ''), deprecated, COALESCE(extensions, ''), searchable_text`

func scanSchema(row interface{ Scan(...interface{}) error }) (*types.Schema, error) {
	s := &types.Schema{}
	var root, deps, circular, ext string
	var deprecated int
	err := row.Scan(&s.ID, &s.APIID, &s.Name, &s.Title, &s.Description,
		&root, &s.ReferenceCount, &deps, &circular, &deprecated, &ext, &s.SearchableText)
	if err != nil {
		return nil, err
	}
	s.Deprecated = deprecated != 0
	if err := unmarshalColumn(root, &s.Root); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(deps, &s.Dependencies); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(circular, &s.CircularRefs); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(ext, &s.Extensions); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByName fetches the newest schema with the given component name.
func (r *SchemaRepository) GetByName(ctx context.Context, name string) (*types.Schema, error) {
	s, err := scanSchema(r.db.QueryRowContext(ctx,
		"SELECT "+schemaColumnsSQL+" FROM schemas WHERE name = ? ORDER BY api_id DESC LIMIT 1", name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, srverrors.NotFound("schema", name)
		}
		return nil, mapError("get schema", err)
	}
	return s, nil
}

// ListByAPI returns all schemas of one specification.
func (r *SchemaRepository) ListByAPI(ctx context.Context, apiID int64) ([]*types.Schema, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+schemaColumnsSQL+" FROM schemas WHERE api_id = ? ORDER BY name", apiID)
	if err != nil {
		return nil, mapError("list schemas", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Schema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, mapError("scan schema", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var schemaTable = table{
	name:   "schemas",
	entity: "schema",
	columns: map[string]bool{
		"id": true, "api_id": true, "name": true, "title": true,
		"description": true, "reference_count": true, "deprecated": true,
	},
	defaultOrder: "name",
}

// GetByID fetches one schema row.
func (r *SchemaRepository) GetByID(ctx context.Context, id int64) (*types.Schema, error) {
	s, err := scanSchema(r.db.QueryRowContext(ctx,
		"SELECT "+schemaColumnsSQL+" FROM schemas WHERE id = ?", id))
	if err != nil {
		return nil, mapError("get schema", err)
	}
	return s, nil
}

// List returns schemas under the generic filter contract.
func (r *SchemaRepository) List(ctx context.Context, opts ListOptions) ([]*types.Schema, error) {
	q, args, err := schemaTable.listQuery(schemaColumnsSQL, opts)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError("list schemas", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Schema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, mapError("scan schema", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of schemas matching the filters.
func (r *SchemaRepository) Count(ctx context.Context, f Filters) (int, error) {
	return schemaTable.count(ctx, r.db, f)
}

// Exists reports whether any schema matches the filters.
func (r *SchemaRepository) Exists(ctx context.Context, f Filters) (bool, error) {
	return schemaTable.exists(ctx, r.db, f)
}

// GetPage returns one page of schemas with its envelope.
func (r *SchemaRepository) GetPage(ctx context.Context, page, perPage int, orderBy string, f Filters) ([]*types.Schema, Page, error) {
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
	schemas, err := r.List(ctx, ListOptions{Limit: perPage, Offset: p.Offset(), OrderBy: orderBy, Filters: f})
	if err != nil {
		return nil, Page{}, err
	}
	return schemas, p, nil
}

// Update rewrites one schema row.
func (r *SchemaRepository) Update(ctx context.Context, s *types.Schema) error {
	root, err := marshalColumn(s.Root)
	if err != nil {
		return err
	}
	deps, err := marshalColumn(s.Dependencies)
	if err != nil {
		return err
	}
	circular, err := marshalColumn(s.CircularRefs)
	if err != nil {
		return err
	}
	ext, err := marshalColumn(s.Extensions)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin schema update", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE schemas SET
			name = ?, title = ?, description = ?, root = ?, reference_count = ?,
			dependencies = ?, circular_refs = ?, deprecated = ?, extensions = ?,
			searchable_text = ?
		WHERE id = ?`,
		s.Name, s.Title, s.Description, root, s.ReferenceCount,
		deps, circular, boolToInt(s.Deprecated), ext, s.SearchableText, s.ID)
	if err != nil {
		return mapError("update schema", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return srverrors.NotFound("schema", fmt.Sprintf("%d", s.ID))
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit schema update", err)
	}
	return nil
}

// UpdateByID applies a partial column update to one schema.
func (r *SchemaRepository) UpdateByID(ctx context.Context, id int64, fields Filters) error {
	return schemaTable.updateByID(ctx, r.db, id, fields)
}

// DeleteByID removes one schema row.
func (r *SchemaRepository) DeleteByID(ctx context.Context, id int64) error {
	return schemaTable.deleteByID(ctx, r.db, id)
}

// ResolvedSchema is a schema with its dependency closure expanded to a
// bounded depth.
type ResolvedSchema struct {
	Schema       *types.Schema            `json:"schema"`
	Dependencies map[string]*types.Schema `json:"dependencies,omitempty"`
	CircularRefs []string                 `json:"circular_references,omitempty"`
	Truncated    []string                 `json:"truncated,omitempty"`
	Unresolved   []string                 `json:"unresolved,omitempty"`
}

// GetWithDependencies fetches a schema and walks its dependency graph up to
// maxDepth hops. Names seen on the walk are fetched once; names beyond the
// depth limit are reported as truncated and names with no stored component
// as unresolved, instead of failing the whole walk.
func (r *SchemaRepository) GetWithDependencies(ctx context.Context, name string, maxDepth int) (*ResolvedSchema, error) {
	rootSchema, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	res := &ResolvedSchema{
		Schema:       rootSchema,
		Dependencies: map[string]*types.Schema{},
		CircularRefs: append([]string{}, rootSchema.CircularRefs...),
	}

	type frame struct {
		name  string
		depth int
	}
	queue := []frame{}
	for _, dep := range rootSchema.Dependencies {
		queue = append(queue, frame{dep, 1})
	}
	visited := map[string]bool{name: true}
	truncated := map[string]bool{}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if visited[f.name] {
			continue
		}
		if f.depth > maxDepth {
			truncated[f.name] = true
			continue
		}
		visited[f.name] = true

		dep, err := r.GetByName(ctx, f.name)
		if err != nil {
			if srverrors.CodeOf(err) == srverrors.CodeResourceNotFound {
				res.Unresolved = append(res.Unresolved, f.name)
				continue
			}
			return nil, err
		}
		res.Dependencies[f.name] = dep
		for _, c := range dep.CircularRefs {
			if !containsString(res.CircularRefs, c) {
				res.CircularRefs = append(res.CircularRefs, c)
			}
		}
		for _, next := range dep.Dependencies {
			if !visited[next] {
				queue = append(queue, frame{next, f.depth + 1})
			}
		}
	}

	for n := range truncated {
		if !visited[n] {
			res.Truncated = append(res.Truncated, n)
		}
	}
	return res, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
