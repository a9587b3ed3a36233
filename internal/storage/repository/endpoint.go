package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"openapi-mcp-server/internal/category"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/pkg/types"
)

// EndpointRepository manages endpoint rows and the full-text index entries
// backing them.
type EndpointRepository struct {
	db *sql.DB
}

// NewEndpointRepository creates the repository.
func NewEndpointRepository(db *sql.DB) *EndpointRepository {
	return &EndpointRepository{db: db}
}

// CreateMany inserts endpoints inside the caller's transaction using one
// prepared statement.
func (r *EndpointRepository) CreateMany(ctx context.Context, tx *sql.Tx, endpoints []*types.Endpoint) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO endpoints
			(api_id, path, method, operation_id, summary, description, tags,
			 parameters, request_body, responses, security, deprecated,
			 extensions, schema_dependencies, security_dependencies,
			 category, category_group, searchable_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return mapError("prepare endpoint insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ep := range endpoints {
		cols, err := endpointJSONColumns(ep)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx,
			ep.APIID, ep.Path, string(ep.Method), ep.OperationID, ep.Summary, ep.Description,
			cols.tags, cols.parameters, cols.requestBody, cols.responses, cols.security,
			boolToInt(ep.Deprecated), cols.extensions, cols.schemaDeps, cols.securityDeps,
			ep.Category, ep.CategoryGroup, ep.SearchableText)
		if err != nil {
			return mapError(fmt.Sprintf("insert endpoint %s %s", ep.Method, ep.Path), err)
		}
		if ep.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

type endpointColumns struct {
	tags, parameters, requestBody, responses, security string
	extensions, schemaDeps, securityDeps               string
}

func endpointJSONColumns(ep *types.Endpoint) (endpointColumns, error) {
	var cols endpointColumns
	var err error
	pairs := []struct {
		dest *string
		src  interface{}
	}{
		{&cols.tags, ep.Tags},
		{&cols.parameters, ep.Parameters},
		{&cols.requestBody, ep.RequestBody},
		{&cols.responses, ep.Responses},
		{&cols.security, ep.Security},
		{&cols.extensions, ep.Extensions},
		{&cols.schemaDeps, ep.SchemaDependencies},
		{&cols.securityDeps, ep.SecurityDependencies},
	}
	for _, p := range pairs {
		if *p.dest, err = marshalColumn(p.src); err != nil {
			return cols, err
		}
	}
	return cols, nil
}

const endpointColumnsSQL = `id, api_id, path, method,
	COALESCE(operation_id, ''), COALESCE(summary, ''), COALESCE(description, ''),
	COALESCE(tags, ''), COALESCE(parameters, ''), COALESCE(request_body, ''),
	COALESCE(responses, ''), COALESCE(security, ''), deprecated,
	COALESCE(extensions, ''), COALESCE(schema_dependencies, ''),
	COALESCE(security_dependencies, ''), category, category_group, searchable_text`

const endpointColumnsQualifiedSQL = `e.id, e.api_id, e.path, e.method,
	COALESCE(e.operation_id, ''), COALESCE(e.summary, ''), COALESCE(e.description, ''),
	COALESCE(e.tags, ''), COALESCE(e.parameters, ''), COALESCE(e.request_body, ''),
	COALESCE(e.responses, ''), COALESCE(e.security, ''), e.deprecated,
	COALESCE(e.extensions, ''), COALESCE(e.schema_dependencies, ''),
	COALESCE(e.security_dependencies, ''), e.category, e.category_group, e.searchable_text`

func scanEndpoint(row interface{ Scan(...interface{}) error }) (*types.Endpoint, error) {
	ep := &types.Endpoint{}
	var method string
	var deprecated int
	var tags, params, body, responses, security, extensions, schemaDeps, securityDeps string

	err := row.Scan(&ep.ID, &ep.APIID, &ep.Path, &method,
		&ep.OperationID, &ep.Summary, &ep.Description,
		&tags, &params, &body, &responses, &security, &deprecated,
		&extensions, &schemaDeps, &securityDeps,
		&ep.Category, &ep.CategoryGroup, &ep.SearchableText)
	if err != nil {
		return nil, err
	}
	ep.Method = types.HTTPMethod(method)
	ep.Deprecated = deprecated != 0

	for _, col := range []struct {
		data string
		dest interface{}
	}{
		{tags, &ep.Tags},
		{params, &ep.Parameters},
		{body, &ep.RequestBody},
		{responses, &ep.Responses},
		{security, &ep.Security},
		{extensions, &ep.Extensions},
		{schemaDeps, &ep.SchemaDependencies},
		{securityDeps, &ep.SecurityDependencies},
	} {
		if err := unmarshalColumn(col.data, col.dest); err != nil {
			return nil, err
		}
	}
	return ep, nil
}

// GetByID fetches one endpoint.
func (r *EndpointRepository) GetByID(ctx context.Context, id int64) (*types.Endpoint, error) {
	ep, err := scanEndpoint(r.db.QueryRowContext(ctx,
		"SELECT "+endpointColumnsSQL+" FROM endpoints WHERE id = ?", id))
	if err != nil {
		return nil, mapError("get endpoint", err)
	}
	return ep, nil
}

// GetByPathMethod fetches one endpoint by its natural key.
func (r *EndpointRepository) GetByPathMethod(ctx context.Context, path string, method types.HTTPMethod) (*types.Endpoint, error) {
	ep, err := scanEndpoint(r.db.QueryRowContext(ctx,
		"SELECT "+endpointColumnsSQL+" FROM endpoints WHERE path = ? AND method = ? ORDER BY api_id DESC LIMIT 1",
		path, string(method)))
	if err != nil {
		return nil, mapError("get endpoint by path", err)
	}
	return ep, nil
}

// ListByAPI returns all endpoints of one specification.
func (r *EndpointRepository) ListByAPI(ctx context.Context, apiID int64) ([]*types.Endpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+endpointColumnsSQL+" FROM endpoints WHERE api_id = ? ORDER BY path, method", apiID)
	if err != nil {
		return nil, mapError("list endpoints", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEndpoints(rows)
}

func collectEndpoints(rows *sql.Rows) ([]*types.Endpoint, error) {
	var out []*types.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, mapError("scan endpoint", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// SearchFilter restricts full-text matches. Every present filter must hold.
type SearchFilter struct {
	Methods        []types.HTTPMethod
	Categories     []string
	CategoryGroups []string
	Tags           []string
	Deprecated     *bool
}

// SearchHit pairs an endpoint with its raw FTS rank.
type SearchHit struct {
	Endpoint *types.Endpoint
	Rank     float64
}

// Search runs an FTS5 MATCH query plus AND-combined filters, returning one
// page of candidates ordered by ascending bm25 rank (best first). The
// candidate multiple lets the caller rerank a larger window.
func (r *EndpointRepository) Search(ctx context.Context, match string, filter SearchFilter, limit, offset int) ([]SearchHit, int, error) {
	where := []string{"endpoints_fts MATCH ?"}
	args := []interface{}{match}

	if len(filter.Methods) > 0 {
		ms := make([]interface{}, len(filter.Methods))
		for i, m := range filter.Methods {
			ms[i] = string(m)
		}
		where = append(where, fmt.Sprintf("e.method IN (%s)", placeholders(len(ms))))
		args = append(args, ms...)
	}
	if len(filter.Categories) > 0 {
		cs := make([]interface{}, len(filter.Categories))
		for i, c := range filter.Categories {
			cs[i] = category.Normalize(c)
		}
		where = append(where, fmt.Sprintf("e.category IN (%s)", placeholders(len(cs))))
		args = append(args, cs...)
	}
	if len(filter.CategoryGroups) > 0 {
		gs := make([]interface{}, len(filter.CategoryGroups))
		for i, g := range filter.CategoryGroups {
			gs[i] = g
		}
		where = append(where, fmt.Sprintf("e.category_group IN (%s)", placeholders(len(gs))))
		args = append(args, gs...)
	}
	for _, tag := range filter.Tags {
		// Tags are stored as a JSON array; match the quoted element.
		where = append(where, "e.tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}
	if filter.Deprecated != nil {
		where = append(where, "e.deprecated = ?")
		args = append(args, boolToInt(*filter.Deprecated))
	}

	whereSQL := strings.Join(where, " AND ")
	countSQL := `
		SELECT COUNT(*)
		FROM endpoints_fts JOIN endpoints e ON e.id = endpoints_fts.endpoint_id
		WHERE ` + whereSQL
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, mapSearchError(err)
	}

	querySQL := `
		SELECT ` + endpointColumnsQualifiedSQL + `, bm25(endpoints_fts)
		FROM endpoints_fts JOIN endpoints e ON e.id = endpoints_fts.endpoint_id
		WHERE ` + whereSQL + `
		ORDER BY bm25(endpoints_fts)
		LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, querySQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, mapSearchError(err)
	}
	defer func() { _ = rows.Close() }()

	var hits []SearchHit
	for rows.Next() {
		hit, err := scanSearchHit(rows)
		if err != nil {
			return nil, 0, err
		}
		hits = append(hits, hit)
	}
	return hits, total, rows.Err()
}

func scanSearchHit(rows *sql.Rows) (SearchHit, error) {
	ep := &types.Endpoint{}
	var method string
	var deprecated int
	var tags, params, body, responses, security, extensions, schemaDeps, securityDeps string
	var rank float64

	err := rows.Scan(&ep.ID, &ep.APIID, &ep.Path, &method,
		&ep.OperationID, &ep.Summary, &ep.Description,
		&tags, &params, &body, &responses, &security, &deprecated,
		&extensions, &schemaDeps, &securityDeps,
		&ep.Category, &ep.CategoryGroup, &ep.SearchableText, &rank)
	if err != nil {
		return SearchHit{}, mapError("scan search hit", err)
	}
	ep.Method = types.HTTPMethod(method)
	ep.Deprecated = deprecated != 0
	for _, col := range []struct {
		data string
		dest interface{}
	}{
		{tags, &ep.Tags},
		{params, &ep.Parameters},
		{body, &ep.RequestBody},
		{responses, &ep.Responses},
		{security, &ep.Security},
		{extensions, &ep.Extensions},
		{schemaDeps, &ep.SchemaDependencies},
		{securityDeps, &ep.SecurityDependencies},
	} {
		if err := unmarshalColumn(col.data, col.dest); err != nil {
			return SearchHit{}, err
		}
	}
	return SearchHit{Endpoint: ep, Rank: rank}, nil
}

// mapSearchError distinguishes malformed MATCH expressions from real
// database failures.
func mapSearchError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "fts5: syntax error") ||
		strings.Contains(err.Error(), "unterminated string") ||
		strings.Contains(err.Error(), "unknown special query") {
		return srverrors.Wrap(srverrors.CodeValidation, "search expression is not valid", err).
			WithSuggestions("remove unbalanced quotes or stray operators from the keywords")
	}
	return mapError("search endpoints", err)
}

// GetCategories aggregates the catalog from the endpoints table, sorted by
// the given key. The display name is derived from the normalized name.
func (r *EndpointRepository) GetCategories(ctx context.Context, sortBy category.SortBy) ([]types.Category, error) {
	order := "name ASC"
	switch sortBy {
	case category.SortByEndpointCount:
		order = "endpoint_count DESC, name ASC"
	case category.SortByGroup:
		order = "category_group ASC, name ASC"
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT category AS name, category_group,
			COUNT(*) AS endpoint_count,
			GROUP_CONCAT(DISTINCT method) AS methods
		FROM endpoints
		WHERE category != ''
		GROUP BY category, category_group
		ORDER BY %s`, order))
	if err != nil {
		return nil, mapError("get categories", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Category
	for rows.Next() {
		var c types.Category
		var methods sql.NullString
		if err := rows.Scan(&c.Name, &c.Group, &c.EndpointCount, &methods); err != nil {
			return nil, mapError("scan category", err)
		}
		c.DisplayName = category.DisplayName(c.Name)
		if methods.Valid && methods.String != "" {
			c.HTTPMethods = strings.Split(methods.String, ",")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategoryGroups aggregates x-tagGroups membership across endpoints.
func (r *EndpointRepository) GetCategoryGroups(ctx context.Context) ([]types.CategoryGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_group,
			GROUP_CONCAT(DISTINCT category) AS categories,
			COUNT(*) AS total
		FROM endpoints
		WHERE category_group != ''
		GROUP BY category_group
		ORDER BY category_group`)
	if err != nil {
		return nil, mapError("get category groups", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.CategoryGroup
	for rows.Next() {
		var g types.CategoryGroup
		var cats string
		if err := rows.Scan(&g.Name, &cats, &g.TotalEndpoints); err != nil {
			return nil, mapError("scan category group", err)
		}
		if cats != "" {
			g.Categories = strings.Split(cats, ",")
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

var endpointTable = table{
	name:   "endpoints",
	entity: "endpoint",
	columns: map[string]bool{
		"id": true, "api_id": true, "path": true, "method": true,
		"operation_id": true, "summary": true, "description": true,
		"category": true, "category_group": true, "deprecated": true,
	},
	defaultOrder: "path, method",
}

// List returns endpoints under the generic filter contract.
func (r *EndpointRepository) List(ctx context.Context, opts ListOptions) ([]*types.Endpoint, error) {
	q, args, err := endpointTable.listQuery(endpointColumnsSQL, opts)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError("list endpoints", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEndpoints(rows)
}

// Count returns the number of endpoints matching the filters.
func (r *EndpointRepository) Count(ctx context.Context, f Filters) (int, error) {
	return endpointTable.count(ctx, r.db, f)
}

// Exists reports whether any endpoint matches the filters.
func (r *EndpointRepository) Exists(ctx context.Context, f Filters) (bool, error) {
	return endpointTable.exists(ctx, r.db, f)
}

// GetPage returns one page of endpoints with its envelope.
func (r *EndpointRepository) GetPage(ctx context.Context, page, perPage int, orderBy string, f Filters) ([]*types.Endpoint, Page, error) {
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
	eps, err := r.List(ctx, ListOptions{Limit: perPage, Offset: p.Offset(), OrderBy: orderBy, Filters: f})
	if err != nil {
		return nil, Page{}, err
	}
	return eps, p, nil
}

// Update rewrites one endpoint row and refreshes its full-text index entry
// in the same transaction.
func (r *EndpointRepository) Update(ctx context.Context, ep *types.Endpoint) error {
	cols, err := endpointJSONColumns(ep)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin endpoint update", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE endpoints SET
			path = ?, method = ?, operation_id = ?, summary = ?, description = ?,
			tags = ?, parameters = ?, request_body = ?, responses = ?, security = ?,
			deprecated = ?, extensions = ?, schema_dependencies = ?,
			security_dependencies = ?, category = ?, category_group = ?,
			searchable_text = ?
		WHERE id = ?`,
		ep.Path, string(ep.Method), ep.OperationID, ep.Summary, ep.Description,
		cols.tags, cols.parameters, cols.requestBody, cols.responses, cols.security,
		boolToInt(ep.Deprecated), cols.extensions, cols.schemaDeps, cols.securityDeps,
		ep.Category, ep.CategoryGroup, ep.SearchableText, ep.ID)
	if err != nil {
		return mapError("update endpoint", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return srverrors.NotFound("endpoint", fmt.Sprintf("%d", ep.ID))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM endpoints_fts WHERE endpoint_id = ?", ep.ID); err != nil {
		return mapError("clear endpoint index row", err)
	}
	paramNames := make([]string, len(ep.Parameters))
	for i, p := range ep.Parameters {
		paramNames[i] = p.Name
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO endpoints_fts
			(path, operation_id, summary, description, tags, parameters, content, endpoint_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.Path, ep.OperationID, ep.Summary, ep.Description,
		strings.Join(ep.Tags, " "), strings.Join(paramNames, " "),
		ep.SearchableText, ep.ID); err != nil {
		return mapError("write endpoint index row", err)
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit endpoint update", err)
	}
	return nil
}

// UpdateByID applies a partial column update to one endpoint.
func (r *EndpointRepository) UpdateByID(ctx context.Context, id int64, fields Filters) error {
	return endpointTable.updateByID(ctx, r.db, id, fields)
}

// DeleteByID removes one endpoint and its index entry.
func (r *EndpointRepository) DeleteByID(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin endpoint delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM endpoints_fts WHERE endpoint_id = ?", id); err != nil {
		return mapError("clear endpoint index row", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM endpoints WHERE id = ?", id)
	if err != nil {
		return mapError("delete endpoint", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return srverrors.NotFound("endpoint", fmt.Sprintf("%d", id))
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit endpoint delete", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
