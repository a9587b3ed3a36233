package mcp

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/config"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/example"
	"openapi-mcp-server/internal/search"
	"openapi-mcp-server/internal/storage"
	"openapi-mcp-server/internal/storage/repository"
	"openapi-mcp-server/pkg/types"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := config.DefaultConfig().Storage
	cfg.DatabasePath = filepath.Join(t.TempDir(), "mcp.db")
	engine, err := storage.Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	_, err = storage.NewMigrator(engine, nil).Up(context.Background(), false)
	require.NoError(t, err)
	return engine.DB()
}

// catalogFixture seeds a marketplace-flavored store: 40 endpoints across six
// categories, a User/Post reference cycle, and an API-key protected vendor
// endpoint. Returns the seeded endpoints keyed by operation id.
func catalogFixture(t *testing.T, db *sql.DB) map[string]*types.Endpoint {
	t.Helper()
	md := &types.APIMetadata{
		FilePath:       "marketplace.json",
		FileHash:       "hash-" + t.Name(),
		Title:          "Marketplace API",
		Version:        "2.3.0",
		OpenAPIVersion: "3.0.3",
	}

	var eps []*types.Endpoint
	add := func(method types.HTTPMethod, path, opID, summary, cat, group string, security []types.SecurityRequirement) {
		eps = append(eps, &types.Endpoint{
			Path:          path,
			Method:        method,
			OperationID:   opID,
			Summary:       summary,
			Tags:          []string{cat},
			Category:      cat,
			CategoryGroup: group,
			Security:      security,
			Parameters:    pathParams(path),
			SearchableText: strings.ToLower(strings.Join([]string{
				strings.NewReplacer("/", " ", "{", "", "}", "").Replace(path),
				opID, summary, cat,
			}, " ")),
		})
	}

	add(types.MethodGet, "/api/v1/users/statistics", "getUserStatistics", "User statistics report", "statistics", "Analytics", nil)
	add(types.MethodGet, "/api/v1/users/activity", "getUserActivity", "User activity statistics", "statistics", "Analytics", nil)
	add(types.MethodGet, "/api/v1/users/engagement", "getUserEngagement", "User engagement statistics", "statistics", "Analytics", nil)
	for i := 0; i < 10; i++ {
		add(types.MethodGet, fmt.Sprintf("/api/v1/statistics/report%d", i),
			fmt.Sprintf("getStatisticsReport%d", i), "Aggregated statistics report", "statistics", "Analytics", nil)
	}
	for i := 0; i < 9; i++ {
		method := types.MethodGet
		if i%2 == 1 {
			method = types.MethodPost
		}
		add(method, fmt.Sprintf("/api/v1/search-promo/slot%d", i),
			fmt.Sprintf("searchPromoSlot%d", i), "Promoted search slot", "search_promo", "Advertising", nil)
	}
	for i := 0; i < 5; i++ {
		add(types.MethodPost, fmt.Sprintf("/api/v1/ads/placement%d", i),
			fmt.Sprintf("createAdPlacement%d", i), "Create ad placement", "ad", "Advertising", nil)
	}
	for i := 0; i < 5; i++ {
		add(types.MethodGet, fmt.Sprintf("/api/v1/products/detail%d", i),
			fmt.Sprintf("getProductDetail%d", i), "Product detail", "product", "Marketplace", nil)
	}
	for i := 0; i < 4; i++ {
		add(types.MethodPut, fmt.Sprintf("/api/v1/campaigns/budget%d", i),
			fmt.Sprintf("updateCampaignBudget%d", i), "Update campaign budget", "campaign", "Analytics", nil)
	}
	apiKeyAuth := []types.SecurityRequirement{{Schemes: []types.SecurityScopes{{Scheme: "ApiKeyAuth"}}}}
	add(types.MethodGet, "/api/v1/vendors/{vendorId}", "getVendor", "Vendor profile", "vendor", "Marketplace", apiKeyAuth)
	add(types.MethodGet, "/api/v1/vendors/{vendorId}/inventory", "getVendorInventory", "Vendor inventory", "vendor", "Marketplace", apiKeyAuth)
	add(types.MethodPost, "/api/v1/vendors", "createVendor", "Register vendor", "vendor", "Marketplace", apiKeyAuth)
	add(types.MethodDelete, "/api/v1/vendors/{vendorId}", "deleteVendor", "Remove vendor", "vendor", "Marketplace", apiKeyAuth)
	require.Len(t, eps, 40)

	schemas := []*types.Schema{
		{
			Name: "User",
			Root: &types.SchemaNode{
				Kind: types.SchemaKindObject,
				Type: "object",
				Properties: []types.Property{
					{Name: "id", Schema: &types.SchemaNode{Kind: types.SchemaKindPrimitive, Type: "integer", Example: 7}},
					{Name: "name", Schema: &types.SchemaNode{Kind: types.SchemaKindPrimitive, Type: "string", Example: "Ada"}},
					{Name: "posts", Schema: &types.SchemaNode{
						Kind:  types.SchemaKindArray,
						Type:  "array",
						Items: &types.SchemaNode{Kind: types.SchemaKindReference, Ref: "Post"},
					}},
				},
				Extensions: types.Extensions{"x-internal": true},
			},
			Dependencies: []string{"Post"},
			CircularRefs: []string{"User -> Post -> User"},
		},
		{
			Name: "Post",
			Root: &types.SchemaNode{
				Kind: types.SchemaKindObject,
				Type: "object",
				Properties: []types.Property{
					{Name: "title", Schema: &types.SchemaNode{Kind: types.SchemaKindPrimitive, Type: "string"}},
					{Name: "author", Schema: &types.SchemaNode{Kind: types.SchemaKindReference, Ref: "User"}},
				},
			},
			Dependencies: []string{"User"},
		},
		{
			Name:         "Broken",
			Root:         &types.SchemaNode{Kind: types.SchemaKindReference, Ref: "Ghost"},
			Dependencies: []string{"Ghost"},
		},
	}

	schemes := []*types.SecurityScheme{{
		Name:       "ApiKeyAuth",
		Type:       types.SecurityAPIKey,
		APIKeyName: "X-API-Key",
		APIKeyIn:   types.InHeader,
	}}

	ctx := context.Background()
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repository.NewAPIRepository(db).Create(ctx, tx, md))
	for _, ep := range eps {
		ep.APIID = md.ID
	}
	for _, sc := range schemas {
		sc.APIID = md.ID
	}
	for _, sch := range schemes {
		sch.APIID = md.ID
	}
	require.NoError(t, repository.NewEndpointRepository(db).CreateMany(ctx, tx, eps))
	require.NoError(t, repository.NewSchemaRepository(db).CreateMany(ctx, tx, schemas))
	require.NoError(t, repository.NewSecuritySchemeRepository(db).CreateMany(ctx, tx, schemes))
	require.NoError(t, tx.Commit())

	indexed, err := search.NewIndexManager(db, 200, nil).CreateFromStore(ctx, md.ID)
	require.NoError(t, err)
	require.Equal(t, 40, indexed)

	byOp := make(map[string]*types.Endpoint, len(eps))
	for _, ep := range eps {
		byOp[ep.OperationID] = ep
	}
	return byOp
}

func pathParams(path string) []types.Parameter {
	var out []types.Parameter
	for _, name := range types.PathPlaceholders(path) {
		out = append(out, types.Parameter{
			Name: name, In: types.InPath, Required: true,
			Schema: &types.SchemaNode{Kind: types.SchemaKindPrimitive, Type: "integer"},
		})
	}
	return out
}

func newTestServer(t *testing.T) (*Server, map[string]*types.Endpoint) {
	t.Helper()
	db := testDB(t)
	eps := catalogFixture(t, db)
	s, err := NewServer(config.DefaultConfig(), db, nil, nil)
	require.NoError(t, err)
	return s, eps
}

// invoke binds params and runs the resulting call, bypassing the
// resilience chain.
func invoke(bind toolBinder, params map[string]interface{}) (interface{}, error) {
	call, err := bind(params)
	if err != nil {
		return nil, err
	}
	return call(context.Background())
}

func asMap(t *testing.T, v interface{}, keys ...string) map[string]interface{} {
	t.Helper()
	m, ok := v.(map[string]interface{})
	require.True(t, ok, "expected map, got %T", v)
	for _, key := range keys {
		next, ok := m[key].(map[string]interface{})
		require.True(t, ok, "expected map at %q, got %T", key, m[key])
		m = next
	}
	return m
}

func TestSearchEndpointsBasic(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindSearchEndpoints, map[string]interface{}{
		"keywords": "users",
	})
	require.NoError(t, err)

	pagination := asMap(t, res, "pagination")
	assert.GreaterOrEqual(t, pagination["total"].(int), 3)

	results := asMap(t, res)["results"].([]map[string]interface{})
	require.NotEmpty(t, results)
	assert.Contains(t, results[0]["path"].(string), "users")

	meta := asMap(t, res, "search_metadata")
	assert.Nil(t, meta["category_filter"])
	assert.Equal(t, "users", meta["keywords"])
}

func TestSearchEndpointsThreeWayAnd(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindSearchEndpoints, map[string]interface{}{
		"keywords":    "slot",
		"httpMethods": []interface{}{"POST"},
		"category":    "search_promo",
	})
	require.NoError(t, err)

	results := asMap(t, res)["results"].([]map[string]interface{})
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "POST", r["method"])
		assert.Equal(t, "search_promo", r["category"])
	}
	meta := asMap(t, res, "search_metadata")
	assert.Equal(t, []string{"POST"}, meta["http_methods_filter"])
	assert.Equal(t, "search_promo", meta["category_filter"])
}

func TestSearchEndpointsPagination(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindSearchEndpoints, map[string]interface{}{
		"keywords": "statistics",
		"perPage":  5,
	})
	require.NoError(t, err)

	pagination := asMap(t, res, "pagination")
	total := pagination["total"].(int)
	require.GreaterOrEqual(t, total, 13)
	assert.Equal(t, 5, pagination["per_page"])
	assert.Equal(t, (total+4)/5, pagination["total_pages"])
	assert.Equal(t, true, pagination["has_more"])
	assert.Equal(t, false, pagination["has_previous"])
	assert.Len(t, asMap(t, res)["results"].([]map[string]interface{}), 5)
}

func TestSearchEndpointsValidationErrorOverJSONRPC(t *testing.T) {
	s, _ := newTestServer(t)

	wrapped := s.wrap(MethodSearchEndpoints, s.bindSearchEndpoints)
	_, err := wrapped(context.Background(), map[string]interface{}{"keywords": ""})
	require.Error(t, err)

	rpcErr, ok := err.(*protocol.JSONRPCError)
	require.True(t, ok, "expected JSON-RPC error, got %T", err)
	assert.Equal(t, -32602, rpcErr.Code)

	data := rpcErr.Data.(map[string]interface{})
	details := data["details"].(map[string]interface{})
	assert.Equal(t, "keywords", details["parameter"])
	assert.NotEmpty(t, data["suggestions"])
}

func TestGetSchemaResolvesCycle(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindGetSchema, map[string]interface{}{
		"componentName": "#/components/schemas/User",
	})
	require.NoError(t, err)

	root := asMap(t, res)["schema"].(*types.Schema)
	assert.Equal(t, "User", root.Name)

	deps := asMap(t, res)["dependencies"].([]*types.Schema)
	require.Len(t, deps, 1)
	assert.Equal(t, "Post", deps[0].Name)

	meta := asMap(t, res, "metadata")
	assert.Equal(t, "User", meta["normalized_name"])
	assert.Equal(t, "#/components/schemas/User", meta["component_name"])
	assert.Equal(t, 1, meta["total_dependencies"])
	assert.NotEmpty(t, meta["circular_references"])
	assert.Empty(t, meta["unresolved"])
}

func TestGetSchemaStripsExamplesAndExtensions(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindGetSchema, map[string]interface{}{
		"componentName":     "User",
		"includeExamples":   false,
		"includeExtensions": false,
	})
	require.NoError(t, err)

	root := asMap(t, res)["schema"].(*types.Schema)
	root.Root.Walk(func(n *types.SchemaNode) bool {
		assert.Nil(t, n.Example)
		assert.Nil(t, n.Extensions)
		return true
	})
}

func TestGetSchemaReportsUnresolvedDependency(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindGetSchema, map[string]interface{}{
		"componentName": "Broken",
	})
	require.NoError(t, err)

	meta := asMap(t, res, "metadata")
	assert.Equal(t, []string{"Ghost"}, meta["unresolved"])
	assert.Equal(t, 0, meta["total_dependencies"])
}

func TestGetSchemaNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := invoke(s.bindGetSchema, map[string]interface{}{
		"componentName": "NoSuchSchema",
	})
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeResourceNotFound, srverrors.CodeOf(err))
}

func TestGetExampleByPath(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindGetExample, map[string]interface{}{
		"endpoint": "/api/v1/vendors/{vendorId}",
		"method":   "GET",
		"format":   "curl",
	})
	require.NoError(t, err)

	out, ok := res.(*example.Output)
	require.True(t, ok, "expected *example.Output, got %T", res)
	assert.Equal(t, "GET", out.Method)
	assert.Contains(t, out.Code, "curl -X GET")
	assert.Contains(t, out.Code, "/api/v1/vendors/12345")
	assert.Contains(t, out.Code, "X-API-Key: YOUR_API_KEY")
}

func TestGetExampleByID(t *testing.T) {
	s, eps := newTestServer(t)
	target := eps["createVendor"]

	res, err := invoke(s.bindGetExample, map[string]interface{}{
		"endpoint":    strconv.FormatInt(target.ID, 10),
		"format":      "script",
		"includeAuth": false,
	})
	require.NoError(t, err)

	out := res.(*example.Output)
	assert.Equal(t, target.ID, out.EndpointID)
	assert.Contains(t, out.Code, "import requests")
	assert.NotContains(t, out.Code, "X-API-Key")
}

func TestGetExampleRejectsNonNumericID(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := invoke(s.bindGetExample, map[string]interface{}{
		"endpoint": "vendors",
		"format":   "curl",
	})
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeValidation, srverrors.CodeOf(err))
	assert.Equal(t, "endpoint", srverrors.AsServerError(err).Details["parameter"])
}

func TestGetEndpointCategoriesCatalog(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindGetEndpointCategories, map[string]interface{}{
		"sortBy": "endpointCount",
	})
	require.NoError(t, err)

	cats := asMap(t, res)["categories"].([]types.Category)
	require.Len(t, cats, 6)
	assert.Equal(t, "statistics", cats[0].Name)
	assert.Equal(t, 13, cats[0].EndpointCount)
	assert.Equal(t, "Statistics", cats[0].DisplayName)

	meta := asMap(t, res, "metadata")
	assert.Equal(t, 6, meta["totalCategories"])
	assert.Equal(t, 40, meta["totalEndpoints"])
	assert.Equal(t, 3, meta["totalGroups"])
	assert.Equal(t, "Marketplace API", meta["apiTitle"])
	assert.Equal(t, "2.3.0", meta["apiVersion"])
}

func TestGetEndpointCategoriesGroupFilter(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := invoke(s.bindGetEndpointCategories, map[string]interface{}{
		"categoryGroup": "Advertising",
	})
	require.NoError(t, err)

	cats := asMap(t, res)["categories"].([]types.Category)
	require.Len(t, cats, 2)
	for _, c := range cats {
		assert.Equal(t, "Advertising", c.Group)
	}
	meta := asMap(t, res, "metadata")
	assert.Equal(t, 14, meta["totalEndpoints"])
}

func TestSyntheticSearchProbesServingPath(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.SyntheticSearch(context.Background()))
}

func TestWrapConvertsTimeoutAfterDeadline(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.Server.SearchTimeout = 1 // nanosecond, forces the deadline path

	wrapped := s.wrap(MethodSearchEndpoints, func(_ map[string]interface{}) (toolCall, error) {
		return func(ctx context.Context) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, nil
	})
	_, err := wrapped(context.Background(), map[string]interface{}{"keywords": "users"})
	require.Error(t, err)

	rpcErr, ok := err.(*protocol.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, -32004, rpcErr.Code)
}

func TestWrapRejectsBadParamsWhileCircuitOpen(t *testing.T) {
	s, _ := newTestServer(t)

	breaker := s.breakers.For(MethodSearchEndpoints)
	for i := 0; i < s.cfg.Server.BreakerFailureThreshold; i++ {
		breaker.RecordFailure()
	}
	wrapped := s.wrap(MethodSearchEndpoints, s.bindSearchEndpoints)

	_, err := wrapped(context.Background(), map[string]interface{}{"keywords": ""})
	require.Error(t, err)
	rpcErr, ok := err.(*protocol.JSONRPCError)
	require.True(t, ok, "expected JSON-RPC error, got %T", err)
	assert.Equal(t, -32602, rpcErr.Code)

	_, err = wrapped(context.Background(), map[string]interface{}{"keywords": "users"})
	require.Error(t, err)
	rpcErr, ok = err.(*protocol.JSONRPCError)
	require.True(t, ok)
	assert.Equal(t, -32004, rpcErr.Code)
}
