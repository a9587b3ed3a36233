package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/category"
	"openapi-mcp-server/internal/config"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/storage"
	"openapi-mcp-server/pkg/types"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := config.DefaultConfig().Storage
	cfg.DatabasePath = filepath.Join(t.TempDir(), "repo.db")
	engine, err := storage.Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	_, err = storage.NewMigrator(engine, nil).Up(context.Background(), false)
	require.NoError(t, err)
	return engine.DB()
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func seedAPI(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	md := &types.APIMetadata{
		FilePath:       "petstore.json",
		FileHash:       "hash-" + t.Name(),
		Title:          "Petstore",
		Version:        "1.0.0",
		OpenAPIVersion: "3.0.3",
	}
	repo := NewAPIRepository(db)
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.Create(context.Background(), tx, md))
	})
	return md.ID
}

func fixtureEndpoints(apiID int64) []*types.Endpoint {
	return []*types.Endpoint{
		{
			APIID: apiID, Path: "/pets", Method: types.MethodGet,
			OperationID: "listPets", Summary: "List pets",
			Tags: []string{"Pets"}, Category: "pets",
			SearchableText: "/pets listPets list pets",
			Responses:      map[string]types.Response{"200": {Description: "ok"}},
		},
		{
			APIID: apiID, Path: "/pets", Method: types.MethodPost,
			OperationID: "createPet", Summary: "Create a pet",
			Tags: []string{"Pets"}, Category: "pets", Deprecated: true,
			SearchableText: "/pets createPet create pet",
		},
		{
			APIID: apiID, Path: "/search-promo/codes", Method: types.MethodGet,
			OperationID: "listPromoCodes", Summary: "List promo codes",
			Tags: []string{"Search-Promo"}, Category: "search_promo", CategoryGroup: "Marketing",
			SearchableText: "/search-promo/codes listPromoCodes promo codes",
		},
	}
}

func seedEndpoints(t *testing.T, db *sql.DB, apiID int64) []*types.Endpoint {
	t.Helper()
	endpoints := fixtureEndpoints(apiID)
	repo := NewEndpointRepository(db)
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.CreateMany(context.Background(), tx, endpoints))
	})
	// Index every endpoint for the search tests.
	for _, ep := range endpoints {
		_, err := db.Exec(`
			INSERT INTO endpoints_fts (path, operation_id, summary, description, tags, parameters, content, endpoint_id)
			VALUES (?, ?, ?, '', ?, '', ?, ?)`,
			ep.Path, ep.OperationID, ep.Summary, joinTags(ep.Tags), ep.SearchableText, ep.ID)
		require.NoError(t, err)
	}
	return endpoints
}

func joinTags(tags []string) string {
	out := ""
	for i, tag := range tags {
		if i > 0 {
			out += " "
		}
		out += tag
	}
	return out
}

func TestAPIRepositoryRoundTrip(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	repo := NewAPIRepository(db)

	md, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Petstore", md.Title)
	assert.False(t, md.IngestedAt.IsZero())

	byHash, err := repo.GetByHash(context.Background(), md.FileHash)
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, id, byHash.ID)

	missing, err := repo.GetByHash(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAPIRepositoryDeleteCascades(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seedEndpoints(t, db, id)

	require.NoError(t, NewAPIRepository(db).Delete(context.Background(), id))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM endpoints").Scan(&n))
	assert.Zero(t, n)

	err := NewAPIRepository(db).Delete(context.Background(), id)
	assert.Equal(t, srverrors.CodeResourceNotFound, srverrors.CodeOf(err))
}

func TestEndpointRepositoryDuplicateConflict(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seedEndpoints(t, db, id)

	dup := []*types.Endpoint{{APIID: id, Path: "/pets", Method: types.MethodGet}}
	repo := NewEndpointRepository(db)
	tx, err := db.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	err = repo.CreateMany(context.Background(), tx, dup)
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeConflict, srverrors.CodeOf(err))
}

func TestEndpointRepositoryRoundTrip(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seeded := seedEndpoints(t, db, id)

	repo := NewEndpointRepository(db)
	ep, err := repo.GetByID(context.Background(), seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.MethodGet, ep.Method)
	assert.Equal(t, []string{"Pets"}, ep.Tags)
	assert.Equal(t, "ok", ep.Responses["200"].Description)

	byKey, err := repo.GetByPathMethod(context.Background(), "/pets", types.MethodPost)
	require.NoError(t, err)
	assert.True(t, byKey.Deprecated)

	all, err := repo.ListByAPI(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEndpointSearchWithFilters(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seedEndpoints(t, db, id)
	repo := NewEndpointRepository(db)
	ctx := context.Background()

	hits, total, err := repo.Search(ctx, "pets", SearchFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, hits, 2)

	// Method filter cuts the POST.
	hits, total, err = repo.Search(ctx, "pets", SearchFilter{Methods: []types.HTTPMethod{types.MethodGet}}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "listPets", hits[0].Endpoint.OperationID)

	// Category filters accept display casing.
	hits, total, err = repo.Search(ctx, "promo", SearchFilter{Categories: []string{"Search-Promo"}}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "search_promo", hits[0].Endpoint.Category)

	notDeprecated := false
	_, total, err = repo.Search(ctx, "pets", SearchFilter{Deprecated: &notDeprecated}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestEndpointSearchInvalidExpression(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seedEndpoints(t, db, id)

	_, _, err := NewEndpointRepository(db).Search(context.Background(), `"unbalanced`, SearchFilter{}, 10, 0)
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeValidation, srverrors.CodeOf(err))
}

func TestGetCategories(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seedEndpoints(t, db, id)
	repo := NewEndpointRepository(db)

	cats, err := repo.GetCategories(context.Background(), category.SortByName)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "pets", cats[0].Name)
	assert.Equal(t, "Pets", cats[0].DisplayName)
	assert.Equal(t, 2, cats[0].EndpointCount)
	assert.ElementsMatch(t, []string{"GET", "POST"}, cats[0].HTTPMethods)
	assert.Equal(t, "Search-Promo", cats[1].DisplayName)

	byCount, err := repo.GetCategories(context.Background(), category.SortByEndpointCount)
	require.NoError(t, err)
	assert.Equal(t, "pets", byCount[0].Name)

	groups, err := repo.GetCategoryGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Marketing", groups[0].Name)
	assert.Equal(t, 1, groups[0].TotalEndpoints)
}

func TestSchemaRepositoryResolution(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)

	schemas := []*types.Schema{
		{APIID: id, Name: "Order", Root: refNode("Customer"), Dependencies: []string{"Customer"}},
		{APIID: id, Name: "Customer", Root: refNode("Address"), Dependencies: []string{"Address"}},
		{APIID: id, Name: "Address", Root: &types.SchemaNode{Kind: types.SchemaKindObject, Type: "object"}},
	}
	repo := NewSchemaRepository(db)
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.CreateMany(context.Background(), tx, schemas))
	})

	res, err := repo.GetWithDependencies(context.Background(), "Order", 3)
	require.NoError(t, err)
	assert.Len(t, res.Dependencies, 2)
	assert.Contains(t, res.Dependencies, "Customer")
	assert.Contains(t, res.Dependencies, "Address")

	// Depth 1 stops after Customer.
	res, err = repo.GetWithDependencies(context.Background(), "Order", 1)
	require.NoError(t, err)
	assert.Len(t, res.Dependencies, 1)
	assert.Equal(t, []string{"Address"}, res.Truncated)

	_, err = repo.GetByName(context.Background(), "Ghost")
	assert.Equal(t, srverrors.CodeResourceNotFound, srverrors.CodeOf(err))
}

func TestSchemaRepositoryMissingDependency(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	schemas := []*types.Schema{
		{APIID: id, Name: "Broken", Root: refNode("Ghost"), Dependencies: []string{"Ghost"}},
	}
	repo := NewSchemaRepository(db)
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.CreateMany(context.Background(), tx, schemas))
	})

	res, err := repo.GetWithDependencies(context.Background(), "Broken", 3)
	require.NoError(t, err)
	assert.Empty(t, res.Dependencies)
	assert.Equal(t, []string{"Ghost"}, res.Unresolved)
}

func TestSecuritySchemeRepositoryRoundTrip(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)

	schemes := []*types.SecurityScheme{
		{APIID: id, Name: "apiKey", Type: types.SecurityAPIKey, APIKeyName: "X-Key", APIKeyIn: types.InHeader, ReferenceCount: 3},
		{APIID: id, Name: "oauth", Type: types.SecurityOAuth2, Flows: map[string]types.OAuthFlow{
			"implicit": {AuthorizationURL: "https://auth.example.com", Scopes: map[string]string{"read": "r"}},
		}},
	}
	repo := NewSecuritySchemeRepository(db)
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.CreateMany(context.Background(), tx, schemes))
	})

	s, err := repo.GetByName(context.Background(), "apiKey")
	require.NoError(t, err)
	assert.Equal(t, "X-Key", s.APIKeyName)
	assert.Equal(t, 3, s.ReferenceCount)

	all, err := repo.ListByAPI(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "apiKey", all[0].Name)
	assert.Contains(t, all[1].Flows, "implicit")
}

func TestEndpointRepositoryGenericContract(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seeded := seedEndpoints(t, db, id)
	repo := NewEndpointRepository(db)
	ctx := context.Background()

	n, err := repo.Count(ctx, Filters{"api_id": id})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ok, err := repo.Exists(ctx, Filters{"category": "search_promo"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Exists(ctx, Filters{"category": "missing"})
	require.NoError(t, err)
	assert.False(t, ok)

	listed, err := repo.List(ctx, ListOptions{OrderBy: "operation_id", Filters: Filters{"category": "pets"}})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "createPet", listed[0].OperationID)

	paged, page, err := repo.GetPage(ctx, 2, 1, "operation_id", Filters{"category": "pets"})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "listPets", paged[0].OperationID)
	assert.Equal(t, 2, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)

	_, err = repo.List(ctx, ListOptions{OrderBy: "sneaky; DROP TABLE endpoints"})
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeValidation, srverrors.CodeOf(err))
	_, err = repo.Count(ctx, Filters{"nope": 1})
	assert.Equal(t, srverrors.CodeValidation, srverrors.CodeOf(err))

	require.NoError(t, repo.UpdateByID(ctx, seeded[0].ID, Filters{"summary": "List all pets"}))
	ep, err := repo.GetByID(ctx, seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "List all pets", ep.Summary)
	err = repo.UpdateByID(ctx, 999999, Filters{"summary": "x"})
	assert.Equal(t, srverrors.CodeResourceNotFound, srverrors.CodeOf(err))
}

func TestEndpointRepositoryUpdateRefreshesIndex(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seeded := seedEndpoints(t, db, id)
	repo := NewEndpointRepository(db)
	ctx := context.Background()

	ep := seeded[0]
	ep.Summary = "Enumerate zebras"
	ep.SearchableText = "/pets listPets enumerate zebras"
	require.NoError(t, repo.Update(ctx, ep))

	hits, total, err := repo.Search(ctx, "zebras", SearchFilter{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "listPets", hits[0].Endpoint.OperationID)

	missing := *ep
	missing.ID = 999999
	err = repo.Update(ctx, &missing)
	assert.Equal(t, srverrors.CodeResourceNotFound, srverrors.CodeOf(err))
}

func TestEndpointRepositoryDeleteByID(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	seeded := seedEndpoints(t, db, id)
	repo := NewEndpointRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.DeleteByID(ctx, seeded[2].ID))
	_, err := repo.GetByID(ctx, seeded[2].ID)
	assert.Equal(t, srverrors.CodeResourceNotFound, srverrors.CodeOf(err))

	// The index row went with it.
	_, total, err := repo.Search(ctx, "promo", SearchFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	err = repo.DeleteByID(ctx, seeded[2].ID)
	assert.Equal(t, srverrors.CodeResourceNotFound, srverrors.CodeOf(err))
}

func TestSchemaRepositoryGenericContract(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	schemas := []*types.Schema{
		{APIID: id, Name: "Order", Root: refNode("Customer"), Dependencies: []string{"Customer"}},
		{APIID: id, Name: "Customer", Root: &types.SchemaNode{Kind: types.SchemaKindObject, Type: "object"}},
	}
	repo := NewSchemaRepository(db)
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.CreateMany(context.Background(), tx, schemas))
	})
	ctx := context.Background()

	n, err := repo.Count(ctx, Filters{"api_id": id})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := repo.Exists(ctx, Filters{"name": "Order"})
	require.NoError(t, err)
	assert.True(t, ok)

	listed, page, err := repo.GetPage(ctx, 1, 1, "name desc", nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "Order", listed[0].Name)
	assert.Equal(t, 2, page.TotalPages)

	byID, err := repo.GetByID(ctx, schemas[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Customer", byID.Name)

	schemas[1].Description = "A paying customer"
	require.NoError(t, repo.Update(ctx, schemas[1]))
	byID, err = repo.GetByID(ctx, schemas[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "A paying customer", byID.Description)

	require.NoError(t, repo.UpdateByID(ctx, schemas[1].ID, Filters{"title": "Customer record"}))
	require.NoError(t, repo.DeleteByID(ctx, schemas[1].ID))
	_, err = repo.GetByID(ctx, schemas[1].ID)
	assert.Equal(t, srverrors.CodeResourceNotFound, srverrors.CodeOf(err))
}

func TestSecuritySchemeRepositoryGenericContract(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	schemes := []*types.SecurityScheme{
		{APIID: id, Name: "apiKey", Type: types.SecurityAPIKey, APIKeyName: "X-Key", APIKeyIn: types.InHeader},
		{APIID: id, Name: "bearer", Type: types.SecurityHTTP, HTTPScheme: "bearer"},
	}
	repo := NewSecuritySchemeRepository(db)
	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, repo.CreateMany(context.Background(), tx, schemes))
	})
	ctx := context.Background()

	n, err := repo.Count(ctx, Filters{"type": string(types.SecurityAPIKey)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	listed, err := repo.List(ctx, ListOptions{OrderBy: "name desc"})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "bearer", listed[0].Name)

	byID, err := repo.GetByID(ctx, schemes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "X-Key", byID.APIKeyName)

	schemes[0].Description = "Primary key header"
	require.NoError(t, repo.Update(ctx, schemes[0]))
	byID, err = repo.GetByID(ctx, schemes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Primary key header", byID.Description)

	require.NoError(t, repo.DeleteByID(ctx, schemes[1].ID))
	ok, err := repo.Exists(ctx, Filters{"name": "bearer"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAPIRepositoryGenericContract(t *testing.T) {
	db := testDB(t)
	id := seedAPI(t, db)
	repo := NewAPIRepository(db)
	ctx := context.Background()

	listed, err := repo.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	ok, err := repo.Exists(ctx, Filters{"title": "Petstore"})
	require.NoError(t, err)
	assert.True(t, ok)

	md := listed[0]
	md.Description = "Pet shop catalog"
	require.NoError(t, repo.Update(ctx, md))
	require.NoError(t, repo.UpdateByID(ctx, id, Filters{"version": "1.0.1"}))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pet shop catalog", got.Description)
	assert.Equal(t, "1.0.1", got.Version)

	_, page, err := repo.GetPage(ctx, 1, 10, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalItems)

	require.NoError(t, repo.DeleteByID(ctx, id))
	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func refNode(name string) *types.SchemaNode {
	return &types.SchemaNode{
		Kind: types.SchemaKindObject,
		Type: "object",
		Properties: []types.Property{
			{Name: "child", Schema: &types.SchemaNode{Kind: types.SchemaKindReference, Ref: name}},
		},
	}
}
