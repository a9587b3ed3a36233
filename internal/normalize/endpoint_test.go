package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/pkg/types"
)

func TestNormalizeEndpointsMergesPathParameters(t *testing.T) {
	root := obj("paths", obj(
		"/users/{userId}", obj(
			"parameters", []interface{}{
				obj("name", "userId", "in", "path", "schema", obj("type", "string")),
				obj("name", "verbose", "in", "query", "schema", obj("type", "boolean")),
			},
			"get", obj(
				"operationId", "getUser",
				"parameters", []interface{}{
					// Overrides the path-level declaration of the same parameter.
					obj("name", "verbose", "in", "query", "required", true, "schema", obj("type", "boolean")),
				},
			),
		),
	))
	endpoints, errs := NormalizeEndpoints(root)
	require.Empty(t, errs)
	require.Len(t, endpoints, 1)

	ep := endpoints[0]
	assert.Equal(t, types.MethodGet, ep.Method)
	require.Len(t, ep.Parameters, 2)
	assert.Equal(t, "userId", ep.Parameters[0].Name)
	assert.True(t, ep.Parameters[0].Required, "path parameters are always required")
	assert.Equal(t, "verbose", ep.Parameters[1].Name)
	assert.True(t, ep.Parameters[1].Required, "operation-level wins")
}

func TestNormalizeEndpointsGlobalSecurityFallback(t *testing.T) {
	root := obj(
		"security", []interface{}{obj("apiKey", []interface{}{})},
		"paths", obj(
			"/open", obj("get", obj("security", []interface{}{})),
			"/locked", obj("get", obj()),
			"/scoped", obj("get", obj("security", []interface{}{
				obj("oauth", []interface{}{"read:pets"}),
			})),
		),
	)
	endpoints, _ := NormalizeEndpoints(root)
	require.Len(t, endpoints, 3)

	byPath := map[string]*types.Endpoint{}
	for _, ep := range endpoints {
		byPath[ep.Path] = ep
	}
	assert.Empty(t, byPath["/open"].Security, "explicit empty security removes auth")
	require.Len(t, byPath["/locked"].Security, 1)
	assert.Equal(t, "apiKey", byPath["/locked"].Security[0].Schemes[0].Scheme)
	require.Len(t, byPath["/scoped"].Security, 1)
	assert.Equal(t, []string{"read:pets"}, byPath["/scoped"].Security[0].Schemes[0].Scopes)
	assert.Equal(t, []string{"oauth"}, byPath["/scoped"].SecurityDependencies)
}

func TestNormalizeEndpointsSchemaDependencies(t *testing.T) {
	root := obj("paths", obj(
		"/orders", obj("post", obj(
			"requestBody", obj("required", true, "content", obj(
				"application/json", obj("schema", obj("$ref", "#/components/schemas/Order")),
			)),
			"responses", obj(
				"201", obj("description", "created", "content", obj(
					"application/json", obj("schema", obj("$ref", "#/components/schemas/Order")),
				)),
				"400", obj("description", "bad request", "content", obj(
					"application/json", obj("schema", obj("$ref", "#/components/schemas/Error")),
				)),
			),
		)),
	))
	endpoints, errs := NormalizeEndpoints(root)
	require.Empty(t, errs)
	require.Len(t, endpoints, 1)

	ep := endpoints[0]
	assert.ElementsMatch(t, []string{"Order", "Error"}, ep.SchemaDependencies)
	require.NotNil(t, ep.RequestBody)
	assert.True(t, ep.RequestBody.Required)
	assert.Len(t, ep.Responses, 2)
}

func TestNormalizeEndpointsPathParameterMismatch(t *testing.T) {
	root := obj("paths", obj(
		"/pets/{petId}", obj("get", obj()),
	))
	_, errs := NormalizeEndpoints(root)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "petId")
	assert.Contains(t, errs[0].Suggestion, "path")
}

func TestNormalizeEndpointsSwagger2ParameterType(t *testing.T) {
	root := obj("paths", obj(
		"/items", obj("get", obj(
			"parameters", []interface{}{
				obj("name", "limit", "in", "query", "type", "integer", "format", "int32"),
			},
		)),
	))
	endpoints, errs := NormalizeEndpoints(root)
	require.Empty(t, errs)
	require.Len(t, endpoints, 1)
	p := endpoints[0].Parameters[0]
	require.NotNil(t, p.Schema)
	assert.Equal(t, "integer", p.Schema.Type)
	assert.Equal(t, "int32", p.Schema.Format)
}

func TestNormalizeEndpointsSearchableText(t *testing.T) {
	root := obj("paths", obj(
		"/search-promo/codes", obj("get", obj(
			"operationId", "listPromoCodes",
			"summary", "List **promo** codes",
			"tags", []interface{}{"Search-Promo"},
		)),
	))
	endpoints, _ := NormalizeEndpoints(root)
	require.Len(t, endpoints, 1)
	text := endpoints[0].SearchableText
	assert.Contains(t, text, "promo")
	assert.NotContains(t, text, "**")
	assert.Contains(t, text, "listPromoCodes")
}
