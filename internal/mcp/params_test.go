package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/example"
	"openapi-mcp-server/pkg/types"
)

func TestSearchParamsDefaults(t *testing.T) {
	p := searchParams{Keywords: "  create user  "}
	methods, err := p.validate()
	require.NoError(t, err)
	assert.Empty(t, methods)
	assert.Equal(t, "create user", p.Keywords)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
}

func TestSearchParamsRejectsEmptyKeywords(t *testing.T) {
	p := searchParams{Keywords: "   "}
	_, err := p.validate()
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeValidation, srverrors.CodeOf(err))
	se := srverrors.AsServerError(err)
	assert.Equal(t, "keywords", se.Details["parameter"])
	assert.NotEmpty(t, se.Suggestions)
}

func TestSearchParamsBounds(t *testing.T) {
	for _, tt := range []struct {
		name  string
		p     searchParams
		param string
	}{
		{"long keywords", searchParams{Keywords: strings.Repeat("k", 501)}, "keywords"},
		{"page zero stays valid", searchParams{Keywords: "x", Page: -1}, "page"},
		{"perPage over max", searchParams{Keywords: "x", PerPage: 51}, "perPage"},
		{"bad method", searchParams{Keywords: "x", HTTPMethods: []string{"FETCH"}}, "httpMethods"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.validate()
			require.Error(t, err)
			assert.Equal(t, tt.param, srverrors.AsServerError(err).Details["parameter"])
		})
	}
}

func TestSearchParamsNormalizesMethods(t *testing.T) {
	p := searchParams{Keywords: "x", HTTPMethods: []string{"get", " POST ", "GET"}}
	methods, err := p.validate()
	require.NoError(t, err)
	assert.Equal(t, []types.HTTPMethod{types.MethodGet, types.MethodPost}, methods)
}

func TestNormalizeComponentName(t *testing.T) {
	for input, want := range map[string]string{
		"User":                          "User",
		"#/components/schemas/User":     "User",
		"#/definitions/User":            "User",
		"components/schemas/OrderItem":  "OrderItem",
		"definitions/OrderItem":         "OrderItem",
		"NotAPrefix/components/schemas": "NotAPrefix/components/schemas",
	} {
		assert.Equal(t, want, normalizeComponentName(input), input)
	}
}

func TestSchemaParamsDefaults(t *testing.T) {
	p := schemaParams{ComponentName: "User"}
	require.NoError(t, p.validate())
	assert.Equal(t, 3, p.MaxDepth)
	assert.True(t, *p.ResolveDependencies)
	assert.True(t, *p.IncludeExamples)
	assert.True(t, *p.IncludeExtensions)
}

func TestSchemaParamsDepthBounds(t *testing.T) {
	p := schemaParams{ComponentName: "User", MaxDepth: 11}
	err := p.validate()
	require.Error(t, err)
	assert.Equal(t, "maxDepth", srverrors.AsServerError(err).Details["parameter"])
}

func TestExampleParamsPathRequiresMethod(t *testing.T) {
	p := exampleParams{Endpoint: "/api/v1/users", Format: "curl"}
	_, _, err := p.validate()
	require.Error(t, err)
	assert.Equal(t, "method", srverrors.AsServerError(err).Details["parameter"])

	p.Method = "get"
	format, method, err := p.validate()
	require.NoError(t, err)
	assert.Equal(t, example.FormatCurl, format)
	assert.Equal(t, types.MethodGet, method)
	assert.True(t, *p.IncludeAuth)
}

func TestExampleParamsRejectsUnknownFormat(t *testing.T) {
	p := exampleParams{Endpoint: "42", Format: "ruby"}
	_, _, err := p.validate()
	require.Error(t, err)
	assert.Equal(t, "format", srverrors.AsServerError(err).Details["parameter"])
}

func TestCategoriesParamsSortKeys(t *testing.T) {
	p := categoriesParams{}
	require.NoError(t, p.validate())
	assert.Equal(t, "name", p.SortBy)

	p = categoriesParams{SortBy: "endpointCount"}
	require.NoError(t, p.validate())

	p = categoriesParams{SortBy: "popularity"}
	err := p.validate()
	require.Error(t, err)
	assert.Equal(t, "sortBy", srverrors.AsServerError(err).Details["parameter"])
}

func TestDecodeRejectsMismatchedTypes(t *testing.T) {
	var p searchParams
	err := decode(map[string]interface{}{"keywords": map[string]interface{}{"bad": true}}, &p)
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeValidation, srverrors.CodeOf(err))
}

func TestDecodeWeaklyTypedNumbers(t *testing.T) {
	var p searchParams
	require.NoError(t, decode(map[string]interface{}{
		"keywords": "users",
		"page":     float64(2),
		"perPage":  float64(10),
	}, &p))
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 10, p.PerPage)
}
