package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/pkg/types"
)

func newProcessor(t *testing.T) *QueryProcessor {
	t.Helper()
	p, err := NewQueryProcessor("")
	require.NoError(t, err)
	return p
}

func TestProcessSimpleQuery(t *testing.T) {
	pq := newProcessor(t).Process("list pets")

	assert.Equal(t, QuerySimple, pq.Type)
	assert.Equal(t, []string{"list", "pet"}, pq.Terms)
	assert.Empty(t, pq.FieldFilters)
	assert.Empty(t, pq.ExcludedTerms)
}

func TestProcessDropsStopWordsKeepsDomainTokens(t *testing.T) {
	pq := newProcessor(t).Process("how do i get the auth token for an api")

	assert.NotContains(t, pq.Terms, "how")
	assert.NotContains(t, pq.Terms, "the")
	assert.Contains(t, pq.Terms, "get")
	assert.Contains(t, pq.Terms, "auth")
	assert.Contains(t, pq.Terms, "api")
}

func TestProcessFieldFilters(t *testing.T) {
	pq := newProcessor(t).Process(`path:/users method:POST create`)

	assert.Equal(t, QueryFieldSpecific, pq.Type)
	assert.Equal(t, []types.HTTPMethod{types.MethodPost}, pq.Methods)
	require.Len(t, pq.FieldFilters, 1)
	assert.Equal(t, "path", pq.FieldFilters[0].Field)
	assert.Equal(t, "/users", pq.FieldFilters[0].Value)
	assert.Equal(t, []string{"create"}, pq.Terms)
}

func TestProcessQuotedFieldValue(t *testing.T) {
	pq := newProcessor(t).Process(`param:"user id" search`)

	require.Len(t, pq.FieldFilters, 1)
	assert.Equal(t, "user id", pq.FieldFilters[0].Value)
}

func TestProcessUnknownFieldStaysATerm(t *testing.T) {
	pq := newProcessor(t).Process("foo:bar pets")

	assert.Empty(t, pq.FieldFilters)
	assert.Contains(t, pq.Terms, "foobar")
}

func TestProcessBooleanOperators(t *testing.T) {
	pq := newProcessor(t).Process("pets AND orders NOT billing")

	assert.Equal(t, QueryBoolean, pq.Type)
	assert.Equal(t, []string{"AND", "NOT"}, pq.Operators)
	assert.Equal(t, []string{"billing"}, pq.ExcludedTerms)
	assert.Equal(t, []string{"pet", "order"}, pq.Terms)
}

func TestProcessSynonymExpansion(t *testing.T) {
	pq := newProcessor(t).Process("auth")

	assert.Contains(t, pq.EnhancedTerms, "authentication")
	assert.Contains(t, pq.EnhancedTerms, "login")
}

func TestProcessSynonymOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pet:\n  - animal\n  - companion\n"), 0o644))

	p, err := NewQueryProcessor(path)
	require.NoError(t, err)

	pq := p.Process("pet")
	assert.Contains(t, pq.EnhancedTerms, "animal")
	assert.Contains(t, pq.EnhancedTerms, "companion")
}

func TestProcessFuzzyOnlyLongTerms(t *testing.T) {
	pq := newProcessor(t).Process("get payment")

	assert.NotContains(t, pq.FuzzyTerms, "get")
	assert.Contains(t, pq.FuzzyTerms, "payment")
}

func TestStemming(t *testing.T) {
	cases := map[string]string{
		"pets":      "pet",
		"created":   "creat",
		"searching": "search",
		"get":       "get",
		"status":    "status",
		"class":     "class",
	}
	for in, want := range cases {
		assert.Equal(t, want, stem(in), in)
	}
}

func TestMatchExpressionGroupsTermsAndSynonyms(t *testing.T) {
	p := newProcessor(t)
	pq := p.Process("auth")

	expr := p.MatchExpression(pq)
	assert.Contains(t, expr, `"auth"`)
	assert.Contains(t, expr, `"auth"*`)
	assert.Contains(t, expr, `"authentication"`)
	assert.Contains(t, expr, " OR ")
}

func TestMatchExpressionExcludesNotTerms(t *testing.T) {
	p := newProcessor(t)
	pq := p.Process("pets NOT billing")

	expr := p.MatchExpression(pq)
	assert.Contains(t, expr, `NOT "billing"`)
}

func TestMatchExpressionScopesPathFilter(t *testing.T) {
	p := newProcessor(t)
	pq := p.Process("path:/users list")

	expr := p.MatchExpression(pq)
	assert.Contains(t, expr, `path:"/users"`)
}

func TestNaturalLanguageClassification(t *testing.T) {
	pq := newProcessor(t).Process("show me every endpoint that can upload profile pictures")
	assert.Equal(t, QueryNaturalLanguage, pq.Type)
}
