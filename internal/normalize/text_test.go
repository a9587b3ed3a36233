package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"openapi-mcp-server/pkg/types"
)

func TestStripMarkdown(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "just text", "just text"},
		{"emphasis", "a **bold** and _italic_ claim", "a bold and italic claim"},
		{"link", "see [the docs](https://example.com) here", "see the docs here"},
		{"heading", "# Title\n\nBody text", "Title Body text"},
		{"inline code", "use `curl` for this", "use curl for this"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripMarkdown(tc.in))
		})
	}
}

func TestSearchableEndpointText(t *testing.T) {
	text := SearchableEndpointText(
		"/search-promo/{promoId}",
		"getPromo",
		"Fetch a *promo*",
		"",
		[]string{"Search-Promo"},
		[]string{"promoId"},
		types.Extensions{"x-docs-note": "Promotional lookup shortcuts"},
	)
	assert.Contains(t, text, "search")
	assert.Contains(t, text, "promo")
	assert.Contains(t, text, "getPromo")
	assert.Contains(t, text, "/search-promo/{promoId}")
	assert.Contains(t, text, "Promotional lookup shortcuts")
	assert.NotContains(t, text, "*promo*")
}

func TestSearchableSchemaTextSplitsIdentifiers(t *testing.T) {
	text := SearchableSchemaText("UserAccountSettings", "", "", []string{"created_at"})
	assert.Contains(t, text, "UserAccountSettings")
	assert.Contains(t, text, "user")
	assert.Contains(t, text, "account")
	assert.Contains(t, text, "settings")
	assert.Contains(t, text, "created_at")
}

func TestCanonicalExtensionKey(t *testing.T) {
	assert.Equal(t, "x-aws-apigateway-integration", CanonicalExtensionKey("X-Amazon-Apigateway-Integration"))
	assert.Equal(t, "x-ms-enum", CanonicalExtensionKey("x-azure-enum"))
	assert.Equal(t, "x-custom", CanonicalExtensionKey("x-custom"))
}

func TestClassifyExtension(t *testing.T) {
	cases := []struct {
		key  string
		want ExtensionClass
	}{
		{"x-tagGroups", ExtensionDocumentation},
		{"x-displayName", ExtensionDocumentation},
		{"x-amazon-apigateway-integration", ExtensionVendor},
		{"x-google-backend", ExtensionVendor},
		{"x-ms-enum", ExtensionVendor},
		{"x-go-type", ExtensionLanguage},
		{"x-codegen-request-body-name", ExtensionLanguage},
		{"x-internal", ExtensionBehavior},
		{"x-auth-type", ExtensionSecurity},
		{"x-pagination", ExtensionPagination},
		{"x-whatever", ExtensionCustom},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyExtension(tc.key), tc.key)
	}
}

func TestMergeExtensions(t *testing.T) {
	base := types.Extensions{
		"x-ms-enum": map[string]interface{}{"name": "Color", "modelAsString": false},
		"x-tags":    []interface{}{"alpha"},
	}
	overlay := types.Extensions{
		"x-ms-enum": map[string]interface{}{"modelAsString": true},
		"x-tags":    []interface{}{"beta"},
	}

	override := MergeExtensions(base, overlay, MergeOverride)
	assert.Equal(t, map[string]interface{}{"modelAsString": true}, override["x-ms-enum"])
	assert.Equal(t, []interface{}{"beta"}, override["x-tags"])

	deep := MergeExtensions(base, overlay, MergeDeep)
	assert.Equal(t, map[string]interface{}{"name": "Color", "modelAsString": true}, deep["x-ms-enum"])
	assert.Equal(t, []interface{}{"beta"}, deep["x-tags"])

	combined := MergeExtensions(base, overlay, MergeCombineLists)
	assert.Equal(t, []interface{}{"alpha", "beta"}, combined["x-tags"])

	// Base is untouched.
	assert.Equal(t, false, base["x-ms-enum"].(map[string]interface{})["modelAsString"])
	assert.Len(t, base["x-tags"], 1)
}

func TestExtensionText(t *testing.T) {
	ext := types.Extensions{
		"x-docs-note": "Use the bulk variant for large imports",
		"x-aws-apigateway-integration": map[string]interface{}{
			"uri":  "arn:aws:lambda:us-east-1:123:function:f",
			"note": "Invokes the import worker",
		},
		"x-logo":     "https://example.com/logo.png",
		"x-internal": true,
	}
	text := ExtensionText(ext)
	assert.Contains(t, text, "Use the bulk variant for large imports")
	assert.Contains(t, text, "Invokes the import worker")
	assert.NotContains(t, text, "arn:aws:lambda")
	assert.NotContains(t, text, "https://example.com/logo.png")

	assert.Equal(t, "", ExtensionText(nil))
}
