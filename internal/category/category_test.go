package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/pkg/types"
)

func obj(pairs ...interface{}) *parser.Object {
	o := parser.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1])
	}
	return o
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Search-Promo", "search_promo"},
		{"User Accounts", "user_accounts"},
		{"  Pets  ", "pets"},
		{"Café", "café"},
		{"already_normal", "already_normal"},
		{"Pets!", "pets"},
		{"a/b (beta)", "ab_beta"},
		{"!!!", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), tc.in)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Search-Promo", DisplayName("search_promo"))
	assert.Equal(t, "Pets", DisplayName("pets"))
	assert.Equal(t, "User-Account-Settings", DisplayName("user_account_settings"))
	assert.Equal(t, "", DisplayName(""))
}

func TestAssignThreeTiers(t *testing.T) {
	tagged := &types.Endpoint{Path: "/anything", Tags: []string{"Search-Promo"}}
	assert.Equal(t, "search_promo", Assign(tagged))

	byPath := &types.Endpoint{Path: "/v1/orders/{orderId}"}
	assert.Equal(t, "orders", Assign(byPath))

	placeholderFirst := &types.Endpoint{Path: "/{tenant}/billing"}
	assert.Equal(t, "billing", Assign(placeholderFirst))

	bare := &types.Endpoint{Path: "/"}
	assert.Equal(t, FallbackCategory, Assign(bare))
}

func TestAssignSkipsGenericSegments(t *testing.T) {
	cases := []struct{ path, want string }{
		{"/api/v1/users/statistics", "statistics"},
		{"/api/v2/orders", "orders"},
		{"/users/{id}/settings", "settings"},
		{"/api/v1/users", FallbackCategory},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Assign(&types.Endpoint{Path: tc.path}), tc.path)
	}
}

func TestBuildAppliesTagGroups(t *testing.T) {
	root := obj(
		"x-tagGroups", []interface{}{
			obj("name", "Commerce", "tags", []interface{}{"Orders", "Payments"}),
		},
		"tags", []interface{}{
			obj("name", "Orders", "description", "Order management", "x-displayName", "Order Operations"),
			obj("name", "Payments", "description", "Payment processing"),
		},
	)
	endpoints := []*types.Endpoint{
		{Path: "/orders", Method: types.MethodGet, Tags: []string{"Orders"}},
		{Path: "/orders", Method: types.MethodPost, Tags: []string{"Orders"}},
		{Path: "/payments", Method: types.MethodPost, Tags: []string{"Payments"}},
		{Path: "/misc", Method: types.MethodGet},
	}
	catalog := Build(root, endpoints)

	orders, ok := catalog.Lookup("orders")
	require.True(t, ok)
	assert.Equal(t, 2, orders.EndpointCount)
	assert.Equal(t, "Commerce", orders.Group)
	assert.Equal(t, "Order management", orders.Description)
	assert.Equal(t, "Order Operations", orders.DisplayName, "x-displayName wins over the derived form")
	assert.Equal(t, []string{"GET", "POST"}, orders.HTTPMethods)

	payments, ok := catalog.Lookup("payments")
	require.True(t, ok)
	assert.Equal(t, "Payments", payments.DisplayName, "derived form without x-displayName")

	groups := catalog.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "Commerce", groups[0].Name)
	assert.Equal(t, []string{"orders", "payments"}, groups[0].Categories)
	assert.Equal(t, 3, groups[0].TotalEndpoints)

	assert.Equal(t, "Commerce", endpoints[0].CategoryGroup)
	assert.Empty(t, endpoints[3].CategoryGroup)
}

func TestCategoriesSorting(t *testing.T) {
	catalog := NewCatalog()
	catalog.Observe(&types.Endpoint{Category: "pets", Method: types.MethodGet}, TagInfo{})
	catalog.Observe(&types.Endpoint{Category: "pets", Method: types.MethodPost}, TagInfo{})
	catalog.Observe(&types.Endpoint{Category: "orders", CategoryGroup: "Commerce", Method: types.MethodGet}, TagInfo{})
	catalog.Observe(&types.Endpoint{Category: "users", CategoryGroup: "Admin", Method: types.MethodGet}, TagInfo{})

	byName := catalog.Categories(SortByName)
	assert.Equal(t, []string{"orders", "pets", "users"}, names(byName))

	byCount := catalog.Categories(SortByEndpointCount)
	assert.Equal(t, "pets", byCount[0].Name)

	byGroup := catalog.Categories(SortByGroup)
	assert.Equal(t, "pets", byGroup[0].Name, "ungrouped sorts first on empty group")
	assert.Equal(t, "users", byGroup[1].Name)
	assert.Equal(t, "orders", byGroup[2].Name)
}

func TestSortByValid(t *testing.T) {
	assert.True(t, SortByName.Valid())
	assert.True(t, SortByEndpointCount.Valid())
	assert.True(t, SortByGroup.Valid())
	assert.False(t, SortBy("popularity").Valid())
}

func names(cats []types.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.Name
	}
	return out
}
