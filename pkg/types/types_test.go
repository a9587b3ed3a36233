package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHTTPMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    HTTPMethod
		wantErr bool
	}{
		{"get", MethodGet, false},
		{" POST ", MethodPost, false},
		{"Delete", MethodDelete, false},
		{"CONNECT", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseHTTPMethod(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestPathPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"id"}, PathPlaceholders("/api/v1/users/{id}"))
	assert.Equal(t, []string{"orgId", "userId"}, PathPlaceholders("/orgs/{orgId}/users/{userId}"))
	assert.Empty(t, PathPlaceholders("/health"))
}

func TestOperationType(t *testing.T) {
	assert.Equal(t, "read", MethodGet.OperationType("/users/{id}"))
	assert.Equal(t, "list", MethodGet.OperationType("/users"))
	assert.Equal(t, "create", MethodPost.OperationType("/users"))
	assert.Equal(t, "update", MethodPatch.OperationType("/users/{id}"))
	assert.Equal(t, "delete", MethodDelete.OperationType("/users/{id}"))
	assert.Equal(t, "other", MethodOptions.OperationType("/users"))
}

func TestSchemaNodeReferences(t *testing.T) {
	node := &SchemaNode{
		Kind: SchemaKindObject,
		Properties: []Property{
			{Name: "author", Schema: &SchemaNode{Kind: SchemaKindReference, Ref: "User"}},
			{Name: "posts", Schema: &SchemaNode{
				Kind:  SchemaKindArray,
				Items: &SchemaNode{Kind: SchemaKindReference, Ref: "Post"},
			}},
			{Name: "again", Schema: &SchemaNode{Kind: SchemaKindReference, Ref: "User"}},
			{Name: "broken", Schema: &SchemaNode{Kind: SchemaKindReference, Ref: "external.json#/X", Unresolved: true}},
		},
	}
	assert.Equal(t, []string{"User", "Post"}, node.References())
}

func TestDeclaredScopes(t *testing.T) {
	scheme := &SecurityScheme{
		Type: SecurityOAuth2,
		Flows: map[string]OAuthFlow{
			"authorizationCode": {Scopes: map[string]string{"read": "", "write": ""}},
			"clientCredentials": {Scopes: map[string]string{"admin": ""}},
		},
	}
	scopes := scheme.DeclaredScopes()
	assert.True(t, scopes["read"])
	assert.True(t, scopes["write"])
	assert.True(t, scopes["admin"])
	assert.False(t, scopes["delete"])
}
