package types

// SecuritySchemeType enumerates the OpenAPI security scheme families.
type SecuritySchemeType string

const (
	SecurityAPIKey        SecuritySchemeType = "apiKey"
	SecurityHTTP          SecuritySchemeType = "http"
	SecurityOAuth2        SecuritySchemeType = "oauth2"
	SecurityOpenIDConnect SecuritySchemeType = "openIdConnect"
	SecurityMutualTLS     SecuritySchemeType = "mutualTLS"
)

// Valid reports whether the type is a known scheme family.
func (t SecuritySchemeType) Valid() bool {
	switch t {
	case SecurityAPIKey, SecurityHTTP, SecurityOAuth2, SecurityOpenIDConnect, SecurityMutualTLS:
		return true
	}
	return false
}

// OAuthFlow is one flow entry of an oauth2 scheme.
type OAuthFlow struct {
	AuthorizationURL string            `json:"authorization_url,omitempty"`
	TokenURL         string            `json:"token_url,omitempty"`
	RefreshURL       string            `json:"refresh_url,omitempty"`
	Scopes           map[string]string `json:"scopes,omitempty"`
}

// SecurityScheme is a named entry of components.securitySchemes (or
// securityDefinitions in Swagger 2.0).
type SecurityScheme struct {
	ID          int64              `json:"id"`
	APIID       int64              `json:"api_id"`
	Name        string             `json:"name"`
	Type        SecuritySchemeType `json:"type"`
	Description string             `json:"description,omitempty"`

	// apiKey
	APIKeyName string            `json:"api_key_name,omitempty"`
	APIKeyIn   ParameterLocation `json:"api_key_in,omitempty"`

	// http
	HTTPScheme   string `json:"http_scheme,omitempty"`
	BearerFormat string `json:"bearer_format,omitempty"`

	// oauth2: flow name -> flow
	Flows map[string]OAuthFlow `json:"flows,omitempty"`

	// openIdConnect
	OpenIDConnectURL string `json:"openid_connect_url,omitempty"`

	Extensions     Extensions `json:"extensions,omitempty"`
	ReferenceCount int        `json:"reference_count"`
}

// DeclaredScopes returns the union of scope names across all flows.
func (s *SecurityScheme) DeclaredScopes() map[string]bool {
	out := map[string]bool{}
	for _, flow := range s.Flows {
		for scope := range flow.Scopes {
			out[scope] = true
		}
	}
	return out
}

// Category is one catalog row aggregated across endpoints.
type Category struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name"`
	Description   string   `json:"description,omitempty"`
	Group         string   `json:"group,omitempty"`
	EndpointCount int      `json:"endpoint_count"`
	HTTPMethods   []string `json:"http_methods,omitempty"`
}

// CategoryGroup aggregates categories under an x-tagGroups group name.
type CategoryGroup struct {
	Name           string   `json:"name"`
	Categories     []string `json:"categories"`
	TotalEndpoints int      `json:"total_endpoints"`
}
