package normalize

import (
	"fmt"

	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/pkg/types"
)

// NormalizeSecuritySchemes converts components.securitySchemes (or Swagger
// securityDefinitions) into typed schemes, checking the required fields of
// each scheme family.
func NormalizeSecuritySchemes(root *parser.Object) ([]*types.SecurityScheme, []parser.ParseError) {
	section, basePath := securitySection(root)
	if section == nil {
		return nil, nil
	}

	var schemes []*types.SecurityScheme
	var errs []parser.ParseError

	for _, name := range section.Keys() {
		obj, ok := section.GetObject(name)
		if !ok {
			errs = append(errs, parser.ParseError{
				Kind:    parser.FaultWrongType,
				Path:    basePath + name,
				Message: fmt.Sprintf("security scheme %q must be an object", name),
			})
			continue
		}
		scheme, schemeErrs := buildSecurityScheme(name, basePath+name, obj)
		errs = append(errs, schemeErrs...)
		if scheme != nil {
			schemes = append(schemes, scheme)
		}
	}
	return schemes, errs
}

func securitySection(root *parser.Object) (*parser.Object, string) {
	if components, ok := root.GetObject("components"); ok {
		if schemes, ok := components.GetObject("securitySchemes"); ok {
			return schemes, "$.components.securitySchemes."
		}
		return nil, ""
	}
	if defs, ok := root.GetObject("securityDefinitions"); ok {
		return defs, "$.securityDefinitions."
	}
	return nil, ""
}

func buildSecurityScheme(name, jsonPath string, obj *parser.Object) (*types.SecurityScheme, []parser.ParseError) {
	var errs []parser.ParseError
	fail := func(msg, suggestion string) {
		errs = append(errs, parser.ParseError{
			Kind:       parser.FaultMissingField,
			Path:       jsonPath,
			Message:    msg,
			Suggestion: suggestion,
		})
	}

	rawType, _ := obj.GetString("type")
	schemeType := types.SecuritySchemeType(rawType)
	// Swagger 2.0 used "basic" as its own type.
	if rawType == "basic" {
		schemeType = types.SecurityHTTP
	}
	if !schemeType.Valid() {
		fail(fmt.Sprintf("security scheme %q has unsupported type %q", name, rawType),
			"valid types are apiKey, http, oauth2, openIdConnect, mutualTLS")
		return nil, errs
	}

	s := &types.SecurityScheme{Name: name, Type: schemeType}
	s.Description, _ = obj.GetString("description")
	s.Extensions = collectExtensions(obj)

	switch schemeType {
	case types.SecurityAPIKey:
		s.APIKeyName, _ = obj.GetString("name")
		if in, ok := obj.GetString("in"); ok {
			s.APIKeyIn = types.ParameterLocation(in)
		}
		if s.APIKeyName == "" {
			fail(fmt.Sprintf("apiKey scheme %q is missing 'name'", name), "set 'name' to the header or query parameter carrying the key")
		}
		if !s.APIKeyIn.Valid() || s.APIKeyIn == types.InPath {
			fail(fmt.Sprintf("apiKey scheme %q has invalid location %q", name, s.APIKeyIn), "use 'header', 'query', or 'cookie'")
		}
	case types.SecurityHTTP:
		s.HTTPScheme, _ = obj.GetString("scheme")
		s.BearerFormat, _ = obj.GetString("bearerFormat")
		if rawType == "basic" {
			s.HTTPScheme = "basic"
		}
		if s.HTTPScheme == "" {
			fail(fmt.Sprintf("http scheme %q is missing 'scheme'", name), "set 'scheme' to e.g. 'bearer' or 'basic'")
		}
	case types.SecurityOAuth2:
		s.Flows = buildOAuthFlows(obj)
		if len(s.Flows) == 0 {
			fail(fmt.Sprintf("oauth2 scheme %q declares no flows", name), "add a 'flows' object with at least one flow")
		}
	case types.SecurityOpenIDConnect:
		s.OpenIDConnectURL, _ = obj.GetString("openIdConnectUrl")
		if s.OpenIDConnectURL == "" {
			fail(fmt.Sprintf("openIdConnect scheme %q is missing 'openIdConnectUrl'", name), "set 'openIdConnectUrl' to the discovery document URL")
		}
	case types.SecurityMutualTLS:
		// Certificate material never flows through the knowledge base.
	}
	return s, errs
}

func buildOAuthFlows(obj *parser.Object) map[string]types.OAuthFlow {
	flowsObj, ok := obj.GetObject("flows")
	if !ok {
		// Swagger 2.0 declares one implicit flow on the scheme itself.
		if flowName, ok := obj.GetString("flow"); ok {
			flow := types.OAuthFlow{}
			flow.AuthorizationURL, _ = obj.GetString("authorizationUrl")
			flow.TokenURL, _ = obj.GetString("tokenUrl")
			flow.Scopes = stringMap(obj, "scopes")
			return map[string]types.OAuthFlow{flowName: flow}
		}
		return nil
	}
	out := map[string]types.OAuthFlow{}
	for _, flowName := range flowsObj.Keys() {
		flowObj, ok := flowsObj.GetObject(flowName)
		if !ok {
			continue
		}
		flow := types.OAuthFlow{}
		flow.AuthorizationURL, _ = flowObj.GetString("authorizationUrl")
		flow.TokenURL, _ = flowObj.GetString("tokenUrl")
		flow.RefreshURL, _ = flowObj.GetString("refreshUrl")
		flow.Scopes = stringMap(flowObj, "scopes")
		out[flowName] = flow
	}
	return out
}

func stringMap(obj *parser.Object, key string) map[string]string {
	inner, ok := obj.GetObject(key)
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, k := range inner.Keys() {
		v, _ := inner.GetString(k)
		out[k] = v
	}
	return out
}

// ValidateSecurityReferences checks that every scheme an endpoint references
// exists and that requested scopes are declared by oauth2 schemes. It also
// fills in scheme reference counts.
func ValidateSecurityReferences(endpoints []*types.Endpoint, schemes []*types.SecurityScheme) []parser.ParseError {
	byName := map[string]*types.SecurityScheme{}
	for _, s := range schemes {
		byName[s.Name] = s
	}

	var errs []parser.ParseError
	for _, ep := range endpoints {
		for _, req := range ep.Security {
			for _, sc := range req.Schemes {
				scheme, ok := byName[sc.Scheme]
				if !ok {
					errs = append(errs, parser.ParseError{
						Kind:    parser.FaultMissingField,
						Path:    fmt.Sprintf("$.paths['%s'].%s.security", ep.Path, ep.Method),
						Message: fmt.Sprintf("endpoint references undefined security scheme %q", sc.Scheme),
					})
					continue
				}
				scheme.ReferenceCount++
				if scheme.Type == types.SecurityOAuth2 {
					declared := scheme.DeclaredScopes()
					for _, scope := range sc.Scopes {
						if !declared[scope] {
							errs = append(errs, parser.ParseError{
								Kind:    parser.FaultMissingField,
								Path:    fmt.Sprintf("$.paths['%s'].%s.security", ep.Path, ep.Method),
								Message: fmt.Sprintf("scope %q is not declared by scheme %q", scope, sc.Scheme),
							})
						}
					}
				}
			}
		}
	}
	return errs
}
