package mcp

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"openapi-mcp-server/internal/example"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/pkg/types"
)

// decode maps raw tool arguments onto a typed parameter struct.
func decode(params map[string]interface{}, dest interface{}) error {
	cfg := &mapstructure.DecoderConfig{
		Result:           dest,
		WeaklyTypedInput: true,
		TagName:          "json",
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return srverrors.Wrap(srverrors.CodeInternal, "failed to build parameter decoder", err)
	}
	if err := dec.Decode(params); err != nil {
		return srverrors.Wrap(srverrors.CodeValidation, "parameters do not match the tool schema", err).
			WithSuggestions("check parameter names and types against the tool description")
	}
	return nil
}

// searchParams are the arguments of searchEndpoints.
type searchParams struct {
	Keywords      string   `json:"keywords"`
	HTTPMethods   []string `json:"httpMethods"`
	Category      string   `json:"category"`
	CategoryGroup string   `json:"categoryGroup"`
	Page          int      `json:"page"`
	PerPage       int      `json:"perPage"`
}

func (p *searchParams) validate() ([]types.HTTPMethod, error) {
	p.Keywords = strings.TrimSpace(p.Keywords)
	if len(p.Keywords) < 1 || len(p.Keywords) > 500 {
		return nil, srverrors.Validation("keywords", "must be between 1 and 500 characters", p.Keywords).
			WithSuggestions("provide a short phrase describing the endpoint you are looking for")
	}
	var methods []types.HTTPMethod
	seen := map[types.HTTPMethod]bool{}
	for _, raw := range p.HTTPMethods {
		m := types.HTTPMethod(strings.ToUpper(strings.TrimSpace(raw)))
		if !m.Valid() {
			return nil, srverrors.Validation("httpMethods", fmt.Sprintf("unknown method %q", raw), raw).
				WithSuggestions("use GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS or TRACE")
		}
		if !seen[m] {
			seen[m] = true
			methods = append(methods, m)
		}
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Page < 1 {
		return nil, srverrors.Validation("page", "must be at least 1", p.Page)
	}
	if p.PerPage == 0 {
		p.PerPage = 20
	}
	if p.PerPage < 1 || p.PerPage > 50 {
		return nil, srverrors.Validation("perPage", "must be between 1 and 50", p.PerPage)
	}
	p.Category = strings.TrimSpace(p.Category)
	p.CategoryGroup = strings.TrimSpace(p.CategoryGroup)
	if len(p.Category) > 255 {
		return nil, srverrors.Validation("category", "must be at most 255 characters", nil)
	}
	if len(p.CategoryGroup) > 255 {
		return nil, srverrors.Validation("categoryGroup", "must be at most 255 characters", nil)
	}
	return methods, nil
}

// schemaParams are the arguments of getSchema.
type schemaParams struct {
	ComponentName       string `json:"componentName"`
	ResolveDependencies *bool  `json:"resolveDependencies"`
	MaxDepth            int    `json:"maxDepth"`
	IncludeExamples     *bool  `json:"includeExamples"`
	IncludeExtensions   *bool  `json:"includeExtensions"`
}

// normalizeComponentName strips the accepted reference prefixes down to the
// bare component name.
func normalizeComponentName(name string) string {
	for _, prefix := range []string{
		"#/components/schemas/", "#/definitions/", "components/schemas/", "definitions/",
	} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}

func (p *schemaParams) validate() error {
	p.ComponentName = strings.TrimSpace(p.ComponentName)
	if p.ComponentName == "" || len(p.ComponentName) > 255 {
		return srverrors.Validation("componentName", "must be between 1 and 255 characters", p.ComponentName).
			WithSuggestions("pass the schema name, e.g. \"User\" or \"#/components/schemas/User\"")
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = 3
	}
	if p.MaxDepth < 1 || p.MaxDepth > 10 {
		return srverrors.Validation("maxDepth", "must be between 1 and 10", p.MaxDepth)
	}
	if p.ResolveDependencies == nil {
		p.ResolveDependencies = boolPtr(true)
	}
	if p.IncludeExamples == nil {
		p.IncludeExamples = boolPtr(true)
	}
	if p.IncludeExtensions == nil {
		p.IncludeExtensions = boolPtr(true)
	}
	return nil
}

// exampleParams are the arguments of getExample.
type exampleParams struct {
	Endpoint    string `json:"endpoint"`
	Method      string `json:"method"`
	Format      string `json:"format"`
	IncludeAuth *bool  `json:"includeAuth"`
	BaseURL     string `json:"baseUrl"`
}

func (p *exampleParams) validate() (example.Format, types.HTTPMethod, error) {
	p.Endpoint = strings.TrimSpace(p.Endpoint)
	if p.Endpoint == "" {
		return "", "", srverrors.Validation("endpoint", "must not be empty", nil).
			WithSuggestions("pass an endpoint id or a path like /api/v1/users/{id}")
	}
	format := example.Format(p.Format)
	if !format.Valid() {
		return "", "", srverrors.Validation("format", fmt.Sprintf("unsupported format %q", p.Format), p.Format).
			WithSuggestions("use one of: curl, http-client, script")
	}
	var method types.HTTPMethod
	if strings.HasPrefix(p.Endpoint, "/") {
		method = types.HTTPMethod(strings.ToUpper(strings.TrimSpace(p.Method)))
		if method == "" {
			return "", "", srverrors.Validation("method", "required when endpoint is a path", nil).
				WithSuggestions("add a method, e.g. GET or POST")
		}
		if !method.Valid() {
			return "", "", srverrors.Validation("method", fmt.Sprintf("unknown method %q", p.Method), p.Method)
		}
	}
	if p.IncludeAuth == nil {
		p.IncludeAuth = boolPtr(true)
	}
	return format, method, nil
}

// categoriesParams are the arguments of getEndpointCategories.
type categoriesParams struct {
	CategoryGroup string `json:"categoryGroup"`
	IncludeEmpty  bool   `json:"includeEmpty"`
	SortBy        string `json:"sortBy"`
}

func (p *categoriesParams) validate() error {
	p.CategoryGroup = strings.TrimSpace(p.CategoryGroup)
	if p.SortBy == "" {
		p.SortBy = "name"
	}
	switch p.SortBy {
	case "name", "endpointCount", "group":
	default:
		return srverrors.Validation("sortBy", fmt.Sprintf("unknown sort key %q", p.SortBy), p.SortBy).
			WithSuggestions("use one of: name, endpointCount, group")
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
