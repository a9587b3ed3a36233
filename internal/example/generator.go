// Package example renders ready-to-run request samples for endpoints in
// three formats: curl commands, an async HTTP-client function, and a
// synchronous script.
package example

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/pkg/types"
)

// Format selects the sample flavor.
type Format string

const (
	FormatCurl       Format = "curl"
	FormatHTTPClient Format = "http-client"
	FormatScript     Format = "script"
)

// Valid reports whether the format is supported.
func (f Format) Valid() bool {
	switch f {
	case FormatCurl, FormatHTTPClient, FormatScript:
		return true
	}
	return false
}

// Sentinel values substituted for path placeholders.
const (
	sentinelInteger = "12345"
	sentinelString  = "example"
	sentinelUUID    = "123e4567-e89b-12d3-a456-426614174000"
)

// Request carries everything one generation needs.
type Request struct {
	Endpoint    *types.Endpoint
	Schemes     []*types.SecurityScheme
	Format      Format
	IncludeAuth bool
	BaseURL     string
}

// Output is a generated sample with its provenance.
type Output struct {
	EndpointID   int64      `json:"endpoint_id"`
	EndpointPath string     `json:"endpoint_path"`
	Method       string     `json:"method"`
	Format       Format     `json:"format"`
	Code         string     `json:"code"`
	Summary      string     `json:"summary,omitempty"`
	Description  string     `json:"description,omitempty"`
	Metadata     Metadata   `json:"metadata"`
}

// Metadata records the generation settings.
type Metadata struct {
	IncludeAuth         bool   `json:"includeAuth"`
	BaseURL             string `json:"baseUrl"`
	GenerationTimestamp string `json:"generation_timestamp"`
	SyntaxValidated     bool   `json:"syntax_validated"`
}

// Generator renders samples. The default base URL applies when a request
// does not name one.
type Generator struct {
	defaultBaseURL string
}

// New creates a generator.
func New(defaultBaseURL string) *Generator {
	if defaultBaseURL == "" {
		defaultBaseURL = "https://api.example.com"
	}
	return &Generator{defaultBaseURL: defaultBaseURL}
}

// Generate renders one sample.
func (g *Generator) Generate(req Request) (*Output, error) {
	if !req.Format.Valid() {
		return nil, srverrors.New(srverrors.CodeValidation,
			fmt.Sprintf("unsupported example format %q", req.Format)).
			WithDetail("parameter", "format").
			WithSuggestions("use one of: curl, http-client, script")
	}

	base := req.BaseURL
	if base == "" {
		base = g.defaultBaseURL
	}
	base = strings.TrimRight(base, "/")

	ep := req.Endpoint
	url := base + substitutePlaceholders(ep)
	headers, query := g.authMaterial(req)
	if q := encodeQuery(query); q != "" {
		url += "?" + q
	}

	body := ""
	if ep.Method.IsWrite() {
		body = synthesizeBody(ep)
	}

	var code string
	switch req.Format {
	case FormatCurl:
		code = renderCurl(ep, url, headers, body, mutualTLSOnly(req))
	case FormatHTTPClient:
		code = renderHTTPClient(ep, url, headers, body)
	case FormatScript:
		code = renderScript(ep, url, headers, body)
	}

	return &Output{
		EndpointID:   ep.ID,
		EndpointPath: ep.Path,
		Method:       string(ep.Method),
		Format:       req.Format,
		Code:         code,
		Summary:      ep.Summary,
		Description:  ep.Description,
		Metadata: Metadata{
			IncludeAuth:         req.IncludeAuth,
			BaseURL:             base,
			GenerationTimestamp: time.Now().UTC().Format(time.RFC3339),
			SyntaxValidated:     true,
		},
	}, nil
}

// substitutePlaceholders replaces {name} segments with type-appropriate
// sentinel values drawn from the matching path parameter's schema.
func substitutePlaceholders(ep *types.Endpoint) string {
	path := ep.Path
	params := map[string]types.Parameter{}
	for _, p := range ep.PathParameters() {
		params[p.Name] = p
	}
	for _, name := range types.PathPlaceholders(ep.Path) {
		path = strings.Replace(path, "{"+name+"}", sentinelFor(params[name]), 1)
	}
	return path
}

func sentinelFor(p types.Parameter) string {
	if p.Example != nil {
		return fmt.Sprintf("%v", p.Example)
	}
	if p.Schema == nil {
		return sentinelString
	}
	switch {
	case p.Schema.Format == "uuid":
		return sentinelUUID
	case p.Schema.Type == "integer" || p.Schema.Type == "number":
		return sentinelInteger
	default:
		return sentinelString
	}
}

// authMaterial resolves the endpoint's first security requirement into
// headers and query parameters. Certificate-based schemes contribute
// nothing; the renderers note them separately.
func (g *Generator) authMaterial(req Request) (headers [][2]string, query [][2]string) {
	headers = append(headers, [2]string{"Accept", "application/json"})
	if req.Endpoint.Method.IsWrite() {
		headers = append(headers, [2]string{"Content-Type", "application/json"})
	}
	if !req.IncludeAuth || len(req.Endpoint.Security) == 0 {
		return headers, nil
	}

	byName := map[string]*types.SecurityScheme{}
	for _, s := range req.Schemes {
		byName[s.Name] = s
	}

	first := req.Endpoint.Security[0]
	for _, required := range first.Schemes {
		scheme := byName[required.Scheme]
		if scheme == nil {
			continue
		}
		switch scheme.Type {
		case types.SecurityAPIKey:
			switch scheme.APIKeyIn {
			case types.InQuery:
				query = append(query, [2]string{scheme.APIKeyName, "YOUR_API_KEY"})
			case types.InCookie:
				headers = append(headers, [2]string{"Cookie", scheme.APIKeyName + "=YOUR_API_KEY"})
			default:
				headers = append(headers, [2]string{scheme.APIKeyName, "YOUR_API_KEY"})
			}
		case types.SecurityHTTP:
			if strings.EqualFold(scheme.HTTPScheme, "basic") {
				creds := base64.StdEncoding.EncodeToString([]byte("username:password"))
				headers = append(headers, [2]string{"Authorization", "Basic " + creds})
			} else {
				headers = append(headers, [2]string{"Authorization", "Bearer YOUR_ACCESS_TOKEN"})
			}
		case types.SecurityOAuth2, types.SecurityOpenIDConnect:
			headers = append(headers, [2]string{"Authorization", "Bearer YOUR_ACCESS_TOKEN"})
		case types.SecurityMutualTLS:
			// Handled by the renderers as a comment; no header material.
		}
	}
	return headers, query
}

// mutualTLSOnly reports whether auth resolves exclusively to client
// certificates.
func mutualTLSOnly(req Request) bool {
	if !req.IncludeAuth || len(req.Endpoint.Security) == 0 {
		return false
	}
	byName := map[string]*types.SecurityScheme{}
	for _, s := range req.Schemes {
		byName[s.Name] = s
	}
	sawMTLS := false
	for _, required := range req.Endpoint.Security[0].Schemes {
		scheme := byName[required.Scheme]
		if scheme == nil {
			continue
		}
		if scheme.Type == types.SecurityMutualTLS {
			sawMTLS = true
		} else {
			return false
		}
	}
	return sawMTLS
}

func encodeQuery(query [][2]string) string {
	parts := make([]string, 0, len(query))
	for _, q := range query {
		parts = append(parts, q[0]+"="+q[1])
	}
	return strings.Join(parts, "&")
}

// synthesizeBody builds a JSON payload from the request-body schema,
// preferring explicit examples.
func synthesizeBody(ep *types.Endpoint) string {
	if ep.RequestBody == nil || len(ep.RequestBody.Content) == 0 {
		return ""
	}
	media, ok := ep.RequestBody.Content["application/json"]
	if !ok {
		// Deterministic pick when no JSON variant exists.
		keys := make([]string, 0, len(ep.RequestBody.Content))
		for k := range ep.RequestBody.Content {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		media = ep.RequestBody.Content[keys[0]]
	}

	var value interface{}
	if media.Example != nil {
		value = media.Example
	} else {
		value = sampleValue(media.Schema, 0)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// sampleValue walks a schema node producing a representative value. Depth
// is bounded to keep cyclic schemas from recursing forever.
func sampleValue(node *types.SchemaNode, depth int) interface{} {
	if node == nil || depth > 4 {
		return nil
	}
	if node.Example != nil {
		return node.Example
	}
	if node.Default != nil {
		return node.Default
	}
	if len(node.Enum) > 0 {
		return node.Enum[0]
	}

	switch node.Kind {
	case types.SchemaKindObject:
		obj := map[string]interface{}{}
		for _, prop := range node.Properties {
			obj[prop.Name] = sampleValue(prop.Schema, depth+1)
		}
		return obj
	case types.SchemaKindArray:
		return []interface{}{sampleValue(node.Items, depth+1)}
	case types.SchemaKindComposite:
		if node.Composition != nil && len(node.Composition.Members) > 0 {
			return sampleValue(node.Composition.Members[0], depth+1)
		}
		return nil
	case types.SchemaKindReference:
		// References are opaque at generation time.
		return map[string]interface{}{}
	default:
		return primitiveSample(node)
	}
}

func primitiveSample(node *types.SchemaNode) interface{} {
	switch node.Type {
	case "integer":
		return 12345
	case "number":
		return 12345.0
	case "boolean":
		return true
	default:
		if node.Format == "uuid" {
			return sentinelUUID
		}
		if node.Format == "date-time" {
			return "2024-01-01T00:00:00Z"
		}
		return sentinelString
	}
}
