package normalize

import (
	"fmt"
	"strings"

	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/pkg/types"
)

// NormalizeEndpoints flattens paths into one Endpoint per (path, method),
// merging path-level parameters into each operation and applying the
// document-level security fallback.
func NormalizeEndpoints(root *parser.Object) ([]*types.Endpoint, []parser.ParseError) {
	paths, ok := root.GetObject("paths")
	if !ok {
		return nil, nil
	}
	globalSecurity := buildSecurityRequirements(root)

	var endpoints []*types.Endpoint
	var errs []parser.ParseError

	for _, pathKey := range paths.Keys() {
		if strings.HasPrefix(pathKey, "x-") {
			continue
		}
		item, ok := paths.GetObject(pathKey)
		if !ok {
			continue
		}
		pathParams := buildParameters(item)

		for _, methodKey := range item.Keys() {
			method, err := types.ParseHTTPMethod(methodKey)
			if err != nil {
				continue
			}
			op, ok := item.GetObject(methodKey)
			if !ok {
				errs = append(errs, parser.ParseError{
					Kind:    parser.FaultWrongType,
					Path:    fmt.Sprintf("$.paths['%s'].%s", pathKey, methodKey),
					Message: "operation must be an object",
				})
				continue
			}
			ep := buildEndpoint(pathKey, method, op, pathParams, globalSecurity)
			validatePathParameters(ep, &errs)
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints, errs
}

func buildEndpoint(path string, method types.HTTPMethod, op *parser.Object, pathParams []types.Parameter, globalSecurity []types.SecurityRequirement) *types.Endpoint {
	ep := &types.Endpoint{Path: path, Method: method}
	ep.OperationID, _ = op.GetString("operationId")
	ep.Summary, _ = op.GetString("summary")
	ep.Description, _ = op.GetString("description")
	ep.Deprecated, _ = op.GetBool("deprecated")
	ep.Extensions = collectExtensions(op)

	if tags, ok := op.GetArray("tags"); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				ep.Tags = append(ep.Tags, s)
			}
		}
	}

	ep.Parameters = mergeParameters(pathParams, buildParameters(op))

	if body, ok := op.GetObject("requestBody"); ok {
		ep.RequestBody = buildRequestBody(body)
	}
	if responses, ok := op.GetObject("responses"); ok {
		ep.Responses = buildResponses(responses)
	}

	// Operation-level security overrides the document default; an explicit
	// empty array removes the requirement entirely.
	if secRaw, ok := op.Get("security"); ok {
		if arr, ok := secRaw.([]interface{}); ok {
			ep.Security = securityFromArray(arr)
		}
	} else {
		ep.Security = globalSecurity
	}

	ep.SchemaDependencies = collectSchemaDependencies(ep)
	ep.SecurityDependencies = collectSecurityDependencies(ep)
	ep.SearchableText = SearchableEndpointText(ep.Path, ep.OperationID, ep.Summary, ep.Description, ep.Tags, parameterNames(ep.Parameters), ep.Extensions)
	return ep
}

// mergeParameters combines path-level and operation-level parameters. An
// operation parameter replaces a path parameter with the same (name, in).
func mergeParameters(pathLevel, opLevel []types.Parameter) []types.Parameter {
	type key struct {
		name string
		in   types.ParameterLocation
	}
	index := map[key]int{}
	var out []types.Parameter
	for _, p := range pathLevel {
		index[key{p.Name, p.In}] = len(out)
		out = append(out, p)
	}
	for _, p := range opLevel {
		if i, exists := index[key{p.Name, p.In}]; exists {
			out[i] = p
			continue
		}
		index[key{p.Name, p.In}] = len(out)
		out = append(out, p)
	}
	return out
}

func buildParameters(owner *parser.Object) []types.Parameter {
	raw, ok := owner.GetArray("parameters")
	if !ok {
		return nil
	}
	var out []types.Parameter
	for _, item := range raw {
		obj, ok := item.(*parser.Object)
		if !ok {
			continue
		}
		p := types.Parameter{}
		p.Name, _ = obj.GetString("name")
		if in, ok := obj.GetString("in"); ok {
			p.In = types.ParameterLocation(in)
		}
		p.Required, _ = obj.GetBool("required")
		p.Description, _ = obj.GetString("description")
		p.Deprecated, _ = obj.GetBool("deprecated")
		p.Extensions = collectExtensions(obj)
		if schema, ok := obj.Get("schema"); ok {
			p.Schema = BuildSchemaNode(schema)
		} else if t, ok := obj.GetString("type"); ok {
			// Swagger 2.0 inlines the type on the parameter itself.
			format, _ := obj.GetString("format")
			p.Schema = &types.SchemaNode{Kind: types.SchemaKindPrimitive, Type: t, Format: format}
		}
		if ex, ok := obj.Get("example"); ok {
			p.Example = parser.Plain(ex)
		}
		// Path parameters are always required.
		if p.In == types.InPath {
			p.Required = true
		}
		if p.Name == "" || !p.In.Valid() {
			continue
		}
		out = append(out, p)
	}
	return out
}

func buildRequestBody(obj *parser.Object) *types.RequestBody {
	rb := &types.RequestBody{}
	rb.Description, _ = obj.GetString("description")
	rb.Required, _ = obj.GetBool("required")
	if content, ok := obj.GetObject("content"); ok {
		rb.Content = buildContent(content)
	}
	return rb
}

func buildResponses(obj *parser.Object) map[string]types.Response {
	out := map[string]types.Response{}
	for _, status := range obj.Keys() {
		if strings.HasPrefix(status, "x-") {
			continue
		}
		respObj, ok := obj.GetObject(status)
		if !ok {
			continue
		}
		resp := types.Response{}
		resp.Description, _ = respObj.GetString("description")
		if content, ok := respObj.GetObject("content"); ok {
			resp.Content = buildContent(content)
		} else if schema, ok := respObj.Get("schema"); ok {
			// Swagger 2.0 puts the schema directly on the response.
			resp.Content = map[string]types.MediaType{
				"application/json": {Schema: BuildSchemaNode(schema)},
			}
		}
		if headers, ok := respObj.GetObject("headers"); ok {
			resp.Headers = append(resp.Headers, headers.Keys()...)
		}
		out[status] = resp
	}
	return out
}

func buildContent(content *parser.Object) map[string]types.MediaType {
	out := map[string]types.MediaType{}
	for _, mediaType := range content.Keys() {
		mtObj, ok := content.GetObject(mediaType)
		if !ok {
			continue
		}
		mt := types.MediaType{}
		if schema, ok := mtObj.Get("schema"); ok {
			mt.Schema = BuildSchemaNode(schema)
		}
		if ex, ok := mtObj.Get("example"); ok {
			mt.Example = parser.Plain(ex)
		}
		out[mediaType] = mt
	}
	return out
}

func buildSecurityRequirements(root *parser.Object) []types.SecurityRequirement {
	raw, ok := root.GetArray("security")
	if !ok {
		return nil
	}
	return securityFromArray(raw)
}

func securityFromArray(arr []interface{}) []types.SecurityRequirement {
	var out []types.SecurityRequirement
	for _, item := range arr {
		obj, ok := item.(*parser.Object)
		if !ok {
			continue
		}
		req := types.SecurityRequirement{}
		for _, scheme := range obj.Keys() {
			sc := types.SecurityScopes{Scheme: scheme}
			if scopes, ok := obj.GetArray(scheme); ok {
				for _, s := range scopes {
					if str, ok := s.(string); ok {
						sc.Scopes = append(sc.Scopes, str)
					}
				}
			}
			req.Schemes = append(req.Schemes, sc)
		}
		out = append(out, req)
	}
	if out == nil {
		// An explicit empty security array means "no auth required".
		out = []types.SecurityRequirement{}
	}
	return out
}

func collectSchemaDependencies(ep *types.Endpoint) []string {
	seen := map[string]bool{}
	var out []string
	add := func(node *types.SchemaNode) {
		if node == nil {
			return
		}
		for _, ref := range node.References() {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	for _, p := range ep.Parameters {
		add(p.Schema)
	}
	if ep.RequestBody != nil {
		for _, mt := range ep.RequestBody.Content {
			add(mt.Schema)
		}
	}
	for _, resp := range ep.Responses {
		for _, mt := range resp.Content {
			add(mt.Schema)
		}
	}
	return out
}

func collectSecurityDependencies(ep *types.Endpoint) []string {
	seen := map[string]bool{}
	var out []string
	for _, req := range ep.Security {
		for _, sc := range req.Schemes {
			if !seen[sc.Scheme] {
				seen[sc.Scheme] = true
				out = append(out, sc.Scheme)
			}
		}
	}
	return out
}

func parameterNames(params []types.Parameter) []string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		out = append(out, p.Name)
	}
	return out
}

// validatePathParameters checks that every {placeholder} has a matching path
// parameter and vice versa.
func validatePathParameters(ep *types.Endpoint, errs *[]parser.ParseError) {
	placeholders := map[string]bool{}
	for _, name := range types.PathPlaceholders(ep.Path) {
		placeholders[name] = true
	}
	declared := map[string]bool{}
	for _, p := range ep.PathParameters() {
		declared[p.Name] = true
		if !placeholders[p.Name] {
			*errs = append(*errs, parser.ParseError{
				Kind:    parser.FaultMissingField,
				Path:    fmt.Sprintf("$.paths['%s'].%s", ep.Path, strings.ToLower(string(ep.Method))),
				Message: fmt.Sprintf("path parameter %q has no {%s} placeholder in the path", p.Name, p.Name),
			})
		}
	}
	for name := range placeholders {
		if !declared[name] {
			*errs = append(*errs, parser.ParseError{
				Kind:       parser.FaultMissingField,
				Path:       fmt.Sprintf("$.paths['%s'].%s", ep.Path, strings.ToLower(string(ep.Method))),
				Message:    fmt.Sprintf("placeholder {%s} has no declared path parameter", name),
				Suggestion: fmt.Sprintf("declare a parameter named %q with \"in\": \"path\"", name),
			})
		}
	}
}
