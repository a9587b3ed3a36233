package normalize

import (
	"context"

	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/internal/validation"
	"openapi-mcp-server/pkg/types"
)

// Result is the full normalized form of one specification document.
type Result struct {
	Metadata        types.APIMetadata
	Endpoints       []*types.Endpoint
	Schemas         []*types.Schema
	SecuritySchemes []*types.SecurityScheme
	Flavor          validation.Flavor
	Errors          []parser.ParseError
	Warnings        []parser.ParseError
}

// Normalizer turns parsed documents into typed entities.
type Normalizer struct {
	logger logging.Logger
}

// New creates a normalizer.
func New(logger logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Normalizer{logger: logger.WithComponent("normalize")}
}

// Normalize runs the full pass: version detection, endpoint and schema
// extraction, security mapping, and cross-reference validation.
func (n *Normalizer) Normalize(ctx context.Context, root *parser.Object) *Result {
	res := &Result{}

	versionResult := validation.Validate(root)
	res.Flavor = versionResult.Flavor
	res.Errors = append(res.Errors, versionResult.Errors...)
	res.Warnings = append(res.Warnings, versionResult.Warnings...)
	if !versionResult.Valid() {
		return res
	}

	res.Metadata = buildMetadata(root, versionResult.Version)

	endpoints, epErrs := NormalizeEndpoints(root)
	res.Endpoints = endpoints
	res.Warnings = append(res.Warnings, epErrs...)

	schemas, schemaErrs := NormalizeSchemas(root)
	res.Schemas = schemas
	res.Warnings = append(res.Warnings, schemaErrs...)

	schemes, secErrs := NormalizeSecuritySchemes(root)
	res.SecuritySchemes = schemes
	res.Errors = append(res.Errors, secErrs...)

	res.Warnings = append(res.Warnings, ValidateSecurityReferences(endpoints, schemes)...)

	for _, s := range res.Schemas {
		s.SearchableText = SearchableSchemaText(s.Name, s.Title, s.Description, propertyNames(s.Root))
	}

	res.Metadata.EndpointCount = len(res.Endpoints)
	res.Metadata.SchemaCount = len(res.Schemas)
	res.Metadata.SecuritySchemeCount = len(res.SecuritySchemes)

	n.logger.InfoContext(ctx, "specification normalized",
		"flavor", string(res.Flavor),
		"endpoints", len(res.Endpoints),
		"schemas", len(res.Schemas),
		"security_schemes", len(res.SecuritySchemes),
		"errors", len(res.Errors),
		"warnings", len(res.Warnings))
	return res
}

func buildMetadata(root *parser.Object, version string) types.APIMetadata {
	md := types.APIMetadata{OpenAPIVersion: version}
	if info, ok := root.GetObject("info"); ok {
		md.Title, _ = info.GetString("title")
		md.Version, _ = info.GetString("version")
		if desc, ok := info.GetString("description"); ok {
			md.Description = StripMarkdown(desc)
		}
	}
	return md
}

func propertyNames(node *types.SchemaNode) []string {
	if node == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	node.Walk(func(s *types.SchemaNode) bool {
		for _, p := range s.Properties {
			if !seen[p.Name] {
				seen[p.Name] = true
				out = append(out, p.Name)
			}
		}
		return true
	})
	return out
}
