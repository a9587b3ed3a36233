// Package validation detects the specification flavor of a parsed document
// and applies the version-specific structural rules.
package validation

import (
	"fmt"
	"strings"

	"openapi-mcp-server/internal/parser"
)

// Flavor identifies the specification dialect.
type Flavor string

const (
	FlavorOpenAPI30 Flavor = "openapi-3.0"
	FlavorOpenAPI31 Flavor = "openapi-3.1"
	FlavorSwagger2  Flavor = "swagger-2.0"
	FlavorUnknown   Flavor = "unknown"
)

// Result carries the detected flavor plus version findings.
type Result struct {
	Flavor   Flavor              `json:"flavor"`
	Version  string              `json:"version"`
	Errors   []parser.ParseError `json:"errors"`
	Warnings []parser.ParseError `json:"warnings"`
}

// Valid reports whether the document passed version validation.
func (r *Result) Valid() bool { return len(r.Errors) == 0 }

// DetectFlavor maps a version marker to a dialect. Supported: 3.0.x, 3.1.0,
// and swagger 2.0.
func DetectFlavor(root *parser.Object) (Flavor, string) {
	if v, ok := root.GetString("openapi"); ok {
		switch {
		case strings.HasPrefix(v, "3.0."):
			return FlavorOpenAPI30, v
		case v == "3.1.0":
			return FlavorOpenAPI31, v
		default:
			return FlavorUnknown, v
		}
	}
	if v, ok := root.GetString("swagger"); ok {
		if v == "2.0" {
			return FlavorSwagger2, v
		}
		return FlavorUnknown, v
	}
	return FlavorUnknown, ""
}

// Validate detects the dialect and runs its rules over the document.
func Validate(root *parser.Object) *Result {
	flavor, version := DetectFlavor(root)
	res := &Result{Flavor: flavor, Version: version}

	if flavor == FlavorUnknown {
		res.Errors = append(res.Errors, parser.ParseError{
			Kind:       parser.FaultWrongType,
			Path:       "$",
			Message:    fmt.Sprintf("unsupported specification version %q", version),
			Suggestion: "supported versions are OpenAPI 3.0.x, OpenAPI 3.1.0, and Swagger 2.0",
		})
		return res
	}

	switch flavor {
	case FlavorSwagger2:
		validateSwagger2(root, res)
	default:
		validateOpenAPI3(root, res, flavor)
	}
	return res
}

func validateOpenAPI3(root *parser.Object, res *Result, flavor Flavor) {
	// Swagger-only sections do not belong in a 3.x document.
	for _, legacy := range []string{"definitions", "securityDefinitions", "basePath", "host", "consumes", "produces"} {
		if root.Has(legacy) {
			res.Warnings = append(res.Warnings, parser.ParseError{
				Kind:       parser.FaultWrongType,
				Path:       "$." + legacy,
				Message:    fmt.Sprintf("'%s' is a Swagger 2.0 field and is ignored in OpenAPI 3.x", legacy),
				Suggestion: "move the content under 'components' or 'servers'",
			})
		}
	}
	if servers, ok := root.Get("servers"); ok {
		if _, isArr := servers.([]interface{}); !isArr {
			res.Errors = append(res.Errors, parser.ParseError{
				Kind:    parser.FaultWrongType,
				Path:    "$.servers",
				Message: "'servers' must be an array",
			})
		}
	}
	if flavor == FlavorOpenAPI31 {
		// 3.1 allows webhooks and JSON Schema dialect markers; flag nothing
		// there, but nullable is gone in 3.1.
		checkNullableUsage(root, res)
	}
}

func validateSwagger2(root *parser.Object, res *Result) {
	if root.Has("components") {
		res.Errors = append(res.Errors, parser.ParseError{
			Kind:       parser.FaultWrongType,
			Path:       "$.components",
			Message:    "'components' is an OpenAPI 3.x section, not valid in Swagger 2.0",
			Suggestion: "use 'definitions' and 'securityDefinitions' instead",
		})
	}
	if root.Has("servers") {
		res.Errors = append(res.Errors, parser.ParseError{
			Kind:       parser.FaultWrongType,
			Path:       "$.servers",
			Message:    "'servers' is an OpenAPI 3.x field, not valid in Swagger 2.0",
			Suggestion: "use 'host', 'basePath', and 'schemes' instead",
		})
	}
	if bp, ok := root.GetString("basePath"); ok && !strings.HasPrefix(bp, "/") {
		res.Warnings = append(res.Warnings, parser.ParseError{
			Kind:    parser.FaultInvalidPathName,
			Path:    "$.basePath",
			Message: fmt.Sprintf("basePath %q should start with '/'", bp),
		})
	}
}

// checkNullableUsage walks component schemas for the removed 3.0 keyword.
func checkNullableUsage(root *parser.Object, res *Result) {
	components, ok := root.GetObject("components")
	if !ok {
		return
	}
	schemas, ok := components.GetObject("schemas")
	if !ok {
		return
	}
	for _, name := range schemas.Keys() {
		node, ok := schemas.GetObject(name)
		if !ok {
			continue
		}
		if hasNullable(node) {
			res.Warnings = append(res.Warnings, parser.ParseError{
				Kind:       parser.FaultWrongType,
				Path:       "$.components.schemas." + name,
				Message:    "'nullable' was removed in OpenAPI 3.1",
				Suggestion: `use a type array such as ["string", "null"]`,
			})
		}
	}
}

func hasNullable(node *parser.Object) bool {
	if node.Has("nullable") {
		return true
	}
	for _, k := range node.Keys() {
		if child, ok := node.GetObject(k); ok && hasNullable(child) {
			return true
		}
	}
	return false
}
