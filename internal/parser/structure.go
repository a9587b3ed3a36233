package parser

import (
	"fmt"
	"strings"
)

var operationMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "head": true, "options": true, "trace": true,
}

// StructureReport is the outcome of skeleton validation.
type StructureReport struct {
	Errors   []ParseError `json:"errors"`
	Warnings []ParseError `json:"warnings"`
}

// Valid reports whether the document passed skeleton validation.
func (r *StructureReport) Valid() bool { return len(r.Errors) == 0 }

// ValidateStructure checks the document skeleton before normalization: the
// version marker, the info block, path naming, and that each section that
// must be an object is one. It does not validate field semantics.
func ValidateStructure(root *Object, cfg ValidateConfig) *StructureReport {
	v := &structureValidator{
		report:    &StructureReport{},
		collector: NewErrorCollector(cfg.MaxErrors, cfg.Strict),
	}
	v.run(root)
	v.report.Errors = v.collector.Errors()
	v.report.Warnings = v.collector.Warnings()
	return v.report
}

// ValidateConfig bounds the validation pass.
type ValidateConfig struct {
	MaxErrors int
	Strict    bool
}

type structureValidator struct {
	report    *StructureReport
	collector *ErrorCollector
}

func (v *structureValidator) run(root *Object) {
	if !v.checkVersionMarker(root) {
		return
	}
	v.checkInfo(root)
	if v.collector.Exhausted() {
		return
	}
	v.checkPaths(root)
	if v.collector.Exhausted() {
		return
	}
	v.checkComponents(root)
}

func (v *structureValidator) add(e ParseError) bool {
	return v.collector.Add(e)
}

func (v *structureValidator) checkVersionMarker(root *Object) bool {
	_, hasOpenAPI := root.GetString("openapi")
	_, hasSwagger := root.GetString("swagger")
	if hasOpenAPI && hasSwagger {
		return v.add(ParseError{
			Kind:       FaultWrongType,
			Path:       "$",
			Message:    "document declares both 'openapi' and 'swagger'",
			Suggestion: "keep exactly one version marker",
		})
	}
	if !hasOpenAPI && !hasSwagger {
		if root.Has("openapi") || root.Has("swagger") {
			return v.add(ParseError{
				Kind:    FaultWrongType,
				Path:    "$.openapi",
				Message: "version marker must be a string",
			})
		}
		return v.add(ParseError{
			Kind:       FaultMissingField,
			Path:       "$",
			Message:    "missing 'openapi' or 'swagger' version marker",
			Suggestion: "add \"openapi\": \"3.0.0\" or \"swagger\": \"2.0\" at the document root",
		})
	}
	return true
}

func (v *structureValidator) checkInfo(root *Object) {
	info, ok := root.GetObject("info")
	if !ok {
		if root.Has("info") {
			v.add(ParseError{Kind: FaultWrongType, Path: "$.info", Message: "'info' must be an object"})
		} else {
			v.add(ParseError{
				Kind:       FaultMissingField,
				Path:       "$.info",
				Message:    "missing required 'info' object",
				Suggestion: "add an 'info' object with 'title' and 'version'",
			})
		}
		return
	}
	for _, field := range []string{"title", "version"} {
		if s, ok := info.GetString(field); !ok || s == "" {
			if !v.add(ParseError{
				Kind:    FaultMissingField,
				Path:    "$.info." + field,
				Message: fmt.Sprintf("info.%s must be a non-empty string", field),
			}) {
				return
			}
		}
	}
}

func (v *structureValidator) checkPaths(root *Object) {
	paths, ok := root.GetObject("paths")
	if !ok {
		if root.Has("paths") {
			v.add(ParseError{Kind: FaultWrongType, Path: "$.paths", Message: "'paths' must be an object"})
		} else {
			v.add(ParseError{
				Kind:       FaultMissingField,
				Path:       "$.paths",
				Message:    "missing required 'paths' object",
				Suggestion: "add a 'paths' object, empty {} is valid",
			})
		}
		return
	}
	for _, pathKey := range paths.Keys() {
		if strings.HasPrefix(pathKey, "x-") {
			continue
		}
		jsonPath := "$.paths['" + pathKey + "']"
		if !strings.HasPrefix(pathKey, "/") {
			if !v.add(ParseError{
				Kind:    FaultInvalidPathName,
				Path:    jsonPath,
				Message: fmt.Sprintf("path %q does not start with '/'", pathKey),
			}) {
				return
			}
			continue
		}
		item, ok := paths.GetObject(pathKey)
		if !ok {
			if !v.add(ParseError{Kind: FaultWrongType, Path: jsonPath, Message: "path item must be an object"}) {
				return
			}
			continue
		}
		v.checkPathItem(jsonPath, item)
	}
}

var pathItemFields = map[string]bool{
	"summary": true, "description": true, "servers": true,
	"parameters": true, "$ref": true,
}

func (v *structureValidator) checkPathItem(jsonPath string, item *Object) {
	for _, key := range item.Keys() {
		lower := strings.ToLower(key)
		if operationMethods[lower] {
			if _, ok := item.GetObject(key); !ok {
				v.add(ParseError{
					Kind:    FaultWrongType,
					Path:    jsonPath + "." + key,
					Message: "operation must be an object",
				})
			}
			continue
		}
		if pathItemFields[key] || strings.HasPrefix(key, "x-") {
			continue
		}
		v.collector.Warn(ParseError{
			Kind:       FaultInvalidMethod,
			Path:       jsonPath + "." + key,
			Message:    fmt.Sprintf("%q is not an HTTP method or path item field", key),
			Suggestion: SuggestionFor(FaultInvalidMethod),
		})
	}
}

var componentSections = []string{
	"schemas", "responses", "parameters", "examples", "requestBodies",
	"headers", "securitySchemes", "links", "callbacks",
}

func (v *structureValidator) checkComponents(root *Object) {
	components, ok := root.GetObject("components")
	if !ok {
		if root.Has("components") {
			v.add(ParseError{Kind: FaultWrongType, Path: "$.components", Message: "'components' must be an object"})
		}
		// Swagger 2.0 sections live at the top level.
		v.checkObjectSection(root, "definitions", "$.definitions")
		v.checkObjectSection(root, "securityDefinitions", "$.securityDefinitions")
		return
	}
	for _, section := range componentSections {
		v.checkObjectSection(components, section, "$.components."+section)
	}
}

func (v *structureValidator) checkObjectSection(parent *Object, key, jsonPath string) {
	if !parent.Has(key) {
		return
	}
	if _, ok := parent.GetObject(key); !ok {
		v.add(ParseError{
			Kind:    FaultWrongType,
			Path:    jsonPath,
			Message: fmt.Sprintf("'%s' must be an object", key),
		})
	}
}
