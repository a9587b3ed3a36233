// Package consistency audits a normalized specification for documentation
// gaps, naming drift, and structural smells, and condenses the findings
// into a single score.
package consistency

import (
	"fmt"
	"strings"
	"unicode"

	"openapi-mcp-server/pkg/types"
)

// Severity grades a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// RuleGroup names the audit family a finding belongs to.
type RuleGroup string

const (
	GroupDocumentation RuleGroup = "documentation"
	GroupResponses     RuleGroup = "responses"
	GroupNaming        RuleGroup = "naming"
	GroupSchemas       RuleGroup = "schemas"
	GroupSecurity      RuleGroup = "security"
	GroupMethods       RuleGroup = "methods"
)

// Finding is one audit observation.
type Finding struct {
	Group    RuleGroup `json:"group"`
	Severity Severity  `json:"severity"`
	Subject  string    `json:"subject"`
	Message  string    `json:"message"`
}

// Report is the outcome of one audit run.
type Report struct {
	Findings []Finding `json:"findings"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
	Score    float64   `json:"score"`
}

// Analyze runs every rule group over the normalized entities.
func Analyze(endpoints []*types.Endpoint, schemas []*types.Schema, schemes []*types.SecurityScheme) *Report {
	r := &Report{}
	auditDocumentation(endpoints, schemas, r)
	auditResponses(endpoints, r)
	auditMethodPatterns(endpoints, r)
	auditNaming(endpoints, r)
	auditSchemas(schemas, r)
	auditSecurity(endpoints, schemes, r)

	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			r.Errors++
		} else {
			r.Warnings++
		}
	}
	r.Score = Score(r.Errors, r.Warnings, len(endpoints), len(schemas))
	return r
}

// Score condenses counts into [0, 100]. Errors weigh four times as much as
// warnings, scaled by the audited surface.
func Score(errors, warnings, endpoints, schemas int) float64 {
	surface := endpoints + schemas
	if surface == 0 {
		return 100
	}
	penalty := (2*float64(errors) + 0.5*float64(warnings)) / (2 * float64(surface)) * 100
	score := 100 - penalty
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (r *Report) add(group RuleGroup, sev Severity, subject, message string) {
	r.Findings = append(r.Findings, Finding{Group: group, Severity: sev, Subject: subject, Message: message})
}

func auditDocumentation(endpoints []*types.Endpoint, schemas []*types.Schema, r *Report) {
	for _, ep := range endpoints {
		subject := fmt.Sprintf("%s %s", ep.Method, ep.Path)
		if !ep.HasDocumentation() {
			r.add(GroupDocumentation, SeverityWarning, subject, "endpoint has neither summary nor description")
		}
		if ep.OperationID == "" {
			r.add(GroupDocumentation, SeverityWarning, subject, "endpoint has no operationId")
		}
		for _, p := range ep.Parameters {
			if p.Description == "" {
				r.add(GroupDocumentation, SeverityWarning, subject, fmt.Sprintf("parameter %q has no description", p.Name))
			}
		}
	}
	for _, s := range schemas {
		if s.Description == "" && s.Title == "" {
			r.add(GroupDocumentation, SeverityWarning, "schema "+s.Name, "schema has neither title nor description")
		}
	}
}

// expectedSuccessCodes are the status codes each method is expected to
// declare; one of the listed codes satisfies the rule.
var expectedSuccessCodes = map[types.HTTPMethod][]string{
	types.MethodGet:    {"200"},
	types.MethodPost:   {"201", "200"},
	types.MethodPut:    {"200", "204"},
	types.MethodDelete: {"204", "200"},
}

func auditResponses(endpoints []*types.Endpoint, r *Report) {
	for _, ep := range endpoints {
		subject := fmt.Sprintf("%s %s", ep.Method, ep.Path)
		if len(ep.Responses) == 0 {
			r.add(GroupResponses, SeverityError, subject, "endpoint declares no responses")
			continue
		}
		hasSuccess := false
		hasClientError := false
		hasServerError := false
		for status := range ep.Responses {
			switch {
			case strings.HasPrefix(status, "2") || status == "default":
				hasSuccess = true
			case strings.HasPrefix(status, "4"):
				hasClientError = true
			case strings.HasPrefix(status, "5"):
				hasServerError = true
			}
		}
		if !hasSuccess {
			r.add(GroupResponses, SeverityError, subject, "endpoint declares no success response")
		}
		if expected, ok := expectedSuccessCodes[ep.Method]; ok && !declaresAny(ep.Responses, expected) {
			r.add(GroupResponses, SeverityWarning, subject,
				fmt.Sprintf("%s should declare %s", ep.Method, strings.Join(expected, " or ")))
		}
		if !hasClientError {
			r.add(GroupResponses, SeverityWarning, subject, "endpoint declares no 4xx response")
		}
		if !hasServerError {
			r.add(GroupResponses, SeverityWarning, subject, "endpoint declares no 5xx response")
		}
	}
}

func declaresAny(responses map[string]types.Response, codes []string) bool {
	for _, code := range codes {
		if _, ok := responses[code]; ok {
			return true
		}
	}
	return false
}

// auditMethodPatterns flags paths whose method set suggests a missing read
// operation.
func auditMethodPatterns(endpoints []*types.Endpoint, r *Report) {
	methodsByPath := map[string]map[types.HTTPMethod]bool{}
	for _, ep := range endpoints {
		if methodsByPath[ep.Path] == nil {
			methodsByPath[ep.Path] = map[types.HTTPMethod]bool{}
		}
		methodsByPath[ep.Path][ep.Method] = true
	}
	for _, ep := range endpoints {
		methods := methodsByPath[ep.Path]
		if methods[types.MethodGet] {
			continue
		}
		switch ep.Method {
		case types.MethodPost:
			r.add(GroupMethods, SeverityWarning, fmt.Sprintf("%s %s", ep.Method, ep.Path),
				"path accepts POST but offers no GET")
		case types.MethodDelete:
			r.add(GroupMethods, SeverityWarning, fmt.Sprintf("%s %s", ep.Method, ep.Path),
				"path accepts DELETE but offers no GET")
		}
	}
}

// auditNaming flags operationId style drift: the dominant style is inferred
// from the majority and deviations are warned about.
func auditNaming(endpoints []*types.Endpoint, r *Report) {
	styleCounts := map[string]int{}
	styles := map[*types.Endpoint]string{}
	for _, ep := range endpoints {
		if ep.OperationID == "" {
			continue
		}
		style := identifierStyle(ep.OperationID)
		styles[ep] = style
		styleCounts[style]++
	}
	dominant, max := "", 0
	for style, count := range styleCounts {
		if count > max {
			dominant, max = style, count
		}
	}
	if dominant == "" || dominant == "mixed" {
		return
	}
	for ep, style := range styles {
		if style != dominant {
			r.add(GroupNaming, SeverityWarning,
				fmt.Sprintf("%s %s", ep.Method, ep.Path),
				fmt.Sprintf("operationId %q uses %s naming while most use %s", ep.OperationID, style, dominant))
		}
	}
}

func identifierStyle(id string) string {
	if id == "" {
		return "flat"
	}
	hasUnderscore := strings.Contains(id, "_")
	hasHyphen := strings.Contains(id, "-")
	hasUpper := strings.ContainsFunc(id, unicode.IsUpper)
	hasLower := strings.ContainsFunc(id, unicode.IsLower)
	switch {
	case hasUpper && !hasLower:
		return "UPPER_CASE"
	case hasHyphen && !hasUpper && !hasUnderscore:
		return "kebab-case"
	case hasUnderscore && !hasUpper && !hasHyphen:
		return "snake_case"
	case hasUnderscore || hasHyphen:
		return "mixed"
	case unicode.IsUpper(rune(id[0])):
		return "PascalCase"
	case hasUpper:
		return "camelCase"
	default:
		return "flat"
	}
}

// primitiveNames are JSON type keywords; a schema named after one shadows
// the type system and confuses readers.
var primitiveNames = map[string]bool{
	"string": true, "integer": true, "number": true,
	"boolean": true, "array": true, "object": true, "null": true,
}

// maxSchemaDependencies is the coupling ceiling before a schema warns.
const maxSchemaDependencies = 5

func auditSchemas(schemas []*types.Schema, r *Report) {
	for _, s := range schemas {
		if primitiveNames[strings.ToLower(s.Name)] {
			r.add(GroupSchemas, SeverityWarning, "schema "+s.Name, "schema is named after a primitive type")
		}
		if len(s.Dependencies) > maxSchemaDependencies {
			r.add(GroupSchemas, SeverityWarning, "schema "+s.Name,
				fmt.Sprintf("schema is overly coupled: %d dependencies", len(s.Dependencies)))
		}
		unresolved := 0
		s.Root.Walk(func(n *types.SchemaNode) bool {
			if n.Kind == types.SchemaKindReference && n.Unresolved {
				unresolved++
			}
			return true
		})
		if unresolved > 0 {
			r.add(GroupSchemas, SeverityError, "schema "+s.Name,
				fmt.Sprintf("schema contains %d unresolved reference(s)", unresolved))
		}
		if s.Root.Kind == types.SchemaKindObject && len(s.Root.Properties) == 0 && s.Root.AdditionalProperties == nil {
			r.add(GroupSchemas, SeverityWarning, "schema "+s.Name, "object schema declares no properties")
		}
		if s.ReferenceCount == 0 && len(s.CircularRefs) == 0 {
			r.add(GroupSchemas, SeverityWarning, "schema "+s.Name, "schema is never referenced")
		}
	}
}

func auditSecurity(endpoints []*types.Endpoint, schemes []*types.SecurityScheme, r *Report) {
	for _, ep := range endpoints {
		if ep.Method.IsWrite() && len(ep.Security) == 0 {
			r.add(GroupSecurity, SeverityWarning,
				fmt.Sprintf("%s %s", ep.Method, ep.Path),
				"write endpoint has no security requirement")
		}
	}
	for _, s := range schemes {
		if s.ReferenceCount == 0 {
			r.add(GroupSecurity, SeverityWarning, "securityScheme "+s.Name, "security scheme is never referenced")
		}
	}
}
