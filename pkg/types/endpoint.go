package types

import (
	"regexp"
	"time"
)

// APIMetadata describes one ingested specification. Deleting it cascades to
// every child entity.
type APIMetadata struct {
	ID                  int64     `json:"id"`
	FilePath            string    `json:"file_path"`
	FileHash            string    `json:"file_hash"`
	Title               string    `json:"title"`
	Version             string    `json:"version"`
	OpenAPIVersion      string    `json:"openapi_version"`
	Description         string    `json:"description,omitempty"`
	EndpointCount       int       `json:"endpoint_count"`
	SchemaCount         int       `json:"schema_count"`
	SecuritySchemeCount int       `json:"security_scheme_count"`
	IngestedAt          time.Time `json:"ingested_at"`
}

// Parameter is a single operation or path-level parameter after merging.
type Parameter struct {
	Name        string            `json:"name"`
	In          ParameterLocation `json:"in"`
	Required    bool              `json:"required"`
	Description string            `json:"description,omitempty"`
	Deprecated  bool              `json:"deprecated,omitempty"`
	Schema      *SchemaNode       `json:"schema,omitempty"`
	Example     interface{}       `json:"example,omitempty"`
	Extensions  Extensions        `json:"extensions,omitempty"`
}

// MediaType is the schema/example pair under a content type.
type MediaType struct {
	Schema  *SchemaNode `json:"schema,omitempty"`
	Example interface{} `json:"example,omitempty"`
}

// RequestBody describes an operation request payload.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// Response describes one status entry of an operation.
type Response struct {
	Description string               `json:"description,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty"`
	Headers     []string             `json:"headers,omitempty"`
}

// SecurityScopes names one scheme and the scopes requested from it.
type SecurityScopes struct {
	Scheme string   `json:"scheme"`
	Scopes []string `json:"scopes,omitempty"`
}

// SecurityRequirement is one alternative: every scheme listed must be
// satisfied together. An endpoint's requirements are alternatives (OR).
type SecurityRequirement struct {
	Schemes []SecurityScopes `json:"schemes"`
}

// Endpoint is one (path, method) pair with its full operation description.
type Endpoint struct {
	ID                   int64                 `json:"id"`
	APIID                int64                 `json:"api_id"`
	Path                 string                `json:"path"`
	Method               HTTPMethod            `json:"method"`
	OperationID          string                `json:"operation_id,omitempty"`
	Summary              string                `json:"summary,omitempty"`
	Description          string                `json:"description,omitempty"`
	Tags                 []string              `json:"tags,omitempty"`
	Parameters           []Parameter           `json:"parameters,omitempty"`
	RequestBody          *RequestBody          `json:"request_body,omitempty"`
	Responses            map[string]Response   `json:"responses,omitempty"`
	Security             []SecurityRequirement `json:"security,omitempty"`
	Deprecated           bool                  `json:"deprecated,omitempty"`
	Extensions           Extensions            `json:"extensions,omitempty"`
	SchemaDependencies   []string              `json:"schema_dependencies,omitempty"`
	SecurityDependencies []string              `json:"security_dependencies,omitempty"`
	Category             string                `json:"category,omitempty"`
	CategoryGroup        string                `json:"category_group,omitempty"`
	SearchableText       string                `json:"searchable_text,omitempty"`
}

var placeholderRe = regexp.MustCompile(`\{([^{}/]+)\}`)

// PathPlaceholders returns the {name} placeholders of a path template in
// order of appearance.
func PathPlaceholders(path string) []string {
	matches := placeholderRe.FindAllStringSubmatch(path, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// PathParameters returns the endpoint parameters located in the path.
func (e *Endpoint) PathParameters() []Parameter {
	var out []Parameter
	for _, p := range e.Parameters {
		if p.In == InPath {
			out = append(out, p)
		}
	}
	return out
}

// HasDocumentation reports whether the endpoint carries a summary or
// description; the ranker boosts documented endpoints.
func (e *Endpoint) HasDocumentation() bool {
	return e.Summary != "" || e.Description != ""
}
