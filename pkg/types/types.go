// Package types defines the entity types shared across the OpenAPI
// knowledge-base server: endpoints, schemas, security schemes, categories,
// and the metadata row describing an ingested specification.
package types

import (
	"fmt"
	"strings"
)

// HTTPMethod is an HTTP request method as used by an endpoint.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodDelete  HTTPMethod = "DELETE"
	MethodPatch   HTTPMethod = "PATCH"
	MethodHead    HTTPMethod = "HEAD"
	MethodOptions HTTPMethod = "OPTIONS"
	MethodTrace   HTTPMethod = "TRACE"
)

// AllMethods lists every method an endpoint may carry, in canonical order.
var AllMethods = []HTTPMethod{
	MethodGet, MethodPost, MethodPut, MethodDelete,
	MethodPatch, MethodHead, MethodOptions, MethodTrace,
}

// ParseHTTPMethod converts a raw string (any casing) to an HTTPMethod.
func ParseHTTPMethod(s string) (HTTPMethod, error) {
	m := HTTPMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("invalid HTTP method: %q", s)
	}
	return m, nil
}

// Valid reports whether the method is one of the supported set.
func (m HTTPMethod) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete,
		MethodPatch, MethodHead, MethodOptions, MethodTrace:
		return true
	}
	return false
}

// IsWrite reports whether the method conventionally carries a request body.
func (m HTTPMethod) IsWrite() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	}
	return false
}

// OperationType classifies a (method, path) pair for the search index.
func (m HTTPMethod) OperationType(path string) string {
	switch m {
	case MethodGet:
		if strings.HasSuffix(path, "}") {
			return "read"
		}
		return "list"
	case MethodPost:
		return "create"
	case MethodPut, MethodPatch:
		return "update"
	case MethodDelete:
		return "delete"
	default:
		return "other"
	}
}

// ParameterLocation is where a parameter is carried on the request.
type ParameterLocation string

const (
	InQuery  ParameterLocation = "query"
	InPath   ParameterLocation = "path"
	InHeader ParameterLocation = "header"
	InCookie ParameterLocation = "cookie"
)

// Valid reports whether the location is one of the OpenAPI locations.
func (l ParameterLocation) Valid() bool {
	switch l {
	case InQuery, InPath, InHeader, InCookie:
		return true
	}
	return false
}

// Extensions holds the x-* keys attached to an entity, preserved opaquely
// for round-trip fidelity.
type Extensions map[string]interface{}

// Clone returns a shallow copy so repository snapshots stay immutable.
func (e Extensions) Clone() Extensions {
	if e == nil {
		return nil
	}
	out := make(Extensions, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
