// Package normalize converts a parsed specification document into the typed
// entities the store persists: endpoints, schemas, security schemes, and
// their dependency edges.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/pkg/types"
)

const (
	refPrefixComponents  = "#/components/schemas/"
	refPrefixDefinitions = "#/definitions/"
)

// NormalizeRef converts a $ref string to a bare component name. External or
// non-schema references are returned verbatim with ok=false.
func NormalizeRef(ref string) (string, bool) {
	switch {
	case strings.HasPrefix(ref, refPrefixComponents):
		return strings.TrimPrefix(ref, refPrefixComponents), true
	case strings.HasPrefix(ref, refPrefixDefinitions):
		return strings.TrimPrefix(ref, refPrefixDefinitions), true
	default:
		return ref, false
	}
}

// BuildSchemaNode converts one raw schema fragment to a SchemaNode. A nil or
// non-object fragment yields nil.
func BuildSchemaNode(raw interface{}) *types.SchemaNode {
	obj, ok := raw.(*parser.Object)
	if !ok || obj == nil {
		return nil
	}

	if ref, ok := obj.GetString("$ref"); ok {
		name, resolved := NormalizeRef(ref)
		return &types.SchemaNode{Kind: types.SchemaKindReference, Ref: name, Unresolved: !resolved}
	}

	node := &types.SchemaNode{}
	node.Title, _ = obj.GetString("title")
	node.Description, _ = obj.GetString("description")
	node.Type, _ = obj.GetString("type")
	node.Format, _ = obj.GetString("format")
	node.Nullable, _ = obj.GetBool("nullable")
	node.Deprecated, _ = obj.GetBool("deprecated")
	node.Extensions = collectExtensions(obj)
	node.Constraints = buildConstraints(obj)

	if enum, ok := obj.GetArray("enum"); ok {
		node.Enum = plainSlice(enum)
	}
	if def, ok := obj.Get("default"); ok {
		node.Default = parser.Plain(def)
	}
	if ex, ok := obj.Get("example"); ok {
		node.Example = parser.Plain(ex)
	}

	for _, mode := range []types.CompositionMode{types.CompositionAllOf, types.CompositionOneOf, types.CompositionAnyOf} {
		if members, ok := obj.GetArray(string(mode)); ok {
			node.Kind = types.SchemaKindComposite
			node.Composition = &types.Composition{Mode: mode}
			for _, m := range members {
				if child := BuildSchemaNode(m); child != nil {
					node.Composition.Members = append(node.Composition.Members, child)
				}
			}
			if disc, ok := obj.GetObject("discriminator"); ok {
				node.Composition.Discriminator = buildDiscriminator(disc)
			}
			return node
		}
	}

	switch node.Type {
	case "array":
		node.Kind = types.SchemaKindArray
		if items, ok := obj.Get("items"); ok {
			node.Items = BuildSchemaNode(items)
		}
	case "object", "":
		if props, ok := obj.GetObject("properties"); ok {
			node.Kind = types.SchemaKindObject
			node.Type = "object"
			for _, name := range props.Keys() {
				child := BuildSchemaNode(mustGet(props, name))
				if child != nil {
					node.Properties = append(node.Properties, types.Property{Name: name, Schema: child})
				}
			}
			if req, ok := obj.GetArray("required"); ok {
				for _, r := range req {
					if s, ok := r.(string); ok {
						node.Required = append(node.Required, s)
					}
				}
			}
			if ap, ok := obj.Get("additionalProperties"); ok {
				node.AdditionalProperties = BuildSchemaNode(ap)
			}
		} else if node.Type == "object" {
			node.Kind = types.SchemaKindObject
			if ap, ok := obj.Get("additionalProperties"); ok {
				node.AdditionalProperties = BuildSchemaNode(ap)
			}
		} else {
			// Untyped fragment with no properties: treat as primitive any.
			node.Kind = types.SchemaKindPrimitive
		}
	default:
		node.Kind = types.SchemaKindPrimitive
	}
	return node
}

func mustGet(obj *parser.Object, key string) interface{} {
	v, _ := obj.Get(key)
	return v
}

func plainSlice(in []interface{}) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = parser.Plain(v)
	}
	return out
}

func buildDiscriminator(obj *parser.Object) *types.Discriminator {
	d := &types.Discriminator{}
	d.PropertyName, _ = obj.GetString("propertyName")
	if mapping, ok := obj.GetObject("mapping"); ok {
		d.Mapping = map[string]string{}
		for _, k := range mapping.Keys() {
			if v, ok := mapping.GetString(k); ok {
				name, _ := NormalizeRef(v)
				d.Mapping[k] = name
			}
		}
	}
	return d
}

func buildConstraints(obj *parser.Object) *types.Constraints {
	c := &types.Constraints{}
	found := false

	if f, ok := numberField(obj, "minimum"); ok {
		c.Minimum, found = &f, true
	}
	if f, ok := numberField(obj, "maximum"); ok {
		c.Maximum, found = &f, true
	}
	if b, ok := obj.GetBool("exclusiveMinimum"); ok && b {
		c.ExclusiveMinimum, found = true, true
	}
	if b, ok := obj.GetBool("exclusiveMaximum"); ok && b {
		c.ExclusiveMaximum, found = true, true
	}
	if n, ok := intField(obj, "minLength"); ok {
		c.MinLength, found = &n, true
	}
	if n, ok := intField(obj, "maxLength"); ok {
		c.MaxLength, found = &n, true
	}
	if s, ok := obj.GetString("pattern"); ok {
		c.Pattern, found = s, true
	}
	if n, ok := intField(obj, "minItems"); ok {
		c.MinItems, found = &n, true
	}
	if n, ok := intField(obj, "maxItems"); ok {
		c.MaxItems, found = &n, true
	}
	if f, ok := numberField(obj, "multipleOf"); ok {
		c.MultipleOf, found = &f, true
	}
	if !found {
		return nil
	}
	return c
}

func numberField(obj *parser.Object, key string) (float64, bool) {
	v, ok := obj.Get(key)
	if !ok {
		return 0, false
	}
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

func intField(obj *parser.Object, key string) (int, bool) {
	v, ok := obj.Get(key)
	if !ok {
		return 0, false
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func collectExtensions(obj *parser.Object) types.Extensions {
	var ext types.Extensions
	for _, k := range obj.Keys() {
		if strings.HasPrefix(k, "x-") {
			if ext == nil {
				ext = types.Extensions{}
			}
			ext[CanonicalExtensionKey(k)] = parser.Plain(mustGet(obj, k))
		}
	}
	return ext
}

// NormalizeSchemas converts every named component schema and computes direct
// dependencies plus circular reference groups.
func NormalizeSchemas(root *parser.Object) ([]*types.Schema, []parser.ParseError) {
	section := schemaSection(root)
	if section == nil {
		return nil, nil
	}

	var errs []parser.ParseError
	byName := map[string]*types.Schema{}
	var ordered []*types.Schema

	for _, name := range section.Keys() {
		raw, ok := section.GetObject(name)
		if !ok {
			errs = append(errs, parser.ParseError{
				Kind:    parser.FaultWrongType,
				Path:    "$..schemas." + name,
				Message: fmt.Sprintf("schema %q must be an object", name),
			})
			continue
		}
		node := BuildSchemaNode(raw)
		if node == nil {
			continue
		}
		s := &types.Schema{
			Name:         name,
			Title:        node.Title,
			Description:  node.Description,
			Root:         node,
			Deprecated:   node.Deprecated,
			Extensions:   node.Extensions,
			Dependencies: node.References(),
		}
		byName[name] = s
		ordered = append(ordered, s)
	}

	markUnresolvedDependencies(ordered, byName, &errs)
	detectCycles(ordered, byName)
	countReferences(ordered, byName)
	return ordered, errs
}

func schemaSection(root *parser.Object) *parser.Object {
	if components, ok := root.GetObject("components"); ok {
		if schemas, ok := components.GetObject("schemas"); ok {
			return schemas
		}
		return nil
	}
	if defs, ok := root.GetObject("definitions"); ok {
		return defs
	}
	return nil
}

func markUnresolvedDependencies(schemas []*types.Schema, byName map[string]*types.Schema, errs *[]parser.ParseError) {
	for _, s := range schemas {
		for _, dep := range s.Dependencies {
			if _, ok := byName[dep]; !ok {
				s.Root.Walk(func(n *types.SchemaNode) bool {
					if n.Kind == types.SchemaKindReference && n.Ref == dep {
						n.Unresolved = true
					}
					return true
				})
				*errs = append(*errs, parser.ParseError{
					Kind:    parser.FaultMissingField,
					Path:    "$..schemas." + s.Name,
					Message: fmt.Sprintf("schema %q references undefined component %q", s.Name, dep),
				})
			}
		}
	}
}

// detectCycles runs a three-color depth-first search over the named schema
// graph. Every schema on a back edge path gets the cycle members recorded.
func detectCycles(schemas []*types.Schema, byName map[string]*types.Schema) {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string

	var visit func(name string)
	visit = func(name string) {
		color[name] = grey
		stack = append(stack, name)
		s := byName[name]
		for _, dep := range s.Dependencies {
			if _, ok := byName[dep]; !ok {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				// Back edge: everything from dep to the top of the stack
				// forms a cycle.
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append([]string{}, stack[start:]...)
				for _, member := range cycle {
					recordCycle(byName[member], cycle)
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
	}

	for _, s := range schemas {
		if color[s.Name] == white {
			visit(s.Name)
		}
	}
}

func recordCycle(s *types.Schema, cycle []string) {
	seen := map[string]bool{}
	for _, existing := range s.CircularRefs {
		seen[existing] = true
	}
	for _, member := range cycle {
		if seen[member] {
			continue
		}
		// A schema referencing only itself records its own name.
		if member != s.Name || len(cycle) == 1 {
			s.CircularRefs = append(s.CircularRefs, member)
			seen[member] = true
		}
	}
	sort.Strings(s.CircularRefs)
}

func countReferences(schemas []*types.Schema, byName map[string]*types.Schema) {
	for _, s := range schemas {
		for _, dep := range s.Dependencies {
			if target, ok := byName[dep]; ok {
				target.ReferenceCount++
			}
		}
	}
}
