package types

// SchemaKind tags the variant of a schema node. Loosely-typed specification
// fragments are normalized into exactly one of these shapes.
type SchemaKind string

const (
	SchemaKindPrimitive SchemaKind = "primitive"
	SchemaKindObject    SchemaKind = "object"
	SchemaKindArray     SchemaKind = "array"
	SchemaKindComposite SchemaKind = "composite"
	SchemaKindReference SchemaKind = "reference"
)

// CompositionMode distinguishes allOf/oneOf/anyOf composites.
type CompositionMode string

const (
	CompositionAllOf CompositionMode = "allOf"
	CompositionOneOf CompositionMode = "oneOf"
	CompositionAnyOf CompositionMode = "anyOf"
)

// SchemaNode is a normalized JSON-schema fragment. Exactly one variant is
// populated according to Kind; Ref carries the bare component name for
// reference nodes, or the verbatim reference string when it could not be
// resolved (Unresolved is then set).
type SchemaNode struct {
	Kind        SchemaKind  `json:"kind"`
	Type        string      `json:"type,omitempty"`
	Format      string      `json:"format,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Ref         string      `json:"ref,omitempty"`
	Unresolved  bool        `json:"unresolved,omitempty"`
	Items       *SchemaNode `json:"items,omitempty"`

	// Object variant: properties retain specification order.
	Properties           []Property  `json:"properties,omitempty"`
	Required             []string    `json:"required,omitempty"`
	AdditionalProperties *SchemaNode `json:"additional_properties,omitempty"`

	// Composite variant.
	Composition *Composition `json:"composition,omitempty"`

	Enum        []interface{} `json:"enum,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
	Example     interface{}   `json:"example,omitempty"`
	Nullable    bool          `json:"nullable,omitempty"`
	Deprecated  bool          `json:"deprecated,omitempty"`
	Constraints *Constraints  `json:"constraints,omitempty"`
	Extensions  Extensions    `json:"extensions,omitempty"`
}

// Property is a named member of an object schema. Order is significant.
type Property struct {
	Name   string      `json:"name"`
	Schema *SchemaNode `json:"schema"`
}

// Composition records allOf/oneOf/anyOf membership. Members may be inline
// sub-schemas or reference nodes.
type Composition struct {
	Mode          CompositionMode `json:"mode"`
	Members       []*SchemaNode   `json:"members"`
	Discriminator *Discriminator  `json:"discriminator,omitempty"`
}

// Discriminator maps a property value to a member schema.
type Discriminator struct {
	PropertyName string            `json:"property_name"`
	Mapping      map[string]string `json:"mapping,omitempty"`
}

// Constraints carries numeric/string/array validation bounds.
type Constraints struct {
	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum bool     `json:"exclusive_minimum,omitempty"`
	ExclusiveMaximum bool     `json:"exclusive_maximum,omitempty"`
	MinLength        *int     `json:"min_length,omitempty"`
	MaxLength        *int     `json:"max_length,omitempty"`
	Pattern          string   `json:"pattern,omitempty"`
	MinItems         *int     `json:"min_items,omitempty"`
	MaxItems         *int     `json:"max_items,omitempty"`
	MultipleOf       *float64 `json:"multiple_of,omitempty"`
}

// Schema is a named component from components.schemas (or definitions in
// Swagger 2.0). The store owns the row; in-memory handles are snapshots.
type Schema struct {
	ID             int64       `json:"id"`
	APIID          int64       `json:"api_id"`
	Name           string      `json:"name"`
	Title          string      `json:"title,omitempty"`
	Description    string      `json:"description,omitempty"`
	Root           *SchemaNode `json:"root"`
	ReferenceCount int         `json:"reference_count"`
	Dependencies   []string    `json:"dependencies,omitempty"`
	CircularRefs   []string    `json:"circular_refs,omitempty"`
	Deprecated     bool        `json:"deprecated,omitempty"`
	Extensions     Extensions  `json:"extensions,omitempty"`
	SearchableText string      `json:"searchable_text,omitempty"`
}

// Walk visits n and every reachable sub-node depth-first. The visitor may
// return false to stop descending into the current node.
func (n *SchemaNode) Walk(visit func(*SchemaNode) bool) {
	if n == nil || !visit(n) {
		return
	}
	if n.Items != nil {
		n.Items.Walk(visit)
	}
	for _, p := range n.Properties {
		p.Schema.Walk(visit)
	}
	if n.AdditionalProperties != nil {
		n.AdditionalProperties.Walk(visit)
	}
	if n.Composition != nil {
		for _, m := range n.Composition.Members {
			m.Walk(visit)
		}
	}
}

// References collects the bare component names referenced directly by this
// node and its sub-nodes (one hop; the resolver computes closures).
func (n *SchemaNode) References() []string {
	seen := map[string]bool{}
	var out []string
	n.Walk(func(s *SchemaNode) bool {
		if s.Kind == SchemaKindReference && s.Ref != "" && !s.Unresolved && !seen[s.Ref] {
			seen[s.Ref] = true
			out = append(out, s.Ref)
		}
		return true
	})
	return out
}
