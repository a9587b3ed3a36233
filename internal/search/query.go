package search

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"openapi-mcp-server/pkg/types"
)

// QueryType classifies how the user phrased the search.
type QueryType string

const (
	QuerySimple          QueryType = "simple"
	QueryBoolean         QueryType = "boolean"
	QueryFieldSpecific   QueryType = "field_specific"
	QueryNaturalLanguage QueryType = "natural_language"
)

// FieldFilter is one <field>:<value> clause extracted from the raw query.
type FieldFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ProcessedQuery is the structured form of a raw search string.
type ProcessedQuery struct {
	Original      string        `json:"original"`
	Terms         []string      `json:"normalized_terms"`
	FieldFilters  []FieldFilter `json:"field_filters,omitempty"`
	Operators     []string      `json:"boolean_operators,omitempty"`
	FuzzyTerms    []string      `json:"fuzzy_terms,omitempty"`
	ExcludedTerms []string      `json:"excluded_terms,omitempty"`
	EnhancedTerms []string      `json:"enhanced_terms,omitempty"`
	Type          QueryType     `json:"query_type"`

	// Filters lifted from field clauses for the repository layer.
	Methods []types.HTTPMethod `json:"-"`
}

// knownFields are the recognized field-prefix scopes.
var knownFields = map[string]bool{
	"path": true, "method": true, "param": true, "status": true,
	"response": true, "type": true, "auth": true,
}

// stopWords drop from queries. Domain tokens like api, auth, get and post
// stay because they carry meaning for endpoint search.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "for": true,
	"to": true, "in": true, "on": true, "with": true, "by": true,
	"is": true, "are": true, "be": true, "that": true, "this": true,
	"all": true, "any": true, "how": true, "what": true, "which": true,
	"do": true, "does": true, "i": true, "me": true, "my": true,
}

// defaultSynonyms maps API vocabulary onto its common variants.
var defaultSynonyms = map[string][]string{
	"auth":           {"authentication", "authorization", "login"},
	"authentication": {"auth", "login"},
	"authorization":  {"auth", "permission"},
	"login":          {"auth", "signin"},
	"user":           {"users", "account", "profile"},
	"users":          {"user", "accounts"},
	"create":         {"add", "new", "post"},
	"delete":         {"remove", "destroy"},
	"update":         {"edit", "modify", "patch", "put"},
	"list":           {"all", "index", "get"},
	"search":         {"find", "query", "lookup"},
	"payment":        {"billing", "invoice", "charge"},
	"order":          {"orders", "purchase"},
	"error":          {"errors", "failure", "fault"},
	"token":          {"credential", "key"},
	"upload":         {"file", "attachment"},
}

var fieldClauseRe = regexp.MustCompile(`(\w+):("([^"]*)"|(\S+))`)

// QueryProcessor turns raw keyword strings into ProcessedQuery values and
// FTS5 match expressions.
type QueryProcessor struct {
	synonyms map[string][]string
}

// NewQueryProcessor builds a processor. When synonymsPath is non-empty the
// YAML file at that path extends or overrides the built-in synonym map.
func NewQueryProcessor(synonymsPath string) (*QueryProcessor, error) {
	syn := make(map[string][]string, len(defaultSynonyms))
	for k, v := range defaultSynonyms {
		syn[k] = append([]string{}, v...)
	}
	if synonymsPath != "" {
		data, err := os.ReadFile(synonymsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read synonyms file: %w", err)
		}
		var override map[string][]string
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to parse synonyms file: %w", err)
		}
		for k, v := range override {
			syn[strings.ToLower(k)] = v
		}
	}
	return &QueryProcessor{synonyms: syn}, nil
}

// Process runs the full pipeline on a raw query string.
func (p *QueryProcessor) Process(raw string) *ProcessedQuery {
	pq := &ProcessedQuery{Original: raw, Type: QuerySimple}

	working := strings.TrimSpace(raw)

	// Field clauses come out before lowercasing destroys quoted values.
	working = fieldClauseRe.ReplaceAllStringFunc(working, func(clause string) string {
		m := fieldClauseRe.FindStringSubmatch(clause)
		field := strings.ToLower(m[1])
		if !knownFields[field] {
			return clause
		}
		value := m[3]
		if value == "" {
			value = m[4]
		}
		pq.FieldFilters = append(pq.FieldFilters, FieldFilter{Field: field, Value: strings.ToLower(value)})
		return " "
	})

	tokens := strings.Fields(working)
	var terms []string
	expectExclude := false
	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		switch upper {
		case "AND", "OR":
			pq.Operators = append(pq.Operators, upper)
			continue
		case "NOT":
			pq.Operators = append(pq.Operators, upper)
			expectExclude = true
			continue
		}
		term := normalizeToken(tok)
		if term == "" || stopWords[term] {
			expectExclude = false
			continue
		}
		if expectExclude {
			pq.ExcludedTerms = append(pq.ExcludedTerms, term)
			expectExclude = false
			continue
		}
		terms = append(terms, stem(term))
	}
	pq.Terms = dedupe(terms)

	for _, t := range pq.Terms {
		for _, s := range p.synonyms[t] {
			pq.EnhancedTerms = append(pq.EnhancedTerms, normalizeToken(s))
		}
		if len(t) > 3 {
			pq.FuzzyTerms = append(pq.FuzzyTerms, t)
		}
	}
	pq.EnhancedTerms = dedupe(pq.EnhancedTerms)

	pq.Type = classify(pq, len(tokens))
	p.liftFilters(pq)
	return pq
}

// liftFilters moves method: clauses into typed repository filters.
func (p *QueryProcessor) liftFilters(pq *ProcessedQuery) {
	kept := pq.FieldFilters[:0]
	for _, f := range pq.FieldFilters {
		if f.Field == "method" {
			m := types.HTTPMethod(strings.ToUpper(f.Value))
			if m.Valid() {
				pq.Methods = append(pq.Methods, m)
				continue
			}
		}
		kept = append(kept, f)
	}
	pq.FieldFilters = kept
}

func classify(pq *ProcessedQuery, tokenCount int) QueryType {
	switch {
	case len(pq.FieldFilters) > 0 || len(pq.Methods) > 0:
		return QueryFieldSpecific
	case len(pq.Operators) > 0:
		return QueryBoolean
	case tokenCount >= 5:
		return QueryNaturalLanguage
	default:
		return QuerySimple
	}
}

// MatchExpression renders the processed query as an FTS5 MATCH string.
// Terms are OR-combined with their synonyms and prefix-matched when fuzzy;
// excluded terms become NOT clauses; field filters scope to index columns.
func (p *QueryProcessor) MatchExpression(pq *ProcessedQuery) string {
	var groups []string
	for _, t := range pq.Terms {
		variants := []string{quoteTerm(t)}
		if containsFold(pq.FuzzyTerms, t) {
			variants = append(variants, quoteTerm(t)+"*")
		}
		for _, s := range pq.EnhancedTerms {
			if strings.HasPrefix(s, t) || strings.HasPrefix(t, s) || p.isSynonymOf(t, s) {
				variants = append(variants, quoteTerm(s))
			}
		}
		group := strings.Join(dedupe(variants), " OR ")
		if len(variants) > 1 {
			group = "(" + group + ")"
		}
		groups = append(groups, group)
	}

	for _, f := range pq.FieldFilters {
		if col := indexColumn(f.Field); col != "" {
			groups = append(groups, col+":"+quoteTerm(f.Value))
		} else {
			groups = append(groups, quoteTerm(f.Value))
		}
	}

	expr := strings.Join(groups, " AND ")
	for _, ex := range pq.ExcludedTerms {
		if expr == "" {
			continue
		}
		expr += " NOT " + quoteTerm(ex)
	}
	return expr
}

func (p *QueryProcessor) isSynonymOf(term, candidate string) bool {
	for _, s := range p.synonyms[term] {
		if normalizeToken(s) == candidate {
			return true
		}
	}
	return false
}

// indexColumn maps a query field scope to an FTS column.
func indexColumn(field string) string {
	switch field {
	case "path":
		return "path"
	case "param":
		return "parameters"
	case "status", "response", "type", "auth":
		return "content"
	default:
		return ""
	}
}

func normalizeToken(tok string) string {
	tok = strings.ToLower(tok)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '/' || r == '-' || r == '_':
			return r
		default:
			return -1
		}
	}, tok)
}

// stem strips common English suffixes from longer tokens. The FTS tokenizer
// stems at index time; this keeps the query side symmetric for synonym and
// fuzzy handling.
func stem(term string) string {
	if len(term) <= 3 {
		return term
	}
	switch {
	case strings.HasSuffix(term, "ing") && len(term) > 6:
		return term[:len(term)-3]
	case strings.HasSuffix(term, "ed") && len(term) > 5:
		return term[:len(term)-2]
	case strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss") && !strings.HasSuffix(term, "us"):
		return term[:len(term)-1]
	}
	return term
}

func quoteTerm(t string) string {
	return `"` + strings.ReplaceAll(t, `"`, "") + `"`
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
