package normalize

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"openapi-mcp-server/pkg/types"
)

var mdParser = goldmark.DefaultParser()

// StripMarkdown renders a markdown fragment down to its plain text so the
// search index does not match on formatting characters. Non-markdown input
// passes through unchanged apart from whitespace folding.
func StripMarkdown(src string) string {
	if src == "" {
		return ""
	}
	source := []byte(src)
	doc := mdParser.Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, isBlock := n.(*ast.Paragraph); isBlock {
				sb.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			sb.WriteByte(' ')
		case *ast.AutoLink:
			sb.Write(t.URL(source))
			sb.WriteByte(' ')
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return foldWhitespace(sb.String())
}

func foldWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SearchableEndpointText projects an endpoint's descriptive fields, plus the
// human-readable parts of its extensions, into one flat string for the
// full-text index.
func SearchableEndpointText(path, operationID, summary, description string, tags []string, paramNames []string, extensions types.Extensions) string {
	parts := []string{
		pathTerms(path),
		operationID,
		StripMarkdown(summary),
		StripMarkdown(description),
		strings.Join(tags, " "),
		strings.Join(paramNames, " "),
		ExtensionText(extensions),
	}
	return foldWhitespace(strings.Join(parts, " "))
}

// SearchableSchemaText projects a schema's name, documentation, and property
// names into one flat string.
func SearchableSchemaText(name, title, description string, propertyNames []string) string {
	parts := []string{
		splitIdentifier(name),
		StripMarkdown(title),
		StripMarkdown(description),
		strings.Join(propertyNames, " "),
	}
	return foldWhitespace(strings.Join(parts, " "))
}

// pathTerms splits a path template into searchable words, dropping braces.
func pathTerms(path string) string {
	cleaned := strings.NewReplacer("{", " ", "}", " ", "/", " ", "-", " ", "_", " ").Replace(path)
	return foldWhitespace(path + " " + cleaned)
}

// splitIdentifier breaks camelCase and snake_case identifiers into words,
// keeping the original form too.
func splitIdentifier(id string) string {
	if id == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(id)
	sb.WriteByte(' ')
	var word []rune
	flush := func() {
		if len(word) > 0 {
			sb.WriteString(string(word))
			sb.WriteByte(' ')
			word = word[:0]
		}
	}
	for _, r := range id {
		switch {
		case r == '_' || r == '-' || r == '.':
			flush()
		case r >= 'A' && r <= 'Z':
			flush()
			word = append(word, r+('a'-'A'))
		default:
			word = append(word, r)
		}
	}
	flush()
	return strings.TrimSpace(sb.String())
}
