// Package category derives a browsable catalog from endpoint tags and paths.
// Assignment is three-tiered: the first tag wins, then the first meaningful
// path segment, then a fallback bucket.
package category

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/pkg/types"
)

// FallbackCategory receives endpoints with neither tags nor a usable path
// segment.
const FallbackCategory = "uncategorized"

var titleCaser = cases.Title(language.English, cases.NoLower)

// Normalize canonicalizes a raw tag or segment into a category name:
// lowercased, spaces and hyphens become underscores, anything that is not
// a letter, digit or underscore is dropped. Unicode letters are preserved.
func Normalize(raw string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == ' ' || r == '-' || r == '\t':
			sb.WriteByte('_')
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}

// DisplayName converts a normalized category name back to its display form:
// underscores become hyphens and each word is title-cased, so
// "search_promo" renders as "Search-Promo".
func DisplayName(normalized string) string {
	if normalized == "" {
		return ""
	}
	words := strings.Split(normalized, "_")
	for i, w := range words {
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, "-")
}

// Assign sets Category on the endpoint using the three-tier rule and returns
// the chosen name.
func Assign(ep *types.Endpoint) string {
	if len(ep.Tags) > 0 {
		name := Normalize(ep.Tags[0])
		if name != "" {
			ep.Category = name
			return name
		}
	}
	if seg := firstPathSegment(ep.Path); seg != "" {
		if name := Normalize(seg); name != "" {
			ep.Category = name
			return name
		}
	}
	ep.Category = FallbackCategory
	return FallbackCategory
}

// stopSegments are path segments too generic to name a category: routing
// prefixes and resource-identifier filler.
var stopSegments = map[string]bool{
	"api":      true,
	"users":    true,
	"resource": true,
	"id":       true,
}

// firstPathSegment returns the first concrete path segment, skipping
// placeholders, version prefixes like v1 or v2, and generic segments such
// as api or users.
func firstPathSegment(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		if isVersionSegment(seg) || stopSegments[strings.ToLower(seg)] {
			continue
		}
		return seg
	}
	return ""
}

func isVersionSegment(seg string) bool {
	if len(seg) < 2 || (seg[0] != 'v' && seg[0] != 'V') {
		return false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TagGroups reads the x-tagGroups document extension and returns the group
// name for each normalized tag.
func TagGroups(root *parser.Object) map[string]string {
	raw, ok := root.GetArray("x-tagGroups")
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, item := range raw {
		groupObj, ok := item.(*parser.Object)
		if !ok {
			continue
		}
		groupName, _ := groupObj.GetString("name")
		tags, _ := groupObj.GetArray("tags")
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				out[Normalize(s)] = groupName
			}
		}
	}
	return out
}

// TagInfo is the document-level metadata a tags[] entry contributes to its
// category.
type TagInfo struct {
	Description string
	DisplayName string
}

// TagDescriptions reads the document-level tags array for category
// descriptions and x-displayName overrides, keyed by normalized name.
func TagDescriptions(root *parser.Object) map[string]TagInfo {
	raw, ok := root.GetArray("tags")
	if !ok {
		return nil
	}
	out := map[string]TagInfo{}
	for _, item := range raw {
		tagObj, ok := item.(*parser.Object)
		if !ok {
			continue
		}
		name, _ := tagObj.GetString("name")
		if name == "" {
			continue
		}
		desc, _ := tagObj.GetString("description")
		display, _ := tagObj.GetString("x-displayName")
		if desc != "" || display != "" {
			out[Normalize(name)] = TagInfo{Description: desc, DisplayName: display}
		}
	}
	return out
}
