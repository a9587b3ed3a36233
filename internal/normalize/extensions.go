package normalize

import (
	"sort"
	"strings"

	"openapi-mcp-server/pkg/types"
)

// ExtensionClass buckets a vendor extension by what it concerns.
type ExtensionClass string

const (
	ExtensionDocumentation ExtensionClass = "documentation"
	ExtensionVendor        ExtensionClass = "vendor"
	ExtensionLanguage      ExtensionClass = "language"
	ExtensionBehavior      ExtensionClass = "behavior"
	ExtensionSecurity      ExtensionClass = "security"
	ExtensionPagination    ExtensionClass = "pagination"
	ExtensionCustom        ExtensionClass = "custom"
)

// vendorAliases maps well-known vendor prefixes to their canonical spelling
// so lookups do not depend on which generator emitted the file.
var vendorAliases = map[string]string{
	"x-amazon-apigateway": "x-aws-apigateway",
	"x-azure-":            "x-ms-",
	"x-code-samples":      "x-codesamples",
}

// CanonicalExtensionKey lowercases an extension key and rewrites known
// vendor prefixes to one canonical form.
func CanonicalExtensionKey(key string) string {
	k := strings.ToLower(key)
	for alias, canonical := range vendorAliases {
		if strings.HasPrefix(k, alias) {
			return canonical + strings.TrimPrefix(k, alias)
		}
	}
	return k
}

var classPrefixes = []struct {
	class    ExtensionClass
	prefixes []string
}{
	{ExtensionDocumentation, []string{"x-displayname", "x-taggroups", "x-logo", "x-summary", "x-docs", "x-codesamples", "x-examples"}},
	{ExtensionVendor, []string{"x-aws-", "x-google-", "x-ms-", "x-kong-", "x-apigee-"}},
	{ExtensionLanguage, []string{"x-go-", "x-java-", "x-kotlin-", "x-swift-", "x-ts-", "x-codegen", "x-oapi-"}},
	{ExtensionSecurity, []string{"x-auth", "x-scopes", "x-security", "x-acl", "x-permissions"}},
	{ExtensionPagination, []string{"x-pagination", "x-cursor", "x-page"}},
	{ExtensionBehavior, []string{"x-internal", "x-beta", "x-visibility", "x-nullable", "x-deprecated", "x-feature", "x-rate-limit"}},
}

// ClassifyExtension buckets a canonical extension key by prefix. Unknown
// keys land in the custom bucket.
func ClassifyExtension(key string) ExtensionClass {
	k := CanonicalExtensionKey(key)
	for _, c := range classPrefixes {
		for _, p := range c.prefixes {
			if strings.HasPrefix(k, p) {
				return c.class
			}
		}
	}
	return ExtensionCustom
}

// MergeStrategy selects how overlapping extension values combine.
type MergeStrategy string

const (
	// MergeOverride takes the overlay value wholesale.
	MergeOverride MergeStrategy = "override"
	// MergeDeep recurses into nested maps, overlaying leaf values.
	MergeDeep MergeStrategy = "deep-merge"
	// MergeCombineLists recurses like deep-merge and concatenates lists
	// instead of replacing them.
	MergeCombineLists MergeStrategy = "combine-lists"
)

// MergeExtensions combines a base extension set with an overlay. The inputs
// are not modified.
func MergeExtensions(base, overlay types.Extensions, strategy MergeStrategy) types.Extensions {
	if base == nil && overlay == nil {
		return nil
	}
	out := types.Extensions{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		key := CanonicalExtensionKey(k)
		if strategy == MergeOverride {
			out[key] = v
			continue
		}
		out[key] = mergeValue(out[key], v, strategy)
	}
	return out
}

func mergeValue(base, overlay interface{}, strategy MergeStrategy) interface{} {
	switch o := overlay.(type) {
	case map[string]interface{}:
		b, ok := base.(map[string]interface{})
		if !ok {
			return overlay
		}
		merged := make(map[string]interface{}, len(b)+len(o))
		for k, v := range b {
			merged[k] = v
		}
		for k, v := range o {
			merged[k] = mergeValue(merged[k], v, strategy)
		}
		return merged
	case []interface{}:
		if strategy != MergeCombineLists {
			return overlay
		}
		b, ok := base.([]interface{})
		if !ok {
			return overlay
		}
		combined := make([]interface{}, 0, len(b)+len(o))
		combined = append(combined, b...)
		return append(combined, o...)
	default:
		return overlay
	}
}

// ExtensionText projects the human-readable strings inside an extension set
// into one flat string for the full-text index. Machine values such as URLs
// and ARNs are skipped.
func ExtensionText(ext types.Extensions) string {
	if len(ext) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ext))
	for k := range ext {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		collectExtensionText(ext[k], &parts)
	}
	return foldWhitespace(strings.Join(parts, " "))
}

func collectExtensionText(v interface{}, parts *[]string) {
	switch t := v.(type) {
	case string:
		if isHumanReadable(t) {
			*parts = append(*parts, StripMarkdown(t))
		}
	case []interface{}:
		for _, item := range t {
			collectExtensionText(item, parts)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectExtensionText(t[k], parts)
		}
	}
}

// isHumanReadable keeps prose and display names, dropping URLs and
// identifier-shaped tokens.
func isHumanReadable(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "://") {
		return false
	}
	if !strings.ContainsRune(s, ' ') && strings.ContainsAny(s, ":/{}$") {
		return false
	}
	return true
}
