package category

import (
	"sort"
	"sync"

	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/pkg/types"
)

// SortBy selects the catalog ordering.
type SortBy string

const (
	SortByName          SortBy = "name"
	SortByEndpointCount SortBy = "endpointCount"
	SortByGroup         SortBy = "group"
)

// Valid reports whether the sort key is supported.
func (s SortBy) Valid() bool {
	switch s {
	case SortByName, SortByEndpointCount, SortByGroup:
		return true
	}
	return false
}

// Catalog aggregates categories across a document's endpoints. Safe for
// concurrent readers once built.
type Catalog struct {
	mu         sync.RWMutex
	categories map[string]*types.Category
	groups     map[string]*types.CategoryGroup
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		categories: map[string]*types.Category{},
		groups:     map[string]*types.CategoryGroup{},
	}
}

// Build assigns categories to every endpoint and aggregates the catalog,
// applying x-tagGroups membership and tag metadata from the document.
func Build(root *parser.Object, endpoints []*types.Endpoint) *Catalog {
	c := NewCatalog()
	groups := TagGroups(root)
	tagInfo := TagDescriptions(root)

	for _, ep := range endpoints {
		name := Assign(ep)
		if group, ok := groups[name]; ok {
			ep.CategoryGroup = group
		}
		c.Observe(ep, tagInfo[name])
	}
	return c
}

// Observe folds one categorized endpoint into the catalog. A tags[] entry's
// x-displayName overrides the derived display form.
func (c *Catalog) Observe(ep *types.Endpoint, info TagInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cat, ok := c.categories[ep.Category]
	if !ok {
		cat = &types.Category{
			Name:        ep.Category,
			DisplayName: DisplayName(ep.Category),
			Group:       ep.CategoryGroup,
		}
		c.categories[ep.Category] = cat
	}
	if info.DisplayName != "" {
		cat.DisplayName = info.DisplayName
	}
	if info.Description != "" && cat.Description == "" {
		cat.Description = info.Description
	}
	cat.EndpointCount++
	method := string(ep.Method)
	if !containsString(cat.HTTPMethods, method) {
		cat.HTTPMethods = append(cat.HTTPMethods, method)
		sort.Strings(cat.HTTPMethods)
	}

	if ep.CategoryGroup != "" {
		g, ok := c.groups[ep.CategoryGroup]
		if !ok {
			g = &types.CategoryGroup{Name: ep.CategoryGroup}
			c.groups[ep.CategoryGroup] = g
		}
		if !containsString(g.Categories, ep.Category) {
			g.Categories = append(g.Categories, ep.Category)
			sort.Strings(g.Categories)
		}
		g.TotalEndpoints++
	}
}

// Categories lists the catalog sorted by the given key. An unknown key
// falls back to name order.
func (c *Catalog) Categories(by SortBy) []types.Category {
	c.mu.RLock()
	out := make([]types.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, *cat)
	}
	c.mu.RUnlock()

	switch by {
	case SortByEndpointCount:
		sort.Slice(out, func(i, j int) bool {
			if out[i].EndpointCount != out[j].EndpointCount {
				return out[i].EndpointCount > out[j].EndpointCount
			}
			return out[i].Name < out[j].Name
		})
	case SortByGroup:
		sort.Slice(out, func(i, j int) bool {
			if out[i].Group != out[j].Group {
				return out[i].Group < out[j].Group
			}
			return out[i].Name < out[j].Name
		})
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	}
	return out
}

// Groups lists the x-tagGroups aggregates sorted by name.
func (c *Catalog) Groups() []types.CategoryGroup {
	c.mu.RLock()
	out := make([]types.CategoryGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, *g)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns one category by normalized name.
func (c *Catalog) Lookup(name string) (types.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cat, ok := c.categories[Normalize(name)]
	if !ok {
		return types.Category{}, false
	}
	return *cat, true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
