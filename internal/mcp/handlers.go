package mcp

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"openapi-mcp-server/internal/category"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/example"
	"openapi-mcp-server/internal/search"
	"openapi-mcp-server/internal/storage/repository"
	"openapi-mcp-server/pkg/types"
)

func (s *Server) bindSearchEndpoints(params map[string]interface{}) (toolCall, error) {
	var p searchParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	methods, err := p.validate()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (interface{}, error) {
		return s.searchEndpoints(ctx, p, methods)
	}, nil
}

func (s *Server) searchEndpoints(ctx context.Context, p searchParams, methods []types.HTTPMethod) (interface{}, error) {
	res, err := s.searcher.Search(ctx, search.Request{
		Keywords:      p.Keywords,
		Methods:       methods,
		Category:      p.Category,
		CategoryGroup: p.CategoryGroup,
		Page:          p.Page,
		PerPage:       p.PerPage,
	})
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, searchResult(hit))
	}

	totalPages := (res.Total + p.PerPage - 1) / p.PerPage
	response := map[string]interface{}{
		"results": results,
		"pagination": map[string]interface{}{
			"total":        res.Total,
			"page":         p.Page,
			"per_page":     p.PerPage,
			"total_pages":  totalPages,
			"has_more":     p.Page < totalPages,
			"has_previous": p.Page > 1,
		},
		"search_metadata": map[string]interface{}{
			"keywords":              p.Keywords,
			"http_methods_filter":   methodStrings(methods),
			"category_filter":       nullableString(p.Category),
			"category_group_filter": nullableString(p.CategoryGroup),
			"result_count":          len(results),
			"search_time_ms":        res.Took.Milliseconds(),
		},
	}
	if len(res.Suggestions) > 0 {
		response["suggestions"] = res.Suggestions
	}
	return response, nil
}

func searchResult(hit search.ScoredEndpoint) map[string]interface{} {
	ep := hit.Endpoint
	out := map[string]interface{}{
		"id":             ep.ID,
		"path":           ep.Path,
		"method":         string(ep.Method),
		"operation_id":   ep.OperationID,
		"summary":        ep.Summary,
		"description":    ep.Description,
		"tags":           ep.Tags,
		"category":       ep.Category,
		"category_group": ep.CategoryGroup,
		"deprecated":     ep.Deprecated,
		"score":          hit.Score,
	}
	if len(ep.Parameters) > 0 {
		out["parameters"] = ep.Parameters
	}
	return out
}

func (s *Server) bindGetSchema(params map[string]interface{}) (toolCall, error) {
	var p schemaParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (interface{}, error) {
		return s.getSchema(ctx, p)
	}, nil
}

func (s *Server) getSchema(ctx context.Context, p schemaParams) (interface{}, error) {
	normalized := normalizeComponentName(p.ComponentName)

	var (
		root         *types.Schema
		dependencies []*types.Schema
		circular     []string
		unresolved   []string
		maxReached   bool
	)
	if *p.ResolveDependencies {
		res, err := s.schemas.GetWithDependencies(ctx, normalized, p.MaxDepth)
		if err != nil {
			return nil, err
		}
		root = res.Schema
		circular = res.CircularRefs
		unresolved = res.Unresolved
		maxReached = len(res.Truncated) > 0

		names := make([]string, 0, len(res.Dependencies))
		for name := range res.Dependencies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			dependencies = append(dependencies, res.Dependencies[name])
		}
	} else {
		sc, err := s.schemas.GetByName(ctx, normalized)
		if err != nil {
			return nil, err
		}
		root = sc
		circular = sc.CircularRefs
	}

	if !*p.IncludeExamples || !*p.IncludeExtensions {
		pruneSchema(root, *p.IncludeExamples, *p.IncludeExtensions)
		for _, dep := range dependencies {
			pruneSchema(dep, *p.IncludeExamples, *p.IncludeExtensions)
		}
	}

	if dependencies == nil {
		dependencies = []*types.Schema{}
	}
	return map[string]interface{}{
		"schema":       root,
		"dependencies": dependencies,
		"metadata": map[string]interface{}{
			"component_name":      p.ComponentName,
			"normalized_name":     normalized,
			"resolution_depth":    p.MaxDepth,
			"total_dependencies":  len(dependencies),
			"circular_references": emptyIfNil(circular),
			"max_depth_reached":   maxReached,
			"unresolved":          emptyIfNil(unresolved),
			"resolution_settings": map[string]interface{}{
				"resolveDependencies": *p.ResolveDependencies,
				"maxDepth":            p.MaxDepth,
				"includeExamples":     *p.IncludeExamples,
				"includeExtensions":   *p.IncludeExtensions,
			},
		},
	}, nil
}

// pruneSchema strips example values and x-* extensions in place. The rows
// are fetched fresh per request, so mutating them is safe.
func pruneSchema(s *types.Schema, keepExamples, keepExtensions bool) {
	if s == nil {
		return
	}
	if !keepExtensions {
		s.Extensions = nil
	}
	s.Root.Walk(func(n *types.SchemaNode) bool {
		if !keepExamples {
			n.Example = nil
		}
		if !keepExtensions {
			n.Extensions = nil
		}
		return true
	})
}

func (s *Server) bindGetExample(params map[string]interface{}) (toolCall, error) {
	var p exampleParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	format, method, err := p.validate()
	if err != nil {
		return nil, err
	}

	byPath := strings.HasPrefix(p.Endpoint, "/")
	var id int64
	if !byPath {
		id, err = strconv.ParseInt(p.Endpoint, 10, 64)
		if err != nil {
			return nil, srverrors.Validation("endpoint",
				"must be a numeric endpoint id or a path starting with /", p.Endpoint).
				WithSuggestions("pass the id from a searchEndpoints result, or a path plus method")
		}
	}

	return func(ctx context.Context) (interface{}, error) {
		var ep *types.Endpoint
		var err error
		if byPath {
			ep, err = s.endpoints.GetByPathMethod(ctx, p.Endpoint, method)
		} else {
			ep, err = s.endpoints.GetByID(ctx, id)
		}
		if err != nil {
			return nil, err
		}

		schemes, err := s.schemes.ListByAPI(ctx, ep.APIID)
		if err != nil {
			return nil, err
		}
		return s.generator.Generate(example.Request{
			Endpoint:    ep,
			Schemes:     schemes,
			Format:      format,
			IncludeAuth: *p.IncludeAuth,
			BaseURL:     p.BaseURL,
		})
	}, nil
}

func (s *Server) bindGetEndpointCategories(params map[string]interface{}) (toolCall, error) {
	var p categoriesParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (interface{}, error) {
		return s.getEndpointCategories(ctx, p)
	}, nil
}

func (s *Server) getEndpointCategories(ctx context.Context, p categoriesParams) (interface{}, error) {
	cats, err := s.endpoints.GetCategories(ctx, category.SortBy(p.SortBy))
	if err != nil {
		return nil, catalogError(err)
	}
	groups, err := s.endpoints.GetCategoryGroups(ctx)
	if err != nil {
		return nil, catalogError(err)
	}

	filtered := make([]types.Category, 0, len(cats))
	totalEndpoints := 0
	for _, c := range cats {
		if p.CategoryGroup != "" && !strings.EqualFold(c.Group, p.CategoryGroup) {
			continue
		}
		if c.EndpointCount == 0 && !p.IncludeEmpty {
			continue
		}
		filtered = append(filtered, c)
		totalEndpoints += c.EndpointCount
	}

	var apiTitle, apiVersion string
	if specs, err := s.apis.List(ctx, repository.ListOptions{Limit: 1}); err == nil && len(specs) > 0 {
		apiTitle = specs[0].Title
		apiVersion = specs[0].Version
	}

	return map[string]interface{}{
		"categories": filtered,
		"groups":     groups,
		"metadata": map[string]interface{}{
			"totalCategories": len(filtered),
			"totalEndpoints":  totalEndpoints,
			"totalGroups":     len(groups),
			"apiTitle":        apiTitle,
			"apiVersion":      apiVersion,
		},
	}, nil
}

// catalogError upgrades a missing-table failure to a connection error that
// tells the caller to run migrations.
func catalogError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection,
			"category catalog is not available", err).
			WithSuggestions("run the migrations before serving: migrate up")
	}
	return err
}

func methodStrings(methods []types.HTTPMethod) interface{} {
	if len(methods) == 0 {
		return nil
	}
	out := make([]string, len(methods))
	for i, m := range methods {
		out[i] = string(m)
	}
	return out
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
