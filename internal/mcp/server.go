// Package mcp exposes the knowledge base over the Model Context Protocol:
// four tools behind a shared resilience chain of circuit breaker, bounded
// concurrency, deadline and retry.
package mcp

import (
	"context"
	"database/sql"

	mcpsdk "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/server"

	"openapi-mcp-server/internal/circuitbreaker"
	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/example"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/monitoring"
	"openapi-mcp-server/internal/pool"
	"openapi-mcp-server/internal/retry"
	"openapi-mcp-server/internal/search"
	"openapi-mcp-server/internal/storage/repository"
)

// Method names as they appear on the tool surface.
const (
	MethodSearchEndpoints       = "searchEndpoints"
	MethodGetSchema             = "getSchema"
	MethodGetExample            = "getExample"
	MethodGetEndpointCategories = "getEndpointCategories"
)

// Server wires the four knowledge base tools onto an MCP server.
type Server struct {
	cfg       *config.Config
	mcpServer *server.Server

	searcher  *search.Service
	apis      *repository.APIRepository
	endpoints *repository.EndpointRepository
	schemas   *repository.SchemaRepository
	schemes   *repository.SecuritySchemeRepository
	generator *example.Generator

	breakers *circuitbreaker.Registry
	pool     *pool.Pool
	retryCfg retry.Config
	metrics  *monitoring.Collector
	logger   logging.Logger
}

// NewServer builds the tool surface over an open database. metrics may be
// nil when monitoring is not wired.
func NewServer(cfg *config.Config, db *sql.DB, metrics *monitoring.Collector, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NoOp()
	}

	processor, err := search.NewQueryProcessor(cfg.Search.SynonymsPath)
	if err != nil {
		return nil, err
	}
	endpoints := repository.NewEndpointRepository(db)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Server.RetryAttempts

	s := &Server{
		cfg:       cfg,
		searcher:  search.NewService(endpoints, processor, logger),
		apis:      repository.NewAPIRepository(db),
		endpoints: endpoints,
		schemas:   repository.NewSchemaRepository(db),
		schemes:   repository.NewSecuritySchemeRepository(db),
		generator: example.New(cfg.Example.DefaultBaseURL),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			FailureThreshold: cfg.Server.BreakerFailureThreshold,
			SuccessThreshold: cfg.Server.BreakerSuccessThreshold,
			RecoveryTimeout:  cfg.Server.BreakerRecoveryTimeout,
		}),
		pool:     pool.New(cfg.Server.MaxConcurrent),
		retryCfg: retryCfg,
		metrics:  metrics,
		logger:   logger.WithComponent("mcp"),
	}

	s.mcpServer = mcpsdk.NewServer(cfg.Server.Name, cfg.Server.Version)
	s.registerTools()
	return s, nil
}

// MCPServer exposes the underlying SDK server for transport wiring.
func (s *Server) MCPServer() *server.Server {
	return s.mcpServer
}

// Pool exposes the concurrency pool for monitoring gauges.
func (s *Server) Pool() *pool.Pool {
	return s.pool
}

// SyntheticSearch runs a minimal query through the serving path; the
// health checker uses it to probe MCP responsiveness.
func (s *Server) SyntheticSearch(ctx context.Context) error {
	_, err := s.searcher.Search(ctx, search.Request{Keywords: "health", Page: 1, PerPage: 1})
	return err
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcpsdk.NewTool(
		MethodSearchEndpoints,
		"Search API endpoints by keywords with optional method, category and category-group filters. Supports field prefixes (path:, method:, param:), boolean operators (AND, OR, NOT) and quoted phrases. Results are ranked by relevance and paginated.",
		mcpsdk.ObjectSchema("Endpoint search parameters", map[string]interface{}{
			"keywords": map[string]interface{}{
				"type":        "string",
				"minLength":   1,
				"maxLength":   500,
				"description": "Search phrase, e.g. 'create user' or 'path:/orders method:POST'",
			},
			"httpMethods": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string", "enum": []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}},
				"uniqueItems": true,
				"description": "Restrict results to these HTTP methods",
			},
			"category": map[string]interface{}{
				"type":        "string",
				"maxLength":   255,
				"description": "Restrict results to one category, e.g. 'users'",
			},
			"categoryGroup": map[string]interface{}{
				"type":        "string",
				"maxLength":   255,
				"description": "Restrict results to one category group",
			},
			"page": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"default":     1,
				"description": "Result page, starting at 1",
			},
			"perPage": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"maximum":     50,
				"default":     20,
				"description": "Results per page",
			},
		}, []string{"keywords"}),
	), mcpsdk.ToolHandlerFunc(s.wrap(MethodSearchEndpoints, s.bindSearchEndpoints)))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		MethodGetSchema,
		"Fetch a schema component with its dependency closure resolved to a bounded depth. Accepts bare names or $ref forms like #/components/schemas/User. Circular references are reported, not followed.",
		mcpsdk.ObjectSchema("Schema lookup parameters", map[string]interface{}{
			"componentName": map[string]interface{}{
				"type":        "string",
				"minLength":   1,
				"maxLength":   255,
				"description": "Schema name or reference, e.g. 'User' or '#/components/schemas/User'",
			},
			"resolveDependencies": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Resolve referenced schemas transitively",
			},
			"maxDepth": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"maximum":     10,
				"default":     3,
				"description": "How many reference hops to resolve",
			},
			"includeExamples": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Keep example values in the response",
			},
			"includeExtensions": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Keep x-* extensions in the response",
			},
		}, []string{"componentName"}),
	), mcpsdk.ToolHandlerFunc(s.wrap(MethodGetSchema, s.bindGetSchema)))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		MethodGetExample,
		"Generate a ready-to-run request example for an endpoint in curl, http-client or script form. Path placeholders are filled with sentinel values and authorization material is injected from the endpoint's security requirements.",
		mcpsdk.ObjectSchema("Example generation parameters", map[string]interface{}{
			"endpoint": map[string]interface{}{
				"type":        "string",
				"description": "Endpoint id, or a path like /api/v1/users/{id} (then method is required)",
			},
			"method": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "TRACE"},
				"description": "HTTP method, required when endpoint is a path",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"curl", "http-client", "script"},
				"description": "Example flavor to generate",
			},
			"includeAuth": map[string]interface{}{
				"type":        "boolean",
				"default":     true,
				"description": "Inject authorization material for the endpoint's security scheme",
			},
			"baseUrl": map[string]interface{}{
				"type":        "string",
				"description": "Base URL to use instead of the configured default",
			},
		}, []string{"endpoint", "format"}),
	), mcpsdk.ToolHandlerFunc(s.wrap(MethodGetExample, s.bindGetExample)))

	s.mcpServer.AddTool(mcpsdk.NewTool(
		MethodGetEndpointCategories,
		"Browse the endpoint category catalog: categories with endpoint counts and methods, plus category groups. Sortable by name, endpoint count or group.",
		mcpsdk.ObjectSchema("Category catalog parameters", map[string]interface{}{
			"categoryGroup": map[string]interface{}{
				"type":        "string",
				"description": "Only return categories of this group",
			},
			"includeEmpty": map[string]interface{}{
				"type":        "boolean",
				"default":     false,
				"description": "Include categories with zero endpoints",
			},
			"sortBy": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"name", "endpointCount", "group"},
				"default":     "name",
				"description": "Catalog ordering",
			},
		}, []string{}),
	), mcpsdk.ToolHandlerFunc(s.wrap(MethodGetEndpointCategories, s.bindGetEndpointCategories)))

	s.logger.Info("MCP tools registered", "count", 4)
}
