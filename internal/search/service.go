package search

import (
	"context"
	"time"

	"openapi-mcp-server/internal/category"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/storage/repository"
	"openapi-mcp-server/pkg/types"
)

// candidateWindow caps how many FTS candidates are pulled for reranking.
const candidateWindow = 200

// Request is one search invocation after parameter validation.
type Request struct {
	Keywords      string
	Methods       []types.HTTPMethod
	Category      string
	CategoryGroup string
	Page          int
	PerPage       int
}

// Result is a ranked search response page.
type Result struct {
	Hits        []ScoredEndpoint `json:"hits"`
	Total       int              `json:"total"`
	Query       *ProcessedQuery  `json:"query"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
	Took        time.Duration    `json:"took"`
}

// Service runs the query pipeline end to end: process, fetch candidates,
// rerank, paginate, suggest.
type Service struct {
	endpoints *repository.EndpointRepository
	processor *QueryProcessor
	ranker    *Ranker
	logger    logging.Logger
}

// NewService wires the search pipeline.
func NewService(endpoints *repository.EndpointRepository, processor *QueryProcessor, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Service{
		endpoints: endpoints,
		processor: processor,
		ranker:    NewRanker(),
		logger:    logger.WithComponent("search"),
	}
}

// Search executes one request. Keyword, method and category filters combine
// with AND semantics. Ranking happens over a bounded candidate window, so
// deep pagination past the window returns no further hits.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	pq := s.processor.Process(req.Keywords)
	match := s.processor.MatchExpression(pq)

	filter := repository.SearchFilter{Methods: append(append([]types.HTTPMethod{}, req.Methods...), pq.Methods...)}
	if req.Category != "" {
		filter.Categories = []string{req.Category}
	}
	if req.CategoryGroup != "" {
		filter.CategoryGroups = []string{req.CategoryGroup}
	}

	hits, total, err := s.endpoints.Search(ctx, match, filter, candidateWindow, 0)
	if err != nil {
		return nil, err
	}

	candidates := make([]*types.Endpoint, len(hits))
	for i, h := range hits {
		candidates[i] = h.Endpoint
	}
	ranked := s.ranker.Rank(pq, candidates)

	page := paginate(ranked, req.Page, req.PerPage)
	res := &Result{
		Hits:  page,
		Total: total,
		Query: pq,
		Took:  time.Since(start),
	}
	if total < 3 {
		res.Suggestions = s.suggester(ctx).Suggest(pq, total)
	}

	s.logger.InfoContext(ctx, "search executed",
		"keywords", req.Keywords,
		"total", total,
		"returned", len(page),
		"took_ms", res.Took.Milliseconds())
	return res, nil
}

// suggester builds a vocabulary from the category catalog on demand. The
// catalog is small, so rebuilding per weak query is cheap.
func (s *Service) suggester(ctx context.Context) *Suggester {
	var vocab []string
	cats, err := s.endpoints.GetCategories(ctx, category.SortByName)
	if err == nil {
		for _, c := range cats {
			vocab = append(vocab, c.Name)
		}
	}
	return NewSuggester(vocab)
}

func paginate(ranked []ScoredEndpoint, page, perPage int) []ScoredEndpoint {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	if start >= len(ranked) {
		return nil
	}
	end := start + perPage
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[start:end]
}
