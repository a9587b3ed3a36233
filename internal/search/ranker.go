package search

import (
	"math"
	"sort"
	"strings"

	"openapi-mcp-server/pkg/types"
)

// bm25K1 and bm25B are the standard free parameters of the BM25 formula.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// fieldWeights orders field importance for relevance. Path hits matter
// more than body-text hits.
var fieldWeights = map[string]float64{
	"path":         3.0,
	"operation_id": 2.5,
	"summary":      2.0,
	"tags":         1.8,
	"description":  1.2,
	"parameters":   1.0,
	"content":      0.6,
}

// ScoredEndpoint pairs an endpoint with its final normalized score.
type ScoredEndpoint struct {
	Endpoint *types.Endpoint `json:"endpoint"`
	Score    float64         `json:"score"`
}

// Explanation is the calculation trace for one document against one query.
type Explanation struct {
	FieldScores map[string]float64 `json:"field_scores"`
	BaseScore   float64            `json:"base_score"`
	Boosts      map[string]float64 `json:"boosts,omitempty"`
	Penalties   map[string]float64 `json:"penalties,omitempty"`
	RawScore    float64            `json:"raw_score"`
	FinalScore  float64            `json:"final_score"`
}

// Ranker scores candidate endpoints against a processed query. Document
// frequencies come from the candidate set itself, so scoring adapts to the
// ingested corpus without a separate training pass.
type Ranker struct{}

// NewRanker creates a ranker.
func NewRanker() *Ranker {
	return &Ranker{}
}

// fieldText projects one endpoint into its scoring fields.
func fieldText(ep *types.Endpoint) map[string]string {
	var paramNames []string
	for _, p := range ep.Parameters {
		paramNames = append(paramNames, p.Name)
	}
	return map[string]string{
		"path":         strings.ToLower(ep.Path),
		"operation_id": strings.ToLower(ep.OperationID),
		"summary":      strings.ToLower(ep.Summary),
		"tags":         strings.ToLower(strings.Join(ep.Tags, " ")),
		"description":  strings.ToLower(ep.Description),
		"parameters":   strings.ToLower(strings.Join(paramNames, " ")),
		"content":      strings.ToLower(ep.SearchableText),
	}
}

func termFrequency(text, term string) int {
	if term == "" || text == "" {
		return 0
	}
	return strings.Count(text, term)
}

// corpusStats holds per-field document frequencies and average lengths over
// the candidate set.
type corpusStats struct {
	docs      int
	docFreq   map[string]map[string]int
	avgLength map[string]float64
}

func buildStats(endpoints []*types.Endpoint, terms []string) *corpusStats {
	stats := &corpusStats{
		docs:      len(endpoints),
		docFreq:   map[string]map[string]int{},
		avgLength: map[string]float64{},
	}
	totalLen := map[string]float64{}
	for _, ep := range endpoints {
		for field, text := range fieldText(ep) {
			totalLen[field] += float64(len(strings.Fields(text)))
			for _, term := range terms {
				if termFrequency(text, term) > 0 {
					if stats.docFreq[field] == nil {
						stats.docFreq[field] = map[string]int{}
					}
					stats.docFreq[field][term]++
				}
			}
		}
	}
	for field, total := range totalLen {
		if stats.docs > 0 {
			stats.avgLength[field] = total / float64(stats.docs)
		}
	}
	return stats
}

func (s *corpusStats) idf(field, term string) float64 {
	df := 0
	if s.docFreq[field] != nil {
		df = s.docFreq[field][term]
	}
	// BM25 idf with the +1 smoothing that keeps scores positive.
	return math.Log(1 + (float64(s.docs)-float64(df)+0.5)/(float64(df)+0.5))
}

func (s *corpusStats) bm25(field, text string, terms []string) float64 {
	docLen := float64(len(strings.Fields(text)))
	avg := s.avgLength[field]
	if avg == 0 {
		avg = 1
	}
	score := 0.0
	for _, term := range terms {
		tf := float64(termFrequency(text, term))
		if tf == 0 {
			continue
		}
		norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*docLen/avg))
		score += s.idf(field, term) * norm
	}
	return score
}

// Rank scores the candidates and returns them sorted best-first.
func (r *Ranker) Rank(pq *ProcessedQuery, candidates []*types.Endpoint) []ScoredEndpoint {
	terms := append(append([]string{}, pq.Terms...), pq.EnhancedTerms...)
	stats := buildStats(candidates, terms)

	out := make([]ScoredEndpoint, 0, len(candidates))
	for _, ep := range candidates {
		exp := r.explain(stats, terms, ep)
		out = append(out, ScoredEndpoint{Endpoint: ep, Score: exp.FinalScore})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Explain returns the full calculation trace for one candidate.
func (r *Ranker) Explain(pq *ProcessedQuery, candidates []*types.Endpoint, target *types.Endpoint) *Explanation {
	terms := append(append([]string{}, pq.Terms...), pq.EnhancedTerms...)
	return r.explain(buildStats(candidates, terms), terms, target)
}

func (r *Ranker) explain(stats *corpusStats, terms []string, ep *types.Endpoint) *Explanation {
	exp := &Explanation{
		FieldScores: map[string]float64{},
		Boosts:      map[string]float64{},
		Penalties:   map[string]float64{},
	}
	for field, text := range fieldText(ep) {
		score := stats.bm25(field, text, terms)
		if score > 0 {
			exp.FieldScores[field] = score * fieldWeights[field]
			exp.BaseScore += exp.FieldScores[field]
		}
	}

	raw := exp.BaseScore
	segments := pathSegmentCount(ep.Path)
	switch {
	case segments <= 3:
		exp.Boosts["short_path"] = 1.15
	case segments >= 6:
		exp.Penalties["long_path"] = 0.85
	}
	if ep.Summary != "" && ep.Description != "" {
		exp.Boosts["documented"] = 1.2
	} else if ep.Summary == "" && ep.Description == "" {
		exp.Penalties["undocumented"] = 0.8
	}
	if len(ep.Parameters) > 0 {
		exp.Boosts["has_parameters"] = 1.05
	}
	switch ep.Method {
	case types.MethodGet, types.MethodPost:
		exp.Boosts["common_method"] = 1.05
	case types.MethodPatch, types.MethodHead, types.MethodOptions:
		exp.Penalties["uncommon_method"] = 0.9
	}
	if ep.Deprecated {
		exp.Penalties["deprecated"] = 0.5
	}

	for _, b := range exp.Boosts {
		raw *= b
	}
	for _, p := range exp.Penalties {
		raw *= p
	}
	exp.RawScore = raw
	exp.FinalScore = sigmoid(raw)
	return exp
}

func pathSegmentCount(path string) int {
	count := 0
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			count++
		}
	}
	return count
}

// sigmoid squashes raw scores into (0, 1). The divisor keeps typical BM25
// magnitudes out of the saturated tail.
func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x/4))
}
