package search

import (
	"fmt"
	"sort"
	"strings"
)

// MaxSuggestions bounds the suggestion list returned for weak queries.
const MaxSuggestions = 5

// Suggestion proposes an alternative query with an estimated utility used
// for ordering.
type Suggestion struct {
	Query   string  `json:"query"`
	Reason  string  `json:"reason"`
	utility float64 `json:"-"`
}

// Suggester proposes query rewrites when a search returns few or no hits.
// Its vocabulary comes from the indexed corpus (category names, operation
// ids, path segments).
type Suggester struct {
	vocabulary []string
}

// NewSuggester creates a suggester over the given vocabulary.
func NewSuggester(vocabulary []string) *Suggester {
	lowered := make([]string, 0, len(vocabulary))
	seen := map[string]bool{}
	for _, v := range vocabulary {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		lowered = append(lowered, v)
	}
	sort.Strings(lowered)
	return &Suggester{vocabulary: lowered}
}

// Suggest returns at most MaxSuggestions rewrites for a query that produced
// resultCount hits, best first.
func (s *Suggester) Suggest(pq *ProcessedQuery, resultCount int) []Suggestion {
	if resultCount >= 3 {
		return nil
	}
	var out []Suggestion

	// Typo fixes against the corpus vocabulary.
	for _, term := range pq.Terms {
		if containsFold(s.vocabulary, term) {
			continue
		}
		if fix, dist := s.closest(term); fix != "" && dist <= 2 {
			rewritten := replaceTerm(pq.Terms, term, fix)
			out = append(out, Suggestion{
				Query:   strings.Join(rewritten, " "),
				Reason:  fmt.Sprintf("did you mean %q", fix),
				utility: 1.0 / float64(dist),
			})
		}
	}

	// Broader query: drop the most specific (longest) term.
	if len(pq.Terms) > 1 {
		longest := 0
		for i, t := range pq.Terms {
			if len(t) > len(pq.Terms[longest]) {
				longest = i
			}
		}
		broader := append([]string{}, pq.Terms[:longest]...)
		broader = append(broader, pq.Terms[longest+1:]...)
		out = append(out, Suggestion{
			Query:   strings.Join(broader, " "),
			Reason:  "broaden by dropping the most specific term",
			utility: 0.4,
		})
	}

	// Refinement: scope the first term to the path field.
	if len(pq.Terms) > 0 && len(pq.FieldFilters) == 0 {
		out = append(out, Suggestion{
			Query:   "path:" + pq.Terms[0] + " " + strings.Join(pq.Terms[1:], " "),
			Reason:  "scope the term to endpoint paths",
			utility: 0.3,
		})
	}

	// Pattern templates for write-style intents.
	if len(pq.Terms) > 0 {
		resource := pq.Terms[len(pq.Terms)-1]
		out = append(out, Suggestion{
			Query:   "method:POST path:" + resource,
			Reason:  "find create operations for the resource",
			utility: 0.2,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].utility > out[j].utility })
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out
}

func (s *Suggester) closest(term string) (string, int) {
	best := ""
	bestDist := 3
	for _, v := range s.vocabulary {
		if abs(len(v)-len(term)) > 2 {
			continue
		}
		d := editDistance(term, v)
		if d < bestDist {
			best, bestDist = v, d
		}
	}
	return best, bestDist
}

func replaceTerm(terms []string, from, to string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		if t == from {
			out[i] = to
		} else {
			out[i] = t
		}
	}
	return out
}

// editDistance is the Levenshtein distance with two rolling rows.
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
