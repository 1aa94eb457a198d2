package search

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/textmatch"
)

// DefaultMaxResults caps the filtered candidate list.
const DefaultMaxResults = 15

// MaxRelevance is the highest score Score can produce: the four match
// components sum to 1.0, plus the largest discount and rating bonuses.
const MaxRelevance = 1.35

// Criteria is what a candidate is filtered and scored against.
type Criteria struct {
	Keywords     []string
	Brands       []string
	Features     []string
	Category     domain.Category
	MinPrice     *float64
	MaxPrice     *float64
	StrictBrands bool
	MaxResults   int
}

// CriteriaFromPlan derives filter criteria from a plan.
func CriteriaFromPlan(plan Plan) Criteria {
	return Criteria{
		Keywords:     plan.Keywords,
		Brands:       plan.Brands,
		Features:     plan.Features,
		Category:     plan.Category,
		MinPrice:     plan.MinPrice,
		MaxPrice:     plan.MaxPrice,
		StrictBrands: plan.StrictBrands,
		MaxResults:   DefaultMaxResults,
	}
}

// Filter drops candidates that violate c, scores the survivors and returns
// them best first. Products sharing a URL keep only their best score.
func Filter(products []domain.RawProduct, c Criteria) []domain.ScoredCandidate {
	limit := c.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	byURL := make(map[string]int)
	out := make([]domain.ScoredCandidate, 0, len(products))
	for _, p := range products {
		if !Accept(p, c) {
			continue
		}
		score, reasons := Score(p, c)
		cand := domain.ScoredCandidate{RawProduct: p, RelevanceScore: score, ScoreReasons: reasons}
		if i, dup := byURL[p.URL]; dup {
			if score > out[i].RelevanceScore {
				out[i] = cand
			}
			continue
		}
		byURL[p.URL] = len(out)
		out = append(out, cand)
	}

	slices.SortStableFunc(out, func(a, b domain.ScoredCandidate) int {
		if c := cmp.Compare(b.RelevanceScore, a.RelevanceScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Price, b.Price); c != 0 {
			return c
		}
		return strings.Compare(a.URL, b.URL)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Accept reports whether p passes the hard filters of c.
func Accept(p domain.RawProduct, c Criteria) bool {
	if p.Title == "" || p.URL == "" || p.Price <= 0 {
		return false
	}
	if c.MinPrice != nil && p.Price < *c.MinPrice {
		return false
	}
	if c.MaxPrice != nil && p.Price > *c.MaxPrice {
		return false
	}
	if c.Category != "" && c.Category != domain.CategoryOther && p.Category != "" {
		if mapped := domain.MapCategory(p.Category); mapped != domain.CategoryOther && mapped != c.Category {
			return false
		}
	}
	if c.StrictBrands && len(c.Brands) > 0 {
		haystack := p.Brand + " " + p.Title
		if textmatch.MatchCount(haystack, c.Brands) == 0 {
			return false
		}
	}
	return true
}

// Score computes the relevance of p and the reasons behind it. The result
// lies in [0, MaxRelevance].
func Score(p domain.RawProduct, c Criteria) (float64, []string) {
	var score float64
	var reasons []string

	if r := textmatch.MatchRatio(p.Title, c.Keywords); r > 0 {
		score += 0.4 * r
		reasons = append(reasons, fmt.Sprintf("title matches %.0f%% of keywords", r*100))
	}
	if r := textmatch.MatchRatio(p.Description, c.Keywords); r > 0 {
		score += 0.2 * r
		reasons = append(reasons, fmt.Sprintf("description matches %.0f%% of keywords", r*100))
	}
	if r := textmatch.MatchRatio(p.Brand+" "+p.Title+" "+p.Description, c.Brands); r > 0 {
		score += 0.2 * r
		reasons = append(reasons, "brand match")
	}
	if r := textmatch.MatchRatio(p.Title+" "+p.Description, c.Features); r > 0 {
		score += 0.2 * r
		reasons = append(reasons, fmt.Sprintf("matches %.0f%% of features", r*100))
	}

	switch d := p.DiscountPercent(); {
	case d >= 50:
		score += 0.2
		reasons = append(reasons, fmt.Sprintf("%.0f%% off", d))
	case d >= 30:
		score += 0.1
		reasons = append(reasons, fmt.Sprintf("%.0f%% off", d))
	case d >= 15:
		score += 0.05
		reasons = append(reasons, fmt.Sprintf("%.0f%% off", d))
	}

	switch {
	case p.Rating >= 4.5 && p.ReviewCount >= 100:
		score += 0.15
		reasons = append(reasons, "highly rated")
	case p.Rating >= 4.0 && p.ReviewCount >= 50:
		score += 0.10
		reasons = append(reasons, "well rated")
	case p.Rating >= 3.5 && p.ReviewCount >= 20:
		score += 0.05
		reasons = append(reasons, "rated")
	}

	return min(score, MaxRelevance), reasons
}
