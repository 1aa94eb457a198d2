// Package search implements the discovery pipeline stages that run before
// persistence: query planning, marketplace fan-out with result caching, and
// filtering with relevance scoring.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/textmatch"
)

// DefaultBrands are brand words recognised inside free-text queries.
var DefaultBrands = []string{
	"acer", "adidas", "anker", "apple", "asus", "bose", "canon", "dell", "dewalt",
	"dyson", "garmin", "google", "hp", "jbl", "kitchenaid", "lego", "lenovo", "lg",
	"logitech", "microsoft", "msi", "nike", "nikon", "nintendo", "philips", "razer",
	"samsung", "sony", "xbox", "playstation",
}

// maxQueryLen is the longest query each marketplace accepts.
var maxQueryLen = map[domain.MarketType]int{
	domain.MarketAmazon:         200,
	domain.MarketWalmart:        100,
	domain.MarketEbay:           80,
	domain.MarketGoogleShopping: 150,
}

var (
	errEmptyQuery   = errors.New("nothing left after normalisation")
	errQueryTooLong = errors.New("query too long")
)

const amount = `\$?\s*(\d[\d,]*(?:\.\d+)?)`

var (
	betweenRe = regexp.MustCompile(`(?i)\bbetween\s+` + amount + `\s+(?:and|to|-)\s+` + amount)
	rangeRe   = regexp.MustCompile(`(?i)\$\s*(\d[\d,]*(?:\.\d+)?)\s*(?:-|to)\s*` + amount)
	upperRe   = regexp.MustCompile(`(?i)\b(?:under|below|less\s+than|cheaper\s+than|up\s+to|max(?:imum)?)\s+` + amount)
	lowerRe   = regexp.MustCompile(`(?i)\b(?:over|above|more\s+than|at\s+least|min(?:imum)?)\s+` + amount)
)

// PlanInput is the raw material of a Plan.
type PlanInput struct {
	Query    string
	Category string
	MinPrice *float64
	MaxPrice *float64
	Brands   []string
	Features []string
	Goal     *domain.Goal
	// Markets restricts the fan-out; empty means every configured market.
	Markets []domain.MarketType
}

// Plan is the normalised form of one search.
type Plan struct {
	RawQuery     string
	Keywords     []string
	Category     domain.Category
	MinPrice     *float64
	MaxPrice     *float64
	Brands       []string
	Features     []string
	StrictBrands bool
	Markets      []domain.MarketType
	Queries      map[domain.MarketType]string
	GoalID       *string
}

// Planner turns user or goal input into a Plan.
type Planner struct {
	brands map[string]struct{}
}

// NewPlanner creates a Planner recognising the given brand words. A nil
// list uses DefaultBrands.
func NewPlanner(brands []string) *Planner {
	if brands == nil {
		brands = DefaultBrands
	}
	set := make(map[string]struct{}, len(brands))
	for _, b := range brands {
		set[strings.ToLower(b)] = struct{}{}
	}
	return &Planner{brands: set}
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v, err == nil && v >= 0
}

// inferPrices extracts price bounds from text and returns the text with the
// price phrases removed.
func inferPrices(text string) (lo, hi *float64, rest string) {
	rest = text
	for _, re := range []*regexp.Regexp{betweenRe, rangeRe} {
		if m := re.FindStringSubmatch(rest); m != nil {
			a, okA := parseAmount(m[1])
			b, okB := parseAmount(m[2])
			if okA && okB {
				if a > b {
					a, b = b, a
				}
				lo, hi = &a, &b
				rest = strings.Replace(rest, m[0], " ", 1)
				return lo, hi, rest
			}
		}
	}
	if m := upperRe.FindStringSubmatch(rest); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			hi = &v
			rest = strings.Replace(rest, m[0], " ", 1)
		}
	}
	if m := lowerRe.FindStringSubmatch(rest); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			lo = &v
			rest = strings.Replace(rest, m[0], " ", 1)
		}
	}
	return lo, hi, rest
}

func firstNonNil(ps ...*float64) *float64 {
	for _, p := range ps {
		if p != nil {
			v := *p
			return &v
		}
	}
	return nil
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := textmatch.Normalize(t); n != "" {
			out = append(out, n)
		}
	}
	return lo.Uniq(out)
}

// Plan builds a Plan. It never fails: per-market formatting problems fall
// back to the raw query for that market only.
func (p *Planner) Plan(in PlanInput) Plan {
	inferredMin, inferredMax, rest := inferPrices(in.Query)

	var goalMin, goalMax *float64
	var goalKeywords, goalBrands, goalFeatures []string
	var category domain.Category
	var goalID *string
	if g := in.Goal; g != nil {
		goalMin, goalMax = g.MinPrice, g.MaxPrice
		goalKeywords = g.Keywords
		goalBrands = g.Brands
		goalFeatures = g.Features
		category = g.Category
		id := g.ID
		goalID = &id
	}
	if in.Category != "" {
		category = domain.MapCategory(in.Category)
	}

	keywords := textmatch.Keywords(rest)
	for _, kw := range goalKeywords {
		keywords = append(keywords, textmatch.Keywords(kw)...)
	}
	keywords = lo.Uniq(keywords)

	explicitBrands := normalizeTerms(append(slices.Clone(in.Brands), goalBrands...))
	brands := slices.Clone(explicitBrands)
	for _, tok := range textmatch.Tokens(in.Query) {
		if _, known := p.brands[tok]; known && !slices.Contains(brands, tok) {
			brands = append(brands, tok)
		}
	}

	plan := Plan{
		RawQuery:     strings.TrimSpace(in.Query),
		Keywords:     keywords,
		Category:     category,
		MinPrice:     firstNonNil(in.MinPrice, goalMin, inferredMin),
		MaxPrice:     firstNonNil(in.MaxPrice, goalMax, inferredMax),
		Brands:       brands,
		Features:     normalizeTerms(append(slices.Clone(in.Features), goalFeatures...)),
		StrictBrands: len(explicitBrands) > 0,
		Markets:      slices.Clone(in.Markets),
		GoalID:       goalID,
	}
	if plan.RawQuery == "" && in.Goal != nil {
		plan.RawQuery = in.Goal.Title
	}

	markets := plan.Markets
	if len(markets) == 0 {
		markets = domain.MarketTypes
	}
	plan.Queries = make(map[domain.MarketType]string, len(markets))
	for _, m := range markets {
		q, err := formatQuery(m, plan)
		if err != nil {
			q = plan.RawQuery
		}
		plan.Queries[m] = q
	}
	return plan
}

// PlanGoal builds the Plan of a standing goal.
func (p *Planner) PlanGoal(g domain.Goal, markets []domain.MarketType) Plan {
	return p.Plan(PlanInput{Query: g.Title, Goal: &g, Markets: markets})
}

// formatQuery renders the plan as one marketplace's search string.
func formatQuery(m domain.MarketType, plan Plan) (string, error) {
	if len(plan.Keywords) == 0 {
		return "", errEmptyQuery
	}

	terms := slices.Clone(plan.Keywords)
	for _, b := range plan.Brands {
		if !slices.Contains(terms, b) {
			terms = append([]string{b}, terms...)
		}
	}

	var q string
	switch m {
	case domain.MarketGoogleShopping:
		q = strings.Join(terms, " ")
		if plan.MaxPrice != nil {
			q += fmt.Sprintf(" under $%.0f", *plan.MaxPrice)
		}
	case domain.MarketEbay:
		// eBay treats parentheses and commas as OR groups; keep plain words.
		q = strings.Join(terms, " ")
	default:
		q = strings.Join(terms, " ")
	}

	if limit, ok := maxQueryLen[m]; ok && len(q) > limit {
		return "", fmt.Errorf("%s: %w", m, errQueryTooLong)
	}
	return q, nil
}
