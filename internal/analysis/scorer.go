// Package analysis scores the quality of a stored deal from its price
// history, comparable listings and the goal it was found for.
package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/textmatch"
)

const (
	neutral         = 0.5
	volatilityWin   = 7
	maxRecommend    = 5
	minComparables  = 3
	lowConfidence   = 0.5
	anomalyPenalty  = 0.3
	outlierDiscount = 80.0
)

// Metric group names, also the keys of AnalysisResult.Metrics.
const (
	GroupPrice      = "price"
	GroupHistorical = "historical"
	GroupMarket     = "market"
	GroupGoal       = "goal"
)

// Weights are the group weights of the overall score. They must sum to 1.
type Weights struct {
	Price      float64
	Historical float64
	Market     float64
	Goal       float64
}

var (
	// DefaultWeights apply when the data is complete enough to trust.
	DefaultWeights = Weights{Price: 0.35, Historical: 0.2, Market: 0.2, Goal: 0.25}
	// SparseWeights lean on the deal's own price and the goal when history
	// and market data are thin.
	SparseWeights = Weights{Price: 0.4, Historical: 0.1, Market: 0.1, Goal: 0.4}
)

// Input is everything the scorer looks at. History is oldest first.
type Input struct {
	Deal        domain.Deal
	History     []domain.PricePoint
	Comparables []domain.Deal
	Goal        *domain.Goal
	Now         time.Time
}

// Scorer computes AnalysisResults. It is pure and safe for concurrent use.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer { return &Scorer{} }

type group struct {
	score   float64
	metrics map[string]float64
}

// guarded runs fn and substitutes a neutral group if it panics or yields a
// non-finite score.
func guarded(fn func() group) (g group) {
	defer func() {
		if r := recover(); r != nil {
			g = group{score: neutral, metrics: map[string]float64{"error": 1}}
		}
	}()
	g = fn()
	g.score = clamp01(finite(g.score))
	for k, v := range g.metrics {
		g.metrics[k] = round(finite(v), 4)
	}
	return g
}

// Score analyzes one deal.
func (s *Scorer) Score(in Input) domain.AnalysisResult {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	history := make([]float64, 0, len(in.History))
	for _, p := range in.History {
		if p.Price > 0 {
			history = append(history, p.Price)
		}
	}
	comps := make([]float64, 0, len(in.Comparables))
	for _, c := range in.Comparables {
		if c.ID != in.Deal.ID && c.Price > 0 {
			comps = append(comps, c.Price)
		}
	}

	price := guarded(func() group { return priceGroup(in.Deal, in.History, comps) })
	hist := guarded(func() group { return historicalGroup(in.Deal.Price, history) })
	market := guarded(func() group { return marketGroup(in.Deal, in.Comparables, history) })
	goal := guarded(func() group { return goalGroup(in.Deal, in.Goal, in.Now) })

	confidence := confidenceOf(in, len(history), len(comps))
	w := DefaultWeights
	if confidence < lowConfidence {
		w = SparseWeights
	}

	anomaly := anomalyScore(in.Deal, comps)
	total := w.Price*price.score + w.Historical*hist.score + w.Market*market.score + w.Goal*goal.score
	score := 100 * total * (1 - anomalyPenalty*anomaly)

	res := domain.AnalysisResult{
		DealID: in.Deal.ID,
		Score:  round(math.Max(0, math.Min(100, score)), 1),
		Metrics: map[string]map[string]float64{
			GroupPrice:      withScore(price),
			GroupHistorical: withScore(hist),
			GroupMarket:     withScore(market),
			GroupGoal:       withScore(goal),
		},
		Confidence:   round(confidence, 2),
		AnomalyScore: round(anomaly, 3),
		AnalyzedAt:   in.Now.UTC(),
	}
	res.Recommendations = recommend(in.Deal, res)
	return res
}

func withScore(g group) map[string]float64 {
	m := make(map[string]float64, len(g.metrics)+1)
	for k, v := range g.metrics {
		m[k] = v
	}
	m["score"] = round(g.score, 4)
	return m
}

// Unanalyzable is the minimal result returned when analysis fails outright.
func Unanalyzable(dealID string, now time.Time, cause error) domain.AnalysisResult {
	msg := "Unable to analyze this deal right now"
	if cause != nil {
		msg = fmt.Sprintf("%s (%s)", msg, cause.Error())
	}
	return domain.AnalysisResult{
		DealID:          dealID,
		Metrics:         map[string]map[string]float64{},
		Recommendations: []string{msg},
		AnalyzedAt:      now.UTC(),
	}
}

func priceGroup(d domain.Deal, history []domain.PricePoint, comps []float64) group {
	value := neutral
	if disc := d.DiscountPercent(); d.OriginalPrice != nil && disc > 0 {
		value = math.Min(disc/100/0.5, 1)
	}

	trend := neutral
	if len(history) >= 2 {
		start := history[0].Timestamp
		xs := make([]float64, len(history))
		ys := make([]float64, len(history))
		for i, p := range history {
			xs[i] = p.Timestamp.Sub(start).Hours() / 24
			ys[i] = p.Price
		}
		if m := mean(ys); m > 0 {
			trend = clamp01(neutral - slope(xs, ys)/m*10)
		}
	}

	position := neutral
	if len(comps) > 0 {
		lo, hi := d.Price, d.Price
		for _, c := range comps {
			lo = math.Min(lo, c)
			hi = math.Max(hi, c)
		}
		if hi > lo {
			position = (hi - d.Price) / (hi - lo)
		}
	}

	return group{
		score: 0.4*value + 0.3*trend + 0.3*position,
		metrics: map[string]float64{
			"value_proposition": value,
			"trend":             trend,
			"relative_position": position,
			"discount_percent":  d.DiscountPercent(),
		},
	}
}

func historicalGroup(current float64, history []float64) group {
	stability, rangePos, cv := neutral, neutral, 0.0
	var lo, hi float64
	if len(history) >= 2 {
		cv = rollingCV(history, volatilityWin)
		stability = clamp01(1 - 5*cv)
		lo, hi = history[0], history[0]
		for _, p := range history {
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
		}
		if hi > lo {
			rangePos = clamp01((hi - current) / (hi - lo))
		}
	}
	return group{
		score: 0.5*stability + 0.5*rangePos,
		metrics: map[string]float64{
			"volatility":     cv,
			"stability":      stability,
			"range_position": rangePos,
			"history_min":    lo,
			"history_max":    hi,
			"points":         float64(len(history)),
		},
	}
}

func marketGroup(d domain.Deal, comparables []domain.Deal, history []float64) group {
	n, priced, higher := 0, 0, 0
	sameSeller := 0
	for _, c := range comparables {
		if c.ID == d.ID {
			continue
		}
		n++
		if c.Price > 0 {
			priced++
			if c.Price > d.Price {
				higher++
			}
		}
		if d.Seller.Name != "" && d.Seller.Name != domain.UnknownSeller && strings.EqualFold(c.Seller.Name, d.Seller.Name) {
			sameSeller++
		}
	}

	// competition is the fraction of comparables priced above this deal.
	competition, share := neutral, neutral
	if priced > 0 {
		competition = float64(higher) / float64(priced)
	}
	if n > 0 {
		share = float64(sameSeller+1) / float64(n+1)
	}

	momentum := 0.0
	if len(history) >= 2 && history[0] > 0 {
		momentum = (history[0] - history[len(history)-1]) / history[0]
	}

	return group{
		score: 0.5*competition + 0.2*(1-share) + 0.3*clamp01(0.5+2*momentum),
		metrics: map[string]float64{
			"competition":  competition,
			"seller_share": share,
			"momentum":     momentum,
			"comparables":  float64(n),
		},
	}
}

func goalGroup(d domain.Deal, g *domain.Goal, now time.Time) group {
	if g == nil {
		return group{score: neutral, metrics: map[string]float64{}}
	}

	fit := 1.0
	if g.MaxPrice != nil && *g.MaxPrice > 0 && d.Price > *g.MaxPrice {
		over := d.Price - *g.MaxPrice
		fit = math.Exp(-5 * over / *g.MaxPrice)
	}

	text := d.Title + " " + d.Description
	keyword := neutral
	if len(g.Keywords) > 0 {
		keyword = textmatch.MatchRatio(text, g.Keywords)
	}

	urgency := 0.2
	metrics := map[string]float64{}
	if g.Deadline != nil {
		days := g.Deadline.Sub(now).Hours() / 24
		metrics["days_left"] = days
		switch {
		case days <= 1:
			urgency = 1
		case days <= 3:
			urgency = 0.8
		case days <= 7:
			urgency = 0.6
		case days <= 14:
			urgency = 0.4
		}
	}

	brandFeature := neutral
	if terms := append(append([]string(nil), g.Brands...), g.Features...); len(terms) > 0 {
		brand, _ := d.Metadata["brand"].(string)
		brandFeature = textmatch.MatchRatio(brand+" "+text, terms)
	}

	metrics["budget_fit"] = fit
	metrics["keyword_match"] = keyword
	metrics["urgency"] = urgency
	metrics["brand_feature"] = brandFeature
	return group{
		score:   0.4*fit + 0.3*keyword + 0.1*urgency + 0.2*brandFeature,
		metrics: metrics,
	}
}

func confidenceOf(in Input, historyPoints, comps int) float64 {
	var c float64
	switch {
	case historyPoints >= 2:
		c += 0.3
	case historyPoints == 1:
		c += 0.15
	}
	c += 0.3 * math.Min(float64(comps)/10, 1)
	if in.Deal.Seller.Rating > 0 || (in.Deal.Seller.Name != "" && in.Deal.Seller.Name != domain.UnknownSeller) {
		c += 0.2
	}
	if in.Goal != nil {
		c += 0.2
	}
	return math.Min(c, 1)
}

// anomalyScore flags prices far from comparable listings and implausible
// discounts.
func anomalyScore(d domain.Deal, comps []float64) float64 {
	z := 0.0
	if len(comps) >= minComparables {
		if sd := stddev(comps); sd > 0 {
			z = math.Abs(d.Price-mean(comps)) / sd
		}
	}
	discount := 0.0
	if d.DiscountPercent() > outlierDiscount {
		discount = 1
	}
	return clamp01(0.6*math.Min(z/3, 1) + 0.4*discount)
}
