package analysis

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// recommend turns the metrics into at most maxRecommend messages, most
// important first. It always returns at least one.
func recommend(d domain.Deal, res domain.AnalysisResult) []string {
	price := res.Metrics[GroupPrice]
	hist := res.Metrics[GroupHistorical]
	goal := res.Metrics[GroupGoal]

	var out []string
	add := func(cond bool, msg string) {
		if cond && len(out) < maxRecommend {
			out = append(out, msg)
		}
	}

	add(res.AnomalyScore > 0.5, "Price is unusual compared with similar listings; verify the seller before buying")
	if disc := d.DiscountPercent(); disc >= 30 {
		add(true, fmt.Sprintf("Strong discount: %.0f%% off the original price", disc))
	}
	add(goal != nil && goal["budget_fit"] < 0.5 && goal["budget_fit"] > 0, "Price is above your goal budget")
	if days, ok := goal["days_left"]; ok && goal["urgency"] >= 0.8 {
		add(true, deadlineMessage(days))
	}
	add(hist["points"] >= 2 && hist["range_position"] >= 0.8, "Close to the lowest price seen for this deal")
	add(price["trend"] > 0.6, "Price is trending down; waiting may get a lower price")
	add(price["trend"] < 0.4, "Price has been rising; buying now may beat further increases")
	add(price["relative_position"] > 0.7, "Cheaper than most comparable listings")
	add(price["relative_position"] < 0.3, "Comparable listings are available for less")
	add(res.Confidence < lowConfidence, "Limited data available; treat this assessment as approximate")

	if len(out) == 0 {
		out = append(out, "No strong signals either way; compare a few listings before buying")
	}
	return out
}

func deadlineMessage(days float64) string {
	switch n := int(math.Ceil(days)); {
	case n <= 0:
		return "Goal deadline has passed; act now or extend it"
	case n == 1:
		return "Goal deadline in 1 day; act soon"
	default:
		return fmt.Sprintf("Goal deadline in %d days; act soon", n)
	}
}
