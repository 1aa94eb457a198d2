package domain

import "time"

// AnalysisResult is a wholesale-replaced quality assessment of one deal.
type AnalysisResult struct {
	DealID          string                        `json:"deal_id"`
	Score           float64                       `json:"score"`
	Metrics         map[string]map[string]float64 `json:"metrics"`
	Confidence      float64                       `json:"confidence"`
	AnomalyScore    float64                       `json:"anomaly_score"`
	Recommendations []string                      `json:"recommendations"`
	AnalyzedAt      time.Time                     `json:"analyzed_at"`
}
