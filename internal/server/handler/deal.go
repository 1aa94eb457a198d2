package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// DealSearcher runs ad-hoc searches and single-deal lookups.
type DealSearcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error)
	Get(ctx context.Context, id string) (domain.Deal, error)
}

// Analyzer produces the quality analysis of a stored deal.
type Analyzer interface {
	Analyze(ctx context.Context, dealID string) (domain.AnalysisResult, error)
}

// DealHandler serves the deal endpoints.
type DealHandler struct {
	deals    DealSearcher
	analyzer Analyzer
	logger   *slog.Logger
}

// NewDealHandler creates a DealHandler.
func NewDealHandler(deals DealSearcher, analyzer Analyzer, logger *slog.Logger) *DealHandler {
	return &DealHandler{deals: deals, analyzer: analyzer, logger: logHandler(logger, "deals")}
}

// Search runs an ad-hoc deal search.
// GET /api/deals/search?q=...&category=...&min_price=...&max_price=...&markets=...
func (h *DealHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	resp, err := h.deals.Search(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDeal returns one deal.
// GET /api/deals/{id}
func (h *DealHandler) GetDeal(w http.ResponseWriter, r *http.Request) {
	deal, err := h.deals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deal.View())
}

// Analyze returns the quality analysis of one deal.
// GET /api/deals/{id}/analysis
func (h *DealHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	res, err := h.analyzer.Analyze(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
