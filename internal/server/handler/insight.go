package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/avalens/avalens/internal/domain"
	"github.com/avalens/avalens/internal/service"
)

// InsightReader looks up stored insights.
type InsightReader interface {
	GetByID(ctx context.Context, id string) (domain.Insight, error)
	ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Insight, error)
}

// InsightGenerator runs the generation pipeline. GenerateBatch results come
// back in the same order as the requested types.
type InsightGenerator interface {
	Allow(ctx context.Context, wallet string) bool
	GenerateBatch(ctx context.Context, p *domain.Portfolio, types []domain.InsightType, protocols map[string]*domain.ProtocolInfo, market *domain.MarketContext, tolerance service.RiskTolerance) []domain.GenerationResult
}

// PortfolioSource supplies the portfolio, protocol metadata and market
// context the generator analyzes.
type PortfolioSource interface {
	Fetch(ctx context.Context, addresses []string) (*domain.Portfolio, error)
	ProtocolDetails(ctx context.Context, p *domain.Portfolio) map[string]*domain.ProtocolInfo
	MarketOverview(ctx context.Context, protocols map[string]*domain.ProtocolInfo) *domain.MarketContext
}

// InsightHandler serves insight-related HTTP endpoints.
type InsightHandler struct {
	insights   InsightReader
	generator  InsightGenerator
	portfolios PortfolioSource
	logger     *slog.Logger
}

// NewInsightHandler creates an InsightHandler with the given collaborators.
func NewInsightHandler(insights InsightReader, generator InsightGenerator, portfolios PortfolioSource, logger *slog.Logger) *InsightHandler {
	return &InsightHandler{
		insights:   insights,
		generator:  generator,
		portfolios: portfolios,
		logger:     logger,
	}
}

type listInsightsResponse struct {
	Insights []insightResponse `json:"insights"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type generateRequest struct {
	Types         []string `json:"types"`
	RiskTolerance string   `json:"riskTolerance"`
}

type generationEntry struct {
	Type       string           `json:"type"`
	Status     string           `json:"status"`
	Insight    *insightResponse `json:"insight,omitempty"`
	Error      string           `json:"error,omitempty"`
	TokensUsed int              `json:"tokensUsed"`
	CostUSD    float64          `json:"costUsd"`
	DurationMs int64            `json:"durationMs"`
}

type generateResponse struct {
	WalletAddress string            `json:"walletAddress"`
	Results       []generationEntry `json:"results"`
}

// ListInsights returns stored insights for a wallet, newest first.
// GET /api/insights/{address}?limit=50&offset=0
func (h *InsightHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "address")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet address")
		return
	}
	opts := parseListOpts(r)

	insights, err := h.insights.ListByWallet(r.Context(), strings.ToLower(wallet), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list insights failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list insights")
		return
	}

	out := listInsightsResponse{
		Insights: make([]insightResponse, 0, len(insights)),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	for i := range insights {
		out.Insights = append(out.Insights, renderInsight(&insights[i]))
	}

	writeJSON(w, http.StatusOK, out)
}

// GetInsight returns a single stored insight by its ID.
// GET /api/insight/{id}
func (h *InsightHandler) GetInsight(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing insight id")
		return
	}

	ins, err := h.insights.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "insight not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get insight failed",
			slog.String("insight_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get insight")
		return
	}

	writeJSON(w, http.StatusOK, renderInsight(&ins))
}

// GenerateInsights fetches the wallet's portfolio and runs the generation
// pipeline for the requested insight types (all three when the body names
// none). Generation is rate limited per wallet.
// POST /api/insights/{address}/generate
func (h *InsightHandler) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "address")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet address")
		return
	}

	types, tolerance, err := parseGenerateRequest(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.generator.Allow(r.Context(), wallet) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "insight generation rate limit exceeded")
		return
	}

	p, err := h.portfolios.Fetch(r.Context(), []string{wallet})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAddress):
			writeError(w, http.StatusBadRequest, "invalid wallet address")
		case errors.Is(err, domain.ErrNoPositions):
			writeError(w, http.StatusNotFound, "no positions found for wallet")
		default:
			h.logger.ErrorContext(r.Context(), "handler: fetch portfolio for insights failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to fetch portfolio")
		}
		return
	}

	protocols := h.portfolios.ProtocolDetails(r.Context(), p)
	market := h.portfolios.MarketOverview(r.Context(), protocols)
	results := h.generator.GenerateBatch(r.Context(), p, types, protocols, market, tolerance)

	out := generateResponse{
		WalletAddress: strings.ToLower(wallet),
		Results:       make([]generationEntry, 0, len(results)),
	}
	for i, res := range results {
		entry := generationEntry{
			Type:       string(types[i]),
			Status:     string(domain.StatusCompleted),
			TokensUsed: res.TokensUsed,
			CostUSD:    res.CostUSD,
			DurationMs: res.DurationMs,
		}
		if res.Failed() {
			entry.Status = string(domain.StatusFailed)
			entry.Error = res.Err
		} else {
			ir := renderInsight(res.Insight)
			entry.Insight = &ir
		}
		out.Results = append(out.Results, entry)
	}

	writeJSON(w, http.StatusOK, out)
}

// parseGenerateRequest decodes the optional request body. An empty body
// selects every insight type and the medium risk tolerance; unknown type or
// tolerance names are rejected.
func parseGenerateRequest(body io.Reader) ([]domain.InsightType, service.RiskTolerance, error) {
	var req generateRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, "", errors.New("invalid request body")
	}

	tolerance := service.ToleranceMedium
	switch rt := service.RiskTolerance(strings.ToLower(req.RiskTolerance)); rt {
	case "":
	case service.ToleranceLow, service.ToleranceMedium, service.ToleranceHigh:
		tolerance = rt
	default:
		return nil, "", errors.New("unknown risk tolerance: " + req.RiskTolerance)
	}

	types := []domain.InsightType{
		domain.InsightRiskExposure,
		domain.InsightRebalancing,
		domain.InsightSentimentAlert,
	}
	if len(req.Types) > 0 {
		types = make([]domain.InsightType, 0, len(req.Types))
		for _, t := range req.Types {
			switch it := domain.InsightType(t); it {
			case domain.InsightRiskExposure, domain.InsightRebalancing, domain.InsightSentimentAlert:
				types = append(types, it)
			default:
				return nil, "", errors.New("unknown insight type: " + t)
			}
		}
	}
	return types, tolerance, nil
}
